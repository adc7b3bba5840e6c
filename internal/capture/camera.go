package capture

import (
	"context"
	"errors"
	"sync"

	"github.com/csheth/medscan/internal/apperr"
	"github.com/csheth/medscan/internal/media"
)

// Device opens a live video stream.
type Device interface {
	Acquire(ctx context.Context) (Stream, error)
	Name() string
}

// Stream yields encoded frames until stopped.
type Stream interface {
	ReadFrame(ctx context.Context) ([]byte, error)
	Stop() error
}

// ErrSessionClosed is returned when a frame is requested from a closed session.
var ErrSessionClosed = errors.New("capture session closed")

// Camera owns a single device and hands out at most one live session at a time.
type Camera struct {
	device Device

	mu      sync.Mutex
	active  *Session
	opening bool

	// released counts Release calls so an Open that was mid-Acquire can
	// tell it lost the device.
	released uint64
}

func NewCamera(device Device) *Camera {
	return &Camera{device: device}
}

// Name describes the underlying device.
func (c *Camera) Name() string {
	if c == nil || c.device == nil {
		return "none"
	}
	return c.device.Name()
}

// Open acquires the device. On failure no session is left behind.
func (c *Camera) Open(ctx context.Context) (*Session, error) {
	if c == nil || c.device == nil {
		return nil, apperr.DeviceUnavailable("No camera is configured.", nil)
	}

	c.mu.Lock()
	if c.active != nil || c.opening {
		c.mu.Unlock()
		return nil, apperr.DeviceUnavailable("Camera is already in use.", nil)
	}
	c.opening = true
	generation := c.released
	c.mu.Unlock()

	stream, err := c.device.Acquire(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.opening = false
	if err != nil {
		var appErr *apperr.Error
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, apperr.DeviceUnavailable("", err)
	}
	if c.released != generation {
		_ = stream.Stop()
		return nil, apperr.DeviceUnavailable("Camera was released.", ErrSessionClosed)
	}
	session := &Session{camera: c, stream: stream}
	c.active = session
	return session, nil
}

// Active reports whether a session currently holds the device.
func (c *Camera) Active() bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active != nil
}

// Release stops any live session. An Open still in progress stops its stream
// instead of returning a session. It is safe to call at shutdown regardless of state.
func (c *Camera) Release() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	c.released++
	session := c.active
	c.mu.Unlock()
	if session == nil {
		return nil
	}
	return session.Close()
}

func (c *Camera) detach(s *Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == s {
		c.active = nil
	}
}

// Session is a live camera stream.
type Session struct {
	camera *Camera
	stream Stream

	mu       sync.Mutex
	closed   bool
	stopOnce sync.Once
}

// CaptureFrame grabs the current frame as a JPEG image. The session stays open.
func (s *Session) CaptureFrame(ctx context.Context) (media.Image, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return media.Image{}, apperr.DeviceUnavailable("Camera is not open.", ErrSessionClosed)
	}

	frame, err := s.stream.ReadFrame(ctx)
	if err != nil {
		return media.Image{}, apperr.DeviceUnavailable("Failed to capture image from camera.", err)
	}
	if len(frame) == 0 {
		return media.Image{}, apperr.DeviceUnavailable("Camera returned an empty frame.", nil)
	}
	return media.FromCapture(frame), nil
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close stops the stream and frees the camera. Only the first call reports
// the stop error; later calls return nil.
func (s *Session) Close() error {
	var err error
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		err = s.stream.Stop()
		s.camera.detach(s)
	})
	return err
}
