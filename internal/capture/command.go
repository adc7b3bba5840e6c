package capture

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/csheth/medscan/internal/apperr"
)

// DefaultCommand streams MJPEG from a V4L2 node on stdout.
var DefaultCommand = []string{
	"ffmpeg", "-loglevel", "error",
	"-f", "v4l2", "-i", "{device}",
	"-f", "mjpeg", "-q:v", "3", "pipe:1",
}

const devicePlaceholder = "{device}"

// CommandDevice runs an external encoder that writes concatenated JPEG frames
// to stdout. The latest complete frame is what a capture returns.
type CommandDevice struct {
	Node    string
	Command []string
	Logger  *logrus.Logger
}

func (d CommandDevice) Name() string {
	return d.Node
}

func (d CommandDevice) Acquire(ctx context.Context) (Stream, error) {
	if _, err := os.Stat(d.Node); err != nil {
		return nil, apperr.DeviceUnavailable("", fmt.Errorf("camera device %s: %w", d.Node, err))
	}
	argv := d.Command
	if len(argv) == 0 {
		argv = DefaultCommand
	}
	args := make([]string, len(argv))
	for i, arg := range argv {
		args[i] = strings.ReplaceAll(arg, devicePlaceholder, d.Node)
	}

	// The process outlives Acquire's context; Stop ends it.
	cmd := exec.Command(args[0], args[1:]...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, apperr.DeviceUnavailable("", err)
	}
	stderr := &lockedBuffer{}
	cmd.Stderr = stderr
	if err := cmd.Start(); err != nil {
		return nil, apperr.DeviceUnavailable("", fmt.Errorf("start %s: %w", args[0], err))
	}

	s := &commandStream{
		cmd:    cmd,
		stderr: stderr,
		ready:  make(chan struct{}),
		done:   make(chan struct{}),
		logger: d.Logger,
	}
	go s.pump(stdout)
	return s, nil
}

type commandStream struct {
	cmd    *exec.Cmd
	stderr *lockedBuffer
	logger *logrus.Logger

	mu        sync.Mutex
	latest    []byte
	readErr   error
	exitErr   error
	ready     chan struct{}
	readyOnce sync.Once
	done      chan struct{}
	stopOnce  sync.Once
	stopping  atomic.Bool
}

// pump is the only caller of cmd.Wait. The stream is marked ready with an
// error only after the process is reaped, so stderr is complete by then.
func (s *commandStream) pump(r io.Reader) {
	defer close(s.done)
	br := bufio.NewReaderSize(r, 64<<10)
	for {
		frame, err := readJPEG(br)
		if err != nil {
			exitErr := s.cmd.Wait()
			s.mu.Lock()
			s.readErr = err
			s.exitErr = exitErr
			s.mu.Unlock()
			s.readyOnce.Do(func() { close(s.ready) })
			if s.logger != nil && !s.stopping.Load() && (exitErr != nil || !errors.Is(err, io.EOF)) {
				s.logger.WithFields(logrus.Fields{
					"exit":   exitErr,
					"stderr": s.stderr.String(),
				}).WithError(err).Warn("camera stream ended")
			}
			return
		}
		s.mu.Lock()
		s.latest = frame
		s.mu.Unlock()
		s.readyOnce.Do(func() { close(s.ready) })
	}
}

func (s *commandStream) ReadFrame(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.ready:
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latest == nil {
		if msg := strings.TrimSpace(s.stderr.String()); msg != "" {
			return nil, errors.New(msg)
		}
		if s.readErr != nil && !errors.Is(s.readErr, io.EOF) {
			return nil, s.readErr
		}
		if s.exitErr != nil {
			return nil, fmt.Errorf("encoder exited: %w", s.exitErr)
		}
		return nil, errors.New("no frames received")
	}
	return append([]byte(nil), s.latest...), nil
}

func (s *commandStream) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		s.stopping.Store(true)
		if s.cmd.Process != nil {
			if killErr := s.cmd.Process.Kill(); killErr != nil && !errors.Is(killErr, os.ErrProcessDone) {
				err = killErr
			}
		}
		<-s.done
	})
	return err
}

// lockedBuffer collects encoder stderr, which exec writes from its own goroutine.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	// Keep the head; the first lines name the failure.
	if room := maxStderr - b.buf.Len(); room < len(p) {
		if room > 0 {
			b.buf.Write(p[:room])
		}
		return len(p), nil
	}
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

const maxStderr = 4 << 10

var (
	jpegSOI = []byte{0xFF, 0xD8}
	jpegEOI = []byte{0xFF, 0xD9}
)

// readJPEG returns the next SOI..EOI delimited frame from r, skipping any
// bytes that precede the start marker.
func readJPEG(r *bufio.Reader) ([]byte, error) {
	if err := skipTo(r, jpegSOI); err != nil {
		return nil, err
	}
	frame := append([]byte(nil), jpegSOI...)
	var prev byte
	for {
		b, err := r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}
		frame = append(frame, b)
		if prev == jpegEOI[0] && b == jpegEOI[1] {
			return frame, nil
		}
		prev = b
	}
}

func skipTo(r *bufio.Reader, marker []byte) error {
	var prev byte
	first := true
	for {
		b, err := r.ReadByte()
		if err != nil {
			return err
		}
		if !first && prev == marker[0] && b == marker[1] {
			return nil
		}
		prev = b
		first = false
	}
}
