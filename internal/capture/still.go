package capture

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/csheth/medscan/internal/apperr"
)

// StillDevice serves the same JPEG file as every frame. It stands in for a
// camera on machines without one and in end-to-end runs.
type StillDevice struct {
	Path string
}

func (d StillDevice) Name() string {
	return "still:" + d.Path
}

func (d StillDevice) Acquire(ctx context.Context) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(d.Path)
	if err != nil {
		return nil, apperr.DeviceUnavailable("", fmt.Errorf("read still frame: %w", err))
	}
	return &stillStream{frame: data}, nil
}

type stillStream struct {
	mu      sync.Mutex
	frame   []byte
	stopped bool
}

func (s *stillStream) ReadFrame(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil, ErrSessionClosed
	}
	return append([]byte(nil), s.frame...), nil
}

func (s *stillStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	s.frame = nil
	return nil
}
