package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
)

// FileStore appends reports to a JSON array on disk, creating it if necessary.
type FileStore struct {
	Path string

	mu sync.Mutex
}

func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

func (s *FileStore) Save(ctx context.Context, r Report) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
		return "", err
	}
	reports, err := s.load()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", err
	}
	reports = append(reports, r)
	data, err := json.MarshalIndent(reports, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(s.Path, data, 0o644); err != nil {
		return "", err
	}
	return s.Path, nil
}

// Load returns every stored report, oldest first.
func (s *FileStore) Load() ([]Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *FileStore) load() ([]Report, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var reports []Report
	if err := json.Unmarshal(data, &reports); err != nil {
		return nil, err
	}
	return reports, nil
}
