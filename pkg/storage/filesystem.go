package storage

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// LocalStorage persists append-only outbox files under a base directory.
type LocalStorage struct {
	baseDir string
	mu      sync.Mutex
}

// NewLocalStorage ensures the base directory exists and returns a handle.
func NewLocalStorage(baseDir string) (*LocalStorage, error) {
	if baseDir == "" {
		baseDir = "./outbox"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create outbox directory: %w", err)
	}
	return &LocalStorage{baseDir: baseDir}, nil
}

// AppendLine writes data followed by a newline to the named file and syncs it to disk.
func (s *LocalStorage) AppendLine(filename string, data []byte) error {
	path, err := s.resolve(filename)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open outbox file: %w", err)
	}
	defer file.Close() //nolint:errcheck
	if _, err := file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append outbox file: %w", err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("sync outbox file: %w", err)
	}
	return nil
}

// ReadLines returns the lines of the named file.
func (s *LocalStorage) ReadLines(filename string) ([]string, error) {
	path, err := s.resolve(filename)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open outbox file: %w", err)
	}
	defer file.Close() //nolint:errcheck

	var lines []string
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read outbox file: %w", err)
	}
	return lines, nil
}

// Path exposes the underlying path (useful for debugging).
func (s *LocalStorage) Path(filename string) string {
	path, _ := s.resolve(filename)
	return path
}

// resolve keeps every file inside the base directory.
func (s *LocalStorage) resolve(filename string) (string, error) {
	clean := filepath.Clean(filename)
	if filepath.IsAbs(clean) || clean == "." || strings.HasPrefix(clean, "..") {
		return "", fmt.Errorf("invalid outbox file name %q", filename)
	}
	return filepath.Join(s.baseDir, clean), nil
}
