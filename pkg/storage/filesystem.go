package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrTooLarge is returned when a stream exceeds the configured size limit.
var ErrTooLarge = errors.New("file exceeds size limit")

// LocalStorage keeps attachment bytes on disk under a base directory. Names are relative and
// can never resolve outside it.
type LocalStorage struct {
	baseDir string
}

// NewLocalStorage ensures the base directory exists and returns a handle.
func NewLocalStorage(baseDir string) (*LocalStorage, error) {
	if baseDir == "" {
		baseDir = "./uploads"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	return &LocalStorage{baseDir: baseDir}, nil
}

// SaveStream copies at most maxBytes from r into filename and returns the bytes written.
// A non-positive maxBytes disables the limit. Content lands in a sibling temp file first, so a
// failed or oversized upload never leaves a partial file under the final name.
func (s *LocalStorage) SaveStream(filename string, r io.Reader, maxBytes int64) (int64, error) {
	path, err := s.resolve(filename)
	if err != nil {
		return 0, err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("prepare storage directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return 0, fmt.Errorf("create file: %w", err)
	}
	discard := func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}

	src := r
	if maxBytes > 0 {
		src = io.LimitReader(r, maxBytes+1)
	}
	written, err := io.Copy(tmp, src)
	if err != nil {
		discard()
		return 0, fmt.Errorf("write stream: %w", err)
	}
	if maxBytes > 0 && written > maxBytes {
		discard()
		return 0, ErrTooLarge
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return 0, fmt.Errorf("flush file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		_ = os.Remove(tmp.Name())
		return 0, fmt.Errorf("chmod file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return 0, fmt.Errorf("commit file: %w", err)
	}
	return written, nil
}

// ReadLimited returns the stored bytes, failing with ErrTooLarge past maxBytes.
func (s *LocalStorage) ReadLimited(filename string, maxBytes int64) ([]byte, error) {
	file, err := s.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close() //nolint:errcheck

	var src io.Reader = file
	if maxBytes > 0 {
		src = io.LimitReader(file, maxBytes+1)
	}
	data, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return nil, ErrTooLarge
	}
	return data, nil
}

// Open returns a read-only handle for the stored file.
func (s *LocalStorage) Open(filename string) (io.ReadCloser, error) {
	path, err := s.resolve(filename)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	return file, nil
}

// Delete removes a stored file if present.
func (s *LocalStorage) Delete(filename string) error {
	path, err := s.resolve(filename)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete file: %w", err)
	}
	return nil
}

// resolve keeps every path inside baseDir.
func (s *LocalStorage) resolve(filename string) (string, error) {
	clean := filepath.Clean("/" + filename)
	path := filepath.Join(s.baseDir, clean)
	base := filepath.Clean(s.baseDir)
	if path != base && !strings.HasPrefix(path, base+string(os.PathSeparator)) {
		return "", fmt.Errorf("path %q escapes storage root", filename)
	}
	return path, nil
}
