package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ImageStore persists image bytes under a caller-chosen file name and
// returns the URL the dashboard can load them from.
type ImageStore interface {
	Save(ctx context.Context, name string, data []byte) (string, error)
	Remove(name string) error
}

// FileImageStore writes images into a local directory served under a
// public URL prefix.
type FileImageStore struct {
	dir       string
	publicURL string
}

// NewFileImageStore creates dir if needed.
func NewFileImageStore(dir, publicURL string) (*FileImageStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create image directory: %w", err)
	}
	return &FileImageStore{dir: dir, publicURL: strings.TrimRight(publicURL, "/")}, nil
}

// Dir returns the directory images are written to.
func (s *FileImageStore) Dir() string { return s.dir }

// Save writes data to dir/name. Existing files are never overwritten.
func (s *FileImageStore) Save(ctx context.Context, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if name == "" || filepath.Base(name) != name || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("invalid image name %q", name)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("image %s: no data", name)
	}

	path := filepath.Join(s.dir, name)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return "", fmt.Errorf("create image file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("write image file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("close image file: %w", err)
	}

	return s.publicURL + "/" + name, nil
}

// Remove deletes dir/name. A missing file is not an error.
func (s *FileImageStore) Remove(name string) error {
	if name == "" || filepath.Base(name) != name || strings.HasPrefix(name, ".") {
		return fmt.Errorf("invalid image name %q", name)
	}
	if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove image file: %w", err)
	}
	return nil
}
