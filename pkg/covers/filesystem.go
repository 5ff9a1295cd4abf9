package covers

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pressleaf/biblio/pkg/observability"
)

// FileStore keeps covers as plain files under a single directory. Keys
// map one to one onto file names, so the directory can be inspected and
// backed up with ordinary tools.
type FileStore struct {
	root   string
	logger *observability.Logger
}

// NewFileStore creates the root directory if needed.
func NewFileStore(root string, logger *observability.Logger) (*FileStore, error) {
	if root == "" {
		return nil, fmt.Errorf("covers root directory not configured")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create covers directory: %w", err)
	}
	return &FileStore{
		root:   root,
		logger: logger.WithField("component", "covers"),
	}, nil
}

func (s *FileStore) Put(ctx context.Context, key string, content io.Reader, contentType string) error {
	if !validKey(key) {
		return fmt.Errorf("invalid cover key %q", key)
	}

	path := filepath.Join(s.root, key)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create cover file: %w", err)
	}
	if _, err := io.Copy(f, content); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("failed to write cover file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("failed to write cover file: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"key":          key,
		"content_type": contentType,
	}).Debug("Stored cover image")
	return nil
}

func (s *FileStore) Open(ctx context.Context, key string) (io.ReadCloser, string, error) {
	if !validKey(key) {
		return nil, "", ErrNotFound
	}

	f, err := os.Open(filepath.Join(s.root, key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", ErrNotFound
		}
		return nil, "", fmt.Errorf("failed to open cover file: %w", err)
	}
	return f, ContentType(key), nil
}

func (s *FileStore) Delete(ctx context.Context, key string) error {
	if !validKey(key) {
		return nil
	}

	if err := os.Remove(filepath.Join(s.root, key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete cover file: %w", err)
	}
	return nil
}

// URL returns a server-relative path. The API server mounts the
// matching GET /covers/{key} route and streams the file back.
func (s *FileStore) URL(key string) string {
	return "/covers/" + key
}

func (s *FileStore) Ping(ctx context.Context) error {
	info, err := os.Stat(s.root)
	if err != nil {
		return fmt.Errorf("covers directory unavailable: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("covers root %s is not a directory", s.root)
	}
	return nil
}
