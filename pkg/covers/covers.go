// Package covers stores book cover images outside the relational
// database. Two backends are provided: a local filesystem directory for
// single-node deployments and S3 for anything that needs shared or
// durable object storage. The catalog only ever records the public URL
// returned by the store, so backends can be swapped without touching
// book rows.
package covers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"regexp"

	"github.com/google/uuid"

	"github.com/pressleaf/biblio/pkg/observability"
	"github.com/pressleaf/biblio/pkg/storage"
)

// ErrNotFound is returned when no cover exists under a key. Malformed
// keys report it too, since a key that could never have been issued
// cannot name a stored cover.
var ErrNotFound = errors.New("cover not found")

// Store persists cover images under opaque keys.
type Store interface {
	// Put stores content under key, replacing any previous object.
	Put(ctx context.Context, key string, content io.Reader, contentType string) error

	// Open returns the stored content and its content type. The caller
	// must close the reader.
	Open(ctx context.Context, key string) (io.ReadCloser, string, error)

	// Delete removes a cover. Deleting a key that does not exist is a
	// no-op.
	Delete(ctx context.Context, key string) error

	// URL returns the address a client should fetch the cover from.
	// Filesystem stores return a server-relative path; S3 stores return
	// an absolute URL.
	URL(key string) string

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error
}

// NewStore builds the backend named by cfg.CoversBackend. An empty
// backend selects the filesystem store.
func NewStore(ctx context.Context, cfg storage.Config, logger *observability.Logger) (Store, error) {
	switch cfg.CoversBackend {
	case "", "filesystem":
		return NewFileStore(cfg.CoversRoot, logger)
	case "s3":
		return NewS3Store(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unknown covers backend %q", cfg.CoversBackend)
	}
}

// extensions maps the accepted upload types to the extension their keys
// carry. Anything outside this set is rejected before a key is minted.
var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// contentTypes is the reverse of extensions, used to answer reads
// without storing the type alongside the object.
var contentTypes = map[string]string{
	".jpg":  "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
	".gif":  "image/gif",
}

// NewKey mints a fresh key for a cover of the given content type.
func NewKey(contentType string) (string, error) {
	ext, ok := extensions[contentType]
	if !ok {
		return "", fmt.Errorf("unsupported cover content type %q", contentType)
	}
	return uuid.NewString() + ext, nil
}

// ContentType derives the content type from a key's extension.
func ContentType(key string) string {
	if ct, ok := contentTypes[filepath.Ext(key)]; ok {
		return ct
	}
	return "application/octet-stream"
}

// keyPattern pins keys to the exact shape NewKey produces. Open and
// Delete take keys from request paths, so anything looser would let
// path fragments reach the backend.
var keyPattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}\.[a-z0-9]+$`)

func validKey(key string) bool {
	return keyPattern.MatchString(key)
}
