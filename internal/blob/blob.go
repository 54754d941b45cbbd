// Package blob provides a provider-agnostic blob store: opaque
// key-to-bytes storage, durable, addressable by key path, as required
// by the Blob Store (BS) external collaborator.
package blob

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("blob not found")

// Metadata describes a stored blob's identity fields and is passed to
// Put alongside the raw bytes. FileStore does not persist it; only the
// bytes are stored.
type Metadata struct {
	UserID    string
	ProblemID string
	Language  string
	SizeBytes int
}

// Store is the Blob Store (BS) interface: put, get, delete, keyed by
// an opaque path. The only implementation is FileStore (local
// filesystem); New returns an error for the "s3" and "gcs" backends.
type Store interface {
	// Put writes data under key, overwriting any existing object.
	Put(ctx context.Context, key string, data []byte, meta Metadata) error

	// Get reads the bytes stored under key. Returns ErrNotFound if
	// absent.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes the object at key. No error if it doesn't exist.
	Delete(ctx context.Context, key string) error
}

// Config selects and configures a blob store backend.
type Config struct {
	Backend string // "file" (default), "s3", "gcs"
	File    FileConfig
}

// FileConfig configures the local filesystem backend.
type FileConfig struct {
	BaseDir string
}

// New constructs a Store for the configured backend.
func New(cfg Config) (Store, error) {
	backend := cfg.Backend
	if backend == "" {
		backend = "file"
	}

	switch backend {
	case "file":
		return NewFileStore(cfg.File)
	case "s3":
		return nil, errors.New("s3 blob store not yet implemented")
	case "gcs":
		return nil, errors.New("gcs blob store not yet implemented")
	default:
		return nil, errors.New("unknown blob backend: " + backend)
	}
}
