package files

import (
	"context"
	"io"
)

// DefaultMaxFileSize is the size limit backends use when none is configured.
const DefaultMaxFileSize int64 = 10 * 1024 * 1024

// Storage defines the interface for the physical file storage
type Storage interface {
	// Save persists content under a freshly generated token and returns
	// the descriptor of what was stored
	Save(ctx context.Context, name string, mimeType string, content io.Reader) (*File, error)

	// Delete removes the stored content. It reports false when there was
	// nothing to remove or removal failed.
	Delete(ctx context.Context, file *File) bool

	// ReadBytes returns the stored content
	ReadBytes(ctx context.Context, file *File) ([]byte, error)

	// ReadStream returns a reader for the stored content
	ReadStream(ctx context.Context, file *File) (io.ReadCloser, error)

	// Exists checks if the file is stored in this backend. Malformed or
	// foreign tokens are reported as missing.
	Exists(ctx context.Context, file *File) bool
}
