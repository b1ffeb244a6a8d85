package files

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a token does not resolve to stored content.
	ErrNotFound = errors.New("file not found")

	// ErrSizeExceeded is returned when content is larger than a backend accepts.
	ErrSizeExceeded = errors.New("file exceeds maximum size")

	// ErrInvalidToken is returned for tokens a backend could never have produced.
	ErrInvalidToken = errors.New("invalid storage token")
)

// StorageError wraps an unexpected backend failure.
type StorageError struct {
	Op    string
	Token string
	Err   error
}

func (e *StorageError) Error() string {
	if e.Token == "" {
		return fmt.Sprintf("storage %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s %q failed: %v", e.Op, e.Token, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// NotFound returns ErrNotFound annotated with the file name.
func NotFound(name string) error {
	return fmt.Errorf("%q: %w", name, ErrNotFound)
}
