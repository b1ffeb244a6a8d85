package memory

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pavel-fokin/upload-manager/internal/files"
)

// Storage implements files.Storage by keeping content in memory. Nothing
// survives a restart.
type Storage struct {
	mu      sync.RWMutex
	blobs   map[string][]byte
	maxSize int64
}

// NewStorage creates a new in-memory storage. A non-positive maxSize falls
// back to files.DefaultMaxFileSize.
func NewStorage(maxSize int64) *Storage {
	if maxSize <= 0 {
		maxSize = files.DefaultMaxFileSize
	}
	return &Storage{
		blobs:   make(map[string][]byte),
		maxSize: maxSize,
	}
}

// Save buffers content and stores it under a fresh token
func (s *Storage) Save(ctx context.Context, name string, mimeType string, content io.Reader) (*files.File, error) {
	data, err := files.ReadAllLimit(files.ContextReader(ctx, content), s.maxSize)
	if err != nil {
		if errors.Is(err, files.ErrSizeExceeded) {
			return nil, fmt.Errorf("%q is larger than %s: %w", name, files.FormatBytes(s.maxSize), err)
		}
		return nil, &files.StorageError{Op: "save", Err: err}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	token := uuid.NewString()

	s.mu.Lock()
	s.blobs[token] = data
	s.mu.Unlock()

	return &files.File{
		ID:           files.NewID(),
		Name:         name,
		MimeType:     mimeType,
		Size:         int64(len(data)),
		CreatedAt:    time.Now(),
		StorageToken: token,
	}, nil
}

// Delete removes the content of file
func (s *Storage) Delete(ctx context.Context, file *files.File) bool {
	token, ok := validToken(file)
	if !ok {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.blobs[token]; !exists {
		return false
	}
	delete(s.blobs, token)
	return true
}

// ReadBytes returns a copy of the stored content
func (s *Storage) ReadBytes(ctx context.Context, file *files.File) ([]byte, error) {
	data, err := s.lookup(file)
	if err != nil {
		return nil, err
	}
	return bytes.Clone(data), nil
}

// ReadStream returns a reader over the stored content
func (s *Storage) ReadStream(ctx context.Context, file *files.File) (io.ReadCloser, error) {
	data, err := s.lookup(file)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Exists checks if content is stored for file
func (s *Storage) Exists(ctx context.Context, file *files.File) bool {
	_, err := s.lookup(file)
	return err == nil
}

// Count returns the number of stored files
func (s *Storage) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}

// Clear removes all stored files
func (s *Storage) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs = make(map[string][]byte)
}

func (s *Storage) lookup(file *files.File) ([]byte, error) {
	token, ok := validToken(file)
	if !ok {
		return nil, files.NotFound(nameOf(file))
	}

	s.mu.RLock()
	data, exists := s.blobs[token]
	s.mu.RUnlock()

	if !exists {
		return nil, files.NotFound(nameOf(file))
	}
	return data, nil
}

// validToken accepts only the bare UUIDs this storage generates.
func validToken(file *files.File) (string, bool) {
	if file == nil || len(file.StorageToken) != 36 {
		return "", false
	}
	if _, err := uuid.Parse(file.StorageToken); err != nil {
		return "", false
	}
	return file.StorageToken, true
}

func nameOf(file *files.File) string {
	if file == nil {
		return ""
	}
	return file.Name
}
