package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/pavel-fokin/upload-manager/internal/files"
)

const tempPattern = ".upload-*"

// Storage implements files.Storage using the filesystem. Every file is
// stored as {dataDir}/{token}.
type Storage struct {
	dataDir string
	maxSize int64
	log     *slog.Logger
}

// NewStorage creates a new filesystem storage, creating dataDir if needed
func NewStorage(dataDir string, maxSize int64, logger *slog.Logger) (*Storage, error) {
	if dataDir == "" {
		dataDir = "uploads"
	}
	if maxSize <= 0 {
		maxSize = files.DefaultMaxFileSize
	}
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	return &Storage{
		dataDir: dataDir,
		maxSize: maxSize,
		log:     logger.With("component", "fs-storage"),
	}, nil
}

// Save streams content into a temporary file and renames it into place, so
// a token is only ever returned for a complete file.
func (s *Storage) Save(ctx context.Context, name string, mimeType string, content io.Reader) (*files.File, error) {
	token := files.NewToken(name)

	tmp, err := os.CreateTemp(s.dataDir, tempPattern)
	if err != nil {
		return nil, &files.StorageError{Op: "save", Token: token, Err: err}
	}
	// Removing after a successful rename fails harmlessly.
	defer os.Remove(tmp.Name())

	size, err := io.Copy(tmp, io.LimitReader(files.ContextReader(ctx, content), s.maxSize+1))
	if err != nil {
		tmp.Close()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &files.StorageError{Op: "save", Token: token, Err: err}
	}
	if size > s.maxSize {
		tmp.Close()
		return nil, fmt.Errorf("%q is larger than %s: %w", name, files.FormatBytes(s.maxSize), files.ErrSizeExceeded)
	}
	if err := tmp.Close(); err != nil {
		return nil, &files.StorageError{Op: "save", Token: token, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := os.Rename(tmp.Name(), s.path(token)); err != nil {
		return nil, &files.StorageError{Op: "save", Token: token, Err: err}
	}

	s.log.Info("File saved", "file_name", name, "token", token, "size", size)

	return &files.File{
		ID:           files.NewID(),
		Name:         name,
		MimeType:     mimeType,
		Size:         size,
		CreatedAt:    time.Now(),
		StorageToken: token,
	}, nil
}

// Delete removes a stored file. Failures are logged and reported as false.
func (s *Storage) Delete(ctx context.Context, file *files.File) bool {
	token, ok := s.token(file)
	if !ok {
		return false
	}

	if err := os.Remove(s.path(token)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.log.Warn("File not found for deletion", "token", token)
			return false
		}
		s.log.Error("Failed to delete file", "token", token, "error", err)
		return false
	}

	s.log.Info("File deleted", "token", token)
	return true
}

// ReadBytes returns the stored content
func (s *Storage) ReadBytes(ctx context.Context, file *files.File) ([]byte, error) {
	stream, err := s.ReadStream(ctx, file)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	data, err := io.ReadAll(files.ContextReader(ctx, stream))
	if err != nil {
		return nil, &files.StorageError{Op: "read", Token: file.StorageToken, Err: err}
	}
	return data, nil
}

// ReadStream returns a reader for the stored content
func (s *Storage) ReadStream(ctx context.Context, file *files.File) (io.ReadCloser, error) {
	token, ok := s.token(file)
	if !ok {
		return nil, fmt.Errorf("%w: %w", files.NotFound(nameOf(file)), files.ErrInvalidToken)
	}

	f, err := os.Open(s.path(token))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, files.NotFound(file.Name)
		}
		return nil, &files.StorageError{Op: "read", Token: token, Err: err}
	}
	return f, nil
}

// Exists checks if a file exists. Tokens that cannot name a stored file are
// reported as missing.
func (s *Storage) Exists(ctx context.Context, file *files.File) bool {
	token, ok := s.token(file)
	if !ok {
		return false
	}

	info, err := os.Stat(s.path(token))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.log.Warn("Failed to stat file", "token", token, "error", err)
		}
		return false
	}
	return info.Mode().IsRegular()
}

func (s *Storage) token(file *files.File) (string, bool) {
	if file == nil {
		return "", false
	}
	if _, err := files.ParseToken(file.StorageToken); err != nil {
		return "", false
	}
	return file.StorageToken, true
}

func (s *Storage) path(token string) string {
	return filepath.Join(s.dataDir, token)
}

func nameOf(file *files.File) string {
	if file == nil {
		return ""
	}
	return file.Name
}
