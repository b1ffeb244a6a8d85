// Package s3 stores files in any S3-compatible object store.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/pavel-fokin/upload-manager/internal/files"
)

// Config holds the connection settings of the object store.
type Config struct {
	Endpoint    string
	AccessKey   string
	SecretKey   string
	Bucket      string
	UseSSL      bool
	MaxFileSize int64
}

// Storage implements files.Storage on top of a MinIO client. Objects are
// keyed by the same "{uuid}_{name}" tokens the filesystem storage uses.
type Storage struct {
	client  *minio.Client
	bucket  string
	maxSize int64
	log     *slog.Logger
}

// NewStorage connects to the object store and creates the bucket if it
// does not exist yet.
func NewStorage(ctx context.Context, cfg Config, logger *slog.Logger) (*Storage, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = files.DefaultMaxFileSize
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %q: %w", cfg.Bucket, err)
		}
		logger.Info("Created bucket", "bucket", cfg.Bucket)
	}

	return &Storage{
		client:  client,
		bucket:  cfg.Bucket,
		maxSize: cfg.MaxFileSize,
		log:     logger.With("component", "minio-storage"),
	}, nil
}

// Save buffers content to learn its exact size, then uploads it in a single
// PutObject call. The object only becomes visible once the upload completes.
func (s *Storage) Save(ctx context.Context, name string, mimeType string, content io.Reader) (*files.File, error) {
	data, err := files.ReadAllLimit(files.ContextReader(ctx, content), s.maxSize)
	if err != nil {
		if errors.Is(err, files.ErrSizeExceeded) {
			return nil, fmt.Errorf("%q is larger than %s: %w", name, files.FormatBytes(s.maxSize), err)
		}
		return nil, &files.StorageError{Op: "save", Err: err}
	}

	token := files.NewToken(name)
	_, err = s.client.PutObject(ctx, s.bucket, token, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: mimeType,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &files.StorageError{Op: "save", Token: token, Err: err}
	}

	s.log.Info("File saved", "file_name", name, "token", token, "size", len(data))

	return &files.File{
		ID:           files.NewID(),
		Name:         name,
		MimeType:     mimeType,
		Size:         int64(len(data)),
		CreatedAt:    time.Now(),
		StorageToken: token,
	}, nil
}

// Delete removes the object. Missing objects and failures report false.
func (s *Storage) Delete(ctx context.Context, file *files.File) bool {
	if !s.Exists(ctx, file) {
		return false
	}
	if err := s.client.RemoveObject(ctx, s.bucket, file.StorageToken, minio.RemoveObjectOptions{}); err != nil {
		s.log.Error("Failed to delete object", "token", file.StorageToken, "error", err)
		return false
	}
	return true
}

// ReadBytes returns the object content
func (s *Storage) ReadBytes(ctx context.Context, file *files.File) ([]byte, error) {
	stream, err := s.ReadStream(ctx, file)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	data, err := io.ReadAll(stream)
	if err != nil {
		return nil, s.wrap("read", file, err)
	}
	return data, nil
}

// ReadStream returns a reader over the object content
func (s *Storage) ReadStream(ctx context.Context, file *files.File) (io.ReadCloser, error) {
	if !validToken(file) {
		return nil, files.NotFound(nameOf(file))
	}

	obj, err := s.client.GetObject(ctx, s.bucket, file.StorageToken, minio.GetObjectOptions{})
	if err != nil {
		return nil, s.wrap("read", file, err)
	}
	// GetObject is lazy; Stat surfaces a missing key before any read.
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		return nil, s.wrap("read", file, err)
	}
	return obj, nil
}

// Exists checks if the object is present in the bucket
func (s *Storage) Exists(ctx context.Context, file *files.File) bool {
	if !validToken(file) {
		return false
	}
	_, err := s.client.StatObject(ctx, s.bucket, file.StorageToken, minio.StatObjectOptions{})
	if err != nil && !isNotFound(err) {
		s.log.Warn("Failed to stat object", "token", file.StorageToken, "error", err)
	}
	return err == nil
}

func (s *Storage) wrap(op string, file *files.File, err error) error {
	if isNotFound(err) {
		return files.NotFound(file.Name)
	}
	return &files.StorageError{Op: op, Token: file.StorageToken, Err: err}
}

func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound
}

func validToken(file *files.File) bool {
	if file == nil {
		return false
	}
	_, err := files.ParseToken(file.StorageToken)
	return err == nil
}

func nameOf(file *files.File) string {
	if file == nil {
		return ""
	}
	return file.Name
}
