package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/pavel-fokin/upload-manager/internal/files"
	"github.com/pavel-fokin/upload-manager/internal/fs"
	"github.com/pavel-fokin/upload-manager/internal/memory"
	"github.com/pavel-fokin/upload-manager/internal/s3"
	"github.com/pavel-fokin/upload-manager/internal/sqlite"
	"github.com/pavel-fokin/upload-manager/internal/upload"
)

const (
	StorageMemory = "memory"
	StorageLocal  = "local"
	StorageMinIO  = "minio"
	StorageNone   = "none"

	multipartMemory = 32 << 20
	octetStream     = "application/octet-stream"
)

type Config struct {
	Addr               string    `env:"UPLOAD_MANAGER_ADDR" envDefault:":8080"`
	Storage            string    `env:"UPLOAD_MANAGER_STORAGE" envDefault:"local"`
	DataDir            string    `env:"UPLOAD_MANAGER_DATA_DIR" envDefault:"uploads"`
	DBPath             string    `env:"UPLOAD_MANAGER_DB_PATH"`
	MaxRequestSize     int64     `env:"UPLOAD_MANAGER_MAX_REQUEST_SIZE" envDefault:"104857600"`
	MaxFileCount       int       `env:"UPLOAD_MANAGER_MAX_FILE_COUNT" envDefault:"10"`
	MaxFileSize        int64     `env:"UPLOAD_MANAGER_MAX_FILE_SIZE" envDefault:"10485760"`
	StorageMaxFileSize int64     `env:"UPLOAD_MANAGER_STORAGE_MAX_FILE_SIZE" envDefault:"52428800"`
	AllowedTypes       []string  `env:"UPLOAD_MANAGER_ALLOWED_TYPES" envSeparator:","`
	AutoCompress       bool      `env:"UPLOAD_MANAGER_AUTO_COMPRESS" envDefault:"false"`
	QualityLevels      []float64 `env:"UPLOAD_MANAGER_QUALITY_LEVELS" envSeparator:"," envDefault:"0.9,0.8,0.7,0.6,0.5"`
	MaxImageDimension  int       `env:"UPLOAD_MANAGER_MAX_IMAGE_DIMENSION" envDefault:"1920"`
	AutoUpload         bool      `env:"UPLOAD_MANAGER_AUTO_UPLOAD" envDefault:"true"`
	ThumbnailSize      int       `env:"UPLOAD_MANAGER_THUMBNAIL_SIZE" envDefault:"160"`

	MinIOEndpoint  string `env:"UPLOAD_MANAGER_MINIO_ENDPOINT" envDefault:"localhost:9000"`
	MinIOAccessKey string `env:"UPLOAD_MANAGER_MINIO_ACCESS_KEY"`
	MinIOSecretKey string `env:"UPLOAD_MANAGER_MINIO_SECRET_KEY"`
	MinIOBucket    string `env:"UPLOAD_MANAGER_MINIO_BUCKET" envDefault:"uploads"`
	MinIOUseSSL    bool   `env:"UPLOAD_MANAGER_MINIO_USE_SSL" envDefault:"false"`
}

func (c *Config) uploadOptions() upload.Options {
	return upload.Options{
		MaxFileCount:       c.MaxFileCount,
		MaxFileSize:        c.MaxFileSize,
		AllowedTypes:       c.AllowedTypes,
		AutoCompressImages: c.AutoCompress,
		QualityLevels:      c.QualityLevels,
		MaxImageDimension:  c.MaxImageDimension,
		AutoUpload:         c.AutoUpload,
		ThumbnailSize:      c.ThumbnailSize,
	}
}

// New wires the storage backend, the optional catalog and the upload
// manager behind an HTTP server.
func New(ctx context.Context, cfg *Config) (*http.Server, error) {
	// Initialize structured logger with JSON handler
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	storage, err := newStorage(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	options := []upload.Option{upload.WithLogger(logger)}
	if storage != nil {
		options = append(options, upload.WithStorage(storage))
	}

	var repo *sqlite.Repository
	if cfg.DBPath != "" {
		if storage == nil {
			return nil, errors.New("failed to initialize catalog: a storage backend is required")
		}
		repo, err = sqlite.NewRepository(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize catalog: %w", err)
		}
		options = append(options, upload.WithCatalog(repo))
	}

	manager := upload.NewManager(cfg.uploadOptions(), options...)
	if err := manager.Load(ctx); err != nil {
		if repo != nil {
			repo.Close()
		}
		return nil, err
	}

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      NewHandler(manager, cfg.MaxRequestSize),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	if repo != nil {
		srv.RegisterOnShutdown(func() {
			if err := repo.Close(); err != nil {
				slog.Error("Failed to close catalog", "error", err)
			}
		})
	}

	slog.Info("Server configured", "addr", cfg.Addr, "storage", cfg.Storage, "catalog", cfg.DBPath != "")
	return srv, nil
}

func newStorage(ctx context.Context, cfg *Config, logger *slog.Logger) (files.Storage, error) {
	switch cfg.Storage {
	case StorageMemory:
		return memory.NewStorage(cfg.StorageMaxFileSize), nil
	case StorageLocal, "":
		s, err := fs.NewStorage(cfg.DataDir, cfg.StorageMaxFileSize, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	case StorageMinIO:
		s, err := s3.NewStorage(ctx, s3.Config{
			Endpoint:    cfg.MinIOEndpoint,
			AccessKey:   cfg.MinIOAccessKey,
			SecretKey:   cfg.MinIOSecretKey,
			Bucket:      cfg.MinIOBucket,
			UseSSL:      cfg.MinIOUseSSL,
			MaxFileSize: cfg.StorageMaxFileSize,
		}, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	case StorageNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown storage %q", cfg.Storage)
	}
}

// NewHandler routes the HTTP surface to the manager
func NewHandler(manager *upload.Manager, maxRequestSize int64) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", healthz)
	mux.HandleFunc("POST /v1/files", uploadFiles(manager))
	mux.HandleFunc("GET /v1/files", listFiles(manager))
	mux.HandleFunc("GET /v1/files/{id}", downloadFile(manager))
	mux.HandleFunc("DELETE /v1/files/{id}", deleteFile(manager))
	mux.HandleFunc("GET /v1/pending", listPending(manager))
	mux.HandleFunc("POST /v1/pending/upload", uploadPending(manager))
	mux.HandleFunc("DELETE /v1/pending", clearPending(manager))
	mux.HandleFunc("DELETE /v1/pending/{id}", removePending(manager))
	mux.HandleFunc("POST /v1/clipboard", pasteClipboard(manager))

	return loggingMiddleware(limitBody(mux, maxRequestSize))
}

func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func uploadFiles(manager *upload.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			if isTooLarge(err) {
				http.Error(w, "Request entity too large", http.StatusRequestEntityTooLarge)
				return
			}
			http.Error(w, "Failed to parse multipart form", http.StatusBadRequest)
			return
		}
		defer r.MultipartForm.RemoveAll()

		headers := r.MultipartForm.File["file"]
		if len(headers) == 0 {
			http.Error(w, "No file provided", http.StatusBadRequest)
			return
		}

		candidates := make([]upload.Candidate, 0, len(headers))
		for _, header := range headers {
			file, err := header.Open()
			if err != nil {
				slog.Error("Failed to open form file", "error", err, "file_name", header.Filename)
				http.Error(w, "Failed to read form file", http.StatusBadRequest)
				return
			}
			defer file.Close()

			candidates = append(candidates, upload.Candidate{
				Name:        header.Filename,
				ContentType: sniffFile(header.Header.Get("Content-Type"), file),
				Size:        header.Size,
				Content:     file,
			})
		}

		result := manager.Submit(r.Context(), candidates)
		writeJSON(w, batchStatus(manager, result), result)
	}
}

func pasteClipboard(manager *upload.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			if isTooLarge(err) {
				http.Error(w, "Request entity too large", http.StatusRequestEntityTooLarge)
				return
			}
			http.Error(w, "Failed to read request body", http.StatusBadRequest)
			return
		}
		if len(data) == 0 {
			http.Error(w, "Empty clipboard payload", http.StatusBadRequest)
			return
		}

		contentType := baseType(r.Header.Get("Content-Type"))
		if contentType == "" || contentType == octetStream {
			contentType = baseType(mimetype.Detect(data).String())
		}

		candidate := upload.ClipboardCandidate(data, contentType, time.Now())
		result := manager.Submit(r.Context(), []upload.Candidate{candidate})
		writeJSON(w, batchStatus(manager, result), result)
	}
}

func listFiles(manager *upload.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list := manager.List()
		if list == nil {
			list = []*files.File{}
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func downloadFile(manager *upload.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")

		file, content, err := manager.Download(r.Context(), id)
		if err != nil {
			slog.Error("Download failed", "error", err, "file_id", id)
			writeError(w, err)
			return
		}
		defer content.Close()

		w.Header().Set("Content-Type", file.MimeType)
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": file.Name}))
		w.Header().Set("Content-Length", strconv.FormatInt(file.Size, 10))
		w.WriteHeader(http.StatusOK)

		if _, err := io.Copy(w, content); err != nil {
			slog.Error("Failed to stream file", "error", err, "file_id", id)
		}
	}
}

func deleteFile(manager *upload.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")

		if err := manager.Delete(r.Context(), id); err != nil {
			slog.Error("Delete failed", "error", err, "file_id", id)
			writeError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func listPending(manager *upload.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pending := manager.Pending()
		if pending == nil {
			pending = []*upload.PendingFile{}
		}
		writeJSON(w, http.StatusOK, pending)
	}
}

func uploadPending(manager *upload.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := manager.UploadPending(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, batchStatus(manager, result), result)
	}
}

func clearPending(manager *upload.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		manager.ClearPending()
		w.WriteHeader(http.StatusNoContent)
	}
}

func removePending(manager *upload.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !manager.RemovePending(r.PathValue("id")) {
			http.Error(w, "Pending file not found", http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// batchStatus is 201 when files were stored, 202 when they were only
// staged and 422 when every candidate was rejected.
func batchStatus(manager *upload.Manager, result *upload.BatchResult) int {
	if !slices.ContainsFunc(result.Outcomes, upload.Outcome.Accepted) {
		return http.StatusUnprocessableEntity
	}
	if len(result.Accepted()) == 0 && !manager.Options().AutoUpload {
		return http.StatusAccepted
	}
	return http.StatusCreated
}

type errorResponse struct {
	Reason  upload.Reason `json:"reason,omitempty"`
	Message string        `json:"message"`
}

func writeError(w http.ResponseWriter, err error) {
	var uploadErr *upload.Error
	if !errors.As(err, &uploadErr) {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Message: "Internal server error"})
		return
	}

	status := http.StatusInternalServerError
	switch {
	case uploadErr.Reason == upload.ReasonUnknownFile, errors.Is(err, files.ErrNotFound):
		status = http.StatusNotFound
	case uploadErr.Reason == upload.ReasonUploadInProgress:
		status = http.StatusConflict
	case uploadErr.Reason == upload.ReasonNoFilesToUpload:
		status = http.StatusBadRequest
	}
	writeJSON(w, status, errorResponse{Reason: uploadErr.Reason, Message: uploadErr.Message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// sniffFile detects the type of parts sent without a specific one.
func sniffFile(declared string, file multipart.File) string {
	declared = baseType(declared)
	if declared != "" && declared != octetStream {
		return declared
	}

	detected, err := mimetype.DetectReader(file)
	if _, seekErr := file.Seek(0, io.SeekStart); seekErr != nil {
		slog.Error("Failed to rewind form file", "error", seekErr)
		return declared
	}
	if err != nil {
		return declared
	}
	return baseType(detected.String())
}

func baseType(contentType string) string {
	base, _, _ := strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(base))
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return true
	}
	// multipart does not always wrap the reader error.
	return strings.Contains(err.Error(), "http: request body too large")
}

func limitBody(next http.Handler, maxSize int64) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if maxSize > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, maxSize)
		}
		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests with structured logging
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		slog.Info("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"query", r.URL.RawQuery,
			"status", wrapped.statusCode,
			"duration_ms", time.Since(start).Milliseconds(),
			"remote_addr", r.RemoteAddr,
			"user_agent", r.UserAgent(),
		)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
