// Package upload validates, compresses and persists batches of files and
// keeps the collection of accepted files.
package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/pavel-fokin/upload-manager/internal/files"
	"github.com/pavel-fokin/upload-manager/internal/images"
)

// Compressor fits an image into a byte budget.
type Compressor interface {
	Compress(ctx context.Context, src []byte, mimeHint string, opts images.Options) (*images.Result, error)
}

// Catalog persists the descriptors of accepted files.
type Catalog interface {
	Create(ctx context.Context, file *files.File) error
	List(ctx context.Context) ([]*files.File, error)
	Delete(ctx context.Context, id string) error
}

// Thumbnailer renders a preview of image content.
type Thumbnailer func(src []byte, size int) (string, error)

// Listeners are notified about collection changes. Nil fields are skipped.
type Listeners struct {
	OnUploaded   func(file *files.File)
	OnDeleted    func(file *files.File)
	OnDownloaded func(file *files.File)
	OnChanged    func(collection []*files.File)
}

// Outcome is the result of processing one candidate.
type Outcome struct {
	Name    string       `json:"name"`
	File    *files.File  `json:"file,omitempty"`
	Pending *PendingFile `json:"pending,omitempty"`
	Reason  Reason       `json:"reason,omitempty"`
	Message string       `json:"message,omitempty"`
}

// Accepted reports whether the candidate was accepted or staged.
func (o Outcome) Accepted() bool {
	return o.Reason == ""
}

// BatchResult is reported once per batch.
type BatchResult struct {
	Outcomes []Outcome    `json:"outcomes"`
	Messages []string     `json:"messages"`
	Files    []*files.File `json:"files"`
}

// Accepted returns the descriptors accepted in this batch.
func (b *BatchResult) Accepted() []*files.File {
	var accepted []*files.File
	for _, o := range b.Outcomes {
		if o.File != nil {
			accepted = append(accepted, o.File)
		}
	}
	return accepted
}

// Rejected returns the rejected outcomes of this batch.
func (b *BatchResult) Rejected() []Outcome {
	var rejected []Outcome
	for _, o := range b.Outcomes {
		if !o.Accepted() {
			rejected = append(rejected, o)
		}
	}
	return rejected
}

func (b *BatchResult) reject(name string, err *Error) {
	b.Outcomes = append(b.Outcomes, Outcome{Name: name, Reason: err.Reason, Message: err.Message})
	b.Messages = append(b.Messages, err.Message)
}

// Manager runs the upload pipeline and owns the file collection.
type Manager struct {
	opts       Options
	labels     Labels
	storage    files.Storage
	compressor Compressor
	catalog    Catalog
	thumbnail  Thumbnailer
	listeners  Listeners
	log        *slog.Logger

	// batchMu serializes batches and deletions so count checks see a
	// stable collection.
	batchMu sync.Mutex

	mu        sync.RWMutex
	files     []*files.File
	pending   []*PendingFile
	uploading bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithStorage persists accepted files through s. Without a storage, files
// stay resident in their descriptors.
func WithStorage(s files.Storage) Option {
	return func(m *Manager) { m.storage = s }
}

// WithCompressor replaces the default image compressor.
func WithCompressor(c Compressor) Option {
	return func(m *Manager) { m.compressor = c }
}

// WithCatalog records accepted descriptors in c.
func WithCatalog(c Catalog) Option {
	return func(m *Manager) { m.catalog = c }
}

// WithThumbnailer replaces the preview renderer. Nil disables previews.
func WithThumbnailer(t Thumbnailer) Option {
	return func(m *Manager) { m.thumbnail = t }
}

// WithLabels replaces the message templates.
func WithLabels(l Labels) Option {
	return func(m *Manager) { m.labels = l }
}

// WithListeners registers collection listeners.
func WithListeners(l Listeners) Option {
	return func(m *Manager) { m.listeners = l }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// NewManager creates a manager with an empty collection
func NewManager(opts Options, options ...Option) *Manager {
	m := &Manager{
		opts:      opts.withDefaults(),
		labels:    EnglishLabels(),
		thumbnail: images.Thumbnail,
		log:       slog.Default(),
	}
	for _, option := range options {
		option(m)
	}
	if m.compressor == nil {
		m.compressor = images.NewCompressor(m.log)
	}
	m.log = m.log.With("component", "upload-manager")
	return m
}

// Options returns the effective configuration.
func (m *Manager) Options() Options {
	return m.opts
}

// Load replaces the collection with the descriptors recorded in the catalog.
func (m *Manager) Load(ctx context.Context) error {
	if m.catalog == nil {
		return nil
	}

	list, err := m.catalog.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to load file catalog: %w", err)
	}

	loaded := list[:0]
	for _, file := range list {
		// Resident content is not recorded, so only persisted files can be restored.
		if !file.Persisted() {
			m.log.Warn("Skipping catalog entry without storage token", "file_id", file.ID)
			continue
		}
		loaded = append(loaded, file)
	}

	m.mu.Lock()
	m.files = loaded
	m.mu.Unlock()

	m.log.Info("Loaded file catalog", "count", len(loaded))
	return nil
}

// List returns a snapshot of the collection in upload order.
func (m *Manager) List() []*files.File {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.files)
}

// Count returns the number of accepted files.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.files)
}

// Get returns the accepted file with the given id.
func (m *Manager) Get(id string) (*files.File, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i := slices.IndexFunc(m.files, func(f *files.File) bool { return f.ID == id })
	if i < 0 {
		return nil, false
	}
	return m.files[i], true
}

// Submit uploads candidates right away when AutoUpload is set and stages
// them otherwise.
func (m *Manager) Submit(ctx context.Context, candidates []Candidate) *BatchResult {
	if m.opts.AutoUpload {
		return m.Upload(ctx, candidates)
	}
	return m.Stage(ctx, candidates)
}

// Upload processes candidates in order. Reaching MaxFileCount stops the
// batch; any other rejection only affects its own candidate.
func (m *Manager) Upload(ctx context.Context, candidates []Candidate) *BatchResult {
	m.batchMu.Lock()
	defer m.batchMu.Unlock()

	result := &BatchResult{}
	for _, c := range candidates {
		if m.opts.MaxFileCount > 0 && m.Count() >= m.opts.MaxFileCount {
			result.reject(c.Name, newError(ReasonMaxFilesReached, nil, m.labels.ErrorMaxFilesReached, m.opts.MaxFileCount))
			break
		}

		file, note, rejection := m.process(ctx, c)
		if rejection != nil {
			m.log.Warn("File rejected", "file_name", c.Name, "reason", rejection.Reason, "error", rejection.Err)
			result.reject(c.Name, rejection)
			continue
		}

		m.mu.Lock()
		m.files = append(m.files, file)
		m.mu.Unlock()

		if note != "" {
			result.Messages = append(result.Messages, note)
		}
		result.Outcomes = append(result.Outcomes, Outcome{Name: c.Name, File: file, Message: note})
		m.log.Info("File accepted", "file_id", file.ID, "file_name", file.Name, "size", file.Size)

		if m.listeners.OnUploaded != nil {
			m.listeners.OnUploaded(file)
		}
	}

	result.Files = m.List()
	if m.listeners.OnChanged != nil {
		m.listeners.OnChanged(result.Files)
	}
	return result
}

func (m *Manager) process(ctx context.Context, c Candidate) (*files.File, string, *Error) {
	isImage := files.IsImageType(c.ContentType)

	if rejection := m.validate(c, isImage); rejection != nil {
		return nil, "", rejection
	}

	data, rejection := m.read(ctx, c, isImage)
	if rejection != nil {
		return nil, "", rejection
	}

	mimeType := c.ContentType
	var note string

	// Only compressible images may be read past MaxFileSize.
	if int64(len(data)) > m.opts.MaxFileSize {
		result, err := m.compressor.Compress(ctx, data, c.ContentType, m.opts.compression())
		if err != nil {
			return nil, "", newError(ReasonCompressionFailed, err, m.labels.ErrorDuringCompression, c.Name, err.Error())
		}
		if !result.Success {
			return nil, "", newError(ReasonCompressionFailed, nil, m.labels.ImageCompressionFailed, c.Name, result.Message)
		}

		m.log.Info("Image compressed", "file_name", c.Name,
			"original_size", result.OriginalSize, "compressed_size", result.CompressedSize, "quality", result.Quality)
		note = fmt.Sprintf(m.labels.ImageCompressed, c.Name,
			files.FormatBytes(result.OriginalSize), files.FormatBytes(result.CompressedSize))
		data = result.Data
		mimeType = images.OutputMimeType
	}

	file, err := m.persist(ctx, c.Name, mimeType, data)
	if err != nil {
		return nil, "", newError(ReasonStorageError, err, m.labels.ErrorUploadingFile, c.Name, err.Error())
	}

	m.attachThumbnail(ctx, file, data)

	if m.catalog != nil {
		if err := m.catalog.Create(ctx, file); err != nil {
			if m.storage != nil && file.Persisted() {
				m.storage.Delete(context.WithoutCancel(ctx), file)
			}
			return nil, "", newError(ReasonStorageError, err, m.labels.ErrorUploadingFile, c.Name, err.Error())
		}
	}

	return file, note, nil
}

// validate applies the type and declared size checks.
func (m *Manager) validate(c Candidate, isImage bool) *Error {
	if !m.opts.typeAllowed(c.ContentType) {
		return newError(ReasonTypeNotAllowed, nil, m.labels.ErrorFileTypeNotAllowed, c.ContentType, c.Name)
	}
	if c.Size > m.opts.MaxFileSize && !m.opts.compressible(isImage, c.Size) {
		return m.tooLarge(c.Name)
	}
	return nil
}

// read buffers the candidate content, enforcing the real size rather than
// the declared one.
func (m *Manager) read(ctx context.Context, c Candidate, isImage bool) ([]byte, *Error) {
	if c.Content == nil {
		return nil, newError(ReasonReadFailed, nil, m.labels.ErrorReadingFile, c.Name, "no content")
	}

	data, err := files.ReadAllLimit(files.ContextReader(ctx, c.Content), m.opts.readLimit(isImage))
	if err != nil {
		if errors.Is(err, files.ErrSizeExceeded) {
			return nil, m.tooLarge(c.Name)
		}
		return nil, newError(ReasonReadFailed, err, m.labels.ErrorReadingFile, c.Name, err.Error())
	}
	return data, nil
}

func (m *Manager) tooLarge(name string) *Error {
	return newError(ReasonTooLarge, files.ErrSizeExceeded, m.labels.ErrorFileTooLarge, name, files.FormatBytes(m.opts.MaxFileSize))
}

func (m *Manager) persist(ctx context.Context, name, mimeType string, data []byte) (*files.File, error) {
	if m.storage == nil {
		return &files.File{
			ID:        files.NewID(),
			Name:      name,
			MimeType:  mimeType,
			Size:      int64(len(data)),
			CreatedAt: time.Now(),
			Data:      data,
		}, nil
	}
	return m.storage.Save(ctx, name, mimeType, bytes.NewReader(data))
}

// attachThumbnail renders a preview for image files. Failures are logged
// and otherwise ignored.
func (m *Manager) attachThumbnail(ctx context.Context, file *files.File, data []byte) {
	if !file.IsImage() || m.thumbnail == nil || m.opts.ThumbnailSize <= 0 {
		return
	}

	src := data
	if m.storage != nil && file.Persisted() {
		stored, err := m.storage.ReadBytes(ctx, file)
		if err != nil {
			m.log.Warn("Failed to load thumbnail source", "file_name", file.Name, "error", err)
			return
		}
		src = stored
	}

	thumbnail, err := m.thumbnail(src, m.opts.ThumbnailSize)
	if err != nil {
		m.log.Warn("Failed to generate thumbnail", "file_name", file.Name, "error", err)
		return
	}
	file.Thumbnail = thumbnail
}

// Delete removes a file from storage and from the collection. The file
// stays in the collection when the storage reports a failed deletion.
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.batchMu.Lock()
	defer m.batchMu.Unlock()

	file, ok := m.Get(id)
	if !ok {
		return newError(ReasonUnknownFile, files.ErrNotFound, m.labels.ErrorFileNotFound, id)
	}

	if m.storage != nil {
		// Exists cannot tell a missing object from an unreachable backend.
		if m.storage.Exists(ctx, file) {
			if !m.storage.Delete(ctx, file) {
				m.log.Error("Delete failed", "file_id", file.ID, "file_name", file.Name)
				return newError(ReasonDeleteFailed, nil, m.labels.ErrorDeletingFile, file.Name)
			}
		} else {
			m.log.Warn("Stored content not found, removing descriptor only",
				"file_id", file.ID, "file_name", file.Name, "token", file.StorageToken)
		}
	}

	if m.catalog != nil {
		if err := m.catalog.Delete(ctx, file.ID); err != nil && !errors.Is(err, files.ErrNotFound) {
			m.log.Warn("Failed to delete catalog entry", "file_id", file.ID, "error", err)
		}
	}

	m.mu.Lock()
	m.files = slices.DeleteFunc(m.files, func(f *files.File) bool { return f.ID == id })
	collection := slices.Clone(m.files)
	m.mu.Unlock()

	m.log.Info("File deleted", "file_id", file.ID, "file_name", file.Name)

	if m.listeners.OnDeleted != nil {
		m.listeners.OnDeleted(file)
	}
	if m.listeners.OnChanged != nil {
		m.listeners.OnChanged(collection)
	}
	return nil
}

// Download returns the descriptor and content of an accepted file. The
// caller must close the returned reader.
func (m *Manager) Download(ctx context.Context, id string) (*files.File, io.ReadCloser, error) {
	file, ok := m.Get(id)
	if !ok {
		return nil, nil, newError(ReasonUnknownFile, files.ErrNotFound, m.labels.ErrorFileNotFound, id)
	}

	var content io.ReadCloser
	switch {
	case m.storage != nil && file.Persisted():
		stream, err := m.storage.ReadStream(ctx, file)
		if err != nil {
			return nil, nil, newError(ReasonDownloadFailed, err, m.labels.ErrorDownloadingFile, file.Name, err.Error())
		}
		content = stream
	case file.Data != nil:
		content = io.NopCloser(bytes.NewReader(file.Data))
	default:
		err := files.NotFound(file.Name)
		return nil, nil, newError(ReasonDownloadFailed, err, m.labels.ErrorDownloadingFile, file.Name, err.Error())
	}

	if m.listeners.OnDownloaded != nil {
		m.listeners.OnDownloaded(file)
	}
	return file, content, nil
}
