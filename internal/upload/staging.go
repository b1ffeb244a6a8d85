package upload

import (
	"context"
	"slices"
	"time"

	"github.com/pavel-fokin/upload-manager/internal/files"
)

// PendingFile is a validated candidate waiting for UploadPending.
type PendingFile struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	StagedAt    time.Time `json:"staged_at"`

	data []byte
}

// Stage validates candidates and queues them without persisting. Staged
// files count towards MaxFileCount.
func (m *Manager) Stage(ctx context.Context, candidates []Candidate) *BatchResult {
	m.batchMu.Lock()
	defer m.batchMu.Unlock()

	result := &BatchResult{}
	for _, c := range candidates {
		if m.opts.MaxFileCount > 0 && m.Count()+len(m.Pending()) >= m.opts.MaxFileCount {
			result.reject(c.Name, newError(ReasonMaxFilesReached, nil, m.labels.ErrorMaxFilesReached, m.opts.MaxFileCount))
			break
		}

		isImage := files.IsImageType(c.ContentType)
		if rejection := m.validate(c, isImage); rejection != nil {
			result.reject(c.Name, rejection)
			continue
		}

		data, rejection := m.read(ctx, c, isImage)
		if rejection != nil {
			result.reject(c.Name, rejection)
			continue
		}

		pending := &PendingFile{
			ID:          files.NewID(),
			Name:        c.Name,
			ContentType: c.ContentType,
			Size:        int64(len(data)),
			StagedAt:    time.Now(),
			data:        data,
		}

		m.mu.Lock()
		m.pending = append(m.pending, pending)
		m.mu.Unlock()

		result.Outcomes = append(result.Outcomes, Outcome{Name: c.Name, Pending: pending})
		m.log.Info("File staged", "pending_id", pending.ID, "file_name", pending.Name, "size", pending.Size)
	}

	result.Files = m.List()
	return result
}

// UploadPending runs the staged files through Upload. Files staged while
// the upload runs stay queued.
func (m *Manager) UploadPending(ctx context.Context) (*BatchResult, error) {
	m.mu.Lock()
	if m.uploading {
		m.mu.Unlock()
		return nil, newError(ReasonUploadInProgress, nil, m.labels.ErrorUploadInProgress)
	}
	if len(m.pending) == 0 {
		m.mu.Unlock()
		return nil, newError(ReasonNoFilesToUpload, nil, m.labels.ErrorNoFilesToUpload)
	}
	m.uploading = true
	batch := slices.Clone(m.pending)
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.uploading = false
		m.mu.Unlock()
	}()

	candidates := make([]Candidate, 0, len(batch))
	for _, p := range batch {
		candidates = append(candidates, NewCandidate(p.Name, p.ContentType, p.data))
	}

	result := m.Upload(ctx, candidates)

	m.mu.Lock()
	m.pending = slices.DeleteFunc(m.pending, func(p *PendingFile) bool {
		return slices.Contains(batch, p)
	})
	m.mu.Unlock()

	return result, nil
}

// Pending returns a snapshot of the staged files.
func (m *Manager) Pending() []*PendingFile {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.pending)
}

// RemovePending drops a staged file. It reports false for unknown ids.
func (m *Manager) RemovePending(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.pending)
	m.pending = slices.DeleteFunc(m.pending, func(p *PendingFile) bool { return p.ID == id })
	return len(m.pending) < n
}

// ClearPending drops all staged files.
func (m *Manager) ClearPending() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = nil
}
