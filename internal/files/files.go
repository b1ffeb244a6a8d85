package files

import (
	"encoding/base64"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

// File represents an accepted or pending file
type File struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	MimeType  string    `json:"mime_type"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
	Thumbnail string    `json:"thumbnail,omitempty"`

	// StorageToken is the backend key of a persisted file. Empty until the
	// file has been saved through a Storage.
	StorageToken string `json:"-"`

	// Data holds the content of a file that is kept resident instead of
	// being persisted.
	Data []byte `json:"-"`
}

// NewID returns a fresh descriptor identifier
func NewID() string {
	return uuid.NewString()
}

// Persisted reports whether the file was saved through a Storage
func (f *File) Persisted() bool {
	return f.StorageToken != ""
}

// IsImage reports whether the declared type is an image type
func (f *File) IsImage() bool {
	return IsImageType(f.MimeType)
}

// IsPdf reports whether the declared type is a PDF document
func (f *File) IsPdf() bool {
	return strings.EqualFold(f.MimeType, "application/pdf")
}

// FormattedSize returns the size in human readable form
func (f *File) FormattedSize() string {
	return FormatBytes(f.Size)
}

// PreviewURL returns the cached thumbnail, or a data URL of the resident
// image content when no thumbnail was generated.
func (f *File) PreviewURL() string {
	if f.Thumbnail != "" {
		return f.Thumbnail
	}
	if f.IsImage() && len(f.Data) > 0 {
		return DataURL(f.MimeType, f.Data)
	}
	return ""
}

// IsImageType reports whether mimeType is an image/* type
func IsImageType(mimeType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(mimeType)), "image/")
}

// DataURL encodes data as a base64 data URL
func DataURL(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// FormatBytes formats a byte count using binary units
func FormatBytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.IBytes(uint64(n))
}
