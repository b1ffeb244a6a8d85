package upload

import (
	"slices"
	"strings"

	"github.com/pavel-fokin/upload-manager/internal/images"
)

// Options configure the upload pipeline.
type Options struct {
	// MaxFileCount caps the collection size. Zero means unlimited.
	MaxFileCount int
	// MaxFileSize is the largest accepted file in bytes.
	MaxFileSize int64
	// AllowedTypes lists the accepted MIME types. Empty accepts all.
	AllowedTypes []string
	// AutoCompressImages re-encodes images larger than MaxFileSize.
	AutoCompressImages bool
	// QualityLevels are tried in order, highest quality first.
	QualityLevels []float64
	// MaxImageDimension bounds the larger side of compressed images.
	MaxImageDimension int
	// AutoUpload processes submitted files immediately instead of staging them.
	AutoUpload bool
	// ThumbnailSize is the preview box in pixels. Zero disables previews.
	ThumbnailSize int
	// SourceSizeFactor bounds how much of an oversized image is read for
	// compression, as a multiple of MaxFileSize.
	SourceSizeFactor int64
}

// DefaultOptions returns the default pipeline configuration
func DefaultOptions() Options {
	return Options{
		MaxFileCount:      10,
		MaxFileSize:       10 * 1024 * 1024,
		QualityLevels:     []float64{0.9, 0.8, 0.7, 0.6, 0.5},
		MaxImageDimension: 1920,
		AutoUpload:        true,
		ThumbnailSize:     160,
		SourceSizeFactor:  10,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxFileSize <= 0 {
		o.MaxFileSize = d.MaxFileSize
	}
	if len(o.QualityLevels) == 0 {
		o.QualityLevels = d.QualityLevels
	}
	if o.MaxImageDimension <= 0 {
		o.MaxImageDimension = d.MaxImageDimension
	}
	if o.SourceSizeFactor <= 0 {
		o.SourceSizeFactor = d.SourceSizeFactor
	}
	return o
}

func (o Options) typeAllowed(mimeType string) bool {
	if len(o.AllowedTypes) == 0 {
		return true
	}
	return slices.ContainsFunc(o.AllowedTypes, func(allowed string) bool {
		return strings.EqualFold(strings.TrimSpace(allowed), mimeType)
	})
}

// compressible reports whether an image of the given size would be
// compressed instead of rejected.
func (o Options) compressible(isImage bool, size int64) bool {
	return isImage && o.AutoCompressImages && size > o.MaxFileSize
}

// readLimit is the number of bytes read from a candidate.
func (o Options) readLimit(isImage bool) int64 {
	if isImage && o.AutoCompressImages {
		return o.MaxFileSize * o.SourceSizeFactor
	}
	return o.MaxFileSize
}

func (o Options) compression() images.Options {
	return images.Options{
		MaxBytes:      o.MaxFileSize,
		QualityLevels: o.QualityLevels,
		MaxDimension:  o.MaxImageDimension,
	}
}
