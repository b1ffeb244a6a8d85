package upload

import (
	"bytes"
	"io"
	"time"
)

// Candidate is a file submitted for upload but not yet validated.
type Candidate struct {
	Name        string
	ContentType string
	// Size is the declared byte length.
	Size    int64
	Content io.Reader
}

// NewCandidate wraps in-memory content as a candidate
func NewCandidate(name, contentType string, data []byte) Candidate {
	return Candidate{
		Name:        name,
		ContentType: contentType,
		Size:        int64(len(data)),
		Content:     bytes.NewReader(data),
	}
}

// ClipboardCandidate wraps pasted image bytes. The name is derived from the
// paste time and the type defaults to image/png.
func ClipboardCandidate(data []byte, contentType string, now time.Time) Candidate {
	if contentType == "" {
		contentType = "image/png"
	}
	name := "clipboard-image-" + now.Format("20060102-150405") + ".png"
	return NewCandidate(name, contentType, data)
}
