package images

import (
	"bytes"
	"fmt"

	"github.com/disintegration/imaging"

	"github.com/pavel-fokin/upload-manager/internal/files"
)

// Thumbnail renders src into a JPEG data URL that fits in a size×size box.
func Thumbnail(src []byte, size int) (string, error) {
	if size <= 0 {
		return "", fmt.Errorf("%w: thumbnail size must be positive", ErrInvalidOptions)
	}

	img, err := imaging.Decode(bytes.NewReader(src), imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("failed to decode image: %w", err)
	}

	thumb := imaging.Fit(img, size, size, imaging.Lanczos)
	bounds := thumb.Bounds()

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, flatten(thumb, bounds.Dx(), bounds.Dy()), imaging.JPEG, imaging.JPEGQuality(80)); err != nil {
		return "", fmt.Errorf("failed to encode thumbnail: %w", err)
	}

	return files.DataURL(OutputMimeType, buf.Bytes()), nil
}
