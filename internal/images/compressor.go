// Package images re-encodes images to fit a byte budget and renders previews.
package images

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"math"

	"github.com/disintegration/imaging"
	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"

	_ "golang.org/x/image/webp"
)

// OutputMimeType is the type of every compressed image.
const OutputMimeType = "image/jpeg"

// ErrInvalidOptions is returned when compression options cannot be applied.
var ErrInvalidOptions = errors.New("invalid compression options")

// DecodeError is returned when the source bytes are not a decodable image.
type DecodeError struct {
	MimeHint string
	Detected string
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("cannot decode %s as image (detected %s): %v", e.MimeHint, e.Detected, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Options control a single compression run.
type Options struct {
	// MaxBytes is the budget the encoded image must not exceed.
	MaxBytes int64
	// QualityLevels are tried in the given order, each in (0,1].
	QualityLevels []float64
	// MaxDimension bounds the larger side of the output image.
	MaxDimension int
}

func (o Options) validate() error {
	if o.MaxBytes <= 0 {
		return fmt.Errorf("%w: budget must be positive", ErrInvalidOptions)
	}
	if len(o.QualityLevels) == 0 {
		return fmt.Errorf("%w: no quality levels", ErrInvalidOptions)
	}
	for _, q := range o.QualityLevels {
		if q <= 0 || q > 1 || math.IsNaN(q) {
			return fmt.Errorf("%w: quality %v outside (0,1]", ErrInvalidOptions, q)
		}
	}
	if o.MaxDimension <= 0 {
		return fmt.Errorf("%w: max dimension must be positive", ErrInvalidOptions)
	}
	return nil
}

// Result is the outcome of a compression run.
type Result struct {
	Success        bool
	Data           []byte
	OriginalSize   int64
	CompressedSize int64
	Quality        float64
	Width          int
	Height         int
	Attempts       int
	Message        string
}

// Compressor re-encodes images as JPEG until they fit a byte budget.
type Compressor struct {
	log *slog.Logger
}

// NewCompressor creates a compressor. A nil logger uses slog.Default().
func NewCompressor(logger *slog.Logger) *Compressor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Compressor{log: logger}
}

// Compress decodes src, downscales it to opts.MaxDimension and tries each
// quality level in order. The result is successful only when an attempt
// fits opts.MaxBytes; a miss is reported through Result, not as an error.
func (c *Compressor) Compress(ctx context.Context, src []byte, mimeHint string, opts Options) (*Result, error) {
	result := &Result{OriginalSize: int64(len(src))}

	if err := opts.validate(); err != nil {
		result.Message = err.Error()
		return result, err
	}

	img, err := imaging.Decode(bytes.NewReader(src), imaging.AutoOrientation(true))
	if err != nil {
		derr := &DecodeError{MimeHint: mimeHint, Detected: mimetype.Detect(src).String(), Err: err}
		result.Message = derr.Error()
		return result, derr
	}

	bounds := img.Bounds()
	width, height := fitDimensions(bounds.Dx(), bounds.Dy(), opts.MaxDimension)
	if width != bounds.Dx() || height != bounds.Dy() {
		c.log.Debug("Resizing image", "from_width", bounds.Dx(), "from_height", bounds.Dy(), "width", width, "height", height)
		img = imaging.Resize(img, width, height, imaging.Lanczos)
	}
	flat := flatten(img, width, height)
	result.Width, result.Height = width, height

	for _, quality := range opts.QualityLevels {
		if err := ctx.Err(); err != nil {
			result.Message = err.Error()
			return result, err
		}

		var buf bytes.Buffer
		if err := imaging.Encode(&buf, flat, imaging.JPEG, imaging.JPEGQuality(jpegQuality(quality))); err != nil {
			result.Message = err.Error()
			return result, fmt.Errorf("failed to encode image: %w", err)
		}
		size := int64(buf.Len())
		result.Attempts++
		c.log.Debug("Compression attempt", "quality", quality, "size", size, "budget", opts.MaxBytes)

		if result.CompressedSize == 0 || size < result.CompressedSize {
			result.CompressedSize = size
			result.Quality = quality
		}
		if size <= opts.MaxBytes {
			result.Success = true
			result.Data = buf.Bytes()
			result.CompressedSize = size
			result.Quality = quality
			result.Message = ""
			return result, nil
		}
	}

	result.Message = fmt.Sprintf("Could not compress image to %s (smallest attempt %s at quality %.2f).",
		humanize.IBytes(uint64(opts.MaxBytes)), humanize.IBytes(uint64(result.CompressedSize)), result.Quality)
	return result, nil
}

// fitDimensions scales width and height so that the larger one equals limit,
// keeping the aspect ratio. Dimensions within bounds are returned unchanged.
func fitDimensions(width, height, limit int) (int, int) {
	if width <= limit && height <= limit {
		return width, height
	}
	if width > height {
		height = int(math.Round(float64(height) * float64(limit) / float64(width)))
		width = limit
	} else {
		width = int(math.Round(float64(width) * float64(limit) / float64(height)))
		height = limit
	}
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}
	return width, height
}

// flatten draws img over an opaque white canvas since JPEG has no alpha.
func flatten(img image.Image, width, height int) *image.NRGBA {
	canvas := imaging.New(width, height, color.White)
	return imaging.Overlay(canvas, img, image.Pt(0, 0), 1.0)
}

func jpegQuality(q float64) int {
	v := int(math.Round(q * 100))
	if v < 1 {
		return 1
	}
	if v > 100 {
		return 100
	}
	return v
}
