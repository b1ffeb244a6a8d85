package images

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noisePNG(t *testing.T, width, height int) []byte {
	t.Helper()

	rng := rand.New(rand.NewSource(42))
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(rng.Intn(256)), G: uint8(rng.Intn(256)), B: uint8(rng.Intn(256)), A: 255})
		}
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func defaultOptions(budget int64) Options {
	return Options{
		MaxBytes:      budget,
		QualityLevels: []float64{0.9, 0.8, 0.7, 0.6, 0.5},
		MaxDimension:  1920,
	}
}

func TestCompressFitsAtFirstLevel(t *testing.T) {
	src := noisePNG(t, 64, 64)
	c := NewCompressor(nil)

	result, err := c.Compress(context.Background(), src, "image/png", defaultOptions(10*1024*1024))
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 0.9, result.Quality)
	assert.Equal(t, 1, result.Attempts)
	assert.Equal(t, int64(len(src)), result.OriginalSize)
	assert.Equal(t, int64(len(result.Data)), result.CompressedSize)
	assert.Empty(t, result.Message)

	decoded, err := imaging.Decode(bytes.NewReader(result.Data))
	require.NoError(t, err)
	assert.Equal(t, 64, decoded.Bounds().Dx())
}

func TestCompressHonorsGivenOrder(t *testing.T) {
	src := noisePNG(t, 64, 64)
	c := NewCompressor(nil)

	opts := defaultOptions(10 * 1024 * 1024)
	opts.QualityLevels = []float64{0.3, 0.9}

	result, err := c.Compress(context.Background(), src, "image/png", opts)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 0.3, result.Quality)
	assert.Equal(t, 1, result.Attempts)
}

func TestCompressStopsAtFirstLevelThatFits(t *testing.T) {
	src := noisePNG(t, 128, 128)
	c := NewCompressor(nil)
	levels := []float64{0.95, 0.7, 0.4, 0.1}

	sizes := make([]int64, len(levels))
	for i, q := range levels {
		opts := defaultOptions(1 << 30)
		opts.QualityLevels = []float64{q}
		r, err := c.Compress(context.Background(), src, "image/png", opts)
		require.NoError(t, err)
		sizes[i] = r.CompressedSize
	}

	budget := sizes[2]
	expected := -1
	for i, size := range sizes {
		if size <= budget {
			expected = i
			break
		}
	}
	require.NotEqual(t, -1, expected)

	opts := defaultOptions(budget)
	opts.QualityLevels = levels
	result, err := c.Compress(context.Background(), src, "image/png", opts)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, levels[expected], result.Quality)
	assert.Equal(t, expected+1, result.Attempts)
	assert.LessOrEqual(t, result.CompressedSize, budget)
}

func TestCompressFailsWhenLastLevelStillOverBudget(t *testing.T) {
	src := noisePNG(t, 64, 64)
	c := NewCompressor(nil)

	result, err := c.Compress(context.Background(), src, "image/png", defaultOptions(10))
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Nil(t, result.Data)
	assert.Equal(t, 5, result.Attempts)
	assert.Greater(t, result.CompressedSize, int64(10))
	assert.True(t, strings.HasPrefix(result.Message, "Could not compress image"))
}

func TestCompressDownscales(t *testing.T) {
	src := noisePNG(t, 400, 200)
	c := NewCompressor(nil)

	opts := defaultOptions(10 * 1024 * 1024)
	opts.MaxDimension = 100
	result, err := c.Compress(context.Background(), src, "image/png", opts)
	require.NoError(t, err)

	assert.Equal(t, 100, result.Width)
	assert.Equal(t, 50, result.Height)

	decoded, err := imaging.Decode(bytes.NewReader(result.Data))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 100, 50), decoded.Bounds())
}

func TestCompressDecodeError(t *testing.T) {
	c := NewCompressor(nil)

	result, err := c.Compress(context.Background(), []byte("%PDF-1.4 definitely not an image"), "image/png", defaultOptions(1024))

	var derr *DecodeError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, "image/png", derr.MimeHint)
	assert.Equal(t, "application/pdf", derr.Detected)
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Message)
}

func TestCompressInvalidOptions(t *testing.T) {
	src := noisePNG(t, 8, 8)
	c := NewCompressor(nil)

	tests := []struct {
		name string
		opts Options
	}{
		{name: "no levels", opts: Options{MaxBytes: 10, MaxDimension: 10}},
		{name: "zero quality", opts: Options{MaxBytes: 10, MaxDimension: 10, QualityLevels: []float64{0}}},
		{name: "quality above one", opts: Options{MaxBytes: 10, MaxDimension: 10, QualityLevels: []float64{1.5}}},
		{name: "zero budget", opts: Options{MaxDimension: 10, QualityLevels: []float64{0.5}}},
		{name: "zero dimension", opts: Options{MaxBytes: 10, QualityLevels: []float64{0.5}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := c.Compress(context.Background(), src, "image/png", tt.opts)
			assert.ErrorIs(t, err, ErrInvalidOptions)
			assert.False(t, result.Success)
		})
	}
}

func TestCompressCancelled(t *testing.T) {
	src := noisePNG(t, 32, 32)
	c := NewCompressor(nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := c.Compress(ctx, src, "image/png", defaultOptions(1024*1024))
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, result.Success)
}

func TestFitDimensions(t *testing.T) {
	tests := []struct {
		name           string
		width, height  int
		limit          int
		expectedWidth  int
		expectedHeight int
	}{
		{name: "within bounds", width: 100, height: 50, limit: 200, expectedWidth: 100, expectedHeight: 50},
		{name: "landscape", width: 4000, height: 3000, limit: 1920, expectedWidth: 1920, expectedHeight: 1440},
		{name: "portrait", width: 1000, height: 3000, limit: 1500, expectedWidth: 500, expectedHeight: 1500},
		{name: "square", width: 3000, height: 3000, limit: 1000, expectedWidth: 1000, expectedHeight: 1000},
		{name: "rounding", width: 1001, height: 333, limit: 100, expectedWidth: 100, expectedHeight: 33},
		{name: "thin line", width: 10000, height: 1, limit: 100, expectedWidth: 100, expectedHeight: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := fitDimensions(tt.width, tt.height, tt.limit)
			assert.Equal(t, tt.expectedWidth, w)
			assert.Equal(t, tt.expectedHeight, h)
		})
	}
}

func TestFlattenRemovesTransparency(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	flat := flatten(img, 2, 2)

	assert.Equal(t, color.NRGBA{R: 255, G: 255, B: 255, A: 255}, flat.NRGBAAt(0, 0))
}

func TestThumbnail(t *testing.T) {
	src := noisePNG(t, 300, 150)

	url, err := Thumbnail(src, 64)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "data:image/jpeg;base64,"))

	_, err = Thumbnail([]byte("nope"), 64)
	assert.Error(t, err)

	_, err = Thumbnail(src, 0)
	assert.ErrorIs(t, err, ErrInvalidOptions)
}
