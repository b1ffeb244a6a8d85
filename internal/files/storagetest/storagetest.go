// Package storagetest checks the behaviour every files.Storage shares.
package storagetest

import (
	"bytes"
	"context"
	"crypto/rand"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavel-fokin/upload-manager/internal/files"
)

// Run exercises a storage produced by newStorage. maxSize must be the limit
// the storage was configured with.
func Run(t *testing.T, maxSize int64, newStorage func(t *testing.T) files.Storage) {
	t.Run("round trip", func(t *testing.T) {
		s := newStorage(t)
		ctx := context.Background()

		for _, size := range []int64{1, 500, maxSize} {
			content := randomBytes(t, size)

			file, err := s.Save(ctx, "report.bin", "application/octet-stream", bytes.NewReader(content))
			require.NoError(t, err)
			assert.Equal(t, size, file.Size)
			assert.NotEmpty(t, file.ID)
			assert.NotEmpty(t, file.StorageToken)
			assert.Equal(t, "report.bin", file.Name)
			assert.Equal(t, "application/octet-stream", file.MimeType)

			data, err := s.ReadBytes(ctx, file)
			require.NoError(t, err)
			assert.Equal(t, content, data)

			stream, err := s.ReadStream(ctx, file)
			require.NoError(t, err)
			streamed, err := io.ReadAll(stream)
			require.NoError(t, stream.Close())
			require.NoError(t, err)
			assert.Equal(t, content, streamed)

			assert.True(t, s.Exists(ctx, file))
		}
	})

	t.Run("tokens are unique", func(t *testing.T) {
		s := newStorage(t)
		ctx := context.Background()

		a, err := s.Save(ctx, "same.txt", "text/plain", strings.NewReader("a"))
		require.NoError(t, err)
		b, err := s.Save(ctx, "same.txt", "text/plain", strings.NewReader("b"))
		require.NoError(t, err)

		assert.NotEqual(t, a.StorageToken, b.StorageToken)
		assert.NotEqual(t, a.ID, b.ID)
	})

	t.Run("size exceeded", func(t *testing.T) {
		s := newStorage(t)
		ctx := context.Background()

		_, err := s.Save(ctx, "big.bin", "application/octet-stream", bytes.NewReader(randomBytes(t, maxSize+1)))
		assert.ErrorIs(t, err, files.ErrSizeExceeded)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		s := newStorage(t)
		ctx := context.Background()

		file, err := s.Save(ctx, "gone.txt", "text/plain", strings.NewReader("bye"))
		require.NoError(t, err)

		assert.True(t, s.Delete(ctx, file))
		assert.False(t, s.Delete(ctx, file))
		assert.False(t, s.Exists(ctx, file))

		_, err = s.ReadBytes(ctx, file)
		assert.ErrorIs(t, err, files.ErrNotFound)
		_, err = s.ReadStream(ctx, file)
		assert.ErrorIs(t, err, files.ErrNotFound)
	})

	t.Run("foreign tokens", func(t *testing.T) {
		s := newStorage(t)
		ctx := context.Background()

		tokens := map[string]string{
			"empty":     "",
			"malformed": "not a token",
			"traversal": "../../etc/passwd",
			"oversized": strings.Repeat("x", 4096),
			"other":     files.NewToken("never-saved.txt"),
			"bare uuid": files.NewID(),
		}
		for name, token := range tokens {
			t.Run(name, func(t *testing.T) {
				file := &files.File{Name: "probe", StorageToken: token}

				assert.False(t, s.Exists(ctx, file))
				assert.False(t, s.Delete(ctx, file))
				_, err := s.ReadBytes(ctx, file)
				assert.ErrorIs(t, err, files.ErrNotFound)
			})
		}

		assert.False(t, s.Exists(ctx, nil))
	})

	t.Run("cancelled save", func(t *testing.T) {
		s := newStorage(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		file, err := s.Save(ctx, "late.txt", "text/plain", strings.NewReader("late"))
		assert.ErrorIs(t, err, context.Canceled)
		assert.Nil(t, file)
	})
}

func randomBytes(t *testing.T, n int64) []byte {
	t.Helper()
	b := make([]byte, n)
	_, err := rand.Read(b)
	require.NoError(t, err)
	return b
}
