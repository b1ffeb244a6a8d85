package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavel-fokin/upload-manager/internal/files"
	"github.com/pavel-fokin/upload-manager/internal/upload"
)

func setupTestConfig(t *testing.T) *Config {
	dataDir := t.TempDir()

	return &Config{
		Addr:               ":0",
		Storage:            StorageLocal,
		DataDir:            filepath.Join(dataDir, "uploads"),
		DBPath:             filepath.Join(dataDir, "catalog.db"),
		MaxRequestSize:     1 << 20,
		MaxFileCount:       10,
		MaxFileSize:        1024,
		StorageMaxFileSize: 4096,
		AutoUpload:         true,
		ThumbnailSize:      160,
	}
}

func startServer(t *testing.T, cfg *Config) *httptest.Server {
	t.Helper()

	srv, err := New(context.Background(), cfg)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(func() {
		ts.Close()
		require.NoError(t, srv.Shutdown(context.Background()))
	})
	return ts
}

func TestIntegration(t *testing.T) {
	cfg := setupTestConfig(t)
	ts := startServer(t, cfg)

	// 1. Upload a file
	var fileID string
	t.Run("Upload", func(t *testing.T) {
		body, contentType := multipartBody(t, part{name: "test.txt", contentType: "text/plain", content: "test file content"})

		resp, err := http.Post(ts.URL+"/v1/files", contentType, body)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusCreated, resp.StatusCode)

		var result upload.BatchResult
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
		require.Len(t, result.Accepted(), 1)

		fileID = result.Accepted()[0].ID
		require.NotEmpty(t, fileID)
		assert.Equal(t, int64(len("test file content")), result.Accepted()[0].Size)
	})

	// 2. List files
	t.Run("List", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/v1/files")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var list []files.File
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
		require.Len(t, list, 1)
		assert.Equal(t, fileID, list[0].ID)
	})

	// 3. Download the file
	t.Run("Download", func(t *testing.T) {
		require.NotEmpty(t, fileID, "fileID should not be empty")

		resp, err := http.Get(ts.URL + "/v1/files/" + fileID)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "text/plain", resp.Header.Get("Content-Type"))
		assert.Equal(t, `attachment; filename=test.txt`, resp.Header.Get("Content-Disposition"))

		respBody, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, "test file content", string(respBody))
	})

	// 4. Upload a file over the size limit
	t.Run("Upload too large", func(t *testing.T) {
		body, contentType := multipartBody(t, part{name: "big.txt", contentType: "text/plain", content: string(make([]byte, 2048))})

		resp, err := http.Post(ts.URL+"/v1/files", contentType, body)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	})

	// 5. Delete the file
	t.Run("Delete", func(t *testing.T) {
		require.NotEmpty(t, fileID, "fileID should not be empty")
		req, err := http.NewRequest("DELETE", ts.URL+"/v1/files/"+fileID, nil)
		require.NoError(t, err)

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	})

	// 6. Try to download the deleted file
	t.Run("Download after delete", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/v1/files/" + fileID)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestIntegrationCollectionSurvivesRestart(t *testing.T) {
	cfg := setupTestConfig(t)

	srv, err := New(context.Background(), cfg)
	require.NoError(t, err)
	first := httptest.NewServer(srv.Handler)

	body, contentType := multipartBody(t, part{name: "keep.txt", contentType: "text/plain", content: "kept"})
	resp, err := http.Post(first.URL+"/v1/files", contentType, body)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	first.Close()
	require.NoError(t, srv.Shutdown(context.Background()))

	second := startServer(t, cfg)

	resp, err = http.Get(second.URL + "/v1/files")
	require.NoError(t, err)
	defer resp.Body.Close()

	var list []files.File
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list, 1)
	assert.Equal(t, "keep.txt", list[0].Name)

	download, err := http.Get(second.URL + "/v1/files/" + list[0].ID)
	require.NoError(t, err)
	defer download.Body.Close()
	data, err := io.ReadAll(download.Body)
	require.NoError(t, err)
	assert.Equal(t, "kept", string(data))
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(cfg *Config)
	}{
		{
			name:   "unknown storage",
			mutate: func(cfg *Config) { cfg.Storage = "floppy" },
		},
		{
			name:   "catalog without storage",
			mutate: func(cfg *Config) { cfg.Storage = StorageNone },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := setupTestConfig(t)
			tt.mutate(cfg)

			_, err := New(context.Background(), cfg)
			assert.Error(t, err)
		})
	}
}

func TestNewWithoutStorageKeepsFilesResident(t *testing.T) {
	cfg := setupTestConfig(t)
	cfg.Storage = StorageNone
	cfg.DBPath = ""
	ts := startServer(t, cfg)

	body, contentType := multipartBody(t, part{name: "a.txt", contentType: "text/plain", content: "resident"})
	resp, err := http.Post(ts.URL+"/v1/files", contentType, body)
	require.NoError(t, err)
	defer resp.Body.Close()

	var result upload.BatchResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	require.Len(t, result.Accepted(), 1)

	download, err := http.Get(ts.URL + "/v1/files/" + result.Accepted()[0].ID)
	require.NoError(t, err)
	defer download.Body.Close()
	data, err := io.ReadAll(download.Body)
	require.NoError(t, err)
	assert.Equal(t, "resident", string(data))
}
