package client

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngBytes = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0}

func imageServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.png" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(pngBytes)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestDownloadImage(t *testing.T) {
	server := imageServer(t)

	var buf bytes.Buffer
	n, err := DownloadImage(context.Background(), server.Client(), server.URL+"/pic.png", &buf, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(len(pngBytes)), n)
	assert.Equal(t, pngBytes, buf.Bytes())
}

func TestDownloadImage_WithProgress(t *testing.T) {
	server := imageServer(t)

	var buf, progress bytes.Buffer
	_, err := DownloadImage(context.Background(), server.Client(), server.URL+"/pic.png", &buf, &progress)
	require.NoError(t, err)
	assert.Equal(t, pngBytes, buf.Bytes())
}

func TestDownloadImage_NotFound(t *testing.T) {
	server := imageServer(t)

	var buf bytes.Buffer
	_, err := DownloadImage(context.Background(), server.Client(), server.URL+"/missing.png", &buf, nil)
	assert.ErrorIs(t, err, ErrTransport)
	assert.Zero(t, buf.Len())
}

// streamingServer sends size bytes in flushed chunks, so no Content-Length is set.
func streamingServer(t *testing.T, size int64) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		chunk := make([]byte, 64<<10)
		for sent := int64(0); sent < size; {
			n := min(int64(len(chunk)), size-sent)
			if _, err := w.Write(chunk[:n]); err != nil {
				return
			}
			w.(http.Flusher).Flush()
			sent += n
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestDownloadImage_ChunkedSizeLimit(t *testing.T) {
	t.Run("exactly at the limit", func(t *testing.T) {
		server := streamingServer(t, maxImageSize)
		n, err := DownloadImage(context.Background(), server.Client(), server.URL+"/big.jpg", io.Discard, nil)
		require.NoError(t, err)
		assert.Equal(t, int64(maxImageSize), n)
	})

	t.Run("over the limit", func(t *testing.T) {
		server := streamingServer(t, maxImageSize+1024)
		_, err := DownloadImage(context.Background(), server.Client(), server.URL+"/big.jpg", io.Discard, nil)
		assert.ErrorIs(t, err, ErrMalformedResponse)
	})

	t.Run("over the limit into a directory", func(t *testing.T) {
		server := streamingServer(t, maxImageSize+1024)
		dir := t.TempDir()
		_, err := DownloadImageToDir(context.Background(), server.Client(), server.URL+"/big.jpg", "huge", "jpg", dir, nil)
		assert.ErrorIs(t, err, ErrMalformedResponse)
		_, statErr := os.Stat(filepath.Join(dir, "huge.jpg"))
		assert.True(t, os.IsNotExist(statErr), "a truncated image is not kept")
	})
}

func TestDownloadImageToDir(t *testing.T) {
	server := imageServer(t)
	dir := filepath.Join(t.TempDir(), "nested")

	path, err := DownloadImageToDir(context.Background(), server.Client(), server.URL+"/pic.png", "Sleepy Puppy!", "png", dir, nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "sleepy-puppy.png"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, pngBytes, data)

	_, err = DownloadImageToDir(context.Background(), server.Client(), server.URL+"/missing.png", "gone", "png", dir, nil)
	assert.Error(t, err)
	_, statErr := os.Stat(filepath.Join(dir, "gone.png"))
	assert.True(t, os.IsNotExist(statErr), "failed downloads leave no partial file")
}

func TestDownloadImageToDir_PathIsFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	_, err := DownloadImageToDir(context.Background(), nil, "http://127.0.0.1:1/x.png", "x", "png", file, nil)
	assert.ErrorContains(t, err, "not a directory")
}

func TestFileName(t *testing.T) {
	tests := []struct {
		title, mediaType, want string
	}{
		{"Sleepy Puppy", "jpg", "sleepy-puppy.jpg"},
		{"", "png", "cheer.png"},
		{"!!!", "", "cheer"},
		{"My cat (age 3): a story", "GIF", "my-cat-age-3-a-story.gif"},
		{"../../etc/passwd", "", "etcpasswd"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FileName(tt.title, tt.mediaType), tt.title)
	}
}
