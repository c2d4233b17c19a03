package provider

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTransfer(maxFileSize int64) *HTTPTransfer {
	return NewHTTPTransfer(time.Minute, maxFileSize, discardLogger())
}

func serveBytes(t *testing.T, body []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPTransfer_DownloadsAndReportsProgress(t *testing.T) {
	body := make([]byte, 64*1024)
	srv := serveBytes(t, body)
	dest := filepath.Join(t.TempDir(), "track.mp3")

	var last float64
	err := newTransfer(1<<20).Download(context.Background(), Candidate{
		Filename:    "track.mp3",
		SizeBytes:   int64(len(body)),
		DownloadURL: srv.URL,
	}, dest, func(fraction float64) { last = fraction })

	require.NoError(t, err)
	assert.Equal(t, float64(1), last)

	info, err := os.Stat(dest)
	require.NoError(t, err)
	assert.Equal(t, int64(len(body)), info.Size())
}

func TestHTTPTransfer_SizeMismatchFailsVerification(t *testing.T) {
	srv := serveBytes(t, []byte("short"))
	dest := filepath.Join(t.TempDir(), "track.mp3")

	err := newTransfer(1<<20).Download(context.Background(), Candidate{
		Filename:    "track.mp3",
		SizeBytes:   9999,
		DownloadURL: srv.URL,
	}, dest, nil)

	require.ErrorIs(t, err, ErrVerification)
	_, statErr := os.Stat(dest)
	assert.True(t, os.IsNotExist(statErr), "partial file must be removed")
}

func TestHTTPTransfer_SizeLimitEnforced(t *testing.T) {
	srv := serveBytes(t, make([]byte, 2048))
	dest := filepath.Join(t.TempDir(), "track.mp3")

	err := newTransfer(1024).Download(context.Background(), Candidate{
		Filename:    "track.mp3",
		SizeBytes:   2048,
		DownloadURL: srv.URL,
	}, dest, nil)

	require.ErrorIs(t, err, ErrVerification)
	_, statErr := os.Stat(dest)
	assert.True(t, os.IsNotExist(statErr))
}

func TestHTTPTransfer_BadStatusIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	err := newTransfer(1<<20).Download(context.Background(), Candidate{
		Filename:    "track.mp3",
		DownloadURL: srv.URL,
	}, filepath.Join(t.TempDir(), "track.mp3"), nil)

	assert.ErrorIs(t, err, ErrNetwork)
}

func TestHTTPTransfer_MissingEndpointIsNetworkError(t *testing.T) {
	err := newTransfer(1<<20).Download(context.Background(), Candidate{
		Filename: "track.mp3",
	}, filepath.Join(t.TempDir(), "track.mp3"), nil)

	assert.ErrorIs(t, err, ErrNetwork)
}

func TestHTTPTransfer_CancellationSurfacesContextError(t *testing.T) {
	srv := serveBytes(t, []byte("audio"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := newTransfer(1<<20).Download(ctx, Candidate{
		Filename:    "track.mp3",
		DownloadURL: srv.URL,
	}, filepath.Join(t.TempDir(), "track.mp3"), nil)

	assert.ErrorIs(t, err, context.Canceled)
}
