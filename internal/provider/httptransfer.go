package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"syscall"
	"time"
)

// Transfer failure classification sentinels. The orchestrator maps these to
// the enumerated failure reasons, so no raw error string ever becomes a
// task's sole diagnostic.
var (
	ErrNetwork          = errors.New("network error")
	ErrVerification     = errors.New("verification failed")
	ErrDiskFull         = errors.New("disk full")
	ErrPermissionDenied = errors.New("permission denied")
)

// HTTPTransfer downloads candidates that expose an HTTP retrieval endpoint.
// Transfers always restart from scratch; no partial-byte resume is assumed
// recoverable after a preemption or crash.
type HTTPTransfer struct {
	client      *http.Client
	maxFileSize int64
	logger      *slog.Logger
}

// NewHTTPTransfer builds a transfer provider with the given per-download
// timeout and file size limit.
func NewHTTPTransfer(timeout time.Duration, maxFileSize int64, logger *slog.Logger) *HTTPTransfer {
	return &HTTPTransfer{
		client:      &http.Client{Timeout: timeout},
		maxFileSize: maxFileSize,
		logger:      logger,
	}
}

// Download retrieves the candidate into destPath, invoking onProgress as
// bytes arrive. A partial file is removed on any failure.
func (t *HTTPTransfer) Download(ctx context.Context, c Candidate, destPath string, onProgress ProgressFunc) error {
	if c.DownloadURL == "" {
		return fmt.Errorf("%w: candidate %q has no download endpoint", ErrNetwork, c.Filename)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.DownloadURL, nil)
	if err != nil {
		return fmt.Errorf("%w: create request: %v", ErrNetwork, err)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: bad status %s", ErrNetwork, resp.Status)
	}

	file, err := os.Create(destPath)
	if err != nil {
		return classifyFileError(err)
	}

	written, err := t.copyWithProgress(ctx, file, resp.Body, c.SizeBytes, onProgress)
	closeErr := file.Close()
	if err == nil {
		err = classifyFileError(closeErr)
	}
	if err == nil && c.SizeBytes > 0 && written != c.SizeBytes {
		err = fmt.Errorf("%w: got %d bytes, expected %d", ErrVerification, written, c.SizeBytes)
	}

	if err != nil {
		os.Remove(destPath)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}

	t.logger.Debug("transfer finished", "dest", destPath, "bytes", written)
	return nil
}

func (t *HTTPTransfer) copyWithProgress(ctx context.Context, dst *os.File, src io.Reader, total int64, onProgress ProgressFunc) (int64, error) {
	buf := make([]byte, 32*1024)
	var written int64

	for {
		select {
		case <-ctx.Done():
			return written, ctx.Err()
		default:
		}

		nr, rerr := src.Read(buf)
		if nr > 0 {
			nw, werr := dst.Write(buf[:nr])
			written += int64(nw)
			if werr != nil {
				return written, classifyFileError(werr)
			}
			if nw != nr {
				return written, fmt.Errorf("%w: %v", ErrDiskFull, io.ErrShortWrite)
			}
			if written > t.maxFileSize {
				return written, fmt.Errorf("%w: file exceeds size limit %d", ErrVerification, t.maxFileSize)
			}
			if onProgress != nil && total > 0 {
				onProgress(min(1, float64(written)/float64(total)))
			}
		}
		if rerr != nil {
			if rerr == io.EOF {
				return written, nil
			}
			return written, fmt.Errorf("%w: %v", ErrNetwork, rerr)
		}
	}
}

func classifyFileError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, syscall.ENOSPC):
		return fmt.Errorf("%w: %v", ErrDiskFull, err)
	case errors.Is(err, os.ErrPermission):
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	default:
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
}

var _ TransferProvider = (*HTTPTransfer)(nil)
