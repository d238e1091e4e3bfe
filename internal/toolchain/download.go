package toolchain

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/ZebulonRouseFrantzich/envmgr/internal/logging"
)

const (
	// DefaultTimeout is the default HTTP request timeout
	DefaultTimeout = 10 * time.Minute
	// DefaultUserAgent is the User-Agent header sent with requests
	DefaultUserAgent = "envmgr/1.0"
)

// DownloaderOptions configures a Downloader.
type DownloaderOptions struct {
	Timeout time.Duration
	// Retries applies only to attempts that failed before any byte arrived.
	Retries int
	Client  *http.Client
	Logger  logging.Logger
}

// Downloader streams archives to disk while hashing them.
type Downloader struct {
	client    *http.Client
	userAgent string
	retries   int
	log       logging.Logger
}

// NewDownloader creates a new downloader
func NewDownloader(opts DownloaderOptions) *Downloader {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				// Allow up to 10 redirects
				if len(via) >= 10 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		}
	}
	return &Downloader{
		client:    client,
		userAgent: DefaultUserAgent,
		retries:   opts.Retries,
		log:       logging.OrNop(opts.Logger),
	}
}

// Download fetches url into destPath and returns the hex SHA-512 digest of
// the body and its size. onProgress, when set, is called after every chunk
// with the bytes received so far and the announced total.
func (d *Downloader) Download(ctx context.Context, url, destPath string, onProgress func(received, total int64)) (string, int64, error) {
	var lastErr error

	for attempt := 0; attempt <= d.retries; attempt++ {
		if ctx.Err() != nil {
			return "", 0, ctx.Err()
		}

		if attempt > 0 {
			// Exponential backoff: 1s, 2s, 4s
			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", 0, ctx.Err()
			}
			d.log.Debug("retrying download", "url", url, "attempt", attempt)
		}

		digest, written, err := d.downloadOnce(ctx, url, destPath, onProgress)
		if err == nil {
			return digest, written, nil
		}

		lastErr = err

		if ctx.Err() != nil {
			return "", 0, ctx.Err()
		}
		// Restarting after bytes were reported would move progress backwards.
		if written > 0 {
			break
		}
	}

	return "", 0, lastErr
}

func (d *Downloader) downloadOnce(ctx context.Context, url, destPath string, onProgress func(received, total int64)) (string, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", 0, fmt.Errorf("%w: create request: %v", ErrDownload, err)
	}
	req.Header.Set("User-Agent", d.userAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("%w: unable to download %s: %w", ErrDownload, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("%w: unable to download %s: status %d", ErrDownload, url, resp.StatusCode)
	}

	total := resp.ContentLength
	if total <= 0 {
		return "", 0, fmt.Errorf("%w: %s did not report a content length", ErrDownload, url)
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return "", 0, fmt.Errorf("%w: create download dir: %v", ErrDownload, err)
	}

	tmpPath := destPath + ".tmp"
	tmpFile, err := os.Create(tmpPath)
	if err != nil {
		return "", 0, fmt.Errorf("%w: create temp file: %v", ErrDownload, err)
	}

	cleanupNeeded := true
	defer func() {
		tmpFile.Close()
		if cleanupNeeded {
			os.Remove(tmpPath)
		}
	}()

	hash := sha512.New()
	counter := &progressWriter{total: total, onProgress: onProgress}
	written, err := io.Copy(io.MultiWriter(tmpFile, hash, counter), resp.Body)
	if err != nil {
		return "", written, fmt.Errorf("%w: error when reading %s: %w", ErrDownload, url, err)
	}
	if written != total {
		return "", written, fmt.Errorf("%w: %s: received %d of %d bytes", ErrDownload, url, written, total)
	}

	if err := tmpFile.Close(); err != nil {
		return "", written, fmt.Errorf("%w: close temp file: %v", ErrDownload, err)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return "", written, fmt.Errorf("%w: rename temp file: %v", ErrDownload, err)
	}

	cleanupNeeded = false
	return hex.EncodeToString(hash.Sum(nil)), written, nil
}

type progressWriter struct {
	received   int64
	total      int64
	onProgress func(received, total int64)
}

func (w *progressWriter) Write(p []byte) (int, error) {
	w.received += int64(len(p))
	if w.onProgress != nil {
		w.onProgress(w.received, w.total)
	}
	return len(p), nil
}
