// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package fetch downloads paper PDFs to id-addressed local paths.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/lycheng/paperboy/internal/retry"
	"github.com/lycheng/paperboy/pkg/types"
)

// rawDir is the subdirectory under the papers base for downloaded PDFs.
const rawDir = "raw"

// FetchError reports a download that failed after retry exhaustion.
type FetchError struct {
	URL   string
	Cause error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching %s: %v", e.URL, e.Cause)
}

func (e *FetchError) Unwrap() error { return e.Cause }

// statusError is a non-2xx HTTP response. Server-side and rate-limit
// statuses are worth retrying; client errors are not.
type statusError struct {
	code int
	url  string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("HTTP %d from %s", e.code, e.url)
}

func (e *statusError) retriable() bool {
	return e.code >= 500 || e.code == http.StatusTooManyRequests
}

// Fetcher downloads PDFs. Each paper id maps to exactly one destination
// path, so a re-fetch overwrites deterministically instead of
// accumulating copies.
type Fetcher struct {
	client *http.Client
	cfg    types.FetchConfig
	policy retry.Policy
}

// New builds a Fetcher. A nil client gets a default with the configured
// timeout.
func New(client *http.Client, cfg types.FetchConfig) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Fetcher{
		client: client,
		cfg:    cfg,
		policy: retry.FromConfig(cfg.Retry, func(err error) bool {
			var se *statusError
			if errors.As(err, &se) {
				return se.retriable()
			}
			return true
		}),
	}
}

// Path returns the destination for a paper id without fetching it.
func (f *Fetcher) Path(id string) string {
	return filepath.Join(f.cfg.PapersDir, rawDir, id+".pdf")
}

// Fetch downloads pdfURL to the id-addressed destination and returns the
// local path. The transfer goes to a temp file that is renamed into
// place only when complete; a partial download from an earlier crash is
// never resumed, just discarded.
func (f *Fetcher) Fetch(ctx context.Context, id, pdfURL string) (string, error) {
	destPath := f.Path(id)
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return "", fmt.Errorf("creating download directory: %w", err)
	}

	err := f.policy.Do(ctx, func() error {
		return f.download(ctx, pdfURL, destPath)
	})
	if err != nil {
		return "", &FetchError{URL: pdfURL, Cause: err}
	}

	// Polite pause so consecutive downloads do not hammer the host.
	if f.cfg.DownloadDelay > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(f.cfg.DownloadDelay):
		}
	}
	return destPath, nil
}

func (f *Fetcher) download(ctx context.Context, pdfURL, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pdfURL, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "application/pdf")

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return &statusError{code: resp.StatusCode, url: pdfURL}
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), ".fetch-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	_, copyErr := io.Copy(tmpFile, resp.Body)
	closeErr := tmpFile.Close()
	if copyErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing download: %w", copyErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", closeErr)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
