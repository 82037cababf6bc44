// Package source loads raw forecast tables from local files, uploaded
// payloads, and remote HTTP endpoints. Remote fetches are rate limited and
// retried with exponential backoff; parsing is delegated to the rawtable
// package so every loader yields the same shape.
package source

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"log/slog"

	"golang.org/x/time/rate"

	pipeerr "github.com/hepviz/go-forecast-dashboard/internal/errors"
	"github.com/hepviz/go-forecast-dashboard/internal/rawtable"
)

const (
	rateLimitBurst = 1

	// Uploads and remote payloads beyond this size are rejected before
	// parsing unless the caller configures a different limit.
	DefaultMaxBytes int64 = 16 << 20
)

// Result is a loaded raw table together with the identity of where it came
// from. ID is stable for a given source and is used as a cache key component.
type Result struct {
	Table *rawtable.Table
	ID    string
	Name  string
}

// Loader fetches and parses raw forecast tables.
type Loader struct {
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	retryPolicy pipeerr.RetryPolicy
	maxBytes    int64
	logger      *slog.Logger
}

// Option configures a Loader.
type Option func(*Loader)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(l *Loader) { l.httpClient = client }
}

// WithRateLimit sets the remote fetch budget in requests per minute.
func WithRateLimit(perMinute int) Option {
	return func(l *Loader) {
		l.rateLimiter = rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), rateLimitBurst)
	}
}

// WithRetryPolicy sets the retry policy for remote fetches.
func WithRetryPolicy(policy pipeerr.RetryPolicy) Option {
	return func(l *Loader) { l.retryPolicy = policy }
}

// WithMaxBytes sets the maximum accepted payload size.
func WithMaxBytes(maxBytes int64) Option {
	return func(l *Loader) { l.maxBytes = maxBytes }
}

// NewLoader creates a loader with sensible defaults. A nil logger falls back
// to slog.Default.
func NewLoader(logger *slog.Logger, opts ...Option) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Loader{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		rateLimiter: rate.NewLimiter(rate.Limit(0.5), rateLimitBurst), // 30 per minute
		retryPolicy: pipeerr.DefaultRetryPolicy(),
		maxBytes:    DefaultMaxBytes,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// FromFile loads and parses a CSV file from the local filesystem.
func (l *Loader) FromFile(path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, pipeerr.NewSource(fmt.Sprintf("open %s", path), err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, pipeerr.NewSource(fmt.Sprintf("stat %s", path), err)
	}
	if info.Size() > l.maxBytes {
		return nil, pipeerr.NewSource(
			fmt.Sprintf("file %s exceeds size limit of %d bytes", path, l.maxBytes), nil)
	}

	table, err := rawtable.Parse(f)
	if err != nil {
		return nil, pipeerr.NewSource(fmt.Sprintf("parse %s", path), err)
	}

	l.logger.Info("loaded table from file",
		"path", path,
		"columns", len(table.Columns()),
		"rows", table.NumRows())

	return &Result{
		Table: table,
		ID:    "file:" + path,
		Name:  filepath.Base(path),
	}, nil
}

// FromBytes parses an in-memory CSV payload, typically an upload. The name is
// advisory and carried through for logging and display.
func (l *Loader) FromBytes(name string, data []byte) (*Result, error) {
	if int64(len(data)) > l.maxBytes {
		return nil, pipeerr.NewSource(
			fmt.Sprintf("payload %s exceeds size limit of %d bytes", name, l.maxBytes), nil)
	}

	table, err := rawtable.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, pipeerr.NewSource(fmt.Sprintf("parse upload %s", name), err)
	}

	l.logger.Info("loaded table from upload",
		"name", name,
		"bytes", len(data),
		"columns", len(table.Columns()),
		"rows", table.NumRows())

	return &Result{
		Table: table,
		ID:    "upload:" + name,
		Name:  name,
	}, nil
}

// FromURL fetches and parses a remote CSV endpoint. Server errors and network
// failures are retried with exponential backoff; client errors are not.
func (l *Loader) FromURL(ctx context.Context, url string) (*Result, error) {
	if err := l.rateLimiter.Wait(ctx); err != nil {
		return nil, pipeerr.NewSource("rate limit wait", err)
	}

	var data []byte
	fetch := func() error {
		body, err := l.fetchOnce(ctx, url)
		if err != nil {
			return err
		}
		data = body
		return nil
	}

	if err := pipeerr.Retry(ctx, l.retryPolicy, l.logger, "fetch "+url, fetch); err != nil {
		return nil, pipeerr.NewSource(fmt.Sprintf("fetch %s", url), err)
	}

	table, err := rawtable.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, pipeerr.NewSource(fmt.Sprintf("parse %s", url), err)
	}

	l.logger.Info("loaded table from url",
		"url", url,
		"bytes", len(data),
		"columns", len(table.Columns()),
		"rows", table.NumRows())

	return &Result{
		Table: table,
		ID:    "url:" + url,
		Name:  filepath.Base(url),
	}, nil
}

// fetchOnce performs a single HTTP GET. Transport failures and 5xx responses
// are marked transient so the retry loop can back off and try again.
func (l *Loader) fetchOnce(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "text/csv")

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, pipeerr.MarkTransient(fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return nil, pipeerr.MarkTransient(fmt.Errorf("server error %d", resp.StatusCode))
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, pipeerr.MarkTransient(fmt.Errorf("rate limited by server"))
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, l.maxBytes+1))
	if err != nil {
		return nil, pipeerr.MarkTransient(fmt.Errorf("read body: %w", err))
	}
	if int64(len(body)) > l.maxBytes {
		return nil, fmt.Errorf("response exceeds size limit of %d bytes", l.maxBytes)
	}
	return body, nil
}
