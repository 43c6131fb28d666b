// Package thumb acquires representative images: fetch, re-encode to a bounded WebP thumbnail
// and persist them under the output directory.
package thumb

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// DefaultUserAgent identifies the exporter to image hosts.
const DefaultUserAgent = "citymap-export/1.0"

// FetchConfig configures the HTTP fetcher.
type FetchConfig struct {
	// Timeout bounds a single attempt, including reading the body.
	Timeout time.Duration
	// RequestsPerSecond throttles outbound requests; 0 means unlimited.
	RequestsPerSecond float64
	Burst             int
	UserAgent         string
	// MaxBytes caps the downloaded body size.
	MaxBytes int64
}

// StatusError is returned for non-200 responses.
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d for %s", e.Status, e.URL)
}

// Fetcher downloads image bytes.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// HTTPFetcher fetches images over HTTP with a per-attempt timeout and optional throttling.
type HTTPFetcher struct {
	cfg     FetchConfig
	client  *http.Client
	limiter *rate.Limiter
}

// NewHTTPFetcher creates a fetcher. client may be nil.
func NewHTTPFetcher(cfg FetchConfig, client *http.Client) *HTTPFetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 32 << 20
	}
	if client == nil {
		client = &http.Client{}
	}

	f := &HTTPFetcher{cfg: cfg, client: client}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		f.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return f
}

// Fetch performs a single GET. Any status other than 200 is an error.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{URL: url, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	if int64(len(body)) > f.cfg.MaxBytes {
		return nil, fmt.Errorf("body exceeds %d bytes", f.cfg.MaxBytes)
	}
	return body, nil
}
