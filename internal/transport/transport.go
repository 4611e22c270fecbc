// Package transport wraps the miner's two kinds of unreliable external
// calls: HTTP downloads of tracker payloads and local git invocations.
// Both share one bounded-retry contract and never leave a partially
// written artifact behind on failure.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// RetryConfig holds retry configuration for download calls.
type RetryConfig struct {
	MaxAttempts       int           // Total attempts including the first (default: 4)
	InitialBackoff    time.Duration // Backoff before the second attempt (default: 15s)
	MaxBackoff        time.Duration // Backoff ceiling (default: 2m)
	BackoffMultiplier float64       // Backoff growth factor (default: 2.0)
	Timeout           time.Duration // Per-attempt timeout (default: 30s)
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       4,
		InitialBackoff:    15 * time.Second,
		MaxBackoff:        2 * time.Minute,
		BackoffMultiplier: 2.0,
		Timeout:           30 * time.Second,
	}
}

// Client downloads tracker payloads to files with retry and
// opportunistic authentication.
type Client struct {
	http        *http.Client
	retry       RetryConfig
	githubToken string
	userAgent   string
}

// NewClient creates a download client. A GitHub token is picked up from
// GH_TOKEN when present; without one GitHub API calls still work at
// unauthenticated rate limits.
func NewClient(retry RetryConfig) *Client {
	if retry.MaxAttempts == 0 {
		retry = DefaultRetryConfig()
	}
	return &Client{
		http:        &http.Client{},
		retry:       retry,
		githubToken: os.Getenv("GH_TOKEN"),
		userAgent:   "Mozilla/5.0",
	}
}

// statusError reports a non-2xx HTTP response.
type statusError struct {
	code int
	url  string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("GET %s: status %d", e.url, e.code)
}

// DownloadFile fetches rawURL and writes the body to dest. Tracker
// browse URLs are remapped to their raw/API views first. Transient
// failures are retried with exponential backoff; on final failure any
// partial dest file is removed and an error is returned.
func (c *Client) DownloadFile(ctx context.Context, rawURL, dest, trackerBaseURL string) error {
	target := RemapTrackerURL(rawURL, trackerBaseURL)

	var lastErr error
	backoff := c.retry.InitialBackoff

	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		body, err := c.fetch(ctx, target)
		if err == nil {
			if werr := os.WriteFile(dest, body, 0o644); werr != nil {
				removeIfExists(dest)
				return fmt.Errorf("writing %s: %w", dest, werr)
			}
			if attempt > 1 {
				fmt.Fprintf(os.Stderr, "  -> recovered after %d attempts: %s\n", attempt, target)
			}
			return nil
		}

		lastErr = err
		if !isRetriable(err) {
			break
		}
		if attempt == c.retry.MaxAttempts {
			break
		}

		fmt.Fprintf(os.Stderr, "  -> (attempt %d/%d) error downloading %s: %v, retrying in %v\n",
			attempt, c.retry.MaxAttempts, target, err, backoff)

		select {
		case <-time.After(backoff):
			backoff = time.Duration(float64(backoff) * c.retry.BackoffMultiplier)
			if backoff > c.retry.MaxBackoff {
				backoff = c.retry.MaxBackoff
			}
		case <-ctx.Done():
			removeIfExists(dest)
			return fmt.Errorf("download of %s canceled: %w", target, ctx.Err())
		}
	}

	removeIfExists(dest)
	return fmt.Errorf("giving up on %s after %d attempts: %w", target, c.retry.MaxAttempts, lastErr)
}

// fetch performs one GET attempt with the per-attempt timeout.
func (c *Client) fetch(ctx context.Context, url string) ([]byte, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.retry.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	if c.githubToken != "" && strings.Contains(url, "api.github.com") {
		req.Header.Set("Authorization", "token "+c.githubToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &statusError{code: resp.StatusCode, url: url}
	}

	return io.ReadAll(resp.Body)
}

// isRetriable determines if a download error is transient.
func isRetriable(err error) bool {
	if err == nil {
		return false
	}

	var se *statusError
	if errors.As(err, &se) {
		switch se.code {
		case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout, 520, 524:
			return true
		}
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	errStr := err.Error()
	if strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "network is unreachable") ||
		strings.Contains(errStr, "no such host") ||
		strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "temporary failure") {
		return true
	}

	return false
}

func removeIfExists(path string) {
	if _, err := os.Stat(path); err == nil {
		_ = os.Remove(path)
	}
}
