package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2.0,
		Timeout:           2 * time.Second,
	}
}

func TestDownloadFileSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("payload"))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "report.json")
	c := NewClient(fastRetryConfig())

	err := c.DownloadFile(context.Background(), srv.URL, dest, "")
	require.NoError(t, err)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}

func TestDownloadFileRetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("eventually"))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "report.json")
	c := NewClient(fastRetryConfig())

	err := c.DownloadFile(context.Background(), srv.URL, dest, "")
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())

	data, _ := os.ReadFile(dest)
	assert.Equal(t, "eventually", string(data))
}

func TestDownloadFileDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "report.json")
	c := NewClient(fastRetryConfig())

	err := c.DownloadFile(context.Background(), srv.URL, dest, "")
	assert.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.NoFileExists(t, dest)
}

func TestDownloadFileRemovesPartialOnExhaustion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "report.json")
	// Simulate a partial artifact left by an earlier crash.
	require.NoError(t, os.WriteFile(dest, []byte("partial"), 0o644))

	c := NewClient(fastRetryConfig())
	err := c.DownloadFile(context.Background(), srv.URL, dest, "")
	assert.Error(t, err)
	assert.NoFileExists(t, dest)
}

func TestDownloadFileGitHubAuthHeader(t *testing.T) {
	// The token is only attached for api.github.com targets, which we
	// cannot hit in a test, so verify the negative: no header leaks to
	// other hosts.
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte("{}"))
	}))
	defer srv.Close()

	t.Setenv("GH_TOKEN", "secret")
	dest := filepath.Join(t.TempDir(), "report.json")
	c := NewClient(fastRetryConfig())

	require.NoError(t, c.DownloadFile(context.Background(), srv.URL, dest, ""))
	assert.Empty(t, gotAuth)
}

func TestIsRetriable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"bad gateway", &statusError{code: 502}, true},
		{"service unavailable", &statusError{code: 503}, true},
		{"cloudflare 524", &statusError{code: 524}, true},
		{"not found", &statusError{code: 404}, false},
		{"forbidden", &statusError{code: 403}, false},
		{"deadline", context.DeadlineExceeded, true},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"no such host", errors.New("dial tcp: lookup x: no such host"), true},
		{"other", errors.New("invalid argument"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isRetriable(tt.err))
		})
	}
}
