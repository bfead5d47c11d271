package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seo-audit/pkg/config"
)

func testFetcher(t *testing.T) *Fetcher {
	t.Helper()
	cfg := &config.AppConfig{}
	warnings, err := cfg.Validate()
	require.NoError(t, err)
	_ = warnings

	cfg.FetchTimeout = 2 * time.Second
	cfg.RetryDelayStep = 10 * time.Millisecond

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewFetcher(NewClient(cfg.HTTPClientSettings, logger), cfg, logger)
}

func TestFetchPageSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html><title>ok</title></html>")
	}))
	defer server.Close()

	result := testFetcher(t).FetchPage(context.Background(), server.URL, "test-agent")

	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.Contains(t, result.HTML, "<title>ok</title>")
	assert.Empty(t, result.Error)
	assert.Equal(t, "text/html", result.Headers["content-type"])
}

func TestFetchPageNonSuccessStatus(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantError string
	}{
		{"not found", http.StatusNotFound, "HTTP 404"},
		{"server error", http.StatusInternalServerError, "HTTP 500"},
		{"rate limited", http.StatusTooManyRequests, "HTTP 429"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer server.Close()

			result := testFetcher(t).FetchPage(context.Background(), server.URL, "test-agent")

			assert.Equal(t, tc.status, result.StatusCode)
			assert.Empty(t, result.HTML, "non-2xx must not carry a body")
			assert.Equal(t, tc.wantError, result.Error)
		})
	}
}

func TestFetchPageRetriesTransportFailures(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			// Kill the connection mid-response to force a transport error.
			hj, ok := w.(http.Hijacker)
			require.True(t, ok)
			conn, _, err := hj.Hijack()
			require.NoError(t, err)
			conn.Close()
			return
		}
		fmt.Fprint(w, "<html>recovered</html>")
	}))
	defer server.Close()

	result := testFetcher(t).FetchPage(context.Background(), server.URL, "test-agent")

	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.Contains(t, result.HTML, "recovered")
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestFetchPageExhaustsRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hj := w.(http.Hijacker)
		conn, _, _ := hj.Hijack()
		conn.Close()
	}))
	defer server.Close()

	result := testFetcher(t).FetchPage(context.Background(), server.URL, "test-agent")

	assert.Equal(t, 0, result.StatusCode, "exhausted retries report status 0")
	assert.NotEmpty(t, result.Error)
}

func TestFetchPageFollowsRedirects(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/middle", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/middle", func(w http.ResponseWriter, r *http.Request) {
		// Relative Location must resolve against the request URL.
		w.Header().Set("Location", "final")
		w.WriteHeader(http.StatusFound)
	})
	mux.HandleFunc("/final", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html>destination</html>")
	})

	result := testFetcher(t).FetchPage(context.Background(), server.URL+"/start", "test-agent")

	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.Contains(t, result.HTML, "destination")
	assert.Equal(t, server.URL+"/final", result.URL, "result URL is the final hop")
}

func TestFetchPageRedirectWithoutLocation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// A 3xx with no Location header is terminal, not followable.
		w.WriteHeader(http.StatusMovedPermanently)
	}))
	defer server.Close()

	result := testFetcher(t).FetchPage(context.Background(), server.URL, "test-agent")

	assert.Equal(t, http.StatusMovedPermanently, result.StatusCode)
	assert.Equal(t, "HTTP 301", result.Error)
}

func TestFetchPageRedirectCap(t *testing.T) {
	var hops int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&hops, 1)
		http.Redirect(w, r, fmt.Sprintf("/loop%d", n), http.StatusFound)
	}))
	defer server.Close()

	result := testFetcher(t).FetchPage(context.Background(), server.URL, "test-agent")

	assert.Equal(t, http.StatusFound, result.StatusCode)
	assert.Contains(t, result.Error, "redirects")
}

func TestFetchPageContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(5 * time.Second)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	result := testFetcher(t).FetchPage(ctx, server.URL, "test-agent")

	assert.Equal(t, 0, result.StatusCode)
	assert.NotEmpty(t, result.Error)
}
