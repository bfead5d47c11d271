package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"seo-audit/pkg/config"
	"seo-audit/pkg/models"
)

// Fetcher performs single-page GETs with timeout, bounded retry for
// transport failures, and manual redirect following.
type Fetcher struct {
	client *http.Client
	cfg    *config.AppConfig
	log    *logrus.Logger
}

// NewFetcher creates a new Fetcher instance
func NewFetcher(client *http.Client, cfg *config.AppConfig, log *logrus.Logger) *Fetcher {
	return &Fetcher{
		client: client,
		cfg:    cfg,
		log:    log,
	}
}

// FetchPage fetches a single URL and returns the attempt's outcome as data.
// It never returns an error: transport failures after all retries surface
// as StatusCode 0 with the last error message, and non-2xx responses
// surface as their status code with no HTML. The only side effect is the
// network call itself.
func (f *Fetcher) FetchPage(ctx context.Context, rawURL, userAgent string) models.CrawlResult {
	return f.fetch(ctx, rawURL, userAgent, 0)
}

func (f *Fetcher) fetch(ctx context.Context, rawURL, userAgent string, redirectHops int) models.CrawlResult {
	reqLog := f.log.WithField("url", rawURL)

	var lastErr error
	for attempt := 1; attempt <= f.cfg.MaxRetries; attempt++ {
		// Linear backoff before each retry (not before the first attempt),
		// respecting context cancellation during the wait.
		if attempt > 1 {
			delay := f.cfg.RetryDelayStep * time.Duration(attempt-1)
			reqLog.WithFields(logrus.Fields{"attempt": attempt, "delay": delay}).Warn("Retrying fetch...")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return models.CrawlResult{URL: rawURL, StatusCode: 0, Error: ctx.Err().Error()}
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, f.cfg.FetchTimeout)
		result, transportErr := f.doRequest(attemptCtx, rawURL, userAgent)
		cancel()

		if transportErr != nil {
			// Transport-level failure (timeout, DNS, connection reset): retry.
			lastErr = transportErr
			reqLog.WithField("attempt", attempt).Warnf("Network error: %v", transportErr)
			continue
		}

		// Redirect: resolve Location relative to the request URL and re-fetch.
		if result.StatusCode >= 300 && result.StatusCode < 400 && result.Headers["location"] != "" {
			if redirectHops >= f.cfg.MaxRedirects {
				reqLog.Warnf("Redirect cap (%d) reached", f.cfg.MaxRedirects)
				return models.CrawlResult{
					URL:        rawURL,
					StatusCode: result.StatusCode,
					Error:      fmt.Sprintf("stopped after %d redirects", f.cfg.MaxRedirects),
				}
			}
			base, err := url.Parse(rawURL)
			if err != nil {
				return models.CrawlResult{URL: rawURL, StatusCode: result.StatusCode, Error: err.Error()}
			}
			loc, err := base.Parse(result.Headers["location"])
			if err != nil {
				return models.CrawlResult{URL: rawURL, StatusCode: result.StatusCode, Error: fmt.Sprintf("invalid Location header: %v", err)}
			}
			reqLog.WithField("location", loc.String()).Debug("Following redirect")
			return f.fetch(ctx, loc.String(), userAgent, redirectHops+1)
		}

		return result
	}

	reqLog.Errorf("All %d fetch attempts failed. Last error: %v", f.cfg.MaxRetries, lastErr)
	errMsg := "unknown error"
	if lastErr != nil {
		errMsg = lastErr.Error()
	}
	return models.CrawlResult{URL: rawURL, StatusCode: 0, Error: errMsg}
}

// doRequest performs one GET attempt. A non-nil error means the request
// failed at the transport level and is retryable; any HTTP response,
// success or not, comes back as a CrawlResult.
func (f *Fetcher) doRequest(ctx context.Context, rawURL, userAgent string) (models.CrawlResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		// Malformed URL: not retryable, report as a dead result.
		return models.CrawlResult{URL: rawURL, StatusCode: 0, Error: err.Error()}, nil
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "ko-KR,ko;q=0.9,en-US;q=0.8,en;q=0.7")

	resp, err := f.client.Do(req)
	if err != nil {
		return models.CrawlResult{}, err
	}
	defer resp.Body.Close()

	headers := make(map[string]string, len(resp.Header))
	for key := range resp.Header {
		headers[normalizeHeaderKey(key)] = resp.Header.Get(key)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			// A broken body mid-transfer counts as a transport failure.
			return models.CrawlResult{}, readErr
		}
		return models.CrawlResult{
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			HTML:       string(body),
			Headers:    headers,
		}, nil
	}

	// Non-2xx: drain so the connection can be reused, record status as data.
	io.Copy(io.Discard, resp.Body)
	result := models.CrawlResult{
		URL:        rawURL,
		StatusCode: resp.StatusCode,
		Headers:    headers,
	}
	// A redirect with a Location header is followed by the caller; every
	// other non-2xx outcome is terminal and carries an error string,
	// including a 3xx that gives nowhere to go.
	if resp.StatusCode >= 400 || headers["location"] == "" {
		result.Error = fmt.Sprintf("HTTP %d", resp.StatusCode)
	}
	return result, nil
}

func normalizeHeaderKey(key string) string {
	b := []byte(key)
	for i := range b {
		if b[i] >= 'A' && b[i] <= 'Z' {
			b[i] += 'a' - 'A'
		}
	}
	return string(b)
}
