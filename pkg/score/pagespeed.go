package score

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"seo-audit/pkg/config"
	"seo-audit/pkg/models"
)

// Client talks to a PageSpeed-style performance API. A zero API key
// disables the client entirely; a per-URL failure yields a nil score
// rather than an error so one bad page never sinks a batch.
type Client struct {
	apiKey     string
	endpoint   string
	strategy   string
	categories []string
	callDelay  time.Duration
	httpClient *http.Client
	log        *logrus.Entry
}

// NewClient creates a scorer client from validated config.
func NewClient(cfg config.ScorerConfig, httpClient *http.Client, log *logrus.Logger) *Client {
	return &Client{
		apiKey:     cfg.APIKey,
		endpoint:   cfg.Endpoint,
		strategy:   cfg.Strategy,
		categories: cfg.Categories,
		callDelay:  cfg.CallDelay,
		httpClient: httpClient,
		log:        log.WithField("component", "scorer"),
	}
}

// Enabled reports whether scoring is configured.
func (c *Client) Enabled() bool {
	return c.apiKey != ""
}

// psiResponse mirrors the fields of the PageSpeed Insights payload we
// consume. Category scores arrive as 0-1 floats.
type psiResponse struct {
	LighthouseResult struct {
		Categories map[string]struct {
			Score float64 `json:"score"`
		} `json:"categories"`
		Audits map[string]struct {
			NumericValue *float64 `json:"numericValue"`
		} `json:"audits"`
	} `json:"lighthouseResult"`
}

// Score fetches performance scores for one URL. Returns nil when the
// client is disabled or the API call fails for any reason.
func (c *Client) Score(ctx context.Context, pageURL string) *models.PerfScores {
	if !c.Enabled() {
		return nil
	}

	reqURL, err := c.buildURL(pageURL)
	if err != nil {
		c.log.WithField("url", pageURL).Warnf("Failed to build scorer request: %v", err)
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.WithField("url", pageURL).Warnf("Scorer request failed: %v", err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		c.log.WithFields(logrus.Fields{
			"url":    pageURL,
			"status": resp.StatusCode,
		}).Warn("Scorer returned non-OK status")
		return nil
	}

	var payload psiResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		c.log.WithField("url", pageURL).Warnf("Failed to decode scorer response: %v", err)
		return nil
	}

	return fromPSI(payload)
}

// ScoreBatch scores URLs strictly sequentially, sleeping the configured
// delay between calls to stay under API quotas. The returned map holds
// an entry per input URL; failed URLs map to nil.
func (c *Client) ScoreBatch(ctx context.Context, urls []string) map[string]*models.PerfScores {
	scores := make(map[string]*models.PerfScores, len(urls))
	for i, pageURL := range urls {
		if i > 0 && c.callDelay > 0 {
			select {
			case <-time.After(c.callDelay):
			case <-ctx.Done():
				return scores
			}
		}
		scores[pageURL] = c.Score(ctx, pageURL)
	}
	return scores
}

func (c *Client) buildURL(pageURL string) (string, error) {
	base, err := url.Parse(c.endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid scorer endpoint: %w", err)
	}
	q := base.Query()
	q.Set("url", pageURL)
	q.Set("key", c.apiKey)
	q.Set("strategy", c.strategy)
	for _, category := range c.categories {
		q.Add("category", category)
	}
	base.RawQuery = q.Encode()
	return base.String(), nil
}

// fromPSI normalizes the 0-1 category scores to 0-100 integers and
// lifts the vitals audits when present.
func fromPSI(payload psiResponse) *models.PerfScores {
	categories := payload.LighthouseResult.Categories
	scores := &models.PerfScores{
		Performance: roundScore(categories["performance"].Score),
		SEO:         roundScore(categories["seo"].Score),
	}
	if cat, ok := categories["accessibility"]; ok {
		v := roundScore(cat.Score)
		scores.Accessibility = &v
	}
	if cat, ok := categories["best-practices"]; ok {
		v := roundScore(cat.Score)
		scores.BestPractices = &v
	}

	audits := payload.LighthouseResult.Audits
	if audit, ok := audits["largest-contentful-paint"]; ok && audit.NumericValue != nil {
		v := int(*audit.NumericValue)
		scores.LCPMillis = &v
	}
	if audit, ok := audits["max-potential-fid"]; ok && audit.NumericValue != nil {
		v := int(*audit.NumericValue)
		scores.FIDMillis = &v
	}
	if audit, ok := audits["cumulative-layout-shift"]; ok && audit.NumericValue != nil {
		scores.CLS = audit.NumericValue
	}
	return scores
}

func roundScore(raw float64) int {
	score := int(raw*100 + 0.5)
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
