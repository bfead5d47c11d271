package config

import (
	"fmt"
	"net/url"
	"time"

	"seo-audit/pkg/utils"
)

// Validate applies defaults for unset fields and checks the rest.
// It returns a list of human-readable warnings for fields that were
// defaulted, and an error only for configurations that cannot run.
func (cfg *AppConfig) Validate() ([]string, error) {
	var warnings []string

	if cfg.DefaultUserAgent == "" {
		cfg.DefaultUserAgent = "KoreSEO Crawler"
		warnings = append(warnings, "default_user_agent is empty, using 'KoreSEO Crawler'")
	}
	if cfg.StateDir == "" {
		cfg.StateDir = "./audit_state"
		warnings = append(warnings, "state_dir is empty, using './audit_state'")
	}
	if cfg.APIListenAddr == "" {
		cfg.APIListenAddr = ":8080"
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 30 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelayStep <= 0 {
		cfg.RetryDelayStep = 1 * time.Second
	}
	if cfg.MaxRedirects <= 0 {
		cfg.MaxRedirects = 10
	}
	if cfg.FetchBatchSize <= 0 {
		cfg.FetchBatchSize = 5
	}
	if cfg.DefaultDepthLimit <= 0 {
		cfg.DefaultDepthLimit = 50
	}
	if cfg.DefaultPageLimit <= 0 {
		cfg.DefaultPageLimit = 500
	}
	if cfg.PriorityPageLimit <= 0 {
		cfg.PriorityPageLimit = 100
	}
	if cfg.SitemapProbeTimeout <= 0 {
		cfg.SitemapProbeTimeout = 10 * time.Second
	}
	if cfg.DefaultAuditInterval <= 0 {
		cfg.DefaultAuditInterval = 7 * 24 * time.Hour
	}

	// HTTP client defaults
	if cfg.HTTPClientSettings.Timeout <= 0 {
		cfg.HTTPClientSettings.Timeout = 45 * time.Second
	}
	if cfg.HTTPClientSettings.MaxIdleConns <= 0 {
		cfg.HTTPClientSettings.MaxIdleConns = 100
	}
	if cfg.HTTPClientSettings.MaxIdleConnsPerHost <= 0 {
		cfg.HTTPClientSettings.MaxIdleConnsPerHost = 2
	}
	if cfg.HTTPClientSettings.IdleConnTimeout <= 0 {
		cfg.HTTPClientSettings.IdleConnTimeout = 90 * time.Second
	}
	if cfg.HTTPClientSettings.TLSHandshakeTimeout <= 0 {
		cfg.HTTPClientSettings.TLSHandshakeTimeout = 10 * time.Second
	}
	if cfg.HTTPClientSettings.ExpectContinueTimeout <= 0 {
		cfg.HTTPClientSettings.ExpectContinueTimeout = 1 * time.Second
	}
	if cfg.HTTPClientSettings.DialerTimeout <= 0 {
		cfg.HTTPClientSettings.DialerTimeout = 15 * time.Second
	}
	if cfg.HTTPClientSettings.DialerKeepAlive <= 0 {
		cfg.HTTPClientSettings.DialerKeepAlive = 30 * time.Second
	}

	// Scorer defaults
	if cfg.Scorer.Endpoint == "" {
		cfg.Scorer.Endpoint = "https://www.googleapis.com/pagespeedonline/v5/runPagespeed"
	}
	if cfg.Scorer.Strategy == "" {
		cfg.Scorer.Strategy = "mobile"
	}
	if cfg.Scorer.Strategy != "mobile" && cfg.Scorer.Strategy != "desktop" {
		return warnings, fmt.Errorf("%w: scorer.strategy must be 'mobile' or 'desktop', got %q",
			utils.ErrConfigValidation, cfg.Scorer.Strategy)
	}
	if len(cfg.Scorer.Categories) == 0 {
		cfg.Scorer.Categories = []string{"performance", "seo"}
	}
	if cfg.Scorer.CallDelay <= 0 {
		cfg.Scorer.CallDelay = 1 * time.Second
	}
	if cfg.Scorer.APIKey == "" {
		warnings = append(warnings, "scorer.api_key is empty, external performance scoring disabled")
	}

	// Queue defaults
	if cfg.Queue.RedisAddr == "" {
		cfg.Queue.RedisAddr = "localhost:6379"
		warnings = append(warnings, "queue.redis_addr is empty, using 'localhost:6379'")
	}
	if cfg.Queue.Name == "" {
		cfg.Queue.Name = "crawl:jobs"
	}
	if cfg.Queue.BatchSize <= 0 {
		cfg.Queue.BatchSize = 10
	}
	if cfg.Queue.ReceiveWait <= 0 {
		cfg.Queue.ReceiveWait = 5 * time.Second
	}

	// Per-site checks
	for key, siteCfg := range cfg.Sites {
		if siteCfg.URL == "" {
			return warnings, fmt.Errorf("%w: site %q has no url", utils.ErrConfigValidation, key)
		}
		u, err := url.Parse(siteCfg.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return warnings, fmt.Errorf("%w: site %q has invalid url %q", utils.ErrConfigValidation, key, siteCfg.URL)
		}
	}

	return warnings, nil
}
