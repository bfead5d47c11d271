package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// SiteConfig holds configuration specific to a single audited site
type SiteConfig struct {
	URL           string        `yaml:"url"`
	PlanTier      string        `yaml:"plan_tier,omitempty"`
	UserAgent     string        `yaml:"user_agent,omitempty"`
	RespectRobots *bool         `yaml:"respect_robots,omitempty"` // nil = default (true)
	AuditInterval time.Duration `yaml:"audit_interval,omitempty"` // 0 = scheduler default
}

// ScorerConfig holds settings for the external performance scoring API
type ScorerConfig struct {
	APIKey     string        `yaml:"api_key,omitempty"`   // Empty disables scoring
	Endpoint   string        `yaml:"endpoint,omitempty"`  // Override for tests/self-hosted proxies
	Strategy   string        `yaml:"strategy,omitempty"`  // "desktop" or "mobile"
	Categories []string      `yaml:"categories,omitempty"`
	CallDelay  time.Duration `yaml:"call_delay,omitempty"` // Spacing between sequential calls
}

// QueueConfig holds settings for the Redis-backed crawl job queue
type QueueConfig struct {
	RedisAddr   string        `yaml:"redis_addr,omitempty"`
	RedisDB     int           `yaml:"redis_db,omitempty"`
	Name        string        `yaml:"name,omitempty"` // Base key for the job list
	BatchSize   int           `yaml:"batch_size,omitempty"`
	ReceiveWait time.Duration `yaml:"receive_wait,omitempty"` // Blocking pop timeout
}

// HTTPClientConfig holds settings for the shared HTTP client
type HTTPClientConfig struct {
	Timeout               time.Duration `yaml:"timeout,omitempty"`
	MaxIdleConns          int           `yaml:"max_idle_conns,omitempty"`
	MaxIdleConnsPerHost   int           `yaml:"max_idle_conns_per_host,omitempty"`
	IdleConnTimeout       time.Duration `yaml:"idle_conn_timeout,omitempty"`
	TLSHandshakeTimeout   time.Duration `yaml:"tls_handshake_timeout,omitempty"`
	ExpectContinueTimeout time.Duration `yaml:"expect_continue_timeout,omitempty"`
	DialerTimeout         time.Duration `yaml:"dialer_timeout,omitempty"`
	DialerKeepAlive       time.Duration `yaml:"dialer_keep_alive,omitempty"`
}

// AppConfig holds the global application configuration
type AppConfig struct {
	DefaultUserAgent     string                `yaml:"default_user_agent,omitempty"`
	StateDir             string                `yaml:"state_dir,omitempty"`
	APIListenAddr        string                `yaml:"api_listen_addr,omitempty"`
	FetchTimeout         time.Duration         `yaml:"fetch_timeout,omitempty"`
	MaxRetries           int                   `yaml:"max_retries,omitempty"`
	RetryDelayStep       time.Duration         `yaml:"retry_delay_step,omitempty"` // Backoff = step * attempt
	MaxRedirects         int                   `yaml:"max_redirects,omitempty"`
	FetchBatchSize       int                   `yaml:"fetch_batch_size,omitempty"` // Concurrent fetches per batch
	DefaultDepthLimit    int                   `yaml:"default_depth_limit,omitempty"`
	DefaultPageLimit     int                   `yaml:"default_page_limit,omitempty"`
	PriorityPageLimit    int                   `yaml:"priority_page_limit,omitempty"` // Pages sent to the external scorer
	SitemapProbeTimeout  time.Duration         `yaml:"sitemap_probe_timeout,omitempty"`
	DefaultAuditInterval time.Duration         `yaml:"default_audit_interval,omitempty"`
	HTTPClientSettings   HTTPClientConfig      `yaml:"http_client_settings,omitempty"`
	Scorer               ScorerConfig          `yaml:"scorer,omitempty"`
	Queue                QueueConfig           `yaml:"queue,omitempty"`
	Sites                map[string]SiteConfig `yaml:"sites,omitempty"`
}

// Load reads and parses the YAML config file at path.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return &cfg, nil
}

// EffectiveRespectRobots determines the effective robots setting for a site.
func EffectiveRespectRobots(siteCfg SiteConfig) bool {
	if siteCfg.RespectRobots != nil {
		return *siteCfg.RespectRobots
	}
	return true
}

// EffectiveUserAgent determines the effective user agent for a site.
func EffectiveUserAgent(siteCfg SiteConfig, appCfg *AppConfig) string {
	if siteCfg.UserAgent != "" {
		return siteCfg.UserAgent
	}
	return appCfg.DefaultUserAgent
}

// EffectiveAuditInterval determines the effective re-audit interval for a site.
func EffectiveAuditInterval(siteCfg SiteConfig, appCfg *AppConfig) time.Duration {
	if siteCfg.AuditInterval > 0 {
		return siteCfg.AuditInterval
	}
	return appCfg.DefaultAuditInterval
}
