package models

import "time"

// CrawlConfig describes a single crawl run. Immutable once the run starts.
type CrawlConfig struct {
	URL             string
	PageLimit       int
	CrawlDepthLimit int
	UserAgent       string
	RespectRobots   bool
}

// CrawlResult is the outcome of one fetch attempt.
// StatusCode 0 means the request never produced an HTTP response
// (timeout, DNS failure, connection reset after all retries).
type CrawlResult struct {
	URL        string
	StatusCode int
	HTML       string
	Headers    map[string]string
	Error      string
}

// Heading is one H1-H6 element in document order.
type Heading struct {
	Level int    `json:"level"`
	Text  string `json:"text"`
}

// ImageRef is an <img> with its resolved src and alt text.
type ImageRef struct {
	Src string `json:"src"`
	Alt string `json:"alt,omitempty"`
}

// StructuredData is one JSON-LD block found on a page.
type StructuredData struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// ParsedPage is the structured extraction of one HTML document.
// All fields degrade to zero values when absent; extraction never fails.
type ParsedPage struct {
	URL            string
	Title          string
	MetaDesc       string
	H1             string
	Headings       []Heading
	InternalLinks  []string
	ExternalLinks  []string
	Images         []ImageRef
	Canonical      string
	Noindex        bool
	HasOpenGraph   bool
	StructuredData []StructuredData
}

// PerfScores holds normalized 0-100 scores from the external performance
// scorer plus raw Core Web Vitals metrics when the API reported them.
type PerfScores struct {
	Performance   int      `json:"performance"`
	SEO           int      `json:"seo"`
	Accessibility *int     `json:"accessibility,omitempty"`
	BestPractices *int     `json:"best_practices,omitempty"`
	LCPMillis     *int     `json:"lcp_ms,omitempty"`
	FIDMillis     *int     `json:"fid_ms,omitempty"`
	CLS           *float64 `json:"cls,omitempty"`
}

// PageSnapshot is the persisted per-(site, URL) merge of the latest
// extraction. Upserted on every crawl; only bulk-deleted when a site's
// crawl is fully re-run.
type PageSnapshot struct {
	ID             string           `json:"id"`
	SiteID         string           `json:"site_id"`
	URL            string           `json:"url"`
	HTTPStatus     int              `json:"http_status"`
	Title          string           `json:"title,omitempty"`
	MetaDesc       string           `json:"meta_description,omitempty"`
	H1             string           `json:"h1,omitempty"`
	Headings       []Heading        `json:"headings,omitempty"`
	LinksIn        int              `json:"links_in"`
	LinksOut       int              `json:"links_out"`
	Canonical      string           `json:"canonical,omitempty"`
	Noindex        bool             `json:"noindex,omitempty"`
	HasOpenGraph   bool             `json:"has_open_graph,omitempty"`
	StructuredData []StructuredData `json:"structured_data,omitempty"`
	Scores         *PerfScores      `json:"scores,omitempty"`
	LastCrawledAt  time.Time        `json:"last_crawled_at"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// Site is the per-site status record mirrored from job outcomes.
// FirstAuditDone is set exactly once, on the first completed audit.
type Site struct {
	ID             string     `json:"id"`
	URL            string     `json:"url"`
	Status         SiteStatus `json:"status"`
	LastCrawledAt  *time.Time `json:"last_crawled_at,omitempty"`
	FirstAuditDone bool       `json:"first_audit_done"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// CrawlJob tracks one crawl-and-audit execution for a site.
// FinishedAt is non-nil if and only if Status is terminal.
type CrawlJob struct {
	ID           string     `json:"id"`
	SiteID       string     `json:"site_id"`
	Status       JobStatus  `json:"status"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// JobMessage is the queue payload for one crawl job.
type JobMessage struct {
	SiteID     string `json:"site_id"`
	CrawlJobID string `json:"crawl_job_id"`
	URL        string `json:"url"`
	PlanTier   string `json:"plan_tier"`
}
