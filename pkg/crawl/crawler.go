package crawl

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"seo-audit/pkg/extract"
	"seo-audit/pkg/fetch"
	"seo-audit/pkg/models"
	"seo-audit/pkg/parse"
	"seo-audit/pkg/sitemap"
)

// Crawler drives one crawl run: sitemap-seeded when the site publishes a
// usable sitemap, breadth-first link following otherwise. Results are
// capped at the config's page limit and preserve sitemap document order
// or strict BFS level order, never fetch-completion order.
type Crawler struct {
	cfg        models.CrawlConfig
	fetcher    *fetch.Fetcher
	discoverer *sitemap.Discoverer
	batchSize  int
	log        *logrus.Entry

	policy *fetch.RobotsPolicy
}

// NewCrawler creates a Crawler for a single run.
func NewCrawler(cfg models.CrawlConfig, fetcher *fetch.Fetcher, discoverer *sitemap.Discoverer, batchSize int, log *logrus.Logger) *Crawler {
	if batchSize <= 0 {
		batchSize = 5
	}
	return &Crawler{
		cfg:        cfg,
		fetcher:    fetcher,
		discoverer: discoverer,
		batchSize:  batchSize,
		log:        log.WithField("component", "crawler"),
	}
}

// Run executes the crawl and returns one CrawlResult per attempted URL.
// Context cancellation between batches returns the partial results
// collected so far rather than an error.
func (c *Crawler) Run(ctx context.Context) []models.CrawlResult {
	c.policy = fetch.PermissivePolicy()
	if c.cfg.RespectRobots {
		c.policy = c.fetcher.FetchRobotsPolicy(ctx, c.cfg.URL, c.cfg.UserAgent)
	}

	sitemapURLs := c.discoverer.Discover(ctx, c.cfg.URL, c.policy)
	if len(sitemapURLs) > 0 {
		pageURLs := c.discoverer.ParseAll(ctx, sitemapURLs)
		if len(pageURLs) > 0 {
			c.log.WithField("urls", len(pageURLs)).Info("Sitemap found, using sitemap-seeded crawl")
			return c.crawlFromSitemap(ctx, pageURLs)
		}
	}

	c.log.Info("No usable sitemap, using BFS crawl")
	return c.crawlBFS(ctx)
}

// crawlFromSitemap fetches the deduplicated sitemap URLs in document
// order, batch by batch.
func (c *Crawler) crawlFromSitemap(ctx context.Context, pageURLs []string) []models.CrawlResult {
	seen := make(map[string]bool)
	unique := make([]string, 0, len(pageURLs))
	for _, pageURL := range pageURLs {
		key := pageURL
		if normalized, _, err := parse.ParseAndNormalize(pageURL); err == nil {
			key = normalized
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		unique = append(unique, pageURL)
		if len(unique) >= c.cfg.PageLimit {
			break
		}
	}

	var results []models.CrawlResult
	for start := 0; start < len(unique); start += c.batchSize {
		if ctx.Err() != nil {
			c.log.Warnf("Context cancelled mid-crawl, returning %d partial results", len(results))
			return results
		}
		end := start + c.batchSize
		if end > len(unique) {
			end = len(unique)
		}
		results = append(results, c.fetchBatch(ctx, unique[start:end])...)
		if len(results) >= c.cfg.PageLimit {
			break
		}
	}
	return results
}

// crawlBFS walks same-hostname links level by level from the seed URL.
// A level must finish before the next level's frontier is computed.
func (c *Crawler) crawlBFS(ctx context.Context) []models.CrawlResult {
	seedHost := hostnameOf(c.cfg.URL)

	var results []models.CrawlResult
	visited := make(map[string]bool)
	frontier := []string{c.cfg.URL}

	for depth := 0; len(frontier) > 0 && len(results) < c.cfg.PageLimit; depth++ {
		if depth > c.cfg.CrawlDepthLimit {
			c.log.WithField("depth", depth).Warn("Depth limit reached, stopping BFS")
			break
		}
		if ctx.Err() != nil {
			c.log.Warnf("Context cancelled mid-crawl, returning %d partial results", len(results))
			return results
		}

		// Collect this level's unvisited URLs in discovery order.
		level := make([]string, 0, len(frontier))
		for _, pageURL := range frontier {
			key := visitKey(pageURL)
			if visited[key] {
				continue
			}
			visited[key] = true
			level = append(level, pageURL)
			if len(results)+len(level) >= c.cfg.PageLimit {
				break
			}
		}
		frontier = frontier[:0]

		for start := 0; start < len(level); start += c.batchSize {
			end := start + c.batchSize
			if end > len(level) {
				end = len(level)
			}
			batch := c.fetchBatch(ctx, level[start:end])

			for _, result := range batch {
				results = append(results, result)

				// Only successful pages contribute links to the next level.
				if result.StatusCode < 200 || result.StatusCode >= 300 || result.HTML == "" {
					continue
				}
				parsed := extract.ParseHTML(result.HTML, result.URL)
				for _, link := range parsed.InternalLinks {
					if hostnameOf(link) != seedHost {
						continue
					}
					if !visited[visitKey(link)] {
						frontier = append(frontier, link)
					}
				}
			}
		}
	}

	return results
}

// fetchBatch fetches a slice of URLs concurrently, bounded by the batch
// size, and returns results in input order.
func (c *Crawler) fetchBatch(ctx context.Context, urls []string) []models.CrawlResult {
	results := make([]models.CrawlResult, len(urls))
	sem := semaphore.NewWeighted(int64(c.batchSize))

	var wg sync.WaitGroup
	for i, pageURL := range urls {
		if err := sem.Acquire(ctx, 1); err != nil {
			results[i] = models.CrawlResult{URL: pageURL, StatusCode: 0, Error: err.Error()}
			continue
		}
		wg.Add(1)
		go func(idx int, target string) {
			defer wg.Done()
			defer sem.Release(1)
			results[idx] = c.crawlPage(ctx, target)
		}(i, pageURL)
	}
	wg.Wait()
	return results
}

// crawlPage fetches one URL, consulting the robots policy first. A
// disallowed path yields a synthetic 403 without any network call; a
// declared crawl delay is honored before the fetch.
func (c *Crawler) crawlPage(ctx context.Context, pageURL string) models.CrawlResult {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return models.CrawlResult{URL: pageURL, StatusCode: 0, Error: err.Error()}
	}

	path := parsed.Path
	if path == "" {
		path = "/"
	}
	if !c.policy.IsAllowed(path) {
		c.log.WithField("url", pageURL).Debug("Disallowed by robots.txt, skipping fetch")
		return models.CrawlResult{
			URL:        pageURL,
			StatusCode: 403,
			Error:      "Disallowed by robots.txt",
		}
	}

	if delay := c.policy.CrawlDelay(path); delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return models.CrawlResult{URL: pageURL, StatusCode: 0, Error: ctx.Err().Error()}
		}
	}

	return c.fetcher.FetchPage(ctx, pageURL, c.cfg.UserAgent)
}

func hostnameOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

func visitKey(rawURL string) string {
	if normalized, _, err := parse.ParseAndNormalize(rawURL); err == nil {
		return normalized
	}
	return rawURL
}
