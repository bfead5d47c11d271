package orchestrate

import (
	"context"
	"net/http"

	"github.com/sirupsen/logrus"

	"seo-audit/pkg/crawl"
	"seo-audit/pkg/fetch"
	"seo-audit/pkg/models"
	"seo-audit/pkg/sitemap"
)

// DefaultCrawlRunner builds a fresh crawler per run from the shared
// fetcher and probe client.
type DefaultCrawlRunner struct {
	fetcher     *fetch.Fetcher
	probeClient *http.Client
	batchSize   int
	log         *logrus.Logger
}

// NewDefaultCrawlRunner creates the production CrawlRunner.
func NewDefaultCrawlRunner(fetcher *fetch.Fetcher, probeClient *http.Client, batchSize int, log *logrus.Logger) *DefaultCrawlRunner {
	return &DefaultCrawlRunner{
		fetcher:     fetcher,
		probeClient: probeClient,
		batchSize:   batchSize,
		log:         log,
	}
}

// Crawl runs one crawl for the config.
func (r *DefaultCrawlRunner) Crawl(ctx context.Context, cfg models.CrawlConfig) []models.CrawlResult {
	discoverer := sitemap.NewDiscoverer(r.fetcher, r.probeClient, cfg.UserAgent, r.log)
	crawler := crawl.NewCrawler(cfg, r.fetcher, discoverer, r.batchSize, r.log)
	return crawler.Run(ctx)
}
