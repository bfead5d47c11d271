package sitemap

import (
	"context"
	"encoding/xml"
	"net/http"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"

	"seo-audit/pkg/fetch"
	"seo-audit/pkg/parse"
)

// maxIndexDepth caps sitemap-index recursion. Real-world indexes are
// shallow; the cap guards against cyclic or adversarial documents.
const maxIndexDepth = 5

// conventionalPaths are probed in order when robots.txt declares no
// sitemaps; the first that exists wins.
var conventionalPaths = []string{
	"/sitemap.xml",
	"/sitemap_index.xml",
	"/sitemap-index.xml",
}

// Discoverer finds and parses a site's sitemaps into a flat URL list.
type Discoverer struct {
	fetcher   *fetch.Fetcher
	client    *http.Client // For lightweight HEAD existence probes
	userAgent string
	log       *logrus.Entry
}

// NewDiscoverer creates a Discoverer.
func NewDiscoverer(fetcher *fetch.Fetcher, client *http.Client, userAgent string, log *logrus.Logger) *Discoverer {
	return &Discoverer{
		fetcher:   fetcher,
		client:    client,
		userAgent: userAgent,
		log:       log.WithField("component", "sitemap"),
	}
}

// Discover returns candidate sitemap URLs for the site. Sitemaps declared
// in robots.txt take precedence; otherwise conventional paths are probed
// with HEAD requests, stopping at the first that exists. An empty result
// means the caller should fall back to link-following crawling.
func (d *Discoverer) Discover(ctx context.Context, baseURL string, policy *fetch.RobotsPolicy) []string {
	if declared := policy.Sitemaps(); len(declared) > 0 {
		d.log.WithField("count", len(declared)).Debug("Using sitemaps declared in robots.txt")
		return declared
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		d.log.Warnf("Invalid base URL %q: %v", baseURL, err)
		return nil
	}

	for _, path := range conventionalPaths {
		candidate := base.ResolveReference(&url.URL{Path: path}).String()
		if d.exists(ctx, candidate) {
			d.log.WithField("sitemap_url", candidate).Debug("Found sitemap at conventional path")
			return []string{candidate}
		}
	}
	return nil
}

// exists performs a HEAD probe for the URL.
func (d *Discoverer) exists(ctx context.Context, rawURL string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return false
	}
	req.Header.Set("User-Agent", d.userAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// ParseAll fetches and parses every sitemap URL, resolving sitemap
// indexes iteratively with a visited set and a depth cap. Page URLs are
// returned in document order. Any document that fails to fetch or parse
// contributes nothing; ParseAll never returns an error.
func (d *Discoverer) ParseAll(ctx context.Context, sitemapURLs []string) []string {
	type work struct {
		url   string
		depth int
	}

	var pageURLs []string
	visited := make(map[string]bool)

	frontier := make([]work, 0, len(sitemapURLs))
	for _, u := range sitemapURLs {
		frontier = append(frontier, work{url: u, depth: 0})
	}

	for len(frontier) > 0 {
		item := frontier[0]
		frontier = frontier[1:]

		if visited[item.url] {
			continue
		}
		visited[item.url] = true

		smLog := d.log.WithField("sitemap_url", item.url)
		if item.depth > maxIndexDepth {
			smLog.Warnf("Sitemap index depth cap (%d) exceeded, skipping", maxIndexDepth)
			continue
		}

		result := d.fetcher.FetchPage(ctx, item.url, d.userAgent)
		if result.StatusCode < 200 || result.StatusCode >= 300 {
			smLog.WithField("status", result.StatusCode).Warn("Sitemap fetch failed, skipping")
			continue
		}

		body := []byte(result.HTML)

		// A sitemap index references further sitemaps; queue them a level
		// deeper and in document order, ahead of any sibling work so the
		// flattened URL list preserves index order.
		var index parse.XMLSitemapIndex
		if err := xml.Unmarshal(body, &index); err == nil && len(index.Sitemaps) > 0 {
			smLog.WithField("references", len(index.Sitemaps)).Debug("Parsed as sitemap index")
			children := make([]work, 0, len(index.Sitemaps))
			for _, entry := range index.Sitemaps {
				loc := strings.TrimSpace(entry.Loc)
				if loc == "" {
					continue
				}
				if _, err := url.ParseRequestURI(loc); err != nil {
					smLog.Warnf("Invalid nested sitemap URL %q: %v", loc, err)
					continue
				}
				children = append(children, work{url: loc, depth: item.depth + 1})
			}
			frontier = append(children, frontier...)
			continue
		}

		var urlSet parse.XMLURLSet
		if err := xml.Unmarshal(body, &urlSet); err != nil {
			smLog.Warnf("Content is neither a sitemap index nor a URL set: %v", err)
			continue
		}

		smLog.WithField("urls", len(urlSet.URLs)).Debug("Parsed as URL set")
		for _, entry := range urlSet.URLs {
			loc := strings.TrimSpace(entry.Loc)
			if loc == "" {
				continue
			}
			pageURLs = append(pageURLs, loc)
		}
	}

	return pageURLs
}
