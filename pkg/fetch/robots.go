package fetch

import (
	"context"
	"net/url"
	"time"

	"github.com/temoto/robotstxt"
)

// RobotsPolicy is a site's crawl policy derived from robots.txt, scoped
// to one user agent. A nil group means allow-all: the crawl must never be
// blocked by a failure to reach or parse the policy document.
type RobotsPolicy struct {
	group    *robotstxt.Group
	sitemaps []string
}

// PermissivePolicy returns an allow-all policy with no delay and no
// sitemap directives.
func PermissivePolicy() *RobotsPolicy {
	return &RobotsPolicy{}
}

// IsAllowed reports whether the policy permits fetching the given path.
func (p *RobotsPolicy) IsAllowed(path string) bool {
	if p == nil || p.group == nil {
		return true
	}
	return p.group.Test(path)
}

// CrawlDelay returns the declared crawl delay, or 0 when none applies.
func (p *RobotsPolicy) CrawlDelay(path string) time.Duration {
	if p == nil || p.group == nil {
		return 0
	}
	return p.group.CrawlDelay
}

// Sitemaps returns sitemap URLs declared in the policy document.
func (p *RobotsPolicy) Sitemaps() []string {
	if p == nil {
		return nil
	}
	return p.sitemaps
}

// FetchRobotsPolicy fetches and parses /robots.txt relative to baseURL.
// Any failure along the way (unreachable host, non-success status,
// unparseable content, bad base URL) degrades to a permissive policy.
func (f *Fetcher) FetchRobotsPolicy(ctx context.Context, baseURL, userAgent string) *RobotsPolicy {
	base, err := url.Parse(baseURL)
	if err != nil {
		f.log.Warnf("Invalid base URL for robots.txt %q: %v", baseURL, err)
		return PermissivePolicy()
	}
	robotsURL := &url.URL{Scheme: base.Scheme, Host: base.Host, Path: "/robots.txt"}
	robotsLog := f.log.WithField("robots_url", robotsURL.String())

	result := f.FetchPage(ctx, robotsURL.String(), userAgent)
	if result.StatusCode < 200 || result.StatusCode >= 300 {
		robotsLog.WithField("status", result.StatusCode).Info("robots.txt unavailable, allowing all paths")
		return PermissivePolicy()
	}

	data, err := robotstxt.FromString(result.HTML)
	if err != nil {
		robotsLog.Warnf("Failed to parse robots.txt: %v", err)
		return PermissivePolicy()
	}

	robotsLog.WithField("sitemaps", len(data.Sitemaps)).Debug("Parsed robots.txt")
	return &RobotsPolicy{
		group:    data.FindGroup(userAgent),
		sitemaps: data.Sitemaps,
	}
}
