package rules

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"seo-audit/pkg/models"
)

// --- Rule Catalog ---
//
// The base catalog every engine starts from. Order matters only for
// deterministic output; rules are independent of each other.

const (
	minDescriptionLength = 50
	maxDescriptionLength = 160
	slowPageThreshold    = 50
	lowSEOThreshold      = 80
	criticalSEOThreshold = 50
	openGraphLinkFloor   = 10
)

var contentURLPattern = regexp.MustCompile(`/(blog|news|articles?|products?|recipes?|events?)(/|$)`)

func baseCatalog() []Rule {
	return []Rule{
		{Name: "missing_title", Check: checkMissingTitle},
		{Name: "duplicate_title", Check: checkDuplicateTitle},
		{Name: "missing_description", Check: checkMissingDescription},
		{Name: "short_description", Check: checkShortDescription},
		{Name: "long_description", Check: checkLongDescription},
		{Name: "no_h1", Check: checkNoH1},
		{Name: "multiple_h1", Check: checkMultipleH1},
		{Name: "broken_page", Check: checkBrokenPage},
		{Name: "no_canonical_on_parameterized", Check: checkNoCanonicalOnParameterized},
		{Name: "slow_page", Check: checkSlowPage},
		{Name: "low_seo_score", Check: checkLowSEOScore},
		{Name: "no_structured_data", Check: checkNoStructuredData},
		{Name: "poor_heading_structure", Check: checkPoorHeadingStructure},
		{Name: "missing_open_graph", Check: checkMissingOpenGraph},
	}
}

func checkMissingTitle(ctx RuleContext) []models.Issue {
	var issues []models.Issue
	for _, page := range ctx.Pages {
		if !auditable(page) || strings.TrimSpace(page.Title) != "" {
			continue
		}
		issues = append(issues, pageIssue(ctx, "missing_title", models.SeverityHigh, page.URL,
			"Page has no title tag",
			"Search engines use the title tag as the primary headline in results. A page without one is severely handicapped in rankings.",
			"Add a unique, descriptive <title> tag of roughly 50-60 characters."))
	}
	return issues
}

// checkDuplicateTitle emits one site-wide issue per duplicated title,
// carrying the group size in affected_pages_count. Titles are matched
// case-insensitively; the first-seen casing is used in the summary.
func checkDuplicateTitle(ctx RuleContext) []models.Issue {
	byTitle := make(map[string][]string)
	displayTitle := make(map[string]string)
	for _, page := range ctx.Pages {
		title := strings.TrimSpace(page.Title)
		if !auditable(page) || title == "" {
			continue
		}
		key := strings.ToLower(title)
		if _, seen := displayTitle[key]; !seen {
			displayTitle[key] = title
		}
		byTitle[key] = append(byTitle[key], page.URL)
	}

	titles := make([]string, 0, len(byTitle))
	for title, urls := range byTitle {
		if len(urls) > 1 {
			titles = append(titles, title)
		}
	}
	sort.Strings(titles)

	var issues []models.Issue
	for _, title := range titles {
		urls := byTitle[title]
		issues = append(issues, siteIssue(ctx, "duplicate_title", models.SeverityMedium,
			fmt.Sprintf("%d pages share the title %q", len(urls), displayTitle[title]),
			"Duplicate titles make it hard for search engines to tell pages apart and dilute ranking signals across them. Affected: "+strings.Join(urls, ", "),
			"Give each page a unique title that describes its specific content.",
			len(urls)))
	}
	return issues
}

func checkMissingDescription(ctx RuleContext) []models.Issue {
	var issues []models.Issue
	for _, page := range ctx.Pages {
		if !auditable(page) || strings.TrimSpace(page.MetaDesc) != "" {
			continue
		}
		issues = append(issues, pageIssue(ctx, "missing_description", models.SeverityMedium, page.URL,
			"Page has no meta description",
			"Without a meta description, search engines pick an arbitrary text fragment for the result snippet, usually hurting click-through rate.",
			"Add a meta description of 50-160 characters summarizing the page."))
	}
	return issues
}

func checkShortDescription(ctx RuleContext) []models.Issue {
	var issues []models.Issue
	for _, page := range ctx.Pages {
		desc := strings.TrimSpace(page.MetaDesc)
		// Rune count, not bytes: multibyte descriptions are common here.
		length := utf8.RuneCountInString(desc)
		if !auditable(page) || desc == "" || length >= minDescriptionLength {
			continue
		}
		issues = append(issues, pageIssue(ctx, "short_description", models.SeverityMedium, page.URL,
			fmt.Sprintf("Meta description is only %d characters", length),
			"Very short descriptions waste snippet space and rarely convince searchers to click.",
			fmt.Sprintf("Expand the description to at least %d characters.", minDescriptionLength)))
	}
	return issues
}

func checkLongDescription(ctx RuleContext) []models.Issue {
	var issues []models.Issue
	for _, page := range ctx.Pages {
		desc := strings.TrimSpace(page.MetaDesc)
		length := utf8.RuneCountInString(desc)
		if !auditable(page) || length <= maxDescriptionLength {
			continue
		}
		issues = append(issues, pageIssue(ctx, "long_description", models.SeverityLow, page.URL,
			fmt.Sprintf("Meta description is %d characters", length),
			"Descriptions over ~160 characters get truncated in search results, cutting off the call to action.",
			fmt.Sprintf("Trim the description to at most %d characters.", maxDescriptionLength)))
	}
	return issues
}

func checkNoH1(ctx RuleContext) []models.Issue {
	var issues []models.Issue
	for _, page := range ctx.Pages {
		if !auditable(page) || strings.TrimSpace(page.H1) != "" {
			continue
		}
		issues = append(issues, pageIssue(ctx, "no_h1", models.SeverityHigh, page.URL,
			"Page has no H1 heading",
			"The H1 is the strongest on-page signal for what the page is about. Its absence weakens topical relevance.",
			"Add exactly one H1 containing the page's primary topic."))
	}
	return issues
}

func checkMultipleH1(ctx RuleContext) []models.Issue {
	var issues []models.Issue
	for _, page := range ctx.Pages {
		if !auditable(page) {
			continue
		}
		count := 0
		for _, heading := range page.Headings {
			if heading.Level == 1 {
				count++
			}
		}
		if count <= 1 {
			continue
		}
		issues = append(issues, pageIssue(ctx, "multiple_h1", models.SeverityMedium, page.URL,
			fmt.Sprintf("Page has %d H1 headings", count),
			"Multiple H1s blur the page's main topic for search engines and assistive technology.",
			"Keep a single H1 and demote the others to H2."))
	}
	return issues
}

func checkBrokenPage(ctx RuleContext) []models.Issue {
	var issues []models.Issue
	for _, page := range ctx.Pages {
		if page.HTTPStatus < 400 {
			continue
		}
		issues = append(issues, pageIssue(ctx, "broken_page", models.SeverityHigh, page.URL,
			fmt.Sprintf("Page returned HTTP %d", page.HTTPStatus),
			"Broken pages waste crawl budget, lose accumulated link equity, and frustrate visitors.",
			"Fix the page or redirect it to the closest working equivalent."))
	}
	return issues
}

func checkNoCanonicalOnParameterized(ctx RuleContext) []models.Issue {
	var issues []models.Issue
	for _, page := range ctx.Pages {
		if !auditable(page) || page.Canonical != "" {
			continue
		}
		u, err := url.Parse(page.URL)
		if err != nil || u.RawQuery == "" {
			continue
		}
		issues = append(issues, pageIssue(ctx, "no_canonical_on_parameterized", models.SeverityMedium, page.URL,
			"Parameterized URL has no canonical tag",
			"URLs with query parameters without a canonical tag create duplicate-content variants that compete with each other.",
			"Add a rel=canonical link pointing at the parameter-free version of the page."))
	}
	return issues
}

func checkSlowPage(ctx RuleContext) []models.Issue {
	var issues []models.Issue
	for _, page := range ctx.Pages {
		if page.Scores == nil || page.Scores.Performance >= slowPageThreshold {
			continue
		}
		issues = append(issues, pageIssue(ctx, "slow_page", models.SeverityMedium, page.URL,
			fmt.Sprintf("Performance score is %d", page.Scores.Performance),
			"Slow pages rank worse and convert worse. Core Web Vitals are a confirmed ranking factor.",
			"Compress images, defer non-critical scripts, and enable caching to raise the performance score above 50."))
	}
	return issues
}

func checkLowSEOScore(ctx RuleContext) []models.Issue {
	var issues []models.Issue
	for _, page := range ctx.Pages {
		if page.Scores == nil || page.Scores.SEO >= lowSEOThreshold {
			continue
		}
		severity := models.SeverityMedium
		if page.Scores.SEO < criticalSEOThreshold {
			severity = models.SeverityHigh
		}
		issues = append(issues, pageIssue(ctx, "low_seo_score", severity, page.URL,
			fmt.Sprintf("SEO score is %d", page.Scores.SEO),
			"The automated SEO audit found technical problems (crawlability, meta tags, mobile friendliness) on this page.",
			"Work through the failing audit items; aim for a score of 90 or above."))
	}
	return issues
}

func checkNoStructuredData(ctx RuleContext) []models.Issue {
	var issues []models.Issue
	for _, page := range ctx.Pages {
		if !auditable(page) || len(page.StructuredData) > 0 {
			continue
		}
		if !contentURLPattern.MatchString(strings.ToLower(page.URL)) {
			continue
		}
		issues = append(issues, pageIssue(ctx, "no_structured_data", models.SeverityLow, page.URL,
			"Content page has no structured data",
			"Articles and product pages without JSON-LD markup miss out on rich results like star ratings and article cards.",
			"Add JSON-LD structured data matching the page type (Article, Product, ...)."))
	}
	return issues
}

// checkPoorHeadingStructure flags pages whose heading outline skips
// levels: an H3 with no H2 anywhere, or an H1 immediately followed by
// an H3.
func checkPoorHeadingStructure(ctx RuleContext) []models.Issue {
	var issues []models.Issue
	for _, page := range ctx.Pages {
		if !auditable(page) || len(page.Headings) == 0 {
			continue
		}
		hasH2, hasH3 := false, false
		skipsLevel := false
		for i, heading := range page.Headings {
			switch heading.Level {
			case 2:
				hasH2 = true
			case 3:
				hasH3 = true
				if i > 0 && page.Headings[i-1].Level == 1 {
					skipsLevel = true
				}
			}
		}
		if !(hasH3 && !hasH2) && !skipsLevel {
			continue
		}
		summary := "Page uses H3 headings without any H2"
		if skipsLevel {
			summary = "Heading levels skip from H1 to H3"
		}
		issues = append(issues, pageIssue(ctx, "poor_heading_structure", models.SeverityLow, page.URL,
			summary,
			"A heading outline that skips levels is harder for search engines and screen readers to interpret.",
			"Nest headings sequentially: H1, then H2 sections, then H3 subsections."))
	}
	return issues
}

// checkMissingOpenGraph only fires for pages likely to be shared: the
// home page and pages with heavy inbound linking.
func checkMissingOpenGraph(ctx RuleContext) []models.Issue {
	var issues []models.Issue
	for _, page := range ctx.Pages {
		if !auditable(page) || page.HasOpenGraph {
			continue
		}
		if !isHomePage(page.URL) && page.LinksIn <= openGraphLinkFloor {
			continue
		}
		issues = append(issues, pageIssue(ctx, "missing_open_graph", models.SeverityLow, page.URL,
			"High-visibility page has no Open Graph tags",
			"Without Open Graph tags, shares on social platforms render with an arbitrary image and truncated text.",
			"Add og:title, og:description, and og:image meta tags."))
	}
	return issues
}

func isHomePage(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return u.Path == "" || u.Path == "/"
}
