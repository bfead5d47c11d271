package rules

import "seo-audit/pkg/models"

// RuleContext is the read-only input to a rule run: the site identity
// and the full snapshot set from the latest crawl.
type RuleContext struct {
	SiteID string
	Pages  []models.PageSnapshot
}

// Rule is one named audit check. Check must be a pure function of the
// context; it reports zero or more issues and never mutates Pages.
type Rule struct {
	Name  string
	Check func(ctx RuleContext) []models.Issue
}

// pageIssue builds an issue scoped to a single page.
func pageIssue(ctx RuleContext, issueType string, severity models.IssueSeverity, pageURL, summary, description, fixHint string) models.Issue {
	return models.Issue{
		SiteID:        ctx.SiteID,
		PageURL:       pageURL,
		Type:          issueType,
		Severity:      severity,
		Status:        models.IssueStatusOpen,
		Summary:       summary,
		Description:   description,
		FixHint:       fixHint,
		AffectedPages: 1,
	}
}

// siteIssue builds a site-wide issue (empty page URL) covering a group
// of pages.
func siteIssue(ctx RuleContext, issueType string, severity models.IssueSeverity, summary, description, fixHint string, affected int) models.Issue {
	return models.Issue{
		SiteID:        ctx.SiteID,
		Type:          issueType,
		Severity:      severity,
		Status:        models.IssueStatusOpen,
		Summary:       summary,
		Description:   description,
		FixHint:       fixHint,
		AffectedPages: affected,
	}
}

// auditable reports whether a snapshot's content fields are meaningful.
// Broken pages get their own rule; content rules skip them.
func auditable(page models.PageSnapshot) bool {
	return page.HTTPStatus >= 200 && page.HTTPStatus < 300
}
