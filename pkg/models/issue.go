package models

import "time"

// Issue is a single reported SEO defect, scoped to one page or site-wide
// (empty PageURL = site-wide).
type Issue struct {
	ID            string        `json:"id"`
	SiteID        string        `json:"site_id"`
	PageURL       string        `json:"page_url,omitempty"`
	Type          string        `json:"issue_type"`
	Severity      IssueSeverity `json:"severity"`
	Status        IssueStatus   `json:"status"`
	Summary       string        `json:"summary"`
	Description   string        `json:"description,omitempty"`
	FixHint       string        `json:"fix_hint,omitempty"`
	AffectedPages int           `json:"affected_pages_count"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// IssueKey is the composite identity used both for intra-pass
// deduplication in the rule engine and for the existing-issue check on
// batch insert. Keeping one typed key prevents the two checks drifting.
type IssueKey struct {
	SiteID  string
	Type    string
	PageURL string // empty for site-wide issues
}

// Key returns the issue's composite dedup key.
func (i Issue) Key() IssueKey {
	return IssueKey{SiteID: i.SiteID, Type: i.Type, PageURL: i.PageURL}
}
