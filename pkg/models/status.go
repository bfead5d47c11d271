package models

// JobStatus represents the current state of a crawl job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// IsTerminal reports whether the job can no longer change state.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// SiteStatus mirrors the outcome of the site's latest crawl job.
type SiteStatus string

const (
	SiteStatusPending  SiteStatus = "pending"
	SiteStatusCrawling SiteStatus = "crawling"
	SiteStatusReady    SiteStatus = "ready"
	SiteStatusFailed   SiteStatus = "failed"
)

// IssueSeverity ranks how much an issue hurts the health score.
type IssueSeverity string

const (
	SeverityHigh   IssueSeverity = "high"
	SeverityMedium IssueSeverity = "medium"
	SeverityLow    IssueSeverity = "low"
)

// IssueStatus is driven only by the external collaborator (UI);
// the rule engine always emits issues as open.
type IssueStatus string

const (
	IssueStatusOpen       IssueStatus = "open"
	IssueStatusInProgress IssueStatus = "in_progress"
	IssueStatusResolved   IssueStatus = "resolved"
	IssueStatusIgnored    IssueStatus = "ignored"
)

// ValidIssueStatus reports whether s is one of the known issue states.
func ValidIssueStatus(s IssueStatus) bool {
	switch s {
	case IssueStatusOpen, IssueStatusInProgress, IssueStatusResolved, IssueStatusIgnored:
		return true
	}
	return false
}
