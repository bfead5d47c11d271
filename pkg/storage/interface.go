package storage

import (
	"context"

	"seo-audit/pkg/models"
)

// IssueFilter narrows issue listings. Empty fields match everything.
type IssueFilter struct {
	Severity models.IssueSeverity
	Status   models.IssueStatus
	Type     string
}

// SnapshotStore persists per-(site, URL) page snapshots.
type SnapshotStore interface {
	// UpsertSnapshot inserts or replaces the snapshot for its (site, URL)
	// pair, preserving the original creation time on replace.
	UpsertSnapshot(ctx context.Context, snapshot *models.PageSnapshot) error
	GetSnapshotsBySite(ctx context.Context, siteID string) ([]models.PageSnapshot, error)
	DeleteSnapshotsBySite(ctx context.Context, siteID string) error
}

// IssueStore persists audit issues.
type IssueStore interface {
	// BatchInsertIssues inserts the issues that do not collide with an
	// existing non-resolved issue on (site, type, page URL). Resolved
	// issues do not block re-insertion; ignored ones do. Returns the
	// number of issues actually inserted.
	BatchInsertIssues(ctx context.Context, siteID string, issues []models.Issue) (int, error)
	GetIssuesBySite(ctx context.Context, siteID string, filter IssueFilter) ([]models.Issue, error)
	GetIssue(ctx context.Context, siteID, issueID string) (models.Issue, error)
	UpdateIssueStatus(ctx context.Context, siteID, issueID string, status models.IssueStatus) (models.Issue, error)
	// DeleteOpenIssuesBySite clears only open issues, keeping resolved,
	// ignored, and in-progress history across audits.
	DeleteOpenIssuesBySite(ctx context.Context, siteID string) error
	DeleteIssuesBySite(ctx context.Context, siteID string) error
}

// JobStore persists crawl job records. At most one non-terminal job may
// exist per site at a time.
type JobStore interface {
	// CreateJob creates a pending job for the site, failing with
	// ErrJobConflict when a non-terminal job already exists.
	CreateJob(ctx context.Context, siteID string) (models.CrawlJob, error)
	GetJob(ctx context.Context, jobID string) (models.CrawlJob, error)
	// GetLatestJobBySite returns the most recently created job for the
	// site, or ErrNotFound when the site has never been crawled.
	GetLatestJobBySite(ctx context.Context, siteID string) (models.CrawlJob, error)
	// UpdateJobStatus transitions the job. Moving to running stamps
	// StartedAt; moving to a terminal state stamps FinishedAt and frees
	// the site's active-job slot.
	UpdateJobStatus(ctx context.Context, jobID string, status models.JobStatus, errorMessage string) (models.CrawlJob, error)
}

// SiteStore persists per-site status records.
type SiteStore interface {
	UpsertSite(ctx context.Context, site *models.Site) error
	GetSite(ctx context.Context, siteID string) (models.Site, error)
	ListSites(ctx context.Context) ([]models.Site, error)
}

// Store is the full persistence contract the orchestrator and API
// depend on.
type Store interface {
	SnapshotStore
	IssueStore
	JobStore
	SiteStore
	Close() error
}
