package rules

import "seo-audit/pkg/models"

// HealthReport is the site health summary derived from open issues.
type HealthReport struct {
	Score       int `json:"score"`
	HighCount   int `json:"high_count"`
	MediumCount int `json:"medium_count"`
	LowCount    int `json:"low_count"`
	OpenIssues  int `json:"open_issues"`
}

// CalculateHealthScore computes 100 - 10*high - 5*medium - 1*low over
// open issues only, clamped to [0, 100]. Resolved, ignored, and
// in-progress issues do not count against the score.
func CalculateHealthScore(issues []models.Issue) HealthReport {
	var report HealthReport
	for _, issue := range issues {
		if issue.Status != models.IssueStatusOpen {
			continue
		}
		report.OpenIssues++
		switch issue.Severity {
		case models.SeverityHigh:
			report.HighCount++
		case models.SeverityMedium:
			report.MediumCount++
		case models.SeverityLow:
			report.LowCount++
		}
	}

	score := 100 - 10*report.HighCount - 5*report.MediumCount - report.LowCount
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	report.Score = score
	return report
}
