package rules

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seo-audit/pkg/models"
)

func testEngine() *Engine {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewEngine(logger)
}

func okPage(url string) models.PageSnapshot {
	return models.PageSnapshot{
		SiteID:     "site-1",
		URL:        url,
		HTTPStatus: 200,
		Title:      "Title for " + url,
		MetaDesc:   "A description that is comfortably long enough to pass the minimum.",
		H1:         "Heading",
		Headings:   []models.Heading{{Level: 1, Text: "Heading"}},
	}
}

func TestEngineRunIdempotent(t *testing.T) {
	engine := testEngine()
	ruleCtx := RuleContext{SiteID: "site-1", Pages: []models.PageSnapshot{
		okPage("https://example.com/"),
		{SiteID: "site-1", URL: "https://example.com/bad", HTTPStatus: 200},
	}}

	first := engine.Run(context.Background(), ruleCtx)
	second := engine.Run(context.Background(), ruleCtx)

	assert.Equal(t, first, second, "same input produces the same issues")
	assert.NotEmpty(t, first)
}

func TestEngineDeduplicatesByKey(t *testing.T) {
	duplicator := Rule{Name: "dup", Check: func(ctx RuleContext) []models.Issue {
		issue := models.Issue{
			SiteID: ctx.SiteID, Type: "missing_title",
			PageURL: "https://example.com/bad", Severity: models.SeverityLow,
			Status: models.IssueStatusOpen, Summary: "late duplicate",
		}
		return []models.Issue{issue}
	}}

	engine := testEngine().WithRules(duplicator)
	issues := engine.Run(context.Background(), RuleContext{SiteID: "site-1", Pages: []models.PageSnapshot{
		{SiteID: "site-1", URL: "https://example.com/bad", HTTPStatus: 200,
			MetaDesc: "A description that is comfortably long enough to pass the minimum.",
			H1:       "h", Headings: []models.Heading{{Level: 1, Text: "h"}}},
	}})

	var matches []models.Issue
	for _, issue := range issues {
		if issue.Type == "missing_title" {
			matches = append(matches, issue)
		}
	}
	require.Len(t, matches, 1)
	assert.Equal(t, models.SeverityHigh, matches[0].Severity, "first occurrence wins")
}

func TestEngineRecoversFromPanickingRule(t *testing.T) {
	bomb := Rule{Name: "bomb", Check: func(ctx RuleContext) []models.Issue {
		panic("rule exploded")
	}}
	witness := Rule{Name: "witness", Check: func(ctx RuleContext) []models.Issue {
		return []models.Issue{{SiteID: ctx.SiteID, Type: "witness", Status: models.IssueStatusOpen}}
	}}

	issues := testEngine().WithRules(bomb, witness).Run(context.Background(),
		RuleContext{SiteID: "site-1", Pages: []models.PageSnapshot{okPage("https://example.com/")}})

	found := false
	for _, issue := range issues {
		if issue.Type == "witness" {
			found = true
		}
	}
	assert.True(t, found, "rules after the panic still run")
}

func TestWithRulesDoesNotMutateBase(t *testing.T) {
	base := testEngine()
	baseCount := len(base.RuleNames())

	extended := base.WithRules(Rule{Name: "extra", Check: func(RuleContext) []models.Issue { return nil }})

	assert.Len(t, base.RuleNames(), baseCount, "base engine unchanged")
	assert.Len(t, extended.RuleNames(), baseCount+1)
	assert.Equal(t, "extra", extended.RuleNames()[baseCount])
}

func TestEngineEmitsOpenIssuesForSite(t *testing.T) {
	issues := testEngine().Run(context.Background(), RuleContext{
		SiteID: "site-9",
		Pages:  []models.PageSnapshot{{SiteID: "site-9", URL: "https://example.com/x", HTTPStatus: 404}},
	})

	require.NotEmpty(t, issues)
	for _, issue := range issues {
		assert.Equal(t, "site-9", issue.SiteID)
		assert.Equal(t, models.IssueStatusOpen, issue.Status)
	}
}
