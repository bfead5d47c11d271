package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seo-audit/pkg/models"
	"seo-audit/pkg/storage"
	"seo-audit/pkg/utils"
)

type fakeScheduler struct {
	lastSiteID string
	lastURL    string
	lastTier   string
	err        error
}

func (s *fakeScheduler) ScheduleCrawl(_ context.Context, siteID, siteURL, planTier string) (models.CrawlJob, error) {
	s.lastSiteID, s.lastURL, s.lastTier = siteID, siteURL, planTier
	if s.err != nil {
		return models.CrawlJob{}, s.err
	}
	return models.CrawlJob{ID: "job-1", SiteID: siteID, Status: models.JobStatusPending}, nil
}

func testServer(t *testing.T) (*httptest.Server, storage.Store, *fakeScheduler) {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	store, err := storage.NewBadgerStore("", logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	scheduler := &fakeScheduler{}
	server := httptest.NewServer(NewServer(store, scheduler, logger).Router())
	t.Cleanup(server.Close)
	return server, store, scheduler
}

func doJSON(t *testing.T, method, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func TestScheduleCrawlEndpoint(t *testing.T) {
	server, _, scheduler := testServer(t)

	resp, body := doJSON(t, http.MethodPost, server.URL+"/sites/site-1/crawl",
		`{"url": "https://example.com", "plan_tier": "pro"}`)

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "job-1", body["id"])
	assert.Equal(t, "site-1", scheduler.lastSiteID)
	assert.Equal(t, "https://example.com", scheduler.lastURL)
	assert.Equal(t, "pro", scheduler.lastTier)
}

func TestScheduleCrawlConflictMapsTo409(t *testing.T) {
	server, _, scheduler := testServer(t)
	scheduler.err = utils.ErrJobConflict

	resp, _ := doJSON(t, http.MethodPost, server.URL+"/sites/site-1/crawl", `{"url": "https://example.com"}`)

	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestScheduleCrawlBadBody(t *testing.T) {
	server, _, _ := testServer(t)

	resp, _ := doJSON(t, http.MethodPost, server.URL+"/sites/site-1/crawl", `{truncated`)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCrawlStatusEndpoint(t *testing.T) {
	server, store, _ := testServer(t)
	ctx := context.Background()

	resp, _ := doJSON(t, http.MethodGet, server.URL+"/sites/site-1/crawl/status", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "unknown site")

	now := time.Now().UTC()
	site := models.Site{ID: "site-1", URL: "https://example.com",
		Status: models.SiteStatusReady, LastCrawledAt: &now, FirstAuditDone: true}
	require.NoError(t, store.UpsertSite(ctx, &site))
	job, err := store.CreateJob(ctx, "site-1")
	require.NoError(t, err)

	resp, body := doJSON(t, http.MethodGet, server.URL+"/sites/site-1/crawl/status", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	siteBody := body["site"].(map[string]any)
	assert.Equal(t, "ready", siteBody["status"])
	jobBody := body["job"].(map[string]any)
	assert.Equal(t, job.ID, jobBody["id"])
	assert.Equal(t, "pending", jobBody["status"])
}

func TestListIssuesEndpoint(t *testing.T) {
	server, store, _ := testServer(t)
	ctx := context.Background()

	_, err := store.BatchInsertIssues(ctx, "site-1", []models.Issue{
		{SiteID: "site-1", Type: "missing_title", PageURL: "https://example.com/a",
			Severity: models.SeverityHigh, Status: models.IssueStatusOpen},
		{SiteID: "site-1", Type: "long_description", PageURL: "https://example.com/a",
			Severity: models.SeverityLow, Status: models.IssueStatusOpen},
	})
	require.NoError(t, err)

	resp, body := doJSON(t, http.MethodGet, server.URL+"/sites/site-1/issues", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["issues"], 2)

	resp, body = doJSON(t, http.MethodGet, server.URL+"/sites/site-1/issues?severity=high", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	issues := body["issues"].([]any)
	require.Len(t, issues, 1)
	assert.Equal(t, "missing_title", issues[0].(map[string]any)["issue_type"])

	resp, body = doJSON(t, http.MethodGet, server.URL+"/sites/other/issues", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["issues"], 0, "empty list, not null")
}

func TestUpdateIssueStatusEndpoint(t *testing.T) {
	server, store, _ := testServer(t)
	ctx := context.Background()

	_, err := store.BatchInsertIssues(ctx, "site-1", []models.Issue{
		{SiteID: "site-1", Type: "no_h1", PageURL: "https://example.com/a",
			Severity: models.SeverityHigh, Status: models.IssueStatusOpen},
	})
	require.NoError(t, err)
	issues, err := store.GetIssuesBySite(ctx, "site-1", storage.IssueFilter{})
	require.NoError(t, err)
	issueID := issues[0].ID

	resp, body := doJSON(t, http.MethodPatch, server.URL+"/sites/site-1/issues/"+issueID,
		`{"status": "resolved"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "resolved", body["status"])

	resp, _ = doJSON(t, http.MethodPatch, server.URL+"/sites/site-1/issues/"+issueID,
		`{"status": "bogus"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodPatch, server.URL+"/sites/site-1/issues/nope",
		`{"status": "ignored"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealthEndpoint(t *testing.T) {
	server, store, _ := testServer(t)
	ctx := context.Background()

	_, err := store.BatchInsertIssues(ctx, "site-1", []models.Issue{
		{SiteID: "site-1", Type: "missing_title", PageURL: "https://example.com/a",
			Severity: models.SeverityHigh, Status: models.IssueStatusOpen},
		{SiteID: "site-1", Type: "slow_page", PageURL: "https://example.com/a",
			Severity: models.SeverityMedium, Status: models.IssueStatusOpen},
	})
	require.NoError(t, err)

	resp, body := doJSON(t, http.MethodGet, server.URL+"/sites/site-1/health", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 85, body["score"])
	assert.EqualValues(t, 1, body["high_count"])
	assert.EqualValues(t, 1, body["medium_count"])

	resp, body = doJSON(t, http.MethodGet, server.URL+"/sites/empty/health", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 100, body["score"])
}
