package orchestrate

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seo-audit/pkg/config"
	"seo-audit/pkg/models"
	"seo-audit/pkg/rules"
	"seo-audit/pkg/storage"
	"seo-audit/pkg/utils"
)

// --- Fakes ---

type fakeQueue struct {
	enqueued   []models.JobMessage
	enqueueErr error
}

func (q *fakeQueue) Enqueue(_ context.Context, msg models.JobMessage) error {
	if q.enqueueErr != nil {
		return q.enqueueErr
	}
	q.enqueued = append(q.enqueued, msg)
	return nil
}

type fakeRunner struct {
	results []models.CrawlResult
	calls   int
	panics  bool
}

func (r *fakeRunner) Crawl(_ context.Context, _ models.CrawlConfig) []models.CrawlResult {
	r.calls++
	if r.panics {
		panic("runner exploded")
	}
	return r.results
}

type fakeScorer struct {
	scores map[string]*models.PerfScores
}

func (s *fakeScorer) Enabled() bool { return s.scores != nil }

func (s *fakeScorer) ScoreBatch(_ context.Context, urls []string) map[string]*models.PerfScores {
	out := make(map[string]*models.PerfScores, len(urls))
	for _, u := range urls {
		out[u] = s.scores[u]
	}
	return out
}

type fakeNotifier struct {
	notified []string
}

func (n *fakeNotifier) NotifyFirstAuditComplete(_ context.Context, siteID string) error {
	n.notified = append(n.notified, siteID)
	return nil
}

type fakeDelivery struct {
	msg     models.JobMessage
	acked   bool
	retried bool
}

func (d *fakeDelivery) Payload() models.JobMessage    { return d.msg }
func (d *fakeDelivery) Ack(context.Context) error     { d.acked = true; return nil }
func (d *fakeDelivery) Retry(context.Context) error   { d.retried = true; return nil }

// oneShotSource hands out one batch, then cancels the consumer.
type oneShotSource struct {
	batch  []Delivery
	cancel context.CancelFunc
	served bool
}

func (s *oneShotSource) Receive(context.Context) ([]Delivery, error) {
	if s.served {
		s.cancel()
		return nil, nil
	}
	s.served = true
	return s.batch, nil
}

type fixture struct {
	svc      *Service
	store    storage.Store
	queue    *fakeQueue
	runner   *fakeRunner
	scorer   *fakeScorer
	notifier *fakeNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	store, err := storage.NewBadgerStore("", logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cfg := &config.AppConfig{}
	_, err = cfg.Validate()
	require.NoError(t, err)

	f := &fixture{
		store:    store,
		queue:    &fakeQueue{},
		runner:   &fakeRunner{},
		scorer:   &fakeScorer{},
		notifier: &fakeNotifier{},
	}
	f.svc = NewService(store, f.queue, f.runner, f.scorer, f.notifier, rules.NewEngine(logger), cfg, logger)
	return f
}

func htmlResult(url, title string) models.CrawlResult {
	return models.CrawlResult{
		URL:        url,
		StatusCode: 200,
		HTML: fmt.Sprintf(`<html><head><title>%s</title>
			<meta name="description" content="A perfectly reasonable description for this page here.">
			</head><body><h1>%s</h1></body></html>`, title, title),
	}
}

// --- Scheduling ---

func TestScheduleCrawl(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	job, err := f.svc.ScheduleCrawl(ctx, "site-1", "https://example.com", "basic")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, job.Status)

	require.Len(t, f.queue.enqueued, 1)
	msg := f.queue.enqueued[0]
	assert.Equal(t, "site-1", msg.SiteID)
	assert.Equal(t, job.ID, msg.CrawlJobID)
	assert.Equal(t, "https://example.com", msg.URL)
	assert.Equal(t, "basic", msg.PlanTier)

	site, err := f.store.GetSite(ctx, "site-1")
	require.NoError(t, err)
	assert.Equal(t, models.SiteStatusPending, site.Status)
}

func TestScheduleCrawlConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.ScheduleCrawl(ctx, "site-1", "https://example.com", "basic")
	require.NoError(t, err)

	_, err = f.svc.ScheduleCrawl(ctx, "site-1", "https://example.com", "basic")
	assert.ErrorIs(t, err, utils.ErrJobConflict)
	assert.Len(t, f.queue.enqueued, 1, "conflicting schedule enqueues nothing")
}

func TestScheduleCrawlEnqueueFailureFailsJob(t *testing.T) {
	f := newFixture(t)
	f.queue.enqueueErr = errors.New("redis down")
	ctx := context.Background()

	_, err := f.svc.ScheduleCrawl(ctx, "site-1", "https://example.com", "basic")
	require.Error(t, err)

	job, err := f.store.GetLatestJobBySite(ctx, "site-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	require.NotNil(t, job.FinishedAt)
	assert.Contains(t, job.ErrorMessage, "redis down")

	// The failed job must not block the next schedule attempt.
	f.queue.enqueueErr = nil
	_, err = f.svc.ScheduleCrawl(ctx, "site-1", "https://example.com", "basic")
	assert.NoError(t, err)
}

// --- Pipeline ---

func scheduleAndGetMessage(t *testing.T, f *fixture) models.JobMessage {
	t.Helper()
	_, err := f.svc.ScheduleCrawl(context.Background(), "site-1", "https://example.com", "basic")
	require.NoError(t, err)
	require.Len(t, f.queue.enqueued, 1)
	return f.queue.enqueued[0]
}

func TestProcessMessageHappyPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.runner.results = []models.CrawlResult{
		htmlResult("https://example.com/", "Home"),
		htmlResult("https://example.com/about", "About"),
		{URL: "https://example.com/gone", StatusCode: 404, Error: "HTTP 404"},
	}
	msg := scheduleAndGetMessage(t, f)

	require.NoError(t, f.svc.ProcessMessage(ctx, msg))

	job, err := f.store.GetJob(ctx, msg.CrawlJobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	require.NotNil(t, job.FinishedAt)

	site, err := f.store.GetSite(ctx, "site-1")
	require.NoError(t, err)
	assert.Equal(t, models.SiteStatusReady, site.Status)
	assert.True(t, site.FirstAuditDone)
	require.NotNil(t, site.LastCrawledAt)

	snapshots, err := f.store.GetSnapshotsBySite(ctx, "site-1")
	require.NoError(t, err)
	assert.Len(t, snapshots, 3)

	issues, err := f.store.GetIssuesBySite(ctx, "site-1", storage.IssueFilter{})
	require.NoError(t, err)
	var types []string
	for _, issue := range issues {
		types = append(types, issue.Type)
	}
	assert.Contains(t, types, "broken_page")

	assert.Equal(t, []string{"site-1"}, f.notifier.notified)
}

func TestProcessMessageNotifiesFirstAuditOnlyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.runner.results = []models.CrawlResult{htmlResult("https://example.com/", "Home")}

	msg := scheduleAndGetMessage(t, f)
	require.NoError(t, f.svc.ProcessMessage(ctx, msg))

	f.queue.enqueued = nil
	msg2 := scheduleAndGetMessage(t, f)
	require.NoError(t, f.svc.ProcessMessage(ctx, msg2))

	assert.Equal(t, []string{"site-1"}, f.notifier.notified, "second audit does not re-notify")
}

func TestProcessMessageEmptyCrawlFailsJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.runner.results = nil

	msg := scheduleAndGetMessage(t, f)
	err := f.svc.ProcessMessage(ctx, msg)
	require.Error(t, err)

	job, jobErr := f.store.GetJob(ctx, msg.CrawlJobID)
	require.NoError(t, jobErr)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	require.NotNil(t, job.FinishedAt, "failed jobs are still finished")
	assert.Equal(t, "crawl produced no results", job.ErrorMessage)

	site, siteErr := f.store.GetSite(ctx, "site-1")
	require.NoError(t, siteErr)
	assert.Equal(t, models.SiteStatusFailed, site.Status)
	assert.Empty(t, f.notifier.notified)
}

func TestProcessMessagePanicFailsJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.runner.panics = true

	msg := scheduleAndGetMessage(t, f)
	err := f.svc.ProcessMessage(ctx, msg)
	require.Error(t, err)

	job, jobErr := f.store.GetJob(ctx, msg.CrawlJobID)
	require.NoError(t, jobErr)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Contains(t, job.ErrorMessage, "internal error")
}

func TestProcessMessageDropsTerminalJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.runner.results = []models.CrawlResult{htmlResult("https://example.com/", "Home")}

	msg := scheduleAndGetMessage(t, f)
	require.NoError(t, f.svc.ProcessMessage(ctx, msg))
	require.Equal(t, 1, f.runner.calls)

	// Redelivery of the same message is a no-op.
	require.NoError(t, f.svc.ProcessMessage(ctx, msg))
	assert.Equal(t, 1, f.runner.calls, "terminal job never re-crawled")
}

func TestProcessMessageAppliesScores(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.runner.results = []models.CrawlResult{htmlResult("https://example.com/", "Home")}
	f.scorer.scores = map[string]*models.PerfScores{
		"https://example.com/": {Performance: 35, SEO: 95},
	}

	msg := scheduleAndGetMessage(t, f)
	require.NoError(t, f.svc.ProcessMessage(ctx, msg))

	snapshots, err := f.store.GetSnapshotsBySite(ctx, "site-1")
	require.NoError(t, err)
	require.Len(t, snapshots, 1)
	require.NotNil(t, snapshots[0].Scores)
	assert.Equal(t, 35, snapshots[0].Scores.Performance)

	issues, err := f.store.GetIssuesBySite(ctx, "site-1", storage.IssueFilter{Type: "slow_page"})
	require.NoError(t, err)
	assert.Len(t, issues, 1, "engine sees the persisted scores")
}

func TestProcessMessageReplacesSnapshots(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.runner.results = []models.CrawlResult{
		htmlResult("https://example.com/", "Home"),
		htmlResult("https://example.com/old", "Old"),
	}
	msg := scheduleAndGetMessage(t, f)
	require.NoError(t, f.svc.ProcessMessage(ctx, msg))

	f.runner.results = []models.CrawlResult{htmlResult("https://example.com/", "Home")}
	f.queue.enqueued = nil
	msg2 := scheduleAndGetMessage(t, f)
	require.NoError(t, f.svc.ProcessMessage(ctx, msg2))

	snapshots, err := f.store.GetSnapshotsBySite(ctx, "site-1")
	require.NoError(t, err)
	require.Len(t, snapshots, 1, "stale pages removed on re-crawl")
	assert.Equal(t, "https://example.com/", snapshots[0].URL)
}

// --- Consumer ---

func TestRunConsumerAcksSuccessAndRetriesFailure(t *testing.T) {
	f := newFixture(t)
	f.runner.results = []models.CrawlResult{htmlResult("https://example.com/", "Home")}

	good := scheduleAndGetMessage(t, f)
	bad := models.JobMessage{SiteID: "ghost", CrawlJobID: "missing-job", URL: "https://ghost.example.com", PlanTier: "basic"}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	goodDelivery := &fakeDelivery{msg: good}
	badDelivery := &fakeDelivery{msg: bad}
	source := &oneShotSource{batch: []Delivery{goodDelivery, badDelivery}, cancel: cancel}

	err := f.svc.RunConsumer(ctx, source)
	assert.ErrorIs(t, err, context.Canceled)

	assert.True(t, goodDelivery.acked)
	assert.False(t, goodDelivery.retried)
	assert.True(t, badDelivery.retried, "failed pipeline retries the message")
	assert.False(t, badDelivery.acked)
}
