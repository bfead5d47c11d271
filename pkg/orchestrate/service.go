package orchestrate

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"seo-audit/pkg/config"
	"seo-audit/pkg/models"
	"seo-audit/pkg/notify"
	"seo-audit/pkg/queue"
	"seo-audit/pkg/rules"
	"seo-audit/pkg/storage"
	"seo-audit/pkg/utils"
)

// --- Collaborator Contracts ---

// JobQueue is the outbound side of the crawl job queue.
type JobQueue interface {
	Enqueue(ctx context.Context, msg models.JobMessage) error
}

// Delivery is one received queue message with its settlement handles.
type Delivery interface {
	Payload() models.JobMessage
	Ack(ctx context.Context) error
	Retry(ctx context.Context) error
}

// Source is the inbound side of the queue.
type Source interface {
	Receive(ctx context.Context) ([]Delivery, error)
}

// Scorer fetches external performance scores for a batch of URLs.
type Scorer interface {
	Enabled() bool
	ScoreBatch(ctx context.Context, urls []string) map[string]*models.PerfScores
}

// CrawlRunner executes one crawl run for a config.
type CrawlRunner interface {
	Crawl(ctx context.Context, cfg models.CrawlConfig) []models.CrawlResult
}

// Service owns the crawl job lifecycle: scheduling jobs onto the queue
// and consuming them through the full crawl-extract-score-audit
// pipeline.
type Service struct {
	store    storage.Store
	queue    JobQueue
	runner   CrawlRunner
	scorer   Scorer
	notifier notify.Notifier
	engine   *rules.Engine
	cfg      *config.AppConfig
	log      *logrus.Entry
}

// NewService wires the orchestrator.
func NewService(store storage.Store, jobQueue JobQueue, runner CrawlRunner, scorer Scorer, notifier notify.Notifier, engine *rules.Engine, cfg *config.AppConfig, log *logrus.Logger) *Service {
	return &Service{
		store:    store,
		queue:    jobQueue,
		runner:   runner,
		scorer:   scorer,
		notifier: notifier,
		engine:   engine,
		cfg:      cfg,
		log:      log.WithField("component", "orchestrator"),
	}
}

// ScheduleCrawl creates a pending job for the site and enqueues its
// message. A site with a non-terminal job is rejected with
// ErrJobConflict. An enqueue failure marks the just-created job failed
// so the site is never blocked by a job that can never run.
func (s *Service) ScheduleCrawl(ctx context.Context, siteID, siteURL, planTier string) (models.CrawlJob, error) {
	if siteID == "" {
		siteID = uuid.NewString()
	}

	site, err := s.store.GetSite(ctx, siteID)
	if errors.Is(err, utils.ErrNotFound) {
		site = models.Site{ID: siteID, URL: siteURL, Status: models.SiteStatusPending}
		if err := s.store.UpsertSite(ctx, &site); err != nil {
			return models.CrawlJob{}, err
		}
	} else if err != nil {
		return models.CrawlJob{}, err
	}
	if siteURL == "" {
		siteURL = site.URL
	}

	job, err := s.store.CreateJob(ctx, siteID)
	if err != nil {
		return models.CrawlJob{}, err
	}

	msg := models.JobMessage{
		SiteID:     siteID,
		CrawlJobID: job.ID,
		URL:        siteURL,
		PlanTier:   planTier,
	}
	if err := s.queue.Enqueue(ctx, msg); err != nil {
		if _, failErr := s.store.UpdateJobStatus(ctx, job.ID, models.JobStatusFailed, "enqueue failed: "+err.Error()); failErr != nil {
			s.log.WithField("job_id", job.ID).Errorf("Failed to mark job failed after enqueue error: %v", failErr)
		}
		return models.CrawlJob{}, fmt.Errorf("scheduling crawl for site %s: %w", siteID, err)
	}

	s.log.WithFields(logrus.Fields{
		"site_id":   siteID,
		"job_id":    job.ID,
		"plan_tier": planTier,
	}).Info("Crawl scheduled")
	return job, nil
}

// QueueSource adapts the concrete Redis queue to the Source contract.
type QueueSource struct {
	Queue *queue.Queue
}

// Receive forwards to the queue and widens the message type.
func (s QueueSource) Receive(ctx context.Context) ([]Delivery, error) {
	msgs, err := s.Queue.Receive(ctx)
	if err != nil {
		return nil, err
	}
	deliveries := make([]Delivery, len(msgs))
	for i, msg := range msgs {
		deliveries[i] = msg
	}
	return deliveries, nil
}
