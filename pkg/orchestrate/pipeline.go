package orchestrate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"seo-audit/pkg/config"
	"seo-audit/pkg/extract"
	"seo-audit/pkg/models"
	"seo-audit/pkg/parse"
	"seo-audit/pkg/plans"
	"seo-audit/pkg/rules"
	"seo-audit/pkg/score"
	"seo-audit/pkg/utils"
)

// RunConsumer receives job messages until the context is cancelled.
// Each message is processed to completion before the next; a failed
// pipeline retries the message, a successful one acks it.
func (s *Service) RunConsumer(ctx context.Context, source Source) error {
	s.log.Info("Consumer started")
	for {
		if ctx.Err() != nil {
			s.log.Info("Consumer stopping")
			return ctx.Err()
		}

		deliveries, err := source.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.log.WithField("error_category", utils.CategorizeError(err)).
				Errorf("Receive failed, backing off: %v", err)
			select {
			case <-time.After(5 * time.Second):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}

		for _, delivery := range deliveries {
			msg := delivery.Payload()
			jobLog := s.log.WithFields(logrus.Fields{
				"site_id": msg.SiteID,
				"job_id":  msg.CrawlJobID,
			})

			if err := s.ProcessMessage(ctx, msg); err != nil {
				jobLog.WithField("error_category", utils.CategorizeError(err)).
					Errorf("Pipeline failed: %v", err)
				if retryErr := delivery.Retry(ctx); retryErr != nil {
					jobLog.Errorf("Failed to retry message: %v", retryErr)
				}
				continue
			}
			if ackErr := delivery.Ack(ctx); ackErr != nil {
				jobLog.Errorf("Failed to ack message: %v", ackErr)
			}
		}
	}
}

// ProcessMessage runs the full pipeline for one job message:
// crawl, extract, snapshot, score, audit, persist. Any panic inside the
// pipeline is converted into a failed job so a job is never left
// running.
func (s *Service) ProcessMessage(ctx context.Context, msg models.JobMessage) (err error) {
	jobLog := s.log.WithFields(logrus.Fields{
		"site_id": msg.SiteID,
		"job_id":  msg.CrawlJobID,
	})

	// Redelivered messages for already-settled jobs are dropped; the
	// first delivery decided the outcome.
	if job, jobErr := s.store.GetJob(ctx, msg.CrawlJobID); jobErr == nil && job.Status.IsTerminal() {
		jobLog.WithField("status", job.Status).Warn("Job already terminal, dropping message")
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			jobLog.Errorf("Pipeline panicked: %v", r)
			s.failJob(ctx, msg, fmt.Sprintf("internal error: %v", r))
			err = fmt.Errorf("pipeline panic: %v", r)
		}
	}()

	if _, err := s.store.UpdateJobStatus(ctx, msg.CrawlJobID, models.JobStatusRunning, ""); err != nil {
		return err
	}
	if err := s.setSiteStatus(ctx, msg.SiteID, msg.URL, models.SiteStatusCrawling); err != nil {
		return err
	}

	crawlCfg := s.buildCrawlConfig(msg)
	jobLog.WithFields(logrus.Fields{
		"url":        crawlCfg.URL,
		"page_limit": crawlCfg.PageLimit,
	}).Info("Starting crawl")

	results := s.runner.Crawl(ctx, crawlCfg)
	if len(results) == 0 {
		failMsg := "crawl produced no results"
		s.failJob(ctx, msg, failMsg)
		return errors.New(failMsg)
	}

	snapshots := buildSnapshots(msg.SiteID, results)

	// Each audit fully replaces the snapshot set.
	if err := s.store.DeleteSnapshotsBySite(ctx, msg.SiteID); err != nil {
		s.failJob(ctx, msg, err.Error())
		return err
	}
	for i := range snapshots {
		if err := s.store.UpsertSnapshot(ctx, &snapshots[i]); err != nil {
			s.failJob(ctx, msg, err.Error())
			return err
		}
	}

	s.scorePriorityPages(ctx, jobLog, snapshots)

	issues := s.engine.Run(ctx, rules.RuleContext{SiteID: msg.SiteID, Pages: snapshots})

	if err := s.store.DeleteOpenIssuesBySite(ctx, msg.SiteID); err != nil {
		s.failJob(ctx, msg, err.Error())
		return err
	}
	inserted, err := s.store.BatchInsertIssues(ctx, msg.SiteID, issues)
	if err != nil {
		s.failJob(ctx, msg, err.Error())
		return err
	}

	if _, err := s.store.UpdateJobStatus(ctx, msg.CrawlJobID, models.JobStatusCompleted, ""); err != nil {
		return err
	}
	if err := s.completeSite(ctx, msg); err != nil {
		return err
	}

	jobLog.WithFields(logrus.Fields{
		"pages":  len(snapshots),
		"issues": inserted,
	}).Info("Audit complete")
	return nil
}

// buildCrawlConfig merges the plan tier limit with per-site config.
func (s *Service) buildCrawlConfig(msg models.JobMessage) models.CrawlConfig {
	limits := plans.LimitsFor(msg.PlanTier)
	siteCfg := s.cfg.Sites[msg.SiteID]

	return models.CrawlConfig{
		URL:             msg.URL,
		PageLimit:       limits.MaxPagesPerSite,
		CrawlDepthLimit: s.cfg.DefaultDepthLimit,
		UserAgent:       config.EffectiveUserAgent(siteCfg, s.cfg),
		RespectRobots:   config.EffectiveRespectRobots(siteCfg),
	}
}

// scorePriorityPages fetches external scores for the top-priority pages
// and writes them back onto the snapshots, in place and in the store,
// before the rule engine runs. Scoring is best-effort throughout.
func (s *Service) scorePriorityPages(ctx context.Context, jobLog *logrus.Entry, snapshots []models.PageSnapshot) {
	if s.scorer == nil || !s.scorer.Enabled() {
		return
	}

	top := score.SelectTopPages(snapshots, s.cfg.PriorityPageLimit)
	urls := make([]string, len(top))
	for i, snapshot := range top {
		urls[i] = snapshot.URL
	}

	jobLog.WithField("pages", len(urls)).Info("Scoring priority pages")
	scores := s.scorer.ScoreBatch(ctx, urls)

	for i := range snapshots {
		perf, ok := scores[snapshots[i].URL]
		if !ok || perf == nil {
			continue
		}
		snapshots[i].Scores = perf
		if err := s.store.UpsertSnapshot(ctx, &snapshots[i]); err != nil {
			jobLog.WithField("url", snapshots[i].URL).Warnf("Failed to persist scores: %v", err)
		}
	}
}

// completeSite flips the site to ready and fires the first-audit
// notification exactly once.
func (s *Service) completeSite(ctx context.Context, msg models.JobMessage) error {
	site, err := s.store.GetSite(ctx, msg.SiteID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	site.Status = models.SiteStatusReady
	site.LastCrawledAt = &now

	firstAudit := !site.FirstAuditDone
	site.FirstAuditDone = true

	if err := s.store.UpsertSite(ctx, &site); err != nil {
		return err
	}

	if firstAudit && s.notifier != nil {
		if err := s.notifier.NotifyFirstAuditComplete(ctx, msg.SiteID); err != nil {
			s.log.WithField("site_id", msg.SiteID).Warnf("First-audit notification failed: %v", err)
		}
	}
	return nil
}

// failJob marks the job failed and mirrors the failure onto the site.
// Best-effort: failJob is called on paths that already have an error.
func (s *Service) failJob(ctx context.Context, msg models.JobMessage, reason string) {
	if _, err := s.store.UpdateJobStatus(ctx, msg.CrawlJobID, models.JobStatusFailed, reason); err != nil {
		s.log.WithField("job_id", msg.CrawlJobID).Errorf("Failed to mark job failed: %v", err)
	}
	if err := s.setSiteStatus(ctx, msg.SiteID, msg.URL, models.SiteStatusFailed); err != nil {
		s.log.WithField("site_id", msg.SiteID).Errorf("Failed to mark site failed: %v", err)
	}
}

func (s *Service) setSiteStatus(ctx context.Context, siteID, siteURL string, status models.SiteStatus) error {
	site, err := s.store.GetSite(ctx, siteID)
	if errors.Is(err, utils.ErrNotFound) {
		site = models.Site{ID: siteID, URL: siteURL}
	} else if err != nil {
		return err
	}
	site.Status = status
	return s.store.UpsertSite(ctx, &site)
}

// buildSnapshots converts crawl results into snapshots, extracting
// successful HTML pages and computing site-wide inbound link counts.
func buildSnapshots(siteID string, results []models.CrawlResult) []models.PageSnapshot {
	now := time.Now().UTC()
	snapshots := make([]models.PageSnapshot, 0, len(results))
	linksIn := make(map[string]int)

	for _, result := range results {
		snapshot := models.PageSnapshot{
			SiteID:        siteID,
			URL:           result.URL,
			HTTPStatus:    result.StatusCode,
			LastCrawledAt: now,
		}

		if result.StatusCode >= 200 && result.StatusCode < 300 && result.HTML != "" {
			parsed := extract.ParseHTML(result.HTML, result.URL)
			snapshot.Title = parsed.Title
			snapshot.MetaDesc = parsed.MetaDesc
			snapshot.H1 = parsed.H1
			snapshot.Headings = parsed.Headings
			snapshot.LinksOut = len(parsed.InternalLinks) + len(parsed.ExternalLinks)
			snapshot.Canonical = parsed.Canonical
			snapshot.Noindex = parsed.Noindex
			snapshot.HasOpenGraph = parsed.HasOpenGraph
			snapshot.StructuredData = parsed.StructuredData

			for _, link := range parsed.InternalLinks {
				linksIn[linkKey(link)]++
			}
		}

		snapshots = append(snapshots, snapshot)
	}

	for i := range snapshots {
		snapshots[i].LinksIn = linksIn[linkKey(snapshots[i].URL)]
	}
	return snapshots
}

func linkKey(rawURL string) string {
	if normalized, _, err := parse.ParseAndNormalize(rawURL); err == nil {
		return normalized
	}
	return rawURL
}
