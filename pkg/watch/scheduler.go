package watch

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"seo-audit/pkg/config"
	"seo-audit/pkg/models"
	"seo-audit/pkg/storage"
	"seo-audit/pkg/utils"
)

// CrawlScheduler is the slice of the orchestrator the watcher needs.
type CrawlScheduler interface {
	ScheduleCrawl(ctx context.Context, siteID, siteURL, planTier string) (models.CrawlJob, error)
}

// Scheduler periodically re-audits configured sites. A site is due when
// it has never been crawled or its last crawl is older than its audit
// interval; sites with an active job are skipped until the next tick.
type Scheduler struct {
	store     storage.SiteStore
	scheduler CrawlScheduler
	cfg       *config.AppConfig
	checkTick time.Duration
	log       *logrus.Entry
}

// NewScheduler creates the re-audit scheduler. checkTick controls how
// often due-ness is evaluated, not how often sites are audited.
func NewScheduler(store storage.SiteStore, scheduler CrawlScheduler, cfg *config.AppConfig, checkTick time.Duration, log *logrus.Logger) *Scheduler {
	if checkTick <= 0 {
		checkTick = time.Minute
	}
	return &Scheduler{
		store:     store,
		scheduler: scheduler,
		cfg:       cfg,
		checkTick: checkTick,
		log:       log.WithField("component", "watch"),
	}
}

// Run evaluates due sites on every tick until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.WithField("tick", s.checkTick).Info("Re-audit scheduler started")

	ticker := time.NewTicker(s.checkTick)
	defer ticker.Stop()

	// One immediate pass so a fresh deployment does not wait a full tick.
	s.checkSites(ctx)

	for {
		select {
		case <-ctx.Done():
			s.log.Info("Re-audit scheduler stopping")
			return ctx.Err()
		case <-ticker.C:
			s.checkSites(ctx)
		}
	}
}

func (s *Scheduler) checkSites(ctx context.Context) {
	now := time.Now().UTC()

	for siteID, siteCfg := range s.cfg.Sites {
		if !s.due(ctx, siteID, siteCfg, now) {
			continue
		}

		siteLog := s.log.WithField("site_id", siteID)
		if _, err := s.scheduler.ScheduleCrawl(ctx, siteID, siteCfg.URL, siteCfg.PlanTier); err != nil {
			if errors.Is(err, utils.ErrJobConflict) {
				siteLog.Debug("Active job present, skipping re-audit")
				continue
			}
			siteLog.WithField("error_category", utils.CategorizeError(err)).
				Errorf("Failed to schedule re-audit: %v", err)
			continue
		}
		siteLog.Info("Re-audit scheduled")
	}
}

func (s *Scheduler) due(ctx context.Context, siteID string, siteCfg config.SiteConfig, now time.Time) bool {
	interval := config.EffectiveAuditInterval(siteCfg, s.cfg)
	if interval <= 0 {
		return false
	}

	site, err := s.store.GetSite(ctx, siteID)
	if errors.Is(err, utils.ErrNotFound) {
		return true
	}
	if err != nil {
		s.log.WithField("site_id", siteID).Warnf("Failed to read site record: %v", err)
		return false
	}
	return site.LastCrawledAt == nil || now.Sub(*site.LastCrawledAt) >= interval
}
