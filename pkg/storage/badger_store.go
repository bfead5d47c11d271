package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	applog "seo-audit/pkg/log"
	"seo-audit/pkg/models"
	"seo-audit/pkg/utils"
)

// --- Key Layout ---
//
//	snapshot:<siteID>:<url>      -> PageSnapshot JSON
//	issue:<siteID>:<issueID>     -> Issue JSON
//	job:<jobID>                  -> CrawlJob JSON
//	job_active:<siteID>          -> active (non-terminal) job ID
//	job_latest:<siteID>          -> most recently created job ID
//	site:<siteID>                -> Site JSON
//
// Per-site reads and deletes are prefix scans; the two job index keys
// make the conflict check and status lookup O(1).

const (
	prefixSnapshot  = "snapshot:"
	prefixIssue     = "issue:"
	prefixJob       = "job:"
	prefixJobActive = "job_active:"
	prefixJobLatest = "job_latest:"
	prefixSite      = "site:"
)

// BadgerStore implements Store on an embedded BadgerDB.
type BadgerStore struct {
	db  *badger.DB
	log *logrus.Entry
}

// NewBadgerStore opens (or creates) the database at path. An empty path
// opens an in-memory database, which the tests rely on.
func NewBadgerStore(path string, log *logrus.Logger) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	opts = opts.WithLogger(applog.NewBadgerLogrusAdapter(log.WithField("component", "badger")))
	if path == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: opening badger db at %q: %v", utils.ErrDatabase, path, err)
	}
	return &BadgerStore{
		db:  db,
		log: log.WithField("component", "storage"),
	}, nil
}

// Close closes the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func snapshotKey(siteID, url string) []byte {
	return []byte(prefixSnapshot + siteID + ":" + url)
}

func issueKey(siteID, issueID string) []byte {
	return []byte(prefixIssue + siteID + ":" + issueID)
}

// --- Snapshots ---

func (s *BadgerStore) UpsertSnapshot(ctx context.Context, snapshot *models.PageSnapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if snapshot.ID == "" {
		snapshot.ID = uuid.NewString()
	}

	now := time.Now().UTC()
	key := snapshotKey(snapshot.SiteID, snapshot.URL)

	err := s.db.Update(func(txn *badger.Txn) error {
		var existing models.PageSnapshot
		switch err := getJSON(txn, key, &existing); {
		case err == nil:
			snapshot.ID = existing.ID
			snapshot.CreatedAt = existing.CreatedAt
		case errors.Is(err, badger.ErrKeyNotFound):
			snapshot.CreatedAt = now
		default:
			return err
		}
		snapshot.UpdatedAt = now
		return setJSON(txn, key, snapshot)
	})
	if err != nil {
		return fmt.Errorf("%w: upserting snapshot for %q: %v", utils.ErrDatabase, snapshot.URL, err)
	}
	return nil
}

func (s *BadgerStore) GetSnapshotsBySite(ctx context.Context, siteID string) ([]models.PageSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var snapshots []models.PageSnapshot
	err := s.db.View(func(txn *badger.Txn) error {
		return scanPrefix(txn, []byte(prefixSnapshot+siteID+":"), func(val []byte) error {
			var snapshot models.PageSnapshot
			if err := json.Unmarshal(val, &snapshot); err != nil {
				return err
			}
			snapshots = append(snapshots, snapshot)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%w: listing snapshots for site %s: %v", utils.ErrDatabase, siteID, err)
	}
	return snapshots, nil
}

func (s *BadgerStore) DeleteSnapshotsBySite(ctx context.Context, siteID string) error {
	return s.deletePrefix(ctx, prefixSnapshot+siteID+":")
}

// --- Issues ---

func (s *BadgerStore) BatchInsertIssues(ctx context.Context, siteID string, issues []models.Issue) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	inserted := 0

	err := s.db.Update(func(txn *badger.Txn) error {
		// Existing non-resolved issues block re-insertion of the same
		// (site, type, page URL). Resolved issues may legitimately recur.
		blocked := make(map[models.IssueKey]bool)
		err := scanPrefix(txn, []byte(prefixIssue+siteID+":"), func(val []byte) error {
			var existing models.Issue
			if err := json.Unmarshal(val, &existing); err != nil {
				return err
			}
			if existing.Status != models.IssueStatusResolved {
				blocked[existing.Key()] = true
			}
			return nil
		})
		if err != nil {
			return err
		}

		for _, issue := range issues {
			issue.SiteID = siteID
			key := issue.Key()
			if blocked[key] {
				continue
			}
			blocked[key] = true

			if issue.ID == "" {
				issue.ID = uuid.NewString()
			}
			if issue.Status == "" {
				issue.Status = models.IssueStatusOpen
			}
			issue.CreatedAt = now
			issue.UpdatedAt = now
			if err := setJSON(txn, issueKey(siteID, issue.ID), &issue); err != nil {
				return err
			}
			inserted++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: batch-inserting issues for site %s: %v", utils.ErrDatabase, siteID, err)
	}

	s.log.WithFields(logrus.Fields{
		"site_id":  siteID,
		"offered":  len(issues),
		"inserted": inserted,
	}).Debug("Issue batch insert complete")
	return inserted, nil
}

func (s *BadgerStore) GetIssuesBySite(ctx context.Context, siteID string, filter IssueFilter) ([]models.Issue, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var issues []models.Issue
	err := s.db.View(func(txn *badger.Txn) error {
		return scanPrefix(txn, []byte(prefixIssue+siteID+":"), func(val []byte) error {
			var issue models.Issue
			if err := json.Unmarshal(val, &issue); err != nil {
				return err
			}
			if filter.Severity != "" && issue.Severity != filter.Severity {
				return nil
			}
			if filter.Status != "" && issue.Status != filter.Status {
				return nil
			}
			if filter.Type != "" && issue.Type != filter.Type {
				return nil
			}
			issues = append(issues, issue)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%w: listing issues for site %s: %v", utils.ErrDatabase, siteID, err)
	}

	// Severity first, then type, then page URL: stable output for the API.
	sort.SliceStable(issues, func(i, j int) bool {
		if a, b := severityRank(issues[i].Severity), severityRank(issues[j].Severity); a != b {
			return a < b
		}
		if issues[i].Type != issues[j].Type {
			return issues[i].Type < issues[j].Type
		}
		return issues[i].PageURL < issues[j].PageURL
	})
	return issues, nil
}

func (s *BadgerStore) GetIssue(ctx context.Context, siteID, issueID string) (models.Issue, error) {
	if err := ctx.Err(); err != nil {
		return models.Issue{}, err
	}

	var issue models.Issue
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, issueKey(siteID, issueID), &issue)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return models.Issue{}, fmt.Errorf("%w: issue %s", utils.ErrNotFound, issueID)
	}
	if err != nil {
		return models.Issue{}, fmt.Errorf("%w: reading issue %s: %v", utils.ErrDatabase, issueID, err)
	}
	return issue, nil
}

func (s *BadgerStore) UpdateIssueStatus(ctx context.Context, siteID, issueID string, status models.IssueStatus) (models.Issue, error) {
	if err := ctx.Err(); err != nil {
		return models.Issue{}, err
	}
	if !models.ValidIssueStatus(status) {
		return models.Issue{}, fmt.Errorf("%w: invalid issue status %q", utils.ErrConfigValidation, status)
	}

	var issue models.Issue
	err := s.db.Update(func(txn *badger.Txn) error {
		key := issueKey(siteID, issueID)
		if err := getJSON(txn, key, &issue); err != nil {
			return err
		}
		issue.Status = status
		issue.UpdatedAt = time.Now().UTC()
		return setJSON(txn, key, &issue)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return models.Issue{}, fmt.Errorf("%w: issue %s", utils.ErrNotFound, issueID)
	}
	if err != nil {
		return models.Issue{}, fmt.Errorf("%w: updating issue %s: %v", utils.ErrDatabase, issueID, err)
	}
	return issue, nil
}

func (s *BadgerStore) DeleteIssuesBySite(ctx context.Context, siteID string) error {
	return s.deletePrefix(ctx, prefixIssue+siteID+":")
}

// DeleteOpenIssuesBySite removes only open issues, so each audit starts
// from a clean open set while status history survives.
func (s *BadgerStore) DeleteOpenIssuesBySite(ctx context.Context, siteID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		var keys [][]byte
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixIssue + siteID + ":")

		it := txn.NewIterator(opts)
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				var issue models.Issue
				if err := json.Unmarshal(val, &issue); err != nil {
					return err
				}
				if issue.Status == models.IssueStatusOpen {
					keys = append(keys, item.KeyCopy(nil))
				}
				return nil
			})
			if err != nil {
				it.Close()
				return err
			}
		}
		it.Close()

		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: deleting open issues for site %s: %v", utils.ErrDatabase, siteID, err)
	}
	return nil
}

// --- Jobs ---

func (s *BadgerStore) CreateJob(ctx context.Context, siteID string) (models.CrawlJob, error) {
	if err := ctx.Err(); err != nil {
		return models.CrawlJob{}, err
	}

	job := models.CrawlJob{
		ID:        uuid.NewString(),
		SiteID:    siteID,
		Status:    models.JobStatusPending,
		CreatedAt: time.Now().UTC(),
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		activeKey := []byte(prefixJobActive + siteID)
		switch _, err := txn.Get(activeKey); {
		case err == nil:
			return utils.ErrJobConflict
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}

		if err := setJSON(txn, []byte(prefixJob+job.ID), &job); err != nil {
			return err
		}
		if err := txn.Set(activeKey, []byte(job.ID)); err != nil {
			return err
		}
		return txn.Set([]byte(prefixJobLatest+siteID), []byte(job.ID))
	})
	if errors.Is(err, utils.ErrJobConflict) {
		return models.CrawlJob{}, fmt.Errorf("%w: site %s already has an active job", utils.ErrJobConflict, siteID)
	}
	if err != nil {
		return models.CrawlJob{}, fmt.Errorf("%w: creating job for site %s: %v", utils.ErrDatabase, siteID, err)
	}
	return job, nil
}

func (s *BadgerStore) GetJob(ctx context.Context, jobID string) (models.CrawlJob, error) {
	if err := ctx.Err(); err != nil {
		return models.CrawlJob{}, err
	}

	var job models.CrawlJob
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, []byte(prefixJob+jobID), &job)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return models.CrawlJob{}, fmt.Errorf("%w: job %s", utils.ErrNotFound, jobID)
	}
	if err != nil {
		return models.CrawlJob{}, fmt.Errorf("%w: reading job %s: %v", utils.ErrDatabase, jobID, err)
	}
	return job, nil
}

func (s *BadgerStore) GetLatestJobBySite(ctx context.Context, siteID string) (models.CrawlJob, error) {
	if err := ctx.Err(); err != nil {
		return models.CrawlJob{}, err
	}

	var job models.CrawlJob
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(prefixJobLatest + siteID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return getJSON(txn, []byte(prefixJob+string(val)), &job)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return models.CrawlJob{}, fmt.Errorf("%w: no jobs for site %s", utils.ErrNotFound, siteID)
	}
	if err != nil {
		return models.CrawlJob{}, fmt.Errorf("%w: reading latest job for site %s: %v", utils.ErrDatabase, siteID, err)
	}
	return job, nil
}

func (s *BadgerStore) UpdateJobStatus(ctx context.Context, jobID string, status models.JobStatus, errorMessage string) (models.CrawlJob, error) {
	if err := ctx.Err(); err != nil {
		return models.CrawlJob{}, err
	}

	var job models.CrawlJob
	now := time.Now().UTC()

	err := s.db.Update(func(txn *badger.Txn) error {
		key := []byte(prefixJob + jobID)
		if err := getJSON(txn, key, &job); err != nil {
			return err
		}

		job.Status = status
		job.ErrorMessage = errorMessage
		if status == models.JobStatusRunning && job.StartedAt == nil {
			started := now
			job.StartedAt = &started
		}
		if status.IsTerminal() {
			finished := now
			job.FinishedAt = &finished
			if err := txn.Delete([]byte(prefixJobActive + job.SiteID)); err != nil {
				return err
			}
		}
		return setJSON(txn, key, &job)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return models.CrawlJob{}, fmt.Errorf("%w: job %s", utils.ErrNotFound, jobID)
	}
	if err != nil {
		return models.CrawlJob{}, fmt.Errorf("%w: updating job %s: %v", utils.ErrDatabase, jobID, err)
	}
	return job, nil
}

// --- Sites ---

func (s *BadgerStore) UpsertSite(ctx context.Context, site *models.Site) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	now := time.Now().UTC()
	key := []byte(prefixSite + site.ID)

	err := s.db.Update(func(txn *badger.Txn) error {
		var existing models.Site
		switch err := getJSON(txn, key, &existing); {
		case err == nil:
			site.CreatedAt = existing.CreatedAt
		case errors.Is(err, badger.ErrKeyNotFound):
			site.CreatedAt = now
		default:
			return err
		}
		site.UpdatedAt = now
		return setJSON(txn, key, site)
	})
	if err != nil {
		return fmt.Errorf("%w: upserting site %s: %v", utils.ErrDatabase, site.ID, err)
	}
	return nil
}

func (s *BadgerStore) GetSite(ctx context.Context, siteID string) (models.Site, error) {
	if err := ctx.Err(); err != nil {
		return models.Site{}, err
	}

	var site models.Site
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, []byte(prefixSite+siteID), &site)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return models.Site{}, fmt.Errorf("%w: site %s", utils.ErrNotFound, siteID)
	}
	if err != nil {
		return models.Site{}, fmt.Errorf("%w: reading site %s: %v", utils.ErrDatabase, siteID, err)
	}
	return site, nil
}

func (s *BadgerStore) ListSites(ctx context.Context) ([]models.Site, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var sites []models.Site
	err := s.db.View(func(txn *badger.Txn) error {
		return scanPrefix(txn, []byte(prefixSite), func(val []byte) error {
			var site models.Site
			if err := json.Unmarshal(val, &site); err != nil {
				return err
			}
			sites = append(sites, site)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%w: listing sites: %v", utils.ErrDatabase, err)
	}
	return sites, nil
}

// --- Helpers ---

func (s *BadgerStore) deletePrefix(ctx context.Context, prefix string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		var keys [][]byte
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: deleting prefix %q: %v", utils.ErrDatabase, prefix, err)
	}
	return nil
}

func scanPrefix(txn *badger.Txn, prefix []byte, fn func(val []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix

	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		if err := it.Item().Value(fn); err != nil {
			return err
		}
	}
	return nil
}

func getJSON(txn *badger.Txn, key []byte, out any) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, out)
	})
}

func setJSON(txn *badger.Txn, key []byte, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}

func severityRank(severity models.IssueSeverity) int {
	switch severity {
	case models.SeverityHigh:
		return 0
	case models.SeverityMedium:
		return 1
	default:
		return 2
	}
}
