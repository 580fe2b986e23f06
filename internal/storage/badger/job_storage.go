package badger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/aptus/internal/interfaces"
	"github.com/ternarybob/aptus/internal/models"
)

// claimRetries bounds optimistic-transaction retries when two workers claim
// concurrently; badger aborts one side with ErrConflict.
const claimRetries = 5

// JobStorage implements the JobStore interface for Badger
type JobStorage struct {
	db     *DB
	logger arbor.ILogger
}

// NewJobStorage creates a new JobStorage instance
func NewJobStorage(db *DB, logger arbor.ILogger) interfaces.JobStore {
	return &JobStorage{
		db:     db,
		logger: logger,
	}
}

func (s *JobStorage) Save(ctx context.Context, job *models.Job) error {
	if job.ID == "" {
		return fmt.Errorf("job ID is required")
	}
	if err := s.db.Store().Upsert(job.ID, job); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	return nil
}

func (s *JobStorage) Get(ctx context.Context, id string) (*models.Job, error) {
	var job models.Job
	if err := s.db.Store().Get(id, &job); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("job not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

// GetByFingerprint returns the job with the given canonical fingerprint, or
// (nil, nil) when none exists.
func (s *JobStorage) GetByFingerprint(ctx context.Context, fingerprint string) (*models.Job, error) {
	var jobs []models.Job
	if err := s.db.Store().Find(&jobs, badgerhold.Where("CanonicalFingerprint").Eq(fingerprint).Index("CanonicalFingerprint")); err != nil {
		return nil, fmt.Errorf("failed to find job by fingerprint: %w", err)
	}
	if len(jobs) == 0 {
		return nil, nil
	}
	return &jobs[0], nil
}

func (s *JobStorage) ListUnextracted(ctx context.Context, limit int) ([]*models.Job, error) {
	query := badgerhold.Where("IsExtracted").Eq(false)
	if limit > 0 {
		query = query.Limit(limit)
	}
	var jobs []models.Job
	if err := s.db.Store().Find(&jobs, query); err != nil {
		return nil, fmt.Errorf("failed to list unextracted jobs: %w", err)
	}
	result := make([]*models.Job, 0, len(jobs))
	for i := range jobs {
		if jobs[i].Description == "" {
			continue
		}
		result = append(result, &jobs[i])
	}
	return result, nil
}

func (s *JobStorage) ListUnembedded(ctx context.Context, limit int) ([]*models.Job, error) {
	query := badgerhold.Where("IsEmbedded").Eq(false).And("IsExtracted").Eq(true)
	if limit > 0 {
		query = query.Limit(limit)
	}
	var jobs []models.Job
	if err := s.db.Store().Find(&jobs, query); err != nil {
		return nil, fmt.Errorf("failed to list unembedded jobs: %w", err)
	}
	result := make([]*models.Job, len(jobs))
	for i := range jobs {
		result[i] = &jobs[i]
	}
	return result, nil
}

func (s *JobStorage) UpsertSource(ctx context.Context, source *models.JobPostSource) error {
	if source.ID == "" {
		return fmt.Errorf("source ID is required")
	}
	var existing models.JobPostSource
	err := s.db.Store().Get(source.ID, &existing)
	if err == nil {
		existing.LastSeen = source.LastSeen
		if err := s.db.Store().Upsert(existing.ID, &existing); err != nil {
			return fmt.Errorf("failed to update job source: %w", err)
		}
		return nil
	}
	if err != badgerhold.ErrNotFound {
		return fmt.Errorf("failed to get job source: %w", err)
	}
	if err := s.db.Store().Insert(source.ID, source); err != nil {
		return fmt.Errorf("failed to insert job source: %w", err)
	}
	return nil
}

// ClaimFacetPending implements the claim protocol in a single serializable
// transaction: reset stale in-progress claims, quarantine poison pills, then
// claim up to limit pending jobs for workerID. Badger's SSI detects
// conflicting claims; the loser retries and sees the remaining jobs only.
func (s *JobStorage) ClaimFacetPending(ctx context.Context, workerID string, limit int, claimTimeout time.Duration, maxRetries int) ([]*models.Job, error) {
	var claimed []*models.Job

	for attempt := 0; attempt < claimRetries; attempt++ {
		claimed = nil
		err := s.db.Store().Badger().Update(func(txn *badgerdb.Txn) error {
			now := time.Now()
			staleBefore := now.Add(-claimTimeout)

			var jobs []models.Job
			if err := s.db.Store().TxFind(txn, &jobs, badgerhold.Where("FacetStatus").Ne(models.FacetStatusDone)); err != nil {
				return err
			}

			// Reset stale in-progress claims (worker crash)
			for i := range jobs {
				j := &jobs[i]
				if j.FacetStatus == models.FacetStatusInProgress &&
					j.FacetClaimedAt != nil && j.FacetClaimedAt.Before(staleBefore) {
					j.FacetStatus = models.FacetStatusPending
					j.FacetClaimedBy = ""
					j.FacetClaimedAt = nil
					if err := s.db.Store().TxUpsert(txn, j.ID, j); err != nil {
						return err
					}
				}
			}

			// Quarantine poison pills
			for i := range jobs {
				j := &jobs[i]
				if j.FacetStatus == models.FacetStatusPending && j.FacetRetryCount >= maxRetries {
					j.FacetStatus = models.FacetStatusQuarantined
					if err := s.db.Store().TxUpsert(txn, j.ID, j); err != nil {
						return err
					}
				}
			}

			// Pick up to limit eligible jobs in stable id order
			var eligible []*models.Job
			for i := range jobs {
				j := &jobs[i]
				if j.FacetStatus != models.FacetStatusPending {
					continue
				}
				if !j.IsEmbedded || j.Description == "" {
					continue
				}
				if !j.FacetsStale() {
					continue
				}
				if j.FacetRetryCount >= maxRetries {
					continue
				}
				eligible = append(eligible, j)
			}
			sort.Slice(eligible, func(a, b int) bool { return eligible[a].ID < eligible[b].ID })
			if limit > 0 && len(eligible) > limit {
				eligible = eligible[:limit]
			}

			for _, j := range eligible {
				j.FacetStatus = models.FacetStatusInProgress
				j.FacetClaimedBy = workerID
				j.FacetClaimedAt = &now
				j.FacetRetryCount++
				if err := s.db.Store().TxUpsert(txn, j.ID, j); err != nil {
					return err
				}
				claimed = append(claimed, j)
			}
			return nil
		})

		if err == nil {
			return claimed, nil
		}
		if errors.Is(err, badgerdb.ErrConflict) {
			s.logger.Debug().
				Str("worker_id", workerID).
				Int("attempt", attempt+1).
				Msg("Facet claim transaction conflict, retrying")
			continue
		}
		return nil, fmt.Errorf("failed to claim facet jobs: %w", err)
	}

	return nil, fmt.Errorf("failed to claim facet jobs: too many transaction conflicts")
}

func (s *JobStorage) CompleteFacetClaim(ctx context.Context, jobID string, contentHash string) error {
	var job models.Job
	if err := s.db.Store().Get(jobID, &job); err != nil {
		return fmt.Errorf("failed to get job for claim completion: %w", err)
	}
	job.FacetStatus = models.FacetStatusDone
	job.FacetExtractionHash = contentHash
	job.FacetClaimedBy = ""
	job.FacetClaimedAt = nil
	job.FacetLastError = ""
	if err := s.db.Store().Upsert(job.ID, &job); err != nil {
		return fmt.Errorf("failed to complete facet claim: %w", err)
	}
	return nil
}

func (s *JobStorage) ReleaseFacetClaim(ctx context.Context, jobID string, errMsg string) error {
	var job models.Job
	if err := s.db.Store().Get(jobID, &job); err != nil {
		return fmt.Errorf("failed to get job for claim release: %w", err)
	}
	job.FacetStatus = models.FacetStatusPending
	job.FacetClaimedBy = ""
	job.FacetClaimedAt = nil
	job.FacetLastError = errMsg
	if err := s.db.Store().Upsert(job.ID, &job); err != nil {
		return fmt.Errorf("failed to release facet claim: %w", err)
	}
	return nil
}
