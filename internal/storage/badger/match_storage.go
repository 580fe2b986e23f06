package badger

import (
	"context"
	"fmt"
	"sort"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/aptus/internal/common"
	"github.com/ternarybob/aptus/internal/interfaces"
	"github.com/ternarybob/aptus/internal/models"
)

// MatchStorage implements the MatchStore interface for Badger
type MatchStorage struct {
	db     *DB
	logger arbor.ILogger
}

// NewMatchStorage creates a new MatchStorage instance
func NewMatchStorage(db *DB, logger arbor.ILogger) interfaces.MatchStore {
	return &MatchStorage{
		db:     db,
		logger: logger,
	}
}

// ActiveMatch returns the single active match for (job, resume), or
// (nil, nil) when none exists
func (s *MatchStorage) ActiveMatch(ctx context.Context, jobID, resumeFingerprint string) (*models.JobMatch, error) {
	var matches []models.JobMatch
	query := badgerhold.Where("JobID").Eq(jobID).Index("JobID").
		And("ResumeFingerprint").Eq(resumeFingerprint).
		And("Status").Eq(models.MatchStatusActive)
	if err := s.db.Store().Find(&matches, query); err != nil {
		return nil, fmt.Errorf("failed to find active match: %w", err)
	}
	if len(matches) == 0 {
		return nil, nil
	}
	return &matches[0], nil
}

func (s *MatchStorage) Save(ctx context.Context, match *models.JobMatch) error {
	if match.ID == "" {
		return fmt.Errorf("match ID is required")
	}
	if err := s.db.Store().Upsert(match.ID, match); err != nil {
		return fmt.Errorf("failed to save match: %w", err)
	}
	return nil
}

func (s *MatchStorage) Get(ctx context.Context, id string) (*models.JobMatch, error) {
	var match models.JobMatch
	if err := s.db.Store().Get(id, &match); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("match not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get match: %w", err)
	}
	return &match, nil
}

// ReplaceRequirements replaces the child rows of a match wholesale
func (s *MatchStorage) ReplaceRequirements(ctx context.Context, matchID string, children []*models.JobMatchRequirement) error {
	err := s.db.Store().Badger().Update(func(txn *badgerdb.Txn) error {
		var existing []models.JobMatchRequirement
		if err := s.db.Store().TxFind(txn, &existing, badgerhold.Where("JobMatchID").Eq(matchID).Index("JobMatchID")); err != nil {
			return err
		}
		for i := range existing {
			if err := s.db.Store().TxDelete(txn, existing[i].ID, &models.JobMatchRequirement{}); err != nil && err != badgerhold.ErrNotFound {
				return err
			}
		}
		for _, child := range children {
			if err := s.db.Store().TxUpsert(txn, child.ID, child); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to replace match requirements: %w", err)
	}
	return nil
}

func (s *MatchStorage) RequirementsFor(ctx context.Context, matchID string) ([]*models.JobMatchRequirement, error) {
	var children []models.JobMatchRequirement
	if err := s.db.Store().Find(&children, badgerhold.Where("JobMatchID").Eq(matchID).Index("JobMatchID")); err != nil {
		return nil, fmt.Errorf("failed to list match requirements: %w", err)
	}
	result := make([]*models.JobMatchRequirement, len(children))
	for i := range children {
		result[i] = &children[i]
	}
	return result, nil
}

// InvalidateForJob flips all active matches for the job to stale
func (s *MatchStorage) InvalidateForJob(ctx context.Context, jobID, reason string) (int, error) {
	return s.invalidate(badgerhold.Where("JobID").Eq(jobID).Index("JobID").And("Status").Eq(models.MatchStatusActive), reason)
}

// InvalidateForResume flips all active matches for the resume to stale
func (s *MatchStorage) InvalidateForResume(ctx context.Context, resumeFingerprint, reason string) (int, error) {
	return s.invalidate(badgerhold.Where("ResumeFingerprint").Eq(resumeFingerprint).Index("ResumeFingerprint").And("Status").Eq(models.MatchStatusActive), reason)
}

func (s *MatchStorage) invalidate(query *badgerhold.Query, reason string) (int, error) {
	var matches []models.JobMatch
	if err := s.db.Store().Find(&matches, query); err != nil {
		return 0, fmt.Errorf("failed to find matches to invalidate: %w", err)
	}
	count := 0
	for i := range matches {
		matches[i].Status = models.MatchStatusStale
		matches[i].InvalidatedReason = reason
		if err := s.db.Store().Upsert(matches[i].ID, &matches[i]); err != nil {
			return count, fmt.Errorf("failed to invalidate match %s: %w", matches[i].ID, err)
		}
		count++
	}
	return count, nil
}

// TopJobsBySimilarity scans embedded jobs and returns the k nearest by
// cosine distance on the summary embedding. The store is the vector-index
// boundary; a brute-force scan keeps the contract without an external index.
func (s *MatchStorage) TopJobsBySimilarity(ctx context.Context, vector []float32, k int, filters interfaces.MatchFilters) ([]interfaces.JobSimilarity, error) {
	start := time.Now()

	var jobs []models.Job
	if err := s.db.Store().Find(&jobs, badgerhold.Where("IsEmbedded").Eq(true)); err != nil {
		return nil, fmt.Errorf("failed to scan embedded jobs: %w", err)
	}

	var results []interfaces.JobSimilarity
	for i := range jobs {
		job := &jobs[i]
		if len(job.SummaryEmbedding) == 0 {
			continue
		}
		if filters.RemoteOnly && !job.IsRemote {
			continue
		}
		similarity := common.CosineSimilarity(vector, job.SummaryEmbedding)
		results = append(results, interfaces.JobSimilarity{Job: job, Similarity: similarity})
	}

	sort.Slice(results, func(a, b int) bool { return results[a].Similarity > results[b].Similarity })
	if k > 0 && len(results) > k {
		results = results[:k]
	}

	s.logger.Debug().
		Int("scanned", len(jobs)).
		Int("returned", len(results)).
		Dur("duration", time.Since(start)).
		Msg("Vector retrieval completed")

	return results, nil
}
