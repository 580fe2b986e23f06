package badger

import (
	"context"
	"fmt"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/aptus/internal/interfaces"
	"github.com/ternarybob/aptus/internal/models"
)

// FacetStorage implements the FacetStore interface for Badger
type FacetStorage struct {
	db     *DB
	logger arbor.ILogger
}

// NewFacetStorage creates a new FacetStorage instance
func NewFacetStorage(db *DB, logger arbor.ILogger) interfaces.FacetStore {
	return &FacetStorage{
		db:     db,
		logger: logger,
	}
}

// ReplaceForJob deletes all facet rows for the job and writes the given set
// in one transaction. Rows are keyed (job_id, facet_key) so a concurrent
// writer upserting the same facet never collides; the last writer wins.
func (s *FacetStorage) ReplaceForJob(ctx context.Context, jobID string, facets []*models.JobFacetEmbedding) error {
	err := s.db.Store().Badger().Update(func(txn *badgerdb.Txn) error {
		var existing []models.JobFacetEmbedding
		if err := s.db.Store().TxFind(txn, &existing, badgerhold.Where("JobID").Eq(jobID).Index("JobID")); err != nil {
			return err
		}
		for i := range existing {
			if err := s.db.Store().TxDelete(txn, existing[i].ID, &models.JobFacetEmbedding{}); err != nil && err != badgerhold.ErrNotFound {
				return err
			}
		}
		for _, facet := range facets {
			facet.ID = models.FacetRowKey(facet.JobID, facet.FacetKey)
			if err := s.db.Store().TxUpsert(txn, facet.ID, facet); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to replace facets for job %s: %w", jobID, err)
	}
	return nil
}

func (s *FacetStorage) ListForJob(ctx context.Context, jobID string) ([]*models.JobFacetEmbedding, error) {
	var facets []models.JobFacetEmbedding
	if err := s.db.Store().Find(&facets, badgerhold.Where("JobID").Eq(jobID).Index("JobID")); err != nil {
		return nil, fmt.Errorf("failed to list facets: %w", err)
	}
	result := make([]*models.JobFacetEmbedding, len(facets))
	for i := range facets {
		result[i] = &facets[i]
	}
	return result, nil
}

// Upsert writes one facet row keyed on (job_id, facet_key)
func (s *FacetStorage) Upsert(ctx context.Context, facet *models.JobFacetEmbedding) error {
	facet.ID = models.FacetRowKey(facet.JobID, facet.FacetKey)
	if err := s.db.Store().Upsert(facet.ID, facet); err != nil {
		return fmt.Errorf("failed to upsert facet: %w", err)
	}
	return nil
}
