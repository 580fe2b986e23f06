package badger

import (
	"context"
	"fmt"
	"sort"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/aptus/internal/interfaces"
	"github.com/ternarybob/aptus/internal/models"
)

// RequirementStorage implements the RequirementStore interface for Badger
type RequirementStorage struct {
	db     *DB
	logger arbor.ILogger
}

// NewRequirementStorage creates a new RequirementStorage instance
func NewRequirementStorage(db *DB, logger arbor.ILogger) interfaces.RequirementStore {
	return &RequirementStorage{
		db:     db,
		logger: logger,
	}
}

// ReplaceForJob replaces all requirement units for a job in one transaction.
// Embedding rows for removed units are deleted as well.
func (s *RequirementStorage) ReplaceForJob(ctx context.Context, jobID string, units []*models.JobRequirementUnit) error {
	err := s.db.Store().Badger().Update(func(txn *badgerdb.Txn) error {
		var existing []models.JobRequirementUnit
		if err := s.db.Store().TxFind(txn, &existing, badgerhold.Where("JobID").Eq(jobID).Index("JobID")); err != nil {
			return err
		}
		for i := range existing {
			if err := s.db.Store().TxDelete(txn, existing[i].ID, &models.JobRequirementUnit{}); err != nil && err != badgerhold.ErrNotFound {
				return err
			}
			if err := s.db.Store().TxDelete(txn, existing[i].ID, &models.RequirementEmbedding{}); err != nil && err != badgerhold.ErrNotFound {
				return err
			}
		}
		for _, unit := range units {
			if err := s.db.Store().TxUpsert(txn, unit.ID, unit); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to replace requirements for job %s: %w", jobID, err)
	}
	return nil
}

func (s *RequirementStorage) ListForJob(ctx context.Context, jobID string) ([]*models.JobRequirementUnit, error) {
	var units []models.JobRequirementUnit
	if err := s.db.Store().Find(&units, badgerhold.Where("JobID").Eq(jobID).Index("JobID")); err != nil {
		return nil, fmt.Errorf("failed to list requirements: %w", err)
	}
	sort.Slice(units, func(a, b int) bool { return units[a].Ordinal < units[b].Ordinal })
	result := make([]*models.JobRequirementUnit, len(units))
	for i := range units {
		result[i] = &units[i]
	}
	return result, nil
}

func (s *RequirementStorage) SaveEmbedding(ctx context.Context, emb *models.RequirementEmbedding) error {
	if emb.RequirementID == "" {
		return fmt.Errorf("requirement ID is required")
	}
	if err := s.db.Store().Upsert(emb.RequirementID, emb); err != nil {
		return fmt.Errorf("failed to save requirement embedding: %w", err)
	}
	return nil
}

// EmbeddingsForJob returns requirement embeddings keyed by requirement id
func (s *RequirementStorage) EmbeddingsForJob(ctx context.Context, jobID string) (map[string][]float32, error) {
	var rows []models.RequirementEmbedding
	if err := s.db.Store().Find(&rows, badgerhold.Where("JobID").Eq(jobID).Index("JobID")); err != nil {
		return nil, fmt.Errorf("failed to load requirement embeddings: %w", err)
	}
	result := make(map[string][]float32, len(rows))
	for i := range rows {
		result[rows[i].RequirementID] = rows[i].Embedding
	}
	return result, nil
}
