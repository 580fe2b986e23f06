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

// ResumeStorage implements the ResumeStore interface for Badger
type ResumeStorage struct {
	db     *DB
	logger arbor.ILogger
}

// NewResumeStorage creates a new ResumeStorage instance
func NewResumeStorage(db *DB, logger arbor.ILogger) interfaces.ResumeStore {
	return &ResumeStorage{
		db:     db,
		logger: logger,
	}
}

// Get returns the stored resume for the fingerprint, or (nil, nil) when none
// exists. The nil return is the profiler's short-circuit signal.
func (s *ResumeStorage) Get(ctx context.Context, fingerprint string) (*models.StructuredResume, error) {
	var resume models.StructuredResume
	if err := s.db.Store().Get(fingerprint, &resume); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get resume: %w", err)
	}
	return &resume, nil
}

func (s *ResumeStorage) Save(ctx context.Context, resume *models.StructuredResume) error {
	if resume.ResumeFingerprint == "" {
		return fmt.Errorf("resume fingerprint is required")
	}
	if err := s.db.Store().Upsert(resume.ResumeFingerprint, resume); err != nil {
		return fmt.Errorf("failed to save resume: %w", err)
	}
	return nil
}

// ReplaceEmbeddings deletes then inserts section and evidence rows for the
// fingerprint in a single transaction
func (s *ResumeStorage) ReplaceEmbeddings(ctx context.Context, fingerprint string, sections []*models.ResumeSectionEmbedding, evidence []*models.EvidenceUnit) error {
	err := s.db.Store().Badger().Update(func(txn *badgerdb.Txn) error {
		var oldSections []models.ResumeSectionEmbedding
		if err := s.db.Store().TxFind(txn, &oldSections, badgerhold.Where("ResumeFingerprint").Eq(fingerprint).Index("ResumeFingerprint")); err != nil {
			return err
		}
		for i := range oldSections {
			if err := s.db.Store().TxDelete(txn, oldSections[i].ID, &models.ResumeSectionEmbedding{}); err != nil && err != badgerhold.ErrNotFound {
				return err
			}
		}

		var oldEvidence []models.EvidenceUnit
		if err := s.db.Store().TxFind(txn, &oldEvidence, badgerhold.Where("ResumeFingerprint").Eq(fingerprint).Index("ResumeFingerprint")); err != nil {
			return err
		}
		for i := range oldEvidence {
			if err := s.db.Store().TxDelete(txn, oldEvidence[i].ID, &models.EvidenceUnit{}); err != nil && err != badgerhold.ErrNotFound {
				return err
			}
		}

		for _, section := range sections {
			if err := s.db.Store().TxUpsert(txn, section.ID, section); err != nil {
				return err
			}
		}
		for _, unit := range evidence {
			if err := s.db.Store().TxUpsert(txn, unit.ID, unit); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to replace resume embeddings: %w", err)
	}
	return nil
}

func (s *ResumeStorage) SectionsFor(ctx context.Context, fingerprint string) ([]*models.ResumeSectionEmbedding, error) {
	var sections []models.ResumeSectionEmbedding
	if err := s.db.Store().Find(&sections, badgerhold.Where("ResumeFingerprint").Eq(fingerprint).Index("ResumeFingerprint")); err != nil {
		return nil, fmt.Errorf("failed to list resume sections: %w", err)
	}
	result := make([]*models.ResumeSectionEmbedding, len(sections))
	for i := range sections {
		result[i] = &sections[i]
	}
	return result, nil
}

func (s *ResumeStorage) EvidenceFor(ctx context.Context, fingerprint string) ([]*models.EvidenceUnit, error) {
	var units []models.EvidenceUnit
	if err := s.db.Store().Find(&units, badgerhold.Where("ResumeFingerprint").Eq(fingerprint).Index("ResumeFingerprint")); err != nil {
		return nil, fmt.Errorf("failed to list evidence units: %w", err)
	}
	result := make([]*models.EvidenceUnit, len(units))
	for i := range units {
		result[i] = &units[i]
	}
	return result, nil
}
