package embedder

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aptus/internal/common"
	"github.com/ternarybob/aptus/internal/interfaces"
	"github.com/ternarybob/aptus/internal/models"
)

const (
	maxSummaryRequirements = 20
	maxSummaryBenefits     = 10
	descriptionFallback    = 5000
)

// Service embeds extracted jobs: one summary vector per job plus one vector
// per requirement unit. A job becomes embedded only after all its vectors
// are stored.
type Service struct {
	jobStore interfaces.JobStore
	reqStore interfaces.RequirementStore
	llm      interfaces.LLMService
	logger   arbor.ILogger
}

// NewService creates a new embedding service
func NewService(jobStore interfaces.JobStore, reqStore interfaces.RequirementStore, llm interfaces.LLMService, logger arbor.ILogger) *Service {
	return &Service{
		jobStore: jobStore,
		reqStore: reqStore,
		llm:      llm,
		logger:   logger,
	}
}

// Result aggregates one embedding pass
type Result struct {
	Processed int
	Failed    int
}

// ProcessPending embeds all extracted-but-unembedded jobs
func (s *Service) ProcessPending(ctx context.Context, batchSize int, stop *common.Stop) (*Result, error) {
	result := &Result{}

	jobs, err := s.jobStore.ListUnembedded(ctx, batchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list unembedded jobs: %w", err)
	}

	for _, job := range jobs {
		if stop != nil && stop.Fired() {
			s.logger.Info().Int("processed", result.Processed).Msg("Stop fired during embedding")
			break
		}
		if err := s.EmbedJob(ctx, job); err != nil {
			result.Failed++
			s.logger.Error().
				Err(err).
				Str("job_id", job.ID).
				Str("title", job.Title).
				Msg("Job embedding failed")
			continue
		}
		result.Processed++
	}

	if result.Processed > 0 || result.Failed > 0 {
		s.logger.Info().
			Int("processed", result.Processed).
			Int("failed", result.Failed).
			Msg("Embedding pass complete")
	}
	return result, nil
}

// EmbedJob embeds the summary and every requirement unit for one job, then
// flips is_embedded. Requirement vectors are written before the flag so a
// crash leaves the job unembedded and retried, never half-visible.
func (s *Service) EmbedJob(ctx context.Context, job *models.Job) error {
	units, err := s.reqStore.ListForJob(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("failed to list requirements: %w", err)
	}

	summary := SummaryText(job, units)
	if summary == "" {
		return fmt.Errorf("job has no embeddable content")
	}

	texts := []string{summary}
	embeddable := make([]*models.JobRequirementUnit, 0, len(units))
	for _, unit := range units {
		if unit.ReqType == models.ReqTypeRequired || unit.ReqType == models.ReqTypePreferred {
			embeddable = append(embeddable, unit)
			texts = append(texts, unit.Text)
		}
	}

	vectors, err := s.llm.EmbedBatch(ctx, texts)
	if err != nil {
		return err
	}

	for i, unit := range embeddable {
		emb := &models.RequirementEmbedding{
			RequirementID: unit.ID,
			JobID:         job.ID,
			Embedding:     vectors[i+1],
		}
		if err := s.reqStore.SaveEmbedding(ctx, emb); err != nil {
			return fmt.Errorf("failed to save requirement embedding: %w", err)
		}
	}

	job.SummaryEmbedding = vectors[0]
	job.IsEmbedded = true
	if err := s.jobStore.Save(ctx, job); err != nil {
		return fmt.Errorf("failed to save embedded job: %w", err)
	}

	s.logger.Debug().
		Str("job_id", job.ID).
		Int("requirements", len(embeddable)).
		Msg("Embedded job")
	return nil
}

// SummaryText builds the text behind a job's summary vector: the first 20
// required/preferred units and the first 10 benefits joined with " | ". When
// extraction produced nothing it falls back to the leading description text
// so the job still participates in retrieval.
func SummaryText(job *models.Job, units []*models.JobRequirementUnit) string {
	parts := make([]string, 0, maxSummaryRequirements+maxSummaryBenefits+1)
	parts = append(parts, job.Title)

	reqCount, benefitCount := 0, 0
	for _, unit := range units {
		switch unit.ReqType {
		case models.ReqTypeRequired, models.ReqTypePreferred:
			if reqCount < maxSummaryRequirements {
				parts = append(parts, unit.Text)
				reqCount++
			}
		case models.ReqTypeBenefit:
			if benefitCount < maxSummaryBenefits {
				parts = append(parts, unit.Text)
				benefitCount++
			}
		}
	}

	if reqCount == 0 {
		desc := job.Description
		if len(desc) > descriptionFallback {
			desc = desc[:descriptionFallback]
		}
		if desc == "" {
			if job.Title == "" {
				return ""
			}
			return job.Title
		}
		return job.Title + " | " + desc
	}
	return strings.Join(parts, " | ")
}
