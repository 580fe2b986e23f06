package extractor

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aptus/internal/common"
	"github.com/ternarybob/aptus/internal/interfaces"
	"github.com/ternarybob/aptus/internal/models"
)

// Service extracts structured requirement units from unprocessed job
// descriptions. One job is one unit of work: the requirement rows and the
// is_extracted flag move together or not at all.
type Service struct {
	jobStore interfaces.JobStore
	reqStore interfaces.RequirementStore
	llm      interfaces.LLMService
	config   *common.ETLConfig
	logger   arbor.ILogger
}

// NewService creates a new requirement extraction service
func NewService(jobStore interfaces.JobStore, reqStore interfaces.RequirementStore, llm interfaces.LLMService, config *common.ETLConfig, logger arbor.ILogger) *Service {
	return &Service{
		jobStore: jobStore,
		reqStore: reqStore,
		llm:      llm,
		config:   config,
		logger:   logger,
	}
}

// Result aggregates one extraction pass
type Result struct {
	Processed int
	Skipped   int
	Failed    int
}

// ProcessPending extracts requirements for all unextracted jobs, honoring
// the stop signal between items
func (s *Service) ProcessPending(ctx context.Context, batchSize int, stop *common.Stop) (*Result, error) {
	result := &Result{}

	jobs, err := s.jobStore.ListUnextracted(ctx, batchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list unextracted jobs: %w", err)
	}

	for _, job := range jobs {
		if stop != nil && stop.Fired() {
			s.logger.Info().Int("processed", result.Processed).Msg("Stop fired during requirement extraction")
			break
		}
		if job.Description == "" {
			result.Skipped++
			continue
		}
		if err := s.ExtractJob(ctx, job); err != nil {
			result.Failed++
			s.logger.Error().
				Err(err).
				Str("job_id", job.ID).
				Str("title", job.Title).
				Msg("Requirement extraction failed")
			continue
		}
		result.Processed++
	}

	if result.Processed > 0 || result.Failed > 0 {
		s.logger.Info().
			Int("processed", result.Processed).
			Int("skipped", result.Skipped).
			Int("failed", result.Failed).
			Msg("Requirement extraction pass complete")
	}
	return result, nil
}

// ExtractJob runs one structured extraction and persists units, metadata and
// the extracted flag together. An invalid payload leaves the job untouched
// so a later pass retries it.
func (s *Service) ExtractJob(ctx context.Context, job *models.Job) error {
	var extraction RequirementExtraction
	outcome, err := s.llm.ExtractStructured(ctx, interfaces.StructuredRequest{
		SystemPrompt: requirementSystemPrompt,
		UserContent:  buildUserContent(job),
		SchemaName:   "job_requirements",
		Schema:       RequirementSchema(),
		Temperature:  s.config.LLM.ExtractionTemperature,
	}, &extraction)
	if err != nil {
		return err
	}
	if !outcome.Valid() {
		s.logger.Warn().
			Str("job_id", job.ID).
			Str("raw", common.TruncateString(string(outcome.Raw), 300)).
			Msg("Requirement payload did not fit schema, job left for retry")
		return nil
	}

	units := buildUnits(job.ID, &extraction)
	if err := s.reqStore.ReplaceForJob(ctx, job.ID, units); err != nil {
		return fmt.Errorf("failed to replace requirements: %w", err)
	}

	applyMetadata(job, &extraction)
	job.IsExtracted = true
	if err := s.jobStore.Save(ctx, job); err != nil {
		return fmt.Errorf("failed to save extracted job: %w", err)
	}

	s.logger.Debug().
		Str("job_id", job.ID).
		Int("units", len(units)).
		Msg("Extracted requirement units")
	return nil
}

func buildUserContent(job *models.Job) string {
	content := "Title: " + job.Title + "\nCompany: " + job.Company
	if job.Skills != "" {
		content += "\nSkills: " + job.Skills
	}
	return content + "\n\n" + job.Description
}

// buildUnits flattens the extraction into ordered requirement units. Ordinal
// preserves posting order across all four groups; years hints are parsed
// only for required and preferred units.
func buildUnits(jobID string, extraction *RequirementExtraction) []*models.JobRequirementUnit {
	units := make([]*models.JobRequirementUnit, 0,
		len(extraction.Required)+len(extraction.Preferred)+len(extraction.Responsibilities)+len(extraction.Benefits))
	ordinal := 0

	appendTagged := func(items []ExtractedRequirement, reqType models.ReqType) {
		for _, item := range items {
			if item.Text == "" {
				continue
			}
			unit := &models.JobRequirementUnit{
				ID:      uuid.New().String(),
				JobID:   jobID,
				ReqType: reqType,
				Text:    item.Text,
				Tags: models.RequirementTags{
					Skills:      item.Skills,
					Category:    item.Category,
					Proficiency: item.Proficiency,
				},
				Ordinal: ordinal,
			}
			if years, context, ok := common.ParseYears(item.Text); ok {
				unit.MinYears = &years
				unit.YearsContext = context
			}
			units = append(units, unit)
			ordinal++
		}
	}
	appendPlain := func(items []string, reqType models.ReqType) {
		for _, text := range items {
			if text == "" {
				continue
			}
			units = append(units, &models.JobRequirementUnit{
				ID:      uuid.New().String(),
				JobID:   jobID,
				ReqType: reqType,
				Text:    text,
				Ordinal: ordinal,
			})
			ordinal++
		}
	}

	appendTagged(extraction.Required, models.ReqTypeRequired)
	appendTagged(extraction.Preferred, models.ReqTypePreferred)
	appendPlain(extraction.Responsibilities, models.ReqTypeResponsibility)
	appendPlain(extraction.Benefits, models.ReqTypeBenefit)
	return units
}

// applyMetadata copies job-level fields from the extraction. Scraper-sourced
// salary wins over extracted salary.
func applyMetadata(job *models.Job, extraction *RequirementExtraction) {
	if job.SalaryMin == nil && extraction.SalaryMin != nil {
		job.SalaryMin = extraction.SalaryMin
	}
	if job.SalaryMax == nil && extraction.SalaryMax != nil {
		job.SalaryMax = extraction.SalaryMax
	}
	if job.Currency == "" && extraction.Currency != "" {
		job.Currency = extraction.Currency
	}
	if extraction.JobLevel != "" {
		job.JobLevel = extraction.JobLevel
	}
	if extraction.MinYears != nil {
		job.MinYearsExperience = extraction.MinYears
	}
	if extraction.RemotePolicy == "remote" {
		job.IsRemote = true
	}
}
