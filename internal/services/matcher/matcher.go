package matcher

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aptus/internal/common"
	"github.com/ternarybob/aptus/internal/interfaces"
	"github.com/ternarybob/aptus/internal/models"
)

// Matcher runs stage one of matching: retrieve the nearest embedded jobs to
// the resume, then annotate each candidate with per-requirement coverage
// against the resume's evidence units.
type Matcher struct {
	matchStore  interfaces.MatchStore
	reqStore    interfaces.RequirementStore
	resumeStore interfaces.ResumeStore
	config      *common.Matcher
	wantsRemote bool
	logger      arbor.ILogger
}

// NewMatcher creates a new stage-1 matcher
func NewMatcher(matchStore interfaces.MatchStore, reqStore interfaces.RequirementStore, resumeStore interfaces.ResumeStore, config *common.Matcher, wantsRemote bool, logger arbor.ILogger) *Matcher {
	return &Matcher{
		matchStore:  matchStore,
		reqStore:    reqStore,
		resumeStore: resumeStore,
		config:      config,
		wantsRemote: wantsRemote,
		logger:      logger,
	}
}

// FindCandidates retrieves the top jobs for the resume and annotates each
// with requirement coverage. Candidates are returned in retrieval order
// (descending summary similarity).
func (m *Matcher) FindCandidates(ctx context.Context, resumeFingerprint string, stop *common.Stop) ([]*models.PreliminaryMatch, error) {
	sections, err := m.resumeStore.SectionsFor(ctx, resumeFingerprint)
	if err != nil {
		return nil, err
	}
	if len(sections) == 0 {
		return nil, fmt.Errorf("resume %s has no section embeddings", resumeFingerprint)
	}
	evidence, err := m.resumeStore.EvidenceFor(ctx, resumeFingerprint)
	if err != nil {
		return nil, err
	}

	composite := CompositeVector(sections)
	batchSize := m.config.BatchSize
	if batchSize <= 0 {
		batchSize = 50
	}

	candidates, err := m.matchStore.TopJobsBySimilarity(ctx, composite, batchSize, interfaces.MatchFilters{
		RemoteOnly: m.wantsRemote,
	})
	if err != nil {
		return nil, fmt.Errorf("job retrieval failed: %w", err)
	}

	matches := make([]*models.PreliminaryMatch, 0, len(candidates))
	for _, candidate := range candidates {
		if stop != nil && stop.Fired() {
			m.logger.Info().Int("annotated", len(matches)).Msg("Stop fired during matching")
			break
		}
		preliminary, err := m.annotate(ctx, candidate, evidence, resumeFingerprint)
		if err != nil {
			m.logger.Error().
				Err(err).
				Str("job_id", candidate.Job.ID).
				Msg("Failed to annotate candidate")
			continue
		}
		matches = append(matches, preliminary)
	}

	m.logger.Info().
		Str("resume", resumeFingerprint).
		Int("retrieved", len(candidates)).
		Int("annotated", len(matches)).
		Msg("Stage-1 matching complete")
	return matches, nil
}

// annotate checks every required and preferred unit of the job against the
// evidence units: a unit is covered when its best evidence reaches the
// similarity threshold. Years thresholds do not gate coverage; the scorer
// charges shortfalls against covered units instead.
func (m *Matcher) annotate(ctx context.Context, candidate interfaces.JobSimilarity, evidence []*models.EvidenceUnit, resumeFingerprint string) (*models.PreliminaryMatch, error) {
	units, err := m.reqStore.ListForJob(ctx, candidate.Job.ID)
	if err != nil {
		return nil, err
	}
	embeddings, err := m.reqStore.EmbeddingsForJob(ctx, candidate.Job.ID)
	if err != nil {
		return nil, err
	}

	preliminary := &models.PreliminaryMatch{
		Job:               candidate.Job,
		JobSimilarity:     candidate.Similarity,
		ResumeFingerprint: resumeFingerprint,
	}

	for _, unit := range units {
		if unit.ReqType != models.ReqTypeRequired && unit.ReqType != models.ReqTypePreferred {
			continue
		}
		vector, ok := embeddings[unit.ID]
		if !ok {
			// No vector means embedding was interrupted; treat as uncovered
			preliminary.RequirementMatches = append(preliminary.RequirementMatches, models.RequirementMatchResult{
				Requirement: unit,
			})
			if unit.ReqType == models.ReqTypeRequired {
				preliminary.MissingRequirements = append(preliminary.MissingRequirements, unit)
			}
			continue
		}

		best, similarity := bestEvidence(vector, evidence)
		covered := similarity >= m.config.SimilarityThreshold
		preliminary.RequirementMatches = append(preliminary.RequirementMatches, models.RequirementMatchResult{
			Requirement: unit,
			Evidence:    best,
			Similarity:  similarity,
			IsCovered:   covered,
		})
		if !covered && unit.ReqType == models.ReqTypeRequired {
			preliminary.MissingRequirements = append(preliminary.MissingRequirements, unit)
		}
	}
	return preliminary, nil
}

func bestEvidence(vector []float32, evidence []*models.EvidenceUnit) (*models.EvidenceUnit, float64) {
	var best *models.EvidenceUnit
	bestSim := -1.0
	for _, unit := range evidence {
		if len(unit.Embedding) == 0 {
			continue
		}
		sim := common.CosineSimilarity(vector, unit.Embedding)
		if sim > bestSim {
			bestSim = sim
			best = unit
		}
	}
	if best == nil {
		return nil, 0
	}
	return best, bestSim
}

// CompositeVector averages the section embeddings into one unit-length
// resume vector for retrieval
func CompositeVector(sections []*models.ResumeSectionEmbedding) []float32 {
	var composite []float32
	for _, section := range sections {
		if len(section.Embedding) == 0 {
			continue
		}
		if composite == nil {
			composite = make([]float32, len(section.Embedding))
		}
		for i, v := range section.Embedding {
			composite[i] += v
		}
	}
	return common.NormalizeVector(composite)
}
