package scorer

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aptus/internal/common"
	"github.com/ternarybob/aptus/internal/interfaces"
	"github.com/ternarybob/aptus/internal/models"
)

// Scorer computes stage-2 scores for preliminary matches. The fit score is
// the penalized blend of coverage and similarity; the want score compares
// the user's stated preferences against the job's facet embeddings. All
// scores land in [0, 100].
type Scorer struct {
	config     *common.Scorer
	facetStore interfaces.FacetStore
	llm        interfaces.LLMService
	logger     arbor.ILogger
}

// NewScorer creates a new scorer
func NewScorer(config *common.Scorer, facetStore interfaces.FacetStore, llm interfaces.LLMService, logger arbor.ILogger) *Scorer {
	return &Scorer{
		config:     config,
		facetStore: facetStore,
		llm:        llm,
		logger:     logger,
	}
}

// WantVectors are the embedded user preference lines, one vector per line
type WantVectors [][]float32

// LoadWants reads the user wants file: one free-text preference per line.
// Blank lines and # comments are skipped. A missing path means the user
// stated no wants.
func LoadWants(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read wants file: %w", err)
	}
	defer file.Close()

	var wants []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		wants = append(wants, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read wants file: %w", err)
	}
	return wants, nil
}

// EmbedWants embeds the preference lines once per cycle
func (s *Scorer) EmbedWants(ctx context.Context, wants []string) (WantVectors, error) {
	if len(wants) == 0 {
		return nil, nil
	}
	vectors, err := s.llm.EmbedBatch(ctx, wants)
	if err != nil {
		return nil, fmt.Errorf("failed to embed wants: %w", err)
	}
	return WantVectors(vectors), nil
}

// Score computes all score components for one preliminary match
func (s *Scorer) Score(ctx context.Context, preliminary *models.PreliminaryMatch, wants WantVectors) (*models.ScoredMatch, error) {
	scored := ScoreFit(s.config, preliminary)

	if len(wants) > 0 {
		facets, err := s.facetStore.ListForJob(ctx, preliminary.Job.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load facets: %w", err)
		}
		if want, ok := WantScore(s.config.FacetWeights, wants, facets); ok {
			scored.WantScore = want
			scored.HasWantScore = true
		}
	}

	scored.OverallScore = Overall(s.config, scored)
	return scored, nil
}

// ScoreFit computes the deterministic fit side: coverage, base blend and
// penalties. Exposed as a pure function of its inputs.
//
//	blended = w_req*required_coverage + w_pref*preferred_coverage + w_sim*job_similarity
//	fit     = clamp(0, 100, 100*blended - penalties)
func ScoreFit(config *common.Scorer, preliminary *models.PreliminaryMatch) *models.ScoredMatch {
	requiredCovered, requiredTotal := 0, 0
	preferredCovered, preferredTotal := 0, 0
	for _, rm := range preliminary.RequirementMatches {
		switch rm.Requirement.ReqType {
		case models.ReqTypeRequired:
			requiredTotal++
			if rm.IsCovered {
				requiredCovered++
			}
		case models.ReqTypePreferred:
			preferredTotal++
			if rm.IsCovered {
				preferredCovered++
			}
		}
	}

	requiredCoverage := coverage(requiredCovered, requiredTotal)
	preferredCoverage := coverage(preferredCovered, preferredTotal)

	base := 100 * (config.WeightRequired*requiredCoverage +
		config.WeightPreferred*preferredCoverage +
		config.WeightSimilarity*preliminary.JobSimilarity)

	penalties, details := applyPenalties(config, preliminary)
	fit := clamp(base-penalties, 0, 100)

	return &models.ScoredMatch{
		Preliminary:       preliminary,
		FitScore:          fit,
		BaseScore:         base,
		Penalties:         penalties,
		PenaltyDetails:    details,
		RequiredCoverage:  requiredCoverage,
		PreferredCoverage: preferredCoverage,
	}
}

// applyPenalties computes the capability penalties:
//   - each uncovered required unit costs penalty_missing_required
//   - a seniority mismatch between the user target and the job level costs
//     penalty_seniority_mismatch once
//   - a salary ceiling below min_salary costs penalty_compensation_mismatch
//     once
//   - each covered requirement whose years threshold exceeds the matched
//     evidence's tenure costs penalty_experience_shortfall per missing year,
//     capped at 3x the penalty; a requirement is charged at most once
func applyPenalties(config *common.Scorer, preliminary *models.PreliminaryMatch) (float64, map[string]float64) {
	details := map[string]float64{}

	missing := 0
	shortfallTotal := 0.0
	penalized := map[string]bool{}
	for _, rm := range preliminary.RequirementMatches {
		if rm.Requirement.ReqType == models.ReqTypeRequired && !rm.IsCovered {
			missing++
		}
		if !rm.IsCovered || penalized[rm.Requirement.ID] {
			continue
		}
		if rm.Requirement.MinYears == nil || rm.Evidence == nil || rm.Evidence.YearsValue == nil {
			continue
		}
		shortfallYears := *rm.Requirement.MinYears - *rm.Evidence.YearsValue
		if shortfallYears <= 0 {
			continue
		}
		charge := shortfallYears * config.PenaltyExperienceShortfall
		if limit := 3 * config.PenaltyExperienceShortfall; charge > limit {
			charge = limit
		}
		shortfallTotal += charge
		penalized[rm.Requirement.ID] = true
	}
	if missing > 0 {
		details["missing_required"] = config.PenaltyMissingRequired * float64(missing)
	}
	if shortfallTotal > 0 {
		details["experience_shortfall"] = shortfallTotal
	}

	job := preliminary.Job
	if seniorityMismatch(config.TargetSeniority, job.JobLevel) {
		details["seniority_mismatch"] = config.PenaltySeniorityMismatch
	}
	if config.MinSalary > 0 && job.SalaryMax != nil && *job.SalaryMax < config.MinSalary {
		details["compensation_mismatch"] = config.PenaltyCompensationMismatch
	}

	total := 0.0
	for _, v := range details {
		total += v
	}
	return total, details
}

// seniorityMismatch flags a junior candidate against a senior/lead posting
// and a senior candidate against a junior/entry posting
func seniorityMismatch(target, jobLevel string) bool {
	if target == "" || jobLevel == "" {
		return false
	}
	target = strings.ToLower(target)
	level := strings.ToLower(jobLevel)
	switch {
	case strings.Contains(target, "junior"):
		return strings.Contains(level, "senior") || strings.Contains(level, "lead")
	case strings.Contains(target, "senior"):
		return strings.Contains(level, "junior") || strings.Contains(level, "entry")
	}
	return false
}

// WantScore compares every want line against every facet embedding the job
// carries. Cosines map to [0, 1] via (cos+1)/2; per-facet means are blended
// by the facet weights, falling back to the mean best-per-want similarity
// when no present facet carries weight. Returns (0, false) when either side
// is empty.
func WantScore(weights map[string]float64, wants WantVectors, facets []*models.JobFacetEmbedding) (float64, bool) {
	embedded := make([]*models.JobFacetEmbedding, 0, len(facets))
	for _, facet := range facets {
		if len(facet.Embedding) > 0 {
			embedded = append(embedded, facet)
		}
	}
	if len(wants) == 0 || len(embedded) == 0 {
		return 0, false
	}

	bestSum := 0.0
	facetSums := make([]float64, len(embedded))
	for _, want := range wants {
		best := 0.0
		for k, facet := range embedded {
			sim := clamp((common.CosineSimilarity(want, facet.Embedding)+1)/2, 0, 1)
			facetSums[k] += sim
			if sim > best {
				best = sim
			}
		}
		bestSum += best
	}
	aggregate := bestSum / float64(len(wants))

	weightedSum, weightSum := 0.0, 0.0
	for k, facet := range embedded {
		weight := weights[string(facet.FacetKey)]
		if weight <= 0 {
			continue
		}
		facetMean := facetSums[k] / float64(len(wants))
		weightedSum += weight * facetMean
		weightSum += weight
	}

	score := aggregate
	if weightSum > 0 {
		score = weightedSum / weightSum
	}
	return clamp(100*score, 0, 100), true
}

// Overall blends fit and want. Without a want score the fit stands alone
// rather than being dragged down by a zero.
func Overall(config *common.Scorer, scored *models.ScoredMatch) float64 {
	if !scored.HasWantScore {
		return clamp(scored.FitScore, 0, 100)
	}
	return clamp(config.FitWeight*scored.FitScore+config.WantWeight*scored.WantScore, 0, 100)
}

func coverage(covered, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(covered) / float64(total)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
