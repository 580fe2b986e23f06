package scorer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/aptus/internal/common"
	"github.com/ternarybob/aptus/internal/models"
)

func testScorerConfig() *common.Scorer {
	return &common.Scorer{
		WeightRequired:   0.7,
		WeightPreferred:  0.3,
		WeightSimilarity: 0.3,
		FitWeight:        0.8,
		WantWeight:       0.2,
		FacetWeights: map[string]float64{
			"remote_flexibility": 0.15,
			"compensation":       0.20,
			"learning_growth":    0.15,
			"company_culture":    0.15,
			"work_life_balance":  0.15,
			"tech_stack":         0.10,
			"visa_sponsorship":   0.10,
		},
		PenaltyMissingRequired:      15,
		PenaltySeniorityMismatch:    10,
		PenaltyCompensationMismatch: 10,
		PenaltyExperienceShortfall:  15,
	}
}

func requirement(id string, reqType models.ReqType, minYears *float64) *models.JobRequirementUnit {
	return &models.JobRequirementUnit{ID: id, JobID: "job-1", ReqType: reqType, Text: "req " + id, MinYears: minYears}
}

func covered(unit *models.JobRequirementUnit, sim float64) models.RequirementMatchResult {
	return models.RequirementMatchResult{
		Requirement: unit,
		Evidence:    &models.EvidenceUnit{Text: "evidence"},
		Similarity:  sim,
		IsCovered:   true,
	}
}

func uncovered(unit *models.JobRequirementUnit) models.RequirementMatchResult {
	return models.RequirementMatchResult{Requirement: unit, Similarity: 0.2}
}

func preliminary(similarity float64, matches ...models.RequirementMatchResult) *models.PreliminaryMatch {
	return &models.PreliminaryMatch{
		Job:                &models.Job{ID: "job-1", Title: "Engineer", Company: "Acme", ContentHash: "h"},
		JobSimilarity:      similarity,
		RequirementMatches: matches,
		ResumeFingerprint:  "resume-1",
	}
}

func TestScoreFit_FullRequiredCoverage(t *testing.T) {
	config := testScorerConfig()
	p := preliminary(1.0,
		covered(requirement("python", models.ReqTypeRequired, nil), 0.9),
		covered(requirement("aws", models.ReqTypeRequired, nil), 0.85),
	)

	scored := ScoreFit(config, p)

	assert.Equal(t, 1.0, scored.RequiredCoverage)
	// No preferred units: coverage over an empty set is zero
	assert.Equal(t, 0.0, scored.PreferredCoverage)
	// blended = 0.7*1 + 0.3*0 + 0.3*1 = 1.0
	assert.InDelta(t, 100.0, scored.BaseScore, 1e-9)
	assert.InDelta(t, 100.0, scored.FitScore, 1e-9)
	assert.Equal(t, 0.0, scored.Penalties)
}

func TestScoreFit_MissingRequired(t *testing.T) {
	config := testScorerConfig()
	p := preliminary(1.0,
		covered(requirement("python", models.ReqTypeRequired, nil), 0.9),
		uncovered(requirement("aws", models.ReqTypeRequired, nil)),
	)
	p.MissingRequirements = []*models.JobRequirementUnit{p.RequirementMatches[1].Requirement}

	scored := ScoreFit(config, p)

	assert.Equal(t, 0.5, scored.RequiredCoverage)
	// blended = 0.7*0.5 + 0.3*0 + 0.3*1 = 0.65, minus one missing charge
	assert.InDelta(t, 65.0, scored.BaseScore, 1e-9)
	assert.Equal(t, 15.0, scored.PenaltyDetails["missing_required"])
	assert.InDelta(t, 50.0, scored.FitScore, 1e-9)
}

func TestScoreFit_ScoresStayInBounds(t *testing.T) {
	config := testScorerConfig()
	config.PenaltyMissingRequired = 60

	var results []models.RequirementMatchResult
	for i := 0; i < 5; i++ {
		results = append(results, uncovered(requirement(string(rune('a'+i)), models.ReqTypeRequired, nil)))
	}
	p := preliminary(0.0, results...)

	scored := ScoreFit(config, p)
	assert.GreaterOrEqual(t, scored.FitScore, 0.0)
	assert.LessOrEqual(t, scored.FitScore, 100.0)
	assert.Equal(t, 0.0, scored.FitScore)
}

func TestScoreFit_ExperienceShortfallProportional(t *testing.T) {
	config := testScorerConfig()
	minYears := 5.0
	tenure := 2.0

	unit := requirement("go", models.ReqTypeRequired, &minYears)
	rm := models.RequirementMatchResult{
		Requirement: unit,
		Evidence:    &models.EvidenceUnit{Text: "2 years of Go", YearsValue: &tenure},
		Similarity:  0.9,
		IsCovered:   true,
	}
	p := preliminary(0.5, rm)

	scored := ScoreFit(config, p)
	// 3 missing years at 15 each
	assert.InDelta(t, 45.0, scored.PenaltyDetails["experience_shortfall"], 1e-9)
	assert.NotContains(t, scored.PenaltyDetails, "missing_required")
}

func TestScoreFit_ExperienceShortfallCapped(t *testing.T) {
	config := testScorerConfig()
	minYears := 10.0
	tenure := 2.0

	unit := requirement("java", models.ReqTypeRequired, &minYears)
	rm := models.RequirementMatchResult{
		Requirement: unit,
		Evidence:    &models.EvidenceUnit{YearsValue: &tenure},
		Similarity:  0.9,
		IsCovered:   true,
	}
	p := preliminary(0.5, rm)

	scored := ScoreFit(config, p)
	// 8 missing years would cost 120 uncapped; the cap holds it at 3x
	assert.InDelta(t, 45.0, scored.PenaltyDetails["experience_shortfall"], 1e-9)
}

func TestScoreFit_OnePenaltyPerRequirement(t *testing.T) {
	config := testScorerConfig()
	minYears := 5.0
	tenure := 2.0

	coveredShort := models.RequirementMatchResult{
		Requirement: requirement("go", models.ReqTypeRequired, &minYears),
		Evidence:    &models.EvidenceUnit{YearsValue: &tenure},
		Similarity:  0.9,
		IsCovered:   true,
	}
	missingUnit := models.RequirementMatchResult{
		Requirement: requirement("k8s", models.ReqTypeRequired, &minYears),
		Evidence:    &models.EvidenceUnit{YearsValue: &tenure},
		Similarity:  0.2,
		IsCovered:   false,
	}
	p := preliminary(0.5, coveredShort, missingUnit)

	scored := ScoreFit(config, p)
	// The covered unit collects a shortfall; the uncovered one is only
	// missing, never both
	assert.InDelta(t, 45.0, scored.PenaltyDetails["experience_shortfall"], 1e-9)
	assert.Equal(t, 15.0, scored.PenaltyDetails["missing_required"])
	assert.InDelta(t, 60.0, scored.Penalties, 1e-9)
}

func TestSeniorityMismatch(t *testing.T) {
	tests := []struct {
		target string
		level  string
		want   bool
	}{
		{"junior", "Senior Engineer", true},
		{"junior", "Tech Lead", true},
		{"junior", "Junior Developer", false},
		{"senior", "junior", true},
		{"senior", "Entry Level", true},
		{"senior", "Staff Engineer", false},
		{"", "senior", false},
		{"senior", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.target+"/"+tt.level, func(t *testing.T) {
			assert.Equal(t, tt.want, seniorityMismatch(tt.target, tt.level))
		})
	}
}

func TestScoreFit_CompensationMismatch(t *testing.T) {
	config := testScorerConfig()
	config.MinSalary = 100000

	salaryMax := 80000.0
	p := preliminary(0.5, covered(requirement("r1", models.ReqTypeRequired, nil), 0.9))
	p.Job.SalaryMax = &salaryMax

	scored := ScoreFit(config, p)
	assert.Equal(t, 10.0, scored.PenaltyDetails["compensation_mismatch"])
}

func TestWantScore_OrthogonalWantsAndFacets(t *testing.T) {
	weights := testScorerConfig().FacetWeights
	wants := WantVectors{{1, 0}, {0, 1}}
	facets := []*models.JobFacetEmbedding{
		{JobID: "job-1", FacetKey: models.FacetRemoteFlexibility, Embedding: []float32{1, 0}},
		{JobID: "job-1", FacetKey: models.FacetTechStack, Embedding: []float32{0, 1}},
	}

	score, ok := WantScore(weights, wants, facets)
	require.True(t, ok)

	// Each want hits one facet exactly and the other at cosine 0 (mapped to
	// 0.5): both facet means are 0.75, so the weighted blend lands at 75
	assert.InDelta(t, 75.0, score, 1e-6)
}

func TestWantScore_IdenticalVectorsScoreFull(t *testing.T) {
	weights := testScorerConfig().FacetWeights
	vector := []float32{0.6, 0.8}

	wants := WantVectors{vector}
	facets := []*models.JobFacetEmbedding{{
		JobID:     "job-1",
		FacetKey:  models.FacetRemoteFlexibility,
		Embedding: vector,
	}}

	score, ok := WantScore(weights, wants, facets)
	require.True(t, ok)
	assert.InDelta(t, 100.0, score, 1e-6)
}

func TestWantScore_EmptySidesReturnFalse(t *testing.T) {
	weights := testScorerConfig().FacetWeights
	wants := WantVectors{{1, 0}}

	_, ok := WantScore(weights, wants, nil)
	assert.False(t, ok)

	_, ok = WantScore(weights, nil, []*models.JobFacetEmbedding{{FacetKey: models.FacetTechStack, Embedding: []float32{1, 0}}})
	assert.False(t, ok)

	// Facets without embeddings do not count as present
	_, ok = WantScore(weights, wants, []*models.JobFacetEmbedding{{FacetKey: models.FacetTechStack}})
	assert.False(t, ok)
}

func TestWantScore_UnweightedFacetsFallBackToAggregate(t *testing.T) {
	wants := WantVectors{{1, 0}}
	facets := []*models.JobFacetEmbedding{{
		FacetKey:  models.FacetTechStack,
		Embedding: []float32{1, 0},
	}}

	score, ok := WantScore(map[string]float64{}, wants, facets)
	require.True(t, ok)
	assert.InDelta(t, 100.0, score, 1e-6)
}

func TestOverall_BlendsFitAndWant(t *testing.T) {
	config := testScorerConfig()
	scored := &models.ScoredMatch{FitScore: 80, WantScore: 50, HasWantScore: true}
	assert.InDelta(t, 0.8*80+0.2*50, Overall(config, scored), 1e-9)
}

func TestOverall_WantOnly(t *testing.T) {
	config := testScorerConfig()
	scored := &models.ScoredMatch{FitScore: 0, WantScore: 75, HasWantScore: true}
	assert.InDelta(t, 15.0, Overall(config, scored), 1e-9)
}

func TestOverall_FitStandsAloneWithoutWantScore(t *testing.T) {
	config := testScorerConfig()
	scored := &models.ScoredMatch{FitScore: 80, HasWantScore: false}
	assert.InDelta(t, 80.0, Overall(config, scored), 1e-9)
}

func TestOverall_CappedAtHundred(t *testing.T) {
	config := testScorerConfig()
	config.FitWeight = 1.0
	config.WantWeight = 1.0
	scored := &models.ScoredMatch{FitScore: 90, WantScore: 90, HasWantScore: true}
	assert.Equal(t, 100.0, Overall(config, scored))
}

func TestLoadWants(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wants.txt")
	content := "remote work\n\n# a comment\npython backend roles\n  \n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	wants, err := LoadWants(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"remote work", "python backend roles"}, wants)
}

func TestLoadWants_MissingFileMeansNoWants(t *testing.T) {
	wants, err := LoadWants(filepath.Join(t.TempDir(), "absent.txt"))
	require.NoError(t, err)
	assert.Nil(t, wants)

	wants, err = LoadWants("")
	require.NoError(t, err)
	assert.Nil(t, wants)
}
