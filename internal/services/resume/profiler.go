package resume

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/ternarybob/arbor"
	"gopkg.in/yaml.v3"

	"github.com/ternarybob/aptus/internal/common"
	"github.com/ternarybob/aptus/internal/interfaces"
	"github.com/ternarybob/aptus/internal/models"
)

// Profiler turns the configured resume file into a persisted structured
// resume with section and evidence embeddings. The fingerprint of the
// canonical profile JSON keys everything: unchanged content short-circuits
// the whole stage.
type Profiler struct {
	store  interfaces.ResumeStore
	llm    interfaces.LLMService
	config *common.ResumeConfig
	logger arbor.ILogger
}

// NewProfiler creates a new resume profiler
func NewProfiler(store interfaces.ResumeStore, llm interfaces.LLMService, config *common.ResumeConfig, logger arbor.ILogger) *Profiler {
	return &Profiler{
		store:  store,
		llm:    llm,
		config: config,
		logger: logger,
	}
}

// resumeInsights is the LLM's assessment of the structured profile
type resumeInsights struct {
	TotalExperienceYears *float64 `json:"total_experience_years"`
	Confidence           *float64 `json:"confidence"`
	Warnings             []string `json:"warnings"`
}

const insightsSystemPrompt = `You are a resume analyst. Given a structured candidate profile, estimate total professional experience in years from the dated roles, rate your confidence between 0 and 1, and list any warnings about gaps, overlaps or missing dates. Do not invent experience.`

func insightsSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"total_experience_years": map[string]interface{}{"type": []string{"number", "null"}},
			"confidence":             map[string]interface{}{"type": []string{"number", "null"}},
			"warnings":               map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
		},
		"required":             []string{"total_experience_years", "confidence", "warnings"},
		"additionalProperties": false,
	}
}

// Ensure loads the resume file, fingerprints it and makes sure the
// structured resume plus all its embeddings exist. Returns the fingerprint
// the rest of the cycle keys on.
func (p *Profiler) Ensure(ctx context.Context) (string, error) {
	profile, err := LoadProfile(p.config.ResumeFile)
	if err != nil {
		return "", err
	}

	fingerprint, err := ProfileFingerprint(profile)
	if err != nil {
		return "", err
	}

	existing, err := p.store.Get(ctx, fingerprint)
	if err != nil {
		return "", err
	}
	if existing != nil {
		sections, err := p.store.SectionsFor(ctx, fingerprint)
		if err != nil {
			return "", err
		}
		if len(sections) > 0 {
			p.logger.Debug().
				Str("fingerprint", fingerprint).
				Msg("Resume unchanged, skipping profiling")
			return fingerprint, nil
		}
	}

	resume := &models.StructuredResume{
		ResumeFingerprint: fingerprint,
		Profile:           *profile,
		ExtractedAt:       time.Now(),
	}

	var insights resumeInsights
	outcome, err := p.llm.ExtractStructured(ctx, interfaces.StructuredRequest{
		SystemPrompt: insightsSystemPrompt,
		UserContent:  profileJSON(profile),
		SchemaName:   "resume_insights",
		Schema:       insightsSchema(),
		Temperature:  0.1,
	}, &insights)
	if err != nil {
		return "", err
	}
	if outcome.Valid() {
		resume.TotalExperienceYears = insights.TotalExperienceYears
		resume.ExtractionConfidence = insights.Confidence
		resume.ExtractionWarnings = insights.Warnings
	} else {
		p.logger.Warn().Str("fingerprint", fingerprint).Msg("Resume insights payload invalid, continuing without")
	}

	sections := BuildSections(fingerprint, profile)
	evidence := BuildEvidence(fingerprint, profile)
	if err := p.embedAll(ctx, sections, evidence); err != nil {
		return "", err
	}

	// Save the resume row first, then replace children atomically. A crash
	// between the two leaves no sections, which Ensure treats as unprofiled.
	if err := p.store.Save(ctx, resume); err != nil {
		return "", fmt.Errorf("failed to save structured resume: %w", err)
	}
	if err := p.store.ReplaceEmbeddings(ctx, fingerprint, sections, evidence); err != nil {
		return "", fmt.Errorf("failed to replace resume embeddings: %w", err)
	}

	p.logger.Info().
		Str("fingerprint", fingerprint).
		Int("sections", len(sections)).
		Int("evidence", len(evidence)).
		Msg("Profiled resume")
	return fingerprint, nil
}

func (p *Profiler) embedAll(ctx context.Context, sections []*models.ResumeSectionEmbedding, evidence []*models.EvidenceUnit) error {
	texts := make([]string, 0, len(sections)+len(evidence))
	for _, s := range sections {
		texts = append(texts, s.SourceText)
	}
	for _, e := range evidence {
		texts = append(texts, e.Text)
	}
	if len(texts) == 0 {
		return fmt.Errorf("resume produced no embeddable text")
	}

	vectors, err := p.llm.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("resume embedding failed: %w", err)
	}
	for i, s := range sections {
		s.Embedding = vectors[i]
	}
	for i, e := range evidence {
		e.Embedding = vectors[len(sections)+i]
	}
	return nil
}

// LoadProfile reads the structured resume YAML
func LoadProfile(path string) (*models.ResumeProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read resume file: %w", err)
	}
	var profile models.ResumeProfile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("failed to parse resume file: %w", err)
	}
	return &profile, nil
}

// ProfileFingerprint hashes the canonical JSON form of the profile. The
// round-trip through a generic value sorts object keys, so formatting and
// field order in the source file never change the fingerprint.
func ProfileFingerprint(profile *models.ResumeProfile) (string, error) {
	data, err := json.Marshal(profile)
	if err != nil {
		return "", fmt.Errorf("failed to marshal profile: %w", err)
	}
	var generic interface{}
	if err := json.Unmarshal(data, &generic); err != nil {
		return "", fmt.Errorf("failed to canonicalize profile: %w", err)
	}
	canonical, err := json.Marshal(generic)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize profile: %w", err)
	}
	return common.HashKey(string(canonical)), nil
}

func profileJSON(profile *models.ResumeProfile) string {
	data, err := json.MarshalIndent(profile, "", "  ")
	if err != nil {
		return ""
	}
	return string(data)
}
