package models

import "time"

// SectionType identifies a coarse resume section
type SectionType string

const (
	SectionExperience SectionType = "experience"
	SectionSkills     SectionType = "skills"
	SectionSummary    SectionType = "summary"
	SectionProjects   SectionType = "projects"
	SectionEducation  SectionType = "education"
)

// ResumeProfile is the structured candidate profile given as pipeline input
type ResumeProfile struct {
	Summary    string            `json:"summary" yaml:"summary"`
	Experience []ExperienceEntry `json:"experience" yaml:"experience"`
	Projects   []ProjectEntry    `json:"projects" yaml:"projects"`
	Education  []EducationEntry  `json:"education" yaml:"education"`
	Skills     []string          `json:"skills" yaml:"skills"`
}

// ExperienceEntry is one role in the candidate's history
type ExperienceEntry struct {
	Title        string   `json:"title" yaml:"title"`
	Company      string   `json:"company" yaml:"company"`
	StartDate    string   `json:"start_date" yaml:"start_date"`
	EndDate      string   `json:"end_date" yaml:"end_date"`
	Description  string   `json:"description" yaml:"description"`
	Highlights   []string `json:"highlights" yaml:"highlights"`
	Technologies []string `json:"technologies" yaml:"technologies"`
}

// ProjectEntry is one project in the candidate's history
type ProjectEntry struct {
	Name         string   `json:"name" yaml:"name"`
	Description  string   `json:"description" yaml:"description"`
	Technologies []string `json:"technologies" yaml:"technologies"`
}

// EducationEntry is one degree or certification
type EducationEntry struct {
	Institution string `json:"institution" yaml:"institution"`
	Degree      string `json:"degree" yaml:"degree"`
	Field       string `json:"field" yaml:"field"`
	EndDate     string `json:"end_date" yaml:"end_date"`
}

// StructuredResume is the persisted normalized resume, one row per distinct
// resume content (keyed by fingerprint).
type StructuredResume struct {
	ResumeFingerprint    string `badgerhold:"key"`
	Profile              ResumeProfile
	TotalExperienceYears *float64
	ExtractionConfidence *float64
	ExtractionWarnings   []string
	ExtractedAt          time.Time
}

// ResumeSectionEmbedding is one embedded coarse section of a resume.
// Replaced atomically on resume re-extraction.
type ResumeSectionEmbedding struct {
	ID                string `badgerhold:"key"`
	ResumeFingerprint string `badgerhold:"index"`
	SectionType       SectionType
	SectionIndex      int
	SourceText        string
	SourceData        map[string]string
	Embedding         []float32
}

// EvidenceUnit is an atomic, embeddable claim derived from one resume field
type EvidenceUnit struct {
	ID                string `badgerhold:"key"`
	ResumeFingerprint string `badgerhold:"index"`
	Text              string
	SourceSection     SectionType
	SourceIndex       int
	YearsValue        *float64
	YearsContext      string
	Embedding         []float32
}
