package models

import "time"

// MatchStatus distinguishes current results from retained history
type MatchStatus string

const (
	MatchStatusActive MatchStatus = "active"
	MatchStatusStale  MatchStatus = "stale"
)

// JobMatch is the persisted outcome of scoring one job against one resume.
// Exactly one active row exists per (JobID, ResumeFingerprint); stale rows
// are retained as history. All scores are in [0, 100].
type JobMatch struct {
	ID                string `badgerhold:"key"`
	JobID             string `badgerhold:"index"`
	ResumeFingerprint string `badgerhold:"index"`
	JobContentHash    string
	Status            MatchStatus `badgerhold:"index"`
	OverallScore      float64
	FitScore          float64
	WantScore         float64
	BaseScore         float64
	Penalties         float64
	PenaltyDetails    map[string]float64
	RequiredCoverage  float64
	PreferredCoverage float64
	JobSimilarity     float64
	MatchType         string
	Notified          bool
	CalculatedAt      time.Time
	InvalidatedReason string
}

// JobMatchRequirement records per-requirement coverage evidence for a match.
// Children of a JobMatch, replaced wholesale on match update.
type JobMatchRequirement struct {
	ID              string `badgerhold:"key"`
	JobMatchID      string `badgerhold:"index"`
	RequirementID   string
	EvidenceText    string
	EvidenceSection string
	SimilarityScore float64
	IsCovered       bool
	ReqType         ReqType
}

// RequirementMatchResult is the stage-1 per-requirement annotation prior to
// persistence
type RequirementMatchResult struct {
	Requirement *JobRequirementUnit
	Evidence    *EvidenceUnit
	Similarity  float64
	IsCovered   bool
}

// PreliminaryMatch is a job with its coverage annotations, before scoring
type PreliminaryMatch struct {
	Job                 *Job
	JobSimilarity       float64
	RequirementMatches  []RequirementMatchResult
	MissingRequirements []*JobRequirementUnit
	ResumeFingerprint   string
}

// ScoredMatch couples a preliminary match with its computed score components
type ScoredMatch struct {
	Preliminary       *PreliminaryMatch
	OverallScore      float64
	FitScore          float64
	WantScore         float64
	HasWantScore      bool
	BaseScore         float64
	Penalties         float64
	PenaltyDetails    map[string]float64
	RequiredCoverage  float64
	PreferredCoverage float64
}
