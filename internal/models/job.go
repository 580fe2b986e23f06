package models

import (
	"encoding/json"
	"time"
)

// FacetStatus tracks the claim lifecycle of facet extraction for a job
type FacetStatus string

const (
	FacetStatusPending     FacetStatus = "pending"
	FacetStatusInProgress  FacetStatus = "in_progress"
	FacetStatusDone        FacetStatus = "done"
	FacetStatusQuarantined FacetStatus = "quarantined"
)

// Job is a canonical job posting. Created at first ingest and mutated by the
// pipeline stages; never deleted.
//
// Invariants: IsEmbedded implies SummaryEmbedding is non-empty. ContentHash
// changes iff any of (description, skills, title, company) changes, and
// FacetExtractionHash != ContentHash means facets are stale.
type Job struct {
	ID                   string `badgerhold:"key"`
	CanonicalFingerprint string `badgerhold:"index"`
	Title                string
	Company              string
	LocationText         string
	IsRemote             bool
	Description          string
	Skills               string
	ContentHash          string
	RawPayload           json.RawMessage
	FirstSeenAt          time.Time
	LastSeenAt           time.Time

	// Extraction state
	IsExtracted bool `badgerhold:"index"`
	IsEmbedded  bool `badgerhold:"index"`

	// Job-level metadata from requirement extraction
	SalaryMin          *float64
	SalaryMax          *float64
	Currency           string
	JobLevel           string
	MinYearsExperience *float64

	// Summary embedding (unit-length, dimension d)
	SummaryEmbedding []float32

	// Facet claim columns. Part of the external contract: downstream tooling
	// may inspect them.
	FacetStatus         FacetStatus `badgerhold:"index"`
	FacetClaimedBy      string
	FacetClaimedAt      *time.Time
	FacetExtractionHash string
	FacetRetryCount     int
	FacetLastError      string
}

// FacetsStale reports whether facet extraction must run again for the
// current job content
func (j *Job) FacetsStale() bool {
	return j.FacetExtractionHash == "" || j.FacetExtractionHash != j.ContentHash
}

// JobPostSource records where a job posting was observed.
// Unique per (site, url); ID is the hash of both.
type JobPostSource struct {
	ID        string `badgerhold:"key"`
	JobID     string `badgerhold:"index"`
	Site      string
	URL       string
	FirstSeen time.Time
	LastSeen  time.Time
}
