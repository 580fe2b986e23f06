package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/aptus/internal/models"
)

// JobStore persists canonical job postings and owns the facet claim columns
type JobStore interface {
	Save(ctx context.Context, job *models.Job) error
	Get(ctx context.Context, id string) (*models.Job, error)
	GetByFingerprint(ctx context.Context, fingerprint string) (*models.Job, error)
	ListUnextracted(ctx context.Context, limit int) ([]*models.Job, error)
	ListUnembedded(ctx context.Context, limit int) ([]*models.Job, error)
	UpsertSource(ctx context.Context, source *models.JobPostSource) error

	// ClaimFacetPending atomically resets stale in-progress claims,
	// quarantines jobs past maxRetries and claims up to limit pending jobs
	// for workerID. Two concurrent callers receive disjoint sets.
	ClaimFacetPending(ctx context.Context, workerID string, limit int, claimTimeout time.Duration, maxRetries int) ([]*models.Job, error)

	// CompleteFacetClaim marks facet extraction done for the current content
	CompleteFacetClaim(ctx context.Context, jobID string, contentHash string) error

	// ReleaseFacetClaim returns a claimed job to pending with the failure
	// recorded; the retry count was already incremented at claim time
	ReleaseFacetClaim(ctx context.Context, jobID string, errMsg string) error
}

// RequirementStore persists extracted requirement units and their embeddings
type RequirementStore interface {
	ReplaceForJob(ctx context.Context, jobID string, units []*models.JobRequirementUnit) error
	ListForJob(ctx context.Context, jobID string) ([]*models.JobRequirementUnit, error)
	SaveEmbedding(ctx context.Context, emb *models.RequirementEmbedding) error
	EmbeddingsForJob(ctx context.Context, jobID string) (map[string][]float32, error)
}

// FacetStore persists facet rows with last-writer-wins upsert semantics
type FacetStore interface {
	// ReplaceForJob deletes all facet rows for the job and upserts the given
	// set in one transaction. Idempotent: repeating with the same payload
	// yields the same rows.
	ReplaceForJob(ctx context.Context, jobID string, facets []*models.JobFacetEmbedding) error
	ListForJob(ctx context.Context, jobID string) ([]*models.JobFacetEmbedding, error)
	Upsert(ctx context.Context, facet *models.JobFacetEmbedding) error
}

// ResumeStore persists structured resumes, sections and evidence units
type ResumeStore interface {
	Get(ctx context.Context, fingerprint string) (*models.StructuredResume, error)
	Save(ctx context.Context, resume *models.StructuredResume) error

	// ReplaceEmbeddings atomically replaces section and evidence rows for the
	// fingerprint (delete-then-insert in one transaction)
	ReplaceEmbeddings(ctx context.Context, fingerprint string, sections []*models.ResumeSectionEmbedding, evidence []*models.EvidenceUnit) error
	SectionsFor(ctx context.Context, fingerprint string) ([]*models.ResumeSectionEmbedding, error)
	EvidenceFor(ctx context.Context, fingerprint string) ([]*models.EvidenceUnit, error)
}

// MatchFilters are hard filters applied during vector retrieval
type MatchFilters struct {
	RemoteOnly bool
}

// JobSimilarity pairs a retrieved job with its cosine similarity
type JobSimilarity struct {
	Job        *models.Job
	Similarity float64
}

// MatchStore persists match records with active/stale semantics
type MatchStore interface {
	ActiveMatch(ctx context.Context, jobID, resumeFingerprint string) (*models.JobMatch, error)
	Save(ctx context.Context, match *models.JobMatch) error
	ReplaceRequirements(ctx context.Context, matchID string, children []*models.JobMatchRequirement) error
	RequirementsFor(ctx context.Context, matchID string) ([]*models.JobMatchRequirement, error)
	Get(ctx context.Context, id string) (*models.JobMatch, error)
	InvalidateForJob(ctx context.Context, jobID, reason string) (int, error)
	InvalidateForResume(ctx context.Context, resumeFingerprint, reason string) (int, error)

	// TopJobsBySimilarity returns the k nearest embedded jobs by cosine
	// distance on the summary embedding, honoring the hard filters
	TopJobsBySimilarity(ctx context.Context, vector []float32, k int, filters MatchFilters) ([]JobSimilarity, error)
}

// NotificationStore persists delivery trackers and notification rows
type NotificationStore interface {
	GetTracker(ctx context.Context, dedupHash string) (*models.NotificationTracker, error)
	UpsertTracker(ctx context.Context, tracker *models.NotificationTracker) error
	SaveNotification(ctx context.Context, n *models.Notification) error
	SaveInApp(ctx context.Context, n *models.InAppNotification) error
}
