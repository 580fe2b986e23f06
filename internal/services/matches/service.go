package matches

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aptus/internal/common"
	"github.com/ternarybob/aptus/internal/interfaces"
	"github.com/ternarybob/aptus/internal/models"
)

// Service persists scored matches with the one-active-row invariant: at most
// one active match exists per (job, resume) pair. Same-content recalculation
// updates that row in place, keeping the notified flag so users are not
// re-notified for a score refresh. A job content change instead retires the
// row as stale and opens a fresh active one.
type Service struct {
	matchStore          interfaces.MatchStore
	recalculateExisting bool
	logger              arbor.ILogger
}

// NewService creates a new match persistence service
func NewService(matchStore interfaces.MatchStore, recalculateExisting bool, logger arbor.ILogger) *Service {
	return &Service{
		matchStore:          matchStore,
		recalculateExisting: recalculateExisting,
		logger:              logger,
	}
}

// Upserted reports one persisted match together with the event it should
// raise downstream. Event is empty when nothing notification-worthy changed.
type Upserted struct {
	Match         *models.JobMatch
	IsNew         bool
	Event         models.EventType
	PreviousScore float64
}

// Result aggregates one persistence pass
type Result struct {
	Created int
	Updated int
	Skipped int
	Events  []Upserted
}

// PersistAll upserts a batch of scored matches
func (s *Service) PersistAll(ctx context.Context, scored []*models.ScoredMatch, stop *common.Stop) (*Result, error) {
	result := &Result{}
	for _, match := range scored {
		if stop != nil && stop.Fired() {
			s.logger.Info().Int("persisted", result.Created+result.Updated).Msg("Stop fired during match persistence")
			break
		}
		upserted, err := s.Persist(ctx, match)
		if err != nil {
			return result, err
		}
		if upserted == nil {
			result.Skipped++
			continue
		}
		if upserted.IsNew {
			result.Created++
		} else {
			result.Updated++
		}
		if upserted.Event != "" {
			result.Events = append(result.Events, *upserted)
		}
	}

	s.logger.Info().
		Int("created", result.Created).
		Int("updated", result.Updated).
		Int("skipped", result.Skipped).
		Msg("Match persistence complete")
	return result, nil
}

// Persist upserts one scored match. Returns nil when an existing active
// match for the same content was kept untouched.
func (s *Service) Persist(ctx context.Context, scored *models.ScoredMatch) (*Upserted, error) {
	job := scored.Preliminary.Job
	fingerprint := scored.Preliminary.ResumeFingerprint

	existing, err := s.matchStore.ActiveMatch(ctx, job.ID, fingerprint)
	if err != nil {
		return nil, err
	}

	now := time.Now()

	// A content change invalidates the old row: it is kept as stale history
	// and a fresh active row takes its place, eligible for notification again.
	if existing != nil && existing.JobContentHash != job.ContentHash {
		existing.Status = models.MatchStatusStale
		existing.InvalidatedReason = "Job content updated"
		if err := s.matchStore.Save(ctx, existing); err != nil {
			return nil, fmt.Errorf("failed to stale match: %w", err)
		}
		s.logger.Debug().
			Str("match_id", existing.ID).
			Str("job_id", job.ID).
			Msg("Staled match after job content change")
		existing = nil
	}

	if existing != nil && !s.recalculateExisting {
		return nil, nil
	}

	match := existing
	isNew := match == nil
	previousScore := 0.0
	if isNew {
		match = &models.JobMatch{
			ID:                uuid.New().String(),
			JobID:             job.ID,
			ResumeFingerprint: fingerprint,
			Status:            models.MatchStatusActive,
		}
	} else {
		previousScore = match.OverallScore
	}

	match.JobContentHash = job.ContentHash
	match.OverallScore = scored.OverallScore
	match.FitScore = scored.FitScore
	match.WantScore = scored.WantScore
	match.BaseScore = scored.BaseScore
	match.Penalties = scored.Penalties
	match.PenaltyDetails = scored.PenaltyDetails
	match.RequiredCoverage = scored.RequiredCoverage
	match.PreferredCoverage = scored.PreferredCoverage
	match.JobSimilarity = scored.Preliminary.JobSimilarity
	match.MatchType = matchType(scored)
	match.CalculatedAt = now
	match.InvalidatedReason = ""

	if err := s.matchStore.Save(ctx, match); err != nil {
		return nil, fmt.Errorf("failed to save match: %w", err)
	}
	if err := s.matchStore.ReplaceRequirements(ctx, match.ID, buildChildren(match.ID, scored)); err != nil {
		return nil, fmt.Errorf("failed to replace match requirements: %w", err)
	}

	upserted := &Upserted{
		Match:         match,
		IsNew:         isNew,
		PreviousScore: previousScore,
	}
	if isNew {
		upserted.Event = models.EventNewMatch
	} else if match.OverallScore > previousScore {
		upserted.Event = models.EventScoreImproved
	}

	s.logger.Debug().
		Str("match_id", match.ID).
		Str("job_id", job.ID).
		Bool("new", isNew).
		Float64("score", match.OverallScore).
		Msg("Persisted match")
	return upserted, nil
}

// buildChildren flattens the per-requirement coverage annotations into
// persisted child rows. Children are always replaced wholesale with their
// parent.
func buildChildren(matchID string, scored *models.ScoredMatch) []*models.JobMatchRequirement {
	annotations := scored.Preliminary.RequirementMatches
	children := make([]*models.JobMatchRequirement, 0, len(annotations))
	for _, rm := range annotations {
		child := &models.JobMatchRequirement{
			ID:              uuid.New().String(),
			JobMatchID:      matchID,
			RequirementID:   rm.Requirement.ID,
			SimilarityScore: rm.Similarity,
			IsCovered:       rm.IsCovered,
			ReqType:         rm.Requirement.ReqType,
		}
		if rm.Evidence != nil {
			child.EvidenceText = rm.Evidence.Text
			child.EvidenceSection = string(rm.Evidence.SourceSection)
		}
		children = append(children, child)
	}
	return children
}

func matchType(scored *models.ScoredMatch) string {
	if scored.HasWantScore {
		return "fit_and_want"
	}
	return "fit_only"
}
