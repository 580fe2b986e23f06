package matches

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aptus/internal/common"
	"github.com/ternarybob/aptus/internal/interfaces"
	"github.com/ternarybob/aptus/internal/models"
	storagebadger "github.com/ternarybob/aptus/internal/storage/badger"
)

func newMatchStore(t *testing.T) interfaces.MatchStore {
	t.Helper()
	logger := arbor.NewLogger()
	db, err := storagebadger.NewDB(logger, &common.DatabaseConfig{URL: t.TempDir() + "/data"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return storagebadger.NewMatchStorage(db, logger)
}

func scoredFor(jobID, contentHash string, overall float64) *models.ScoredMatch {
	minYears := 3.0
	return &models.ScoredMatch{
		Preliminary: &models.PreliminaryMatch{
			Job: &models.Job{ID: jobID, ContentHash: contentHash, Title: "Engineer", Company: "Acme"},
			RequirementMatches: []models.RequirementMatchResult{
				{
					Requirement: &models.JobRequirementUnit{ID: "r1", JobID: jobID, ReqType: models.ReqTypeRequired, MinYears: &minYears},
					Evidence:    &models.EvidenceUnit{ID: "e1", Text: "built Go services", SourceSection: models.SectionExperience},
					Similarity:  0.8,
					IsCovered:   true,
				},
			},
			ResumeFingerprint: "resume-1",
		},
		OverallScore:     overall,
		FitScore:         overall,
		RequiredCoverage: 1.0,
	}
}

func TestPersist_CreatesNewMatch(t *testing.T) {
	store := newMatchStore(t)
	service := NewService(store, true, arbor.NewLogger())
	ctx := context.Background()

	upserted, err := service.Persist(ctx, scoredFor("job-1", "hash-a", 80))
	require.NoError(t, err)
	require.NotNil(t, upserted)
	assert.True(t, upserted.IsNew)
	assert.Equal(t, models.EventNewMatch, upserted.Event)
	assert.Equal(t, models.MatchStatusActive, upserted.Match.Status)
	assert.False(t, upserted.Match.Notified)

	children, err := store.RequirementsFor(ctx, upserted.Match.ID)
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, "built Go services", children[0].EvidenceText)
	assert.Equal(t, "experience", children[0].EvidenceSection)
}

func TestPersist_RecalculationPreservesNotifiedAndID(t *testing.T) {
	store := newMatchStore(t)
	service := NewService(store, true, arbor.NewLogger())
	ctx := context.Background()

	first, err := service.Persist(ctx, scoredFor("job-1", "hash-a", 80))
	require.NoError(t, err)

	// User was notified about this match
	first.Match.Notified = true
	require.NoError(t, store.Save(ctx, first.Match))

	second, err := service.Persist(ctx, scoredFor("job-1", "hash-a", 85))
	require.NoError(t, err)
	require.NotNil(t, second)

	assert.False(t, second.IsNew)
	assert.Equal(t, first.Match.ID, second.Match.ID)
	assert.True(t, second.Match.Notified)
	assert.Equal(t, 85.0, second.Match.OverallScore)
	assert.Equal(t, models.EventScoreImproved, second.Event)
	assert.Equal(t, 80.0, second.PreviousScore)
}

func TestPersist_NoEventWhenScoreDrops(t *testing.T) {
	store := newMatchStore(t)
	service := NewService(store, true, arbor.NewLogger())
	ctx := context.Background()

	_, err := service.Persist(ctx, scoredFor("job-1", "hash-a", 80))
	require.NoError(t, err)

	second, err := service.Persist(ctx, scoredFor("job-1", "hash-a", 70))
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Empty(t, second.Event)
}

func TestPersist_RecalculateDisabledSkipsUnchangedContent(t *testing.T) {
	store := newMatchStore(t)
	service := NewService(store, false, arbor.NewLogger())
	ctx := context.Background()

	first, err := service.Persist(ctx, scoredFor("job-1", "hash-a", 80))
	require.NoError(t, err)
	require.NotNil(t, first)

	// Same content: skipped entirely
	second, err := service.Persist(ctx, scoredFor("job-1", "hash-a", 90))
	require.NoError(t, err)
	assert.Nil(t, second)

	// Changed content opens a new row even with recalculation disabled
	third, err := service.Persist(ctx, scoredFor("job-1", "hash-b", 90))
	require.NoError(t, err)
	require.NotNil(t, third)
	assert.True(t, third.IsNew)
	assert.Equal(t, "hash-b", third.Match.JobContentHash)
}

func TestPersist_ContentChangeStalesOldRowAndOpensNew(t *testing.T) {
	store := newMatchStore(t)
	service := NewService(store, true, arbor.NewLogger())
	ctx := context.Background()

	first, err := service.Persist(ctx, scoredFor("job-1", "hash-a", 80))
	require.NoError(t, err)

	first.Match.Notified = true
	require.NoError(t, store.Save(ctx, first.Match))

	second, err := service.Persist(ctx, scoredFor("job-1", "hash-b", 85))
	require.NoError(t, err)
	require.NotNil(t, second)

	// The replacement is a brand-new match, eligible for notification again
	assert.True(t, second.IsNew)
	assert.NotEqual(t, first.Match.ID, second.Match.ID)
	assert.Equal(t, models.EventNewMatch, second.Event)
	assert.False(t, second.Match.Notified)
	assert.Equal(t, models.MatchStatusActive, second.Match.Status)

	// The old row survives as stale history
	old, err := store.Get(ctx, first.Match.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MatchStatusStale, old.Status)
	assert.Equal(t, "Job content updated", old.InvalidatedReason)
	assert.True(t, old.Notified)

	active, err := store.ActiveMatch(ctx, "job-1", "resume-1")
	require.NoError(t, err)
	assert.Equal(t, second.Match.ID, active.ID)
}

func TestPersist_ReplacesChildrenWholesale(t *testing.T) {
	store := newMatchStore(t)
	service := NewService(store, true, arbor.NewLogger())
	ctx := context.Background()

	first, err := service.Persist(ctx, scoredFor("job-1", "hash-a", 80))
	require.NoError(t, err)

	second, err := service.Persist(ctx, scoredFor("job-1", "hash-a", 82))
	require.NoError(t, err)

	children, err := store.RequirementsFor(ctx, second.Match.ID)
	require.NoError(t, err)
	assert.Len(t, children, 1)
	assert.Equal(t, first.Match.ID, second.Match.ID)
}

func TestPersistAll_Counters(t *testing.T) {
	store := newMatchStore(t)
	service := NewService(store, true, arbor.NewLogger())
	ctx := context.Background()

	_, err := service.Persist(ctx, scoredFor("job-1", "hash-a", 80))
	require.NoError(t, err)

	result, err := service.PersistAll(ctx, []*models.ScoredMatch{
		scoredFor("job-1", "hash-a", 85),
		scoredFor("job-2", "hash-b", 60),
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 1, result.Updated)
	require.Len(t, result.Events, 2)
}
