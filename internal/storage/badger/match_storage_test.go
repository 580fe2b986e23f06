package badger

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aptus/internal/interfaces"
	"github.com/ternarybob/aptus/internal/models"
)

func activeMatch(id, jobID, resumeFingerprint string) *models.JobMatch {
	return &models.JobMatch{
		ID:                id,
		JobID:             jobID,
		ResumeFingerprint: resumeFingerprint,
		Status:            models.MatchStatusActive,
		OverallScore:      75,
	}
}

func TestActiveMatch_FindsOnlyActive(t *testing.T) {
	db := newTestDB(t)
	store := NewMatchStorage(db, arbor.NewLogger())
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, activeMatch("m1", "job-1", "resume-1")))
	stale := activeMatch("m2", "job-1", "resume-1")
	stale.Status = models.MatchStatusStale
	require.NoError(t, store.Save(ctx, stale))

	found, err := store.ActiveMatch(ctx, "job-1", "resume-1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "m1", found.ID)

	none, err := store.ActiveMatch(ctx, "job-2", "resume-1")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestInvalidateForJob_FlipsActiveToStale(t *testing.T) {
	db := newTestDB(t)
	store := NewMatchStorage(db, arbor.NewLogger())
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, activeMatch("m1", "job-1", "resume-1")))
	require.NoError(t, store.Save(ctx, activeMatch("m2", "job-1", "resume-2")))
	require.NoError(t, store.Save(ctx, activeMatch("m3", "job-2", "resume-1")))

	count, err := store.InvalidateForJob(ctx, "job-1", "Job content updated")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	m1, err := store.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, models.MatchStatusStale, m1.Status)
	assert.Equal(t, "Job content updated", m1.InvalidatedReason)

	// The retained history row keeps its score
	assert.Equal(t, 75.0, m1.OverallScore)

	m3, err := store.Get(ctx, "m3")
	require.NoError(t, err)
	assert.Equal(t, models.MatchStatusActive, m3.Status)
}

func TestInvalidateForResume(t *testing.T) {
	db := newTestDB(t)
	store := NewMatchStorage(db, arbor.NewLogger())
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, activeMatch("m1", "job-1", "resume-old")))
	require.NoError(t, store.Save(ctx, activeMatch("m2", "job-2", "resume-new")))

	count, err := store.InvalidateForResume(ctx, "resume-old", "Resume updated")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	m2, err := store.Get(ctx, "m2")
	require.NoError(t, err)
	assert.Equal(t, models.MatchStatusActive, m2.Status)
}

func TestReplaceRequirements_Wholesale(t *testing.T) {
	db := newTestDB(t)
	store := NewMatchStorage(db, arbor.NewLogger())
	ctx := context.Background()

	first := []*models.JobMatchRequirement{
		{ID: "c1", JobMatchID: "m1", RequirementID: "r1", IsCovered: true},
		{ID: "c2", JobMatchID: "m1", RequirementID: "r2"},
	}
	require.NoError(t, store.ReplaceRequirements(ctx, "m1", first))

	second := []*models.JobMatchRequirement{
		{ID: "c3", JobMatchID: "m1", RequirementID: "r1", IsCovered: true},
	}
	require.NoError(t, store.ReplaceRequirements(ctx, "m1", second))

	children, err := store.RequirementsFor(ctx, "m1")
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, "c3", children[0].ID)
}

func TestTopJobsBySimilarity(t *testing.T) {
	db := newTestDB(t)
	jobStore := NewJobStorage(db, arbor.NewLogger())
	store := NewMatchStorage(db, arbor.NewLogger())
	ctx := context.Background()

	embedded := func(id string, embedding []float32, remote bool) *models.Job {
		job := claimableJob(id)
		job.SummaryEmbedding = embedding
		job.IsRemote = remote
		return job
	}

	require.NoError(t, jobStore.Save(ctx, embedded("job-exact", []float32{1, 0}, true)))
	require.NoError(t, jobStore.Save(ctx, embedded("job-close", []float32{0.9, 0.1}, false)))
	require.NoError(t, jobStore.Save(ctx, embedded("job-far", []float32{0, 1}, true)))

	unembedded := claimableJob("job-unembedded")
	unembedded.IsEmbedded = false
	require.NoError(t, jobStore.Save(ctx, unembedded))

	results, err := store.TopJobsBySimilarity(ctx, []float32{1, 0}, 2, interfaces.MatchFilters{})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "job-exact", results[0].Job.ID)
	assert.Equal(t, "job-close", results[1].Job.ID)
	assert.Greater(t, results[0].Similarity, results[1].Similarity)
}

func TestTopJobsBySimilarity_RemoteOnlyFilter(t *testing.T) {
	db := newTestDB(t)
	jobStore := NewJobStorage(db, arbor.NewLogger())
	store := NewMatchStorage(db, arbor.NewLogger())
	ctx := context.Background()

	for i, remote := range []bool{true, false, true} {
		job := claimableJob(fmt.Sprintf("job-%d", i))
		job.SummaryEmbedding = []float32{1, 0}
		job.IsRemote = remote
		require.NoError(t, jobStore.Save(ctx, job))
	}

	results, err := store.TopJobsBySimilarity(ctx, []float32{1, 0}, 10, interfaces.MatchFilters{RemoteOnly: true})
	require.NoError(t, err)
	assert.Len(t, results, 2)
	for _, r := range results {
		assert.True(t, r.Job.IsRemote)
	}
}
