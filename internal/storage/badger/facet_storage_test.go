package badger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aptus/internal/models"
)

func facetRow(jobID string, key models.FacetKey, text string) *models.JobFacetEmbedding {
	return &models.JobFacetEmbedding{
		JobID:       jobID,
		FacetKey:    key,
		FacetText:   text,
		Embedding:   []float32{1, 0},
		ContentHash: "hash-1",
	}
}

func TestFacetReplaceForJob_Idempotent(t *testing.T) {
	db := newTestDB(t)
	store := NewFacetStorage(db, arbor.NewLogger())
	ctx := context.Background()

	first := []*models.JobFacetEmbedding{
		facetRow("job-1", models.FacetTechStack, "Go, Postgres"),
		facetRow("job-1", models.FacetCompensation, "90-120k EUR"),
	}
	require.NoError(t, store.ReplaceForJob(ctx, "job-1", first))
	require.NoError(t, store.ReplaceForJob(ctx, "job-1", first))

	facets, err := store.ListForJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Len(t, facets, 2)
	for _, f := range facets {
		assert.Equal(t, models.FacetRowKey(f.JobID, f.FacetKey), f.ID)
	}
}

func TestFacetReplaceForJob_DropsRemovedKeys(t *testing.T) {
	db := newTestDB(t)
	store := NewFacetStorage(db, arbor.NewLogger())
	ctx := context.Background()

	require.NoError(t, store.ReplaceForJob(ctx, "job-1", []*models.JobFacetEmbedding{
		facetRow("job-1", models.FacetTechStack, "Go"),
		facetRow("job-1", models.FacetWorkLifeBalance, "flexible hours"),
	}))

	// Re-extraction found only one facet this time
	require.NoError(t, store.ReplaceForJob(ctx, "job-1", []*models.JobFacetEmbedding{
		facetRow("job-1", models.FacetTechStack, "Go, Kafka"),
	}))

	facets, err := store.ListForJob(ctx, "job-1")
	require.NoError(t, err)
	require.Len(t, facets, 1)
	assert.Equal(t, models.FacetTechStack, facets[0].FacetKey)
	assert.Equal(t, "Go, Kafka", facets[0].FacetText)
}

func TestFacetReplaceForJob_ScopedToJob(t *testing.T) {
	db := newTestDB(t)
	store := NewFacetStorage(db, arbor.NewLogger())
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, facetRow("job-1", models.FacetTechStack, "Go")))
	require.NoError(t, store.Upsert(ctx, facetRow("job-2", models.FacetTechStack, "Rust")))

	require.NoError(t, store.ReplaceForJob(ctx, "job-1", nil))

	gone, err := store.ListForJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Empty(t, gone)

	kept, err := store.ListForJob(ctx, "job-2")
	require.NoError(t, err)
	assert.Len(t, kept, 1)
}
