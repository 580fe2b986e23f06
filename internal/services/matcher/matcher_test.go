package matcher

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/aptus/internal/models"
)

func TestCompositeVector(t *testing.T) {
	sections := []*models.ResumeSectionEmbedding{
		{Embedding: []float32{1, 0}},
		{Embedding: []float32{0, 1}},
		{Embedding: nil}, // interrupted embedding, skipped
	}

	composite := CompositeVector(sections)
	require.Len(t, composite, 2)

	// (1,1) normalized
	assert.InDelta(t, 1/math.Sqrt2, float64(composite[0]), 1e-6)
	assert.InDelta(t, 1/math.Sqrt2, float64(composite[1]), 1e-6)

	var norm float64
	for _, v := range composite {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, norm, 1e-6)
}

func TestCompositeVector_NoEmbeddings(t *testing.T) {
	assert.Nil(t, CompositeVector(nil))
	assert.Nil(t, CompositeVector([]*models.ResumeSectionEmbedding{{Embedding: nil}}))
}

func TestBestEvidence(t *testing.T) {
	evidence := []*models.EvidenceUnit{
		{ID: "e1", Embedding: []float32{1, 0}},
		{ID: "e2", Embedding: []float32{0.6, 0.8}},
		{ID: "e3"}, // no embedding, skipped
	}

	best, sim := bestEvidence([]float32{0.6, 0.8}, evidence)
	require.NotNil(t, best)
	assert.Equal(t, "e2", best.ID)
	assert.InDelta(t, 1.0, sim, 1e-6)

	none, sim := bestEvidence([]float32{1, 0}, []*models.EvidenceUnit{{ID: "e3"}})
	assert.Nil(t, none)
	assert.Zero(t, sim)
}
