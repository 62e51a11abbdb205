package retrieval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gpsalud/consultaflow/types"
)

func doc(id, entity, text string, embedding []float64) Document {
	return Document{
		ID:   id,
		Text: text,
		Metadata: map[string]any{
			types.MetaEntityID: entity,
			types.MetaChunkID:  id,
		},
		Embedding: embedding,
	}
}

func seededIndex(t *testing.T) *MemoryIndex {
	t.Helper()
	ix := NewMemoryIndex(zap.NewNop())
	require.NoError(t, ix.Add(context.Background(), []Document{
		doc("ASI_T001", "ASI", "Teléfono ASI: 0800-222-1234", []float64{1, 0, 0}),
		doc("ASI_T002", "ASI", "Coseguro especialista ASI", []float64{0.9, 0.1, 0}),
		doc("ENSALUD_T001", "ENSALUD", "Teléfono ENSALUD: 0810-333-4444", []float64{1, 0, 0}),
		doc("IOSFA_T001", "IOSFA", "Guardia IOSFA requisitos", []float64{0, 1, 0}),
	}))
	return ix
}

func TestMemoryIndex_Add_RequiresEmbedding(t *testing.T) {
	ix := NewMemoryIndex(zap.NewNop())
	err := ix.Add(context.Background(), []Document{{ID: "X", Text: "no vector"}})
	assert.Error(t, err)
}

func TestMemoryIndex_Query_FilterFirst(t *testing.T) {
	ix := seededIndex(t)

	// The ENSALUD document is the global best match for [1,0,0], tied with
	// ASI_T001. With filter=ASI and topK=1 the ASI document must still be
	// returned: the filter is applied before ranking, not after.
	results, err := ix.Query(context.Background(), []float64{1, 0, 0}, 1, "ASI")
	require.NoError(t, err)

	require.Len(t, results, 1)
	assert.Equal(t, "ASI", results[0].Metadata[types.MetaEntityID])
	assert.InDelta(t, 1.0, results[0].RawScore, 1e-9)
}

func TestMemoryIndex_Query_AllResultsMatchFilter(t *testing.T) {
	ix := seededIndex(t)

	results, err := ix.Query(context.Background(), []float64{1, 0, 0}, 10, "ASI")
	require.NoError(t, err)

	require.Len(t, results, 2)
	for _, res := range results {
		assert.Equal(t, "ASI", res.Metadata[types.MetaEntityID])
	}
	assert.True(t, results[0].RawScore >= results[1].RawScore)
}

func TestMemoryIndex_Query_Unfiltered(t *testing.T) {
	ix := seededIndex(t)

	results, err := ix.Query(context.Background(), []float64{0, 1, 0}, 10, "")
	require.NoError(t, err)

	require.Len(t, results, 4)
	assert.Equal(t, "IOSFA", results[0].Metadata[types.MetaEntityID])
}

func TestMemoryIndex_Query_NoMatchesIsEmpty(t *testing.T) {
	ix := seededIndex(t)

	results, err := ix.Query(context.Background(), []float64{1, 0, 0}, 5, "OSDE")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestMemoryIndex_Count(t *testing.T) {
	ix := seededIndex(t)

	assert.Equal(t, 4, ix.Count(""))
	assert.Equal(t, 2, ix.Count("ASI"))
	assert.Equal(t, 2, ix.Count("asi"))
	assert.Equal(t, 0, ix.Count("OSDE"))
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float64{1, 0}, []float64{1, 0}), 1e-9)
	assert.InDelta(t, 0.0, cosineSimilarity([]float64{1, 0}, []float64{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, cosineSimilarity([]float64{1, 0}, []float64{-1, 0}), 1e-9)
	assert.Equal(t, 0.0, cosineSimilarity([]float64{1, 0}, []float64{1}))
	assert.Equal(t, 0.0, cosineSimilarity([]float64{0, 0}, []float64{0, 0}))
}

func TestMemoryIndex_EndToEndWithRetriever(t *testing.T) {
	ix := seededIndex(t)
	r := NewRetriever(&stubEmbedder{vector: []float64{1, 0, 0}}, ix, zap.NewNop())

	chunks, err := r.Retrieve(context.Background(), "teléfono de ASI", Options{TopK: 5, Filter: "ASI", MinScore: 0.3})
	require.NoError(t, err)

	require.NotEmpty(t, chunks)
	assert.Contains(t, chunks[0].Text, "0800-222-1234")
	assert.GreaterOrEqual(t, chunks[0].Similarity, 0.3)
	for _, c := range chunks {
		assert.Equal(t, "ASI", c.EntityID())
	}
}
