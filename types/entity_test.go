package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEntityResult_Detected(t *testing.T) {
	detected := EntityResult{
		Entity:     "ENSALUD",
		Type:       EntityInsurer,
		RAGFilter:  "ENSALUD",
		Confidence: ConfidenceExact,
	}
	assert.True(t, detected.Detected())

	assert.False(t, NoEntity().Detected())
	assert.Equal(t, ConfidenceNone, NoEntity().Confidence)
}

func TestChunk_MetadataAccessors(t *testing.T) {
	c := Chunk{
		Text: "Teléfono: 0800-222-1234",
		Metadata: map[string]any{
			MetaEntityID: "ASI",
			MetaChunkID:  "T047",
		},
		Similarity: 0.91,
	}

	assert.Equal(t, "ASI", c.EntityID())
	assert.Equal(t, "T047", c.ChunkID())

	empty := Chunk{}
	assert.Equal(t, "", empty.EntityID())
	assert.Equal(t, "", empty.ChunkID())
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 5, EstimateTokens("veinte letras aqui.."))
}
