package retrieval

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/gpsalud/consultaflow/types"
)

// Document is an indexed chunk with its embedding.
type Document struct {
	ID        string
	Text      string
	Metadata  map[string]any
	Embedding []float64
}

// MemoryIndex is an in-memory filter-first vector index. The entity filter
// restricts the candidate set before any similarity is computed, so a
// filtered query ranks only that entity's documents.
type MemoryIndex struct {
	mu     sync.RWMutex
	docs   []Document
	logger *zap.Logger
}

// NewMemoryIndex creates an empty in-memory index.
func NewMemoryIndex(logger *zap.Logger) *MemoryIndex {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryIndex{
		docs:   make([]Document, 0),
		logger: logger.With(zap.String("component", "memory_index")),
	}
}

// Add appends documents to the index. Every document needs an embedding.
func (ix *MemoryIndex) Add(ctx context.Context, docs []Document) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	for _, doc := range docs {
		if len(doc.Embedding) == 0 {
			return fmt.Errorf("document %s has no embedding", doc.ID)
		}
		ix.docs = append(ix.docs, doc)
	}

	ix.logger.Info("documents added",
		zap.Int("count", len(docs)),
		zap.Int("total", len(ix.docs)))
	return nil
}

// Count returns the number of indexed documents, optionally per entity.
func (ix *MemoryIndex) Count(filter string) int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if filter == "" {
		return len(ix.docs)
	}
	n := 0
	for _, doc := range ix.docs {
		if docEntity(doc) == strings.ToUpper(filter) {
			n++
		}
	}
	return n
}

// ScoreKind reports that raw scores already are cosine similarities.
func (ix *MemoryIndex) ScoreKind() ScoreKind { return ScoreSimilarity }

// Query ranks the filtered candidate set by cosine similarity and returns
// the best topK, descending.
func (ix *MemoryIndex) Query(ctx context.Context, embedding []float64, topK int, filter string) ([]IndexResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	// Filter first, then score: only matching documents enter ranking.
	results := make([]IndexResult, 0, topK)
	for _, doc := range ix.docs {
		if filter != "" && docEntity(doc) != filter {
			continue
		}
		results = append(results, IndexResult{
			Text:     doc.Text,
			Metadata: doc.Metadata,
			RawScore: cosineSimilarity(embedding, doc.Embedding),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].RawScore > results[j].RawScore
	})

	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func docEntity(doc Document) string {
	if doc.Metadata == nil {
		return ""
	}
	if v, ok := doc.Metadata[types.MetaEntityID].(string); ok {
		return strings.ToUpper(v)
	}
	return ""
}

func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0.0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0.0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
