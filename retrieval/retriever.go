package retrieval

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/gpsalud/consultaflow/types"
)

// Embedder is the embedding collaborator. Implementations must be
// deterministic for identical input and return unit-normalized vectors
// suitable for cosine similarity.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// ScoreKind declares how an index expresses similarity in its raw scores.
type ScoreKind string

const (
	// ScoreSimilarity: raw score already is cosine similarity in [0,1].
	ScoreSimilarity ScoreKind = "similarity"
	// ScoreCosineDistance: raw score is a cosine distance in [0,2];
	// similarity = 1 - distance/2.
	ScoreCosineDistance ScoreKind = "cosine_distance"
	// ScoreInnerProduct: raw score is an inner product of unit vectors in
	// [-1,1]; similarity = (score+1)/2.
	ScoreInnerProduct ScoreKind = "inner_product"
)

// IndexResult is one raw hit from an index collaborator.
type IndexResult struct {
	Text     string
	Metadata map[string]any
	RawScore float64
}

// Index is the vector index collaborator. Query MUST apply the metadata
// filter (exact match on the entity field, already upper-cased by the
// retriever) before ranking, and return results ordered best-first.
type Index interface {
	Query(ctx context.Context, embedding []float64, topK int, filter string) ([]IndexResult, error)
	ScoreKind() ScoreKind
}

// Similarity converts a raw index score to cosine similarity in [0,1].
func Similarity(kind ScoreKind, raw float64) float64 {
	var s float64
	switch kind {
	case ScoreCosineDistance:
		s = 1 - raw/2
	case ScoreInnerProduct:
		s = (raw + 1) / 2
	default:
		s = raw
	}
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

// Options tune a single retrieval call.
type Options struct {
	TopK     int     // result cap, default 5
	Filter   string  // entity filter, "" = unfiltered
	MinScore float64 // minimum similarity to keep a result
}

// DefaultOptions returns the retrieval defaults used by the router.
func DefaultOptions() Options {
	return Options{TopK: 5, MinScore: 0.3}
}

// Retriever embeds query text and searches the index collaborator.
type Retriever struct {
	embedder Embedder
	index    Index
	logger   *zap.Logger
}

// NewRetriever creates a retriever over the given collaborators.
func NewRetriever(embedder Embedder, index Index, logger *zap.Logger) *Retriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{
		embedder: embedder,
		index:    index,
		logger:   logger.With(zap.String("component", "retriever")),
	}
}

// Retrieve returns up to opts.TopK chunks ordered by similarity descending,
// all with similarity >= opts.MinScore and, when opts.Filter is set, all
// belonging to that entity.
//
// An embedding or index failure yields a RETRIEVAL_UNAVAILABLE error; zero
// results yield an empty slice and a nil error.
func (r *Retriever) Retrieve(ctx context.Context, query string, opts Options) ([]types.Chunk, error) {
	if opts.TopK <= 0 {
		opts.TopK = DefaultOptions().TopK
	}

	vectors, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, types.NewError(types.ErrRetrievalUnavailable, "embed query", err)
	}
	if len(vectors) == 0 {
		return nil, types.NewError(types.ErrRetrievalUnavailable, "embedder returned no vectors", nil)
	}

	filter := strings.ToUpper(strings.TrimSpace(opts.Filter))

	results, err := r.index.Query(ctx, vectors[0], opts.TopK, filter)
	if err != nil {
		return nil, types.NewError(types.ErrRetrievalUnavailable, "index query", err)
	}

	kind := r.index.ScoreKind()
	chunks := make([]types.Chunk, 0, len(results))
	for _, res := range results {
		sim := Similarity(kind, res.RawScore)
		if sim < opts.MinScore {
			continue
		}
		chunks = append(chunks, types.Chunk{
			Text:       res.Text,
			Metadata:   res.Metadata,
			Similarity: sim,
		})
	}

	// Indexes are expected to rank best-first already; re-sort only when
	// one does not, so a correct collaborator's order is never disturbed.
	if !sort.SliceIsSorted(chunks, func(i, j int) bool {
		return chunks[i].Similarity > chunks[j].Similarity
	}) {
		sort.SliceStable(chunks, func(i, j int) bool {
			return chunks[i].Similarity > chunks[j].Similarity
		})
	}

	if len(chunks) > opts.TopK {
		chunks = chunks[:opts.TopK]
	}

	top := 0.0
	if len(chunks) > 0 {
		top = chunks[0].Similarity
	}
	r.logger.Debug("retrieval done",
		zap.String("filter", filter),
		zap.Int("chunks", len(chunks)),
		zap.Float64("top_similarity", top))

	return chunks, nil
}
