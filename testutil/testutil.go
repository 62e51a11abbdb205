// Package testutil provides call-counting fakes for the pipeline
// collaborators. Tests assert on call counts to prove which stages ran.
package testutil

import (
	"context"
	"crypto/sha256"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/gpsalud/consultaflow/retrieval"
	"github.com/gpsalud/consultaflow/types"
)

// Context returns a test context cancelled at cleanup.
func Context(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// HashEmbedder derives a deterministic unit vector from the text bytes.
// Identical text always embeds to the identical vector.
type HashEmbedder struct {
	mu    sync.Mutex
	Dim   int
	Calls int
	Texts []string
	Err   error
}

func (e *HashEmbedder) Embed(_ context.Context, texts []string) ([][]float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.Calls++
	e.Texts = append(e.Texts, texts...)
	if e.Err != nil {
		return nil, e.Err
	}

	dim := e.Dim
	if dim <= 0 {
		dim = 8
	}
	out := make([][]float64, len(texts))
	for i, text := range texts {
		out[i] = hashVector(text, dim)
	}
	return out, nil
}

func hashVector(text string, dim int) []float64 {
	sum := sha256.Sum256([]byte(text))
	vec := make([]float64, dim)
	var norm float64
	for i := 0; i < dim; i++ {
		v := float64(sum[i%len(sum)]) - 127.5
		vec[i] = v
		norm += v * v
	}
	if norm == 0 {
		vec[0] = 1
		return vec
	}
	scale := 1 / math.Sqrt(norm)
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}

// StaticIndex returns fixed results and records queries.
type StaticIndex struct {
	mu      sync.Mutex
	Results []retrieval.IndexResult
	Kind    retrieval.ScoreKind
	Calls   int
	Filters []string
	Err     error
}

func (s *StaticIndex) Query(_ context.Context, _ []float64, topK int, filter string) ([]retrieval.IndexResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Calls++
	s.Filters = append(s.Filters, filter)
	if s.Err != nil {
		return nil, s.Err
	}
	if len(s.Results) > topK {
		return s.Results[:topK], nil
	}
	return s.Results, nil
}

func (s *StaticIndex) ScoreKind() retrieval.ScoreKind {
	if s.Kind == "" {
		return retrieval.ScoreSimilarity
	}
	return s.Kind
}

// StaticProvider answers every generation with a fixed response.
type StaticProvider struct {
	mu       sync.Mutex
	Response string
	Usage    types.GenerateUsage
	Calls    int
	Requests []types.GenerateRequest
	Err      error
}

func (p *StaticProvider) Generate(_ context.Context, req types.GenerateRequest) (*types.GenerateResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Calls++
	p.Requests = append(p.Requests, req)
	if p.Err != nil {
		return nil, p.Err
	}
	return &types.GenerateResponse{Text: p.Response, Usage: p.Usage}, nil
}

func (p *StaticProvider) Name() string  { return "static" }
func (p *StaticProvider) Model() string { return "static-test-model" }

func (p *StaticProvider) HealthCheck(context.Context) error { return p.Err }
