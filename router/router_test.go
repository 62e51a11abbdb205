package router

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gpsalud/consultaflow/entity"
	"github.com/gpsalud/consultaflow/retrieval"
	"github.com/gpsalud/consultaflow/rewrite"
	"github.com/gpsalud/consultaflow/types"
)

type countingRetriever struct {
	calls     int
	lastQuery string
	lastOpts  retrieval.Options
	chunks    []types.Chunk
	err       error
}

func (r *countingRetriever) Retrieve(_ context.Context, query string, opts retrieval.Options) ([]types.Chunk, error) {
	r.calls++
	r.lastQuery = query
	r.lastOpts = opts
	if r.err != nil {
		return nil, r.err
	}
	return r.chunks, nil
}

type countingGenerator struct {
	calls    int
	lastReq  types.GenerateRequest
	response *types.GenerateResponse
	err      error
}

func (g *countingGenerator) Generate(_ context.Context, req types.GenerateRequest) (*types.GenerateResponse, error) {
	g.calls++
	g.lastReq = req
	if g.err != nil {
		return nil, g.err
	}
	if g.response != nil {
		return g.response, nil
	}
	return &types.GenerateResponse{Text: "respuesta generada"}, nil
}

const testFallback = "Por favor indicá tu obra social para poder ayudarte."

func testDetector() *entity.Detector {
	dict := entity.NewDictionary([]entity.Entry{
		{ID: "ENSALUD", Canonical: "ENSALUD", Aliases: []string{"ensalud"},
			Type: types.EntityInsurer, RAGFilter: "ENSALUD"},
		{ID: "ASI", Canonical: "ASI", Aliases: []string{"a.s.i."},
			Type: types.EntityInsurer, RAGFilter: "ASI"},
	}, testFallback)
	return entity.NewDetector(dict, entity.DetectorConfig{}, nil)
}

func testRewriter() *rewrite.Rewriter {
	table := rewrite.NewTable(
		[]rewrite.Rule{{Pattern: "telefono", Expansion: "contacto número"}},
		map[string][]string{"ENSALUD": {"obra social ENSALUD"}},
	)
	return rewrite.NewRewriter(table, nil)
}

func testRouter(cfg Config, ret Retriever, gen Generator) *Router {
	return New(cfg, testDetector(), testRewriter(), ret, gen, nil, nil, zap.NewNop())
}

func TestRouter_NoEntity_ShortCircuits(t *testing.T) {
	ret := &countingRetriever{}
	gen := &countingGenerator{}
	r := testRouter(DefaultConfig(), ret, gen)

	res, err := r.Process(context.Background(), "¿cuánto cuesta una consulta?")

	require.NoError(t, err)
	assert.Equal(t, testFallback, res.Response)
	assert.False(t, res.Entity.Detected())
	assert.False(t, res.RAGExecuted)
	assert.False(t, res.GenerationExecuted)
	assert.Equal(t, 0, ret.calls)
	assert.Equal(t, 0, gen.calls)

	require.NotNil(t, res.Metrics)
	assert.True(t, res.Metrics.Finalized())
	assert.True(t, res.Metrics.Success)
	assert.False(t, res.Metrics.RAGUsed)
}

func TestRouter_EntityPath(t *testing.T) {
	ret := &countingRetriever{chunks: []types.Chunk{
		{Text: "ENSALUD atiende al 0800-333-3672.", Similarity: 0.91,
			Metadata: map[string]any{types.MetaEntityID: "ENSALUD"}},
		{Text: "Horario de atención: 9 a 18.", Similarity: 0.74,
			Metadata: map[string]any{types.MetaEntityID: "ENSALUD"}},
	}}
	gen := &countingGenerator{response: &types.GenerateResponse{
		Text:  "El teléfono de ENSALUD es 0800-333-3672.",
		Usage: types.GenerateUsage{PromptTokens: 200, CompletionTokens: 20},
	}}
	r := testRouter(DefaultConfig(), ret, gen)

	res, err := r.Process(context.Background(), "¿Teléfono de ENSALUD?")

	require.NoError(t, err)
	assert.Equal(t, "El teléfono de ENSALUD es 0800-333-3672.", res.Response)
	assert.Equal(t, "ENSALUD", res.Entity.Entity)
	assert.True(t, res.RAGExecuted)
	assert.True(t, res.GenerationExecuted)
	assert.Equal(t, 1, ret.calls)
	assert.Equal(t, 1, gen.calls)

	assert.True(t, res.Metrics.RAGUsed)
	assert.Equal(t, 2, res.Metrics.ChunksCount)
	assert.InDelta(t, 0.91, res.Metrics.TopSimilarity, 1e-9)
	assert.Equal(t, 200, res.Metrics.TokensInput)
	assert.Equal(t, 20, res.Metrics.TokensOutput)
}

func TestRouter_RewrittenQueryForRetrievalOnly(t *testing.T) {
	ret := &countingRetriever{chunks: []types.Chunk{{Text: "doc", Similarity: 0.8}}}
	gen := &countingGenerator{}
	r := testRouter(DefaultConfig(), ret, gen)

	query := "¿Teléfono de ENSALUD?"
	_, err := r.Process(context.Background(), query)
	require.NoError(t, err)

	// The retriever sees the expanded query; it grows from the original.
	assert.True(t, strings.HasPrefix(ret.lastQuery, query))
	assert.Greater(t, len(ret.lastQuery), len(query))
	assert.Equal(t, "ENSALUD", ret.lastOpts.Filter)

	// The provider sees the original query as the last message.
	msgs := gen.lastReq.Messages
	require.NotEmpty(t, msgs)
	last := msgs[len(msgs)-1]
	assert.Equal(t, types.RoleUser, last.Role)
	assert.Equal(t, query, last.Content)
}

func TestRouter_ContextAssembly(t *testing.T) {
	ret := &countingRetriever{chunks: []types.Chunk{
		{Text: "primer fragmento", Similarity: 0.9},
		{Text: "segundo fragmento", Similarity: 0.8},
	}}
	gen := &countingGenerator{}
	r := testRouter(DefaultConfig(), ret, gen)

	_, err := r.Process(context.Background(), "teléfono ENSALUD")
	require.NoError(t, err)

	system := gen.lastReq.Messages[0]
	assert.Equal(t, types.RoleSystem, system.Role)
	assert.Contains(t, system.Content, "primer fragmento")
	assert.Contains(t, system.Content, "segundo fragmento")
	assert.Contains(t, system.Content, "---")
}

func TestRouter_EmptyRetrieval_UsesPlaceholder(t *testing.T) {
	ret := &countingRetriever{}
	gen := &countingGenerator{}
	r := testRouter(DefaultConfig(), ret, gen)

	res, err := r.Process(context.Background(), "teléfono ENSALUD")

	require.NoError(t, err)
	assert.True(t, res.RAGExecuted)
	assert.Equal(t, 1, gen.calls)
	assert.Contains(t, gen.lastReq.Messages[0].Content, "No se encontró información relevante.")
	assert.Equal(t, 0, res.Metrics.ChunksCount)
	assert.Zero(t, res.Metrics.TopSimilarity)
}

func TestRouter_RetrievalFailure_Propagates(t *testing.T) {
	ret := &countingRetriever{
		err: types.NewError(types.ErrRetrievalUnavailable, "index down", nil),
	}
	gen := &countingGenerator{}
	r := testRouter(DefaultConfig(), ret, gen)

	res, err := r.Process(context.Background(), "teléfono ENSALUD")

	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, types.IsCode(err, types.ErrRetrievalUnavailable))
	assert.Equal(t, 0, gen.calls)
}

func TestRouter_GenerationFailure_DegradesButCompletes(t *testing.T) {
	ret := &countingRetriever{chunks: []types.Chunk{{Text: "doc", Similarity: 0.8}}}
	gen := &countingGenerator{
		err: types.NewError(types.ErrGenerationFailed, "provider down", nil),
	}
	r := testRouter(DefaultConfig(), ret, gen)

	res, err := r.Process(context.Background(), "teléfono ENSALUD")

	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().GenerationErrorText, res.Response)
	assert.True(t, res.RAGExecuted)
	assert.True(t, res.GenerationExecuted)
	assert.False(t, res.Metrics.Success)
	assert.Contains(t, res.Metrics.ErrorMessage, "provider down")
	assert.True(t, res.Metrics.Finalized())
}

func TestRouter_TokenFallbackWhenProviderReportsNoUsage(t *testing.T) {
	ret := &countingRetriever{chunks: []types.Chunk{{Text: "doc", Similarity: 0.8}}}
	gen := &countingGenerator{response: &types.GenerateResponse{Text: "respuesta sin usage"}}
	r := testRouter(DefaultConfig(), ret, gen)

	res, err := r.Process(context.Background(), "teléfono ENSALUD")

	require.NoError(t, err)
	assert.Greater(t, res.Metrics.TokensInput, 0)
	assert.Greater(t, res.Metrics.TokensOutput, 0)
}

func TestRouter_CostAccounting(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CostInputPerMillion = 0.05
	cfg.CostOutputPerMillion = 0.08
	ret := &countingRetriever{chunks: []types.Chunk{{Text: "doc", Similarity: 0.8}}}
	gen := &countingGenerator{response: &types.GenerateResponse{
		Text:  "ok",
		Usage: types.GenerateUsage{PromptTokens: 1_000_000, CompletionTokens: 500_000},
	}}
	r := testRouter(cfg, ret, gen)

	res, err := r.Process(context.Background(), "teléfono ENSALUD")

	require.NoError(t, err)
	assert.InDelta(t, 0.05, res.Metrics.CostInput, 1e-9)
	assert.InDelta(t, 0.04, res.Metrics.CostOutput, 1e-9)
	assert.InDelta(t, 0.09, res.Metrics.CostTotal, 1e-9)
}

func TestRouter_SessionHistory(t *testing.T) {
	ret := &countingRetriever{chunks: []types.Chunk{{Text: "doc", Similarity: 0.8}}}
	gen := &countingGenerator{}
	r := testRouter(DefaultConfig(), ret, gen)
	sid := NewSessionID()

	_, err := r.ProcessSession(context.Background(), sid, "¿teléfono de ENSALUD?")
	require.NoError(t, err)
	_, err = r.ProcessSession(context.Background(), sid, "¿y el horario de ENSALUD?")
	require.NoError(t, err)

	// Second call carried the first exchange: system + 2 history + user.
	require.Len(t, gen.lastReq.Messages, 4)
	assert.Equal(t, types.RoleUser, gen.lastReq.Messages[1].Role)
	assert.Equal(t, "¿teléfono de ENSALUD?", gen.lastReq.Messages[1].Content)
	assert.Equal(t, types.RoleAssistant, gen.lastReq.Messages[2].Role)
}

func TestRouter_SessionHistory_BoundedEvictsOldest(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxHistoryTurns = 2
	ret := &countingRetriever{chunks: []types.Chunk{{Text: "doc", Similarity: 0.8}}}
	gen := &countingGenerator{}
	r := testRouter(cfg, ret, gen)
	sid := NewSessionID()

	for i := 0; i < 4; i++ {
		_, err := r.ProcessSession(context.Background(), sid,
			fmt.Sprintf("consulta %d sobre ENSALUD", i))
		require.NoError(t, err)
	}

	// Last call: system + 2*2 history + user = 6; oldest turns gone.
	require.Len(t, gen.lastReq.Messages, 6)
	assert.Equal(t, "consulta 1 sobre ENSALUD", gen.lastReq.Messages[1].Content)
	assert.Equal(t, "consulta 2 sobre ENSALUD", gen.lastReq.Messages[3].Content)
}

func TestRouter_SessionHistory_NoCrossSessionLeak(t *testing.T) {
	ret := &countingRetriever{chunks: []types.Chunk{{Text: "doc", Similarity: 0.8}}}
	gen := &countingGenerator{}
	r := testRouter(DefaultConfig(), ret, gen)

	_, err := r.ProcessSession(context.Background(), "session-a", "teléfono ENSALUD")
	require.NoError(t, err)
	_, err = r.ProcessSession(context.Background(), "session-b", "horario ENSALUD")
	require.NoError(t, err)

	// Session B starts empty: system + user only.
	assert.Len(t, gen.lastReq.Messages, 2)
}

func TestRouter_SessionHistory_FailedGenerationNotRemembered(t *testing.T) {
	ret := &countingRetriever{chunks: []types.Chunk{{Text: "doc", Similarity: 0.8}}}
	gen := &countingGenerator{
		err: types.NewError(types.ErrGenerationFailed, "down", nil),
	}
	r := testRouter(DefaultConfig(), ret, gen)
	sid := NewSessionID()

	_, err := r.ProcessSession(context.Background(), sid, "teléfono ENSALUD")
	require.NoError(t, err)

	gen.err = nil
	_, err = r.ProcessSession(context.Background(), sid, "horario ENSALUD")
	require.NoError(t, err)

	assert.Len(t, gen.lastReq.Messages, 2)
}

func TestRouter_Reset(t *testing.T) {
	ret := &countingRetriever{chunks: []types.Chunk{{Text: "doc", Similarity: 0.8}}}
	gen := &countingGenerator{}
	r := testRouter(DefaultConfig(), ret, gen)
	sid := NewSessionID()

	_, err := r.ProcessSession(context.Background(), sid, "teléfono ENSALUD")
	require.NoError(t, err)
	r.Reset(sid)
	_, err = r.ProcessSession(context.Background(), sid, "horario ENSALUD")
	require.NoError(t, err)

	assert.Len(t, gen.lastReq.Messages, 2)
}

func TestRouter_FixedResponse_RecordsEntityOutcome(t *testing.T) {
	r := testRouter(DefaultConfig(), &countingRetriever{}, &countingGenerator{})

	res, err := r.Process(context.Background(), "hola, tengo una duda")

	require.NoError(t, err)
	assert.Empty(t, res.Metrics.Entity)
	assert.Equal(t, string(types.ConfidenceNone), res.Metrics.EntityConf)
}
