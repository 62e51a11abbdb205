// Package router orchestrates a query through entity detection, rewriting,
// filtered retrieval, and generation. The no-entity path short-circuits
// before any retrieval or generation work happens.
package router

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/gpsalud/consultaflow/entity"
	"github.com/gpsalud/consultaflow/metrics"
	"github.com/gpsalud/consultaflow/retrieval"
	"github.com/gpsalud/consultaflow/rewrite"
	"github.com/gpsalud/consultaflow/types"
)

// Retriever is the retrieval collaborator the router consumes.
type Retriever interface {
	Retrieve(ctx context.Context, query string, opts retrieval.Options) ([]types.Chunk, error)
}

// Generator is the generation collaborator the router consumes.
type Generator interface {
	Generate(ctx context.Context, req types.GenerateRequest) (*types.GenerateResponse, error)
}

// Config tunes one router instance. One parameterized router serves every
// scenario; scenarios differ only in this config and the injected
// collaborators.
type Config struct {
	SystemPrompt    string  `yaml:"system_prompt" json:"system_prompt"`
	TopK            int     `yaml:"top_k" json:"top_k"`
	MinScore        float64 `yaml:"min_score" json:"min_score"`
	MaxHistoryTurns int     `yaml:"max_history_turns" json:"max_history_turns"`

	// ContextHeader introduces the retrieved chunks inside the system
	// message. NoContextText stands in when retrieval returned nothing.
	ContextHeader string `yaml:"context_header" json:"context_header"`
	NoContextText string `yaml:"no_context_text" json:"no_context_text"`

	// GenerationErrorText is the degraded response returned when the
	// provider fails. The request still completes; Success goes false.
	GenerationErrorText string `yaml:"generation_error_text" json:"generation_error_text"`

	// Per-million USD token prices for cost accounting. Zero means free
	// (local models).
	CostInputPerMillion  float64 `yaml:"cost_input_per_million" json:"cost_input_per_million"`
	CostOutputPerMillion float64 `yaml:"cost_output_per_million" json:"cost_output_per_million"`
}

// DefaultConfig returns the router defaults for the consulta scenarios.
func DefaultConfig() Config {
	return Config{
		SystemPrompt: "Sos un asistente de GPSalud que responde consultas sobre " +
			"obras sociales usando únicamente la información del contexto. " +
			"Si el contexto no alcanza, decilo claramente.",
		TopK:            5,
		MinScore:        0.3,
		MaxHistoryTurns: 5,
		ContextHeader:   "Contexto:",
		NoContextText:   "No se encontró información relevante.",
		GenerationErrorText: "Disculpá, no pude generar una respuesta en este " +
			"momento. Por favor intentá de nuevo.",
	}
}

// Result is the outcome of one processed query.
type Result struct {
	Response string             `json:"response"`
	Entity   types.EntityResult `json:"entity"`
	Chunks   []types.Chunk      `json:"chunks,omitempty"`

	// RAGExecuted and GenerationExecuted report whether those stages ran
	// at all. Both are false on the no-entity path.
	RAGExecuted        bool `json:"rag_executed"`
	GenerationExecuted bool `json:"generation_executed"`

	Metrics *metrics.QueryMetrics `json:"metrics,omitempty"`
}

// Router routes queries through the pipeline. Safe for concurrent use; the
// session history map is the only mutable state and is lock-guarded.
type Router struct {
	cfg       Config
	detector  *entity.Detector
	rewriter  *rewrite.Rewriter
	retriever Retriever
	generator Generator
	recorder  *metrics.Recorder
	counter   metrics.TokenCounter
	logger    *zap.Logger

	sessions *sessionStore
}

// New creates a router. The recorder may be nil when metrics are not
// wanted; the counter may be nil, falling back to length estimation.
func New(cfg Config, detector *entity.Detector, rewriter *rewrite.Rewriter,
	retriever Retriever, generator Generator, recorder *metrics.Recorder,
	counter metrics.TokenCounter, logger *zap.Logger) *Router {

	if logger == nil {
		logger = zap.NewNop()
	}
	if recorder == nil {
		recorder = metrics.NewRecorder(metrics.RecorderConfig{}, nil, logger)
	}
	if counter == nil {
		counter = metrics.ApproxCounter{}
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultConfig().TopK
	}
	if cfg.MaxHistoryTurns <= 0 {
		cfg.MaxHistoryTurns = DefaultConfig().MaxHistoryTurns
	}
	if cfg.NoContextText == "" {
		cfg.NoContextText = DefaultConfig().NoContextText
	}
	if cfg.GenerationErrorText == "" {
		cfg.GenerationErrorText = DefaultConfig().GenerationErrorText
	}

	return &Router{
		cfg:       cfg,
		detector:  detector,
		rewriter:  rewriter,
		retriever: retriever,
		generator: generator,
		recorder:  recorder,
		counter:   counter,
		logger:    logger.With(zap.String("component", "router")),
		sessions:  newSessionStore(cfg.MaxHistoryTurns),
	}
}

// Process routes a single stateless query.
func (r *Router) Process(ctx context.Context, query string) (*Result, error) {
	return r.process(ctx, query, nil)
}

// ProcessSession routes a query with bounded per-session history. A
// successful exchange is appended to the session afterwards; failed
// generations are not remembered.
func (r *Router) ProcessSession(ctx context.Context, sessionID, query string) (*Result, error) {
	history := r.sessions.messages(sessionID)

	res, err := r.process(ctx, query, history)
	if err != nil {
		return nil, err
	}
	if res.GenerationExecuted && res.Metrics != nil && res.Metrics.Success {
		r.sessions.append(sessionID, query, res.Response)
	}
	return res, nil
}

func (r *Router) process(ctx context.Context, query string, history []types.Message) (*Result, error) {
	m := r.recorder.Start(query)

	stopDetect := r.recorder.Measure(m, metrics.PhaseEntityDetection)
	detected := r.detector.Detect(query)
	stopDetect()

	m.Entity = detected.Entity
	m.EntityConf = string(detected.Confidence)

	if !detected.Detected() {
		// Short-circuit: the fixed response costs no retrieval and no
		// generation.
		response := r.detector.FallbackMessage()
		m.ResponseText = response
		r.recorder.Finalize(m)

		r.logger.Info("query routed to fixed response",
			zap.String("query_hash", m.QueryHash))
		return &Result{
			Response: response,
			Entity:   detected,
			Metrics:  m,
		}, nil
	}

	rewritten := r.rewriter.Rewrite(query, detected.RAGFilter)

	stopRetrieve := r.recorder.Measure(m, metrics.PhaseRetrieval)
	chunks, err := r.retriever.Retrieve(ctx, rewritten, retrieval.Options{
		TopK:     r.cfg.TopK,
		Filter:   detected.RAGFilter,
		MinScore: r.cfg.MinScore,
	})
	stopRetrieve()
	if err != nil {
		m.Success = false
		m.ErrorMessage = err.Error()
		r.recorder.Finalize(m)
		return nil, err
	}

	m.RAGUsed = true
	m.ChunksCount = len(chunks)
	if len(chunks) > 0 {
		m.TopSimilarity = chunks[0].Similarity
	}

	messages := r.assembleMessages(query, chunks, history)

	result := &Result{
		Entity:             detected,
		Chunks:             chunks,
		RAGExecuted:        true,
		GenerationExecuted: true,
		Metrics:            m,
	}

	stopGenerate := r.recorder.Measure(m, metrics.PhaseGeneration)
	resp, err := r.generator.Generate(ctx, types.GenerateRequest{Messages: messages})
	stopGenerate()
	if err != nil {
		// Recoverable: the user gets a degraded response, the record
		// carries the failure.
		m.Success = false
		m.ErrorMessage = err.Error()
		result.Response = r.cfg.GenerationErrorText
		m.ResponseText = result.Response
		r.countTokens(m, messages, "")
		r.recorder.Finalize(m)

		r.logger.Warn("generation failed, returning degraded response",
			zap.String("query_hash", m.QueryHash), zap.Error(err))
		return result, nil
	}

	result.Response = resp.Text
	m.ResponseText = resp.Text
	if resp.Usage.PromptTokens > 0 || resp.Usage.CompletionTokens > 0 {
		m.TokensInput = resp.Usage.PromptTokens
		m.TokensOutput = resp.Usage.CompletionTokens
	} else {
		r.countTokens(m, messages, resp.Text)
	}
	m.ComputeCosts(r.cfg.CostInputPerMillion, r.cfg.CostOutputPerMillion)
	r.recorder.Finalize(m)

	r.logger.Info("query routed through retrieval",
		zap.String("query_hash", m.QueryHash),
		zap.String("entity", detected.Entity),
		zap.Int("chunks", len(chunks)),
		zap.Float64("total_ms", m.TotalMS))
	return result, nil
}

// assembleMessages builds the provider conversation: system prompt with the
// retrieved context, prior history turns, and the ORIGINAL query last. The
// rewritten query is retrieval-only and never reaches the provider.
func (r *Router) assembleMessages(query string, chunks []types.Chunk, history []types.Message) []types.Message {
	contextText := r.cfg.NoContextText
	if len(chunks) > 0 {
		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Text
		}
		contextText = strings.Join(texts, "\n\n---\n\n")
	}

	system := r.cfg.SystemPrompt + "\n\n" + r.cfg.ContextHeader + "\n" + contextText

	messages := make([]types.Message, 0, len(history)+2)
	messages = append(messages, types.SystemMessage(system))
	messages = append(messages, history...)
	messages = append(messages, types.UserMessage(query))
	return messages
}

func (r *Router) countTokens(m *metrics.QueryMetrics, messages []types.Message, response string) {
	var prompt strings.Builder
	for _, msg := range messages {
		prompt.WriteString(msg.Content)
		prompt.WriteString("\n")
	}
	m.TokensInput = r.counter.Count(prompt.String())
	m.TokensOutput = r.counter.Count(response)
}
