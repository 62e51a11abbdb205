package metrics

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
	"time"
)

// Phase names the measurable sections of a request.
type Phase string

const (
	PhaseEntityDetection Phase = "entity_detection"
	PhaseEmbedding       Phase = "embedding"
	PhaseRetrieval       Phase = "retrieval"
	PhaseGeneration      Phase = "generation"
)

// QueryMetrics is the per-request metrics record. Field names and meanings
// are stable: internal/store persists them and the comparison dashboard
// reads them.
type QueryMetrics struct {
	// identification
	Scenario string `json:"scenario"`
	Mode     string `json:"mode"`
	Provider string `json:"llm_provider"`
	Model    string `json:"llm_model"`

	// input (hash, not raw text, is what gets persisted)
	QueryText   string `json:"-"`
	QueryHash   string `json:"query_hash"`
	QueryLength int    `json:"query_length"`
	Entity      string `json:"entity,omitempty"`
	EntityConf  string `json:"entity_confidence,omitempty"`

	// tokens
	TokensInput  int `json:"tokens_input"`
	TokensOutput int `json:"tokens_output"`

	// latencies (ms)
	EntityDetectionMS float64 `json:"entity_detection_ms"`
	EmbeddingMS       float64 `json:"embedding_ms"`
	RetrievalMS       float64 `json:"retrieval_ms"`
	GenerationMS      float64 `json:"generation_ms"`
	TotalMS           float64 `json:"total_ms"`

	// costs (USD)
	CostInput  float64 `json:"cost_input"`
	CostOutput float64 `json:"cost_output"`
	CostTotal  float64 `json:"cost_total"`

	// retrieval
	RAGUsed       bool    `json:"rag_used"`
	ChunksCount   int     `json:"chunks_count"`
	TopSimilarity float64 `json:"top_similarity"`

	// response
	ResponseText   string `json:"-"`
	ResponseLength int    `json:"response_length"`
	ResponseWords  int    `json:"response_words"`

	// outcome
	Success      bool   `json:"success"`
	ErrorMessage string `json:"error_message,omitempty"`

	startTime time.Time
	finalized bool
}

// TokensTotal returns input plus output tokens.
func (m *QueryMetrics) TokensTotal() int {
	return m.TokensInput + m.TokensOutput
}

// Finalized reports whether the record has been frozen.
func (m *QueryMetrics) Finalized() bool { return m.finalized }

// ComputeCosts derives USD costs from per-million token prices.
func (m *QueryMetrics) ComputeCosts(inputPerMillion, outputPerMillion float64) {
	m.CostInput = float64(m.TokensInput) / 1_000_000 * inputPerMillion
	m.CostOutput = float64(m.TokensOutput) / 1_000_000 * outputPerMillion
	m.CostTotal = m.CostInput + m.CostOutput
}

func (m *QueryMetrics) computeHash() {
	sum := md5.Sum([]byte(m.QueryText))
	m.QueryHash = hex.EncodeToString(sum[:])[:16]
	m.QueryLength = len(m.QueryText)
}

func (m *QueryMetrics) computeResponseStats() {
	m.ResponseLength = len(m.ResponseText)
	m.ResponseWords = len(strings.Fields(m.ResponseText))
}

func (m *QueryMetrics) latencyField(phase Phase) *float64 {
	switch phase {
	case PhaseEntityDetection:
		return &m.EntityDetectionMS
	case PhaseEmbedding:
		return &m.EmbeddingMS
	case PhaseRetrieval:
		return &m.RetrievalMS
	case PhaseGeneration:
		return &m.GenerationMS
	}
	return nil
}
