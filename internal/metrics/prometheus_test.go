package prom

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/gpsalud/consultaflow/metrics"
)

func record(success, ragUsed bool) *metrics.QueryMetrics {
	return &metrics.QueryMetrics{
		Scenario:      "consulta_groq",
		Success:       success,
		RAGUsed:       ragUsed,
		TokensInput:   200,
		TokensOutput:  30,
		CostTotal:     0.0001,
		ChunksCount:   3,
		TopSimilarity: 0.85,
		RetrievalMS:   12.5,
		GenerationMS:  800,
		TotalMS:       830,
	}
}

func TestCollector_CountsByOutcomeAndPath(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.Publish(record(true, true))
	c.Publish(record(true, false))
	c.Publish(record(false, true))

	assert.InDelta(t, 1.0, testutil.ToFloat64(
		c.queriesTotal.WithLabelValues("consulta_groq", "success", "retrieval")), 1e-9)
	assert.InDelta(t, 1.0, testutil.ToFloat64(
		c.queriesTotal.WithLabelValues("consulta_groq", "success", "fixed_response")), 1e-9)
	assert.InDelta(t, 1.0, testutil.ToFloat64(
		c.queriesTotal.WithLabelValues("consulta_groq", "error", "retrieval")), 1e-9)
}

func TestCollector_AccumulatesTokensAndCost(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.Publish(record(true, true))
	c.Publish(record(true, true))

	assert.InDelta(t, 400.0, testutil.ToFloat64(
		c.tokensTotal.WithLabelValues("consulta_groq", "input")), 1e-9)
	assert.InDelta(t, 60.0, testutil.ToFloat64(
		c.tokensTotal.WithLabelValues("consulta_groq", "output")), 1e-9)
	assert.InDelta(t, 0.0002, testutil.ToFloat64(
		c.costTotal.WithLabelValues("consulta_groq")), 1e-9)
}

func TestCollector_SkipsPhasesThatNeverRan(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	m := record(true, false)
	m.RetrievalMS = 0
	m.GenerationMS = 0
	m.EntityDetectionMS = 0.2
	c.Publish(m)

	count := testutil.CollectAndCount(c.phaseLatency)
	// Only entity_detection observed; zero-duration phases excluded.
	assert.Equal(t, 1, count)
}
