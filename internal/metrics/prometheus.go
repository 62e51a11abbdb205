// Package prom exports finalized query metrics to Prometheus. It
// implements metrics.Publisher.
package prom

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/gpsalud/consultaflow/metrics"
)

// Collector holds the Prometheus vectors for the router pipeline.
type Collector struct {
	queriesTotal  *prometheus.CounterVec
	phaseLatency  *prometheus.HistogramVec
	totalLatency  *prometheus.HistogramVec
	tokensTotal   *prometheus.CounterVec
	costTotal     *prometheus.CounterVec
	chunksPerHit  prometheus.Histogram
	topSimilarity prometheus.Histogram
}

// NewCollector registers the vectors on reg. Pass prometheus.NewRegistry()
// in tests to avoid global registration collisions.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		queriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "consultaflow",
			Name:      "queries_total",
			Help:      "Processed queries by scenario, outcome, and routing path.",
		}, []string{"scenario", "outcome", "path"}),

		phaseLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "consultaflow",
			Name:      "phase_duration_seconds",
			Help:      "Per-phase latency of a processed query.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}, []string{"scenario", "phase"}),

		totalLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "consultaflow",
			Name:      "query_duration_seconds",
			Help:      "End-to-end latency of a processed query.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}, []string{"scenario"}),

		tokensTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "consultaflow",
			Name:      "tokens_total",
			Help:      "Tokens consumed, split by direction.",
		}, []string{"scenario", "direction"}),

		costTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "consultaflow",
			Name:      "cost_usd_total",
			Help:      "Accumulated generation cost in USD.",
		}, []string{"scenario"}),

		chunksPerHit: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "consultaflow",
			Name:      "retrieved_chunks",
			Help:      "Chunks returned per retrieval-path query.",
			Buckets:   prometheus.LinearBuckets(0, 1, 11),
		}),

		topSimilarity: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "consultaflow",
			Name:      "top_similarity",
			Help:      "Best chunk similarity per retrieval-path query.",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		}),
	}
}

// Publish exports one finalized record.
func (c *Collector) Publish(m *metrics.QueryMetrics) {
	outcome := "success"
	if !m.Success {
		outcome = "error"
	}
	path := "fixed_response"
	if m.RAGUsed {
		path = "retrieval"
	}

	c.queriesTotal.WithLabelValues(m.Scenario, outcome, path).Inc()
	c.totalLatency.WithLabelValues(m.Scenario).Observe(m.TotalMS / 1000)

	c.observePhase(m.Scenario, string(metrics.PhaseEntityDetection), m.EntityDetectionMS)
	c.observePhase(m.Scenario, string(metrics.PhaseEmbedding), m.EmbeddingMS)
	c.observePhase(m.Scenario, string(metrics.PhaseRetrieval), m.RetrievalMS)
	c.observePhase(m.Scenario, string(metrics.PhaseGeneration), m.GenerationMS)

	if m.TokensInput > 0 {
		c.tokensTotal.WithLabelValues(m.Scenario, "input").Add(float64(m.TokensInput))
	}
	if m.TokensOutput > 0 {
		c.tokensTotal.WithLabelValues(m.Scenario, "output").Add(float64(m.TokensOutput))
	}
	if m.CostTotal > 0 {
		c.costTotal.WithLabelValues(m.Scenario).Add(m.CostTotal)
	}

	if m.RAGUsed {
		c.chunksPerHit.Observe(float64(m.ChunksCount))
		c.topSimilarity.Observe(m.TopSimilarity)
	}
}

// observePhase skips phases that never ran so their zero durations do not
// distort the histograms.
func (c *Collector) observePhase(scenario, phase string, ms float64) {
	if ms <= 0 {
		return
	}
	c.phaseLatency.WithLabelValues(scenario, phase).Observe(ms / 1000)
}
