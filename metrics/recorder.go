package metrics

import (
	"time"

	"go.uber.org/zap"
)

// Publisher receives finalized records. internal/metrics exports them to
// Prometheus; internal/store persists them.
type Publisher interface {
	Publish(m *QueryMetrics)
}

// RecorderConfig identifies the scenario all records of this recorder
// belong to.
type RecorderConfig struct {
	Scenario string `yaml:"scenario" json:"scenario"`
	Mode     string `yaml:"mode" json:"mode"`
	Provider string `yaml:"provider" json:"provider"`
	Model    string `yaml:"model" json:"model"`
}

// Recorder creates, times, and finalizes QueryMetrics records. A recorder
// is shared across requests; each record belongs to exactly one request.
type Recorder struct {
	cfg        RecorderConfig
	publishers []Publisher
	logger     *zap.Logger

	now func() time.Time // test seam
}

// NewRecorder creates a recorder. Publishers may be nil.
func NewRecorder(cfg RecorderConfig, publishers []Publisher, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		cfg:        cfg,
		publishers: publishers,
		logger:     logger.With(zap.String("component", "metrics_recorder")),
		now:        time.Now,
	}
}

// Start creates a fresh record for one request and starts the total clock.
func (r *Recorder) Start(queryText string) *QueryMetrics {
	m := &QueryMetrics{
		Scenario:  r.cfg.Scenario,
		Mode:      r.cfg.Mode,
		Provider:  r.cfg.Provider,
		Model:     r.cfg.Model,
		QueryText: queryText,
		Success:   true,
		startTime: r.now(),
	}
	m.computeHash()
	return m
}

// Measure starts a phase timer and returns the stop function. Defer the
// stop so the elapsed time lands in the record regardless of how the phase
// exits:
//
//	defer rec.Measure(m, metrics.PhaseRetrieval)()
func (r *Recorder) Measure(m *QueryMetrics, phase Phase) func() {
	field := m.latencyField(phase)
	start := r.now()
	return func() {
		if field != nil && !m.finalized {
			*field = float64(r.now().Sub(start)) / float64(time.Millisecond)
		}
	}
}

// Finalize computes the totals and response statistics, freezes the
// record, and hands it to the publishers. Further mutation through the
// recorder is a no-op.
func (r *Recorder) Finalize(m *QueryMetrics) {
	if m.finalized {
		return
	}
	m.TotalMS = float64(r.now().Sub(m.startTime)) / float64(time.Millisecond)
	m.computeResponseStats()
	m.finalized = true

	for _, p := range r.publishers {
		p.Publish(m)
	}

	r.logger.Debug("metrics finalized",
		zap.String("query_hash", m.QueryHash),
		zap.Bool("success", m.Success),
		zap.Bool("rag_used", m.RAGUsed),
		zap.Float64("total_ms", m.TotalMS))
}
