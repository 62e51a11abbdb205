// Package store persists finalized query metrics to SQLite for the
// scenario comparison dashboard. It implements metrics.Publisher.
package store

import (
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/gpsalud/consultaflow/metrics"
)

// QueryRecord is the persisted shape of one finalized QueryMetrics. The
// query hash, never the raw text, is stored.
type QueryRecord struct {
	ID        uint      `gorm:"primaryKey"`
	CreatedAt time.Time `gorm:"index"`

	Run      string `gorm:"index;size:64"`
	Scenario string `gorm:"index;size:64"`
	Mode     string `gorm:"size:32"`
	Provider string `gorm:"size:32"`
	Model    string `gorm:"size:64"`

	QueryHash   string `gorm:"index;size:16"`
	QueryLength int
	Entity      string `gorm:"index;size:64"`
	EntityConf  string `gorm:"size:16"`

	TokensInput  int
	TokensOutput int

	EntityDetectionMS float64
	EmbeddingMS       float64
	RetrievalMS       float64
	GenerationMS      float64
	TotalMS           float64

	CostInput  float64
	CostOutput float64
	CostTotal  float64

	RAGUsed       bool
	ChunksCount   int
	TopSimilarity float64

	ResponseLength int
	ResponseWords  int

	Success      bool `gorm:"index"`
	ErrorMessage string
}

// TableName keeps the table name stable for external readers.
func (QueryRecord) TableName() string { return "queries" }

// Store writes query records to a SQLite database. Safe for concurrent use;
// gorm serializes access to the single connection.
type Store struct {
	db     *gorm.DB
	run    string
	logger *zap.Logger
}

// Open opens (creating if needed) the metrics database at path and migrates
// the schema. The run label groups all records written by this process.
func Open(path, run string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open metrics db %s: %w", path, err)
	}
	if err := db.AutoMigrate(&QueryRecord{}); err != nil {
		return nil, fmt.Errorf("migrate metrics db: %w", err)
	}

	return &Store{
		db:     db,
		run:    run,
		logger: logger.With(zap.String("component", "metrics_store")),
	}, nil
}

// Publish persists a finalized record. Persistence failures are logged, not
// propagated; metrics storage never fails a user request.
func (s *Store) Publish(m *metrics.QueryMetrics) {
	rec := fromMetrics(m, s.run)
	if err := s.db.Create(rec).Error; err != nil {
		s.logger.Error("persist query record", zap.Error(err),
			zap.String("query_hash", m.QueryHash))
	}
}

func fromMetrics(m *metrics.QueryMetrics, run string) *QueryRecord {
	return &QueryRecord{
		Run:               run,
		Scenario:          m.Scenario,
		Mode:              m.Mode,
		Provider:          m.Provider,
		Model:             m.Model,
		QueryHash:         m.QueryHash,
		QueryLength:       m.QueryLength,
		Entity:            m.Entity,
		EntityConf:        m.EntityConf,
		TokensInput:       m.TokensInput,
		TokensOutput:      m.TokensOutput,
		EntityDetectionMS: m.EntityDetectionMS,
		EmbeddingMS:       m.EmbeddingMS,
		RetrievalMS:       m.RetrievalMS,
		GenerationMS:      m.GenerationMS,
		TotalMS:           m.TotalMS,
		CostInput:         m.CostInput,
		CostOutput:        m.CostOutput,
		CostTotal:         m.CostTotal,
		RAGUsed:           m.RAGUsed,
		ChunksCount:       m.ChunksCount,
		TopSimilarity:     m.TopSimilarity,
		ResponseLength:    m.ResponseLength,
		ResponseWords:     m.ResponseWords,
		Success:           m.Success,
		ErrorMessage:      m.ErrorMessage,
	}
}

// RunSummary aggregates one run for the comparison dashboard.
type RunSummary struct {
	Run         string
	Scenario    string
	Queries     int64
	SuccessRate float64
	AvgTotalMS  float64
	AvgTokens   float64
	TotalCost   float64
	RAGShare    float64
}

// Summarize aggregates all records of a run, grouped by scenario.
func (s *Store) Summarize(run string) ([]RunSummary, error) {
	var rows []RunSummary
	err := s.db.Model(&QueryRecord{}).
		Select(`run, scenario,
			count(*) as queries,
			avg(case when success then 1.0 else 0.0 end) as success_rate,
			avg(total_ms) as avg_total_ms,
			avg(tokens_input + tokens_output) as avg_tokens,
			sum(cost_total) as total_cost,
			avg(case when rag_used then 1.0 else 0.0 end) as rag_share`).
		Where("run = ?", run).
		Group("run, scenario").
		Order("scenario").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("summarize run %s: %w", run, err)
	}
	return rows, nil
}

// Recent returns the newest records of a run, newest first.
func (s *Store) Recent(run string, limit int) ([]QueryRecord, error) {
	var rows []QueryRecord
	err := s.db.Where("run = ?", run).
		Order("created_at desc").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("recent records: %w", err)
	}
	return rows, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
