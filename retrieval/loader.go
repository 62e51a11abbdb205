package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/gpsalud/consultaflow/types"
)

// ChunkRecord is the on-disk chunk format produced by the document
// conversion scripts (one JSON array per source file).
type ChunkRecord struct {
	Entity  string `json:"obra_social"`
	Source  string `json:"archivo"`
	ChunkID string `json:"chunk_id"`
	Text    string `json:"texto"`
	IsTable bool   `json:"es_tabla,omitempty"`
	Section string `json:"seccion,omitempty"`
}

// Loader embeds chunk records and feeds them into a MemoryIndex in
// batches.
type Loader struct {
	embedder  Embedder
	index     *MemoryIndex
	batchSize int
	logger    *zap.Logger
}

// NewLoader creates a loader. batchSize <= 0 uses 100.
func NewLoader(embedder Embedder, index *MemoryIndex, batchSize int, logger *zap.Logger) *Loader {
	if batchSize <= 0 {
		batchSize = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{
		embedder:  embedder,
		index:     index,
		batchSize: batchSize,
		logger:    logger.With(zap.String("component", "chunk_loader")),
	}
}

// LoadRecords embeds and indexes the given records. Returns the number
// indexed.
func (l *Loader) LoadRecords(ctx context.Context, records []ChunkRecord) (int, error) {
	added := 0
	for start := 0; start < len(records); start += l.batchSize {
		end := start + l.batchSize
		if end > len(records) {
			end = len(records)
		}
		batch := records[start:end]

		texts := make([]string, len(batch))
		for i, rec := range batch {
			texts[i] = rec.Text
		}

		embeddings, err := l.embedder.Embed(ctx, texts)
		if err != nil {
			return added, types.NewError(types.ErrRetrievalUnavailable, "embed chunk batch", err)
		}
		if len(embeddings) != len(batch) {
			return added, types.NewError(types.ErrRetrievalUnavailable,
				fmt.Sprintf("embedder returned %d vectors for %d texts", len(embeddings), len(batch)), nil)
		}

		docs := make([]Document, len(batch))
		for i, rec := range batch {
			entity := strings.ToUpper(rec.Entity)
			docs[i] = Document{
				ID:   fmt.Sprintf("%s_%s", entity, rec.ChunkID),
				Text: rec.Text,
				Metadata: map[string]any{
					types.MetaEntityID: entity,
					types.MetaSourceID: rec.Source,
					types.MetaChunkID:  rec.ChunkID,
					types.MetaIsTable:  rec.IsTable,
					types.MetaSection:  rec.Section,
				},
				Embedding: embeddings[i],
			}
		}

		if err := l.index.Add(ctx, docs); err != nil {
			return added, err
		}
		added += len(batch)
	}

	l.logger.Info("chunks indexed", zap.Int("count", added))
	return added, nil
}

// LoadDir walks a data directory laid out as <dir>/<ENTITY>/*_chunks_flat.json
// and indexes every chunk found.
func (l *Loader) LoadDir(ctx context.Context, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, types.NewError(types.ErrConfigInvalid, fmt.Sprintf("read chunk dir %s", dir), err)
	}

	total := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		files, err := filepath.Glob(filepath.Join(dir, entry.Name(), "*_chunks_flat.json"))
		if err != nil {
			return total, err
		}

		for _, file := range files {
			data, err := os.ReadFile(file)
			if err != nil {
				return total, types.NewError(types.ErrConfigInvalid, fmt.Sprintf("read chunk file %s", file), err)
			}

			var records []ChunkRecord
			if err := json.Unmarshal(data, &records); err != nil {
				return total, types.NewError(types.ErrConfigInvalid, fmt.Sprintf("parse chunk file %s", file), err)
			}

			n, err := l.LoadRecords(ctx, records)
			total += n
			if err != nil {
				return total, err
			}
			l.logger.Info("chunk file loaded",
				zap.String("file", filepath.Base(file)),
				zap.Int("chunks", n))
		}
	}

	return total, nil
}
