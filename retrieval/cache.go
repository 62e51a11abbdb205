package retrieval

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// CachedEmbedderConfig configures the Redis-backed embedding cache.
type CachedEmbedderConfig struct {
	// Model names the embedding model; it is part of the cache key so
	// different models never share vectors.
	Model string        `yaml:"model" json:"model"`
	TTL   time.Duration `yaml:"ttl" json:"ttl"`
}

// CachedEmbedder wraps an Embedder with a Redis cache keyed by model and
// text hash. Embedding calls dominate request latency, and identical query
// text recurs often, so hits skip the model entirely. Cache failures are
// logged and degrade to the inner embedder, never to a request failure.
type CachedEmbedder struct {
	inner  Embedder
	client *redis.Client
	cfg    CachedEmbedderConfig
	logger *zap.Logger
}

// NewCachedEmbedder creates the caching decorator.
func NewCachedEmbedder(inner Embedder, client *redis.Client, cfg CachedEmbedderConfig, logger *zap.Logger) *CachedEmbedder {
	if cfg.TTL == 0 {
		cfg.TTL = 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedEmbedder{
		inner:  inner,
		client: client,
		cfg:    cfg,
		logger: logger.With(zap.String("component", "embedding_cache")),
	}
}

// Embed returns cached vectors where available and embeds only the misses.
func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	result := make([][]float64, len(texts))
	missIdx := make([]int, 0, len(texts))
	missTexts := make([]string, 0, len(texts))

	for i, text := range texts {
		vec, ok := c.get(ctx, text)
		if ok {
			result[i] = vec
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}

	if len(missTexts) == 0 {
		return result, nil
	}

	vectors, err := c.inner.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(missTexts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(missTexts))
	}

	for i, vec := range vectors {
		result[missIdx[i]] = vec
		c.set(ctx, missTexts[i], vec)
	}

	return result, nil
}

func (c *CachedEmbedder) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("emb:%s:%s", c.cfg.Model, hex.EncodeToString(sum[:16]))
}

func (c *CachedEmbedder) get(ctx context.Context, text string) ([]float64, bool) {
	data, err := c.client.Get(ctx, c.key(text)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("cache get failed", zap.Error(err))
		}
		return nil, false
	}

	var vec []float64
	if err := json.Unmarshal(data, &vec); err != nil {
		c.logger.Warn("cache entry corrupt, ignoring", zap.Error(err))
		return nil, false
	}
	return vec, true
}

func (c *CachedEmbedder) set(ctx context.Context, text string, vec []float64) {
	data, err := json.Marshal(vec)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, c.key(text), data, c.cfg.TTL).Err(); err != nil {
		c.logger.Warn("cache set failed", zap.Error(err))
	}
}
