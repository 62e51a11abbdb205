package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/gpsalud/consultaflow/types"
)

// OllamaEmbedderConfig configures the Ollama embedding client.
type OllamaEmbedderConfig struct {
	BaseURL string        `yaml:"base_url" json:"base_url"`
	Model   string        `yaml:"model" json:"model"`
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// DefaultOllamaEmbedderConfig returns the local-daemon defaults.
func DefaultOllamaEmbedderConfig() OllamaEmbedderConfig {
	return OllamaEmbedderConfig{
		BaseURL: "http://localhost:11434",
		Model:   "nomic-embed-text",
		Timeout: 60 * time.Second,
	}
}

// OllamaEmbedder embeds text through a local Ollama daemon.
type OllamaEmbedder struct {
	cfg    OllamaEmbedderConfig
	client *http.Client
	logger *zap.Logger
}

// NewOllamaEmbedder creates the embedding client.
func NewOllamaEmbedder(cfg OllamaEmbedderConfig, logger *zap.Logger) *OllamaEmbedder {
	def := DefaultOllamaEmbedderConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = def.Timeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OllamaEmbedder{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger.With(zap.String("component", "ollama_embedder")),
	}
}

// Model returns the embedding model name, used by the cache key.
func (e *OllamaEmbedder) Model() string { return e.cfg.Model }

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
}

// Embed returns one vector per input text, in input order.
func (e *OllamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	data, err := json.Marshal(ollamaEmbedRequest{Model: e.cfg.Model, Input: texts})
	if err != nil {
		return nil, types.NewError(types.ErrRetrievalUnavailable, "marshal embed request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		e.cfg.BaseURL+"/api/embed", bytes.NewReader(data))
	if err != nil {
		return nil, types.NewError(types.ErrRetrievalUnavailable, "build embed request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, types.NewError(types.ErrRetrievalUnavailable, "ollama embed request", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, types.NewError(types.ErrRetrievalUnavailable, "read embed response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, types.NewError(types.ErrRetrievalUnavailable,
			fmt.Sprintf("ollama embed status %d", resp.StatusCode), nil)
	}

	var parsed ollamaEmbedResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, types.NewError(types.ErrRetrievalUnavailable, "decode embed response", err)
	}
	if len(parsed.Embeddings) != len(texts) {
		return nil, types.NewError(types.ErrRetrievalUnavailable,
			fmt.Sprintf("ollama returned %d embeddings for %d texts", len(parsed.Embeddings), len(texts)), nil)
	}

	e.logger.Debug("texts embedded", zap.Int("count", len(texts)))
	return parsed.Embeddings, nil
}
