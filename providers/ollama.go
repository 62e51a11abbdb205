package providers

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

const defaultOllamaBaseURL = "http://localhost:11434"

// OllamaProvider talks to a local Ollama daemon over its native chat API.
type OllamaProvider struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// NewOllamaProvider creates an Ollama provider. No API key is needed.
func NewOllamaProvider(cfg Config, logger *zap.Logger) *OllamaProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultOllamaBaseURL
	}
	if cfg.Timeout == 0 {
		// Local models on CPU are slow; give them room.
		cfg.Timeout = 120 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OllamaProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger.With(zap.String("component", "ollama_provider")),
	}
}

func (p *OllamaProvider) Name() string  { return "ollama" }
func (p *OllamaProvider) Model() string { return p.cfg.Model }

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  ollamaOptions   `json:"options"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaChatResponse struct {
	Model   string `json:"model"`
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	PromptEvalCount int `json:"prompt_eval_count"`
	EvalCount       int `json:"eval_count"`
}

// Generate sends the conversation to /api/chat. Ollama reports usage as
// prompt_eval_count and eval_count.
func (p *OllamaProvider) Generate(ctx context.Context, req types.GenerateRequest) (*types.GenerateResponse, error) {
	body := ollamaChatRequest{
		Model:    p.cfg.Model,
		Messages: make([]ollamaMessage, len(req.Messages)),
		Stream:   false,
		Options: ollamaOptions{
			Temperature: orDefaultFloat(req.Temperature, p.cfg.Temperature),
			NumPredict:  orDefaultInt(req.MaxTokens, p.cfg.MaxTokens),
		},
	}
	for i, m := range req.Messages {
		body.Messages[i] = ollamaMessage{Role: string(m.Role), Content: m.Content}
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, types.NewError(types.ErrGenerationFailed, "marshal request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.cfg.BaseURL+"/api/chat", bytes.NewReader(data))
	if err != nil {
		return nil, types.NewError(types.ErrGenerationFailed, "build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, types.NewError(types.ErrUpstreamTimeout, "ollama request", err)
		}
		return nil, types.NewError(types.ErrProviderUnavailable, "ollama request", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, types.NewError(types.ErrGenerationFailed, "read response", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := fmt.Sprintf("ollama status %d: %s", resp.StatusCode, truncate(string(raw), 200))
		if resp.StatusCode >= 500 {
			return nil, &types.Error{Code: types.ErrProviderUnavailable, Message: msg, Retryable: true}
		}
		return nil, &types.Error{Code: types.ErrGenerationFailed, Message: msg}
	}

	var parsed ollamaChatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, types.NewError(types.ErrGenerationFailed, "decode response", err)
	}

	p.logger.Debug("generation done",
		zap.Int("prompt_eval_count", parsed.PromptEvalCount),
		zap.Int("eval_count", parsed.EvalCount))

	return &types.GenerateResponse{
		Text:  parsed.Message.Content,
		Model: parsed.Model,
		Usage: types.GenerateUsage{
			PromptTokens:     parsed.PromptEvalCount,
			CompletionTokens: parsed.EvalCount,
			TotalTokens:      parsed.PromptEvalCount + parsed.EvalCount,
		},
	}, nil
}

// HealthCheck pings the daemon root, which answers 200 when running.
func (p *OllamaProvider) HealthCheck(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.BaseURL+"/", nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return types.NewError(types.ErrProviderUnavailable, "ollama health check", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return types.NewError(types.ErrProviderUnavailable,
			fmt.Sprintf("ollama health check status %d", resp.StatusCode), nil)
	}
	return nil
}
