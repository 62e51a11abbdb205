package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/gpsalud/consultaflow/types"
)

const defaultGroqBaseURL = "https://api.groq.com/openai/v1"

// GroqProvider talks to Groq's OpenAI-compatible chat completions API.
type GroqProvider struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewGroqProvider creates a Groq provider. An API key is required.
func NewGroqProvider(cfg Config, logger *zap.Logger) (*GroqProvider, error) {
	if cfg.APIKey == "" {
		return nil, types.NewError(types.ErrConfigInvalid, "groq provider requires an API key", nil)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultGroqBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return &GroqProvider{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: limiter,
		logger:  logger.With(zap.String("component", "groq_provider")),
	}, nil
}

func (p *GroqProvider) Name() string  { return "groq" }
func (p *GroqProvider) Model() string { return p.cfg.Model }

type groqChatRequest struct {
	Model       string        `json:"model"`
	Messages    []groqMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type groqMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type groqChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Model string `json:"model"`
}

// Generate sends the conversation and returns the completion with the
// provider-reported usage.
func (p *GroqProvider) Generate(ctx context.Context, req types.GenerateRequest) (*types.GenerateResponse, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, types.NewError(types.ErrRateLimited, "rate limiter wait", err)
		}
	}

	body := groqChatRequest{
		Model:       p.cfg.Model,
		Messages:    make([]groqMessage, len(req.Messages)),
		MaxTokens:   orDefaultInt(req.MaxTokens, p.cfg.MaxTokens),
		Temperature: orDefaultFloat(req.Temperature, p.cfg.Temperature),
	}
	for i, m := range req.Messages {
		body.Messages[i] = groqMessage{Role: string(m.Role), Content: m.Content}
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, types.NewError(types.ErrGenerationFailed, "marshal request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.cfg.BaseURL+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return nil, types.NewError(types.ErrGenerationFailed, "build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, types.NewError(types.ErrUpstreamTimeout, "groq request", err)
		}
		return nil, types.NewError(types.ErrGenerationFailed, "groq request", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, types.NewError(types.ErrGenerationFailed, "read response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, p.statusError(resp.StatusCode, raw)
	}

	var parsed groqChatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, types.NewError(types.ErrGenerationFailed, "decode response", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, types.NewError(types.ErrGenerationFailed, "response has no choices", nil)
	}

	p.logger.Debug("generation done",
		zap.Int("prompt_tokens", parsed.Usage.PromptTokens),
		zap.Int("completion_tokens", parsed.Usage.CompletionTokens))

	return &types.GenerateResponse{
		Text:  parsed.Choices[0].Message.Content,
		Model: parsed.Model,
		Usage: types.GenerateUsage{
			PromptTokens:     parsed.Usage.PromptTokens,
			CompletionTokens: parsed.Usage.CompletionTokens,
			TotalTokens:      parsed.Usage.TotalTokens,
		},
	}, nil
}

func (p *GroqProvider) statusError(status int, raw []byte) error {
	msg := fmt.Sprintf("groq status %d: %s", status, truncate(string(raw), 200))
	switch {
	case status == http.StatusTooManyRequests:
		return &types.Error{Code: types.ErrRateLimited, Message: msg, Retryable: true}
	case status >= 500:
		return &types.Error{Code: types.ErrProviderUnavailable, Message: msg, Retryable: true}
	default:
		return &types.Error{Code: types.ErrGenerationFailed, Message: msg}
	}
}

// HealthCheck verifies the models endpoint answers.
func (p *GroqProvider) HealthCheck(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.BaseURL+"/models", nil)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return types.NewError(types.ErrProviderUnavailable, "groq health check", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return types.NewError(types.ErrProviderUnavailable,
			fmt.Sprintf("groq health check status %d", resp.StatusCode), nil)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.TrimSpace(s[:n]) + "..."
}

func orDefaultInt(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func orDefaultFloat(v, def float64) float64 {
	if v > 0 {
		return v
	}
	return def
}
