package providers

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/gpsalud/consultaflow/types"
)

// Provider is the generation collaborator interface the router consumes.
type Provider interface {
	Name() string
	Model() string
	Generate(ctx context.Context, req types.GenerateRequest) (*types.GenerateResponse, error)
	HealthCheck(ctx context.Context) error
}

// Config configures a generation provider instance.
type Config struct {
	Provider    string        `yaml:"provider" json:"provider"` // groq | ollama
	Model       string        `yaml:"model" json:"model"`
	BaseURL     string        `yaml:"base_url" json:"base_url"`
	APIKey      string        `yaml:"api_key" json:"api_key"`
	Temperature float64       `yaml:"temperature" json:"temperature"`
	MaxTokens   int           `yaml:"max_tokens" json:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`

	// RequestsPerSecond enables client-side rate limiting when > 0.
	// Free-tier cloud endpoints throttle aggressively; limiting locally
	// keeps bursts from turning into 429 storms.
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second"`
	Burst             int     `yaml:"burst" json:"burst"`
}

// DefaultConfig returns provider defaults for the consulta scenarios.
func DefaultConfig() Config {
	return Config{
		Provider:    "groq",
		Model:       "llama-3.1-8b-instant",
		Temperature: 0.1,
		MaxTokens:   150,
		Timeout:     30 * time.Second,
	}
}

// New creates a provider from config. Unknown provider names are a
// CONFIG_INVALID error.
func New(cfg Config, logger *zap.Logger) (Provider, error) {
	switch cfg.Provider {
	case "groq":
		return NewGroqProvider(cfg, logger)
	case "ollama":
		return NewOllamaProvider(cfg, logger), nil
	default:
		return nil, types.NewError(types.ErrConfigInvalid,
			fmt.Sprintf("unsupported generation provider %q", cfg.Provider), nil)
	}
}
