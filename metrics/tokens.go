package metrics

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"

	"github.com/gpsalud/consultaflow/types"
)

// TokenCounter counts tokens in text. Used when a generation provider does
// not report usage.
type TokenCounter interface {
	Count(text string) int
}

// ApproxCounter estimates one token per four characters. Cheap, no
// encoding data needed; good enough for comparative dashboards.
type ApproxCounter struct{}

func (ApproxCounter) Count(text string) int { return types.EstimateTokens(text) }

// TiktokenCounter counts with a tiktoken encoding, falling back to the
// approximation when encoding fails.
type TiktokenCounter struct {
	encoding *tiktoken.Tiktoken
	logger   *zap.Logger
}

// NewTiktokenCounter creates a counter for an OpenAI-style model name
// (e.g. "gpt-3.5-turbo"). Fails when the encoding data is unavailable.
func NewTiktokenCounter(model string, logger *zap.Logger) (*TiktokenCounter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		return nil, fmt.Errorf("tiktoken encoding for %s: %w", model, err)
	}
	return &TiktokenCounter{encoding: enc, logger: logger}, nil
}

func (c *TiktokenCounter) Count(text string) int {
	return len(c.encoding.Encode(text, nil, nil))
}

// NewCounter returns a tiktoken counter when possible and the
// approximation otherwise. The router works the same either way.
func NewCounter(model string, logger *zap.Logger) TokenCounter {
	if logger == nil {
		logger = zap.NewNop()
	}
	counter, err := NewTiktokenCounter(model, logger)
	if err != nil {
		logger.Warn("tiktoken unavailable, using length-based token estimates",
			zap.String("model", model), zap.Error(err))
		return ApproxCounter{}
	}
	return counter
}
