package types

import "time"

// GenerateRequest is the request sent to a generation provider.
type GenerateRequest struct {
	Messages    []Message     `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
	Timeout     time.Duration `json:"timeout,omitempty"`
}

// GenerateUsage carries the token counts a provider reports, when it does.
type GenerateUsage struct {
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`
}

// GenerateResponse is a provider's answer. Usage fields may be zero when
// the provider does not report them; callers fall back to estimation.
type GenerateResponse struct {
	Text  string        `json:"text"`
	Model string        `json:"model,omitempty"`
	Usage GenerateUsage `json:"usage"`
}

// EstimateTokens is the cheap token approximation used when a provider
// reports no usage: roughly one token per four characters.
func EstimateTokens(text string) int {
	return len(text) / 4
}
