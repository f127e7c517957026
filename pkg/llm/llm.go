package llm

import (
	"context"
	"errors"
	"fmt"
)

// Config holds configuration for LLM providers
type Config struct {
	Model       string  `json:"model" yaml:"model"`
	Temperature float32 `json:"temperature" yaml:"temperature"`
	MaxTokens   int     `json:"max_tokens" yaml:"max_tokens"`
	TopP        float32 `json:"top_p" yaml:"top_p"`
	APIKey      string  `json:"-" yaml:"-"`
	BaseURL     string  `json:"base_url,omitempty" yaml:"base_url,omitempty"`
}

// Provider defines the interface for LLM completion backends. Agent
// execution, guardrail judging, reranking and hierarchical manager
// decisions all go through this interface.
type Provider interface {
	// Complete generates a completion for the given prompt
	Complete(ctx context.Context, prompt string) (string, error)

	// Name returns the provider name for attribution
	Name() string
}

// ProviderType represents supported LLM provider types
type ProviderType string

const (
	TypeOpenAI ProviderType = "openai"
	TypeGemini ProviderType = "gemini"
)

var (
	// ErrEmptyResponse is returned when the provider yields no candidates
	ErrEmptyResponse = errors.New("llm returned empty response")

	// ErrMissingAPIKey is returned when no API key is configured
	ErrMissingAPIKey = errors.New("api key is required")
)

// NewProvider creates an LLM provider based on config
func NewProvider(ctx context.Context, providerType ProviderType, config *Config) (Provider, error) {
	switch providerType {
	case TypeOpenAI:
		return NewOpenAIProvider(config)
	case TypeGemini:
		return NewGeminiProvider(ctx, config)
	default:
		return nil, fmt.Errorf("unsupported llm provider type: %s", providerType)
	}
}
