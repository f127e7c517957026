package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiProvider implements Provider using Google AI Studio
type GeminiProvider struct {
	client *genai.Client
	model  *genai.GenerativeModel
	config *Config
}

// NewGeminiProvider creates a new Gemini provider
func NewGeminiProvider(ctx context.Context, config *Config) (*GeminiProvider, error) {
	if config == nil || config.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(config.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	modelName := config.Model
	if modelName == "" {
		modelName = "gemini-2.0-flash"
	}

	model := client.GenerativeModel(modelName)
	model.SetTemperature(config.Temperature)
	if config.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(config.MaxTokens))
	}
	if config.TopP > 0 {
		model.SetTopP(config.TopP)
	}

	cfg := *config
	cfg.Model = modelName

	return &GeminiProvider{
		client: client,
		model:  model,
		config: &cfg,
	}, nil
}

// Complete implements Provider.Complete
func (p *GeminiProvider) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := p.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini completion failed: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", ErrEmptyResponse
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}

	if sb.Len() == 0 {
		return "", ErrEmptyResponse
	}

	return sb.String(), nil
}

// Name implements Provider.Name
func (p *GeminiProvider) Name() string {
	return fmt.Sprintf("gemini/%s", p.config.Model)
}

// Close releases the underlying client
func (p *GeminiProvider) Close() error {
	return p.client.Close()
}
