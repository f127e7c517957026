package embeddings

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIModel implements Model using OpenAI's embeddings API
type OpenAIModel struct {
	client    *openai.Client
	model     openai.EmbeddingModel
	dimension int
}

// NewOpenAIModel creates a new OpenAI embedding model
func NewOpenAIModel(ctx context.Context, config Config) (Model, error) {
	apiKey, ok := config.Options["api_key"].(string)
	if !ok || apiKey == "" {
		return nil, fmt.Errorf("api_key is required for OpenAI model")
	}

	model := openai.SmallEmbedding3
	if modelStr, ok := config.Options["model"].(string); ok {
		model = openai.EmbeddingModel(modelStr)
	}

	dimension, ok := config.Options["dimension"].(int)
	if !ok {
		dimension = 1536
	}

	return &OpenAIModel{
		client:    openai.NewClient(apiKey),
		model:     model,
		dimension: dimension,
	}, nil
}

// Embed implements Model.Embed
func (m *OpenAIModel) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, 0, len(texts))

	// Batch requests to stay under API limits
	const batchSize = 20
	for i := 0; i < len(texts); i += batchSize {
		end := i + batchSize
		if end > len(texts) {
			end = len(texts)
		}

		resp, err := m.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: texts[i:end],
			Model: m.model,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to embed batch: %w", err)
		}

		for _, data := range resp.Data {
			embeddings = append(embeddings, data.Embedding)
		}
	}

	if len(embeddings) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(embeddings))
	}

	return embeddings, nil
}

// Dimension implements Model.Dimension
func (m *OpenAIModel) Dimension() int {
	return m.dimension
}

// Close implements Model.Close
func (m *OpenAIModel) Close() error {
	return nil
}
