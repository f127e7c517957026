package embeddings

import (
	"context"
	"fmt"
	"sync"
)

// Model represents a text embedding model
type Model interface {
	// Embed generates embeddings for the given texts
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the dimension of the embeddings
	Dimension() int

	// Close releases any resources used by the model
	Close() error
}

// Config holds configuration for embedding models
type Config struct {
	Type    string                 `json:"type" yaml:"type"`
	Options map[string]interface{} `json:"options,omitempty" yaml:"options,omitempty"`
}

// ModelType represents supported embedding model types
type ModelType string

const (
	TypeOpenAI ModelType = "openai" // OpenAI embeddings
	TypeLocal  ModelType = "local"  // Deterministic local model for tests/offline
)

// NewModel creates a new embedding model based on config
func NewModel(ctx context.Context, config Config) (Model, error) {
	switch ModelType(config.Type) {
	case TypeOpenAI:
		return NewOpenAIModel(ctx, config)
	case TypeLocal:
		return NewLocalModel(ctx, config)
	default:
		return nil, fmt.Errorf("unsupported embedding model type: %s", config.Type)
	}
}

// CachedModel wraps an embedding model with an in-memory cache so repeated
// texts are not re-embedded
type CachedModel struct {
	model Model
	mu    sync.RWMutex
	cache map[string][]float32
}

// NewCachedModel creates a new cached embedding model
func NewCachedModel(model Model) *CachedModel {
	return &CachedModel{
		model: model,
		cache: make(map[string][]float32),
	}
}

// Embed implements Model.Embed with caching
func (m *CachedModel) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int

	m.mu.RLock()
	for i, text := range texts {
		if vec, ok := m.cache[text]; ok {
			results[i] = vec
		} else {
			missing = append(missing, text)
			missingIdx = append(missingIdx, i)
		}
	}
	m.mu.RUnlock()

	if len(missing) == 0 {
		return results, nil
	}

	vectors, err := m.model.Embed(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(missing) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(missing))
	}

	m.mu.Lock()
	for i, vec := range vectors {
		results[missingIdx[i]] = vec
		m.cache[missing[i]] = vec
	}
	m.mu.Unlock()

	return results, nil
}

// Dimension implements Model.Dimension
func (m *CachedModel) Dimension() int {
	return m.model.Dimension()
}

// Close implements Model.Close
func (m *CachedModel) Close() error {
	m.mu.Lock()
	m.cache = make(map[string][]float32)
	m.mu.Unlock()
	return m.model.Close()
}
