package embeddings

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
)

// LocalModel implements Model using a bag-of-words hashing scheme. Texts
// that share words produce similar vectors, which is enough for tests and
// offline runs. Not intended for production retrieval quality.
type LocalModel struct {
	dimension int
}

// NewLocalModel creates a new local embedding model
func NewLocalModel(ctx context.Context, config Config) (Model, error) {
	dimension, ok := config.Options["dimension"].(int)
	if !ok {
		dimension = 64
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("dimension must be positive")
	}

	return &LocalModel{dimension: dimension}, nil
}

// Embed implements Model.Embed
func (m *LocalModel) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		embeddings[i] = m.bagOfWordsVector(text)
	}
	return embeddings, nil
}

// bagOfWordsVector hashes each word into a bucket and normalizes the
// resulting histogram, so word overlap translates to cosine similarity
func (m *LocalModel) bagOfWordsVector(text string) []float32 {
	vec := make([]float32, m.dimension)

	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,;:!?\"'()[]")
		if word == "" {
			continue
		}
		h := fnv.New32a()
		h.Write([]byte(word))
		vec[int(h.Sum32())%m.dimension]++
	}

	var sum float64
	for _, v := range vec {
		sum += float64(v * v)
	}
	if norm := float32(math.Sqrt(sum)); norm > 0 {
		for i := range vec {
			vec[i] /= norm
		}
	}

	return vec
}

// Dimension implements Model.Dimension
func (m *LocalModel) Dimension() int {
	return m.dimension
}

// Close implements Model.Close
func (m *LocalModel) Close() error {
	return nil
}
