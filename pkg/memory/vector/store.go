package vector

import (
	"context"
	"fmt"
)

// Vector represents a high-dimensional vector
type Vector []float32

// Document represents a document with its vector embedding
type Document struct {
	ID       string            `json:"id"`
	Content  string            `json:"content"`
	Vector   Vector            `json:"vector"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// SearchResult represents a search result with similarity score
type SearchResult struct {
	Document Document `json:"document"`
	Score    float32  `json:"score"`
}

// Filter restricts search and delete operations to documents whose
// metadata contains every listed key/value pair. A nil or empty filter
// matches all documents.
type Filter map[string]string

// Matches reports whether the document metadata satisfies the filter
func (f Filter) Matches(metadata map[string]string) bool {
	for k, v := range f {
		if metadata[k] != v {
			return false
		}
	}
	return true
}

// Store defines the interface for vector storage implementations
type Store interface {
	// Insert adds documents to the store
	Insert(ctx context.Context, docs ...Document) error

	// Search finds the most similar documents to the query vector,
	// restricted to documents matching the filter
	Search(ctx context.Context, queryVector Vector, limit int, filter Filter) ([]SearchResult, error)

	// Get retrieves a document by ID
	Get(ctx context.Context, id string) (*Document, error)

	// Update replaces existing documents
	Update(ctx context.Context, docs ...Document) error

	// Delete removes documents from the store
	Delete(ctx context.Context, ids ...string) error

	// DeleteWhere removes all documents matching the filter
	DeleteWhere(ctx context.Context, filter Filter) error

	// Count returns the number of stored documents
	Count(ctx context.Context) (int, error)

	// Clear removes all documents from the store
	Clear(ctx context.Context) error

	// Close closes the store connection
	Close() error
}

// Config holds configuration for vector stores
type Config struct {
	Type      string                 `json:"type" yaml:"type"`
	Dimension int                    `json:"dimension" yaml:"dimension"`
	Options   map[string]interface{} `json:"options,omitempty" yaml:"options,omitempty"`
}

// StoreType represents supported vector store types
type StoreType string

const (
	TypeLocal  StoreType = "local"
	TypeQdrant StoreType = "qdrant"
)

// NewStore creates a vector store based on config
func NewStore(ctx context.Context, config Config) (Store, error) {
	switch StoreType(config.Type) {
	case TypeLocal:
		return NewLocalStore(ctx, config)
	case TypeQdrant:
		return NewQdrantStore(ctx, config)
	default:
		return nil, fmt.Errorf("unsupported vector store type: %s", config.Type)
	}
}
