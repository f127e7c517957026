package vector

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// LocalStore implements an in-memory vector store with cosine similarity.
// All mutations are atomic per document under a single mutex; readers
// never observe a partially written document.
type LocalStore struct {
	mu        sync.RWMutex
	docs      map[string]Document
	order     []string // insertion order, used to break score ties deterministically
	dimension int
}

// NewLocalStore creates a new local vector store
func NewLocalStore(ctx context.Context, config Config) (Store, error) {
	if config.Dimension <= 0 {
		return nil, fmt.Errorf("dimension must be positive")
	}

	return &LocalStore{
		docs:      make(map[string]Document),
		dimension: config.Dimension,
	}, nil
}

// Insert implements Store.Insert
func (s *LocalStore) Insert(ctx context.Context, docs ...Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, doc := range docs {
		if len(doc.Vector) != s.dimension {
			return fmt.Errorf("vector dimension mismatch: expected %d, got %d", s.dimension, len(doc.Vector))
		}
		if _, exists := s.docs[doc.ID]; !exists {
			s.order = append(s.order, doc.ID)
		}
		s.docs[doc.ID] = doc
	}
	return nil
}

// Search implements Store.Search
func (s *LocalStore) Search(ctx context.Context, queryVector Vector, limit int, filter Filter) ([]SearchResult, error) {
	if len(queryVector) != s.dimension {
		return nil, fmt.Errorf("query vector dimension mismatch: expected %d, got %d", s.dimension, len(queryVector))
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]SearchResult, 0, len(s.docs))
	rank := make(map[string]int, len(s.order))
	for i, id := range s.order {
		rank[id] = i
	}

	for _, id := range s.order {
		doc := s.docs[id]
		if !filter.Matches(doc.Metadata) {
			continue
		}
		results = append(results, SearchResult{
			Document: doc,
			Score:    cosineSimilarity(queryVector, doc.Vector),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return rank[results[i].Document.ID] < rank[results[j].Document.ID]
	})

	if limit > 0 && limit < len(results) {
		results = results[:limit]
	}

	return results, nil
}

// Get implements Store.Get
func (s *LocalStore) Get(ctx context.Context, id string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, exists := s.docs[id]
	if !exists {
		return nil, fmt.Errorf("document not found: %s", id)
	}
	return &doc, nil
}

// Update implements Store.Update
func (s *LocalStore) Update(ctx context.Context, docs ...Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, doc := range docs {
		if len(doc.Vector) != s.dimension {
			return fmt.Errorf("vector dimension mismatch: expected %d, got %d", s.dimension, len(doc.Vector))
		}
		if _, exists := s.docs[doc.ID]; !exists {
			return fmt.Errorf("document not found: %s", doc.ID)
		}
		s.docs[doc.ID] = doc
	}
	return nil
}

// Delete implements Store.Delete
func (s *LocalStore) Delete(ctx context.Context, ids ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		s.removeLocked(id)
	}
	return nil
}

// DeleteWhere implements Store.DeleteWhere
func (s *LocalStore) DeleteWhere(ctx context.Context, filter Filter) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var doomed []string
	for id, doc := range s.docs {
		if filter.Matches(doc.Metadata) {
			doomed = append(doomed, id)
		}
	}
	for _, id := range doomed {
		s.removeLocked(id)
	}
	return nil
}

// Count implements Store.Count
func (s *LocalStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs), nil
}

// Clear implements Store.Clear
func (s *LocalStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = make(map[string]Document)
	s.order = nil
	return nil
}

// Close implements Store.Close
func (s *LocalStore) Close() error {
	return nil
}

func (s *LocalStore) removeLocked(id string) {
	if _, exists := s.docs[id]; !exists {
		return
	}
	delete(s.docs, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// cosineSimilarity computes similarity between two vectors
func cosineSimilarity(a, b Vector) float32 {
	if len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
