package knowledge

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"github.com/praxisai/crewkit/pkg/embeddings"
	"github.com/praxisai/crewkit/pkg/memory/vector"
	"github.com/praxisai/crewkit/pkg/utils"
)

// Chunk is a bounded text span produced from a source document
type Chunk struct {
	ID       string  `json:"id"`
	Text     string  `json:"text"`
	Source   string  `json:"source"`
	Position int     `json:"position"`
	Score    float32 `json:"score,omitempty"`
}

// Stats summarizes index contents
type Stats struct {
	Chunks  int `json:"chunks"`
	Sources int `json:"sources"`
}

// Reranker reorders retrieved chunks by relevance to the query. It may
// reorder but never grow the result set.
type Reranker interface {
	Rerank(ctx context.Context, query string, chunks []Chunk) ([]Chunk, error)
}

// Index ingests documents and serves relevance-ranked chunk retrieval
type Index struct {
	embedder embeddings.Model
	store    vector.Store
	chunker  Chunker
	reranker Reranker
	logger   *utils.Logger

	mu      sync.RWMutex
	sources map[string]int // source identifier -> chunk count
}

// IndexOption configures an Index
type IndexOption func(*Index)

// WithIndexReranker attaches a reranking pass
func WithIndexReranker(r Reranker) IndexOption {
	return func(idx *Index) {
		idx.reranker = r
	}
}

// WithIndexLogger sets the index logger
func WithIndexLogger(logger *utils.Logger) IndexOption {
	return func(idx *Index) {
		idx.logger = logger
	}
}

// NewIndex creates a knowledge index. Chunking strategy is pure
// configuration: switching it later never re-chunks stored content.
func NewIndex(embedder embeddings.Model, store vector.Store, chunker Chunker, opts ...IndexOption) *Index {
	idx := &Index{
		embedder: embedder,
		store:    store,
		chunker:  chunker,
		logger:   utils.NewLogger(false),
		sources:  make(map[string]int),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// Add ingests a source (file path, URL or raw text), extracting it to
// plain text, chunking and indexing the chunks
func (idx *Index) Add(ctx context.Context, source string) (int, error) {
	kind := DetectSourceKind(source)

	var text string
	var err error
	sourceID := source

	switch kind {
	case SourceFile:
		text, err = (&FileExtractor{}).Extract(ctx, source)
	case SourceURL:
		text, err = NewURLExtractor().Extract(ctx, source)
	default:
		text = source
		sourceID = fmt.Sprintf("text:%s", uuid.NewString())
	}
	if err != nil {
		return 0, fmt.Errorf("extraction failed for %s: %w", source, err)
	}

	return idx.AddText(ctx, sourceID, text)
}

// AddText chunks and indexes already-extracted text under the given
// source identifier
func (idx *Index) AddText(ctx context.Context, sourceID, text string) (int, error) {
	spans, err := idx.chunker.Chunk(ctx, text)
	if err != nil {
		return 0, fmt.Errorf("chunking failed for %s: %w", sourceID, err)
	}
	if len(spans) == 0 {
		return 0, nil
	}

	vectors, err := idx.embedder.Embed(ctx, spans)
	if err != nil {
		return 0, fmt.Errorf("embedding failed for %s: %w", sourceID, err)
	}

	docs := make([]vector.Document, len(spans))
	for i, span := range spans {
		docs[i] = vector.Document{
			ID:      uuid.NewString(),
			Content: span,
			Vector:  vectors[i],
			Metadata: map[string]string{
				"source":   sourceID,
				"position": strconv.Itoa(i),
			},
		}
	}

	if err := idx.store.Insert(ctx, docs...); err != nil {
		return 0, fmt.Errorf("indexing failed for %s: %w", sourceID, err)
	}

	idx.mu.Lock()
	idx.sources[sourceID] += len(spans)
	idx.mu.Unlock()

	idx.logger.Debug("indexed %d chunks from %s", len(spans), sourceID)
	return len(spans), nil
}

// Search retrieves the k most relevant chunks for the query, optionally
// reranked. Identical queries against an unchanged index return the same
// ordered chunk ids.
func (idx *Index) Search(ctx context.Context, query string, k int, rerank bool) ([]Chunk, error) {
	if k <= 0 {
		k = 5
	}

	vectors, err := idx.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	hits, err := idx.store.Search(ctx, vectors[0], k, nil)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	chunks := make([]Chunk, 0, len(hits))
	for _, hit := range hits {
		position, _ := strconv.Atoi(hit.Document.Metadata["position"])
		chunks = append(chunks, Chunk{
			ID:       hit.Document.ID,
			Text:     hit.Document.Content,
			Source:   hit.Document.Metadata["source"],
			Position: position,
			Score:    hit.Score,
		})
	}

	if rerank && idx.reranker != nil && len(chunks) > 1 {
		reranked, err := idx.reranker.Rerank(ctx, query, chunks)
		if err != nil {
			idx.logger.Warning("rerank failed, using similarity order: %v", err)
			return chunks, nil
		}
		if len(reranked) > k {
			reranked = reranked[:k]
		}
		return reranked, nil
	}

	return chunks, nil
}

// GetStats returns total chunk and distinct source counts
func (idx *Index) GetStats() Stats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	total := 0
	for _, count := range idx.sources {
		total += count
	}
	return Stats{Chunks: total, Sources: len(idx.sources)}
}

// RemoveSource deletes all chunks belonging to a source
func (idx *Index) RemoveSource(ctx context.Context, sourceID string) error {
	if err := idx.store.DeleteWhere(ctx, vector.Filter{"source": sourceID}); err != nil {
		return fmt.Errorf("failed to remove source %s: %w", sourceID, err)
	}

	idx.mu.Lock()
	delete(idx.sources, sourceID)
	idx.mu.Unlock()
	return nil
}

// SortByPosition orders chunks by their position within their source,
// useful when reassembling retrieved context
func SortByPosition(chunks []Chunk) {
	sort.SliceStable(chunks, func(i, j int) bool {
		if chunks[i].Source != chunks[j].Source {
			return chunks[i].Source < chunks[j].Source
		}
		return chunks[i].Position < chunks[j].Position
	})
}
