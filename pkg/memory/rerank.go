package memory

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/praxisai/crewkit/pkg/llm"
)

// Reranker reorders an initial retrieval result set by relevance to the
// query. A reranker may reorder results but never add to them.
type Reranker interface {
	Rerank(ctx context.Context, query string, results []SearchResult) ([]SearchResult, error)
}

// LLMReranker asks a judge model to order candidates by relevance
type LLMReranker struct {
	provider llm.Provider
}

// NewLLMReranker creates a model-backed reranker
func NewLLMReranker(provider llm.Provider) *LLMReranker {
	return &LLMReranker{provider: provider}
}

// Rerank implements Reranker. The model returns a comma-separated index
// order; indices it omits keep their relative similarity order at the
// tail, and an unparseable reply falls back to the input order.
func (r *LLMReranker) Rerank(ctx context.Context, query string, results []SearchResult) ([]SearchResult, error) {
	if len(results) < 2 {
		return results, nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Order the following passages from most to least relevant to the query.\n\nQuery: %s\n\n", query)
	for i, result := range results {
		fmt.Fprintf(&sb, "[%d] %s\n", i, result.Record.Value)
	}
	sb.WriteString("\nReply with only the passage numbers in order, comma-separated.")

	reply, err := r.provider.Complete(ctx, sb.String())
	if err != nil {
		return nil, fmt.Errorf("rerank call failed: %w", err)
	}

	order := parseIndexOrder(reply, len(results))
	if len(order) == 0 {
		return results, nil
	}

	reordered := make([]SearchResult, 0, len(results))
	seen := make(map[int]bool, len(results))
	for _, idx := range order {
		reordered = append(reordered, results[idx])
		seen[idx] = true
	}
	for i, result := range results {
		if !seen[i] {
			reordered = append(reordered, result)
		}
	}
	return reordered, nil
}

// parseIndexOrder extracts a valid, deduplicated index permutation prefix
// from the model reply
func parseIndexOrder(reply string, n int) []int {
	fields := strings.FieldsFunc(reply, func(r rune) bool {
		return r < '0' || r > '9'
	})

	var order []int
	seen := make(map[int]bool)
	for _, field := range fields {
		idx, err := strconv.Atoi(field)
		if err != nil || idx < 0 || idx >= n || seen[idx] {
			continue
		}
		order = append(order, idx)
		seen[idx] = true
	}
	return order
}
