package knowledge

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"github.com/praxisai/crewkit/pkg/embeddings"
)

// ChunkerType selects the chunking strategy. The set is closed; every
// strategy implements the same Chunk contract.
type ChunkerType string

const (
	ChunkerToken     ChunkerType = "token"
	ChunkerSentence  ChunkerType = "sentence"
	ChunkerRecursive ChunkerType = "recursive"
	ChunkerSemantic  ChunkerType = "semantic"
	ChunkerSDPM      ChunkerType = "sdpm"
	ChunkerLate      ChunkerType = "late"
)

// ChunkerConfig holds chunking parameters
type ChunkerConfig struct {
	Strategy ChunkerType `json:"strategy" yaml:"strategy"`

	// ChunkSize bounds each chunk, in tokens for the token strategy and
	// characters otherwise
	ChunkSize int `json:"chunk_size" yaml:"chunk_size"`

	// ChunkOverlap is shared between consecutive chunks, in the same unit
	// as ChunkSize
	ChunkOverlap int `json:"chunk_overlap" yaml:"chunk_overlap"`

	// Threshold is the similarity boundary for the semantic and sdpm
	// strategies
	Threshold float32 `json:"threshold,omitempty" yaml:"threshold,omitempty"`
}

// DefaultChunkerConfig returns the default (recursive) configuration
func DefaultChunkerConfig() ChunkerConfig {
	return ChunkerConfig{
		Strategy:     ChunkerRecursive,
		ChunkSize:    1000,
		ChunkOverlap: 100,
		Threshold:    0.5,
	}
}

// Chunker splits extracted text into an ordered sequence of spans
type Chunker interface {
	Chunk(ctx context.Context, text string) ([]string, error)
}

// NewChunker creates a chunker for the configured strategy. The embedder
// is only consulted by the semantic and sdpm strategies.
func NewChunker(config ChunkerConfig, embedder embeddings.Model) (Chunker, error) {
	if config.ChunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive")
	}
	if config.ChunkOverlap < 0 || config.ChunkOverlap >= config.ChunkSize {
		return nil, fmt.Errorf("chunk overlap must be in [0, chunk size)")
	}

	switch config.Strategy {
	case ChunkerToken:
		return newTokenChunker(config)
	case ChunkerSentence:
		return &sentenceChunker{config: config}, nil
	case ChunkerRecursive, "":
		return &recursiveChunker{config: config}, nil
	case ChunkerSemantic:
		if embedder == nil {
			return nil, fmt.Errorf("semantic chunker requires an embedder")
		}
		return &semanticChunker{config: config, embedder: embedder}, nil
	case ChunkerSDPM:
		if embedder == nil {
			return nil, fmt.Errorf("sdpm chunker requires an embedder")
		}
		return &sdpmChunker{semanticChunker{config: config, embedder: embedder}}, nil
	case ChunkerLate:
		return &lateChunker{config: config}, nil
	default:
		return nil, fmt.Errorf("unsupported chunker strategy: %s", config.Strategy)
	}
}

// tokenChunker produces fixed token windows with token overlap
type tokenChunker struct {
	config   ChunkerConfig
	encoding *tiktoken.Tiktoken
}

func newTokenChunker(config ChunkerConfig) (*tokenChunker, error) {
	encoding, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("failed to load token encoding: %w", err)
	}
	return &tokenChunker{config: config, encoding: encoding}, nil
}

func (c *tokenChunker) Chunk(ctx context.Context, text string) ([]string, error) {
	tokens := c.encoding.Encode(text, nil, nil)
	if len(tokens) == 0 {
		return nil, nil
	}

	step := c.config.ChunkSize - c.config.ChunkOverlap
	var chunks []string
	for start := 0; start < len(tokens); start += step {
		end := start + c.config.ChunkSize
		if end > len(tokens) {
			end = len(tokens)
		}
		chunks = append(chunks, c.encoding.Decode(tokens[start:end]))
		if end == len(tokens) {
			break
		}
	}
	return chunks, nil
}

// sentenceChunker packs whole sentences into chunks, carrying trailing
// sentences forward as overlap
type sentenceChunker struct {
	config ChunkerConfig
}

func (c *sentenceChunker) Chunk(ctx context.Context, text string) ([]string, error) {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return nil, nil
	}
	return packSentences(sentences, c.config.ChunkSize, c.config.ChunkOverlap), nil
}

// recursiveChunker splits on progressively finer separators until every
// piece fits the size bound, then reassembles with character overlap
type recursiveChunker struct {
	config ChunkerConfig
}

var recursiveSeparators = []string{"\n\n", "\n", ". ", " "}

func (c *recursiveChunker) Chunk(ctx context.Context, text string) ([]string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}

	pieces := splitRecursive(text, c.config.ChunkSize, 0)
	return mergeWithOverlap(pieces, c.config.ChunkSize, c.config.ChunkOverlap), nil
}

func splitRecursive(text string, size int, sepIdx int) []string {
	if len(text) <= size {
		return []string{text}
	}
	if sepIdx >= len(recursiveSeparators) {
		// No separator left, hard split on the size bound
		var out []string
		for len(text) > size {
			out = append(out, text[:size])
			text = text[size:]
		}
		if text != "" {
			out = append(out, text)
		}
		return out
	}

	sep := recursiveSeparators[sepIdx]
	parts := strings.Split(text, sep)
	if len(parts) == 1 {
		return splitRecursive(text, size, sepIdx+1)
	}

	var out []string
	for i, part := range parts {
		if i < len(parts)-1 {
			part += sep
		}
		if part == "" {
			continue
		}
		out = append(out, splitRecursive(part, size, sepIdx+1)...)
	}
	return out
}

// mergeWithOverlap greedily packs pieces into chunks up to size, starting
// each new chunk with the configured tail of the previous one
func mergeWithOverlap(pieces []string, size, overlap int) []string {
	var chunks []string
	var cur strings.Builder

	flush := func() {
		if cur.Len() == 0 {
			return
		}
		chunk := cur.String()
		chunks = append(chunks, chunk)
		cur.Reset()
		if overlap > 0 {
			tail := chunk
			if len(tail) > overlap {
				tail = tail[len(tail)-overlap:]
			}
			cur.WriteString(tail)
		}
	}

	for _, piece := range pieces {
		if cur.Len() > 0 && cur.Len()+len(piece) > size {
			flush()
		}
		cur.WriteString(piece)
	}
	if strings.TrimSpace(cur.String()) != "" {
		chunks = append(chunks, cur.String())
	}
	return chunks
}

// semanticChunker groups consecutive sentences while their embeddings stay
// similar, breaking at topic shifts
type semanticChunker struct {
	config   ChunkerConfig
	embedder embeddings.Model
}

func (c *semanticChunker) Chunk(ctx context.Context, text string) ([]string, error) {
	sentences := splitSentences(text)
	if len(sentences) <= 1 {
		if len(sentences) == 0 {
			return nil, nil
		}
		return sentences, nil
	}

	vectors, err := c.embedder.Embed(ctx, sentences)
	if err != nil {
		return nil, fmt.Errorf("failed to embed sentences: %w", err)
	}

	var chunks []string
	var cur strings.Builder
	cur.WriteString(sentences[0])

	for i := 1; i < len(sentences); i++ {
		sim := cosine32(vectors[i-1], vectors[i])
		if sim < c.config.Threshold || cur.Len()+len(sentences[i])+1 > c.config.ChunkSize {
			chunks = append(chunks, cur.String())
			cur.Reset()
		} else {
			cur.WriteString(" ")
		}
		cur.WriteString(sentences[i])
	}
	if cur.Len() > 0 {
		chunks = append(chunks, cur.String())
	}
	return chunks, nil
}

// sdpmChunker runs the semantic pass, then a second pass that merges
// adjacent chunks whose embeddings remain similar and whose combined size
// still fits the bound
type sdpmChunker struct {
	semanticChunker
}

func (c *sdpmChunker) Chunk(ctx context.Context, text string) ([]string, error) {
	chunks, err := c.semanticChunker.Chunk(ctx, text)
	if err != nil || len(chunks) <= 1 {
		return chunks, err
	}

	vectors, err := c.embedder.Embed(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("failed to embed chunks for merge pass: %w", err)
	}

	merged := []string{chunks[0]}
	mergedVec := [][]float32{vectors[0]}
	for i := 1; i < len(chunks); i++ {
		last := len(merged) - 1
		if cosine32(mergedVec[last], vectors[i]) >= c.config.Threshold &&
			len(merged[last])+len(chunks[i])+1 <= c.config.ChunkSize {
			merged[last] = merged[last] + " " + chunks[i]
		} else {
			merged = append(merged, chunks[i])
			mergedVec = append(mergedVec, vectors[i])
		}
	}
	return merged, nil
}

// lateChunker emits sentence windows that carry preceding document context
// as their overlap, so each chunk stays interpretable on its own
type lateChunker struct {
	config ChunkerConfig
}

func (c *lateChunker) Chunk(ctx context.Context, text string) ([]string, error) {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return nil, nil
	}

	bodySize := c.config.ChunkSize - c.config.ChunkOverlap
	bodies := packSentences(sentences, bodySize, 0)

	chunks := make([]string, 0, len(bodies))
	var context string
	for _, body := range bodies {
		if context != "" {
			chunks = append(chunks, context+" "+body)
		} else {
			chunks = append(chunks, body)
		}
		tail := body
		if len(tail) > c.config.ChunkOverlap {
			tail = tail[len(tail)-c.config.ChunkOverlap:]
		}
		context = tail
	}
	return chunks, nil
}

// splitSentences breaks text on sentence boundaries
func splitSentences(text string) []string {
	var sentences []string
	var cur strings.Builder

	runes := []rune(strings.TrimSpace(text))
	for i, r := range runes {
		cur.WriteRune(r)
		boundary := r == '.' || r == '!' || r == '?' || r == '\n'
		if boundary && (i == len(runes)-1 || runes[i+1] == ' ' || runes[i+1] == '\n') {
			if s := strings.TrimSpace(cur.String()); s != "" {
				sentences = append(sentences, s)
			}
			cur.Reset()
		}
	}
	if s := strings.TrimSpace(cur.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

// packSentences packs whole sentences into chunks of at most size
// characters, repeating trailing sentences as overlap between chunks
func packSentences(sentences []string, size, overlap int) []string {
	var chunks []string
	var cur []string
	curLen := 0

	for i := 0; i < len(sentences); i++ {
		s := sentences[i]
		if curLen > 0 && curLen+len(s)+1 > size {
			chunks = append(chunks, strings.Join(cur, " "))

			// Carry trailing sentences forward as overlap
			var carry []string
			carryLen := 0
			for j := len(cur) - 1; j >= 0 && carryLen+len(cur[j]) <= overlap; j-- {
				carry = append([]string{cur[j]}, carry...)
				carryLen += len(cur[j]) + 1
			}
			cur = carry
			curLen = carryLen
		}
		cur = append(cur, s)
		curLen += len(s) + 1
	}
	if len(cur) > 0 {
		chunks = append(chunks, strings.Join(cur, " "))
	}
	return chunks
}

func cosine32(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
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
