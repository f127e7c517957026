package knowledge

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/praxisai/crewkit/pkg/memory/vector"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()

	embedder := testEmbedder(t)
	store, err := vector.NewLocalStore(context.Background(), vector.Config{
		Type:      string(vector.TypeLocal),
		Dimension: 64,
	})
	if err != nil {
		t.Fatalf("failed to create vector store: %v", err)
	}

	chunker, err := NewChunker(ChunkerConfig{Strategy: ChunkerSentence, ChunkSize: 120, ChunkOverlap: 0}, nil)
	if err != nil {
		t.Fatalf("failed to create chunker: %v", err)
	}

	return NewIndex(embedder, store, chunker)
}

func TestIndexAddAndSearch(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)

	n, err := idx.AddText(ctx, "handbook", "The vacation policy allows twenty days per year. Unused days roll over once. Sick leave is unlimited with a doctor note.")
	if err != nil {
		t.Fatalf("AddText() error = %v", err)
	}
	if n == 0 {
		t.Fatal("AddText() indexed no chunks")
	}

	chunks, err := idx.Search(ctx, "vacation days policy", 2, false)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(chunks) == 0 {
		t.Fatal("Search() returned no chunks")
	}
	if chunks[0].Source != "handbook" {
		t.Errorf("Top chunk source = %q, want handbook", chunks[0].Source)
	}
	if chunks[0].Score <= 0 {
		t.Errorf("Top chunk score = %v, want positive", chunks[0].Score)
	}
}

func TestIndexIdempotentSearch(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)

	if _, err := idx.AddText(ctx, "doc", "Orders ship within two days. Returns are accepted for thirty days. Refunds arrive within a week."); err != nil {
		t.Fatalf("AddText() error = %v", err)
	}

	first, err := idx.Search(ctx, "return window", 3, false)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	second, err := idx.Search(ctx, "return window", 3, false)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	if len(first) != len(second) {
		t.Fatalf("Result counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Errorf("Result %d id differs between identical searches", i)
		}
	}
}

func TestIndexStats(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)

	if _, err := idx.AddText(ctx, "a", "First doc sentence one. First doc sentence two."); err != nil {
		t.Fatal(err)
	}
	if _, err := idx.AddText(ctx, "b", "Second doc only sentence."); err != nil {
		t.Fatal(err)
	}

	stats := idx.GetStats()
	if stats.Sources != 2 {
		t.Errorf("Sources = %d, want 2", stats.Sources)
	}
	if stats.Chunks < 2 {
		t.Errorf("Chunks = %d, want at least 2", stats.Chunks)
	}
}

func TestIndexRemoveSource(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)

	if _, err := idx.AddText(ctx, "keep", "Kept knowledge about gardening tulips."); err != nil {
		t.Fatal(err)
	}
	if _, err := idx.AddText(ctx, "drop", "Dropped knowledge about gardening roses."); err != nil {
		t.Fatal(err)
	}

	if err := idx.RemoveSource(ctx, "drop"); err != nil {
		t.Fatalf("RemoveSource() error = %v", err)
	}

	chunks, err := idx.Search(ctx, "gardening", 10, false)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	for _, chunk := range chunks {
		if chunk.Source == "drop" {
			t.Error("Removed source still retrievable")
		}
	}
	if stats := idx.GetStats(); stats.Sources != 1 {
		t.Errorf("Sources after removal = %d, want 1", stats.Sources)
	}
}

func TestIndexAddFile(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(path, []byte("Quarterly revenue rose by ten percent. Costs stayed flat."), 0o644); err != nil {
		t.Fatal(err)
	}

	n, err := idx.Add(ctx, path)
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if n == 0 {
		t.Fatal("Add() indexed no chunks from file")
	}

	chunks, err := idx.Search(ctx, "quarterly revenue", 1, false)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(chunks) != 1 || chunks[0].Source != path {
		t.Errorf("Expected one chunk attributed to %s, got %+v", path, chunks)
	}
}

func TestDetectSourceKind(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.md")
	if err := os.WriteFile(path, []byte("# heading"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		source string
		want   SourceKind
	}{
		{"https://example.com/page", SourceURL},
		{"http://example.com", SourceURL},
		{path, SourceFile},
		{"just some raw text to ingest", SourceText},
		{filepath.Join(dir, "missing.txt"), SourceText},
	}

	for _, tt := range tests {
		if got := DetectSourceKind(tt.source); got != tt.want {
			t.Errorf("DetectSourceKind(%q) = %v, want %v", tt.source, got, tt.want)
		}
	}
}

func TestCSVExtraction(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "people.csv")
	if err := os.WriteFile(path, []byte("name,role\nAda,engineer\nGrace,admiral\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	text, err := (&FileExtractor{}).Extract(context.Background(), path)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	want := "name: Ada, role: engineer\nname: Grace, role: admiral\n"
	if text != want {
		t.Errorf("Extract() = %q, want %q", text, want)
	}
}
