package memory

import (
	"context"
	"errors"
	"testing"
)

type stubProvider struct {
	reply string
	err   error
}

func (p *stubProvider) Complete(ctx context.Context, prompt string) (string, error) {
	return p.reply, p.err
}

func (p *stubProvider) Name() string { return "stub" }

func resultSet(values ...string) []SearchResult {
	out := make([]SearchResult, len(values))
	for i, v := range values {
		out[i] = SearchResult{Record: &Record{ID: v, Value: v}}
	}
	return out
}

func TestParseIndexOrder(t *testing.T) {
	cases := []struct {
		name  string
		reply string
		n     int
		want  []int
	}{
		{"plain list", "2, 0, 1", 3, []int{2, 0, 1}},
		{"with prose", "The best order is 1 then 0.", 2, []int{1, 0}},
		{"duplicates dropped", "0, 0, 1", 2, []int{0, 1}},
		{"out of range ignored", "5, 1, 0", 2, []int{1, 0}},
		{"no digits", "cannot decide", 3, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := parseIndexOrder(tc.reply, tc.n)
			if len(got) != len(tc.want) {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Fatalf("got %v, want %v", got, tc.want)
				}
			}
		})
	}
}

func TestRerankReordersAndKeepsOmittedTail(t *testing.T) {
	r := NewLLMReranker(&stubProvider{reply: "2, 0"})
	results := resultSet("a", "b", "c")

	reordered, err := r.Rerank(context.Background(), "query", results)
	if err != nil {
		t.Fatalf("Rerank: %v", err)
	}
	got := []string{reordered[0].Record.ID, reordered[1].Record.ID, reordered[2].Record.ID}
	want := []string{"c", "a", "b"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestRerankUnparseableReplyKeepsInputOrder(t *testing.T) {
	r := NewLLMReranker(&stubProvider{reply: "no idea"})
	results := resultSet("a", "b")

	reordered, err := r.Rerank(context.Background(), "query", results)
	if err != nil {
		t.Fatalf("Rerank: %v", err)
	}
	if reordered[0].Record.ID != "a" || reordered[1].Record.ID != "b" {
		t.Errorf("order changed on unparseable reply")
	}
}

func TestRerankPropagatesProviderError(t *testing.T) {
	r := NewLLMReranker(&stubProvider{err: errors.New("judge down")})
	if _, err := r.Rerank(context.Background(), "query", resultSet("a", "b")); err == nil {
		t.Error("expected error from failing provider")
	}
}
