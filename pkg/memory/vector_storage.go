package memory

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/praxisai/crewkit/pkg/embeddings"
	"github.com/praxisai/crewkit/pkg/memory/vector"
)

// VectorStorage implements Storage using embeddings and a vector store,
// giving semantic search over memory records
type VectorStorage struct {
	embedder embeddings.Model
	store    vector.Store
}

// NewVectorStorage creates a vector-backed memory storage
func NewVectorStorage(embedder embeddings.Model, store vector.Store) *VectorStorage {
	return &VectorStorage{
		embedder: embedder,
		store:    store,
	}
}

// Save implements Storage.Save
func (s *VectorStorage) Save(ctx context.Context, record *Record) error {
	vectors, err := s.embedder.Embed(ctx, []string{record.Value})
	if err != nil {
		return fmt.Errorf("failed to generate embedding: %w", err)
	}

	doc := vector.Document{
		ID:       record.ID,
		Content:  record.Value,
		Vector:   vectors[0],
		Metadata: recordMetadata(record),
	}
	return s.store.Insert(ctx, doc)
}

// Search implements Storage.Search. The vector store filters on exact
// metadata matches, so multi-tier queries run once per tier and merge by
// score.
func (s *VectorStorage) Search(ctx context.Context, query string, filter Filter, tiers []Tier, limit int) ([]SearchResult, error) {
	vectors, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	queryVector := vectors[0]

	if len(tiers) == 0 {
		tiers = AllTiers
	}

	var merged []SearchResult
	for _, tier := range tiers {
		vf := scopeFilter(filter)
		vf["tier"] = string(tier)

		hits, err := s.store.Search(ctx, queryVector, limit, vf)
		if err != nil {
			return nil, err
		}
		for _, hit := range hits {
			merged = append(merged, SearchResult{
				Record: documentToRecord(hit.Document),
				Score:  float64(hit.Score),
			})
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Score > merged[j].Score
	})
	if limit > 0 && limit < len(merged) {
		merged = merged[:limit]
	}
	return merged, nil
}

// Get implements Storage.Get
func (s *VectorStorage) Get(ctx context.Context, id string) (*Record, error) {
	doc, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, ErrRecordNotFound
	}
	return documentToRecord(*doc), nil
}

// Update implements Storage.Update. The value is re-embedded so search
// stays consistent with the stored text.
func (s *VectorStorage) Update(ctx context.Context, id string, value string) error {
	doc, err := s.store.Get(ctx, id)
	if err != nil {
		return ErrRecordNotFound
	}

	vectors, err := s.embedder.Embed(ctx, []string{value})
	if err != nil {
		return fmt.Errorf("failed to re-embed value: %w", err)
	}

	doc.Content = value
	doc.Vector = vectors[0]
	return s.store.Update(ctx, *doc)
}

// Delete implements Storage.Delete
func (s *VectorStorage) Delete(ctx context.Context, id string) error {
	return s.store.Delete(ctx, id)
}

// DeleteAll implements Storage.DeleteAll
func (s *VectorStorage) DeleteAll(ctx context.Context, filter Filter) error {
	return s.store.DeleteWhere(ctx, scopeFilter(filter))
}

// Clear implements Storage.Clear
func (s *VectorStorage) Clear(ctx context.Context, tier Tier) error {
	return s.store.DeleteWhere(ctx, vector.Filter{"tier": string(tier)})
}

// Close implements Storage.Close
func (s *VectorStorage) Close() error {
	if err := s.embedder.Close(); err != nil {
		return err
	}
	return s.store.Close()
}

func recordMetadata(record *Record) map[string]string {
	md := map[string]string{
		"tier":      string(record.Tier),
		"timestamp": record.Timestamp.Format(time.RFC3339Nano),
	}
	if record.Scope.UserID != "" {
		md["user_id"] = record.Scope.UserID
	}
	if record.Scope.AgentID != "" {
		md["agent_id"] = record.Scope.AgentID
	}
	if record.Scope.RunID != "" {
		md["run_id"] = record.Scope.RunID
	}
	if record.QualityScore != nil {
		md["quality"] = strconv.FormatFloat(*record.QualityScore, 'f', 4, 64)
	}
	for k, v := range record.Metadata {
		md["meta."+k] = v
	}
	return md
}

func scopeFilter(filter Filter) vector.Filter {
	vf := vector.Filter{}
	if filter.UserID != "" {
		vf["user_id"] = filter.UserID
	}
	if filter.AgentID != "" {
		vf["agent_id"] = filter.AgentID
	}
	if filter.RunID != "" {
		vf["run_id"] = filter.RunID
	}
	return vf
}

func documentToRecord(doc vector.Document) *Record {
	record := &Record{
		ID:    doc.ID,
		Value: doc.Content,
		Tier:  Tier(doc.Metadata["tier"]),
		Scope: Scope{
			UserID:  doc.Metadata["user_id"],
			AgentID: doc.Metadata["agent_id"],
			RunID:   doc.Metadata["run_id"],
		},
	}
	if ts, err := time.Parse(time.RFC3339Nano, doc.Metadata["timestamp"]); err == nil {
		record.Timestamp = ts
	}
	if q, err := strconv.ParseFloat(doc.Metadata["quality"], 64); err == nil {
		record.QualityScore = &q
	}
	for k, v := range doc.Metadata {
		if len(k) > 5 && k[:5] == "meta." {
			if record.Metadata == nil {
				record.Metadata = make(map[string]string)
			}
			record.Metadata[k[5:]] = v
		}
	}
	return record
}
