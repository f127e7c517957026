package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/praxisai/crewkit/pkg/utils"
)

// Store is the high-level tiered memory interface shared by tasks and
// agents. It owns quality gating for the long tier, entity rendering and
// the optional rerank pass; persistence is delegated to a Storage backend.
type Store struct {
	storage  Storage
	reranker Reranker
	config   *Config
	logger   *utils.Logger
}

// StoreOption configures a Store
type StoreOption func(*Store)

// WithReranker attaches a reranking pass to searches that request it
func WithReranker(r Reranker) StoreOption {
	return func(s *Store) {
		s.reranker = r
	}
}

// WithLogger sets the store logger
func WithLogger(logger *utils.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

// NewStore creates a memory store over the given backend
func NewStore(storage Storage, config *Config, opts ...StoreOption) *Store {
	if config == nil {
		config = DefaultConfig()
	}
	s := &Store{
		storage: storage,
		config:  config,
		logger:  utils.NewLogger(false),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddOptions carries optional attributes for Add
type AddOptions struct {
	QualityScore *float64
	Metadata     map[string]string
}

// Add stores a value in the given tier and returns the new record id.
// Long-tier writes below the quality threshold follow the configured
// demotion policy: demoted records land in the short tier, rejected writes
// return ErrQualityBelowThreshold. A write with no quality score bypasses
// the gate.
func (s *Store) Add(ctx context.Context, tier Tier, value string, scope Scope, opts *AddOptions) (string, error) {
	if !tier.Valid() {
		return "", fmt.Errorf("invalid memory tier: %s", tier)
	}
	if opts == nil {
		opts = &AddOptions{}
	}

	if tier == TierLong && opts.QualityScore != nil && *opts.QualityScore < s.config.QualityThreshold {
		switch s.config.Demotion {
		case PolicyReject:
			return "", fmt.Errorf("%w: %.2f < %.2f", ErrQualityBelowThreshold, *opts.QualityScore, s.config.QualityThreshold)
		default:
			s.logger.Debug("demoting memory write to short tier: score %.2f below threshold %.2f",
				*opts.QualityScore, s.config.QualityThreshold)
			tier = TierShort
		}
	}

	record := &Record{
		ID:           uuid.NewString(),
		Tier:         tier,
		Value:        value,
		QualityScore: opts.QualityScore,
		Metadata:     opts.Metadata,
		Scope:        scope,
		Timestamp:    time.Now().UTC(),
	}

	if err := s.storage.Save(ctx, record); err != nil {
		return "", &StorageError{Op: "save", Err: err}
	}
	return record.ID, nil
}

// AddEntity stores an entity using the canonical rendering in the entity
// tier
func (s *Store) AddEntity(ctx context.Context, entity Entity, scope Scope) (string, error) {
	if entity.Name == "" {
		return "", fmt.Errorf("entity name is required")
	}
	return s.Add(ctx, TierEntity, entity.Render(), scope, &AddOptions{
		Metadata: map[string]string{
			"entity_name": entity.Name,
			"entity_type": string(entity.Type),
		},
	})
}

// AddUserMemory stores a user-scoped memory. The user id is mandatory
// because it is the partitioning key of the user tier.
func (s *Store) AddUserMemory(ctx context.Context, userID, value string, opts *AddOptions) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("user id is required for user memory")
	}
	return s.Add(ctx, TierUser, value, Scope{UserID: userID}, opts)
}

// SearchOptions refines a memory search
type SearchOptions struct {
	// Tiers restricts the search; empty means all tiers
	Tiers []Tier

	// Limit caps the number of results; 0 uses the configured default
	Limit int

	// Rerank applies the attached reranker to the similarity-ranked
	// results. The reranker may reorder but never grows the result set.
	Rerank bool
}

// Search retrieves records relevant to the query, scoped by the filter
func (s *Store) Search(ctx context.Context, query string, filter Filter, opts *SearchOptions) ([]SearchResult, error) {
	if opts == nil {
		opts = &SearchOptions{}
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = s.config.MaxResults
	}

	results, err := s.storage.Search(ctx, query, filter, opts.Tiers, limit)
	if err != nil {
		return nil, &StorageError{Op: "search", Err: err}
	}

	if opts.Rerank && s.reranker != nil && len(results) > 1 {
		reranked, err := s.reranker.Rerank(ctx, query, results)
		if err != nil {
			// Rerank failures degrade to the similarity ordering
			s.logger.Warning("rerank failed, using similarity order: %v", err)
			return results, nil
		}
		if len(reranked) > limit {
			reranked = reranked[:limit]
		}
		return reranked, nil
	}

	return results, nil
}

// Get retrieves a record by id
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	record, err := s.storage.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return record, nil
}

// Update replaces a record's value in place
func (s *Store) Update(ctx context.Context, id string, value string) error {
	if err := s.storage.Update(ctx, id, value); err != nil {
		return &StorageError{Op: "update", Err: err}
	}
	return nil
}

// Delete removes a record by id
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.storage.Delete(ctx, id); err != nil {
		return &StorageError{Op: "delete", Err: err}
	}
	return nil
}

// DeleteAll removes every record matching the scope filter
func (s *Store) DeleteAll(ctx context.Context, filter Filter) error {
	if err := s.storage.DeleteAll(ctx, filter); err != nil {
		return &StorageError{Op: "delete_all", Err: err}
	}
	return nil
}

// Clear wipes a single tier
func (s *Store) Clear(ctx context.Context, tier Tier) error {
	if !tier.Valid() {
		return fmt.Errorf("invalid memory tier: %s", tier)
	}
	if err := s.storage.Clear(ctx, tier); err != nil {
		return &StorageError{Op: "clear", Err: err}
	}
	return nil
}

// Close releases the underlying backend
func (s *Store) Close() error {
	return s.storage.Close()
}
