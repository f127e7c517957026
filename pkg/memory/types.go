package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Tier identifies one of the independently scoped memory partitions
type Tier string

const (
	// TierShort holds transient, session-scoped memories
	TierShort Tier = "short"
	// TierLong holds persistent, quality-gated memories
	TierLong Tier = "long"
	// TierEntity holds entity records with relationship triples
	TierEntity Tier = "entity"
	// TierUser holds long-lived memories scoped to a user
	TierUser Tier = "user"
)

// AllTiers lists every memory tier
var AllTiers = []Tier{TierShort, TierLong, TierEntity, TierUser}

// Valid reports whether the tier is a known partition
func (t Tier) Valid() bool {
	switch t {
	case TierShort, TierLong, TierEntity, TierUser:
		return true
	}
	return false
}

// Scope attributes a record to a user, agent and/or run. Empty fields are
// simply unattributed.
type Scope struct {
	UserID  string `json:"user_id,omitempty"`
	AgentID string `json:"agent_id,omitempty"`
	RunID   string `json:"run_id,omitempty"`
}

// Filter selects records by scope. All provided keys must match (AND
// semantics); omitted keys are wildcards.
type Filter struct {
	UserID  string `json:"user_id,omitempty"`
	AgentID string `json:"agent_id,omitempty"`
	RunID   string `json:"run_id,omitempty"`
}

// Matches reports whether a record scope satisfies the filter
func (f Filter) Matches(s Scope) bool {
	if f.UserID != "" && f.UserID != s.UserID {
		return false
	}
	if f.AgentID != "" && f.AgentID != s.AgentID {
		return false
	}
	if f.RunID != "" && f.RunID != s.RunID {
		return false
	}
	return true
}

// Record is a single stored memory
type Record struct {
	ID           string            `json:"id"`
	Tier         Tier              `json:"tier"`
	Value        string            `json:"value"`
	QualityScore *float64          `json:"quality_score,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	Scope        Scope             `json:"scope"`
	Timestamp    time.Time         `json:"timestamp"`
}

// SearchResult pairs a record with its retrieval score
type SearchResult struct {
	Record *Record `json:"record"`
	Score  float64 `json:"score"`
}

// EntityType classifies an entity record
type EntityType string

const (
	EntityTypePerson   EntityType = "person"
	EntityTypePlace    EntityType = "place"
	EntityTypeConcept  EntityType = "concept"
	EntityTypeOrg      EntityType = "organization"
	EntityTypeArtifact EntityType = "artifact"
)

// Entity is a structured memory triple with relationships
type Entity struct {
	Name        string     `json:"name"`
	Type        EntityType `json:"type"`
	Description string     `json:"description"`
	Relations   []string   `json:"relations,omitempty"`
}

// Render produces the canonical textual form of an entity. The exact
// format is shared with existing stores and must not change.
func (e Entity) Render() string {
	return fmt.Sprintf("Entity %s(%s): %s | relationships: %s",
		e.Name, e.Type, e.Description, strings.Join(e.Relations, "; "))
}

// DemotionPolicy controls what happens to a long-tier write whose quality
// score falls below the configured threshold
type DemotionPolicy string

const (
	// PolicyDemote silently writes the record to the short tier instead
	PolicyDemote DemotionPolicy = "demote"
	// PolicyReject refuses the write
	PolicyReject DemotionPolicy = "reject"
)

// Config holds memory store configuration
type Config struct {
	// QualityThreshold gates long-tier writes
	QualityThreshold float64 `json:"quality_threshold" yaml:"quality_threshold"`

	// Demotion selects the below-threshold write policy
	Demotion DemotionPolicy `json:"demotion" yaml:"demotion"`

	// MaxResults is the default search result limit
	MaxResults int `json:"max_results" yaml:"max_results"`
}

// DefaultConfig returns the default memory configuration
func DefaultConfig() *Config {
	return &Config{
		QualityThreshold: 0.7,
		Demotion:         PolicyDemote,
		MaxResults:       5,
	}
}

var (
	// ErrRecordNotFound is returned when a record id does not exist
	ErrRecordNotFound = errors.New("memory record not found")

	// ErrQualityBelowThreshold is returned by the reject policy when a
	// long-tier write does not meet the quality gate
	ErrQualityBelowThreshold = errors.New("quality score below long-term threshold")
)

// StorageError wraps a backend failure. Memory write failures are surfaced
// in task output metadata but never fail an already-completed task.
type StorageError struct {
	Op  string
	Err error
}

// Error implements the error interface
func (e *StorageError) Error() string {
	return fmt.Sprintf("memory storage %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error
func (e *StorageError) Unwrap() error {
	return e.Err
}

// Storage defines the interface for memory storage backends
type Storage interface {
	// Save stores a record
	Save(ctx context.Context, record *Record) error

	// Search finds records matching the query, restricted by scope filter
	// and tiers (empty tiers means all)
	Search(ctx context.Context, query string, filter Filter, tiers []Tier, limit int) ([]SearchResult, error)

	// Get retrieves a record by id
	Get(ctx context.Context, id string) (*Record, error)

	// Update replaces a record's value
	Update(ctx context.Context, id string, value string) error

	// Delete removes a record by id
	Delete(ctx context.Context, id string) error

	// DeleteAll removes every record matching the scope filter
	DeleteAll(ctx context.Context, filter Filter) error

	// Clear removes every record in a tier
	Clear(ctx context.Context, tier Tier) error

	// Close releases backend resources
	Close() error
}
