package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStorage implements Storage using a SQLite database. Search is
// plain substring matching; it trades recall for durability and suits the
// persistent long tier.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS memories (
			id TEXT PRIMARY KEY,
			tier TEXT NOT NULL,
			value TEXT NOT NULL,
			quality REAL,
			metadata TEXT,
			user_id TEXT NOT NULL DEFAULT '',
			agent_id TEXT NOT NULL DEFAULT '',
			run_id TEXT NOT NULL DEFAULT '',
			timestamp DATETIME NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Save implements Storage.Save
func (s *SQLiteStorage) Save(ctx context.Context, record *Record) error {
	metadata, err := json.Marshal(record.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	var quality sql.NullFloat64
	if record.QualityScore != nil {
		quality = sql.NullFloat64{Float64: *record.QualityScore, Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO memories (id, tier, value, quality, metadata, user_id, agent_id, run_id, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, record.ID, record.Tier, record.Value, quality, string(metadata),
		record.Scope.UserID, record.Scope.AgentID, record.Scope.RunID, record.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to insert memory: %w", err)
	}
	return nil
}

// Search implements Storage.Search
func (s *SQLiteStorage) Search(ctx context.Context, query string, filter Filter, tiers []Tier, limit int) ([]SearchResult, error) {
	conds := []string{"value LIKE ?"}
	args := []interface{}{"%" + query + "%"}

	if len(tiers) > 0 {
		placeholders := make([]string, len(tiers))
		for i, tier := range tiers {
			placeholders[i] = "?"
			args = append(args, string(tier))
		}
		conds = append(conds, fmt.Sprintf("tier IN (%s)", strings.Join(placeholders, ",")))
	}
	conds, args = appendScopeConds(conds, args, filter)

	args = append(args, limit)
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, tier, value, quality, metadata, user_id, agent_id, run_id, timestamp
		FROM memories
		WHERE %s
		ORDER BY timestamp DESC
		LIMIT ?
	`, strings.Join(conds, " AND ")), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query memories: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		// Substring matches carry no similarity score; rank them equal
		results = append(results, SearchResult{Record: record, Score: 1.0})
	}
	return results, rows.Err()
}

// Get implements Storage.Get
func (s *SQLiteStorage) Get(ctx context.Context, id string) (*Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tier, value, quality, metadata, user_id, agent_id, run_id, timestamp
		FROM memories WHERE id = ?
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query memory: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, ErrRecordNotFound
	}
	return scanRecord(rows)
}

// Update implements Storage.Update
func (s *SQLiteStorage) Update(ctx context.Context, id string, value string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE memories SET value = ? WHERE id = ?", value, id)
	if err != nil {
		return fmt.Errorf("failed to update memory: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// Delete implements Storage.Delete
func (s *SQLiteStorage) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM memories WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete memory: %w", err)
	}
	return nil
}

// DeleteAll implements Storage.DeleteAll
func (s *SQLiteStorage) DeleteAll(ctx context.Context, filter Filter) error {
	conds := []string{"1=1"}
	var args []interface{}
	conds, args = appendScopeConds(conds, args, filter)

	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM memories WHERE %s", strings.Join(conds, " AND ")), args...)
	if err != nil {
		return fmt.Errorf("failed to delete memories: %w", err)
	}
	return nil
}

// Clear implements Storage.Clear
func (s *SQLiteStorage) Clear(ctx context.Context, tier Tier) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM memories WHERE tier = ?", string(tier))
	if err != nil {
		return fmt.Errorf("failed to clear tier %s: %w", tier, err)
	}
	return nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func appendScopeConds(conds []string, args []interface{}, filter Filter) ([]string, []interface{}) {
	if filter.UserID != "" {
		conds = append(conds, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.AgentID != "" {
		conds = append(conds, "agent_id = ?")
		args = append(args, filter.AgentID)
	}
	if filter.RunID != "" {
		conds = append(conds, "run_id = ?")
		args = append(args, filter.RunID)
	}
	return conds, args
}

func scanRecord(rows *sql.Rows) (*Record, error) {
	var record Record
	var quality sql.NullFloat64
	var metadataStr string
	var timestamp time.Time

	err := rows.Scan(&record.ID, &record.Tier, &record.Value, &quality, &metadataStr,
		&record.Scope.UserID, &record.Scope.AgentID, &record.Scope.RunID, &timestamp)
	if err != nil {
		return nil, fmt.Errorf("failed to scan row: %w", err)
	}

	if quality.Valid {
		q := quality.Float64
		record.QualityScore = &q
	}
	if metadataStr != "" && metadataStr != "null" {
		if err := json.Unmarshal([]byte(metadataStr), &record.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	record.Timestamp = timestamp
	return &record, nil
}
