// Package usage provides persistent token usage tracking for model
// interactions. Records are append-only and indexed by timestamp and
// conversation for aggregation queries; usage is bookkeeping only and
// never feeds back into run control flow.
package usage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Record represents one run's token usage.
type Record struct {
	ID              string
	Timestamp       time.Time
	RequestID       string
	ConversationID  string
	Model           string
	PromptTokens    int
	CandidateTokens int
	TotalTokens     int
	Iterations      int
	ToolCalls       int
}

// Summary holds aggregated usage totals.
type Summary struct {
	TotalRecords         int
	TotalPromptTokens    int64
	TotalCandidateTokens int64
	TotalTokens          int64
	TotalToolCalls       int64
}

// Store is an append-only SQLite store for usage records. The database
// handle is injected so the caller controls the driver and lifecycle.
type Store struct {
	db *sql.DB
}

// New creates a usage store on the given database handle. The schema is
// created automatically on first use.
func New(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate usage schema: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS usage_records (
		id               TEXT PRIMARY KEY,
		timestamp        TEXT NOT NULL,
		request_id       TEXT NOT NULL,
		conversation_id  TEXT,
		model            TEXT NOT NULL,
		prompt_tokens    INTEGER NOT NULL,
		candidate_tokens INTEGER NOT NULL,
		total_tokens     INTEGER NOT NULL,
		iterations       INTEGER NOT NULL,
		tool_calls       INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_usage_timestamp ON usage_records(timestamp);
	CREATE INDEX IF NOT EXISTS idx_usage_conversation ON usage_records(conversation_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Add persists a usage record. If rec.ID is empty, a UUIDv7 is
// generated. The context is used for cancellation only.
func (s *Store) Add(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("generate usage record ID: %w", err)
		}
		rec.ID = id.String()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO usage_records
			(id, timestamp, request_id, conversation_id, model,
			 prompt_tokens, candidate_tokens, total_tokens, iterations, tool_calls)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.Timestamp.UTC().Format(time.RFC3339),
		rec.RequestID,
		rec.ConversationID,
		rec.Model,
		rec.PromptTokens,
		rec.CandidateTokens,
		rec.TotalTokens,
		rec.Iterations,
		rec.ToolCalls,
	)
	if err != nil {
		return fmt.Errorf("insert usage record: %w", err)
	}
	return nil
}

// Summary returns aggregated totals for records within [start, end).
func (s *Store) Summary(ctx context.Context, start, end time.Time) (*Summary, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(prompt_tokens), 0),
		        COALESCE(SUM(candidate_tokens), 0),
		        COALESCE(SUM(total_tokens), 0),
		        COALESCE(SUM(tool_calls), 0)
		 FROM usage_records
		 WHERE timestamp >= ? AND timestamp < ?`,
		start.UTC().Format(time.RFC3339),
		end.UTC().Format(time.RFC3339),
	)

	var sum Summary
	if err := row.Scan(&sum.TotalRecords, &sum.TotalPromptTokens, &sum.TotalCandidateTokens,
		&sum.TotalTokens, &sum.TotalToolCalls); err != nil {
		return nil, fmt.Errorf("query usage summary: %w", err)
	}
	return &sum, nil
}

// Totals returns aggregated totals for all records at or after the
// cutoff.
func (s *Store) Totals(ctx context.Context, since time.Time) (*Summary, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(prompt_tokens), 0),
		        COALESCE(SUM(candidate_tokens), 0),
		        COALESCE(SUM(total_tokens), 0),
		        COALESCE(SUM(tool_calls), 0)
		 FROM usage_records
		 WHERE timestamp >= ?`,
		since.UTC().Format(time.RFC3339),
	)

	var sum Summary
	if err := row.Scan(&sum.TotalRecords, &sum.TotalPromptTokens, &sum.TotalCandidateTokens,
		&sum.TotalTokens, &sum.TotalToolCalls); err != nil {
		return nil, fmt.Errorf("query usage totals: %w", err)
	}
	return &sum, nil
}

// SummaryByModel returns per-model aggregated totals for records within
// [start, end).
func (s *Store) SummaryByModel(ctx context.Context, start, end time.Time) (map[string]*Summary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT model, COUNT(*),
		        COALESCE(SUM(prompt_tokens), 0),
		        COALESCE(SUM(candidate_tokens), 0),
		        COALESCE(SUM(total_tokens), 0),
		        COALESCE(SUM(tool_calls), 0)
		 FROM usage_records
		 WHERE timestamp >= ? AND timestamp < ?
		 GROUP BY model
		 ORDER BY SUM(total_tokens) DESC`,
		start.UTC().Format(time.RFC3339),
		end.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("query usage by model: %w", err)
	}
	defer rows.Close()

	result := make(map[string]*Summary)
	for rows.Next() {
		var key string
		var sum Summary
		if err := rows.Scan(&key, &sum.TotalRecords, &sum.TotalPromptTokens,
			&sum.TotalCandidateTokens, &sum.TotalTokens, &sum.TotalToolCalls); err != nil {
			return nil, fmt.Errorf("scan usage by model: %w", err)
		}
		result[key] = &sum
	}
	return result, rows.Err()
}
