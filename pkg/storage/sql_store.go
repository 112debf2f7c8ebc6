package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tcmartin/promptflow/pkg/flow"
)

// sqlDialect captures the differences between the SQL engines we support
type sqlDialect int

const (
	dialectPostgres sqlDialect = iota
	dialectSQLite
)

// rebind rewrites ? placeholders into the dialect's form
func (d sqlDialect) rebind(query string) string {
	if d != dialectPostgres {
		return query
	}

	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

const createFlowsTable = `
	CREATE TABLE IF NOT EXISTS flows (
		flow_id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		steps TEXT NOT NULL,
		is_active BOOLEAN NOT NULL,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	)`

// SQLFlowStore implements the FlowStore interface on a database/sql handle.
// Steps are kept as a JSON document in the flow row.
type SQLFlowStore struct {
	db      *sql.DB
	dialect sqlDialect
}

func newSQLFlowStore(db *sql.DB, dialect sqlDialect) *SQLFlowStore {
	return &SQLFlowStore{
		db:      db,
		dialect: dialect,
	}
}

// Initialize creates the flows table if it doesn't exist
func (s *SQLFlowStore) Initialize(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createFlowsTable); err != nil {
		return fmt.Errorf("failed to create flows table: %w", err)
	}
	return nil
}

// GetFlow retrieves a flow by ID
func (s *SQLFlowStore) GetFlow(ctx context.Context, id string) (flow.Flow, error) {
	row := s.db.QueryRowContext(ctx, s.dialect.rebind(
		"SELECT flow_id, name, description, steps, is_active, created_at, updated_at FROM flows WHERE flow_id = ?"), id)

	var (
		f                    flow.Flow
		steps                string
		createdAt, updatedAt int64
	)
	if err := row.Scan(&f.ID, &f.Name, &f.Description, &steps, &f.IsActive, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return flow.Flow{}, ErrFlowNotFound
		}
		return flow.Flow{}, fmt.Errorf("failed to get flow: %w", err)
	}

	if err := json.Unmarshal([]byte(steps), &f.Steps); err != nil {
		return flow.Flow{}, fmt.Errorf("failed to decode steps of flow %s: %w", id, err)
	}
	f.CreatedAt = time.Unix(createdAt, 0).UTC()
	f.UpdatedAt = time.Unix(updatedAt, 0).UTC()

	return f, nil
}

// InsertFlow stores a new flow
func (s *SQLFlowStore) InsertFlow(ctx context.Context, f flow.Flow) error {
	steps, err := json.Marshal(f.Steps)
	if err != nil {
		return fmt.Errorf("failed to encode steps: %w", err)
	}

	ts := now().Unix()
	result, err := s.db.ExecContext(ctx, s.dialect.rebind(
		"INSERT INTO flows (flow_id, name, description, steps, is_active, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?) ON CONFLICT (flow_id) DO NOTHING"),
		f.ID, f.Name, f.Description, string(steps), f.IsActive, ts, ts,
	)
	if err != nil {
		return fmt.Errorf("failed to insert flow: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrFlowExists
	}

	return nil
}

// ReplaceFlow overwrites an existing flow. created_at is left untouched.
func (s *SQLFlowStore) ReplaceFlow(ctx context.Context, f flow.Flow) error {
	steps, err := json.Marshal(f.Steps)
	if err != nil {
		return fmt.Errorf("failed to encode steps: %w", err)
	}

	result, err := s.db.ExecContext(ctx, s.dialect.rebind(
		"UPDATE flows SET name = ?, description = ?, steps = ?, is_active = ?, updated_at = ? WHERE flow_id = ?"),
		f.Name, f.Description, string(steps), f.IsActive, now().Unix(), f.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update flow: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrFlowNotFound
	}

	return nil
}

// DeleteFlow removes a flow
func (s *SQLFlowStore) DeleteFlow(ctx context.Context, id string) (int64, error) {
	result, err := s.db.ExecContext(ctx, s.dialect.rebind("DELETE FROM flows WHERE flow_id = ?"), id)
	if err != nil {
		return 0, fmt.Errorf("failed to delete flow: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows, nil
}

// ListFlows returns summaries of all flows ordered by ID
func (s *SQLFlowStore) ListFlows(ctx context.Context) ([]FlowSummary, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT flow_id, name, description, steps, is_active FROM flows ORDER BY flow_id")
	if err != nil {
		return nil, fmt.Errorf("failed to list flows: %w", err)
	}
	defer rows.Close()

	summaries := []FlowSummary{}
	for rows.Next() {
		var (
			summary FlowSummary
			steps   string
		)
		if err := rows.Scan(&summary.ID, &summary.Name, &summary.Description, &steps, &summary.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan flow: %w", err)
		}

		var decoded []json.RawMessage
		if err := json.Unmarshal([]byte(steps), &decoded); err != nil {
			return nil, fmt.Errorf("failed to decode steps of flow %s: %w", summary.ID, err)
		}
		summary.StepsCount = len(decoded)

		summaries = append(summaries, summary)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating flows: %w", err)
	}

	return summaries, nil
}
