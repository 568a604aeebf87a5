package workflow

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// SQLCheckpointStore persists checkpoints to any database/sql driver,
// for deployments that want durability without FileCheckpointStore's
// one-file-per-execution layout on local disk — a single table instead
// of a directory tree. State is stored as its JSON encoding, the same
// shape FileCheckpointStore appends to its JSONL files.
type SQLCheckpointStore struct {
	db *sql.DB
}

// NewSQLCheckpointStore wraps db. Callers must have already applied
// EnsureSchema (or an equivalent migration) before using the store.
func NewSQLCheckpointStore(db *sql.DB) *SQLCheckpointStore {
	return &SQLCheckpointStore{db: db}
}

// EnsureSchema creates the checkpoints table if it doesn't already
// exist. Safe to call on every startup.
func (s *SQLCheckpointStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS checkpoints (
			execution_id TEXT NOT NULL,
			step_no      INTEGER NOT NULL,
			node_id      TEXT NOT NULL,
			state_json   TEXT NOT NULL,
			state_hash   TEXT NOT NULL,
			PRIMARY KEY (execution_id, step_no)
		)`)
	if err != nil {
		return fmt.Errorf("workflow: ensure checkpoint schema: %w", err)
	}
	return nil
}

// Save upserts cp, replacing any existing row for the same
// (execution_id, step_no) pair — a node that re-runs after a crash
// recovery overwrites its prior checkpoint rather than duplicating it.
func (s *SQLCheckpointStore) Save(ctx context.Context, cp Checkpoint) error {
	stateJSON, err := json.Marshal(cp.State)
	if err != nil {
		return fmt.Errorf("workflow: marshal checkpoint state: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (execution_id, step_no, node_id, state_json, state_hash)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (execution_id, step_no) DO UPDATE SET
			node_id = excluded.node_id,
			state_json = excluded.state_json,
			state_hash = excluded.state_hash`,
		cp.ExecutionID, cp.StepNo, cp.NodeID, string(stateJSON), cp.StateHash)
	if err != nil {
		return fmt.Errorf("workflow: save checkpoint: %w", err)
	}
	return nil
}

// Latest returns the highest step_no checkpoint recorded for
// executionID, or nil if none exists.
func (s *SQLCheckpointStore) Latest(ctx context.Context, executionID string) (*Checkpoint, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT execution_id, step_no, node_id, state_json, state_hash
		FROM checkpoints WHERE execution_id = ?
		ORDER BY step_no DESC LIMIT 1`, executionID)

	cp, err := scanCheckpoint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("workflow: load latest checkpoint: %w", err)
	}
	return cp, nil
}

// ByStep returns the checkpoint recorded at stepNo, or nil if absent.
func (s *SQLCheckpointStore) ByStep(ctx context.Context, executionID string, stepNo int) (*Checkpoint, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT execution_id, step_no, node_id, state_json, state_hash
		FROM checkpoints WHERE execution_id = ? AND step_no = ?`, executionID, stepNo)

	cp, err := scanCheckpoint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("workflow: load checkpoint: %w", err)
	}
	return cp, nil
}

func scanCheckpoint(row *sql.Row) (*Checkpoint, error) {
	var cp Checkpoint
	var stateJSON string
	if err := row.Scan(&cp.ExecutionID, &cp.StepNo, &cp.NodeID, &stateJSON, &cp.StateHash); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(stateJSON), &cp.State); err != nil {
		return nil, fmt.Errorf("workflow: unmarshal checkpoint state: %w", err)
	}
	return &cp, nil
}
