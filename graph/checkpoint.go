package graph

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/martinemde/stepagent/internal/sqlitedb"
)

// Checkpoint is the saved state of a thread after a node ran.
type Checkpoint struct {
	ThreadID  string
	Node      string
	Step      int
	State     json.RawMessage
	CreatedAt time.Time
}

// Checkpointer persists checkpoints per thread.
type Checkpointer interface {
	// Latest returns the newest checkpoint of threadID, or nil if none.
	Latest(ctx context.Context, threadID string) (*Checkpoint, error)
	Save(ctx context.Context, cp Checkpoint) error
}

// LoadState decodes the latest state of threadID into out. It reports
// whether a checkpoint existed.
func LoadState(ctx context.Context, c Checkpointer, threadID string, out any) (bool, error) {
	cp, err := c.Latest(ctx, threadID)
	if err != nil || cp == nil {
		return false, err
	}
	if err := json.Unmarshal(cp.State, out); err != nil {
		return false, fmt.Errorf("decoding checkpoint for thread %s: %w", threadID, err)
	}
	return true, nil
}

// SaveState encodes state and saves it as a checkpoint of threadID.
func SaveState(ctx context.Context, c Checkpointer, threadID, node string, step int, state any) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encoding checkpoint: %w", err)
	}
	return c.Save(ctx, Checkpoint{
		ThreadID:  threadID,
		Node:      node,
		Step:      step,
		State:     raw,
		CreatedAt: time.Now().UTC(),
	})
}

const checkpointSchema = `
CREATE TABLE IF NOT EXISTS checkpoints (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	thread_id TEXT NOT NULL,
	node TEXT NOT NULL,
	step INTEGER NOT NULL,
	state BLOB NOT NULL,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_checkpoints_thread ON checkpoints(thread_id, seq);
`

// SQLiteCheckpointer keeps every checkpoint in SQLite.
type SQLiteCheckpointer struct {
	db *sql.DB
}

// OpenSQLiteCheckpointer opens the checkpoint database at path.
func OpenSQLiteCheckpointer(ctx context.Context, path string) (*SQLiteCheckpointer, error) {
	db, err := sqlitedb.Open(ctx, path, checkpointSchema)
	if err != nil {
		return nil, err
	}
	return &SQLiteCheckpointer{db: db}, nil
}

// Close closes the database.
func (c *SQLiteCheckpointer) Close() error {
	return c.db.Close()
}

// Latest implements Checkpointer.
func (c *SQLiteCheckpointer) Latest(ctx context.Context, threadID string) (*Checkpoint, error) {
	var cp Checkpoint
	var state []byte
	err := c.db.QueryRowContext(ctx, `
		SELECT thread_id, node, step, state, created_at FROM checkpoints
		WHERE thread_id = ? ORDER BY seq DESC LIMIT 1`, threadID).
		Scan(&cp.ThreadID, &cp.Node, &cp.Step, &state, &cp.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading checkpoint: %w", err)
	}
	cp.State = state
	return &cp, nil
}

// Save implements Checkpointer.
func (c *SQLiteCheckpointer) Save(ctx context.Context, cp Checkpoint) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO checkpoints (thread_id, node, step, state, created_at) VALUES (?, ?, ?, ?, ?)`,
		cp.ThreadID, cp.Node, cp.Step, []byte(cp.State), cp.CreatedAt)
	if err != nil {
		return fmt.Errorf("saving checkpoint: %w", err)
	}
	return nil
}

// History returns the checkpoints of threadID, oldest first.
func (c *SQLiteCheckpointer) History(ctx context.Context, threadID string) ([]Checkpoint, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT thread_id, node, step, state, created_at FROM checkpoints
		WHERE thread_id = ? ORDER BY seq`, threadID)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}
	defer rows.Close()

	var out []Checkpoint
	for rows.Next() {
		var cp Checkpoint
		var state []byte
		if err := rows.Scan(&cp.ThreadID, &cp.Node, &cp.Step, &state, &cp.CreatedAt); err != nil {
			return nil, err
		}
		cp.State = state
		out = append(out, cp)
	}
	return out, rows.Err()
}
