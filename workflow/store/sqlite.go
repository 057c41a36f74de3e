package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/cwlgo/wfcore/workflow"
)

// SQLiteStore persists run snapshots to a SQLite database via the
// pure-Go modernc.org/sqlite driver, grounded in the teacher's
// graph/store.SQLiteStore.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if absent) a SQLite database at dsn
// and ensures its schema exists.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite store: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS wf_runs (
		run_id TEXT PRIMARY KEY,
		state  TEXT NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating wf_runs table: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) SaveState(runID string, state workflow.StateMap) error {
	payload, err := encodeState(state)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO wf_runs (run_id, state) VALUES (?, ?)
		ON CONFLICT(run_id) DO UPDATE SET state = excluded.state`, runID, payload)
	return err
}

func (s *SQLiteStore) LoadState(runID string) (workflow.StateMap, bool, error) {
	var payload string
	err := s.db.QueryRow(`SELECT state FROM wf_runs WHERE run_id = ?`, runID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	state, err := decodeState(payload)
	if err != nil {
		return nil, false, err
	}
	return state, true, nil
}

func encodeState(state workflow.StateMap) (string, error) {
	wire := make(map[string]wireItem, len(state))
	for k, v := range state {
		if v == nil {
			wire[k] = wireItem{Unset: true}
			continue
		}
		wire[k] = wireItem{Value: v.Value, Status: string(v.Status)}
	}
	data, err := json.Marshal(wire)
	if err != nil {
		return "", fmt.Errorf("encoding state snapshot: %w", err)
	}
	return string(data), nil
}

func decodeState(payload string) (workflow.StateMap, error) {
	var wire map[string]wireItem
	if err := json.Unmarshal([]byte(payload), &wire); err != nil {
		return nil, fmt.Errorf("decoding state snapshot: %w", err)
	}
	out := make(workflow.StateMap, len(wire))
	for k, w := range wire {
		if w.Unset {
			out[k] = nil
			continue
		}
		out[k] = &workflow.WorkflowStateItem{Value: w.Value, Status: workflow.Status(w.Status)}
	}
	return out, nil
}
