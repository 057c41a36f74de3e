package store

import (
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"

	"github.com/cwlgo/wfcore/workflow"
)

// MySQLStore persists run snapshots to a MySQL database, grounded in
// the teacher's graph/store.MySQLStore. dsn follows the
// go-sql-driver/mysql DSN format (user:pass@tcp(host:port)/dbname).
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore opens a MySQL connection and ensures its schema exists.
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening mysql store: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS wf_runs (
		run_id VARCHAR(255) PRIMARY KEY,
		state  LONGTEXT NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating wf_runs table: %w", err)
	}
	return &MySQLStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *MySQLStore) Close() error { return s.db.Close() }

func (s *MySQLStore) SaveState(runID string, state workflow.StateMap) error {
	payload, err := encodeState(state)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO wf_runs (run_id, state) VALUES (?, ?)
		ON DUPLICATE KEY UPDATE state = VALUES(state)`, runID, payload)
	return err
}

func (s *MySQLStore) LoadState(runID string) (workflow.StateMap, bool, error) {
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
