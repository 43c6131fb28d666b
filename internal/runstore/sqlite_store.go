// Package runstore records export runs and per-cell acquisition outcomes in SQLite.
package runstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/wheredidthecitygo/Where-did-the-city-go---Code/internal/pyramid"
)

// DefaultFile is the ledger file name inside the output directory.
const DefaultFile = "export.sqlite"

// RunStatus represents the current state of an export run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// RunParams contains the parameters an export was started with.
type RunParams struct {
	Input        string `json:"input"`
	OutputDir    string `json:"output_dir"`
	LevelSizes   []int  `json:"level_sizes"`
	Seed         int64  `json:"seed"`
	Workers      int    `json:"workers"`
	MaxJSONBytes int64  `json:"max_json_bytes"`
}

// RunCounts are the counters of a finished run.
type RunCounts struct {
	Points        int `json:"points"`
	LeafCells     int `json:"leaf_cells"`
	AcquiredCells int `json:"acquired_cells"`
	DroppedCells  int `json:"dropped_cells"`
	ReusedImages  int `json:"reused_images"`
}

// Run is one export run.
type Run struct {
	ID         string     `json:"run_id"`
	Status     RunStatus  `json:"status"`
	Params     RunParams  `json:"params"`
	Counts     RunCounts  `json:"counts"`
	Error      string     `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Store provides persistent storage for runs using SQLite.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// NewStore opens (or creates) the ledger at dbPath.
func NewStore(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory for sqlite: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		params_json TEXT NOT NULL,
		points INTEGER DEFAULT 0,
		leaf_cells INTEGER DEFAULT 0,
		acquired_cells INTEGER DEFAULT 0,
		dropped_cells INTEGER DEFAULT 0,
		reused_images INTEGER DEFAULT 0,
		error TEXT DEFAULT '',
		created_at TEXT NOT NULL,
		finished_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);

	CREATE TABLE IF NOT EXISTS acquisitions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		cell_x INTEGER NOT NULL,
		cell_y INTEGER NOT NULL,
		points INTEGER NOT NULL,
		acquired INTEGER NOT NULL,
		winner_index INTEGER NOT NULL,
		winner_url TEXT NOT NULL,
		attempts INTEGER NOT NULL,
		reused INTEGER NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(run_id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_acquisitions_run ON acquisitions(run_id);

	CREATE TABLE IF NOT EXISTS cell_winners (
		cell_x INTEGER NOT NULL,
		cell_y INTEGER NOT NULL,
		url TEXT NOT NULL,
		run_id TEXT NOT NULL,
		PRIMARY KEY (cell_x, cell_y)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// CreateRun inserts a new run with status=running and returns it.
func (s *Store) CreateRun(params RunParams) (*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal params: %w", err)
	}

	run := &Run{
		ID:        uuid.New().String(),
		Status:    RunStatusRunning,
		Params:    params,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	_, err = s.db.Exec(`
		INSERT INTO runs (run_id, status, params_json, created_at)
		VALUES (?, ?, ?, ?)
	`, run.ID, string(run.Status), string(paramsJSON), run.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("failed to insert run: %w", err)
	}
	return run, nil
}

// FinishRun stores the final status, counters and error message of a run.
func (s *Store) FinishRun(runID string, status RunStatus, counts RunCounts, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.Exec(`
		UPDATE runs SET status = ?, points = ?, leaf_cells = ?, acquired_cells = ?, dropped_cells = ?,
			reused_images = ?, error = ?, finished_at = ?
		WHERE run_id = ?
	`, string(status), counts.Points, counts.LeafCells, counts.AcquiredCells, counts.DroppedCells,
		counts.ReusedImages, errMsg, now, runID)
	return err
}

// RecordOutcomes stores a batch of cell outcomes and updates the winner table for acquired cells.
func (s *Store) RecordOutcomes(runID string, outcomes []pyramid.CellOutcome) error {
	if len(outcomes) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	insert, err := tx.Prepare(`
		INSERT INTO acquisitions (run_id, cell_x, cell_y, points, acquired, winner_index, winner_url, attempts, reused)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer insert.Close()

	upsert, err := tx.Prepare(`
		INSERT INTO cell_winners (cell_x, cell_y, url, run_id) VALUES (?, ?, ?, ?)
		ON CONFLICT(cell_x, cell_y) DO UPDATE SET url = excluded.url, run_id = excluded.run_id
	`)
	if err != nil {
		return err
	}
	defer upsert.Close()

	for _, o := range outcomes {
		index := -1
		if o.Acquired {
			index = o.Acquisition.Index
		}
		_, err := insert.Exec(runID, o.Key.X, o.Key.Y, o.Points, boolInt(o.Acquired), index, o.URL,
			o.Acquisition.Attempts, boolInt(o.Acquisition.Reused))
		if err != nil {
			return err
		}
		if o.Acquired {
			if _, err := upsert.Exec(o.Key.X, o.Key.Y, o.URL, runID); err != nil {
				return err
			}
		}
	}

	return tx.Commit()
}

// Winners returns the last recorded final representative URL of every cell.
func (s *Store) Winners() (map[pyramid.CellKey]string, error) {
	rows, err := s.db.Query(`SELECT cell_x, cell_y, url FROM cell_winners`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	winners := make(map[pyramid.CellKey]string)
	for rows.Next() {
		var k pyramid.CellKey
		var url string
		if err := rows.Scan(&k.X, &k.Y, &url); err != nil {
			return nil, err
		}
		winners[k] = url
	}
	return winners, rows.Err()
}

// GetRun retrieves a run by ID. It returns nil, nil when the run does not exist.
func (s *Store) GetRun(runID string) (*Run, error) {
	rows, err := s.db.Query(selectRuns+` WHERE run_id = ?`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs, err := scanRuns(rows)
	if err != nil || len(runs) == 0 {
		return nil, err
	}
	return runs[0], nil
}

// ListRuns returns the most recent runs first.
func (s *Store) ListRuns(limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(selectRuns+` ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRuns(rows)
}

// MarkRunningAsFailed closes runs left in the running state by a crashed process.
func (s *Store) MarkRunningAsFailed(errMsg string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC().Format(time.RFC3339)
	result, err := s.db.Exec(`
		UPDATE runs SET status = ?, error = ?, finished_at = ?
		WHERE status = ?
	`, string(RunStatusFailed), errMsg, now, string(RunStatusRunning))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// AcquisitionCount returns the number of recorded outcomes of a run.
func (s *Store) AcquisitionCount(runID string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM acquisitions WHERE run_id = ?`, runID).Scan(&n)
	return n, err
}

const selectRuns = `
	SELECT run_id, status, params_json, points, leaf_cells, acquired_cells, dropped_cells, reused_images,
		error, created_at, finished_at
	FROM runs`

func scanRuns(rows *sql.Rows) ([]*Run, error) {
	var runs []*Run
	for rows.Next() {
		var run Run
		var paramsJSON, createdAtStr string
		var finishedAtStr sql.NullString

		err := rows.Scan(
			&run.ID,
			&run.Status,
			&paramsJSON,
			&run.Counts.Points,
			&run.Counts.LeafCells,
			&run.Counts.AcquiredCells,
			&run.Counts.DroppedCells,
			&run.Counts.ReusedImages,
			&run.Error,
			&createdAtStr,
			&finishedAtStr,
		)
		if err != nil {
			return nil, err
		}

		if err := json.Unmarshal([]byte(paramsJSON), &run.Params); err != nil {
			return nil, fmt.Errorf("failed to unmarshal params: %w", err)
		}

		run.CreatedAt, _ = time.Parse(time.RFC3339, createdAtStr)
		if finishedAtStr.Valid {
			t, _ := time.Parse(time.RFC3339, finishedAtStr.String)
			run.FinishedAt = &t
		}

		runs = append(runs, &run)
	}
	return runs, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
