package storage

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/jpequegn/testflow/internal/suite"
)

// SQLiteStorage implements Storage using SQLite
type SQLiteStorage struct {
	db   *sql.DB
	path string
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &SQLiteStorage{
		db:   db,
		path: path,
	}, nil
}

// Init initializes the database schema
func (s *SQLiteStorage) Init() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		timestamp DATETIME NOT NULL,
		duration INTEGER NOT NULL,
		total INTEGER NOT NULL,
		expected INTEGER NOT NULL,
		unexpected INTEGER NOT NULL,
		flaky INTEGER NOT NULL,
		skipped INTEGER NOT NULL,
		worker_errors INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_runs_timestamp ON runs(timestamp);

	CREATE TABLE IF NOT EXISTS results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		test_id TEXT NOT NULL,
		name TEXT NOT NULL,
		attempt INTEGER NOT NULL,
		status TEXT NOT NULL,
		expected_status TEXT NOT NULL,
		duration INTEGER NOT NULL,
		error TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_results_run_id ON results(run_id);
	CREATE INDEX IF NOT EXISTS idx_results_test_id ON results(test_id);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SaveRun persists a run record and the per-attempt results of its tests
func (s *SQLiteStorage) SaveRun(run *RunRecord, groups []*suite.TestGroup) error {
	if run == nil {
		return fmt.Errorf("run cannot be nil")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(`
		INSERT INTO runs (id, timestamp, duration, total, expected, unexpected, flaky, skipped, worker_errors)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.Timestamp, run.Duration.Nanoseconds(), run.Total, run.Expected,
		run.Unexpected, run.Flaky, run.Skipped, boolToInt(run.WorkerErrors))
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO results (run_id, test_id, name, attempt, status, expected_status, duration, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare result insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, g := range groups {
		for _, t := range g.Tests {
			for attempt, r := range t.Results {
				errText := ""
				if r.Error != nil {
					errText = r.Error.Value
				}
				if _, err := stmt.Exec(run.ID, t.ID, t.Name, attempt, string(r.Status),
					string(t.ExpectedStatus), r.Duration.Nanoseconds(), errText); err != nil {
					return fmt.Errorf("failed to insert result: %w", err)
				}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetRecent retrieves the most recent runs, newest first
func (s *SQLiteStorage) GetRecent(limit int) ([]*RunRecord, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.Query(`
		SELECT id, timestamp, duration, total, expected, unexpected, flaky, skipped, worker_errors
		FROM runs
		ORDER BY timestamp DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*RunRecord
	for rows.Next() {
		run := &RunRecord{}
		var durationNs int64
		var workerErrors int
		if err := rows.Scan(&run.ID, &run.Timestamp, &durationNs, &run.Total, &run.Expected,
			&run.Unexpected, &run.Flaky, &run.Skipped, &workerErrors); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		run.Duration = time.Duration(durationNs)
		run.WorkerErrors = workerErrors != 0
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// GetResults retrieves the stored attempts of one run
func (s *SQLiteStorage) GetResults(runID string) ([]*StoredResult, error) {
	rows, err := s.db.Query(`
		SELECT run_id, test_id, name, attempt, status, expected_status, duration, error
		FROM results
		WHERE run_id = ?
		ORDER BY id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []*StoredResult
	for rows.Next() {
		r := &StoredResult{}
		var durationNs int64
		if err := rows.Scan(&r.RunID, &r.TestID, &r.Name, &r.Attempt, &r.Status,
			&r.ExpectedStatus, &durationNs, &r.Error); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		r.Duration = time.Duration(durationNs)
		results = append(results, r)
	}

	return results, rows.Err()
}

// Cleanup removes runs older than the retention period
func (s *SQLiteStorage) Cleanup(retentionDays int) error {
	if retentionDays <= 0 {
		return nil
	}

	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`
		DELETE FROM results WHERE run_id IN (SELECT id FROM runs WHERE timestamp < ?)
	`, cutoff); err != nil {
		return fmt.Errorf("failed to delete old results: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM runs WHERE timestamp < ?`, cutoff); err != nil {
		return fmt.Errorf("failed to delete old runs: %w", err)
	}

	return tx.Commit()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
