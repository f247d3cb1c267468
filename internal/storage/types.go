package storage

import (
	"time"

	"github.com/jpequegn/testflow/internal/suite"
)

// Storage defines the interface for run history storage
type Storage interface {
	// Init initializes the storage (creates tables, etc.)
	Init() error

	// Close closes the storage connection
	Close() error

	// SaveRun persists a run record and the per-attempt results of its tests
	SaveRun(run *RunRecord, groups []*suite.TestGroup) error

	// GetRecent retrieves the most recent runs, newest first
	GetRecent(limit int) ([]*RunRecord, error)

	// GetResults retrieves the stored attempts of one run
	GetResults(runID string) ([]*StoredResult, error)

	// Cleanup removes runs older than the retention period
	Cleanup(retentionDays int) error
}

// RunRecord is one dispatcher run stored in the database
type RunRecord struct {
	ID           string // UUID assigned at save time
	Timestamp    time.Time
	Duration     time.Duration
	Total        int
	Expected     int
	Unexpected   int
	Flaky        int
	Skipped      int
	WorkerErrors bool
}

// StoredResult is one test attempt stored in the database
type StoredResult struct {
	RunID          string
	TestID         string
	Name           string
	Attempt        int
	Status         string
	ExpectedStatus string
	Duration       time.Duration
	Error          string
}
