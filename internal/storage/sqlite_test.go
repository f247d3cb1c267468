package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/jpequegn/testflow/internal/suite"
)

func setupStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history.db")
	s, err := NewSQLiteStorage(path)
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	if err := s.Init(); err != nil {
		t.Fatalf("failed to init schema: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleGroups() []*suite.TestGroup {
	t1 := &suite.TestCase{ID: "t1", Name: "smoke", ExpectedStatus: suite.StatusPassed}
	r := t1.AppendResult()
	r.Status = suite.StatusFailed
	r.Duration = 50 * time.Millisecond
	r.Error = &suite.TestError{Value: "assertion failed"}
	r = t1.AppendResult()
	r.Status = suite.StatusPassed
	r.Duration = 40 * time.Millisecond

	t2 := &suite.TestCase{ID: "t2", Name: "lint", ExpectedStatus: suite.StatusPassed}
	r = t2.AppendResult()
	r.Status = suite.StatusPassed
	r.Duration = 10 * time.Millisecond

	return []*suite.TestGroup{{WorkerHash: "H", Tests: []*suite.TestCase{t1, t2}}}
}

func sampleRun(id string, ts time.Time) *RunRecord {
	return &RunRecord{
		ID:        id,
		Timestamp: ts,
		Duration:  time.Second,
		Total:     2,
		Expected:  1,
		Flaky:     1,
	}
}

func TestSaveAndGetRecent(t *testing.T) {
	s := setupStorage(t)

	if err := s.SaveRun(sampleRun("run-1", time.Now().Add(-time.Hour)), sampleGroups()); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if err := s.SaveRun(sampleRun("run-2", time.Now()), sampleGroups()); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	runs, err := s.GetRecent(10)
	if err != nil {
		t.Fatalf("get recent failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID != "run-2" {
		t.Errorf("expected newest first, got %s", runs[0].ID)
	}
	if runs[0].Total != 2 || runs[0].Flaky != 1 {
		t.Errorf("unexpected run record: %+v", runs[0])
	}
}

func TestSaveRunStoresEveryAttempt(t *testing.T) {
	s := setupStorage(t)

	if err := s.SaveRun(sampleRun("run-1", time.Now()), sampleGroups()); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	results, err := s.GetResults("run-1")
	if err != nil {
		t.Fatalf("get results failed: %v", err)
	}
	// t1 has two attempts, t2 one.
	if len(results) != 3 {
		t.Fatalf("expected 3 stored attempts, got %d", len(results))
	}
	if results[0].TestID != "t1" || results[0].Attempt != 0 || results[0].Status != "failed" {
		t.Errorf("unexpected first attempt: %+v", results[0])
	}
	if results[0].Error != "assertion failed" {
		t.Errorf("expected stored error text, got %q", results[0].Error)
	}
	if results[1].Attempt != 1 || results[1].Status != "passed" {
		t.Errorf("unexpected retry attempt: %+v", results[1])
	}
}

func TestSaveRunRejectsNil(t *testing.T) {
	s := setupStorage(t)
	if err := s.SaveRun(nil, nil); err == nil {
		t.Fatal("expected error for nil run")
	}
}

func TestGetRecentDefaultsLimit(t *testing.T) {
	s := setupStorage(t)
	runs, err := s.GetRecent(0)
	if err != nil {
		t.Fatalf("get recent failed: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("expected no runs, got %d", len(runs))
	}
}

func TestCleanupRemovesOldRuns(t *testing.T) {
	s := setupStorage(t)

	if err := s.SaveRun(sampleRun("old", time.Now().AddDate(0, 0, -30)), sampleGroups()); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if err := s.SaveRun(sampleRun("fresh", time.Now()), sampleGroups()); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	if err := s.Cleanup(7); err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}

	runs, err := s.GetRecent(10)
	if err != nil {
		t.Fatalf("get recent failed: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != "fresh" {
		t.Errorf("expected only the fresh run, got %+v", runs)
	}

	// Cleanup must have removed the old run's attempts too.
	results, err := s.GetResults("old")
	if err != nil {
		t.Fatalf("get results failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results for the removed run, got %d", len(results))
	}

	// Cleanup with no retention configured is a no-op.
	if err := s.Cleanup(0); err != nil {
		t.Fatalf("cleanup no-op failed: %v", err)
	}
}
