// Package storage provides persistent run history using SQLite.
//
// # Overview
//
// The storage package records completed test runs in SQLite: one row per run
// with its aggregate counts, and one row per test attempt including retries.
// The history command and retention cleanup read from it; the dispatcher
// itself stays stateless across runs.
//
// # Features
//
//   - SQLite-based persistent storage
//   - UUID-keyed run records with outcome counts and duration
//   - Every attempt stored, so flaky tests keep their full retry trail
//   - Recent-run queries, newest first
//   - Retention-based cleanup of old runs and their attempts
//   - Indexed queries for fast retrieval
//
// # Usage
//
// Basic storage operations:
//
//	store, err := storage.NewSQLiteStorage(".testflow/history.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
//	if err := store.Init(); err != nil {
//	    log.Fatal(err)
//	}
//
//	if err := store.SaveRun(run, groups); err != nil {
//	    log.Fatal(err)
//	}
//
// Reading history back:
//
//	runs, err := store.GetRecent(10)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, run := range runs {
//	    fmt.Printf("%s: %d/%d passed\n", run.ID, run.Expected, run.Total)
//	}
//
//	attempts, err := store.GetResults(runs[0].ID)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Retention cleanup:
//
//	// Drop everything older than 30 days.
//	if err := store.Cleanup(30); err != nil {
//	    log.Fatal(err)
//	}
package storage
