// Package summary aggregates the outcomes of a test run.
//
// # Overview
//
// The summary package folds the per-test attempt history left behind by a
// dispatcher run into one RunSummary: outcome counts, total attempts, wall
// clock duration, and the slowest tests. The run command prints it and the
// storage package persists it.
//
// # Outcomes
//
// Each test is classified across all of its attempts:
//
//   - expected: every real attempt matched the expected status
//   - unexpected: the final attempt did not match
//   - flaky: at least one mismatch, but the final attempt matched
//   - skipped: every attempt was skipped (or the test never ran)
//
// # Usage
//
//	sum := summary.Summarize(groups, time.Since(start))
//	fmt.Printf("%d passed, %d failed, %d flaky\n",
//	    sum.Expected, sum.Unexpected, sum.Flaky)
//	if !sum.OK() {
//	    os.Exit(1)
//	}
package summary
