// Package reporter consumes test lifecycle events from the dispatcher.
//
// # Overview
//
// The reporter package defines the Reporter interface the dispatcher emits
// progress through, plus the built-in implementations: a slog-based console
// reporter for lifecycle events, a stdio reporter that replays captured test
// output, and a fan-out combinator for running several reporters at once.
//
// # Features
//
//   - Reporter interface covering test begin/end, output chunks, and worker errors
//   - Console reporter with structured slog output and retry-aware severity
//   - Stdio reporter forwarding captured stdout/stderr to real streams
//   - Multi combinator fanning every event out to a reporter list
//   - Nop reporter for tests and headless embedding
//
// # Delivery contract
//
// The dispatcher invokes all callbacks on its single flow of control: calls
// are serialized, and within one test testBegin precedes its output chunks
// and testEnd. Reporters must not call back into the dispatcher.
//
// # Usage
//
// Combine the built-in reporters:
//
//	rep := reporter.Multi{
//	    reporter.NewConsole(slog.Default()),
//	    reporter.NewStdio(os.Stdout, os.Stderr),
//	}
//
// Implement a custom sink:
//
//	type counter struct {
//	    reporter.Nop
//	    failed int
//	}
//
//	func (c *counter) OnTestEnd(test *suite.TestCase, result *suite.TestResult) {
//	    if result.Status == suite.StatusFailed {
//	        c.failed++
//	    }
//	}
package reporter
