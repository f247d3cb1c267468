package reporter

import (
	"github.com/jpequegn/testflow/internal/suite"
)

// Reporter consumes test lifecycle events from the dispatcher. All callbacks
// are invoked on the dispatcher's single flow of control, in worker emission
// order per test; implementations must not call back into the dispatcher.
type Reporter interface {
	// OnTestBegin is called when a test attempt starts.
	OnTestBegin(test *suite.TestCase)

	// OnTestEnd is called with the terminal result of a test attempt.
	OnTestEnd(test *suite.TestCase, result *suite.TestResult)

	// OnStdOut receives one chunk of captured stdout. test is nil when the
	// chunk could not be attributed to a test.
	OnStdOut(chunk suite.StreamChunk, test *suite.TestCase)

	// OnStdErr receives one chunk of captured stderr.
	OnStdErr(chunk suite.StreamChunk, test *suite.TestCase)

	// OnError receives worker-level errors (teardown failures, spawn
	// failures). Teardown failures never terminate the run; after a spawn or
	// init failure the dispatcher stops the run.
	OnError(err *suite.TestError)
}

// Nop is a Reporter that ignores every event
type Nop struct{}

func (Nop) OnTestBegin(*suite.TestCase) {}
func (Nop) OnTestEnd(*suite.TestCase, *suite.TestResult) {}
func (Nop) OnStdOut(suite.StreamChunk, *suite.TestCase) {}
func (Nop) OnStdErr(suite.StreamChunk, *suite.TestCase) {}
func (Nop) OnError(*suite.TestError) {}

// Multi fans every event out to each reporter in order
type Multi []Reporter

func (m Multi) OnTestBegin(test *suite.TestCase) {
	for _, r := range m {
		r.OnTestBegin(test)
	}
}

func (m Multi) OnTestEnd(test *suite.TestCase, result *suite.TestResult) {
	for _, r := range m {
		r.OnTestEnd(test, result)
	}
}

func (m Multi) OnStdOut(chunk suite.StreamChunk, test *suite.TestCase) {
	for _, r := range m {
		r.OnStdOut(chunk, test)
	}
}

func (m Multi) OnStdErr(chunk suite.StreamChunk, test *suite.TestCase) {
	for _, r := range m {
		r.OnStdErr(chunk, test)
	}
}

func (m Multi) OnError(err *suite.TestError) {
	for _, r := range m {
		r.OnError(err)
	}
}
