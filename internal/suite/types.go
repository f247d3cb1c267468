// Package suite holds the test model shared across the runner: test cases
// with their append-only attempt results, dispatchable test groups, and the
// manifest format tests are declared in.
package suite

import (
	"time"
)

// Status represents the terminal status of a single test attempt
type Status string

const (
	StatusPassed   Status = "passed"
	StatusFailed   Status = "failed"
	StatusSkipped  Status = "skipped"
	StatusTimedOut Status = "timedOut"
)

// Outcome classifies a test across all of its attempts
type Outcome string

const (
	OutcomeExpected   Outcome = "expected"   // All non-skipped attempts matched the expected status
	OutcomeUnexpected Outcome = "unexpected" // Final attempt did not match
	OutcomeFlaky      Outcome = "flaky"      // Failed at least once, then matched on retry
	OutcomeSkipped    Outcome = "skipped"    // Every attempt was skipped
)

// TestError describes a failure reported by a worker
type TestError struct {
	Value string `json:"value"`
	Stack string `json:"stack,omitempty"`
}

// Annotation is a worker-reported marker attached to a test
type Annotation struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// Attachment is a named artifact produced by a test attempt.
// Body round-trips as base64 on the wire.
type Attachment struct {
	Name        string `json:"name"`
	Path        string `json:"path,omitempty"`
	ContentType string `json:"contentType"`
	Body        []byte `json:"body,omitempty"`
}

// StreamChunk is one piece of captured test output. Exactly one of
// Text or Buffer is set.
type StreamChunk struct {
	Text   string
	Buffer []byte
}

// TestResult records one attempt of a test
type TestResult struct {
	WorkerIndex int           // Index of the worker that ran the attempt
	StartTime   time.Time     // Wall-clock start
	Duration    time.Duration // Attempt duration
	Status      Status        // Terminal status
	Error       *TestError    // Failure detail, if any
	Stdout      []StreamChunk // Captured stdout, in emission order
	Stderr      []StreamChunk // Captured stderr, in emission order
	Attachments []Attachment  // Artifacts reported with testEnd
}

// TestCase is one schedulable test unit. Results is append-only: the
// dispatcher adds a blank result when an attempt (or retry) begins and
// never removes one.
type TestCase struct {
	ID             string
	Name           string
	Command        string
	WorkDir        string
	Env            map[string]string
	ExpectedStatus Status
	Retries        int
	Timeout        time.Duration
	Annotations    []Annotation
	Results        []*TestResult
}

// AppendResult appends a fresh blank result and returns it
func (t *TestCase) AppendResult() *TestResult {
	r := &TestResult{}
	t.Results = append(t.Results, r)
	return r
}

// Outcome classifies the test across all recorded attempts
func (t *TestCase) Outcome() Outcome {
	if len(t.Results) == 0 {
		return OutcomeSkipped
	}

	skipped := 0
	unexpected := 0
	for _, r := range t.Results {
		if r.Status == StatusSkipped {
			skipped++
			continue
		}
		if r.Status != t.ExpectedStatus {
			unexpected++
		}
	}

	switch {
	case skipped == len(t.Results):
		return OutcomeSkipped
	case unexpected == 0:
		return OutcomeExpected
	default:
		last := t.Results[len(t.Results)-1]
		if last.Status == t.ExpectedStatus {
			return OutcomeFlaky
		}
		return OutcomeUnexpected
	}
}

// TestGroup is a batch of tests sharing a compatibility hash and execution
// parameters, dispatched to a single worker as one unit. Groups are immutable
// once enqueued; a partially completed group is re-injected as a new group
// carrying the remaining subsequence.
type TestGroup struct {
	WorkerHash      string      // Workers are specialized to one hash
	RequireFile     string      // Opaque handle passed to the worker's run command
	RepeatEachIndex int         // Which repeat-each iteration this group belongs to
	ProjectIndex    int         // Index of the owning project
	Tests           []*TestCase // Ordered test sequence
}

// Remaining constructs the re-injection group for a partially completed run:
// same metadata, tests replaced by the remaining subsequence.
func (g *TestGroup) Remaining(tests []*TestCase) *TestGroup {
	return &TestGroup{
		WorkerHash:      g.WorkerHash,
		RequireFile:     g.RequireFile,
		RepeatEachIndex: g.RepeatEachIndex,
		ProjectIndex:    g.ProjectIndex,
		Tests:           tests,
	}
}

// WorkerSpec is the per-test execution recipe shipped to workers inside the
// serialized loader payload.
type WorkerSpec struct {
	Name           string            `json:"name,omitempty"`
	Command        string            `json:"command"`
	WorkDir        string            `json:"workdir,omitempty"`
	Env            map[string]string `json:"env,omitempty"`
	TimeoutMs      int64             `json:"timeoutMs,omitempty"`
	ExpectedStatus Status            `json:"expectedStatus"`
}

// WorkerSpecs collects the execution recipes for every test in the given
// groups, keyed by test id.
func WorkerSpecs(groups []*TestGroup) map[string]WorkerSpec {
	specs := make(map[string]WorkerSpec)
	for _, g := range groups {
		for _, t := range g.Tests {
			specs[t.ID] = WorkerSpec{
				Name:           t.Name,
				Command:        t.Command,
				WorkDir:        t.WorkDir,
				Env:            t.Env,
				TimeoutMs:      t.Timeout.Milliseconds(),
				ExpectedStatus: t.ExpectedStatus,
			}
		}
	}
	return specs
}
