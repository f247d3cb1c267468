// Package ipc defines the message protocol between the dispatcher and its
// worker processes: JSON {method, params} envelopes over a duplex pipe pair.
package ipc

import (
	"encoding/json"
	"fmt"

	"github.com/jpequegn/testflow/internal/suite"
)

// Message is the envelope for every message on the worker channel
type Message struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Parent → child methods
const (
	MethodInit = "init"
	MethodRun  = "run"
	MethodStop = "stop"
)

// Child → parent methods
const (
	MethodTestBegin     = "testBegin"
	MethodTestEnd       = "testEnd"
	MethodStdOut        = "stdOut"
	MethodStdErr        = "stdErr"
	MethodTeardownError = "teardownError"
	MethodDone          = "done"
)

// InitParams configures a worker process. Must be the first message; the
// child replies with a single message of any shape as the ready ack.
type InitParams struct {
	WorkerIndex     int             `json:"workerIndex"`
	RepeatEachIndex int             `json:"repeatEachIndex"`
	ProjectIndex    int             `json:"projectIndex"`
	Loader          json.RawMessage `json:"loader"`
}

// RunEntry names one test to execute and which attempt it is
type RunEntry struct {
	TestID string `json:"testId"`
	Retry  int    `json:"retry"`
}

// RunParams asks the worker to execute a batch of tests
type RunParams struct {
	File    string     `json:"file"`
	Entries []RunEntry `json:"entries"`
}

// TestBeginParams announces that a test started on the worker
type TestBeginParams struct {
	TestID        string `json:"testId"`
	WorkerIndex   int    `json:"workerIndex"`
	StartWallTime int64  `json:"startWallTime"` // epoch milliseconds
}

// TestEndParams reports the terminal result of one test attempt
type TestEndParams struct {
	TestID         string             `json:"testId"`
	Duration       int64              `json:"duration"` // milliseconds
	Error          *suite.TestError   `json:"error,omitempty"`
	Attachments    []suite.Attachment `json:"attachments,omitempty"`
	Status         suite.Status       `json:"status"`
	ExpectedStatus suite.Status       `json:"expectedStatus"`
	Annotations    []suite.Annotation `json:"annotations,omitempty"`
	Timeout        int64              `json:"timeout"` // milliseconds
}

// StdOutParams carries one chunk of captured stdout. Exactly one of
// Text / Buffer is present; Buffer is base64 on the wire.
type StdOutParams struct {
	TestID string `json:"testId,omitempty"`
	Text   string `json:"text,omitempty"`
	Buffer []byte `json:"buffer,omitempty"`
}

// StdErrParams carries one chunk of captured stderr
type StdErrParams struct {
	TestID string `json:"testId,omitempty"`
	Text   string `json:"text,omitempty"`
	Buffer []byte `json:"buffer,omitempty"`
}

// TeardownErrorParams reports a non-fatal error during worker teardown
type TeardownErrorParams struct {
	Error *suite.TestError `json:"error"`
}

// DoneParams terminates the current run. An empty DoneParams is a clean
// finish; FailedTestID implicates one test; FatalError aborts the group.
type DoneParams struct {
	FailedTestID string           `json:"failedTestId,omitempty"`
	FatalError   *suite.TestError `json:"fatalError,omitempty"`
}

// Event is one decoded child → parent notification. The concrete types make
// the terminal set (Done, Exit) explicit for the job runner's event loop.
type Event interface {
	isEvent()
}

func (*TestBeginParams) isEvent() {}
func (*TestEndParams) isEvent() {}
func (*StdOutParams) isEvent() {}
func (*StdErrParams) isEvent() {}
func (*TeardownErrorParams) isEvent() {}
func (*DoneParams) isEvent() {}

// ExitEvent is synthesized when the worker process terminates
type ExitEvent struct{}

func (ExitEvent) isEvent() {}

// DecodeEvent decodes a child message into its typed event
func DecodeEvent(msg Message) (Event, error) {
	var ev Event
	switch msg.Method {
	case MethodTestBegin:
		ev = &TestBeginParams{}
	case MethodTestEnd:
		ev = &TestEndParams{}
	case MethodStdOut:
		ev = &StdOutParams{}
	case MethodStdErr:
		ev = &StdErrParams{}
	case MethodTeardownError:
		ev = &TeardownErrorParams{}
	case MethodDone:
		ev = &DoneParams{}
	default:
		return nil, fmt.Errorf("unknown worker method: %s", msg.Method)
	}

	if len(msg.Params) > 0 {
		if err := json.Unmarshal(msg.Params, ev); err != nil {
			return nil, fmt.Errorf("failed to decode %s params: %w", msg.Method, err)
		}
	}
	return ev, nil
}
