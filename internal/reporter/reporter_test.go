package reporter

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/jpequegn/testflow/internal/suite"
)

type countingReporter struct {
	begins, ends, outs, errsOut, errs int
}

func (c *countingReporter) OnTestBegin(*suite.TestCase) { c.begins++ }
func (c *countingReporter) OnTestEnd(*suite.TestCase, *suite.TestResult) { c.ends++ }
func (c *countingReporter) OnStdOut(suite.StreamChunk, *suite.TestCase) { c.outs++ }
func (c *countingReporter) OnStdErr(suite.StreamChunk, *suite.TestCase) { c.errsOut++ }
func (c *countingReporter) OnError(*suite.TestError) { c.errs++ }

func TestMultiFansOutInOrder(t *testing.T) {
	a := &countingReporter{}
	b := &countingReporter{}
	m := Multi{a, b}

	test := &suite.TestCase{ID: "t1", ExpectedStatus: suite.StatusPassed}
	result := test.AppendResult()
	result.Status = suite.StatusPassed

	m.OnTestBegin(test)
	m.OnTestEnd(test, result)
	m.OnStdOut(suite.StreamChunk{Text: "x"}, test)
	m.OnStdErr(suite.StreamChunk{Text: "y"}, nil)
	m.OnError(&suite.TestError{Value: "boom"})

	for _, c := range []*countingReporter{a, b} {
		if c.begins != 1 || c.ends != 1 || c.outs != 1 || c.errsOut != 1 || c.errs != 1 {
			t.Errorf("every callback must reach every reporter: %+v", c)
		}
	}
}

func TestConsoleHandlesAllEvents(t *testing.T) {
	c := NewConsole(slog.Default())

	test := &suite.TestCase{ID: "t1", Name: "t1", ExpectedStatus: suite.StatusPassed, Retries: 1}
	result := test.AppendResult()
	result.Status = suite.StatusFailed
	result.Error = &suite.TestError{Value: "assertion failed"}

	// None of these may panic, whatever the result shape.
	c.OnTestBegin(test)
	c.OnTestEnd(test, result)

	result2 := test.AppendResult()
	result2.Status = suite.StatusPassed
	c.OnTestEnd(test, result2)

	skipped := test.AppendResult()
	skipped.Status = suite.StatusSkipped
	c.OnTestEnd(test, skipped)

	c.OnStdOut(suite.StreamChunk{Text: "out"}, test)
	c.OnStdErr(suite.StreamChunk{Buffer: []byte{0x1}}, nil)
	c.OnError(&suite.TestError{Value: "teardown"})
}

func TestNilLoggerFallsBack(t *testing.T) {
	c := NewConsole(nil)
	c.OnError(&suite.TestError{Value: "x"})
}

func TestStdioForwardsOutputChunks(t *testing.T) {
	var out, errOut bytes.Buffer
	s := NewStdio(&out, &errOut)

	test := &suite.TestCase{ID: "t1"}
	s.OnStdOut(suite.StreamChunk{Text: "hello "}, test)
	s.OnStdOut(suite.StreamChunk{Buffer: []byte("world")}, nil)
	s.OnStdErr(suite.StreamChunk{Text: "oops"}, test)

	// Lifecycle events leave the streams untouched.
	s.OnTestBegin(test)
	s.OnTestEnd(test, &suite.TestResult{Status: suite.StatusFailed})
	s.OnError(&suite.TestError{Value: "boom"})

	if out.String() != "hello world" {
		t.Errorf("unexpected stdout: %q", out.String())
	}
	if errOut.String() != "oops" {
		t.Errorf("unexpected stderr: %q", errOut.String())
	}
}
