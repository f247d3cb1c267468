package summary

import (
	"testing"
	"time"

	"github.com/jpequegn/testflow/internal/suite"
)

func testCase(id string, expected suite.Status, statuses ...suite.Status) *suite.TestCase {
	t := &suite.TestCase{ID: id, Name: id, ExpectedStatus: expected}
	for i, s := range statuses {
		r := t.AppendResult()
		r.Status = s
		r.Duration = time.Duration(i+1) * 100 * time.Millisecond
	}
	return t
}

func TestSummarizeCounts(t *testing.T) {
	groups := []*suite.TestGroup{
		{Tests: []*suite.TestCase{
			testCase("pass", suite.StatusPassed, suite.StatusPassed),
			testCase("fail", suite.StatusPassed, suite.StatusFailed),
			testCase("flaky", suite.StatusPassed, suite.StatusFailed, suite.StatusPassed),
		}},
		{Tests: []*suite.TestCase{
			testCase("skip", suite.StatusPassed, suite.StatusSkipped),
		}},
	}

	s := Summarize(groups, 2*time.Second)

	if s.Total != 4 {
		t.Errorf("expected 4 tests, got %d", s.Total)
	}
	if s.Expected != 1 || s.Unexpected != 1 || s.Flaky != 1 || s.Skipped != 1 {
		t.Errorf("unexpected counts: %+v", s)
	}
	if s.Attempts != 5 {
		t.Errorf("expected 5 attempts, got %d", s.Attempts)
	}
	if s.Duration != 2*time.Second {
		t.Errorf("unexpected duration: %v", s.Duration)
	}
	if s.OK() {
		t.Error("a run with unexpected outcomes is not OK")
	}
}

func TestSummarizeSlowestOrdering(t *testing.T) {
	groups := []*suite.TestGroup{
		{Tests: []*suite.TestCase{
			testCase("a", suite.StatusPassed, suite.StatusPassed), // 100ms
			testCase("b", suite.StatusPassed, suite.StatusFailed, suite.StatusPassed), // final 200ms
			testCase("c", suite.StatusPassed, suite.StatusPassed),
			testCase("d", suite.StatusPassed, suite.StatusPassed),
		}},
	}
	// Make d the clear slowest.
	groups[0].Tests[3].Results[0].Duration = time.Second

	s := Summarize(groups, time.Second)
	if len(s.Slowest) != 3 {
		t.Fatalf("expected 3 slowest entries, got %d", len(s.Slowest))
	}
	if s.Slowest[0].ID != "d" {
		t.Errorf("expected d first, got %s", s.Slowest[0].ID)
	}
	if s.Slowest[1].ID != "b" {
		t.Errorf("expected b second (final attempt duration), got %s", s.Slowest[1].ID)
	}
}

func TestSummarizeOKRun(t *testing.T) {
	groups := []*suite.TestGroup{
		{Tests: []*suite.TestCase{testCase("a", suite.StatusPassed, suite.StatusPassed)}},
	}
	if !Summarize(groups, 0).OK() {
		t.Error("expected OK run")
	}
}
