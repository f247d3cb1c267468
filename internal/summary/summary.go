package summary

import (
	"sort"
	"time"

	"github.com/jpequegn/testflow/internal/suite"
)

// slowestCount caps how many slow tests a summary keeps
const slowestCount = 3

// RunSummary aggregates one dispatcher run
type RunSummary struct {
	Total      int           // Number of tests
	Expected   int           // Tests whose every non-skipped attempt matched expectations
	Unexpected int           // Tests whose final attempt did not match
	Flaky      int           // Tests that failed and then matched on retry
	Skipped    int           // Tests that never ran to a real status
	Attempts   int           // Total attempts across all tests
	Duration   time.Duration // Wall-clock run duration
	Slowest    []SlowTest    // Slowest tests by final attempt, longest first
}

// SlowTest names one of the slowest tests of a run
type SlowTest struct {
	ID       string
	Name     string
	Duration time.Duration
}

// OK reports whether the run had no unexpected outcomes
func (s *RunSummary) OK() bool {
	return s.Unexpected == 0
}

// Summarize aggregates the outcomes of all tests in the given groups
func Summarize(groups []*suite.TestGroup, duration time.Duration) *RunSummary {
	s := &RunSummary{Duration: duration}

	var slow []SlowTest
	for _, g := range groups {
		for _, t := range g.Tests {
			s.Total++
			s.Attempts += len(t.Results)

			switch t.Outcome() {
			case suite.OutcomeExpected:
				s.Expected++
			case suite.OutcomeUnexpected:
				s.Unexpected++
			case suite.OutcomeFlaky:
				s.Flaky++
			case suite.OutcomeSkipped:
				s.Skipped++
			}

			if len(t.Results) > 0 {
				last := t.Results[len(t.Results)-1]
				slow = append(slow, SlowTest{ID: t.ID, Name: t.Name, Duration: last.Duration})
			}
		}
	}

	sort.Slice(slow, func(i, j int) bool {
		return slow[i].Duration > slow[j].Duration
	})
	if len(slow) > slowestCount {
		slow = slow[:slowestCount]
	}
	s.Slowest = slow

	return s
}
