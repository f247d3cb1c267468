package dispatch

import (
	"github.com/jpequegn/testflow/internal/suite"
)

// groupQueue is the ordered work queue of test groups. Re-injected groups
// (retries and remainders of interrupted jobs) go to the front so they are
// preferred over fresh work on the next dispatch pass. Callers serialize
// access through the dispatcher lock.
type groupQueue struct {
	groups []*suite.TestGroup
}

func (q *groupQueue) len() int {
	return len(q.groups)
}

// popFront claims the next group, or nil if the queue is empty
func (q *groupQueue) popFront() *suite.TestGroup {
	if len(q.groups) == 0 {
		return nil
	}
	g := q.groups[0]
	q.groups = q.groups[1:]
	return g
}

// pushFront re-injects a group at the head of the queue
func (q *groupQueue) pushFront(g *suite.TestGroup) {
	q.groups = append([]*suite.TestGroup{g}, q.groups...)
}
