package dispatch

import (
	"time"

	"github.com/jpequegn/testflow/internal/ipc"
	"github.com/jpequegn/testflow/internal/suite"
)

// jobRunner drives one (worker, group) pair: it subscribes to the worker's
// event stream, tracks which tests are still outstanding, and applies the
// terminal policy when the worker reports done or dies.
type jobRunner struct {
	d *Dispatcher
	w Worker
	g *suite.TestGroup

	// remaining holds the group's tests not yet terminated by a testEnd, in
	// group order. lastStarted is the most recent testBegin, or "".
	remaining   []*suite.TestCase
	lastStarted string
}

// runJob executes one group on one worker and returns when the job reached a
// terminal state. The worker is either back in the free list (clean finish)
// or stopped (anything else) by the time this returns.
func (d *Dispatcher) runJob(w Worker, g *suite.TestGroup) {
	j := &jobRunner{
		d:         d,
		w:         w,
		g:         g,
		remaining: append([]*suite.TestCase(nil), g.Tests...),
	}

	d.mu.Lock()
	entries := make([]ipc.RunEntry, len(g.Tests))
	for i, t := range g.Tests {
		entries[i] = ipc.RunEntry{TestID: t.ID, Retry: len(t.Results) - 1}
	}
	d.mu.Unlock()

	w.Run(g.RequireFile, entries)
	j.loop()
}

func (j *jobRunner) loop() {
	for {
		select {
		case ev := <-j.w.Events():
			if j.handle(ev) {
				return
			}
		case <-j.w.Exited():
			// Events delivered before the exit notification are still in
			// the buffer; process them first so a done that raced the exit
			// wins over the synthesized one.
		drain:
			for {
				select {
				case ev := <-j.w.Events():
					if j.handle(ev) {
						return
					}
				default:
					break drain
				}
			}
			j.onExit()
			return
		}
	}
}

// handle dispatches one worker event and reports whether it was terminal
func (j *jobRunner) handle(ev ipc.Event) bool {
	switch ev := ev.(type) {
	case *ipc.TestBeginParams:
		j.onTestBegin(ev)
	case *ipc.TestEndParams:
		j.onTestEnd(ev)
	case *ipc.StdOutParams:
		j.onStdIO(ev.TestID, ev.Text, ev.Buffer, false)
	case *ipc.StdErrParams:
		j.onStdIO(ev.TestID, ev.Text, ev.Buffer, true)
	case *ipc.TeardownErrorParams:
		j.onTeardownError(ev)
	case *ipc.DoneParams:
		j.onDone(*ev)
		return true
	case ipc.ExitEvent:
		j.onExit()
		return true
	}
	return false
}

// onExit synthesizes the done for a terminated worker: clean if the stop
// latch is set, fatal otherwise.
func (j *jobRunner) onExit() {
	var done ipc.DoneParams
	if !j.w.DidSendStop() {
		done.FatalError = &suite.TestError{Value: "Worker process exited unexpectedly"}
	}
	j.onDone(done)
}

func (j *jobRunner) onTestBegin(p *ipc.TestBeginParams) {
	d := j.d
	d.mu.Lock()
	defer d.mu.Unlock()

	j.lastStarted = p.TestID
	e := d.entries[p.TestID]
	if e == nil || d.hasReachedMaxFailuresLocked() {
		return
	}
	e.result.WorkerIndex = p.WorkerIndex
	e.result.StartTime = time.UnixMilli(p.StartWallTime)
	d.rep.OnTestBegin(e.test)
}

func (j *jobRunner) onTestEnd(p *ipc.TestEndParams) {
	d := j.d
	d.mu.Lock()
	defer d.mu.Unlock()

	j.removeRemaining(p.TestID)
	e := d.entries[p.TestID]
	if e == nil || d.hasReachedMaxFailuresLocked() {
		return
	}

	r := e.result
	r.Duration = time.Duration(p.Duration) * time.Millisecond
	r.Error = p.Error
	r.Status = p.Status
	r.Attachments = append(r.Attachments, p.Attachments...)

	e.test.ExpectedStatus = p.ExpectedStatus
	e.test.Annotations = p.Annotations
	e.test.Timeout = time.Duration(p.Timeout) * time.Millisecond

	d.reportTestEndLocked(e.test, r)
}

func (j *jobRunner) onStdIO(testID, text string, buffer []byte, isErr bool) {
	d := j.d
	d.mu.Lock()
	defer d.mu.Unlock()

	chunk := suite.StreamChunk{Text: text, Buffer: buffer}
	var test *suite.TestCase
	if testID != "" {
		if e := d.entries[testID]; e != nil {
			test = e.test
			if isErr {
				e.result.Stderr = append(e.result.Stderr, chunk)
			} else {
				e.result.Stdout = append(e.result.Stdout, chunk)
			}
		}
	}
	if isErr {
		d.rep.OnStdErr(chunk, test)
	} else {
		d.rep.OnStdOut(chunk, test)
	}
}

func (j *jobRunner) onTeardownError(p *ipc.TeardownErrorParams) {
	d := j.d
	d.mu.Lock()
	defer d.mu.Unlock()

	// Strictly informational: recorded and reported, never fatal to the run.
	d.workerErrors = true
	d.rep.OnError(p.Error)
}

// onDone applies the terminal policy for the job. Clean finishes recycle the
// worker; everything else stops it, attributes failures, selects retries, and
// re-injects whatever is left of the group at the front of the queue.
func (j *jobRunner) onDone(p ipc.DoneParams) {
	d := j.d
	d.mu.Lock()
	defer d.mu.Unlock()

	if p.FatalError == nil && p.FailedTestID == "" && len(j.remaining) == 0 {
		d.pool.release(j.w)
		return
	}

	// The worker is not trusted to run anything else.
	j.w.Stop()

	var failed []*suite.TestCase
	if p.FatalError != nil {
		// The first remaining test takes the failure, the rest are skipped
		// with the same error. Tests the worker never announced get a
		// synthesized begin so reporters see a complete lifecycle.
		first := true
		for _, t := range j.remaining {
			if d.hasReachedMaxFailuresLocked() {
				break
			}
			e := d.entries[t.ID]
			r := e.result
			if first {
				r.Status = suite.StatusFailed
			} else {
				r.Status = suite.StatusSkipped
			}
			r.Error = p.FatalError
			if t.ID != j.lastStarted {
				d.rep.OnTestBegin(t)
			}
			d.reportTestEndLocked(t, r)
			failed = append(failed, t)
			first = false
		}
		// Under a fatal error nothing from this group is left to run.
		j.remaining = nil
	} else if p.FailedTestID != "" {
		if e := d.entries[p.FailedTestID]; e != nil {
			failed = append(failed, e.test)
		}
	}

	// Retry selection: only tests expected to pass whose attempt actually
	// failed (a test expected to fail that did fail is done, and skipped
	// outcomes are never retried), and only while attempts remain and the
	// dispatcher is not stopping. The registry's current result is rebound
	// to the fresh attempt.
	for _, t := range failed {
		e := d.entries[t.ID]
		if d.stopped ||
			t.ExpectedStatus != suite.StatusPassed ||
			e.result.Status == suite.StatusSkipped ||
			len(t.Results) >= t.Retries+1 {
			continue
		}
		e.result = t.AppendResult()
		j.remaining = append([]*suite.TestCase{t}, j.remaining...)
	}

	if len(j.remaining) > 0 {
		d.queue.pushFront(j.g.Remaining(j.remaining))
	}
}

func (j *jobRunner) removeRemaining(testID string) {
	for i, t := range j.remaining {
		if t.ID == testID {
			j.remaining = append(j.remaining[:i], j.remaining[i+1:]...)
			return
		}
	}
}
