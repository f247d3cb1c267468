package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/sourcegraph/conc"

	"github.com/jpequegn/testflow/internal/reporter"
	"github.com/jpequegn/testflow/internal/suite"
)

// Config is the dispatcher-facing configuration resolved by the loader
type Config struct {
	Workers     int // Maximum number of concurrent worker processes
	MaxFailures int // Stop the run after this many unexpected failures (0 = never)
}

// Loader supplies the run configuration and its own serialized image, which
// is forwarded verbatim to every worker's init.
type Loader interface {
	FullConfig() Config
	Serialize() (json.RawMessage, error)
}

// registryEntry tracks the result the dispatcher is currently writing to for
// one test. The result pointer is rebound when a retry begins, so handlers
// holding a prior result never observe writes meant for a later attempt.
type registryEntry struct {
	test   *suite.TestCase
	result *suite.TestResult
}

// Dispatcher schedules test groups across a bounded pool of worker processes,
// collects their results, and applies retry, fail-fast, and graceful-stop
// policies. All dispatcher state, including reporter callbacks, is serialized
// under one lock; parallelism comes solely from the worker processes.
type Dispatcher struct {
	mu   sync.Mutex
	rep  reporter.Reporter
	pool *workerPool

	queue   groupQueue
	entries map[string]*registryEntry

	maxFailures  int
	failureCount int
	workerErrors bool
	stopped      bool

	stopOnce sync.Once
	stopDone chan struct{}
}

// New builds a dispatcher over the given groups. Each test receives its first
// blank result here, so every registry entry starts with results.length == 1.
func New(loader Loader, groups []*suite.TestGroup, rep reporter.Reporter, spawn SpawnFunc) (*Dispatcher, error) {
	cfg := loader.FullConfig()
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}

	payload, err := loader.Serialize()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize loader: %w", err)
	}

	if rep == nil {
		rep = reporter.Nop{}
	}

	d := &Dispatcher{
		rep:         rep,
		entries:     make(map[string]*registryEntry),
		maxFailures: cfg.MaxFailures,
		stopDone:    make(chan struct{}),
	}

	for _, g := range groups {
		if len(g.Tests) == 0 {
			// An empty group never claims a worker.
			continue
		}
		d.queue.groups = append(d.queue.groups, g)
		for _, t := range g.Tests {
			d.entries[t.ID] = &registryEntry{test: t, result: t.AppendResult()}
		}
	}

	d.pool = newWorkerPool(workers, payload, spawn)
	return d, nil
}

// Run dispatches until the queue drains or the dispatcher is stopped. Each
// pass greedily drains the current queue and awaits the launched jobs; the
// outer loop picks up work the jobs re-injected. Workers that finished
// cleanly stay alive in the free list; call Stop to tear them down.
func (d *Dispatcher) Run(ctx context.Context) error {
	cancel := context.AfterFunc(ctx, func() { d.Stop() })
	defer cancel()

	for d.pendingWork() && !d.isStopped() {
		var jobs conc.WaitGroup
		for !d.isStopped() {
			g := d.popGroup()
			if g == nil {
				break
			}
			w, err := d.obtainWorker(g)
			if err != nil {
				if errors.Is(err, errPoolStopped) {
					break
				}
				d.reportInternalError(err)
				d.Stop()
				break
			}
			if d.isStopped() {
				break
			}
			jobs.Go(func() { d.runJob(w, g) })
		}
		jobs.Wait()
	}

	// A stop initiated during the run (fail-fast, ctx, explicit) must fully
	// settle before Run returns: all workers exited, no jobs in flight.
	if d.isStopped() {
		<-d.stopDone
	}
	return ctx.Err()
}

// Stop initiates a graceful stop: no new workers, no new jobs, retries
// suppressed; in-flight jobs complete naturally once their worker exits.
// Idempotent, and every call waits for the teardown to finish.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		d.mu.Lock()
		d.stopped = true
		d.mu.Unlock()

		go func() {
			d.pool.stopAll()
			close(d.stopDone)
		}()
	})
	<-d.stopDone
}

// HasWorkerErrors reports whether any worker signalled a teardown or internal
// error during the run.
func (d *Dispatcher) HasWorkerErrors() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.workerErrors
}

// obtainWorker claims a worker compatible with the group. A recycled worker
// initialized for a different environment is stopped and replaced; a worker
// whose hash is still empty is mid-init and left alone.
func (d *Dispatcher) obtainWorker(g *suite.TestGroup) (Worker, error) {
	w, err := d.pool.obtain(g)
	for err == nil && !d.isStopped() && w.Hash() != "" && w.Hash() != g.WorkerHash {
		w.Stop()
		w, err = d.pool.obtain(g)
	}
	return w, err
}

func (d *Dispatcher) pendingWork() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.queue.len() > 0
}

func (d *Dispatcher) popGroup() *suite.TestGroup {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.queue.popFront()
}

func (d *Dispatcher) isStopped() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stopped
}

func (d *Dispatcher) hasReachedMaxFailuresLocked() bool {
	return d.maxFailures > 0 && d.failureCount >= d.maxFailures
}

// reportTestEndLocked records a terminal attempt, counts unexpected outcomes,
// and trips fail-fast when the threshold is hit. Called with the lock held.
func (d *Dispatcher) reportTestEndLocked(t *suite.TestCase, r *suite.TestResult) {
	if r.Status != suite.StatusSkipped && r.Status != t.ExpectedStatus {
		d.failureCount++
	}
	d.rep.OnTestEnd(t, r)
	if d.maxFailures > 0 && d.failureCount == d.maxFailures {
		// The stop must not run under the lock; errors from it are swallowed.
		go d.Stop()
	}
}

// reportInternalError surfaces a dispatch-mechanics failure (worker spawn or
// init) without raising: flag plus reporter callback.
func (d *Dispatcher) reportInternalError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.workerErrors = true
	d.rep.OnError(&suite.TestError{Value: err.Error()})
}
