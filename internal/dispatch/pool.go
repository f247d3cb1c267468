package dispatch

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/sourcegraph/conc"

	"github.com/jpequegn/testflow/internal/ipc"
	"github.com/jpequegn/testflow/internal/suite"
)

// Worker is the dispatcher's view of one worker process. The real
// implementation is worker.Handle; tests substitute in-process fakes.
type Worker interface {
	// Index returns the worker's index.
	Index() int

	// Hash returns the compatibility hash bound at init, or "" before init.
	Hash() string

	// Init configures the worker for a group's environment and returns once
	// the worker acknowledged readiness.
	Init(g *suite.TestGroup, loader json.RawMessage) error

	// Run starts a batch without waiting; results arrive on Events.
	Run(file string, entries []ipc.RunEntry)

	// Stop requests graceful teardown. Idempotent.
	Stop()

	// DidSendStop reports whether Stop has been called.
	DidSendStop() bool

	// Events returns the inbound event stream.
	Events() <-chan ipc.Event

	// Exited returns a channel closed once the worker has terminated.
	Exited() <-chan struct{}
}

// SpawnFunc creates a worker process with the given index
type SpawnFunc func(index int) (Worker, error)

var errPoolStopped = errors.New("worker pool is stopping")

// workerPool maintains the live worker set, the free list, and the FIFO of
// suspended claimers, bounded by maxWorkers. The worker index counter is a
// pool field so independent dispatchers in one process do not interfere.
type workerPool struct {
	mu         sync.Mutex
	maxWorkers int
	spawn      SpawnFunc
	loader     json.RawMessage

	workers   map[Worker]struct{}
	free      []Worker
	claimers  []chan struct{}
	nextIndex int

	stopped bool
	stopCh  chan struct{}
}

func newWorkerPool(maxWorkers int, loader json.RawMessage, spawn SpawnFunc) *workerPool {
	return &workerPool{
		maxWorkers: maxWorkers,
		spawn:      spawn,
		loader:     loader,
		workers:    make(map[Worker]struct{}),
		stopCh:     make(chan struct{}),
	}
}

// obtain returns a worker for the group, spawning one if the pool has room.
// The availability decision is taken under the lock, before any suspension
// point, so a worker freed concurrently cannot slip past a waiting claimer.
// A recycled worker may carry a different hash; compatibility is the
// caller's check.
func (p *workerPool) obtain(g *suite.TestGroup) (Worker, error) {
	for {
		p.mu.Lock()
		if p.stopped {
			p.mu.Unlock()
			return nil, errPoolStopped
		}

		if n := len(p.free); n > 0 {
			w := p.free[n-1]
			p.free = p.free[:n-1]
			p.mu.Unlock()
			return w, nil
		}

		if len(p.workers) < p.maxWorkers {
			index := p.nextIndex
			p.nextIndex++
			w, err := p.spawn(index)
			if err != nil {
				p.mu.Unlock()
				return nil, fmt.Errorf("failed to spawn worker %d: %w", index, err)
			}
			p.workers[w] = struct{}{}
			p.mu.Unlock()

			go p.watchExit(w)

			// Init binds the worker's hash to this group's hash, so a
			// fresh worker is compatible by construction.
			if err := w.Init(g, p.loader); err != nil {
				w.Stop()
				return nil, fmt.Errorf("worker %d failed to initialize: %w", index, err)
			}
			return w, nil
		}

		// No worker available and no room to grow: suspend until a release
		// or an exit wakes us, then retry the claim.
		ch := make(chan struct{}, 1)
		p.claimers = append(p.claimers, ch)
		p.mu.Unlock()

		select {
		case <-ch:
		case <-p.stopCh:
			return nil, errPoolStopped
		}
	}
}

// release returns a worker to the free list and wakes the head claimer
func (p *workerPool) release(w Worker) {
	select {
	case <-w.Exited():
		// Died in the meantime; watchExit owns the bookkeeping, we only
		// pass the wake-up along.
		p.mu.Lock()
		p.resumeClaimerLocked()
		p.mu.Unlock()
		return
	default:
	}

	p.mu.Lock()
	p.free = append(p.free, w)
	p.resumeClaimerLocked()
	p.mu.Unlock()
}

// watchExit removes a terminated worker from the pool. Waking a claimer here
// gives the next requester the chance to create a fresh worker in the freed
// slot.
func (p *workerPool) watchExit(w Worker) {
	<-w.Exited()

	p.mu.Lock()
	delete(p.workers, w)
	for i, fw := range p.free {
		if fw == w {
			p.free = append(p.free[:i], p.free[i+1:]...)
			break
		}
	}
	p.resumeClaimerLocked()
	p.mu.Unlock()
}

func (p *workerPool) resumeClaimerLocked() {
	if len(p.claimers) == 0 {
		return
	}
	ch := p.claimers[0]
	p.claimers = p.claimers[1:]
	ch <- struct{}{} // buffered, never blocks
}

// stopAll stops every live worker, waits for all of them to exit, and removes
// them from the live set before returning. No new workers spawn once called.
func (p *workerPool) stopAll() {
	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		close(p.stopCh)
	}
	workers := make([]Worker, 0, len(p.workers))
	for w := range p.workers {
		workers = append(workers, w)
	}
	p.mu.Unlock()

	var wg conc.WaitGroup
	for _, w := range workers {
		wg.Go(func() {
			w.Stop()
			<-w.Exited()
		})
	}
	wg.Wait()

	// watchExit removes exited workers asynchronously; settle the set here so
	// the stop is complete only once no worker is left in it.
	p.mu.Lock()
	for _, w := range workers {
		delete(p.workers, w)
	}
	p.mu.Unlock()
}

func (p *workerPool) workerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.workers)
}

func (p *workerPool) freeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}
