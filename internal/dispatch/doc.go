// Package dispatch schedules test groups across a bounded pool of isolated
// worker processes.
//
// # Overview
//
// The dispatcher owns four cooperating pieces:
//
//   - A work queue of test groups. Claiming pops the front; retries and the
//     remainders of interrupted jobs are pushed back onto the front.
//   - A result registry mapping each test id to the result the dispatcher is
//     currently writing to. Starting a retry rebinds the entry to a fresh
//     result instead of mutating the old one.
//   - A worker pool enforcing the maximum worker count and waking suspended
//     claimers as workers free up or die.
//   - One job runner per (worker, group) pair, which interprets the worker's
//     event stream and decides between recycling and discarding the worker.
//
// # Data flow
//
//	queue ──> Run ──> pool.obtain ──> jobRunner <──> Worker <──> child process
//	                                      │
//	                                      └──> Reporter (via the registry)
//
// # Concurrency
//
// Every piece of dispatcher state, including all reporter callbacks, is
// serialized under a single lock. Job runners are goroutines, but they only
// touch shared state inside that lock; actual parallelism comes from the
// worker processes. Reporters must not call back into the dispatcher.
//
// # Failure policy
//
// A worker that reports a failed test or a fatal error, or that dies without
// being asked to stop, is discarded. Under a fatal error the first remaining
// test of the group is recorded as failed and the rest as skipped. Tests
// expected to pass whose attempt failed are retried, up to their retry
// budget, by re-injecting them at the front of the queue. Once the number of
// unexpected outcomes reaches the configured maximum, the dispatcher stops
// the run and suppresses further test events.
package dispatch
