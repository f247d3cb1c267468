// Package worker owns the subprocess side of test execution: spawning worker
// processes, the message channel to them, and their lifecycle. Scheduling
// decisions live in the dispatch package.
package worker

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"sync/atomic"

	"github.com/mattn/go-isatty"

	"github.com/jpequegn/testflow/internal/ipc"
	"github.com/jpequegn/testflow/internal/suite"
)

// eventBuffer bounds the number of undelivered worker events. The job runner
// drains the channel continuously while a job is attached; the buffer only
// absorbs the tail emitted between a terminal message and process exit.
const eventBuffer = 128

// Options configures a worker process spawn
type Options struct {
	Index         int      // Worker index, exported to the child as TEST_WORKER_INDEX
	Command       []string // Argv of the worker entry point
	InheritStderr bool     // Route child stderr to the parent's stderr (debug)
}

// Handle owns one child worker process. Inbound worker messages surface as a
// typed event stream on Events(); process termination closes Exited(). The
// handle takes no scheduling decisions: the dispatcher decides what runs
// where, the handle only moves messages.
type Handle struct {
	index int
	hash  string // Empty until Init completes, then fixed

	cmd  *exec.Cmd
	conn *ipc.Conn

	parentRead  *os.File
	parentWrite *os.File

	events      chan ipc.Event
	exited      chan struct{}
	ready       chan struct{}
	didSendStop atomic.Bool
}

// Spawn starts a worker process with a dedicated message channel. The channel
// is a pair of pipes inherited as fds 3 (parent to child) and 4 (child to
// parent); stdin and stdout are discarded because the worker reports all test
// output over the channel, and piping the standard streams slows termination.
func Spawn(opts Options) (*Handle, error) {
	if len(opts.Command) == 0 {
		return nil, fmt.Errorf("worker command not configured")
	}

	childRead, parentWrite, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pipe: %w", err)
	}
	parentRead, childWrite, err := os.Pipe()
	if err != nil {
		childRead.Close()
		parentWrite.Close()
		return nil, fmt.Errorf("failed to create worker pipe: %w", err)
	}

	cmd := exec.Command(opts.Command[0], opts.Command[1:]...)
	cmd.ExtraFiles = []*os.File{childRead, childWrite} // fds 3 and 4 in the child
	cmd.Env = append(os.Environ(),
		"FORCE_COLOR="+colorEnv(),
		"DEBUG_COLORS="+colorEnv(),
		fmt.Sprintf("TEST_WORKER_INDEX=%d", opts.Index),
	)
	if opts.InheritStderr {
		cmd.Stderr = os.Stderr
	}

	if err := cmd.Start(); err != nil {
		childRead.Close()
		childWrite.Close()
		parentRead.Close()
		parentWrite.Close()
		return nil, fmt.Errorf("failed to start worker %d: %w", opts.Index, err)
	}

	// The child owns its pipe ends now; holding them open in the parent
	// would mask the EOF when the child dies.
	childRead.Close()
	childWrite.Close()

	h := &Handle{
		index:       opts.Index,
		cmd:         cmd,
		conn:        ipc.NewConn(parentRead, parentWrite),
		parentRead:  parentRead,
		parentWrite: parentWrite,
		events:      make(chan ipc.Event, eventBuffer),
		exited:      make(chan struct{}),
		ready:       make(chan struct{}),
	}
	go h.loop()
	return h, nil
}

// loop reads child messages until the channel closes, then reaps the process
// and publishes the exit. The first inbound message is the init ready ack and
// is not re-dispatched as an event.
func (h *Handle) loop() {
	first := true
	for {
		msg, err := h.conn.Recv()
		if err != nil {
			break
		}
		if first {
			first = false
			close(h.ready)
			continue
		}
		ev, err := ipc.DecodeEvent(msg)
		if err != nil {
			// Malformed or unknown messages from the child are dropped.
			continue
		}
		h.events <- ev
	}

	_ = h.cmd.Wait()

	// Best-effort: a job runner blocked on Events sees the exit inline; if
	// the buffer is full (or nobody is attached) Exited still fires.
	select {
	case h.events <- ipc.ExitEvent{}:
	default:
	}
	close(h.exited)

	h.parentRead.Close()
	h.parentWrite.Close()
}

// Index returns the worker's index
func (h *Handle) Index() int { return h.index }

// Hash returns the compatibility hash bound at init, or "" before init
func (h *Handle) Hash() string { return h.hash }

// Init configures the worker for a group's environment and waits for the
// child's ready acknowledgement. The compatibility hash is fixed here for the
// worker's lifetime.
func (h *Handle) Init(g *suite.TestGroup, loader json.RawMessage) error {
	h.hash = g.WorkerHash

	params := ipc.InitParams{
		WorkerIndex:     h.index,
		RepeatEachIndex: g.RepeatEachIndex,
		ProjectIndex:    g.ProjectIndex,
		Loader:          loader,
	}
	// Sends to a dead child are swallowed; the exit below surfaces instead.
	_ = h.conn.Send(ipc.MethodInit, params)

	select {
	case <-h.ready:
		return nil
	case <-h.exited:
		return fmt.Errorf("worker %d exited before becoming ready", h.index)
	}
}

// Run asks the worker to execute a batch of tests. It does not wait: results
// arrive as streaming events terminating in a done event.
func (h *Handle) Run(file string, entries []ipc.RunEntry) {
	_ = h.conn.Send(ipc.MethodRun, ipc.RunParams{File: file, Entries: entries})
}

// Stop requests graceful worker teardown. Idempotent: only the first call
// sends the stop message, and the latch distinguishes an intentional exit
// from a crash.
func (h *Handle) Stop() {
	if h.didSendStop.CompareAndSwap(false, true) {
		_ = h.conn.Send(ipc.MethodStop, nil)
	}
}

// DidSendStop reports whether Stop has been called
func (h *Handle) DidSendStop() bool { return h.didSendStop.Load() }

// Events returns the inbound event stream
func (h *Handle) Events() <-chan ipc.Event { return h.events }

// Exited returns a channel closed once the worker process has terminated
func (h *Handle) Exited() <-chan struct{} { return h.exited }

// colorEnv mirrors the parent's TTY-ness so downstream test output keeps or
// drops its coloring.
func colorEnv() string {
	if isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		return "1"
	}
	return "0"
}
