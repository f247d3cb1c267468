// Package runner is the in-worker runtime: the child side of the dispatcher
// protocol. It executes test commands sequentially and streams their
// lifecycle back over the inherited channel.
package runner

import (
	"encoding/json"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/jpequegn/testflow/internal/ipc"
	"github.com/jpequegn/testflow/internal/suite"
)

// Channel fds inherited from the dispatcher's ExtraFiles
const (
	channelReadFd  = 3
	channelWriteFd = 4
)

// Main runs the worker side of the protocol on the inherited channel fds.
// It returns when the dispatcher requests a stop or closes the channel.
func Main() error {
	in := os.NewFile(channelReadFd, "testflow-channel-in")
	out := os.NewFile(channelWriteFd, "testflow-channel-out")
	if in == nil || out == nil {
		return fmt.Errorf("worker channel fds not inherited; run through the dispatcher")
	}
	defer in.Close()
	defer out.Close()

	rt := &runtime{conn: ipc.NewConn(in, out)}
	return rt.run()
}

// runtime executes test batches on behalf of one dispatcher worker slot
type runtime struct {
	conn        *ipc.Conn
	workerIndex int
	specs       map[string]suite.WorkerSpec
	scratchDir  string
	stopped     atomic.Bool
}

// run handles the init handshake, then processes run batches until a stop
// request or channel EOF.
func (r *runtime) run() error {
	msg, err := r.conn.Recv()
	if err != nil {
		return fmt.Errorf("failed to read init: %w", err)
	}
	if msg.Method != ipc.MethodInit {
		return fmt.Errorf("expected init, got %s", msg.Method)
	}

	var init ipc.InitParams
	if err := json.Unmarshal(msg.Params, &init); err != nil {
		return fmt.Errorf("failed to decode init params: %w", err)
	}
	r.workerIndex = init.WorkerIndex
	if err := json.Unmarshal(init.Loader, &r.specs); err != nil {
		return fmt.Errorf("failed to decode loader payload: %w", err)
	}

	// Scratch space for test commands, removed at teardown.
	dir, err := os.MkdirTemp("", fmt.Sprintf("testflow-worker-%d-", r.workerIndex))
	if err != nil {
		return fmt.Errorf("failed to create worker scratch dir: %w", err)
	}
	r.scratchDir = dir

	// Ready ack: one message of any shape.
	if err := r.conn.Send("ready", nil); err != nil {
		return err
	}

	msgs := make(chan ipc.Message)
	stopCh := make(chan struct{})
	go func() {
		for {
			msg, err := r.conn.Recv()
			if err != nil {
				r.stopped.Store(true)
				close(msgs)
				return
			}
			if msg.Method == ipc.MethodStop {
				// Latch the flag first so a batch in flight winds down
				// after its current test.
				r.stopped.Store(true)
				close(stopCh)
				return
			}
			msgs <- msg
		}
	}()

	for {
		select {
		case msg, ok := <-msgs:
			if !ok {
				// Dispatcher went away; nothing left to report to.
				r.cleanup()
				return nil
			}
			if msg.Method != ipc.MethodRun {
				continue
			}
			var p ipc.RunParams
			if err := json.Unmarshal(msg.Params, &p); err != nil {
				_ = r.conn.Send(ipc.MethodDone, ipc.DoneParams{
					FatalError: &suite.TestError{Value: fmt.Sprintf("malformed run params: %v", err)},
				})
				continue
			}
			r.runBatch(p)
			if r.stopped.Load() {
				r.teardown()
				return nil
			}
		case <-stopCh:
			r.teardown()
			return nil
		}
	}
}

// runBatch executes the batch entries in order. The batch halts at the first
// unexpected outcome: the worker is poisoned and the dispatcher decides what
// happens to the rest of the group.
func (r *runtime) runBatch(p ipc.RunParams) {
	for _, entry := range p.Entries {
		if r.stopped.Load() {
			break
		}

		spec, ok := r.specs[entry.TestID]
		if !ok {
			_ = r.conn.Send(ipc.MethodDone, ipc.DoneParams{
				FatalError: &suite.TestError{Value: fmt.Sprintf("unknown test id: %s", entry.TestID)},
			})
			return
		}

		status := r.runTest(entry.TestID, spec)
		if status != suite.StatusSkipped && status != expectedStatus(spec) {
			_ = r.conn.Send(ipc.MethodDone, ipc.DoneParams{FailedTestID: entry.TestID})
			return
		}
	}
	_ = r.conn.Send(ipc.MethodDone, ipc.DoneParams{})
}

// teardown reports cleanup failures as a teardownError; the dispatcher
// records them without failing the run.
func (r *runtime) teardown() {
	if err := r.cleanup(); err != nil {
		_ = r.conn.Send(ipc.MethodTeardownError, ipc.TeardownErrorParams{
			Error: &suite.TestError{Value: fmt.Sprintf("failed to remove scratch dir: %v", err)},
		})
	}
}

func (r *runtime) cleanup() error {
	if r.scratchDir == "" {
		return nil
	}
	return os.RemoveAll(r.scratchDir)
}

func expectedStatus(spec suite.WorkerSpec) suite.Status {
	if spec.ExpectedStatus == "" {
		return suite.StatusPassed
	}
	return spec.ExpectedStatus
}
