package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"
	"unicode/utf8"

	"github.com/jpequegn/testflow/internal/ipc"
	"github.com/jpequegn/testflow/internal/suite"
)

// skipExitCode marks a test that decided to skip itself (automake/meson
// convention).
const skipExitCode = 77

// runTest executes one test command and streams its lifecycle over the
// channel: testBegin, captured output chunks, then testEnd. The returned
// status is the one reported in testEnd.
func (r *runtime) runTest(id string, spec suite.WorkerSpec) suite.Status {
	start := time.Now()
	_ = r.conn.Send(ipc.MethodTestBegin, ipc.TestBeginParams{
		TestID:        id,
		WorkerIndex:   r.workerIndex,
		StartWallTime: start.UnixMilli(),
	})

	ctx := context.Background()
	var cancel context.CancelFunc
	if spec.TimeoutMs > 0 {
		ctx, cancel = context.WithTimeout(ctx, time.Duration(spec.TimeoutMs)*time.Millisecond)
	}

	// sh -c keeps complex commands (pipes, env expansion) working without a
	// shell-parsing layer of our own.
	cmd := exec.CommandContext(ctx, "sh", "-c", spec.Command)
	if spec.WorkDir != "" {
		cmd.Dir = spec.WorkDir
	}
	cmd.Env = append(os.Environ(), fmt.Sprintf("TESTFLOW_SCRATCH=%s", r.scratchDir))
	for k, v := range spec.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	duration := time.Since(start)
	timedOut := ctx.Err() == context.DeadlineExceeded
	if cancel != nil {
		cancel()
	}

	r.sendChunk(ipc.MethodStdOut, id, stdout.Bytes())
	r.sendChunk(ipc.MethodStdErr, id, stderr.Bytes())

	status := suite.StatusPassed
	var testErr *suite.TestError
	switch {
	case timedOut:
		status = suite.StatusTimedOut
		testErr = &suite.TestError{
			Value: fmt.Sprintf("timed out after %v", time.Duration(spec.TimeoutMs)*time.Millisecond),
		}
	case err != nil:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == skipExitCode {
			status = suite.StatusSkipped
		} else {
			status = suite.StatusFailed
			testErr = &suite.TestError{Value: err.Error()}
		}
	}

	_ = r.conn.Send(ipc.MethodTestEnd, ipc.TestEndParams{
		TestID:         id,
		Duration:       duration.Milliseconds(),
		Error:          testErr,
		Status:         status,
		ExpectedStatus: expectedStatus(spec),
		Timeout:        spec.TimeoutMs,
	})
	return status
}

// sendChunk forwards captured output, as text when it is valid UTF-8 and as
// a binary buffer otherwise.
func (r *runtime) sendChunk(method, id string, data []byte) {
	if len(data) == 0 {
		return
	}
	if utf8.Valid(data) {
		if method == ipc.MethodStdErr {
			_ = r.conn.Send(method, ipc.StdErrParams{TestID: id, Text: string(data)})
		} else {
			_ = r.conn.Send(method, ipc.StdOutParams{TestID: id, Text: string(data)})
		}
		return
	}
	if method == ipc.MethodStdErr {
		_ = r.conn.Send(method, ipc.StdErrParams{TestID: id, Buffer: data})
	} else {
		_ = r.conn.Send(method, ipc.StdOutParams{TestID: id, Buffer: data})
	}
}
