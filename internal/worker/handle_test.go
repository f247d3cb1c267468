package worker

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/jpequegn/testflow/internal/ipc"
	"github.com/jpequegn/testflow/internal/suite"
)

func shWorker(script string) []string {
	return []string{"sh", "-c", script}
}

func testGroup(hash string) *suite.TestGroup {
	return &suite.TestGroup{
		WorkerHash:  hash,
		RequireFile: "suite.yaml",
		Tests:       []*suite.TestCase{{ID: "t1"}},
	}
}

func nextEvent(t *testing.T, h *Handle) ipc.Event {
	t.Helper()
	select {
	case ev := <-h.Events():
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for worker event")
		return nil
	}
}

func waitExited(t *testing.T, h *Handle) {
	t.Helper()
	select {
	case <-h.Exited():
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for worker exit")
	}
}

func TestHandleInitAndEventStream(t *testing.T) {
	script := `
read -r line <&3
printf '{}\n' >&4
printf '{"method":"testBegin","params":{"testId":"t1","workerIndex":5}}\n' >&4
printf '{"method":"done","params":{}}\n' >&4
`
	h, err := Spawn(Options{Index: 5, Command: shWorker(script)})
	if err != nil {
		t.Fatalf("spawn failed: %v", err)
	}

	if err := h.Init(testGroup("H"), json.RawMessage(`{}`)); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	if h.Hash() != "H" {
		t.Errorf("expected hash H after init, got %q", h.Hash())
	}

	begin, ok := nextEvent(t, h).(*ipc.TestBeginParams)
	if !ok {
		t.Fatal("expected a testBegin event")
	}
	if begin.TestID != "t1" || begin.WorkerIndex != 5 {
		t.Errorf("unexpected testBegin: %+v", begin)
	}

	if _, ok := nextEvent(t, h).(*ipc.DoneParams); !ok {
		t.Fatal("expected a done event")
	}

	waitExited(t, h)
}

func TestHandleExportsWorkerIndex(t *testing.T) {
	script := `
read -r line <&3
printf '{}\n' >&4
printf '{"method":"stdOut","params":{"text":"index=%s"}}\n' "$TEST_WORKER_INDEX" >&4
printf '{"method":"done","params":{}}\n' >&4
`
	h, err := Spawn(Options{Index: 3, Command: shWorker(script)})
	if err != nil {
		t.Fatalf("spawn failed: %v", err)
	}
	if err := h.Init(testGroup("H"), json.RawMessage(`{}`)); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	out, ok := nextEvent(t, h).(*ipc.StdOutParams)
	if !ok {
		t.Fatal("expected a stdOut event")
	}
	if out.Text != "index=3" {
		t.Errorf("expected index=3, got %q", out.Text)
	}
	waitExited(t, h)
}

func TestHandleInitFailsWhenChildDies(t *testing.T) {
	h, err := Spawn(Options{Index: 0, Command: shWorker("exit 7")})
	if err != nil {
		t.Fatalf("spawn failed: %v", err)
	}
	if err := h.Init(testGroup("H"), json.RawMessage(`{}`)); err == nil {
		t.Fatal("expected init error for a dead child")
	}
	waitExited(t, h)
}

func TestHandleStopLatch(t *testing.T) {
	script := `
read -r line <&3
printf '{}\n' >&4
while read -r line <&3; do
  case "$line" in
    *'"stop"'*) exit 0 ;;
  esac
done
`
	h, err := Spawn(Options{Index: 0, Command: shWorker(script)})
	if err != nil {
		t.Fatalf("spawn failed: %v", err)
	}
	if err := h.Init(testGroup("H"), json.RawMessage(`{}`)); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	if h.DidSendStop() {
		t.Error("latch must be unset before Stop")
	}

	h.Stop()
	h.Stop() // second call is a no-op
	if !h.DidSendStop() {
		t.Error("latch must be set after Stop")
	}
	waitExited(t, h)
}

func TestHandleRunDelivery(t *testing.T) {
	// The child echoes the testId of the first run entry back as an event.
	script := `
read -r line <&3
printf '{}\n' >&4
read -r line <&3
id=${line#*\"testId\":\"}
id=${id%%\"*}
printf '{"method":"testEnd","params":{"testId":"%s","status":"passed","expectedStatus":"passed"}}\n' "$id" >&4
printf '{"method":"done","params":{}}\n' >&4
`
	h, err := Spawn(Options{Index: 0, Command: shWorker(script)})
	if err != nil {
		t.Fatalf("spawn failed: %v", err)
	}
	if err := h.Init(testGroup("H"), json.RawMessage(`{}`)); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	h.Run("suite.yaml", []ipc.RunEntry{{TestID: "t42", Retry: 0}})

	end, ok := nextEvent(t, h).(*ipc.TestEndParams)
	if !ok {
		t.Fatal("expected a testEnd event")
	}
	if end.TestID != "t42" || end.Status != suite.StatusPassed {
		t.Errorf("unexpected testEnd: %+v", end)
	}
	if _, ok := nextEvent(t, h).(*ipc.DoneParams); !ok {
		t.Fatal("expected a done event")
	}
	waitExited(t, h)
}

func TestHandleSendsToDeadChildAreSwallowed(t *testing.T) {
	h, err := Spawn(Options{Index: 0, Command: shWorker("exit 0")})
	if err != nil {
		t.Fatalf("spawn failed: %v", err)
	}
	waitExited(t, h)

	// None of these may panic or block.
	h.Run("suite.yaml", []ipc.RunEntry{{TestID: "t1"}})
	h.Stop()
	if !h.DidSendStop() {
		t.Error("latch must be set even for a dead child")
	}
}

func TestHandleSpawnFailure(t *testing.T) {
	if _, err := Spawn(Options{Index: 0, Command: []string{"/nonexistent-worker-binary"}}); err == nil {
		t.Fatal("expected spawn error")
	}
	if _, err := Spawn(Options{Index: 0}); err == nil {
		t.Fatal("expected error for an empty command")
	}
}
