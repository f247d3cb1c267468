package cmd

import (
	"encoding/json"
	"testing"

	"github.com/spf13/viper"

	"github.com/jpequegn/testflow/internal/dispatch"
	"github.com/jpequegn/testflow/internal/suite"
)

func TestSuiteLoaderConfig(t *testing.T) {
	cfg := dispatch.Config{Workers: 3, MaxFailures: 2}
	l := newSuiteLoader(cfg, nil)
	if got := l.FullConfig(); got != cfg {
		t.Errorf("expected %+v, got %+v", cfg, got)
	}
}

func TestSuiteLoaderSerializesWorkerSpecs(t *testing.T) {
	groups := []*suite.TestGroup{
		{Tests: []*suite.TestCase{
			{ID: "a", Command: "true", ExpectedStatus: suite.StatusPassed},
			{ID: "b", Command: "false", ExpectedStatus: suite.StatusFailed},
		}},
	}

	l := newSuiteLoader(dispatch.Config{Workers: 1}, groups)
	payload, err := l.Serialize()
	if err != nil {
		t.Fatalf("serialize failed: %v", err)
	}

	// The payload must round-trip into the worker-side spec map.
	var specs map[string]suite.WorkerSpec
	if err := json.Unmarshal(payload, &specs); err != nil {
		t.Fatalf("payload is not a spec map: %v", err)
	}
	if len(specs) != 2 {
		t.Fatalf("expected 2 specs, got %d", len(specs))
	}
	if specs["b"].Command != "false" || specs["b"].ExpectedStatus != suite.StatusFailed {
		t.Errorf("unexpected spec: %+v", specs["b"])
	}
}

func TestLoadSuiteFromViperConfig(t *testing.T) {
	viper.Reset()
	defer viper.Reset()
	viper.Set("tests", []map[string]any{
		{"id": "a", "command": "true"},
		{"id": "b", "command": "false", "expect": "failed", "retries": 1},
	})

	m, err := loadSuite("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(m.Tests) != 2 {
		t.Fatalf("expected 2 tests, got %d", len(m.Tests))
	}
	if m.Tests[1].Expect != suite.StatusFailed || m.Tests[1].Retries != 1 {
		t.Errorf("unexpected test: %+v", m.Tests[1])
	}
}

func TestLoadSuiteRejectsEmptyConfig(t *testing.T) {
	viper.Reset()
	defer viper.Reset()
	if _, err := loadSuite(""); err == nil {
		t.Fatal("expected error for empty configuration")
	}
}
