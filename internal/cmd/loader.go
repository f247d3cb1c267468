package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/viper"

	"github.com/jpequegn/testflow/internal/dispatch"
	"github.com/jpequegn/testflow/internal/suite"
)

// suiteLoader adapts a built suite to the dispatcher's Loader interface. Its
// serialized image is the per-test execution recipe map shipped to every
// worker's init.
type suiteLoader struct {
	cfg    dispatch.Config
	groups []*suite.TestGroup
}

func newSuiteLoader(cfg dispatch.Config, groups []*suite.TestGroup) *suiteLoader {
	return &suiteLoader{cfg: cfg, groups: groups}
}

// FullConfig returns the dispatcher-facing configuration
func (l *suiteLoader) FullConfig() dispatch.Config {
	return l.cfg
}

// Serialize returns the loader image forwarded verbatim to each worker
func (l *suiteLoader) Serialize() (json.RawMessage, error) {
	payload, err := json.Marshal(suite.WorkerSpecs(l.groups))
	if err != nil {
		return nil, fmt.Errorf("failed to serialize worker specs: %w", err)
	}
	return payload, nil
}

// loadSuite resolves the test manifest: a standalone suite file when --suite
// is set, otherwise the tests key of the main configuration.
func loadSuite(suiteFile string) (*suite.Manifest, error) {
	if suiteFile != "" {
		return suite.LoadManifest(suiteFile)
	}

	var specs []suite.TestSpec
	if err := viper.UnmarshalKey("tests", &specs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tests: %w", err)
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("no tests defined in configuration")
	}

	m := &suite.Manifest{Tests: specs}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}
