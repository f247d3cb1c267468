package suite

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// TestSpec is one test declaration in a suite manifest
type TestSpec struct {
	ID      string            `yaml:"id" json:"id"`
	Name    string            `yaml:"name" json:"name,omitempty"`
	Command string            `yaml:"command" json:"command"`
	WorkDir string            `yaml:"workdir" json:"workdir,omitempty"`
	File    string            `yaml:"file" json:"file,omitempty"`
	Project string            `yaml:"project" json:"project,omitempty"`
	Env     map[string]string `yaml:"env" json:"env,omitempty"`
	Timeout string            `yaml:"timeout" json:"timeout,omitempty"`
	Expect  Status            `yaml:"expect" json:"expect,omitempty"`
	Retries int               `yaml:"retries" json:"retries,omitempty"`
}

// Manifest is a parsed suite file
type Manifest struct {
	Tests []TestSpec `yaml:"tests" json:"tests"`
}

// LoadManifest loads a suite manifest from a file (YAML or JSON)
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read suite file: %w", err)
	}

	// Determine file format by extension
	var m Manifest
	if strings.HasSuffix(path, ".json") {
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("failed to parse JSON suite: %w", err)
		}
	} else if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("failed to parse YAML suite: %w", err)
		}
	} else {
		return nil, fmt.Errorf("unsupported suite format: %s (must be .yaml, .yml or .json)", path)
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks manifest invariants: unique ids, commands, known statuses
func (m *Manifest) Validate() error {
	if len(m.Tests) == 0 {
		return fmt.Errorf("no tests defined in suite")
	}

	seen := make(map[string]bool)
	for i, spec := range m.Tests {
		if spec.ID == "" {
			return fmt.Errorf("test %d: missing id", i)
		}
		if spec.Command == "" {
			return fmt.Errorf("test %q: missing command", spec.ID)
		}
		if seen[spec.ID] {
			return fmt.Errorf("duplicate test id: %s", spec.ID)
		}
		seen[spec.ID] = true

		switch spec.Expect {
		case "", StatusPassed, StatusFailed, StatusSkipped, StatusTimedOut:
		default:
			return fmt.Errorf("test %q: invalid expect value: %s", spec.ID, spec.Expect)
		}
		if spec.Timeout != "" {
			if _, err := time.ParseDuration(spec.Timeout); err != nil {
				return fmt.Errorf("test %q: invalid timeout: %w", spec.ID, err)
			}
		}
	}
	return nil
}

// BuildOptions configures group construction
type BuildOptions struct {
	RepeatEach int    // Run every test N times (distinct test instances)
	Project    string // Run only tests of this project ("" = all)
}

// BuildGroups converts a manifest into dispatchable test groups. Tests sharing
// a file, project, and environment form one group; the group's worker hash
// fingerprints the execution environment so only compatible groups share a
// worker process.
func BuildGroups(m *Manifest, opts BuildOptions) ([]*TestGroup, error) {
	repeat := opts.RepeatEach
	if repeat <= 0 {
		repeat = 1
	}

	projectIndex := make(map[string]int)
	var groups []*TestGroup

	for rep := 0; rep < repeat; rep++ {
		groupIndex := make(map[string]*TestGroup)
		var order []string

		for _, spec := range m.Tests {
			if opts.Project != "" && spec.Project != opts.Project {
				continue
			}

			test, err := newTestCase(spec, rep)
			if err != nil {
				return nil, err
			}

			if _, ok := projectIndex[spec.Project]; !ok {
				projectIndex[spec.Project] = len(projectIndex)
			}

			hash := workerHash(spec.Project, spec.Env)
			key := spec.File + "\x00" + hash
			g, ok := groupIndex[key]
			if !ok {
				g = &TestGroup{
					WorkerHash:      hash,
					RequireFile:     spec.File,
					RepeatEachIndex: rep,
					ProjectIndex:    projectIndex[spec.Project],
				}
				groupIndex[key] = g
				order = append(order, key)
			}
			g.Tests = append(g.Tests, test)
		}

		for _, key := range order {
			groups = append(groups, groupIndex[key])
		}
	}

	if len(groups) == 0 {
		return nil, fmt.Errorf("no tests matched")
	}
	return groups, nil
}

func newTestCase(spec TestSpec, repeatIndex int) (*TestCase, error) {
	id := spec.ID
	if repeatIndex > 0 {
		id = fmt.Sprintf("%s@repeat%d", spec.ID, repeatIndex)
	}

	expect := spec.Expect
	if expect == "" {
		expect = StatusPassed
	}

	var timeout time.Duration
	if spec.Timeout != "" {
		d, err := time.ParseDuration(spec.Timeout)
		if err != nil {
			return nil, fmt.Errorf("test %q: invalid timeout: %w", spec.ID, err)
		}
		timeout = d
	}

	name := spec.Name
	if name == "" {
		name = spec.ID
	}

	return &TestCase{
		ID:             id,
		Name:           name,
		Command:        spec.Command,
		WorkDir:        spec.WorkDir,
		Env:            spec.Env,
		ExpectedStatus: expect,
		Retries:        spec.Retries,
		Timeout:        timeout,
	}, nil
}

// workerHash fingerprints the execution environment of a group. Workers are
// initialized for one hash and only run groups carrying the same hash.
func workerHash(project string, env map[string]string) string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha1.New()
	fmt.Fprintf(h, "project=%s", project)
	for _, k := range keys {
		fmt.Fprintf(h, ";%s=%s", k, env[k])
	}
	return hex.EncodeToString(h.Sum(nil))
}
