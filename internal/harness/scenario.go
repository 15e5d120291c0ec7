package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario defines a conformance test scenario: compile the referenced
// pipeline, drive it for Ticks ticks, and validate the committed
// values.
type Scenario struct {
	// Name uniquely identifies this scenario; golden files use it.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Pipeline is the CUE pipeline directory, relative to the scenario
	// file unless absolute.
	Pipeline string `yaml:"pipeline"`

	// Mode overrides the pipeline's compile mode.
	Mode string `yaml:"mode,omitempty"`

	// Ticks is the number of ticks to execute.
	Ticks int `yaml:"ticks"`

	// DT seeds dt inputs and advances time per tick when positive.
	DT float64 `yaml:"dt,omitempty"`

	// Events enqueues external events before execution starts.
	Events []EventStep `yaml:"events,omitempty"`

	// Expect validates committed values after specific ticks.
	Expect []Expectation `yaml:"expect,omitempty"`
}

// EventStep is one external event to enqueue.
type EventStep struct {
	Time   float64 `yaml:"t"`
	Micro  int     `yaml:"micro,omitempty"`
	Target string  `yaml:"target"`
	Value  any     `yaml:"value"`
}

// Expectation validates the snapshot committed at a zero-based tick
// index. Matching is a subset check: only listed names are compared,
// against their FormatValue rendering.
type Expectation struct {
	Tick      int               `yaml:"tick"`
	Variables map[string]string `yaml:"variables,omitempty"`
	Outputs   map[string]string `yaml:"outputs,omitempty"`
}

// LoadScenario reads and parses a scenario YAML file. Unknown fields
// are rejected so typos fail loudly, and the pipeline path is resolved
// relative to the scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}

	if !filepath.IsAbs(scenario.Pipeline) {
		scenario.Pipeline = filepath.Join(filepath.Dir(path), scenario.Pipeline)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Pipeline == "" {
		return fmt.Errorf("pipeline is required")
	}
	if s.Ticks <= 0 {
		return fmt.Errorf("ticks must be positive")
	}
	for i, exp := range s.Expect {
		if exp.Tick < 0 || exp.Tick >= s.Ticks {
			return fmt.Errorf("expect[%d]: tick %d outside executed range", i, exp.Tick)
		}
		if len(exp.Variables) == 0 && len(exp.Outputs) == 0 {
			return fmt.Errorf("expect[%d]: nothing to assert", i)
		}
	}
	for i, ev := range s.Events {
		if ev.Target == "" {
			return fmt.Errorf("events[%d]: target is required", i)
		}
	}
	if _, err := os.Stat(s.Pipeline); os.IsNotExist(err) {
		return fmt.Errorf("pipeline directory not found: %s", s.Pipeline)
	}
	return nil
}
