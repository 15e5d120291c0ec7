package harness

import (
	"fmt"
	"sort"

	"github.com/OdinManiac/regelum/internal/cli"
	"github.com/OdinManiac/regelum/internal/compiler"
	"github.com/OdinManiac/regelum/internal/engine"
	"github.com/OdinManiac/regelum/internal/ir"
)

// TickResult is one committed tick rendered to stable strings.
type TickResult struct {
	Tag       string            `json:"tag"`
	Variables map[string]string `json:"variables"`
	Outputs   map[string]string `json:"outputs"`
}

// RunResult is the outcome of executing a scenario.
type RunResult struct {
	Scenario *Scenario
	Compile  *compiler.Result
	Ticks    []TickResult
}

// Run compiles and executes a scenario. A rejected compile or an
// aborted tick is an error; expectation mismatches are reported by
// Assert, not here.
func Run(scenario *Scenario) (*RunResult, error) {
	desc, mode, err := cli.LoadPipeline(scenario.Pipeline)
	if err != nil {
		return nil, fmt.Errorf("load pipeline: %w", err)
	}
	if scenario.Mode != "" {
		mode = ir.ParseMode(scenario.Mode)
	}

	result, err := compiler.Compile(desc, mode)
	if err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}
	if !result.OK {
		return nil, fmt.Errorf("compile rejected: %d diagnostic(s), first: %s",
			len(result.Diagnostics), firstError(result))
	}

	run := &RunResult{Scenario: scenario, Compile: result}

	rt, err := engine.New(result,
		engine.WithTokenGenerator(engine.NewFixedGenerator("scenario-"+scenario.Name)),
		engine.WithObserver(func(_ string, snap engine.Snapshot) {
			run.Ticks = append(run.Ticks, renderSnapshot(snap))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("runtime: %w", err)
	}

	for _, ev := range scenario.Events {
		value, err := yamlValue(ev.Value)
		if err != nil {
			return nil, fmt.Errorf("event for %s: %w", ev.Target, err)
		}
		tag := ir.Tag{Time: ev.Time, Micro: ev.Micro}
		if err := rt.EnqueueEvent(tag, ev.Target, value); err != nil {
			return nil, fmt.Errorf("enqueue event: %w", err)
		}
	}

	if err := rt.Run(scenario.Ticks, scenario.DT); err != nil {
		return nil, fmt.Errorf("execute: %w", err)
	}
	return run, nil
}

// Assert checks every expectation against the executed ticks and
// returns all mismatches.
func (r *RunResult) Assert() []error {
	var failures []error
	for _, exp := range r.Scenario.Expect {
		if exp.Tick >= len(r.Ticks) {
			failures = append(failures, fmt.Errorf("tick %d not executed", exp.Tick))
			continue
		}
		tick := r.Ticks[exp.Tick]
		for name, want := range exp.Variables {
			got, ok := tick.Variables[name]
			if !ok {
				failures = append(failures, fmt.Errorf("tick %d: variable %q not committed", exp.Tick, name))
				continue
			}
			if got != want {
				failures = append(failures, fmt.Errorf("tick %d: variable %q = %s, want %s", exp.Tick, name, got, want))
			}
		}
		for name, want := range exp.Outputs {
			got, ok := tick.Outputs[name]
			if !ok {
				failures = append(failures, fmt.Errorf("tick %d: output %q not recorded", exp.Tick, name))
				continue
			}
			if got != want {
				failures = append(failures, fmt.Errorf("tick %d: output %q = %s, want %s", exp.Tick, name, got, want))
			}
		}
	}
	return failures
}

func renderSnapshot(snap engine.Snapshot) TickResult {
	render := func(m map[string]ir.Value) map[string]string {
		out := make(map[string]string, len(m))
		for name, v := range m {
			out[name] = ir.FormatValue(v)
		}
		return out
	}
	return TickResult{
		Tag:       snap.Tag.String(),
		Variables: render(snap.Variables),
		Outputs:   render(snap.Outputs),
	}
}

// yamlValue converts a decoded YAML scalar into a runtime value.
func yamlValue(v any) (ir.Value, error) {
	switch val := v.(type) {
	case nil:
		return ir.Absent, nil
	case bool:
		return ir.Bool(val), nil
	case int:
		return ir.Int(int64(val)), nil
	case int64:
		return ir.Int(val), nil
	case float64:
		return ir.Float(val), nil
	default:
		return nil, fmt.Errorf("unsupported event value %T", v)
	}
}

func firstError(result *compiler.Result) string {
	for _, d := range result.Diagnostics {
		if d.Severity == compiler.SeverityError {
			return d.String()
		}
	}
	return "(none)"
}

// sortedNames is shared by the golden renderer for stable output.
func sortedNames(m map[string]string) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
