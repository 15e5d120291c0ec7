package harness

import (
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// RunWithGolden executes a scenario and compares the rendered trace
// against a golden file under testdata/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}

	g := goldie.New(t)
	g.Assert(t, scenario.Name, []byte(renderTrace(result)))
	return nil
}

// renderTrace renders the full trace as deterministic text: tick tags,
// then variables and outputs in sorted name order.
func renderTrace(result *RunResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "scenario: %s\n", result.Scenario.Name)
	for i, tick := range result.Ticks {
		fmt.Fprintf(&b, "tick %d @ %s\n", i, tick.Tag)
		for _, name := range sortedNames(tick.Variables) {
			fmt.Fprintf(&b, "  var %s = %s\n", name, tick.Variables[name])
		}
		for _, name := range sortedNames(tick.Outputs) {
			fmt.Fprintf(&b, "  out %s = %s\n", name, tick.Outputs[name])
		}
	}
	return b.String()
}
