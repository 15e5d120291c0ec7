package compiler

import (
	"fmt"

	"github.com/OdinManiac/regelum/internal/ir"
)

// ContinuousPass verifies the port convention of every continuous
// wrapper: an input u, outputs state and y, and a dt input with a
// positive default so integration never runs a zero-width step. The
// wrapper itself stays opaque to causality - its u -> state path is
// non-instantaneous by contract.
type ContinuousPass struct{}

// Name implements Pass.
func (ContinuousPass) Name() string { return "continuous" }

// Run implements Pass.
func (ContinuousPass) Run(g *ir.Graph, sink *Sink) {
	for _, id := range g.NodeOrder {
		node := g.Nodes[id]
		if node.Kind != ir.KindContinuous {
			continue
		}

		dt, ok := node.Input("dt")
		if !ok || !dt.HasDefault() {
			sink.Errorf(CodeContinuousNoDT,
				fmt.Sprintf("continuous node %q must have a dt input with a positive default", id),
				string(id),
				"declare dt with a positive default step size")
			continue
		}
		if f, isNum := ir.AsFloat(dt.Default); !isNum || f <= 0 {
			sink.Errorf(CodeContinuousBadDT,
				fmt.Sprintf("continuous node %q has non-positive dt default %s", id, ir.FormatValue(dt.Default)),
				string(id),
				"use a strictly positive dt")
		}

		if _, ok := node.Input("u"); !ok {
			sink.Error(CodeContinuousNoPorts,
				fmt.Sprintf("continuous node %q is missing the u input", id),
				string(id))
		}
		_, hasState := node.Output("state")
		_, hasY := node.Output("y")
		if !hasState || !hasY {
			sink.Warningf(CodeContinuousNoPorts,
				fmt.Sprintf("continuous node %q should expose state and y outputs", id),
				string(id),
				"add the missing output ports")
		}
	}
}
