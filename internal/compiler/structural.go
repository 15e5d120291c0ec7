package compiler

import (
	"fmt"

	"github.com/OdinManiac/regelum/internal/ir"
)

// StructuralPass enforces the wiring invariants: every input is
// connected, defaulted or variable-fed, and no input has fan-in above
// one. Fan-in is rejected outright - merging belongs to variables with
// write policies, not to wires.
type StructuralPass struct{}

// Name implements Pass.
func (StructuralPass) Name() string { return "structural" }

// Run implements Pass.
func (StructuralPass) Run(g *ir.Graph, sink *Sink) {
	inCount := make(map[string]int)
	for _, e := range g.Edges {
		inCount[e.DstKey()]++
	}

	for key, count := range inCount {
		if count > 1 {
			sink.Errorf(CodeFanIn,
				fmt.Sprintf("input %q has %d incoming edges", key, count),
				key,
				"fan-in is not allowed; merge through a variable with a write policy")
		}
	}

	for _, id := range g.NodeOrder {
		node := g.Nodes[id]
		for _, p := range node.Inputs {
			if inCount[p.Key()] > 0 || p.HasDefault() {
				continue
			}
			sink.Errorf(CodeUnconnectedInput,
				fmt.Sprintf("input %q is neither connected nor defaulted", p.Key()),
				p.Key(),
				"connect the port or give it a default value")
		}
	}
}

// TypePass unifies port types across every edge. An Int -> Float
// widening is a TYPE001 warning; anything else that fails to unify is a
// TYPE001 error.
type TypePass struct{}

// Name implements Pass.
func (TypePass) Name() string { return "types" }

// Run implements Pass.
func (TypePass) Run(g *ir.Graph, sink *Sink) {
	for _, e := range g.Edges {
		srcType, ok := g.PortType(e.SrcNode, e.SrcPort)
		if !ok {
			continue // unknown ports already rejected by the builder
		}
		dstType, ok := g.PortType(e.DstNode, e.DstPort)
		if !ok {
			continue
		}

		ok, widens := ir.Unify(srcType, dstType)
		switch {
		case !ok:
			sink.Error(CodeTypeWidening,
				fmt.Sprintf("edge %s -> %s: %s does not unify with %s",
					e.SrcKey(), e.DstKey(), srcType, dstType),
				e.DstKey())
		case widens:
			sink.Warning(CodeTypeWidening,
				fmt.Sprintf("edge %s -> %s widens %s to %s",
					e.SrcKey(), e.DstKey(), srcType, dstType),
				e.DstKey())
		}
	}

	// Hidden delay states must carry a concrete seed; lowering
	// guarantees it for authored delays, but descriptors can declare
	// delay buffers directly.
	for _, name := range g.VarOrder {
		v := g.Variables[name]
		if v.IsDelayBuffer && !v.HasInit() {
			sink.Errorf(CodeMissingDelayInit,
				fmt.Sprintf("delay state %q has no initial value", name),
				name,
				"give the delay a default")
		}
	}
}
