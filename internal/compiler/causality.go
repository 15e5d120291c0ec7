package compiler

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/OdinManiac/regelum/internal/expr"
	"github.com/OdinManiac/regelum/internal/ir"
)

// defaultIterLimit bounds constructive iteration when no variable in
// the cycle declares a lattice height.
const defaultIterLimit = 20

// CausalityPass detects algebraic cycles on the instantaneous
// dependency graph and decides their admissibility.
//
// An SCC of size >= 2, or a self-looping reaction, is an algebraic
// cycle. Cycles through Raw nodes (CAUS001) or Ext nodes without a
// monotone contract (CAUS002) are rejected outright. Cycles through a
// variable whose write policy is not a bounded-height monotone lattice
// are rejected (CAUS004). The remaining cycles run the three-valued
// constructive fixed point; if iteration fails to determine every
// signal within the summed height budget, the cycle is non-constructive
// (CAUS003).
//
// Ranked reactions opt out of the constructive check: their microstep
// budget is enforced by the non-Zeno pass and the runtime watchdog.
type CausalityPass struct{}

// Name implements Pass.
func (CausalityPass) Name() string { return "causality" }

// Run implements Pass.
func (CausalityPass) Run(g *ir.Graph, sink *Sink) {
	dg := buildDepGraph(g)
	sccs := dg.tarjanSCC()

	for _, scc := range sccs {
		if len(scc) == 1 && !dg.hasSelfLoop(scc[0]) {
			continue
		}
		checkCycle(g, dg, scc, sink)
	}
}

func checkCycle(g *ir.Graph, dg *depGraph, scc []string, sink *Sink) {
	location := strings.Join(scc, ", ")

	admissible := true
	for _, key := range scc {
		node := dg.nodes[key]
		r := dg.reactions[key]
		switch node.Kind {
		case ir.KindRaw:
			sink.Errorf(CodeCycleNonCore,
				fmt.Sprintf("algebraic cycle contains raw reaction %s", key),
				location,
				"insert a Delay or move the reaction out of the loop")
			admissible = false
		case ir.KindExt:
			monotone := (r.Contract != nil && r.Contract.Monotone) ||
				(r.Contract == nil && node.Contract != nil && node.Contract.Monotone)
			if !monotone {
				sink.Errorf(CodeCycleExtNoMonotone,
					fmt.Sprintf("algebraic cycle contains ext reaction %s without a monotone contract", key),
					location,
					"declare monotone=true or insert a Delay")
				admissible = false
			}
		}
	}
	if !admissible {
		return
	}

	// Every shared variable written inside the cycle must be a
	// monotone, bounded-height lattice.
	cycleVars := sccVariables(g, dg, scc)
	var bad []string
	for _, name := range cycleVars {
		v := g.Variables[name]
		if !v.Policy.Monotone() || v.Policy.Height() <= 0 {
			bad = append(bad, name)
		}
	}
	if len(bad) > 0 {
		sink.Errorf(CodeCycleNonMonotone,
			fmt.Sprintf("cycle writes non-monotone or unbounded state: %s", strings.Join(bad, ", ")),
			location,
			"use a bounded monotone merge policy or insert a Delay")
		return
	}

	// Ranked members defer to the non-Zeno budget instead of the
	// constructive analysis.
	for _, key := range scc {
		if dg.reactions[key].Rank != nil {
			slog.Debug("cycle carries a rank declaration, skipping constructive check", "scc", location)
			return
		}
	}

	if !constructive(g, dg, scc) {
		sink.Errorf(CodeNonConstructive,
			fmt.Sprintf("non-constructive cycle: %s", location),
			location,
			"insert a Delay, or restructure so the fixed point is reachable monotonically")
	}
}

// sccVariables returns the variables written by cycle members and read
// back inside the cycle, excluding delay buffers.
func sccVariables(g *ir.Graph, dg *depGraph, scc []string) []string {
	members := make(map[string]bool, len(scc))
	for _, key := range scc {
		members[key] = true
	}

	written := make(map[string]bool)
	for _, key := range scc {
		for _, name := range dg.reactions[key].WriteSet {
			if v := g.Variables[name]; v != nil && !v.IsDelayBuffer {
				written[name] = true
			}
		}
	}

	var result []string
	seen := make(map[string]bool)
	for _, key := range scc {
		for _, ref := range dg.reactions[key].Reads {
			if ref.Kind == ir.RefVar && written[ref.Name] && !seen[ref.Name] {
				seen[ref.Name] = true
				result = append(result, ref.Name)
			}
		}
	}
	return result
}

// constructive runs the three-valued least fixed point over the SCC.
// Every signal internal to the cycle starts at ⊥; externally defined
// references take their committed baseline (variable init, port
// default, or determined-absent). The iteration budget is the summed
// lattice height of the cycle's variables, or a fixed default when no
// heights are declared. Evaluation order inside one sweep cannot change
// the result - every policy in an admissible cycle is monotone - so a
// deterministic sweep over the member list suffices.
func constructive(g *ir.Graph, dg *depGraph, scc []string) bool {
	// Signals internal to the cycle: outputs and variables written by
	// members, plus input ports fed by member outputs.
	internal := make(map[string]bool)
	for _, key := range scc {
		r := dg.reactions[key]
		node := dg.nodes[key]
		for _, name := range r.WriteSet {
			internal["var:"+name] = true
		}
		if r.OutputPort != "" {
			if out, ok := node.Output(r.OutputPort); ok && out.DelayState == "" {
				internal["port:"+out.Key()] = true
			}
		}
	}
	for _, e := range g.Edges {
		if internal["port:"+e.SrcKey()] {
			internal["port:"+e.DstKey()] = true
		}
	}

	env := make(expr.TernaryEnv)
	baseline := func(ref *ir.Ref) expr.V3 {
		if ref.Kind == ir.RefVar {
			v := g.Variables[ref.Name]
			if v == nil {
				return expr.BottomV()
			}
			if v.HasInit() {
				return expr.PresentV(v.Init)
			}
			return expr.BottomV()
		}
		// A port outside the cycle is determined: either its default or
		// absence. Input ports additionally follow their source edge's
		// baseline default when present.
		if p := findPort(g, ref.Name); p != nil && p.HasDefault() {
			return expr.PresentV(p.Default)
		}
		return expr.AbsentV()
	}

	iterLimit := 0
	for _, name := range sccVariables(g, dg, scc) {
		iterLimit += g.Variables[name].Policy.Height()
	}
	if iterLimit <= 0 {
		iterLimit = defaultIterLimit
	} else {
		iterLimit++ // one sweep past the summed height reaches the bound
	}

	lookup := func(ref *ir.Ref) expr.V3 {
		var key string
		if ref.Kind == ir.RefVar {
			key = "var:" + ref.Name
		} else {
			key = "port:" + ref.Name
		}
		if internal[key] {
			return env[key]
		}
		return baseline(ref)
	}

	evalIn := func(e ir.Expr) expr.V3 {
		// Bridge the reaction's refs into the working environment.
		local := make(expr.TernaryEnv)
		for _, ref := range ir.CollectRefs(e) {
			local[ref.Name] = lookup(ref)
		}
		return expr.EvalTernary(e, local)
	}

	join := func(key string, val expr.V3) (changed, conflict bool) {
		old := env[key]
		merged, ch, conf := expr.Join(old, val)
		if ch {
			env[key] = merged
		}
		return ch, conf
	}

	converged := false
	for iter := 0; iter < iterLimit; iter++ {
		changedAny := false

		for _, key := range scc {
			r := dg.reactions[key]
			node := dg.nodes[key]

			for _, name := range r.WriteOrder {
				val := evalIn(r.Writes[name])
				ch, conflict := join("var:"+name, val)
				if conflict {
					return false
				}
				changedAny = changedAny || ch
			}

			if r.Output != nil && r.OutputPort != "" {
				if out, ok := node.Output(r.OutputPort); ok && out.DelayState == "" {
					val := evalIn(r.Output)
					ch, conflict := join("port:"+out.Key(), val)
					if conflict {
						return false
					}
					changedAny = changedAny || ch
				}
			}
		}

		// Flow determined port values along cycle-internal edges.
		for _, e := range g.Edges {
			src, dst := "port:"+e.SrcKey(), "port:"+e.DstKey()
			if internal[src] && internal[dst] {
				ch, conflict := join(dst, env[src])
				if conflict {
					return false
				}
				changedAny = changedAny || ch
			}
		}

		if !changedAny {
			converged = true
			break
		}
	}

	if !converged {
		return false
	}
	for key := range internal {
		if env[key].IsBottom() {
			return false
		}
	}
	return true
}

func findPort(g *ir.Graph, key string) *ir.Port {
	dot := strings.IndexByte(key, '.')
	if dot < 0 {
		return nil
	}
	node, ok := g.Nodes[ir.NodeID(key[:dot])]
	if !ok {
		return nil
	}
	if p, ok := node.Input(key[dot+1:]); ok {
		return p
	}
	if p, ok := node.Output(key[dot+1:]); ok {
		return p
	}
	return nil
}
