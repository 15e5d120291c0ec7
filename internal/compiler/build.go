package compiler

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/OdinManiac/regelum/internal/ir"
)

// Build turns an authored descriptor into a frozen IR graph.
//
// Construction errors (duplicate identities, unknown references, type
// mismatches) abort the build: unlike pass diagnostics they mean the
// descriptor itself is malformed, not merely an unacceptable graph.
// Auto-wire ambiguity under non-strict modes is the one exception - it
// lands in the sink as a warning so compilation can continue.
func Build(desc *GraphDescriptor, mode ir.Mode, sink *Sink) (*ir.Graph, error) {
	g := ir.NewGraph(mode)

	for _, vd := range desc.Variables {
		v, err := buildVariable(vd, "")
		if err != nil {
			return nil, err
		}
		if err := g.AddVariable(v); err != nil {
			return nil, err
		}
	}

	for _, nd := range desc.Nodes {
		node := ir.NewNode(nd.ID, nd.Kind)
		node.Contract = nd.Contract
		node.Stepper = nd.Stepper
		for _, pd := range nd.Ports {
			if pd.Type == ir.TypeInvalid {
				return nil, fmt.Errorf("node %s: port %q has invalid type", nd.ID, pd.Name)
			}
			if pd.Default != nil && !ir.IsAbsent(pd.Default) {
				if ok, _ := ir.Unify(ir.TypeOf(pd.Default), pd.Type); !ok {
					return nil, fmt.Errorf("node %s: port %q default %s does not unify with %s",
						nd.ID, pd.Name, ir.FormatValue(pd.Default), pd.Type)
				}
			}
			port := &ir.Port{
				Name:      pd.Name,
				Direction: pd.Direction,
				Type:      pd.Type,
				Default:   pd.Default,
				Rate:      pd.Rate,
			}
			if err := node.AddPort(port); err != nil {
				return nil, err
			}
		}
		for _, sd := range nd.States {
			v, err := buildVariable(sd, nd.ID)
			if err != nil {
				return nil, err
			}
			if err := g.AddVariable(v); err != nil {
				return nil, err
			}
		}
		if err := g.AddNode(node); err != nil {
			return nil, err
		}
	}

	// Reactions resolve after every node and variable exists, so cross
	// node references (shared variables, remote ports) land correctly.
	for _, nd := range desc.Nodes {
		node := g.Nodes[nd.ID]
		for _, rd := range nd.Reactions {
			r, err := buildReaction(g, node, rd)
			if err != nil {
				return nil, err
			}
			node.Reactions = append(node.Reactions, r)
		}
		if nd.Kind == ir.KindContinuous && len(nd.Reactions) == 0 {
			node.Reactions = append(node.Reactions, continuousStepReaction(node))
		}
	}

	for _, ed := range desc.Edges {
		if err := g.Connect(ed.SrcNode, ed.SrcPort, ed.DstNode, ed.DstPort); err != nil {
			return nil, err
		}
	}

	if desc.AutoWire {
		if err := autoWire(g, sink); err != nil {
			return nil, err
		}
	}

	return g, nil
}

func buildVariable(vd VariableDescriptor, owner ir.NodeID) (*ir.Variable, error) {
	if vd.Type == ir.TypeInvalid {
		return nil, fmt.Errorf("variable %q has invalid type", vd.Name)
	}
	policy, err := ir.ParsePolicy(vd.Policy, vd.Priority, vd.Height)
	if err != nil {
		return nil, fmt.Errorf("variable %q: %w", vd.Name, err)
	}
	name := vd.Name
	if owner != "" {
		name = string(owner) + "." + vd.Name
	}
	if vd.Init != nil && !ir.IsAbsent(vd.Init) {
		if ok, _ := ir.Unify(ir.TypeOf(vd.Init), vd.Type); !ok {
			return nil, fmt.Errorf("variable %q: init %s does not unify with %s",
				name, ir.FormatValue(vd.Init), vd.Type)
		}
	}
	return &ir.Variable{
		Name:   name,
		Type:   vd.Type,
		Init:   vd.Init,
		Policy: policy,
		Owner:  owner,
	}, nil
}

func buildReaction(g *ir.Graph, node *ir.Node, rd ReactionDescriptor) (*ir.Reaction, error) {
	r := &ir.Reaction{
		ID:            rd.ID,
		Node:          node.ID,
		OutputPort:    rd.OutputPort,
		MaxMicrosteps: rd.MaxMicrosteps,
		Contract:      rd.Contract,
		Body:          rd.Body,
	}

	if rd.OutputPort != "" {
		out, ok := node.Output(rd.OutputPort)
		if !ok {
			return nil, fmt.Errorf("reaction %s: unknown output port %q", r.Key(), rd.OutputPort)
		}
		if rd.Output == nil && rd.Body == nil {
			return nil, fmt.Errorf("reaction %s: output port %q has no expression", r.Key(), rd.OutputPort)
		}
		if rd.Output != nil {
			resolved, err := resolveExpr(g, node, rd.Output)
			if err != nil {
				return nil, fmt.Errorf("reaction %s: %w", r.Key(), err)
			}
			if ok, _ := ir.Unify(resolved.ResultType(), out.Type); !ok {
				return nil, fmt.Errorf("reaction %s: expression type %s does not unify with port %q type %s",
					r.Key(), resolved.ResultType(), out.Name, out.Type)
			}
			r.Output = resolved
		}
	} else if rd.Output != nil {
		return nil, fmt.Errorf("reaction %s: output expression without an output port", r.Key())
	}

	if len(rd.Writes) > 0 {
		r.Writes = make(map[string]ir.Expr, len(rd.Writes))
		for _, wd := range rd.Writes {
			varName, v, err := resolveVariable(g, node, wd.Variable)
			if err != nil {
				return nil, fmt.Errorf("reaction %s: %w", r.Key(), err)
			}
			resolved, err := resolveExpr(g, node, wd.Expr)
			if err != nil {
				return nil, fmt.Errorf("reaction %s: %w", r.Key(), err)
			}
			if ok, _ := ir.Unify(resolved.ResultType(), v.Type); !ok {
				return nil, fmt.Errorf("reaction %s: write to %q has type %s, variable is %s",
					r.Key(), varName, resolved.ResultType(), v.Type)
			}
			if _, dup := r.Writes[varName]; dup {
				return nil, fmt.Errorf("reaction %s: duplicate write to %q", r.Key(), varName)
			}
			r.Writes[varName] = resolved
			r.WriteOrder = append(r.WriteOrder, varName)
		}
	}

	if rd.Rank != nil {
		resolved, err := resolveExpr(g, node, rd.Rank)
		if err != nil {
			return nil, fmt.Errorf("reaction %s: rank: %w", r.Key(), err)
		}
		r.Rank = resolved
	}

	for _, name := range rd.ReadRefs {
		ref, err := resolveRef(g, node, ir.VarRef(name, ir.TypeAny))
		if err != nil {
			return nil, fmt.Errorf("reaction %s: read ref: %w", r.Key(), err)
		}
		r.Reads = append(r.Reads, ref)
	}
	for _, name := range rd.WriteRefs {
		varName, _, err := resolveVariable(g, node, name)
		if err != nil {
			return nil, fmt.Errorf("reaction %s: write ref: %w", r.Key(), err)
		}
		r.WriteSet = append(r.WriteSet, varName)
	}

	return r, nil
}

// continuousStepReaction synthesizes the single scheduling unit of a
// continuous wrapper. The engine dispatches it to the node's stepper;
// the no-instant-loop contract keeps the wrapper opaque to causality.
func continuousStepReaction(node *ir.Node) *ir.Reaction {
	r := &ir.Reaction{
		ID:   "step",
		Node: node.ID,
		Contract: &ir.Contract{
			Deterministic:  true,
			SideEffectFree: true,
			NoInstantLoop:  true,
		},
	}
	for _, name := range []string{"u", "dt"} {
		if p, ok := node.Input(name); ok {
			r.Reads = append(r.Reads, ir.PortRef(p.Key(), p.Type))
		}
	}
	return r
}

// resolveVariable maps a surface variable name to its registered global
// name, trying node state first, then pipeline-shared variables.
func resolveVariable(g *ir.Graph, node *ir.Node, name string) (string, *ir.Variable, error) {
	if v, ok := g.Variables[string(node.ID)+"."+name]; ok {
		return v.Name, v, nil
	}
	if v, ok := g.Variables[name]; ok {
		return v.Name, v, nil
	}
	return "", nil, fmt.Errorf("unknown variable %q", name)
}

// resolveExpr rebuilds an authored tree with every reference resolved
// to its (kind, global id) pair and its final element type. The typed
// constructors re-run during the rebuild, so resolution doubles as a
// construction-time type check.
func resolveExpr(g *ir.Graph, node *ir.Node, e ir.Expr) (ir.Expr, error) {
	switch n := e.(type) {
	case *ir.Const:
		return n, nil

	case *ir.Ref:
		return resolveRef(g, node, n)

	case *ir.Binary:
		l, err := resolveExpr(g, node, n.Left)
		if err != nil {
			return nil, err
		}
		r, err := resolveExpr(g, node, n.Right)
		if err != nil {
			return nil, err
		}
		return ir.NewBinary(n.Op, l, r)

	case *ir.Compare:
		l, err := resolveExpr(g, node, n.Left)
		if err != nil {
			return nil, err
		}
		r, err := resolveExpr(g, node, n.Right)
		if err != nil {
			return nil, err
		}
		return ir.NewCompare(n.Op, l, r)

	case *ir.Logical:
		operands := make([]ir.Expr, len(n.Operands))
		for i, o := range n.Operands {
			resolved, err := resolveExpr(g, node, o)
			if err != nil {
				return nil, err
			}
			operands[i] = resolved
		}
		return ir.NewLogical(n.Op, operands...)

	case *ir.If:
		c, err := resolveExpr(g, node, n.Cond)
		if err != nil {
			return nil, err
		}
		t, err := resolveExpr(g, node, n.Then)
		if err != nil {
			return nil, err
		}
		el, err := resolveExpr(g, node, n.Else)
		if err != nil {
			return nil, err
		}
		return ir.NewIf(c, t, el)

	case *ir.Call:
		args := make([]ir.Expr, len(n.Args))
		for i, a := range n.Args {
			resolved, err := resolveExpr(g, node, a)
			if err != nil {
				return nil, err
			}
			args[i] = resolved
		}
		return ir.NewCall(n.Builtin, args...)

	case *ir.Delay:
		inner, err := resolveExpr(g, node, n.Inner)
		if err != nil {
			return nil, err
		}
		return ir.NewDelay(inner, n.Default)

	default:
		return nil, fmt.Errorf("unknown expression type %T", e)
	}
}

// resolveRef decides what a surface reference denotes. Resolution order
// matches the authored scoping rules: node state shadows input ports,
// which shadow pipeline-shared variables. Qualified "node.port" names
// resolve globally.
func resolveRef(g *ir.Graph, node *ir.Node, ref *ir.Ref) (*ir.Ref, error) {
	name := ref.Name

	if strings.Contains(name, ".") {
		if v, ok := g.Variables[name]; ok {
			return ref.Resolved(ir.RefVar, v.Name, v.Type)
		}
		dot := strings.IndexByte(name, '.')
		nid, pname := ir.NodeID(name[:dot]), name[dot+1:]
		if t, ok := g.PortType(nid, pname); ok {
			return ref.Resolved(ir.RefPort, name, t)
		}
		return nil, fmt.Errorf("unknown reference %q", name)
	}

	if v, ok := g.Variables[string(node.ID)+"."+name]; ok {
		return ref.Resolved(ir.RefVar, v.Name, v.Type)
	}
	if p, ok := node.Input(name); ok {
		return ref.Resolved(ir.RefPort, p.Key(), p.Type)
	}
	if p, ok := node.Output(name); ok {
		return ref.Resolved(ir.RefPort, p.Key(), p.Type)
	}
	if v, ok := g.Variables[name]; ok {
		return ref.Resolved(ir.RefVar, v.Name, v.Type)
	}
	return nil, fmt.Errorf("unknown reference %q on node %s", name, node.ID)
}

// autoWire connects every unconnected input to a same-named output.
// Exactly one candidate wires silently; several candidates are an
// ambiguity - fatal under strict, skipped with a warning otherwise.
// A node's own output is a legal candidate: the resulting self-loop is
// adjudicated by the causality pass, not here.
func autoWire(g *ir.Graph, sink *Sink) error {
	outputsByName := make(map[string][]*ir.Port)
	for _, id := range g.NodeOrder {
		for _, p := range g.Nodes[id].Outputs {
			outputsByName[p.Name] = append(outputsByName[p.Name], p)
		}
	}

	connected := make(map[string]bool, len(g.Edges))
	for _, e := range g.Edges {
		connected[e.DstKey()] = true
	}

	wired := 0
	for _, id := range g.NodeOrder {
		node := g.Nodes[id]
		for _, p := range node.Inputs {
			if connected[p.Key()] {
				continue
			}
			candidates := outputsByName[p.Name]
			switch len(candidates) {
			case 0:
				continue
			case 1:
				src := candidates[0]
				if err := g.Connect(src.Node, src.Name, node.ID, p.Name); err != nil {
					return err
				}
				wired++
				slog.Debug("auto-wired",
					"src", src.Key(),
					"dst", p.Key(),
				)
			default:
				msg := fmt.Sprintf("ambiguous auto-wire for input %q: %d candidate outputs", p.Key(), len(candidates))
				if g.Mode == ir.ModeStrict {
					return fmt.Errorf("%s", msg)
				}
				sink.Warningf(CodeUnconnectedInput, msg, p.Key(), "connect the port explicitly")
			}
		}
	}

	slog.Debug("auto-wiring completed", "connections", wired)
	return nil
}
