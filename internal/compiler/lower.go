package compiler

import (
	"fmt"

	"github.com/OdinManiac/regelum/internal/ir"
)

// LowerDelays rewrites every Delay(e, d) in the graph into a hidden
// state variable plus a scheduled post-commit write:
//
//  1. a hidden state H is allocated on the owning node, typed like e and
//     initialized to d,
//  2. the Delay subtree is replaced by a reference to H,
//  3. a post-commit write of H with expression e is recorded on the
//     reaction; it evaluates over the tick's newly committed environment.
//
// The instantaneous read of H therefore returns the previous tick's
// value, which is the only mechanism that breaks instantaneous cycles.
// After lowering, the IR contains no Delay nodes; this is an invariant
// every downstream pass relies on.
//
// Hidden names are keyed by (reaction id, occurrence index) and never
// exposed to authors.
func LowerDelays(g *ir.Graph) error {
	var firstErr error
	g.Reactions(func(node *ir.Node, r *ir.Reaction) {
		if firstErr != nil {
			return
		}
		occurrence := 0

		lower := func(e ir.Expr) (ir.Expr, error) {
			return lowerExpr(g, node, r, e, &occurrence)
		}

		if r.Output != nil {
			topDelay := isDelay(r.Output)
			lowered, err := lower(r.Output)
			if err != nil {
				firstErr = err
				return
			}
			r.Output = lowered
			if topDelay {
				// A reaction whose whole output is delayed re-exposes
				// the hidden state through its port, so the scheduler
				// prefills the port with last tick's committed value.
				if out, ok := node.Output(r.OutputPort); ok {
					if ref, ok := lowered.(*ir.Ref); ok {
						out.DelayState = ref.Name
					}
				}
			}
		}
		for _, name := range r.WriteOrder {
			lowered, err := lower(r.Writes[name])
			if err != nil {
				firstErr = err
				return
			}
			r.Writes[name] = lowered
		}
		if r.Rank != nil {
			lowered, err := lower(r.Rank)
			if err != nil {
				firstErr = err
				return
			}
			r.Rank = lowered
		}

		finalizeAccessSets(r)
	})
	return firstErr
}

func isDelay(e ir.Expr) bool {
	_, ok := e.(*ir.Delay)
	return ok
}

// lowerExpr rebuilds the tree bottom-up, replacing each Delay with a
// hidden state reference. Nested delays lower inner-first, so a
// Delay(Delay(x, a), b) chain becomes two states fed in sequence.
func lowerExpr(g *ir.Graph, node *ir.Node, r *ir.Reaction, e ir.Expr, occurrence *int) (ir.Expr, error) {
	switch n := e.(type) {
	case *ir.Const, *ir.Ref:
		return e, nil

	case *ir.Binary:
		l, err := lowerExpr(g, node, r, n.Left, occurrence)
		if err != nil {
			return nil, err
		}
		rt, err := lowerExpr(g, node, r, n.Right, occurrence)
		if err != nil {
			return nil, err
		}
		return ir.NewBinary(n.Op, l, rt)

	case *ir.Compare:
		l, err := lowerExpr(g, node, r, n.Left, occurrence)
		if err != nil {
			return nil, err
		}
		rt, err := lowerExpr(g, node, r, n.Right, occurrence)
		if err != nil {
			return nil, err
		}
		return ir.NewCompare(n.Op, l, rt)

	case *ir.Logical:
		operands := make([]ir.Expr, len(n.Operands))
		for i, o := range n.Operands {
			lowered, err := lowerExpr(g, node, r, o, occurrence)
			if err != nil {
				return nil, err
			}
			operands[i] = lowered
		}
		return ir.NewLogical(n.Op, operands...)

	case *ir.If:
		c, err := lowerExpr(g, node, r, n.Cond, occurrence)
		if err != nil {
			return nil, err
		}
		t, err := lowerExpr(g, node, r, n.Then, occurrence)
		if err != nil {
			return nil, err
		}
		el, err := lowerExpr(g, node, r, n.Else, occurrence)
		if err != nil {
			return nil, err
		}
		return ir.NewIf(c, t, el)

	case *ir.Call:
		args := make([]ir.Expr, len(n.Args))
		for i, a := range n.Args {
			lowered, err := lowerExpr(g, node, r, a, occurrence)
			if err != nil {
				return nil, err
			}
			args[i] = lowered
		}
		return ir.NewCall(n.Builtin, args...)

	case *ir.Delay:
		inner, err := lowerExpr(g, node, r, n.Inner, occurrence)
		if err != nil {
			return nil, err
		}
		hidden := fmt.Sprintf("%s.__delay_%s_%d", node.ID, r.ID, *occurrence)
		*occurrence++

		v := &ir.Variable{
			Name:          hidden,
			Type:          inner.ResultType(),
			Init:          n.Default,
			Policy:        ir.ErrorPolicy{},
			Owner:         node.ID,
			IsDelayBuffer: true,
		}
		if err := g.AddVariable(v); err != nil {
			return nil, fmt.Errorf("allocate delay state: %w", err)
		}
		r.PostCommit = append(r.PostCommit, ir.DeferredWrite{Variable: hidden, Expr: inner})
		return ir.VarRef(hidden, v.Type), nil

	default:
		return nil, fmt.Errorf("unknown expression type %T", e)
	}
}

// finalizeAccessSets derives the static read and write sets of a Core
// reaction from its lowered expressions. Opaque reactions keep the sets
// declared in their descriptor.
func finalizeAccessSets(r *ir.Reaction) {
	if r.Body != nil {
		return
	}

	seen := make(map[string]bool)
	addRefs := func(e ir.Expr) {
		if e == nil {
			return
		}
		for _, ref := range ir.CollectRefs(e) {
			key := ref.Kind.String() + ":" + ref.Name
			if !seen[key] {
				seen[key] = true
				r.Reads = append(r.Reads, ref)
			}
		}
	}
	addRefs(r.Output)
	for _, name := range r.WriteOrder {
		addRefs(r.Writes[name])
	}
	addRefs(r.Rank)

	r.WriteSet = append([]string(nil), r.WriteOrder...)
}
