package expr

import "github.com/OdinManiac/regelum/internal/ir"

// Presence tags a constructive value.
type Presence int

const (
	// Bottom is the analysis-only "not yet determined" marker.
	Bottom Presence = iota
	// AbsentP marks a signal determined to carry no value this instant.
	AbsentP
	// Present marks a signal determined to carry a concrete value.
	Present
)

// V3 is one element of the constructive domain {⊥, ABSENT, present(v)}.
// The partial order is ⊥ ⊑ ABSENT and ⊥ ⊑ present(v); ABSENT and
// present values are incomparable maximal elements.
type V3 struct {
	Presence Presence
	Value    ir.Value // meaningful only when Presence == Present
}

// BottomV is the least element.
func BottomV() V3 { return V3{Presence: Bottom} }

// AbsentV is the determined-absent element.
func AbsentV() V3 { return V3{Presence: AbsentP} }

// PresentV wraps a concrete value.
func PresentV(v ir.Value) V3 { return V3{Presence: Present, Value: v} }

// Known reports whether the element carries a concrete value.
func (v V3) Known() bool { return v.Presence == Present }

// IsBottom reports whether the element is still undetermined.
func (v V3) IsBottom() bool { return v.Presence == Bottom }

// Lift injects a runtime value into the constructive domain.
func Lift(v ir.Value) V3 {
	if ir.IsAbsent(v) {
		return AbsentV()
	}
	return PresentV(v)
}

// Join moves old up toward new in the constructive order. It returns
// the merged element, whether it changed, and whether the two elements
// conflict (two distinct determined values, which would make the
// iteration non-monotone and therefore non-constructive).
func Join(old, new V3) (merged V3, changed, conflict bool) {
	if new.Presence == Bottom {
		return old, false, false
	}
	if old.Presence == Bottom {
		return new, true, false
	}
	if old.Presence != new.Presence {
		// ABSENT vs present: treat a present refinement of an absent
		// guess as progress; the reverse is ignored.
		if old.Presence == AbsentP && new.Presence == Present {
			return new, true, false
		}
		return old, false, false
	}
	if old.Presence == Present && !ir.Equal(old.Value, new.Value) {
		return new, true, true
	}
	return old, false, false
}

// TernaryEnv resolves references during constructive evaluation.
// Missing slots read as ⊥.
type TernaryEnv map[string]V3

func (m TernaryEnv) lookup(ref *ir.Ref) V3 {
	if v, ok := m[ref.Name]; ok {
		return v
	}
	return BottomV()
}

// EvalTernary evaluates a tree over the constructive domain. The
// function is total: unknown operands produce ⊥ rather than an error,
// and every case is monotone in each operand.
//
// Rules: arithmetic and comparison are ⊥-strict, then ABSENT-strict;
// a conditional with a ⊥ guard evaluates both branches and is their
// value only if the branches agree, otherwise ⊥; Delay is determined by
// construction - the hidden state holds last tick's value - so it maps
// to present(default) without touching its inner tree.
func EvalTernary(e ir.Expr, env TernaryEnv) V3 {
	switch n := e.(type) {
	case *ir.Const:
		return PresentV(n.Val)

	case *ir.Ref:
		return env.lookup(n)

	case *ir.Binary:
		l := EvalTernary(n.Left, env)
		r := EvalTernary(n.Right, env)
		if l.IsBottom() || r.IsBottom() {
			return BottomV()
		}
		if l.Presence == AbsentP || r.Presence == AbsentP {
			return AbsentV()
		}
		v, err := applyBinary(n.Op, l.Value, r.Value)
		if err != nil {
			return BottomV()
		}
		return PresentV(v)

	case *ir.Compare:
		l := EvalTernary(n.Left, env)
		r := EvalTernary(n.Right, env)
		if l.IsBottom() || r.IsBottom() {
			return BottomV()
		}
		if l.Presence == AbsentP || r.Presence == AbsentP {
			return AbsentV()
		}
		v, err := applyCompare(n.Op, l.Value, r.Value)
		if err != nil {
			return BottomV()
		}
		return PresentV(v)

	case *ir.Logical:
		vals := make([]ir.Value, len(n.Operands))
		for i, o := range n.Operands {
			v := EvalTernary(o, env)
			if v.IsBottom() {
				return BottomV()
			}
			if v.Presence == AbsentP {
				return AbsentV()
			}
			vals[i] = v.Value
		}
		v, err := applyLogical(n.Op, vals)
		if err != nil {
			return BottomV()
		}
		return PresentV(v)

	case *ir.If:
		cond := EvalTernary(n.Cond, env)
		if cond.Known() {
			if b, ok := cond.Value.(ir.Bool); ok {
				if bool(b) {
					return EvalTernary(n.Then, env)
				}
				return EvalTernary(n.Else, env)
			}
			return BottomV()
		}
		if cond.Presence == AbsentP {
			return AbsentV()
		}
		// Guard still ⊥: the conditional is determined only if both
		// branches already agree.
		t := EvalTernary(n.Then, env)
		e2 := EvalTernary(n.Else, env)
		if t.Known() && e2.Known() && ir.Equal(t.Value, e2.Value) {
			return t
		}
		if t.Presence == AbsentP && e2.Presence == AbsentP {
			return AbsentV()
		}
		return BottomV()

	case *ir.Call:
		args := make([]ir.Value, len(n.Args))
		for i, a := range n.Args {
			v := EvalTernary(a, env)
			if v.IsBottom() {
				return BottomV()
			}
			if v.Presence == AbsentP {
				if !n.Builtin.AbsentAware {
					return AbsentV()
				}
				args[i] = ir.Absent
				continue
			}
			args[i] = v.Value
		}
		return Lift(n.Builtin.Fn(args))

	case *ir.Delay:
		return PresentV(n.Default)

	default:
		return BottomV()
	}
}
