package expr

import (
	"fmt"

	"github.com/OdinManiac/regelum/internal/ir"
)

// Env resolves references during concrete evaluation. Missing slots
// read as ABSENT.
type Env interface {
	Lookup(ref *ir.Ref) ir.Value
}

// MapEnv is an Env backed by a plain map from global reference names
// (port keys and variable names) to values.
type MapEnv map[string]ir.Value

// Lookup implements Env.
func (m MapEnv) Lookup(ref *ir.Ref) ir.Value {
	if v, ok := m[ref.Name]; ok {
		return v
	}
	return ir.Absent
}

// Eval maps a tree plus environment to a value or ABSENT.
// ABSENT propagates through arithmetic, comparison and logic; a builtin
// declared AbsentAware receives ABSENT arguments instead. A conditional
// with an ABSENT guard is ABSENT.
//
// Delay nodes are rejected: lowering removes every Delay before the IR
// freezes, so meeting one here is a compiler defect.
func Eval(e ir.Expr, env Env) (ir.Value, error) {
	switch n := e.(type) {
	case *ir.Const:
		return n.Val, nil

	case *ir.Ref:
		return env.Lookup(n), nil

	case *ir.Binary:
		l, err := Eval(n.Left, env)
		if err != nil {
			return nil, err
		}
		r, err := Eval(n.Right, env)
		if err != nil {
			return nil, err
		}
		if ir.IsAbsent(l) || ir.IsAbsent(r) {
			return ir.Absent, nil
		}
		return applyBinary(n.Op, l, r)

	case *ir.Compare:
		l, err := Eval(n.Left, env)
		if err != nil {
			return nil, err
		}
		r, err := Eval(n.Right, env)
		if err != nil {
			return nil, err
		}
		if ir.IsAbsent(l) || ir.IsAbsent(r) {
			return ir.Absent, nil
		}
		return applyCompare(n.Op, l, r)

	case *ir.Logical:
		vals := make([]ir.Value, len(n.Operands))
		for i, o := range n.Operands {
			v, err := Eval(o, env)
			if err != nil {
				return nil, err
			}
			if ir.IsAbsent(v) {
				return ir.Absent, nil
			}
			vals[i] = v
		}
		return applyLogical(n.Op, vals)

	case *ir.If:
		cond, err := Eval(n.Cond, env)
		if err != nil {
			return nil, err
		}
		if ir.IsAbsent(cond) {
			return ir.Absent, nil
		}
		b, ok := cond.(ir.Bool)
		if !ok {
			return nil, fmt.Errorf("if guard evaluated to non-boolean %s", ir.FormatValue(cond))
		}
		if bool(b) {
			return Eval(n.Then, env)
		}
		return Eval(n.Else, env)

	case *ir.Call:
		args := make([]ir.Value, len(n.Args))
		for i, a := range n.Args {
			v, err := Eval(a, env)
			if err != nil {
				return nil, err
			}
			if ir.IsAbsent(v) && !n.Builtin.AbsentAware {
				return ir.Absent, nil
			}
			args[i] = v
		}
		return n.Builtin.Fn(args), nil

	case *ir.Delay:
		return nil, fmt.Errorf("unlowered Delay reached the concrete evaluator")

	default:
		return nil, fmt.Errorf("unknown expression type %T", e)
	}
}

func applyBinary(op ir.BinaryOp, l, r ir.Value) (ir.Value, error) {
	li, lInt := l.(ir.Int)
	ri, rInt := r.(ir.Int)
	if lInt && rInt {
		switch op {
		case ir.OpAdd:
			return li + ri, nil
		case ir.OpSub:
			return li - ri, nil
		case ir.OpMul:
			return li * ri, nil
		case ir.OpDiv:
			if ri == 0 {
				return nil, fmt.Errorf("integer division by zero")
			}
			return li / ri, nil
		case ir.OpMin:
			return ir.Int(min(int64(li), int64(ri))), nil
		case ir.OpMax:
			return ir.Int(max(int64(li), int64(ri))), nil
		}
	}

	lf, lNum := ir.AsFloat(l)
	rf, rNum := ir.AsFloat(r)
	if !lNum || !rNum {
		return nil, fmt.Errorf("operator %s over non-numeric values %s and %s",
			op, ir.FormatValue(l), ir.FormatValue(r))
	}
	switch op {
	case ir.OpAdd:
		return ir.Float(lf + rf), nil
	case ir.OpSub:
		return ir.Float(lf - rf), nil
	case ir.OpMul:
		return ir.Float(lf * rf), nil
	case ir.OpDiv:
		if rf == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return ir.Float(lf / rf), nil
	case ir.OpMin:
		return ir.Float(min(lf, rf)), nil
	case ir.OpMax:
		return ir.Float(max(lf, rf)), nil
	default:
		return nil, fmt.Errorf("unknown binary operator %d", op)
	}
}

func applyCompare(op ir.CompareOp, l, r ir.Value) (ir.Value, error) {
	if op == ir.CmpEQ {
		return ir.Bool(ir.Equal(l, r)), nil
	}
	lf, lNum := ir.AsFloat(l)
	rf, rNum := ir.AsFloat(r)
	if !lNum || !rNum {
		return nil, fmt.Errorf("operator %s over non-numeric values %s and %s",
			op, ir.FormatValue(l), ir.FormatValue(r))
	}
	switch op {
	case ir.CmpLT:
		return ir.Bool(lf < rf), nil
	case ir.CmpLE:
		return ir.Bool(lf <= rf), nil
	case ir.CmpGE:
		return ir.Bool(lf >= rf), nil
	case ir.CmpGT:
		return ir.Bool(lf > rf), nil
	default:
		return nil, fmt.Errorf("unknown comparison operator %d", op)
	}
}

func applyLogical(op ir.LogicOp, vals []ir.Value) (ir.Value, error) {
	bools := make([]bool, len(vals))
	for i, v := range vals {
		b, ok := v.(ir.Bool)
		if !ok {
			return nil, fmt.Errorf("%s over non-boolean value %s", op, ir.FormatValue(v))
		}
		bools[i] = bool(b)
	}
	switch op {
	case ir.OpAnd:
		for _, b := range bools {
			if !b {
				return ir.Bool(false), nil
			}
		}
		return ir.Bool(true), nil
	case ir.OpOr:
		for _, b := range bools {
			if b {
				return ir.Bool(true), nil
			}
		}
		return ir.Bool(false), nil
	default:
		return ir.Bool(!bools[0]), nil
	}
}
