package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OdinManiac/regelum/internal/ir"
)

func bin(t *testing.T, op ir.BinaryOp, l, r ir.Expr) ir.Expr {
	t.Helper()
	e, err := ir.NewBinary(op, l, r)
	require.NoError(t, err)
	return e
}

func cmp(t *testing.T, op ir.CompareOp, l, r ir.Expr) ir.Expr {
	t.Helper()
	e, err := ir.NewCompare(op, l, r)
	require.NoError(t, err)
	return e
}

func TestEvalArithmetic(t *testing.T) {
	env := MapEnv{"x": ir.Int(10)}
	x := ir.VarRef("x", ir.TypeInt)

	tests := []struct {
		name string
		expr ir.Expr
		want ir.Value
	}{
		{"add", bin(t, ir.OpAdd, x, ir.ConstInt(1)), ir.Int(11)},
		{"sub", bin(t, ir.OpSub, x, ir.ConstInt(3)), ir.Int(7)},
		{"mul", bin(t, ir.OpMul, x, ir.ConstInt(2)), ir.Int(20)},
		{"div", bin(t, ir.OpDiv, x, ir.ConstInt(4)), ir.Int(2)},
		{"min", bin(t, ir.OpMin, x, ir.ConstInt(4)), ir.Int(4)},
		{"max", bin(t, ir.OpMax, x, ir.ConstInt(4)), ir.Int(10)},
		{"mixed promotes", bin(t, ir.OpAdd, x, ir.ConstFloat(0.5)), ir.Float(10.5)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Eval(tt.expr, env)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvalAbsentPropagation(t *testing.T) {
	env := MapEnv{} // x unbound -> ABSENT
	x := ir.VarRef("x", ir.TypeInt)

	sum := bin(t, ir.OpAdd, x, ir.ConstInt(1))
	v, err := Eval(sum, env)
	require.NoError(t, err)
	assert.True(t, ir.IsAbsent(v), "ABSENT propagates through arithmetic")

	less := cmp(t, ir.CmpLT, x, ir.ConstInt(1))
	v, err = Eval(less, env)
	require.NoError(t, err)
	assert.True(t, ir.IsAbsent(v), "ABSENT propagates through comparison")

	guard, err := ir.NewIf(cmp(t, ir.CmpLT, x, ir.ConstInt(1)), ir.ConstInt(1), ir.ConstInt(2))
	require.NoError(t, err)
	v, err = Eval(guard, env)
	require.NoError(t, err)
	assert.True(t, ir.IsAbsent(v), "ABSENT guard yields ABSENT")
}

func TestEvalDivisionByZero(t *testing.T) {
	_, err := Eval(bin(t, ir.OpDiv, ir.ConstInt(1), ir.ConstInt(0)), MapEnv{})
	assert.Error(t, err)

	_, err = Eval(bin(t, ir.OpDiv, ir.ConstFloat(1), ir.ConstFloat(0)), MapEnv{})
	assert.Error(t, err)
}

func TestEvalConditionalAndLogic(t *testing.T) {
	env := MapEnv{"flag": ir.Bool(true)}
	flag := ir.VarRef("flag", ir.TypeBool)

	e, err := ir.NewIf(flag, ir.ConstInt(1), ir.ConstInt(2))
	require.NoError(t, err)
	v, err := Eval(e, env)
	require.NoError(t, err)
	assert.Equal(t, ir.Int(1), v)

	and, err := ir.NewLogical(ir.OpAnd, flag, ir.ConstBool(false))
	require.NoError(t, err)
	v, err = Eval(and, env)
	require.NoError(t, err)
	assert.Equal(t, ir.Bool(false), v)

	not, err := ir.NewLogical(ir.OpNot, flag)
	require.NoError(t, err)
	v, err = Eval(not, env)
	require.NoError(t, err)
	assert.Equal(t, ir.Bool(false), v)
}

func TestEvalBuiltin(t *testing.T) {
	sig := &ir.BuiltinSig{
		Name:   "abs",
		Params: []ir.Type{ir.TypeFloat},
		Result: ir.TypeFloat,
		Fn: func(args []ir.Value) ir.Value {
			f, _ := ir.AsFloat(args[0])
			if f < 0 {
				return ir.Float(-f)
			}
			return ir.Float(f)
		},
	}

	call, err := ir.NewCall(sig, ir.ConstFloat(-3))
	require.NoError(t, err)
	v, err := Eval(call, MapEnv{})
	require.NoError(t, err)
	assert.Equal(t, ir.Float(3), v)
}

func TestEvalBuiltinAbsentHandling(t *testing.T) {
	strict := &ir.BuiltinSig{
		Name:   "id",
		Params: []ir.Type{ir.TypeInt},
		Result: ir.TypeInt,
		Fn:     func(args []ir.Value) ir.Value { return args[0] },
	}
	call, err := ir.NewCall(strict, ir.VarRef("missing", ir.TypeInt))
	require.NoError(t, err)
	v, err := Eval(call, MapEnv{})
	require.NoError(t, err)
	assert.True(t, ir.IsAbsent(v), "strict builtins short-circuit on ABSENT")

	aware := &ir.BuiltinSig{
		Name:        "or_zero",
		Params:      []ir.Type{ir.TypeInt},
		Result:      ir.TypeInt,
		AbsentAware: true,
		Fn: func(args []ir.Value) ir.Value {
			if ir.IsAbsent(args[0]) {
				return ir.Int(0)
			}
			return args[0]
		},
	}
	call, err = ir.NewCall(aware, ir.VarRef("missing", ir.TypeInt))
	require.NoError(t, err)
	v, err = Eval(call, MapEnv{})
	require.NoError(t, err)
	assert.Equal(t, ir.Int(0), v, "absent-aware builtins see the sentinel")
}

func TestEvalRejectsUnloweredDelay(t *testing.T) {
	d, err := ir.NewDelay(ir.ConstInt(1), ir.Int(0))
	require.NoError(t, err)
	_, err = Eval(d, MapEnv{})
	assert.Error(t, err, "delays must be lowered before concrete evaluation")
}
