package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBinaryTypes(t *testing.T) {
	b, err := NewBinary(OpAdd, ConstInt(1), ConstInt(2))
	require.NoError(t, err)
	assert.Equal(t, TypeInt, b.ResultType())

	b, err = NewBinary(OpMul, ConstInt(1), ConstFloat(2.0))
	require.NoError(t, err)
	assert.Equal(t, TypeFloat, b.ResultType(), "mixed arithmetic promotes to float")

	_, err = NewBinary(OpAdd, ConstBool(true), ConstInt(1))
	assert.Error(t, err, "bool operands are rejected at construction")
}

func TestNewCompare(t *testing.T) {
	c, err := NewCompare(CmpLT, ConstInt(1), ConstFloat(2.0))
	require.NoError(t, err)
	assert.Equal(t, TypeBool, c.ResultType())

	_, err = NewCompare(CmpLT, ConstBool(true), ConstBool(false))
	assert.Error(t, err, "ordering is not defined on bool")

	_, err = NewCompare(CmpEQ, ConstBool(true), ConstBool(false))
	assert.NoError(t, err, "bools compare for equality")
}

func TestNewLogical(t *testing.T) {
	_, err := NewLogical(OpAnd, ConstBool(true), ConstBool(false))
	require.NoError(t, err)

	_, err = NewLogical(OpNot, ConstBool(true))
	require.NoError(t, err)

	_, err = NewLogical(OpNot, ConstBool(true), ConstBool(false))
	assert.Error(t, err, "not takes exactly one operand")

	_, err = NewLogical(OpOr, ConstBool(true))
	assert.Error(t, err, "or needs at least two operands")

	_, err = NewLogical(OpAnd, ConstInt(1), ConstBool(true))
	assert.Error(t, err, "logical operands must be boolean")
}

func TestNewIf(t *testing.T) {
	e, err := NewIf(ConstBool(true), ConstInt(1), ConstInt(2))
	require.NoError(t, err)
	assert.Equal(t, TypeInt, e.ResultType())

	e, err = NewIf(ConstBool(true), ConstInt(1), ConstFloat(2.0))
	require.NoError(t, err)
	assert.Equal(t, TypeFloat, e.ResultType(), "branches widen to float")

	_, err = NewIf(ConstInt(1), ConstInt(1), ConstInt(2))
	assert.Error(t, err, "guard must be bool")

	_, err = NewIf(ConstBool(true), ConstInt(1), ConstBool(false))
	assert.Error(t, err, "incompatible branch types")
}

func TestNewDelay(t *testing.T) {
	d, err := NewDelay(ConstInt(1), Int(0))
	require.NoError(t, err)
	assert.Equal(t, TypeInt, d.ResultType())

	_, err = NewDelay(ConstInt(1), Absent)
	assert.Error(t, err, "delay default must be concrete")

	_, err = NewDelay(ConstInt(1), Bool(true))
	assert.Error(t, err, "default must unify with the inner type")
}

func TestNewConstRejectsAbsent(t *testing.T) {
	_, err := NewConst(Absent)
	assert.Error(t, err)
}

func TestNewCallSignature(t *testing.T) {
	sig := &BuiltinSig{
		Name:   "clip",
		Params: []Type{TypeFloat, TypeFloat},
		Result: TypeFloat,
		Fn: func(args []Value) Value {
			a, _ := AsFloat(args[0])
			b, _ := AsFloat(args[1])
			return Float(min(a, b))
		},
	}

	_, err := NewCall(sig, ConstFloat(1), ConstFloat(2))
	require.NoError(t, err)

	_, err = NewCall(sig, ConstFloat(1))
	assert.Error(t, err, "arity mismatch")

	_, err = NewCall(sig, ConstBool(true), ConstFloat(2))
	assert.Error(t, err, "argument type mismatch")
}

func TestInstantRefsSkipsDelaySubtrees(t *testing.T) {
	x := VarRef("x", TypeInt)
	y := VarRef("y", TypeInt)
	delayed, err := NewDelay(x, Int(0))
	require.NoError(t, err)
	sum, err := NewBinary(OpAdd, delayed, y)
	require.NoError(t, err)

	instant := InstantRefs(sum)
	require.Len(t, instant, 1)
	assert.Equal(t, "y", instant[0].Name)

	all := CollectRefs(sum)
	assert.Len(t, all, 2, "CollectRefs sees through delays")

	assert.True(t, ContainsDelay(sum))
	assert.False(t, ContainsDelay(y))
}

func TestRefResolved(t *testing.T) {
	r := VarRef("x", TypeAny)
	resolved, err := r.Resolved(RefPort, "A.x", TypeInt)
	require.NoError(t, err)
	assert.Equal(t, RefPort, resolved.Kind)
	assert.Equal(t, "A.x", resolved.Name)
	assert.Equal(t, TypeInt, resolved.ResultType())

	typed := VarRef("x", TypeBool)
	_, err = typed.Resolved(RefVar, "x", TypeInt)
	assert.Error(t, err, "declared type must agree with resolution")
}
