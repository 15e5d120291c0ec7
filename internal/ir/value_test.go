package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsAbsent(t *testing.T) {
	assert.True(t, IsAbsent(Absent))
	assert.True(t, IsAbsent(nil), "nil value reads as absence")
	assert.False(t, IsAbsent(Int(0)))
	assert.False(t, IsAbsent(Float(0)))
	assert.False(t, IsAbsent(Bool(false)))
}

func TestTypeOf(t *testing.T) {
	assert.Equal(t, TypeInt, TypeOf(Int(1)))
	assert.Equal(t, TypeFloat, TypeOf(Float(1)))
	assert.Equal(t, TypeBool, TypeOf(Bool(true)))
	assert.Equal(t, TypeAny, TypeOf(Absent))
}

func TestEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b Value
		want bool
	}{
		{"int eq", Int(3), Int(3), true},
		{"int neq", Int(3), Int(4), false},
		{"numeric promotion", Int(1), Float(1.0), true},
		{"float eq", Float(2.5), Float(2.5), true},
		{"bool eq", Bool(true), Bool(true), true},
		{"bool neq", Bool(true), Bool(false), false},
		{"bool vs int", Bool(true), Int(1), false},
		{"absent eq absent", Absent, Absent, true},
		{"absent neq value", Absent, Int(0), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Equal(tt.a, tt.b))
		})
	}
}

func TestAsFloat(t *testing.T) {
	f, ok := AsFloat(Int(4))
	require.True(t, ok)
	assert.Equal(t, 4.0, f)

	f, ok = AsFloat(Float(2.5))
	require.True(t, ok)
	assert.Equal(t, 2.5, f)

	_, ok = AsFloat(Bool(true))
	assert.False(t, ok)
	_, ok = AsFloat(Absent)
	assert.False(t, ok)
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "3", FormatValue(Int(3)))
	assert.Equal(t, "2.5", FormatValue(Float(2.5)))
	assert.Equal(t, "true", FormatValue(Bool(true)))
	assert.Equal(t, "ABSENT", FormatValue(Absent))
	assert.Equal(t, "ABSENT", FormatValue(nil))
}

func TestUnify(t *testing.T) {
	ok, widens := Unify(TypeInt, TypeFloat)
	assert.True(t, ok)
	assert.True(t, widens, "int flows into float with a widening warning")

	ok, _ = Unify(TypeFloat, TypeInt)
	assert.False(t, ok, "float does not narrow into int")

	ok, widens = Unify(TypeInt, TypeInt)
	assert.True(t, ok)
	assert.False(t, widens)

	ok, _ = Unify(TypeAny, TypeBool)
	assert.True(t, ok)
	ok, _ = Unify(TypeBool, TypeAny)
	assert.True(t, ok)

	ok, _ = Unify(TypeInvalid, TypeInt)
	assert.False(t, ok)
}

func TestParseTypeAndMode(t *testing.T) {
	assert.Equal(t, TypeInt, ParseType("int"))
	assert.Equal(t, TypeFloat, ParseType("float"))
	assert.Equal(t, TypeBool, ParseType("bool"))
	assert.Equal(t, TypeAny, ParseType(""))
	assert.Equal(t, TypeInvalid, ParseType("string"))

	assert.Equal(t, ModeStrict, ParseMode("strict"))
	assert.Equal(t, ModeBestEffort, ParseMode("best_effort"))
	assert.Equal(t, ModePragmatic, ParseMode("pragmatic"))
	assert.Equal(t, ModePragmatic, ParseMode("anything-else"))
}
