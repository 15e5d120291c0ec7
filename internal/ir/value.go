package ir

import (
	"fmt"
	"strconv"
)

// Value is a sealed interface over the runtime value domain.
// Only Int, Float, Bool and the ABSENT sentinel implement it.
//
// ABSENT is a first-class runtime value: a port of element type T carries
// T ∪ {ABSENT}. The analysis-only ⊥ marker is NOT a Value - it lives in
// internal/expr as part of the three-valued domain and must never reach
// the scheduler.
type Value interface {
	isValue() // Sealed - only these types implement it
}

// Int is a 64-bit integer value.
type Int int64

func (Int) isValue() {}

// Float is a 64-bit floating point value.
type Float float64

func (Float) isValue() {}

// Bool is a boolean value.
type Bool bool

func (Bool) isValue() {}

// absentValue is the singleton behind Absent.
type absentValue struct{}

func (absentValue) isValue() {}

// Absent is the "no value this tick" sentinel. Readers must handle it;
// arithmetic over it propagates it (see internal/expr).
var Absent Value = absentValue{}

// IsAbsent reports whether v is the ABSENT sentinel.
// A nil Value is treated as ABSENT: unset environment slots read as absence.
func IsAbsent(v Value) bool {
	if v == nil {
		return true
	}
	_, ok := v.(absentValue)
	return ok
}

// TypeOf returns the element type of a concrete value.
// ABSENT has no element type and maps to TypeAny.
func TypeOf(v Value) Type {
	switch v.(type) {
	case Int:
		return TypeInt
	case Float:
		return TypeFloat
	case Bool:
		return TypeBool
	default:
		return TypeAny
	}
}

// Equal compares two values for semantic equality.
// Int and Float compare numerically, so Int(1) == Float(1.0).
// ABSENT equals only ABSENT.
func Equal(a, b Value) bool {
	if IsAbsent(a) || IsAbsent(b) {
		return IsAbsent(a) && IsAbsent(b)
	}
	af, aNum := AsFloat(a)
	bf, bNum := AsFloat(b)
	if aNum && bNum {
		return af == bf
	}
	ab, aOK := a.(Bool)
	bb, bOK := b.(Bool)
	if aOK && bOK {
		return ab == bb
	}
	return false
}

// AsFloat converts a numeric value to float64.
// Returns false for Bool and ABSENT.
func AsFloat(v Value) (float64, bool) {
	switch val := v.(type) {
	case Int:
		return float64(val), true
	case Float:
		return float64(val), true
	default:
		return 0, false
	}
}

// FormatValue renders a value for diagnostics and traces.
func FormatValue(v Value) string {
	switch val := v.(type) {
	case nil:
		return "ABSENT"
	case absentValue:
		return "ABSENT"
	case Int:
		return strconv.FormatInt(int64(val), 10)
	case Float:
		return strconv.FormatFloat(float64(val), 'g', -1, 64)
	case Bool:
		return strconv.FormatBool(bool(val))
	default:
		return fmt.Sprintf("%v", v)
	}
}
