package ir

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intent(producer string, v Value) Intent {
	return Intent{Variable: "v", Producer: NodeID(producer), Value: v}
}

func TestErrorPolicy(t *testing.T) {
	p := ErrorPolicy{}

	v, err := p.Merge("v", []Intent{intent("a", Int(3))})
	require.NoError(t, err)
	assert.Equal(t, Int(3), v)

	v, err = p.Merge("v", nil)
	require.NoError(t, err)
	assert.True(t, IsAbsent(v), "no intents means no value this tick")

	_, err = p.Merge("v", []Intent{intent("a", Int(1)), intent("b", Int(2))})
	require.Error(t, err)
	var wpe *WritePolicyError
	require.True(t, errors.As(err, &wpe))
	assert.Equal(t, "v", wpe.Variable)
	assert.Equal(t, []NodeID{"a", "b"}, wpe.Producers)
}

func TestErrorPolicyIgnoresAbsentIntents(t *testing.T) {
	p := ErrorPolicy{}
	v, err := p.Merge("v", []Intent{intent("a", Absent), intent("b", Int(2))})
	require.NoError(t, err, "ABSENT intents do not count as writers")
	assert.Equal(t, Int(2), v)
}

func TestLWWPolicyPriority(t *testing.T) {
	p := &LWWPolicy{Priority: []NodeID{"low", "high"}}

	v, err := p.Merge("v", []Intent{intent("high", Int(10)), intent("low", Int(1))})
	require.NoError(t, err)
	assert.Equal(t, Int(10), v, "later in the priority list wins")

	// Unlisted producers rank lowest; among equals the last proposal
	// wins, which is deterministic under the fixed schedule.
	v, err = p.Merge("v", []Intent{intent("x", Int(1)), intent("y", Int(2))})
	require.NoError(t, err)
	assert.Equal(t, Int(2), v)
}

func TestLWWPolicyHasTies(t *testing.T) {
	p := &LWWPolicy{Priority: []NodeID{"a"}}
	assert.True(t, p.HasTies([]NodeID{"x", "y"}), "two unlisted producers tie")
	assert.False(t, p.HasTies([]NodeID{"a", "x"}))

	total := &LWWPolicy{Priority: []NodeID{"a", "b"}}
	assert.False(t, total.HasTies([]NodeID{"a", "b"}))
}

func TestMergePolicySum(t *testing.T) {
	p := &MergePolicy{Op: MergeSum, HeightBound: 4}
	require.True(t, p.Monotone())
	assert.Equal(t, 4, p.Height())

	v, err := p.Merge("v", []Intent{intent("a", Int(2)), intent("b", Int(5))})
	require.NoError(t, err)
	assert.Equal(t, Int(7), v)

	// Commutativity: permuted order resolves identically.
	v2, err := p.Merge("v", []Intent{intent("b", Int(5)), intent("a", Int(2))})
	require.NoError(t, err)
	assert.Equal(t, v, v2)
}

func TestMergePolicyAbsentIsIdentity(t *testing.T) {
	p := &MergePolicy{Op: MergeSum}
	v, err := p.Merge("v", []Intent{intent("a", Int(2)), intent("b", Absent), intent("c", Int(5))})
	require.NoError(t, err)
	assert.Equal(t, Int(7), v)

	v, err = p.Merge("v", []Intent{intent("a", Absent)})
	require.NoError(t, err)
	assert.True(t, IsAbsent(v))
}

func TestMergePolicyMaxMinAndFloats(t *testing.T) {
	maxP := &MergePolicy{Op: MergeMax}
	v, err := maxP.Merge("v", []Intent{intent("a", Int(2)), intent("b", Int(5))})
	require.NoError(t, err)
	assert.Equal(t, Int(5), v)

	minP := &MergePolicy{Op: MergeMin}
	v, err = minP.Merge("v", []Intent{intent("a", Float(2.5)), intent("b", Int(5))})
	require.NoError(t, err)
	assert.Equal(t, Float(2.5), v, "mixed numerics merge as float")

	_, err = maxP.Merge("v", []Intent{intent("a", Bool(true)), intent("b", Int(1))})
	assert.Error(t, err, "non-numeric merge is rejected")
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("", nil, 0)
	require.NoError(t, err)
	assert.Equal(t, "error", p.Name())

	p, err = ParsePolicy("lww", []NodeID{"a"}, 0)
	require.NoError(t, err)
	assert.Equal(t, "lww", p.Name())
	assert.False(t, p.Monotone())

	p, err = ParsePolicy("sum", nil, 3)
	require.NoError(t, err)
	assert.Equal(t, "sum", p.Name())
	assert.True(t, p.Monotone())
	assert.Equal(t, 3, p.Height())

	_, err = ParsePolicy("vote", nil, 0)
	assert.Error(t, err)
}
