package compiler_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OdinManiac/regelum/internal/compiler"
	"github.com/OdinManiac/regelum/internal/ir"
	"github.com/OdinManiac/regelum/internal/testutil"
)

// monotoneCycle builds the classic constructive feedback pair:
//
//	R1: a := if b then 1 else 1
//	R2: b := a == 1
//
// The conditional's branches agree, so a is determined under a ⊥
// guard, which then determines b; the fixed point covers every signal.
func monotoneCycle() *compiler.GraphDescriptor {
	condA, err := ir.NewIf(ir.VarRef("b", ir.TypeAny), ir.ConstInt(1), ir.ConstInt(1))
	if err != nil {
		panic(err)
	}
	eqB, err := ir.NewCompare(ir.CmpEQ, ir.VarRef("a", ir.TypeAny), ir.ConstInt(1))
	if err != nil {
		panic(err)
	}
	return &compiler.GraphDescriptor{
		Variables: []compiler.VariableDescriptor{
			{Name: "a", Type: ir.TypeInt, Init: ir.Int(0), Policy: "max", Height: 3},
			{Name: "b", Type: ir.TypeBool, Init: ir.Bool(false), Policy: "max", Height: 3},
		},
		Nodes: []compiler.NodeDescriptor{
			{
				ID: "R1",
				Reactions: []compiler.ReactionDescriptor{
					{ID: "a", Writes: []compiler.WriteDescriptor{{Variable: "a", Expr: condA}}},
				},
			},
			{
				ID: "R2",
				Reactions: []compiler.ReactionDescriptor{
					{ID: "b", Writes: []compiler.WriteDescriptor{{Variable: "b", Expr: eqB}}},
				},
			},
		},
	}
}

func TestCausalityAcceptsConstructiveCycle(t *testing.T) {
	result := compile(t, monotoneCycle(), ir.ModePragmatic)
	for _, code := range codes(result) {
		assert.NotContains(t, code, "CAUS")
	}

	// Both reactions land in one cyclic schedule group.
	require.NotNil(t, result.Schedule)
	var cyclic int
	for _, group := range result.Schedule.Levels {
		if group.Cyclic {
			cyclic++
			assert.Len(t, group.Reactions, 2)
		}
	}
	assert.Equal(t, 1, cyclic)
}

func TestCausalityRejectsNonConstructiveCycle(t *testing.T) {
	result := compile(t, testutil.NonConstructiveCycle(), ir.ModePragmatic)
	assert.False(t, result.OK)
	assert.Contains(t, codes(result), "CAUS003")
}

func TestCausalityRejectsNonMonotonePolicyInCycle(t *testing.T) {
	desc := testutil.NonConstructiveCycle()
	desc.Variables[0].Policy = "error"
	desc.Variables[1].Policy = "error"

	result := compile(t, desc, ir.ModePragmatic)
	assert.False(t, result.OK)
	assert.Contains(t, codes(result), "CAUS004")
	assert.NotContains(t, codes(result), "CAUS003",
		"non-monotone cycles never reach the constructive check")
}

func TestCausalityRejectsRawInCycle(t *testing.T) {
	desc := testutil.NonConstructiveCycle()
	desc.Nodes[0].Kind = ir.KindRaw
	desc.Nodes[0].Reactions[0].Body = func(ir.ReactionContext) error { return nil }
	desc.Nodes[0].Reactions[0].Writes = nil
	desc.Nodes[0].Reactions[0].ReadRefs = []string{"b"}
	desc.Nodes[0].Reactions[0].WriteRefs = []string{"a"}

	result := compile(t, desc, ir.ModePragmatic)
	assert.False(t, result.OK)
	assert.Contains(t, codes(result), "CAUS001")
}

func TestCausalityRejectsExtWithoutMonotone(t *testing.T) {
	desc := testutil.NonConstructiveCycle()
	desc.Nodes[0].Kind = ir.KindExt
	desc.Nodes[0].Reactions[0].Body = func(ir.ReactionContext) error { return nil }
	desc.Nodes[0].Reactions[0].Writes = nil
	desc.Nodes[0].Reactions[0].ReadRefs = []string{"b"}
	desc.Nodes[0].Reactions[0].WriteRefs = []string{"a"}
	desc.Nodes[0].Reactions[0].Contract = &ir.Contract{Deterministic: true}

	result := compile(t, desc, ir.ModePragmatic)
	assert.False(t, result.OK)
	assert.Contains(t, codes(result), "CAUS002")
}

func TestCausalityExtWithMonotoneContractProceeds(t *testing.T) {
	desc := testutil.NonConstructiveCycle()
	desc.Nodes[0].Kind = ir.KindExt
	desc.Nodes[0].Reactions[0].Body = func(ir.ReactionContext) error { return nil }
	desc.Nodes[0].Reactions[0].Writes = nil
	desc.Nodes[0].Reactions[0].ReadRefs = []string{"b"}
	desc.Nodes[0].Reactions[0].WriteRefs = []string{"a"}
	desc.Nodes[0].Reactions[0].Contract = &ir.Contract{Deterministic: true, Monotone: true}

	result := compile(t, desc, ir.ModePragmatic)
	assert.NotContains(t, codes(result), "CAUS001")
	assert.NotContains(t, codes(result), "CAUS002")
}

func TestCausalityDelayBreaksCycle(t *testing.T) {
	result := compile(t, testutil.DelayCounter(), ir.ModePragmatic)
	assert.True(t, result.OK)
	assert.Empty(t, codes(result), "the delayed self-feed is not an SCC")

	require.NotNil(t, result.Schedule)
	for _, group := range result.Schedule.Levels {
		assert.False(t, group.Cyclic)
	}
}

func TestCausalityNoInstantLoopContractSeversEdges(t *testing.T) {
	desc := testutil.NonConstructiveCycle()
	desc.Nodes[0].Reactions[0].Contract = &ir.Contract{NoInstantLoop: true}

	result := compile(t, desc, ir.ModePragmatic)
	for _, code := range codes(result) {
		assert.NotContains(t, code, "CAUS")
	}
}

func TestCausalityRankedCycleSkipsConstructiveCheck(t *testing.T) {
	result := compile(t, testutil.RankedDiverging(), ir.ModePragmatic)
	assert.True(t, result.OK, "ranked reactions defer to the runtime watchdog")
	assert.Empty(t, codes(result))
}
