package compiler_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OdinManiac/regelum/internal/compiler"
	"github.com/OdinManiac/regelum/internal/ir"
	"github.com/OdinManiac/regelum/internal/testutil"
)

func TestNonZenoMissingRank(t *testing.T) {
	desc := testutil.RankedDiverging()
	desc.Nodes[0].Reactions[0].Rank = nil
	desc.Nodes[0].Reactions[0].MaxMicrosteps = 0

	result := compile(t, desc, ir.ModePragmatic)
	assert.False(t, result.OK)
	assert.Contains(t, codes(result), "ZEN001")
}

func TestNonZenoNonIntegerRankFailsClosed(t *testing.T) {
	desc := testutil.RankedDiverging()
	desc.Nodes[0].Reactions[0].Rank = ir.ConstFloat(1.5)

	result := compile(t, desc, ir.ModePragmatic)
	assert.False(t, result.OK)
	assert.Contains(t, codes(result), "ZEN001",
		"only integer ranks are known well-founded")
}

func TestNonZenoRankWithoutBudget(t *testing.T) {
	desc := testutil.RankedDiverging()
	desc.Nodes[0].Reactions[0].MaxMicrosteps = 0

	result := compile(t, desc, ir.ModePragmatic)
	assert.False(t, result.OK)
	assert.Contains(t, codes(result), "ZEN001")
}

func TestNonZenoDelayedSelfReadNeedsNoRank(t *testing.T) {
	result := compile(t, testutil.DelayCounter(), ir.ModePragmatic)
	assert.NotContains(t, codes(result), "ZEN001")
}

func TestSDFInconsistentRates(t *testing.T) {
	// P produces 1 token, Q consumes 3: as a bare pair this system was
	// specified inconsistent - reject it.
	result := compile(t, sdfTriangle(1, 3), ir.ModePragmatic)
	assert.False(t, result.OK)
	assert.Contains(t, codes(result), "SDF001")
}

func TestSDFBalancedVector(t *testing.T) {
	result := compile(t, testutil.SDFPair(3, 1), ir.ModePragmatic)
	assert.True(t, result.OK)
	require.NotNil(t, result.Firings)
	assert.Equal(t, 1, result.Firings["P"])
	assert.Equal(t, 3, result.Firings["Q"], "Q fires three times per macro-period")
}

func TestSDFUniformRatesNoWarning(t *testing.T) {
	result := compile(t, testutil.SDFPair(2, 2), ir.ModePragmatic)
	assert.True(t, result.OK)
	assert.Empty(t, codes(result))
	assert.Equal(t, 1, result.Firings["P"])
	assert.Equal(t, 1, result.Firings["Q"])
}

func TestSDFMultiRateWarning(t *testing.T) {
	result := compile(t, testutil.SDFPair(3, 1), ir.ModePragmatic)
	assert.True(t, result.OK)
	sev, found := severityOf(result, "SDF001")
	require.True(t, found)
	assert.Equal(t, compiler.SeverityWarning, sev,
		"consistent multi-rate vectors warn about buffer growth")
}

func TestSDFEventDrivenGraphUntouched(t *testing.T) {
	result := compile(t, testutil.Chain(), ir.ModePragmatic)
	assert.True(t, result.OK)
	assert.Empty(t, result.Firings)
}

// sdfTriangle wires P to Q along two paths, one direct and one through an
// intermediate node M, so the two paths can constrain the firing ratio
// inconsistently.
func sdfTriangle(prodRate, consRate int) *compiler.GraphDescriptor {
	return &compiler.GraphDescriptor{
		Nodes: []compiler.NodeDescriptor{
			{
				ID: "P",
				Ports: []compiler.PortDescriptor{
					{Name: "a", Direction: ir.Out, Type: ir.TypeInt, Rate: prodRate},
					{Name: "b", Direction: ir.Out, Type: ir.TypeInt, Rate: 1},
				},
				Reactions: []compiler.ReactionDescriptor{
					{ID: "emitA", OutputPort: "a", Output: ir.ConstInt(1)},
					{ID: "emitB", OutputPort: "b", Output: ir.ConstInt(1)},
				},
			},
			{
				ID: "M",
				Ports: []compiler.PortDescriptor{
					{Name: "in", Direction: ir.In, Type: ir.TypeInt, Rate: 1},
					{Name: "out", Direction: ir.Out, Type: ir.TypeInt, Rate: 1},
				},
				Reactions: []compiler.ReactionDescriptor{
					{ID: "fwd", OutputPort: "out", Output: ir.VarRef("in", ir.TypeAny)},
				},
			},
			{
				ID: "Q",
				Ports: []compiler.PortDescriptor{
					{Name: "inA", Direction: ir.In, Type: ir.TypeInt, Rate: consRate},
					{Name: "inB", Direction: ir.In, Type: ir.TypeInt, Rate: 1},
					{Name: "out", Direction: ir.Out, Type: ir.TypeInt},
				},
				Reactions: []compiler.ReactionDescriptor{
					{ID: "use", OutputPort: "out", Output: ir.VarRef("inA", ir.TypeAny)},
				},
			},
		},
		Edges: []compiler.EdgeDescriptor{
			{SrcNode: "P", SrcPort: "a", DstNode: "Q", DstPort: "inA"},
			{SrcNode: "P", SrcPort: "b", DstNode: "M", DstPort: "in"},
			{SrcNode: "M", SrcPort: "out", DstNode: "Q", DstPort: "inB"},
		},
	}
}
