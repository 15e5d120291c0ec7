package compiler_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OdinManiac/regelum/internal/compiler"
	"github.com/OdinManiac/regelum/internal/ir"
	"github.com/OdinManiac/regelum/internal/testutil"
)

func build(t *testing.T, desc *compiler.GraphDescriptor, mode ir.Mode) (*ir.Graph, error) {
	t.Helper()
	return compiler.Build(desc, mode, compiler.NewSink(mode))
}

func TestBuildChain(t *testing.T) {
	g, err := build(t, testutil.Chain(), ir.ModePragmatic)
	require.NoError(t, err)

	assert.Len(t, g.NodeOrder, 3)
	assert.Len(t, g.Edges, 2)

	b := g.Nodes["B"]
	require.Len(t, b.Reactions, 1)
	r := b.Reactions[0]
	assert.Equal(t, "B:inc", r.Key())
	assert.Equal(t, "y", r.OutputPort)
	require.NotNil(t, r.Output)
	assert.Equal(t, ir.TypeInt, r.Output.ResultType())
}

func TestBuildResolvesReferences(t *testing.T) {
	g, err := build(t, testutil.Chain(), ir.ModePragmatic)
	require.NoError(t, err)

	// B's expression reference "x" resolved to the input port key.
	r := g.Nodes["B"].Reactions[0]
	refs := ir.CollectRefs(r.Output)
	require.Len(t, refs, 1)
	assert.Equal(t, ir.RefPort, refs[0].Kind)
	assert.Equal(t, "B.x", refs[0].Name)
}

func TestBuildDuplicateNode(t *testing.T) {
	desc := testutil.Chain()
	desc.Nodes = append(desc.Nodes, compiler.NodeDescriptor{ID: "A"})
	_, err := build(t, desc, ir.ModePragmatic)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate node")
}

func TestBuildUnknownPortReference(t *testing.T) {
	desc := testutil.Chain()
	desc.Nodes[1].Reactions[0].Output = ir.VarRef("nonexistent", ir.TypeAny)
	_, err := build(t, desc, ir.ModePragmatic)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown reference")
}

func TestBuildUnknownEdgeEndpoint(t *testing.T) {
	desc := testutil.Chain()
	desc.Edges = append(desc.Edges, compiler.EdgeDescriptor{
		SrcNode: "A", SrcPort: "x", DstNode: "Z", DstPort: "in",
	})
	_, err := build(t, desc, ir.ModePragmatic)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown destination node")
}

func TestBuildTypeMismatch(t *testing.T) {
	desc := testutil.Chain()
	// Output expression bool on an int port.
	desc.Nodes[0].Reactions[0].Output = ir.ConstBool(true)
	_, err := build(t, desc, ir.ModePragmatic)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not unify")
}

func TestBuildWriteTypeMismatch(t *testing.T) {
	desc := testutil.MultiwriterSum()
	desc.Nodes[0].Reactions[0].Writes[0].Expr = ir.ConstBool(true)
	_, err := build(t, desc, ir.ModePragmatic)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "variable is int")
}

func TestBuildStateScoping(t *testing.T) {
	desc := &compiler.GraphDescriptor{
		Nodes: []compiler.NodeDescriptor{
			{
				ID: "N",
				States: []compiler.VariableDescriptor{
					{Name: "s", Type: ir.TypeInt, Init: ir.Int(0), Policy: "error"},
				},
				Reactions: []compiler.ReactionDescriptor{
					{ID: "w", Writes: []compiler.WriteDescriptor{{Variable: "s", Expr: ir.ConstInt(1)}}},
				},
			},
		},
	}
	g, err := build(t, desc, ir.ModePragmatic)
	require.NoError(t, err)

	v, ok := g.Variables["N.s"]
	require.True(t, ok, "node state registers under its global name")
	assert.Equal(t, ir.NodeID("N"), v.Owner)
	assert.Equal(t, []string{"N.s"}, g.Nodes["N"].Reactions[0].WriteOrder)
}

func TestBuildAutoWire(t *testing.T) {
	desc := testutil.Chain()
	desc.Edges = nil
	desc.AutoWire = true
	// B's input "x" matches A's output, C's input "y" matches B's.
	g, err := build(t, desc, ir.ModePragmatic)
	require.NoError(t, err)
	assert.Len(t, g.Edges, 2, "both hops auto-wire by port name")
}

func TestBuildAutoWireSelfLoop(t *testing.T) {
	// A node's own output is a legal single-match candidate for its
	// input; the feedback edge wires and causality adjudicates it. Here
	// the loop is admissible because the output is delay-backed.
	delayed, err := ir.NewDelay(ir.VarRef("x", ir.TypeAny), ir.Int(0))
	require.NoError(t, err)
	desc := &compiler.GraphDescriptor{
		AutoWire: true,
		Nodes: []compiler.NodeDescriptor{
			{
				ID: "F",
				Ports: []compiler.PortDescriptor{
					{Name: "x", Direction: ir.In, Type: ir.TypeInt},
					{Name: "x", Direction: ir.Out, Type: ir.TypeInt},
				},
				Reactions: []compiler.ReactionDescriptor{
					{ID: "hold", OutputPort: "x", Output: delayed},
				},
			},
		},
	}

	g, err := build(t, desc, ir.ModePragmatic)
	require.NoError(t, err)
	require.Len(t, g.Edges, 1)
	assert.Equal(t, "F.x", g.Edges[0].SrcKey())
	assert.Equal(t, "F.x", g.Edges[0].DstKey())

	result, err := compiler.Compile(desc, ir.ModePragmatic)
	require.NoError(t, err)
	assert.True(t, result.OK, "diagnostics: %v", result.Diagnostics)
}

func TestBuildAutoWireAmbiguityStrict(t *testing.T) {
	desc := testutil.Chain()
	desc.Edges = nil
	desc.AutoWire = true
	// A second node with an output named "x" makes B's input ambiguous.
	desc.Nodes = append(desc.Nodes, compiler.NodeDescriptor{
		ID: "A2",
		Ports: []compiler.PortDescriptor{
			{Name: "x", Direction: ir.Out, Type: ir.TypeInt},
		},
		Reactions: []compiler.ReactionDescriptor{
			{ID: "emit", OutputPort: "x", Output: ir.ConstInt(9)},
		},
	})

	_, err := build(t, desc, ir.ModeStrict)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ambiguous auto-wire")

	// Non-strict modes skip the ambiguous input with a warning; the
	// structural pass then reports it as unconnected.
	sink := compiler.NewSink(ir.ModePragmatic)
	_, err = compiler.Build(desc, ir.ModePragmatic, sink)
	require.NoError(t, err)
	assert.NotEmpty(t, sink.Diagnostics())
}
