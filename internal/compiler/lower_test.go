package compiler_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OdinManiac/regelum/internal/compiler"
	"github.com/OdinManiac/regelum/internal/ir"
	"github.com/OdinManiac/regelum/internal/testutil"
)

func lowered(t *testing.T, desc *compiler.GraphDescriptor) *ir.Graph {
	t.Helper()
	g, err := compiler.Build(desc, ir.ModePragmatic, compiler.NewSink(ir.ModePragmatic))
	require.NoError(t, err)
	require.NoError(t, compiler.LowerDelays(g))
	return g
}

func TestLowerDelayAllocatesHiddenState(t *testing.T) {
	g := lowered(t, testutil.DelayCounter())

	hidden, ok := g.Variables["R.__delay_count_0"]
	require.True(t, ok, "hidden state keyed by (reaction, occurrence)")
	assert.True(t, hidden.IsDelayBuffer)
	assert.True(t, hidden.HasInit())
	assert.Equal(t, ir.Int(0), hidden.Init)
	assert.Equal(t, ir.TypeInt, hidden.Type)
	assert.Equal(t, ir.NodeID("R"), hidden.Owner)
}

func TestLowerRemovesEveryDelayNode(t *testing.T) {
	g := lowered(t, testutil.DelayCounter())

	g.Reactions(func(_ *ir.Node, r *ir.Reaction) {
		if r.Output != nil {
			assert.False(t, ir.ContainsDelay(r.Output))
		}
		for _, name := range r.WriteOrder {
			assert.False(t, ir.ContainsDelay(r.Writes[name]))
		}
		for _, w := range r.PostCommit {
			assert.False(t, ir.ContainsDelay(w.Expr))
		}
	})
}

func TestLowerRecordsPostCommitWrite(t *testing.T) {
	g := lowered(t, testutil.DelayCounter())

	r := g.Nodes["R"].Reactions[0]
	require.Len(t, r.PostCommit, 1)
	assert.Equal(t, "R.__delay_count_0", r.PostCommit[0].Variable)

	// The deferred expression is the original inner tree: x + 1.
	refs := ir.CollectRefs(r.PostCommit[0].Expr)
	require.Len(t, refs, 1)
	assert.Equal(t, "x", refs[0].Name)
}

func TestLowerRedirectsReadsToHiddenState(t *testing.T) {
	g := lowered(t, testutil.DelayCounter())

	r := g.Nodes["R"].Reactions[0]
	// The write to x now reads only the hidden delay buffer, so the
	// instantaneous self-dependency is gone.
	var readsDelay, readsX bool
	for _, ref := range r.Reads {
		if ref.Name == "R.__delay_count_0" {
			readsDelay = true
		}
		if ref.Name == "x" {
			readsX = true
		}
	}
	assert.True(t, readsDelay)
	assert.False(t, readsX, "the delayed read is not an instantaneous read")
}

func TestLowerNestedDelays(t *testing.T) {
	inner, err := ir.NewDelay(ir.VarRef("x", ir.TypeAny), ir.Int(0))
	require.NoError(t, err)
	outer, err := ir.NewDelay(inner, ir.Int(1))
	require.NoError(t, err)

	desc := &compiler.GraphDescriptor{
		Variables: []compiler.VariableDescriptor{
			{Name: "x", Type: ir.TypeInt, Init: ir.Int(0), Policy: "error"},
			{Name: "y", Type: ir.TypeInt, Init: ir.Int(0), Policy: "error"},
		},
		Nodes: []compiler.NodeDescriptor{
			{
				ID: "N",
				Reactions: []compiler.ReactionDescriptor{
					{ID: "r", Writes: []compiler.WriteDescriptor{{Variable: "y", Expr: outer}}},
				},
			},
		},
	}
	g := lowered(t, desc)

	r := g.Nodes["N"].Reactions[0]
	require.Len(t, r.PostCommit, 2, "each delay occurrence gets its own state")
	assert.Len(t, g.VarOrder, 4)
}

func TestLowerMarksDelayBackedOutputPort(t *testing.T) {
	delayed, err := ir.NewDelay(ir.VarRef("x", ir.TypeAny), ir.Int(0))
	require.NoError(t, err)
	desc := &compiler.GraphDescriptor{
		Nodes: []compiler.NodeDescriptor{
			{
				ID: "N",
				Ports: []compiler.PortDescriptor{
					{Name: "x", Direction: ir.In, Type: ir.TypeInt, Default: ir.Int(0)},
					{Name: "out", Direction: ir.Out, Type: ir.TypeInt},
				},
				Reactions: []compiler.ReactionDescriptor{
					{ID: "hold", OutputPort: "out", Output: delayed},
				},
			},
		},
	}
	g := lowered(t, desc)

	out, ok := g.Nodes["N"].Output("out")
	require.True(t, ok)
	assert.Equal(t, "N.__delay_hold_0", out.DelayState,
		"a fully delayed output re-exposes its hidden state")
}
