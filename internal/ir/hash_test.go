package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hashGraph(t *testing.T) *Graph {
	t.Helper()
	g := NewGraph(ModePragmatic)

	node := NewNode("A", KindCore)
	require.NoError(t, node.AddPort(&Port{Name: "out", Direction: Out, Type: TypeInt}))
	require.NoError(t, g.AddNode(node))

	require.NoError(t, g.AddVariable(&Variable{
		Name:   "v",
		Type:   TypeInt,
		Init:   Int(0),
		Policy: &MergePolicy{Op: MergeSum, HeightBound: 2},
	}))

	node.Reactions = append(node.Reactions, &Reaction{
		ID:         "emit",
		Node:       "A",
		OutputPort: "out",
		Output:     ConstInt(3),
	})
	return g
}

func TestGraphHashDeterministic(t *testing.T) {
	h1, err := hashGraph(t).GraphHash()
	require.NoError(t, err)
	h2, err := hashGraph(t).GraphHash()
	require.NoError(t, err)
	assert.Equal(t, h1, h2, "identical graphs hash identically")
	assert.Len(t, h1, 64, "sha-256 hex")
}

func TestGraphHashSensitivity(t *testing.T) {
	base, err := hashGraph(t).GraphHash()
	require.NoError(t, err)

	changed := hashGraph(t)
	changed.Nodes["A"].Reactions[0].Output = ConstInt(4)
	h, err := changed.GraphHash()
	require.NoError(t, err)
	assert.NotEqual(t, base, h, "expression change must change the hash")

	retyped := hashGraph(t)
	retyped.Variables["v"].Init = Float(0)
	h, err = retyped.GraphHash()
	require.NoError(t, err)
	assert.NotEqual(t, base, h, "Int(0) and Float(0) are distinct identities")

	remoded := hashGraph(t)
	remoded.Mode = ModeStrict
	h, err = remoded.GraphHash()
	require.NoError(t, err)
	assert.NotEqual(t, base, h, "compile mode is part of the identity")
}

func TestMarshalCanonicalKeyOrderAndEscaping(t *testing.T) {
	b, err := MarshalCanonical(map[string]any{
		"b":  int64(1),
		"a":  "x<y&z",
		"aa": true,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"a":"x<y&z","aa":true,"b":1}`, string(b),
		"sorted keys, no HTML escaping")
}

func TestMarshalCanonicalRejectsUnsupported(t *testing.T) {
	_, err := MarshalCanonical(nil)
	assert.Error(t, err)
	_, err = MarshalCanonical(3.14)
	assert.Error(t, err, "raw floats never enter canonical JSON")
}
