package compiler

import "github.com/OdinManiac/regelum/internal/ir"

// GraphDescriptor is the authored form of a pipeline, as submitted by
// the surface layer or decoded from CUE. The builder turns it into a
// frozen ir.Graph with every reference resolved.
type GraphDescriptor struct {
	Nodes     []NodeDescriptor
	Variables []VariableDescriptor
	Edges     []EdgeDescriptor

	// AutoWire connects unwired inputs to same-named outputs before the
	// structural pass runs. Ambiguous matches are an error in strict
	// mode and a skipped warning otherwise.
	AutoWire bool
}

// NodeDescriptor enumerates a node's ports, reactions and contract.
type NodeDescriptor struct {
	ID        ir.NodeID
	Kind      ir.NodeKind
	Ports     []PortDescriptor
	Reactions []ReactionDescriptor
	States    []VariableDescriptor // node-scoped; global name becomes "node.name"
	Contract  *ir.Contract
	Stepper   ir.ContinuousStepper // continuous wrappers only
}

// PortDescriptor declares one port.
type PortDescriptor struct {
	Name      string
	Direction ir.Direction
	Type      ir.Type
	Default   ir.Value // nil for none
	Rate      int      // 0 means event-driven
}

// WriteDescriptor pairs a variable with its write expression.
// Order in the slice is the deterministic evaluation order.
type WriteDescriptor struct {
	Variable string
	Expr     ir.Expr
}

// ReactionDescriptor declares one reaction. Core reactions carry
// expressions; Ext/Raw reactions carry a Body plus explicit access sets
// (the compiler cannot see inside opaque code).
type ReactionDescriptor struct {
	ID         string
	OutputPort string
	Output     ir.Expr
	Writes     []WriteDescriptor

	Rank          ir.Expr
	MaxMicrosteps int

	Contract *ir.Contract
	Body     ir.ReactionBody

	// ReadRefs and WriteRefs are the declared access sets of an opaque
	// Body, as surface names resolved like expression references.
	ReadRefs  []string
	WriteRefs []string
}

// VariableDescriptor declares a shared variable or node state.
type VariableDescriptor struct {
	Name   string
	Type   ir.Type
	Init   ir.Value // nil for uninitialized
	Policy string   // "error" (default), "lww", "sum", "max", "min"

	// Priority orders producers for LWW; later entries win.
	Priority []ir.NodeID
	// Height bounds the lattice height of a monotone policy.
	Height int
}

// EdgeDescriptor declares an explicit output -> input connection.
type EdgeDescriptor struct {
	SrcNode ir.NodeID
	SrcPort string
	DstNode ir.NodeID
	DstPort string
}
