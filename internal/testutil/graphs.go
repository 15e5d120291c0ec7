// Package testutil provides deterministic graph descriptors shared by
// compiler, engine and harness tests.
package testutil

import (
	"github.com/OdinManiac/regelum/internal/compiler"
	"github.com/OdinManiac/regelum/internal/ir"
)

// Chain builds the A -> B -> C pipeline: A emits the constant 3, B adds
// one, C doubles. After one tick x=3, y=4, z=8.
func Chain() *compiler.GraphDescriptor {
	return &compiler.GraphDescriptor{
		Nodes: []compiler.NodeDescriptor{
			{
				ID: "A",
				Ports: []compiler.PortDescriptor{
					{Name: "x", Direction: ir.Out, Type: ir.TypeInt},
				},
				Reactions: []compiler.ReactionDescriptor{
					{ID: "emit", OutputPort: "x", Output: ir.ConstInt(3)},
				},
			},
			{
				ID: "B",
				Ports: []compiler.PortDescriptor{
					{Name: "x", Direction: ir.In, Type: ir.TypeInt},
					{Name: "y", Direction: ir.Out, Type: ir.TypeInt},
				},
				Reactions: []compiler.ReactionDescriptor{
					{ID: "inc", OutputPort: "y", Output: add(ref("x"), ir.ConstInt(1))},
				},
			},
			{
				ID: "C",
				Ports: []compiler.PortDescriptor{
					{Name: "y", Direction: ir.In, Type: ir.TypeInt},
					{Name: "z", Direction: ir.Out, Type: ir.TypeInt},
				},
				Reactions: []compiler.ReactionDescriptor{
					{ID: "dbl", OutputPort: "z", Output: mul(ref("y"), ir.ConstInt(2))},
				},
			},
		},
		Edges: []compiler.EdgeDescriptor{
			{SrcNode: "A", SrcPort: "x", DstNode: "B", DstPort: "x"},
			{SrcNode: "B", SrcPort: "y", DstNode: "C", DstPort: "y"},
		},
	}
}

// MultiwriterSum builds two reactions writing +2 and +5 into a shared
// sum variable initialized to zero.
func MultiwriterSum() *compiler.GraphDescriptor {
	return &compiler.GraphDescriptor{
		Variables: []compiler.VariableDescriptor{
			{Name: "v", Type: ir.TypeInt, Init: ir.Int(0), Policy: "sum", Height: 4},
		},
		Nodes: []compiler.NodeDescriptor{
			{
				ID: "P1",
				Reactions: []compiler.ReactionDescriptor{
					{ID: "w", Writes: []compiler.WriteDescriptor{{Variable: "v", Expr: ir.ConstInt(2)}}},
				},
			},
			{
				ID: "P2",
				Reactions: []compiler.ReactionDescriptor{
					{ID: "w", Writes: []compiler.WriteDescriptor{{Variable: "v", Expr: ir.ConstInt(5)}}},
				},
			},
		},
	}
}

// ErrorPolicyConflict builds two writers against an error-policy
// variable; the write-conflict pass must reject it with WRITE001.
func ErrorPolicyConflict() *compiler.GraphDescriptor {
	desc := MultiwriterSum()
	desc.Variables[0] = compiler.VariableDescriptor{
		Name: "v", Type: ir.TypeInt, Init: ir.Int(0), Policy: "error",
	}
	return desc
}

// DelayCounter builds the x := Delay(x + 1, 0) self-feed: the delay
// breaks the instantaneous cycle, so no SCC survives causality, and the
// committed value counts ticks.
func DelayCounter() *compiler.GraphDescriptor {
	delayed, err := ir.NewDelay(add(ref("x"), ir.ConstInt(1)), ir.Int(0))
	if err != nil {
		panic(err)
	}
	return &compiler.GraphDescriptor{
		Variables: []compiler.VariableDescriptor{
			{Name: "x", Type: ir.TypeInt, Init: ir.Int(0), Policy: "error"},
		},
		Nodes: []compiler.NodeDescriptor{
			{
				ID: "R",
				Reactions: []compiler.ReactionDescriptor{
					{ID: "count", Writes: []compiler.WriteDescriptor{{Variable: "x", Expr: delayed}}},
				},
			},
		},
	}
}

// NonConstructiveCycle builds the classic rejection case:
//
//	R1: a := if b then 0 else 1
//	R2: b := a == 1
//
// No three-valued fixed point determines a and b, so causality must
// emit CAUS003.
func NonConstructiveCycle() *compiler.GraphDescriptor {
	condA, err := ir.NewIf(ref("b"), ir.ConstInt(0), ir.ConstInt(1))
	if err != nil {
		panic(err)
	}
	eqB, err := ir.NewCompare(ir.CmpEQ, ref("a"), ir.ConstInt(1))
	if err != nil {
		panic(err)
	}
	return &compiler.GraphDescriptor{
		Variables: []compiler.VariableDescriptor{
			{Name: "a", Type: ir.TypeInt, Policy: "max", Height: 2},
			{Name: "b", Type: ir.TypeBool, Policy: "max", Height: 2},
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

// SDFPair builds producer P and consumer Q with the given port rates.
// A single pair balances for any positive rates: (3, 1) gives firing
// vector q = (1, 3) and (1, 3) gives q = (3, 1).
func SDFPair(prodRate, consRate int) *compiler.GraphDescriptor {
	return &compiler.GraphDescriptor{
		Nodes: []compiler.NodeDescriptor{
			{
				ID: "P",
				Ports: []compiler.PortDescriptor{
					{Name: "out", Direction: ir.Out, Type: ir.TypeInt, Rate: prodRate},
				},
				Reactions: []compiler.ReactionDescriptor{
					{ID: "produce", OutputPort: "out", Output: ir.ConstInt(1)},
				},
			},
			{
				ID: "Q",
				Ports: []compiler.PortDescriptor{
					{Name: "in", Direction: ir.In, Type: ir.TypeInt, Rate: consRate},
					{Name: "out", Direction: ir.Out, Type: ir.TypeInt},
				},
				Reactions: []compiler.ReactionDescriptor{
					{ID: "consume", OutputPort: "out", Output: ref("in")},
				},
			},
		},
		Edges: []compiler.EdgeDescriptor{
			{SrcNode: "P", SrcPort: "out", DstNode: "Q", DstPort: "in"},
		},
	}
}

// RankedDiverging builds a ranked self-dependent reaction whose SCC
// never stabilizes: v := v + 1 under a max merge, with
// max_microsteps=4. The compile is accepted (rank declared), and the
// runtime must raise the Zeno watchdog.
func RankedDiverging() *compiler.GraphDescriptor {
	return &compiler.GraphDescriptor{
		Variables: []compiler.VariableDescriptor{
			{Name: "v", Type: ir.TypeInt, Init: ir.Int(0), Policy: "max", Height: 100},
		},
		Nodes: []compiler.NodeDescriptor{
			{
				ID: "Z",
				Reactions: []compiler.ReactionDescriptor{
					{
						ID:            "bump",
						Writes:        []compiler.WriteDescriptor{{Variable: "v", Expr: add(ref("v"), ir.ConstInt(1))}},
						Rank:          ref("v"),
						MaxMicrosteps: 4,
					},
				},
			},
		},
	}
}

func ref(name string) ir.Expr {
	return ir.VarRef(name, ir.TypeAny)
}

func add(l, r ir.Expr) ir.Expr {
	e, err := ir.NewBinary(ir.OpAdd, l, r)
	if err != nil {
		panic(err)
	}
	return e
}

func mul(l, r ir.Expr) ir.Expr {
	e, err := ir.NewBinary(ir.OpMul, l, r)
	if err != nil {
		panic(err)
	}
	return e
}
