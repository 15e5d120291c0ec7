package compiler

import (
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/OdinManiac/regelum/internal/ir"
)

// SDFPass balances the rates of every synchronous-dataflow subgraph.
//
// A maximal subgraph whose ports all carry fixed rates forms a set of
// channels; the pass solves the balance equations Γ·q = 0 for the
// minimal positive integer firing vector q. No solution means the rates
// are inconsistent (SDF001). A consistent but non-uniform vector is
// accepted with a buffer warning and recorded as the static repetition
// schedule the tick loop fires.
//
// Overlaps between SDF subgraphs and algebraic SCCs are rejected
// conservatively: a rated actor inside a fixed-point group has no
// defined firing semantics.
type SDFPass struct {
	// Firings receives the computed repetition vector. Nil entries mean
	// event-driven treatment.
	Firings map[ir.NodeID]int
}

// Name implements Pass.
func (*SDFPass) Name() string { return "sdf" }

// Run implements Pass.
func (p *SDFPass) Run(g *ir.Graph, sink *Sink) {
	rated := ratedNodes(g)
	if len(rated) == 0 {
		return
	}

	// Conservative SDF/SCC overlap rejection.
	dg := buildDepGraph(g)
	for _, group := range dg.condense(dg.tarjanSCC()).Levels {
		if !group.Cyclic {
			continue
		}
		for _, key := range group.Reactions {
			if rated[dg.reactions[key].Node] {
				sink.Errorf(CodeRateInconsistent,
					fmt.Sprintf("rated node %s participates in algebraic cycle %s",
						dg.reactions[key].Node, strings.Join(group.Reactions, ", ")),
					string(dg.reactions[key].Node),
					"break the cycle with a Delay or drop the port rates")
				return
			}
		}
	}

	// Channels: edges whose endpoints are both rated nodes.
	var channels []ir.Edge
	for _, e := range g.Edges {
		if rated[e.SrcNode] && rated[e.DstNode] {
			channels = append(channels, e)
		}
	}

	if p.Firings == nil {
		p.Firings = make(map[ir.NodeID]int)
	}

	for _, comp := range components(g, rated, channels) {
		p.balance(g, comp, channels, sink)
	}
}

// ratedNodes marks every node with at least one rated port.
func ratedNodes(g *ir.Graph) map[ir.NodeID]bool {
	rated := make(map[ir.NodeID]bool)
	for _, id := range g.NodeOrder {
		node := g.Nodes[id]
		for _, ports := range [][]*ir.Port{node.Inputs, node.Outputs} {
			for _, port := range ports {
				if port.Rate > 0 {
					rated[id] = true
				}
			}
		}
	}
	return rated
}

// components groups rated nodes into connected components over the
// channel edges, in deterministic node order.
func components(g *ir.Graph, rated map[ir.NodeID]bool, channels []ir.Edge) [][]ir.NodeID {
	adj := make(map[ir.NodeID][]ir.NodeID)
	for _, e := range channels {
		adj[e.SrcNode] = append(adj[e.SrcNode], e.DstNode)
		adj[e.DstNode] = append(adj[e.DstNode], e.SrcNode)
	}

	seen := make(map[ir.NodeID]bool)
	var comps [][]ir.NodeID
	for _, id := range g.NodeOrder {
		if !rated[id] || seen[id] {
			continue
		}
		var comp []ir.NodeID
		stack := []ir.NodeID{id}
		seen[id] = true
		for len(stack) > 0 {
			u := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			comp = append(comp, u)
			for _, v := range adj[u] {
				if !seen[v] {
					seen[v] = true
					stack = append(stack, v)
				}
			}
		}
		sort.Slice(comp, func(a, b int) bool { return comp[a] < comp[b] })
		comps = append(comps, comp)
	}
	return comps
}

// balance solves the balance equations for one component by rational
// propagation from an arbitrary seed actor, then scales the solution to
// the minimal positive integer vector.
func (p *SDFPass) balance(g *ir.Graph, comp []ir.NodeID, channels []ir.Edge, sink *Sink) {
	inComp := make(map[ir.NodeID]bool, len(comp))
	for _, id := range comp {
		inComp[id] = true
	}

	q := map[ir.NodeID]*big.Rat{comp[0]: big.NewRat(1, 1)}
	stack := []ir.NodeID{comp[0]}

	for len(stack) > 0 {
		u := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		for _, e := range channels {
			var v ir.NodeID
			var ratio *big.Rat // q[v] = q[u] * ratio

			switch {
			case e.SrcNode == u && inComp[e.DstNode]:
				v = e.DstNode
				prod, cons := channelRates(g, e)
				ratio = big.NewRat(int64(prod), int64(cons))
			case e.DstNode == u && inComp[e.SrcNode]:
				v = e.SrcNode
				prod, cons := channelRates(g, e)
				ratio = big.NewRat(int64(cons), int64(prod))
			default:
				continue
			}

			expected := new(big.Rat).Mul(q[u], ratio)
			if have, ok := q[v]; ok {
				if have.Cmp(expected) != 0 {
					sink.Errorf(CodeRateInconsistent,
						fmt.Sprintf("inconsistent rates between %s and %s: paths require firing ratios %s and %s",
							u, v, have.RatString(), expected.RatString()),
						string(u),
						"adjust the port rates so every path agrees")
					return
				}
				continue
			}
			q[v] = expected
			stack = append(stack, v)
		}
	}

	// Scale to the minimal positive integer vector: multiply by the LCM
	// of denominators, divide by the GCD of numerators.
	lcm := big.NewInt(1)
	for _, r := range q {
		lcm = lcmInt(lcm, r.Denom())
	}
	var gcd *big.Int
	scaled := make(map[ir.NodeID]*big.Int, len(q))
	for id, r := range q {
		n := new(big.Int).Mul(r.Num(), new(big.Int).Div(lcm, r.Denom()))
		scaled[id] = n
		if gcd == nil {
			gcd = new(big.Int).Set(n)
		} else {
			gcd.GCD(nil, nil, gcd, n)
		}
	}

	uniform := true
	for _, id := range comp {
		n := new(big.Int).Div(scaled[id], gcd)
		p.Firings[id] = int(n.Int64())
		if p.Firings[id] != 1 {
			uniform = false
		}
	}

	if !uniform {
		parts := make([]string, 0, len(comp))
		for _, id := range comp {
			parts = append(parts, fmt.Sprintf("%s:%d", id, p.Firings[id]))
		}
		sink.Warningf(CodeRateInconsistent,
			fmt.Sprintf("multi-rate schedule (%s) executes inside a single tick; buffers may grow",
				strings.Join(parts, ", ")),
			string(comp[0]),
			"verify buffer bounds or equalize the rates")
	}
}

// channelRates reads producer and consumer token rates off an edge,
// defaulting unset rates to one token per firing.
func channelRates(g *ir.Graph, e ir.Edge) (prod, cons int) {
	prod, cons = 1, 1
	if src, ok := g.Nodes[e.SrcNode].Output(e.SrcPort); ok && src.Rate > 0 {
		prod = src.Rate
	}
	if dst, ok := g.Nodes[e.DstNode].Input(e.DstPort); ok && dst.Rate > 0 {
		cons = dst.Rate
	}
	return prod, cons
}

func lcmInt(a, b *big.Int) *big.Int {
	gcd := new(big.Int).GCD(nil, nil, a, b)
	return new(big.Int).Div(new(big.Int).Mul(a, b), gcd)
}
