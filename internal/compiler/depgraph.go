package compiler

import (
	"sort"

	"github.com/OdinManiac/regelum/internal/ir"
)

// depGraph is the instantaneous dependency graph over reactions.
// An edge r1 -> r2 exists iff r2 reads a port or variable that r1
// writes AND the dependency is instantaneous: not mediated by a delay
// state, not through a delay-backed output port, and not suppressed by
// the reader's no_instant_loop contract.
type depGraph struct {
	order     []string // reaction keys in deterministic graph order
	adj       map[string][]string
	reactions map[string]*ir.Reaction
	nodes     map[string]*ir.Node // reaction key -> owning node
}

// noInstantLoop reports whether the reaction's contract (or its owning
// node's) severs incoming instantaneous edges.
func noInstantLoop(node *ir.Node, r *ir.Reaction) bool {
	if node.Kind == ir.KindContinuous {
		// The u -> state path of a wrapper is non-instantaneous by the
		// hybrid boundary contract.
		return true
	}
	if r.Contract != nil && r.Contract.NoInstantLoop {
		return true
	}
	if r.Contract == nil && node.Contract != nil && node.Contract.NoInstantLoop {
		return true
	}
	return false
}

// buildDepGraph derives the reaction-level instantaneous graph from the
// lowered IR. Variable dependencies come from static access sets; port
// dependencies follow explicit edges from writer output to reader input.
func buildDepGraph(g *ir.Graph) *depGraph {
	dg := &depGraph{
		adj:       make(map[string][]string),
		reactions: make(map[string]*ir.Reaction),
		nodes:     make(map[string]*ir.Node),
	}

	// Writers per variable and per output port.
	varWriters := make(map[string][]string)
	portWriters := make(map[string][]string)

	g.Reactions(func(node *ir.Node, r *ir.Reaction) {
		key := r.Key()
		dg.order = append(dg.order, key)
		dg.reactions[key] = r
		dg.nodes[key] = node
		dg.adj[key] = nil

		for _, w := range r.WriteSet {
			varWriters[w] = append(varWriters[w], key)
		}
		if r.OutputPort != "" {
			out, ok := node.Output(r.OutputPort)
			if ok && out.DelayState == "" {
				// Delay-backed outputs carry last tick's value and are
				// not instantaneous sources.
				portWriters[out.Key()] = append(portWriters[out.Key()], key)
			}
		}
	})

	// Destination input port -> instantaneous source ports.
	srcOf := make(map[string][]string)
	for _, e := range g.Edges {
		srcOf[e.DstKey()] = append(srcOf[e.DstKey()], e.SrcKey())
	}

	g.Reactions(func(node *ir.Node, r *ir.Reaction) {
		if noInstantLoop(node, r) {
			return
		}
		key := r.Key()
		for _, ref := range r.Reads {
			switch ref.Kind {
			case ir.RefVar:
				v := g.Variables[ref.Name]
				if v != nil && v.IsDelayBuffer {
					continue
				}
				for _, writer := range varWriters[ref.Name] {
					dg.addEdge(writer, key)
				}
			case ir.RefPort:
				// Reading an input port depends on the writers of the
				// connected output; reading an own output port depends
				// on its writers directly.
				for _, writer := range portWriters[ref.Name] {
					dg.addEdge(writer, key)
				}
				for _, src := range srcOf[ref.Name] {
					for _, writer := range portWriters[src] {
						dg.addEdge(writer, key)
					}
				}
			}
		}
	})

	return dg
}

func (dg *depGraph) addEdge(from, to string) {
	for _, existing := range dg.adj[from] {
		if existing == to {
			return
		}
	}
	dg.adj[from] = append(dg.adj[from], to)
}

func (dg *depGraph) hasSelfLoop(key string) bool {
	for _, n := range dg.adj[key] {
		if n == key {
			return true
		}
	}
	return false
}

// tarjanSCC finds strongly connected components over the reaction graph.
// Components come out in reverse topological order; callers re-sort via
// condense.
func (dg *depGraph) tarjanSCC() [][]string {
	var (
		index   int
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range dg.adj[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	for _, v := range dg.order {
		if _, visited := indices[v]; !visited {
			strongConnect(v)
		}
	}
	return sccs
}

// Group is one schedule unit: a single reaction, or an algebraic SCC
// that the scheduler iterates to a fixed point.
type Group struct {
	Reactions []string
	Cyclic    bool
}

// Schedule is the topologically ordered condensation of the
// instantaneous dependency graph. The propose phase walks Levels in
// order; cyclic groups run the inner microstep loop.
type Schedule struct {
	Levels []Group
}

// condense orders the SCCs topologically (Kahn over the condensation)
// and marks algebraic groups. Ready components are taken in ascending
// first-appearance order, which makes the schedule deterministic for a
// given IR regardless of map iteration.
func (dg *depGraph) condense(sccs [][]string) *Schedule {
	memberIx := make(map[string]int)
	for i, scc := range sccs {
		for _, key := range scc {
			memberIx[key] = i
		}
	}

	// Rank components by the earliest graph-order appearance of any
	// member, for stable tie-breaking.
	firstSeen := make([]int, len(sccs))
	for i := range firstSeen {
		firstSeen[i] = len(dg.order)
	}
	for pos, key := range dg.order {
		i := memberIx[key]
		if pos < firstSeen[i] {
			firstSeen[i] = pos
		}
	}

	condAdj := make(map[int]map[int]bool)
	indeg := make([]int, len(sccs))
	for _, from := range dg.order {
		for _, to := range dg.adj[from] {
			fi, ti := memberIx[from], memberIx[to]
			if fi == ti {
				continue
			}
			if condAdj[fi] == nil {
				condAdj[fi] = make(map[int]bool)
			}
			if !condAdj[fi][ti] {
				condAdj[fi][ti] = true
				indeg[ti]++
			}
		}
	}

	var ready []int
	for i := range sccs {
		if indeg[i] == 0 {
			ready = append(ready, i)
		}
	}
	sortByFirstSeen := func() {
		sort.Slice(ready, func(a, b int) bool {
			return firstSeen[ready[a]] < firstSeen[ready[b]]
		})
	}
	sortByFirstSeen()

	sched := &Schedule{}
	for len(ready) > 0 {
		current := ready[0]
		ready = ready[1:]

		members := append([]string(nil), sccs[current]...)
		sort.Slice(members, func(a, b int) bool {
			return indexOf(dg.order, members[a]) < indexOf(dg.order, members[b])
		})
		sched.Levels = append(sched.Levels, Group{
			Reactions: members,
			Cyclic:    len(members) > 1 || dg.hasSelfLoop(members[0]),
		})

		for next := range condAdj[current] {
			indeg[next]--
			if indeg[next] == 0 {
				ready = append(ready, next)
			}
		}
		sortByFirstSeen()
	}
	return sched
}

func indexOf(order []string, key string) int {
	for i, k := range order {
		if k == key {
			return i
		}
	}
	return len(order)
}
