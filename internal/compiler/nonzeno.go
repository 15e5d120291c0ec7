package compiler

import (
	"fmt"
	"strings"

	"github.com/OdinManiac/regelum/internal/ir"
)

// NonZenoPass requires a well-founded rank from every reaction whose
// reads and writes overlap on the same signal without a delay in
// between. The rank expression must type-check as Int - any other
// carrier fails closed - and must come with a positive microstep
// budget, which the runtime watchdog enforces.
type NonZenoPass struct{}

// Name implements Pass.
func (NonZenoPass) Name() string { return "non-zeno" }

// Run implements Pass.
func (NonZenoPass) Run(g *ir.Graph, sink *Sink) {
	g.Reactions(func(node *ir.Node, r *ir.Reaction) {
		var overlap []string
		for _, ref := range r.Reads {
			if ref.Kind != ir.RefVar || !r.WritesVar(ref.Name) {
				continue
			}
			if v := g.Variables[ref.Name]; v != nil && v.IsDelayBuffer {
				continue
			}
			overlap = append(overlap, ref.Name)
		}
		if len(overlap) == 0 {
			return
		}

		key := r.Key()
		if r.Rank == nil {
			sink.Errorf(CodeMissingRank,
				fmt.Sprintf("reaction %s reads and writes %s in the same instant without a rank",
					key, strings.Join(overlap, ", ")),
				key,
				"declare rank and max_microsteps, or insert a Delay")
			return
		}
		if r.Rank.ResultType() != ir.TypeInt {
			// Fail closed: only integer ranks are known well-founded.
			sink.Errorf(CodeMissingRank,
				fmt.Sprintf("reaction %s declares a rank of type %s; only int ranks are well-founded",
					key, r.Rank.ResultType()),
				key,
				"use an integer rank expression")
			return
		}
		if r.MaxMicrosteps <= 0 {
			sink.Errorf(CodeMissingRank,
				fmt.Sprintf("reaction %s declares a rank without a positive max_microsteps budget", key),
				key,
				"set max_microsteps alongside the rank")
		}
	})
}
