package compiler

import (
	"fmt"

	"github.com/OdinManiac/regelum/internal/ir"
)

// InitPass runs only under strict mode. Every variable and hidden delay
// state must carry a concrete initial value, and every variable a
// reaction reads must be written or initialized on some happens-before
// path ahead of that first read.
type InitPass struct{}

// Name implements Pass.
func (InitPass) Name() string { return "init" }

// Run implements Pass.
func (InitPass) Run(g *ir.Graph, sink *Sink) {
	if g.Mode != ir.ModeStrict {
		return
	}

	for _, name := range g.VarOrder {
		v := g.Variables[name]
		if v.HasInit() {
			continue
		}
		if v.IsDelayBuffer {
			sink.Errorf(CodeMissingDelayInit,
				fmt.Sprintf("delay state %q has no default", name),
				name,
				"give the delay a default value")
			continue
		}
		sink.Errorf(CodeMissingInit,
			fmt.Sprintf("variable %q has no initial value", name),
			name,
			"provide an init")
	}

	// Happens-before: walk the schedule; a read is covered if the
	// variable is initialized or some earlier group (or the same cyclic
	// group) writes it.
	dg := buildDepGraph(g)
	sched := dg.condense(dg.tarjanSCC())

	written := make(map[string]bool)
	for _, group := range sched.Levels {
		if group.Cyclic {
			// Within a fixed-point group, members may read each other's
			// same-tick writes constructively.
			for _, key := range group.Reactions {
				for _, name := range dg.reactions[key].WriteSet {
					written[name] = true
				}
			}
		}
		for _, key := range group.Reactions {
			r := dg.reactions[key]
			for _, ref := range r.Reads {
				if ref.Kind != ir.RefVar {
					continue
				}
				v := g.Variables[ref.Name]
				if v == nil || v.HasInit() || written[ref.Name] {
					continue
				}
				sink.Errorf(CodeReadBeforeWrite,
					fmt.Sprintf("reaction %s reads %q before any write or init", key, ref.Name),
					key,
					"initialize the variable or schedule a writer earlier")
			}
		}
		for _, key := range group.Reactions {
			for _, name := range dg.reactions[key].WriteSet {
				written[name] = true
			}
		}
	}
}
