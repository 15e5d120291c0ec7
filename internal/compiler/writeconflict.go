package compiler

import (
	"fmt"
	"strings"

	"github.com/OdinManiac/regelum/internal/ir"
)

// WriteConflictPass resolves the static writer set of every variable
// against its write policy. Error policies reject plural writers at
// compile time; LWW without a total producer order is ambiguous
// (warning, promoted to error under strict); monoidal merges accept any
// number of writers.
type WriteConflictPass struct{}

// Name implements Pass.
func (WriteConflictPass) Name() string { return "write-conflict" }

// Run implements Pass.
func (WriteConflictPass) Run(g *ir.Graph, sink *Sink) {
	writers := make(map[string][]*ir.Reaction)
	g.Reactions(func(_ *ir.Node, r *ir.Reaction) {
		for _, name := range r.WriteSet {
			writers[name] = append(writers[name], r)
		}
	})

	for _, name := range g.VarOrder {
		v := g.Variables[name]
		ws := writers[name]
		if len(ws) <= 1 {
			continue
		}

		keys := make([]string, len(ws))
		producers := make([]ir.NodeID, len(ws))
		for i, r := range ws {
			keys[i] = r.Key()
			producers[i] = r.Node
		}
		who := strings.Join(keys, ", ")

		switch p := v.Policy.(type) {
		case ir.ErrorPolicy:
			sink.Errorf(CodeErrorPolicyConflict,
				fmt.Sprintf("variable %q has %d writers under the error policy: %s", name, len(ws), who),
				name,
				"declare a merge policy or remove the extra writers")
		case *ir.LWWPolicy:
			if len(p.Priority) == 0 || p.HasTies(producers) {
				sink.Warningf(CodeLWWAmbiguity,
					fmt.Sprintf("variable %q has %d writers under LWW without a total producer order: %s", name, len(ws), who),
					name,
					"list every producer in the priority order")
			}
		case *ir.MergePolicy:
			// Monoidal merges commute; any writer count is fine.
		}
	}
}
