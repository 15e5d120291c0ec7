package compiler

import (
	"fmt"
	"log/slog"

	"github.com/OdinManiac/regelum/internal/ir"
)

// Pass is one analysis over the frozen IR. Passes report through the
// sink and never mutate the graph; lowering happens before the first
// pass runs.
type Pass interface {
	Name() string
	Run(g *ir.Graph, sink *Sink)
}

// Result is the outcome of one compile: the frozen graph, the computed
// schedule and SDF repetition vector (nil unless the compile was
// accepted), every diagnostic, and the content hash of the IR.
type Result struct {
	Graph       *ir.Graph
	Schedule    *Schedule
	Firings     map[ir.NodeID]int
	Diagnostics []Diagnostic
	Hash        string
	OK          bool
}

// Compile builds, lowers and analyzes a descriptor under the given
// mode.
//
// The returned error covers construction failures only (malformed
// descriptor); an unacceptable graph comes back as a Result with OK
// false and the full diagnostic list. Structural and type analyses run
// first; the semantic passes depend on their invariants and are skipped
// when the structural stage already failed, so semantic diagnostics
// never fire on wiring the author has to fix anyway.
func Compile(desc *GraphDescriptor, mode ir.Mode) (*Result, error) {
	sink := NewSink(mode)

	g, err := Build(desc, mode, sink)
	if err != nil {
		return nil, fmt.Errorf("build IR: %w", err)
	}
	if err := LowerDelays(g); err != nil {
		return nil, fmt.Errorf("lower delays: %w", err)
	}

	structural := []Pass{
		StructuralPass{},
		TypePass{},
		WriteConflictPass{},
	}
	sdf := &SDFPass{}
	semantic := []Pass{
		CausalityPass{},
		InitPass{},
		NonZenoPass{},
		sdf,
		ContinuousPass{},
	}

	for _, p := range structural {
		slog.Debug("running pass", "pass", p.Name())
		p.Run(g, sink)
	}

	if sink.HasErrors() {
		slog.Debug("structural stage failed, skipping semantic passes")
	} else {
		for _, p := range semantic {
			slog.Debug("running pass", "pass", p.Name())
			p.Run(g, sink)
		}
	}

	hash, err := g.GraphHash()
	if err != nil {
		return nil, fmt.Errorf("hash IR: %w", err)
	}

	result := &Result{
		Graph:       g,
		Diagnostics: sink.Diagnostics(),
		Hash:        hash,
		OK:          !sink.HasErrors(),
	}
	if result.OK {
		dg := buildDepGraph(g)
		result.Schedule = dg.condense(dg.tarjanSCC())
		result.Firings = sdf.Firings
	}

	errs, warns, infos := sink.CountBySeverity()
	slog.Info("compile finished",
		"mode", mode.String(),
		"ok", result.OK,
		"errors", errs,
		"warnings", warns,
		"infos", infos,
		"hash", hash[:12],
	)
	return result, nil
}
