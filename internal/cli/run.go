package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/OdinManiac/regelum/internal/engine"
	"github.com/OdinManiac/regelum/internal/ir"
	"github.com/OdinManiac/regelum/internal/trace"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Mode    string
	Ticks   int
	DT      float64
	TraceDB string
}

// NewRunCommand creates the run command: compile, then drive the
// scheduler for a number of ticks, optionally recording a trace.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "run <pipeline-dir>",
		Short:         "Compile and execute a CUE pipeline",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Mode, "mode", "", "compile mode override (best_effort|pragmatic|strict)")
	cmd.Flags().IntVar(&opts.Ticks, "ticks", 1, "number of ticks to execute")
	cmd.Flags().Float64Var(&opts.DT, "dt", 0, "time advance per tick (seeds dt inputs when positive)")
	cmd.Flags().StringVar(&opts.TraceDB, "trace", "", "record committed snapshots to this SQLite file")

	return cmd
}

func runRun(opts *RunOptions, dir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	result, err := compilePipeline(opts.Mode, dir, formatter)
	if err != nil {
		return err
	}
	if !result.OK {
		rep := "compile rejected:\n"
		for _, d := range result.Diagnostics {
			rep += "  " + d.String() + "\n"
		}
		formatter.Failure("COMPILE", rep, nil)
		return NewExitError(ExitFailure, "compile rejected")
	}

	var engineOpts []engine.Option
	if opts.TraceDB != "" {
		store, err := trace.Open(opts.TraceDB)
		if err != nil {
			formatter.Failure("TRACE", err.Error(), nil)
			return WrapExitError(ExitCommandError, "open trace store", err)
		}
		defer store.Close()
		engineOpts = append(engineOpts, engine.WithObserver(trace.NewRecorder(store).Observe))
	}

	rt, err := engine.New(result, engineOpts...)
	if err != nil {
		formatter.Failure("RUNTIME", err.Error(), nil)
		return WrapExitError(ExitCommandError, "build runtime", err)
	}

	formatter.VerboseLog("run %s: %d tick(s), dt=%g", rt.RunToken(), opts.Ticks, opts.DT)

	var last engine.Snapshot
	for i := 0; i < opts.Ticks; i++ {
		if opts.DT > 0 {
			if err := rt.Run(1, opts.DT); err != nil {
				formatter.Failure("TICK", err.Error(), nil)
				return WrapExitError(ExitFailure, "tick aborted", err)
			}
			last = lastSnapshot(rt)
			continue
		}
		snap, err := rt.Step()
		if err != nil {
			formatter.Failure("TICK", err.Error(), nil)
			return WrapExitError(ExitFailure, "tick aborted", err)
		}
		last = snap
	}

	if opts.Format == "json" {
		return formatter.Success(snapshotJSON(rt.RunToken(), last))
	}
	return formatter.Success(snapshotText(rt.RunToken(), last))
}

// lastSnapshot builds the view printed when Run was used instead of Step:
// the runtime's current tag, which has already advanced past the last
// tick, and the last tick's outputs. Committed variables are not included.
func lastSnapshot(rt *engine.Runtime) engine.Snapshot {
	return engine.Snapshot{Tag: rt.Tag(), Outputs: rt.LastOutputs()}
}

func snapshotText(runToken string, snap engine.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "run %s finished at %s\n", runToken, snap.Tag)
	writeSorted := func(label string, m map[string]ir.Value) {
		if len(m) == 0 {
			return
		}
		names := make([]string, 0, len(m))
		for name := range m {
			names = append(names, name)
		}
		sort.Strings(names)
		fmt.Fprintf(&b, "%s:\n", label)
		for _, name := range names {
			fmt.Fprintf(&b, "  %s = %s\n", name, ir.FormatValue(m[name]))
		}
	}
	writeSorted("variables", snap.Variables)
	writeSorted("outputs", snap.Outputs)
	return b.String()
}

func snapshotJSON(runToken string, snap engine.Snapshot) map[string]any {
	render := func(m map[string]ir.Value) map[string]string {
		out := make(map[string]string, len(m))
		for name, v := range m {
			out[name] = ir.FormatValue(v)
		}
		return out
	}
	return map[string]any{
		"run":       runToken,
		"tag":       snap.Tag.String(),
		"variables": render(snap.Variables),
		"outputs":   render(snap.Outputs),
	}
}
