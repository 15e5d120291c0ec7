package cli

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/OdinManiac/regelum/internal/trace"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Run string
}

// NewTraceCommand creates the trace command: inspect recorded runs.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "trace <trace-db>",
		Short:         "Inspect a recorded tick trace",
		Long:          "List recorded runs, or print the tick-by-tick committed values of one run.",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Run, "run", "", "run token to print (defaults to listing runs)")

	return cmd
}

func runTrace(opts *TraceOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	store, err := trace.Open(path)
	if err != nil {
		formatter.Failure("TRACE", err.Error(), nil)
		return WrapExitError(ExitCommandError, "open trace store", err)
	}
	defer store.Close()

	ctx := context.Background()

	if opts.Run == "" {
		runs, err := store.Runs(ctx)
		if err != nil {
			formatter.Failure("TRACE", err.Error(), nil)
			return WrapExitError(ExitCommandError, "list runs", err)
		}
		if opts.Format == "json" {
			return formatter.Success(map[string]any{"runs": runs})
		}
		var b strings.Builder
		for _, run := range runs {
			fmt.Fprintln(&b, run)
		}
		return formatter.Success(b.String())
	}

	records, err := store.ReadRun(ctx, opts.Run)
	if err != nil {
		formatter.Failure("TRACE", err.Error(), nil)
		return WrapExitError(ExitCommandError, "read run", err)
	}
	if len(records) == 0 {
		formatter.Failure("TRACE", fmt.Sprintf("no ticks recorded for run %q", opts.Run), nil)
		return NewExitError(ExitCommandError, "unknown run")
	}

	if opts.Format == "json" {
		return formatter.Success(map[string]any{"run": opts.Run, "ticks": records})
	}

	var b strings.Builder
	for _, rec := range records {
		fmt.Fprintf(&b, "tick %d @ %s\n", rec.Seq, rec.Tag)
		names := make([]string, 0, len(rec.Variables))
		for name := range rec.Variables {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(&b, "  var %s = %s\n", name, rec.Variables[name])
		}
		names = names[:0]
		for name := range rec.Outputs {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(&b, "  out %s = %s\n", name, rec.Outputs[name])
		}
	}
	return formatter.Success(b.String())
}
