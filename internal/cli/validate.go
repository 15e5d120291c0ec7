package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Mode string
}

// NewValidateCommand creates the validate command: compile without a
// report body, exit code only plus a one-line summary.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "validate <pipeline-dir>",
		Short:         "Check whether a CUE pipeline compiles cleanly",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Mode, "mode", "", "compile mode override (best_effort|pragmatic|strict)")

	return cmd
}

func runValidate(opts *ValidateOptions, dir string, cmd *cobra.Command) error {
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

	errs, warns, _ := 0, 0, 0
	for _, d := range result.Diagnostics {
		switch d.Severity.String() {
		case "error":
			errs++
		case "warning":
			warns++
		}
	}

	if !result.OK {
		if err := formatter.Failure("VALIDATE", fmt.Sprintf("rejected: %d error(s), %d warning(s)", errs, warns), nil); err != nil {
			return err
		}
		return NewExitError(ExitFailure, "validation failed")
	}
	return formatter.Success(fmt.Sprintf("accepted: %d warning(s)\n", warns))
}
