package cli

import (
	"github.com/spf13/cobra"

	"github.com/OdinManiac/regelum/internal/compiler"
	"github.com/OdinManiac/regelum/internal/ir"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Mode string
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <pipeline-dir>",
		Short: "Compile a CUE pipeline and print the analysis report",
		Long: `Compile a CUE pipeline through the full analysis pipeline
(structural, types, write conflicts, causality, init, non-Zeno, SDF)
and print the aggregated diagnostic report.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Mode, "mode", "", "compile mode override (best_effort|pragmatic|strict)")

	return cmd
}

func runCompile(opts *CompileOptions, dir string, cmd *cobra.Command) error {
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

	report := compiler.NewReport(result)
	if opts.Format == "json" {
		if err := formatter.Success(report); err != nil {
			return err
		}
	} else if err := formatter.Success(report.Text()); err != nil {
		return err
	}

	if !result.OK {
		return NewExitError(ExitFailure, "compile rejected")
	}
	return nil
}

// compilePipeline loads and compiles a CUE pipeline directory, mapping
// load and construction failures to command errors.
func compilePipeline(modeFlag, dir string, formatter *OutputFormatter) (*compiler.Result, error) {
	desc, mode, err := LoadPipeline(dir)
	if err != nil {
		formatter.Failure(loadErrorCode(err), err.Error(), nil)
		return nil, WrapExitError(ExitCommandError, "load pipeline", err)
	}
	if modeFlag != "" {
		mode = ir.ParseMode(modeFlag)
	}
	formatter.VerboseLog("loaded %d node(s), %d variable(s), mode %s", len(desc.Nodes), len(desc.Variables), mode)

	result, err := compiler.Compile(desc, mode)
	if err != nil {
		formatter.Failure("BUILD", err.Error(), nil)
		return nil, WrapExitError(ExitCommandError, "build IR", err)
	}
	return result, nil
}

func loadErrorCode(err error) string {
	if le, ok := err.(*LoadError); ok {
		return le.Code
	}
	return "LOAD000"
}
