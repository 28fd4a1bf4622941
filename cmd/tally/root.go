package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	"tally-node/internal/domain"
	"tally-node/internal/usecase/batch"
)

// rootOptions holds global flags for all commands.
type rootOptions struct {
	ConfigPath string
	Format     string // "json" | "text"
	Verbose    bool

	out *formatter
}

// validFormats defines the allowed output formats.
var validFormats = []string{"text", "json"}

// newRootCommand creates the root command of the tally CLI.
func newRootCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tally",
		Short: "Read and edit Tally.so forms",
		Long: `Read and edit Tally.so forms from the command line.

Every command is one or more invocations of the tally tool. Edits honor the
dry_run, backup and optimistic flags (defaults from the "edit" config section).`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if !slices.Contains(validFormats, opts.Format) {
				return commandError(fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, validFormats), nil)
			}
			opts.out.format = opts.Format
			return nil
		},
	}

	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return commandError(err.Error(), nil)
	})

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "./config.yaml", "config file path")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(
		newFormsCommand(opts),
		newFormCommand(opts),
		newQuestionsCommand(opts),
		newGroupsCommand(opts),
		newSubmissionsCommand(opts),
		newExecCommand(opts),
		newRunCommand(opts),
		newSchemaCommand(opts),
	)
	return cmd
}

// execute runs the CLI with args and returns the process exit code.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts := &rootOptions{out: &formatter{format: "text", w: stdout, errW: stderr}}
	cmd := newRootCommand(opts)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}
	code, message := describe(err)
	opts.out.error(code, message)
	return exitCode(err)
}

// describe returns the machine code and message reported for err.
func describe(err error) (code, message string) {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ErrCode, exitErr.Error()
	}
	var toolErr *batch.ToolError
	if errors.As(err, &toolErr) {
		return "TOOL_ERROR", err.Error()
	}
	return string(domain.ErrorCodeOf(err)), domain.UserMessage(err)
}
