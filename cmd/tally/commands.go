package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"tally-node/internal/adapter/tool"
	"tally-node/internal/domain"
	"tally-node/internal/infra/config"
	"tally-node/internal/infra/logger"
	"tally-node/internal/usecase/batch"
)

// exactArgs is cobra.ExactArgs reporting a command error.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return commandError(err.Error(), nil)
		}
		return nil
	}
}

func newFormsCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "forms",
		Short: "List all forms of the workspace",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return invokeOne(cmd, opts, map[string]any{"action": "get_forms"})
		},
	}
}

func newFormCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "form <form-id>",
		Short: "Show a form with its blocks",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return invokeOne(cmd, opts, map[string]any{"action": "get_form", "form_id": args[0]})
		},
	}
}

func newQuestionsCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "questions <form-id>",
		Short: "List the questions of a form",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return invokeOne(cmd, opts, map[string]any{"action": "list_questions", "form_id": args[0]})
		},
	}
}

func newGroupsCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "groups <form-id>",
		Short: "List the question groups of a form",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return invokeOne(cmd, opts, map[string]any{"action": "list_question_groups", "form_id": args[0]})
		},
	}
}

func newSubmissionsCommand(opts *rootOptions) *cobra.Command {
	var flatten bool
	cmd := &cobra.Command{
		Use:   "submissions <form-id>",
		Short: "Fetch all submissions of a form",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return invokeOne(cmd, opts, map[string]any{
				"action":  "get_submissions",
				"form_id": args[0],
				"flatten": flatten,
			})
		},
	}
	cmd.Flags().BoolVar(&flatten, "flatten", false, "one record per submission with answers keyed by field label")
	return cmd
}

func newExecCommand(opts *rootOptions) *cobra.Command {
	var params string
	cmd := &cobra.Command{
		Use:   "exec <action>",
		Short: "Run one tally tool action",
		Long: `Run one tally tool action with JSON parameters.

Example:
  tally exec add_field --params '{"form_id":"wMx1","field_type":"email","label":"Email","dry_run":true}'`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := map[string]any{}
			if err := json.Unmarshal([]byte(params), &p); err != nil || p == nil {
				return commandError("invalid --params: must be a JSON object", err)
			}
			p["action"] = args[0]
			return invokeOne(cmd, opts, p)
		},
	}
	cmd.Flags().StringVar(&params, "params", "{}", "action parameters as a JSON object")
	return cmd
}

func newRunCommand(opts *rootOptions) *cobra.Command {
	var (
		itemsPath      string
		continueOnFail bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a list of tool invocations",
		Long: `Run a JSON array of tool invocations in order under one run id.

Each item is {"tool": "tally", "params": {...}, "chain": false}. With chain,
the previous item's last output record is passed as params.incoming.

Example:
  tally run --items edits.json --continue-on-fail`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			if itemsPath == "" {
				return commandError("--items is required", nil)
			}
			items, err := readItems(cmd.InOrStdin(), itemsPath)
			if err != nil {
				return err
			}
			var cont *bool
			if cmd.Flags().Changed("continue-on-fail") {
				cont = &continueOnFail
			}
			return invoke(cmd, opts, items, cont)
		},
	}
	cmd.Flags().StringVar(&itemsPath, "items", "", `items file ("-" for stdin)`)
	cmd.Flags().BoolVar(&continueOnFail, "continue-on-fail", false, "record failures as {error} and keep going")
	return cmd
}

func newSchemaCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the tally tool schema",
		Args:  exactArgs(0),
		RunE: func(_ *cobra.Command, _ []string) error {
			t := tool.NewTallyTool(nil, config.EditConfig{}, logger.Discard())
			return opts.out.value(t.Schema())
		},
	}
}

func readItems(stdin io.Reader, path string) ([]batch.Item, error) {
	var r io.Reader = stdin
	if path != "-" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, commandError("read items", err)
		}
		r = bytes.NewReader(data)
	}
	items, err := batch.LoadItems(r)
	if err != nil {
		return nil, commandError(domain.UserMessage(err), nil)
	}
	return items, nil
}

// invokeOne runs a single tally invocation.
func invokeOne(cmd *cobra.Command, opts *rootOptions, params map[string]any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return commandError("encode params", err)
	}
	err = invoke(cmd, opts, []batch.Item{{Tool: "tally", Params: raw}}, nil)
	var itemErr *batch.ItemError
	if errors.As(err, &itemErr) {
		return itemErr.Err
	}
	return err
}

// invoke runs items through the batch runner and prints the records.
func invoke(cmd *cobra.Command, opts *rootOptions, items []batch.Item, continueOnFail *bool) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, opts)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.close(ctx); err != nil {
			a.logger.Warn("shutdown", "error", err)
		}
	}()

	report, err := a.runner(continueOnFail).Run(ctx, items)
	if err != nil {
		var itemErr *batch.ItemError
		if errors.As(err, &itemErr) && len(items) > 1 {
			return fmt.Errorf("item %d: %w", itemErr.Index, itemErr.Err)
		}
		return err
	}
	return opts.out.records(report.RunID, report.Records, report.Failed)
}
