package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/conductor/internal/engine"
)

var (
	runInputs    []string
	runInputJSON string
)

var runCmd = &cobra.Command{
	Use:   "run <workflow>",
	Short: "Run one workflow to completion and print its report",
	Long: `Run a configured workflow synchronously and print the run report as JSON.

Examples:
  # Run with key=value inputs
  conductord run create_feature --input feature_name=DatePicker --input domain=frontend

  # Run with a JSON input document
  conductord run fix_issue --input-json '{"issue": {"description": "crash", "files": ["src/app.ts"]}}'

The command exits non-zero when the run does not succeed.`,
	Args: cobra.ExactArgs(1),
	RunE: runWorkflow,
}

func init() {
	runCmd.Flags().StringArrayVar(&runInputs, "input", nil, "initial input as key=value (repeatable)")
	runCmd.Flags().StringVar(&runInputJSON, "input-json", "", "initial input as a JSON object")
}

func runWorkflow(cmd *cobra.Command, args []string) error {
	a, err := newApp(configPath)
	if err != nil {
		return err
	}
	defer a.close()

	workflow := args[0]
	def, ok := a.runner.Definition(workflow)
	if !ok {
		return fmt.Errorf("%w: %q", engine.ErrUnknownWorkflow, workflow)
	}

	input, err := parseInput(runInputs, runInputJSON)
	if err != nil {
		return err
	}

	// Ctrl-C aborts the run at the next step boundary.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	state, err := a.orch.Run(ctx, def, input)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(state.Report(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	fmt.Fprintln(os.Stdout, string(out))

	if state.Status != engine.RunSucceeded {
		return fmt.Errorf("run %s finished with status %s", state.RunID, state.Status)
	}
	return nil
}

// parseInput merges --input key=value pairs over an optional --input-json
// document.
func parseInput(pairs []string, jsonDoc string) (map[string]any, error) {
	input := map[string]any{}
	if jsonDoc != "" {
		if err := json.Unmarshal([]byte(jsonDoc), &input); err != nil {
			return nil, fmt.Errorf("invalid --input-json: %w", err)
		}
	}
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("invalid --input %q (want key=value)", pair)
		}
		input[key] = value
	}
	return input, nil
}
