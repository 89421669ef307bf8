package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/conductor/internal/engine"
)

var validateCmd = &cobra.Command{
	Use:   "validate [workflow]",
	Short: "Statically validate workflow definitions",
	Long: `Run the static validation pass over the configured workflow
definitions without executing anything: unknown agents, unknown step and
review types, and context references no earlier step produces are all
reported.

With no argument all workflows are validated.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	a, err := newApp(configPath)
	if err != nil {
		return err
	}
	defer a.close()

	names := a.runner.Workflows()
	sort.Strings(names)
	if len(args) == 1 {
		if _, ok := a.runner.Definition(args[0]); !ok {
			return fmt.Errorf("%w: %q", engine.ErrUnknownWorkflow, args[0])
		}
		names = args[:1]
	}

	failed := 0
	for _, name := range names {
		def, _ := a.runner.Definition(name)
		if err := a.orch.Validate(def); err != nil {
			failed++
			fmt.Printf("FAIL %s\n  %v\n", name, err)
			continue
		}
		fmt.Printf("OK   %s (%d steps)\n", name, len(def.Steps))
	}

	if failed > 0 {
		return fmt.Errorf("%d workflow(s) failed validation", failed)
	}
	return nil
}
