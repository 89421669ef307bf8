// Conductord is the workflow orchestration daemon: it coordinates
// specialized agents through multi-step workflows with review gates,
// bounded retries and durable run state.
//
// Usage:
//
//	# Start the HTTP API server
//	conductord serve --config conductor.yaml
//
//	# Run one workflow to completion and print the report
//	conductord run create_feature --config conductor.yaml --input feature_name=DatePicker
//
//	# Validate the configured workflow definitions
//	conductord validate --config conductor.yaml
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "conductord",
	Short:         "Workflow orchestration daemon",
	Long:          `conductord coordinates specialized agents through multi-step workflows with review gates, bounded retries and durable run state.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to the configuration file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("conductord\n")
		fmt.Printf("Version:    %s\n", version)
		fmt.Printf("Commit:     %s\n", gitCommit)
		fmt.Printf("Build Date: %s\n", buildDate)
	},
}
