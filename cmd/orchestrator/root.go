package main

import (
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "orchestrator",
	Short: "Multi-agent task orchestration core",
	Long: `Orchestrator coordinates work across a pool of coding agents.

It keeps a dependency-aware task store, assigns ready tasks to agent
slots on a polling loop, retries transient failures with exponential
backoff, and escalates tasks whose retry budget runs out. Tickets
written by multiple agents are guarded by optimistic concurrency.

Core capabilities:
- Dependency-ordered scheduling with cycle rejection
- Polling assignment loop with stall and timeout detection
- Retry, investigate, and escalate recovery decisions
- Version-checked ticket updates with conflict resolution`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: XDG + project discovery)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
}
