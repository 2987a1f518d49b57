package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "foreman",
	Short: "Coding-agent orchestration daemon",
	Long: `Foreman hosts a per-workspace daemon that coordinates a pool of
coding agents over a task dependency graph.

Clients (the CLI, editors, browsers) attach over a websocket connection,
submit plans and tasks, and observe progress through broadcast events.
One daemon runs per workspace; a liveness marker on disk lets clients
discover it.

Typical flow:
  foreman serve          start the daemon in the current workspace
  foreman status         show daemon, pool, and session state
  foreman config         view or change configuration`,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	Execute()
}
