package main

import (
	"fmt"
	"os"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mkade/foreman/internal/workspace"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the daemon for the current workspace",
	Long: `Signal the workspace's daemon to shut down gracefully.

Running workflows are paused and persisted so a later 'foreman serve'
resumes them.`,
	RunE: runStop,
}

func runStop(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	marker, err := workspace.Discover(cwd)
	if err != nil {
		fmt.Println("No daemon running in this workspace.")
		return nil
	}

	proc, err := os.FindProcess(marker.PID)
	if err != nil {
		return fmt.Errorf("finding daemon process %d: %w", marker.PID, err)
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("signalling daemon process %d: %w", marker.PID, err)
	}
	fmt.Printf("sent shutdown signal to daemon (pid %d)\n", marker.PID)
	return nil
}
