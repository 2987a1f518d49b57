package main

import (
	"fmt"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/mkade/foreman/internal/protocol"
	"github.com/mkade/foreman/internal/workspace"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon, pool, and session state",
	Long: `Display the state of the daemon serving the current workspace.

Shows the daemon's listening port and uptime, agent pool occupancy, and
tracked sessions. Exits quietly when no daemon is running.`,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	marker, err := workspace.Discover(cwd)
	if err != nil {
		fmt.Println("No daemon running in this workspace. Run 'foreman serve' to start one.")
		return nil
	}

	data, err := requestStatus(marker.Port)
	if err != nil {
		return fmt.Errorf("querying daemon on port %d: %w", marker.Port, err)
	}

	green := color.New(color.FgGreen).SprintFunc()
	bold := color.New(color.Bold).SprintFunc()

	fmt.Printf("%s %s\n", bold("Daemon:"), green("running"))
	fmt.Printf("  PID:     %d\n", marker.PID)
	fmt.Printf("  Port:    %d\n", marker.Port)
	fmt.Printf("  Started: %s ago\n", time.Since(marker.StartedAt).Round(time.Second))

	if poolBlock, ok := data["pool"].(map[string]interface{}); ok {
		fmt.Printf("\n%s\n", bold("Agent pool:"))
		states := make([]string, 0, len(poolBlock))
		for state := range poolBlock {
			states = append(states, state)
		}
		sort.Strings(states)
		for _, state := range states {
			fmt.Printf("  %-10s %v\n", state+":", poolBlock[state])
		}
	}

	if sessions, ok := data["sessions"]; ok {
		fmt.Printf("\n%s %v\n", bold("Sessions:"), sessions)
	}
	if coordBlock, ok := data["coordinator"].(map[string]interface{}); ok {
		fmt.Printf("%s %v (%v evaluation(s))\n", bold("Coordinator:"),
			coordBlock["evaluationState"], coordBlock["evaluations"])
	}
	return nil
}

// requestStatus runs one status round-trip over the daemon's websocket.
func requestStatus(port int) (map[string]interface{}, error) {
	header := http.Header{"X-Foreman-Client": []string{"cli"}}
	ws, _, err := websocket.DefaultDialer.Dial(fmt.Sprintf("ws://127.0.0.1:%d/ws", port), header)
	if err != nil {
		return nil, err
	}
	defer ws.Close()

	id := uuid.NewString()[:8]
	frame, err := protocol.EncodeRequest(protocol.Request{ID: id, Cmd: "status"})
	if err != nil {
		return nil, err
	}
	if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		ws.SetReadDeadline(deadline)
		_, data, err := ws.ReadMessage()
		if err != nil {
			return nil, err
		}
		env, err := protocol.Decode(data)
		if err != nil || env.Type != protocol.TypeResponse {
			continue // replayed lifecycle events arrive first
		}
		resp, err := env.DecodeResponse()
		if err != nil || resp.ID != id {
			continue
		}
		if !resp.Success {
			return nil, fmt.Errorf("daemon error: %s", resp.Error)
		}
		out, ok := resp.Data.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("unexpected status payload %T", resp.Data)
		}
		return out, nil
	}
	return nil, fmt.Errorf("timed out waiting for status response")
}
