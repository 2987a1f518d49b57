// Package workspace manages daemon liveness markers. A marker records the
// pid and listening port of the daemon serving a workspace, keyed by a hash
// of the workspace path, so CLI and UI clients can discover a running daemon
// without a central registry. The marker doubles as the start-time guard
// against a second daemon per workspace.
package workspace

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

// Marker is the on-disk liveness record.
type Marker struct {
	// PID is the daemon's process id.
	PID int `json:"pid"`
	// Port is the daemon's listening port.
	Port int `json:"port"`
	// Workspace is the absolute workspace path, kept for diagnostics.
	Workspace string `json:"workspace"`
	// StartedAt is when the daemon wrote the marker.
	StartedAt time.Time `json:"started_at"`
}

// ErrAlreadyRunning indicates a live daemon already serves the workspace.
type ErrAlreadyRunning struct {
	Marker Marker
}

func (e *ErrAlreadyRunning) Error() string {
	return fmt.Sprintf("daemon already running for this workspace (pid %d, port %d)", e.Marker.PID, e.Marker.Port)
}

// markerDir returns the directory holding liveness markers.
func markerDir() string {
	if dataDir := os.Getenv("XDG_DATA_HOME"); dataDir != "" {
		return filepath.Join(dataDir, "foreman", "daemons")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".foreman", "daemons")
	}
	return filepath.Join(home, ".local", "share", "foreman", "daemons")
}

// MarkerPath returns the marker file location for a workspace path.
func MarkerPath(workspace string) string {
	abs, err := filepath.Abs(workspace)
	if err != nil {
		abs = workspace
	}
	sum := sha256.Sum256([]byte(abs))
	return filepath.Join(markerDir(), hex.EncodeToString(sum[:8])+".json")
}

// Acquire writes a liveness marker for the workspace, refusing when a live
// daemon already holds one. A marker whose process is gone is treated as
// stale and replaced.
func Acquire(workspace string, pid, port int) error {
	path := MarkerPath(workspace)
	if existing, err := Read(workspace); err == nil {
		if processAlive(existing.PID) {
			return &ErrAlreadyRunning{Marker: *existing}
		}
		// Stale marker from a dead daemon.
		_ = os.Remove(path)
	}

	abs, err := filepath.Abs(workspace)
	if err != nil {
		abs = workspace
	}
	m := Marker{PID: pid, Port: port, Workspace: abs, StartedAt: time.Now()}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal marker: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create marker directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write marker: %w", err)
	}
	return nil
}

// Read loads the marker for a workspace.
func Read(workspace string) (*Marker, error) {
	data, err := os.ReadFile(MarkerPath(workspace))
	if err != nil {
		return nil, err
	}
	var m Marker
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse marker: %w", err)
	}
	return &m, nil
}

// Discover returns the marker for a workspace only when its daemon is still
// alive. Stale markers are removed on sight.
func Discover(workspace string) (*Marker, error) {
	m, err := Read(workspace)
	if err != nil {
		return nil, err
	}
	if !processAlive(m.PID) {
		_ = os.Remove(MarkerPath(workspace))
		return nil, fmt.Errorf("daemon (pid %d) is no longer running", m.PID)
	}
	return m, nil
}

// Release removes the workspace's marker. Only the owning daemon calls this.
func Release(workspace string) error {
	err := os.Remove(MarkerPath(workspace))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove marker: %w", err)
	}
	return nil
}

// processAlive checks whether a pid refers to a live process.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
