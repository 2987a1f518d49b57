package workspace

import (
	"os"
	"testing"
)

func withMarkerDir(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_DATA_HOME", t.TempDir())
}

func TestAcquireAndDiscover(t *testing.T) {
	withMarkerDir(t)
	ws := t.TempDir()

	if err := Acquire(ws, os.Getpid(), 4821); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	m, err := Discover(ws)
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if m.Port != 4821 {
		t.Errorf("port = %d, want 4821", m.Port)
	}
	if m.PID != os.Getpid() {
		t.Errorf("pid = %d, want %d", m.PID, os.Getpid())
	}
}

func TestAcquireRefusesSecondDaemon(t *testing.T) {
	withMarkerDir(t)
	ws := t.TempDir()

	if err := Acquire(ws, os.Getpid(), 4821); err != nil {
		t.Fatalf("first Acquire() error = %v", err)
	}
	err := Acquire(ws, os.Getpid(), 4822)
	if err == nil {
		t.Fatal("second Acquire() succeeded, want refusal")
	}
	if _, ok := err.(*ErrAlreadyRunning); !ok {
		t.Errorf("error = %T, want *ErrAlreadyRunning", err)
	}
}

func TestAcquireReplacesStaleMarker(t *testing.T) {
	withMarkerDir(t)
	ws := t.TempDir()

	// pid 1<<30 cannot exist.
	if err := Acquire(ws, 1<<30, 4821); err != nil {
		t.Fatalf("seed Acquire() error = %v", err)
	}
	if err := Acquire(ws, os.Getpid(), 4822); err != nil {
		t.Fatalf("Acquire() over stale marker error = %v", err)
	}
	m, err := Discover(ws)
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if m.Port != 4822 {
		t.Errorf("port = %d, want 4822", m.Port)
	}
}

func TestDiscoverRemovesStaleMarker(t *testing.T) {
	withMarkerDir(t)
	ws := t.TempDir()

	if err := Acquire(ws, 1<<30, 4821); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if _, err := Discover(ws); err == nil {
		t.Fatal("Discover() succeeded for dead pid, want error")
	}
	if _, err := os.Stat(MarkerPath(ws)); !os.IsNotExist(err) {
		t.Errorf("stale marker still present at %s", MarkerPath(ws))
	}
}

func TestRelease(t *testing.T) {
	withMarkerDir(t)
	ws := t.TempDir()

	if err := Acquire(ws, os.Getpid(), 4821); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if err := Release(ws); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if err := Release(ws); err != nil {
		t.Errorf("Release() of absent marker error = %v, want nil", err)
	}
	if _, err := Read(ws); err == nil {
		t.Error("Read() succeeded after Release()")
	}
}

func TestMarkerPathStablePerWorkspace(t *testing.T) {
	withMarkerDir(t)
	a, b := t.TempDir(), t.TempDir()
	if MarkerPath(a) == MarkerPath(b) {
		t.Error("distinct workspaces share a marker path")
	}
	if MarkerPath(a) != MarkerPath(a) {
		t.Error("marker path not stable for same workspace")
	}
}
