package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	if cfg.Pool.Size != 5 {
		t.Errorf("pool size = %d, want 5", cfg.Pool.Size)
	}
	if cfg.Pool.RestCooldown != 5*time.Second {
		t.Errorf("rest cooldown = %s, want 5s", cfg.Pool.RestCooldown)
	}
	if cfg.Daemon.IdleShutdown != 60*time.Second {
		t.Errorf("idle shutdown = %s, want 60s", cfg.Daemon.IdleShutdown)
	}
	if cfg.Daemon.ReplayCacheSize != 100 {
		t.Errorf("replay cache = %d, want 100", cfg.Daemon.ReplayCacheSize)
	}
	if cfg.Daemon.RequestTimeout != 30*time.Second {
		t.Errorf("request timeout = %s, want 30s", cfg.Daemon.RequestTimeout)
	}
	if cfg.Unity.BridgeURL != "" {
		t.Error("unity bridge should be absent by default")
	}
}

func TestLoadFromPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: 0.0.0.0
  port: 9021
pool:
  size: 8
  rest_cooldown: 2s
coordinator:
  debounce: 250ms
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	if cfg.Server.Port != 9021 {
		t.Errorf("port = %d, want 9021", cfg.Server.Port)
	}
	if cfg.Pool.Size != 8 {
		t.Errorf("pool size = %d, want 8", cfg.Pool.Size)
	}
	if cfg.Pool.RestCooldown != 2*time.Second {
		t.Errorf("cooldown = %s, want 2s", cfg.Pool.RestCooldown)
	}
	if cfg.Coordinator.Debounce != 250*time.Millisecond {
		t.Errorf("debounce = %s, want 250ms", cfg.Coordinator.Debounce)
	}
	// Unset keys keep defaults.
	if cfg.Daemon.IdleShutdown != 60*time.Second {
		t.Errorf("idle shutdown = %s, want default 60s", cfg.Daemon.IdleShutdown)
	}
}

func TestGetSetReset(t *testing.T) {
	cfg := Default()

	if err := cfg.Set(KeyPoolSize, 10); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, err := cfg.Get(KeyPoolSize)
	if err != nil || v != 10 {
		t.Errorf("Get = %v (%v), want 10", v, err)
	}

	if err := cfg.Set(KeyCoordDebounce, "750ms"); err != nil {
		t.Fatalf("Set duration: %v", err)
	}
	if cfg.Coordinator.Debounce != 750*time.Millisecond {
		t.Errorf("debounce = %s, want 750ms", cfg.Coordinator.Debounce)
	}

	if err := cfg.Reset(KeyPoolSize); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if cfg.Pool.Size != 5 {
		t.Errorf("pool size after reset = %d, want 5", cfg.Pool.Size)
	}

	if err := cfg.Set("nope.nope", 1); err == nil {
		t.Error("unknown key should be rejected")
	}
	if _, err := cfg.Get("nope.nope"); err == nil {
		t.Error("unknown key should be rejected")
	}
}

func TestFolders(t *testing.T) {
	cfg := Default()

	if err := cfg.SetFolder(KeyFolderPlans, "Docs/Plans"); err != nil {
		t.Fatalf("SetFolder: %v", err)
	}
	got, err := cfg.GetFolder(KeyFolderPlans)
	if err != nil || got != "Docs/Plans" {
		t.Errorf("GetFolder = %q (%v)", got, err)
	}

	cfg.ResetFolders()
	got, _ = cfg.GetFolder(KeyFolderPlans)
	if got != Default().Folders.Plans {
		t.Errorf("folders not reset: %q", got)
	}

	if err := cfg.SetFolder("bogus", "x"); err == nil {
		t.Error("unknown folder should be rejected")
	}
	if err := cfg.SetFolder(KeyFolderPlans, ""); err == nil {
		t.Error("empty path should be rejected")
	}
}
