package config

import (
	"fmt"
	"strconv"
	"time"

	"github.com/mkade/foreman/internal/protocol"
)

// Settable keys, a closed set. Unknown keys are rejected at the boundary
// rather than silently written through viper.
const (
	KeyPoolSize           = "pool.size"
	KeyPoolRestCooldown   = "pool.rest_cooldown"
	KeyCoordDebounce      = "coordinator.debounce"
	KeyCoordCooldown      = "coordinator.cooldown"
	KeyCoordMaxRetries    = "coordinator.max_retries"
	KeyDaemonIdleShutdown = "daemon.idle_shutdown"
	KeyUnityBridgeURL     = "unity.bridge_url"

	KeyFolderPlans = "plans"
	KeyFolderState = "state"
	KeyFolderLogs  = "logs"
)

// Get reads one settable key's current value.
func (c *Config) Get(key string) (interface{}, error) {
	switch key {
	case KeyPoolSize:
		return c.Pool.Size, nil
	case KeyPoolRestCooldown:
		return c.Pool.RestCooldown.String(), nil
	case KeyCoordDebounce:
		return c.Coordinator.Debounce.String(), nil
	case KeyCoordCooldown:
		return c.Coordinator.Cooldown.String(), nil
	case KeyCoordMaxRetries:
		return c.Coordinator.MaxRetries, nil
	case KeyDaemonIdleShutdown:
		return c.Daemon.IdleShutdown.String(), nil
	case KeyUnityBridgeURL:
		return c.Unity.BridgeURL, nil
	default:
		return nil, protocol.NotFoundf("unknown config key %q", key)
	}
}

// Set writes one settable key. Values arrive as strings or numbers from the
// wire; durations parse with time.ParseDuration.
func (c *Config) Set(key string, value interface{}) error {
	switch key {
	case KeyPoolSize:
		n, err := toInt(value)
		if err != nil || n < 0 {
			return protocol.InvalidStatef("pool.size must be a non-negative integer")
		}
		c.Pool.Size = n
	case KeyPoolRestCooldown:
		d, err := toDuration(value)
		if err != nil {
			return protocol.InvalidStatef("pool.rest_cooldown: %v", err)
		}
		c.Pool.RestCooldown = d
	case KeyCoordDebounce:
		d, err := toDuration(value)
		if err != nil {
			return protocol.InvalidStatef("coordinator.debounce: %v", err)
		}
		c.Coordinator.Debounce = d
	case KeyCoordCooldown:
		d, err := toDuration(value)
		if err != nil {
			return protocol.InvalidStatef("coordinator.cooldown: %v", err)
		}
		c.Coordinator.Cooldown = d
	case KeyCoordMaxRetries:
		n, err := toInt(value)
		if err != nil || n < 0 {
			return protocol.InvalidStatef("coordinator.max_retries must be a non-negative integer")
		}
		c.Coordinator.MaxRetries = n
	case KeyDaemonIdleShutdown:
		d, err := toDuration(value)
		if err != nil {
			return protocol.InvalidStatef("daemon.idle_shutdown: %v", err)
		}
		c.Daemon.IdleShutdown = d
	case KeyUnityBridgeURL:
		s, ok := value.(string)
		if !ok {
			return protocol.InvalidStatef("unity.bridge_url must be a string")
		}
		c.Unity.BridgeURL = s
	default:
		return protocol.NotFoundf("unknown config key %q", key)
	}
	return nil
}

// Reset restores one settable key (or, with an empty key, every key) to its
// built-in default.
func (c *Config) Reset(key string) error {
	def := Default()
	if key == "" {
		c.Pool = def.Pool
		c.Coordinator = def.Coordinator
		c.Daemon.IdleShutdown = def.Daemon.IdleShutdown
		c.Unity = def.Unity
		return nil
	}
	v, err := def.Get(key)
	if err != nil {
		return err
	}
	return c.Set(key, v)
}

// GetFolder reads one workspace folder location.
func (c *Config) GetFolder(name string) (string, error) {
	switch name {
	case KeyFolderPlans:
		return c.Folders.Plans, nil
	case KeyFolderState:
		return c.Folders.State, nil
	case KeyFolderLogs:
		return c.Folders.Logs, nil
	default:
		return "", protocol.NotFoundf("unknown folder %q", name)
	}
}

// SetFolder writes one workspace folder location.
func (c *Config) SetFolder(name, path string) error {
	if path == "" {
		return protocol.MissingParameter("path")
	}
	switch name {
	case KeyFolderPlans:
		c.Folders.Plans = path
	case KeyFolderState:
		c.Folders.State = path
	case KeyFolderLogs:
		c.Folders.Logs = path
	default:
		return protocol.NotFoundf("unknown folder %q", name)
	}
	return nil
}

// ResetFolders restores all folder locations to their defaults.
func (c *Config) ResetFolders() {
	c.Folders = Default().Folders
}

func toInt(v interface{}) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	case string:
		return strconv.Atoi(n)
	default:
		return 0, fmt.Errorf("not an integer: %T", v)
	}
}

func toDuration(v interface{}) (time.Duration, error) {
	switch d := v.(type) {
	case time.Duration:
		return d, nil
	case string:
		return time.ParseDuration(d)
	case float64:
		return time.Duration(d) * time.Millisecond, nil
	default:
		return 0, fmt.Errorf("not a duration: %T", v)
	}
}
