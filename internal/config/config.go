// Package config handles configuration loading and management for the
// foreman daemon. It supports XDG config paths, project-level overrides, and
// environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the daemon.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Pool        PoolConfig        `mapstructure:"pool"`
	Coordinator CoordinatorConfig `mapstructure:"coordinator"`
	Daemon      DaemonConfig      `mapstructure:"daemon"`
	Folders     FoldersConfig     `mapstructure:"folders"`
	Unity       UnityConfig       `mapstructure:"unity"`
}

// ServerConfig holds transport listener settings.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// PoolConfig holds agent pool settings.
type PoolConfig struct {
	Size         int           `mapstructure:"size"`
	RestCooldown time.Duration `mapstructure:"rest_cooldown"`
}

// CoordinatorConfig holds evaluation loop settings.
type CoordinatorConfig struct {
	Debounce   time.Duration `mapstructure:"debounce"`
	Cooldown   time.Duration `mapstructure:"cooldown"`
	MaxRetries int           `mapstructure:"max_retries"`
}

// DaemonConfig holds connection lifecycle settings.
type DaemonConfig struct {
	IdleShutdown    time.Duration `mapstructure:"idle_shutdown"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ReplayCacheSize int           `mapstructure:"replay_cache_size"`
}

// FoldersConfig holds workspace folder locations. Relative paths resolve
// against the workspace root.
type FoldersConfig struct {
	Plans string `mapstructure:"plans"`
	State string `mapstructure:"state"`
	Logs  string `mapstructure:"logs"`
}

// UnityConfig holds the optional Unity editor bridge settings. An empty URL
// means the bridge capability is absent.
type UnityConfig struct {
	BridgeURL string `mapstructure:"bridge_url"`
}

// Load loads configuration from XDG paths, project overrides, and environment
// variables. Precedence (highest to lowest):
// 1. Environment variables (FOREMAN_*)
// 2. Project config (.foreman.yaml in current directory or parent)
// 3. User config (~/.config/foreman/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(getUserConfigDir())

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.SetEnvPrefix("FOREMAN")
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return cfg, nil
}

// LoadFromPath loads configuration from a specific file (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return cfg, nil
}

// Default returns the built-in defaults without touching the filesystem.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		// Defaults always unmarshal; a failure here is a programming error.
		panic(fmt.Sprintf("config: defaults: %v", err))
	}
	return cfg
}

// Save writes the configuration to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(filepath.Join(userConfigDir, "config.yaml"))

	v.Set("server.host", cfg.Server.Host)
	v.Set("server.port", cfg.Server.Port)
	v.Set("pool.size", cfg.Pool.Size)
	v.Set("pool.rest_cooldown", cfg.Pool.RestCooldown.String())
	v.Set("coordinator.debounce", cfg.Coordinator.Debounce.String())
	v.Set("coordinator.cooldown", cfg.Coordinator.Cooldown.String())
	v.Set("coordinator.max_retries", cfg.Coordinator.MaxRetries)
	v.Set("daemon.idle_shutdown", cfg.Daemon.IdleShutdown.String())
	v.Set("daemon.request_timeout", cfg.Daemon.RequestTimeout.String())
	v.Set("daemon.replay_cache_size", cfg.Daemon.ReplayCacheSize)
	v.Set("folders.plans", cfg.Folders.Plans)
	v.Set("folders.state", cfg.Folders.State)
	v.Set("folders.logs", cfg.Folders.Logs)
	v.Set("unity.bridge_url", cfg.Unity.BridgeURL)

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// setDefaults configures built-in default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 0) // 0 picks a free port, recorded in the liveness marker

	v.SetDefault("pool.size", 5)
	v.SetDefault("pool.rest_cooldown", "5s")

	v.SetDefault("coordinator.debounce", "500ms")
	v.SetDefault("coordinator.cooldown", "1s")
	v.SetDefault("coordinator.max_retries", 2)

	v.SetDefault("daemon.idle_shutdown", "60s")
	v.SetDefault("daemon.request_timeout", "30s")
	v.SetDefault("daemon.replay_cache_size", 100)

	v.SetDefault("folders.plans", "_AiDevLog/Plans")
	v.SetDefault("folders.state", ".foreman")
	v.SetDefault("folders.logs", "_AiDevLog/Logs")

	v.SetDefault("unity.bridge_url", "")
}

// getUserConfigDir returns the XDG config directory for foreman.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "foreman")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "foreman")
	}
	return filepath.Join(home, ".config", "foreman")
}

// findProjectConfig searches for .foreman.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		configPath := filepath.Join(cwd, ".foreman.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}
	return ""
}
