package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mkade/foreman/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Manage configuration",
	Long: `View or modify foreman configuration.

Without arguments, displays current configuration.
With one argument (key), displays the value for that key.
With two arguments (key value), sets the configuration value.

Configuration is stored at ~/.config/foreman/config.yaml
Project-specific overrides can be placed in .foreman.yaml`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}

		switch len(args) {
		case 0:
			displayAllConfig(cfg)
		case 1:
			displayConfigKey(cfg, args[0])
		default:
			setConfigKey(cfg, args[0], args[1])
		}
	},
}

var settableKeys = []string{
	config.KeyPoolSize,
	config.KeyPoolRestCooldown,
	config.KeyCoordDebounce,
	config.KeyCoordCooldown,
	config.KeyCoordMaxRetries,
	config.KeyDaemonIdleShutdown,
	config.KeyUnityBridgeURL,
}

// displayAllConfig prints all configuration values.
func displayAllConfig(cfg *config.Config) {
	fmt.Printf("server.host: %s\n", cfg.Server.Host)
	fmt.Printf("server.port: %d\n", cfg.Server.Port)
	for _, key := range settableKeys {
		value, err := cfg.Get(key)
		if err != nil {
			continue
		}
		fmt.Printf("%s: %v\n", key, value)
	}
	fmt.Printf("folders.plans: %s\n", cfg.Folders.Plans)
	fmt.Printf("folders.state: %s\n", cfg.Folders.State)
	fmt.Printf("folders.logs: %s\n", cfg.Folders.Logs)
}

// displayConfigKey prints a single configuration value.
func displayConfigKey(cfg *config.Config, key string) {
	value, err := cfg.Get(key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(value)
}

// setConfigKey sets a configuration value and saves the config.
func setConfigKey(cfg *config.Config, key, value string) {
	if err := cfg.Set(key, value); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := config.Save(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("%s set to %s\n", key, value)
}
