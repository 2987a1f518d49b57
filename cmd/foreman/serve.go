package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mkade/foreman/internal/broadcast"
	"github.com/mkade/foreman/internal/command"
	"github.com/mkade/foreman/internal/config"
	"github.com/mkade/foreman/internal/coordinator"
	"github.com/mkade/foreman/internal/daemon"
	"github.com/mkade/foreman/internal/plan"
	"github.com/mkade/foreman/internal/pool"
	"github.com/mkade/foreman/internal/protocol"
	"github.com/mkade/foreman/internal/state"
	"github.com/mkade/foreman/internal/taskgraph"
	"github.com/mkade/foreman/internal/unity"
	"github.com/mkade/foreman/internal/workspace"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the daemon in the current workspace",
	Long: `Start the foreman daemon for the current workspace.

The daemon binds a local websocket listener, records a liveness marker so
clients can discover it, and coordinates agent workflows until stopped or
idle past the configured window.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", -1, "Listen port (overrides config; 0 picks a free port)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	workspaceDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("resolving workspace: %w", err)
	}
	resolve := func(p string) string {
		if filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(workspaceDir, p)
	}

	db, err := state.Open(state.Path(resolve(cfg.Folders.State)))
	if err != nil {
		return fmt.Errorf("opening state store: %w", err)
	}
	defer db.Close()

	plansDir := resolve(cfg.Folders.Plans)
	plans, err := plan.NewStore(plansDir)
	if err != nil {
		return fmt.Errorf("opening plan store: %w", err)
	}

	graph := taskgraph.New()
	bus := broadcast.New()

	var coord *coordinator.Coordinator
	agentPool := pool.New(cfg.Pool.Size,
		pool.WithCooldown(cfg.Pool.RestCooldown),
		pool.WithOnAvailable(func(string) {
			if coord != nil {
				coord.Notify()
			}
		}))
	defer agentPool.Close()

	coord = coordinator.New(graph, agentPool, bus, db, coordinator.NewSessionManager(db), coordinator.Options{
		Debounce:   cfg.Coordinator.Debounce,
		Cooldown:   cfg.Coordinator.Cooldown,
		MaxRetries: cfg.Coordinator.MaxRetries,
	})

	router := command.NewRouter(&command.Services{
		Graph:  graph,
		Pool:   agentPool,
		Bus:    bus,
		Coord:  coord,
		Plans:  plans,
		Config: cfg,
		Unity:  unity.New(cfg.Unity.BridgeURL),
		Store:  db,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watcher, err := plan.NewWatcher(plansDir, func(sessionID, path string) {
		bus.BroadcastToSession(sessionID, protocol.EventPlanUpdated, map[string]interface{}{
			"sessionId": sessionID,
			"path":      path,
		})
		coord.Notify()
	})
	if err != nil {
		return fmt.Errorf("watching plans: %w", err)
	}
	defer watcher.Close()
	go watcher.Run(ctx)

	port := cfg.Server.Port
	if servePort >= 0 {
		port = servePort
	}
	d := daemon.New(router, bus, coord, daemon.Options{
		Workspace:      workspaceDir,
		Host:           cfg.Server.Host,
		Port:           port,
		RequestTimeout: cfg.Daemon.RequestTimeout,
		IdleShutdown:   cfg.Daemon.IdleShutdown,
		ReplaySize:     cfg.Daemon.ReplayCacheSize,
		Checks: []daemon.Check{
			{Name: "state store", Run: db.Migrate},
			{Name: "plan folder", Run: func() error {
				_, err := os.Stat(plansDir)
				return err
			}},
		},
	})

	if err := d.Start(); err != nil {
		var running *workspace.ErrAlreadyRunning
		if errors.As(err, &running) {
			return fmt.Errorf("a daemon is already running for this workspace (pid %d, port %d)",
				running.Marker.PID, running.Marker.Port)
		}
		return err
	}
	fmt.Printf("foreman daemon listening on %s:%d (workspace %s)\n", cfg.Server.Host, d.Port(), workspaceDir)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	select {
	case s := <-sig:
		fmt.Printf("received %s, shutting down\n", s)
	case <-d.IdleC():
		fmt.Println("no clients attached, shutting down")
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	return d.Stop(stopCtx)
}
