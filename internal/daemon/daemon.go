// Package daemon hosts the websocket transport: it upgrades client
// connections, feeds decoded requests to the command router, and fans
// broadcast events back out. It also owns the readiness lifecycle and the
// workspace liveness marker.
package daemon

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mkade/foreman/internal/broadcast"
	"github.com/mkade/foreman/internal/command"
	"github.com/mkade/foreman/internal/coordinator"
	"github.com/mkade/foreman/internal/metrics"
	"github.com/mkade/foreman/internal/protocol"
	"github.com/mkade/foreman/internal/workspace"
)

// Check is one startup dependency probe, run during the
// checking_dependencies phase. A failing check aborts startup.
type Check struct {
	Name string
	Run  func() error
}

// Options configures the daemon transport.
type Options struct {
	// Workspace is the absolute project root; the liveness marker is keyed
	// on it. Empty disables marker management (tests).
	Workspace string
	Host      string
	// Port 0 asks the kernel for a free port; the chosen port lands in the
	// liveness marker.
	Port           int
	RequestTimeout time.Duration
	// IdleShutdown is how long the daemon lingers with zero clients before
	// requesting its own shutdown. Zero disables idle shutdown.
	IdleShutdown time.Duration
	// ReplaySize bounds the lifecycle event ring replayed to new clients.
	ReplaySize int
	// Checks run in order during startup, before services initialize.
	Checks []Check
}

// Daemon is the long-running connection host.
type Daemon struct {
	router *command.Router
	bus    *broadcast.Broadcaster
	coord  *coordinator.Coordinator

	engine   *gin.Engine
	server   *http.Server
	listener net.Listener
	upgrader websocket.Upgrader

	ready *readiness

	workspace      string
	host           string
	port           int
	requestTimeout time.Duration
	idleShutdown   time.Duration
	checks         []Check

	mu          sync.RWMutex
	connections map[string]*clientConnection
	idleTimer   *time.Timer

	idleC chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
}

// New builds a daemon around an already-wired router. Start must be called
// before clients can attach.
func New(router *command.Router, bus *broadcast.Broadcaster, coord *coordinator.Coordinator, opts Options) *Daemon {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if opts.ReplaySize <= 0 {
		opts.ReplaySize = 100
	}
	if opts.Host == "" {
		opts.Host = "127.0.0.1"
	}

	d := &Daemon{
		router:         router,
		bus:            bus,
		coord:          coord,
		ready:          newReadiness(opts.ReplaySize),
		workspace:      opts.Workspace,
		host:           opts.Host,
		port:           opts.Port,
		requestTimeout: opts.RequestTimeout,
		idleShutdown:   opts.IdleShutdown,
		checks:         opts.Checks,
		connections:    make(map[string]*clientConnection),
		idleC:          make(chan struct{}, 1),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	engine.Use(cors.New(corsConfig))

	engine.GET("/health", d.handleHealth)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	engine.GET("/ws", d.handleWS)
	d.engine = engine

	return d
}

// Handler exposes the HTTP mux for tests.
func (d *Daemon) Handler() http.Handler { return d.engine }

// IdleC signals once when the idle-shutdown window elapses with no clients
// attached. The owner is expected to call Stop.
func (d *Daemon) IdleC() <-chan struct{} { return d.idleC }

// Port returns the bound listen port. Valid after Start.
func (d *Daemon) Port() int { return d.port }

// Ready reports whether startup has completed.
func (d *Daemon) Ready() bool { return d.ready.Ready() }

// Start walks the readiness lifecycle, binds the listener, writes the
// liveness marker, and begins serving. It returns once the daemon is ready;
// serving continues in the background.
func (d *Daemon) Start() error {
	d.announce(d.ready.set(StateStarting, "daemon starting"))

	d.announce(d.ready.set(StateCheckingDependencies, "checking dependencies"))
	for _, check := range d.checks {
		if err := check.Run(); err != nil {
			return fmt.Errorf("dependency check %s: %w", check.Name, err)
		}
		log.Printf("[daemon] dependency check passed: %s", check.Name)
	}

	d.announce(d.ready.set(StateInitializingServices, "initializing services"))
	if d.coord != nil {
		recovered, err := d.coord.RecoverAllSessions()
		if err != nil {
			return fmt.Errorf("recovering sessions: %w", err)
		}
		if recovered > 0 {
			log.Printf("[daemon] recovered %d session(s)", recovered)
			ev := protocol.Event{
				Event:     protocol.EventDaemonInitializing,
				Data:      map[string]interface{}{"recoveredSessions": recovered},
				Timestamp: time.Now(),
			}
			d.ready.Record(ev)
			d.announce(ev)
		}
	}

	addr := fmt.Sprintf("%s:%d", d.host, d.port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	d.listener = ln
	d.port = ln.Addr().(*net.TCPAddr).Port

	if d.workspace != "" {
		if err := workspace.Acquire(d.workspace, os.Getpid(), d.port); err != nil {
			ln.Close()
			return fmt.Errorf("acquiring workspace marker: %w", err)
		}
	}

	d.server = &http.Server{Handler: d.engine}
	go func() {
		if err := d.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Printf("[daemon] serve: %v", err)
		}
	}()

	d.announce(d.ready.set(StateReady, fmt.Sprintf("listening on %s:%d", d.host, d.port)))
	d.armIdleTimer()
	log.Printf("[daemon] ready on %s:%d", d.host, d.port)
	return nil
}

// Recheck drops the daemon back to initializing_services, re-runs the
// dependency checks, and returns to ready. On a failing check the daemon
// stays in initializing_services; the health surface reports it as degraded
// until a later recheck passes.
func (d *Daemon) Recheck() error {
	d.announce(d.ready.set(StateInitializingServices, "dependency re-check"))
	for _, check := range d.checks {
		if err := check.Run(); err != nil {
			return fmt.Errorf("dependency re-check %s: %w", check.Name, err)
		}
		log.Printf("[daemon] dependency re-check passed: %s", check.Name)
	}
	d.announce(d.ready.set(StateReady, fmt.Sprintf("listening on %s:%d", d.host, d.port)))
	return nil
}

// Stop drains the daemon: pauses running work, notifies clients, closes
// connections, releases the liveness marker, and shuts the server down.
func (d *Daemon) Stop(ctx context.Context) error {
	d.cancel()

	d.mu.Lock()
	if d.idleTimer != nil {
		d.idleTimer.Stop()
		d.idleTimer = nil
	}
	d.mu.Unlock()

	var report coordinator.ShutdownReport
	if d.coord != nil {
		report = d.coord.GracefulShutdown()
	}

	ev := d.ready.set(StateStopping, "daemon shutting down")
	ev.Data = map[string]interface{}{
		"pausedWorkflows": report.PausedWorkflows,
		"releasedAgents":  report.ReleasedAgents,
	}
	d.bus.Broadcast(ev.Event, ev.Data, "")

	d.mu.Lock()
	conns := make([]*clientConnection, 0, len(d.connections))
	for _, c := range d.connections {
		conns = append(conns, c)
	}
	d.connections = make(map[string]*clientConnection)
	d.mu.Unlock()

	for _, c := range conns {
		c.markClosed()
		c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "daemon shutdown"),
			time.Now().Add(time.Second))
		c.ws.Close()
		d.bus.UnsubscribeConnection(c.id)
	}
	metrics.ConnectedClients.Set(0)

	if d.workspace != "" {
		if err := workspace.Release(d.workspace); err != nil {
			log.Printf("[daemon] releasing marker: %v", err)
		}
	}

	if d.server != nil {
		return d.server.Shutdown(ctx)
	}
	return nil
}

// announce records a lifecycle event and broadcasts it to attached clients.
func (d *Daemon) announce(ev protocol.Event) {
	d.bus.Broadcast(ev.Event, ev.Data, "")
}

func (d *Daemon) handleHealth(c *gin.Context) {
	status := "initializing"
	if d.ready.Ready() {
		status = "ok"
	}
	state := d.ready.State()
	c.JSON(http.StatusOK, gin.H{
		"status":        status,
		"state":         string(state),
		"readyState":    string(state),
		"uptimeSeconds": int(d.ready.Uptime().Seconds()),
		"clients":       d.clientCount(),
		"servicesReady": d.ready.Ready(),
	})
}

func (d *Daemon) handleWS(c *gin.Context) {
	if !d.ready.Ready() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "daemon not ready",
			"state": string(d.ready.State()),
		})
		return
	}

	ws, err := d.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[daemon] websocket upgrade: %v", err)
		return
	}

	conn := &clientConnection{
		id:           "conn-" + uuid.NewString()[:8],
		kind:         classifyClient(c.Request),
		ws:           ws,
		connectedAt:  time.Now(),
		lastActivity: time.Now(),
	}
	d.connect(conn)
	d.readLoop(d.ctx, conn)
}

// connect registers the connection, replays the lifecycle ring so late
// joiners see how the daemon came up, and announces the arrival.
func (d *Daemon) connect(c *clientConnection) {
	d.mu.Lock()
	d.connections[c.id] = c
	if d.idleTimer != nil {
		d.idleTimer.Stop()
		d.idleTimer = nil
	}
	count := len(d.connections)
	d.mu.Unlock()

	d.bus.RegisterSink(c)
	metrics.ConnectedClients.Inc()
	log.Printf("[daemon] client connected: %s (%s), %d total", c.id, c.kind, count)

	for _, ev := range d.ready.Replay() {
		if err := c.Send(ev); err != nil {
			log.Printf("[daemon] replay to %s: %v", c.id, err)
			break
		}
	}

	d.bus.Broadcast(protocol.EventClientConnected, map[string]interface{}{
		"connectionId": c.id,
		"clientType":   c.kind,
		"clients":      count,
	}, "")
}

// disconnect tears the connection down and arms the idle-shutdown timer when
// it was the last one.
func (d *Daemon) disconnect(c *clientConnection) {
	c.markClosed()
	c.ws.Close()
	d.bus.UnsubscribeConnection(c.id)

	d.mu.Lock()
	if _, ok := d.connections[c.id]; !ok {
		// Already removed by Stop.
		d.mu.Unlock()
		return
	}
	delete(d.connections, c.id)
	count := len(d.connections)
	d.mu.Unlock()

	metrics.ConnectedClients.Dec()
	log.Printf("[daemon] client disconnected: %s (%s), %d remain", c.id, c.kind, count)

	d.bus.Broadcast(protocol.EventClientDisconnected, map[string]interface{}{
		"connectionId": c.id,
		"clientType":   c.kind,
		"clients":      count,
	}, "")

	if count == 0 {
		d.armIdleTimer()
	}
}

// armIdleTimer starts the idle-shutdown countdown if enabled and no clients
// are attached. Callers must not hold d.mu.
func (d *Daemon) armIdleTimer() {
	if d.idleShutdown <= 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.connections) > 0 || d.idleTimer != nil {
		return
	}
	d.idleTimer = time.AfterFunc(d.idleShutdown, func() {
		d.mu.Lock()
		stillIdle := len(d.connections) == 0
		d.idleTimer = nil
		d.mu.Unlock()
		if !stillIdle {
			return
		}
		log.Printf("[daemon] idle for %s with no clients, requesting shutdown", d.idleShutdown)
		select {
		case d.idleC <- struct{}{}:
		default:
		}
	})
}

func (d *Daemon) clientCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.connections)
}
