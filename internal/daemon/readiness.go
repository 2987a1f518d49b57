// Package daemon owns the transport listener, the websocket connection
// registry, and the daemon's readiness lifecycle.
package daemon

import (
	"sync"
	"time"

	"github.com/mkade/foreman/internal/protocol"
)

// ReadyState is one phase of the daemon's readiness lifecycle.
type ReadyState string

const (
	// StateStarting is the initial phase before any checks run.
	StateStarting ReadyState = "starting"
	// StateCheckingDependencies verifies the state store and workspace
	// folders.
	StateCheckingDependencies ReadyState = "checking_dependencies"
	// StateInitializingServices recovers sessions and arms the coordinator.
	// The daemon returns here for an explicit dependency re-check.
	StateInitializingServices ReadyState = "initializing_services"
	// StateReady means all domain services are attached.
	StateReady ReadyState = "ready"
	// StateStopping means a graceful shutdown is under way.
	StateStopping ReadyState = "stopping"
)

// readiness tracks the lifecycle state and caches initialization-phase
// events in a bounded ring so connections attaching late observe the same
// startup narrative as early joiners.
type readiness struct {
	mu      sync.RWMutex
	state   ReadyState
	since   time.Time
	ring    []protocol.Event
	maxRing int
}

func newReadiness(replaySize int) *readiness {
	if replaySize <= 0 {
		replaySize = 100
	}
	return &readiness{
		state:   StateStarting,
		since:   time.Now(),
		maxRing: replaySize,
	}
}

// set advances the lifecycle and returns the event describing the change.
func (r *readiness) set(state ReadyState, detail string) protocol.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = state
	ev := protocol.Event{
		Event:     eventForState(state),
		Data:      map[string]interface{}{"state": string(state), "detail": detail},
		Timestamp: time.Now(),
	}
	r.record(ev)
	return ev
}

// record appends an event to the replay ring, evicting the oldest entry
// once full.
func (r *readiness) record(ev protocol.Event) {
	if len(r.ring) >= r.maxRing {
		copy(r.ring, r.ring[1:])
		r.ring[len(r.ring)-1] = ev
		return
	}
	r.ring = append(r.ring, ev)
}

// Record caches an arbitrary progress event for replay to late joiners.
func (r *readiness) Record(ev protocol.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record(ev)
}

// Replay returns the cached startup events in arrival order.
func (r *readiness) Replay() []protocol.Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]protocol.Event, len(r.ring))
	copy(out, r.ring)
	return out
}

// State returns the current lifecycle phase.
func (r *readiness) State() ReadyState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Ready reports whether domain services are attached.
func (r *readiness) Ready() bool {
	return r.State() == StateReady
}

// Uptime reports time since the daemon began starting.
func (r *readiness) Uptime() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return time.Since(r.since)
}

func eventForState(state ReadyState) string {
	switch state {
	case StateStarting:
		return protocol.EventDaemonStarting
	case StateReady:
		return protocol.EventDaemonReady
	case StateStopping:
		return protocol.EventDaemonShutdown
	default:
		return protocol.EventDaemonInitializing
	}
}
