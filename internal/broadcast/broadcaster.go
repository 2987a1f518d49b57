// Package broadcast decouples producers of state changes from transport
// delivery. The daemon registers each client connection as a Sink; domain
// components publish events without knowing who is listening.
package broadcast

import (
	"log"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mkade/foreman/internal/metrics"
	"github.com/mkade/foreman/internal/protocol"
)

// Sink delivers events to one client connection.
type Sink interface {
	// ID is the connection id, unique for the life of the connection.
	ID() string
	// Send delivers one event. Errors are logged by the broadcaster and the
	// event is dropped for that sink; delivery to other sinks continues.
	Send(ev protocol.Event) error
}

// Stats snapshots the broadcaster's diagnostic counters.
type Stats struct {
	TotalBroadcasts uint64            `json:"total_broadcasts"`
	PerEvent        map[string]uint64 `json:"per_event"`
	LastEvent       string            `json:"last_event,omitempty"`
	LastEventAt     time.Time         `json:"last_event_at,omitempty"`
	Sinks           int               `json:"sinks"`
	Subscriptions   int               `json:"subscriptions"`
}

// Broadcaster fans events out to registered sinks with session scoping.
// It keeps two mirrored subscription indexes (connection -> sessions and
// session -> connections) that are mutated only through its paired
// subscribe/unsubscribe calls, so the maps never drift apart.
type Broadcaster struct {
	mu    sync.RWMutex
	sinks map[string]Sink
	// connSessions maps connection id -> set of subscribed session ids.
	connSessions map[string]map[string]struct{}
	// sessionConns maps session id -> set of subscribed connection ids.
	sessionConns map[string]map[string]struct{}

	total     uint64
	perEvent  map[string]uint64
	lastEvent string
	lastAt    time.Time
}

// New creates an empty broadcaster.
func New() *Broadcaster {
	return &Broadcaster{
		sinks:        make(map[string]Sink),
		connSessions: make(map[string]map[string]struct{}),
		sessionConns: make(map[string]map[string]struct{}),
		perEvent:     make(map[string]uint64),
	}
}

// RegisterSink attaches a connection's sink.
func (b *Broadcaster) RegisterSink(s Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sinks[s.ID()] = s
}

// Broadcast delivers an event to every registered sink. A session-scoped
// event name carrying a session id is routed through the session's
// subscriber set instead, so callers cannot leak scoped events to every
// client by picking the wrong entry point. For system-scoped events the
// session id is stamped for downstream filtering but does not restrict
// delivery.
func (b *Broadcaster) Broadcast(event string, data interface{}, sessionID string) {
	if sessionID != "" && protocol.SessionScoped(event) {
		b.BroadcastToSession(sessionID, event, data)
		return
	}
	ev := protocol.Event{Event: event, Data: data, Timestamp: time.Now(), SessionID: sessionID}

	b.mu.Lock()
	b.count(event)
	targets := make([]Sink, 0, len(b.sinks))
	for _, s := range b.sinks {
		targets = append(targets, s)
	}
	b.mu.Unlock()

	b.deliver(targets, ev)
}

// BroadcastToSession delivers an event only to connections subscribed to the
// session. With zero subscribers it falls back to broadcasting to all sinks,
// so clients that never subscribe still observe activity.
func (b *Broadcaster) BroadcastToSession(sessionID, event string, data interface{}) {
	ev := protocol.Event{Event: event, Data: data, Timestamp: time.Now(), SessionID: sessionID}

	b.mu.Lock()
	b.count(event)
	var targets []Sink
	if conns := b.sessionConns[sessionID]; len(conns) > 0 {
		for id := range conns {
			if s, ok := b.sinks[id]; ok {
				targets = append(targets, s)
			}
		}
	} else {
		for _, s := range b.sinks {
			targets = append(targets, s)
		}
	}
	b.mu.Unlock()

	b.deliver(targets, ev)
}

// deliver fans one event out to every target concurrently, so one slow
// client cannot stall delivery to the rest. It returns once every sink has
// accepted or rejected the event, which keeps event order stable per sink
// across successive broadcasts.
func (b *Broadcaster) deliver(targets []Sink, ev protocol.Event) {
	var g errgroup.Group
	for _, s := range targets {
		s := s
		g.Go(func() error {
			if err := s.Send(ev); err != nil {
				log.Printf("[broadcast] send %s to connection %s: %v", ev.Event, s.ID(), err)
			}
			return nil
		})
	}
	g.Wait()
}

// count updates diagnostics. Callers hold b.mu.
func (b *Broadcaster) count(event string) {
	b.total++
	b.perEvent[event]++
	b.lastEvent = event
	b.lastAt = time.Now()
	metrics.BroadcastsTotal.Inc()
	metrics.EventsByType.WithLabelValues(event).Inc()
}

// SubscribeToSession adds the connection to a session's subscriber set and
// mirrors the edge on the connection's subscription set.
func (b *Broadcaster) SubscribeToSession(connID, sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.connSessions[connID] == nil {
		b.connSessions[connID] = make(map[string]struct{})
	}
	b.connSessions[connID][sessionID] = struct{}{}
	if b.sessionConns[sessionID] == nil {
		b.sessionConns[sessionID] = make(map[string]struct{})
	}
	b.sessionConns[sessionID][connID] = struct{}{}
}

// UnsubscribeFromSession removes one connection-session edge from both
// indexes, dropping empty entries immediately.
func (b *Broadcaster) UnsubscribeFromSession(connID, sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeEdge(connID, sessionID)
}

// UnsubscribeConnection removes the sink and every subscription edge for a
// connection. Called on disconnect.
func (b *Broadcaster) UnsubscribeConnection(connID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.sinks, connID)
	for sessionID := range b.connSessions[connID] {
		b.removeEdge(connID, sessionID)
	}
	delete(b.connSessions, connID)
}

// UnsubscribeSession removes every subscription edge for a session. Called on
// session completion or removal so high-churn session ids never accumulate.
func (b *Broadcaster) UnsubscribeSession(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for connID := range b.sessionConns[sessionID] {
		if set := b.connSessions[connID]; set != nil {
			delete(set, sessionID)
			if len(set) == 0 {
				delete(b.connSessions, connID)
			}
		}
	}
	delete(b.sessionConns, sessionID)
}

// removeEdge deletes one edge from both indexes. Callers hold b.mu.
func (b *Broadcaster) removeEdge(connID, sessionID string) {
	if set := b.connSessions[connID]; set != nil {
		delete(set, sessionID)
		if len(set) == 0 {
			delete(b.connSessions, connID)
		}
	}
	if set := b.sessionConns[sessionID]; set != nil {
		delete(set, connID)
		if len(set) == 0 {
			delete(b.sessionConns, sessionID)
		}
	}
}

// Subscriptions returns the session ids a connection is subscribed to.
func (b *Broadcaster) Subscriptions(connID string) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return sortedKeys(b.connSessions[connID])
}

// Subscribers returns the connection ids subscribed to a session.
func (b *Broadcaster) Subscribers(sessionID string) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return sortedKeys(b.sessionConns[sessionID])
}

// Stats returns a snapshot of the diagnostic counters.
func (b *Broadcaster) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	per := make(map[string]uint64, len(b.perEvent))
	for k, v := range b.perEvent {
		per[k] = v
	}
	subs := 0
	for _, set := range b.connSessions {
		subs += len(set)
	}
	return Stats{
		TotalBroadcasts: b.total,
		PerEvent:        per,
		LastEvent:       b.lastEvent,
		LastEventAt:     b.lastAt,
		Sinks:           len(b.sinks),
		Subscriptions:   subs,
	}
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
