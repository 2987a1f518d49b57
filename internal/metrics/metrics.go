// Package metrics exposes the daemon's prometheus collectors. Components
// update these directly; the daemon serves them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BroadcastsTotal counts every event handed to the broadcaster.
	BroadcastsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "foreman",
		Subsystem: "broadcast",
		Name:      "events_total",
		Help:      "Total events broadcast to clients.",
	})

	// EventsByType counts broadcasts per event name.
	EventsByType = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "foreman",
		Subsystem: "broadcast",
		Name:      "events_by_type_total",
		Help:      "Events broadcast, partitioned by event name.",
	}, []string{"event"})

	// EvaluationsTotal counts coordinator evaluation passes.
	EvaluationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "foreman",
		Subsystem: "coordinator",
		Name:      "evaluations_total",
		Help:      "Total coordinator evaluation passes.",
	})

	// PendingEvents gauges events waiting for the next evaluation pass.
	PendingEvents = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "foreman",
		Subsystem: "coordinator",
		Name:      "pending_events",
		Help:      "Events coalesced into the pending evaluation window.",
	})

	// PoolAgents gauges pool occupancy by lifecycle state.
	PoolAgents = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "foreman",
		Subsystem: "pool",
		Name:      "agents",
		Help:      "Agents in the pool, partitioned by state.",
	}, []string{"state"})

	// ConnectedClients gauges currently attached client connections.
	ConnectedClients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "foreman",
		Subsystem: "daemon",
		Name:      "connected_clients",
		Help:      "Client connections currently attached.",
	})

	// ActiveWorkflows gauges workflows in the running state.
	ActiveWorkflows = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "foreman",
		Subsystem: "coordinator",
		Name:      "active_workflows",
		Help:      "Workflows currently running.",
	})
)
