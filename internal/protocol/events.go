package protocol

import "strings"

// Event names follow the "category.action" convention. Events whose category
// appears in sessionScopedPrefixes are delivered only to connections
// subscribed to the carrying session; everything else goes to all clients.
const (
	EventSessionCreated   = "session.created"
	EventSessionUpdated   = "session.updated"
	EventSessionRemoved   = "session.removed"
	EventSessionPaused    = "session.paused"
	EventSessionResumed   = "session.resumed"
	EventSessionCompleted = "session.completed"

	EventPlanCreated  = "plan.created"
	EventPlanRevised  = "plan.revised"
	EventPlanApproved = "plan.approved"
	EventPlanUpdated  = "plan.updated"

	EventExecStarted = "exec.started"
	EventExecPaused  = "exec.paused"
	EventExecResumed = "exec.resumed"
	EventExecStopped = "exec.stopped"

	EventWorkflowDispatched = "workflow.dispatched"
	EventWorkflowProgress   = "workflow.progress"
	EventWorkflowCompleted  = "workflow.completed"
	EventWorkflowFailed     = "workflow.failed"
	EventWorkflowCancelled  = "workflow.cancelled"

	EventAgentAllocated = "agent.allocated"
	EventAgentBusy      = "agent.busy"
	EventAgentReleased  = "agent.released"

	EventTaskCreated      = "task.created"
	EventTaskStarted      = "task.started"
	EventTaskCompleted    = "task.completed"
	EventTaskFailed       = "task.failed"
	EventTaskReady        = "task.ready"
	EventTaskFinalFailure = "task.final_failure"

	EventDaemonStarting     = "daemon.starting"
	EventDaemonInitializing = "daemon.initializing"
	EventDaemonReady        = "daemon.ready"
	EventDaemonShutdown     = "daemon.shutdown"

	EventClientConnected    = "client.connected"
	EventClientDisconnected = "client.disconnected"

	EventPoolResized = "pool.resized"
	EventRoleUpdated = "pool.role_updated"

	EventUnityStatus = "unity.status"

	EventCoordinatorEvaluating = "coordinator.evaluating"
	EventCoordinatorEvaluated  = "coordinator.evaluated"

	EventError = "error"
)

// sessionScopedPrefixes lists the event categories scoped to a session.
var sessionScopedPrefixes = []string{
	"session.", "plan.", "exec.", "workflow.", "agent.", "task.",
}

// SessionScoped reports whether an event name is delivered per-session rather
// than broadcast to every client.
func SessionScoped(event string) bool {
	for _, p := range sessionScopedPrefixes {
		if strings.HasPrefix(event, p) {
			return true
		}
	}
	return false
}
