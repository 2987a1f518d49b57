package models

import "time"

// WorkflowStatus represents the state of a workflow instance.
type WorkflowStatus string

const (
	// WorkflowStatusRunning indicates the workflow is advancing through phases.
	WorkflowStatusRunning WorkflowStatus = "running"
	// WorkflowStatusCompleted indicates the workflow finished successfully.
	WorkflowStatusCompleted WorkflowStatus = "completed"
	// WorkflowStatusFailed indicates the workflow failed.
	WorkflowStatusFailed WorkflowStatus = "failed"
	// WorkflowStatusPaused indicates the workflow is suspended and resumable.
	WorkflowStatusPaused WorkflowStatus = "paused"
)

// Valid returns true if the status is a known value.
func (s WorkflowStatus) Valid() bool {
	switch s {
	case WorkflowStatusRunning, WorkflowStatusCompleted, WorkflowStatusFailed, WorkflowStatusPaused:
		return true
	default:
		return false
	}
}

// Terminal returns true if the workflow will not advance again.
func (s WorkflowStatus) Terminal() bool {
	return s == WorkflowStatusCompleted || s == WorkflowStatusFailed
}

// Workflow is one unit of orchestrated work within a session, such as running
// a single task through an agent. Percentage never decreases while the
// workflow is running.
type Workflow struct {
	// ID is the unique identifier for this workflow instance.
	ID string `json:"id"`
	// SessionID is the owning session.
	SessionID string `json:"session_id"`
	// Type tags the kind of workflow (e.g. "task_execution", "plan_revision").
	Type string `json:"type"`
	// Status is the current state.
	Status WorkflowStatus `json:"status"`
	// Phase is the human-readable name of the current phase.
	Phase string `json:"phase,omitempty"`
	// PhaseIndex is the 0-based index of the current phase.
	PhaseIndex int `json:"phase_index"`
	// TotalPhases is the number of phases in this workflow.
	TotalPhases int `json:"total_phases"`
	// Percentage is overall progress, 0-100.
	Percentage int `json:"percentage"`
	// Message is the latest human-readable progress message.
	Message string `json:"message,omitempty"`
	// TaskID is the associated task, if this workflow carries one.
	TaskID string `json:"task_id,omitempty"`
	// AgentName is the agent bound to this workflow, if any.
	AgentName string `json:"agent_name,omitempty"`
	// Error holds the failure reason for failed workflows.
	Error string `json:"error,omitempty"`
	// StartedAt is when the workflow was dispatched.
	StartedAt time.Time `json:"started_at"`
	// UpdatedAt is when the workflow last advanced.
	UpdatedAt time.Time `json:"updated_at"`
}
