package models

import "time"

// AgentState represents where an agent sits in the pool lifecycle.
// An agent is in exactly one state at any instant.
type AgentState string

const (
	// AgentStateAvailable indicates the agent is idle and claimable.
	AgentStateAvailable AgentState = "available"
	// AgentStateAllocated indicates the agent is bound to a workflow but not
	// yet executing a task ("on the bench").
	AgentStateAllocated AgentState = "allocated"
	// AgentStateBusy indicates the agent is actively executing a task.
	AgentStateBusy AgentState = "busy"
	// AgentStateResting indicates the agent is in its post-release cooldown.
	AgentStateResting AgentState = "resting"
)

// Valid returns true if the state is a known value.
func (s AgentState) Valid() bool {
	switch s {
	case AgentStateAvailable, AgentStateAllocated, AgentStateBusy, AgentStateResting:
		return true
	default:
		return false
	}
}

// Agent is a named worker identity in the pool. The identity is stable for
// the lifetime of the pool; only its state cycles. The external process that
// physically performs the work is out of scope here.
type Agent struct {
	// Name is the stable identity, e.g. "Alex".
	Name string `json:"name"`
	// RoleID is the role this agent is currently playing, if allocated.
	RoleID string `json:"role_id,omitempty"`
	// State is the current lifecycle state.
	State AgentState `json:"state"`
	// SessionID is the owning session while not available.
	SessionID string `json:"session_id,omitempty"`
	// WorkflowID is the owning workflow while not available.
	WorkflowID string `json:"workflow_id,omitempty"`
	// CoordinatorID identifies the daemon instance that bound this agent.
	CoordinatorID string `json:"coordinator_id,omitempty"`
	// TaskID is the task being executed while busy.
	TaskID string `json:"task_id,omitempty"`
	// AllocatedAt is when the agent left the available pool.
	AllocatedAt *time.Time `json:"allocated_at,omitempty"`
	// RestingSince is when the agent entered its cooldown.
	RestingSince *time.Time `json:"resting_since,omitempty"`
}
