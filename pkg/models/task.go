package models

import (
	"fmt"
	"strings"
	"time"
)

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	// TaskStatusCreated indicates the task exists and has no unmet dependencies,
	// but has not been picked up yet.
	TaskStatusCreated TaskStatus = "created"
	// TaskStatusBlocked indicates at least one dependency is incomplete.
	TaskStatusBlocked TaskStatus = "blocked"
	// TaskStatusReady indicates all dependencies are complete and the task is runnable.
	TaskStatusReady TaskStatus = "ready"
	// TaskStatusInProgress indicates the task is being worked on.
	TaskStatusInProgress TaskStatus = "in_progress"
	// TaskStatusCompleted indicates the task completed successfully.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusFailed indicates the task failed. Failed is terminal.
	TaskStatusFailed TaskStatus = "failed"
	// TaskStatusPaused indicates the task is suspended by a session pause.
	TaskStatusPaused TaskStatus = "paused"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusCreated, TaskStatusBlocked, TaskStatusReady, TaskStatusInProgress,
		TaskStatusCompleted, TaskStatusFailed, TaskStatusPaused:
		return true
	default:
		return false
	}
}

// Terminal returns true if no further transitions are allowed from this status.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// TaskType classifies the kind of work a task represents.
type TaskType string

const (
	// TaskTypeImplementation is a regular feature or refactor task.
	TaskTypeImplementation TaskType = "implementation"
	// TaskTypeErrorFix is a task created to repair a failure.
	TaskTypeErrorFix TaskType = "error_fix"
)

// Valid returns true if the task type is a known value.
func (t TaskType) Valid() bool {
	return t == TaskTypeImplementation || t == TaskTypeErrorFix
}

// GlobalTaskID builds the canonical task identifier from a session and local id.
func GlobalTaskID(sessionID, localID string) string {
	return fmt.Sprintf("%s_%s", sessionID, localID)
}

// SplitTaskID splits a global task id into its session and local parts.
// Returns an empty session id if the id carries no session prefix.
func SplitTaskID(globalID string) (sessionID, localID string) {
	if i := strings.Index(globalID, "_"); i > 0 {
		return globalID[:i], globalID[i+1:]
	}
	return "", globalID
}

// Task represents a unit of work in a session's dependency graph.
type Task struct {
	// ID is the global identifier, "<sessionID>_<localID>".
	ID string `json:"id"`
	// SessionID is the owning session.
	SessionID string `json:"session_id"`
	// LocalID is the id local to the session, unique within it.
	LocalID string `json:"local_id"`
	// Description describes the work to be done.
	Description string `json:"description"`
	// Status is the current state of the task.
	Status TaskStatus `json:"status"`
	// Type classifies the task.
	Type TaskType `json:"type"`
	// Dependencies lists local ids of tasks that must complete before this one.
	Dependencies []string `json:"dependencies,omitempty"`
	// Dependents lists local ids of tasks blocked on this one. Maintained by
	// the graph, never set by callers.
	Dependents []string `json:"dependents,omitempty"`
	// Priority orders ready tasks; higher runs first.
	Priority int `json:"priority"`
	// AssignedAgent is the name of the agent working this task, if any.
	AssignedAgent string `json:"assigned_agent,omitempty"`
	// ModifiedFiles lists files touched while executing the task.
	ModifiedFiles []string `json:"modified_files,omitempty"`
	// WorkflowID is the workflow currently carrying this task, if any.
	WorkflowID string `json:"workflow_id,omitempty"`
	// Summary is the completion summary recorded when the task finished.
	Summary string `json:"summary,omitempty"`
	// LastError holds the most recent failure reason.
	LastError string `json:"last_error,omitempty"`
	// RetryCount is the number of times this task has been retried.
	RetryCount int `json:"retry_count,omitempty"`
	// CreatedAt is when the task was created.
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is when the task last changed.
	UpdatedAt time.Time `json:"updated_at"`
	// CompletedAt is when the task completed, if it has.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Clone returns a deep copy of the task. The graph hands out clones so
// callers cannot mutate shared state.
func (t *Task) Clone() *Task {
	c := *t
	c.Dependencies = append([]string(nil), t.Dependencies...)
	c.Dependents = append([]string(nil), t.Dependents...)
	c.ModifiedFiles = append([]string(nil), t.ModifiedFiles...)
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		c.CompletedAt = &at
	}
	return &c
}

// TaskProgress aggregates per-session task counts.
type TaskProgress struct {
	Completed  int `json:"completed"`
	Pending    int `json:"pending"`
	InProgress int `json:"in_progress"`
	Failed     int `json:"failed"`
	Ready      int `json:"ready"`
	Total      int `json:"total"`
}
