package models

import "time"

// SessionStatus represents the lifecycle stage of a planning/execution session.
type SessionStatus string

const (
	// SessionStatusDebating indicates the plan is being debated by planners.
	SessionStatusDebating SessionStatus = "debating"
	// SessionStatusReviewing indicates the plan is under automated review.
	SessionStatusReviewing SessionStatus = "reviewing"
	// SessionStatusRevising indicates a plan revision is in progress.
	SessionStatusRevising SessionStatus = "revising"
	// SessionStatusPendingReview indicates the plan awaits human approval.
	SessionStatusPendingReview SessionStatus = "pending_review"
	// SessionStatusApproved indicates the plan is approved but not yet executing.
	SessionStatusApproved SessionStatus = "approved"
	// SessionStatusExecuting indicates tasks are being executed.
	SessionStatusExecuting SessionStatus = "executing"
	// SessionStatusCancelled indicates the session was cancelled.
	SessionStatusCancelled SessionStatus = "cancelled"
	// SessionStatusCompleted indicates all work finished.
	SessionStatusCompleted SessionStatus = "completed"
)

// Valid returns true if the status is a known value.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionStatusDebating, SessionStatusReviewing, SessionStatusRevising,
		SessionStatusPendingReview, SessionStatusApproved, SessionStatusExecuting,
		SessionStatusCancelled, SessionStatusCompleted:
		return true
	default:
		return false
	}
}

// Terminal returns true if the session will not change status again.
func (s SessionStatus) Terminal() bool {
	return s == SessionStatusCancelled || s == SessionStatusCompleted
}

// PlanRevision records one version of a session's plan document.
type PlanRevision struct {
	// Version is the 1-based revision number.
	Version int `json:"version"`
	// Path is the on-disk location of this revision.
	Path string `json:"path"`
	// Feedback is the revision request that produced this version, if any.
	Feedback string `json:"feedback,omitempty"`
	// CreatedAt is when the revision was written.
	CreatedAt time.Time `json:"created_at"`
}

// Session represents a user-approved planning/execution unit with its own
// plan document, task graph, and workflow history.
type Session struct {
	// ID is the unique identifier for this session.
	ID string `json:"id"`
	// Status is the current lifecycle stage.
	Status SessionStatus `json:"status"`
	// Requirement is the user's original requirement text.
	Requirement string `json:"requirement"`
	// PlanPath is the on-disk location of the current plan document.
	PlanPath string `json:"plan_path,omitempty"`
	// Revisions is the ordered plan revision history, oldest first.
	Revisions []PlanRevision `json:"revisions,omitempty"`
	// CreatedAt is when planning started.
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is when the session last changed.
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy of the session. The registry hands out clones so
// callers cannot mutate shared state.
func (s *Session) Clone() *Session {
	c := *s
	c.Revisions = append([]PlanRevision(nil), s.Revisions...)
	return &c
}
