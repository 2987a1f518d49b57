package models

import "testing"

func TestAgentStateValid(t *testing.T) {
	for _, s := range []AgentState{AgentStateAvailable, AgentStateAllocated, AgentStateBusy, AgentStateResting} {
		if !s.Valid() {
			t.Errorf("state %q should be valid", s)
		}
	}
	if AgentState("idle").Valid() {
		t.Error("unknown state should not be valid")
	}
}

func TestWorkflowStatusTerminal(t *testing.T) {
	if !WorkflowStatusCompleted.Terminal() || !WorkflowStatusFailed.Terminal() {
		t.Error("completed and failed should be terminal")
	}
	if WorkflowStatusRunning.Terminal() || WorkflowStatusPaused.Terminal() {
		t.Error("running and paused should not be terminal")
	}
}

func TestSessionStatusValid(t *testing.T) {
	valid := []SessionStatus{
		SessionStatusDebating, SessionStatusReviewing, SessionStatusRevising,
		SessionStatusPendingReview, SessionStatusApproved, SessionStatusExecuting,
		SessionStatusCancelled, SessionStatusCompleted,
	}
	for _, s := range valid {
		if !s.Valid() {
			t.Errorf("status %q should be valid", s)
		}
	}
	if SessionStatus("planning").Valid() {
		t.Error("unknown status should not be valid")
	}
}
