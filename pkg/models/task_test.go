package models

import "testing"

func TestTaskStatusValid(t *testing.T) {
	valid := []TaskStatus{
		TaskStatusCreated, TaskStatusBlocked, TaskStatusReady, TaskStatusInProgress,
		TaskStatusCompleted, TaskStatusFailed, TaskStatusPaused,
	}
	for _, s := range valid {
		if !s.Valid() {
			t.Errorf("status %q should be valid", s)
		}
	}
	if TaskStatus("running").Valid() {
		t.Error("unknown status should not be valid")
	}
}

func TestTaskStatusTerminal(t *testing.T) {
	if !TaskStatusCompleted.Terminal() {
		t.Error("completed should be terminal")
	}
	if !TaskStatusFailed.Terminal() {
		t.Error("failed should be terminal")
	}
	if TaskStatusInProgress.Terminal() {
		t.Error("in_progress should not be terminal")
	}
	if TaskStatusPaused.Terminal() {
		t.Error("paused should not be terminal")
	}
}

func TestGlobalTaskID(t *testing.T) {
	if got := GlobalTaskID("s1", "T1"); got != "s1_T1" {
		t.Errorf("GlobalTaskID = %q, want %q", got, "s1_T1")
	}
}

func TestSplitTaskID(t *testing.T) {
	tests := []struct {
		in        string
		wantSess  string
		wantLocal string
	}{
		{"s1_T1", "s1", "T1"},
		{"T1", "", "T1"},
		{"s1_T1_extra", "s1", "T1_extra"},
		{"_T1", "", "_T1"},
	}
	for _, tt := range tests {
		sess, local := SplitTaskID(tt.in)
		if sess != tt.wantSess || local != tt.wantLocal {
			t.Errorf("SplitTaskID(%q) = (%q, %q), want (%q, %q)",
				tt.in, sess, local, tt.wantSess, tt.wantLocal)
		}
	}
}

func TestTaskTypeValid(t *testing.T) {
	if !TaskTypeImplementation.Valid() || !TaskTypeErrorFix.Valid() {
		t.Error("built-in task types should be valid")
	}
	if TaskType("bugfix").Valid() {
		t.Error("unnormalized synonym should not be a valid type")
	}
}
