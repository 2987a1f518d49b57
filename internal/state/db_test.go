package state

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/mkade/foreman/pkg/models"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return db
}

func TestMigrateIdempotent(t *testing.T) {
	db := openTestDB(t)
	if err := db.Migrate(); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
}

func TestSessionRoundTrip(t *testing.T) {
	db := openTestDB(t)

	now := time.Now().UTC().Truncate(time.Second)
	s := &models.Session{
		ID:          "s1",
		Status:      models.SessionStatusExecuting,
		Requirement: "build the thing",
		PlanPath:    "_AiDevLog/Plans/s1.md",
		Revisions: []models.PlanRevision{
			{Version: 1, Path: "_AiDevLog/Plans/s1.v1.md", CreatedAt: now},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := db.SaveSession(s); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}

	got, err := db.GetSession("s1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.Status != models.SessionStatusExecuting || got.Requirement != s.Requirement {
		t.Errorf("round-trip mismatch: %+v", got)
	}
	if len(got.Revisions) != 1 || got.Revisions[0].Version != 1 {
		t.Errorf("revisions lost: %+v", got.Revisions)
	}

	// Upsert updates in place.
	s.Status = models.SessionStatusCompleted
	if err := db.SaveSession(s); err != nil {
		t.Fatalf("SaveSession (update): %v", err)
	}
	got, _ = db.GetSession("s1")
	if got.Status != models.SessionStatusCompleted {
		t.Errorf("status = %s, want completed", got.Status)
	}

	sessions, err := db.ListSessions()
	if err != nil || len(sessions) != 1 {
		t.Errorf("ListSessions = %v (%v), want one session", sessions, err)
	}

	if _, err := db.GetSession("missing"); err == nil {
		t.Error("expected error for unknown session")
	}
}

func TestTaskRoundTrip(t *testing.T) {
	db := openTestDB(t)

	now := time.Now().UTC().Truncate(time.Second)
	done := now.Add(time.Minute)
	task := &models.Task{
		ID:            "s1_T1",
		SessionID:     "s1",
		LocalID:       "T1",
		Description:   "implement widget",
		Status:        models.TaskStatusCompleted,
		Type:          models.TaskTypeImplementation,
		Dependencies:  []string{"T0"},
		Priority:      3,
		AssignedAgent: "Alex",
		ModifiedFiles: []string{"widget.go"},
		Summary:       "done",
		RetryCount:    1,
		CreatedAt:     now,
		UpdatedAt:     now,
		CompletedAt:   &done,
	}
	if err := db.SaveTask(task); err != nil {
		t.Fatalf("SaveTask: %v", err)
	}

	tasks, err := db.ListTasks("s1")
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("tasks = %d, want 1", len(tasks))
	}
	got := tasks[0]
	if got.Status != models.TaskStatusCompleted || got.Type != models.TaskTypeImplementation {
		t.Errorf("round-trip mismatch: %+v", got)
	}
	if len(got.Dependencies) != 1 || got.Dependencies[0] != "T0" {
		t.Errorf("dependencies lost: %v", got.Dependencies)
	}
	if got.CompletedAt == nil {
		t.Error("completed_at lost")
	}

	if err := db.DeleteTask("s1_T1"); err != nil {
		t.Fatalf("DeleteTask: %v", err)
	}
	tasks, _ = db.ListTasks("s1")
	if len(tasks) != 0 {
		t.Errorf("tasks after delete = %d, want 0", len(tasks))
	}
}

func TestPausedWorkflowRoundTrip(t *testing.T) {
	db := openTestDB(t)

	w := &models.Workflow{
		ID:          "wf1",
		SessionID:   "s1",
		Type:        "task_execution",
		Status:      models.WorkflowStatusPaused,
		Phase:       "implementing",
		PhaseIndex:  1,
		TotalPhases: 3,
		Percentage:  40,
		TaskID:      "s1_T1",
		AgentName:   "Alex",
		StartedAt:   time.Now().UTC(),
	}
	if err := db.SavePausedWorkflow(w); err != nil {
		t.Fatalf("SavePausedWorkflow: %v", err)
	}

	list, err := db.ListPausedWorkflows()
	if err != nil {
		t.Fatalf("ListPausedWorkflows: %v", err)
	}
	if len(list) != 1 || list[0].ID != "wf1" || list[0].Percentage != 40 {
		t.Errorf("round-trip mismatch: %+v", list)
	}

	if err := db.DeletePausedWorkflow("wf1"); err != nil {
		t.Fatalf("DeletePausedWorkflow: %v", err)
	}
	list, _ = db.ListPausedWorkflows()
	if len(list) != 0 {
		t.Errorf("paused workflows after delete = %d, want 0", len(list))
	}
}

func TestDeleteSessionCascades(t *testing.T) {
	db := openTestDB(t)
	now := time.Now().UTC()

	db.SaveSession(&models.Session{ID: "s1", Status: models.SessionStatusExecuting, Requirement: "r", CreatedAt: now, UpdatedAt: now})
	db.SaveTask(&models.Task{ID: "s1_T1", SessionID: "s1", LocalID: "T1", Status: models.TaskStatusReady, Type: models.TaskTypeImplementation, CreatedAt: now, UpdatedAt: now})
	db.SavePausedWorkflow(&models.Workflow{ID: "wf1", SessionID: "s1", Status: models.WorkflowStatusPaused, StartedAt: now})

	if err := db.DeleteSession("s1"); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if _, err := db.GetSession("s1"); err == nil {
		t.Error("session should be gone")
	}
	tasks, _ := db.ListTasks("s1")
	if len(tasks) != 0 {
		t.Error("tasks should cascade-delete")
	}
	wfs, _ := db.ListPausedWorkflows()
	if len(wfs) != 0 {
		t.Error("paused workflows should cascade-delete")
	}
}
