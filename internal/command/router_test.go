package command

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mkade/foreman/internal/broadcast"
	"github.com/mkade/foreman/internal/config"
	"github.com/mkade/foreman/internal/coordinator"
	"github.com/mkade/foreman/internal/plan"
	"github.com/mkade/foreman/internal/pool"
	"github.com/mkade/foreman/internal/protocol"
	"github.com/mkade/foreman/internal/state"
	"github.com/mkade/foreman/internal/taskgraph"
	"github.com/mkade/foreman/internal/unity"
	"github.com/mkade/foreman/pkg/models"
)

func newTestRouter(t *testing.T) (*Router, *Services) {
	t.Helper()
	db, err := state.Open(state.Path(t.TempDir()))
	if err != nil {
		t.Fatalf("state.Open() error = %v", err)
	}
	if err := db.Migrate(); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	plans, err := plan.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("plan.NewStore() error = %v", err)
	}
	graph := taskgraph.New()
	agentPool := pool.New(3, pool.WithCooldown(time.Millisecond))
	t.Cleanup(agentPool.Close)
	bus := broadcast.New()
	coord := coordinator.New(graph, agentPool, bus, db, coordinator.NewSessionManager(db), coordinator.Options{})

	svc := &Services{
		Graph:  graph,
		Pool:   agentPool,
		Bus:    bus,
		Coord:  coord,
		Plans:  plans,
		Config: config.Default(),
		Unity:  unity.New(""),
		Store:  db,
	}
	return NewRouter(svc), svc
}

func dispatch(t *testing.T, r *Router, cmd string, params map[string]interface{}) *Result {
	t.Helper()
	res, err := r.Dispatch(context.Background(), cmd, params)
	if err != nil {
		t.Fatalf("Dispatch(%s) error = %v", cmd, err)
	}
	return res
}

func TestUnknownCommands(t *testing.T) {
	r, _ := newTestRouter(t)
	ctx := context.Background()

	for _, cmd := range []string{"nope", "nope.nothing", "session.explode"} {
		_, err := r.Dispatch(ctx, cmd, nil)
		if protocol.CodeOf(err) != protocol.CodeUnknownCommand {
			t.Errorf("Dispatch(%q) code = %v, want UnknownCommand", cmd, protocol.CodeOf(err))
		}
	}
}

func TestMissingParameterNamesField(t *testing.T) {
	r, _ := newTestRouter(t)
	_, err := r.Dispatch(context.Background(), "session.get", nil)
	if protocol.CodeOf(err) != protocol.CodeMissingParameter {
		t.Fatalf("code = %v, want MissingParameter", protocol.CodeOf(err))
	}
	var perr *protocol.Error
	if !errors.As(err, &perr) {
		t.Fatal("error is not *protocol.Error")
	}
	if want := "sessionId"; !strings.Contains(perr.Message, want) {
		t.Errorf("message %q does not name field %q", perr.Message, want)
	}
}

func TestPlanLifecycle(t *testing.T) {
	r, svc := newTestRouter(t)

	res := dispatch(t, r, "plan.create", map[string]interface{}{"requirement": "build a parser"})
	s := res.Data.(*models.Session)
	if s.Status != models.SessionStatusDebating {
		t.Errorf("status after create = %s, want debating", s.Status)
	}
	if s.PlanPath == "" {
		t.Error("plan path not recorded on session")
	}

	res = dispatch(t, r, "plan.revise", map[string]interface{}{
		"sessionId": s.ID,
		"feedback":  "split phase two",
	})
	revised := res.Data.(*models.Session)
	if revised.Status != models.SessionStatusPendingReview {
		t.Errorf("status after revise = %s, want pending_review", revised.Status)
	}
	if len(revised.Revisions) != 2 {
		t.Errorf("revisions = %d, want 2", len(revised.Revisions))
	}

	dispatch(t, r, "plan.approve", map[string]interface{}{"sessionId": s.ID})
	got, err := svc.Coord.Sessions().Get(s.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != models.SessionStatusApproved {
		t.Errorf("status after approve = %s, want approved", got.Status)
	}

	res = dispatch(t, r, "plan.status", map[string]interface{}{"sessionId": s.ID})
	data := res.Data.(map[string]interface{})
	rev := data["revision"].(*models.PlanRevision)
	if rev.Version != 2 {
		t.Errorf("current revision = %d, want 2", rev.Version)
	}
}

func TestTaskCommandsNormalizeIDsAndTypes(t *testing.T) {
	r, svc := newTestRouter(t)
	res := dispatch(t, r, "plan.create", map[string]interface{}{"requirement": "req"})
	s := res.Data.(*models.Session)

	res = dispatch(t, r, "task.create", map[string]interface{}{
		"sessionId":   s.ID,
		"taskId":      "t1",
		"description": "fix the crash",
		"type":        "bugfix",
	})
	task := res.Data.(*models.Task)
	if task.Type != models.TaskTypeErrorFix {
		t.Errorf("type = %s, want error_fix (normalized from bugfix)", task.Type)
	}

	// Already-prefixed id is accepted.
	res = dispatch(t, r, "task.status", map[string]interface{}{
		"sessionId": s.ID,
		"taskId":    s.ID + "_t1",
	})
	if res.Data.(*models.Task).ID != models.GlobalTaskID(s.ID, "t1") {
		t.Errorf("task id = %s", res.Data.(*models.Task).ID)
	}

	// Task survives in the store for restart reload.
	persisted, err := svc.Store.ListTasks(s.ID)
	if err != nil {
		t.Fatalf("ListTasks() error = %v", err)
	}
	if len(persisted) != 1 {
		t.Errorf("persisted tasks = %d, want 1", len(persisted))
	}
}

func TestTaskCreateRejectsUnderscoreID(t *testing.T) {
	r, _ := newTestRouter(t)
	res := dispatch(t, r, "plan.create", map[string]interface{}{"requirement": "req"})
	s := res.Data.(*models.Session)

	// A local id containing the global-id separator would be unreachable by
	// every later command, so creation refuses it outright.
	_, err := r.Dispatch(context.Background(), "task.create", map[string]interface{}{
		"sessionId": s.ID, "taskId": "T_1", "description": "orphan",
	})
	if protocol.CodeOf(err) != protocol.CodeInvalidState {
		t.Fatalf("code = %v, want InvalidState", protocol.CodeOf(err))
	}

	// A fully-prefixed id is stripped to its local part and stays addressable.
	dispatch(t, r, "task.create", map[string]interface{}{
		"sessionId": s.ID, "taskId": s.ID + "_t1", "description": "reachable",
	})
	res = dispatch(t, r, "task.status", map[string]interface{}{"sessionId": s.ID, "taskId": "t1"})
	if res.Data.(*models.Task).ID != models.GlobalTaskID(s.ID, "t1") {
		t.Errorf("task id = %s", res.Data.(*models.Task).ID)
	}
}

func TestTaskStartUnmetDependency(t *testing.T) {
	r, _ := newTestRouter(t)
	res := dispatch(t, r, "plan.create", map[string]interface{}{"requirement": "req"})
	s := res.Data.(*models.Session)

	dispatch(t, r, "task.create", map[string]interface{}{"sessionId": s.ID, "taskId": "t1", "description": "a"})
	dispatch(t, r, "task.create", map[string]interface{}{
		"sessionId": s.ID, "taskId": "t2", "description": "b",
		"dependencies": []interface{}{"t1"},
	})

	_, err := r.Dispatch(context.Background(), "task.start", map[string]interface{}{"sessionId": s.ID, "taskId": "t2"})
	if protocol.CodeOf(err) != protocol.CodeUnmetDependency {
		t.Errorf("code = %v, want UnmetDependency", protocol.CodeOf(err))
	}
}

func TestTaskCompleteUnblocksDependent(t *testing.T) {
	r, _ := newTestRouter(t)
	res := dispatch(t, r, "plan.create", map[string]interface{}{"requirement": "req"})
	s := res.Data.(*models.Session)

	dispatch(t, r, "task.create", map[string]interface{}{"sessionId": s.ID, "taskId": "t1", "description": "a"})
	dispatch(t, r, "task.create", map[string]interface{}{
		"sessionId": s.ID, "taskId": "t2", "description": "b",
		"dependencies": []interface{}{"t1"},
	})
	dispatch(t, r, "task.start", map[string]interface{}{"sessionId": s.ID, "taskId": "t1"})
	dispatch(t, r, "task.complete", map[string]interface{}{"sessionId": s.ID, "taskId": "t1", "summary": "done"})

	res = dispatch(t, r, "task.status", map[string]interface{}{"sessionId": s.ID, "taskId": "t2"})
	if got := res.Data.(*models.Task).Status; got != models.TaskStatusReady {
		t.Errorf("t2 status = %s, want ready", got)
	}

	res = dispatch(t, r, "task.progress", map[string]interface{}{"sessionId": s.ID})
	progress := res.Data.(models.TaskProgress)
	if progress.Completed != 1 || progress.Ready != 1 {
		t.Errorf("progress = %+v, want 1 completed / 1 ready", progress)
	}
}

func TestPoolCommands(t *testing.T) {
	r, _ := newTestRouter(t)

	res := dispatch(t, r, "pool.status", nil)
	data := res.Data.(map[string]interface{})
	if data["size"] != 3 {
		t.Errorf("size = %v, want 3", data["size"])
	}

	dispatch(t, r, "pool.resize", map[string]interface{}{"size": float64(5)})
	res = dispatch(t, r, "pool.status", nil)
	if res.Data.(map[string]interface{})["size"] != 5 {
		t.Errorf("size after resize = %v, want 5", res.Data.(map[string]interface{})["size"])
	}

	res = dispatch(t, r, "roles.list", nil)
	roles := res.Data.([]models.Role)
	if len(roles) == 0 {
		t.Fatal("no roles in catalog")
	}

	res = dispatch(t, r, "roles.update", map[string]interface{}{
		"roleId":  "engineer",
		"timeout": "2h",
	})
	role := res.Data.(models.Role)
	if role.Timeout != 2*time.Hour {
		t.Errorf("timeout = %s, want 2h", role.Timeout)
	}
	res = dispatch(t, r, "roles.reset", map[string]interface{}{"roleId": "engineer"})
	if res.Data.(models.Role).Timeout == 2*time.Hour {
		t.Error("reset did not restore the default timeout")
	}
}

func TestUnityUnavailableWithoutBridge(t *testing.T) {
	r, _ := newTestRouter(t)
	for _, cmd := range []string{"unity.status", "unity.compile", "unity.test"} {
		_, err := r.Dispatch(context.Background(), cmd, nil)
		if protocol.CodeOf(err) != protocol.CodeUnavailable {
			t.Errorf("%s code = %v, want Unavailable", cmd, protocol.CodeOf(err))
		}
	}
}

func TestConfigCommands(t *testing.T) {
	r, _ := newTestRouter(t)
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	dispatch(t, r, "config.set", map[string]interface{}{"key": config.KeyPoolSize, "value": float64(8)})
	res := dispatch(t, r, "config.get", map[string]interface{}{"key": config.KeyPoolSize})
	if res.Data.(map[string]interface{})["value"] != 8 {
		t.Errorf("value = %v, want 8", res.Data.(map[string]interface{})["value"])
	}

	dispatch(t, r, "config.reset", map[string]interface{}{"key": config.KeyPoolSize})
	res = dispatch(t, r, "config.get", map[string]interface{}{"key": config.KeyPoolSize})
	if res.Data.(map[string]interface{})["value"] != 5 {
		t.Errorf("value after reset = %v, want default 5", res.Data.(map[string]interface{})["value"])
	}
}

func TestFolderCommands(t *testing.T) {
	r, _ := newTestRouter(t)
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	dispatch(t, r, "folders.set", map[string]interface{}{"name": "plans", "path": "docs/plans"})
	res := dispatch(t, r, "folders.get", map[string]interface{}{"name": "plans"})
	if res.Data.(map[string]interface{})["path"] != "docs/plans" {
		t.Errorf("path = %v, want docs/plans", res.Data.(map[string]interface{})["path"])
	}
	dispatch(t, r, "folders.reset", nil)
	res = dispatch(t, r, "folders.get", map[string]interface{}{"name": "plans"})
	if res.Data.(map[string]interface{})["path"] == "docs/plans" {
		t.Error("reset did not restore the default plans folder")
	}
}

func TestAgentCompleteOrphanedSignal(t *testing.T) {
	r, _ := newTestRouter(t)
	res := dispatch(t, r, "plan.create", map[string]interface{}{"requirement": "req"})
	s := res.Data.(*models.Session)

	res = dispatch(t, r, "agent.complete", map[string]interface{}{
		"sessionId":  s.ID,
		"workflowId": "wf-gone",
		"stage":      "execute",
		"result":     "success",
	})
	if res.Data.(map[string]interface{})["delivered"] != false {
		t.Error("orphaned signal reported delivered")
	}
}

func TestStatusCommand(t *testing.T) {
	r, _ := newTestRouter(t)
	res := dispatch(t, r, "status", nil)
	data := res.Data.(map[string]interface{})
	if _, ok := data["coordinator"]; !ok {
		t.Error("status missing coordinator block")
	}
	if _, ok := data["pool"]; !ok {
		t.Error("status missing pool block")
	}
}
