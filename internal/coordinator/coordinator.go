package coordinator

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mkade/foreman/internal/broadcast"
	"github.com/mkade/foreman/internal/metrics"
	"github.com/mkade/foreman/internal/pool"
	"github.com/mkade/foreman/internal/protocol"
	"github.com/mkade/foreman/internal/state"
	"github.com/mkade/foreman/internal/taskgraph"
	"github.com/mkade/foreman/pkg/models"
)

// WorkflowTypeTask is the built-in workflow that runs one task through an
// external agent. The stage name below is what the agent's completion
// signal must carry.
const (
	WorkflowTypeTask = "task_execution"
	StageExecute     = "execute"
)

// Options tunes the coordinator's evaluation loop and retry policy.
type Options struct {
	// Debounce is the event-coalescing window before an evaluation pass.
	Debounce time.Duration
	// Cooldown is the refractory period after a pass.
	Cooldown time.Duration
	// MaxRetries is how many times a task is re-dispatched after retryable
	// failures before escalating.
	MaxRetries int
	// Clock overrides the system clock, for tests.
	Clock Clock
}

// ShutdownReport counts what graceful shutdown paused and released.
type ShutdownReport struct {
	PausedWorkflows int `json:"pausedWorkflows"`
	ReleasedAgents  int `json:"releasedAgents"`
}

// Coordinator is the orchestration brain. It owns session runtime state,
// dispatches workflows against the task graph and agent pool, consumes
// agent completion signals, and runs the debounced evaluation loop that
// decides what to dispatch next.
type Coordinator struct {
	id       string
	graph    *taskgraph.Graph
	pool     *pool.Pool
	bus      *broadcast.Broadcaster
	store    state.Store
	sessions *SessionManager
	eval     *Evaluator
	clock    Clock

	maxRetries int

	mu       sync.Mutex
	runtimes map[string]*sessionRuntime
}

// New wires a Coordinator. The pool's availability callback is expected to
// call Notify so agents returning from rest re-trigger evaluation.
func New(graph *taskgraph.Graph, agentPool *pool.Pool, bus *broadcast.Broadcaster, store state.Store, sessions *SessionManager, opts Options) *Coordinator {
	if opts.Clock == nil {
		opts.Clock = NewRealClock()
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 500 * time.Millisecond
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = time.Second
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 2
	}
	c := &Coordinator{
		id:         "coord-" + uuid.NewString()[:8],
		graph:      graph,
		pool:       agentPool,
		bus:        bus,
		store:      store,
		sessions:   sessions,
		clock:      opts.Clock,
		maxRetries: opts.MaxRetries,
		runtimes:   make(map[string]*sessionRuntime),
	}
	c.eval = NewEvaluator(opts.Clock, opts.Debounce, opts.Cooldown, c.evaluate)
	agentPool.BindCoordinator(c.id)
	return c
}

// ID returns this coordinator instance's identity, recorded on allocated
// agents.
func (c *Coordinator) ID() string { return c.id }

// Sessions exposes the session registry.
func (c *Coordinator) Sessions() *SessionManager { return c.sessions }

// Notify feeds a relevant event into the evaluation state machine.
func (c *Coordinator) Notify() { c.eval.Notify() }

// Evaluate forces an immediate evaluation pass.
func (c *Coordinator) Evaluate() { c.eval.TriggerNow() }

// runtime returns the session's runtime state, creating it lazily.
// Caller holds c.mu.
func (c *Coordinator) runtimeLocked(sessionID string) *sessionRuntime {
	rt, ok := c.runtimes[sessionID]
	if !ok {
		rt = newSessionRuntime()
		c.runtimes[sessionID] = rt
	}
	return rt
}

// evaluate is one pass of the dispatch loop: retire terminal workflows,
// re-dispatch retryable failures, and start ready tasks on available
// agents. It runs on the evaluator's timer goroutine, at most once at a
// time.
func (c *Coordinator) evaluate() {
	c.bus.Broadcast(protocol.EventCoordinatorEvaluating, map[string]interface{}{"coordinatorId": c.id}, "")

	dispatched := 0
	for _, s := range c.sessions.List() {
		c.retireTerminal(s.ID)
		if s.Status != models.SessionStatusExecuting {
			continue
		}
		c.mu.Lock()
		rt := c.runtimeLocked(s.ID)
		skip := rt.paused || rt.revising
		c.mu.Unlock()
		if skip {
			continue
		}
		dispatched += c.dispatchRetries(s.ID)
		dispatched += c.dispatchReady(s.ID)
		c.maybeCompleteSession(s.ID)
	}

	c.bus.Broadcast(protocol.EventCoordinatorEvaluated, map[string]interface{}{
		"coordinatorId": c.id,
		"dispatched":    dispatched,
	}, "")
}

// retireTerminal moves completed and failed workflows out of the active map.
func (c *Coordinator) retireTerminal(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rt, ok := c.runtimes[sessionID]
	if !ok {
		return
	}
	for _, w := range rt.active {
		if w.Status.Terminal() {
			rt.retire(w)
			metrics.ActiveWorkflows.Dec()
		}
	}
}

// dispatchReady starts task workflows for every ready task an agent is
// available for.
func (c *Coordinator) dispatchReady(sessionID string) int {
	n := 0
	for _, task := range c.graph.ReadyTasks(sessionID) {
		if len(c.pool.AvailableNames()) == 0 {
			break
		}
		if _, err := c.StartTaskWorkflow(sessionID, task.ID, WorkflowTypeTask); err != nil {
			log.Printf("[coordinator] dispatch %s: %v", task.ID, err)
			continue
		}
		n++
	}
	return n
}

// dispatchRetries re-dispatches tasks whose previous workflow failed within
// the retry budget.
func (c *Coordinator) dispatchRetries(sessionID string) int {
	c.mu.Lock()
	rt, ok := c.runtimes[sessionID]
	if !ok || len(rt.retries) == 0 {
		c.mu.Unlock()
		return 0
	}
	retries := rt.retries
	rt.retries = nil
	c.mu.Unlock()

	n := 0
	for _, taskID := range retries {
		if len(c.pool.AvailableNames()) == 0 {
			c.mu.Lock()
			rt.retries = append(rt.retries, taskID)
			c.mu.Unlock()
			continue
		}
		if _, err := c.StartTaskWorkflow(sessionID, taskID, WorkflowTypeTask); err != nil {
			log.Printf("[coordinator] retry %s: %v", taskID, err)
			continue
		}
		n++
	}
	return n
}

// maybeCompleteSession closes out an executing session once every task is
// terminal and nothing is in flight.
func (c *Coordinator) maybeCompleteSession(sessionID string) {
	progress := c.graph.Progress(sessionID)
	if progress.Total == 0 || progress.InProgress > 0 || progress.Ready > 0 || progress.Pending > 0 {
		return
	}
	c.mu.Lock()
	rt := c.runtimes[sessionID]
	inFlight := rt != nil && len(rt.active) > 0
	c.mu.Unlock()
	if inFlight {
		return
	}
	if _, err := c.sessions.SetStatus(sessionID, models.SessionStatusCompleted); err != nil {
		log.Printf("[coordinator] complete session %s: %v", sessionID, err)
		return
	}
	c.bus.BroadcastToSession(sessionID, protocol.EventSessionCompleted, map[string]interface{}{
		"sessionId": sessionID,
		"progress":  progress,
	})
	// Completed sessions stop accumulating subscription edges; dropping them
	// here keeps high-churn session ids from leaking broadcaster memory.
	c.bus.UnsubscribeSession(sessionID)
}

// DispatchWorkflow creates a workflow in running state and returns its id.
// The session must exist and not be terminal.
func (c *Coordinator) DispatchWorkflow(sessionID, workflowType string, input map[string]interface{}) (string, error) {
	session, err := c.sessions.Get(sessionID)
	if err != nil {
		return "", err
	}
	if session.Status.Terminal() {
		return "", protocol.InvalidStatef("session %s is %s; no new workflows", sessionID, session.Status)
	}

	now := c.clock.Now()
	w := &models.Workflow{
		ID:          "wf-" + uuid.NewString()[:8],
		SessionID:   sessionID,
		Type:        workflowType,
		Status:      models.WorkflowStatusRunning,
		Phase:       "starting",
		TotalPhases: 1,
		StartedAt:   now,
		UpdatedAt:   now,
	}
	if v, ok := input["taskId"].(string); ok {
		w.TaskID = v
	}
	if v, ok := input["agentName"].(string); ok {
		w.AgentName = v
	}

	c.mu.Lock()
	rt := c.runtimeLocked(sessionID)
	rt.active[w.ID] = w
	rt.pending = append(rt.pending, w.ID)
	c.mu.Unlock()
	metrics.ActiveWorkflows.Inc()

	c.bus.BroadcastToSession(sessionID, protocol.EventWorkflowDispatched, map[string]interface{}{
		"workflowId": w.ID,
		"type":       workflowType,
		"taskId":     w.TaskID,
	})
	return w.ID, nil
}

// StartTaskWorkflow validates the task's dependencies, binds an agent, and
// dispatches a task-execution workflow awaiting the agent's completion
// signal.
func (c *Coordinator) StartTaskWorkflow(sessionID, taskID, workflowType string) (string, error) {
	if workflowType == "" {
		workflowType = WorkflowTypeTask
	}
	task, err := c.graph.StartTask(taskID)
	if err != nil {
		return "", err
	}

	workflowID, err := c.DispatchWorkflow(sessionID, workflowType, map[string]interface{}{"taskId": task.ID})
	if err != nil {
		return "", err
	}

	agentName, err := c.pool.AllocateAny(sessionID, workflowID, "engineer")
	if err != nil {
		c.failWorkflow(sessionID, workflowID, fmt.Sprintf("no agent available: %v", err))
		// StartTask is idempotent for in_progress, so the next pass can
		// re-dispatch once an agent frees up.
		c.mu.Lock()
		rt := c.runtimeLocked(sessionID)
		rt.retries = append(rt.retries, task.ID)
		c.mu.Unlock()
		return "", err
	}
	c.bus.BroadcastToSession(sessionID, protocol.EventAgentAllocated, map[string]interface{}{
		"agentName":  agentName,
		"workflowId": workflowID,
	})
	if err := c.graph.AssignAgent(task.ID, agentName, workflowID); err != nil {
		return "", err
	}
	if err := c.pool.MarkBusy(agentName, task.ID); err != nil {
		return "", err
	}
	c.bus.BroadcastToSession(sessionID, protocol.EventAgentBusy, map[string]interface{}{
		"agentName": agentName,
		"taskId":    task.ID,
	})

	c.mu.Lock()
	rt := c.runtimeLocked(sessionID)
	if w, ok := rt.active[workflowID]; ok {
		w.AgentName = agentName
		w.Phase = StageExecute
		w.TotalPhases = 2
		w.PhaseIndex = 1
		w.Percentage = 10
		w.UpdatedAt = c.clock.Now()
	}
	rt.waiting[signalKey{workflowID: workflowID, stage: StageExecute, taskID: task.ID}] = struct{}{}
	c.mu.Unlock()

	c.persistTask(task.ID)
	c.bus.BroadcastToSession(sessionID, protocol.EventTaskStarted, map[string]interface{}{
		"taskId":     task.ID,
		"workflowId": workflowID,
		"agentName":  agentName,
	})
	return workflowID, nil
}

// UpdateProgress advances a running workflow's phase and percentage. The
// percentage never decreases while the workflow runs.
func (c *Coordinator) UpdateProgress(sessionID, workflowID, phase string, percentage int, message string) error {
	c.mu.Lock()
	rt, ok := c.runtimes[sessionID]
	if !ok {
		c.mu.Unlock()
		return protocol.NotFoundf("session %s has no runtime state", sessionID)
	}
	w, ok := rt.active[workflowID]
	if !ok {
		c.mu.Unlock()
		return protocol.NotFoundf("workflow %s is not active", workflowID)
	}
	if w.Status != models.WorkflowStatusRunning {
		c.mu.Unlock()
		return protocol.InvalidStatef("workflow %s is %s", workflowID, w.Status)
	}
	if phase != "" && phase != w.Phase {
		w.Phase = phase
		w.PhaseIndex++
	}
	if percentage > w.Percentage {
		w.Percentage = percentage
	}
	w.Message = message
	w.UpdatedAt = c.clock.Now()
	snapshot := *w
	c.mu.Unlock()

	c.bus.BroadcastToSession(sessionID, protocol.EventWorkflowProgress, snapshot)
	return nil
}

// SignalAgentCompletion delivers an external agent's completion callback to
// the workflow awaiting it. Returns false if no workflow is waiting — the
// signal is dropped, not queued.
func (c *Coordinator) SignalAgentCompletion(sig models.AgentSignal) bool {
	key := signalKey{workflowID: sig.WorkflowID, stage: sig.Stage, taskID: sig.TaskID}

	c.mu.Lock()
	rt, ok := c.runtimes[sig.SessionID]
	if !ok {
		c.mu.Unlock()
		log.Printf("[coordinator] signal for unknown session %s dropped", sig.SessionID)
		return false
	}
	if _, waiting := rt.waiting[key]; !waiting {
		c.mu.Unlock()
		log.Printf("[coordinator] no workflow waiting on %s/%s; signal dropped", sig.WorkflowID, sig.Stage)
		return false
	}
	delete(rt.waiting, key)
	w := rt.active[sig.WorkflowID]
	c.mu.Unlock()

	if w == nil {
		return false
	}
	if sig.Succeeded() {
		c.completeTaskWorkflow(sig, w)
	} else {
		c.failTaskWorkflow(sig, w)
	}
	c.eval.Notify()
	return true
}

func (c *Coordinator) completeTaskWorkflow(sig models.AgentSignal, w *models.Workflow) {
	summary, _ := sig.Payload["summary"].(string)
	_, newlyReady, err := c.graph.CompleteTask(sig.TaskID, summary)
	if err != nil {
		log.Printf("[coordinator] complete task %s: %v", sig.TaskID, err)
	}
	if files, ok := sig.Payload["modifiedFiles"].([]interface{}); ok {
		paths := make([]string, 0, len(files))
		for _, f := range files {
			if p, ok := f.(string); ok {
				paths = append(paths, p)
			}
		}
		if err := c.graph.RecordModifiedFiles(sig.TaskID, paths); err != nil {
			log.Printf("[coordinator] record files for %s: %v", sig.TaskID, err)
		}
	}
	c.releaseWorkflowAgent(w, "completed")

	c.mu.Lock()
	w.Status = models.WorkflowStatusCompleted
	w.Phase = "done"
	w.Percentage = 100
	w.UpdatedAt = c.clock.Now()
	c.mu.Unlock()

	c.persistTask(sig.TaskID)
	for _, readyID := range newlyReady {
		c.persistTask(readyID)
	}
	c.bus.BroadcastToSession(sig.SessionID, protocol.EventTaskCompleted, map[string]interface{}{
		"taskId":     sig.TaskID,
		"workflowId": w.ID,
		"summary":    summary,
	})
	for _, readyID := range newlyReady {
		c.bus.BroadcastToSession(sig.SessionID, protocol.EventTaskReady, map[string]interface{}{"taskId": readyID})
	}
	c.bus.BroadcastToSession(sig.SessionID, protocol.EventWorkflowCompleted, map[string]interface{}{"workflowId": w.ID})
}

func (c *Coordinator) failTaskWorkflow(sig models.AgentSignal, w *models.Workflow) {
	errText, _ := sig.Payload["error"].(string)
	if errText == "" {
		errText = fmt.Sprintf("agent reported %s", sig.Result)
	}
	class := ClassifyFailure(errText)
	c.releaseWorkflowAgent(w, "failed")

	c.mu.Lock()
	w.Status = models.WorkflowStatusFailed
	w.Error = errText
	w.UpdatedAt = c.clock.Now()
	c.mu.Unlock()
	c.bus.BroadcastToSession(sig.SessionID, protocol.EventWorkflowFailed, map[string]interface{}{
		"workflowId": w.ID,
		"taskId":     sig.TaskID,
		"error":      errText,
	})

	retries, err := c.graph.BumpRetry(sig.TaskID)
	if err != nil {
		log.Printf("[coordinator] bump retry %s: %v", sig.TaskID, err)
		return
	}

	if class.retryable() && retries <= c.maxRetries {
		c.mu.Lock()
		rt := c.runtimeLocked(sig.SessionID)
		rt.retries = append(rt.retries, sig.TaskID)
		c.mu.Unlock()
		c.persistTask(sig.TaskID)
		log.Printf("[coordinator] task %s failed (%s), retry %d/%d queued", sig.TaskID, class, retries, c.maxRetries)
		return
	}

	// Retry budget exhausted, or the failure class never retries. This is
	// the hand-off point to a human or an upstream planning step.
	if _, err := c.graph.MarkTaskFailed(sig.TaskID, errText); err != nil {
		log.Printf("[coordinator] mark task failed %s: %v", sig.TaskID, err)
	}
	c.persistTask(sig.TaskID)
	c.bus.BroadcastToSession(sig.SessionID, protocol.EventTaskFinalFailure, map[string]interface{}{
		"taskId":         sig.TaskID,
		"workflowId":     w.ID,
		"error":          errText,
		"classification": string(class),
		"retryPossible":  class == FailureNeedsClarity,
		"retries":        retries,
	})
}

// persistTask writes a task's current graph state through to the store so
// the registry is reloadable after a restart.
func (c *Coordinator) persistTask(globalID string) {
	task, err := c.graph.GetTask(globalID)
	if err != nil {
		return
	}
	if err := c.store.SaveTask(task); err != nil {
		log.Printf("[coordinator] persist task %s: %v", globalID, err)
	}
}

// releaseWorkflowAgent returns the workflow's agent to the pool, if bound.
func (c *Coordinator) releaseWorkflowAgent(w *models.Workflow, reason string) {
	c.mu.Lock()
	name := w.AgentName
	c.mu.Unlock()
	if name == "" {
		return
	}
	if err := c.pool.Release(name, reason); err != nil {
		log.Printf("[coordinator] release %s: %v", name, err)
		return
	}
	c.bus.Broadcast(protocol.EventAgentReleased, map[string]interface{}{
		"agentName": name,
		"reason":    reason,
	}, w.SessionID)
}

// failWorkflow marks an active workflow failed without touching the task.
func (c *Coordinator) failWorkflow(sessionID, workflowID, reason string) {
	c.mu.Lock()
	rt, ok := c.runtimes[sessionID]
	if ok {
		if w, active := rt.active[workflowID]; active {
			w.Status = models.WorkflowStatusFailed
			w.Error = reason
			w.UpdatedAt = c.clock.Now()
		}
		rt.dropWaiters(workflowID)
	}
	c.mu.Unlock()
}

// CancelWorkflow cancels one workflow: its agent is released, waiters are
// dropped so a late signal is ignored, and the instance is retired.
func (c *Coordinator) CancelWorkflow(sessionID, workflowID string) error {
	c.mu.Lock()
	rt, ok := c.runtimes[sessionID]
	if !ok {
		c.mu.Unlock()
		return protocol.NotFoundf("session %s has no runtime state", sessionID)
	}
	w, active := rt.active[workflowID]
	if !active {
		c.mu.Unlock()
		return protocol.NotFoundf("workflow %s is not active", workflowID)
	}
	w.Status = models.WorkflowStatusFailed
	w.Error = "cancelled"
	w.UpdatedAt = c.clock.Now()
	rt.dropWaiters(workflowID)
	rt.retire(w)
	c.mu.Unlock()
	metrics.ActiveWorkflows.Dec()

	c.releaseWorkflowAgent(w, "cancelled")
	c.bus.BroadcastToSession(sessionID, protocol.EventWorkflowCancelled, map[string]interface{}{"workflowId": workflowID})
	return nil
}

// CancelSession cancels every active workflow in the session and moves the
// session to cancelled.
func (c *Coordinator) CancelSession(sessionID string) error {
	c.mu.Lock()
	var ids []string
	if rt, ok := c.runtimes[sessionID]; ok {
		for id := range rt.active {
			ids = append(ids, id)
		}
	}
	c.mu.Unlock()

	for _, id := range ids {
		if err := c.CancelWorkflow(sessionID, id); err != nil {
			log.Printf("[coordinator] cancel workflow %s: %v", id, err)
		}
	}
	if _, err := c.sessions.SetStatus(sessionID, models.SessionStatusCancelled); err != nil {
		return err
	}
	c.bus.BroadcastToSession(sessionID, protocol.EventSessionUpdated, map[string]interface{}{
		"sessionId": sessionID,
		"status":    models.SessionStatusCancelled,
	})
	return nil
}

// PauseSession suspends workflow advancement for a session without
// destroying state: running workflows are marked paused and persisted,
// in-progress tasks are paused, and evaluation skips the session.
func (c *Coordinator) PauseSession(sessionID string) error {
	if _, err := c.sessions.Get(sessionID); err != nil {
		return err
	}
	pausedTasks := c.graph.PauseSession(sessionID)
	for _, id := range pausedTasks {
		c.persistTask(id)
	}

	c.mu.Lock()
	rt := c.runtimeLocked(sessionID)
	rt.paused = true
	var toPersist []*models.Workflow
	for _, w := range rt.active {
		if w.Status == models.WorkflowStatusRunning {
			w.Status = models.WorkflowStatusPaused
			w.UpdatedAt = c.clock.Now()
			snapshot := *w
			toPersist = append(toPersist, &snapshot)
		}
	}
	c.mu.Unlock()

	for _, w := range toPersist {
		if err := c.store.SavePausedWorkflow(w); err != nil {
			log.Printf("[coordinator] persist paused workflow %s: %v", w.ID, err)
		}
	}
	c.bus.BroadcastToSession(sessionID, protocol.EventSessionPaused, map[string]interface{}{
		"sessionId":       sessionID,
		"pausedWorkflows": len(toPersist),
		"pausedTasks":     pausedTasks,
	})
	return nil
}

// ResumeSession re-arms the evaluation loop for a paused session: paused
// workflows return to running, paused tasks to in_progress.
func (c *Coordinator) ResumeSession(sessionID string) error {
	if _, err := c.sessions.Get(sessionID); err != nil {
		return err
	}
	resumedTasks := c.graph.ResumeSession(sessionID)
	for _, id := range resumedTasks {
		c.persistTask(id)
	}

	c.mu.Lock()
	rt := c.runtimeLocked(sessionID)
	rt.paused = false
	var resumed []string
	for _, w := range rt.active {
		if w.Status == models.WorkflowStatusPaused {
			w.Status = models.WorkflowStatusRunning
			w.UpdatedAt = c.clock.Now()
			resumed = append(resumed, w.ID)
		}
	}
	c.mu.Unlock()

	for _, id := range resumed {
		if err := c.store.DeletePausedWorkflow(id); err != nil {
			log.Printf("[coordinator] clear paused workflow %s: %v", id, err)
		}
	}
	c.bus.BroadcastToSession(sessionID, protocol.EventSessionResumed, map[string]interface{}{
		"sessionId":        sessionID,
		"resumedWorkflows": resumed,
		"resumedTasks":     resumedTasks,
	})
	c.eval.Notify()
	return nil
}

// RemoveSession discards a session's runtime state, task subtree, plan
// subscription edges, and persisted rows.
func (c *Coordinator) RemoveSession(sessionID string) error {
	if err := c.sessions.Remove(sessionID); err != nil {
		return err
	}
	c.graph.RemoveSession(sessionID)
	c.mu.Lock()
	if rt, ok := c.runtimes[sessionID]; ok {
		metrics.ActiveWorkflows.Sub(float64(len(rt.active)))
		delete(c.runtimes, sessionID)
	}
	c.mu.Unlock()
	c.bus.UnsubscribeSession(sessionID)
	c.bus.Broadcast(protocol.EventSessionRemoved, map[string]interface{}{"sessionId": sessionID}, sessionID)
	return nil
}

// GracefulShutdown pauses every active workflow with enough state to
// resume, releases every agent bound to this coordinator, and returns the
// counts. Individual failures are logged; shutdown always completes.
func (c *Coordinator) GracefulShutdown() ShutdownReport {
	c.eval.Stop()

	var report ShutdownReport
	c.mu.Lock()
	sessionIDs := make([]string, 0, len(c.runtimes))
	for id := range c.runtimes {
		sessionIDs = append(sessionIDs, id)
	}
	c.mu.Unlock()

	for _, sessionID := range sessionIDs {
		c.mu.Lock()
		rt := c.runtimes[sessionID]
		rt.paused = true
		var toPersist []*models.Workflow
		for _, w := range rt.active {
			if w.Status == models.WorkflowStatusRunning {
				w.Status = models.WorkflowStatusPaused
				w.UpdatedAt = c.clock.Now()
				snapshot := *w
				toPersist = append(toPersist, &snapshot)
			}
		}
		c.mu.Unlock()

		c.graph.PauseSession(sessionID)
		for _, w := range toPersist {
			if err := c.store.SavePausedWorkflow(w); err != nil {
				log.Printf("[coordinator] shutdown: persist workflow %s: %v", w.ID, err)
				continue
			}
			report.PausedWorkflows++
		}
	}

	released := c.pool.ReleaseAll("daemon shutdown")
	report.ReleasedAgents = len(released)
	log.Printf("[coordinator] graceful shutdown: %d workflows paused, %d agents released", report.PausedWorkflows, report.ReleasedAgents)
	return report
}

// RecoverAllSessions reloads persisted sessions, tasks, and paused
// workflows on daemon start and re-arms evaluation. Returns the number of
// sessions recovered.
func (c *Coordinator) RecoverAllSessions() (int, error) {
	if err := c.sessions.Load(); err != nil {
		return 0, err
	}
	recovered := 0
	for _, s := range c.sessions.List() {
		tasks, err := c.store.ListTasks(s.ID)
		if err != nil {
			log.Printf("[coordinator] recover tasks for %s: %v", s.ID, err)
			continue
		}
		for _, t := range tasks {
			if err := c.graph.LoadTask(t); err != nil {
				log.Printf("[coordinator] load task %s: %v", t.ID, err)
			}
		}
		c.graph.RecomputeSession(s.ID)
		recovered++
	}

	paused, err := c.store.ListPausedWorkflows()
	if err != nil {
		return recovered, fmt.Errorf("list paused workflows: %w", err)
	}
	c.mu.Lock()
	for _, w := range paused {
		rt := c.runtimeLocked(w.SessionID)
		rt.paused = true
		rt.active[w.ID] = w
		rt.pending = append(rt.pending, w.ID)
		metrics.ActiveWorkflows.Inc()
	}
	c.mu.Unlock()
	if len(paused) > 0 {
		log.Printf("[coordinator] recovered %d paused workflows", len(paused))
	}
	c.eval.Notify()
	return recovered, nil
}

// WorkflowStatus returns the live or historical record of one workflow.
func (c *Coordinator) WorkflowStatus(sessionID, workflowID string) (*models.Workflow, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rt, ok := c.runtimes[sessionID]
	if !ok {
		return nil, protocol.NotFoundf("session %s has no runtime state", sessionID)
	}
	if w, active := rt.active[workflowID]; active {
		snapshot := *w
		return &snapshot, nil
	}
	if w, found := rt.history.Get(workflowID); found {
		snapshot := *w
		return &snapshot, nil
	}
	return nil, protocol.NotFoundf("workflow %s not found", workflowID)
}

// ListWorkflows returns the session's active workflows plus its bounded
// history, active first.
func (c *Coordinator) ListWorkflows(sessionID string) []*models.Workflow {
	c.mu.Lock()
	defer c.mu.Unlock()
	rt, ok := c.runtimes[sessionID]
	if !ok {
		return nil
	}
	out := make([]*models.Workflow, 0, len(rt.active))
	for _, w := range rt.active {
		snapshot := *w
		out = append(out, &snapshot)
	}
	for _, id := range rt.history.Keys() {
		if w, found := rt.history.Get(id); found {
			snapshot := *w
			out = append(out, &snapshot)
		}
	}
	return out
}

// SetRevising flags a session as having a plan revision in flight, which
// pauses new task dispatch without pausing running work.
func (c *Coordinator) SetRevising(sessionID string, revising bool) {
	c.mu.Lock()
	c.runtimeLocked(sessionID).revising = revising
	c.mu.Unlock()
}

// Status reports the coordinator's observable state for diagnostics.
func (c *Coordinator) Status() map[string]interface{} {
	pending, evaluations := c.eval.Stats()
	c.mu.Lock()
	active := 0
	for _, rt := range c.runtimes {
		active += len(rt.active)
	}
	sessions := len(c.runtimes)
	c.mu.Unlock()
	return map[string]interface{}{
		"coordinatorId":   c.id,
		"evaluationState": string(c.eval.State()),
		"pendingEvents":   pending,
		"evaluations":     evaluations,
		"activeWorkflows": active,
		"trackedSessions": sessions,
	}
}
