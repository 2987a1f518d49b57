// Package taskgraph maintains per-session dependency-ordered tasks and
// derives their runnable state. Tasks are nodes, and edges represent
// "blocked by" relationships; reverse edges are maintained automatically.
package taskgraph

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mkade/foreman/internal/protocol"
	"github.com/mkade/foreman/pkg/models"
)

// Graph holds every session's tasks. All mutations go through its methods;
// callers never modify returned tasks in place.
type Graph struct {
	mu sync.RWMutex
	// sessions maps session id -> local task id -> task.
	sessions map[string]map[string]*models.Task
}

// New creates an empty task graph.
func New() *Graph {
	return &Graph{
		sessions: make(map[string]map[string]*models.Task),
	}
}

// CreateTask inserts a task into a session's graph. The task starts blocked
// if any dependency is missing or incomplete, otherwise ready. Fails with
// Conflict if the local id already exists in the session, and rejects
// malformed dependency references (ids prefixed with a different session).
// Local ids cannot contain "_": it is the global-id separator, and a local
// id carrying one would parse as a foreign session reference on lookup.
func (g *Graph) CreateTask(sessionID, localID, description string, deps []string, typ models.TaskType, priority int, errText string) (*models.Task, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if localID == "" || strings.Contains(localID, "_") {
		return nil, protocol.InvalidStatef("task id %q is malformed; local ids cannot contain %q", localID, "_")
	}

	tasks := g.sessions[sessionID]
	if tasks == nil {
		tasks = make(map[string]*models.Task)
		g.sessions[sessionID] = tasks
	}
	if _, exists := tasks[localID]; exists {
		return nil, protocol.Conflictf("task %s already exists in session %s", localID, sessionID)
	}

	normalized := make([]string, 0, len(deps))
	for _, dep := range deps {
		// Dependencies are local ids. A dependency carrying a foreign session
		// prefix is malformed; one carrying our own prefix is stripped.
		if sess, local := models.SplitTaskID(dep); sess != "" {
			if sess != sessionID {
				return nil, protocol.InvalidStatef("task %s dependency %q references a task outside session %s", localID, dep, sessionID)
			}
			dep = local
		}
		if dep == localID {
			return nil, protocol.InvalidStatef("task %s cannot depend on itself", localID)
		}
		normalized = append(normalized, dep)
	}

	if g.wouldCycle(tasks, localID, normalized) {
		return nil, protocol.InvalidStatef("task %s would create a circular dependency", localID)
	}

	now := time.Now()
	task := &models.Task{
		ID:           models.GlobalTaskID(sessionID, localID),
		SessionID:    sessionID,
		LocalID:      localID,
		Description:  description,
		Type:         typ,
		Dependencies: normalized,
		Priority:     priority,
		LastError:    errText,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	task.Status = g.initialStatus(tasks, normalized)
	tasks[localID] = task

	// Forward edges: register this task as a dependent of each dependency.
	for _, dep := range normalized {
		if depTask, ok := tasks[dep]; ok {
			depTask.Dependents = appendUnique(depTask.Dependents, localID)
		}
	}
	// Reverse direction: earlier tasks may already declare this id as a
	// dependency (forward references are allowed at insert time).
	for _, other := range tasks {
		if other.LocalID == localID {
			continue
		}
		for _, dep := range other.Dependencies {
			if dep == localID {
				task.Dependents = appendUnique(task.Dependents, other.LocalID)
			}
		}
	}

	return task.Clone(), nil
}

// initialStatus derives the starting status from the dependency set.
func (g *Graph) initialStatus(tasks map[string]*models.Task, deps []string) models.TaskStatus {
	for _, dep := range deps {
		depTask, ok := tasks[dep]
		if !ok || depTask.Status != models.TaskStatusCompleted {
			return models.TaskStatusBlocked
		}
	}
	return models.TaskStatusReady
}

// wouldCycle checks whether inserting localID with the given dependencies
// introduces a cycle. Unknown dependencies cannot close a cycle and are
// ignored. Uses DFS coloring over the existing edges plus the new node.
func (g *Graph) wouldCycle(tasks map[string]*models.Task, localID string, deps []string) bool {
	edges := make(map[string][]string, len(tasks)+1)
	for id, t := range tasks {
		edges[id] = t.Dependencies
	}
	edges[localID] = deps

	// 0 = unvisited, 1 = in progress, 2 = done.
	colors := make(map[string]int, len(edges))
	var visit func(id string) bool
	visit = func(id string) bool {
		colors[id] = 1
		for _, dep := range edges[id] {
			if _, known := edges[dep]; !known {
				continue
			}
			switch colors[dep] {
			case 1:
				return true
			case 0:
				if visit(dep) {
					return true
				}
			}
		}
		colors[id] = 2
		return false
	}
	for id := range edges {
		if colors[id] == 0 && visit(id) {
			return true
		}
	}
	return false
}

// StartTask transitions a task to in_progress. It fails with UnmetDependency
// if any dependency is not completed and with InvalidState for blocked,
// completed, failed, or paused tasks. Starting an in_progress task is a
// no-op, which supports reconnection after an interruption.
func (g *Graph) StartTask(globalID string) (*models.Task, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	task, tasks, err := g.lookup(globalID)
	if err != nil {
		return nil, err
	}

	for _, dep := range task.Dependencies {
		depTask, ok := tasks[dep]
		if !ok || depTask.Status != models.TaskStatusCompleted {
			return nil, protocol.UnmetDependencyf("task %s dependency %s is not completed", task.LocalID, dep)
		}
	}

	switch task.Status {
	case models.TaskStatusInProgress:
		return task.Clone(), nil
	case models.TaskStatusBlocked, models.TaskStatusCompleted, models.TaskStatusFailed, models.TaskStatusPaused:
		return nil, protocol.InvalidStatef("cannot start task %s in status %s", task.LocalID, task.Status)
	}

	task.Status = models.TaskStatusInProgress
	task.UpdatedAt = time.Now()
	return task.Clone(), nil
}

// CompleteTask marks a task completed and recomputes blocked dependents whose
// remaining dependencies are now satisfied. Completing an already completed
// task is a no-op; it never double-advances dependents. Returns the task and
// the local ids of dependents that became ready.
func (g *Graph) CompleteTask(globalID, summary string) (*models.Task, []string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	task, tasks, err := g.lookup(globalID)
	if err != nil {
		return nil, nil, err
	}

	if task.Status == models.TaskStatusCompleted {
		return task.Clone(), nil, nil
	}
	if task.Status == models.TaskStatusFailed {
		return nil, nil, protocol.InvalidStatef("cannot complete failed task %s", task.LocalID)
	}

	now := time.Now()
	task.Status = models.TaskStatusCompleted
	task.UpdatedAt = now
	task.CompletedAt = &now
	if summary != "" {
		task.Summary = summary
	}

	var unblocked []string
	for _, depID := range task.Dependents {
		dependent, ok := tasks[depID]
		if !ok || dependent.Status != models.TaskStatusBlocked {
			continue
		}
		if g.depsSatisfied(tasks, dependent) {
			dependent.Status = models.TaskStatusReady
			dependent.UpdatedAt = now
			unblocked = append(unblocked, depID)
		}
	}
	sort.Strings(unblocked)
	return task.Clone(), unblocked, nil
}

// MarkTaskFailed moves a task to its terminal failed state and records the
// reason. Dependents are not cascade-failed; they remain blocked.
func (g *Graph) MarkTaskFailed(globalID, reason string) (*models.Task, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	task, _, err := g.lookup(globalID)
	if err != nil {
		return nil, err
	}
	if task.Status == models.TaskStatusFailed {
		return task.Clone(), nil
	}
	if task.Status == models.TaskStatusCompleted {
		return nil, protocol.InvalidStatef("cannot fail completed task %s", task.LocalID)
	}

	task.Status = models.TaskStatusFailed
	task.LastError = reason
	task.UpdatedAt = time.Now()
	return task.Clone(), nil
}

// AssignAgent records the agent and workflow currently carrying a task.
func (g *Graph) AssignAgent(globalID, agentName, workflowID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	task, _, err := g.lookup(globalID)
	if err != nil {
		return err
	}
	task.AssignedAgent = agentName
	task.WorkflowID = workflowID
	task.UpdatedAt = time.Now()
	return nil
}

// RecordModifiedFiles appends to a task's modified-files list.
func (g *Graph) RecordModifiedFiles(globalID string, files []string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	task, _, err := g.lookup(globalID)
	if err != nil {
		return err
	}
	for _, f := range files {
		task.ModifiedFiles = appendUnique(task.ModifiedFiles, f)
	}
	task.UpdatedAt = time.Now()
	return nil
}

// BumpRetry increments a task's retry count and returns the new value.
func (g *Graph) BumpRetry(globalID string) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	task, _, err := g.lookup(globalID)
	if err != nil {
		return 0, err
	}
	task.RetryCount++
	task.UpdatedAt = time.Now()
	return task.RetryCount, nil
}

// PauseSession suspends every in_progress task in the session.
func (g *Graph) PauseSession(sessionID string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	var paused []string
	now := time.Now()
	for id, task := range g.sessions[sessionID] {
		if task.Status == models.TaskStatusInProgress {
			task.Status = models.TaskStatusPaused
			task.UpdatedAt = now
			paused = append(paused, id)
		}
	}
	sort.Strings(paused)
	return paused
}

// ResumeSession returns paused tasks to in_progress.
func (g *Graph) ResumeSession(sessionID string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	var resumed []string
	now := time.Now()
	for id, task := range g.sessions[sessionID] {
		if task.Status == models.TaskStatusPaused {
			task.Status = models.TaskStatusInProgress
			task.UpdatedAt = now
			resumed = append(resumed, id)
		}
	}
	sort.Strings(resumed)
	return resumed
}

// Progress computes aggregate counts for a session in a single pass.
func (g *Graph) Progress(sessionID string) models.TaskProgress {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var p models.TaskProgress
	for _, task := range g.sessions[sessionID] {
		p.Total++
		switch task.Status {
		case models.TaskStatusCompleted:
			p.Completed++
		case models.TaskStatusInProgress:
			p.InProgress++
		case models.TaskStatusFailed:
			p.Failed++
		case models.TaskStatusReady:
			p.Ready++
		default:
			p.Pending++
		}
	}
	return p
}

// GetTask returns a copy of the task for a global id.
func (g *Graph) GetTask(globalID string) (*models.Task, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	task, _, err := g.lookup(globalID)
	if err != nil {
		return nil, err
	}
	return task.Clone(), nil
}

// ListTasks returns a session's tasks in dependency order: every task appears
// after its dependencies. Ties break on priority (higher first), then id.
func (g *Graph) ListTasks(sessionID string) []*models.Task {
	g.mu.RLock()
	defer g.mu.RUnlock()

	tasks := g.sessions[sessionID]
	order := topoOrder(tasks)
	out := make([]*models.Task, 0, len(order))
	for _, id := range order {
		out = append(out, tasks[id].Clone())
	}
	return out
}

// ReadyTasks returns the session's ready tasks, highest priority first.
func (g *Graph) ReadyTasks(sessionID string) []*models.Task {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var ready []*models.Task
	for _, task := range g.sessions[sessionID] {
		if task.Status == models.TaskStatusReady {
			ready = append(ready, task.Clone())
		}
	}
	sort.Slice(ready, func(i, j int) bool {
		if ready[i].Priority != ready[j].Priority {
			return ready[i].Priority > ready[j].Priority
		}
		return ready[i].LocalID < ready[j].LocalID
	})
	return ready
}

// FailedTasks returns the session's failed tasks, ordered by id.
func (g *Graph) FailedTasks(sessionID string) []*models.Task {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var failed []*models.Task
	for _, task := range g.sessions[sessionID] {
		if task.Status == models.TaskStatusFailed {
			failed = append(failed, task.Clone())
		}
	}
	sort.Slice(failed, func(i, j int) bool { return failed[i].LocalID < failed[j].LocalID })
	return failed
}

// Assignments returns the session's tasks that have an assigned agent.
func (g *Graph) Assignments(sessionID string) []*models.Task {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var assigned []*models.Task
	for _, task := range g.sessions[sessionID] {
		if task.AssignedAgent != "" {
			assigned = append(assigned, task.Clone())
		}
	}
	sort.Slice(assigned, func(i, j int) bool { return assigned[i].LocalID < assigned[j].LocalID })
	return assigned
}

// RemoveSession discards a session's entire task subtree.
func (g *Graph) RemoveSession(sessionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.sessions, sessionID)
}

// Sessions returns the ids of sessions that currently hold tasks.
func (g *Graph) Sessions() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	ids := make([]string, 0, len(g.sessions))
	for id := range g.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// LoadTask restores a task from a snapshot without revalidating its status.
// Reverse edges are rebuilt; call RecomputeSession after the last load so
// blocked/ready reflects the restored statuses.
func (g *Graph) LoadTask(task *models.Task) error {
	if task.SessionID == "" || task.LocalID == "" {
		return protocol.InvalidStatef("snapshot task missing session or local id")
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	tasks := g.sessions[task.SessionID]
	if tasks == nil {
		tasks = make(map[string]*models.Task)
		g.sessions[task.SessionID] = tasks
	}
	if _, exists := tasks[task.LocalID]; exists {
		return protocol.Conflictf("snapshot task %s duplicated", task.ID)
	}
	c := task.Clone()
	c.Dependents = nil
	tasks[task.LocalID] = c

	for _, other := range tasks {
		for _, dep := range other.Dependencies {
			if depTask, ok := tasks[dep]; ok {
				depTask.Dependents = appendUnique(depTask.Dependents, other.LocalID)
			}
		}
	}
	return nil
}

// RecomputeSession re-derives blocked/ready for every non-terminal,
// non-running task in the session. Used after snapshot reloads.
func (g *Graph) RecomputeSession(sessionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	tasks := g.sessions[sessionID]
	now := time.Now()
	for _, task := range tasks {
		switch task.Status {
		case models.TaskStatusBlocked, models.TaskStatusReady, models.TaskStatusCreated:
			want := models.TaskStatusReady
			if !g.depsSatisfied(tasks, task) {
				want = models.TaskStatusBlocked
			}
			if task.Status != want {
				task.Status = want
				task.UpdatedAt = now
			}
		}
	}
}

// lookup resolves a global id to its task and session map. Callers hold g.mu.
func (g *Graph) lookup(globalID string) (*models.Task, map[string]*models.Task, error) {
	sessionID, localID := models.SplitTaskID(globalID)
	if sessionID == "" {
		// Accept bare local ids only when they are unambiguous.
		var found *models.Task
		var foundTasks map[string]*models.Task
		for _, tasks := range g.sessions {
			if t, ok := tasks[localID]; ok {
				if found != nil {
					return nil, nil, protocol.NotFoundf("task id %q is ambiguous across sessions", globalID)
				}
				found, foundTasks = t, tasks
			}
		}
		if found == nil {
			return nil, nil, protocol.NotFoundf("task %s not found", globalID)
		}
		return found, foundTasks, nil
	}

	tasks := g.sessions[sessionID]
	if tasks == nil {
		return nil, nil, protocol.NotFoundf("session %s has no tasks", sessionID)
	}
	task, ok := tasks[localID]
	if !ok {
		return nil, nil, protocol.NotFoundf("task %s not found in session %s", localID, sessionID)
	}
	return task, tasks, nil
}

// depsSatisfied reports whether all of a task's dependencies are completed.
// Callers hold g.mu.
func (g *Graph) depsSatisfied(tasks map[string]*models.Task, task *models.Task) bool {
	for _, dep := range task.Dependencies {
		depTask, ok := tasks[dep]
		if !ok || depTask.Status != models.TaskStatusCompleted {
			return false
		}
	}
	return true
}

// topoOrder returns local ids with dependencies before dependents.
func topoOrder(tasks map[string]*models.Task) []string {
	ids := make([]string, 0, len(tasks))
	for id := range tasks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := tasks[ids[i]], tasks[ids[j]]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		return a.LocalID < b.LocalID
	})

	visited := make(map[string]bool, len(ids))
	var order []string
	var visit func(id string)
	visit = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true
		for _, dep := range tasks[id].Dependencies {
			if _, ok := tasks[dep]; ok {
				visit(dep)
			}
		}
		order = append(order, id)
	}
	for _, id := range ids {
		visit(id)
	}
	return order
}

func appendUnique(list []string, v string) []string {
	if strings.TrimSpace(v) == "" {
		return list
	}
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}
