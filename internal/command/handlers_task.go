package command

import (
	"context"
	"fmt"
	"log"

	"github.com/mkade/foreman/internal/protocol"
)

// saveTask persists a task mutation; persistence failures are logged rather
// than failing the command, since the graph already holds the truth.
func (r *Router) saveTask(globalID string) {
	task, err := r.svc.Graph.GetTask(globalID)
	if err != nil {
		return
	}
	if err := r.svc.Store.SaveTask(task); err != nil {
		log.Printf("[command] persist task %s: %v", globalID, err)
	}
}

func (r *Router) taskList(_ context.Context, p Params) (*Result, error) {
	sessionID, err := p.String("sessionId")
	if err != nil {
		return nil, err
	}
	return &Result{Data: r.svc.Graph.ListTasks(sessionID)}, nil
}

func (r *Router) taskCreate(_ context.Context, p Params) (*Result, error) {
	sessionID, err := p.String("sessionId")
	if err != nil {
		return nil, err
	}
	taskID, err := p.String("taskId")
	if err != nil {
		return nil, err
	}
	description, err := p.String("description")
	if err != nil {
		return nil, err
	}
	typ, err := normalizeTaskType(p.OptString("type"))
	if err != nil {
		return nil, err
	}
	if _, err := r.svc.Coord.Sessions().Get(sessionID); err != nil {
		return nil, err
	}

	task, err := r.svc.Graph.CreateTask(sessionID, localTaskID(sessionID, taskID), description, p.StringSlice("dependencies"), typ, p.OptInt("priority", 0), p.OptString("errorText"))
	if err != nil {
		return nil, err
	}
	r.saveTask(task.ID)
	r.svc.Bus.BroadcastToSession(sessionID, protocol.EventTaskCreated, task)
	r.svc.Coord.Notify()
	return &Result{Data: task}, nil
}

func (r *Router) taskStart(_ context.Context, p Params) (*Result, error) {
	sessionID, err := p.String("sessionId")
	if err != nil {
		return nil, err
	}
	taskID, err := p.String("taskId")
	if err != nil {
		return nil, err
	}
	task, err := r.svc.Graph.StartTask(normalizeTaskID(sessionID, taskID))
	if err != nil {
		return nil, err
	}
	r.saveTask(task.ID)
	r.svc.Bus.BroadcastToSession(sessionID, protocol.EventTaskStarted, task)
	return &Result{Data: task}, nil
}

func (r *Router) taskComplete(_ context.Context, p Params) (*Result, error) {
	sessionID, err := p.String("sessionId")
	if err != nil {
		return nil, err
	}
	taskID, err := p.String("taskId")
	if err != nil {
		return nil, err
	}
	globalID := normalizeTaskID(sessionID, taskID)
	task, newlyReady, err := r.svc.Graph.CompleteTask(globalID, p.OptString("summary"))
	if err != nil {
		return nil, err
	}
	r.saveTask(globalID)
	for _, id := range newlyReady {
		r.saveTask(id)
		r.svc.Bus.BroadcastToSession(sessionID, protocol.EventTaskReady, map[string]interface{}{"taskId": id})
	}
	r.svc.Bus.BroadcastToSession(sessionID, protocol.EventTaskCompleted, task)
	r.svc.Coord.Notify()
	return &Result{Data: map[string]interface{}{"task": task, "newlyReady": newlyReady}}, nil
}

func (r *Router) taskProgress(_ context.Context, p Params) (*Result, error) {
	sessionID, err := p.String("sessionId")
	if err != nil {
		return nil, err
	}
	return &Result{Data: r.svc.Graph.Progress(sessionID)}, nil
}

func (r *Router) taskStatus(_ context.Context, p Params) (*Result, error) {
	sessionID, err := p.String("sessionId")
	if err != nil {
		return nil, err
	}
	taskID, err := p.String("taskId")
	if err != nil {
		return nil, err
	}
	task, err := r.svc.Graph.GetTask(normalizeTaskID(sessionID, taskID))
	if err != nil {
		return nil, err
	}
	return &Result{Data: task}, nil
}

func (r *Router) taskFail(_ context.Context, p Params) (*Result, error) {
	sessionID, err := p.String("sessionId")
	if err != nil {
		return nil, err
	}
	taskID, err := p.String("taskId")
	if err != nil {
		return nil, err
	}
	reason, err := p.String("reason")
	if err != nil {
		return nil, err
	}
	globalID := normalizeTaskID(sessionID, taskID)
	task, err := r.svc.Graph.MarkTaskFailed(globalID, reason)
	if err != nil {
		return nil, err
	}
	r.saveTask(globalID)
	r.svc.Bus.BroadcastToSession(sessionID, protocol.EventTaskFailed, task)
	r.svc.Coord.Notify()
	return &Result{Data: task, Message: fmt.Sprintf("task %s marked failed", taskID)}, nil
}

func (r *Router) taskAssignments(_ context.Context, p Params) (*Result, error) {
	sessionID, err := p.String("sessionId")
	if err != nil {
		return nil, err
	}
	return &Result{Data: r.svc.Graph.Assignments(sessionID)}, nil
}
