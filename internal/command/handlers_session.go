package command

import (
	"context"
	"fmt"
)

func (r *Router) sessionList(_ context.Context, _ Params) (*Result, error) {
	return &Result{Data: r.svc.Coord.Sessions().List()}, nil
}

func (r *Router) sessionGet(_ context.Context, p Params) (*Result, error) {
	sessionID, err := p.String("sessionId")
	if err != nil {
		return nil, err
	}
	s, err := r.svc.Coord.Sessions().Get(sessionID)
	if err != nil {
		return nil, err
	}
	return &Result{Data: s}, nil
}

// sessionState combines the persisted session with its runtime view: task
// progress and active workflows.
func (r *Router) sessionState(_ context.Context, p Params) (*Result, error) {
	sessionID, err := p.String("sessionId")
	if err != nil {
		return nil, err
	}
	s, err := r.svc.Coord.Sessions().Get(sessionID)
	if err != nil {
		return nil, err
	}
	return &Result{Data: map[string]interface{}{
		"session":   s,
		"progress":  r.svc.Graph.Progress(sessionID),
		"workflows": r.svc.Coord.ListWorkflows(sessionID),
	}}, nil
}

func (r *Router) sessionFailedTasks(_ context.Context, p Params) (*Result, error) {
	sessionID, err := p.String("sessionId")
	if err != nil {
		return nil, err
	}
	if _, err := r.svc.Coord.Sessions().Get(sessionID); err != nil {
		return nil, err
	}
	return &Result{Data: r.svc.Graph.FailedTasks(sessionID)}, nil
}

func (r *Router) sessionPause(_ context.Context, p Params) (*Result, error) {
	sessionID, err := p.String("sessionId")
	if err != nil {
		return nil, err
	}
	if err := r.svc.Coord.PauseSession(sessionID); err != nil {
		return nil, err
	}
	return &Result{Message: fmt.Sprintf("session %s paused", sessionID)}, nil
}

func (r *Router) sessionResume(_ context.Context, p Params) (*Result, error) {
	sessionID, err := p.String("sessionId")
	if err != nil {
		return nil, err
	}
	if err := r.svc.Coord.ResumeSession(sessionID); err != nil {
		return nil, err
	}
	return &Result{Message: fmt.Sprintf("session %s resumed", sessionID)}, nil
}

func (r *Router) sessionStop(_ context.Context, p Params) (*Result, error) {
	sessionID, err := p.String("sessionId")
	if err != nil {
		return nil, err
	}
	if err := r.svc.Coord.CancelSession(sessionID); err != nil {
		return nil, err
	}
	return &Result{Message: fmt.Sprintf("session %s stopped", sessionID)}, nil
}

func (r *Router) sessionRemove(_ context.Context, p Params) (*Result, error) {
	sessionID, err := p.String("sessionId")
	if err != nil {
		return nil, err
	}
	if err := r.svc.Coord.RemoveSession(sessionID); err != nil {
		return nil, err
	}
	if err := r.svc.Plans.Remove(sessionID); err != nil {
		// The session is gone either way; surface the partial cleanup.
		return &Result{Message: fmt.Sprintf("session %s removed; plan cleanup failed: %v", sessionID, err)}, nil
	}
	return &Result{Message: fmt.Sprintf("session %s removed", sessionID)}, nil
}
