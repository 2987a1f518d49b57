package command

import (
	"context"
	"fmt"

	"github.com/mkade/foreman/internal/protocol"
	"github.com/mkade/foreman/pkg/models"
)

// execStart moves an approved session to executing and arms the evaluation
// loop so ready tasks start dispatching.
func (r *Router) execStart(_ context.Context, p Params) (*Result, error) {
	sessionID, err := p.String("sessionId")
	if err != nil {
		return nil, err
	}
	s, err := r.svc.Coord.Sessions().SetStatus(sessionID, models.SessionStatusExecuting)
	if err != nil {
		return nil, err
	}
	r.svc.Bus.BroadcastToSession(sessionID, protocol.EventExecStarted, map[string]interface{}{"sessionId": sessionID})
	r.svc.Coord.Notify()
	return &Result{Data: s, Message: fmt.Sprintf("execution started for session %s", sessionID)}, nil
}

func (r *Router) execPause(_ context.Context, p Params) (*Result, error) {
	sessionID, err := p.String("sessionId")
	if err != nil {
		return nil, err
	}
	if err := r.svc.Coord.PauseSession(sessionID); err != nil {
		return nil, err
	}
	r.svc.Bus.BroadcastToSession(sessionID, protocol.EventExecPaused, map[string]interface{}{"sessionId": sessionID})
	return &Result{Message: fmt.Sprintf("execution paused for session %s", sessionID)}, nil
}

func (r *Router) execResume(_ context.Context, p Params) (*Result, error) {
	sessionID, err := p.String("sessionId")
	if err != nil {
		return nil, err
	}
	if err := r.svc.Coord.ResumeSession(sessionID); err != nil {
		return nil, err
	}
	r.svc.Bus.BroadcastToSession(sessionID, protocol.EventExecResumed, map[string]interface{}{"sessionId": sessionID})
	return &Result{Message: fmt.Sprintf("execution resumed for session %s", sessionID)}, nil
}

func (r *Router) execStop(_ context.Context, p Params) (*Result, error) {
	sessionID, err := p.String("sessionId")
	if err != nil {
		return nil, err
	}
	if err := r.svc.Coord.CancelSession(sessionID); err != nil {
		return nil, err
	}
	r.svc.Bus.BroadcastToSession(sessionID, protocol.EventExecStopped, map[string]interface{}{"sessionId": sessionID})
	return &Result{Message: fmt.Sprintf("execution stopped for session %s", sessionID)}, nil
}

func (r *Router) execStatus(_ context.Context, p Params) (*Result, error) {
	sessionID, err := p.String("sessionId")
	if err != nil {
		return nil, err
	}
	s, err := r.svc.Coord.Sessions().Get(sessionID)
	if err != nil {
		return nil, err
	}
	return &Result{Data: map[string]interface{}{
		"sessionId": sessionID,
		"status":    s.Status,
		"progress":  r.svc.Graph.Progress(sessionID),
		"workflows": r.svc.Coord.ListWorkflows(sessionID),
		"busy":      r.svc.Pool.BusyAgents(),
	}}, nil
}
