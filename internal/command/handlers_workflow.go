package command

import (
	"context"
	"fmt"

	"github.com/mkade/foreman/pkg/models"
)

func (r *Router) workflowDispatch(_ context.Context, p Params) (*Result, error) {
	sessionID, err := p.String("sessionId")
	if err != nil {
		return nil, err
	}
	workflowType, err := p.String("type")
	if err != nil {
		return nil, err
	}
	id, err := r.svc.Coord.DispatchWorkflow(sessionID, workflowType, p.Map("input"))
	if err != nil {
		return nil, err
	}
	return &Result{Data: map[string]interface{}{"workflowId": id}}, nil
}

func (r *Router) workflowStatus(_ context.Context, p Params) (*Result, error) {
	sessionID, err := p.String("sessionId")
	if err != nil {
		return nil, err
	}
	workflowID, err := p.String("workflowId")
	if err != nil {
		return nil, err
	}
	w, err := r.svc.Coord.WorkflowStatus(sessionID, workflowID)
	if err != nil {
		return nil, err
	}
	return &Result{Data: w}, nil
}

func (r *Router) workflowCancel(_ context.Context, p Params) (*Result, error) {
	sessionID, err := p.String("sessionId")
	if err != nil {
		return nil, err
	}
	workflowID, err := p.String("workflowId")
	if err != nil {
		return nil, err
	}
	if err := r.svc.Coord.CancelWorkflow(sessionID, workflowID); err != nil {
		return nil, err
	}
	return &Result{Message: fmt.Sprintf("workflow %s cancelled", workflowID)}, nil
}

func (r *Router) workflowList(_ context.Context, p Params) (*Result, error) {
	sessionID, err := p.String("sessionId")
	if err != nil {
		return nil, err
	}
	return &Result{Data: r.svc.Coord.ListWorkflows(sessionID)}, nil
}

// workflowSummarize aggregates the session's workflows by status.
func (r *Router) workflowSummarize(_ context.Context, p Params) (*Result, error) {
	sessionID, err := p.String("sessionId")
	if err != nil {
		return nil, err
	}
	counts := map[models.WorkflowStatus]int{}
	var running []string
	for _, w := range r.svc.Coord.ListWorkflows(sessionID) {
		counts[w.Status]++
		if w.Status == models.WorkflowStatusRunning {
			running = append(running, w.ID)
		}
	}
	return &Result{Data: map[string]interface{}{
		"sessionId": sessionID,
		"counts":    counts,
		"running":   running,
	}}, nil
}
