package command

import (
	"context"
	"fmt"

	"github.com/mkade/foreman/internal/protocol"
	"github.com/mkade/foreman/pkg/models"
)

func (r *Router) planList(_ context.Context, _ Params) (*Result, error) {
	sessions := r.svc.Coord.Sessions().List()
	type entry struct {
		SessionID string                `json:"sessionId"`
		Status    models.SessionStatus  `json:"status"`
		PlanPath  string                `json:"planPath,omitempty"`
		Revisions []models.PlanRevision `json:"revisions,omitempty"`
	}
	out := make([]entry, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, entry{SessionID: s.ID, Status: s.Status, PlanPath: s.PlanPath, Revisions: s.Revisions})
	}
	return &Result{Data: out}, nil
}

// planCreate starts planning: a new session in debating status with an
// initial plan document seeded from the requirement.
func (r *Router) planCreate(_ context.Context, p Params) (*Result, error) {
	requirement, err := p.String("requirement")
	if err != nil {
		return nil, err
	}
	s, err := r.svc.Coord.Sessions().Create(requirement)
	if err != nil {
		return nil, err
	}
	content := p.OptString("plan")
	if content == "" {
		content = fmt.Sprintf("# Plan for %s\n\n## Requirement\n\n%s\n\n## Tasks\n\n_Pending planning._\n", s.ID, requirement)
	}
	rev, err := r.svc.Plans.Create(s.ID, content)
	if err != nil {
		return nil, err
	}
	s, err = r.svc.Coord.Sessions().AttachRevision(s.ID, *rev)
	if err != nil {
		return nil, err
	}
	r.svc.Bus.Broadcast(protocol.EventSessionCreated, s, s.ID)
	r.svc.Bus.BroadcastToSession(s.ID, protocol.EventPlanCreated, rev)
	return &Result{Data: s, Message: fmt.Sprintf("planning started for session %s", s.ID)}, nil
}

func (r *Router) planStatus(_ context.Context, p Params) (*Result, error) {
	sessionID, err := p.String("sessionId")
	if err != nil {
		return nil, err
	}
	s, err := r.svc.Coord.Sessions().Get(sessionID)
	if err != nil {
		return nil, err
	}
	rev, err := r.svc.Plans.Current(sessionID)
	if err != nil {
		return nil, err
	}
	return &Result{Data: map[string]interface{}{
		"sessionId": s.ID,
		"status":    s.Status,
		"revision":  rev,
	}}, nil
}

// planRevise writes the next plan version and moves the session to revising.
func (r *Router) planRevise(_ context.Context, p Params) (*Result, error) {
	sessionID, err := p.String("sessionId")
	if err != nil {
		return nil, err
	}
	feedback, err := p.String("feedback")
	if err != nil {
		return nil, err
	}
	if _, err := r.svc.Coord.Sessions().SetStatus(sessionID, models.SessionStatusRevising); err != nil {
		return nil, err
	}
	r.svc.Coord.SetRevising(sessionID, true)

	content := p.OptString("plan")
	if content == "" {
		prev, err := r.svc.Plans.Read(sessionID)
		if err != nil {
			return nil, err
		}
		content = prev + fmt.Sprintf("\n## Revision feedback\n\n%s\n", feedback)
	}
	rev, err := r.svc.Plans.Revise(sessionID, content, feedback)
	if err != nil {
		return nil, err
	}
	s, err := r.svc.Coord.Sessions().AttachRevision(sessionID, *rev)
	if err != nil {
		return nil, err
	}
	if s, err = r.svc.Coord.Sessions().SetStatus(sessionID, models.SessionStatusPendingReview); err != nil {
		return nil, err
	}
	r.svc.Coord.SetRevising(sessionID, false)
	r.svc.Bus.BroadcastToSession(sessionID, protocol.EventPlanRevised, rev)
	return &Result{Data: s, Message: fmt.Sprintf("plan revised to v%d", rev.Version)}, nil
}

func (r *Router) planApprove(_ context.Context, p Params) (*Result, error) {
	sessionID, err := p.String("sessionId")
	if err != nil {
		return nil, err
	}
	s, err := r.svc.Coord.Sessions().SetStatus(sessionID, models.SessionStatusApproved)
	if err != nil {
		return nil, err
	}
	r.svc.Bus.BroadcastToSession(sessionID, protocol.EventPlanApproved, map[string]interface{}{"sessionId": sessionID})
	r.svc.Bus.BroadcastToSession(sessionID, protocol.EventSessionUpdated, s)
	return &Result{Data: s, Message: fmt.Sprintf("plan approved for session %s", sessionID)}, nil
}

func (r *Router) planCancel(_ context.Context, p Params) (*Result, error) {
	sessionID, err := p.String("sessionId")
	if err != nil {
		return nil, err
	}
	if err := r.svc.Coord.CancelSession(sessionID); err != nil {
		return nil, err
	}
	return &Result{Message: fmt.Sprintf("planning cancelled for session %s", sessionID)}, nil
}

func (r *Router) planRestart(_ context.Context, p Params) (*Result, error) {
	sessionID, err := p.String("sessionId")
	if err != nil {
		return nil, err
	}
	s, err := r.svc.Coord.Sessions().Restart(sessionID)
	if err != nil {
		return nil, err
	}
	r.svc.Bus.BroadcastToSession(sessionID, protocol.EventSessionUpdated, s)
	return &Result{Data: s, Message: fmt.Sprintf("session %s restarted", sessionID)}, nil
}
