package command

import (
	"context"
	"fmt"
	"time"

	"github.com/mkade/foreman/internal/protocol"
	"github.com/mkade/foreman/pkg/models"
)

func (r *Router) poolStatus(_ context.Context, _ Params) (*Result, error) {
	return &Result{Data: map[string]interface{}{
		"size":      r.svc.Pool.Size(),
		"counts":    r.svc.Pool.Counts(),
		"available": r.svc.Pool.AvailableNames(),
		"busy":      r.svc.Pool.BusyAgents(),
	}}, nil
}

func (r *Router) poolResize(_ context.Context, p Params) (*Result, error) {
	size, err := p.Int("size")
	if err != nil {
		return nil, err
	}
	added, removed, err := r.svc.Pool.Resize(size)
	if err != nil {
		return nil, err
	}
	r.svc.Bus.Broadcast(protocol.EventPoolResized, map[string]interface{}{
		"size":    size,
		"added":   added,
		"removed": removed,
	}, "")
	return &Result{
		Data:    map[string]interface{}{"added": added, "removed": removed},
		Message: fmt.Sprintf("pool resized to %d agents", size),
	}, nil
}

func (r *Router) poolRole(_ context.Context, p Params) (*Result, error) {
	roleID, err := p.String("roleId")
	if err != nil {
		return nil, err
	}
	role, err := r.svc.Pool.Roles().Get(roleID)
	if err != nil {
		return nil, err
	}
	return &Result{Data: role}, nil
}

func (r *Router) poolBench(_ context.Context, p Params) (*Result, error) {
	// sessionId is optional: empty means all allocated agents.
	return &Result{Data: r.svc.Pool.Bench(p.OptString("sessionId"))}, nil
}

func (r *Router) agentPool(_ context.Context, _ Params) (*Result, error) {
	return &Result{Data: r.svc.Pool.Agents()}, nil
}

func (r *Router) agentRelease(_ context.Context, p Params) (*Result, error) {
	name, err := p.String("agentName")
	if err != nil {
		return nil, err
	}
	reason := p.OptString("reason")
	if reason == "" {
		reason = "released by command"
	}
	if err := r.svc.Pool.Release(name, reason); err != nil {
		return nil, err
	}
	r.svc.Bus.Broadcast(protocol.EventAgentReleased, map[string]interface{}{
		"agentName": name,
		"reason":    reason,
	}, "")
	return &Result{Message: fmt.Sprintf("agent %s released", name)}, nil
}

// agentComplete delivers an external agent's completion signal. delivered
// is false when no workflow was waiting — the signal is dropped, never
// queued, and the caller must not assume a retry.
func (r *Router) agentComplete(_ context.Context, p Params) (*Result, error) {
	sessionID, err := p.String("sessionId")
	if err != nil {
		return nil, err
	}
	workflowID, err := p.String("workflowId")
	if err != nil {
		return nil, err
	}
	stage, err := p.String("stage")
	if err != nil {
		return nil, err
	}
	result, err := p.String("result")
	if err != nil {
		return nil, err
	}
	sig := models.AgentSignal{
		SessionID:  sessionID,
		WorkflowID: workflowID,
		Stage:      stage,
		Result:     result,
		TaskID:     p.OptString("taskId"),
		Payload:    p.Map("payload"),
	}
	if sig.TaskID != "" {
		sig.TaskID = normalizeTaskID(sessionID, sig.TaskID)
	}
	delivered := r.svc.Coord.SignalAgentCompletion(sig)
	return &Result{Data: map[string]interface{}{"delivered": delivered}}, nil
}

func (r *Router) rolesList(_ context.Context, _ Params) (*Result, error) {
	return &Result{Data: r.svc.Pool.Roles().List()}, nil
}

func (r *Router) rolesGet(_ context.Context, p Params) (*Result, error) {
	roleID, err := p.String("roleId")
	if err != nil {
		return nil, err
	}
	role, err := r.svc.Pool.Roles().Get(roleID)
	if err != nil {
		return nil, err
	}
	return &Result{Data: role}, nil
}

func (r *Router) rolesUpdate(_ context.Context, p Params) (*Result, error) {
	roleID, err := p.String("roleId")
	if err != nil {
		return nil, err
	}
	role := models.Role{
		ID:           roleID,
		DisplayName:  p.OptString("displayName"),
		Description:  p.OptString("description"),
		DefaultModel: p.OptString("defaultModel"),
	}
	if timeout := p.OptString("timeout"); timeout != "" {
		d, err := parseTimeout(timeout)
		if err != nil {
			return nil, err
		}
		role.Timeout = d
	}
	updated, err := r.svc.Pool.Roles().Update(role)
	if err != nil {
		return nil, err
	}
	r.svc.Bus.Broadcast(protocol.EventRoleUpdated, updated, "")
	return &Result{Data: updated, Message: fmt.Sprintf("role %s updated", roleID)}, nil
}

func parseTimeout(raw string) (time.Duration, error) {
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, protocol.InvalidStatef("invalid timeout %q: %v", raw, err)
	}
	return d, nil
}

func (r *Router) rolesReset(_ context.Context, p Params) (*Result, error) {
	roleID, err := p.String("roleId")
	if err != nil {
		return nil, err
	}
	role, err := r.svc.Pool.Roles().Reset(roleID)
	if err != nil {
		return nil, err
	}
	r.svc.Bus.Broadcast(protocol.EventRoleUpdated, role, "")
	return &Result{Data: role, Message: fmt.Sprintf("role %s reset to defaults", roleID)}, nil
}
