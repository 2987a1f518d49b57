package command

import (
	"context"
	"strings"

	"github.com/mkade/foreman/internal/broadcast"
	"github.com/mkade/foreman/internal/config"
	"github.com/mkade/foreman/internal/coordinator"
	"github.com/mkade/foreman/internal/plan"
	"github.com/mkade/foreman/internal/pool"
	"github.com/mkade/foreman/internal/protocol"
	"github.com/mkade/foreman/internal/state"
	"github.com/mkade/foreman/internal/taskgraph"
	"github.com/mkade/foreman/internal/unity"
)

// Services is the explicit container of everything handlers dispatch to,
// constructed once per daemon process and injected here.
type Services struct {
	Graph  *taskgraph.Graph
	Pool   *pool.Pool
	Bus    *broadcast.Broadcaster
	Coord  *coordinator.Coordinator
	Plans  *plan.Store
	Config *config.Config
	Unity  *unity.Bridge
	Store  state.Store
}

// Result is a successful handler outcome.
type Result struct {
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

type handlerFunc func(ctx context.Context, p Params) (*Result, error)

// Router dispatches category.action commands over a closed handler table.
type Router struct {
	svc      *Services
	handlers map[string]map[string]handlerFunc
}

// NewRouter builds the full dispatch table.
func NewRouter(svc *Services) *Router {
	r := &Router{
		svc:      svc,
		handlers: make(map[string]map[string]handlerFunc),
	}
	r.register("session", map[string]handlerFunc{
		"list":         r.sessionList,
		"status":       r.sessionGet,
		"get":          r.sessionGet,
		"state":        r.sessionState,
		"failed_tasks": r.sessionFailedTasks,
		"pause":        r.sessionPause,
		"resume":       r.sessionResume,
		"stop":         r.sessionStop,
		"remove":       r.sessionRemove,
	})
	r.register("plan", map[string]handlerFunc{
		"list":    r.planList,
		"create":  r.planCreate,
		"new":     r.planCreate,
		"start":   r.planCreate,
		"status":  r.planStatus,
		"revise":  r.planRevise,
		"approve": r.planApprove,
		"cancel":  r.planCancel,
		"restart": r.planRestart,
	})
	r.register("exec", map[string]handlerFunc{
		"start":  r.execStart,
		"pause":  r.execPause,
		"resume": r.execResume,
		"stop":   r.execStop,
		"status": r.execStatus,
	})
	r.register("workflow", map[string]handlerFunc{
		"dispatch":  r.workflowDispatch,
		"status":    r.workflowStatus,
		"cancel":    r.workflowCancel,
		"list":      r.workflowList,
		"summarize": r.workflowSummarize,
	})
	r.register("pool", map[string]handlerFunc{
		"status": r.poolStatus,
		"resize": r.poolResize,
		"role":   r.poolRole,
		"bench":  r.poolBench,
	})
	r.register("agent", map[string]handlerFunc{
		"pool":     r.agentPool,
		"roles":    r.rolesList,
		"release":  r.agentRelease,
		"complete": r.agentComplete,
	})
	r.register("task", map[string]handlerFunc{
		"list":        r.taskList,
		"create":      r.taskCreate,
		"start":       r.taskStart,
		"complete":    r.taskComplete,
		"progress":    r.taskProgress,
		"status":      r.taskStatus,
		"fail":        r.taskFail,
		"assignments": r.taskAssignments,
	})
	r.register("unity", map[string]handlerFunc{
		"status":  r.unityStatus,
		"compile": r.unityCompile,
		"test":    r.unityTest,
	})
	r.register("roles", map[string]handlerFunc{
		"list":   r.rolesList,
		"get":    r.rolesGet,
		"update": r.rolesUpdate,
		"reset":  r.rolesReset,
	})
	r.register("coordinator", map[string]handlerFunc{
		"status":   r.coordinatorStatus,
		"evaluate": r.coordinatorEvaluate,
		"shutdown": r.coordinatorShutdown,
	})
	r.register("config", map[string]handlerFunc{
		"get":   r.configGet,
		"set":   r.configSet,
		"reset": r.configReset,
	})
	r.register("folders", map[string]handlerFunc{
		"get":   r.foldersGet,
		"set":   r.foldersSet,
		"reset": r.foldersReset,
	})
	return r
}

func (r *Router) register(category string, actions map[string]handlerFunc) {
	r.handlers[category] = actions
}

// Dispatch routes one command. Handler errors come back typed; the caller
// converts them to {success:false} responses.
func (r *Router) Dispatch(ctx context.Context, cmd string, rawParams map[string]interface{}) (*Result, error) {
	p := Params(rawParams)
	if p == nil {
		p = Params{}
	}
	if cmd == "status" {
		return r.daemonStatus(ctx, p)
	}
	category, action, ok := strings.Cut(cmd, ".")
	if !ok {
		return nil, protocol.UnknownCommandf("unknown command %q", cmd)
	}
	actions, ok := r.handlers[category]
	if !ok {
		return nil, protocol.UnknownCommandf("unknown command category %q", category)
	}
	h, ok := actions[action]
	if !ok {
		return nil, protocol.UnknownCommandf("unknown action %q for category %q", action, category)
	}
	return h(ctx, p)
}

// daemonStatus is the bare top-level status command: a one-shot snapshot of
// the whole daemon.
func (r *Router) daemonStatus(_ context.Context, _ Params) (*Result, error) {
	return &Result{Data: map[string]interface{}{
		"coordinator": r.svc.Coord.Status(),
		"pool":        r.svc.Pool.Counts(),
		"sessions":    len(r.svc.Coord.Sessions().List()),
		"broadcast":   r.svc.Bus.Stats(),
	}}, nil
}
