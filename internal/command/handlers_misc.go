package command

import (
	"context"
	"fmt"

	"github.com/mkade/foreman/internal/config"
	"github.com/mkade/foreman/internal/protocol"
)

func (r *Router) unityStatus(ctx context.Context, _ Params) (*Result, error) {
	out, err := r.svc.Unity.Status(ctx)
	if err != nil {
		return nil, err
	}
	r.svc.Bus.Broadcast(protocol.EventUnityStatus, out, "")
	return &Result{Data: out}, nil
}

func (r *Router) unityCompile(ctx context.Context, _ Params) (*Result, error) {
	out, err := r.svc.Unity.Compile(ctx)
	if err != nil {
		return nil, err
	}
	return &Result{Data: out}, nil
}

func (r *Router) unityTest(ctx context.Context, _ Params) (*Result, error) {
	out, err := r.svc.Unity.Test(ctx)
	if err != nil {
		return nil, err
	}
	return &Result{Data: out}, nil
}

func (r *Router) coordinatorStatus(_ context.Context, _ Params) (*Result, error) {
	return &Result{Data: r.svc.Coord.Status()}, nil
}

func (r *Router) coordinatorEvaluate(_ context.Context, _ Params) (*Result, error) {
	r.svc.Coord.Evaluate()
	return &Result{Message: "evaluation pass triggered"}, nil
}

func (r *Router) coordinatorShutdown(_ context.Context, _ Params) (*Result, error) {
	report := r.svc.Coord.GracefulShutdown()
	return &Result{
		Data:    report,
		Message: fmt.Sprintf("%d workflows paused, %d agents released", report.PausedWorkflows, report.ReleasedAgents),
	}, nil
}

func (r *Router) configGet(_ context.Context, p Params) (*Result, error) {
	key, err := p.String("key")
	if err != nil {
		return nil, err
	}
	value, err := r.svc.Config.Get(key)
	if err != nil {
		return nil, err
	}
	return &Result{Data: map[string]interface{}{"key": key, "value": value}}, nil
}

func (r *Router) configSet(_ context.Context, p Params) (*Result, error) {
	key, err := p.String("key")
	if err != nil {
		return nil, err
	}
	value, ok := p["value"]
	if !ok {
		return nil, protocol.MissingParameter("value")
	}
	if err := r.svc.Config.Set(key, value); err != nil {
		return nil, err
	}
	if err := config.Save(r.svc.Config); err != nil {
		return nil, err
	}
	return &Result{Message: fmt.Sprintf("%s set", key)}, nil
}

func (r *Router) configReset(_ context.Context, p Params) (*Result, error) {
	// Empty key resets every settable key.
	key := p.OptString("key")
	if err := r.svc.Config.Reset(key); err != nil {
		return nil, err
	}
	if err := config.Save(r.svc.Config); err != nil {
		return nil, err
	}
	if key == "" {
		return &Result{Message: "configuration reset to defaults"}, nil
	}
	return &Result{Message: fmt.Sprintf("%s reset to default", key)}, nil
}

func (r *Router) foldersGet(_ context.Context, p Params) (*Result, error) {
	name := p.OptString("name")
	if name == "" {
		return &Result{Data: r.svc.Config.Folders}, nil
	}
	path, err := r.svc.Config.GetFolder(name)
	if err != nil {
		return nil, err
	}
	return &Result{Data: map[string]interface{}{"name": name, "path": path}}, nil
}

func (r *Router) foldersSet(_ context.Context, p Params) (*Result, error) {
	name, err := p.String("name")
	if err != nil {
		return nil, err
	}
	path, err := p.String("path")
	if err != nil {
		return nil, err
	}
	if err := r.svc.Config.SetFolder(name, path); err != nil {
		return nil, err
	}
	if err := config.Save(r.svc.Config); err != nil {
		return nil, err
	}
	return &Result{Message: fmt.Sprintf("folder %s set to %s", name, path)}, nil
}

func (r *Router) foldersReset(_ context.Context, _ Params) (*Result, error) {
	r.svc.Config.ResetFolders()
	if err := config.Save(r.svc.Config); err != nil {
		return nil, err
	}
	return &Result{Data: r.svc.Config.Folders, Message: "folders reset to defaults"}, nil
}
