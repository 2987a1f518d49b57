// Package pool owns the fixed-identity worker pool and its lifecycle.
// Agents are stable named identities cycled through
// available -> allocated -> busy -> resting -> available; the external
// process that performs the work lives outside the daemon.
package pool

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/mkade/foreman/internal/metrics"
	"github.com/mkade/foreman/internal/protocol"
	"github.com/mkade/foreman/pkg/models"
)

// roster seeds agent names in order. Grows with generated names once exhausted.
var roster = []string{
	"Alex", "Betty", "Cleo", "Dany", "Eddy",
	"Faye", "Gus", "Hana", "Iris", "Jude",
}

// DefaultRestCooldown is how long a released agent rests before returning to
// the available pool.
const DefaultRestCooldown = 5 * time.Second

// Pool manages the worker identities. All state transitions go through its
// methods; an agent is in exactly one state bucket at any instant.
type Pool struct {
	mu sync.RWMutex
	// agents maps name -> agent.
	agents map[string]*models.Agent
	// order preserves creation order for stable listings.
	order []string
	// restTimers tracks pending resting->available transitions by name.
	restTimers map[string]*time.Timer
	// cooldown is the resting duration after release.
	cooldown time.Duration
	// nameSeq numbers generated names past the roster.
	nameSeq int
	// roles is the role registry.
	roles *RoleRegistry
	// onAvailable, if set, is called after an agent returns to available.
	// The coordinator uses it to trigger an evaluation pass.
	onAvailable func(name string)
	// coordinatorID is stamped on every allocated agent so a snapshot shows
	// which coordinator instance bound it.
	coordinatorID string
	// closed stops cooldown timers from rearming.
	closed bool
}

// Option configures a Pool.
type Option func(*Pool)

// WithCooldown overrides the rest cooldown.
func WithCooldown(d time.Duration) Option {
	return func(p *Pool) { p.cooldown = d }
}

// WithOnAvailable registers a callback fired when an agent finishes resting.
func WithOnAvailable(fn func(name string)) Option {
	return func(p *Pool) { p.onAvailable = fn }
}

// New creates a pool of size agents, all available.
func New(size int, opts ...Option) *Pool {
	p := &Pool{
		agents:     make(map[string]*models.Agent),
		restTimers: make(map[string]*time.Timer),
		cooldown:   DefaultRestCooldown,
		roles:      NewRoleRegistry(),
	}
	for _, opt := range opts {
		opt(p)
	}
	for i := 0; i < size; i++ {
		p.addAgentLocked()
	}
	p.updateMetricsLocked()
	return p
}

// addAgentLocked creates one agent with the next fresh name. Callers hold p.mu
// or have exclusive access during construction.
func (p *Pool) addAgentLocked() *models.Agent {
	var name string
	for {
		if p.nameSeq < len(roster) {
			name = roster[p.nameSeq]
		} else {
			name = fmt.Sprintf("Agent-%d", p.nameSeq+1)
		}
		p.nameSeq++
		if _, taken := p.agents[name]; !taken {
			break
		}
	}
	a := &models.Agent{Name: name, State: models.AgentStateAvailable}
	p.agents[name] = a
	p.order = append(p.order, name)
	return a
}

// BindCoordinator records the coordinator identity stamped on allocations.
func (p *Pool) BindCoordinator(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.coordinatorID = id
}

// Size returns the number of agents in the pool.
func (p *Pool) Size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.agents)
}

// Resize grows the pool with fresh names or shrinks it by removing available
// agents. Shrinking fails when not enough agents are available; busy and
// allocated agents are never removed.
func (p *Pool) Resize(newSize int) (added, removed []string, err error) {
	if newSize < 0 {
		return nil, nil, protocol.InvalidStatef("pool size cannot be negative")
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	current := len(p.agents)
	switch {
	case newSize > current:
		for i := current; i < newSize; i++ {
			a := p.addAgentLocked()
			added = append(added, a.Name)
		}
	case newSize < current:
		toRemove := current - newSize
		// Remove from the end of creation order, available agents only.
		// Resting agents count as removable once their timer is cancelled.
		var victims []string
		for i := len(p.order) - 1; i >= 0 && len(victims) < toRemove; i-- {
			a := p.agents[p.order[i]]
			if a.State == models.AgentStateAvailable || a.State == models.AgentStateResting {
				victims = append(victims, a.Name)
			}
		}
		if len(victims) < toRemove {
			return nil, nil, protocol.InvalidStatef(
				"cannot shrink pool to %d: only %d agents are removable", newSize, len(victims))
		}
		for _, name := range victims {
			if t := p.restTimers[name]; t != nil {
				t.Stop()
				delete(p.restTimers, name)
			}
			delete(p.agents, name)
			removed = append(removed, name)
		}
		p.order = filterNames(p.order, p.agents)
	}
	p.updateMetricsLocked()
	return added, removed, nil
}

// Allocate binds an available agent to a workflow. available -> allocated.
func (p *Pool) Allocate(name, sessionID, workflowID, roleID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	a, ok := p.agents[name]
	if !ok {
		return protocol.NotFoundf("agent %s not found", name)
	}
	if a.State != models.AgentStateAvailable {
		return protocol.InvalidStatef("agent %s is %s, not available", name, a.State)
	}
	if roleID != "" {
		if _, err := p.roles.Get(roleID); err != nil {
			return err
		}
	}
	now := time.Now()
	a.State = models.AgentStateAllocated
	a.SessionID = sessionID
	a.WorkflowID = workflowID
	a.RoleID = roleID
	a.CoordinatorID = p.coordinatorID
	a.AllocatedAt = &now
	p.updateMetricsLocked()
	return nil
}

// AllocateAny allocates the first available agent and returns its name.
func (p *Pool) AllocateAny(sessionID, workflowID, roleID string) (string, error) {
	name := ""
	p.mu.RLock()
	for _, n := range p.order {
		if p.agents[n].State == models.AgentStateAvailable {
			name = n
			break
		}
	}
	p.mu.RUnlock()
	if name == "" {
		return "", protocol.Unavailablef("no available agents in pool")
	}
	if err := p.Allocate(name, sessionID, workflowID, roleID); err != nil {
		return "", err
	}
	return name, nil
}

// MarkBusy moves an allocated agent to busy, optionally recording its task.
func (p *Pool) MarkBusy(name, taskID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	a, ok := p.agents[name]
	if !ok {
		return protocol.NotFoundf("agent %s not found", name)
	}
	if a.State != models.AgentStateAllocated {
		return protocol.InvalidStatef("agent %s is %s, not allocated", name, a.State)
	}
	a.State = models.AgentStateBusy
	a.TaskID = taskID
	p.updateMetricsLocked()
	return nil
}

// Release moves an allocated or busy agent to resting. After the cooldown the
// agent returns to available automatically.
func (p *Pool) Release(name, reason string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	a, ok := p.agents[name]
	if !ok {
		return protocol.NotFoundf("agent %s not found", name)
	}
	if a.State != models.AgentStateAllocated && a.State != models.AgentStateBusy {
		return protocol.InvalidStatef("agent %s is %s, not allocated or busy", name, a.State)
	}

	now := time.Now()
	a.State = models.AgentStateResting
	a.SessionID = ""
	a.WorkflowID = ""
	a.CoordinatorID = ""
	a.TaskID = ""
	a.RoleID = ""
	a.AllocatedAt = nil
	a.RestingSince = &now
	log.Printf("[pool] released agent %s (%s), resting for %s", name, reason, p.cooldown)

	if t := p.restTimers[name]; t != nil {
		t.Stop()
	}
	p.restTimers[name] = time.AfterFunc(p.cooldown, func() { p.finishRest(name) })
	p.updateMetricsLocked()
	return nil
}

// finishRest completes the resting -> available transition.
func (p *Pool) finishRest(name string) {
	p.mu.Lock()
	a, ok := p.agents[name]
	if !ok || p.closed || a.State != models.AgentStateResting {
		p.mu.Unlock()
		return
	}
	a.State = models.AgentStateAvailable
	a.RestingSince = nil
	delete(p.restTimers, name)
	cb := p.onAvailable
	p.updateMetricsLocked()
	p.mu.Unlock()

	if cb != nil {
		cb(name)
	}
}

// ReleaseAll releases every allocated or busy agent. Errors on individual
// agents are logged, not returned; the remaining releases still proceed.
// Returns the names released.
func (p *Pool) ReleaseAll(reason string) []string {
	p.mu.RLock()
	var candidates []string
	for _, name := range p.order {
		s := p.agents[name].State
		if s == models.AgentStateAllocated || s == models.AgentStateBusy {
			candidates = append(candidates, name)
		}
	}
	p.mu.RUnlock()

	var released []string
	for _, name := range candidates {
		if err := p.Release(name, reason); err != nil {
			log.Printf("[pool] release %s during %s: %v", name, reason, err)
			continue
		}
		released = append(released, name)
	}
	return released
}

// Get returns a copy of the named agent.
func (p *Pool) Get(name string) (*models.Agent, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	a, ok := p.agents[name]
	if !ok {
		return nil, protocol.NotFoundf("agent %s not found", name)
	}
	c := *a
	return &c, nil
}

// AvailableNames returns the names of available agents in creation order.
func (p *Pool) AvailableNames() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var names []string
	for _, name := range p.order {
		if p.agents[name].State == models.AgentStateAvailable {
			names = append(names, name)
		}
	}
	return names
}

// BusyAgents returns busy agents with their session/workflow/task context.
func (p *Pool) BusyAgents() []*models.Agent {
	return p.byState(models.AgentStateBusy, "")
}

// Bench returns allocated agents, optionally filtered by session.
func (p *Pool) Bench(sessionID string) []*models.Agent {
	return p.byState(models.AgentStateAllocated, sessionID)
}

// Agents returns copies of every agent in creation order.
func (p *Pool) Agents() []*models.Agent {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*models.Agent, 0, len(p.order))
	for _, name := range p.order {
		c := *p.agents[name]
		out = append(out, &c)
	}
	return out
}

// Counts returns the number of agents per state.
func (p *Pool) Counts() map[models.AgentState]int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	counts := make(map[models.AgentState]int, 4)
	for _, a := range p.agents {
		counts[a.State]++
	}
	return counts
}

// Roles returns the pool's role registry.
func (p *Pool) Roles() *RoleRegistry {
	return p.roles
}

// Close cancels pending cooldown timers. Agents stay in their current state.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	for name, t := range p.restTimers {
		t.Stop()
		delete(p.restTimers, name)
	}
}

func (p *Pool) byState(state models.AgentState, sessionID string) []*models.Agent {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []*models.Agent
	for _, name := range p.order {
		a := p.agents[name]
		if a.State != state {
			continue
		}
		if sessionID != "" && a.SessionID != sessionID {
			continue
		}
		c := *a
		out = append(out, &c)
	}
	return out
}

// updateMetricsLocked refreshes the pool occupancy gauges. Callers hold p.mu.
func (p *Pool) updateMetricsLocked() {
	counts := map[models.AgentState]int{
		models.AgentStateAvailable: 0,
		models.AgentStateAllocated: 0,
		models.AgentStateBusy:      0,
		models.AgentStateResting:   0,
	}
	for _, a := range p.agents {
		counts[a.State]++
	}
	for state, n := range counts {
		metrics.PoolAgents.WithLabelValues(string(state)).Set(float64(n))
	}
}

func filterNames(order []string, keep map[string]*models.Agent) []string {
	out := order[:0]
	for _, name := range order {
		if _, ok := keep[name]; ok {
			out = append(out, name)
		}
	}
	return out
}
