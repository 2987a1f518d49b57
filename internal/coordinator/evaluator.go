package coordinator

import (
	"log"
	"sync"
	"time"

	"github.com/mkade/foreman/internal/metrics"
)

// EvalState is one phase of the evaluation state machine.
type EvalState string

const (
	// EvalIdle means no events are pending and no timer is armed.
	EvalIdle EvalState = "idle"
	// EvalQueuing means an event opened a debounce window that has not
	// elapsed yet.
	EvalQueuing EvalState = "queuing"
	// EvalEvaluating means an evaluation pass is running.
	EvalEvaluating EvalState = "evaluating"
	// EvalCooldown means the refractory period after a pass is absorbing
	// the burst of events the pass itself produced.
	EvalCooldown EvalState = "cooldown"
)

// Evaluator coalesces incoming events into single evaluation passes.
// Events arriving in bursts (many tasks completing near-simultaneously)
// would otherwise each trigger redundant, racy dispatch decisions; instead
// any event in idle opens a debounce window, the pass runs once when it
// elapses, and a cooldown absorbs the pass's own side-effect events.
// At most one pass runs at a time; events arriving mid-pass re-arm the
// next cycle rather than running concurrently.
type Evaluator struct {
	mu       sync.Mutex
	state    EvalState
	clock    Clock
	debounce time.Duration
	cooldown time.Duration
	timer    Timer

	pending     int
	rearm       bool
	evaluations uint64

	run func()
}

// NewEvaluator creates an Evaluator that invokes run once per coalesced
// window. run executes on the timer goroutine and must not call back into
// Notify-free Evaluator methods that take the lock.
func NewEvaluator(clock Clock, debounce, cooldown time.Duration, run func()) *Evaluator {
	return &Evaluator{
		state:    EvalIdle,
		clock:    clock,
		debounce: debounce,
		cooldown: cooldown,
		run:      run,
	}
}

// Notify records a relevant event. In idle it opens the debounce window;
// while queuing it coalesces; during a pass or cooldown it arms the next
// cycle.
func (e *Evaluator) Notify() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.pending++
	metrics.PendingEvents.Set(float64(e.pending))

	switch e.state {
	case EvalIdle:
		e.state = EvalQueuing
		e.timer = e.clock.AfterFunc(e.debounce, e.fire)
	case EvalQueuing:
		// Window already open; coalesce.
	case EvalEvaluating, EvalCooldown:
		e.rearm = true
	}
}

// TriggerNow forces an immediate evaluation pass, bypassing the debounce
// window. Used by the coordinator.evaluate command. A pass already running
// is not interrupted; the trigger arms the next cycle instead.
func (e *Evaluator) TriggerNow() {
	e.mu.Lock()
	switch e.state {
	case EvalIdle, EvalQueuing:
		if e.timer != nil {
			e.timer.Stop()
			e.timer = nil
		}
		e.mu.Unlock()
		e.fire()
		return
	default:
		e.rearm = true
		e.mu.Unlock()
	}
}

// fire runs one evaluation pass then enters cooldown.
func (e *Evaluator) fire() {
	e.mu.Lock()
	if e.state == EvalEvaluating {
		// A concurrent trigger lost the race; the running pass covers it.
		e.rearm = true
		e.mu.Unlock()
		return
	}
	e.state = EvalEvaluating
	e.pending = 0
	metrics.PendingEvents.Set(0)
	e.mu.Unlock()

	if e.run != nil {
		e.run()
	}

	e.mu.Lock()
	e.evaluations++
	metrics.EvaluationsTotal.Inc()
	e.state = EvalCooldown
	e.timer = e.clock.AfterFunc(e.cooldown, e.endCooldown)
	e.mu.Unlock()
}

func (e *Evaluator) endCooldown() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != EvalCooldown {
		return
	}
	if e.rearm {
		e.rearm = false
		e.state = EvalQueuing
		e.timer = e.clock.AfterFunc(e.debounce, e.fire)
		return
	}
	e.state = EvalIdle
}

// State returns the current phase of the state machine.
func (e *Evaluator) State() EvalState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Stats returns the pending-event count and total evaluation passes.
func (e *Evaluator) Stats() (pending int, evaluations uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pending, e.evaluations
}

// Stop cancels any armed timer. Pending events are discarded.
func (e *Evaluator) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	if e.state == EvalQueuing || e.state == EvalCooldown {
		e.state = EvalIdle
	}
	if e.pending > 0 {
		log.Printf("[coordinator] evaluator stopped with %d pending events", e.pending)
		e.pending = 0
		metrics.PendingEvents.Set(0)
	}
}
