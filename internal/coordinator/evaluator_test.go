package coordinator

import (
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// virtualClock drives the evaluation state machine deterministically.
type virtualClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*virtualTimer
}

type virtualTimer struct {
	clock   *virtualClock
	at      time.Time
	fn      func()
	stopped bool
}

func newVirtualClock() *virtualClock {
	return &virtualClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *virtualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *virtualClock) AfterFunc(d time.Duration, fn func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &virtualTimer{clock: c, at: c.now.Add(d), fn: fn}
	c.timers = append(c.timers, t)
	return t
}

func (t *virtualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	was := !t.stopped
	t.stopped = true
	return was
}

// Advance moves time forward, firing due timers in order.
func (c *virtualClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()
	for {
		c.mu.Lock()
		var due *virtualTimer
		sort.Slice(c.timers, func(i, j int) bool { return c.timers[i].at.Before(c.timers[j].at) })
		for _, t := range c.timers {
			if !t.stopped && !t.at.After(target) {
				due = t
				break
			}
		}
		if due == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		due.stopped = true
		c.now = due.at
		c.mu.Unlock()
		due.fn()
	}
}

func TestEvaluatorCoalescesBurst(t *testing.T) {
	clock := newVirtualClock()
	var runs atomic.Int32
	e := NewEvaluator(clock, 500*time.Millisecond, time.Second, func() { runs.Add(1) })

	for i := 0; i < 10; i++ {
		e.Notify()
	}
	if got := e.State(); got != EvalQueuing {
		t.Fatalf("state = %s, want queuing", got)
	}
	pending, _ := e.Stats()
	if pending != 10 {
		t.Errorf("pending = %d, want 10", pending)
	}

	clock.Advance(500 * time.Millisecond)
	if got := runs.Load(); got != 1 {
		t.Errorf("runs = %d, want 1", got)
	}
	if got := e.State(); got != EvalCooldown {
		t.Errorf("state = %s, want cooldown", got)
	}

	clock.Advance(time.Second)
	if got := e.State(); got != EvalIdle {
		t.Errorf("state after cooldown = %s, want idle", got)
	}
	_, evals := e.Stats()
	if evals != 1 {
		t.Errorf("evaluations = %d, want 1", evals)
	}
}

func TestEvaluatorRearmsDuringCooldown(t *testing.T) {
	clock := newVirtualClock()
	var runs atomic.Int32
	e := NewEvaluator(clock, 500*time.Millisecond, time.Second, func() { runs.Add(1) })

	e.Notify()
	clock.Advance(500 * time.Millisecond)
	if runs.Load() != 1 {
		t.Fatalf("runs = %d, want 1", runs.Load())
	}

	// Event arriving during cooldown arms the next cycle rather than
	// running concurrently.
	e.Notify()
	if runs.Load() != 1 {
		t.Fatalf("pass ran during cooldown")
	}
	clock.Advance(time.Second)
	if got := e.State(); got != EvalQueuing {
		t.Fatalf("state after cooldown = %s, want queuing", got)
	}
	clock.Advance(500 * time.Millisecond)
	if got := runs.Load(); got != 2 {
		t.Errorf("runs = %d, want 2", got)
	}
}

func TestEvaluatorTriggerNow(t *testing.T) {
	clock := newVirtualClock()
	var runs atomic.Int32
	e := NewEvaluator(clock, 500*time.Millisecond, time.Second, func() { runs.Add(1) })

	e.TriggerNow()
	if got := runs.Load(); got != 1 {
		t.Errorf("runs = %d, want 1", got)
	}

	// Triggering while cooling down arms the next cycle.
	e.TriggerNow()
	if got := runs.Load(); got != 1 {
		t.Errorf("runs = %d, want still 1", got)
	}
	clock.Advance(time.Second + 500*time.Millisecond)
	if got := runs.Load(); got != 2 {
		t.Errorf("runs = %d, want 2", got)
	}
}

func TestEvaluatorStopCancelsWindow(t *testing.T) {
	clock := newVirtualClock()
	var runs atomic.Int32
	e := NewEvaluator(clock, 500*time.Millisecond, time.Second, func() { runs.Add(1) })

	e.Notify()
	e.Stop()
	clock.Advance(time.Minute)
	if got := runs.Load(); got != 0 {
		t.Errorf("runs = %d, want 0 after Stop", got)
	}
	if got := e.State(); got != EvalIdle {
		t.Errorf("state = %s, want idle", got)
	}
}
