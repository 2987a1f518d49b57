// Package coordinator runs the orchestration brain: the debounced evaluation
// loop, session workflow lifecycle, and the hand-off points to the agent
// pool and task graph.
package coordinator

import "time"

// Clock abstracts time for the evaluation state machine so tests can drive
// debounce and cooldown windows deterministically.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) Timer
}

// Timer is an armed callback that can be cancelled.
type Timer interface {
	Stop() bool
}

type realClock struct{}

// NewRealClock returns a Clock backed by the system timer.
func NewRealClock() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}
