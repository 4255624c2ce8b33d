// Package clock provides an injectable wall-clock source.
//
// Everything in the agent that derives behavior from "now" (the effective
// status resolver, past-date validation, record timestamps) reads time
// through a Clock so tests can pin the wall clock to a known instant.
package clock

import (
	"sync"
	"time"
)

// Clock is a source of wall-clock time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

// System returns a Clock backed by the system wall clock.
func System() Clock {
	return systemClock{}
}

// Manual is a Clock fixed to an explicit instant, advanced by hand.
// Safe for concurrent use.
type Manual struct {
	mu sync.Mutex
	t  time.Time
}

// NewManual creates a Manual clock pinned to t.
func NewManual(t time.Time) *Manual {
	return &Manual{t: t}
}

// Now returns the pinned instant.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.t
}

// Set pins the clock to t.
func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.t = t
}

// Advance moves the clock forward by d.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.t = m.t.Add(d)
}
