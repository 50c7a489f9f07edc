// Package testutil holds small test doubles shared across this module's
// package tests, starting with a deterministic stand-in for clock.Source.
package testutil

import (
	"sync"

	"github.com/parstore/parstore/internal/clock"
)

// DeterministicClock is a clock.Source whose ticks are a plain
// incrementing counter instead of wall time, so tests that depend on
// exact tick values (parent-timestamp chains, ordering assertions) are
// reproducible and can be Reset between table-driven cases.
//
// Grounded on the teacher's testutil.DeterministicClock (mutex-guarded
// int64 counter); generalized here to satisfy clock.Source so it can
// replace clock.Clock in a Store (via store.WithClock).
type DeterministicClock struct {
	mu  sync.Mutex
	seq int64
}

var _ clock.Source = (*DeterministicClock)(nil)

// NewDeterministicClock creates a clock starting at 0; the first call to
// Now() returns 1.
func NewDeterministicClock() *DeterministicClock {
	return &DeterministicClock{}
}

// Now increments and returns the next tick.
func (c *DeterministicClock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return c.seq
}

// Current returns the most recently issued tick without advancing it.
func (c *DeterministicClock) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// DistantPast returns clock.DistantPast, so a DeterministicClock is a
// drop-in clock.Source even though its Now() values are small integers.
func (c *DeterministicClock) DistantPast() int64 { return clock.DistantPast }

// DistantFuture returns clock.DistantFuture.
func (c *DeterministicClock) DistantFuture() int64 { return clock.DistantFuture }

// Reset rewinds the clock to 0, for reusing one clock across table-driven
// subtests that each expect ticks starting at 1.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq = 0
}
