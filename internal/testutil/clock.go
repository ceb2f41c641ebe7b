// Package testutil holds small shared test doubles.
package testutil

import (
	"sync"
	"time"
)

// FrozenClock is a settable wall clock for tests. Components that stamp
// timestamps (manifest headers, remote folder names, acknowledgment
// receipts) accept a Now func; injecting a FrozenClock makes their output
// reproducible.
//
// All methods are safe for concurrent use.
type FrozenClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFrozenClock creates a clock frozen at t.
func NewFrozenClock(t time.Time) *FrozenClock {
	return &FrozenClock{now: t}
}

// Now returns the frozen instant. Suitable for assigning to a
// component's Now field directly.
func (c *FrozenClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d and returns the new instant.
func (c *FrozenClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}
