package testutil

import (
	"sync"
	"time"
)

// SteppedClock is a deterministic wall clock for tests.
//
// Each call to Now returns the current instant and then advances it by step,
// so consecutive writes get distinct, predictable timestamps.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type SteppedClock struct {
	mu    sync.Mutex
	start time.Time
	now   time.Time
	step  time.Duration
}

// NewSteppedClock creates a clock starting at start.
func NewSteppedClock(start time.Time, step time.Duration) *SteppedClock {
	return &SteppedClock{start: start, now: start, step: step}
}

// Now returns the current instant and advances the clock.
func (c *SteppedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

// Peek returns the instant the next Now call will return.
func (c *SteppedClock) Peek() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Reset rewinds the clock to its start instant.
func (c *SteppedClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.start
}
