package tracker

import "sync/atomic"

// Clock is a monotonic logical clock stamping each regression write.
//
// Stored updated_seq values come from this clock, so "most recent" lookups
// never depend on wall-clock ordering. NewClockAt resumes after a restart from
// the highest value already in the store.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a new clock starting at a specific sequence number.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
