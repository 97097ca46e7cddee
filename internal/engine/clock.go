package engine

import "sync/atomic"

// Clock stamps fired events with a strictly increasing sequence number.
//
// Ordering uses this logical counter, never wall-clock time, so a journal
// read back in seq order reproduces the order events were dispatched in.
// Clock is safe for concurrent use, though only the engine's single writer
// normally calls Next.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock that continues after start, as when resuming a
// journal that already holds events up to start.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last number handed out.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
