package engine

import "sync/atomic"

// Clock numbers committed transactions.
//
// Sequence numbers start at 1 and increase by one per committed
// transaction, including the transaction that applies initial facts.
//
// Thread-safety: All methods are safe for concurrent use.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock whose first Next returns 1.
func NewClock() *Clock {
	return &Clock{}
}

// Next advances the clock and returns the new value.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last value handed out, 0 before the first Next.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
