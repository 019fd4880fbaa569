package sim

import (
	"math"
	"sync/atomic"
)

// Clock is a monotonic logical counter for event sequence numbers.
//
// Every scheduled event is stamped with a strictly increasing seq from
// this clock. Combined with the timestamp it gives a deterministic total
// order over an otherwise partially-ordered key: equal timestamps resolve
// by scheduling order.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations),
// although the engine's single-threaded dispatch means only scheduling
// paths ever race on it.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// Next returns the next sequence number and increments the clock.
// Each call returns a unique, increasing value.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}

// atomicTime stores a Time through its IEEE-754 bit pattern, so the
// engine's virtual clock can be read by concurrent schedulers while the
// run loop advances it.
type atomicTime struct {
	bits atomic.Uint64
}

func (a *atomicTime) Load() Time {
	return Time(math.Float64frombits(a.bits.Load()))
}

func (a *atomicTime) Store(t Time) {
	a.bits.Store(math.Float64bits(float64(t)))
}
