package sim

import (
	"strconv"

	"github.com/roach88/simkit/internal/attr"
)

// Time is a logical simulation timestamp. It is unrelated to wall-clock
// time; the engine only ever compares and advances it.
type Time float64

// String renders the timestamp compactly for logs and traces.
func (t Time) String() string {
	return strconv.FormatFloat(float64(t), 'g', -1, 64)
}

// Event is an immutable, time-stamped unit of work. Once scheduled it is
// never mutated; once popped for dispatch it never re-enters the queue.
// Recurrence is modeled by handlers scheduling a fresh event.
type Event struct {
	// Time is the logical timestamp the event is due at.
	Time Time

	// Kind is the selector string used for handler routing
	// (e.g. "temperature", "moisture").
	Kind string

	// Payload is an opaque, handler-defined scalar value.
	Payload attr.Value

	// Seq is the engine-assigned monotonically increasing counter.
	// It doubles as the deterministic tie-break for equal timestamps
	// and as the handle for cancellation and rescheduling.
	Seq int64
}
