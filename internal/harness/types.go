package harness

import (
	"github.com/roach88/simkit/internal/attr"
	"github.com/roach88/simkit/internal/sim"
)

// TraceEvent records one dispatched event.
type TraceEvent struct {
	At      float64    `json:"at"`
	Kind    string     `json:"kind"`
	Payload attr.Value `json:"payload,omitempty"`
	Seq     int64      `json:"seq"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall success: the run completed and every
	// assertion held.
	Pass bool `json:"pass"`

	// Steps is the number of events dispatched.
	Steps int `json:"steps"`

	// Now is the final virtual time.
	Now float64 `json:"now"`

	// Trace contains every dispatched event in dispatch order.
	Trace []TraceEvent `json:"trace"`

	// Final maps "scope/name" to the instance's final property values.
	Final map[string]map[string]attr.Value `json:"final,omitempty"`

	// Errors contains run and assertion failure messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		Final:  make(map[string]map[string]attr.Value),
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// addTrace appends one dispatched event to the trace.
func (r *Result) addTrace(ev sim.Event) {
	r.Trace = append(r.Trace, TraceEvent{
		At:      float64(ev.Time),
		Kind:    ev.Kind,
		Payload: ev.Payload,
		Seq:     ev.Seq,
	})
}
