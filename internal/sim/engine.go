package sim

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/roach88/simkit/internal/attr"
	"github.com/roach88/simkit/internal/domain"
)

// State is the engine lifecycle state.
type State int32

const (
	// StateIdle means no run loop is active.
	StateIdle State = iota
	// StateRunning means the engine is inside Run or Step.
	StateRunning
	// StateStopped is terminal: a handler failed under the halt-on-error
	// policy. No further events will be dispatched.
	StateStopped
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// ErrorPolicy controls how handler failures propagate during dispatch.
type ErrorPolicy int

const (
	// HaltOnError (default) aborts the current run, transitions the
	// engine to Stopped, and surfaces the error with the offending
	// event attached.
	HaltOnError ErrorPolicy = iota

	// ContinueOnError logs the failure and proceeds to the next handler
	// and then the next event, so one misbehaving handler cannot wedge
	// the simulation.
	ContinueOnError
)

// Engine is the simulation orchestrator. It owns the event queue, the
// handler registry, and the system instance registry, and drives state
// forward by dispatching scheduled events in (timestamp, sequence) order.
//
// Scheduling model: single-threaded, cooperative, synchronous. Handlers
// run to completion before the next event is considered; ordering
// guarantees would otherwise be unenforceable. Schedule is safe to call
// from other goroutines and from inside handlers (re-entrancy is how
// recurrence is modeled): the queue is mutex-guarded and the virtual
// clock and lifecycle state are read and written atomically. Run and
// Step must still be driven from one goroutine.
//
// There is no process-wide engine; callers construct one explicitly and
// own its lifecycle (Idle -> Running -> Idle/Stopped). Concrete
// simulations compose an Engine and register handlers against it rather
// than extending it.
type Engine struct {
	domain   *domain.Domain
	clock    *Clock
	queue    *eventQueue
	registry *Registry
	handlers *handlerRegistry
	tokenGen TokenGenerator
	policy   ErrorPolicy

	now     atomicTime
	state   atomic.Int32 // holds a State
	stop    atomic.Bool  // stop flag, checked between steps only
	haltErr error        // written before the Stopped transition
}

// Option configures an Engine at construction.
type Option func(*Engine)

// WithErrorPolicy sets how handler failures propagate.
// Default: HaltOnError.
func WithErrorPolicy(p ErrorPolicy) Option {
	return func(e *Engine) {
		e.policy = p
	}
}

// WithTokenGenerator overrides the run-token generator.
// Tests use a FixedGenerator for deterministic log and trace output.
func WithTokenGenerator(g TokenGenerator) Option {
	return func(e *Engine) {
		e.tokenGen = g
	}
}

// New creates an Engine over a validated, read-only Domain.
func New(d *domain.Domain, opts ...Option) *Engine {
	e := &Engine{
		domain:   d,
		clock:    NewClock(),
		queue:    newEventQueue(),
		registry: NewRegistry(d),
		handlers: newHandlerRegistry(),
		tokenGen: UUIDv7Generator{},
		policy:   HaltOnError,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Domain returns the domain the engine operates over.
func (e *Engine) Domain() *domain.Domain {
	return e.domain
}

// Instances returns the engine's system instance registry.
func (e *Engine) Instances() *Registry {
	return e.registry
}

// Instantiate creates a system instance from a named template.
// See Registry.Instantiate for the validation contract.
func (e *Engine) Instantiate(scope, template, name string, overrides map[string]attr.Value) (*Instance, error) {
	return e.registry.Instantiate(scope, template, name, overrides)
}

// RegisterHandler binds a handler to an event kind. Handlers fan out:
// all handlers bound to a kind run, in registration order, for each
// matching event.
func (e *Engine) RegisterHandler(kind string, h Handler) {
	e.handlers.register(kind, h)
}

// Now returns the engine's current virtual time.
func (e *Engine) Now() Time {
	return e.now.Load()
}

// State returns the engine lifecycle state.
func (e *Engine) State() State {
	return State(e.state.Load())
}

// QueueLen returns the number of live pending events.
func (e *Engine) QueueLen() int {
	return e.queue.Len()
}

// HaltError returns the handler error that stopped the engine, if any.
func (e *Engine) HaltError() error {
	return e.haltErr
}

// Schedule validates and enqueues an event. May be called both from
// outside the engine (initial seeding) and from inside a handler
// (recurrence, cascading effects).
//
// Returns the assigned sequence number, usable as a handle for Cancel
// and Reschedule. Fails with an INVALID_EVENT error for a non-finite or
// negative timestamp, or one behind the virtual clock; any of these
// would break the non-decreasing consumption order.
func (e *Engine) Schedule(t Time, kind string, payload attr.Value) (int64, error) {
	if e.State() == StateStopped {
		return 0, &Error{Code: ErrCodeEngineStopped, Message: "engine halted after handler failure", Kind: kind}
	}
	if now := e.now.Load(); t < now {
		return 0, &Error{
			Code:    ErrCodeInvalidEvent,
			Message: "timestamp " + t.String() + " is behind virtual time " + now.String(),
			Kind:    kind,
		}
	}
	ev := Event{
		Time:    t,
		Kind:    kind,
		Payload: payload,
		Seq:     e.clock.Next(),
	}
	if err := e.queue.Push(ev); err != nil {
		return 0, err
	}
	return ev.Seq, nil
}

// Cancel marks a pending event as cancelled. Cancelled events are
// skipped when they surface; in-flight dispatch is never interrupted.
// Returns false if seq does not name a pending event.
func (e *Engine) Cancel(seq int64) bool {
	return e.queue.Cancel(seq)
}

// Reschedule moves a pending event by delta. The original event is
// removed and a fresh one (new sequence number) is scheduled at the
// adjusted time, preserving the immutability of scheduled events.
func (e *Engine) Reschedule(seq int64, delta Time) (Event, error) {
	old, ok := e.queue.take(seq)
	if !ok {
		return Event{}, &Error{
			Code:    ErrCodeInvalidEvent,
			Message: "no pending event with that sequence number",
		}
	}
	newSeq, err := e.Schedule(old.Time+delta, old.Kind, old.Payload)
	if err != nil {
		// Put the original back so a rejected reschedule is a no-op.
		_ = e.queue.Push(old)
		return Event{}, err
	}
	moved := Event{Time: old.Time + delta, Kind: old.Kind, Payload: old.Payload, Seq: newSeq}
	return moved, nil
}

// PendingEvents returns a chronological, non-destructive snapshot of
// pending events, optionally filtered by kind (empty matches all).
func (e *Engine) PendingEvents(kind string) []Event {
	return e.queue.Pending(kind)
}

// Compact sweeps cancelled events out of the queue.
func (e *Engine) Compact() int {
	return e.queue.Compact()
}

// PeekNextTime returns the timestamp of the next pending event.
func (e *Engine) PeekNextTime() (Time, error) {
	return e.queue.PeekNextTime()
}

// Stop requests a graceful stop. The flag is checked between Step calls
// in Run, never inside a handler's execution - handlers always run to
// completion once started.
func (e *Engine) Stop() {
	e.stop.Store(true)
}

// Step pops exactly one due event, advances virtual time to its
// timestamp, and dispatches it to all resolved handlers in registration
// order. Returns the dispatched event.
//
// Fails with an EMPTY_QUEUE error if nothing is pending. Under the
// halt-on-error policy a handler failure transitions the engine to
// Stopped and returns a HandlerError with the event attached. Step
// itself never enforces bounds; that is Run's job.
func (e *Engine) Step() (Event, error) {
	if e.State() == StateStopped {
		return Event{}, &Error{Code: ErrCodeEngineStopped, Message: "engine halted after handler failure"}
	}

	ev, err := e.queue.PopNext()
	if err != nil {
		return Event{}, err
	}

	prev := e.state.Load()
	e.state.Store(int32(StateRunning))
	e.now.Store(ev.Time)

	if err := e.dispatch(ev); err != nil {
		// The halt error is stored before the Stopped transition, so
		// anyone who observes Stopped also sees the error.
		e.haltErr = err
		e.state.Store(int32(StateStopped))
		return ev, err
	}

	// Restore the caller's state: Idle for a standalone Step, Running
	// when called from inside Run (Run restores Idle itself).
	e.state.Store(prev)
	return ev, nil
}

// dispatch routes one event through the handler fan-out list.
// An empty resolution is not an error; the event is dropped.
func (e *Engine) dispatch(ev Event) error {
	handlers := e.handlers.resolve(ev.Kind)
	if len(handlers) == 0 {
		slog.Debug("no handlers for event kind, dropping",
			"kind", ev.Kind,
			"t", ev.Time,
			"seq", ev.Seq,
		)
		return nil
	}

	ctx := &Context{engine: e, event: ev}
	for i, h := range handlers {
		if err := h.Handle(ctx, ev); err != nil {
			herr := &HandlerError{Event: ev, Err: err}
			if e.policy == HaltOnError {
				return herr
			}
			// Log with full event context and keep going; one
			// misbehaving handler must not wedge the simulation.
			slog.Error("handler failed, continuing",
				"error", err,
				"kind", ev.Kind,
				"t", ev.Time,
				"seq", ev.Seq,
				"handler_index", i,
			)
		}
	}
	return nil
}

// runConfig holds the bounds for one Run invocation.
type runConfig struct {
	until    *Time
	maxSteps *int
}

// RunOption bounds a Run invocation.
type RunOption func(*runConfig)

// Until stops the run before dispatching any event with a timestamp
// greater than t. If the queue drains early, virtual time still advances
// to t.
func Until(t Time) RunOption {
	return func(cfg *runConfig) {
		cfg.until = &t
	}
}

// MaxSteps bounds the number of events processed. Defense against
// runaway recurrence loops.
func MaxSteps(n int) RunOption {
	return func(cfg *runConfig) {
		cfg.maxSteps = &n
	}
}

// Run repeatedly calls Step while the queue is non-empty and the
// configured bounds hold. Returns the number of events dispatched.
//
// Run is the only place bounds are enforced. The stop flag and the
// context are consulted between steps only.
func (e *Engine) Run(ctx context.Context, opts ...RunOption) (int, error) {
	if e.State() == StateStopped {
		return 0, &Error{Code: ErrCodeEngineStopped, Message: "engine halted after handler failure"}
	}

	var cfg runConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	token := e.tokenGen.Generate()
	log := slog.With("run_token", token)
	log.Info("run starting",
		"now", e.Now(),
		"queue_len", e.queue.Len(),
	)

	e.stop.Store(false)
	e.state.Store(int32(StateRunning))

	steps := 0
	for {
		if err := ctx.Err(); err != nil {
			log.Info("run cancelled", "steps", steps, "now", e.Now())
			e.state.Store(int32(StateIdle))
			return steps, err
		}
		if e.stop.Load() {
			log.Info("run stopped by request", "steps", steps, "now", e.Now())
			break
		}
		if cfg.maxSteps != nil && steps >= *cfg.maxSteps {
			log.Info("run reached max steps", "steps", steps, "now", e.Now())
			break
		}

		next, err := e.queue.PeekNextTime()
		if err != nil {
			// Queue drained.
			break
		}
		if cfg.until != nil && next > *cfg.until {
			break
		}

		ev, err := e.Step()
		if err != nil {
			// Only handler failures reach here; Step already moved the
			// engine to Stopped under the halt policy.
			log.Error("run halted",
				"error", err,
				"steps", steps,
				"kind", ev.Kind,
				"t", ev.Time,
				"seq", ev.Seq,
			)
			return steps, err
		}
		steps++
		log.Debug("event dispatched",
			"kind", ev.Kind,
			"t", ev.Time,
			"seq", ev.Seq,
		)
	}

	if cfg.until != nil && e.now.Load() < *cfg.until {
		e.now.Store(*cfg.until)
	}
	e.state.Store(int32(StateIdle))
	log.Info("run complete", "steps", steps, "now", e.Now())
	return steps, nil
}
