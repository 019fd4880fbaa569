package sim

import "github.com/roach88/simkit/internal/attr"

// Handler is the contract for event-kind callbacks. Given the dispatch
// context and the event, a handler may read and mutate system instances
// through the context's registry handle and may schedule further events.
//
// Handlers run to completion before the next event is considered; there
// is no suspension point inside a dispatch. A returned error is treated
// according to the engine's error policy.
type Handler interface {
	Handle(ctx *Context, ev Event) error
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx *Context, ev Event) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx *Context, ev Event) error {
	return f(ctx, ev)
}

// handlerRegistry maps an event kind to its ordered handler fan-out list.
//
// Multiple handlers may bind the same kind; all are invoked in
// registration order for a matching event. An empty resolution is not an
// error - the dispatcher simply drops the event after routing.
type handlerRegistry struct {
	handlers map[string][]Handler
}

func newHandlerRegistry() *handlerRegistry {
	return &handlerRegistry{handlers: make(map[string][]Handler)}
}

// register appends h to the list bound to kind.
func (hr *handlerRegistry) register(kind string, h Handler) {
	hr.handlers[kind] = append(hr.handlers[kind], h)
}

// resolve returns the (possibly empty) ordered handler list for kind.
func (hr *handlerRegistry) resolve(kind string) []Handler {
	return hr.handlers[kind]
}

// Context is the transient handle a handler receives for the duration of
// one invocation. It exposes the instance registry and re-entrant
// scheduling; handlers must not retain it past their own return.
type Context struct {
	engine *Engine
	event  Event
}

// Instances returns the engine's system instance registry.
func (c *Context) Instances() *Registry {
	return c.engine.Instances()
}

// Now returns the engine's current virtual time, which during dispatch
// equals the timestamp of the event being handled.
func (c *Context) Now() Time {
	return c.engine.Now()
}

// Schedule enqueues a new event from inside a handler. The event becomes
// visible to subsequent pops within the same run loop; this is how
// recurring behavior is modeled.
func (c *Context) Schedule(t Time, kind string, payload attr.Value) (int64, error) {
	return c.engine.Schedule(t, kind, payload)
}
