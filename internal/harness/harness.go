package harness

import (
	"context"
	"fmt"
	"math"

	"github.com/roach88/simkit/internal/attr"
	"github.com/roach88/simkit/internal/domain"
	"github.com/roach88/simkit/internal/sim"
)

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh engine for isolation, with a fixed
// run token so log and trace output is reproducible.
//
// Execution flow:
//  1. Load and validate the domain
//  2. Create the engine and instantiate declared instances
//  3. Register trace recorders and declarative property handlers
//  4. Schedule the initial events
//  5. Drive the run loop under the configured bounds
//  6. Snapshot final state and evaluate assertions
func Run(scenario *Scenario) (*Result, error) {
	dom, err := domain.Load(scenario.Domain)
	if err != nil {
		return nil, fmt.Errorf("failed to load domain: %w", err)
	}

	token := scenario.RunToken
	if token == "" {
		token = "scenario-run"
	}
	opts := []sim.Option{
		sim.WithTokenGenerator(sim.NewFixedGenerator(token)),
	}
	if scenario.Run.OnError == "continue" {
		opts = append(opts, sim.WithErrorPolicy(sim.ContinueOnError))
	}
	eng := sim.New(dom, opts...)

	for i, in := range scenario.Instances {
		overrides, err := convertOverrides(in.Overrides)
		if err != nil {
			return nil, fmt.Errorf("instances[%d]: %w", i, err)
		}
		if _, err := eng.Instantiate(in.Scope, in.Template, in.Name, overrides); err != nil {
			return nil, fmt.Errorf("instances[%d]: %w", i, err)
		}
	}

	result := NewResult()

	// Recorders are registered before the op handlers, so every
	// dispatched event of a known kind lands in the trace even when a
	// later handler fails.
	for _, kind := range scenarioKinds(scenario) {
		eng.RegisterHandler(kind, recordHandler(result))
	}
	for i, hs := range scenario.Handlers {
		h, err := buildHandler(hs)
		if err != nil {
			return nil, fmt.Errorf("handlers[%d]: %w", i, err)
		}
		eng.RegisterHandler(hs.Kind, h)
	}

	for i, ev := range scenario.Events {
		payload, err := convertPayload(ev.Payload)
		if err != nil {
			return nil, fmt.Errorf("events[%d]: %w", i, err)
		}
		if _, err := eng.Schedule(sim.Time(ev.At), ev.Kind, payload); err != nil {
			return nil, fmt.Errorf("events[%d]: %w", i, err)
		}
	}

	var runOpts []sim.RunOption
	if scenario.Run.Until != nil {
		runOpts = append(runOpts, sim.Until(sim.Time(*scenario.Run.Until)))
	}
	if scenario.Run.MaxSteps != nil {
		runOpts = append(runOpts, sim.MaxSteps(*scenario.Run.MaxSteps))
	}

	steps, runErr := eng.Run(context.Background(), runOpts...)
	result.Steps = steps
	result.Now = float64(eng.Now())
	if runErr != nil {
		result.AddError(fmt.Sprintf("run failed: %v", runErr))
	}

	for _, in := range eng.Instances().List() {
		key := in.Scope + "/" + in.Name
		result.Final[key] = in.Properties()
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

// scenarioKinds returns the distinct event kinds a scenario can produce,
// in first-mention order: the initial schedule plus every handler
// binding (recurrence re-emits the bound kind).
func scenarioKinds(s *Scenario) []string {
	seen := make(map[string]struct{})
	var kinds []string
	add := func(kind string) {
		if _, ok := seen[kind]; ok {
			return
		}
		seen[kind] = struct{}{}
		kinds = append(kinds, kind)
	}
	for _, ev := range s.Events {
		add(ev.Kind)
	}
	for _, h := range s.Handlers {
		add(h.Kind)
	}
	return kinds
}

// recordHandler appends every dispatched event to the result trace.
func recordHandler(result *Result) sim.Handler {
	return sim.HandlerFunc(func(ctx *sim.Context, ev sim.Event) error {
		result.addTrace(ev)
		return nil
	})
}

// buildHandler turns a declarative handler spec into an engine handler.
//
// The recurrence counter lives in the closure: each dispatch past the
// budget stops rescheduling, so a recurring handler with repeat N
// produces N+1 dispatches of its kind.
func buildHandler(hs HandlerSpec) (sim.Handler, error) {
	reschedules := 0
	return sim.HandlerFunc(func(ctx *sim.Context, ev sim.Event) error {
		in, err := ctx.Instances().Get(hs.Scope, hs.Instance)
		if err != nil {
			return err
		}
		next, err := applyOp(hs.Op, in, hs.Property, ev.Payload)
		if err != nil {
			return err
		}
		if err := in.SetProperty(hs.Property, next); err != nil {
			return err
		}

		if hs.Every != nil && reschedules < hs.Repeat {
			reschedules++
			if _, err := ctx.Schedule(ev.Time+sim.Time(*hs.Every), ev.Kind, ev.Payload); err != nil {
				return err
			}
		}
		return nil
	}), nil
}

// applyOp computes the new property value for one operation.
// Numeric ops keep Int arithmetic when both operands are Int.
func applyOp(op string, in *sim.Instance, property string, payload attr.Value) (attr.Value, error) {
	if payload == nil {
		return nil, fmt.Errorf("op %q requires an event payload", op)
	}
	if op == OpSet {
		return payload, nil
	}

	cur, err := in.Property(property)
	if err != nil {
		return nil, err
	}
	cn, ok := attr.Number(cur)
	if !ok {
		return nil, fmt.Errorf("op %q requires a numeric property, %s is %q", op, property, cur)
	}
	pn, ok := attr.Number(payload)
	if !ok {
		return nil, fmt.Errorf("op %q requires a numeric payload, got %q", op, payload)
	}

	var res float64
	switch op {
	case OpAdd:
		res = cn + pn
	case OpScale:
		res = cn * pn
	default:
		return nil, fmt.Errorf("unknown op %q", op)
	}

	_, curInt := cur.(attr.Int)
	_, payInt := payload.(attr.Int)
	if curInt && payInt && intRepresentable(res) {
		return attr.Int(int64(res)), nil
	}
	return attr.Float(res), nil
}

// intRepresentable reports whether f converts to int64 without
// overflowing. float64(MaxInt64) rounds up to 2^63, so the upper bound
// must be exclusive; converting an out-of-range float is
// implementation-defined.
func intRepresentable(f float64) bool {
	return f >= math.MinInt64 && f < math.MaxInt64
}

// convertOverrides converts YAML-decoded override values to attr.Values.
func convertOverrides(raw map[string]interface{}) (map[string]attr.Value, error) {
	if raw == nil {
		return nil, nil
	}
	out := make(map[string]attr.Value, len(raw))
	for key, val := range raw {
		v, err := attr.FromAny(val)
		if err != nil {
			return nil, fmt.Errorf("override %q: %w", key, err)
		}
		out[key] = v
	}
	return out, nil
}

// convertPayload converts a YAML-decoded payload. A missing payload is
// legal; events carry nil then.
func convertPayload(raw interface{}) (attr.Value, error) {
	if raw == nil {
		return nil, nil
	}
	v, err := attr.FromAny(raw)
	if err != nil {
		return nil, fmt.Errorf("payload: %w", err)
	}
	return v, nil
}
