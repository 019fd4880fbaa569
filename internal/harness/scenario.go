package harness

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario defines a declarative simulation run. A scenario names a
// domain file, the instances to create, the handlers to bind, the
// initial event schedule, the run bounds, and the assertions to
// evaluate against the resulting trace and final state.
type Scenario struct {
	// Name uniquely identifies this scenario. Also used as the golden
	// file name for trace comparison.
	Name string `yaml:"name"`

	// Description explains what this scenario demonstrates.
	Description string `yaml:"description"`

	// Domain is the path to the domain YAML file or directory.
	// Relative paths are resolved against the scenario file location.
	Domain string `yaml:"domain"`

	// Instances lists the system instances to create before the run.
	Instances []InstanceStep `yaml:"instances,omitempty"`

	// Handlers binds declarative property operations to event kinds.
	Handlers []HandlerSpec `yaml:"handlers,omitempty"`

	// Events is the initial schedule.
	Events []EventStep `yaml:"events"`

	// Run bounds the run loop.
	Run RunSpec `yaml:"run,omitempty"`

	// Assertions validate the final trace and state.
	// Supported types: property_equals, trace_order, trace_count, now_equals
	Assertions []Assertion `yaml:"assertions"`

	// RunToken is an optional fixed run token for deterministic golden
	// output. Defaults to "scenario-run" when empty.
	RunToken string `yaml:"run_token,omitempty"`
}

// InstanceStep creates one system instance from a template.
type InstanceStep struct {
	// Scope is the namespace the instance lives in.
	Scope string `yaml:"scope"`

	// Template names the system template to instantiate.
	Template string `yaml:"template"`

	// Name is the instance name, unique within the scope.
	Name string `yaml:"name"`

	// Overrides replaces template defaults for the listed attributes.
	// Keys must belong to the template's attribute set.
	Overrides map[string]interface{} `yaml:"overrides,omitempty"`
}

// HandlerSpec binds a property operation to an event kind.
//
// Each dispatched event of the given kind applies the operation to one
// instance property, using the event payload as the operand. With Every
// set, the handler reschedules the same event Every time units later,
// up to Repeat additional occurrences.
type HandlerSpec struct {
	// Kind is the event kind this handler reacts to.
	Kind string `yaml:"kind"`

	// Op is the property operation: "add", "set", or "scale".
	Op string `yaml:"op"`

	// Scope and Instance identify the target system instance.
	Scope    string `yaml:"scope"`
	Instance string `yaml:"instance"`

	// Property is the attribute the operation mutates.
	Property string `yaml:"property"`

	// Every, if set, makes the handler recurring: each dispatch
	// reschedules the same kind and payload Every time units later.
	Every *float64 `yaml:"every,omitempty"`

	// Repeat caps the number of reschedules. Required when Every is
	// set; an unbounded recurrence would never drain the queue.
	Repeat int `yaml:"repeat,omitempty"`
}

// EventStep schedules one event before the run starts.
type EventStep struct {
	// At is the event timestamp in virtual time.
	At float64 `yaml:"at"`

	// Kind is the event kind.
	Kind string `yaml:"kind"`

	// Payload is an optional scalar payload.
	Payload interface{} `yaml:"payload,omitempty"`
}

// RunSpec bounds the run loop.
type RunSpec struct {
	// Until stops the run before dispatching events past this time.
	Until *float64 `yaml:"until,omitempty"`

	// MaxSteps caps the number of dispatched events.
	MaxSteps *int `yaml:"max_steps,omitempty"`

	// OnError selects the handler failure policy: "halt" (default) or
	// "continue".
	OnError string `yaml:"on_error,omitempty"`
}

// Assertion validates the trace or final state after the run.
type Assertion struct {
	// Type specifies the assertion type:
	// - "property_equals": an instance property holds the expected value
	// - "trace_order": kinds appear in the trace in the given order
	// - "trace_count": a kind appears exactly N times in the trace
	// - "now_equals": final virtual time equals the expected value
	Type string `yaml:"type"`

	// Scope, Instance, Property identify the target for property_equals.
	Scope    string `yaml:"scope,omitempty"`
	Instance string `yaml:"instance,omitempty"`
	Property string `yaml:"property,omitempty"`

	// Value is the expected scalar (property_equals, now_equals).
	Value interface{} `yaml:"value,omitempty"`

	// Kind is the event kind (trace_count).
	Kind string `yaml:"kind,omitempty"`

	// Count is the expected number of occurrences (trace_count).
	Count int `yaml:"count,omitempty"`

	// Kinds is the expected kind order (trace_order).
	Kinds []string `yaml:"kinds,omitempty"`
}

// Assertion type constants.
const (
	AssertPropertyEquals = "property_equals"
	AssertTraceOrder     = "trace_order"
	AssertTraceCount     = "trace_count"
	AssertNowEquals      = "now_equals"
)

// Handler op constants.
const (
	OpAdd   = "add"
	OpSet   = "set"
	OpScale = "scale"
)

// LoadScenario reads and parses a scenario YAML file. The domain path
// is resolved relative to the scenario file's directory. Returns an
// error if the file is missing, malformed, contains unknown fields
// (typos), or fails structural validation.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	s, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	if s.Domain != "" && !filepath.IsAbs(s.Domain) {
		s.Domain = filepath.Join(filepath.Dir(path), s.Domain)
	}
	if err := validateScenario(s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return s, nil
}

// ParseScenario decodes a scenario from YAML bytes without path
// resolution or validation. LoadScenario is the usual entry point.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // reject typos like "assertion:" vs "assertions:"
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &s, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Domain == "" {
		return fmt.Errorf("domain is required")
	}
	if _, err := os.Stat(s.Domain); err != nil {
		return fmt.Errorf("domain path not found: %s", s.Domain)
	}
	if len(s.Events) == 0 {
		return fmt.Errorf("events list is required and must be non-empty")
	}

	for i, in := range s.Instances {
		if in.Scope == "" || in.Template == "" || in.Name == "" {
			return fmt.Errorf("instances[%d]: scope, template, and name are required", i)
		}
	}

	for i, h := range s.Handlers {
		if h.Kind == "" {
			return fmt.Errorf("handlers[%d]: kind is required", i)
		}
		switch h.Op {
		case OpAdd, OpSet, OpScale:
		default:
			return fmt.Errorf("handlers[%d]: unknown op %q", i, h.Op)
		}
		if h.Scope == "" || h.Instance == "" || h.Property == "" {
			return fmt.Errorf("handlers[%d]: scope, instance, and property are required", i)
		}
		if h.Every != nil {
			if !(*h.Every > 0) || math.IsInf(*h.Every, 0) {
				return fmt.Errorf("handlers[%d]: every must be positive and finite", i)
			}
			if h.Repeat <= 0 {
				return fmt.Errorf("handlers[%d]: repeat is required with every (unbounded recurrence never drains)", i)
			}
		}
	}

	for i, ev := range s.Events {
		if ev.Kind == "" {
			return fmt.Errorf("events[%d]: kind is required", i)
		}
		// YAML admits .nan and .inf literals, which would defeat the
		// engine's ordering guarantees. NaN fails every comparison, so
		// the check is phrased to catch it.
		if !(ev.At >= 0) || math.IsInf(ev.At, 0) {
			return fmt.Errorf("events[%d]: at must be a non-negative finite number", i)
		}
	}

	if s.Run.Until != nil && (!(*s.Run.Until >= 0) || math.IsInf(*s.Run.Until, 0)) {
		return fmt.Errorf("run.until must be a non-negative finite number")
	}
	switch s.Run.OnError {
	case "", "halt", "continue":
	default:
		return fmt.Errorf("run.on_error must be \"halt\" or \"continue\", got %q", s.Run.OnError)
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertPropertyEquals:
		if a.Scope == "" || a.Instance == "" || a.Property == "" {
			return fmt.Errorf("assertions[%d]: scope, instance, and property are required for property_equals", index)
		}
		if a.Value == nil {
			return fmt.Errorf("assertions[%d]: value is required for property_equals", index)
		}
	case AssertTraceOrder:
		if len(a.Kinds) == 0 {
			return fmt.Errorf("assertions[%d]: kinds list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Kind == "" {
			return fmt.Errorf("assertions[%d]: kind is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertNowEquals:
		if a.Value == nil {
			return fmt.Errorf("assertions[%d]: value is required for now_equals", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
