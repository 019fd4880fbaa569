package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/simkit/internal/attr"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for i, event := range e.Trace {
		if event.Payload != nil {
			fmt.Fprintf(&buf, "  [%d] t=%g %s payload=%s\n", i+1, event.At, event.Kind, event.Payload)
		} else {
			fmt.Fprintf(&buf, "  [%d] t=%g %s\n", i+1, event.At, event.Kind)
		}
	}
	return buf.String()
}

// EvaluateAssertions checks every assertion against the result and
// returns the failure messages. All assertions are evaluated; a failure
// does not short-circuit the rest.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var failures []string
	for i, assertion := range assertions {
		var err error
		switch assertion.Type {
		case AssertPropertyEquals:
			err = assertPropertyEquals(result, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertNowEquals:
			err = assertNowEquals(result, assertion)
		default:
			err = fmt.Errorf("unknown assertion type %q", assertion.Type)
		}
		if err != nil {
			failures = append(failures, fmt.Sprintf("assertion %d: %v", i, err))
		}
	}
	return failures
}

// assertPropertyEquals checks that a final instance property holds the
// expected value. Int and Float compare numerically.
func assertPropertyEquals(result *Result, assertion Assertion) error {
	key := assertion.Scope + "/" + assertion.Instance
	props, ok := result.Final[key]
	if !ok {
		return &AssertionError{
			Type:     AssertPropertyEquals,
			Expected: fmt.Sprintf("instance %s present in final state", key),
			Actual:   "instance not found",
			Trace:    result.Trace,
		}
	}
	actual, ok := props[assertion.Property]
	if !ok {
		return &AssertionError{
			Type:     AssertPropertyEquals,
			Expected: fmt.Sprintf("property %q on %s", assertion.Property, key),
			Actual:   "property not present",
			Trace:    result.Trace,
		}
	}
	expected, err := attr.FromAny(assertion.Value)
	if err != nil {
		return fmt.Errorf("invalid expected value: %w", err)
	}
	if !attr.Equal(expected, actual) {
		return &AssertionError{
			Type:     AssertPropertyEquals,
			Expected: fmt.Sprintf("%s.%s == %s", key, assertion.Property, expected),
			Actual:   actual.String(),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertTraceOrder checks that kinds appear in the specified order.
// Kinds don't need to be consecutive (intervening events are allowed).
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	positions := make(map[string]int)
	for i, event := range trace {
		for _, kind := range assertion.Kinds {
			if event.Kind == kind && positions[kind] == 0 {
				positions[kind] = i + 1 // 1-indexed for readability
			}
		}
	}

	for _, kind := range assertion.Kinds {
		if positions[kind] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all kinds present: %v", assertion.Kinds),
				Actual:   fmt.Sprintf("missing kind: %s", kind),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(assertion.Kinds); i++ {
		prev := assertion.Kinds[i-1]
		curr := assertion.Kinds[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("kinds in order: %v", assertion.Kinds),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

// assertTraceCount checks that a kind appears exactly the specified
// number of times.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Kind == assertion.Kind {
			count++
		}
	}
	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("kind %s dispatched %d times", assertion.Kind, assertion.Count),
			Actual:   fmt.Sprintf("dispatched %d times", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertNowEquals checks the final virtual time.
func assertNowEquals(result *Result, assertion Assertion) error {
	expected, err := attr.FromAny(assertion.Value)
	if err != nil {
		return fmt.Errorf("invalid expected value: %w", err)
	}
	en, ok := attr.Number(expected)
	if !ok {
		return fmt.Errorf("now_equals value must be numeric, got %q", expected)
	}
	if result.Now != en {
		return &AssertionError{
			Type:     AssertNowEquals,
			Expected: fmt.Sprintf("final virtual time %g", en),
			Actual:   fmt.Sprintf("%g", result.Now),
			Trace:    result.Trace,
		}
	}
	return nil
}
