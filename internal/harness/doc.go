// Package harness provides declarative, reproducible simulation runs.
//
// The harness loads a domain, instantiates systems, binds declarative
// property handlers, schedules an initial set of events, and drives the
// engine under configured bounds. Results carry the full dispatch trace
// and the final instance state for assertions and golden comparison.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario demonstrates"
//	domain: greenhouse.yaml
//	instances:
//	  - scope: greenhouse
//	    template: Greenhouse
//	    name: main
//	    overrides: { temperature: 18 }
//	handlers:
//	  - kind: temperature
//	    op: add
//	    scope: greenhouse
//	    instance: main
//	    property: temperature
//	events:
//	  - at: 0
//	    kind: temperature
//	    payload: 5
//	run:
//	  until: 100
//	assertions:
//	  - type: property_equals
//	    scope: greenhouse
//	    instance: main
//	    property: temperature
//	    value: 23
//	  - type: trace_count
//	    kind: temperature
//	    count: 1
//
// # Assertion Types
//
// The following assertion types are supported:
//
//   - property_equals: Verifies a final instance property value
//   - trace_order: Verifies kinds appear in the trace in order
//   - trace_count: Verifies a kind is dispatched exactly N times
//   - now_equals: Verifies the final virtual time
//
// # Deterministic Testing
//
// Every scenario runs against a fresh engine with a fixed run token, so
// repeated executions of the same scenario produce byte-identical trace
// snapshots. Golden files under testdata/golden/ are the source of
// truth for expected trajectories.
//
// # Usage
//
// Load and run a scenario:
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/greenhouse_day.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, msg := range result.Errors {
//	        log.Println(msg)
//	    }
//	}
package harness
