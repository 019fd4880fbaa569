package harness

import (
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/simkit/internal/attr"
)

// TraceSnapshot captures a scenario execution for golden comparison.
// JSON serialization is deterministic: map keys are sorted and all
// values marshal through attr.Value, so byte-identical output means
// identical trajectories.
type TraceSnapshot struct {
	ScenarioName string                           `json:"scenario_name"`
	RunToken     string                           `json:"run_token,omitempty"`
	Steps        int                              `json:"steps"`
	Now          float64                          `json:"now"`
	Trace        []TraceEvent                     `json:"trace"`
	Final        map[string]map[string]attr.Value `json:"final,omitempty"`
}

// RunWithGolden executes a scenario and compares the trace against a
// golden file stored in testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Golden files serve as the source of truth for expected trajectories;
// two runs of the same scenario must produce byte-identical snapshots.
// Returns an error if scenario execution fails; a trace mismatch fails
// the test through goldie.
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}
	return AssertGolden(t, scenario, result)
}

// AssertGolden compares an already-obtained result against the golden
// file for the scenario. Useful when the caller also wants to inspect
// the result directly.
func AssertGolden(t *testing.T, scenario *Scenario, result *Result) error {
	t.Helper()

	snapshot := TraceSnapshot{
		ScenarioName: scenario.Name,
		RunToken:     scenario.RunToken,
		Steps:        result.Steps,
		Now:          result.Now,
		Trace:        result.Trace,
		Final:        result.Final,
	}
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, data)
	return nil
}
