package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/roach88/simkit/internal/harness"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Trace bool // print the full dispatch trace
}

// RunReport is the run command's output payload.
type RunReport struct {
	Scenario string                       `json:"scenario"`
	Pass     bool                         `json:"pass"`
	Steps    int                          `json:"steps"`
	Now      float64                      `json:"now"`
	Trace    []harness.TraceEvent         `json:"trace,omitempty"`
	Final    map[string]map[string]string `json:"final,omitempty"`
	Errors   []string                     `json:"errors,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario-file>",
		Short: "Run a simulation scenario",
		Long: `Run a scenario file: load its domain, create the declared instances,
schedule the initial events, and drive the engine under the configured
bounds. Prints the final state and evaluates the scenario's assertions.

Exit codes:
  0 - Run completed and all assertions passed
  1 - Run halted or one or more assertions failed
  2 - Command error (missing or malformed files)

Examples:
  simkit run scenarios/greenhouse_day.yaml
  simkit run scenarios/greenhouse_day.yaml --trace
  simkit run scenarios/greenhouse_day.yaml --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarioFile(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Trace, "trace", false, "print the full dispatch trace")

	return cmd
}

func runScenarioFile(opts *RunOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	scenario, err := harness.LoadScenario(path)
	if err != nil {
		_ = formatter.Error("E_SCENARIO", err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}

	formatter.VerboseLog("Running scenario %q (domain %s)", scenario.Name, scenario.Domain)

	result, err := harness.Run(scenario)
	if err != nil {
		_ = formatter.Error("E_RUN", err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to run scenario", err)
	}

	report := RunReport{
		Scenario: scenario.Name,
		Pass:     result.Pass,
		Steps:    result.Steps,
		Now:      result.Now,
		Errors:   result.Errors,
		Final:    renderFinal(result),
	}
	if opts.Trace {
		report.Trace = result.Trace
	}

	if opts.Format == "json" {
		if !result.Pass {
			encodeErr := formatter.Error("E_SCENARIO_FAILED", "scenario failed", report)
			if encodeErr != nil {
				return encodeErr
			}
			return NewExitError(ExitFailure, fmt.Sprintf("scenario %q failed", scenario.Name))
		}
		return formatter.Success(report)
	}

	return outputRunText(formatter, report)
}

// renderFinal flattens final instance state to strings for stable,
// readable output in both formats.
func renderFinal(result *harness.Result) map[string]map[string]string {
	out := make(map[string]map[string]string, len(result.Final))
	for key, props := range result.Final {
		rendered := make(map[string]string, len(props))
		for name, val := range props {
			rendered[name] = val.String()
		}
		out[key] = rendered
	}
	return out
}

func outputRunText(formatter *OutputFormatter, report RunReport) error {
	w := formatter.Writer

	if report.Pass {
		fmt.Fprintf(w, "✓ %s: %d event(s) dispatched, t=%g\n", report.Scenario, report.Steps, report.Now)
	} else {
		fmt.Fprintf(w, "✗ %s: %d event(s) dispatched, t=%g\n", report.Scenario, report.Steps, report.Now)
		for _, msg := range report.Errors {
			fmt.Fprintf(w, "  %s\n", msg)
		}
	}

	if len(report.Trace) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Trace:")
		for i, ev := range report.Trace {
			if ev.Payload != nil {
				fmt.Fprintf(w, "  [%d] t=%g %s payload=%s\n", i+1, ev.At, ev.Kind, ev.Payload)
			} else {
				fmt.Fprintf(w, "  [%d] t=%g %s\n", i+1, ev.At, ev.Kind)
			}
		}
	}

	if len(report.Final) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Final state:")
		for _, key := range sortedKeys(report.Final) {
			fmt.Fprintf(w, "  %s:\n", key)
			props := report.Final[key]
			for _, name := range sortedKeys(props) {
				fmt.Fprintf(w, "    %s = %s\n", name, props[name])
			}
		}
	}

	if !report.Pass {
		return NewExitError(ExitFailure, fmt.Sprintf("scenario %q failed", report.Scenario))
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
