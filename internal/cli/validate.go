package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/simkit/internal/domain"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid     bool             `json:"valid"`
	Domain    string           `json:"domain,omitempty"`
	Scopes    []string         `json:"scopes,omitempty"`
	Templates []TemplateReport `json:"templates,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// TemplateReport summarizes one template for CLI output.
type TemplateReport struct {
	Name       string   `json:"name"`
	Attributes []string `json:"attributes"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <domain-path>",
		Short: "Validate a domain description",
		Long: `Validate a domain YAML file or directory without running anything.

Performs schema validation and semantic checks (duplicate scopes and
templates, duplicate or invalid attributes) and prints a summary of the
declared scopes and templates.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}

	dom, err := domain.Load(path)
	if err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			// A malformed domain is a validation failure (exit 1),
			// not a command error.
			_ = formatter.Error("DOMAIN_VALIDATION", verr.Error(), verr.Path)
			return NewExitError(ExitFailure, verr.Error())
		}
		// Missing paths and unreadable files are command errors.
		_ = formatter.Error("E_LOAD", err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load domain", err)
	}

	formatter.VerboseLog("Loaded domain %q: %d scope(s), %d template(s)",
		dom.Name, len(dom.Scopes), len(dom.Templates))

	result := ValidationResult{
		Valid:  true,
		Domain: dom.Name,
		Scopes: dom.Scopes,
	}
	for i := range dom.Templates {
		tpl := &dom.Templates[i]
		report := TemplateReport{Name: tpl.Name}
		for _, a := range tpl.Attributes {
			report.Attributes = append(report.Attributes, a.Name)
		}
		result.Templates = append(result.Templates, report)
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "✓ Domain %q is valid\n", dom.Name)
	fmt.Fprintf(formatter.Writer, "  Scopes: %v\n", dom.Scopes)
	for _, tpl := range result.Templates {
		fmt.Fprintf(formatter.Writer, "  Template %s: %v\n", tpl.Name, tpl.Attributes)
	}
	return nil
}
