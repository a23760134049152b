package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/ddflow/internal/program"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid   bool                      `json:"valid"`
	Program *ProgramSummary           `json:"program,omitempty"`
	Errors  []program.ValidationError `json:"errors,omitempty"`
}

// ProgramSummary describes a compiled program.
type ProgramSummary struct {
	Name         string               `json:"name"`
	Relations    []RelationSummary    `json:"relations"`
	Arrangements []ArrangementSummary `json:"arrangements"`
	Strata       []StratumSummary     `json:"strata"`
}

// RelationSummary describes one relation.
type RelationSummary struct {
	Name     string `json:"name"`
	Role     string `json:"role"`
	Schema   string `json:"schema"`
	Distinct bool   `json:"distinct,omitempty"`
	Output   bool   `json:"output,omitempty"`
}

// ArrangementSummary describes one arrangement.
type ArrangementSummary struct {
	Name      string `json:"name"`
	Relation  string `json:"relation"`
	Kind      string `json:"kind"`
	Queryable bool   `json:"queryable,omitempty"`
}

// StratumSummary lists the relations of one stratum in evaluation order.
type StratumSummary struct {
	Relations []string `json:"relations"`
	Recursive bool     `json:"recursive,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <program>",
		Short: "Validate a program without running it",
		Long: `Validate a CUE or YAML program description.

Resolves names, checks the graph and computes the evaluation strata.
Prints the relations, arrangements and strata of a valid program.`,
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

	g, err := LoadProgram(path)
	if err != nil {
		return loadFailure(formatter, err)
	}
	formatter.VerboseLog("Loaded %s: %d relation(s), %d rule(s)", path, len(g.Relations), len(g.Rules))

	plan, errs := program.Stratify(g)
	if len(errs) > 0 {
		return outputValidationErrors(formatter, errs)
	}
	summary := Summarize(g, plan)

	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Program: summary})
	}
	fmt.Fprintf(formatter.Writer, "✓ Program %s valid\n", summary.Name)
	writeSummary(formatter.Writer, summary)
	return nil
}

// Summarize describes g and its strata.
func Summarize(g *program.Graph, plan *program.Plan) *ProgramSummary {
	s := &ProgramSummary{Name: g.Name}
	for _, r := range g.Relations {
		s.Relations = append(s.Relations, RelationSummary{
			Name:     r.Name,
			Role:     r.Role.String(),
			Schema:   r.Schema.String(),
			Distinct: r.Distinct,
			Output:   r.Output,
		})
	}
	for _, a := range g.Arrangements {
		s.Arrangements = append(s.Arrangements, ArrangementSummary{
			Name:      a.Name,
			Relation:  g.Relations[a.Relation].Name,
			Kind:      a.Kind.String(),
			Queryable: a.Queryable,
		})
	}
	for _, st := range plan.Strata {
		names := make([]string, len(st.Relations))
		for i, rel := range st.Relations {
			names[i] = g.Relations[rel].Name
		}
		s.Strata = append(s.Strata, StratumSummary{Relations: names, Recursive: st.Recursive})
	}
	return s
}

func writeSummary(w io.Writer, s *ProgramSummary) {
	fmt.Fprintln(w, "relations:")
	for _, r := range s.Relations {
		var flags []string
		if r.Distinct {
			flags = append(flags, "distinct")
		}
		if r.Output {
			flags = append(flags, "output")
		}
		line := fmt.Sprintf("  %s %s %s", r.Role, r.Name, r.Schema)
		if len(flags) > 0 {
			line += " [" + strings.Join(flags, ", ") + "]"
		}
		fmt.Fprintln(w, line)
	}
	if len(s.Arrangements) > 0 {
		fmt.Fprintln(w, "arrangements:")
		for _, a := range s.Arrangements {
			line := fmt.Sprintf("  %s %s of %s", a.Name, a.Kind, a.Relation)
			if a.Queryable {
				line += " [queryable]"
			}
			fmt.Fprintln(w, line)
		}
	}
	fmt.Fprintln(w, "strata:")
	for i, st := range s.Strata {
		line := fmt.Sprintf("  %d: %s", i, strings.Join(st.Relations, ", "))
		if st.Recursive {
			line += " (recursive)"
		}
		fmt.Fprintln(w, line)
	}
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, errs []program.ValidationError) error {
	if formatter.Format == "json" {
		result := ValidationResult{
			Valid:  false,
			Errors: errs,
		}

		response := CLIResponse{
			Status: "error",
			Data:   result,
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}

		// Validation failures = exit code 1 (test/validation failure)
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n", err.Code, err.Field, err.Message)
	}

	// Validation failures = exit code 1 (test/validation failure)
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
