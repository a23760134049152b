package harness

import (
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/ddflow/internal/zset"
)

// FormatTrace renders a trace in the canonical text form used by golden
// files:
//
//	scenario: tally
//	txn 1 (txn-1, seq 1): first votes
//	  Tally{.choice = "red", .votes = 1}: +1
//	txn 2: malformed vote
//	  error: SCHEMA_MISMATCH
func FormatTrace(name string, trace []TxnTrace) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "scenario: %s\n", name)
	writeTrace(&b, trace, "")
	return []byte(b.String())
}

func writeTrace(w io.Writer, trace []TxnTrace, indent string) {
	for _, t := range trace {
		header := fmt.Sprintf("txn %d", t.Index)
		if t.Index == 0 {
			header = "facts"
		}
		if t.Error == "" {
			header += fmt.Sprintf(" (%s, seq %d)", t.ID, t.Seq)
		}
		if t.Description != "" && t.Index != 0 {
			header += ": " + t.Description
		}
		fmt.Fprintf(w, "%s%s\n", indent, header)

		switch {
		case t.Error != "":
			fmt.Fprintf(w, "%s  error: %s\n", indent, t.Error)
		case len(t.Changes) == 0:
			fmt.Fprintf(w, "%s  no changes\n", indent)
		}
		for _, c := range t.Changes {
			label := c.label
			if label == "" {
				label = c.Relation + c.Row.String()
			}
			fmt.Fprintf(w, "%s  %s: %s\n", indent, label, zset.FormatWeight(c.Weight))
		}
	}
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Mismatches recorded in the result are reported through t.
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}
	for _, msg := range result.Errors {
		t.Error(msg)
	}
	return AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares the given result's trace against a golden file
// without re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, FormatTrace(scenarioName, result.Trace))
	return nil
}
