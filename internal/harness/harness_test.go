package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tallyProgram = "testdata/programs/tally.yaml"

func TestRun_Tally(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", "tally.yaml"))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Empty(t, result.Errors)

	require.Len(t, result.Trace, 5)
	assert.Equal(t, "SCHEMA_MISMATCH", result.Trace[2].Error)
	assert.Empty(t, result.Trace[2].ID)
	assert.Equal(t, "txn-3", result.Trace[3].ID)
	assert.Equal(t, int64(3), result.Trace[3].Seq)
	assert.Empty(t, result.Trace[3].Changes)
	assert.Len(t, result.Changes("Vote"), 6)
}

func TestRun_SCC(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", "scc.yaml"))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Len(t, result.Changes("StronglyConnected"), 12)
	assert.Empty(t, result.Changes("Connected"))
}

func TestRun_RecordsFacts(t *testing.T) {
	scenario := &Scenario{
		Name:        "weights",
		Description: "facts are the first transaction",
		Program:     "../graphspec/testdata/weights.yaml",
		Transactions: []Transaction{{
			Updates: []Update{{Insert: "Item", Values: []any{[]any{"c", 1}}}},
		}},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass)

	want := `scenario: weights
facts (txn-1, seq 1)
  Heavy{.group = "a", .weight = 12}: +1
  Heavy{.group = "b", .weight = 10}: +1
  Total{.group = "a", .total = 16}: +1
  Total{.group = "b", .total = 10}: +1
txn 1 (txn-2, seq 2)
  Total{.group = "c", .total = 1}: +1
`
	assert.Equal(t, want, string(FormatTrace(scenario.Name, result.Trace)))
}

func TestRun_ReportsMismatches(t *testing.T) {
	scenario := &Scenario{
		Name:        "mismatch",
		Description: "wrong expectations fail the result",
		Program:     tallyProgram,
		Transactions: []Transaction{
			{
				Updates: []Update{{Insert: "Vote", Values: []any{[]any{"alice", "red"}}}},
				Expect: map[string][]ExpectedRow{
					"Tally": {{Row: []any{"red", 2}}},
				},
			},
			{
				Updates:     []Update{{Insert: "Vote", Values: []any{[]any{"bob", "red"}}}},
				ExpectError: "SCHEMA_MISMATCH",
			},
			{
				Updates: []Update{{Delete: "Vote", Values: []any{[]any{"carol"}}}},
			},
		},
		Snapshots: map[string][][]any{
			"Tally": {{"red", 1}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 4)
	assert.Equal(t, `txn 1: Tally delta: expected {("red",2):+1}, got {("red",1):+1}`, result.Errors[0])
	assert.Equal(t, "txn 2: expected error SCHEMA_MISMATCH, transaction committed", result.Errors[1])
	assert.Contains(t, result.Errors[2], "txn 3: unexpected error: SCHEMA_MISMATCH")
	assert.Equal(t, `snapshot Tally: expected {("red",1):+1}, got {("red",2):+1}`, result.Errors[3])
}

func TestRun_ScenarioErrors(t *testing.T) {
	tests := []struct {
		name     string
		scenario Scenario
		want     string
	}{
		{
			name:     "missing program",
			scenario: Scenario{Program: "testdata/programs/missing.yaml"},
			want:     "load program",
		},
		{
			name: "unknown traced relation",
			scenario: Scenario{
				Program: tallyProgram,
				Trace:   []string{"Ballot"},
			},
			want: `unknown relation "Ballot"`,
		},
		{
			name: "unknown update relation",
			scenario: Scenario{
				Program: tallyProgram,
				Transactions: []Transaction{{
					Updates: []Update{{Insert: "Ballot", Values: []any{[]any{1}}}},
				}},
			},
			want: "transactions[0]: updates[0]",
		},
		{
			name: "undecodable expected row",
			scenario: Scenario{
				Program: tallyProgram,
				Transactions: []Transaction{{
					Updates: []Update{{Insert: "Vote", Values: []any{[]any{"a", "b"}}}},
					Expect:  map[string][]ExpectedRow{"Tally": {{Row: []any{"b"}}}},
				}},
			},
			want: "transactions[0].expect: Tally[0]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Run(&tt.scenario)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
