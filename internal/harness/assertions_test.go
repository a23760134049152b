package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tallyScenario(assertions ...Assertion) *Scenario {
	return &Scenario{
		Name:        "assertions",
		Description: "assertions over a small tally",
		Program:     tallyProgram,
		Transactions: []Transaction{
			{Updates: []Update{{Insert: "Vote", Values: []any{[]any{"alice", "red"}, []any{"bob", "red"}}}}},
			{Updates: []Update{{Delete: "Vote", Values: []any{[]any{"bob", "red"}}}}},
		},
		Assertions: assertions,
	}
}

func TestEvaluateAssertions_Pass(t *testing.T) {
	result, err := Run(tallyScenario(
		Assertion{Type: AssertDeltaContains, Relation: "Tally", Row: []any{"red", 2}},
		Assertion{Type: AssertDeltaContains, Relation: "Tally", Row: []any{"red", 2}, Weight: -1, Txn: 2},
		Assertion{Type: AssertDeltaCount, Relation: "Tally", Count: 3},
		Assertion{Type: AssertFinalState, Relation: "Tally", Row: []any{"red", 1}},
	))
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestEvaluateAssertions_Failures(t *testing.T) {
	tests := []struct {
		name      string
		assertion Assertion
		want      []string
	}{
		{
			name:      "delta_contains wrong txn",
			assertion: Assertion{Type: AssertDeltaContains, Relation: "Tally", Row: []any{"red", 2}, Txn: 2},
			want:      []string{"Assertion failed: delta_contains", `Expected: Tally{"red",2} +1 in txn 2`, "Full trace:"},
		},
		{
			name:      "delta_count",
			assertion: Assertion{Type: AssertDeltaCount, Relation: "Tally", Count: 1},
			want:      []string{"Expected: 1 changes of Tally", "Actual: 3 changes"},
		},
		{
			name:      "final_state",
			assertion: Assertion{Type: AssertFinalState, Relation: "Tally", Row: []any{"red", 2}},
			want:      []string{`Expected: row Tally{"red",2}`, "Actual: row not found among 1 rows"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Run(tallyScenario(tt.assertion))
			require.NoError(t, err)
			assert.False(t, result.Pass)
			require.Len(t, result.Errors, 1)
			assert.Contains(t, result.Errors[0], "assertions[0]: ")
			for _, w := range tt.want {
				assert.Contains(t, result.Errors[0], w)
			}
		})
	}
}

func TestEvaluateAssertions_Unevaluable(t *testing.T) {
	tests := []struct {
		name      string
		assertion Assertion
		want      string
	}{
		{
			name:      "unknown relation",
			assertion: Assertion{Type: AssertFinalState, Relation: "Ballot", Row: []any{1}},
			want:      `assertions[0]: unknown relation "Ballot"`,
		},
		{
			name:      "unknown arrangement",
			assertion: Assertion{Type: AssertLookup, Arrangement: "Tally_by_choice", Key: "red"},
			want:      `assertions[0]: unknown arrangement "Tally_by_choice"`,
		},
		{
			name:      "unknown type",
			assertion: Assertion{Type: "trace_order"},
			want:      `unknown assertion type "trace_order"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Run(tallyScenario(tt.assertion))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestAssertionError_Format(t *testing.T) {
	err := &AssertionError{
		Type:     AssertDeltaCount,
		Expected: "2 changes of Tally",
		Actual:   "0 changes",
		Trace:    []TxnTrace{{Index: 1, ID: "txn-1", Seq: 1}},
	}
	want := `Assertion failed: delta_count
  Expected: 2 changes of Tally
  Actual: 0 changes

Full trace:
  txn 1 (txn-1, seq 1)
    no changes
`
	assert.Equal(t, want, err.Error())
}
