package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadScenario_ResolvesProgram(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", "tally.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "tally", scenario.Name)
	assert.Equal(t, filepath.Join("testdata", "programs", "tally.yaml"), scenario.Program)
	assert.Equal(t, []string{"Vote"}, scenario.Trace)
	require.Len(t, scenario.Transactions, 5)
	assert.Equal(t, "SCHEMA_MISMATCH", scenario.Transactions[2].ExpectError)

	name, insert := scenario.Transactions[1].Updates[0].Relation()
	assert.Equal(t, "Vote", name)
	assert.False(t, insert)

	rows := scenario.Transactions[1].Expect["Tally"]
	require.Len(t, rows, 4)
	assert.Equal(t, int64(-1), rows[0].weight())
	assert.Equal(t, int64(1), rows[1].weight())
}

func TestLoadScenario_RejectsUnknownFields(t *testing.T) {
	path := writeScenario(t, `
name: typo
description: "misspelled key"
program: prog.yaml
transactions:
  - updates:
      - insert: Vote
        values: [[a, b]]
snapshot:
  Vote: [[a, b]]
`)
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse YAML")
	assert.Contains(t, err.Error(), "snapshot")
}

func TestLoadScenario_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "missing name",
			body: "description: d\nprogram: prog.yaml\n",
			want: "name is required",
		},
		{
			name: "missing program file",
			body: "name: n\ndescription: d\nprogram: nope.yaml\n",
			want: "program file not found",
		},
		{
			name: "no transactions",
			body: "name: n\ndescription: d\nprogram: prog.yaml\n",
			want: "transactions list is required",
		},
		{
			name: "insert and delete",
			body: `name: n
description: d
program: prog.yaml
transactions:
  - updates:
      - {insert: Vote, delete: Vote, values: [[a, b]]}
`,
			want: "transactions[0].updates[0]: exactly one of insert and delete is required",
		},
		{
			name: "expect with expect_error",
			body: `name: n
description: d
program: prog.yaml
transactions:
  - updates:
      - {insert: Vote, values: [[a, b]]}
    expect_error: SCHEMA_MISMATCH
    expect:
      Tally: []
`,
			want: "expect and expect_error are exclusive",
		},
		{
			name: "unknown assertion",
			body: `name: n
description: d
program: prog.yaml
transactions:
  - updates:
      - {insert: Vote, values: [[a, b]]}
assertions:
  - type: trace_order
`,
			want: `assertions[0]: unknown assertion type "trace_order"`,
		},
		{
			name: "txn out of range",
			body: `name: n
description: d
program: prog.yaml
transactions:
  - updates:
      - {insert: Vote, values: [[a, b]]}
assertions:
  - {type: delta_contains, relation: Tally, row: [a, 1], txn: 2}
`,
			want: "assertions[0]: txn 2 out of range",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadScenario(writeScenario(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid scenario")
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

// writeScenario writes body next to an empty prog.yaml and returns its path.
func writeScenario(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "prog.yaml"), []byte("name: p\n"), 0o644))
	path := filepath.Join(dir, "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}
