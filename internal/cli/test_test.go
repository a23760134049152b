package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	harnessScenarios = "../harness/testdata/scenarios"
	harnessGolden    = "../harness/testdata/golden"
)

// writeSwitchScenario writes a scenario over testdata/switch.yaml into dir.
func writeSwitchScenario(t *testing.T, dir, name, expect string) {
	t.Helper()
	program, err := filepath.Abs(switchProgram)
	require.NoError(t, err)
	body := `name: ` + name + `
description: "switch rows are mirrored"
program: ` + program + `
transactions:
  - updates:
      - insert: "in::Switch"
        values: [["0000-1", "sw0"]]
` + expect
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".yaml"), []byte(body), 0o644))
}

func TestTestCommand_HarnessScenarios(t *testing.T) {
	out, err := execute(t, "test", harnessScenarios, "--golden-dir", harnessGolden)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ scc\n")
	assert.Contains(t, out, "✓ tally\n")
	assert.Contains(t, out, "Test Summary: 2 passed, 0 failed, 2 total")
	assert.Contains(t, out, "✓ All scenarios passed")
}

func TestTestCommand_Filter(t *testing.T) {
	out, err := execute(t, "test", harnessScenarios, "--golden-dir", harnessGolden, "--filter", "tal*")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ tally\n")
	assert.NotContains(t, out, "scc")
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")
}

func TestTestCommand_JSON(t *testing.T) {
	out, err := execute(t, "--format", "json", "test", harnessScenarios, "--golden-dir", harnessGolden)
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 2, resp.Data.Total)
	assert.Equal(t, 2, resp.Data.Passed)
}

func TestTestCommand_Failure(t *testing.T) {
	dir := t.TempDir()
	writeSwitchScenario(t, dir, "failing", `    expect:
      "nb::Out_Switch": []
`)

	out, err := execute(t, "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ failing\n")
	assert.Contains(t, out, `txn 1: nb::Out_Switch delta: expected {}, got {("0000-1","sw0"):+1}`)
	assert.Contains(t, out, "Test Summary: 0 passed, 1 failed, 1 total")
}

func TestTestCommand_FailureJSON(t *testing.T) {
	dir := t.TempDir()
	writeSwitchScenario(t, dir, "failing", `    expect:
      "nb::Out_Switch": []
`)

	out, err := execute(t, "--format", "json", "test", dir)
	require.Error(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
		Error  *CLIError  `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, 1, resp.Data.Failed)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeTestFailed, resp.Error.Code)
	require.Len(t, resp.Data.Scenarios, 1)
	assert.Len(t, resp.Data.Scenarios[0].Errors, 1)
}

func TestTestCommand_UpdateGolden(t *testing.T) {
	dir := t.TempDir()
	writeSwitchScenario(t, dir, "switch", "")

	out, err := execute(t, "test", dir, "--update")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ switch (golden updated)")

	golden, err := os.ReadFile(filepath.Join(dir, "golden", "switch.golden"))
	require.NoError(t, err)
	want := `scenario: switch
txn 1 (txn-1, seq 1)
  nb::DeltaPlus_Switch{._uuid = "0000-1", .name = "sw0"}: +1
  nb::Out_Switch{._uuid = "0000-1", .name = "sw0"}: +1
`
	assert.Equal(t, want, string(golden))

	out, err = execute(t, "test", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ switch\n")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "golden", "switch.golden"), []byte("scenario: other\n"), 0o644))
	out, err = execute(t, "test", dir)
	require.Error(t, err)
	assert.Contains(t, out, "trace does not match golden file")
}

func TestTestCommand_LoadError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("name: broken\n"), 0o644))

	out, err := execute(t, "test", dir)
	require.Error(t, err)
	assert.Contains(t, out, "✗ broken.yaml\n")
	assert.Contains(t, out, "load error")
}

func TestTestCommand_Paths(t *testing.T) {
	_, err := execute(t, "test", "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenarios directory not found")

	out, err := execute(t, "test", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found.")

	_, err = execute(t, "test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestFindScenarioFiles(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "nested")
	golden := filepath.Join(dir, "golden")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	require.NoError(t, os.MkdirAll(golden, 0o755))

	for _, p := range []string{
		filepath.Join(dir, "scc-merge.yaml"),
		filepath.Join(dir, "scc-split.yml"),
		filepath.Join(dir, "notes.txt"),
		filepath.Join(sub, "tally.yaml"),
		filepath.Join(golden, "ignored.yaml"),
	} {
		require.NoError(t, os.WriteFile(p, nil, 0o644))
	}

	files, err := findScenarioFiles(dir, "")
	require.NoError(t, err)
	assert.Len(t, files, 3)

	files, err = findScenarioFiles(dir, "scc-*")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "scc-merge.yaml"), filepath.Join(dir, "scc-split.yml")}, files)

	_, err = findScenarioFiles(dir, "[")
	require.Error(t, err)
}
