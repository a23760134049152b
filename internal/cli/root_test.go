package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sccProgram = "../../examples/scc/scc.cue"

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "ddflow", cmd.Use)
	assert.Contains(t, cmd.Long, "incrementally")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"validate", "run", "ovsdb", "test"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err, "command %s should exist", name)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verbose := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verbose)
	assert.Equal(t, "v", verbose.Shorthand)
	assert.Equal(t, "false", verbose.DefValue)

	format := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, format)
	assert.Equal(t, "text", format.DefValue)
}

func TestEngineFlags(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"run", "ovsdb"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)

			workers := sub.Flags().Lookup("workers")
			require.NotNil(t, workers)
			assert.Equal(t, "1", workers.DefValue)

			retain := sub.Flags().Lookup("retain")
			require.NotNil(t, retain)
			assert.Equal(t, "true", retain.DefValue)

			require.NotNil(t, sub.Flags().Lookup("max-iterations"))
		})
	}
}

func TestOVSDBCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	sub, _, err := cmd.Find([]string{"ovsdb"})
	require.NoError(t, err)

	for _, name := range []string{"prefix", "module", "table"} {
		assert.NotNil(t, sub.Flags().Lookup(name), name)
	}
	mode := sub.Flags().Lookup("mode")
	require.NotNil(t, mode)
	assert.Equal(t, "delta", mode.DefValue)
}

func TestTestCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	sub, _, err := cmd.Find([]string{"test"})
	require.NoError(t, err)

	update := sub.Flags().Lookup("update")
	require.NotNil(t, update)
	assert.Equal(t, "false", update.DefValue)
	assert.NotNil(t, sub.Flags().Lookup("filter"))
	assert.NotNil(t, sub.Flags().Lookup("golden-dir"))
}

func TestFormatValidation(t *testing.T) {
	cmd := NewRootCommand()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--format", "xml", "validate", sccProgram})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid format "xml"`)
}

func TestCommandHelp(t *testing.T) {
	cmd := NewRootCommand()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--help"})

	require.NoError(t, cmd.Execute())
	for _, name := range []string{"validate", "run", "ovsdb", "test"} {
		assert.Contains(t, buf.String(), name)
	}
}
