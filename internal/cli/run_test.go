package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ddflow/internal/engine"
)

const twoCycleScript = `# two nodes in one cycle
start;
insert Edge(1, 2),
insert Edge(2, 1);
commit dump_changes;
`

func TestRunScript_Text(t *testing.T) {
	script := twoCycleScript + `
timestamp;
query_index Connected_by_src(1);
dump StronglyConnected;
echo done;
`
	opts := &RunOptions{
		RootOptions:   &RootOptions{Format: "text"},
		EngineOptions: EngineOptions{Workers: 2, Retain: true},
		Now:           func() time.Time { return time.UnixMilli(1700000000000) },
	}
	buf := &bytes.Buffer{}
	cmd := &cobra.Command{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetIn(strings.NewReader(script))

	require.NoError(t, runScript(opts, sccProgram, "", cmd))

	want := `StronglyConnected:
StronglyConnected{.node = 1, .regime = 1}: +1
StronglyConnected{.node = 2, .regime = 1}: +1
Timestamp: 1700000000000
Connected{.src = 1, .dest = 1}
Connected{.src = 1, .dest = 2}
StronglyConnected{.node = 1, .regime = 1}
StronglyConnected{.node = 2, .regime = 1}
done
`
	assert.Equal(t, want, buf.String())
}

func TestRun_ScriptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "script.dat")
	require.NoError(t, os.WriteFile(path, []byte(twoCycleScript+"start;\ndelete Edge(2, 1);\ncommit dump_changes;\n"), 0o644))

	out, err := execute(t, "run", sccProgram, path)
	require.NoError(t, err)

	want := `StronglyConnected:
StronglyConnected{.node = 1, .regime = 1}: +1
StronglyConnected{.node = 2, .regime = 1}: +1
StronglyConnected:
StronglyConnected{.node = 1, .regime = 1}: -1
StronglyConnected{.node = 2, .regime = 1}: -1
`
	assert.Equal(t, want, out)
}

func TestRun_JSONCommit(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetIn(strings.NewReader(twoCycleScript))
	cmd.SetArgs([]string{"--format", "json", "run", sccProgram})
	require.NoError(t, cmd.Execute())

	var resp struct {
		Status string `json:"status"`
		Data   struct {
			Txn     engine.TxnInfo `json:"txn"`
			Changes map[string][]struct {
				Row    json.RawMessage `json:"row"`
				Weight int64           `json:"weight"`
			} `json:"changes"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, int64(1), resp.Data.Txn.Seq)
	assert.NotEmpty(t, resp.Data.Txn.ID)

	changes := resp.Data.Changes["StronglyConnected"]
	require.Len(t, changes, 2)
	assert.JSONEq(t, `[1,1]`, string(changes[0].Row))
	assert.JSONEq(t, `[2,1]`, string(changes[1].Row))
	assert.Equal(t, int64(1), changes[1].Weight)
}

func TestRun_Errors(t *testing.T) {
	tests := []struct {
		name   string
		script string
		code   int
		want   []string
	}{
		{
			name:   "syntax",
			script: "start;\nbogus;",
			code:   ExitCommandError,
			want:   []string{"Error [E010]", `line 2: unknown command "bogus"`},
		},
		{
			name:   "commit without start",
			script: "commit;",
			code:   ExitFailure,
			want:   []string{"Error [E011]", "line 1: commit: no transaction in progress"},
		},
		{
			name:   "nested start",
			script: "start;\nstart;",
			code:   ExitFailure,
			want:   []string{"Error [E011]", "transaction already in progress"},
		},
		{
			name:   "unknown relation",
			script: "start;\ninsert Vertex(1);",
			code:   ExitFailure,
			want:   []string{"Error [E012]", "line 2: insert: unknown relation Vertex"},
		},
		{
			name:   "schema mismatch",
			script: "start;\ninsert Edge(1);\ncommit;",
			code:   ExitFailure,
			want:   []string{"Error [E012]", "line 3: commit: SCHEMA_MISMATCH"},
		},
		{
			name:   "lookup on unqueryable arrangement",
			script: "query_index Edge_by_dest(1);",
			code:   ExitFailure,
			want:   []string{"Error [E012]", "NOT_QUERYABLE"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			cmd := NewRootCommand()
			cmd.SetOut(buf)
			cmd.SetErr(buf)
			cmd.SetIn(strings.NewReader(tt.script))
			cmd.SetArgs([]string{"run", sccProgram})

			err := cmd.Execute()
			require.Error(t, err)
			assert.Equal(t, tt.code, GetExitCode(err))
			for _, w := range tt.want {
				assert.Contains(t, buf.String(), w)
			}
		})
	}
}

func TestRun_DumpNeedsRetention(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetIn(strings.NewReader("dump Edge;"))
	cmd.SetArgs([]string{"run", "--retain=false", sccProgram})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, buf.String(), "NOT_RETAINED")
}

func TestRun_OpenTransactionDiscarded(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetIn(strings.NewReader("start;\ninsert Edge(1, 1);\nexit;\ncommit dump_changes;"))
	cmd.SetArgs([]string{"run", sccProgram})

	require.NoError(t, cmd.Execute())
	assert.Empty(t, buf.String())
}

func TestRun_MissingProgram(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetIn(strings.NewReader("exit;"))
	cmd.SetArgs([]string{"run", "/nonexistent/program.cue"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, buf.String(), ErrCodeNotFound)
}
