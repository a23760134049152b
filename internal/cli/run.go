package cli

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	EngineOptions

	// Now overrides the clock used by "timestamp;" (for testing).
	Now func() time.Time
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <program> [script]",
		Short: "Execute a command script against a program",
		Long: `Build an engine for the program and execute a command script.

The script is read from the given file, or from stdin when omitted.

Commands:
  start;                      begin a transaction
  insert Rel(a, b),           buffer an insert (end with , or ;)
  delete Rel(a, b);           buffer a delete
  commit [dump_changes];      apply the transaction, optionally printing output changes
  rollback;                   discard the transaction
  dump [Rel];                 print the contents of one or all relations
  query_index Arr(key);       print the values stored under key
  timestamp;                  print the current time in milliseconds
  echo text;                  print text
  exit;                       stop

Example:
  ddflow run examples/scc/scc.cue script.dat
  echo 'start; insert Edge(1,2); commit dump_changes;' | ddflow run scc.yaml`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			script := ""
			if len(args) == 2 {
				script = args[1]
			}
			return runScript(opts, args[0], script, cmd)
		},
	}

	addEngineFlags(cmd, &opts.EngineOptions)

	return cmd
}

func runScript(opts *RunOptions, programPath, scriptPath string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	src, err := readScript(scriptPath, cmd.InOrStdin())
	if err != nil {
		_ = formatter.Error(ErrCodeNotFound, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to read script", err)
	}
	cmds, err := ParseScript(src)
	if err != nil {
		_ = formatter.Error(ErrCodeScriptSyntax, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to parse script", err)
	}

	eng, err := buildEngine(programPath, opts.EngineOptions, newLogger(opts.Verbose, cmd.ErrOrStderr()))
	if err != nil {
		return loadFailure(formatter, err)
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	session := NewSession(eng, formatter)
	if opts.Now != nil {
		session.now = opts.Now
	}
	if err := session.Exec(ctx, cmds); err != nil {
		var se *ScriptError
		if errors.As(err, &se) {
			_ = formatter.Reject(se.Code, se)
		}
		return WrapExitError(ExitFailure, "script failed", err)
	}
	return nil
}

func readScript(path string, stdin io.Reader) (string, error) {
	if path == "" || path == "-" {
		b, err := io.ReadAll(stdin)
		return string(b), errors.Wrap(err, "read stdin")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrapf(err, "read script %s", path)
	}
	return string(b), nil
}
