package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"cuelang.org/go/cue/token"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/roach88/ddflow/internal/engine"
	"github.com/roach88/ddflow/internal/graphspec"
	"github.com/roach88/ddflow/internal/program"
)

// Error codes reported in CLIError.Code. E00x cover loading a program,
// E01x command scripts, E020 OVSDB input and dumps, E030 scenario runs.
const (
	ErrCodeGeneric     = "E001" // failure outside the categories below
	ErrCodeNotFound    = "E002" // program, script, updates or scenario path does not exist
	ErrCodeLoadFailed  = "E003" // CUE/YAML did not evaluate or names did not resolve
	ErrCodeBuildFailed = "E004" // engine.Build rejected the graph

	ErrCodeScriptSyntax = "E010" // statement did not parse
	ErrCodeScriptState  = "E011" // commit or rollback without start, nested start
	ErrCodeTransaction  = "E012" // engine rejected a transaction, query or dump

	ErrCodeOVSDB = "E020" // table-updates JSON invalid or delta weight not ±1

	ErrCodeTestFailed = "E030" // at least one scenario failed
)

// LoadError represents an error that occurred while loading a program.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadProgram reads and compiles the program at path. Description errors
// are *LoadError; graph errors are program.ValidationErrors.
func LoadProgram(path string) (*program.Graph, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("program not found: %s", path)}
	}
	desc, err := graphspec.Load(path)
	if err != nil {
		return nil, convertLoadError(err)
	}
	g, err := graphspec.Compile(desc)
	if err != nil {
		var verrs program.ValidationErrors
		if errors.As(err, &verrs) {
			return nil, verrs
		}
		return nil, convertLoadError(err)
	}
	return g, nil
}

func convertLoadError(err error) *LoadError {
	var ce *graphspec.CompileError
	if errors.As(err, &ce) {
		return &LoadError{Code: ErrCodeLoadFailed, Message: ce.Field + ": " + ce.Message, Pos: ce.Pos}
	}
	return &LoadError{Code: ErrCodeLoadFailed, Message: err.Error()}
}

// EngineOptions holds flags shared by commands that run an engine.
type EngineOptions struct {
	Workers       int
	Retain        bool
	MaxIterations int
}

// buildEngine loads path and builds an engine.
func buildEngine(path string, opts EngineOptions, logger *slog.Logger) (*engine.Engine, error) {
	g, err := LoadProgram(path)
	if err != nil {
		return nil, err
	}
	engOpts := []engine.Option{
		engine.WithWorkers(opts.Workers),
		engine.WithRetention(opts.Retain),
		engine.WithLogger(logger),
	}
	if opts.MaxIterations > 0 {
		engOpts = append(engOpts, engine.WithMaxIterations(opts.MaxIterations))
	}
	eng, err := engine.Build(g, engOpts...)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeBuildFailed, Message: err.Error()}
	}
	return eng, nil
}

// newLogger returns a text logger on w: debug level when verbose, warnings
// otherwise.
func newLogger(verbose bool, w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// loadFailure reports a LoadProgram/buildEngine error through f and returns
// the matching exit error.
func loadFailure(f *OutputFormatter, err error) error {
	var le *LoadError
	if errors.As(err, &le) {
		_ = f.Error(le.Code, le.Message, nil)
		return NewExitError(ExitCommandError, le.Error())
	}
	var verrs program.ValidationErrors
	if errors.As(err, &verrs) {
		return outputValidationErrors(f, verrs)
	}
	_ = f.Error(ErrCodeGeneric, err.Error(), nil)
	return WrapExitError(ExitCommandError, "load failed", err)
}

func addEngineFlags(cmd *cobra.Command, opts *EngineOptions) {
	cmd.Flags().IntVar(&opts.Workers, "workers", 1, "worker goroutines per round")
	cmd.Flags().BoolVar(&opts.Retain, "retain", true, "keep full relation contents (needed by dump)")
	cmd.Flags().IntVar(&opts.MaxIterations, "max-iterations", 0, "round limit per recursive stratum (0 = default)")
}
