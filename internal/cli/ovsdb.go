package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/roach88/ddflow/internal/ovsdb"
)

// OVSDBOptions holds flags for the ovsdb command.
type OVSDBOptions struct {
	*RootOptions
	EngineOptions
	Prefix string
	Module string
	Tables []string
	Mode   string // "delta" | "output"
}

// OVSDBResult is the JSON payload for one applied update file.
type OVSDBResult struct {
	File       string            `json:"file"`
	Txn        string            `json:"txn"`
	Operations map[string]string `json:"operations"`
}

// NewOVSDBCommand creates the ovsdb command.
func NewOVSDBCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &OVSDBOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "ovsdb <program> <updates.json>...",
		Short: "Apply OVSDB table updates and print the resulting operations",
		Long: `Apply each OVSDB <table-updates> file as one transaction.

Rows of table T update the input relation <prefix>T. After each
transaction the changes of every --table are printed as OVSDB operations:
in delta mode from <module>::DeltaPlus_T, DeltaMinus_T and Update_T, in
output mode from <module>::Out_T.

Example:
  ddflow ovsdb nb.cue updates.json --prefix 'nb::' --module lb --table Load_Balancer`,
		Args:          cobra.MinimumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOVSDB(opts, args[0], args[1:], cmd)
		},
	}

	addEngineFlags(cmd, &opts.EngineOptions)
	cmd.Flags().StringVar(&opts.Prefix, "prefix", "", "relation name prefix for input tables")
	cmd.Flags().StringVar(&opts.Module, "module", "", "module of the delta/output relations")
	cmd.Flags().StringSliceVar(&opts.Tables, "table", nil, "table to dump (repeatable)")
	cmd.Flags().StringVar(&opts.Mode, "mode", "delta", "dump mode (delta|output)")

	return cmd
}

func runOVSDB(opts *OVSDBOptions, programPath string, files []string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	var dump func(cat ovsdb.Catalog, d ovsdb.Delta, module, table string) (string, error)
	switch opts.Mode {
	case "delta":
		dump = ovsdb.DumpDeltaTables
	case "output":
		dump = ovsdb.DumpOutputTable
	default:
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid mode %q: must be delta or output", opts.Mode))
	}

	eng, err := buildEngine(programPath, opts.EngineOptions, newLogger(opts.Verbose, cmd.ErrOrStderr()))
	if err != nil {
		return loadFailure(formatter, err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			_ = formatter.Error(ErrCodeNotFound, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to read updates", err)
		}
		updates, err := ovsdb.ParseTableUpdates(eng, opts.Prefix, data)
		if err != nil {
			return ovsdbFailure(formatter, file, err)
		}
		dm, err := eng.ApplyTransaction(ctx, updates)
		if err != nil {
			_ = formatter.Reject(ErrCodeTransaction, err)
			return WrapExitError(ExitFailure, "transaction rejected", err)
		}
		formatter.VerboseLog("%s: applied %d update(s) as txn %s", file, len(updates), dm.Txn.ID)

		res := OVSDBResult{File: file, Txn: dm.Txn.ID, Operations: make(map[string]string)}
		for _, table := range opts.Tables {
			ops, err := dump(eng, dm, opts.Module, table)
			if err != nil {
				return ovsdbFailure(formatter, file, err)
			}
			res.Operations[table] = ops
		}

		if formatter.Format == "json" {
			if err := formatter.Success(res); err != nil {
				return err
			}
			continue
		}
		for _, table := range opts.Tables {
			fmt.Fprintf(formatter.Writer, "%s: [%s]\n", table, res.Operations[table])
		}
	}
	return nil
}

func ovsdbFailure(f *OutputFormatter, file string, err error) error {
	var details map[string]string
	var we *ovsdb.WeightError
	if errors.As(err, &we) {
		details = map[string]string{"relation": we.Relation, "weight": fmt.Sprint(we.Weight)}
	}
	_ = f.Error(ErrCodeOVSDB, err.Error(), details)
	return WrapExitError(ExitFailure, file, err)
}
