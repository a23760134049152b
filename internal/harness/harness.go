package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/cockroachdb/errors"

	"github.com/roach88/ddflow/internal/engine"
	"github.com/roach88/ddflow/internal/graphspec"
	"github.com/roach88/ddflow/internal/program"
	"github.com/roach88/ddflow/internal/testutil"
	"github.com/roach88/ddflow/internal/value"
	"github.com/roach88/ddflow/internal/zset"
)

// Harness is the test execution engine.
// It runs scenarios with sequential transaction ids and retention enabled.
type Harness struct {
	eng    *engine.Engine
	logger *slog.Logger
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs against a freshly built engine. Mismatches between the
// scenario's expectations and the engine's behavior are reported in
// Result.Errors; a non-nil error means the scenario itself could not run
// (missing program, unknown relation, undecodable row).
//
// Execution flow:
// 1. Load the program and build an engine
// 2. Record the facts transaction, if any
// 3. Apply each transaction and compare its delta against expect
// 4. Compare snapshots and evaluate assertions
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()

	g, err := graphspec.LoadGraph(scenario.Program)
	if err != nil {
		return nil, errors.Wrapf(err, "load program %s", scenario.Program)
	}

	h := &Harness{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	workers := max(scenario.Workers, 1)
	h.eng, err = engine.Build(g,
		engine.WithWorkers(workers),
		engine.WithRetention(true),
		engine.WithLogger(h.logger),
		engine.WithIDGenerator(testutil.NewSequentialIDGenerator("txn")),
	)
	if err != nil {
		return nil, errors.Wrap(err, "build engine")
	}

	if err := h.observe(scenario); err != nil {
		return nil, err
	}

	result := NewResult()
	if initial := h.eng.InitialDelta(); initial != nil {
		result.Trace = append(result.Trace, h.record(0, "facts", initial))
	}

	for i, txn := range scenario.Transactions {
		index := i + 1
		updates, err := h.updates(txn.Updates)
		if err != nil {
			return nil, errors.Wrapf(err, "transactions[%d]", i)
		}

		delta, err := h.eng.ApplyTransaction(ctx, updates)
		if err != nil {
			code := string(engine.CodeOf(err))
			result.Trace = append(result.Trace, TxnTrace{
				Index:       index,
				Description: txn.Description,
				Error:       code,
				Changes:     []Change{},
			})
			switch {
			case txn.ExpectError == "":
				result.AddError(fmt.Sprintf("txn %d: unexpected error: %v", index, err))
			case txn.ExpectError != code:
				result.AddError(fmt.Sprintf("txn %d: expected error %s, got %v", index, txn.ExpectError, err))
			}
			continue
		}
		if txn.ExpectError != "" {
			result.AddError(fmt.Sprintf("txn %d: expected error %s, transaction committed", index, txn.ExpectError))
		}

		result.Trace = append(result.Trace, h.record(index, txn.Description, delta))
		if err := h.checkExpect(result, index, txn.Expect, delta); err != nil {
			return nil, errors.Wrapf(err, "transactions[%d].expect", i)
		}
	}

	if err := h.checkSnapshots(result, scenario.Snapshots); err != nil {
		return nil, errors.Wrap(err, "snapshots")
	}
	if err := EvaluateAssertions(ctx, h.eng, result, scenario.Assertions); err != nil {
		return nil, err
	}

	h.logger.Info("scenario completed",
		"scenario", scenario.Name,
		"transactions", len(scenario.Transactions),
		"pass", result.Pass,
	)
	return result, nil
}

// observe makes every relation named by trace or expect a tracked
// relation so its changes reach the DeltaMap.
func (h *Harness) observe(scenario *Scenario) error {
	names := slices.Clone(scenario.Trace)
	for _, txn := range scenario.Transactions {
		for name := range txn.Expect {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	names = slices.Compact(names)

	for _, name := range names {
		rel, err := h.relation(name)
		if err != nil {
			return err
		}
		if err := h.eng.RegisterObserver(rel, func(engine.TxnInfo, []zset.Entry) {}); err != nil {
			return errors.Wrapf(err, "observe %s", name)
		}
	}
	return nil
}

func (h *Harness) relation(name string) (program.RelID, error) {
	rel, ok := h.eng.RelationID(name)
	if !ok {
		return 0, errors.Newf("unknown relation %q", name)
	}
	return rel, nil
}

// updates converts scenario updates into engine updates.
func (h *Harness) updates(in []Update) ([]engine.Update, error) {
	var out []engine.Update
	for j, u := range in {
		name, insert := u.Relation()
		rel, err := h.relation(name)
		if err != nil {
			return nil, errors.Wrapf(err, "updates[%d]", j)
		}
		for k, raw := range u.Values {
			v, err := h.loose(rel, raw)
			if err != nil {
				return nil, errors.Wrapf(err, "updates[%d].values[%d]", j, k)
			}
			if insert {
				out = append(out, engine.Insert(rel, v))
			} else {
				out = append(out, engine.Delete(rel, v))
			}
		}
	}
	return out, nil
}

// row decodes raw against the schema of rel.
func (h *Harness) row(rel program.RelID, raw any) (value.Value, error) {
	r, _ := h.eng.Relation(rel)
	return value.DecodeAny(r.Schema, raw)
}

// loose decodes raw against the schema of rel and falls back to a
// schema-free conversion, leaving the mismatch for the engine to report.
func (h *Harness) loose(rel program.RelID, raw any) (value.Value, error) {
	if v, err := h.row(rel, raw); err == nil {
		return v, nil
	}
	return value.FromJSON(raw)
}

// record converts a DeltaMap into a trace entry.
func (h *Harness) record(index int, description string, delta *engine.DeltaMap) TxnTrace {
	t := TxnTrace{
		Index:       index,
		Description: description,
		ID:          delta.Txn.ID,
		Seq:         delta.Txn.Seq,
		Changes:     []Change{},
	}
	for _, rel := range delta.Relations() {
		r, _ := h.eng.Relation(rel)
		for _, e := range delta.Get(rel) {
			t.Changes = append(t.Changes, Change{
				Relation: r.Name,
				Row:      e.Value,
				Weight:   e.Weight,
				label:    value.FormatRecord(r.Name, r.Schema, e.Value),
			})
		}
	}
	return t
}

func (h *Harness) checkExpect(result *Result, index int, expect map[string][]ExpectedRow, delta *engine.DeltaMap) error {
	for _, name := range sortedKeys(expect) {
		rel, err := h.relation(name)
		if err != nil {
			return err
		}
		want := zset.New()
		for i, r := range expect[name] {
			v, err := h.row(rel, r.Row)
			if err != nil {
				return errors.Wrapf(err, "%s[%d]", name, i)
			}
			want.Add(v, r.weight())
		}
		got := delta.ZSet(rel)
		if !want.Equal(got) {
			result.AddError(fmt.Sprintf("txn %d: %s delta: expected %s, got %s", index, name, want, got))
		}
	}
	return nil
}

func (h *Harness) checkSnapshots(result *Result, snapshots map[string][][]any) error {
	for _, name := range sortedKeys(snapshots) {
		rel, err := h.relation(name)
		if err != nil {
			return err
		}
		want := zset.New()
		for i, raw := range snapshots[name] {
			v, err := h.row(rel, raw)
			if err != nil {
				return errors.Wrapf(err, "%s[%d]", name, i)
			}
			if !want.Contains(v) {
				want.Add(v, 1)
			}
		}
		entries, err := h.eng.Snapshot(rel)
		if err != nil {
			return err
		}
		got := zset.New()
		for _, e := range entries {
			got.Add(e.Value, 1)
		}
		if !want.Equal(got) {
			result.AddError(fmt.Sprintf("snapshot %s: expected %s, got %s", name, want, got))
		}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
