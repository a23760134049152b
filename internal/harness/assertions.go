package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/roach88/ddflow/internal/engine"
	"github.com/roach88/ddflow/internal/value"
	"github.com/roach88/ddflow/internal/zset"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string     // Assertion type for categorization
	Expected string     // Human-readable expected outcome
	Actual   string     // Human-readable actual outcome
	Trace    []TxnTrace // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		writeTrace(&buf, e.Trace, "  ")
	}
	return buf.String()
}

// EvaluateAssertions runs every assertion against the result and the
// engine's final state, recording failures on result. The returned error
// reports assertions that could not be evaluated at all.
func EvaluateAssertions(ctx context.Context, eng *engine.Engine, result *Result, assertions []Assertion) error {
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertDeltaContains:
			err = assertDeltaContains(eng, result, a)
		case AssertDeltaCount:
			err = assertDeltaCount(result, a)
		case AssertFinalState:
			err = assertFinalState(eng, a)
		case AssertLookup:
			err = assertLookup(ctx, eng, a)
		default:
			err = errors.Newf("unknown assertion type %q", a.Type)
		}

		var aerr *AssertionError
		switch {
		case err == nil:
		case errors.As(err, &aerr):
			result.AddError(fmt.Sprintf("assertions[%d]: %s", i, aerr.Error()))
		default:
			return errors.Wrapf(err, "assertions[%d]", i)
		}
	}
	return nil
}

// decodeRow decodes raw against the schema of the named relation.
func decodeRow(eng *engine.Engine, relation string, raw any) (value.Value, error) {
	rel, ok := eng.RelationID(relation)
	if !ok {
		return nil, errors.Newf("unknown relation %q", relation)
	}
	r, _ := eng.Relation(rel)
	return value.DecodeAny(r.Schema, raw)
}

// assertDeltaContains checks that a transaction changed the row by the
// given weight. Txn zero searches every transaction.
func assertDeltaContains(eng *engine.Engine, result *Result, a Assertion) error {
	row, err := decodeRow(eng, a.Relation, a.Row)
	if err != nil {
		return err
	}
	weight := a.Weight
	if weight == 0 {
		weight = 1
	}

	for _, t := range result.Trace {
		if a.Txn != 0 && t.Index != a.Txn {
			continue
		}
		for _, c := range t.Changes {
			if c.Relation == a.Relation && c.Weight == weight && value.Equal(c.Row, row) {
				return nil
			}
		}
	}

	where := "any transaction"
	if a.Txn != 0 {
		where = fmt.Sprintf("txn %d", a.Txn)
	}
	return &AssertionError{
		Type:     AssertDeltaContains,
		Expected: fmt.Sprintf("%s %s in %s", value.Format(a.Relation, row), zset.FormatWeight(weight), where),
		Actual:   "not found in trace",
		Trace:    result.Trace,
	}
}

// assertDeltaCount checks the number of recorded changes of a relation.
func assertDeltaCount(result *Result, a Assertion) error {
	n := len(result.Changes(a.Relation))
	if n != a.Count {
		return &AssertionError{
			Type:     AssertDeltaCount,
			Expected: fmt.Sprintf("%d changes of %s", a.Count, a.Relation),
			Actual:   fmt.Sprintf("%d changes", n),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertFinalState checks that the row is present after the last
// transaction.
func assertFinalState(eng *engine.Engine, a Assertion) error {
	row, err := decodeRow(eng, a.Relation, a.Row)
	if err != nil {
		return err
	}
	rel, _ := eng.RelationID(a.Relation)
	entries, err := eng.Snapshot(rel)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if value.Equal(e.Value, row) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertFinalState,
		Expected: fmt.Sprintf("row %s", value.Format(a.Relation, row)),
		Actual:   fmt.Sprintf("row not found among %d rows", len(entries)),
	}
}

// assertLookup checks the exact set of values stored under a key of a
// queryable arrangement.
func assertLookup(ctx context.Context, eng *engine.Engine, a Assertion) error {
	arr, ok := eng.Graph().ArrangementByName(a.Arrangement)
	if !ok {
		return errors.Newf("unknown arrangement %q", a.Arrangement)
	}
	key, err := value.FromJSON(a.Key)
	if err != nil {
		return errors.Wrap(err, "key")
	}

	want := zset.New()
	name := eng.RelationName(arr.Relation)
	for i, raw := range a.Rows {
		v, err := decodeRow(eng, name, raw)
		if err != nil {
			return errors.Wrapf(err, "rows[%d]", i)
		}
		want.Add(v, 1)
	}

	entries, err := eng.Lookup(ctx, a.Arrangement, key)
	if err != nil {
		return err
	}
	got := zset.New()
	for _, e := range entries {
		got.Add(e.Value, 1)
	}
	if !want.Equal(got) {
		return &AssertionError{
			Type:     AssertLookup,
			Expected: fmt.Sprintf("%s[%s] = %s", a.Arrangement, key, want),
			Actual:   got.String(),
		}
	}
	return nil
}
