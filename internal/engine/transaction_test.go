package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ddflow/internal/arrangement"
	"github.com/roach88/ddflow/internal/dataflow"
	"github.com/roach88/ddflow/internal/program"
	"github.com/roach88/ddflow/internal/value"
	"github.com/roach88/ddflow/internal/zset"
)

func TestApplyTransaction_SchemaMismatchIsAtomic(t *testing.T) {
	e, s := buildSCC(t)
	apply(t, e, insertEdges(s.Edge, [2]int{1, 2}))

	tests := []struct {
		name   string
		update Update
	}{
		{"wrong arity", Insert(s.Edge, value.T(1))},
		{"wrong kind", Insert(s.Edge, value.T(1, "two"))},
		{"not a tuple", Insert(s.Edge, value.Int(3))},
		{"derived relation", Insert(s.Connected, value.T(9, 9))},
		{"bad kind", Update{Kind: 0, Relation: s.Edge, Value: value.T(1, 2)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// The valid first update must not be applied either.
			_, err := e.ApplyTransaction(context.Background(), []Update{
				Insert(s.Edge, value.T(2, 1)),
				tt.update,
			})

			require.Error(t, err)
			assert.True(t, IsSchemaMismatch(err), "got %v", err)
			assert.Equal(t, []value.Value{value.T(1, 2)}, snapshot(t, e, s.Edge))
			assert.Equal(t, []value.Value{value.T(1, 2)}, snapshot(t, e, s.Connected))
		})
	}
}

func TestApplyTransaction_UnknownRelation(t *testing.T) {
	e, s := buildSCC(t)

	_, err := e.ApplyTransaction(context.Background(), []Update{
		Insert(s.Edge, value.T(1, 2)),
		Insert(program.RelID(77), value.T(1, 2)),
	})

	require.Error(t, err)
	assert.True(t, IsUnknownRelation(err))
	var ee *Error
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "77", ee.Details["id"])
	assert.Equal(t, "1", ee.Details["update"])
	assert.Empty(t, snapshot(t, e, s.Edge))
}

func TestApplyTransaction_SetSemantics(t *testing.T) {
	e, s := buildSCC(t)
	var edgeDeltas [][]zset.Entry
	require.NoError(t, e.RegisterObserver(s.Edge, func(_ TxnInfo, d []zset.Entry) {
		edgeDeltas = append(edgeDeltas, d)
	}))

	// Duplicate insert within one transaction counts once.
	apply(t, e, insertEdges(s.Edge, [2]int{1, 2}, [2]int{1, 2}))
	// Inserting a present value is a no-op.
	dm := apply(t, e, insertEdges(s.Edge, [2]int{1, 2}))
	assert.True(t, dm.IsEmpty())
	// Deleting an absent value is a no-op.
	dm = apply(t, e, deleteEdges(s.Edge, [2]int{4, 4}))
	assert.True(t, dm.IsEmpty())
	// Delete then re-insert in one transaction nets to nothing.
	dm = apply(t, e, append(deleteEdges(s.Edge, [2]int{1, 2}), insertEdges(s.Edge, [2]int{1, 2})...))
	assert.True(t, dm.IsEmpty())

	assert.Equal(t, [][]zset.Entry{{{Value: value.T(1, 2), Weight: 1}}}, edgeDeltas)
	assert.Equal(t, []value.Value{value.T(1, 2)}, snapshot(t, e, s.Edge))
}

func TestApplyTransaction_CancelledContext(t *testing.T) {
	e, s := buildSCC(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.ApplyTransaction(ctx, insertEdges(s.Edge, [2]int{1, 2}))

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, snapshot(t, e, s.Edge))
}

func TestApplyTransaction_StateReturnsToIdle(t *testing.T) {
	e, s := buildSCC(t)
	assert.Equal(t, "idle", e.State().String())

	apply(t, e, insertEdges(s.Edge, [2]int{1, 2}, [2]int{2, 1}))

	assert.Equal(t, State{Phase: Idle}, e.State())
}

func TestUpdateKind_String(t *testing.T) {
	assert.Equal(t, "insert", InsertKind.String())
	assert.Equal(t, "delete", DeleteValueKind.String())
	assert.Equal(t, "update(9)", UpdateKind(9).String())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "applying(2)", State{Phase: Applying, Stratum: 2}.String())
	assert.Equal(t, "iterating(1, round=3)", State{Phase: Iterating, Stratum: 1, Round: 3}.String())
}

func TestApplyTransaction_NormalizesStringsAcrossArrangements(t *testing.T) {
	nameSchema := value.Schema{{Name: "name", Kind: value.KindString}}
	b := program.NewBuilder("names")
	names := b.Input("Name", nameSchema)
	visits := b.Input("Visit", nameSchema)
	byName := b.Arrange("Name_by_name", names, arrangement.Map, func(row value.Value) (value.Value, value.Value, bool) {
		return row.(value.Tuple)[0], row, true
	}, program.Queryable())
	known := b.Derived("Known", nameSchema, program.Output())
	b.Rule("Known(n) :- Visit(n), Name(n)", known, visits, dataflow.Join{
		Arrangement: byName,
		Key:         func(row value.Value) (value.Value, bool) { return row.(value.Tuple)[0], true },
		Combine:     func(left, _, _ value.Value) (value.Value, bool) { return left, true },
	})

	e, err := Build(b.Graph(), WithRetention(true), WithLogger(quietLogger()))
	require.NoError(t, err)
	ctx := context.Background()

	decomposed := value.String("e\u0301")
	composed := value.String("\u00e9")

	apply(t, e, []Update{Insert(names, value.Tuple{decomposed})})
	apply(t, e, []Update{Delete(names, value.Tuple{composed})})

	assert.Empty(t, snapshot(t, e, names))
	for _, key := range []value.Value{decomposed, composed} {
		got, err := e.Lookup(ctx, "Name_by_name", key)
		require.NoError(t, err)
		assert.Empty(t, got)
	}
	assert.Equal(t, 0, e.arrs[byName].Len())

	dm := apply(t, e, []Update{Insert(visits, value.Tuple{composed})})
	assert.Empty(t, dm.Get(known))
}
