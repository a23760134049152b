package program_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ddflow/internal/arrangement"
	"github.com/roach88/ddflow/internal/dataflow"
	"github.com/roach88/ddflow/internal/program"
	"github.com/roach88/ddflow/internal/testutil"
	"github.com/roach88/ddflow/internal/value"
)

var pairSchema = testutil.EdgeSchema

func byFirst(row value.Value) (value.Value, value.Value, bool) {
	return row.(value.Tuple)[0], row, true
}

func codes(errs []program.ValidationError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Code
	}
	return out
}

// =============================================================================
// Validate
// =============================================================================

func TestValidate_SCCProgramIsClean(t *testing.T) {
	assert.Empty(t, program.Validate(testutil.SCCProgram().Graph))
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	b := program.NewBuilder("bad")
	in := b.Input("In", pairSchema)
	b.Input("In", pairSchema)
	out := b.Derived("Out", pairSchema)
	set := b.Arrange("In_set", in, arrangement.Set, byFirst)
	b.Arrange("", out, arrangement.Map, nil)

	b.Rule("writes input", in, out)
	b.Rule("join on set", out, in, dataflow.Join{Arrangement: set, Key: func(v value.Value) (value.Value, bool) { return v, true }})
	b.Rule("unknown arrangement", out, in, dataflow.Semijoin{Arrangement: 42})
	b.Rule("unkeyed aggregate", out, in, dataflow.Aggregate{Reducer: dataflow.Min{}})
	b.Rule("unknown source", out, program.RelID(99))
	b.Fact(out, value.T(1, 2))
	b.Fact(in, value.T("x"))

	errs := program.Validate(b.Graph())

	assert.ElementsMatch(t, []string{
		program.ErrDuplicateRelation,
		program.ErrEmptyName,
		program.ErrMissingFunction,
		program.ErrRuleTargetsInput,
		program.ErrArrangementKind,
		program.ErrUnknownArrangement,
		program.ErrUnkeyedInput,
		program.ErrUnkeyedInput,
		program.ErrUnknownRelation,
		program.ErrFactOnDerived,
		program.ErrFactSchema,
	}, codes(errs))
}

func TestValidate_FoldNeedsFunction(t *testing.T) {
	b := program.NewBuilder("fold")
	in := b.Input("In", pairSchema)
	out := b.Derived("Out", pairSchema)
	b.Rule("fold", out, in,
		dataflow.Arrange{Key: byFirst},
		dataflow.Aggregate{Reducer: dataflow.Fold{Name: "f"}},
	)

	errs := program.Validate(b.Graph())
	require.Len(t, errs, 1)
	assert.Equal(t, program.ErrMissingFunction, errs[0].Code)
	assert.Equal(t, "rules[0].stages[1].reducer", errs[0].Field)
}

func TestValidate_TransformNeedsFunction(t *testing.T) {
	b := program.NewBuilder("transform")
	in := b.Input("In", pairSchema)
	out := b.Derived("Out", pairSchema)
	b.Rule("transform", out, in, dataflow.Transform{Name: "scc"})

	errs := program.Validate(b.Graph())
	require.Len(t, errs, 1)
	assert.Equal(t, program.ErrMissingFunction, errs[0].Code)
	assert.Equal(t, "rules[0].stages[0].fn", errs[0].Field)
}

func TestValidationError_Format(t *testing.T) {
	err := program.ValidationError{Field: "rules[0].target", Message: "boom", Code: "G112"}
	assert.Equal(t, "[G112] rules[0].target: boom", err.Error())
}

// =============================================================================
// Stratify
// =============================================================================

func TestStratify_SCCProgramOrder(t *testing.T) {
	s := testutil.SCCProgram()
	plan, errs := program.Stratify(s.Graph)
	require.Empty(t, errs)

	require.Len(t, plan.Strata, 3)
	assert.Equal(t, []program.RelID{s.Edge}, plan.Strata[0].Relations)
	assert.Equal(t, []program.RelID{s.Connected}, plan.Strata[1].Relations)
	assert.Equal(t, []program.RelID{s.StronglyConnected}, plan.Strata[2].Relations)

	assert.False(t, plan.Strata[0].Recursive)
	assert.True(t, plan.Strata[1].Recursive, "Connected depends on itself")
	assert.Equal(t, []int{0, 1}, plan.Strata[1].Rules)
	assert.Equal(t, []int{2}, plan.Strata[2].Rules)
	assert.Empty(t, plan.Strata[0].Rules)
}

func TestStratify_MutualRecursion(t *testing.T) {
	b := program.NewBuilder("mutual")
	base := b.Input("Base", pairSchema)
	even := b.Derived("Even", pairSchema, program.Distinct())
	odd := b.Derived("Odd", pairSchema, program.Distinct())
	report := b.Derived("Report", pairSchema)

	b.Rule("Even :- Base", even, base)
	b.Rule("Odd :- Even", odd, even)
	b.Rule("Even :- Odd", even, odd)
	b.Rule("Report :- Odd", report, odd)

	plan, errs := program.Stratify(b.Graph())
	require.Empty(t, errs)

	require.Len(t, plan.Strata, 3)
	assert.Equal(t, []program.RelID{even, odd}, plan.Strata[1].Relations)
	assert.True(t, plan.Strata[1].Recursive)
	assert.Equal(t, plan.StratumOf[even], plan.StratumOf[odd])
	assert.Less(t, plan.StratumOf[base], plan.StratumOf[even])
	assert.Less(t, plan.StratumOf[odd], plan.StratumOf[report])
}

func TestStratify_DeclarationOrderBreaksTies(t *testing.T) {
	b := program.NewBuilder("ties")
	x := b.Derived("X", pairSchema)
	a := b.Input("A", pairSchema)
	y := b.Input("Y", pairSchema)
	b.Rule("X :- Y", x, y)

	plan, errs := program.Stratify(b.Graph())
	require.Empty(t, errs)

	// A and Y are both ready first; A has the lower id.
	assert.Equal(t, []program.RelID{a}, plan.Strata[0].Relations)
	assert.Equal(t, []program.RelID{y}, plan.Strata[1].Relations)
	assert.Equal(t, []program.RelID{x}, plan.Strata[2].Relations)
}

func TestStratify_RejectsRecursiveAggregate(t *testing.T) {
	b := program.NewBuilder("agg-loop")
	in := b.Input("In", pairSchema)
	loop := b.Derived("Loop", pairSchema)
	b.Rule("Loop :- In", loop, in)
	b.Rule("Loop :- min over Loop", loop, loop,
		dataflow.Arrange{Key: byFirst},
		dataflow.Aggregate{Reducer: dataflow.Min{}},
	)

	_, errs := program.Stratify(b.Graph())
	require.Len(t, errs, 1)
	assert.Equal(t, program.ErrRecursiveAggregate, errs[0].Code)
}

func TestStratify_RejectsRecursiveTransform(t *testing.T) {
	b := program.NewBuilder("transform-loop")
	in := b.Input("In", pairSchema)
	loop := b.Derived("Loop", pairSchema)
	b.Rule("Loop :- In", loop, in)
	b.Rule("Loop = scc(Loop)", loop, loop, dataflow.Transform{
		Name: "scc",
		Fn:   func(rows []value.Value) []value.Value { return rows },
	})

	_, errs := program.Stratify(b.Graph())
	require.Len(t, errs, 1)
	assert.Equal(t, program.ErrRecursiveTransform, errs[0].Code)
	assert.Contains(t, errs[0].Message, "transform in recursive stratum")
}

func TestStratify_TransformGetsOwnStratum(t *testing.T) {
	b := program.NewBuilder("transformer")
	edge := b.Input("Edge", pairSchema)
	scc := b.Derived("SCC", pairSchema, program.Output())
	b.Rule("SCC = scc(Edge)", scc, edge, dataflow.Transform{
		Name: "scc",
		Fn:   func(rows []value.Value) []value.Value { return rows },
	})

	plan, errs := program.Stratify(b.Graph())
	require.Empty(t, errs)
	require.Len(t, plan.Strata, 2)
	assert.Equal(t, []program.RelID{scc}, plan.Strata[1].Relations)
	assert.False(t, plan.Strata[1].Recursive)
}

// =============================================================================
// Builder
// =============================================================================

func TestBuilder_BuildReturnsValidationErrors(t *testing.T) {
	b := program.NewBuilder("bad")
	in := b.Input("In", pairSchema)
	b.Rule("writes input", in, in)

	_, err := b.Build()
	require.Error(t, err)

	var verrs program.ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.Equal(t, []string{program.ErrRuleTargetsInput}, codes(verrs))
}

func TestBuilder_AssignsDenseIDs(t *testing.T) {
	b := program.NewBuilder("ids")
	a := b.Input("A", pairSchema, program.Output())
	c := b.Derived("C", pairSchema, program.Distinct())
	arr := b.Arrange("A_by_first", a, arrangement.Map, byFirst, program.Queryable())

	g, err := b.Build()
	require.NoError(t, err)

	assert.Equal(t, program.RelID(0), a)
	assert.Equal(t, program.RelID(1), c)
	assert.Equal(t, program.ArrID(0), arr)

	rel, ok := g.RelationByName("A")
	require.True(t, ok)
	assert.True(t, rel.Output)
	assert.Equal(t, program.Input, rel.Role)

	got, ok := g.ArrangementByName("A_by_first")
	require.True(t, ok)
	assert.True(t, got.Queryable)

	_, ok = g.Relation(7)
	assert.False(t, ok)
}
