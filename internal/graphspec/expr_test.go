package graphspec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ddflow/internal/dataflow"
	"github.com/roach88/ddflow/internal/value"
	"github.com/roach88/ddflow/internal/zset"
)

func TestParseOperand(t *testing.T) {
	op, err := parseOperand("$2")
	require.NoError(t, err)
	assert.Equal(t, operand{col: 2}, op)

	op, err = parseOperand("plain")
	require.NoError(t, err)
	assert.Equal(t, operand{col: -1, lit: value.String("plain")}, op)

	op, err = parseOperand(7)
	require.NoError(t, err)
	assert.Equal(t, operand{col: -1, lit: value.Int(7)}, op)

	for _, bad := range []any{"$", "$-1", "$a", 1.5, nil} {
		_, err := parseOperand(bad)
		assert.Error(t, err, "%v", bad)
	}
}

func TestCondition_Holds(t *testing.T) {
	row := value.T(3, "x")
	tests := []struct {
		cond CondDesc
		want bool
	}{
		{CondDesc{Left: "$0", Op: "==", Right: 3}, true},
		{CondDesc{Left: "$0", Op: "!=", Right: 3}, false},
		{CondDesc{Left: "$0", Op: "<", Right: 4}, true},
		{CondDesc{Left: "$0", Op: "<=", Right: 3}, true},
		{CondDesc{Left: "$0", Op: ">", Right: 3}, false},
		{CondDesc{Left: "$0", Op: ">=", Right: 2}, true},
		{CondDesc{Left: "$1", Op: "==", Right: "x"}, true},
		{CondDesc{Left: "$5", Op: "==", Right: 3}, false},
	}
	for _, tt := range tests {
		c, err := parseCondition(tt.cond)
		require.NoError(t, err)
		assert.Equal(t, tt.want, c.holds(row), c.String())
	}
}

func TestKeyAndProject(t *testing.T) {
	row := value.T(1, 2, 3)
	ops, err := parseOperands([]any{"$2", "$0"})
	require.NoError(t, err)

	got, ok := project(ops, row)
	require.True(t, ok)
	assert.Equal(t, value.T(3, 1), got)

	k, ok := key(ops[:1], row)
	require.True(t, ok)
	assert.Equal(t, value.Int(3), k)

	same, ok := project(nil, row)
	require.True(t, ok)
	assert.Equal(t, row, same)

	_, ok = project([]operand{{col: 9}}, row)
	assert.False(t, ok)

	assert.Equal(t, value.T(1, 2, 3), concat(value.T(1), value.T(2, 3)))
	assert.Equal(t, value.T(1, 2), concat(value.Int(1), value.Int(2)))
}

func TestColumnReducer(t *testing.T) {
	r := columnReducer{inner: dataflow.Min{}, col: 1}
	got, ok := r.Reduce(value.Int(0), []zset.Entry{
		{Value: value.T(1, 9), Weight: 1},
		{Value: value.T(2, 4), Weight: 1},
	})
	require.True(t, ok)
	assert.Equal(t, value.Int(4), got)
	assert.Equal(t, "min($1)", r.String())

	_, ok = r.Reduce(value.Int(0), []zset.Entry{{Value: value.T(1), Weight: 1}})
	assert.False(t, ok)
}
