package zset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ddflow/internal/value"
)

func TestAdd_CancelsToZero(t *testing.T) {
	z := New()
	assert.Equal(t, Weight(1), z.Add(value.T(1, 2), 1))
	assert.Equal(t, Weight(3), z.Add(value.T(1, 2), 2))
	assert.Equal(t, Weight(0), z.Add(value.T(1, 2), -3))

	assert.True(t, z.IsEmpty())
	assert.False(t, z.Contains(value.T(1, 2)))
}

func TestAdd_ZeroWeightIsNoop(t *testing.T) {
	z := New()
	z.Add(value.Int(1), 0)
	assert.Equal(t, 0, z.Len())
}

func TestMerge(t *testing.T) {
	a := FromValues(value.Int(1), value.Int(2))
	b := FromEntries(Entry{value.Int(2), -1}, Entry{value.Int(3), 4})

	a.Merge(b)

	assert.Equal(t, []Entry{{value.Int(1), 1}, {value.Int(3), 4}}, a.Entries())
}

func TestMergeScaled(t *testing.T) {
	a := FromValues(value.Int(1))
	a.MergeScaled(FromValues(value.Int(1), value.Int(2)), -2)

	assert.Equal(t, []Entry{{value.Int(1), -1}, {value.Int(2), -2}}, a.Entries())
	assert.True(t, a.HasNegative())
}

func TestNegate_Inverse(t *testing.T) {
	z := FromEntries(Entry{value.T(1), 2}, Entry{value.T(2), -1})
	sum := z.Clone().Merge(z.Negate())

	assert.True(t, sum.IsEmpty())
	assert.Equal(t, Weight(2), z.Weight(value.T(1)), "negate must not mutate receiver")
}

func TestDistinct(t *testing.T) {
	z := FromEntries(Entry{value.Int(1), 3}, Entry{value.Int(2), -1}, Entry{value.Int(3), 1})

	assert.Equal(t, []Entry{{value.Int(1), 1}, {value.Int(3), 1}}, z.Distinct().Entries())
}

func TestDiff(t *testing.T) {
	before := FromValues(value.Int(1), value.Int(2))
	after := FromValues(value.Int(2), value.Int(3))

	assert.Equal(t, []Entry{{value.Int(1), -1}, {value.Int(3), 1}}, Diff(before, after).Entries())
}

func TestEntries_Sorted(t *testing.T) {
	z := FromValues(value.T(3, 1), value.T(1, 2), value.String("x"), value.Int(9))

	assert.Equal(t, []value.Value{value.Int(9), value.String("x"), value.T(1, 2), value.T(3, 1)}, z.Values())
}

func TestEqual(t *testing.T) {
	a := FromValues(value.Int(1), value.Int(1))
	b := FromEntries(Entry{value.Int(1), 2})
	c := FromValues(value.Int(1))

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.True(t, New().Equal(nil))
}

func TestNilSafety(t *testing.T) {
	var z *ZSet
	assert.True(t, z.IsEmpty())
	assert.False(t, z.HasNegative())
	assert.Empty(t, z.Entries())
	require.NotNil(t, z.Clone())
	assert.True(t, New().Merge(nil).IsEmpty())
}

func TestString(t *testing.T) {
	z := FromEntries(Entry{value.T(2, 3), -1}, Entry{value.T(1, 2), 1})
	assert.Equal(t, "{(1,2):+1, (2,3):-1}", z.String())
}
