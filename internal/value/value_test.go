package value

import (
	"math"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueSealed(t *testing.T) {
	var _ Value = Bool(true)
	var _ Value = Int(42)
	var _ Value = String("x")
	var _ Value = Tuple{Int(1), String("a")}
	var _ Value = Array{Int(1)}
}

func TestCompare_KindOrder(t *testing.T) {
	ordered := []Value{
		Bool(false),
		Bool(true),
		Int(-5),
		Int(0),
		Int(7),
		String("a"),
		String("b"),
		Tuple{},
		Tuple{Int(1)},
		Tuple{Int(1), Int(2)},
		Tuple{Int(2)},
		Array{},
		Array{String("z")},
	}

	for i := range ordered {
		for j := range ordered {
			got := Compare(ordered[i], ordered[j])
			switch {
			case i < j:
				assert.Equal(t, -1, got, "%v vs %v", ordered[i], ordered[j])
			case i > j:
				assert.Equal(t, 1, got, "%v vs %v", ordered[i], ordered[j])
			default:
				assert.Equal(t, 0, got)
			}
		}
	}
}

func TestCompare_SortStable(t *testing.T) {
	vals := []Value{T(2, 1), T(1, 3), T(1, 2), Int(9), String("q")}
	sort.Slice(vals, func(i, j int) bool { return Less(vals[i], vals[j]) })

	assert.Equal(t, []Value{Int(9), String("q"), T(1, 2), T(1, 3), T(2, 1)}, vals)
}

func TestCompare_Nil(t *testing.T) {
	assert.Equal(t, 0, Compare(nil, nil))
	assert.Equal(t, -1, Compare(nil, Bool(false)))
	assert.Equal(t, 1, Compare(Int(0), nil))
}

func TestKey_StructuralEquality(t *testing.T) {
	a := Tuple{Int(1), Tuple{String("x"), Bool(true)}}
	b := Tuple{Int(1), Tuple{String("x"), Bool(true)}}
	c := Tuple{Int(1), Array{String("x"), Bool(true)}}

	assert.Equal(t, Key(a), Key(b))
	assert.NotEqual(t, Key(a), Key(c), "tuple and array must not collide")
	assert.Equal(t, Hash(a), Hash(b))
}

func TestKey_NoScalarCollisions(t *testing.T) {
	vals := []Value{
		Bool(false), Bool(true), Int(0), Int(1), String(""), String("\x00"),
		Tuple{}, Array{}, Tuple{Tuple{}}, Tuple{Int(0)},
	}
	seen := make(map[string]Value)
	for _, v := range vals {
		k := Key(v)
		prev, dup := seen[k]
		require.False(t, dup, "%v collides with %v", v, prev)
		seen[k] = v
	}
}

func TestKey_NFCNormalization(t *testing.T) {
	// "é" precomposed (U+00E9) vs "e" + combining acute (U+0065 U+0301)
	composed := String("\u00e9")
	decomposed := String("e\u0301")

	assert.Equal(t, Key(composed), Key(decomposed))
	assert.Equal(t, composed, NewString("e\u0301"))
}

func TestCompare_AgreesWithKey(t *testing.T) {
	composed := String("\u00e9")
	decomposed := String("e\u0301")

	assert.Equal(t, 0, Compare(composed, decomposed))
	assert.True(t, Equal(T("x", decomposed), T("x", composed)))
	// NFC "é" is 0xC3 0xA9 and sorts after "f" bytewise.
	assert.Equal(t, 1, Compare(decomposed, String("f")))
	assert.Equal(t, 1, Compare(composed, String("f")))
}

func TestShard_Range(t *testing.T) {
	for i := 0; i < 100; i++ {
		s := Shard(Int(int64(i)), 4)
		assert.GreaterOrEqual(t, s, 0)
		assert.Less(t, s, 4)
	}
	assert.Equal(t, 0, Shard(Int(12345), 1))
	assert.Equal(t, 0, Shard(Int(12345), 0))
}

func TestFrom(t *testing.T) {
	v, err := From([]any{1, "a", true, []any{int64(2)}})
	require.NoError(t, err)
	assert.Equal(t, Tuple{Int(1), String("a"), Bool(true), Tuple{Int(2)}}, v)

	_, err = From(1.5)
	assert.Error(t, err)

	_, err = From(nil)
	assert.Error(t, err)
}

func TestFrom_Unsigned(t *testing.T) {
	v, err := From(uint(7))
	require.NoError(t, err)
	assert.Equal(t, Int(7), v)

	v, err = From(uint64(math.MaxInt64))
	require.NoError(t, err)
	assert.Equal(t, Int(math.MaxInt64), v)

	_, err = From(uint64(math.MaxInt64) + 1)
	assert.ErrorContains(t, err, "overflows int64")
}

func TestT_PanicsOnFloat(t *testing.T) {
	assert.Panics(t, func() { T(1.25) })
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		in   string
		want Kind
		err  bool
	}{
		{"int", KindInt, false},
		{"bigint", KindInt, false},
		{"String", KindString, false},
		{"bool", KindBool, false},
		{"tuple", KindTuple, false},
		{"vec", KindArray, false},
		{"float", KindInvalid, true},
		{"widget", KindInvalid, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseKind(tt.in)
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestString(t *testing.T) {
	assert.Equal(t, `(1,"a",[true])`, T(1, "a", Array{Bool(true)}).String())
	assert.Equal(t, "-3", Int(-3).String())
}
