package dataflow

import (
	"fmt"

	"github.com/cockroachdb/errors"

	"github.com/roach88/ddflow/internal/value"
	"github.com/roach88/ddflow/internal/zset"
)

// Reducer folds the members of one group into a single result.
//
// group holds the members with positive weight in ascending value order and
// is never empty. Reporting ok=false suppresses output for the group.
type Reducer interface {
	Reduce(key value.Value, group []zset.Entry) (result value.Value, ok bool)
	String() string
}

// Min yields the smallest member. Ties resolve by the value total order.
type Min struct{}

func (Min) Reduce(_ value.Value, group []zset.Entry) (value.Value, bool) {
	return group[0].Value, true
}

func (Min) String() string { return "min" }

// Max yields the largest member.
type Max struct{}

func (Max) Reduce(_ value.Value, group []zset.Entry) (value.Value, bool) {
	return group[len(group)-1].Value, true
}

func (Max) String() string { return "max" }

// Count yields the number of members, counting multiplicity.
type Count struct{}

func (Count) Reduce(_ value.Value, group []zset.Entry) (value.Value, bool) {
	var n int64
	for _, e := range group {
		n += e.Weight
	}
	return value.Int(n), true
}

func (Count) String() string { return "count" }

// Sum adds Int members weighted by multiplicity. Non-Int members are
// ignored.
type Sum struct{}

func (Sum) Reduce(_ value.Value, group []zset.Entry) (value.Value, bool) {
	var s int64
	for _, e := range group {
		if n, ok := e.Value.(value.Int); ok {
			s += int64(n) * e.Weight
		}
	}
	return value.Int(s), true
}

func (Sum) String() string { return "sum" }

// Nth yields the N-th distinct member (zero-based) in value order. Groups
// with N or fewer members produce no output.
type Nth struct {
	N int
}

func (r Nth) Reduce(_ value.Value, group []zset.Entry) (value.Value, bool) {
	if r.N < 0 || r.N >= len(group) {
		return nil, false
	}
	return group[r.N].Value, true
}

func (r Nth) String() string { return fmt.Sprintf("nth(%d)", r.N) }

// Fold applies Fn over members in value order starting from Init.
type Fold struct {
	Name string
	Init value.Value
	Fn   func(acc, member value.Value, w zset.Weight) value.Value
}

func (r Fold) Reduce(_ value.Value, group []zset.Entry) (value.Value, bool) {
	acc := r.Init
	for _, e := range group {
		acc = r.Fn(acc, e.Value, e.Weight)
	}
	return acc, acc != nil
}

func (r Fold) String() string {
	if r.Name == "" {
		return "fold"
	}
	return "fold(" + r.Name + ")"
}

// ParseReducer resolves a reducer by name. Fold cannot be named; n is used
// by "nth" only.
func ParseReducer(name string, n int) (Reducer, error) {
	switch name {
	case "min":
		return Min{}, nil
	case "max":
		return Max{}, nil
	case "count":
		return Count{}, nil
	case "sum":
		return Sum{}, nil
	case "nth":
		if n < 0 {
			return nil, errors.Newf("nth: index must be >= 0, got %d", n)
		}
		return Nth{N: n}, nil
	default:
		return nil, errors.Newf("unknown reducer %q", name)
	}
}
