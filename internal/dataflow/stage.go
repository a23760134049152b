package dataflow

import (
	"fmt"

	"github.com/roach88/ddflow/internal/value"
)

// ArrID identifies an arrangement within a program.
type ArrID int

// StageKind names a stage type.
type StageKind string

const (
	KindFilterMap StageKind = "filter_map"
	KindJoin      StageKind = "join"
	KindSemijoin  StageKind = "semijoin"
	KindArrange   StageKind = "arrange"
	KindAggregate StageKind = "aggregate"
	KindTransform StageKind = "transform"
)

// Stage is a sealed interface over the supported stage descriptions.
type Stage interface {
	Kind() StageKind
	String() string
	stage()
}

// FilterMap transforms each row; rows for which Fn reports false are
// dropped. A nil Fn passes rows through.
type FilterMap struct {
	Name string
	Fn   func(row value.Value) (value.Value, bool)
}

func (FilterMap) stage()           {}
func (FilterMap) Kind() StageKind  { return KindFilterMap }
func (s FilterMap) String() string { return labelled(KindFilterMap, s.Name) }

// Join matches each row against a Map arrangement on a key.
//
// When Key is nil the incoming row must be an arrangement.Pair produced by
// an Arrange stage; its first element is the key and its second the left
// row. When Combine is nil the output is the concatenation of the left and
// right tuples.
type Join struct {
	Arrangement ArrID
	Key         func(row value.Value) (value.Value, bool)
	Combine     func(left, key, right value.Value) (value.Value, bool)
}

func (Join) stage()           {}
func (Join) Kind() StageKind  { return KindJoin }
func (s Join) String() string { return fmt.Sprintf("join(arr=%d)", s.Arrangement) }

// Semijoin keeps rows whose key is present in a Set arrangement. Weights
// are unchanged. When Combine is nil the left row is emitted as is.
type Semijoin struct {
	Arrangement ArrID
	Key         func(row value.Value) (value.Value, bool)
	Combine     func(left, key value.Value) (value.Value, bool)
}

func (Semijoin) stage()           {}
func (Semijoin) Kind() StageKind  { return KindSemijoin }
func (s Semijoin) String() string { return fmt.Sprintf("semijoin(arr=%d)", s.Arrangement) }

// Arrange re-keys rows into arrangement.Pair(key, val) form for a following
// Join (with nil Key) or Aggregate.
type Arrange struct {
	Key func(row value.Value) (key, val value.Value, ok bool)
}

func (Arrange) stage()          {}
func (Arrange) Kind() StageKind { return KindArrange }
func (Arrange) String() string  { return string(KindArrange) }

// Aggregate groups Pair rows by key and emits one row per non-empty group.
// When Project is nil the output row is the key (flattened when it is a
// Tuple) followed by the reducer result.
type Aggregate struct {
	Reducer Reducer
	Project func(key, result value.Value) (value.Value, bool)
}

func (Aggregate) stage()          {}
func (Aggregate) Kind() StageKind { return KindAggregate }

func (s Aggregate) String() string {
	if s.Reducer == nil {
		return "aggregate(<nil>)"
	}
	return "aggregate(" + s.Reducer.String() + ")"
}

// Transform applies a whole-collection function. After each step Fn is
// recomputed over the integrated set of input rows and the difference from
// its previous result is emitted. The result is treated as a set.
type Transform struct {
	Name string
	Fn   TransformFunc
}

// TransformFunc maps the current input rows, sorted by value, to the
// current output rows.
type TransformFunc func(rows []value.Value) []value.Value

func (Transform) stage()           {}
func (Transform) Kind() StageKind  { return KindTransform }
func (s Transform) String() string { return labelled(KindTransform, s.Name) }

func labelled(k StageKind, name string) string {
	if name == "" {
		return string(k)
	}
	return string(k) + "(" + name + ")"
}

// concat joins two tuples; non-tuple operands count as one column.
func concat(a, b value.Value) value.Tuple {
	out := make(value.Tuple, 0, 4)
	out = appendColumns(out, a)
	return appendColumns(out, b)
}

func appendColumns(dst value.Tuple, v value.Value) value.Tuple {
	if t, ok := v.(value.Tuple); ok {
		return append(dst, t...)
	}
	return append(dst, v)
}

func defaultJoinCombine(left, _, right value.Value) (value.Value, bool) {
	return concat(left, right), true
}

func defaultSemijoinCombine(left, _ value.Value) (value.Value, bool) {
	return left, true
}

func defaultAggregateProject(key, result value.Value) (value.Value, bool) {
	return concat(key, result), true
}
