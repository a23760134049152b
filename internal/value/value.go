package value

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"golang.org/x/text/unicode/norm"
)

// Kind identifies the dynamic type of a Value.
// Kinds are declared in their total order: Bool < Int < String < Tuple < Array.
type Kind int

const (
	KindInvalid Kind = iota
	KindBool
	KindInt
	KindString
	KindTuple
	KindArray
)

var kindNames = map[Kind]string{
	KindInvalid: "invalid",
	KindBool:    "bool",
	KindInt:     "int",
	KindString:  "string",
	KindTuple:   "tuple",
	KindArray:   "array",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind maps a schema type name to a Kind.
// "float" is rejected explicitly so descriptions get a useful message.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bool", "boolean":
		return KindBool, nil
	case "int", "integer", "bigint":
		return KindInt, nil
	case "string":
		return KindString, nil
	case "tuple":
		return KindTuple, nil
	case "array", "vec", "set":
		return KindArray, nil
	case "float", "double", "number":
		return KindInvalid, errors.Newf("floats are not supported: %q", s)
	default:
		return KindInvalid, errors.Newf("unknown type %q", s)
	}
}

// Value is a sealed interface over the supported record shapes.
// Only Bool, Int, String, Tuple and Array implement it.
type Value interface {
	Kind() Kind
	String() string
	value()
}

// Bool is a boolean value.
type Bool bool

func (Bool) value()     {}
func (Bool) Kind() Kind { return KindBool }

func (b Bool) String() string { return strconv.FormatBool(bool(b)) }

// Int is a signed 64-bit integer value.
type Int int64

func (Int) value()     {}
func (Int) Kind() Kind { return KindInt }

func (i Int) String() string { return strconv.FormatInt(int64(i), 10) }

// String is a text value. Use NewString to get NFC normalization.
type String string

func (String) value()     {}
func (String) Kind() Kind { return KindString }

func (s String) String() string { return strconv.Quote(string(s)) }

// Tuple is an ordered, fixed-arity record. Relation rows are Tuples.
type Tuple []Value

func (Tuple) value()     {}
func (Tuple) Kind() Kind { return KindTuple }

func (t Tuple) String() string { return "(" + joinValues(t) + ")" }

// Array is a nested collection value.
type Array []Value

func (Array) value()     {}
func (Array) Kind() Kind { return KindArray }

func (a Array) String() string { return "[" + joinValues(a) + "]" }

func joinValues(vals []Value) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		if v == nil {
			parts[i] = "<nil>"
			continue
		}
		parts[i] = v.String()
	}
	return strings.Join(parts, ",")
}

// NewString returns a String in Unicode NFC form.
func NewString(s string) String {
	return String(norm.NFC.String(s))
}

// NewTuple builds a Tuple from values.
func NewTuple(vals ...Value) Tuple {
	return Tuple(vals)
}

// NewArray builds an Array from values.
func NewArray(vals ...Value) Array {
	return Array(vals)
}

// From converts a Go scalar, slice or Value into a Value.
// Integers of any width become Int, strings become NFC Strings,
// []any becomes a Tuple. Floats are rejected.
func From(x any) (Value, error) {
	switch v := x.(type) {
	case Value:
		return v, nil
	case bool:
		return Bool(v), nil
	case int:
		return Int(v), nil
	case int8:
		return Int(v), nil
	case int16:
		return Int(v), nil
	case int32:
		return Int(v), nil
	case int64:
		return Int(v), nil
	case uint8:
		return Int(v), nil
	case uint16:
		return Int(v), nil
	case uint32:
		return Int(v), nil
	case uint:
		return fromUint(uint64(v))
	case uint64:
		return fromUint(v)
	case string:
		return NewString(v), nil
	case []any:
		t := make(Tuple, len(v))
		for i, elem := range v {
			ev, err := From(elem)
			if err != nil {
				return nil, errors.Wrapf(err, "element %d", i)
			}
			t[i] = ev
		}
		return t, nil
	case float32, float64:
		return nil, errors.Newf("floats are not supported: %v", v)
	case nil:
		return nil, errors.New("null is not a value")
	default:
		return nil, errors.Newf("unsupported type %T", x)
	}
}

func fromUint(u uint64) (Value, error) {
	if u > math.MaxInt64 {
		return nil, errors.Newf("integer %d overflows int64", u)
	}
	return Int(u), nil
}

// T builds a Tuple from Go values and panics on unsupported input.
// Intended for tests and literal programs.
//
//	value.T(1, "a", true) == Tuple{Int(1), String("a"), Bool(true)}
func T(xs ...any) Tuple {
	t := make(Tuple, len(xs))
	for i, x := range xs {
		v, err := From(x)
		if err != nil {
			panic(err)
		}
		t[i] = v
	}
	return t
}
