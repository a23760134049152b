package value

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

// MarshalJSON encodes Bool, Int and String as JSON scalars and Tuple and
// Array as JSON arrays.
func MarshalJSON(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeJSON(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeJSON(buf *bytes.Buffer, v Value) error {
	switch x := v.(type) {
	case Bool, Int:
		buf.WriteString(x.String())
	case String:
		b, err := json.Marshal(string(x))
		if err != nil {
			return errors.Wrap(err, "marshal string")
		}
		buf.Write(b)
	case Tuple:
		return writeJSONSeq(buf, x)
	case Array:
		return writeJSONSeq(buf, x)
	default:
		return errors.Newf("cannot marshal %T", v)
	}
	return nil
}

func writeJSONSeq(buf *bytes.Buffer, vals []Value) error {
	buf.WriteByte('[')
	for i, elem := range vals {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeJSON(buf, elem); err != nil {
			return errors.Wrapf(err, "[%d]", i)
		}
	}
	buf.WriteByte(']')
	return nil
}

// MarshalJSON implements json.Marshaler.
func (t Tuple) MarshalJSON() ([]byte, error) { return MarshalJSON(t) }

// MarshalJSON implements json.Marshaler.
func (a Array) MarshalJSON() ([]byte, error) { return MarshalJSON(a) }

// Decode parses a JSON row against schema s. The row may be a JSON array
// (positional) or a JSON object keyed by field name. Failures are
// *DecodeError.
func Decode(s Schema, data []byte) (Tuple, error) {
	raw, err := decodeRaw(data)
	if err != nil {
		return nil, &DecodeError{Message: err.Error()}
	}
	return DecodeAny(s, raw)
}

// DecodeAny converts an already-unmarshaled JSON row (from a decoder using
// UseNumber, or YAML) against schema s.
func DecodeAny(s Schema, raw any) (Tuple, error) {
	switch row := raw.(type) {
	case []any:
		if len(row) != len(s) {
			return nil, &DecodeError{Message: fmt.Sprintf("expected %d fields, got %d", len(s), len(row))}
		}
		t := make(Tuple, len(s))
		for i, f := range s {
			v, err := decodeField(f, row[i])
			if err != nil {
				return nil, err
			}
			t[i] = v
		}
		return t, nil
	case map[string]any:
		t := make(Tuple, len(s))
		for i, f := range s {
			elem, ok := row[f.Name]
			if !ok {
				return nil, &DecodeError{Field: f.Name, Message: "missing field"}
			}
			v, err := decodeField(f, elem)
			if err != nil {
				return nil, err
			}
			t[i] = v
		}
		for name := range row {
			if s.Index(name) < 0 {
				return nil, &DecodeError{Field: name, Message: "unknown field"}
			}
		}
		return t, nil
	default:
		return nil, &DecodeError{Message: fmt.Sprintf("expected array or object row, got %T", raw)}
	}
}

func decodeField(f Field, raw any) (Value, error) {
	v, err := FromJSON(raw)
	if err != nil {
		return nil, &DecodeError{Field: f.Name, Message: err.Error()}
	}
	// Arrays of scalars decode as Tuple; a field typed array accepts them.
	if f.Kind == KindArray {
		if t, ok := v.(Tuple); ok {
			v = Array(t)
		}
	}
	if v.Kind() != f.Kind {
		return nil, &DecodeError{
			Field:   f.Name,
			Message: fmt.Sprintf("expected %s, got %s", f.Kind, v.Kind()),
		}
	}
	return v, nil
}

// FromJSON converts a generic JSON value into a Value. JSON arrays become
// Tuples; objects, null and non-integral numbers are rejected.
func FromJSON(raw any) (Value, error) {
	switch x := raw.(type) {
	case nil:
		return nil, errors.New("null is not a value")
	case bool:
		return Bool(x), nil
	case string:
		return NewString(x), nil
	case json.Number:
		s := string(x)
		if strings.ContainsAny(s, ".eE") {
			return nil, errors.Newf("floats are not supported: %s", s)
		}
		n, err := x.Int64()
		if err != nil {
			return nil, errors.Newf("number out of int64 range: %s", s)
		}
		return Int(n), nil
	case float64:
		if x != float64(int64(x)) {
			return nil, errors.Newf("floats are not supported: %v", x)
		}
		return Int(int64(x)), nil
	case int:
		return Int(x), nil
	case int64:
		return Int(x), nil
	case []any:
		t := make(Tuple, len(x))
		for i, elem := range x {
			v, err := FromJSON(elem)
			if err != nil {
				return nil, errors.Wrapf(err, "[%d]", i)
			}
			t[i] = v
		}
		return t, nil
	case map[string]any:
		return nil, errors.New("objects are not supported as field values")
	default:
		return nil, errors.Newf("unsupported JSON type %T", raw)
	}
}

func decodeRaw(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return raw, nil
}
