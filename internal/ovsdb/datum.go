package ovsdb

import (
	"encoding/json"
	"slices"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/roach88/ddflow/internal/value"
)

// UUIDColumn names the row-identity column.
const UUIDColumn = "_uuid"

// fromDatum converts an OVSDB datum into a value of kind k.
func fromDatum(k value.Kind, raw any) (value.Value, error) {
	if pair, ok := raw.([]any); ok && len(pair) == 2 {
		if tag, ok := pair[0].(string); ok {
			switch tag {
			case "uuid", "named-uuid":
				return fromDatum(k, pair[1])
			case "set":
				elems, ok := pair[1].([]any)
				if !ok {
					return nil, errors.New("set: expected array of atoms")
				}
				return fromSet(k, elems)
			case "map":
				pairs, ok := pair[1].([]any)
				if !ok {
					return nil, errors.New("map: expected array of pairs")
				}
				return fromMap(k, pairs)
			}
		}
	}

	v, err := value.FromJSON(raw)
	if err != nil {
		return nil, err
	}
	// A single atom is a one-element set.
	if k == value.KindArray && v.Kind() != value.KindArray {
		v = value.NewArray(v)
	}
	if v.Kind() != k {
		return nil, errors.Newf("expected %s, got %s", k, v.Kind())
	}
	return v, nil
}

func fromSet(k value.Kind, elems []any) (value.Value, error) {
	atoms := make([]value.Value, len(elems))
	for i, e := range elems {
		a, err := atom(e)
		if err != nil {
			return nil, errors.Wrapf(err, "set[%d]", i)
		}
		atoms[i] = a
	}
	switch {
	case k == value.KindArray:
		return value.NewArray(canonical(atoms)...), nil
	case len(atoms) == 1 && atoms[0].Kind() == k:
		// Optional scalar column.
		return atoms[0], nil
	case len(atoms) == 0:
		return zero(k), nil
	default:
		return nil, errors.Newf("set of %d elements does not fit %s", len(atoms), k)
	}
}

func fromMap(k value.Kind, pairs []any) (value.Value, error) {
	if k != value.KindTuple {
		return nil, errors.Newf("map does not fit %s", k)
	}
	out := make(value.Tuple, len(pairs))
	for i, p := range pairs {
		kv, ok := p.([]any)
		if !ok || len(kv) != 2 {
			return nil, errors.Newf("map[%d]: expected [key, value]", i)
		}
		key, err := atom(kv[0])
		if err != nil {
			return nil, errors.Wrapf(err, "map[%d] key", i)
		}
		val, err := atom(kv[1])
		if err != nil {
			return nil, errors.Wrapf(err, "map[%d] value", i)
		}
		out[i] = value.Tuple{key, val}
	}
	slices.SortFunc(out, func(a, b value.Value) int {
		return value.Compare(a.(value.Tuple)[0], b.(value.Tuple)[0])
	})
	for i := 1; i < len(out); i++ {
		if value.Equal(out[i-1].(value.Tuple)[0], out[i].(value.Tuple)[0]) {
			return nil, errors.Newf("map: duplicate key %s", out[i].(value.Tuple)[0])
		}
	}
	return out, nil
}

// canonical sorts set members in value order and drops duplicates, so
// equal OVSDB sets become equal values whatever their JSON order.
func canonical(atoms []value.Value) []value.Value {
	slices.SortFunc(atoms, value.Compare)
	return slices.CompactFunc(atoms, value.Equal)
}

// atom converts a scalar or ["uuid", s] element.
func atom(raw any) (value.Value, error) {
	if pair, ok := raw.([]any); ok && len(pair) == 2 {
		if tag, _ := pair[0].(string); tag == "uuid" || tag == "named-uuid" {
			raw = pair[1]
		}
	}
	v, err := value.FromJSON(raw)
	if err != nil {
		return nil, err
	}
	switch v.Kind() {
	case value.KindBool, value.KindInt, value.KindString:
		return v, nil
	default:
		return nil, errors.Newf("expected atom, got %s", v.Kind())
	}
}

// zero is the value of a column absent from a row.
func zero(k value.Kind) value.Value {
	switch k {
	case value.KindBool:
		return value.Bool(false)
	case value.KindInt:
		return value.Int(0)
	case value.KindString:
		return value.String("")
	case value.KindTuple:
		return value.Tuple{}
	default:
		return value.Array{}
	}
}

// toDatum renders a column value in OVSDB notation.
func toDatum(v value.Value) (any, error) {
	switch x := v.(type) {
	case value.Bool:
		return bool(x), nil
	case value.Int:
		return int64(x), nil
	case value.String:
		return string(x), nil
	case value.Array:
		elems := make([]any, len(x))
		for i, e := range x {
			d, err := toDatum(e)
			if err != nil {
				return nil, err
			}
			elems[i] = d
		}
		return []any{"set", elems}, nil
	case value.Tuple:
		pairs := make([]any, len(x))
		for i, e := range x {
			kv, ok := e.(value.Tuple)
			if !ok || len(kv) != 2 {
				return nil, errors.Newf("map entry %d is not a (key, value) pair", i)
			}
			key, err := toDatum(kv[0])
			if err != nil {
				return nil, err
			}
			val, err := toDatum(kv[1])
			if err != nil {
				return nil, err
			}
			pairs[i] = []any{key, val}
		}
		return []any{"map", pairs}, nil
	default:
		return nil, errors.Newf("unsupported column value %v", v)
	}
}

// uuidName derives an OVSDB <id> from a row UUID.
func uuidName(uuid string) string {
	return "u" + strings.ReplaceAll(uuid, "-", "_")
}

func marshal(op any) (string, error) {
	b, err := json.Marshal(op)
	if err != nil {
		return "", errors.Wrap(err, "marshal operation")
	}
	return string(b), nil
}
