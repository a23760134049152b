package value

import (
	"fmt"
	"strings"
)

// Field is one named, typed column of a relation schema.
type Field struct {
	Name string
	Kind Kind
}

// Schema is the ordered column list of a relation. Rows of a relation with
// schema s are Tuples of len(s).
type Schema []Field

// Index returns the position of the named field, or -1.
func (s Schema) Index(name string) int {
	for i, f := range s {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// Names returns field names in order.
func (s Schema) Names() []string {
	names := make([]string, len(s))
	for i, f := range s {
		names[i] = f.Name
	}
	return names
}

func (s Schema) String() string {
	parts := make([]string, len(s))
	for i, f := range s {
		parts[i] = f.Name + ": " + f.Kind.String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// DecodeError reports a value that does not fit a schema.
type DecodeError struct {
	Field   string // Field path, e.g. "dest" or "[2]"
	Message string
}

func (e *DecodeError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Conform checks that v is a Tuple matching s field by field.
// Nested Tuple and Array fields are checked for kind only.
func Conform(s Schema, v Value) error {
	t, ok := v.(Tuple)
	if !ok {
		return &DecodeError{Message: fmt.Sprintf("expected tuple, got %s", kindOf(v))}
	}
	if len(t) != len(s) {
		return &DecodeError{Message: fmt.Sprintf("expected %d fields, got %d", len(s), len(t))}
	}
	for i, f := range s {
		if t[i] == nil {
			return &DecodeError{Field: f.Name, Message: "missing value"}
		}
		if t[i].Kind() != f.Kind {
			return &DecodeError{
				Field:   f.Name,
				Message: fmt.Sprintf("expected %s, got %s", f.Kind, t[i].Kind()),
			}
		}
	}
	return nil
}

func kindOf(v Value) Kind {
	if v == nil {
		return KindInvalid
	}
	return v.Kind()
}
