package value

import "strings"

// Format renders a relation row as Name{a,b,...}.
func Format(name string, v Value) string {
	if t, ok := v.(Tuple); ok {
		return name + "{" + joinValues(t) + "}"
	}
	if v == nil {
		return name + "{}"
	}
	return name + "{" + v.String() + "}"
}

// FormatRecord renders a row with field labels: Name{.src = 1, .dest = 2}.
// Falls back to Format when v does not match the schema arity.
func FormatRecord(name string, s Schema, v Value) string {
	t, ok := v.(Tuple)
	if !ok || len(t) != len(s) {
		return Format(name, v)
	}
	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('{')
	for i, f := range s {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('.')
		b.WriteString(f.Name)
		b.WriteString(" = ")
		b.WriteString(t[i].String())
	}
	b.WriteByte('}')
	return b.String()
}
