package graphspec

import (
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/roach88/ddflow/internal/value"
)

// operand is either a column reference (col >= 0) or a literal.
type operand struct {
	col int
	lit value.Value
}

func parseOperand(raw any) (operand, error) {
	if s, ok := raw.(string); ok && strings.HasPrefix(s, "$") {
		n, err := strconv.Atoi(s[1:])
		if err != nil || n < 0 {
			return operand{}, errors.Newf("invalid column reference %q", s)
		}
		return operand{col: n}, nil
	}
	v, err := value.FromJSON(raw)
	if err != nil {
		return operand{}, errors.Wrap(err, "invalid literal")
	}
	return operand{col: -1, lit: v}, nil
}

func parseOperands(raws []any) ([]operand, error) {
	out := make([]operand, len(raws))
	for i, raw := range raws {
		op, err := parseOperand(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "[%d]", i)
		}
		out[i] = op
	}
	return out, nil
}

func (o operand) eval(row value.Tuple) (value.Value, bool) {
	if o.col < 0 {
		return o.lit, true
	}
	if o.col >= len(row) {
		return nil, false
	}
	return row[o.col], true
}

func (o operand) String() string {
	if o.col < 0 {
		return o.lit.String()
	}
	return "$" + strconv.Itoa(o.col)
}

// asRow views a stage row as columns; a non-tuple is a single column.
func asRow(v value.Value) value.Tuple {
	if t, ok := v.(value.Tuple); ok {
		return t
	}
	return value.Tuple{v}
}

// project builds a tuple from ops. No ops means the row is unchanged.
func project(ops []operand, row value.Value) (value.Value, bool) {
	if len(ops) == 0 {
		return row, true
	}
	cols := asRow(row)
	out := make(value.Tuple, len(ops))
	for i, op := range ops {
		v, ok := op.eval(cols)
		if !ok {
			return nil, false
		}
		out[i] = v
	}
	return out, true
}

// key evaluates ops to a single key: the value itself for one operand, a
// tuple otherwise.
func key(ops []operand, row value.Value) (value.Value, bool) {
	if len(ops) == 1 {
		return ops[0].eval(asRow(row))
	}
	return project(ops, row)
}

// concat joins rows column-wise.
func concat(a, b value.Value) value.Tuple {
	left, right := asRow(a), asRow(b)
	out := make(value.Tuple, 0, len(left)+len(right))
	out = append(out, left...)
	return append(out, right...)
}

type compareOp string

const (
	opEq compareOp = "=="
	opNe compareOp = "!="
	opLt compareOp = "<"
	opLe compareOp = "<="
	opGt compareOp = ">"
	opGe compareOp = ">="
)

type condition struct {
	left, right operand
	op          compareOp
}

func parseCondition(c CondDesc) (condition, error) {
	switch compareOp(c.Op) {
	case opEq, opNe, opLt, opLe, opGt, opGe:
	default:
		return condition{}, errors.Newf("unknown operator %q", c.Op)
	}
	left, err := parseOperand(c.Left)
	if err != nil {
		return condition{}, errors.Wrap(err, "left")
	}
	right, err := parseOperand(c.Right)
	if err != nil {
		return condition{}, errors.Wrap(err, "right")
	}
	return condition{left: left, right: right, op: compareOp(c.Op)}, nil
}

// holds compares by the value total order. Missing columns fail.
func (c condition) holds(row value.Tuple) bool {
	l, ok := c.left.eval(row)
	if !ok {
		return false
	}
	r, ok := c.right.eval(row)
	if !ok {
		return false
	}
	cmp := value.Compare(l, r)
	switch c.op {
	case opEq:
		return cmp == 0
	case opNe:
		return cmp != 0
	case opLt:
		return cmp < 0
	case opLe:
		return cmp <= 0
	case opGt:
		return cmp > 0
	default:
		return cmp >= 0
	}
}

func (c condition) String() string {
	return c.left.String() + " " + string(c.op) + " " + c.right.String()
}
