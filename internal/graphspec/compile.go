package graphspec

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue/token"
	"github.com/cockroachdb/errors"

	"github.com/roach88/ddflow/internal/arrangement"
	"github.com/roach88/ddflow/internal/dataflow"
	"github.com/roach88/ddflow/internal/program"
	"github.com/roach88/ddflow/internal/value"
	"github.com/roach88/ddflow/internal/zset"
)

// CompileError reports a description that cannot be resolved. Field is the
// path of the offending element, e.g. "rules[1].stages[0].join".
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func compileErr(field string, err error) *CompileError {
	return &CompileError{Field: field, Message: err.Error()}
}

// Compile resolves names in desc and builds a validated graph. Description
// errors are *CompileError; graph errors are program.ValidationErrors.
func Compile(desc *ProgramDesc) (*program.Graph, error) {
	if desc == nil {
		return nil, &CompileError{Field: "program", Message: "description is nil"}
	}
	c := &compiler{
		b:       program.NewBuilder(desc.Name),
		rels:    make(map[string]program.RelID),
		schemas: make(map[string]value.Schema),
		arrs:    make(map[string]program.ArrID),
	}

	for i, r := range desc.Relations {
		if err := c.relation(r); err != nil {
			return nil, compileErr(fmt.Sprintf("relations[%d]", i), err)
		}
	}
	for i, a := range desc.Arrangements {
		if err := c.arrangement(a); err != nil {
			return nil, compileErr(fmt.Sprintf("arrangements[%d]", i), err)
		}
	}
	for i, r := range desc.Rules {
		if err := c.rule(i, r); err != nil {
			return nil, err
		}
	}
	for i, f := range desc.Facts {
		if err := c.fact(f); err != nil {
			return nil, compileErr(fmt.Sprintf("facts[%d]", i), err)
		}
	}
	return c.b.Build()
}

type compiler struct {
	b       *program.Builder
	rels    map[string]program.RelID
	schemas map[string]value.Schema
	arrs    map[string]program.ArrID
}

func (c *compiler) relation(r RelationDesc) error {
	schema := make(value.Schema, len(r.Fields))
	for i, f := range r.Fields {
		k, err := value.ParseKind(f.Type)
		if err != nil {
			return errors.Wrapf(err, "fields[%d]", i)
		}
		schema[i] = value.Field{Name: f.Name, Kind: k}
	}

	var opts []program.RelationOption
	if r.Distinct {
		opts = append(opts, program.Distinct())
	}
	if r.Output {
		opts = append(opts, program.Output())
	}
	if r.Original != "" {
		opts = append(opts, program.OriginalName(r.Original))
	}

	var id program.RelID
	switch r.Role {
	case "input":
		id = c.b.Input(r.Name, schema, opts...)
	case "derived", "":
		id = c.b.Derived(r.Name, schema, opts...)
	default:
		return errors.Newf("unknown role %q", r.Role)
	}
	// Duplicate names are left for graph validation.
	if _, dup := c.rels[r.Name]; !dup {
		c.rels[r.Name] = id
		c.schemas[r.Name] = schema
	}
	return nil
}

func (c *compiler) arrangement(a ArrangementDesc) error {
	rel, ok := c.rels[a.Relation]
	if !ok {
		return errors.Newf("unknown relation %q", a.Relation)
	}
	kind, err := arrangement.ParseKind(a.Kind)
	if err != nil {
		return err
	}
	schema := c.schemas[a.Relation]
	cols := make([]int, len(a.Key))
	for i, name := range a.Key {
		cols[i] = schema.Index(name)
		if cols[i] < 0 {
			return errors.Newf("relation %s has no field %q", a.Relation, name)
		}
	}

	var opts []program.ArrangementOption
	if a.Queryable {
		opts = append(opts, program.Queryable())
	}
	id := c.b.Arrange(a.Name, rel, kind, fieldKey(cols), opts...)
	if _, dup := c.arrs[a.Name]; !dup {
		c.arrs[a.Name] = id
	}
	return nil
}

// fieldKey arranges rows by the given columns, keeping the row as value.
func fieldKey(cols []int) arrangement.KeyFunc {
	return func(row value.Value) (value.Value, value.Value, bool) {
		t, ok := row.(value.Tuple)
		if !ok {
			return nil, nil, false
		}
		switch len(cols) {
		case 0:
			return t, t, true
		case 1:
			if cols[0] >= len(t) {
				return nil, nil, false
			}
			return t[cols[0]], t, true
		}
		k := make(value.Tuple, len(cols))
		for i, col := range cols {
			if col >= len(t) {
				return nil, nil, false
			}
			k[i] = t[col]
		}
		return k, t, true
	}
}

func (c *compiler) rule(i int, r RuleDesc) error {
	field := fmt.Sprintf("rules[%d]", i)
	target, ok := c.rels[r.Target]
	if !ok {
		return compileErr(field, errors.Newf("unknown target relation %q", r.Target))
	}
	source, ok := c.rels[r.Source]
	if !ok {
		return compileErr(field, errors.Newf("unknown source relation %q", r.Source))
	}

	stages := make([]dataflow.Stage, 0, len(r.Stages))
	for j, sd := range r.Stages {
		s, kind, err := c.stage(sd)
		if err != nil {
			sf := fmt.Sprintf("%s.stages[%d]", field, j)
			if kind != "" {
				sf += "." + kind
			}
			return compileErr(sf, err)
		}
		stages = append(stages, s)
	}

	desc := r.Description
	if desc == "" {
		desc = r.Target + " :- " + r.Source
	}
	c.b.Rule(desc, target, source, stages...)
	return nil
}

func (c *compiler) stage(sd StageDesc) (dataflow.Stage, string, error) {
	var set []string
	if sd.FilterMap != nil {
		set = append(set, string(dataflow.KindFilterMap))
	}
	if sd.Join != nil {
		set = append(set, string(dataflow.KindJoin))
	}
	if sd.Semijoin != nil {
		set = append(set, string(dataflow.KindSemijoin))
	}
	if sd.Arrange != nil {
		set = append(set, string(dataflow.KindArrange))
	}
	if sd.Aggregate != nil {
		set = append(set, string(dataflow.KindAggregate))
	}
	if sd.Transform != nil {
		set = append(set, string(dataflow.KindTransform))
	}
	if len(set) != 1 {
		return nil, "", errors.Newf("stage must set exactly one of filter_map, join, semijoin, arrange, aggregate, transform (got %s)",
			strings.Join(set, ", "))
	}
	kind := set[0]

	var (
		s   dataflow.Stage
		err error
	)
	switch {
	case sd.FilterMap != nil:
		s, err = compileFilterMap(sd.FilterMap)
	case sd.Join != nil:
		s, err = c.compileJoin(sd.Join)
	case sd.Semijoin != nil:
		s, err = c.compileSemijoin(sd.Semijoin)
	case sd.Arrange != nil:
		s, err = compileArrange(sd.Arrange)
	case sd.Transform != nil:
		s, err = compileTransform(sd.Transform)
	default:
		s, err = compileAggregate(sd.Aggregate)
	}
	return s, kind, err
}

func compileFilterMap(d *FilterMapDesc) (dataflow.Stage, error) {
	conds := make([]condition, len(d.Where))
	names := make([]string, len(d.Where))
	for i, w := range d.Where {
		cond, err := parseCondition(w)
		if err != nil {
			return nil, errors.Wrapf(err, "where[%d]", i)
		}
		conds[i] = cond
		names[i] = cond.String()
	}
	proj, err := parseOperands(d.Project)
	if err != nil {
		return nil, errors.Wrap(err, "project")
	}

	return dataflow.FilterMap{
		Name: strings.Join(names, " && "),
		Fn: func(row value.Value) (value.Value, bool) {
			cols := asRow(row)
			for _, cond := range conds {
				if !cond.holds(cols) {
					return nil, false
				}
			}
			return project(proj, row)
		},
	}, nil
}

func (c *compiler) joinParts(d *JoinDesc) (program.ArrID, func(value.Value) (value.Value, bool), []operand, error) {
	arr, ok := c.arrs[d.Arrangement]
	if !ok {
		return 0, nil, nil, errors.Newf("unknown arrangement %q", d.Arrangement)
	}
	keyOps, err := parseOperands(d.Key)
	if err != nil {
		return 0, nil, nil, errors.Wrap(err, "key")
	}
	proj, err := parseOperands(d.Project)
	if err != nil {
		return 0, nil, nil, errors.Wrap(err, "project")
	}
	var keyFn func(value.Value) (value.Value, bool)
	if len(keyOps) > 0 {
		keyFn = func(row value.Value) (value.Value, bool) { return key(keyOps, row) }
	}
	return arr, keyFn, proj, nil
}

func (c *compiler) compileJoin(d *JoinDesc) (dataflow.Stage, error) {
	arr, keyFn, proj, err := c.joinParts(d)
	if err != nil {
		return nil, err
	}
	return dataflow.Join{
		Arrangement: arr,
		Key:         keyFn,
		Combine: func(left, _, right value.Value) (value.Value, bool) {
			return project(proj, concat(left, right))
		},
	}, nil
}

func (c *compiler) compileSemijoin(d *JoinDesc) (dataflow.Stage, error) {
	arr, keyFn, proj, err := c.joinParts(d)
	if err != nil {
		return nil, err
	}
	return dataflow.Semijoin{
		Arrangement: arr,
		Key:         keyFn,
		Combine: func(left, _ value.Value) (value.Value, bool) {
			return project(proj, left)
		},
	}, nil
}

func compileArrange(d *ArrangeDesc) (dataflow.Stage, error) {
	if len(d.Key) == 0 {
		return nil, errors.New("key is required")
	}
	keyOps, err := parseOperands(d.Key)
	if err != nil {
		return nil, errors.Wrap(err, "key")
	}
	valOps, err := parseOperands(d.Value)
	if err != nil {
		return nil, errors.Wrap(err, "value")
	}
	return dataflow.Arrange{Key: func(row value.Value) (value.Value, value.Value, bool) {
		k, ok := key(keyOps, row)
		if !ok {
			return nil, nil, false
		}
		var v value.Value = row
		if len(valOps) > 0 {
			if v, ok = key(valOps, row); !ok {
				return nil, nil, false
			}
		}
		return k, v, true
	}}, nil
}

func compileAggregate(d *AggregateDesc) (dataflow.Stage, error) {
	r, err := dataflow.ParseReducer(d.Reducer, d.N)
	if err != nil {
		return nil, err
	}
	if d.Column != nil {
		if *d.Column < 0 {
			return nil, errors.Newf("column must be >= 0, got %d", *d.Column)
		}
		r = columnReducer{inner: r, col: *d.Column}
	}
	proj, err := parseOperands(d.Project)
	if err != nil {
		return nil, errors.Wrap(err, "project")
	}
	return dataflow.Aggregate{
		Reducer: r,
		Project: func(k, result value.Value) (value.Value, bool) {
			return project(proj, concat(k, result))
		},
	}, nil
}

// columnReducer reduces one column of each group member.
type columnReducer struct {
	inner dataflow.Reducer
	col   int
}

func (r columnReducer) Reduce(k value.Value, group []zset.Entry) (value.Value, bool) {
	cols := zset.New()
	for _, e := range group {
		row := asRow(e.Value)
		if r.col >= len(row) {
			continue
		}
		cols.Add(row[r.col], e.Weight)
	}
	members := cols.Entries()
	if len(members) == 0 {
		return nil, false
	}
	return r.inner.Reduce(k, members)
}

func (r columnReducer) String() string {
	return fmt.Sprintf("%s($%d)", r.inner, r.col)
}

func compileTransform(d *TransformDesc) (dataflow.Stage, error) {
	if d.Function != "scc" {
		return nil, errors.Newf("unknown function %q", d.Function)
	}
	ops, err := parseOperands(d.Edge)
	if err != nil {
		return nil, errors.Wrap(err, "edge")
	}
	if len(ops) != 2 {
		return nil, errors.Newf("scc edge needs 2 operands, got %d", len(ops))
	}
	return dataflow.Transform{
		Name: d.Function,
		Fn: dataflow.SCCLabels(func(row value.Value) (value.Value, value.Value, bool) {
			cols := asRow(row)
			src, ok := ops[0].eval(cols)
			if !ok {
				return nil, nil, false
			}
			dst, ok := ops[1].eval(cols)
			return src, dst, ok
		}),
	}, nil
}

func (c *compiler) fact(f FactDesc) error {
	rel, ok := c.rels[f.Relation]
	if !ok {
		return errors.Newf("unknown relation %q", f.Relation)
	}
	schema := c.schemas[f.Relation]
	for i, raw := range f.Values {
		t, err := value.DecodeAny(schema, raw)
		if err != nil {
			return errors.Wrapf(err, "values[%d]", i)
		}
		c.b.Fact(rel, t)
	}
	return nil
}
