package program

import (
	"github.com/roach88/ddflow/internal/arrangement"
	"github.com/roach88/ddflow/internal/dataflow"
	"github.com/roach88/ddflow/internal/value"
)

// RelationOption configures a relation declared through a Builder.
type RelationOption func(*Relation)

// Distinct marks a relation as having set semantics.
func Distinct() RelationOption {
	return func(r *Relation) { r.Distinct = true }
}

// Output marks a relation as reported in every DeltaMap.
func Output() RelationOption {
	return func(r *Relation) { r.Output = true }
}

// OriginalName records the external (OVSDB) table a relation mirrors.
func OriginalName(name string) RelationOption {
	return func(r *Relation) { r.Original = name }
}

// ArrangementOption configures an arrangement declared through a Builder.
type ArrangementOption func(*Arrangement)

// Queryable exposes an arrangement to point lookups.
func Queryable() ArrangementOption {
	return func(a *Arrangement) { a.Queryable = true }
}

// Builder assembles a Graph, assigning dense ids in declaration order.
//
// Example:
//
//	b := program.NewBuilder("closure")
//	edge := b.Input("Edge", schema)
//	path := b.Derived("Path", schema, program.Distinct(), program.Output())
//	b.Rule("Path :- Edge", path, edge)
//	g, err := b.Build()
type Builder struct {
	g Graph
}

// NewBuilder starts an empty graph.
func NewBuilder(name string) *Builder {
	return &Builder{g: Graph{Name: name}}
}

// Input declares an input relation.
func (b *Builder) Input(name string, schema value.Schema, opts ...RelationOption) RelID {
	return b.relation(name, Input, schema, opts)
}

// Derived declares a relation written by rules.
func (b *Builder) Derived(name string, schema value.Schema, opts ...RelationOption) RelID {
	return b.relation(name, Derived, schema, opts)
}

func (b *Builder) relation(name string, role Role, schema value.Schema, opts []RelationOption) RelID {
	id := RelID(len(b.g.Relations))
	r := Relation{ID: id, Name: name, Role: role, Schema: schema}
	for _, opt := range opts {
		opt(&r)
	}
	b.g.Relations = append(b.g.Relations, r)
	return id
}

// Arrange declares an arrangement over rel.
func (b *Builder) Arrange(name string, rel RelID, kind arrangement.Kind, key arrangement.KeyFunc, opts ...ArrangementOption) ArrID {
	id := ArrID(len(b.g.Arrangements))
	a := Arrangement{ID: id, Name: name, Relation: rel, Kind: kind, Key: key}
	for _, opt := range opts {
		opt(&a)
	}
	b.g.Arrangements = append(b.g.Arrangements, a)
	return id
}

// Rule adds a rule deriving target from source.
func (b *Builder) Rule(description string, target, source RelID, stages ...dataflow.Stage) {
	b.g.Rules = append(b.g.Rules, Rule{
		Description: description,
		Target:      target,
		Source:      source,
		Stages:      stages,
	})
}

// Fact adds an initial row to an input relation.
func (b *Builder) Fact(rel RelID, v value.Value) {
	b.g.Facts = append(b.g.Facts, Fact{Relation: rel, Value: v})
}

// Graph returns the graph without validating it.
func (b *Builder) Graph() *Graph {
	g := b.g
	return &g
}

// Build validates and stratifies the graph.
func (b *Builder) Build() (*Graph, error) {
	g := b.Graph()
	if errs := Validate(g); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}
	if _, errs := Stratify(g); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}
	return g, nil
}
