// Package program describes the resolved rule graph evaluated by the engine:
// relations, arrangements over them, rules wiring a source relation through
// stages into a target relation, and initial facts.
//
// A Graph is plain data. Validate checks it and Stratify orders its
// relations into strata; engine.Build does both before evaluating anything.
package program

import (
	"github.com/roach88/ddflow/internal/arrangement"
	"github.com/roach88/ddflow/internal/dataflow"
	"github.com/roach88/ddflow/internal/value"
)

// RelID identifies a relation. IDs are dense indexes into Graph.Relations.
type RelID int

// ArrID identifies an arrangement. IDs are dense indexes into
// Graph.Arrangements.
type ArrID = dataflow.ArrID

// Role says who may write a relation.
type Role int

const (
	// Input relations receive updates from transactions.
	Input Role = iota
	// Derived relations are written only by rules.
	Derived
)

func (r Role) String() string {
	if r == Input {
		return "input"
	}
	return "derived"
}

// Relation is a named, typed collection.
type Relation struct {
	ID       RelID
	Name     string
	Role     Role
	Distinct bool // weights collapse to set membership
	Output   bool // changes are reported in every DeltaMap
	Schema   value.Schema
	// Original is the external table name when it differs from Name.
	Original string
}

// Arrangement is an index over one relation.
type Arrangement struct {
	ID        ArrID
	Name      string
	Relation  RelID
	Kind      arrangement.Kind
	Key       arrangement.KeyFunc
	Queryable bool // exposed to point lookups
}

// Rule derives rows of Target from the delta of Source through Stages.
type Rule struct {
	Description string
	Target      RelID
	Source      RelID
	Stages      []dataflow.Stage
}

// Fact is an input row present from the start.
type Fact struct {
	Relation RelID
	Value    value.Value
}

// Graph is a complete resolved program.
type Graph struct {
	Name         string
	Relations    []Relation
	Arrangements []Arrangement
	Rules        []Rule
	Facts        []Fact
}

// Relation returns the relation with the given id.
func (g *Graph) Relation(id RelID) (*Relation, bool) {
	if id < 0 || int(id) >= len(g.Relations) {
		return nil, false
	}
	return &g.Relations[id], true
}

// RelationByName looks a relation up by name.
func (g *Graph) RelationByName(name string) (*Relation, bool) {
	for i := range g.Relations {
		if g.Relations[i].Name == name {
			return &g.Relations[i], true
		}
	}
	return nil, false
}

// Arrangement returns the arrangement with the given id.
func (g *Graph) Arrangement(id ArrID) (*Arrangement, bool) {
	if id < 0 || int(id) >= len(g.Arrangements) {
		return nil, false
	}
	return &g.Arrangements[id], true
}

// ArrangementByName looks an arrangement up by name.
func (g *Graph) ArrangementByName(name string) (*Arrangement, bool) {
	for i := range g.Arrangements {
		if g.Arrangements[i].Name == name {
			return &g.Arrangements[i], true
		}
	}
	return nil, false
}

// Dependencies returns the relations rule r reads: its source and the
// owner of every arrangement its stages use. Unknown arrangements are
// skipped.
func (g *Graph) Dependencies(r *Rule) []RelID {
	deps := []RelID{r.Source}
	for _, id := range StageArrangements(r.Stages) {
		if a, ok := g.Arrangement(id); ok {
			deps = append(deps, a.Relation)
		}
	}
	return deps
}

// StageArrangements lists the arrangements used by join and semijoin
// stages, in stage order.
func StageArrangements(stages []dataflow.Stage) []ArrID {
	var ids []ArrID
	for _, s := range stages {
		switch st := s.(type) {
		case dataflow.Join:
			ids = append(ids, st.Arrangement)
		case dataflow.Semijoin:
			ids = append(ids, st.Arrangement)
		}
	}
	return ids
}
