// Package testutil holds fixtures shared by package tests: a reference
// strongly-connected-components program and deterministic id generation.
package testutil

import (
	"github.com/roach88/ddflow/internal/arrangement"
	"github.com/roach88/ddflow/internal/dataflow"
	"github.com/roach88/ddflow/internal/program"
	"github.com/roach88/ddflow/internal/value"
	"github.com/roach88/ddflow/internal/zset"
)

// SCC holds the ids of the strongly-connected-components program.
type SCC struct {
	Graph *program.Graph

	Edge              program.RelID
	Connected         program.RelID
	StronglyConnected program.RelID

	EdgeByDest     program.ArrID
	ConnectedBySrc program.ArrID
	ConnectedPairs program.ArrID
}

// EdgeSchema is (src: int, dest: int).
var EdgeSchema = value.Schema{
	{Name: "src", Kind: value.KindInt},
	{Name: "dest", Kind: value.KindInt},
}

// RegimeSchema is (node: int, regime: int).
var RegimeSchema = value.Schema{
	{Name: "node", Kind: value.KindInt},
	{Name: "regime", Kind: value.KindInt},
}

// SCCProgram builds:
//
//	input relation Edge(src, dest)
//	relation Connected(src, dest)
//	output relation StronglyConnected(node, regime)
//
//	Connected(src, dest) :- Edge(src, dest).
//	Connected(src, dest) :- Connected(x, dest), Edge(src, x).
//	StronglyConnected(node, min(dest)) :- Connected(node, dest), Connected(dest, node).
//
// Connected is recursive; StronglyConnected labels every node with the
// smallest node it shares a cycle with (itself included when it lies on a
// cycle).
func SCCProgram() *SCC {
	b := program.NewBuilder("scc")
	s := &SCC{}

	s.Edge = b.Input("Edge", EdgeSchema)
	s.Connected = b.Derived("Connected", EdgeSchema, program.Distinct())
	s.StronglyConnected = b.Derived("StronglyConnected", RegimeSchema, program.Output())

	s.EdgeByDest = b.Arrange("Edge_by_dest", s.Edge, arrangement.Map, column(1))
	s.ConnectedBySrc = b.Arrange("Connected_by_src", s.Connected, arrangement.Map, column(0), program.Queryable())
	s.ConnectedPairs = b.Arrange("Connected_pairs", s.Connected, arrangement.Set, whole)

	b.Rule("Connected(src, dest) :- Edge(src, dest)", s.Connected, s.Edge)
	b.Rule("Connected(src, dest) :- Connected(x, dest), Edge(src, x)", s.Connected, s.Connected,
		dataflow.Join{
			Arrangement: s.EdgeByDest,
			Key:         func(row value.Value) (value.Value, bool) { return row.(value.Tuple)[0], true },
			Combine: func(conn, _, edge value.Value) (value.Value, bool) {
				return value.Tuple{edge.(value.Tuple)[0], conn.(value.Tuple)[1]}, true
			},
		},
	)
	b.Rule("StronglyConnected(node, min(dest)) :- Connected(node, dest), Connected(dest, node)",
		s.StronglyConnected, s.Connected,
		dataflow.Semijoin{
			Arrangement: s.ConnectedPairs,
			Key: func(row value.Value) (value.Value, bool) {
				t := row.(value.Tuple)
				return value.Tuple{t[1], t[0]}, true
			},
		},
		dataflow.Arrange{Key: func(row value.Value) (value.Value, value.Value, bool) {
			t := row.(value.Tuple)
			return t[0], t[1], true
		}},
		dataflow.Aggregate{Reducer: dataflow.Min{}},
	)

	s.Graph = b.Graph()
	return s
}

// SCCTransformer holds the ids of the transformer variant of SCCProgram.
type SCCTransformer struct {
	Graph *program.Graph

	Edge              program.RelID
	StronglyConnected program.RelID
}

// SCCTransformerProgram computes StronglyConnected from Edge with a single
// scc transform instead of recursive rules. Its output matches SCCProgram.
func SCCTransformerProgram() *SCCTransformer {
	b := program.NewBuilder("scc_transformer")
	s := &SCCTransformer{}

	s.Edge = b.Input("Edge", EdgeSchema)
	s.StronglyConnected = b.Derived("StronglyConnected", RegimeSchema, program.Output())

	b.Rule("StronglyConnected = scc(Edge, src, dest)", s.StronglyConnected, s.Edge,
		dataflow.Transform{
			Name: "scc",
			Fn: dataflow.SCCLabels(func(row value.Value) (value.Value, value.Value, bool) {
				t := row.(value.Tuple)
				return t[0], t[1], true
			}),
		},
	)

	s.Graph = b.Graph()
	return s
}

// column arranges a row by one column, keeping the whole row as value.
func column(i int) arrangement.KeyFunc {
	return func(row value.Value) (value.Value, value.Value, bool) {
		t, ok := row.(value.Tuple)
		if !ok || len(t) <= i {
			return nil, nil, false
		}
		return t[i], t, true
	}
}

func whole(row value.Value) (value.Value, value.Value, bool) {
	return row, row, true
}

// Edges builds Edge rows from (src, dest) pairs.
func Edges(pairs ...[2]int) []value.Value {
	out := make([]value.Value, len(pairs))
	for i, p := range pairs {
		out[i] = value.T(p[0], p[1])
	}
	return out
}

// Set returns the rows of entries, asserting nothing about weights.
func Set(entries []zset.Entry) []value.Value {
	out := make([]value.Value, len(entries))
	for i, e := range entries {
		out[i] = e.Value
	}
	return out
}
