package program

import (
	"fmt"
	"slices"

	"github.com/roach88/ddflow/internal/dataflow"
	"github.com/roach88/ddflow/internal/digraph"
)

// Stratum is a strongly connected group of relations evaluated together.
type Stratum struct {
	Index     int
	Relations []RelID // ascending
	Rules     []int   // indexes into Graph.Rules whose target is in this stratum
	Recursive bool    // more than one relation, or a relation depending on itself
}

// Plan is the evaluation order of a graph.
type Plan struct {
	Strata    []Stratum
	StratumOf []int // indexed by RelID
}

// Stratify builds the relation dependency graph (a rule's target depends on
// its source and on the owner of every arrangement it reads), finds its
// strongly connected components and orders them so that every stratum
// follows the strata it reads from. Ties are broken by lowest relation id.
//
// Aggregates and transforms inside recursive strata are rejected: they are
// not monotonic and the fixpoint would not be well defined.
//
// g must have passed Validate.
func Stratify(g *Graph) (*Plan, []ValidationError) {
	n := len(g.Relations)
	graph := make([][]int, n)
	selfLoop := make([]bool, n)
	for _, r := range g.Rules {
		for _, dep := range g.Dependencies(&r) {
			if dep == r.Target {
				selfLoop[r.Target] = true
			}
			graph[dep] = append(graph[dep], int(r.Target))
		}
	}
	for i := range graph {
		slices.Sort(graph[i])
		graph[i] = slices.Compact(graph[i])
	}

	sccs := digraph.SCC(graph)
	comp := make([]int, n)
	for ci, scc := range sccs {
		for _, v := range scc {
			comp[v] = ci
		}
	}

	order := topoOrder(graph, sccs, comp)

	plan := &Plan{StratumOf: make([]int, n)}
	for si, ci := range order {
		rels := make([]RelID, len(sccs[ci]))
		for i, v := range sccs[ci] {
			rels[i] = RelID(v)
			plan.StratumOf[v] = si
		}
		slices.Sort(rels)
		plan.Strata = append(plan.Strata, Stratum{
			Index:     si,
			Relations: rels,
			Recursive: len(rels) > 1 || selfLoop[rels[0]],
		})
	}

	var errs []ValidationError
	for ri, r := range g.Rules {
		s := &plan.Strata[plan.StratumOf[r.Target]]
		s.Rules = append(s.Rules, ri)
		if !s.Recursive {
			continue
		}
		for j, st := range r.Stages {
			var code string
			switch st.(type) {
			case dataflow.Aggregate:
				code = ErrRecursiveAggregate
			case dataflow.Transform:
				code = ErrRecursiveTransform
			default:
				continue
			}
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("rules[%d].stages[%d]", ri, j),
				Message: fmt.Sprintf("%s in recursive stratum of %q", st.Kind(), g.Relations[r.Target].Name),
				Code:    code,
			})
		}
	}
	if len(errs) > 0 {
		return nil, errs
	}
	return plan, nil
}

// topoOrder sorts the condensation of graph with Kahn's algorithm, always
// taking the ready component holding the lowest node id.
func topoOrder(graph [][]int, sccs [][]int, comp []int) []int {
	indeg := make([]int, len(sccs))
	succ := make([][]int, len(sccs))
	minNode := make([]int, len(sccs))
	for ci, scc := range sccs {
		minNode[ci] = slices.Min(scc)
	}
	for v, edges := range graph {
		for _, w := range edges {
			if comp[v] != comp[w] {
				succ[comp[v]] = append(succ[comp[v]], comp[w])
				indeg[comp[w]]++
			}
		}
	}

	var ready []int
	for ci := range sccs {
		if indeg[ci] == 0 {
			ready = append(ready, ci)
		}
	}

	order := make([]int, 0, len(sccs))
	for len(ready) > 0 {
		best := 0
		for i := 1; i < len(ready); i++ {
			if minNode[ready[i]] < minNode[ready[best]] {
				best = i
			}
		}
		ci := ready[best]
		ready = slices.Delete(ready, best, best+1)
		order = append(order, ci)
		for _, next := range succ[ci] {
			indeg[next]--
			if indeg[next] == 0 {
				ready = append(ready, next)
			}
		}
	}
	return order
}
