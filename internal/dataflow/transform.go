package dataflow

import (
	"github.com/roach88/ddflow/internal/digraph"
	"github.com/roach88/ddflow/internal/value"
)

// EdgeFunc reads a row as a directed edge.
type EdgeFunc func(row value.Value) (src, dst value.Value, ok bool)

// SCCLabels returns a TransformFunc that reads every row as an edge and
// labels each node lying on a cycle with the smallest node of its strongly
// connected component. Output rows are (node, label). Rows edge rejects are
// ignored.
func SCCLabels(edge EdgeFunc) TransformFunc {
	return func(rows []value.Value) []value.Value {
		ids := make(map[string]int)
		var nodes []value.Value
		var graph [][]int
		node := func(v value.Value) int {
			k := value.Key(v)
			if i, ok := ids[k]; ok {
				return i
			}
			ids[k] = len(nodes)
			nodes = append(nodes, v)
			graph = append(graph, nil)
			return len(nodes) - 1
		}
		for _, row := range rows {
			src, dst, ok := edge(row)
			if !ok {
				continue
			}
			s := node(src)
			d := node(dst)
			graph[s] = append(graph[s], d)
		}

		var out []value.Value
		for _, scc := range digraph.SCC(graph) {
			if !digraph.Cyclic(graph, scc) {
				continue
			}
			label := nodes[scc[0]]
			for _, v := range scc[1:] {
				if value.Less(nodes[v], label) {
					label = nodes[v]
				}
			}
			for _, v := range scc {
				out = append(out, value.Tuple{nodes[v], label})
			}
		}
		return out
	}
}
