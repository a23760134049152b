// Package digraph holds graph algorithms over dense integer node ids.
package digraph

// SCC finds the strongly connected components of graph using Tarjan's
// algorithm. graph[v] lists the successors of v. Nodes are visited in
// ascending order so the result is deterministic; components come out in
// reverse topological order.
func SCC(graph [][]int) [][]int {
	var (
		index   = 0
		stack   []int
		indices = make([]int, len(graph))
		lowlink = make([]int, len(graph))
		onStack = make([]bool, len(graph))
		sccs    [][]int
	)
	for i := range indices {
		indices[i] = -1
	}

	var strongConnect func(int)
	strongConnect = func(v int) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if indices[w] < 0 {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// Root of an SCC: pop it off the stack
		if lowlink[v] == indices[v] {
			var scc []int
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	for v := range graph {
		if indices[v] < 0 {
			strongConnect(v)
		}
	}
	return sccs
}

// Cyclic reports whether component scc of graph lies on a cycle: it has
// more than one node or its only node has an edge to itself.
func Cyclic(graph [][]int, scc []int) bool {
	if len(scc) > 1 {
		return true
	}
	v := scc[0]
	for _, w := range graph[v] {
		if w == v {
			return true
		}
	}
	return false
}
