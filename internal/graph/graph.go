// Package graph provides the small undirected-graph analytics used by the
// /graph endpoint: degree centrality, connected components, and shortest
// paths between entities linked through shared signal values.
package graph

import (
	"errors"
	"sort"
)

// ErrNoPath is returned by ShortestPath when the nodes are not connected.
var ErrNoPath = errors.New("graph: no path between nodes")

// Graph is an undirected graph keyed by node name.
type Graph struct {
	adj map[string]map[string]bool
}

// New builds a graph from a list of edges. Both endpoints of every edge are
// added as nodes; self-edges are ignored.
func New(edges [][2]string) *Graph {
	g := &Graph{adj: make(map[string]map[string]bool)}
	for _, e := range edges {
		g.AddEdge(e[0], e[1])
	}
	return g
}

// AddEdge inserts an undirected edge.
func (g *Graph) AddEdge(a, b string) {
	g.addNode(a)
	g.addNode(b)
	if a == b {
		return
	}
	g.adj[a][b] = true
	g.adj[b][a] = true
}

func (g *Graph) addNode(n string) {
	if g.adj[n] == nil {
		g.adj[n] = make(map[string]bool)
	}
}

// Nodes returns all node names in sorted order.
func (g *Graph) Nodes() []string {
	nodes := make([]string, 0, len(g.adj))
	for n := range g.adj {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)
	return nodes
}

// Centrality returns the degree centrality of every node: degree divided by
// (n-1), or 0 for a single-node graph.
func (g *Graph) Centrality() map[string]float64 {
	n := len(g.adj)
	out := make(map[string]float64, n)
	for node, neigh := range g.adj {
		if n > 1 {
			out[node] = float64(len(neigh)) / float64(n-1)
		} else {
			out[node] = 0
		}
	}
	return out
}

// Components returns the connected components, each sorted, ordered by
// their smallest member for determinism.
func (g *Graph) Components() [][]string {
	seen := make(map[string]bool, len(g.adj))
	var comps [][]string
	for _, start := range g.Nodes() {
		if seen[start] {
			continue
		}
		var comp []string
		stack := []string{start}
		for len(stack) > 0 {
			v := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if seen[v] {
				continue
			}
			seen[v] = true
			comp = append(comp, v)
			for neigh := range g.adj[v] {
				if !seen[neigh] {
					stack = append(stack, neigh)
				}
			}
		}
		sort.Strings(comp)
		comps = append(comps, comp)
	}
	return comps
}

// ShortestPath returns one shortest path from start to end via BFS.
// Neighbors are visited in sorted order so the returned path is
// deterministic among equal-length alternatives.
func (g *Graph) ShortestPath(start, end string) ([]string, error) {
	if g.adj[start] == nil || g.adj[end] == nil {
		return nil, ErrNoPath
	}
	if start == end {
		return []string{start}, nil
	}

	prev := map[string]string{start: ""}
	queue := []string{start}
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]

		neighbors := make([]string, 0, len(g.adj[v]))
		for n := range g.adj[v] {
			neighbors = append(neighbors, n)
		}
		sort.Strings(neighbors)

		for _, n := range neighbors {
			if _, ok := prev[n]; ok {
				continue
			}
			prev[n] = v
			if n == end {
				var path []string
				for cur := end; cur != ""; cur = prev[cur] {
					path = append([]string{cur}, path...)
				}
				return path, nil
			}
			queue = append(queue, n)
		}
	}
	return nil, ErrNoPath
}
