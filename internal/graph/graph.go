// Package graph models the sector dependency graph: directed supplier -> client
// edges whose weights are fractions of the supplier's total outgoing influence.
package graph

import (
	"sort"
)

// Edge is an outgoing dependency of a supplier.
type Edge struct {
	Target string  `json:"target"`
	Weight float64 `json:"weight"` // fraction of the supplier's influence, (0,1] when normalized
}

// Graph is an immutable adjacency structure keyed by supplier id.
type Graph struct {
	adj   map[string][]Edge
	nodes map[string]struct{}
	edges int
}

// New builds a graph from an adjacency map. Weights are stored as given;
// non-positive weights are dropped and each edge list is sorted by descending
// weight (ties by target). The input map is not retained.
func New(adj map[string][]Edge) *Graph {
	g := &Graph{
		adj:   make(map[string][]Edge, len(adj)),
		nodes: make(map[string]struct{}),
	}
	for src, edges := range adj {
		g.nodes[src] = struct{}{}
		kept := make([]Edge, 0, len(edges))
		for _, e := range edges {
			if e.Weight <= 0 {
				continue
			}
			kept = append(kept, e)
			g.nodes[e.Target] = struct{}{}
		}
		sortEdges(kept)
		g.adj[src] = kept
		g.edges += len(kept)
	}
	return g
}

// Empty returns a graph with no nodes.
func Empty() *Graph {
	return New(nil)
}

func sortEdges(edges []Edge) {
	sort.SliceStable(edges, func(i, j int) bool {
		if edges[i].Weight != edges[j].Weight {
			return edges[i].Weight > edges[j].Weight
		}
		return edges[i].Target < edges[j].Target
	})
}

// Normalize returns a copy of g where every supplier's weights are divided by
// its outgoing total. Suppliers with a zero total keep an empty edge list.
func Normalize(g *Graph) *Graph {
	adj := make(map[string][]Edge, len(g.adj))
	for src, edges := range g.adj {
		total := 0.0
		for _, e := range edges {
			total += e.Weight
		}
		if total <= 0 {
			adj[src] = nil
			continue
		}
		out := make([]Edge, len(edges))
		for i, e := range edges {
			out[i] = Edge{Target: e.Target, Weight: e.Weight / total}
		}
		adj[src] = out
	}
	n := New(adj)
	for id := range g.nodes {
		n.nodes[id] = struct{}{}
	}
	return n
}

// Edges returns the outgoing edges of id, strongest first. The slice must not be modified.
func (g *Graph) Edges(id string) []Edge {
	return g.adj[id]
}

// HasNode reports whether id appears as a supplier or a client.
func (g *Graph) HasNode(id string) bool {
	_, ok := g.nodes[id]
	return ok
}

// Nodes returns every node id in ascending order.
func (g *Graph) Nodes() []string {
	out := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Suppliers returns the ids that own an edge list, in ascending order.
func (g *Graph) Suppliers() []string {
	out := make([]string, 0, len(g.adj))
	for id := range g.adj {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// NodeCount is the number of distinct nodes.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// EdgeCount is the number of stored edges.
func (g *Graph) EdgeCount() int { return g.edges }

// OutgoingTotal sums the weights leaving id.
func (g *Graph) OutgoingTotal(id string) float64 {
	total := 0.0
	for _, e := range g.adj[id] {
		total += e.Weight
	}
	return total
}

// TopDependencies returns at most n strongest outgoing edges of id.
func (g *Graph) TopDependencies(id string, n int) []Edge {
	edges := g.adj[id]
	if n <= 0 || n > len(edges) {
		n = len(edges)
	}
	out := make([]Edge, n)
	copy(out, edges[:n])
	return out
}

// Adjacency returns a deep copy of the adjacency map, suitable for encoding.
func (g *Graph) Adjacency() map[string][]Edge {
	out := make(map[string][]Edge, len(g.adj))
	for src, edges := range g.adj {
		cp := make([]Edge, len(edges))
		copy(cp, edges)
		out[src] = cp
	}
	return out
}
