// Package bisect answers whether taking one switch-to-switch cable out of
// service would split the fabric into two disconnected parts.
package bisect

import "github.com/HerbHall/cabletrack/pkg/models"

// Edge is one healthy switch-to-switch cable, identified by the node GUIDs
// at either end.
type Edge struct {
	A, B models.GUID
}

// Graph is an undirected adjacency list over switch GUIDs.
type Graph struct {
	adj   map[models.GUID][]models.GUID
	edges int
}

// NewGraph builds a graph from edges.
func NewGraph(edges []Edge) *Graph {
	g := &Graph{adj: make(map[models.GUID][]models.GUID)}
	for _, e := range edges {
		g.adj[e.A] = append(g.adj[e.A], e.B)
		g.adj[e.B] = append(g.adj[e.B], e.A)
		g.edges++
	}
	return g
}

// Edges returns the number of edges in the graph.
func (g *Graph) Edges() int {
	return g.edges
}

// Connected reports whether to is reachable from from.
func (g *Graph) Connected(from, to models.GUID) bool {
	if from == to {
		return true
	}
	seen := map[models.GUID]bool{from: true}
	queue := []models.GUID{from}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for _, next := range g.adj[n] {
			if next == to {
				return true
			}
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	return false
}

// IsBisection reports whether the cable joining from and to is the only path
// between them. edges must not include the cable itself. A graph with no
// edges at all is treated as unsafe.
func IsBisection(edges []Edge, from, to models.GUID) bool {
	g := NewGraph(edges)
	if g.Edges() == 0 {
		return true
	}
	return !g.Connected(from, to)
}
