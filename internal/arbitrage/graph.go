// Package arbitrage finds and simulates triangular arbitrage cycles over a
// snapshot of the market and filters repeated detections.
package arbitrage

import (
	"sort"

	"github.com/alanyoungcy/triarbot/internal/market"
)

// Graph is an undirected adjacency list over currencies. Every pair adds an
// edge in both directions. A Graph is built once per cycle and never mutated.
type Graph struct {
	adj  map[string][]string
	edge map[string]map[string]struct{}
}

// BuildGraph derives the trade graph from a registry snapshot. A nil or empty
// snapshot yields an empty graph.
func BuildGraph(reg *market.RegistrySnapshot) *Graph {
	g := &Graph{
		adj:  make(map[string][]string),
		edge: make(map[string]map[string]struct{}),
	}
	if reg == nil {
		return g
	}
	for _, info := range reg.Symbols() {
		g.link(info.Base, info.Quote)
		g.link(info.Quote, info.Base)
	}
	for c := range g.adj {
		sort.Strings(g.adj[c])
	}
	return g
}

func (g *Graph) link(from, to string) {
	if from == to {
		return
	}
	set, ok := g.edge[from]
	if !ok {
		set = make(map[string]struct{})
		g.edge[from] = set
	}
	if _, dup := set[to]; dup {
		return
	}
	set[to] = struct{}{}
	g.adj[from] = append(g.adj[from], to)
}

// Neighbors returns the currencies directly tradable with c.
func (g *Graph) Neighbors(c string) []string {
	return g.adj[c]
}

// Connected reports whether a and b share a trading pair.
func (g *Graph) Connected(a, b string) bool {
	_, ok := g.edge[a][b]
	return ok
}

// Len returns the number of currencies in the graph.
func (g *Graph) Len() int {
	return len(g.adj)
}

// Triangles walks the adjacency lists from every currency in from and calls
// visit for each closed cycle (a, b, c). Both directions of a cycle are
// visited, as are its rotations when their start lies in from.
func (g *Graph) Triangles(from []string, visit func(a, b, c string)) {
	for _, a := range from {
		for _, b := range g.adj[a] {
			for _, c := range g.adj[b] {
				if c == a {
					continue
				}
				if g.Connected(c, a) {
					visit(a, b, c)
				}
			}
		}
	}
}
