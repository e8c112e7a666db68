// Package graph projects portrait nodes onto a gonum directed graph.
package graph

import (
	"cmp"
	"slices"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"

	"github.com/shahcompbio/montage-sub000/pkg/model"
)

// PortraitGraph is a directed graph keyed by node ID with edges pointing from
// parent to child. Self-links are tracked separately since gonum's simple
// graphs reject them.
type PortraitGraph struct {
	graph     *simple.DirectedGraph
	selfLinks []int64
}

// NewPortraitGraph creates an empty graph.
func NewPortraitGraph() *PortraitGraph {
	return &PortraitGraph{graph: simple.NewDirectedGraph()}
}

// FromNodes builds the graph from node parent/child links. References to IDs
// outside nodes are ignored.
func FromNodes(nodes []*model.Node) *PortraitGraph {
	pg := NewPortraitGraph()
	live := make(map[int64]bool, len(nodes))
	for _, n := range nodes {
		pg.AddNode(n.ID)
		live[n.ID] = true
	}
	for _, n := range nodes {
		for _, child := range n.Children {
			if live[child] {
				pg.AddEdge(n.ID, child)
			}
		}
	}
	return pg
}

// FromElements builds the graph from a diagram element set.
func FromElements(el *model.Elements) *PortraitGraph {
	pg := NewPortraitGraph()
	for _, n := range el.Nodes {
		pg.AddNode(n.ID)
	}
	for _, e := range el.Edges {
		pg.AddEdge(e.Source, e.Target)
	}
	return pg
}

// AddNode adds id if it is not present yet.
func (pg *PortraitGraph) AddNode(id int64) {
	if pg.graph.Node(id) == nil {
		pg.graph.AddNode(simple.Node(id))
	}
}

// AddEdge adds a parent -> child edge, adding missing endpoints. Duplicate
// edges collapse into one.
func (pg *PortraitGraph) AddEdge(parent, child int64) {
	pg.AddNode(parent)
	pg.AddNode(child)
	if parent == child {
		if !slices.Contains(pg.selfLinks, parent) {
			pg.selfLinks = append(pg.selfLinks, parent)
		}
		return
	}
	if !pg.graph.HasEdgeFromTo(parent, child) {
		pg.graph.SetEdge(pg.graph.NewEdge(simple.Node(parent), simple.Node(child)))
	}
}

// Graph returns the underlying directed graph.
func (pg *PortraitGraph) Graph() *simple.DirectedGraph {
	return pg.graph
}

// SelfLinks returns the IDs linked to themselves.
func (pg *PortraitGraph) SelfLinks() []int64 {
	return slices.Clone(pg.selfLinks)
}

// Len returns the number of nodes.
func (pg *PortraitGraph) Len() int {
	return pg.graph.Nodes().Len()
}

// Children returns the sorted children of id.
func (pg *PortraitGraph) Children(id int64) []int64 {
	return collect(pg.graph.From(id))
}

// Parents returns the sorted parents of id.
func (pg *PortraitGraph) Parents(id int64) []int64 {
	return collect(pg.graph.To(id))
}

// Edges returns every edge as a sorted list of [parent, child] pairs.
func (pg *PortraitGraph) Edges() [][2]int64 {
	var edges [][2]int64
	it := pg.graph.Edges()
	for it.Next() {
		e := it.Edge()
		edges = append(edges, [2]int64{e.From().ID(), e.To().ID()})
	}
	slices.SortFunc(edges, func(a, b [2]int64) int {
		if c := cmp.Compare(a[0], b[0]); c != 0 {
			return c
		}
		return cmp.Compare(a[1], b[1])
	})
	return edges
}

// Reversed returns a copy with every edge pointing from child to parent.
func (pg *PortraitGraph) Reversed() *PortraitGraph {
	rev := NewPortraitGraph()
	nodes := pg.graph.Nodes()
	for nodes.Next() {
		rev.AddNode(nodes.Node().ID())
	}
	for _, e := range pg.Edges() {
		rev.AddEdge(e[1], e[0])
	}
	rev.selfLinks = slices.Clone(pg.selfLinks)
	return rev
}

func collect(it graph.Nodes) []int64 {
	var ids []int64
	for it.Next() {
		ids = append(ids, it.Node().ID())
	}
	slices.Sort(ids)
	return ids
}
