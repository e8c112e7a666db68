package model

import "slices"

// Elements is the diagram element set: the visual projection of the node
// store. Edges point from parent to child.
type Elements struct {
	Nodes []*ElementNode `json:"nodes"`
	Edges []*ElementEdge `json:"edges"`
}

// NewElements creates a new empty element set.
func NewElements() *Elements {
	return &Elements{
		Nodes: make([]*ElementNode, 0),
		Edges: make([]*ElementEdge, 0),
	}
}

// ElementNode mirrors a store node in the diagram.
type ElementNode struct {
	ID     int64  `json:"id"`
	Type   string `json:"type"`
	Label  string `json:"label"`
	Shape  string `json:"shape"`
	Class  string `json:"class"`
	IsView bool   `json:"isView,omitempty"`
	TreeID string `json:"treeID,omitempty"`
}

// ElementEdge is a directed parent -> child edge.
type ElementEdge struct {
	Source int64  `json:"source"`
	Target int64  `json:"target"`
	Type   string `json:"type"`
}

// AddNode appends a node. If a node with the same ID exists, it is replaced.
func (e *Elements) AddNode(node *ElementNode) {
	if i := e.nodeIndex(node.ID); i >= 0 {
		e.Nodes[i] = node
		return
	}
	e.Nodes = append(e.Nodes, node)
}

// AddEdge appends an edge.
func (e *Elements) AddEdge(edge *ElementEdge) {
	if edge.Type == "" {
		edge.Type = "edge"
	}
	e.Edges = append(e.Edges, edge)
}

// Node returns the diagram node with the given ID.
func (e *Elements) Node(id int64) (*ElementNode, bool) {
	if i := e.nodeIndex(id); i >= 0 {
		return e.Nodes[i], true
	}
	return nil, false
}

// RemoveNode drops the diagram node with the given ID.
func (e *Elements) RemoveNode(id int64) {
	e.Nodes = slices.DeleteFunc(e.Nodes, func(n *ElementNode) bool { return n.ID == id })
}

// RemoveEdgesTo drops every edge targeting id.
func (e *Elements) RemoveEdgesTo(id int64) {
	e.Edges = slices.DeleteFunc(e.Edges, func(ed *ElementEdge) bool { return ed.Target == id })
}

// RemoveEdgesFrom drops every edge sourced at id.
func (e *Elements) RemoveEdgesFrom(id int64) {
	e.Edges = slices.DeleteFunc(e.Edges, func(ed *ElementEdge) bool { return ed.Source == id })
}

// References reports whether any node or edge mentions id.
func (e *Elements) References(id int64) bool {
	if e.nodeIndex(id) >= 0 {
		return true
	}
	for _, ed := range e.Edges {
		if ed.Source == id || ed.Target == id {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the element set.
func (e *Elements) Clone() *Elements {
	c := &Elements{
		Nodes: make([]*ElementNode, len(e.Nodes)),
		Edges: make([]*ElementEdge, len(e.Edges)),
	}
	for i, n := range e.Nodes {
		cp := *n
		c.Nodes[i] = &cp
	}
	for i, ed := range e.Edges {
		cp := *ed
		c.Edges[i] = &cp
	}
	return c
}

func (e *Elements) nodeIndex(id int64) int {
	return slices.IndexFunc(e.Nodes, func(n *ElementNode) bool { return n.ID == id })
}
