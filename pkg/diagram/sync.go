// Package diagram keeps the visual element set in step with the node store
// and tracks the selected node and its highlighted paths.
package diagram

import (
	"context"
	"fmt"

	"github.com/shahcompbio/montage-sub000/pkg/logging"
	"github.com/shahcompbio/montage-sub000/pkg/metrics"
	"github.com/shahcompbio/montage-sub000/pkg/model"
	"github.com/shahcompbio/montage-sub000/pkg/nodestore"
	"github.com/shahcompbio/montage-sub000/pkg/pubsub"
)

// Direction selects which edges RemoveNode drops.
type Direction int

const (
	// Up removes edges targeting the node.
	Up Direction = iota
	// Down removes edges sourced at the node.
	Down
	// Both removes every edge touching the node.
	Both
)

// Event types published on the diagram topic.
const (
	EventSnapshot  = "snapshot"
	EventDiff      = "diff"
	EventHighlight = "highlight"
)

// Titles names view types for diagram labels.
type Titles interface {
	Title(nodeType string) string
}

// Sync owns the diagram element set. It is not safe for concurrent use.
type Sync struct {
	store    *nodestore.Store
	titles   Titles
	pub      pubsub.Publisher
	elements *model.Elements
	last     *Snapshot

	selected  int64
	highlight Highlight
}

// New creates a diagram over store. titles and pub may be nil.
func New(store *nodestore.Store, titles Titles, pub pubsub.Publisher) *Sync {
	return &Sync{
		store:    store,
		titles:   titles,
		pub:      pub,
		elements: model.NewElements(),
	}
}

// Elements returns a copy of the current element set.
func (s *Sync) Elements() *model.Elements {
	return s.elements.Clone()
}

// AddNode appends a diagram node whose glyph is derived from nodeType.
func (s *Sync) AddNode(id int64, nodeType, treeID string) {
	el := &model.ElementNode{ID: id, Type: nodeType, TreeID: treeID}
	switch nodeType {
	case model.TypeData:
		el.Label, el.Class, el.Shape = "Data", "cy-data-node", "ellipse"
	case model.TypeDataFilter:
		el.Label, el.Class, el.Shape = "Data Filter", "cy-datafilter-node", "ellipse"
	case model.TypeViewFilter:
		el.Label, el.Class, el.Shape = "Region Filter", "cy-vizfilter-node", "triangle"
	default:
		el.Label, el.Class, el.Shape = "View", "cy-"+nodeType+"-node", "rectangle"
		el.IsView = true
		if s.titles != nil {
			if t := s.titles.Title(nodeType); t != "" {
				el.Label = t
			}
		}
	}
	s.elements.AddNode(el)
}

// AddEdge appends a parent -> child edge.
func (s *Sync) AddEdge(parent, child int64) {
	s.elements.AddEdge(&model.ElementEdge{Source: parent, Target: child})
}

// RemoveNode drops id and the edges selected by dir.
func (s *Sync) RemoveNode(id int64, dir Direction) {
	s.elements.RemoveNode(id)
	switch dir {
	case Up:
		s.elements.RemoveEdgesTo(id)
	case Down:
		s.elements.RemoveEdgesFrom(id)
	case Both:
		s.elements.RemoveEdgesTo(id)
		s.elements.RemoveEdgesFrom(id)
	}
	if s.selected == id {
		s.UnselectAll()
	}
}

// Has reports whether id is in the diagram.
func (s *Sync) Has(id int64) bool {
	_, ok := s.elements.Node(id)
	return ok
}

// TreeID returns the tree tag of a diagram node.
func (s *Sync) TreeID(id int64) string {
	if n, ok := s.elements.Node(id); ok {
		return n.TreeID
	}
	return ""
}

// Rebuild regenerates the element set from the store. Ignored nodes are left
// out; a link into a track view is drawn into the view hosting it. Tree tags
// of surviving nodes are kept.
func (s *Sync) Rebuild() {
	prev := s.elements
	s.elements = model.NewElements()
	for _, n := range s.store.Nodes() {
		if n.Ignore {
			continue
		}
		treeID := ""
		if old, ok := prev.Node(n.ID); ok {
			treeID = old.TreeID
		}
		s.AddNode(n.ID, n.Type, treeID)
	}
	for _, n := range s.store.Nodes() {
		if n.Ignore {
			continue
		}
		for _, child := range n.Children {
			c, ok := s.store.Get(child)
			switch {
			case !ok:
			case !c.Ignore:
				s.AddEdge(n.ID, child)
			case s.store.Has(c.ParentNodeID):
				s.AddEdge(n.ID, c.ParentNodeID)
			}
		}
	}
}

// Restore replaces the element set with el and rebuilds it from the store,
// keeping the tree tags el carries.
func (s *Sync) Restore(el *model.Elements) {
	if el == nil {
		el = model.NewElements()
	}
	s.elements = el.Clone()
	s.last = nil
	s.UnselectAll()
	s.Rebuild()
}

// SetTitles swaps the view title source, e.g. after a catalog reload.
func (s *Sync) SetTitles(t Titles) {
	s.titles = t
}

// Reset empties the diagram and forgets the published state.
func (s *Sync) Reset() {
	s.elements = model.NewElements()
	s.last = nil
	s.UnselectAll()
}

// Reload publishes the changes since the previous reload and, if activeID
// is in the diagram, selects it.
func (s *Sync) Reload(ctx context.Context, activeID int64) error {
	diff := ComputeDiff(s.last, s.elements)
	s.last = NewSnapshot(s.elements)
	s.observe()

	if s.pub != nil && !diff.Empty() {
		eventType := EventDiff
		if diff.FullGraph {
			eventType = EventSnapshot
		}
		if err := s.pub.Publish(pubsub.TopicDiagram, eventType, diff); err != nil {
			return fmt.Errorf("publish diagram: %w", err)
		}
	}
	logging.DebugContext(ctx, "diagram reloaded",
		"nodes", len(s.elements.Nodes), "edges", len(s.elements.Edges), "active", activeID)

	if activeID != 0 && s.Has(activeID) {
		if _, err := s.SelectNode(activeID); err != nil {
			return err
		}
	} else if s.selected != 0 && !s.Has(s.selected) {
		s.UnselectAll()
	}
	return nil
}

// Check reports an error if the element set references a node the store
// does not hold, or leaves out a live, non-ignored node.
func (s *Sync) Check() error {
	for _, n := range s.elements.Nodes {
		if !s.store.Has(n.ID) {
			return fmt.Errorf("diagram node %d: %w", n.ID, model.ErrNodeNotFound)
		}
	}
	for _, e := range s.elements.Edges {
		if !s.store.Has(e.Source) || !s.store.Has(e.Target) {
			return model.ErrDanglingReference(e.Source, e.Target)
		}
	}
	for _, n := range s.store.Nodes() {
		if !n.Ignore && !s.Has(n.ID) {
			return fmt.Errorf("%w: node %d missing from diagram", model.ErrInvalidPortrait, n.ID)
		}
	}
	return nil
}

func (s *Sync) observe() {
	metrics.Edges.Set(float64(len(s.elements.Edges)))
	counts := map[string]int{}
	for _, n := range s.store.Nodes() {
		counts[n.Type]++
	}
	metrics.Nodes.Reset()
	for t, c := range counts {
		metrics.Nodes.WithLabelValues(t).Set(float64(c))
	}
}
