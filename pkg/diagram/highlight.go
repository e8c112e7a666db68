package diagram

import (
	"fmt"
	"slices"

	"gonum.org/v1/gonum/graph/path"

	"github.com/shahcompbio/montage-sub000/pkg/graph"
	"github.com/shahcompbio/montage-sub000/pkg/logging"
	"github.com/shahcompbio/montage-sub000/pkg/model"
	"github.com/shahcompbio/montage-sub000/pkg/pubsub"
)

// Highlight is the selection state of the diagram: the selected node and one
// shortest path per (view, data source) pair of its family, each path
// running from the view down to the data node.
type Highlight struct {
	Selected int64     `json:"selected"`
	Views    []int64   `json:"views"`
	Targets  []int64   `json:"targets"`
	Paths    [][]int64 `json:"paths"`
}

// Selected returns the selected node, or 0.
func (s *Sync) Selected() int64 {
	return s.selected
}

// Highlight returns the current selection state.
func (s *Sync) Highlight() Highlight {
	return s.highlight
}

// SelectNode makes id the single selected node and computes its highlighted
// paths.
func (s *Sync) SelectNode(id int64) (Highlight, error) {
	n, ok := s.store.Get(id)
	if !ok {
		return Highlight{}, fmt.Errorf("select %d: %w", id, model.ErrNodeNotFound)
	}

	views, targets := s.family(n)
	h := Highlight{Selected: id, Views: views, Targets: targets}

	g := graph.FromElements(s.elements).Reversed().Graph()
	for _, v := range views {
		from := g.Node(v)
		if from == nil {
			continue
		}
		shortest := path.DijkstraFrom(from, g)
		for _, t := range targets {
			nodes, _ := shortest.To(t)
			if len(nodes) == 0 {
				continue
			}
			ids := make([]int64, len(nodes))
			for i, pn := range nodes {
				ids[i] = pn.ID()
			}
			h.Paths = append(h.Paths, ids)
		}
	}

	s.selected = id
	s.highlight = h
	s.publishHighlight()
	logging.Debug("node selected", "id", id, "paths", len(h.Paths))
	return h, nil
}

// UnselectAll clears the selection.
func (s *Sync) UnselectAll() {
	if s.selected == 0 {
		return
	}
	s.selected = 0
	s.highlight = Highlight{}
	s.publishHighlight()
}

// family returns the views governing n and the data sources they reach
// through it.
func (s *Sync) family(n *model.Node) (views, targets []int64) {
	switch n.Type {
	case model.TypeData:
		targets = []int64{n.ID}
		views = s.store.ViewsDownstream(n.ID)
	case model.TypeDataFilter:
		targets = s.store.DataSources(n.ID)
		for _, t := range targets {
			for _, v := range s.store.ViewsDownstream(t) {
				if !slices.Contains(views, v) {
					views = append(views, v)
				}
			}
		}
	case model.TypeViewFilter:
		targets = s.store.DataSources(n.ID)
		views = s.store.ViewsDownstream(n.ID)
	default:
		targets = s.store.DataSources(n.ID)
		for _, tr := range n.Tracks {
			for _, d := range s.store.DataSources(tr.ID) {
				if !slices.Contains(targets, d) {
					targets = append(targets, d)
				}
			}
		}
		if !n.Ignore {
			views = []int64{n.ID}
		}
	}
	views = slices.DeleteFunc(views, func(v int64) bool {
		vn, ok := s.store.Get(v)
		return !ok || vn.Ignore
	})
	return views, targets
}

func (s *Sync) publishHighlight() {
	if s.pub == nil {
		return
	}
	if err := s.pub.Publish(pubsub.TopicDiagram, EventHighlight, s.highlight); err != nil {
		logging.Warn("failed to publish highlight", "error", err)
	}
}
