package graph

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/shahcompbio/montage-sub000/pkg/model"
)

func chain(ids ...int64) []*model.Node {
	nodes := make([]*model.Node, len(ids))
	for i, id := range ids {
		nodes[i] = model.NewNode(id, model.TypeDataFilter)
	}
	for i := 1; i < len(nodes); i++ {
		nodes[i-1].Children = append(nodes[i-1].Children, ids[i])
		nodes[i].Parents = append(nodes[i].Parents, ids[i-1])
	}
	return nodes
}

func TestNewPortraitGraph(t *testing.T) {
	pg := NewPortraitGraph()
	if pg.Len() != 0 {
		t.Errorf("new graph has %d nodes, want 0", pg.Len())
	}
	if len(pg.Edges()) != 0 {
		t.Errorf("new graph has edges: %v", pg.Edges())
	}
}

func TestFromNodes(t *testing.T) {
	nodes := chain(1, 2, 3)
	// dangling reference is ignored
	nodes[2].Children = append(nodes[2].Children, 99)

	pg := FromNodes(nodes)
	if pg.Len() != 3 {
		t.Errorf("Len() = %d, want 3", pg.Len())
	}
	want := [][2]int64{{1, 2}, {2, 3}}
	if diff := cmp.Diff(want, pg.Edges()); diff != "" {
		t.Errorf("Edges() mismatch (-want +got):\n%s", diff)
	}
	if got := pg.Parents(3); !cmp.Equal(got, []int64{2}) {
		t.Errorf("Parents(3) = %v, want [2]", got)
	}
	if got := pg.Children(1); !cmp.Equal(got, []int64{2}) {
		t.Errorf("Children(1) = %v, want [2]", got)
	}
}

func TestFromElements(t *testing.T) {
	el := model.NewElements()
	el.AddNode(&model.ElementNode{ID: 10})
	el.AddNode(&model.ElementNode{ID: 20})
	el.AddEdge(&model.ElementEdge{Source: 10, Target: 20})
	el.AddEdge(&model.ElementEdge{Source: 10, Target: 20})

	pg := FromElements(el)
	if diff := cmp.Diff([][2]int64{{10, 20}}, pg.Edges()); diff != "" {
		t.Errorf("duplicate edges not collapsed (-want +got):\n%s", diff)
	}
}

func TestSelfLinks(t *testing.T) {
	pg := NewPortraitGraph()
	pg.AddEdge(5, 5)
	pg.AddEdge(5, 5)

	if got := pg.SelfLinks(); !cmp.Equal(got, []int64{5}) {
		t.Errorf("SelfLinks() = %v, want [5]", got)
	}
	if len(pg.Edges()) != 0 {
		t.Errorf("self link stored as edge: %v", pg.Edges())
	}
}

func TestReversed(t *testing.T) {
	pg := FromNodes(chain(1, 2, 3))
	rev := pg.Reversed()

	want := [][2]int64{{2, 1}, {3, 2}}
	if diff := cmp.Diff(want, rev.Edges()); diff != "" {
		t.Errorf("Reversed() mismatch (-want +got):\n%s", diff)
	}
	if rev.Len() != pg.Len() {
		t.Errorf("Reversed() has %d nodes, want %d", rev.Len(), pg.Len())
	}
}
