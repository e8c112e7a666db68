package diagram

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/shahcompbio/montage-sub000/pkg/model"
	"github.com/shahcompbio/montage-sub000/pkg/nodestore"
	"github.com/shahcompbio/montage-sub000/pkg/pubsub"
)

type titles map[string]string

func (t titles) Title(nodeType string) string { return t[nodeType] }

// twoViews builds data(1) -> df(2) -> vf(3) -> violin(4) and
// df(2) -> vf(6) -> scatterplot(5).
func twoViews(t *testing.T) *nodestore.Store {
	t.Helper()
	store := nodestore.New()
	for _, n := range []struct {
		id  int64
		typ string
	}{
		{1, model.TypeData}, {2, model.TypeDataFilter}, {3, model.TypeViewFilter},
		{4, "violin"}, {5, "scatterplot"}, {6, model.TypeViewFilter},
	} {
		if _, err := store.CreateWithID(n.typ, n.id); err != nil {
			t.Fatalf("create %d: %v", n.id, err)
		}
	}
	for _, l := range [][2]int64{{1, 2}, {2, 3}, {3, 4}, {2, 6}, {6, 5}} {
		if err := store.Link(l[0], l[1]); err != nil {
			t.Fatalf("link %v: %v", l, err)
		}
	}
	return store
}

func TestAddNodeGlyphs(t *testing.T) {
	s := New(nodestore.New(), titles{"violin": "Violin Plot"}, nil)
	s.AddNode(1, model.TypeData, "t1")
	s.AddNode(2, model.TypeViewFilter, "t1")
	s.AddNode(3, "violin", "t1")
	s.AddNode(4, "chipheatmap", "t1")

	want := []model.ElementNode{
		{ID: 1, Type: "data", Label: "Data", Shape: "ellipse", Class: "cy-data-node", TreeID: "t1"},
		{ID: 2, Type: "viewfilter", Label: "Region Filter", Shape: "triangle", Class: "cy-vizfilter-node", TreeID: "t1"},
		{ID: 3, Type: "violin", Label: "Violin Plot", Shape: "rectangle", Class: "cy-violin-node", IsView: true, TreeID: "t1"},
		{ID: 4, Type: "chipheatmap", Label: "View", Shape: "rectangle", Class: "cy-chipheatmap-node", IsView: true, TreeID: "t1"},
	}
	var got []model.ElementNode
	for _, n := range s.Elements().Nodes {
		got = append(got, *n)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("nodes mismatch (-want +got):\n%s", diff)
	}
}

func TestRebuildDrawsTracksIntoHostView(t *testing.T) {
	store := twoViews(t)
	vf, _ := store.CreateWithID(model.TypeViewFilter, 8)
	track, _ := store.CreateWithID("cellscape2", 7)
	track.Ignore = true
	track.ParentNodeID = 4
	for _, l := range [][2]int64{{2, vf.ID}, {vf.ID, track.ID}} {
		if err := store.Link(l[0], l[1]); err != nil {
			t.Fatal(err)
		}
	}

	s := New(store, nil, nil)
	s.Rebuild()
	if s.Has(7) {
		t.Error("track node is in the diagram")
	}
	if err := s.Check(); err != nil {
		t.Errorf("Check() = %v", err)
	}

	var got [][2]int64
	for _, e := range s.Elements().Edges {
		if e.Source == 8 || e.Target == 8 {
			got = append(got, [2]int64{e.Source, e.Target})
		}
	}
	if diff := cmp.Diff([][2]int64{{2, 8}, {8, 4}}, got); diff != "" {
		t.Errorf("track edges mismatch (-want +got):\n%s", diff)
	}
}

func TestRemoveNodeDirections(t *testing.T) {
	tests := []struct {
		name string
		dir  Direction
		want []model.ElementEdge
	}{
		{"up", Up, []model.ElementEdge{{Source: 2, Target: 3, Type: "edge"}}},
		{"down", Down, []model.ElementEdge{{Source: 1, Target: 2, Type: "edge"}}},
		{"both", Both, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(nodestore.New(), nil, nil)
			s.AddNode(1, model.TypeData, "")
			s.AddNode(2, model.TypeDataFilter, "")
			s.AddNode(3, model.TypeViewFilter, "")
			s.AddEdge(1, 2)
			s.AddEdge(2, 3)

			s.RemoveNode(2, tt.dir)
			if s.Has(2) {
				t.Fatal("node still in diagram")
			}
			var got []model.ElementEdge
			for _, e := range s.Elements().Edges {
				got = append(got, *e)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("edges mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSelectNodeHighlightsPaths(t *testing.T) {
	tests := []struct {
		name      string
		id        int64
		wantViews []int64
		wantPaths [][]int64
	}{
		{
			name:      "data highlights every view",
			id:        1,
			wantViews: []int64{4, 5},
			wantPaths: [][]int64{{4, 3, 2, 1}, {5, 6, 2, 1}},
		},
		{
			name:      "datafilter highlights every view of its data",
			id:        2,
			wantViews: []int64{4, 5},
			wantPaths: [][]int64{{4, 3, 2, 1}, {5, 6, 2, 1}},
		},
		{
			name:      "viewfilter highlights its own view",
			id:        6,
			wantViews: []int64{5},
			wantPaths: [][]int64{{5, 6, 2, 1}},
		},
		{
			name:      "view",
			id:        4,
			wantViews: []int64{4},
			wantPaths: [][]int64{{4, 3, 2, 1}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(twoViews(t), nil, nil)
			s.Rebuild()

			h, err := s.SelectNode(tt.id)
			if err != nil {
				t.Fatalf("SelectNode() error = %v", err)
			}
			if diff := cmp.Diff(tt.wantViews, h.Views); diff != "" {
				t.Errorf("views mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantPaths, h.Paths); diff != "" {
				t.Errorf("paths mismatch (-want +got):\n%s", diff)
			}
			if s.Selected() != tt.id {
				t.Errorf("Selected() = %d, want %d", s.Selected(), tt.id)
			}
		})
	}
}

func TestSelectionIsSingle(t *testing.T) {
	s := New(twoViews(t), nil, nil)
	s.Rebuild()

	if _, err := s.SelectNode(4); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SelectNode(5); err != nil {
		t.Fatal(err)
	}
	if s.Selected() != 5 {
		t.Errorf("Selected() = %d, want 5", s.Selected())
	}

	s.RemoveNode(5, Both)
	if s.Selected() != 0 {
		t.Errorf("Selected() after removing selected node = %d, want 0", s.Selected())
	}

	if _, err := s.SelectNode(99); !errors.Is(err, model.ErrNodeNotFound) {
		t.Errorf("SelectNode(missing) error = %v, want ErrNodeNotFound", err)
	}
}

func TestReloadPublishesSnapshotThenDiff(t *testing.T) {
	pub := pubsub.NewSSEPublisher()
	defer pub.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub, err := pub.Subscribe(ctx, pubsub.TopicDiagram)
	if err != nil {
		t.Fatal(err)
	}
	next := func() pubsub.Event {
		t.Helper()
		select {
		case ev := <-sub.Events():
			return ev
		case <-time.After(100 * time.Millisecond):
			t.Fatal("timeout waiting for diagram event")
		}
		return pubsub.Event{}
	}

	store := twoViews(t)
	s := New(store, nil, pub)
	s.Rebuild()
	if err := s.Reload(ctx, 0); err != nil {
		t.Fatal(err)
	}
	if ev := next(); ev.Type != EventSnapshot {
		t.Fatalf("first event = %q, want snapshot", ev.Type)
	}

	s.RemoveNode(5, Both)
	if err := s.Reload(ctx, 0); err != nil {
		t.Fatal(err)
	}
	ev := next()
	if ev.Type != EventDiff {
		t.Fatalf("second event = %q, want diff", ev.Type)
	}
	var d Diff
	if err := json.Unmarshal(ev.Data, &d); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int64{5}, d.RemovedNodes); diff != "" {
		t.Errorf("removed nodes mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"6|5|edge"}, d.RemovedEdges); diff != "" {
		t.Errorf("removed edges mismatch (-want +got):\n%s", diff)
	}

	// unchanged diagram publishes nothing
	if err := s.Reload(ctx, 0); err != nil {
		t.Fatal(err)
	}
	select {
	case ev := <-sub.Events():
		t.Errorf("unexpected event %q after no-op reload", ev.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCheckDetectsDivergence(t *testing.T) {
	store := twoViews(t)
	s := New(store, nil, nil)
	s.Rebuild()

	store.UnlinkAllReferencesTo(5)
	store.Remove(5)
	if err := s.Check(); err == nil {
		t.Error("Check() = nil after store removal, want error")
	}
}
