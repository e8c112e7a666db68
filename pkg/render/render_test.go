package render

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/shahcompbio/montage-sub000/pkg/model"
	"github.com/shahcompbio/montage-sub000/pkg/pubsub"
)

type nopRenderer struct{ name string }

func (nopRenderer) Init(context.Context, *model.Node) error            { return nil }
func (nopRenderer) Update(context.Context, *model.Node) error          { return nil }
func (nopRenderer) UpdateView(context.Context, *model.Node) error      { return nil }
func (nopRenderer) ClearViewFacade(context.Context, *model.Node) error { return nil }
func (nopRenderer) ResizeView(context.Context, *model.Node) error      { return nil }

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	violin := nopRenderer{name: "violin"}
	reg.Register("violin", violin)

	got, err := reg.For("violin")
	if err != nil {
		t.Fatalf("For(violin) error = %v", err)
	}
	if got != violin {
		t.Errorf("For(violin) = %v, want %v", got, violin)
	}

	if _, err := reg.For("scatterplot"); !errors.Is(err, model.ErrUnknownRenderer) {
		t.Errorf("For(unregistered) error = %v, want ErrUnknownRenderer", err)
	}

	fallback := nopRenderer{name: "fallback"}
	reg.SetFallback(fallback)
	got, err = reg.For("scatterplot")
	if err != nil || got != fallback {
		t.Errorf("For(unregistered) with fallback = %v, %v", got, err)
	}
}

func TestEventRendererPublishesQuery(t *testing.T) {
	pub := pubsub.NewSSEPublisher()
	defer pub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub, err := pub.Subscribe(ctx, pubsub.TopicRender)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	data := model.NewNode(1, model.TypeData)
	data.Filters[model.FieldDataType] = model.FilterValue{ESID: "caller", FieldValues: []string{"titan"}}
	view := model.NewNode(2, "violin")
	view.Info[model.FieldTitle] = []string{"Copy number"}

	r := NewEventRenderer(pub, func(id int64) []*model.Node {
		return []*model.Node{view, data}
	})
	if err := r.Update(ctx, view); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	var ev pubsub.Event
	select {
	case ev = <-sub.Events():
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for render request")
	}
	if ev.Type != ActionUpdate {
		t.Errorf("event type = %q, want %q", ev.Type, ActionUpdate)
	}

	var req Request
	if err := json.Unmarshal(ev.Data, &req); err != nil {
		t.Fatalf("decode request: %v", err)
	}
	if req.NodeID != 2 || req.ViewType != "violin" || req.Title != "Copy number" {
		t.Errorf("request = %+v", req)
	}
	if req.Query == nil {
		t.Fatal("request has no query")
	}
	if diff := cmp.Diff([]string{"titan"}, req.Query.Terms["caller"]); diff != "" {
		t.Errorf("query terms mismatch (-want +got):\n%s", diff)
	}
}

func TestEventRendererResizeHasNoQuery(t *testing.T) {
	pub := pubsub.NewSSEPublisher()
	defer pub.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub, err := pub.Subscribe(ctx, pubsub.TopicRender)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	r := NewEventRenderer(pub, nil)
	if err := r.ResizeView(ctx, model.NewNode(3, "scatterplot")); err != nil {
		t.Fatalf("ResizeView() error = %v", err)
	}
	ev := <-sub.Events()
	var req Request
	if err := json.Unmarshal(ev.Data, &req); err != nil {
		t.Fatalf("decode request: %v", err)
	}
	if req.Query != nil {
		t.Errorf("resize request carries a query: %+v", req.Query)
	}
}

func TestFacades(t *testing.T) {
	var f Facades
	if f.Has() {
		t.Fatal("new facades not empty")
	}
	if _, ok := f.ViewID(); ok {
		t.Fatal("ViewID() on empty facades reported a view")
	}

	f.Add(Facade{ID: "a", ViewID: 10})
	f.Add(Facade{ID: "b", ViewID: 20, TrackID: 21})

	if id, ok := f.ViewID(); !ok || id != 10 {
		t.Errorf("ViewID() = %d, %v, want 10, true", id, ok)
	}
	if !f.RemoveByID("a") {
		t.Error("RemoveByID(a) = false")
	}
	if f.RemoveByID("a") {
		t.Error("RemoveByID(a) twice = true")
	}
	if diff := cmp.Diff([]Facade{{ID: "b", ViewID: 20, TrackID: 21}}, f.All()); diff != "" {
		t.Errorf("All() mismatch (-want +got):\n%s", diff)
	}

	f.Reset()
	if f.Has() {
		t.Error("Has() after Reset() = true")
	}
}
