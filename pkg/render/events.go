package render

import (
	"context"

	"github.com/shahcompbio/montage-sub000/pkg/backend"
	"github.com/shahcompbio/montage-sub000/pkg/logging"
	"github.com/shahcompbio/montage-sub000/pkg/model"
	"github.com/shahcompbio/montage-sub000/pkg/pubsub"
)

// Render actions published on the render topic.
const (
	ActionInit            = "init"
	ActionUpdate          = "update"
	ActionUpdateView      = "updateView"
	ActionClearViewFacade = "clearViewFacade"
	ActionResize          = "resize"
)

// Request is the payload of a render event. Browser-side plot code issues
// Query against the search backend and draws the result.
type Request struct {
	NodeID   int64          `json:"nodeID"`
	ViewType string         `json:"viewType"`
	Title    string         `json:"title,omitempty"`
	Tracks   []model.Track  `json:"tracks,omitempty"`
	Query    *backend.Query `json:"query,omitempty"`
}

// LineageFunc returns a node followed by its ancestors.
type LineageFunc func(id int64) []*model.Node

// EventRenderer forwards lifecycle calls to subscribers of the render topic.
type EventRenderer struct {
	pub     pubsub.Publisher
	lineage LineageFunc
}

// NewEventRenderer creates a renderer that publishes on pub. lineage may be
// nil, in which case requests carry no query.
func NewEventRenderer(pub pubsub.Publisher, lineage LineageFunc) *EventRenderer {
	return &EventRenderer{pub: pub, lineage: lineage}
}

func (r *EventRenderer) publish(ctx context.Context, action string, node *model.Node, withQuery bool) error {
	req := Request{
		NodeID:   node.ID,
		ViewType: node.ViewType,
		Tracks:   node.Tracks,
	}
	if t, ok := node.Info[model.FieldTitle]; ok && len(t) > 0 {
		req.Title = t[0]
	}
	if withQuery && r.lineage != nil {
		q := backend.BuildQuery(r.lineage(node.ID))
		req.Query = &q
	}
	logging.DebugContext(ctx, "render request", "action", action, "id", node.ID, "viewType", node.ViewType)
	return r.pub.Publish(pubsub.TopicRender, action, req)
}

// Init implements ViewRenderer.
func (r *EventRenderer) Init(ctx context.Context, node *model.Node) error {
	return r.publish(ctx, ActionInit, node, true)
}

// Update implements ViewRenderer.
func (r *EventRenderer) Update(ctx context.Context, node *model.Node) error {
	return r.publish(ctx, ActionUpdate, node, true)
}

// UpdateView implements ViewRenderer.
func (r *EventRenderer) UpdateView(ctx context.Context, node *model.Node) error {
	return r.publish(ctx, ActionUpdateView, node, false)
}

// ClearViewFacade implements ViewRenderer.
func (r *EventRenderer) ClearViewFacade(ctx context.Context, node *model.Node) error {
	return r.publish(ctx, ActionClearViewFacade, node, true)
}

// ResizeView implements ViewRenderer.
func (r *EventRenderer) ResizeView(ctx context.Context, node *model.Node) error {
	return r.publish(ctx, ActionResize, node, false)
}
