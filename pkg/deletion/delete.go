// Package deletion removes nodes from a portrait together with the parts of
// their trees that nothing else depends on.
package deletion

import (
	"context"
	"slices"

	"github.com/shahcompbio/montage-sub000/pkg/diagram"
	"github.com/shahcompbio/montage-sub000/pkg/logging"
	"github.com/shahcompbio/montage-sub000/pkg/metrics"
	"github.com/shahcompbio/montage-sub000/pkg/model"
	"github.com/shahcompbio/montage-sub000/pkg/nodestore"
	"github.com/shahcompbio/montage-sub000/pkg/render"
)

// Result describes what a deletion changed.
type Result struct {
	// Removed lists every node taken out of the store, in removal order.
	Removed []int64 `json:"removed"`
	// RemovedViews are the removed nodes that had a rendering container.
	RemovedViews []int64 `json:"removedViews"`
	// Stale are surviving views whose lineage changed.
	Stale []int64 `json:"stale"`
	// Active is the node still selected after the deletion, or 0.
	Active int64 `json:"active"`
	// FacadeCleared reports whether the active view facade was dropped.
	FacadeCleared bool `json:"facadeCleared"`
}

// Deleter removes nodes from the store and the diagram. It is not safe for
// concurrent use.
type Deleter struct {
	store   *nodestore.Store
	diagram *diagram.Sync
	facades *render.Facades
}

// New creates a deleter. facades may be nil.
func New(store *nodestore.Store, diag *diagram.Sync, facades *render.Facades) *Deleter {
	return &Deleter{store: store, diagram: diag, facades: facades}
}

// DeleteNode removes id and walks away from it in both directions, removing
// every node that only id kept in the portrait. Nodes still shared with
// another branch stay. Without cascade the data sources are never removed
// by the upward pass, and data nodes are never removed by the downward pass.
// With keepCurrentTab the current selection survives if its node does.
func (d *Deleter) DeleteNode(ctx context.Context, id int64, cascade, keepCurrentTab bool) (*Result, error) {
	res := &Result{}
	if !d.store.Has(id) {
		metrics.Deletions.WithLabelValues("noop").Inc()
		return res, nil
	}

	before := d.lineages(id)
	previous := d.diagram.Selected()

	d.deleteTree(id, cascade, res)

	if keepCurrentTab && d.store.Has(previous) {
		res.Active = previous
	} else {
		d.diagram.UnselectAll()
	}
	if err := d.diagram.Reload(ctx, res.Active); err != nil {
		metrics.Deletions.WithLabelValues("error").Inc()
		return nil, err
	}

	for view, lineage := range before {
		if !d.store.Has(view) {
			continue
		}
		if !sameMembers(lineage, d.store.Lineage(view)) {
			res.markStale(d.hostOf(view))
		}
	}
	res.Stale = slices.DeleteFunc(res.Stale, func(v int64) bool { return !d.store.Has(v) })
	slices.Sort(res.Stale)

	metrics.Deletions.WithLabelValues("ok").Inc()
	metrics.StaleViews.Add(float64(len(res.Stale)))
	logging.InfoContext(ctx, "node deleted",
		"id", id, "cascade", cascade, "removed", len(res.Removed), "stale", len(res.Stale))
	return res, nil
}

func (d *Deleter) deleteTree(id int64, cascade bool, res *Result) {
	d.up(id, cascade, false, res)
	d.down(id, cascade, false, res)
	d.remove(id, diagram.Both, cascade, res)
}

// up walks parents toward the data sources. A parent is followed only while
// id is its sole child.
func (d *Deleter) up(id int64, cascade, self bool, res *Result) {
	n, ok := d.store.Get(id)
	if !ok {
		return
	}
	for _, p := range slices.Clone(n.Parents) {
		parent, ok := d.store.Get(p)
		if !ok {
			logging.Warn("dangling parent reference", "node", id, "parent", p)
			continue
		}
		if len(parent.Children) > 1 {
			continue
		}
		if !cascade && model.IsSourceTier(parent.Type) {
			continue
		}
		d.up(p, cascade, true, res)
	}
	if self && len(n.Children) <= 1 {
		d.remove(id, diagram.Up, cascade, res)
	}
}

// down walks children toward the views. A child is followed only while id is
// its sole parent.
func (d *Deleter) down(id int64, cascade, self bool, res *Result) {
	n, ok := d.store.Get(id)
	if !ok {
		return
	}
	for _, c := range slices.Clone(n.Children) {
		child, ok := d.store.Get(c)
		if !ok {
			logging.Warn("dangling child reference", "node", id, "child", c)
			continue
		}
		if len(child.Parents) > 1 {
			continue
		}
		if !cascade && child.Type == model.TypeData {
			continue
		}
		d.down(c, cascade, true, res)
	}
	if self && len(n.Parents) <= 1 {
		d.remove(id, diagram.Down, cascade, res)
	}
}

// remove takes a single node out of the diagram and the store. Removing a
// view also removes the tracks it hosts; removing a track detaches it from
// its host.
func (d *Deleter) remove(id int64, dir diagram.Direction, cascade bool, res *Result) {
	n, ok := d.store.Get(id)
	if !ok {
		return
	}

	if dir == diagram.Up && d.feedsTrack(n) {
		// the edge into a track is drawn into its host, which stays
		dir = diagram.Both
	}
	d.diagram.RemoveNode(id, dir)
	d.store.UnlinkAllReferencesTo(id)
	d.store.Remove(id)
	res.Removed = append(res.Removed, id)
	if n.IsView() {
		res.RemovedViews = append(res.RemovedViews, id)
	}
	logging.Debug("node removed", "id", id, "type", n.Type)

	if d.facades != nil && d.facades.Has() {
		if owner, _ := d.facades.ViewID(); owner == id {
			d.facades.Reset()
			res.FacadeCleared = true
		}
	}

	if n.Ignore && n.ParentNodeID != 0 {
		d.detachTrack(n.ParentNodeID, id, res)
	}
	for _, t := range n.Tracks {
		if t.ID != id && d.store.Has(t.ID) {
			d.deleteTree(t.ID, cascade, res)
		}
	}
}

func (d *Deleter) detachTrack(hostID, trackID int64, res *Result) {
	host, ok := d.store.Get(hostID)
	if !ok {
		return
	}
	host.Tracks = slices.DeleteFunc(host.Tracks, func(t model.Track) bool { return t.ID == trackID })
	if len(host.Tracks) == 1 && host.Tracks[0].ID == hostID {
		host.Tracks = nil
	}
	if host.CurrentTreeIndex >= len(host.Tracks) {
		host.CurrentTreeIndex = max(len(host.Tracks)-1, 0)
	}
	res.markStale(hostID)
}

func (d *Deleter) feedsTrack(n *model.Node) bool {
	for _, c := range n.Children {
		if child, ok := d.store.Get(c); ok && child.Ignore {
			return true
		}
	}
	return false
}

// lineages snapshots the lineage of every view except skip.
func (d *Deleter) lineages(skip int64) map[int64][]int64 {
	out := map[int64][]int64{}
	for _, n := range d.store.NodesOfType(model.IsViewType) {
		if n.ID != skip {
			out[n.ID] = d.store.Lineage(n.ID)
		}
	}
	return out
}

// hostOf maps a track view to the view hosting it.
func (d *Deleter) hostOf(id int64) int64 {
	if n, ok := d.store.Get(id); ok && n.Ignore && d.store.Has(n.ParentNodeID) {
		return n.ParentNodeID
	}
	return id
}

func (r *Result) markStale(id int64) {
	if !slices.Contains(r.Stale, id) {
		r.Stale = append(r.Stale, id)
	}
}

func sameMembers(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for _, id := range a {
		if !slices.Contains(b, id) {
			return false
		}
	}
	return true
}
