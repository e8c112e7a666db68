package editor

import (
	"context"
	"fmt"
	"slices"

	"github.com/shahcompbio/montage-sub000/pkg/consistency"
	"github.com/shahcompbio/montage-sub000/pkg/logging"
	"github.com/shahcompbio/montage-sub000/pkg/model"
)

// EditResult describes the effect of a direct field edit.
type EditResult struct {
	// Cleared lists fields reset because their display condition no longer
	// holds.
	Cleared []string `json:"cleared,omitempty"`
	// Stale are the views refreshed after the edit.
	Stale []int64 `json:"stale,omitempty"`
	// FacadeCleared reports whether the active view facade was dropped.
	FacadeCleared bool `json:"facadeCleared,omitempty"`
}

// EditField stores values for fieldID on a live node and refreshes the
// views it feeds. Fields that do not take part in queries are ignored, and
// title edits only relabel the view.
func (e *Editor) EditField(ctx context.Context, id int64, fieldID string, values []string) (*EditResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	n, ok := e.store.Get(id)
	if !ok {
		return nil, fmt.Errorf("edit node %d: %w", id, model.ErrNodeNotFound)
	}
	fs, err := e.resolver.Resolve(n.Type, n, nil)
	if err != nil {
		return nil, err
	}
	f, ok := fs[fieldID]
	if !ok {
		return nil, fmt.Errorf("edit node %d field %s: %w", id, fieldID, model.ErrUnknownField)
	}
	if f.Query != nil && !*f.Query {
		return &EditResult{}, nil
	}
	if values == nil {
		values = []string{}
	}

	res := &EditResult{}
	if fieldID == model.FieldTitle {
		e.setTitle(n, values)
		logging.DebugContext(ctx, "view retitled", "id", id)
		return res, nil
	}

	res.Cleared = e.clearHidden(n, fs, fieldID, values)

	prev, had := n.FieldValues(fieldID)
	prev = slices.Clone(prev)
	prior := make(map[string]model.FilterValue, 1)
	if fv, ok := n.Filters[fieldID]; ok {
		prior[fieldID] = fv
	}
	if e.engine.Apply(n, fieldID, f, values) {
		if err := e.engine.PostProcess(ctx, n, fs, []string{fieldID}, prior); err != nil {
			return nil, fmt.Errorf("edit node %d field %s: %w", id, fieldID, err)
		}
	} else if had && !f.ESID.IsCompound() {
		if fv, ok := n.Filters[fieldID]; ok {
			fv.FieldValues = consistency.PreserveOrder(prev, fv.FieldValues)
			n.Filters[fieldID] = fv
		} else if v, ok := n.Info[fieldID]; ok {
			n.Info[fieldID] = consistency.PreserveOrder(prev, v)
		}
	}

	// a data type change can reshape the fieldsets downstream
	if err := e.engine.UpdateTree(ctx); err != nil {
		logging.WarnContext(ctx, "tree reconciliation after edit failed", "error", err)
	}

	res.Stale = e.store.ViewsDownstream(id)
	if owner, active := e.facades.ViewID(); active && (owner == id || slices.Contains(res.Stale, owner)) {
		e.facades.Reset()
		res.FacadeCleared = true
	}
	e.updateViews(ctx, res.Stale)
	logging.DebugContext(ctx, "field edited", "id", id, "field", fieldID, "stale", len(res.Stale))
	return res, nil
}

// clearHidden resets the fields watching fieldID when none of their display
// conditions matches the new value.
func (e *Editor) clearHidden(n *model.Node, fs model.Fieldset, fieldID string, values []string) []string {
	value := ""
	if len(values) > 0 {
		value = values[0]
	}

	var watchers []*model.FieldDescriptor
	for _, w := range fs.Ordered() {
		if _, watches := w.DisplayConditions[fieldID]; watches && n.HasField(w.ID) {
			watchers = append(watchers, w)
		}
	}
	for _, w := range watchers {
		if w.DisplayConditions[fieldID].Matches(value) {
			return nil
		}
	}

	var cleared []string
	for _, w := range watchers {
		e.engine.Apply(n, w.ID, w, []string{""})
		cleared = append(cleared, w.ID)
	}
	return cleared
}

// setTitle stores a view title, on every track of a track view as well.
func (e *Editor) setTitle(n *model.Node, values []string) {
	n.Info[model.FieldTitle] = slices.Clone(values)
	for _, t := range n.Tracks {
		if t.ID == n.ID {
			continue
		}
		if tn, ok := e.store.Get(t.ID); ok {
			tn.Info[model.FieldTitle] = slices.Clone(values)
		}
	}
}
