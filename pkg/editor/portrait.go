package editor

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/shahcompbio/montage-sub000/pkg/cycles"
	"github.com/shahcompbio/montage-sub000/pkg/logging"
	"github.com/shahcompbio/montage-sub000/pkg/model"
	"github.com/shahcompbio/montage-sub000/pkg/render"
)

// Portrait is the saved form of an editor session. View state never leaves
// the process.
type Portrait struct {
	Elements *model.Elements       `json:"elements"`
	Nodes    map[int64]*model.Node `json:"nodes"`
}

// Serialize captures the current portrait.
func (e *Editor) Serialize() *Portrait {
	e.mu.Lock()
	defer e.mu.Unlock()

	p := &Portrait{
		Elements: e.diagram.Elements(),
		Nodes:    make(map[int64]*model.Node, e.store.Len()),
	}
	for _, n := range e.store.Nodes() {
		c := n.Clone()
		c.View = nil
		p.Nodes[c.ID] = c
	}
	return p
}

// MarshalPortrait serializes the current portrait as JSON.
func (e *Editor) MarshalPortrait() ([]byte, error) {
	return json.Marshal(e.Serialize())
}

// UnmarshalPortrait decodes a JSON portrait.
func UnmarshalPortrait(b []byte) (*Portrait, error) {
	var p Portrait
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidPortrait, err)
	}
	return &p, nil
}

// Validate checks that every link of p resolves and that p is acyclic.
func (p *Portrait) Validate() error {
	if p == nil || p.Nodes == nil {
		return fmt.Errorf("%w: no nodes", model.ErrInvalidPortrait)
	}
	for key, n := range p.Nodes {
		if n == nil || n.ID != key {
			return fmt.Errorf("%w: node entry %d does not match its ID", model.ErrInvalidPortrait, key)
		}
		if n.Type == "" {
			return fmt.Errorf("%w: node %d has no type", model.ErrInvalidPortrait, key)
		}
		for _, ref := range slices.Concat(n.Parents, n.Children) {
			if _, ok := p.Nodes[ref]; !ok {
				return model.ErrDanglingReference(n.ID, ref)
			}
		}
	}
	nodes := make([]*model.Node, 0, len(p.Nodes))
	for _, n := range p.Nodes {
		nodes = append(nodes, n)
	}
	if err := cycles.Check(nodes); err != nil {
		return fmt.Errorf("%w: %w", model.ErrInvalidPortrait, err)
	}
	return nil
}

// Restore replaces the current portrait with p. Data nodes are loaded
// first, every node is reconciled against the current catalog and every
// view is initialized. An invalid portrait leaves the editor untouched.
func (e *Editor) Restore(ctx context.Context, p *Portrait) error {
	if err := p.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.builder.Discard()
	e.facades.Reset()
	e.store.Clear()

	ids := make([]int64, 0, len(p.Nodes))
	for id := range p.Nodes {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	slices.SortStableFunc(ids, func(a, b int64) int {
		da, db := p.Nodes[a].Type == model.TypeData, p.Nodes[b].Type == model.TypeData
		switch {
		case da && !db:
			return -1
		case db && !da:
			return 1
		}
		return 0
	})
	for _, id := range ids {
		n := p.Nodes[id].Clone()
		if n.IsView() && n.ViewType == "" {
			n.ViewType = n.Type
		}
		e.store.Put(n)
	}

	e.diagram.Restore(p.Elements)
	err := e.engine.UpdateTree(ctx)
	if err != nil {
		logging.WarnContext(ctx, "tree reconciliation after restore failed", "error", err)
	}
	if rerr := e.diagram.Reload(ctx, 0); rerr != nil {
		return rerr
	}
	for _, id := range e.viewIDs() {
		e.renderView(ctx, id, render.ViewRenderer.Init)
	}
	logging.InfoContext(ctx, "portrait restored", "nodes", len(ids))
	return err
}
