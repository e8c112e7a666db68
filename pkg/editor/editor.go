// Package editor ties the portrait engine together: it owns the node store
// and serializes every mutation, then hands stale views to their renderers
// once the graph has settled.
package editor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shahcompbio/montage-sub000/pkg/consistency"
	"github.com/shahcompbio/montage-sub000/pkg/deletion"
	"github.com/shahcompbio/montage-sub000/pkg/diagram"
	"github.com/shahcompbio/montage-sub000/pkg/fieldconfig"
	"github.com/shahcompbio/montage-sub000/pkg/fieldset"
	"github.com/shahcompbio/montage-sub000/pkg/logging"
	"github.com/shahcompbio/montage-sub000/pkg/model"
	"github.com/shahcompbio/montage-sub000/pkg/nodestore"
	"github.com/shahcompbio/montage-sub000/pkg/pubsub"
	"github.com/shahcompbio/montage-sub000/pkg/render"
	"github.com/shahcompbio/montage-sub000/pkg/structure"
)

// Editor is safe for concurrent use; one mutex serializes all operations.
type Editor struct {
	mu sync.Mutex

	catalog   *fieldconfig.Catalog
	store     *nodestore.Store
	resolver  *fieldset.Resolver
	engine    *consistency.Engine
	diagram   *diagram.Sync
	builder   *structure.Builder
	deleter   *deletion.Deleter
	renderers *render.Registry
	facades   *render.Facades
	pub       pubsub.Publisher

	engineOpts []consistency.Option
}

// Option configures an Editor.
type Option func(*Editor)

// WithPublisher publishes diagram, render and validation events on pub.
func WithPublisher(pub pubsub.Publisher) Option {
	return func(e *Editor) {
		e.pub = pub
	}
}

// WithRenderers replaces the default renderer registry.
func WithRenderers(r *render.Registry) Option {
	return func(e *Editor) {
		e.renderers = r
	}
}

// WithEngineOptions configures the consistency engine, e.g. to register
// post-processors.
func WithEngineOptions(opts ...consistency.Option) Option {
	return func(e *Editor) {
		e.engineOpts = append(e.engineOpts, opts...)
	}
}

// New creates an editor over an empty portrait. Without WithRenderers, views
// are rendered by publishing render events.
func New(cat *fieldconfig.Catalog, opts ...Option) *Editor {
	e := &Editor{
		catalog: cat,
		store:   nodestore.New(),
		facades: &render.Facades{},
	}
	for _, opt := range opts {
		opt(e)
	}

	e.resolver = fieldset.New(cat, e.store)
	e.engine = consistency.New(e.resolver, e.store, e.engineOpts...)
	e.diagram = diagram.New(e.store, cat, e.pub)
	e.builder = structure.NewBuilder(cat, e.store, e.engine, e.diagram)
	e.deleter = deletion.New(e.store, e.diagram, e.facades)

	if e.renderers == nil {
		e.renderers = render.NewRegistry()
		if e.pub != nil {
			e.renderers.SetFallback(render.NewEventRenderer(e.pub, e.lineage))
		}
	}
	return e
}

// Catalog returns the active field catalog.
func (e *Editor) Catalog() *fieldconfig.Catalog {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.catalog
}

// Facades returns the active view facades.
func (e *Editor) Facades() *render.Facades {
	return e.facades
}

// Nodes returns copies of every live node ordered by ID.
func (e *Editor) Nodes() []*model.Node {
	e.mu.Lock()
	defer e.mu.Unlock()
	nodes := e.store.Nodes()
	out := make([]*model.Node, len(nodes))
	for i, n := range nodes {
		out[i] = n.Clone()
	}
	return out
}

// Node returns a copy of the node with the given ID.
func (e *Editor) Node(id int64) (*model.Node, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	n, ok := e.store.Get(id)
	if !ok {
		return nil, fmt.Errorf("node %d: %w", id, model.ErrNodeNotFound)
	}
	return n.Clone(), nil
}

// Fieldset returns the fields that currently apply to a live node.
func (e *Editor) Fieldset(id int64) (model.Fieldset, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	n, ok := e.store.Get(id)
	if !ok {
		return nil, fmt.Errorf("node %d: %w", id, model.ErrNodeNotFound)
	}
	return e.resolver.Resolve(n.Type, n, nil)
}

// Diagram returns a copy of the diagram element set.
func (e *Editor) Diagram() *model.Elements {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.diagram.Elements()
}

// Select makes id the selected node.
func (e *Editor) Select(id int64) (diagram.Highlight, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.diagram.SelectNode(id)
}

// Unselect clears the selection.
func (e *Editor) Unselect() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.diagram.UnselectAll()
}

// Selected returns the selected node, or 0.
func (e *Editor) Selected() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.diagram.Selected()
}

// DeleteNode removes id and the parts of its trees nothing else uses, then
// refreshes the views whose inputs changed.
func (e *Editor) DeleteNode(ctx context.Context, id int64, cascade, keepCurrentTab bool) (*deletion.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	res, err := e.deleter.DeleteNode(ctx, id, cascade, keepCurrentTab)
	if err != nil {
		return nil, err
	}
	e.updateViews(ctx, res.Stale)
	return res, nil
}

// BeginStructure starts the named wizard. selected defaults to the selected
// diagram node when 0.
func (e *Editor) BeginStructure(name string, selected int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if selected == 0 {
		selected = e.diagram.Selected()
	}
	return e.builder.Begin(name, selected)
}

// StructureFieldset returns the fields of a wizard step.
func (e *Editor) StructureFieldset(step int, nodeType string) (model.Fieldset, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.builder.Fieldset(step, nodeType)
}

// Staged returns copies of the wizard's staging nodes.
func (e *Editor) Staged() []*model.Node {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.builder.Staged()
}

// Advance fills a wizard step and moves forward.
func (e *Editor) Advance(ctx context.Context, step int, nodeType string, values map[string][]string) (structure.Progress, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, err := e.builder.Advance(ctx, step, nodeType, values)
	e.reportValidation(err)
	return p, err
}

// Retreat fills a wizard step and moves back.
func (e *Editor) Retreat(ctx context.Context, step int, nodeType string, values map[string][]string) (structure.Progress, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, err := e.builder.Retreat(ctx, step, nodeType, values)
	e.reportValidation(err)
	return p, err
}

// Commit adds the staged structure to the portrait.
func (e *Editor) Commit(ctx context.Context) (*structure.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	res, err := e.builder.Commit(ctx)
	if err != nil {
		return nil, err
	}
	return res, e.committed(ctx, res)
}

// LinkExistingView finishes the wizard by connecting a live view at step.
func (e *Editor) LinkExistingView(ctx context.Context, step int, viewID int64) (*structure.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	res, err := e.builder.LinkExistingView(ctx, step, viewID)
	if err != nil {
		return nil, err
	}
	return res, e.committed(ctx, res)
}

// DiscardStructure drops the wizard in progress.
func (e *Editor) DiscardStructure() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.builder.Discard()
}

// committed settles the graph after a commit and only then initializes the
// new views and refreshes the stale ones.
func (e *Editor) committed(ctx context.Context, res *structure.Result) error {
	if err := e.engine.UpdateTree(ctx); err != nil {
		logging.WarnContext(ctx, "tree reconciliation after commit failed", "error", err)
	}
	if err := e.diagram.Reload(ctx, res.Active); err != nil {
		return err
	}
	for _, id := range res.Views {
		e.renderView(ctx, id, render.ViewRenderer.Init)
	}
	e.updateViews(ctx, res.Stale)
	return nil
}

// ReloadCatalog swaps in cat, re-reconciles every node and refreshes every
// view. A wizard in progress is discarded.
func (e *Editor) ReloadCatalog(ctx context.Context, cat *fieldconfig.Catalog) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.catalog = cat
	e.resolver.SetConfig(cat)
	e.builder.Discard()
	e.builder.SetTemplates(cat)
	e.diagram.SetTitles(cat)
	e.diagram.Rebuild()

	err := e.engine.UpdateTree(ctx)
	if rerr := e.diagram.Reload(ctx, e.diagram.Selected()); rerr != nil {
		err = errors.Join(err, rerr)
	}
	e.updateViews(ctx, e.viewIDs())
	logging.InfoContext(ctx, "catalog reloaded", "nodes", e.store.Len())
	return err
}

// UpdateTree reconciles every node against the current catalog.
func (e *Editor) UpdateTree(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.engine.UpdateTree(ctx)
}

func (e *Editor) reportValidation(err error) {
	var verr *structure.ValidationError
	if e.pub == nil || !errors.As(err, &verr) {
		return
	}
	if perr := e.pub.Publish(pubsub.TopicValidation, "failed", verr.Fields); perr != nil {
		logging.Warn("failed to publish validation errors", "error", perr)
	}
}

// updateViews asks the renderers of ids to refresh. Nodes that no longer
// exist are skipped.
func (e *Editor) updateViews(ctx context.Context, ids []int64) {
	for _, id := range ids {
		e.renderView(ctx, id, render.ViewRenderer.Update)
	}
}

func (e *Editor) renderView(ctx context.Context, id int64, call func(render.ViewRenderer, context.Context, *model.Node) error) {
	n, ok := e.store.Get(id)
	if !ok || !n.IsView() {
		return
	}
	r, err := e.renderers.For(n.ViewType)
	if err != nil {
		logging.DebugContext(ctx, "no renderer for view", "id", id, "viewType", n.ViewType)
		return
	}
	if err := call(r, ctx, n.Clone()); err != nil {
		logging.WarnContext(ctx, "view renderer failed", "id", id, "viewType", n.ViewType, "error", err)
	}
}

// viewIDs returns every view shown in its own container.
func (e *Editor) viewIDs() []int64 {
	var ids []int64
	for _, n := range e.store.NodesOfType(model.IsViewType) {
		if !n.Ignore {
			ids = append(ids, n.ID)
		}
	}
	return ids
}

func (e *Editor) lineage(id int64) []*model.Node {
	var out []*model.Node
	for _, anc := range e.store.Lineage(id) {
		if n, ok := e.store.Get(anc); ok {
			out = append(out, n.Clone())
		}
	}
	return out
}
