// Package structure runs the multi-step wizards that create new parts of a
// portrait. Steps are filled into staging nodes that only join the live
// graph on commit.
package structure

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/shahcompbio/montage-sub000/pkg/consistency"
	"github.com/shahcompbio/montage-sub000/pkg/cycles"
	"github.com/shahcompbio/montage-sub000/pkg/diagram"
	"github.com/shahcompbio/montage-sub000/pkg/fieldset"
	"github.com/shahcompbio/montage-sub000/pkg/logging"
	"github.com/shahcompbio/montage-sub000/pkg/model"
	"github.com/shahcompbio/montage-sub000/pkg/nodestore"
)

// Templates looks up structure templates by name.
type Templates interface {
	Structure(name string) (model.StructureTemplate, error)
}

// Progress reports where a wizard stands after a step.
type Progress struct {
	Step int  `json:"step"`
	Done bool `json:"done"`
}

// Result describes a committed structure.
type Result struct {
	StructureID string  `json:"structureID"`
	TreeID      string  `json:"treeID"`
	Nodes       []int64 `json:"nodes"`
	// Views are new views that need their renderer initialized.
	Views []int64 `json:"views"`
	// Stale are existing views whose inputs changed.
	Stale []int64 `json:"stale"`
	// Active is the node to select after the commit.
	Active int64 `json:"active"`
}

type staging struct {
	id        string
	template  model.StructureTemplate
	nodes     []*model.Node
	ids       map[int]int64 // template step ID -> real ID
	completed []bool
	selected  int64
	step      int
}

// Builder stages and commits one structure at a time. It is not safe for
// concurrent use.
type Builder struct {
	templates Templates
	store     *nodestore.Store
	engine    *consistency.Engine
	diagram   *diagram.Sync
	st        *staging
}

// NewBuilder creates a builder that commits into store and diag.
func NewBuilder(templates Templates, store *nodestore.Store, engine *consistency.Engine, diag *diagram.Sync) *Builder {
	return &Builder{
		templates: templates,
		store:     store,
		engine:    engine,
		diagram:   diag,
	}
}

// SetTemplates swaps the template source.
func (b *Builder) SetTemplates(t Templates) {
	b.templates = t
}

// Active reports whether a structure is being staged.
func (b *Builder) Active() bool {
	return b.st != nil
}

// Begin starts the wizard of the named template, discarding any structure
// in progress. Linked templates need selected to name a live node; track
// templates need it to be a view.
func (b *Builder) Begin(name string, selected int64) error {
	tmpl, err := b.templates.Structure(name)
	if err != nil {
		return err
	}
	if len(tmpl.Structure) == 0 {
		return fmt.Errorf("structure %q: %w: no steps", name, model.ErrStepOutOfRange)
	}
	if tmpl.Linked != model.LinkNone {
		n, ok := b.store.Get(selected)
		if !ok {
			return fmt.Errorf("structure %q: %w", name, model.ErrNoSelection)
		}
		if tmpl.Linked == model.LinkTrack && !n.IsView() {
			return fmt.Errorf("structure %q: %w: node %d is not a view", name, model.ErrNoSelection, selected)
		}
	} else {
		selected = 0
	}

	b.Discard()
	st := &staging{
		id:        uuid.NewString(),
		template:  tmpl,
		ids:       make(map[int]int64, len(tmpl.Structure)),
		completed: make([]bool, len(tmpl.Structure)),
		selected:  selected,
	}
	for _, step := range tmpl.Structure {
		n := model.NewNode(b.store.Reserve(), step.Type)
		n.StructureID = st.id
		st.nodes = append(st.nodes, n)
		st.ids[step.ID] = n.ID
	}
	b.st = st
	logging.Debug("structure staging started", "structure", name, "id", st.id, "steps", len(st.nodes))
	return nil
}

// Discard drops the structure in progress without touching the store.
func (b *Builder) Discard() {
	if b.st == nil {
		return
	}
	for _, n := range b.st.nodes {
		b.store.Release(n.ID)
	}
	logging.Debug("structure staging discarded", "id", b.st.id)
	b.st = nil
}

// Step returns the current step, or -1 when idle.
func (b *Builder) Step() int {
	if b.st == nil {
		return -1
	}
	return b.st.step
}

// Staged returns copies of the staging nodes.
func (b *Builder) Staged() []*model.Node {
	if b.st == nil {
		return nil
	}
	out := make([]*model.Node, len(b.st.nodes))
	for i, n := range b.st.nodes {
		out[i] = n.Clone()
	}
	return out
}

// Template returns the template being staged.
func (b *Builder) Template() (model.StructureTemplate, bool) {
	if b.st == nil {
		return model.StructureTemplate{}, false
	}
	return b.st.template, true
}

// Fieldset resolves the fields of step as a node of nodeType. An empty
// nodeType uses the staging node's type.
func (b *Builder) Fieldset(step int, nodeType string) (model.Fieldset, error) {
	_, fs, err := b.config(step, nodeType)
	return fs, err
}

// Advance validates and stores values for step and moves to the next one.
// Completing the last step reports Done.
func (b *Builder) Advance(ctx context.Context, step int, nodeType string, values map[string][]string) (Progress, error) {
	if err := b.fill(ctx, step, nodeType, values); err != nil {
		return Progress{}, err
	}
	st := b.st
	if step == len(st.nodes)-1 {
		st.step = step
		return Progress{Step: step, Done: b.complete()}, nil
	}
	st.step = step + 1
	return Progress{Step: st.step, Done: b.complete()}, nil
}

// Retreat validates and stores values for step and moves to the previous
// one.
func (b *Builder) Retreat(ctx context.Context, step int, nodeType string, values map[string][]string) (Progress, error) {
	if err := b.fill(ctx, step, nodeType, values); err != nil {
		return Progress{}, err
	}
	b.st.step = max(step-1, 0)
	return Progress{Step: b.st.step, Done: b.complete()}, nil
}

func (b *Builder) fill(ctx context.Context, step int, nodeType string, values map[string][]string) error {
	if b.st == nil {
		return model.ErrNotStaging
	}
	if err := b.checkStep(step); err != nil {
		return err
	}
	tmplStep := b.st.template.Structure[step]
	if tmplStep.Type == model.TypeExistingView {
		return fmt.Errorf("step %d: %w: existing views are linked, not filled", step, model.ErrUnknownNodeType)
	}

	node := b.st.nodes[step]
	if tmplStep.Type == model.TypeView {
		if nodeType == "" {
			nodeType = node.Type
		}
		if !model.IsViewType(nodeType) {
			return fmt.Errorf("step %d: %w: %q is not a view type", step, model.ErrUnknownNodeType, nodeType)
		}
		if nodeType != node.Type {
			// a different plot type invalidates the previous plot fields
			node.Type, node.ViewType = nodeType, nodeType
			node.Filters = make(map[string]model.FilterValue)
			node.Info = make(map[string][]string)
		}
	}

	tc, fs, err := b.config(step, node.Type)
	if err != nil {
		return err
	}
	if errs := Validate(tc, fs, values, node); len(errs) > 0 {
		return &ValidationError{Step: step, Fields: errs}
	}
	if err := b.engine.Populate(ctx, node, fs, values); err != nil {
		return fmt.Errorf("step %d: %w", step, err)
	}
	b.st.completed[step] = true
	return nil
}

func (b *Builder) config(step int, nodeType string) (*model.TypeConfig, model.Fieldset, error) {
	if b.st == nil {
		return nil, nil, model.ErrNotStaging
	}
	if err := b.checkStep(step); err != nil {
		return nil, nil, err
	}
	if nodeType == "" {
		nodeType = b.st.nodes[step].Type
	}
	var selected *model.Node
	if n, ok := b.store.Get(b.st.selected); ok {
		selected = n
	}
	return b.engine.Resolver().StructureConfig(nodeType, fieldset.Staging{
		Nodes:    b.st.nodes,
		Selected: selected,
		Linked:   b.st.template.Linked,
	})
}

func (b *Builder) checkStep(step int) error {
	if step < 0 || step >= len(b.st.nodes) {
		return fmt.Errorf("step %d of %d: %w", step, len(b.st.nodes), model.ErrStepOutOfRange)
	}
	return nil
}

func (b *Builder) complete() bool {
	for i, done := range b.st.completed {
		if !done && b.st.template.Structure[i].Type != model.TypeExistingView {
			return false
		}
	}
	return true
}

// Commit moves the staging nodes into the store, wires them per the
// template and its linkage, and adds them to the diagram.
func (b *Builder) Commit(ctx context.Context) (*Result, error) {
	if b.st == nil {
		return nil, model.ErrNotStaging
	}
	for i, step := range b.st.template.Structure {
		if step.Type == model.TypeExistingView {
			return nil, fmt.Errorf("step %d: %w: pick an existing view", i, model.ErrStructureIncomplete)
		}
	}
	return b.commit(ctx, nil)
}

// LinkExistingView finishes a structure whose step is an existing-view step
// by connecting the live view viewID in place of a new node.
func (b *Builder) LinkExistingView(ctx context.Context, step int, viewID int64) (*Result, error) {
	if b.st == nil {
		return nil, model.ErrNotStaging
	}
	if err := b.checkStep(step); err != nil {
		return nil, err
	}
	if b.st.template.Structure[step].Type != model.TypeExistingView {
		return nil, fmt.Errorf("step %d: %w: not an existing-view step", step, model.ErrUnknownNodeType)
	}
	view, ok := b.store.Get(viewID)
	if !ok || !view.IsView() || view.Ignore {
		return nil, fmt.Errorf("existing view %d: %w", viewID, model.ErrNodeNotFound)
	}
	return b.commit(ctx, map[int]int64{step: viewID})
}

func (b *Builder) commit(ctx context.Context, existing map[int]int64) (*Result, error) {
	st := b.st
	if !b.complete() {
		return nil, model.ErrStructureIncomplete
	}
	tmpl := st.template

	var selected *model.Node
	if tmpl.Linked != model.LinkNone {
		n, ok := b.store.Get(st.selected)
		if !ok {
			return nil, fmt.Errorf("commit %q: %w", tmpl.Name, model.ErrNoSelection)
		}
		selected = n
	}

	// real ID per step, with existing views swapped in
	ids := make([]int64, len(st.nodes))
	byStep := make(map[int]int64, len(ids))
	for i, n := range st.nodes {
		ids[i] = n.ID
		if v, ok := existing[i]; ok {
			ids[i] = v
		}
		byStep[tmpl.Structure[i].ID] = ids[i]
	}

	// snapshot every live node the commit touches, for rollback
	backup := map[int64]*model.Node{}
	keep := func(id int64) {
		if n, ok := b.store.Get(id); ok {
			if _, done := backup[id]; !done {
				backup[id] = n.Clone()
			}
		}
	}
	if selected != nil {
		keep(selected.ID)
	}
	for _, v := range existing {
		keep(v)
	}

	staged := make([]*model.Node, len(st.nodes))
	for i, n := range st.nodes {
		staged[i] = n.Clone()
	}

	var added []int64
	for i, n := range st.nodes {
		if _, replaced := existing[i]; replaced {
			continue
		}
		b.store.Put(n)
		added = append(added, n.ID)
	}

	links := templateLinks(tmpl, byStep)
	switch tmpl.Linked {
	case model.LinkBottom:
		links = append(links, [2]int64{selected.ID, ids[0]})
	case model.LinkTop:
		links = append(links, [2]int64{ids[len(ids)-1], selected.ID})
	}

	rollback := func() {
		for _, id := range added {
			b.store.UnlinkAllReferencesTo(id)
			b.store.Remove(id)
		}
		for _, n := range backup {
			b.store.Put(n)
		}
		st.nodes = staged
		for i, n := range staged {
			if _, replaced := existing[i]; !replaced {
				b.store.ReserveID(n.ID)
			}
		}
	}

	for _, l := range links {
		if err := b.store.Link(l[0], l[1]); err != nil {
			rollback()
			return nil, fmt.Errorf("commit %q: %w", tmpl.Name, err)
		}
	}
	if tmpl.Linked == model.LinkTrack {
		attachTrack(b.store, selected, st.nodes[len(st.nodes)-1])
	}
	if err := cycles.Check(b.store.Nodes()); err != nil {
		rollback()
		return nil, fmt.Errorf("commit %q: %w", tmpl.Name, err)
	}

	res := &Result{StructureID: st.id}
	res.TreeID = uuid.NewString()
	if selected != nil && b.diagram.TreeID(selected.ID) != "" {
		res.TreeID = b.diagram.TreeID(selected.ID)
	}

	for _, id := range added {
		n, _ := b.store.Get(id)
		n.StructureID = ""
		res.Nodes = append(res.Nodes, id)
		if n.Ignore {
			continue
		}
		b.diagram.AddNode(id, n.Type, res.TreeID)
		if n.IsView() {
			res.Views = append(res.Views, id)
		}
		res.Active = id
	}
	for _, l := range links {
		b.addEdge(l[0], l[1])
	}

	switch tmpl.Linked {
	case model.LinkTop:
		res.Stale = b.store.ViewsDownstream(selected.ID)
	case model.LinkTrack:
		res.Stale = []int64{selected.ID}
		res.Active = selected.ID
	}
	for _, v := range existing {
		if !slices.Contains(res.Stale, v) {
			res.Stale = append(res.Stale, v)
		}
		res.Active = v
	}

	for i, n := range st.nodes {
		if _, replaced := existing[i]; replaced {
			b.store.Release(n.ID)
		}
	}
	logging.Info("structure committed", "structure", tmpl.Name, "nodes", len(res.Nodes), "linked", tmpl.Linked)
	b.st = nil
	return res, nil
}

// addEdge mirrors a store link in the diagram; links into a track view are
// drawn into its host.
func (b *Builder) addEdge(parent, child int64) {
	c, ok := b.store.Get(child)
	if !ok {
		return
	}
	if c.Ignore {
		if !b.store.Has(c.ParentNodeID) {
			return
		}
		child = c.ParentNodeID
	}
	b.diagram.AddEdge(parent, child)
}

// templateLinks returns the parent -> child pairs declared by the template,
// from both the children and the parents lists, without duplicates.
func templateLinks(tmpl model.StructureTemplate, byStep map[int]int64) [][2]int64 {
	var links [][2]int64
	add := func(parent, child int) {
		p, okP := byStep[parent]
		c, okC := byStep[child]
		if !okP || !okC {
			return
		}
		l := [2]int64{p, c}
		if !slices.Contains(links, l) {
			links = append(links, l)
		}
	}
	for _, step := range tmpl.Structure {
		for _, c := range step.Children {
			add(step.ID, c)
		}
		for _, p := range step.Parents {
			add(p, step.ID)
		}
	}
	return links
}

// attachTrack makes view a track of host.
func attachTrack(store *nodestore.Store, host, view *model.Node) {
	if len(host.Tracks) == 0 {
		host.Tracks = append(host.Tracks, trackOf(store, host, 0))
	}
	view.Ignore = true
	view.ParentNodeID = host.ID
	host.Tracks = append(host.Tracks, trackOf(store, view, host.ID))
	host.CurrentTreeIndex = len(host.Tracks) - 1
}

func trackOf(store *nodestore.Store, n *model.Node, parent int64) model.Track {
	t := model.Track{ID: n.ID, ParentNodeID: parent}
	for _, id := range store.Lineage(n.ID) {
		src, _ := store.Get(id)
		if v, ok := src.FieldValues(model.FieldDataType); ok && len(v) > 0 && src.Type == model.TypeData {
			t.DataType = v[0]
			break
		}
	}
	return t
}
