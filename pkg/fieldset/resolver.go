// Package fieldset computes the editable fields that apply to a node given
// its type, the data types beneath it and the state of its lineage.
package fieldset

import (
	"fmt"
	"slices"

	"github.com/shahcompbio/montage-sub000/pkg/logging"
	"github.com/shahcompbio/montage-sub000/pkg/model"
	"github.com/shahcompbio/montage-sub000/pkg/nodestore"
)

// Config supplies merged per-type field configuration.
type Config interface {
	TypeConfig(nodeType string, dataTypes []string) (*model.TypeConfig, error)
}

// Staging describes an in-progress structure whose nodes are not yet live.
type Staging struct {
	Nodes    []*model.Node
	Selected *model.Node
	Linked   string
}

// Resolver resolves fieldsets against a node store.
type Resolver struct {
	cfg   Config
	store *nodestore.Store
}

// New creates a resolver.
func New(cfg Config, store *nodestore.Store) *Resolver {
	return &Resolver{cfg: cfg, store: store}
}

// SetConfig swaps the configuration source, e.g. after a catalog reload.
func (r *Resolver) SetConfig(cfg Config) {
	r.cfg = cfg
}

// Config returns the current configuration source.
func (r *Resolver) Config() Config {
	return r.cfg
}

// Resolve returns the fields applicable to a node of nodeType. The data
// types come from the node's lineage unless override is non-nil. node may be
// nil in configuration-only contexts.
func (r *Resolver) Resolve(nodeType string, node *model.Node, override []string) (model.Fieldset, error) {
	var lineage []*model.Node
	if node != nil {
		lineage = r.lineage(node)
	}
	dataTypes := override
	if dataTypes == nil {
		dataTypes = DataTypesOf(lineage)
	}

	tc, err := r.cfg.TypeConfig(nodeType, dataTypes)
	if err != nil {
		return nil, fmt.Errorf("resolve %s fieldset: %w", nodeType, err)
	}
	fs := Filter(tc, lineage)
	logging.Trace("fieldset resolved", "type", nodeType, "dataTypes", dataTypes, "fields", len(fs))
	return fs, nil
}

// ResolveForStructure returns the fields of a staging node of nodeType.
// Data types come from the staging nodes, falling back to the selected
// node's lineage, and only the last one found is merged. Dependencies are
// checked against the staging nodes plus, for bottom-linked structures, the
// selected node's lineage.
func (r *Resolver) ResolveForStructure(nodeType string, st Staging) (model.Fieldset, error) {
	_, fs, err := r.StructureConfig(nodeType, st)
	return fs, err
}

// StructureConfig is ResolveForStructure that also returns the merged type
// configuration, whose required entries drive step validation.
func (r *Resolver) StructureConfig(nodeType string, st Staging) (*model.TypeConfig, model.Fieldset, error) {
	var selectedLineage []*model.Node
	if st.Selected != nil {
		selectedLineage = r.lineage(st.Selected)
	}

	dataTypes := lastDataType(st.Nodes)
	if dataTypes == nil {
		dataTypes = lastDataType(selectedLineage)
	}

	candidates := slices.Clone(st.Nodes)
	if st.Linked == model.LinkBottom {
		candidates = append(candidates, selectedLineage...)
	}

	tc, err := r.cfg.TypeConfig(nodeType, dataTypes)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve %s structure fieldset: %w", nodeType, err)
	}
	return tc, Filter(tc, candidates), nil
}

// DataTypes returns the data types feeding the node with the given ID.
func (r *Resolver) DataTypes(id int64) []string {
	n, ok := r.store.Get(id)
	if !ok {
		return nil
	}
	return DataTypesOf(r.lineage(n))
}

// lineage returns node followed by every live node reachable through its
// parents. node itself need not be stored.
func (r *Resolver) lineage(node *model.Node) []*model.Node {
	out := []*model.Node{node}
	seen := map[int64]bool{node.ID: true}
	for _, p := range slices.Clone(node.Parents) {
		for _, id := range r.store.Lineage(p) {
			if seen[id] {
				continue
			}
			seen[id] = true
			if n, ok := r.store.Get(id); ok {
				out = append(out, n)
			}
		}
	}
	return out
}

// DataTypesOf collects the data-all-type values of the data nodes among
// nodes, in order and without duplicates.
func DataTypesOf(nodes []*model.Node) []string {
	var out []string
	for _, n := range nodes {
		if n.Type != model.TypeData {
			continue
		}
		f, ok := n.Filters[model.FieldDataType]
		if !ok {
			continue
		}
		for _, dt := range f.FieldValues {
			if dt != "" && !slices.Contains(out, dt) {
				out = append(out, dt)
			}
		}
	}
	return out
}

// lastDataType returns the last data-all-type value pushed by the data nodes
// among nodes, counting repeats, or nil when there is none.
func lastDataType(nodes []*model.Node) []string {
	var last string
	for _, n := range nodes {
		if n.Type != model.TypeData {
			continue
		}
		for _, dt := range n.Filters[model.FieldDataType].FieldValues {
			if dt != "" {
				last = dt
			}
		}
	}
	if last == "" {
		return nil
	}
	return []string{last}
}

// Filter keeps the enabled fields of tc whose dependencies are absent or
// satisfied by at least one candidate.
func Filter(tc *model.TypeConfig, candidates []*model.Node) model.Fieldset {
	fs := make(model.Fieldset, len(tc.Fields))
	for id, f := range tc.Fields {
		if f.Disabled {
			continue
		}
		if len(f.Dependencies) == 0 || anySatisfied(f.Dependencies, candidates) {
			fs[id] = f
		}
	}
	return fs
}

func anySatisfied(deps []model.Dependency, candidates []*model.Node) bool {
	for _, dep := range deps {
		for _, n := range candidates {
			if Satisfies(dep, n) {
				return true
			}
		}
	}
	return false
}

// Satisfies reports whether n has dep's type and a dep.Field filter whose
// values equal dep.Value as sets.
func Satisfies(dep model.Dependency, n *model.Node) bool {
	if n == nil || n.Type != dep.Type {
		return false
	}
	f, ok := n.Filters[dep.Field]
	if !ok {
		return false
	}
	return sameSet(f.FieldValues, dep.Value)
}

func sameSet(a, b []string) bool {
	a, b = slices.Clone(a), slices.Clone(b)
	slices.Sort(a)
	slices.Sort(b)
	return slices.Equal(slices.Compact(a), slices.Compact(b))
}
