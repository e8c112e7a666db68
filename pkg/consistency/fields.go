package consistency

import (
	"context"
	"slices"

	"github.com/shahcompbio/montage-sub000/pkg/model"
	"github.com/shahcompbio/montage-sub000/pkg/pattern"
)

// Apply stores values for fieldID on node according to the descriptor:
// plain esids become filters, fields without an esid become info, and
// compound esids are pattern-extracted. It reports whether the field must
// still be post-processed, in which case the raw values are stored as-is.
func (e *Engine) Apply(node *model.Node, fieldID string, f *model.FieldDescriptor, values []string) (queued bool) {
	if values == nil {
		values = []string{}
	}

	if !f.ESID.IsCompound() {
		if f.IsFilter() {
			node.Filters[fieldID] = model.FilterValue{
				NodeType:    node.Type,
				ESID:        f.ESID.Name,
				IsRange:     f.IsRange,
				FieldType:   f.FieldType,
				FieldValues: values,
				Inequality:  f.Inequality,
			}
		} else {
			node.Info[fieldID] = values
		}
		return false
	}

	fv := model.FilterValue{
		NodeType:  node.Type,
		ESID:      f.ESID.Joined(),
		FieldType: f.FieldType,
		Ranges:    f.ESID.Ranges(),
	}
	if f.PostProcessing != "" {
		fv.FieldValues = values
		node.Filters[fieldID] = fv
		return true
	}
	fv.FieldValues = e.Extract(f, values)
	node.Filters[fieldID] = fv
	return false
}

// Extract splits each input row of a compound field into its part values,
// rewritten by the field's custom query term. A compound esid without a
// pattern keeps the rows unchanged.
func (e *Engine) Extract(f *model.FieldDescriptor, rows []string) []string {
	patterns := f.ESID.Patterns()
	if len(patterns) == 0 {
		return slices.Clone(rows)
	}

	var term pattern.TermFunc
	if mk, ok := pattern.Terms[f.CustomQueryTerm]; ok {
		term = mk(e.chromESID)
	}
	esids := make([]string, len(f.ESID.Parts))
	for i, p := range f.ESID.Parts {
		esids[i] = p.ESID
	}
	return pattern.ProcessRows(patterns, esids, rows, term)
}

// PreserveOrder merges updated into existing: values still present keep
// their previous order, new values follow in the order given.
func PreserveOrder(existing, updated []string) []string {
	want := make(map[string]bool, len(updated))
	for _, v := range updated {
		want[v] = true
	}

	out := make([]string, 0, len(updated))
	used := make(map[string]bool, len(updated))
	for _, v := range existing {
		if want[v] && !used[v] {
			out = append(out, v)
			used[v] = true
		}
	}
	for _, v := range updated {
		if !used[v] {
			out = append(out, v)
			used[v] = true
		}
	}
	return out
}

// Populate stores submitted values on a node that is not live yet. Fields
// absent from values keep what the node holds, or get their defaults; fields
// outside fs are dropped. Post-processing fields are resolved before
// returning.
func (e *Engine) Populate(ctx context.Context, node *model.Node, fs model.Fieldset, values map[string][]string) error {
	var queued []string
	prior := make(map[string]model.FilterValue)
	for _, id := range fs.Keys() {
		f := fs[id]
		v, submitted := values[id]
		if !submitted {
			if node.HasField(id) {
				continue
			}
			v = f.Defaults()
		}
		old, had := node.Filters[id]
		if e.Apply(node, id, f, v) {
			queued = append(queued, id)
			if had {
				prior[id] = old
			}
		}
	}
	prune(node, fs)
	if len(queued) == 0 {
		return nil
	}
	return e.PostProcess(ctx, node, fs, queued, prior)
}
