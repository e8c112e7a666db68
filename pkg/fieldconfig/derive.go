package fieldconfig

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/shahcompbio/montage-sub000/pkg/model"
)

// Input types of plot template fields, selecting which data filter fields
// become options.
const (
	InputCategorical = "categorical"
	InputNumerical   = "numerical"
	InputAll         = "all"
)

// pinnedOptions stay in front when options are sorted.
var pinnedOptions = []string{"none", "frequency", "all"}

// deriveViews instantiates every plot template for every data type that does
// not configure its plots explicitly.
func (c *Catalog) deriveViews() error {
	for _, dt := range c.DataTypes() {
		sec := section(c.editor, dt)
		explicit := false
		for view := range c.Views {
			if _, ok := sec[view]; ok {
				explicit = true
				break
			}
		}
		if explicit {
			continue
		}

		filters := map[string]*model.FieldDescriptor{}
		if raw, ok := sec[model.TypeDataFilter].(map[string]any); ok {
			tc, err := decodeTypeConfig(raw)
			if err != nil {
				return fmt.Errorf("editor.%s.datafilter: %w", dt, err)
			}
			filters = tc.Fields
		}

		c.derived[dt] = make(map[string]*model.TypeConfig, len(c.Views))
		for view, tmpl := range c.Views {
			c.derived[dt][view] = deriveView(tmpl, dt, filters)
		}
	}
	return nil
}

// ScopedFieldID inserts the data type after the first dash of a template
// field ID: "violin-dimension-x" becomes "violin-titan-dimension-x".
func ScopedFieldID(id, dataType string) string {
	return strings.Replace(id, "-", "-"+dataType+"-", 1)
}

func deriveView(tmpl model.TypeConfig, dataType string, filters map[string]*model.FieldDescriptor) *model.TypeConfig {
	out := &model.TypeConfig{
		Fields:   make(map[string]*model.FieldDescriptor, len(tmpl.Fields)),
		Required: slices.Clone(tmpl.Required),
	}
	for id, f := range tmpl.Fields {
		d := *f
		d.ID = ScopedFieldID(id, dataType)
		d.FieldValues = append(slices.Clone(f.FieldValues), filterOptions(d.InputType, filters)...)
		sortOptions(d.FieldValues)
		if n := d.SelectedOption; n > 0 && n <= len(d.FieldValues) {
			d.FieldValues[n-1].Default = true
		}
		if f.DisplayConditions != nil {
			d.DisplayConditions = make(map[string]model.Condition, len(f.DisplayConditions))
			for watched, cond := range f.DisplayConditions {
				d.DisplayConditions[ScopedFieldID(watched, dataType)] = slices.Clone(cond)
			}
		}
		d.Dependencies = slices.Clone(f.Dependencies)
		d.Extra = maps.Clone(f.Extra)
		out.Fields[d.ID] = &d
	}
	return out
}

// filterOptions turns the data type's filter fields into select options.
func filterOptions(inputType string, filters map[string]*model.FieldDescriptor) []model.Option {
	var allowed []string
	switch inputType {
	case InputCategorical:
		allowed = []string{"select", "multiselect", "predictivetext"}
	case InputNumerical:
		allowed = []string{"number"}
	case InputAll:
		allowed = []string{"number", "select", "multiselect", "predictivetext"}
	default:
		return nil
	}

	var out []model.Option
	for _, id := range slices.Sorted(maps.Keys(filters)) {
		f := filters[id]
		if inputType == InputCategorical && len(f.FieldValues) < 2 {
			continue
		}
		if !slices.Contains(allowed, f.FieldType) || f.ESID.IsCompound() {
			continue
		}
		out = append(out, model.Option{Value: f.ESID.Name, Label: f.Label})
	}
	return out
}

// sortOptions orders options case-insensitively by value, keeping a leading
// pinned option in front.
func sortOptions(opts []model.Option) {
	start := 0
	if len(opts) > 0 && slices.Contains(pinnedOptions, opts[0].Value) {
		start = 1
	}
	slices.SortStableFunc(opts[start:], func(a, b model.Option) int {
		return strings.Compare(strings.ToLower(a.Value), strings.ToLower(b.Value))
	})
}
