package model

import (
	"cmp"
	"slices"
	"strings"
)

// ESIDPart is one sub-field of a compound esid.
type ESIDPart struct {
	ESID  string `koanf:"esid" json:"esid"`
	Range string `koanf:"range" json:"range,omitempty"`
}

// ESID maps a field onto backend attributes. It is either absent, a plain
// attribute name, or a compound list of parts optionally led by a
// pipe-separated wildcard pattern (e.g. "chr*:*-*|*:*-*").
type ESID struct {
	Set     bool       `json:"-"`
	Name    string     `json:"name,omitempty"`
	Pattern string     `json:"pattern,omitempty"`
	Parts   []ESIDPart `json:"parts,omitempty"`
}

// IsCompound reports whether the esid lists several parts.
func (e ESID) IsCompound() bool {
	return e.Set && (e.Pattern != "" || len(e.Parts) > 0)
}

// Joined returns the comma-joined part attribute names of a compound esid,
// or the plain name otherwise.
func (e ESID) Joined() string {
	if !e.IsCompound() {
		return e.Name
	}
	names := make([]string, len(e.Parts))
	for i, p := range e.Parts {
		names[i] = p.ESID
	}
	return strings.Join(names, ",")
}

// Ranges returns the range tag of every compound part.
func (e ESID) Ranges() []string {
	ranges := make([]string, len(e.Parts))
	for i, p := range e.Parts {
		ranges[i] = p.Range
	}
	return ranges
}

// Patterns splits the wildcard pattern on "|".
func (e ESID) Patterns() []string {
	if e.Pattern == "" {
		return nil
	}
	return strings.Split(e.Pattern, "|")
}

// Option is a select option, configured as [value, shortLabel, label, default, ...].
type Option struct {
	Value      string `json:"value"`
	ShortLabel string `json:"shortLabel,omitempty"`
	Label      string `json:"label,omitempty"`
	Default    bool   `json:"default,omitempty"`
}

// Dependency makes a field conditional on another node's filter value.
type Dependency struct {
	Type  string   `koanf:"type" json:"type"`
	Field string   `koanf:"field" json:"field"`
	Value []string `koanf:"value" json:"value"`
}

// Condition is a display condition on another field. A single entry
// starting with "!" matches any other value.
type Condition []string

// Matches reports whether value satisfies the condition.
func (c Condition) Matches(value string) bool {
	if len(c) == 1 && strings.HasPrefix(c[0], "!") && len(c[0]) > 1 {
		return c[0][1:] != value
	}
	return slices.Contains(c, value)
}

// FieldDescriptor describes one editable field.
type FieldDescriptor struct {
	ID                string               `koanf:"id" json:"id"`
	ESID              ESID                 `koanf:"esid" json:"esid"`
	Label             string               `koanf:"label" json:"label"`
	FieldType         string               `koanf:"fieldType" json:"fieldType"`
	FieldValues       []Option             `koanf:"fieldValues" json:"fieldValues,omitempty"`
	DefaultValue      *string              `koanf:"defaultValue" json:"defaultValue,omitempty"`
	Dependencies      []Dependency         `koanf:"dependencies" json:"dependencies,omitempty"`
	DisplayConditions map[string]Condition `koanf:"displayConditions" json:"displayConditions,omitempty"`
	Disabled          bool                 `koanf:"disabled" json:"disabled,omitempty"`
	Hidden            bool                 `koanf:"hidden" json:"hidden,omitempty"`
	Position          *int                 `koanf:"position" json:"position,omitempty"`
	IsRange           bool                 `koanf:"isRange" json:"isRange,omitempty"`
	Inequality        string               `koanf:"inequality" json:"inequality,omitempty"`
	Regex             string               `koanf:"regex" json:"regex,omitempty"`
	PostProcessing    string               `koanf:"postProcessing" json:"postProcessing,omitempty"`
	CustomQueryTerm   string               `koanf:"customQueryTerm" json:"customQueryTerm,omitempty"`
	Query             *bool                `koanf:"query" json:"query,omitempty"`
	Placeholder       string               `koanf:"placeholder" json:"placeholder,omitempty"`
	InputType         string               `koanf:"inputType" json:"inputType,omitempty"`
	SelectedOption    int                  `koanf:"selectedOption" json:"selectedOption,omitempty"`

	// Extra keeps presentation keys the engine does not interpret.
	Extra map[string]any `koanf:",remain" json:"extra,omitempty"`
}

// IsFilter reports whether values of this field are queryable filters.
func (f *FieldDescriptor) IsFilter() bool {
	return f.ESID.Set
}

// IsSelect reports whether the field picks from configured options.
func (f *FieldDescriptor) IsSelect() bool {
	return f.FieldType == "select" || f.FieldType == "multiselect"
}

// IsList reports whether the field holds a comma-separated list.
func (f *FieldDescriptor) IsList() bool {
	return f.FieldType == "list"
}

// Defaults returns the values a fresh node gets for this field.
func (f *FieldDescriptor) Defaults() []string {
	values := []string{}
	if f.IsSelect() {
		for _, opt := range f.FieldValues {
			if opt.Default {
				values = append(values, opt.Value)
			}
		}
		return values
	}
	if f.DefaultValue != nil {
		values = strings.Split(*f.DefaultValue, ",")
	}
	return values
}

// Fieldset maps field IDs to their descriptors.
type Fieldset map[string]*FieldDescriptor

// Ordered returns the descriptors sorted by ascending position, fields
// without a position last, ties broken by ID.
func (fs Fieldset) Ordered() []*FieldDescriptor {
	out := make([]*FieldDescriptor, 0, len(fs))
	for _, f := range fs {
		out = append(out, f)
	}
	slices.SortFunc(out, func(a, b *FieldDescriptor) int {
		switch {
		case a.Position == nil && b.Position == nil:
			return cmp.Compare(a.ID, b.ID)
		case a.Position == nil:
			return 1
		case b.Position == nil:
			return -1
		}
		if c := cmp.Compare(*a.Position, *b.Position); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

// Keys returns the sorted field IDs.
func (fs Fieldset) Keys() []string {
	keys := make([]string, 0, len(fs))
	for k := range fs {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// RequiredEntry is a group of field IDs of which at least one must be filled.
type RequiredEntry []string

// TypeConfig is the merged configuration of one node type.
type TypeConfig struct {
	Fields   map[string]*FieldDescriptor `koanf:"fields" json:"fields"`
	Required []RequiredEntry             `koanf:"required" json:"required,omitempty"`
}
