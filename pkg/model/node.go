package model

import "slices"

// Node types that form the fixed tiers of a portrait tree. Any other type tag
// names a view (e.g. "scatterplot").
const (
	TypeData         = "data"
	TypeDataFilter   = "datafilter"
	TypeViewFilter   = "viewfilter"
	TypeView         = "view"          // placeholder used by structure templates
	TypeExistingView = "existing-view" // template step that links a live view
)

// Common field IDs referenced by the engine itself.
const (
	FieldDataType  = "data-all-type"
	FieldSampleID  = "data-all-sample_id"
	FieldDataTitle = "data-all-title"
	FieldTitle     = "title"
)

// IsViewType reports whether t names a concrete view type.
func IsViewType(t string) bool {
	switch t {
	case "", TypeData, TypeDataFilter, TypeViewFilter, TypeView, TypeExistingView:
		return false
	}
	return true
}

// IsSourceTier reports whether t is part of the data-source tier (data and
// data filters), which a non-cascading delete never removes.
func IsSourceTier(t string) bool {
	return t == TypeData || t == TypeDataFilter
}

// FilterValue is a queryable field value stored on a node.
type FilterValue struct {
	NodeType    string   `json:"nodeType"`
	ESID        string   `json:"esid"`
	IsRange     bool     `json:"isRange"`
	FieldType   string   `json:"fieldType"`
	FieldValues []string `json:"fieldValues"`
	Inequality  string   `json:"inequality,omitempty"`
	// Ranges holds one range tag per compound esid part ("" for none).
	Ranges []string `json:"ranges,omitempty"`
	// PostProcessedESID is set by post-processors that rewrite the values
	// into a different compound layout.
	PostProcessedESID []ESIDPart `json:"postProcessedEsid,omitempty"`
}

func (f FilterValue) clone() FilterValue {
	f.FieldValues = slices.Clone(f.FieldValues)
	f.Ranges = slices.Clone(f.Ranges)
	f.PostProcessedESID = slices.Clone(f.PostProcessedESID)
	return f
}

// Track is a sibling view sharing the visual container of a track view.
type Track struct {
	ID           int64  `json:"id"`
	DataType     string `json:"dataType,omitempty"`
	DataFormat   string `json:"dataFormat,omitempty"`
	ParentNodeID int64  `json:"parentNodeId,omitempty"`
}

// Node is a vertex of the portrait graph.
type Node struct {
	ID       int64                  `json:"id"`
	Type     string                 `json:"type"`
	ViewType string                 `json:"viewType,omitempty"`
	Parents  []int64                `json:"parents"`
	Children []int64                `json:"children"`
	Filters  map[string]FilterValue `json:"filters"`
	Info     map[string][]string    `json:"info"`

	// View is owned by the view renderer and never interpreted here.
	View any `json:"-"`

	StructureID string   `json:"structureID,omitempty"`
	SampleIDs   []string `json:"sampleIDs,omitempty"`

	Tracks           []Track `json:"tracks,omitempty"`
	CurrentTreeIndex int     `json:"currentTreeIndex,omitempty"`
	ParentNodeID     int64   `json:"parentNodeId,omitempty"`
	// Ignore marks nodes kept out of the diagram (track views).
	Ignore bool `json:"ignore,omitempty"`
}

// NewNode returns a zero-valued node of the given type.
func NewNode(id int64, nodeType string) *Node {
	n := &Node{
		ID:       id,
		Type:     nodeType,
		Parents:  []int64{},
		Children: []int64{},
		Filters:  make(map[string]FilterValue),
		Info:     make(map[string][]string),
	}
	if IsViewType(nodeType) {
		n.ViewType = nodeType
	}
	return n
}

// Clone returns a deep copy of the node. View state is shared.
func (n *Node) Clone() *Node {
	c := *n
	c.Parents = slices.Clone(n.Parents)
	c.Children = slices.Clone(n.Children)
	c.SampleIDs = slices.Clone(n.SampleIDs)
	c.Tracks = slices.Clone(n.Tracks)
	c.Filters = make(map[string]FilterValue, len(n.Filters))
	for k, v := range n.Filters {
		c.Filters[k] = v.clone()
	}
	c.Info = make(map[string][]string, len(n.Info))
	for k, v := range n.Info {
		c.Info[k] = slices.Clone(v)
	}
	return &c
}

// HasField reports whether fieldID is stored as a filter or as info.
func (n *Node) HasField(fieldID string) bool {
	if _, ok := n.Filters[fieldID]; ok {
		return true
	}
	_, ok := n.Info[fieldID]
	return ok
}

// FieldValues returns the stored values of fieldID, from filters or info.
func (n *Node) FieldValues(fieldID string) ([]string, bool) {
	if f, ok := n.Filters[fieldID]; ok {
		return f.FieldValues, true
	}
	v, ok := n.Info[fieldID]
	return v, ok
}

// FieldKeys returns the IDs of every stored filter and info field.
func (n *Node) FieldKeys() []string {
	keys := make([]string, 0, len(n.Filters)+len(n.Info))
	for k := range n.Filters {
		keys = append(keys, k)
	}
	for k := range n.Info {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// IsView reports whether the node is a concrete view.
func (n *Node) IsView() bool {
	return IsViewType(n.Type)
}
