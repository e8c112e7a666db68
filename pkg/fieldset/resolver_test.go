package fieldset

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/shahcompbio/montage-sub000/pkg/fieldconfig"
	"github.com/shahcompbio/montage-sub000/pkg/model"
	"github.com/shahcompbio/montage-sub000/pkg/nodestore"
)

const testCatalog = `
editor:
  common:
    data:
      fields:
        data-all-type: {esid: caller, fieldType: select}
        data-all-title: {fieldType: text}
    datafilter:
      fields:
        x:
          esid: x_attr
          fieldType: text
          dependencies:
            - {type: data, field: data-all-type, value: [mutationseq]}
        pair:
          fieldType: text
          dependencies:
            - {type: data, field: data-all-type, value: [a, b]}
        always: {fieldType: text}
        off: {fieldType: text, disabled: true}
  mutationseq:
    datafilter:
      fields:
        mseq-only: {esid: p, fieldType: number}
  titan:
    datafilter:
      fields:
        titan-only: {esid: s, fieldType: number}
`

func newFixture(t *testing.T) (*Resolver, *nodestore.Store) {
	t.Helper()
	cat, err := fieldconfig.Parse([]byte(testCatalog), "yaml")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	s := nodestore.New()
	return New(cat, s), s
}

func setDataType(n *model.Node, values ...string) {
	n.Filters[model.FieldDataType] = model.FilterValue{
		NodeType:    model.TypeData,
		ESID:        "caller",
		FieldType:   "select",
		FieldValues: values,
	}
}

func TestDependencyFollowsDataType(t *testing.T) {
	r, s := newFixture(t)
	data := s.Create(model.TypeData)
	df := s.Create(model.TypeDataFilter)
	if err := s.Link(data.ID, df.ID); err != nil {
		t.Fatal(err)
	}

	setDataType(data, "mutationseq")
	fs, err := r.Resolve(model.TypeDataFilter, df, nil)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if diff := cmp.Diff([]string{"always", "mseq-only", "x"}, fs.Keys()); diff != "" {
		t.Errorf("mutationseq fieldset mismatch (-want +got):\n%s", diff)
	}

	setDataType(data, "titan")
	fs, err = r.Resolve(model.TypeDataFilter, df, nil)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if diff := cmp.Diff([]string{"always", "titan-only"}, fs.Keys()); diff != "" {
		t.Errorf("titan fieldset mismatch (-want +got):\n%s", diff)
	}
}

func TestResolveOverrideAndNilNode(t *testing.T) {
	r, _ := newFixture(t)
	fs, err := r.Resolve(model.TypeDataFilter, nil, []string{"titan"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if _, ok := fs["titan-only"]; !ok {
		t.Errorf("Expected override data type to be merged, got %v", fs.Keys())
	}
	if _, ok := fs["x"]; ok {
		t.Error("Expected dependent field to be dropped without candidates")
	}
}

func TestDataTypesDiscoveryOrder(t *testing.T) {
	r, s := newFixture(t)
	d1 := s.Create(model.TypeData)
	d2 := s.Create(model.TypeData)
	d3 := s.Create(model.TypeData)
	df := s.Create(model.TypeDataFilter)
	setDataType(d1, "titan")
	setDataType(d2, "mutationseq", "titan")
	setDataType(d3, "")
	for _, d := range []*model.Node{d1, d2, d3} {
		if err := s.Link(d.ID, df.ID); err != nil {
			t.Fatal(err)
		}
	}

	want := []string{"titan", "mutationseq"}
	if diff := cmp.Diff(want, r.DataTypes(df.ID)); diff != "" {
		t.Errorf("DataTypes() mismatch (-want +got):\n%s", diff)
	}
	if got := r.DataTypes(-1); got != nil {
		t.Errorf("Expected nil for a missing node, got %v", got)
	}
}

func TestSatisfiesIsOrderIndependent(t *testing.T) {
	dep := model.Dependency{Type: model.TypeData, Field: model.FieldDataType, Value: []string{"a", "b"}}

	tests := []struct {
		name   string
		nodeT  string
		values []string
		want   bool
	}{
		{"same order", model.TypeData, []string{"a", "b"}, true},
		{"permuted", model.TypeData, []string{"b", "a"}, true},
		{"subset", model.TypeData, []string{"a"}, false},
		{"superset", model.TypeData, []string{"a", "b", "c"}, false},
		{"wrong type", model.TypeDataFilter, []string{"a", "b"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := model.NewNode(1, tt.nodeT)
			setDataType(n, tt.values...)
			if got := Satisfies(dep, n); got != tt.want {
				t.Errorf("Satisfies() = %v, want %v", got, tt.want)
			}
		})
	}

	n := model.NewNode(1, model.TypeData)
	if Satisfies(dep, n) {
		t.Error("Expected a missing filter not to satisfy")
	}
}

func TestResolveForStructure(t *testing.T) {
	r, s := newFixture(t)

	live := s.Create(model.TypeData)
	setDataType(live, "mutationseq")

	stagedData := model.NewNode(1001, model.TypeData)
	setDataType(stagedData, "titan")
	stagedFilter := model.NewNode(1002, model.TypeDataFilter)

	tests := []struct {
		name string
		st   Staging
		want []string
	}{
		{
			name: "staging data type wins",
			st:   Staging{Nodes: []*model.Node{stagedData, stagedFilter}, Selected: live, Linked: model.LinkBottom},
			want: []string{"always", "titan-only", "x"},
		},
		{
			name: "falls back to selection",
			st:   Staging{Nodes: []*model.Node{stagedFilter}, Selected: live, Linked: model.LinkBottom},
			want: []string{"always", "mseq-only", "x"},
		},
		{
			name: "unlinked ignores selection for dependencies",
			st:   Staging{Nodes: []*model.Node{stagedFilter}, Selected: live},
			want: []string{"always", "mseq-only"},
		},
		{
			name: "nothing known",
			st:   Staging{Nodes: []*model.Node{stagedFilter}},
			want: []string{"always"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs, err := r.ResolveForStructure(model.TypeDataFilter, tt.st)
			if err != nil {
				t.Fatalf("ResolveForStructure() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, fs.Keys()); diff != "" {
				t.Errorf("fieldset mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestResolveForStructureMergesLastDataTypeOnly(t *testing.T) {
	r, _ := newFixture(t)
	first := model.NewNode(1, model.TypeData)
	setDataType(first, "mutationseq")
	second := model.NewNode(2, model.TypeData)
	setDataType(second, "titan")

	fs, err := r.ResolveForStructure(model.TypeDataFilter, Staging{Nodes: []*model.Node{first, second}})
	if err != nil {
		t.Fatalf("ResolveForStructure() error = %v", err)
	}
	if _, ok := fs["mseq-only"]; ok {
		t.Error("Expected only the last data type to be merged")
	}
	if _, ok := fs["titan-only"]; !ok {
		t.Error("Expected the last data type to be merged")
	}
}

func TestResolveForStructureCountsRepeatedDataTypes(t *testing.T) {
	r, _ := newFixture(t)
	var nodes []*model.Node
	for i, dt := range []string{"mutationseq", "titan", "mutationseq"} {
		n := model.NewNode(int64(i+1), model.TypeData)
		setDataType(n, dt)
		nodes = append(nodes, n)
	}

	fs, err := r.ResolveForStructure(model.TypeDataFilter, Staging{Nodes: nodes})
	if err != nil {
		t.Fatalf("ResolveForStructure() error = %v", err)
	}
	if _, ok := fs["mseq-only"]; !ok {
		t.Error("Expected the last pushed data type to be merged")
	}
	if _, ok := fs["titan-only"]; ok {
		t.Error("Expected earlier data types to be left out")
	}
}
