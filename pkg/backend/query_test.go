package backend

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/shahcompbio/montage-sub000/pkg/model"
)

func TestBuildQuery(t *testing.T) {
	data := model.NewNode(1, model.TypeData)
	data.Filters[model.FieldDataType] = model.FilterValue{ESID: "caller", FieldValues: []string{"titan"}}
	data.Filters[model.FieldSampleID] = model.FilterValue{ESID: "sample_id", FieldValues: []string{""}}

	df := model.NewNode(2, model.TypeDataFilter)
	df.Filters["depth"] = model.FilterValue{ESID: "depth", IsRange: true, FieldType: "number", Inequality: ">=", FieldValues: []string{"30"}}
	df.Filters["somatic"] = model.FilterValue{ESID: "somatic", FieldType: "truefalse", FieldValues: []string{"true"}}
	df.Filters["caller2"] = model.FilterValue{ESID: "caller", FieldValues: []string{"titan", "museq"}}

	vf := model.NewNode(3, model.TypeViewFilter)
	vf.Filters["coordinate"] = model.FilterValue{
		ESID:        "chrom_number,start,end",
		Ranges:      []string{"", "gte", "lte"},
		FieldValues: []string{"01,10,20", "X"},
	}
	vf.Filters["geneName"] = model.FilterValue{
		ESID:        "geneName",
		FieldValues: []string{"17,7661779,7687550,TP53"},
		PostProcessedESID: []model.ESIDPart{
			{ESID: "chrom_number"}, {ESID: "start", Range: "gt"}, {ESID: "end", Range: "lt"},
		},
	}

	got := BuildQuery([]*model.Node{vf, df, data})
	want := Query{
		Terms: map[string][]string{
			"caller":  {"titan", "museq"},
			"somatic": {"T"},
		},
		Ranges: map[string]map[string]string{
			"depth": {"gte": "30"},
		},
		Compound: []Compound{
			{
				FieldID: "coordinate",
				Parts:   []model.ESIDPart{{ESID: "chrom_number"}, {ESID: "start", Range: "gte"}, {ESID: "end", Range: "lte"}},
				Rows:    [][]string{{"01", "10", "20"}, {"X"}},
			},
			{
				FieldID: "geneName",
				Parts:   []model.ESIDPart{{ESID: "chrom_number"}, {ESID: "start", Range: "gt"}, {ESID: "end", Range: "lt"}},
				Rows:    [][]string{{"17", "7661779", "7687550"}},
			},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("BuildQuery() mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildQueryEmpty(t *testing.T) {
	n := model.NewNode(1, model.TypeDataFilter)
	n.Filters["effect"] = model.FilterValue{ESID: "effect", FieldValues: []string{}}
	if q := BuildQuery([]*model.Node{n}); !q.Empty() {
		t.Errorf("BuildQuery() = %+v, want empty", q)
	}
}

func TestGeneIndex(t *testing.T) {
	idx := NewGeneIndex([]Gene{
		{Name: "TP53", Chrom: "17", Start: 7661779, End: 7687550},
		{Name: "BRCA1", Chrom: "17", Start: 43044295, End: 43125483},
	})

	got, err := idx.GeneInfo(context.Background(), []string{"brca1", "nope", "TP53"})
	if err != nil {
		t.Fatalf("GeneInfo() error = %v", err)
	}
	names := []string{}
	for _, g := range got {
		names = append(names, g.Name)
	}
	if diff := cmp.Diff([]string{"BRCA1", "TP53"}, names); diff != "" {
		t.Errorf("GeneInfo() order mismatch (-want +got):\n%s", diff)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := idx.GeneInfo(ctx, []string{"TP53"}); err == nil {
		t.Error("GeneInfo() with cancelled context returned nil error")
	}
}
