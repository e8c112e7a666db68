package consistency

import (
	"context"
	"slices"
	"strconv"
	"strings"

	"github.com/shahcompbio/montage-sub000/pkg/backend"
	"github.com/shahcompbio/montage-sub000/pkg/model"
)

// PostProcessor turns the raw values of a compound field into queryable
// values. node is a read-only snapshot; the returned filter replaces
// node.Filters[fieldID].
type PostProcessor interface {
	Process(ctx context.Context, fieldID string, node *model.Node) (model.FilterValue, error)
}

// PostProcessorFunc adapts a function to PostProcessor.
type PostProcessorFunc func(ctx context.Context, fieldID string, node *model.Node) (model.FilterValue, error)

// Process calls f.
func (f PostProcessorFunc) Process(ctx context.Context, fieldID string, node *model.Node) (model.FilterValue, error) {
	return f(ctx, fieldID, node)
}

// GeneLookupName is the postProcessing name of the gene lookup.
const GeneLookupName = "geneLookup"

// GeneLookup resolves gene names to "chrom,start,end,name" rows. Unknown
// genes are dropped.
func GeneLookup(src backend.GeneSource, chromESID, startESID, endESID string) PostProcessor {
	return PostProcessorFunc(func(ctx context.Context, fieldID string, node *model.Node) (model.FilterValue, error) {
		fv := node.Filters[fieldID]
		names := slices.DeleteFunc(slices.Clone(fv.FieldValues), func(s string) bool {
			return strings.TrimSpace(s) == ""
		})
		if len(names) == 0 {
			return fv, nil
		}

		genes, err := src.GeneInfo(ctx, names)
		if err != nil {
			return model.FilterValue{}, err
		}

		rows := make([]string, 0, len(genes))
		for _, g := range genes {
			rows = append(rows, strings.Join([]string{
				g.Chrom,
				strconv.FormatInt(g.Start, 10),
				strconv.FormatInt(g.End, 10),
				g.Name,
			}, ","))
		}
		fv.FieldValues = rows
		fv.PostProcessedESID = []model.ESIDPart{
			{ESID: chromESID},
			{ESID: startESID, Range: "gt"},
			{ESID: endESID, Range: "lt"},
		}
		return fv, nil
	})
}
