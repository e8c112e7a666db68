package backend

import (
	"slices"
	"strings"

	"github.com/shahcompbio/montage-sub000/pkg/model"
)

// Query is the backend-neutral description of the search a view issues:
// attribute terms, numeric bounds, and compound clauses where each row must
// match on all of its parts.
type Query struct {
	Terms    map[string][]string          `json:"terms,omitempty"`
	Ranges   map[string]map[string]string `json:"ranges,omitempty"`
	Compound []Compound                   `json:"compound,omitempty"`
}

// Compound is a disjunction of rows, each a conjunction over Parts.
type Compound struct {
	FieldID string           `json:"fieldID"`
	Parts   []model.ESIDPart `json:"parts"`
	Rows    [][]string       `json:"rows"`
}

// Empty reports whether the query has no clauses.
func (q Query) Empty() bool {
	return len(q.Terms) == 0 && len(q.Ranges) == 0 && len(q.Compound) == 0
}

var inequalities = map[string]string{
	">":  "gt",
	">=": "gte",
	"<":  "lt",
	"<=": "lte",
}

// BuildQuery collects the filters of lineage into a query. Fields with no
// non-blank value are skipped. Terms for the same attribute accumulate
// without duplicates.
func BuildQuery(lineage []*model.Node) Query {
	q := Query{
		Terms:  make(map[string][]string),
		Ranges: make(map[string]map[string]string),
	}
	for _, n := range lineage {
		keys := make([]string, 0, len(n.Filters))
		for k := range n.Filters {
			keys = append(keys, k)
		}
		slices.Sort(keys)

		for _, id := range keys {
			fv := n.Filters[id]
			if fv.ESID == "" || blank(fv.FieldValues) {
				continue
			}
			switch {
			case len(fv.PostProcessedESID) > 0 || strings.Contains(fv.ESID, ","):
				q.Compound = append(q.Compound, compound(id, fv))
			case fv.IsRange:
				if fv.FieldType != "number" {
					continue
				}
				op, ok := inequalities[fv.Inequality]
				if !ok {
					op = "gt"
				}
				q.Ranges[fv.ESID] = map[string]string{op: fv.FieldValues[0]}
			default:
				for _, v := range termValues(fv) {
					if !slices.Contains(q.Terms[fv.ESID], v) {
						q.Terms[fv.ESID] = append(q.Terms[fv.ESID], v)
					}
				}
			}
		}
	}
	return q
}

func compound(id string, fv model.FilterValue) Compound {
	parts := fv.PostProcessedESID
	if len(parts) == 0 {
		names := strings.Split(fv.ESID, ",")
		parts = make([]model.ESIDPart, len(names))
		for i, name := range names {
			parts[i].ESID = name
			if i < len(fv.Ranges) {
				parts[i].Range = fv.Ranges[i]
			}
		}
	}

	c := Compound{FieldID: id, Parts: slices.Clone(parts)}
	for _, v := range fv.FieldValues {
		for _, alt := range strings.Split(v, "|") {
			if alt == "" {
				continue
			}
			row := strings.Split(alt, ",")
			// Post-processed rows carry a trailing display value.
			if len(row) > len(parts) {
				row = row[:len(parts)]
			}
			c.Rows = append(c.Rows, row)
		}
	}
	return c
}

func termValues(fv model.FilterValue) []string {
	if fv.FieldType != "truefalse" {
		return fv.FieldValues
	}
	out := make([]string, len(fv.FieldValues))
	for i, v := range fv.FieldValues {
		switch v {
		case "true":
			out[i] = "T"
		case "false":
			out[i] = "F"
		default:
			out[i] = v
		}
	}
	return out
}

func blank(values []string) bool {
	for _, v := range values {
		if v != "" {
			return false
		}
	}
	return true
}
