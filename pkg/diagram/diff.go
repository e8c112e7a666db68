package diagram

import (
	"cmp"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/shahcompbio/montage-sub000/pkg/model"
)

// Diff is the difference between two diagram states.
type Diff struct {
	AddedNodes    []model.ElementNode `json:"addedNodes"`
	RemovedNodes  []int64             `json:"removedNodes"`
	ModifiedNodes []model.ElementNode `json:"modifiedNodes"`
	AddedEdges    []model.ElementEdge `json:"addedEdges"`
	RemovedEdges  []string            `json:"removedEdges"` // source|target|type
	FullGraph     bool                `json:"fullGraph"`
}

// Empty reports whether the diff changes nothing.
func (d *Diff) Empty() bool {
	return !d.FullGraph &&
		len(d.AddedNodes) == 0 && len(d.RemovedNodes) == 0 && len(d.ModifiedNodes) == 0 &&
		len(d.AddedEdges) == 0 && len(d.RemovedEdges) == 0
}

// Snapshot is an indexed diagram state kept for diffing.
type Snapshot struct {
	Hash  string
	Nodes map[int64]model.ElementNode
	Edges map[string]model.ElementEdge
}

// NewSnapshot indexes el.
func NewSnapshot(el *model.Elements) *Snapshot {
	s := &Snapshot{
		Nodes: make(map[int64]model.ElementNode, len(el.Nodes)),
		Edges: make(map[string]model.ElementEdge, len(el.Edges)),
	}
	for _, n := range el.Nodes {
		s.Nodes[n.ID] = *n
	}
	for _, e := range el.Edges {
		s.Edges[edgeKey(e)] = *e
	}
	data, _ := json.Marshal(el)
	s.Hash = fmt.Sprintf("%x", sha256.Sum256(data))
	return s
}

// ComputeDiff returns the changes from old to el. A nil old yields the full
// element set.
func ComputeDiff(old *Snapshot, el *model.Elements) *Diff {
	if old == nil {
		d := &Diff{FullGraph: true}
		for _, n := range el.Nodes {
			d.AddedNodes = append(d.AddedNodes, *n)
		}
		for _, e := range el.Edges {
			d.AddedEdges = append(d.AddedEdges, *e)
		}
		return d
	}

	cur := NewSnapshot(el)
	d := &Diff{}
	if cur.Hash == old.Hash {
		return d
	}

	for id, n := range cur.Nodes {
		prev, ok := old.Nodes[id]
		switch {
		case !ok:
			d.AddedNodes = append(d.AddedNodes, n)
		case prev != n:
			d.ModifiedNodes = append(d.ModifiedNodes, n)
		}
	}
	for id := range old.Nodes {
		if _, ok := cur.Nodes[id]; !ok {
			d.RemovedNodes = append(d.RemovedNodes, id)
		}
	}
	for key, e := range cur.Edges {
		if _, ok := old.Edges[key]; !ok {
			d.AddedEdges = append(d.AddedEdges, e)
		}
	}
	for key := range old.Edges {
		if _, ok := cur.Edges[key]; !ok {
			d.RemovedEdges = append(d.RemovedEdges, key)
		}
	}

	byID := func(a, b model.ElementNode) int { return cmp.Compare(a.ID, b.ID) }
	slices.SortFunc(d.AddedNodes, byID)
	slices.SortFunc(d.ModifiedNodes, byID)
	slices.Sort(d.RemovedNodes)
	slices.SortFunc(d.AddedEdges, func(a, b model.ElementEdge) int {
		return cmp.Compare(edgeKey(&a), edgeKey(&b))
	})
	slices.Sort(d.RemovedEdges)
	return d
}

func edgeKey(e *model.ElementEdge) string {
	return fmt.Sprintf("%d|%d|%s", e.Source, e.Target, e.Type)
}
