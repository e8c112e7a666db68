// Package cycles detects cycles in the portrait graph. A portrait is a
// forest of trees rooted at data nodes; any cycle makes lineage and deletion
// walks meaningless, so commits and restores are rejected when one appears.
package cycles

import (
	"fmt"
	"slices"

	"gonum.org/v1/gonum/graph/topo"

	"github.com/shahcompbio/montage-sub000/pkg/graph"
	"github.com/shahcompbio/montage-sub000/pkg/model"
)

// Cycle is a set of node IDs linked in a loop, sorted ascending.
type Cycle struct {
	Nodes []int64
}

// FindCycles returns every cycle of pg, self links included, ordered by the
// smallest member.
func FindCycles(pg *graph.PortraitGraph) []Cycle {
	var out []Cycle
	for _, id := range pg.SelfLinks() {
		out = append(out, Cycle{Nodes: []int64{id}})
	}
	for _, scc := range topo.TarjanSCC(pg.Graph()) {
		if len(scc) < 2 {
			continue
		}
		nodes := make([]int64, len(scc))
		for i, n := range scc {
			nodes[i] = n.ID()
		}
		slices.Sort(nodes)
		out = append(out, Cycle{Nodes: nodes})
	}
	slices.SortFunc(out, func(a, b Cycle) int {
		switch {
		case a.Nodes[0] < b.Nodes[0]:
			return -1
		case a.Nodes[0] > b.Nodes[0]:
			return 1
		}
		return 0
	})
	return out
}

// Check returns an error wrapping model.ErrCycle when nodes are cyclic.
func Check(nodes []*model.Node) error {
	found := FindCycles(graph.FromNodes(nodes))
	if len(found) == 0 {
		return nil
	}
	return fmt.Errorf("%w: nodes %v", model.ErrCycle, found[0].Nodes)
}
