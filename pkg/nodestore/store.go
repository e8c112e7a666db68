// Package nodestore holds the authoritative mapping from node ID to node.
//
// A Store is not safe for concurrent use; callers serialize mutations (the
// editor holds a single lock around every user action).
package nodestore

import (
	"fmt"
	"math/rand/v2"
	"slices"

	"github.com/shahcompbio/montage-sub000/pkg/logging"
	"github.com/shahcompbio/montage-sub000/pkg/model"
)

// maxID bounds generated IDs to [1, maxID).
const maxID = 100_000_000

// Store owns every live node of a portrait.
type Store struct {
	nodes    map[int64]*model.Node
	reserved map[int64]struct{}
	randID   func() int64
}

// Option configures a Store.
type Option func(*Store)

// WithIDSource replaces the random ID source. The store still retries until
// the candidate is unused, so the source may return duplicates.
func WithIDSource(src func() int64) Option {
	return func(s *Store) {
		s.randID = src
	}
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		nodes:    make(map[int64]*model.Node),
		reserved: make(map[int64]struct{}),
		randID:   func() int64 { return 1 + rand.Int64N(maxID-1) },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Reserve returns a fresh ID that is neither live nor already reserved and
// reserves it until Release or Put.
func (s *Store) Reserve() int64 {
	for {
		id := s.randID()
		if _, live := s.nodes[id]; live {
			continue
		}
		if _, taken := s.reserved[id]; taken {
			continue
		}
		s.reserved[id] = struct{}{}
		return id
	}
}

// ReserveID reserves a specific ID and reports whether it was free.
func (s *Store) ReserveID(id int64) bool {
	if _, live := s.nodes[id]; live {
		return false
	}
	if _, taken := s.reserved[id]; taken {
		return false
	}
	s.reserved[id] = struct{}{}
	return true
}

// Release drops a reservation made by Reserve.
func (s *Store) Release(id int64) {
	delete(s.reserved, id)
}

// Create adds a zero-valued node with a freshly generated ID.
func (s *Store) Create(nodeType string) *model.Node {
	id := s.Reserve()
	n := model.NewNode(id, nodeType)
	s.Put(n)
	return n
}

// CreateWithID adds a zero-valued node under the requested ID.
func (s *Store) CreateWithID(nodeType string, id int64) (*model.Node, error) {
	if _, exists := s.nodes[id]; exists {
		return nil, fmt.Errorf("create %s %d: %w", nodeType, id, model.ErrNodeExists)
	}
	n := model.NewNode(id, nodeType)
	s.Put(n)
	return n, nil
}

// Put inserts or replaces a node under its ID.
func (s *Store) Put(n *model.Node) {
	delete(s.reserved, n.ID)
	s.nodes[n.ID] = n
}

// Get returns the node with the given ID.
func (s *Store) Get(id int64) (*model.Node, bool) {
	n, ok := s.nodes[id]
	return n, ok
}

// Has reports whether id is live.
func (s *Store) Has(id int64) bool {
	_, ok := s.nodes[id]
	return ok
}

// Len returns the number of live nodes.
func (s *Store) Len() int {
	return len(s.nodes)
}

// Link appends child to parent.Children and parent to child.Parents.
// Calling it twice creates a duplicate link.
func (s *Store) Link(parentID, childID int64) error {
	parent, ok := s.nodes[parentID]
	if !ok {
		return fmt.Errorf("link parent %d: %w", parentID, model.ErrNodeNotFound)
	}
	child, ok := s.nodes[childID]
	if !ok {
		return fmt.Errorf("link child %d: %w", childID, model.ErrNodeNotFound)
	}
	parent.Children = append(parent.Children, childID)
	child.Parents = append(child.Parents, parentID)
	return nil
}

// UnlinkAllReferencesTo removes id from the parents and children of every
// live node.
func (s *Store) UnlinkAllReferencesTo(id int64) {
	isID := func(v int64) bool { return v == id }
	for _, n := range s.nodes {
		n.Parents = slices.DeleteFunc(n.Parents, isID)
		n.Children = slices.DeleteFunc(n.Children, isID)
	}
}

// Remove deletes the node entry. Callers unlink references first.
func (s *Store) Remove(id int64) {
	if _, ok := s.nodes[id]; !ok {
		return
	}
	delete(s.nodes, id)
	logging.Trace("node removed from store", "id", id)
}

// Clear drops every node and reservation.
func (s *Store) Clear() {
	s.nodes = make(map[int64]*model.Node)
	s.reserved = make(map[int64]struct{})
}

// IDs returns the live IDs in ascending order.
func (s *Store) IDs() []int64 {
	ids := make([]int64, 0, len(s.nodes))
	for id := range s.nodes {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Nodes returns the live nodes ordered by ID.
func (s *Store) Nodes() []*model.Node {
	out := make([]*model.Node, 0, len(s.nodes))
	for _, id := range s.IDs() {
		out = append(out, s.nodes[id])
	}
	return out
}

// NodesOfType returns the live nodes whose type matches, ordered by ID.
func (s *Store) NodesOfType(match func(string) bool) []*model.Node {
	var out []*model.Node
	for _, n := range s.Nodes() {
		if match(n.Type) {
			out = append(out, n)
		}
	}
	return out
}

// Lineage returns id followed by every node reachable through parents, in
// discovery order without duplicates. Missing IDs are skipped.
func (s *Store) Lineage(id int64) []int64 {
	return s.walk(id, func(n *model.Node) []int64 { return n.Parents })
}

// Downstream returns id followed by every node reachable through children.
func (s *Store) Downstream(id int64) []int64 {
	return s.walk(id, func(n *model.Node) []int64 { return n.Children })
}

// IsUpstreamOf reports whether ancestor is reachable from id through parents.
func (s *Store) IsUpstreamOf(ancestor, id int64) bool {
	lineage := s.Lineage(id)
	if len(lineage) == 0 {
		return false
	}
	return slices.Contains(lineage[1:], ancestor)
}

func (s *Store) walk(id int64, next func(*model.Node) []int64) []int64 {
	if _, ok := s.nodes[id]; !ok {
		return nil
	}
	seen := map[int64]bool{}
	var out []int64
	var visit func(int64)
	visit = func(cur int64) {
		n, ok := s.nodes[cur]
		if !ok || seen[cur] {
			return
		}
		seen[cur] = true
		out = append(out, cur)
		for _, nb := range slices.Clone(next(n)) {
			visit(nb)
		}
	}
	visit(id)
	return out
}

// ViewsDownstream walks children from id and returns the views reached, in
// discovery order. The walk does not continue past a view; id itself is
// returned if it is a view. A track view stands for the view hosting it.
func (s *Store) ViewsDownstream(id int64) []int64 {
	var out []int64
	seen := map[int64]bool{}
	var visit func(int64)
	visit = func(cur int64) {
		n, ok := s.nodes[cur]
		if !ok || seen[cur] {
			return
		}
		seen[cur] = true
		if n.IsView() {
			view := cur
			if n.Ignore && s.Has(n.ParentNodeID) {
				view = n.ParentNodeID
			}
			if !slices.Contains(out, view) {
				out = append(out, view)
			}
			return
		}
		for _, child := range slices.Clone(n.Children) {
			visit(child)
		}
	}
	visit(id)
	return out
}

// DataSources returns the data nodes in the lineage of id.
func (s *Store) DataSources(id int64) []int64 {
	var out []int64
	for _, anc := range s.Lineage(id) {
		if s.nodes[anc].Type == model.TypeData {
			out = append(out, anc)
		}
	}
	return out
}
