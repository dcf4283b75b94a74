// Package reached implements the reached set: the explored graph nodes with
// their precisions, a waitlist of nodes still to be expanded, and an index
// by program location used for merge and stop lookups.
package reached

import (
	"container/list"
	"fmt"
	"math/rand"
	"sort"

	"github.com/l3aro/go-cegar/pkg/arg"
	"github.com/l3aro/go-cegar/pkg/cfa"
	"github.com/l3aro/go-cegar/pkg/cpa"
)

// Order selects which waiting node is expanded next.
type Order string

const (
	BFS    Order = "bfs"
	DFS    Order = "dfs"
	Random Order = "random"
)

// ParseOrder maps a configuration string to an Order.
func ParseOrder(s string) (Order, error) {
	switch Order(s) {
	case "", BFS:
		return BFS, nil
	case DFS, Random:
		return Order(s), nil
	}
	return BFS, fmt.Errorf("unknown traversal order %q (must be bfs, dfs or random)", s)
}

type indexKey struct {
	loc       cfa.Location
	located   bool
	partition string
}

func keyOf(s cpa.AbstractState) indexKey {
	loc, ok := cpa.LocationOf(s)
	return indexKey{loc: loc, located: ok, partition: cpa.PartitionOf(s)}
}

// Set is the reached set. It is not safe for concurrent use; one analysis
// owns one Set.
type Set struct {
	graph *arg.Graph
	order Order
	rng   *rand.Rand

	prec    map[int]cpa.Precision
	waiting *list.List
	inWait  map[int]*list.Element
	index   map[indexKey][]int
}

// Option configures a Set.
type Option func(*Set)

// WithOrder sets the traversal order. Random uses the given seed.
func WithOrder(o Order, seed int64) Option {
	return func(s *Set) {
		s.order = o
		s.rng = rand.New(rand.NewSource(seed))
	}
}

// New creates a reached set over g and adds its root with precision p.
func New(g *arg.Graph, p cpa.Precision, opts ...Option) *Set {
	s := &Set{
		graph:   g,
		order:   BFS,
		prec:    make(map[int]cpa.Precision),
		waiting: list.New(),
		inWait:  make(map[int]*list.Element),
		index:   make(map[indexKey][]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewSource(1))
	}
	s.Add(g.Root(), p)
	return s
}

// Graph returns the underlying reachability graph.
func (s *Set) Graph() *arg.Graph { return s.graph }

// Order returns the traversal order.
func (s *Set) Order() Order { return s.order }

// Add registers a graph node with its precision. Covered nodes are stored
// frozen: they are neither indexed nor waiting until they are uncovered.
func (s *Set) Add(id int, p cpa.Precision) {
	n := s.graph.Node(id)
	if n == nil || n.Removed {
		return
	}
	s.prec[id] = p
	if n.IsCovered() {
		return
	}
	s.indexAdd(id)
	s.push(id)
}

// Contains reports whether id is in the set.
func (s *Set) Contains(id int) bool {
	_, ok := s.prec[id]
	return ok
}

// Precision returns the precision stored for id.
func (s *Set) Precision(id int) cpa.Precision { return s.prec[id] }

// JoinedPrecision joins the precisions of all nodes in the set, in node
// order. Refinement may attach what it learned below the root.
func (s *Set) JoinedPrecision() cpa.Precision {
	var out cpa.Precision
	for _, id := range s.graph.Nodes() {
		p := s.prec[id]
		switch {
		case p == nil:
		case out == nil:
			out = p
		default:
			out = out.Join(p)
		}
	}
	return out
}

// SetPrecision replaces the precision stored for id.
func (s *Set) SetPrecision(id int, p cpa.Precision) {
	if s.Contains(id) {
		s.prec[id] = p
	}
}

// UpdateState replaces the state of id in place, as done by merge.
func (s *Set) UpdateState(id int, st cpa.AbstractState) error {
	n := s.graph.Node(id)
	if n == nil {
		return fmt.Errorf("update state: unknown node %d", id)
	}
	if keyOf(n.State) != keyOf(st) {
		return &arg.InvariantError{Op: "UpdateState", Node: id, Msg: "merge moved the state to another location"}
	}
	return s.graph.SetState(id, st)
}

// Pop removes and returns the next waiting node according to the order.
func (s *Set) Pop() (int, cpa.Precision, bool) {
	if s.waiting.Len() == 0 {
		return arg.None, nil, false
	}
	var e *list.Element
	switch s.order {
	case DFS:
		e = s.waiting.Back()
	case Random:
		k := s.rng.Intn(s.waiting.Len())
		e = s.waiting.Front()
		for ; k > 0; k-- {
			e = e.Next()
		}
	default:
		e = s.waiting.Front()
	}
	id := s.waiting.Remove(e).(int)
	delete(s.inWait, id)
	return id, s.prec[id], true
}

// Reopen puts an already-processed node back on the waitlist.
func (s *Set) Reopen(id int) {
	if !s.Contains(id) || !s.graph.Live(id) {
		return
	}
	if s.graph.Node(id).IsCovered() {
		return
	}
	s.indexAdd(id)
	s.push(id)
}

// Waiting reports whether id is on the waitlist.
func (s *Set) Waiting(id int) bool {
	_, ok := s.inWait[id]
	return ok
}

// WaitlistSize returns the number of waiting nodes.
func (s *Set) WaitlistSize() int { return s.waiting.Len() }

// Size returns the number of nodes in the set, covered ones included.
func (s *Set) Size() int { return len(s.prec) }

// Candidates returns the uncovered nodes sharing the location and partition
// of st, in ascending id order.
func (s *Set) Candidates(st cpa.AbstractState) []int {
	ids := s.index[keyOf(st)]
	out := make([]int, len(ids))
	copy(out, ids)
	return out
}

// Targets returns the uncovered target nodes.
func (s *Set) Targets() []int {
	var out []int
	for _, id := range s.graph.Targets() {
		if s.Contains(id) {
			out = append(out, id)
		}
	}
	return out
}

// RemoveSubtree removes root and its descendants. When root is the graph
// root only its descendants go and the root itself is reopened. Parents of
// removed nodes and nodes whose covering node disappeared are reopened; the
// result lists them in Frontier and Uncovered.
func (s *Set) RemoveSubtree(root int) (arg.Removal, error) {
	ids := s.graph.Subtree(root)
	if root == s.graph.Root() {
		ids = ids[1:]
	}
	if len(ids) == 0 {
		s.Reopen(root)
		return arg.Removal{Frontier: []int{root}}, nil
	}
	rm, err := s.graph.Remove(ids)
	if err != nil {
		return rm, fmt.Errorf("remove subtree of %d: %w", root, err)
	}
	for _, id := range rm.Removed {
		s.forget(id)
	}
	for _, id := range rm.Frontier {
		s.Reopen(id)
	}
	for _, id := range rm.Uncovered {
		s.Reopen(id)
	}
	return rm, nil
}

func (s *Set) forget(id int) {
	if e, ok := s.inWait[id]; ok {
		s.waiting.Remove(e)
		delete(s.inWait, id)
	}
	if n := s.graph.Node(id); n != nil {
		k := keyOf(n.State)
		s.index[k] = removeSorted(s.index[k], id)
		if len(s.index[k]) == 0 {
			delete(s.index, k)
		}
	}
	delete(s.prec, id)
}

func (s *Set) push(id int) {
	if _, ok := s.inWait[id]; ok {
		return
	}
	s.inWait[id] = s.waiting.PushBack(id)
}

func (s *Set) indexAdd(id int) {
	k := keyOf(s.graph.Node(id).State)
	ids := s.index[k]
	i := sort.SearchInts(ids, id)
	if i < len(ids) && ids[i] == id {
		return
	}
	ids = append(ids, 0)
	copy(ids[i+1:], ids[i:])
	ids[i] = id
	s.index[k] = ids
}

func removeSorted(ids []int, id int) []int {
	i := sort.SearchInts(ids, id)
	if i < len(ids) && ids[i] == id {
		return append(ids[:i], ids[i+1:]...)
	}
	return ids
}
