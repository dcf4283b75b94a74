// Package arg implements the abstract reachability graph: an arena of
// explored states addressed by stable integer ids, with parent/child links
// labelled by program edges and covering links between states.
package arg

import (
	"errors"
	"fmt"

	"github.com/l3aro/go-cegar/pkg/cfa"
	"github.com/l3aro/go-cegar/pkg/cpa"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// None marks an absent node reference.
const None = -1

// ErrCycle is returned when a link would make the graph cyclic.
var ErrCycle = errors.New("link would create a cycle")

// InvariantError reports a violated structural invariant. It signals a bug
// in the engine or in a collaborator, never an expected condition.
type InvariantError struct {
	Op   string
	Node int
	Msg  string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("arg invariant violated in %s at node %d: %s", e.Op, e.Node, e.Msg)
}

// Link is one end of a graph edge: the node on the other side and the
// program edge taken.
type Link struct {
	Node int
	Edge cfa.Edge
}

// Node is a graph vertex wrapping an abstract state.
type Node struct {
	ID        int
	State     cpa.AbstractState
	Parents   []Link
	Children  []Link
	CoveredBy int   // Covering node, or None
	Covering  []int // Nodes covered by this one
	Target    bool
	Removed   bool
}

// IsCovered reports whether the node is frozen under another node.
func (n *Node) IsCovered() bool { return n.CoveredBy != None }

// Graph is the arena. Ids are never reused; removal tombstones the slot.
type Graph struct {
	nodes []*Node
	live  int
}

// New creates a graph whose root (id 0) wraps the initial state.
func New(root cpa.AbstractState) *Graph {
	g := &Graph{}
	g.alloc(root)
	return g
}

func (g *Graph) alloc(s cpa.AbstractState) *Node {
	n := &Node{ID: len(g.nodes), State: s, CoveredBy: None, Target: cpa.IsTarget(s)}
	g.nodes = append(g.nodes, n)
	g.live++
	return n
}

// Root returns the id of the root node.
func (g *Graph) Root() int { return 0 }

// Node returns the node with the given id, including tombstones, or nil.
func (g *Graph) Node(id int) *Node {
	if id < 0 || id >= len(g.nodes) {
		return nil
	}
	return g.nodes[id]
}

// Live reports whether id names a node that has not been removed.
func (g *Graph) Live(id int) bool {
	n := g.Node(id)
	return n != nil && !n.Removed
}

// Len returns the number of live nodes.
func (g *Graph) Len() int { return g.live }

// Allocated returns the number of ids handed out, including tombstones.
func (g *Graph) Allocated() int { return len(g.nodes) }

// Nodes returns the ids of all live nodes in ascending order.
func (g *Graph) Nodes() []int {
	ids := make([]int, 0, g.live)
	for _, n := range g.nodes {
		if !n.Removed {
			ids = append(ids, n.ID)
		}
	}
	return ids
}

// Targets returns the live, uncovered target nodes in ascending order.
func (g *Graph) Targets() []int {
	var ids []int
	for _, n := range g.nodes {
		if !n.Removed && n.Target && !n.IsCovered() {
			ids = append(ids, n.ID)
		}
	}
	return ids
}

func (g *Graph) live1(op string, id int) (*Node, error) {
	n := g.Node(id)
	if n == nil || n.Removed {
		return nil, &InvariantError{Op: op, Node: id, Msg: "node is not live"}
	}
	return n, nil
}

// AddChild creates a node for s below parent, reached over e.
func (g *Graph) AddChild(parent int, e cfa.Edge, s cpa.AbstractState) (int, error) {
	p, err := g.live1("AddChild", parent)
	if err != nil {
		return None, err
	}
	if p.IsCovered() {
		return None, &InvariantError{Op: "AddChild", Node: parent, Msg: "covered nodes are frozen"}
	}
	n := g.alloc(s)
	n.Parents = []Link{{Node: parent, Edge: e}}
	p.Children = append(p.Children, Link{Node: n.ID, Edge: e})
	return n.ID, nil
}

// AddParent links an existing node below another parent. It fails with
// ErrCycle when child is parent or one of its ancestors.
func (g *Graph) AddParent(child, parent int, e cfa.Edge) error {
	c, err := g.live1("AddParent", child)
	if err != nil {
		return err
	}
	p, err := g.live1("AddParent", parent)
	if err != nil {
		return err
	}
	if child == parent || g.IsAncestor(child, parent) {
		return ErrCycle
	}
	for _, l := range c.Parents {
		if l.Node == parent && l.Edge.ID == e.ID {
			return nil
		}
	}
	c.Parents = append(c.Parents, Link{Node: parent, Edge: e})
	p.Children = append(p.Children, Link{Node: child, Edge: e})
	return nil
}

// SetState replaces the state of a live node in place.
func (g *Graph) SetState(id int, s cpa.AbstractState) error {
	n, err := g.live1("SetState", id)
	if err != nil {
		return err
	}
	n.State = s
	n.Target = cpa.IsTarget(s)
	return nil
}

// Cover freezes id under by.
func (g *Graph) Cover(id, by int) error {
	n, err := g.live1("Cover", id)
	if err != nil {
		return err
	}
	c, err := g.live1("Cover", by)
	if err != nil {
		return err
	}
	switch {
	case id == by:
		return &InvariantError{Op: "Cover", Node: id, Msg: "node cannot cover itself"}
	case n.IsCovered():
		return &InvariantError{Op: "Cover", Node: id, Msg: fmt.Sprintf("already covered by %d", n.CoveredBy)}
	case c.IsCovered():
		return &InvariantError{Op: "Cover", Node: by, Msg: "covering node is itself covered"}
	case len(n.Children) > 0:
		return &InvariantError{Op: "Cover", Node: id, Msg: "node already has successors"}
	}
	n.CoveredBy = by
	c.Covering = append(c.Covering, id)
	return nil
}

// Uncover removes the covering link of id, if any.
func (g *Graph) Uncover(id int) {
	n := g.Node(id)
	if n == nil || !n.IsCovered() {
		return
	}
	if c := g.Node(n.CoveredBy); c != nil {
		c.Covering = removeInt(c.Covering, id)
	}
	n.CoveredBy = None
}

// IsAncestor reports whether a is a proper ancestor of b.
func (g *Graph) IsAncestor(a, b int) bool {
	if a == b {
		return false
	}
	return g.Ancestors(b)[a]
}

// Ancestors returns id and every live node reachable from it over parent links.
func (g *Graph) Ancestors(id int) map[int]bool {
	seen := map[int]bool{}
	stack := []int{id}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[cur] || !g.Live(cur) {
			continue
		}
		seen[cur] = true
		for _, l := range g.nodes[cur].Parents {
			stack = append(stack, l.Node)
		}
	}
	return seen
}

// Subtree returns id and all its live descendants over child links, sorted.
// Covering links are not followed.
func (g *Graph) Subtree(id int) []int {
	if !g.Live(id) {
		return nil
	}
	seen := map[int]bool{id: true}
	queue := []int{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, l := range g.nodes[cur].Children {
			if !seen[l.Node] && g.Live(l.Node) {
				seen[l.Node] = true
				queue = append(queue, l.Node)
			}
		}
	}
	return sortedKeys(seen)
}

// Depths returns the shortest child-link distance of every live node from the root.
func (g *Graph) Depths() map[int]int {
	depth := map[int]int{g.Root(): 0}
	queue := []int{g.Root()}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, l := range g.nodes[cur].Children {
			if _, ok := depth[l.Node]; !ok && g.Live(l.Node) {
				depth[l.Node] = depth[cur] + 1
				queue = append(queue, l.Node)
			}
		}
	}
	return depth
}

// LowestCommonAncestor returns the deepest node that is an ancestor-or-self
// of every given node. Ties break towards the lower id. The root is the
// answer of last resort.
func (g *Graph) LowestCommonAncestor(ids ...int) int {
	if len(ids) == 0 {
		return g.Root()
	}
	common := g.Ancestors(ids[0])
	for _, id := range ids[1:] {
		anc := g.Ancestors(id)
		for n := range common {
			if !anc[n] {
				delete(common, n)
			}
		}
	}
	depth := g.Depths()
	best, bestDepth := g.Root(), -1
	for _, n := range sortedKeys(common) {
		if d, ok := depth[n]; ok && d > bestDepth {
			best, bestDepth = n, d
		}
	}
	return best
}

// Removal describes the effect of Remove.
type Removal struct {
	Removed   []int // Tombstoned nodes
	Frontier  []int // Live parents of removed nodes
	Uncovered []int // Live nodes whose covering node was removed
}

// Remove tombstones the given nodes. The set must be closed under child
// links except that live parents may remain; those become the frontier.
// Nodes covered by a removed node are uncovered.
func (g *Graph) Remove(ids []int) (Removal, error) {
	set := make(map[int]bool, len(ids))
	for _, id := range ids {
		if _, err := g.live1("Remove", id); err != nil {
			return Removal{}, err
		}
		set[id] = true
	}
	for id := range set {
		for _, l := range g.nodes[id].Children {
			if !set[l.Node] && g.Live(l.Node) && len(g.liveParents(l.Node, set)) == 0 {
				return Removal{}, &InvariantError{Op: "Remove", Node: l.Node, Msg: "removal would orphan node"}
			}
		}
	}

	frontier := map[int]bool{}
	uncovered := map[int]bool{}
	for _, id := range sortedKeys(set) {
		n := g.nodes[id]
		for _, l := range n.Parents {
			if !set[l.Node] && g.Live(l.Node) {
				p := g.nodes[l.Node]
				p.Children = removeLinks(p.Children, id)
				frontier[l.Node] = true
			}
		}
		for _, l := range n.Children {
			if !set[l.Node] && g.Live(l.Node) {
				c := g.nodes[l.Node]
				c.Parents = removeLinks(c.Parents, id)
			}
		}
		for _, c := range n.Covering {
			if !set[c] && g.Live(c) {
				g.nodes[c].CoveredBy = None
				uncovered[c] = true
			}
		}
		if n.IsCovered() && !set[n.CoveredBy] {
			g.Uncover(id)
		}
	}
	for id := range set {
		n := g.nodes[id]
		n.Removed = true
		n.Parents, n.Children, n.Covering = nil, nil, nil
		n.CoveredBy = None
		g.live--
	}
	return Removal{
		Removed:   sortedKeys(set),
		Frontier:  sortedKeys(frontier),
		Uncovered: sortedKeys(uncovered),
	}, nil
}

func (g *Graph) liveParents(id int, excluding map[int]bool) []int {
	var out []int
	for _, l := range g.nodes[id].Parents {
		if !excluding[l.Node] && g.Live(l.Node) {
			out = append(out, l.Node)
		}
	}
	return out
}

// Check verifies the structural invariants of the graph.
func (g *Graph) Check() error {
	if !g.Live(g.Root()) {
		return &InvariantError{Op: "Check", Node: g.Root(), Msg: "root removed"}
	}
	for _, n := range g.nodes {
		if n.Removed {
			continue
		}
		if n.ID != g.Root() && len(n.Parents) == 0 {
			return &InvariantError{Op: "Check", Node: n.ID, Msg: "non-root node without parents"}
		}
		for _, l := range n.Parents {
			if !g.Live(l.Node) || !hasLink(g.nodes[l.Node].Children, n.ID) {
				return &InvariantError{Op: "Check", Node: n.ID, Msg: fmt.Sprintf("parent link to %d not mirrored", l.Node)}
			}
		}
		for _, l := range n.Children {
			if !g.Live(l.Node) || !hasLink(g.nodes[l.Node].Parents, n.ID) {
				return &InvariantError{Op: "Check", Node: n.ID, Msg: fmt.Sprintf("child link to %d not mirrored", l.Node)}
			}
		}
		if n.IsCovered() {
			c := g.Node(n.CoveredBy)
			if c == nil || c.Removed || c.IsCovered() {
				return &InvariantError{Op: "Check", Node: n.ID, Msg: "covered by a dead or covered node"}
			}
			if len(n.Children) > 0 {
				return &InvariantError{Op: "Check", Node: n.ID, Msg: "covered node has successors"}
			}
		}
	}
	if g.hasCycle() {
		return &InvariantError{Op: "Check", Node: g.Root(), Msg: "graph contains a cycle"}
	}
	return nil
}

func (g *Graph) hasCycle() bool {
	const (
		white = iota
		grey
		black
	)
	color := make([]int, len(g.nodes))
	var visit func(int) bool
	visit = func(id int) bool {
		color[id] = grey
		for _, l := range g.nodes[id].Children {
			switch color[l.Node] {
			case grey:
				return true
			case white:
				if visit(l.Node) {
					return true
				}
			}
		}
		color[id] = black
		return false
	}
	for _, n := range g.nodes {
		if !n.Removed && color[n.ID] == white && visit(n.ID) {
			return true
		}
	}
	return false
}

func hasLink(links []Link, id int) bool {
	for _, l := range links {
		if l.Node == id {
			return true
		}
	}
	return false
}

func removeLinks(links []Link, id int) []Link {
	out := links[:0]
	for _, l := range links {
		if l.Node != id {
			out = append(out, l)
		}
	}
	return out
}

func removeInt(ids []int, id int) []int {
	out := ids[:0]
	for _, x := range ids {
		if x != id {
			out = append(out, x)
		}
	}
	return out
}

func sortedKeys(m map[int]bool) []int {
	out := maps.Keys(m)
	slices.Sort(out)
	return out
}
