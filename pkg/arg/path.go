package arg

import (
	"fmt"
	"strings"

	"github.com/l3aro/go-cegar/pkg/cfa"
	"github.com/l3aro/go-cegar/pkg/cpa"
	"github.com/mitchellh/hashstructure/v2"
)

// Path is a root-to-target sequence of graph nodes. Edges[i] leads from
// Nodes[i] to Nodes[i+1].
type Path struct {
	Nodes  []int               `json:"nodes"`
	States []cpa.AbstractState `json:"-"`
	Edges  []cfa.Edge          `json:"edges"`
}

// Len returns the number of edges on the path.
func (p Path) Len() int { return len(p.Edges) }

// Target returns the last node of the path.
func (p Path) Target() int {
	if len(p.Nodes) == 0 {
		return None
	}
	return p.Nodes[len(p.Nodes)-1]
}

// Suffix returns the path starting at position i.
func (p Path) Suffix(i int) Path {
	if i <= 0 {
		return p
	}
	if i > len(p.Edges) {
		i = len(p.Edges)
	}
	return Path{Nodes: p.Nodes[i:], States: p.States[i:], Edges: p.Edges[i:]}
}

// Locations returns the program location of each state, or -1 where unknown.
func (p Path) Locations() []cfa.Location {
	out := make([]cfa.Location, len(p.States))
	for i, s := range p.States {
		loc, ok := cpa.LocationOf(s)
		if !ok {
			loc = -1
		}
		out[i] = loc
	}
	return out
}

// Key identifies the path by its program-edge sequence. Two paths over the
// same edges share a key even if their graph nodes differ.
func (p Path) Key() uint64 {
	ids := make([]int, len(p.Edges))
	for i, e := range p.Edges {
		ids[i] = e.ID
	}
	h, err := hashstructure.Hash(ids, hashstructure.FormatV2, nil)
	if err != nil {
		// ints always hash
		panic(err)
	}
	return h
}

func (p Path) String() string {
	parts := make([]string, len(p.Edges))
	for i, e := range p.Edges {
		parts[i] = e.String()
	}
	return strings.Join(parts, "; ")
}

// PathTo extracts a path from the root to target over parent links. When a
// node has several parents the one with the lowest id is taken.
func (g *Graph) PathTo(target int) (Path, error) {
	if !g.Live(target) {
		return Path{}, &InvariantError{Op: "PathTo", Node: target, Msg: "node is not live"}
	}
	var (
		nodes []int
		edges []cfa.Edge
	)
	cur := target
	for steps := 0; ; steps++ {
		if steps > len(g.nodes) {
			return Path{}, &InvariantError{Op: "PathTo", Node: target, Msg: "parent walk does not terminate"}
		}
		nodes = append(nodes, cur)
		if cur == g.Root() {
			break
		}
		var (
			best    Link
			hasBest bool
		)
		for _, l := range g.nodes[cur].Parents {
			if g.Live(l.Node) && (!hasBest || l.Node < best.Node) {
				best, hasBest = l, true
			}
		}
		if !hasBest {
			return Path{}, &InvariantError{Op: "PathTo", Node: cur, Msg: "no live parent"}
		}
		edges = append(edges, best.Edge)
		cur = best.Node
	}

	p := Path{
		Nodes:  make([]int, len(nodes)),
		States: make([]cpa.AbstractState, len(nodes)),
		Edges:  make([]cfa.Edge, len(edges)),
	}
	for i := range nodes {
		id := nodes[len(nodes)-1-i]
		p.Nodes[i] = id
		p.States[i] = g.nodes[id].State
	}
	for i := range edges {
		p.Edges[i] = edges[len(edges)-1-i]
	}
	return p, nil
}

// Describe renders the path with node ids, for logs and witnesses.
func (p Path) Describe() string {
	var sb strings.Builder
	for i, id := range p.Nodes {
		fmt.Fprintf(&sb, "#%d", id)
		if i < len(p.Edges) {
			fmt.Fprintf(&sb, " -[%s]-> ", p.Edges[i].Code)
		}
	}
	return sb.String()
}
