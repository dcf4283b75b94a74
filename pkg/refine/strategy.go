package refine

import (
	"context"
	"fmt"

	"github.com/l3aro/go-cegar/internal/log"
	"github.com/l3aro/go-cegar/pkg/arg"
	"github.com/l3aro/go-cegar/pkg/cpa"
	"github.com/l3aro/go-cegar/pkg/reached"
	"github.com/l3aro/go-cegar/pkg/stats"
)

// Policy selects where the reachability graph is cut after a refinement.
type Policy string

const (
	// PolicyRoot restarts the exploration from the graph root.
	PolicyRoot Policy = "root"
	// PolicyPivot cuts each path at its first non-true interpolant.
	PolicyPivot Policy = "pivot"
	// PolicyCommon cuts once at the lowest common ancestor of all pivots.
	PolicyCommon Policy = "common"
)

// ParsePolicy maps a configuration string to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyRoot:
		return PolicyRoot, nil
	case PolicyPivot, PolicyCommon:
		return Policy(s), nil
	}
	return PolicyRoot, fmt.Errorf("unknown restart policy %q (must be root, pivot or common)", s)
}

// Refinement describes the effect of one refinement on the reached set.
type Refinement struct {
	Increment cpa.Increment
	Cuts      []int // Nodes at which subtrees were removed
	Removed   int   // Number of removed nodes
	Reopened  []int // Nodes put back on the waitlist with the merged precision
}

// Strategy refines the abstraction for spurious paths: it interpolates every
// path, derives a precision increment and replaces the affected part of the
// reachability graph.
type Strategy struct {
	interpolator Interpolator
	policy       Policy
	relocate     bool
	guard        *Guard
	stats        *stats.Stats
	log          log.Logger
}

// Option configures a Strategy.
type Option func(*Strategy)

// WithPolicy sets the restart policy. The default is PolicyRoot.
func WithPolicy(p Policy) Option {
	return func(s *Strategy) { s.policy = p }
}

// WithRootRelocation enables moving cut points up until no node outside the
// removed subtree is covered by a node inside it.
func WithRootRelocation(enabled bool) Option {
	return func(s *Strategy) { s.relocate = enabled }
}

// WithStats records counters into st.
func WithStats(st *stats.Stats) Option {
	return func(s *Strategy) { s.stats = st }
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(s *Strategy) { s.log = l }
}

// NewStrategy creates a strategy using itp.
func NewStrategy(itp Interpolator, opts ...Option) *Strategy {
	s := &Strategy{
		interpolator: itp,
		policy:       PolicyRoot,
		guard:        NewGuard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.stats == nil {
		s.stats = stats.New()
	}
	if s.log == nil {
		s.log = log.Nop()
	}
	s.log = s.log.With("component", "refiner")
	return s
}

// Policy returns the restart policy.
func (s *Strategy) Policy() Policy { return s.policy }

type cut struct {
	path  int // Index of the path the cut is guarded on
	node  int
	depth int // Position of node on that path, or -1
}

// Refine handles a set of spurious paths, all ending in live targets of rs.
// On success the reached set is ready for the next exploration round.
func (s *Strategy) Refine(ctx context.Context, rs *reached.Set, paths []arg.Path) (*Refinement, error) {
	defer s.stats.Track(&s.stats.RefineTime)()
	if len(paths) == 0 {
		return nil, fmt.Errorf("refine: no paths")
	}
	g := rs.Graph()

	inc := cpa.Increment{}
	pivots := make([]int, len(paths))
	for i, path := range paths {
		seq, err := s.interpolator.Interpolate(ctx, path, True())
		s.stats.InterpolationCalls++
		if err != nil {
			return nil, fmt.Errorf("interpolate %s: %w", path, err)
		}
		if err := ValidateSequence(seq, path.Len()); err != nil {
			return nil, fmt.Errorf("interpolate %s: %w", path, err)
		}
		shape := Analyze(seq)
		s.stats.TruePrefix += shape.TruePrefix
		s.stats.NonTrivial += shape.NonTrivial
		s.stats.FalseSuffix += shape.FalseSuffix
		pivots[i] = shape.Pivot
		inc = inc.Merge(IncrementFor(path, seq))
		s.log.Debug("interpolated", "path", path.Describe(), "pivot", shape.Pivot, "non_trivial", shape.NonTrivial)
	}

	cuts := s.cutPoints(g, paths, pivots)
	if s.relocate {
		for i := range cuts {
			s.relocateCut(g, paths, &cuts[i])
		}
	}
	for i := range cuts {
		c := &cuts[i]
		d, err := s.guard.Admit(paths[c.path], inc, c.depth)
		if err != nil {
			return nil, err
		}
		if d == c.depth {
			continue
		}
		s.stats.RepeatedRefinement++
		s.log.Debug("refinement repeated, moving cut deeper", "from", c.node, "to", paths[c.path].Nodes[d])
		c.node, c.depth = paths[c.path].Nodes[d], d
	}

	ref := &Refinement{Increment: inc}
	for _, c := range cuts {
		if !g.Live(c.node) {
			// Already removed together with an earlier cut.
			continue
		}
		merged := s.mergedPrecision(rs, c.node, inc)
		rm, err := rs.RemoveSubtree(c.node)
		if err != nil {
			return nil, err
		}
		reopened := append(append([]int(nil), rm.Frontier...), rm.Uncovered...)
		for _, id := range reopened {
			if own := rs.Precision(id); own != nil {
				rs.SetPrecision(id, own.Join(merged))
			} else {
				rs.SetPrecision(id, merged)
			}
		}
		ref.Cuts = append(ref.Cuts, c.node)
		ref.Removed += len(rm.Removed)
		ref.Reopened = append(ref.Reopened, reopened...)
		s.stats.NodesRemoved += len(rm.Removed)
		s.stats.Reopened += len(reopened)
	}
	s.log.Debug("refined", "increment", inc.String(), "cuts", ref.Cuts, "removed", ref.Removed)
	return ref, nil
}

func (s *Strategy) cutPoints(g *arg.Graph, paths []arg.Path, pivots []int) []cut {
	switch s.policy {
	case PolicyPivot:
		out := make([]cut, len(paths))
		for i, path := range paths {
			out[i] = cut{path: i, node: path.Nodes[pivots[i]], depth: pivots[i]}
		}
		return out
	case PolicyCommon:
		nodes := make([]int, len(paths))
		for i, path := range paths {
			nodes[i] = path.Nodes[pivots[i]]
		}
		lca := g.LowestCommonAncestor(nodes...)
		return []cut{{path: 0, node: lca, depth: indexOf(paths[0].Nodes, lca)}}
	default:
		return []cut{{path: 0, node: g.Root(), depth: 0}}
	}
}

// relocateCut moves c upwards until no node outside its subtree is covered
// by a node inside it.
func (s *Strategy) relocateCut(g *arg.Graph, paths []arg.Path, c *cut) {
	for c.node != g.Root() {
		sub := g.Subtree(c.node)
		inside := make(map[int]bool, len(sub))
		for _, id := range sub {
			inside[id] = true
		}
		var outside []int
		for _, id := range sub {
			for _, cov := range g.Node(id).Covering {
				if !inside[cov] {
					outside = append(outside, cov)
				}
			}
		}
		if len(outside) == 0 {
			return
		}
		next := g.LowestCommonAncestor(append(outside, c.node)...)
		s.stats.RootRelocations++
		s.log.Debug("relocating refinement root", "from", c.node, "to", next)
		c.node = next
		c.depth = indexOf(paths[c.path].Nodes, next)
	}
}

// mergedPrecision joins the precisions of the subtree below root and adds inc.
func (s *Strategy) mergedPrecision(rs *reached.Set, root int, inc cpa.Increment) cpa.Precision {
	var merged cpa.Precision
	for _, id := range rs.Graph().Subtree(root) {
		p := rs.Precision(id)
		if p == nil {
			continue
		}
		if merged == nil {
			merged = p
		} else {
			merged = merged.Join(p)
		}
	}
	if merged == nil {
		merged = rs.Precision(rs.Graph().Root())
	}
	return merged.Refine(inc)
}

func indexOf(ids []int, id int) int {
	for i, x := range ids {
		if x == id {
			return i
		}
	}
	return -1
}
