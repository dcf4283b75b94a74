// Package algorithm implements the fixpoint reachability loop: it expands
// waiting nodes of a reached set through the transfer relation, folds new
// states into existing ones with the merge operator and stops on covered states.
package algorithm

import (
	"context"
	"errors"
	"fmt"

	"github.com/l3aro/go-cegar/internal/log"
	"github.com/l3aro/go-cegar/pkg/arg"
	"github.com/l3aro/go-cegar/pkg/cfa"
	"github.com/l3aro/go-cegar/pkg/cpa"
	"github.com/l3aro/go-cegar/pkg/reached"
	"github.com/l3aro/go-cegar/pkg/stats"
)

// Status summarizes one run of the loop.
type Status struct {
	Sound       bool // No successor was dropped
	TargetFound bool
	Interrupted bool // Cancelled before the waitlist was exhausted
	Unsupported int  // Successors dropped for unsupported constructs
}

// Complete reports whether the waitlist was exhausted.
func (s Status) Complete() bool { return !s.Interrupted }

// TargetFilter restricts which target states count as targets.
type TargetFilter func(cpa.AbstractState) bool

// Algorithm is the worklist loop. It keeps no state between runs apart from
// the statistics record it writes into.
type Algorithm struct {
	program *cfa.Program
	cpa     cpa.Analysis

	stopAtFirstTarget bool
	filter            TargetFilter
	stats             *stats.Stats
	log               log.Logger
}

// Option configures an Algorithm.
type Option func(*Algorithm)

// WithStopAtFirstTarget selects single-target semantics (the default) or,
// when false, collects every reachable target.
func WithStopAtFirstTarget(stop bool) Option {
	return func(a *Algorithm) { a.stopAtFirstTarget = stop }
}

// WithTargetFilter limits targets to states accepted by f.
func WithTargetFilter(f TargetFilter) Option {
	return func(a *Algorithm) { a.filter = f }
}

// WithStats records counters into s.
func WithStats(s *stats.Stats) Option {
	return func(a *Algorithm) { a.stats = s }
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(a *Algorithm) { a.log = l }
}

// New creates the loop for program using the collaborators in c.
func New(program *cfa.Program, c cpa.Analysis, opts ...Option) *Algorithm {
	a := &Algorithm{
		program:           program,
		cpa:               c,
		stopAtFirstTarget: true,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.stats == nil {
		a.stats = stats.New()
	}
	if a.log == nil {
		a.log = log.Nop()
	}
	a.log = a.log.With("component", "fixpoint")
	return a
}

// IsTarget reports whether s counts as a target for this run.
func (a *Algorithm) IsTarget(s cpa.AbstractState) bool {
	return cpa.IsTarget(s) && (a.filter == nil || a.filter(s))
}

// Run expands waiting nodes until the waitlist is empty, a target is found
// under single-target semantics, or ctx is done. Cancellation yields a
// partial result together with ctx's error.
func (a *Algorithm) Run(ctx context.Context, rs *reached.Set) (Status, error) {
	defer a.stats.Track(&a.stats.ExploreTime)()
	status := Status{Sound: true}

	for {
		if err := ctx.Err(); err != nil {
			status.Interrupted = true
			return status, err
		}
		id, prec, ok := rs.Pop()
		if !ok {
			return status, nil
		}
		g := rs.Graph()
		node := g.Node(id)
		if node == nil || node.Removed || node.IsCovered() {
			continue
		}
		// Targets are sinks.
		if a.IsTarget(node.State) {
			status.TargetFound = true
			continue
		}

		found, err := a.expand(ctx, rs, id, prec, &status)
		if err != nil {
			if ctx.Err() != nil {
				rs.Reopen(id)
				status.Interrupted = true
				return status, ctx.Err()
			}
			return status, err
		}
		if found {
			status.TargetFound = true
			if a.stopAtFirstTarget {
				a.log.Debug("target found, stopping", "node", id, "waiting", rs.WaitlistSize())
				return status, nil
			}
		}
	}
}

// expand computes and folds in the successors of one node.
func (a *Algorithm) expand(ctx context.Context, rs *reached.Set, id int, prec cpa.Precision, status *Status) (bool, error) {
	g := rs.Graph()
	state := g.Node(id).State
	loc, ok := cpa.LocationOf(state)
	if !ok {
		return false, &arg.InvariantError{Op: "expand", Node: id, Msg: "state has no location"}
	}

	found := false
	for _, e := range a.program.Leaving(loc) {
		a.stats.TransferCalls++
		succs, err := a.cpa.Transfer.Successors(ctx, state, prec, e)
		if err != nil {
			if errors.Is(err, cpa.ErrUnsupported) {
				status.Sound = false
				status.Unsupported++
				a.stats.Unsupported++
				a.log.Warn("dropping successor", "edge", e.String(), "error", err)
				continue
			}
			return found, fmt.Errorf("transfer over %s: %w", e, err)
		}
		for _, succ := range succs {
			isTarget, err := a.fold(rs, id, e, succ, prec)
			if err != nil {
				return found, err
			}
			found = found || isTarget
		}
	}
	return found, nil
}

// fold merges succ into the reached set, covers it, or adds it as a new
// child of parent. It reports whether a new target node was created.
func (a *Algorithm) fold(rs *reached.Set, parent int, e cfa.Edge, succ cpa.AbstractState, prec cpa.Precision) (bool, error) {
	g := rs.Graph()
	candidates := rs.Candidates(succ)

	merged := false
	for _, r := range candidates {
		// Merging into an ancestor would close a cycle.
		if r == parent || g.IsAncestor(r, parent) {
			continue
		}
		old := g.Node(r).State
		m := a.cpa.Merge.Merge(succ, old, prec)
		if m.Equal(old) {
			continue
		}
		if err := rs.UpdateState(r, m); err != nil {
			return false, err
		}
		if err := g.AddParent(r, parent, e); err != nil {
			return false, err
		}
		rs.Reopen(r)
		a.stats.Merges++
		succ = m
		merged = true
	}
	if merged {
		return false, nil
	}

	states := make([]cpa.AbstractState, len(candidates))
	for i, r := range candidates {
		states[i] = g.Node(r).State
	}
	if i, ok := a.cpa.Stop.Stop(succ, states, prec); ok {
		id, err := g.AddChild(parent, e, succ)
		if err != nil {
			return false, err
		}
		if err := g.Cover(id, candidates[i]); err != nil {
			return false, err
		}
		rs.Add(id, prec)
		a.stats.NodesCovered++
		return false, nil
	}

	id, err := g.AddChild(parent, e, succ)
	if err != nil {
		return false, err
	}
	rs.Add(id, prec)
	a.stats.NodesCreated++
	if a.IsTarget(succ) {
		a.log.Debug("target reached", "node", id, "edge", e.String())
		return true, nil
	}
	return false, nil
}
