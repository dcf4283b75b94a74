package cpa

import (
	"context"
	"errors"
	"fmt"

	"github.com/l3aro/go-cegar/pkg/cfa"
)

// ErrUnsupported marks program edges a transfer relation cannot model.
var ErrUnsupported = errors.New("unsupported construct")

// UnsupportedError carries the edge that could not be modelled.
type UnsupportedError struct {
	Edge   cfa.Edge
	Reason string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("unsupported construct on edge %s: %s", e.Edge, e.Reason)
}

// Unwrap lets errors.Is match ErrUnsupported.
func (e *UnsupportedError) Unwrap() error { return ErrUnsupported }

// TransferRelation computes abstract successors over one program edge.
// An empty result means the edge is infeasible from s.
type TransferRelation interface {
	Successors(ctx context.Context, s AbstractState, p Precision, e cfa.Edge) ([]AbstractState, error)
}

// Ordering is the result of comparing two states in a domain's subsumption order.
type Ordering int

const (
	Incomparable Ordering = iota
	Less                  // a is strictly below b
	Equal
	Greater // a is strictly above b
)

func (o Ordering) String() string {
	switch o {
	case Less:
		return "less"
	case Equal:
		return "equal"
	case Greater:
		return "greater"
	default:
		return "incomparable"
	}
}

// Domain orders states and joins them.
type Domain interface {
	Compare(a, b AbstractState) Ordering
	Join(a, b AbstractState) AbstractState
}

// LessOrEqual reports whether a is subsumed by b.
func LessOrEqual(d Domain, a, b AbstractState) bool {
	o := d.Compare(a, b)
	return o == Less || o == Equal
}

// MergeOperator combines a new state with an existing one. The result must
// be at least as large as reached; returning reached unchanged keeps them apart.
type MergeOperator interface {
	Merge(state, reached AbstractState, p Precision) AbstractState
}

// StopOperator decides whether state is already covered by one of the
// candidates, returning the index of the covering candidate.
type StopOperator interface {
	Stop(state AbstractState, candidates []AbstractState, p Precision) (int, bool)
}

// MergeSep never merges.
type MergeSep struct{}

func (MergeSep) Merge(_, reached AbstractState, _ Precision) AbstractState { return reached }

// MergeJoin joins states that share a location.
type MergeJoin struct {
	Domain Domain
}

func (m MergeJoin) Merge(state, reached AbstractState, _ Precision) AbstractState {
	if l1, ok := LocationOf(state); ok {
		if l2, ok := LocationOf(reached); !ok || l1 != l2 {
			return reached
		}
	}
	return m.Domain.Join(state, reached)
}

// StopSep stops when a single candidate subsumes the state.
type StopSep struct {
	Domain Domain
}

func (s StopSep) Stop(state AbstractState, candidates []AbstractState, _ Precision) (int, bool) {
	for i, c := range candidates {
		if LessOrEqual(s.Domain, state, c) {
			return i, true
		}
	}
	return -1, false
}

// Analysis bundles the collaborators driving one exploration.
type Analysis struct {
	InitialState     AbstractState
	InitialPrecision Precision
	Domain           Domain
	Transfer         TransferRelation
	Merge            MergeOperator
	Stop             StopOperator
}

// Validate checks that every collaborator is set.
func (a Analysis) Validate() error {
	switch {
	case a.InitialState == nil:
		return errors.New("analysis has no initial state")
	case a.InitialPrecision == nil:
		return errors.New("analysis has no initial precision")
	case a.Transfer == nil:
		return errors.New("analysis has no transfer relation")
	case a.Merge == nil:
		return errors.New("analysis has no merge operator")
	case a.Stop == nil:
		return errors.New("analysis has no stop operator")
	}
	return nil
}

var (
	_ MergeOperator = MergeSep{}
	_ MergeOperator = MergeJoin{}
	_ StopOperator  = StopSep{}
)
