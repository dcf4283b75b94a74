package eqdom

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/l3aro/go-cegar/pkg/cfa"
	"github.com/l3aro/go-cegar/pkg/cpa"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// State is a location with the constraints known to hold there.
type State struct {
	loc     cfa.Location
	formula Formula
	target  bool
}

// NewState creates a state.
func NewState(loc cfa.Location, f Formula, target bool) State {
	return State{loc: loc, formula: f, target: target}
}

func (s State) Equal(o cpa.AbstractState) bool {
	t, ok := o.(State)
	return ok && s.loc == t.loc && s.target == t.target && s.formula.Equal(t.formula)
}

func (s State) Location() cfa.Location { return s.loc }
func (s State) IsTarget() bool         { return s.target }
func (s State) Formula() Formula       { return s.formula }
func (s State) Key() string            { return fmt.Sprintf("%d|%t|%s", s.loc, s.target, s.formula) }
func (s State) String() string         { return fmt.Sprintf("%s{%s}", s.loc, s.formula) }

// Domain orders states by entailment.
type Domain struct{}

func (Domain) Compare(a, b cpa.AbstractState) cpa.Ordering {
	x, y := a.(State), b.(State)
	if x.loc != y.loc || x.target != y.target {
		return cpa.Incomparable
	}
	le := x.formula.EntailsAll(y.formula)
	ge := y.formula.EntailsAll(x.formula)
	switch {
	case le && ge:
		return cpa.Equal
	case le:
		return cpa.Less
	case ge:
		return cpa.Greater
	}
	return cpa.Incomparable
}

func (Domain) Join(a, b cpa.AbstractState) cpa.AbstractState {
	x, y := a.(State), b.(State)
	return State{loc: x.loc, formula: x.formula.Join(y.formula), target: x.target || y.target}
}

// Precision lists the variables tracked at each location. The zero value
// tracks nothing.
type Precision struct {
	vars map[cfa.Location][]string
}

// NewPrecision returns a precision tracking the given variables at loc.
func NewPrecision(tracked map[cfa.Location][]string) Precision {
	p := Precision{vars: map[cfa.Location][]string{}}
	for loc, vs := range tracked {
		p.add(loc, vs...)
	}
	return p
}

func (p Precision) add(loc cfa.Location, vs ...string) {
	if len(vs) == 0 {
		return
	}
	merged := append(append([]string(nil), p.vars[loc]...), vs...)
	slices.Sort(merged)
	p.vars[loc] = slices.Compact(merged)
}

func (p Precision) clone() Precision {
	out := Precision{vars: make(map[cfa.Location][]string, len(p.vars))}
	for loc, vs := range p.vars {
		out.vars[loc] = vs
	}
	return out
}

// Tracks reports whether v is tracked at loc.
func (p Precision) Tracks(loc cfa.Location, v string) bool {
	_, ok := slices.BinarySearch(p.vars[loc], v)
	return ok
}

// Tracked returns the variables tracked at loc.
func (p Precision) Tracked(loc cfa.Location) []string { return p.vars[loc] }

func (p Precision) Join(o cpa.Precision) cpa.Precision {
	out := p.clone()
	for loc, vs := range o.(Precision).vars {
		out.add(loc, vs...)
	}
	return out
}

// Refine tracks the variables of every fact at its location. Facts are
// atoms; a bare variable name is accepted too.
func (p Precision) Refine(inc cpa.Increment) cpa.Precision {
	out := p.clone()
	for loc, facts := range inc {
		for _, f := range facts {
			if a, err := ParseAtom(f); err == nil {
				out.add(loc, a.Vars()...)
			} else if isIdent(strings.TrimSpace(f)) {
				out.add(loc, strings.TrimSpace(f))
			}
		}
	}
	return out
}

func (p Precision) Equal(o cpa.Precision) bool {
	q, ok := o.(Precision)
	return ok && p.Key() == q.Key()
}

// Size returns the number of tracked (location, variable) pairs.
func (p Precision) Size() int {
	n := 0
	for _, vs := range p.vars {
		n += len(vs)
	}
	return n
}

func (p Precision) Key() string { return p.String() }

func (p Precision) String() string {
	locs := maps.Keys(p.vars)
	sort.Slice(locs, func(i, j int) bool { return locs[i] < locs[j] })
	parts := make([]string, 0, len(locs))
	for _, loc := range locs {
		if len(p.vars[loc]) > 0 {
			parts = append(parts, fmt.Sprintf("%s:{%s}", loc, strings.Join(p.vars[loc], ",")))
		}
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// Transfer computes successors: the exact post of the edge operation,
// projected onto the variables tracked at the edge's target.
type Transfer struct {
	program *cfa.Program
}

// NewTransfer creates the transfer relation for program.
func NewTransfer(program *cfa.Program) *Transfer {
	return &Transfer{program: program}
}

func (t *Transfer) Successors(ctx context.Context, s cpa.AbstractState, p cpa.Precision, e cfa.Edge) ([]cpa.AbstractState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	st, ok := s.(State)
	if !ok {
		return nil, fmt.Errorf("eqdom: unexpected state %T", s)
	}
	prec, _ := p.(Precision)
	op, err := ParseOp(e)
	if err != nil {
		return nil, err
	}
	f := Post(st.formula, op)
	if f.IsBottom() {
		return nil, nil
	}
	f = f.Project(func(v string) bool { return prec.Tracks(e.To, v) })
	return []cpa.AbstractState{State{loc: e.To, formula: f, target: t.program.IsError(e.To)}}, nil
}

// Analysis bundles the domain for program. merge is "sep" or "join".
func Analysis(program *cfa.Program, merge string, initial Precision) cpa.Analysis {
	var m cpa.MergeOperator = cpa.MergeSep{}
	if merge == "join" {
		m = cpa.MergeJoin{Domain: Domain{}}
	}
	if initial.vars == nil {
		initial = NewPrecision(nil)
	}
	return cpa.Analysis{
		InitialState:     State{loc: program.Entry(), target: program.IsError(program.Entry())},
		InitialPrecision: initial,
		Domain:           Domain{},
		Transfer:         NewTransfer(program),
		Merge:            m,
		Stop:             cpa.StopSep{Domain: Domain{}},
	}
}
