// Package cpatest provides a small finite domain for exercising the engine in
// tests: a single variable v ranging over {0,1,2,3}, abstracted by the set of
// values it may hold.
package cpatest

import (
	"context"
	"fmt"
	"math/bits"
	"math/rand"
	"strconv"
	"strings"
	"sync"

	"github.com/l3aro/go-cegar/pkg/cfa"
	"github.com/l3aro/go-cegar/pkg/cpa"
)

// All is the value set with every value possible.
const All uint8 = 0xF

// State is a location plus the set of possible values of v.
type State struct {
	Loc    cfa.Location
	Vals   uint8
	Target bool
}

func (s State) Equal(o cpa.AbstractState) bool {
	t, ok := o.(State)
	return ok && t == s
}

func (s State) Location() cfa.Location { return s.Loc }
func (s State) IsTarget() bool         { return s.Target }
func (s State) Key() string            { return fmt.Sprintf("%d/%x/%t", s.Loc, s.Vals, s.Target) }
func (s State) String() string         { return fmt.Sprintf("%s{%04b}", s.Loc, s.Vals) }

// Precision is the trivial precision: nothing to refine.
type Precision struct{}

func (p Precision) Join(cpa.Precision) cpa.Precision   { return p }
func (p Precision) Refine(cpa.Increment) cpa.Precision { return p }

func (p Precision) Equal(o cpa.Precision) bool {
	_, ok := o.(Precision)
	return ok
}

func (p Precision) Key() string { return "-" }

// Domain orders states by set inclusion.
type Domain struct{}

func (Domain) Compare(a, b cpa.AbstractState) cpa.Ordering {
	x, y := a.(State), b.(State)
	if x.Loc != y.Loc {
		return cpa.Incomparable
	}
	sub := x.Vals&^y.Vals == 0
	sup := y.Vals&^x.Vals == 0
	switch {
	case sub && sup:
		return cpa.Equal
	case sub:
		return cpa.Less
	case sup:
		return cpa.Greater
	}
	return cpa.Incomparable
}

func (Domain) Join(a, b cpa.AbstractState) cpa.AbstractState {
	x, y := a.(State), b.(State)
	return State{Loc: x.Loc, Vals: x.Vals | y.Vals, Target: x.Target || y.Target}
}

// Transfer interprets edge code over v and counts its invocations.
type Transfer struct {
	Program *cfa.Program

	mu    sync.Mutex
	calls map[int]int
}

// NewTransfer creates a counting transfer relation for p.
func NewTransfer(p *cfa.Program) *Transfer {
	return &Transfer{Program: p, calls: map[int]int{}}
}

func (t *Transfer) Successors(ctx context.Context, s cpa.AbstractState, _ cpa.Precision, e cfa.Edge) ([]cpa.AbstractState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.mu.Lock()
	t.calls[e.ID]++
	t.mu.Unlock()

	vals, err := Post(s.(State).Vals, e)
	if err != nil {
		return nil, err
	}
	if vals == 0 {
		return nil, nil
	}
	return []cpa.AbstractState{State{Loc: e.To, Vals: vals, Target: t.Program.IsError(e.To)}}, nil
}

// Calls returns the total number of Successors invocations.
func (t *Transfer) Calls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, c := range t.calls {
		n += c
	}
	return n
}

// EdgeCalls returns how often Successors ran for the given edge.
func (t *Transfer) EdgeCalls(id int) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls[id]
}

// Post applies the edge to a value set.
func Post(vals uint8, e cfa.Edge) (uint8, error) {
	if e.Kind == cfa.EdgeCall || e.Kind == cfa.EdgeReturn {
		return 0, &cpa.UnsupportedError{Edge: e, Reason: "calls are not modelled"}
	}
	code := strings.TrimSpace(e.Code)
	switch {
	case code == "":
		return vals, nil
	case code == "v := *":
		return All, nil
	case code == "v++":
		return (vals<<1 | vals>>3) & All, nil
	case strings.HasPrefix(code, "v := "):
		k, err := value(e, strings.TrimPrefix(code, "v := "))
		return 1 << k, err
	case strings.HasPrefix(code, "v == "):
		k, err := value(e, strings.TrimPrefix(code, "v == "))
		return vals & (1 << k), err
	case strings.HasPrefix(code, "v != "):
		k, err := value(e, strings.TrimPrefix(code, "v != "))
		return vals &^ (1 << k), err
	}
	return 0, &cpa.UnsupportedError{Edge: e, Reason: "unknown operation"}
}

func value(e cfa.Edge, s string) (uint, error) {
	k, err := strconv.Atoi(s)
	if err != nil || k < 0 || k > 3 {
		return 0, &cpa.UnsupportedError{Edge: e, Reason: "value out of range"}
	}
	return uint(k), nil
}

// Analysis bundles the toy domain for p with the given merge operator
// ("sep" or "join").
func Analysis(p *cfa.Program, merge string) (cpa.Analysis, *Transfer) {
	tr := NewTransfer(p)
	var m cpa.MergeOperator = cpa.MergeSep{}
	if merge == "join" {
		m = cpa.MergeJoin{Domain: Domain{}}
	}
	return cpa.Analysis{
		InitialState:     State{Loc: p.Entry(), Vals: All, Target: p.IsError(p.Entry())},
		InitialPrecision: Precision{},
		Domain:           Domain{},
		Transfer:         tr,
		Merge:            m,
		Stop:             cpa.StopSep{Domain: Domain{}},
	}, tr
}

// Reachable computes the locations reachable in the concrete semantics.
func Reachable(p *cfa.Program) map[cfa.Location]bool {
	type conf struct {
		loc cfa.Location
		v   uint
	}
	seen := map[conf]bool{}
	var queue []conf
	for v := uint(0); v < 4; v++ {
		c := conf{p.Entry(), v}
		seen[c] = true
		queue = append(queue, c)
	}
	locs := map[cfa.Location]bool{}
	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]
		locs[c.loc] = true
		for _, e := range p.Leaving(c.loc) {
			out, err := Post(1<<c.v, e)
			if err != nil {
				continue
			}
			for v := uint(0); v < 4; v++ {
				if out&(1<<v) == 0 {
					continue
				}
				n := conf{e.To, v}
				if !seen[n] {
					seen[n] = true
					queue = append(queue, n)
				}
			}
		}
	}
	return locs
}

var ops = []string{"", "v := 0", "v := 1", "v := 2", "v := 3", "v := *", "v++", "v == 0", "v == 1", "v != 2", "v != 3"}

// RandomProgram builds a random graph over n locations with m extra edges.
// The last location is the error location.
func RandomProgram(rng *rand.Rand, n, m int) *cfa.Program {
	b := cfa.NewBuilder(fmt.Sprintf("random-%d-%d", n, m)).Entry(0)
	errLoc := cfa.Location(n - 1)
	b.Stmt(0, cfa.Location(1+rng.Intn(n-1)), ops[rng.Intn(len(ops))])
	b.Stmt(cfa.Location(rng.Intn(n-1)), errLoc, ops[rng.Intn(len(ops))])
	for i := 0; i < m; i++ {
		from := cfa.Location(rng.Intn(n - 1))
		to := cfa.Location(rng.Intn(n))
		b.Stmt(from, to, ops[rng.Intn(len(ops))])
	}
	return b.Error(errLoc).MustBuild()
}

// Size returns the number of values in a value set.
func Size(vals uint8) int { return bits.OnesCount8(vals) }
