package cpa

import (
	"errors"
	"fmt"
	"testing"

	"github.com/l3aro/go-cegar/pkg/cfa"
	"github.com/stretchr/testify/assert"
)

type leaf struct {
	loc    cfa.Location
	target bool
	part   string
}

func (l leaf) Equal(o AbstractState) bool {
	x, ok := o.(leaf)
	return ok && x == l
}

func (l leaf) Location() cfa.Location { return l.loc }
func (l leaf) IsTarget() bool         { return l.target }
func (l leaf) Partition() string      { return l.part }

type pair struct{ children []AbstractState }

func (p pair) Equal(o AbstractState) bool { return false }
func (p pair) Wrapped() []AbstractState   { return p.children }

type opaque struct{}

func (opaque) Equal(AbstractState) bool { return true }

func TestCapabilities_Direct(t *testing.T) {
	s := leaf{loc: 3, target: true, part: "main"}

	assert.True(t, IsTarget(s))
	loc, ok := LocationOf(s)
	assert.True(t, ok)
	assert.Equal(t, cfa.Location(3), loc)
	assert.Equal(t, "main", PartitionOf(s))
}

func TestCapabilities_ThroughWrapper(t *testing.T) {
	s := pair{children: []AbstractState{opaque{}, leaf{loc: 5, target: true, part: "p"}}}

	assert.True(t, IsTarget(s))
	loc, ok := LocationOf(s)
	assert.True(t, ok)
	assert.Equal(t, cfa.Location(5), loc)
	assert.Equal(t, "p", PartitionOf(s))

	nested := pair{children: []AbstractState{pair{children: []AbstractState{leaf{loc: 9}}}}}
	assert.False(t, IsTarget(nested))
	loc, ok = LocationOf(nested)
	assert.True(t, ok)
	assert.Equal(t, cfa.Location(9), loc)
}

func TestCapabilities_Missing(t *testing.T) {
	assert.False(t, IsTarget(opaque{}))
	_, ok := LocationOf(opaque{})
	assert.False(t, ok)
	assert.Equal(t, "", PartitionOf(opaque{}))
	_, ok = KeyOf(opaque{})
	assert.False(t, ok)
}

func TestIncrement(t *testing.T) {
	a := Increment{}
	a.Add(2, "y", "x", "x")
	a.Add(4)
	b := Increment{1: {"z"}, 2: {"w"}}

	merged := a.Merge(b)
	assert.Equal(t, Increment{1: {"z"}, 2: {"w", "x", "y"}}, merged)
	assert.Equal(t, 4, merged.Size())
	assert.False(t, merged.Empty())
	assert.True(t, Increment{3: nil}.Empty())
	assert.Equal(t, "[L1:{z} L2:{w,x,y}]", merged.String())

	// Inputs are untouched.
	assert.Equal(t, []string{"y", "x", "x"}, a[2])
}

func TestUnsupportedError(t *testing.T) {
	err := fmt.Errorf("transfer: %w", &UnsupportedError{Edge: cfa.Edge{From: 1, To: 2, Kind: cfa.EdgeCall, Code: "f()"}, Reason: "calls"})

	assert.True(t, errors.Is(err, ErrUnsupported))
	var ue *UnsupportedError
	assert.True(t, errors.As(err, &ue))
	assert.Equal(t, "calls", ue.Reason)
	assert.Contains(t, err.Error(), "L1 -[f()]-> L2")
}

// chain is a total order on ints at a single location.
type chain struct{}

type num int

func (n num) Equal(o AbstractState) bool { m, ok := o.(num); return ok && m == n }

func (chain) Compare(a, b AbstractState) Ordering {
	x, y := a.(num), b.(num)
	switch {
	case x < y:
		return Less
	case x > y:
		return Greater
	default:
		return Equal
	}
}

func (chain) Join(a, b AbstractState) AbstractState {
	if a.(num) > b.(num) {
		return a
	}
	return b
}

func TestOperators(t *testing.T) {
	d := chain{}

	assert.Equal(t, num(2), MergeSep{}.Merge(num(5), num(2), nil))
	assert.Equal(t, num(5), MergeJoin{Domain: d}.Merge(num(5), num(2), nil))

	idx, ok := StopSep{Domain: d}.Stop(num(3), []AbstractState{num(1), num(4), num(7)}, nil)
	assert.True(t, ok)
	assert.Equal(t, 1, idx)

	_, ok = StopSep{Domain: d}.Stop(num(9), []AbstractState{num(1), num(4)}, nil)
	assert.False(t, ok)

	assert.True(t, LessOrEqual(d, num(1), num(1)))
	assert.False(t, LessOrEqual(d, num(2), num(1)))
}

func TestMergeJoin_DifferentLocations(t *testing.T) {
	m := MergeJoin{Domain: nil}
	// Never consults the domain when locations differ.
	got := m.Merge(leaf{loc: 1}, leaf{loc: 2}, nil)
	assert.Equal(t, leaf{loc: 2}, got)
}

func TestAnalysis_Validate(t *testing.T) {
	assert.Error(t, Analysis{}.Validate())
}
