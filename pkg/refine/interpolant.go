package refine

import (
	"context"
	"fmt"
	"strings"

	"github.com/l3aro/go-cegar/pkg/arg"
	"github.com/l3aro/go-cegar/pkg/cpa"
)

type interpolantKind int

const (
	kindTrue interpolantKind = iota
	kindFacts
	kindFalse
)

// Interpolant separates an infeasible path prefix from its suffix. The two
// extremes carry no facts; other values carry the facts to track and a
// domain-specific formula the checker and interpolator understand.
type Interpolant struct {
	kind    interpolantKind
	Facts   []string
	Formula interface{}
}

// True returns the trivially true interpolant.
func True() Interpolant { return Interpolant{kind: kindTrue} }

// False returns the interpolant of an infeasible prefix.
func False() Interpolant { return Interpolant{kind: kindFalse} }

// NewInterpolant creates an interpolant from facts and a formula. Without
// facts it is trivially true.
func NewInterpolant(facts []string, formula interface{}) Interpolant {
	if len(facts) == 0 {
		return True()
	}
	return Interpolant{kind: kindFacts, Facts: facts, Formula: formula}
}

// IsTrue reports whether the interpolant carries no information.
func (i Interpolant) IsTrue() bool { return i.kind == kindTrue }

// IsFalse reports whether the interpolant marks an infeasible prefix.
func (i Interpolant) IsFalse() bool { return i.kind == kindFalse }

// IsTrivial reports whether the interpolant is one of the extremes.
func (i Interpolant) IsTrivial() bool { return i.kind != kindFacts }

func (i Interpolant) String() string {
	switch i.kind {
	case kindTrue:
		return "true"
	case kindFalse:
		return "false"
	}
	if s, ok := i.Formula.(fmt.Stringer); ok {
		return s.String()
	}
	return "{" + strings.Join(i.Facts, ", ") + "}"
}

// Interpolator computes an interpolant sequence I0..In for a spurious path
// of n edges, where I0 is seed and In is false.
type Interpolator interface {
	Interpolate(ctx context.Context, path arg.Path, seed Interpolant) ([]Interpolant, error)
}

// ValidateSequence checks the shape of an interpolant sequence for a path of
// n edges started from the true interpolant.
func ValidateSequence(seq []Interpolant, n int) error {
	if len(seq) != n+1 {
		return fmt.Errorf("interpolant sequence has %d elements, want %d", len(seq), n+1)
	}
	if !seq[0].IsTrue() {
		return fmt.Errorf("first interpolant is %s, want true", seq[0])
	}
	if !seq[n].IsFalse() {
		return fmt.Errorf("last interpolant is %s, want false", seq[n])
	}
	for i := 1; i < n; i++ {
		if seq[i-1].IsFalse() && !seq[i].IsFalse() {
			return fmt.Errorf("interpolant %d is %s after false", i, seq[i])
		}
	}
	return nil
}

// Shape counts the true prefix, the non-trivial middle and the false suffix
// of a sequence, excluding the leading seed.
type Shape struct {
	TruePrefix  int
	NonTrivial  int
	FalseSuffix int
	Pivot       int // Position of the first interpolant that is not true
}

// Analyze walks a validated sequence.
func Analyze(seq []Interpolant) Shape {
	s := Shape{Pivot: len(seq) - 1}
	pivotSet := false
	for i := 1; i < len(seq); i++ {
		switch {
		case seq[i].IsTrue():
			if !pivotSet {
				s.TruePrefix++
			}
		case seq[i].IsFalse():
			s.FalseSuffix++
		default:
			s.NonTrivial++
		}
		if !pivotSet && !seq[i].IsTrue() {
			s.Pivot = i
			pivotSet = true
		}
	}
	return s
}

// IncrementFor attaches the facts of every non-trivial interpolant to the
// location of the path state at the same position.
func IncrementFor(path arg.Path, seq []Interpolant) cpa.Increment {
	inc := cpa.Increment{}
	locs := path.Locations()
	for i, itp := range seq {
		if itp.IsTrivial() || i >= len(locs) || locs[i] < 0 {
			continue
		}
		inc.Add(locs[i], itp.Facts...)
	}
	return inc.Normalized()
}
