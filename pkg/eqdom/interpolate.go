package eqdom

import (
	"context"
	"fmt"

	"github.com/l3aro/go-cegar/pkg/arg"
	"github.com/l3aro/go-cegar/pkg/refine"
)

// Interpolator derives interpolants from the strongest postconditions along
// a path. Each interpolant is a subset of the exact postcondition at its
// position, shrunk greedily while it still excludes the rest of the path.
type Interpolator struct{}

// NewInterpolator returns an interpolator.
func NewInterpolator() *Interpolator { return &Interpolator{} }

// Interpolate implements refine.Interpolator.
func (ip *Interpolator) Interpolate(ctx context.Context, path arg.Path, seed refine.Interpolant) ([]refine.Interpolant, error) {
	ops, err := ParseOps(path.Edges)
	if err != nil {
		return nil, fmt.Errorf("interpolate: %w", err)
	}
	n := len(ops)
	sp := make([]Formula, n+1)
	sp[0] = SeedFormula(seed)
	k := -1
	for i := 0; i <= n; i++ {
		if i > 0 {
			sp[i] = Post(sp[i-1], ops[i-1])
		}
		if sp[i].IsBottom() {
			k = i
			break
		}
	}
	if k < 0 {
		return nil, fmt.Errorf("interpolate: path %s is feasible", path)
	}

	out := make([]refine.Interpolant, n+1)
	for i := k; i <= n; i++ {
		out[i] = refine.False()
	}
	next := Bottom()
	for i := k - 1; i >= 1; i-- {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		atoms := minimize(sp[i].Atoms(), ops[i], next)
		f := Close(atoms...)
		facts := make([]string, len(atoms))
		for j, a := range atoms {
			facts[j] = a.String()
		}
		out[i] = refine.NewInterpolant(facts, f)
		next = f
	}
	if k > 0 {
		out[0] = seed
	}
	return out, nil
}

// minimize drops atoms while Post(atoms, op) still implies next.
func minimize(atoms []Atom, op Op, next Formula) []Atom {
	keep := append([]Atom(nil), atoms...)
	for j := 0; j < len(keep); {
		trial := append(append([]Atom(nil), keep[:j]...), keep[j+1:]...)
		if implies(Close(trial...), op, next) {
			keep = trial
			continue
		}
		j++
	}
	return keep
}

func implies(f Formula, op Op, next Formula) bool {
	post := Post(f, op)
	if next.IsBottom() {
		return post.IsBottom()
	}
	return post.EntailsAll(next)
}

// Implies reports whether Post(from, op) entails to, for checking
// interpolant sequences.
func Implies(from refine.Interpolant, op Op, to refine.Interpolant) bool {
	return implies(SeedFormula(from), op, SeedFormula(to))
}
