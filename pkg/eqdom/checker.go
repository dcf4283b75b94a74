package eqdom

import (
	"context"
	"errors"
	"sort"

	"github.com/go-air/gini"
	"github.com/go-air/gini/logic"
	"github.com/go-air/gini/z"
	"github.com/l3aro/go-cegar/pkg/arg"
	"github.com/l3aro/go-cegar/pkg/cpa"
	"github.com/l3aro/go-cegar/pkg/refine"
)

// Checker decides path feasibility with a SAT solver. Each variable version
// of the path in SSA form gets a one-hot encoding over the path's constants
// plus one fresh value per version, which is enough to represent every
// integer model of a conjunction of (dis)equalities.
type Checker struct{}

// NewChecker returns a checker.
func NewChecker() *Checker { return &Checker{} }

type ssaVar struct {
	name string
	step int
}

// slot is an SSA variable index or a constant.
type slot struct {
	v     int
	val   int64
	konst bool
}

type constraint struct {
	eq   bool
	l, r slot
}

type encoding struct {
	vars        []ssaVar
	current     map[string]int
	constraints []constraint
}

func (e *encoding) use(name string) int {
	if id, ok := e.current[name]; ok {
		return id
	}
	return e.def(name, 0)
}

func (e *encoding) def(name string, step int) int {
	e.vars = append(e.vars, ssaVar{name: name, step: step})
	e.current[name] = len(e.vars) - 1
	return len(e.vars) - 1
}

func (e *encoding) term(t Term) slot {
	if t.Const {
		return slot{val: t.Val, konst: true}
	}
	return slot{v: e.use(t.Var)}
}

func (e *encoding) atom(a Atom) {
	e.constraints = append(e.constraints, constraint{eq: a.Eq, l: e.term(a.L), r: e.term(a.R)})
}

// Check implements refine.Checker.
func (c *Checker) Check(ctx context.Context, path arg.Path, seed refine.Interpolant) (refine.Verdict, error) {
	if err := ctx.Err(); err != nil {
		return refine.Verdict{}, err
	}
	ops, err := ParseOps(path.Edges)
	if err != nil {
		if errors.Is(err, cpa.ErrUnsupported) {
			return refine.Verdict{Feasibility: refine.Unknown, Reason: err.Error()}, nil
		}
		return refine.Verdict{}, err
	}
	start := SeedFormula(seed)
	if start.IsBottom() {
		return refine.Verdict{Feasibility: refine.Spurious}, nil
	}

	enc := &encoding{current: map[string]int{}}
	for _, a := range start.Atoms() {
		enc.atom(a)
	}
	for i, op := range ops {
		switch op.Kind {
		case OpBlock:
			return refine.Verdict{Feasibility: refine.Spurious}, nil
		case OpAssume:
			enc.atom(op.Cond)
		case OpHavoc:
			enc.def(op.Var, i+1)
		case OpAssign:
			rhs := enc.term(op.Value)
			lhs := enc.def(op.Var, i+1)
			enc.constraints = append(enc.constraints, constraint{eq: true, l: slot{v: lhs}, r: rhs})
		}
	}
	return solve(ctx, enc)
}

func solve(ctx context.Context, enc *encoding) (refine.Verdict, error) {
	if len(enc.vars) == 0 {
		// Constant comparisons only.
		for _, k := range enc.constraints {
			if (k.l.val == k.r.val) != k.eq {
				return refine.Verdict{Feasibility: refine.Spurious}, nil
			}
		}
		return refine.Verdict{Feasibility: refine.Feasible}, nil
	}

	values := domainValues(enc)
	index := make(map[int64]int, len(values))
	for i, v := range values {
		index[v] = i
	}

	circ := logic.NewC()
	lits := make([][]z.Lit, len(enc.vars))
	var roots []z.Lit
	for i := range enc.vars {
		lits[i] = make([]z.Lit, len(values))
		for d := range values {
			lits[i][d] = circ.Lit()
		}
		roots = append(roots, circ.Ors(lits[i]...))
		for a := 0; a < len(values); a++ {
			for b := a + 1; b < len(values); b++ {
				roots = append(roots, circ.Or(lits[i][a].Not(), lits[i][b].Not()))
			}
		}
	}
	for _, k := range enc.constraints {
		switch {
		case k.l.konst && k.r.konst:
			if (k.l.val == k.r.val) != k.eq {
				return refine.Verdict{Feasibility: refine.Spurious}, nil
			}
		case k.l.konst || k.r.konst:
			v, kv := k.l, k.r
			if v.konst {
				v, kv = kv, v
			}
			m := lits[v.v][index[kv.val]]
			if !k.eq {
				m = m.Not()
			}
			roots = append(roots, m)
		default:
			for d := range values {
				a, b := lits[k.l.v][d], lits[k.r.v][d]
				if k.eq {
					roots = append(roots, circ.Or(a.Not(), b), circ.Or(a, b.Not()))
				} else {
					roots = append(roots, circ.Or(a.Not(), b.Not()))
				}
			}
		}
	}

	if err := ctx.Err(); err != nil {
		return refine.Verdict{}, err
	}
	// ToCnf only encodes gates that exist when it runs.
	all := circ.Ands(roots...)
	g := gini.New()
	circ.ToCnf(g)
	g.Assume(all)
	switch g.Solve() {
	case 1:
		return refine.Verdict{Feasibility: refine.Feasible, Model: extractModel(g, enc, lits, values)}, nil
	case -1:
		return refine.Verdict{Feasibility: refine.Spurious}, nil
	}
	return refine.Verdict{Feasibility: refine.Unknown, Reason: "solver returned no answer"}, nil
}

// domainValues returns the constants of the encoding followed by one fresh
// value per SSA variable.
func domainValues(enc *encoding) []int64 {
	set := map[int64]bool{}
	for _, k := range enc.constraints {
		for _, s := range []slot{k.l, k.r} {
			if s.konst {
				set[s.val] = true
			}
		}
	}
	values := make([]int64, 0, len(set)+len(enc.vars))
	var next int64
	for v := range set {
		values = append(values, v)
		if v >= next {
			next = v + 1
		}
	}
	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })
	for range enc.vars {
		values = append(values, next)
		next++
	}
	return values
}

func extractModel(g *gini.Gini, enc *encoding, lits [][]z.Lit, values []int64) refine.Model {
	model := make(refine.Model, 0, len(enc.vars))
	for i, v := range enc.vars {
		for d, m := range lits[i] {
			if g.Value(m) {
				model = append(model, refine.Assignment{Step: v.step, Variable: v.name, Value: values[d]})
				break
			}
		}
	}
	sort.SliceStable(model, func(i, j int) bool {
		if model[i].Step != model[j].Step {
			return model[i].Step < model[j].Step
		}
		return model[i].Variable < model[j].Variable
	})
	return model
}

// SeedFormula converts an interpolant produced by this package, or a set of
// atom facts, into a formula.
func SeedFormula(seed refine.Interpolant) Formula {
	switch {
	case seed.IsTrue():
		return Top()
	case seed.IsFalse():
		return Bottom()
	}
	if f, ok := seed.Formula.(Formula); ok {
		return f
	}
	var atoms []Atom
	for _, fact := range seed.Facts {
		if a, err := ParseAtom(fact); err == nil {
			atoms = append(atoms, a)
		}
	}
	return Close(atoms...)
}
