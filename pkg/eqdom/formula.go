// Package eqdom is a small equality-constraint domain: states are
// conjunctions of (dis)equalities between integer variables and constants,
// precisions choose which variables are tracked at each location. It comes
// with a SAT-backed feasibility checker and an interpolator, which makes it a
// complete collaborator set for the CEGAR driver.
package eqdom

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Term is a variable or an integer constant.
type Term struct {
	Var   string
	Val   int64
	Const bool
}

// Var returns a variable term.
func Var(name string) Term { return Term{Var: name} }

// Const returns a constant term.
func Const(v int64) Term { return Term{Val: v, Const: true} }

func (t Term) String() string {
	if t.Const {
		return strconv.FormatInt(t.Val, 10)
	}
	return t.Var
}

// Atom is an equality or a disequality between two terms.
type Atom struct {
	Eq   bool
	L, R Term
}

// Eq returns l == r.
func Eq(l, r Term) Atom { return Atom{Eq: true, L: l, R: r}.normalize() }

// Neq returns l != r.
func Neq(l, r Term) Atom { return Atom{Eq: false, L: l, R: r}.normalize() }

// normalize puts a variable on the left and orders two variables by name.
func (a Atom) normalize() Atom {
	switch {
	case a.L.Const && !a.R.Const:
		a.L, a.R = a.R, a.L
	case !a.L.Const && !a.R.Const && a.L.Var > a.R.Var:
		a.L, a.R = a.R, a.L
	}
	return a
}

func (a Atom) String() string {
	op := "!="
	if a.Eq {
		op = "=="
	}
	return a.L.String() + op + a.R.String()
}

// Mentions reports whether v occurs in the atom.
func (a Atom) Mentions(v string) bool {
	return (!a.L.Const && a.L.Var == v) || (!a.R.Const && a.R.Var == v)
}

// Vars returns the variables of the atom.
func (a Atom) Vars() []string {
	var out []string
	for _, t := range []Term{a.L, a.R} {
		if !t.Const {
			out = append(out, t.Var)
		}
	}
	return out
}

// Formula is a conjunction of atoms kept in closed canonical form: every
// (dis)equality between its variables, and between a variable and a
// constant, that follows from the conjunction is listed explicitly. Two
// equivalent formulas have the same atoms.
type Formula struct {
	bottom bool
	atoms  []Atom
}

// Top returns the formula without constraints.
func Top() Formula { return Formula{} }

// Bottom returns the unsatisfiable formula.
func Bottom() Formula { return Formula{bottom: true} }

// Close builds the closed form of the conjunction of atoms.
func Close(atoms ...Atom) Formula {
	c := newClasses(atoms)
	if c.bottom {
		return Bottom()
	}
	return Formula{atoms: c.closed()}
}

// IsBottom reports whether the formula is unsatisfiable.
func (f Formula) IsBottom() bool { return f.bottom }

// IsTop reports whether the formula has no constraints.
func (f Formula) IsTop() bool { return !f.bottom && len(f.atoms) == 0 }

// Atoms returns the closed atoms.
func (f Formula) Atoms() []Atom { return f.atoms }

// Facts returns the atoms rendered as strings.
func (f Formula) Facts() []string {
	out := make([]string, len(f.atoms))
	for i, a := range f.atoms {
		out[i] = a.String()
	}
	return out
}

// Equal compares closed forms.
func (f Formula) Equal(g Formula) bool {
	return f.bottom == g.bottom && slices.Equal(f.atoms, g.atoms)
}

func (f Formula) String() string {
	if f.bottom {
		return "false"
	}
	if len(f.atoms) == 0 {
		return "true"
	}
	return strings.Join(f.Facts(), " && ")
}

// Vars returns the sorted variables mentioned by f.
func (f Formula) Vars() []string {
	set := map[string]bool{}
	for _, a := range f.atoms {
		for _, v := range a.Vars() {
			set[v] = true
		}
	}
	out := maps.Keys(set)
	slices.Sort(out)
	return out
}

// And conjoins further atoms.
func (f Formula) And(atoms ...Atom) Formula {
	if f.bottom {
		return f
	}
	return Close(append(append([]Atom(nil), f.atoms...), atoms...)...)
}

// Entails reports whether every model of f satisfies a. Over the integers
// this check is complete.
func (f Formula) Entails(a Atom) bool {
	if f.bottom {
		return true
	}
	return newClasses(f.atoms).entails(a)
}

// EntailsAll reports whether f implies g.
func (f Formula) EntailsAll(g Formula) bool {
	if f.bottom {
		return true
	}
	if g.bottom {
		return false
	}
	c := newClasses(f.atoms)
	for _, a := range g.atoms {
		if !c.entails(a) {
			return false
		}
	}
	return true
}

// Join returns the atoms of f and g entailed by both.
func (f Formula) Join(g Formula) Formula {
	switch {
	case f.bottom:
		return g
	case g.bottom:
		return f
	}
	fc, gc := newClasses(f.atoms), newClasses(g.atoms)
	var keep []Atom
	for _, a := range append(append([]Atom(nil), f.atoms...), g.atoms...) {
		if fc.entails(a) && gc.entails(a) {
			keep = append(keep, a)
		}
	}
	return Close(keep...)
}

// Forget drops every atom mentioning v. On a closed formula this is exact
// existential projection.
func (f Formula) Forget(v string) Formula {
	return f.Project(func(name string) bool { return name != v })
}

// Project keeps only the atoms whose variables all satisfy keep.
func (f Formula) Project(keep func(string) bool) Formula {
	if f.bottom {
		return f
	}
	out := make([]Atom, 0, len(f.atoms))
	for _, a := range f.atoms {
		ok := true
		for _, v := range a.Vars() {
			if !keep(v) {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, a)
		}
	}
	return Formula{atoms: out}
}

// classes is a union-find over terms with recorded disequalities.
type classes struct {
	parent map[Term]Term
	konst  map[Term]Term // root -> constant member
	diseq  [][2]Term
	bottom bool
}

func newClasses(atoms []Atom) *classes {
	c := &classes{parent: map[Term]Term{}, konst: map[Term]Term{}}
	for _, a := range atoms {
		c.add(a.L)
		c.add(a.R)
		if a.Eq {
			c.union(a.L, a.R)
		}
	}
	for t := range c.parent {
		if !t.Const {
			continue
		}
		r := c.find(t)
		if k, ok := c.konst[r]; ok && k != t {
			c.bottom = true
			return c
		}
		c.konst[r] = t
	}
	for _, a := range atoms {
		if a.Eq {
			continue
		}
		ra, rb := c.find(a.L), c.find(a.R)
		if ra == rb {
			c.bottom = true
			return c
		}
		c.diseq = append(c.diseq, [2]Term{ra, rb})
	}
	return c
}

func (c *classes) add(t Term) {
	if _, ok := c.parent[t]; !ok {
		c.parent[t] = t
	}
}

func (c *classes) find(t Term) Term {
	p, ok := c.parent[t]
	if !ok {
		return t
	}
	if p == t {
		return t
	}
	r := c.find(p)
	c.parent[t] = r
	return r
}

func (c *classes) union(a, b Term) {
	ra, rb := c.find(a), c.find(b)
	if ra != rb {
		c.parent[ra] = rb
	}
}

func (c *classes) constOf(root Term) (Term, bool) {
	if root.Const {
		return root, true
	}
	k, ok := c.konst[root]
	return k, ok
}

func (c *classes) separated(ra, rb Term) bool {
	for _, d := range c.diseq {
		if (d[0] == ra && d[1] == rb) || (d[0] == rb && d[1] == ra) {
			return true
		}
	}
	ka, okA := c.constOf(ra)
	kb, okB := c.constOf(rb)
	return okA && okB && ka != kb
}

func (c *classes) entails(a Atom) bool {
	if c.bottom {
		return true
	}
	ra, rb := c.find(a.L), c.find(a.R)
	if a.Eq {
		return ra == rb
	}
	if ra == rb {
		return false
	}
	return c.separated(ra, rb)
}

// closed lists every implied atom between variables, and between a variable
// and a constant unless the variable's class already has a constant.
func (c *classes) closed() []Atom {
	members := map[Term][]string{}
	for t := range c.parent {
		r := c.find(t)
		if _, ok := members[r]; !ok {
			members[r] = nil
		}
		if !t.Const {
			members[r] = append(members[r], t.Var)
		}
	}
	roots := maps.Keys(members)
	sort.Slice(roots, func(i, j int) bool { return roots[i].String() < roots[j].String() })
	for _, r := range roots {
		sort.Strings(members[r])
	}

	set := map[Atom]bool{}
	for _, r := range roots {
		vars := members[r]
		if k, ok := c.constOf(r); ok {
			for _, v := range vars {
				set[Eq(Var(v), k)] = true
			}
		}
		for i := range vars {
			for j := i + 1; j < len(vars); j++ {
				set[Eq(Var(vars[i]), Var(vars[j]))] = true
			}
		}
	}
	for i, ra := range roots {
		for _, rb := range roots[i+1:] {
			if !c.separated(ra, rb) {
				continue
			}
			for _, u := range members[ra] {
				for _, w := range members[rb] {
					set[Neq(Var(u), Var(w))] = true
				}
			}
			ka, okA := c.constOf(ra)
			kb, okB := c.constOf(rb)
			if okB && !okA {
				for _, u := range members[ra] {
					set[Neq(Var(u), kb)] = true
				}
			}
			if okA && !okB {
				for _, w := range members[rb] {
					set[Neq(Var(w), ka)] = true
				}
			}
		}
	}

	out := maps.Keys(set)
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// ParseAtom reads "a == b" or "a != b" where each side is a variable or an
// integer constant.
func ParseAtom(s string) (Atom, error) {
	eq := true
	i := strings.Index(s, "==")
	if i < 0 {
		eq = false
		i = strings.Index(s, "!=")
	}
	if i < 0 {
		return Atom{}, fmt.Errorf("not a comparison: %q", s)
	}
	l, err := ParseTerm(s[:i])
	if err != nil {
		return Atom{}, err
	}
	r, err := ParseTerm(s[i+2:])
	if err != nil {
		return Atom{}, err
	}
	if eq {
		return Eq(l, r), nil
	}
	return Neq(l, r), nil
}

// ParseTerm reads a variable name or an integer constant.
func ParseTerm(s string) (Term, error) {
	s = strings.TrimSpace(s)
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Const(v), nil
	}
	if !isIdent(s) {
		return Term{}, fmt.Errorf("not a variable or constant: %q", s)
	}
	return Var(s), nil
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}
