package eqdom

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/l3aro/go-cegar/pkg/arg"
	"github.com/l3aro/go-cegar/pkg/cfa"
	"github.com/l3aro/go-cegar/pkg/cpa"
	"github.com/l3aro/go-cegar/pkg/refine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pathOf builds a straight path; codes containing a comparison are assumes.
func pathOf(codes ...string) arg.Path {
	p := arg.Path{Nodes: make([]int, len(codes)+1), States: make([]cpa.AbstractState, len(codes)+1)}
	for i := range p.Nodes {
		p.Nodes[i] = i
	}
	for i, c := range codes {
		kind := cfa.EdgeStatement
		if strings.Contains(c, "==") || strings.Contains(c, "!=") || c == "false" || c == "true" {
			kind = cfa.EdgeAssume
		}
		p.Edges = append(p.Edges, cfa.Edge{ID: i, From: cfa.Location(i), To: cfa.Location(i + 1), Kind: kind, Code: c})
	}
	return p
}

func TestChecker(t *testing.T) {
	tests := []struct {
		name  string
		codes []string
		want  refine.Feasibility
	}{
		{"empty path", nil, refine.Feasible},
		{"constant assignment", []string{"x := 0", "x == 0"}, refine.Feasible},
		{"contradiction", []string{"x := 0", "x != 0"}, refine.Spurious},
		{"copy chain", []string{"x := 1", "y := x", "z := y", "z != 1"}, refine.Spurious},
		{"havoc frees", []string{"x := 1", "x := *", "x == 5"}, refine.Feasible},
		{"disequalities need fresh values", []string{"x != y", "y != z", "x != z", "x != 0"}, refine.Feasible},
		{"old value survives", []string{"x := y", "y := 2", "x == 2", "y != 2"}, refine.Spurious},
		{"assume false", []string{"x := 1", "false"}, refine.Spurious},
		{"constants only", []string{"1 == 1"}, refine.Feasible},
		{"unsupported", []string{"x := y + 1"}, refine.Unknown},
	}
	c := NewChecker()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := c.Check(context.Background(), pathOf(tt.codes...), refine.True())
			require.NoError(t, err)
			assert.Equal(t, tt.want, v.Feasibility, v.Reason)
		})
	}
}

// Every constraint of the path reaches the solver: a single contradicting
// assume is enough to make the path spurious, and no model is reported.
func TestChecker_SingleContradiction(t *testing.T) {
	c := NewChecker()
	for _, codes := range [][]string{
		{"x := 0", "x != 0"},
		{"x != x"},
		{"x := y", "x != y"},
		{"y := *", "x := y", "z := x", "z != y"},
	} {
		v, err := c.Check(context.Background(), pathOf(codes...), refine.True())
		require.NoError(t, err)
		assert.Equal(t, refine.Spurious, v.Feasibility, "%v", codes)
		assert.Empty(t, v.Model, "%v", codes)
	}
}

func TestChecker_ModelAndSeed(t *testing.T) {
	c := NewChecker()
	v, err := c.Check(context.Background(), pathOf("x := 7", "y := *", "y != x", "z == y"), refine.True())
	require.NoError(t, err)
	require.Equal(t, refine.Feasible, v.Feasibility)
	assert.True(t, replay(pathOf("x := 7", "y := *", "y != x", "z == y"), v.Model), "model %s", v.Model)

	seed := refine.NewInterpolant([]string{"x==0"}, formula(t, "x == 0"))
	v, err = c.Check(context.Background(), pathOf("x == 1"), seed)
	require.NoError(t, err)
	assert.Equal(t, refine.Spurious, v.Feasibility)

	v, err = c.Check(context.Background(), pathOf("x == 1"), refine.False())
	require.NoError(t, err)
	assert.Equal(t, refine.Spurious, v.Feasibility)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Check(ctx, pathOf("x == 1"), refine.True())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestInterpolate_ContradictingAssignment(t *testing.T) {
	path := pathOf("x := 0", "x != 0")
	seq, err := NewInterpolator().Interpolate(context.Background(), path, refine.True())
	require.NoError(t, err)
	require.NoError(t, refine.ValidateSequence(seq, path.Len()))
	assert.Equal(t, "x==0", seq[1].String())
	assert.Equal(t, []string{"x==0"}, seq[1].Facts)

	_, err = NewInterpolator().Interpolate(context.Background(), pathOf("x := 0"), refine.True())
	assert.Error(t, err, "feasible paths have no interpolants")
}

func TestInterpolate_DropsIrrelevantFacts(t *testing.T) {
	path := pathOf("x := 0", "y := 1", "z := x", "w := *", "z != 0")
	seq, err := NewInterpolator().Interpolate(context.Background(), path, refine.True())
	require.NoError(t, err)
	require.NoError(t, refine.ValidateSequence(seq, path.Len()))
	want := []string{"true", "x==0", "x==0", "z==0", "z==0", "false"}
	for i, itp := range seq {
		assert.Equal(t, want[i], itp.String(), "position %d", i)
	}
}

var randomCodes = []string{
	"x := 0", "y := 1", "x := y", "z := x", "y := *", "z := 1",
	"x == 0", "x != y", "y == 1", "z != 0", "x == z", "y != z", "y == 0",
}

// The checker and the postcondition chain agree on feasibility, models
// replay, and interpolant sequences are inductive and make every suffix
// infeasible.
func TestCheckerAndInterpolatorAgree(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	c, ip := NewChecker(), NewInterpolator()
	ctx := context.Background()

	for i := 0; i < 300; i++ {
		codes := make([]string, 1+rng.Intn(6))
		for j := range codes {
			codes[j] = randomCodes[rng.Intn(len(randomCodes))]
		}
		path := pathOf(codes...)
		name := fmt.Sprintf("%d: %s", i, strings.Join(codes, "; "))

		ops, err := ParseOps(path.Edges)
		require.NoError(t, err)
		sp := Top()
		for _, op := range ops {
			sp = Post(sp, op)
		}

		v, err := c.Check(ctx, path, refine.True())
		require.NoError(t, err, name)
		if !sp.IsBottom() {
			require.Equal(t, refine.Feasible, v.Feasibility, name)
			assert.True(t, replay(path, v.Model), "%s: model %s", name, v.Model)
			continue
		}
		require.Equal(t, refine.Spurious, v.Feasibility, name)

		seq, err := ip.Interpolate(ctx, path, refine.True())
		require.NoError(t, err, name)
		require.NoError(t, refine.ValidateSequence(seq, path.Len()), name)
		for k, op := range ops {
			assert.True(t, Implies(seq[k], op, seq[k+1]), "%s: %s -[%s]-> %s", name, seq[k], codes[k], seq[k+1])
		}
		for k := range seq {
			v, err := c.Check(ctx, path.Suffix(k), seq[k])
			require.NoError(t, err, name)
			assert.Equal(t, refine.Spurious, v.Feasibility, "%s: suffix %d from %s", name, k, seq[k])
		}
	}
}

// replay executes the path with the values of a model and reports whether
// every assumption holds.
func replay(path arg.Path, model refine.Model) bool {
	type key struct {
		step int
		v    string
	}
	at := map[key]int64{}
	for _, a := range model {
		at[key{a.Step, a.Variable}] = a.Value
	}
	env := map[string]int64{}
	get := func(t Term) int64 {
		if t.Const {
			return t.Val
		}
		if v, ok := env[t.Var]; ok {
			return v
		}
		env[t.Var] = at[key{0, t.Var}]
		return env[t.Var]
	}
	ops, err := ParseOps(path.Edges)
	if err != nil {
		return false
	}
	for i, op := range ops {
		switch op.Kind {
		case OpAssign:
			v := get(op.Value)
			if got, ok := at[key{i + 1, op.Var}]; !ok || got != v {
				return false
			}
			env[op.Var] = v
		case OpHavoc:
			v, ok := at[key{i + 1, op.Var}]
			if !ok {
				return false
			}
			env[op.Var] = v
		case OpAssume:
			if (get(op.Cond.L) == get(op.Cond.R)) != op.Cond.Eq {
				return false
			}
		case OpBlock:
			return false
		}
	}
	return true
}
