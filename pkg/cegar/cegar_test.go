package cegar

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/l3aro/go-cegar/pkg/arg"
	"github.com/l3aro/go-cegar/pkg/cfa"
	"github.com/l3aro/go-cegar/pkg/eqdom"
	"github.com/l3aro/go-cegar/pkg/reached"
	"github.com/l3aro/go-cegar/pkg/refine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDriver(t *testing.T, p *cfa.Program, opts ...Option) *Driver {
	t.Helper()
	d, err := New(p, eqdom.Analysis(p, "sep", eqdom.Precision{}), eqdom.NewChecker(), eqdom.NewInterpolator(), opts...)
	require.NoError(t, err)
	return d
}

func run(t *testing.T, p *cfa.Program, opts ...Option) (*Result, error) {
	t.Helper()
	return newDriver(t, p, opts...).Run(context.Background())
}

// L0 -x := 1-> L1 -y := x-> L2 -[y == 1]-> L3 -blank-> L4 (error)
func linear() *cfa.Program {
	return cfa.NewBuilder("linear").
		Stmt(0, 1, "x := 1").
		Stmt(1, 2, "y := x").
		Assume(2, 3, "y == 1").
		Edge(3, 4, cfa.EdgeBlank, "").
		Error(4).MustBuild()
}

// L0 -x := 0-> L1 -[x != 0]-> L2 (error)
func guarded() *cfa.Program {
	return cfa.NewBuilder("guarded").
		Stmt(0, 1, "x := 0").
		Assume(1, 2, "x != 0").
		Error(2).MustBuild()
}

func TestRun_FeasibleCounterexampleWithoutRefinement(t *testing.T) {
	res, err := run(t, linear())
	require.NoError(t, err)

	assert.Equal(t, Unsafe, res.Verdict)
	assert.Equal(t, 0, res.Stats.Refinements)
	assert.Equal(t, 1, res.Stats.Rounds)
	require.NotNil(t, res.Witness)
	assert.True(t, res.Witness.Confirmed)
	assert.Equal(t, 4, res.Witness.Path.Len())
	assert.Contains(t, res.Witness.Model, refine.Assignment{Step: 1, Variable: "x", Value: 1})
	assert.False(t, res.Unsound)
}

func TestRun_OneRefinementProvesSafety(t *testing.T) {
	tests := []struct {
		policy   refine.Policy
		relocate bool
	}{
		{refine.PolicyRoot, false},
		{refine.PolicyPivot, false},
		{refine.PolicyPivot, true},
		{refine.PolicyCommon, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/relocate=%t", tt.policy, tt.relocate), func(t *testing.T) {
			res, err := run(t, guarded(), WithRefinement(tt.policy, tt.relocate))
			require.NoError(t, err)

			assert.Equal(t, Safe, res.Verdict)
			assert.Equal(t, 1, res.Stats.Refinements)
			assert.Equal(t, 2, res.Stats.Rounds)
			assert.Equal(t, 1, res.Stats.InterpolationCalls)
			assert.Equal(t, 0, res.Stats.RepeatedRefinement)
			assert.True(t, res.Precision.(eqdom.Precision).Tracks(1, "x"))
			assert.Nil(t, res.Witness)
		})
	}
}

// Pivot and common restarts attach the increment below the root; the
// reported precision still carries it.
func TestRun_PrecisionLearnedBelowRoot(t *testing.T) {
	p := cfa.NewBuilder("prefixed").
		Stmt(0, 1, "a := 1").
		Stmt(1, 2, "x := 0").
		Assume(2, 3, "x != 0").
		Error(3).MustBuild()

	for _, policy := range []refine.Policy{refine.PolicyRoot, refine.PolicyPivot, refine.PolicyCommon} {
		t.Run(string(policy), func(t *testing.T) {
			res, err := run(t, p, WithRefinement(policy, false))
			require.NoError(t, err)
			assert.Equal(t, Safe, res.Verdict)
			assert.Equal(t, 1, res.Stats.Refinements)
			require.NotNil(t, res.Precision)
			assert.True(t, res.Precision.(eqdom.Precision).Tracks(2, "x"), "precision %s", res.Precision)

			again, err := run(t, p, WithRefinement(policy, false), WithPrecision(res.Precision))
			require.NoError(t, err)
			assert.Equal(t, Safe, again.Verdict)
			assert.Equal(t, 0, again.Stats.Refinements)
		})
	}
}

func TestRun_ReusedPrecisionSkipsRefinement(t *testing.T) {
	first, err := run(t, guarded())
	require.NoError(t, err)

	res, err := run(t, guarded(), WithPrecision(first.Precision))
	require.NoError(t, err)
	assert.Equal(t, Safe, res.Verdict)
	assert.Equal(t, 0, res.Stats.Refinements)
}

func TestRun_TargetSubset(t *testing.T) {
	p := cfa.NewBuilder("branches").
		Stmt(0, 1, "x := 0").
		Assume(1, 2, "x == 0").
		Assume(1, 3, "x != 0").
		Error(2, 3).MustBuild()

	res, err := run(t, p, WithTargets(3))
	require.NoError(t, err)
	assert.Equal(t, Safe, res.Verdict)

	res, err = run(t, p, WithTargets(2))
	require.NoError(t, err)
	assert.Equal(t, Unsafe, res.Verdict)
	assert.Equal(t, cfa.Location(2), res.Witness.Path.Edges[1].To)

	res, err = run(t, p)
	require.NoError(t, err)
	assert.Equal(t, Unsafe, res.Verdict)
}

func TestRun_RoundLimit(t *testing.T) {
	res, err := run(t, guarded(), WithMaxRounds(1))
	require.NoError(t, err)
	assert.Equal(t, Unknown, res.Verdict)
	assert.Contains(t, res.Reason, "round limit")
	assert.Equal(t, 1, res.Stats.Refinements)
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := newDriver(t, guarded()).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, Unknown, res.Verdict)
	assert.True(t, res.Interrupted)
	assert.True(t, res.Unsound)
	assert.Equal(t, 1, res.Stats.Rounds)
}

func TestRun_UnsupportedNeverSafe(t *testing.T) {
	p := cfa.NewBuilder("call").
		Stmt(0, 1, "x := 0").
		Edge(1, 2, cfa.EdgeCall, "f(x)").
		Error(2).MustBuild()
	res, err := run(t, p)
	require.NoError(t, err)
	assert.Equal(t, Unknown, res.Verdict)
	assert.True(t, res.Unsound)
	assert.Contains(t, res.Reason, "unsound exploration")
	assert.Equal(t, 1, res.Stats.Unsupported)
}

type undecided struct{}

func (undecided) Check(context.Context, arg.Path, refine.Interpolant) (refine.Verdict, error) {
	return refine.Verdict{Feasibility: refine.Unknown, Reason: "solver gave up"}, nil
}

func TestRun_UndecidedIsNeverSafe(t *testing.T) {
	p := guarded()
	d, err := New(p, eqdom.Analysis(p, "sep", eqdom.Precision{}), undecided{}, eqdom.NewInterpolator())
	require.NoError(t, err)

	res, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Unknown, res.Verdict)
	require.NotNil(t, res.Witness)
	assert.False(t, res.Witness.Confirmed)
	assert.Equal(t, 1, res.Stats.SolverFailures)
}

// trivialItp never learns anything.
type trivialItp struct{}

func (trivialItp) Interpolate(_ context.Context, path arg.Path, _ refine.Interpolant) ([]refine.Interpolant, error) {
	out := make([]refine.Interpolant, path.Len()+1)
	for i := range out {
		out[i] = refine.True()
	}
	out[path.Len()] = refine.False()
	return out, nil
}

func TestRun_RepeatedCounterexample(t *testing.T) {
	p := guarded()
	d, err := New(p, eqdom.Analysis(p, "sep", eqdom.Precision{}), eqdom.NewChecker(), trivialItp{})
	require.NoError(t, err)

	res, err := d.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, refine.ErrRepeatedCounterexample))
	assert.Equal(t, Unknown, res.Verdict)
	require.NotNil(t, res.Witness)
	assert.Equal(t, 2, res.Witness.Path.Len())
	// The cut moved from the root to the branch node and then to the target.
	assert.Equal(t, 3, res.Stats.Refinements)
	assert.Equal(t, 2, res.Stats.RepeatedRefinement)
}

func TestRun_Idempotent(t *testing.T) {
	d := newDriver(t, guarded())
	first, err := d.Run(context.Background())
	require.NoError(t, err)
	rounds := first.Stats.Rounds

	second, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first.Verdict, second.Verdict)
	assert.Equal(t, 2*rounds, second.Stats.Rounds, "same driver accumulates into one record")
	assert.Equal(t, 0, second.Stats.RepeatedRefinement, "each run has its own repetition guard")
}

func TestRun_ExamplePrograms(t *testing.T) {
	tests := []struct {
		file string
		want Verdict
	}{
		{"linear.yaml", Unsafe},
		{"guarded.yaml", Safe},
		{"loop.yaml", Safe},
		{"two-errors.yaml", Unsafe},
		{"call.yaml", Unknown},
	}
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			p, err := cfa.Load(filepath.Join("..", "..", "testdata", tt.file))
			require.NoError(t, err)
			res, err := run(t, p, WithMaxRounds(20))
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Verdict, res.Reason)
		})
	}
}

var randomOps = []struct {
	kind cfa.EdgeKind
	code string
}{
	{cfa.EdgeStatement, "x := 0"},
	{cfa.EdgeStatement, "x := 1"},
	{cfa.EdgeStatement, "y := x"},
	{cfa.EdgeStatement, "y := *"},
	{cfa.EdgeStatement, "x := y"},
	{cfa.EdgeAssume, "x == 0"},
	{cfa.EdgeAssume, "x != 0"},
	{cfa.EdgeAssume, "x == y"},
	{cfa.EdgeAssume, "y != 1"},
	{cfa.EdgeBlank, ""},
}

func randomProgram(rng *rand.Rand, n, m int) *cfa.Program {
	b := cfa.NewBuilder(fmt.Sprintf("random-%d-%d", n, m)).Entry(0)
	errLoc := cfa.Location(n - 1)
	add := func(from, to cfa.Location) {
		op := randomOps[rng.Intn(len(randomOps))]
		b.Edge(from, to, op.kind, op.code)
	}
	add(0, cfa.Location(1+rng.Intn(n-1)))
	add(cfa.Location(rng.Intn(n-1)), errLoc)
	for i := 0; i < m; i++ {
		add(cfa.Location(rng.Intn(n-1)), cfa.Location(rng.Intn(n)))
	}
	return b.Error(errLoc).MustBuild()
}

// On a finite domain the loop always terminates, never repeats a refinement
// under the root policy, and agrees with an analysis that tracks everything.
func TestRun_TerminatesAndAgreesWithExactAnalysis(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	orders := []reached.Order{reached.BFS, reached.DFS}

	for i := 0; i < 80; i++ {
		p := randomProgram(rng, 3+rng.Intn(5), rng.Intn(10))
		all := map[cfa.Location][]string{}
		for _, loc := range p.Locations() {
			all[loc] = []string{"x", "y"}
		}
		exact, err := run(t, p, WithPrecision(eqdom.NewPrecision(all)))
		require.NoError(t, err)
		require.Equal(t, 0, exact.Stats.Refinements, "exact analysis needs no refinement")

		order := orders[i%len(orders)]
		name := fmt.Sprintf("%d/%s", i, order)
		res, err := run(t, p, WithOrder(order, int64(i)), WithMaxRounds(50))
		require.NoError(t, err, name)
		assert.Equal(t, exact.Verdict, res.Verdict, name)
		assert.Equal(t, 0, res.Stats.RepeatedRefinement, name)
	}
}
