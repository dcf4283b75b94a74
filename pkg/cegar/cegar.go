// Package cegar drives the explore, check and refine loop until the program
// is proven safe, a real counterexample is found, or the analysis gives up.
package cegar

import (
	"context"
	"errors"
	"fmt"

	"github.com/l3aro/go-cegar/internal/log"
	"github.com/l3aro/go-cegar/pkg/algorithm"
	"github.com/l3aro/go-cegar/pkg/arg"
	"github.com/l3aro/go-cegar/pkg/cfa"
	"github.com/l3aro/go-cegar/pkg/cpa"
	"github.com/l3aro/go-cegar/pkg/reached"
	"github.com/l3aro/go-cegar/pkg/refine"
	"github.com/l3aro/go-cegar/pkg/stats"
)

// Verdict is the final answer of a run.
type Verdict string

const (
	Safe    Verdict = "safe"
	Unsafe  Verdict = "unsafe"
	Unknown Verdict = "unknown"
)

// Witness is a path to a target. Confirmed witnesses were proven feasible;
// unconfirmed ones are reported when the checker could not decide.
type Witness struct {
	Path      arg.Path     `json:"path"`
	Model     refine.Model `json:"model,omitempty"`
	Confirmed bool         `json:"confirmed"`
}

// Result is the outcome of Run.
type Result struct {
	Verdict     Verdict       `json:"verdict"`
	Witness     *Witness      `json:"witness,omitempty"`
	Reason      string        `json:"reason,omitempty"`
	Unsound     bool          `json:"unsound"`     // Some successors were dropped
	Interrupted bool          `json:"interrupted"` // Cancelled before completion
	Stats       *stats.Stats  `json:"stats"`
	Precision   cpa.Precision `json:"-"` // Join of all node precisions when the run ended
}

// Driver owns the collaborators of one analysis. A Driver may be run
// repeatedly; every run starts from a fresh reachability graph.
type Driver struct {
	program  *cfa.Program
	analysis cpa.Analysis
	checker  refine.Checker
	itp      refine.Interpolator

	order             reached.Order
	seed              int64
	stopAtFirstTarget bool
	maxRounds         int
	targets           map[cfa.Location]bool
	precision         cpa.Precision
	policy            refine.Policy
	relocate          bool
	stats             *stats.Stats
	log               log.Logger
}

// Option configures a Driver.
type Option func(*Driver)

// WithOrder sets the waitlist order and the seed of the random order.
func WithOrder(o reached.Order, seed int64) Option {
	return func(d *Driver) { d.order, d.seed = o, seed }
}

// WithStopAtFirstTarget selects whether exploration pauses at the first
// target (the default) or collects all targets before checking.
func WithStopAtFirstTarget(stop bool) Option {
	return func(d *Driver) { d.stopAtFirstTarget = stop }
}

// WithMaxRounds limits the number of exploration rounds; 0 means no limit.
func WithMaxRounds(n int) Option {
	return func(d *Driver) { d.maxRounds = n }
}

// WithTargets restricts the targets to the given error locations.
func WithTargets(locs ...cfa.Location) Option {
	return func(d *Driver) {
		if len(locs) == 0 {
			d.targets = nil
			return
		}
		d.targets = make(map[cfa.Location]bool, len(locs))
		for _, l := range locs {
			d.targets[l] = true
		}
	}
}

// WithPrecision joins p into the initial precision, e.g. to reuse what an
// earlier related run learned.
func WithPrecision(p cpa.Precision) Option {
	return func(d *Driver) { d.precision = p }
}

// WithRefinement sets the restart policy and root relocation.
func WithRefinement(p refine.Policy, relocate bool) Option {
	return func(d *Driver) { d.policy, d.relocate = p, relocate }
}

// WithStats records into s instead of a fresh record.
func WithStats(s *stats.Stats) Option {
	return func(d *Driver) { d.stats = s }
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(d *Driver) { d.log = l }
}

// New creates a driver for program.
func New(program *cfa.Program, analysis cpa.Analysis, checker refine.Checker, itp refine.Interpolator, opts ...Option) (*Driver, error) {
	if err := analysis.Validate(); err != nil {
		return nil, err
	}
	if checker == nil || itp == nil {
		return nil, errors.New("cegar: checker and interpolator are required")
	}
	d := &Driver{
		program:           program,
		analysis:          analysis,
		checker:           checker,
		itp:               itp,
		order:             reached.BFS,
		stopAtFirstTarget: true,
		policy:            refine.PolicyRoot,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.stats == nil {
		d.stats = stats.New()
	}
	if d.log == nil {
		d.log = log.Nop()
	}
	d.log = d.log.With("component", "cegar", "program", program.Name())
	return d, nil
}

// Stats returns the statistics record the driver writes into.
func (d *Driver) Stats() *stats.Stats { return d.stats }

func (d *Driver) isGoal(s cpa.AbstractState) bool {
	if d.targets == nil {
		return true
	}
	loc, ok := cpa.LocationOf(s)
	return ok && d.targets[loc]
}

// Run executes the loop. Expected conditions (cancellation, undecided
// feasibility, the round limit) end in an Unknown result without error;
// repeated counterexamples and graph invariant violations are returned as
// errors alongside an Unknown result.
func (d *Driver) Run(ctx context.Context) (*Result, error) {
	st := d.stats
	defer st.Track(&st.TotalTime)()

	prec := d.analysis.InitialPrecision
	if d.precision != nil {
		prec = prec.Join(d.precision)
	}
	rs := reached.New(arg.New(d.analysis.InitialState), prec, reached.WithOrder(d.order, d.seed))
	alg := algorithm.New(d.program, d.analysis,
		algorithm.WithStopAtFirstTarget(d.stopAtFirstTarget),
		algorithm.WithTargetFilter(d.isGoal),
		algorithm.WithStats(st),
		algorithm.WithLogger(d.log),
	)
	// The repetition guard is per run.
	strategy := refine.NewStrategy(d.itp,
		refine.WithPolicy(d.policy),
		refine.WithRootRelocation(d.relocate),
		refine.WithStats(st),
		refine.WithLogger(d.log),
	)

	res := &Result{Verdict: Unknown, Stats: st}
	finish := func(v Verdict, reason string) *Result {
		res.Verdict, res.Reason = v, reason
		res.Precision = rs.JoinedPrecision()
		d.log.Info("analysis finished", "verdict", string(v), "rounds", st.Rounds, "refinements", st.Refinements, "reason", reason)
		return res
	}
	interrupted := func(err error) *Result {
		res.Interrupted = true
		res.Unsound = true
		return finish(Unknown, fmt.Sprintf("interrupted: %v", err))
	}

	for round := 1; ; round++ {
		if d.maxRounds > 0 && round > d.maxRounds {
			return finish(Unknown, fmt.Sprintf("round limit %d reached", d.maxRounds)), nil
		}
		st.Rounds++
		rlog := d.log.With("round", round)

		status, err := alg.Run(ctx, rs)
		if !status.Sound {
			res.Unsound = true
		}
		if err != nil {
			if ctx.Err() != nil {
				return interrupted(ctx.Err()), nil
			}
			return finish(Unknown, err.Error()), fmt.Errorf("explore: %w", err)
		}

		targets := d.goalTargets(rs, alg)
		rlog.Debug("exploration done", "nodes", rs.Graph().Len(), "targets", len(targets))
		if len(targets) == 0 {
			if res.Unsound {
				return finish(Unknown, fmt.Sprintf("unsound exploration: %d successors dropped", st.Unsupported)), nil
			}
			return finish(Safe, ""), nil
		}

		spurious, undecided, err := d.check(ctx, rs, targets, res)
		if err != nil {
			if ctx.Err() != nil {
				return interrupted(ctx.Err()), nil
			}
			return finish(Unknown, err.Error()), err
		}
		if res.Verdict == Unsafe {
			return finish(Unsafe, ""), nil
		}
		if undecided != nil {
			res.Witness = undecided
			return finish(Unknown, "feasibility of a counterexample could not be decided"), nil
		}

		ref, err := strategy.Refine(ctx, rs, spurious)
		if err != nil {
			if ctx.Err() != nil {
				return interrupted(ctx.Err()), nil
			}
			var rep *refine.RepeatedCounterexampleError
			if errors.As(err, &rep) {
				res.Witness = &Witness{Path: rep.Path}
			}
			return finish(Unknown, err.Error()), fmt.Errorf("refine: %w", err)
		}
		st.Refinements++
		rlog.Info("refined", "paths", len(spurious), "increment", ref.Increment.String(), "removed", ref.Removed)
	}
}

func (d *Driver) goalTargets(rs *reached.Set, alg *algorithm.Algorithm) []int {
	var out []int
	for _, id := range rs.Targets() {
		if alg.IsTarget(rs.Graph().Node(id).State) {
			out = append(out, id)
		}
	}
	return out
}

// check classifies the paths to all targets. The first feasible path sets an
// Unsafe verdict on res. Otherwise it returns the spurious paths and, if the
// checker could not decide one of them, an unconfirmed witness.
func (d *Driver) check(ctx context.Context, rs *reached.Set, targets []int, res *Result) ([]arg.Path, *Witness, error) {
	st := d.stats
	defer st.Track(&st.CheckTime)()

	var (
		spurious  []arg.Path
		undecided *Witness
	)
	for _, id := range targets {
		path, err := rs.Graph().PathTo(id)
		if err != nil {
			return nil, nil, err
		}
		st.FeasibilityChecks++
		v, err := d.checker.Check(ctx, path, refine.True())
		if err != nil {
			return nil, nil, fmt.Errorf("check %s: %w", path, err)
		}
		switch v.Feasibility {
		case refine.Feasible:
			res.Verdict = Unsafe
			res.Witness = &Witness{Path: path, Model: v.Model, Confirmed: true}
			d.log.Debug("feasible counterexample", "path", path.Describe())
			return nil, nil, nil
		case refine.Spurious:
			spurious = append(spurious, path)
		default:
			st.SolverFailures++
			d.log.Warn("feasibility undecided, treating as a possible counterexample", "path", path.Describe(), "reason", v.Reason)
			if undecided == nil {
				undecided = &Witness{Path: path}
			}
		}
	}
	return spurious, undecided, nil
}
