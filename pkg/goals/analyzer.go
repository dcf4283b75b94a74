package goals

import (
	"context"
	"fmt"
	"sync"

	"github.com/l3aro/go-cegar/internal/log"
	"github.com/l3aro/go-cegar/pkg/cegar"
	"github.com/l3aro/go-cegar/pkg/cfa"
	"github.com/l3aro/go-cegar/pkg/cpa"
	"github.com/l3aro/go-cegar/pkg/refine"
)

// Analyzer builds one CEGAR driver per unit. Drivers share the transfer
// memo and, when enabled, a pool of precision learned by earlier units.
// Each driver owns its reached set, so units may run concurrently as long
// as the checker and interpolator are safe for concurrent use.
type Analyzer struct {
	program  *cfa.Program
	analysis cpa.Analysis
	checker  refine.Checker
	itp      refine.Interpolator
	memo     *MemoTransfer
	opts     []cegar.Option
	reuse    bool
	store    *ResultStore
	log      log.Logger

	mu   sync.Mutex
	pool cpa.Precision
}

// AnalyzerOption configures an Analyzer.
type AnalyzerOption func(*Analyzer)

// WithMemo shares m between the drivers instead of a private memo.
func WithMemo(m *MemoTransfer) AnalyzerOption {
	return func(a *Analyzer) { a.memo = m }
}

// WithPrecisionReuse seeds every driver with the precision learned so far.
func WithPrecisionReuse(reuse bool) AnalyzerOption {
	return func(a *Analyzer) { a.reuse = reuse }
}

// WithDriverOptions passes options to every driver.
func WithDriverOptions(opts ...cegar.Option) AnalyzerOption {
	return func(a *Analyzer) { a.opts = append(a.opts, opts...) }
}

// WithResultStore answers units from s when it holds a decided outcome and
// records new decided outcomes into it.
func WithResultStore(s *ResultStore) AnalyzerOption {
	return func(a *Analyzer) { a.store = s }
}

// WithAnalyzerLogger sets the logger passed to the drivers.
func WithAnalyzerLogger(l log.Logger) AnalyzerOption {
	return func(a *Analyzer) { a.log = l }
}

// NewAnalyzer creates an analyzer for program.
func NewAnalyzer(program *cfa.Program, analysis cpa.Analysis, checker refine.Checker, itp refine.Interpolator, opts ...AnalyzerOption) (*Analyzer, error) {
	if err := analysis.Validate(); err != nil {
		return nil, err
	}
	a := &Analyzer{program: program, checker: checker, itp: itp, log: log.Nop()}
	for _, opt := range opts {
		opt(a)
	}
	if a.memo == nil {
		a.memo = NewMemoTransfer(analysis.Transfer, 0)
	}
	analysis.Transfer = a.memo
	a.analysis = analysis
	return a, nil
}

// Memo returns the shared transfer memo.
func (a *Analyzer) Memo() *MemoTransfer { return a.memo }

// Precision returns the pooled precision, or nil if nothing was learned.
func (a *Analyzer) Precision() cpa.Precision {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pool
}

// Units returns one unit per error location of the program.
func Units(program *cfa.Program) []Unit {
	var out []Unit
	for _, loc := range program.ErrorLocations() {
		out = append(out, Unit{ID: loc.String(), Targets: []cfa.Location{loc}})
	}
	return out
}

// Analyze runs the driver for u. It satisfies AnalyzeFunc.
func (a *Analyzer) Analyze(ctx context.Context, u Unit) (*cegar.Result, error) {
	key := StoreKey(a.program.Fingerprint(), u)
	if a.store != nil {
		if o, err := a.store.Lookup(key); err == nil {
			a.log.Debug("unit answered from result store", "unit", u.ID, "verdict", string(o.Verdict))
			return &cegar.Result{Verdict: o.Verdict, Reason: o.Reason, Stats: o.Stats}, nil
		}
	}

	opts := append([]cegar.Option{cegar.WithTargets(u.Targets...), cegar.WithLogger(a.log.With("unit", u.ID))}, a.opts...)
	if a.reuse {
		if p := a.Precision(); p != nil {
			opts = append(opts, cegar.WithPrecision(p))
		}
	}
	d, err := cegar.New(a.program, a.analysis, a.checker, a.itp, opts...)
	if err != nil {
		return nil, fmt.Errorf("unit %s: %w", u.ID, err)
	}
	res, err := d.Run(ctx)
	if err != nil {
		return res, err
	}
	if !res.Interrupted && res.Precision != nil {
		a.mu.Lock()
		if a.pool == nil {
			a.pool = res.Precision
		} else {
			a.pool = a.pool.Join(res.Precision)
		}
		a.mu.Unlock()
	}
	if a.store != nil && !res.Interrupted {
		a.store.Record(key, Outcome{Unit: u.ID, Status: StatusDone, Verdict: res.Verdict, Reason: res.Reason, Attempts: u.Attempt, Stats: res.Stats})
	}
	return res, nil
}

// Annotate copies the memo counters into the report statistics.
func (a *Analyzer) Annotate(r *Report) {
	s := a.memo.Stats()
	r.Stats.CacheHits = int(s.HitCount)
	r.Stats.CacheMisses = int(s.MissCount)
}
