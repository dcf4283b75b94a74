// Package goals runs bounded sub-analyses: independent units of work, each
// proving a subset of the error locations under its own time budget.
package goals

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/l3aro/go-cegar/internal/log"
	"github.com/l3aro/go-cegar/pkg/cegar"
	"github.com/l3aro/go-cegar/pkg/cfa"
	"github.com/l3aro/go-cegar/pkg/stats"
)

// Unit is one sub-analysis.
type Unit struct {
	ID      string
	Targets []cfa.Location
	Budget  time.Duration // 0 uses the coordinator's budget
	Attempt int           // 1 for the first run, 2 for the retry
}

func (u Unit) String() string {
	locs := make([]string, len(u.Targets))
	for i, l := range u.Targets {
		locs[i] = l.String()
	}
	return fmt.Sprintf("%s[%s]", u.ID, strings.Join(locs, ","))
}

// Status is how a unit ended.
type Status string

const (
	StatusDone      Status = "done"
	StatusTimedOut  Status = "timed-out"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// TimeoutStrategy decides what happens to a unit that exceeded its budget.
type TimeoutStrategy string

const (
	// Skip marks the unit timed out and moves on.
	Skip TimeoutStrategy = "skip"
	// Retry requeues the unit once, after all other units, with an enlarged budget.
	Retry TimeoutStrategy = "retry"
)

// ParseTimeoutStrategy parses "skip" or "retry".
func ParseTimeoutStrategy(s string) (TimeoutStrategy, error) {
	switch TimeoutStrategy(strings.ToLower(strings.TrimSpace(s))) {
	case Skip, "":
		return Skip, nil
	case Retry:
		return Retry, nil
	}
	return "", fmt.Errorf("unknown timeout strategy %q (want skip or retry)", s)
}

// Outcome is the final state of one unit.
type Outcome struct {
	Unit     string        `json:"unit" msgpack:"unit"`
	Status   Status        `json:"status" msgpack:"status"`
	Verdict  cegar.Verdict `json:"verdict" msgpack:"verdict"`
	Reason   string        `json:"reason,omitempty" msgpack:"reason"`
	Attempts int           `json:"attempts" msgpack:"attempts"`
	Budget   time.Duration `json:"budget" msgpack:"budget"` // Budget of the last attempt
	Elapsed  time.Duration `json:"elapsed" msgpack:"elapsed"`
	Stats    *stats.Stats  `json:"stats,omitempty" msgpack:"stats"`
}

// Report collects the outcomes in unit order and the merged statistics.
type Report struct {
	Outcomes    []Outcome    `json:"outcomes"`
	Stats       *stats.Stats `json:"stats"`
	Interrupted bool         `json:"interrupted"`
}

// Count returns how many outcomes have status s.
func (r *Report) Count(s Status) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == s {
			n++
		}
	}
	return n
}

// Verdicts tallies the verdicts of completed units.
func (r *Report) Verdicts() map[cegar.Verdict]int {
	out := map[cegar.Verdict]int{}
	for _, o := range r.Outcomes {
		if o.Status == StatusDone {
			out[o.Verdict]++
		}
	}
	return out
}

// AnalyzeFunc runs one unit. It must observe ctx cooperatively; a result
// returned after the budget expired is discarded.
type AnalyzeFunc func(ctx context.Context, u Unit) (*cegar.Result, error)

// Coordinator schedules units on a bounded pool of workers.
type Coordinator struct {
	Workers  int
	Budget   time.Duration // Default per-unit budget; 0 means unbounded
	Strategy TimeoutStrategy
	Factor   float64 // Budget multiplier for a retried unit
	Logger   log.Logger
}

// NewCoordinator returns a coordinator with one worker, no budget and the
// skip strategy.
func NewCoordinator() *Coordinator {
	return &Coordinator{Workers: 1, Strategy: Skip, Factor: 2}
}

func (c *Coordinator) logger() log.Logger {
	if c.Logger == nil {
		return log.Nop()
	}
	return c.Logger.With("component", "goals")
}

// Run analyzes every unit. Timeouts and per-unit failures are recorded in
// the report; cancellation of ctx marks the remaining units cancelled and
// sets Interrupted. Run does not wait for workers that ignore cancellation.
func (c *Coordinator) Run(ctx context.Context, units []Unit, analyze AnalyzeFunc) (*Report, error) {
	if analyze == nil {
		return nil, errors.New("goals: analyze func is required")
	}
	workers := c.Workers
	if workers < 1 {
		workers = 1
	}
	l := c.logger()
	units = append([]Unit(nil), units...)
	report := &Report{Outcomes: make([]Outcome, len(units)), Stats: stats.New()}
	for i := range units {
		if units[i].Budget == 0 {
			units[i].Budget = c.Budget
		}
		if units[i].Attempt == 0 {
			units[i].Attempt = 1
		}
		report.Outcomes[i] = Outcome{Unit: units[i].ID, Status: StatusCancelled, Verdict: cegar.Unknown}
	}

	var mu sync.Mutex
	record := func(i int, o Outcome) {
		mu.Lock()
		defer mu.Unlock()
		o.Attempts = report.Outcomes[i].Attempts + 1
		report.Outcomes[i] = o
		if o.Status == StatusTimedOut {
			report.Stats.Timeouts++
		}
	}

	c.runBatch(ctx, units, seq(len(units)), workers, analyze, record)

	if c.Strategy == Retry && ctx.Err() == nil {
		var again []int
		for i, o := range report.Outcomes {
			if o.Status == StatusTimedOut {
				again = append(again, i)
			}
		}
		for _, i := range again {
			factor := c.Factor
			if factor <= 1 {
				factor = 2
			}
			units[i].Budget = time.Duration(float64(units[i].Budget) * factor)
			units[i].Attempt++
			report.Stats.Retries++
			l.Info("retrying unit", "unit", units[i].ID, "budget", units[i].Budget)
		}
		c.runBatch(ctx, units, again, workers, analyze, record)
	}

	for _, o := range report.Outcomes {
		report.Stats.Merge(o.Stats)
	}
	report.Interrupted = ctx.Err() != nil
	l.Info("goals finished", "units", len(units), "done", report.Count(StatusDone),
		"timeouts", report.Stats.Timeouts, "retries", report.Stats.Retries)
	return report, nil
}

func seq(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

// runBatch runs the units at the given indexes, at most workers at a time.
func (c *Coordinator) runBatch(ctx context.Context, units []Unit, idx []int, workers int, analyze AnalyzeFunc, record func(int, Outcome)) {
	sem := semaphore.NewWeighted(int64(workers))
	var wg sync.WaitGroup
	for _, i := range idx {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer sem.Release(1)
			if o, ok := c.attempt(ctx, units[i], analyze); ok {
				record(i, o)
			}
		}(i)
	}
	wg.Wait()
}

type attemptResult struct {
	res *cegar.Result
	err error
}

// attempt runs one unit under its budget. It reports false when the parent
// context was cancelled, leaving the unit marked cancelled.
func (c *Coordinator) attempt(ctx context.Context, u Unit, analyze AnalyzeFunc) (Outcome, bool) {
	l := c.logger().With("unit", u.ID, "attempt", u.Attempt)
	var (
		actx   context.Context
		cancel context.CancelFunc
	)
	if u.Budget > 0 {
		actx, cancel = context.WithTimeout(ctx, u.Budget)
	} else {
		actx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	// Buffered so a late worker can deliver and exit after being abandoned.
	done := make(chan attemptResult, 1)
	start := time.Now()
	go func() {
		res, err := analyze(actx, u)
		done <- attemptResult{res, err}
	}()

	out := Outcome{Unit: u.ID, Verdict: cegar.Unknown, Budget: u.Budget}
	timedOut := func() (Outcome, bool) {
		if ctx.Err() != nil {
			return out, false
		}
		out.Status = StatusTimedOut
		out.Reason = fmt.Sprintf("budget %s exceeded", u.Budget)
		out.Elapsed = time.Since(start)
		l.Warn("unit timed out", "budget", u.Budget)
		return out, true
	}

	select {
	case <-actx.Done():
		return timedOut()
	case r := <-done:
		out.Elapsed = time.Since(start)
		// Anything delivered after the budget ran out is discarded.
		if actx.Err() != nil {
			return timedOut()
		}
		if r.res != nil {
			out.Verdict = r.res.Verdict
			out.Reason = r.res.Reason
			out.Stats = r.res.Stats
		}
		if r.err != nil {
			out.Status = StatusFailed
			out.Reason = r.err.Error()
			l.Error("unit failed", "error", r.err)
			return out, true
		}
		out.Status = StatusDone
		l.Debug("unit done", "verdict", string(out.Verdict), "elapsed", out.Elapsed)
		return out, true
	}
}
