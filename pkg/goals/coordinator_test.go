package goals

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/l3aro/go-cegar/pkg/cegar"
	"github.com/l3aro/go-cegar/pkg/stats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sleeper returns a cooperative analysis that takes d[u.ID] to prove a unit
// safe, and records the order in which attempts start.
func sleeper(d map[string]time.Duration) (AnalyzeFunc, func() []string) {
	var (
		mu      sync.Mutex
		started []string
	)
	fn := func(ctx context.Context, u Unit) (*cegar.Result, error) {
		mu.Lock()
		started = append(started, u.ID)
		mu.Unlock()
		select {
		case <-time.After(d[u.ID]):
			return &cegar.Result{Verdict: cegar.Safe, Stats: &stats.Stats{Rounds: 1}}, nil
		case <-ctx.Done():
			return &cegar.Result{Verdict: cegar.Unknown, Interrupted: true, Stats: &stats.Stats{Rounds: 1}}, nil
		}
	}
	order := func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), started...)
	}
	return fn, order
}

func units(ids ...string) []Unit {
	out := make([]Unit, len(ids))
	for i, id := range ids {
		out[i] = Unit{ID: id}
	}
	return out
}

var slowUnit = map[string]time.Duration{
	"a":    time.Millisecond,
	"slow": 200 * time.Millisecond,
	"b":    time.Millisecond,
}

func TestCoordinator_SkipTimedOutUnit(t *testing.T) {
	analyze, order := sleeper(slowUnit)
	c := &Coordinator{Workers: 1, Budget: 50 * time.Millisecond, Strategy: Skip}

	rep, err := c.Run(context.Background(), units("a", "slow", "b"), analyze)
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "slow", "b"}, order())
	assert.Equal(t, StatusDone, rep.Outcomes[0].Status)
	assert.Equal(t, StatusTimedOut, rep.Outcomes[1].Status)
	assert.Equal(t, cegar.Unknown, rep.Outcomes[1].Verdict)
	assert.Equal(t, 1, rep.Outcomes[1].Attempts)
	assert.Equal(t, StatusDone, rep.Outcomes[2].Status)

	assert.Equal(t, 1, rep.Stats.Timeouts)
	assert.Equal(t, 0, rep.Stats.Retries)
	assert.Equal(t, 2, rep.Stats.Rounds, "statistics of the abandoned attempt are discarded")
	assert.Equal(t, map[cegar.Verdict]int{cegar.Safe: 2}, rep.Verdicts())
}

func TestCoordinator_RetryTimedOutUnitOnce(t *testing.T) {
	analyze, order := sleeper(slowUnit)
	c := &Coordinator{Workers: 1, Budget: 50 * time.Millisecond, Strategy: Retry, Factor: 10}

	rep, err := c.Run(context.Background(), units("a", "slow", "b"), analyze)
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "slow", "b", "slow"}, order(), "the retry runs after the remaining units")
	slow := rep.Outcomes[1]
	assert.Equal(t, StatusDone, slow.Status)
	assert.Equal(t, cegar.Safe, slow.Verdict)
	assert.Equal(t, 2, slow.Attempts)
	assert.Equal(t, 500*time.Millisecond, slow.Budget)

	assert.Equal(t, 1, rep.Stats.Timeouts)
	assert.Equal(t, 1, rep.Stats.Retries)
	assert.Equal(t, 3, rep.Count(StatusDone))
}

func TestCoordinator_RetryThatTimesOutAgain(t *testing.T) {
	analyze, _ := sleeper(map[string]time.Duration{"slow": time.Second})
	c := &Coordinator{Workers: 1, Budget: 10 * time.Millisecond, Strategy: Retry, Factor: 2}

	rep, err := c.Run(context.Background(), units("slow"), analyze)
	require.NoError(t, err)
	assert.Equal(t, StatusTimedOut, rep.Outcomes[0].Status)
	assert.Equal(t, 2, rep.Outcomes[0].Attempts)
	assert.Equal(t, 2, rep.Stats.Timeouts, "one timeout per timed-out attempt")
	assert.Equal(t, 1, rep.Stats.Retries)
}

func TestCoordinator_DiscardsLateResult(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	stubborn := func(ctx context.Context, u Unit) (*cegar.Result, error) {
		<-release
		return &cegar.Result{Verdict: cegar.Safe, Stats: stats.New()}, nil
	}
	c := &Coordinator{Workers: 1, Budget: 20 * time.Millisecond}

	rep, err := c.Run(context.Background(), units("stuck", "next"), stubborn)
	require.NoError(t, err)
	for _, o := range rep.Outcomes {
		assert.Equal(t, StatusTimedOut, o.Status, o.Unit)
		assert.Equal(t, cegar.Unknown, o.Verdict, o.Unit)
	}
	assert.Equal(t, 2, rep.Stats.Timeouts)
}

// An analysis that reports a full answer right at the deadline still lost
// the race against its budget.
func TestCoordinator_ResultAtDeadlineIsTimedOut(t *testing.T) {
	atDeadline := func(ctx context.Context, u Unit) (*cegar.Result, error) {
		<-ctx.Done()
		return &cegar.Result{Verdict: cegar.Safe, Stats: &stats.Stats{Rounds: 1}}, nil
	}
	ids := make([]string, 20)
	for i := range ids {
		ids[i] = string(rune('a' + i))
	}
	c := &Coordinator{Workers: 4, Budget: 5 * time.Millisecond}

	rep, err := c.Run(context.Background(), units(ids...), atDeadline)
	require.NoError(t, err)
	for _, o := range rep.Outcomes {
		assert.Equal(t, StatusTimedOut, o.Status, o.Unit)
		assert.Equal(t, cegar.Unknown, o.Verdict, o.Unit)
	}
	assert.Equal(t, len(ids), rep.Stats.Timeouts)
	assert.Equal(t, 0, rep.Stats.Rounds)
}

func TestCoordinator_ParallelWorkers(t *testing.T) {
	d := map[string]time.Duration{}
	ids := []string{"u1", "u2", "u3", "u4", "u5", "u6"}
	for _, id := range ids {
		d[id] = 5 * time.Millisecond
	}
	analyze, order := sleeper(d)
	c := &Coordinator{Workers: 3}

	rep, err := c.Run(context.Background(), units(ids...), analyze)
	require.NoError(t, err)
	assert.Len(t, order(), len(ids))
	assert.Equal(t, len(ids), rep.Count(StatusDone))
	for i, o := range rep.Outcomes {
		assert.Equal(t, ids[i], o.Unit, "outcomes keep unit order")
	}
}

func TestCoordinator_Failure(t *testing.T) {
	boom := errors.New("boom")
	analyze := func(ctx context.Context, u Unit) (*cegar.Result, error) {
		if u.ID == "bad" {
			return &cegar.Result{Verdict: cegar.Unknown}, boom
		}
		return &cegar.Result{Verdict: cegar.Unsafe}, nil
	}
	rep, err := NewCoordinator().Run(context.Background(), units("bad", "good"), analyze)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, rep.Outcomes[0].Status)
	assert.Equal(t, "boom", rep.Outcomes[0].Reason)
	assert.Equal(t, StatusDone, rep.Outcomes[1].Status)
	assert.Equal(t, cegar.Unsafe, rep.Outcomes[1].Verdict)
}

func TestCoordinator_Cancelled(t *testing.T) {
	analyze, _ := sleeper(map[string]time.Duration{"a": time.Second, "b": time.Second})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rep, err := (&Coordinator{Workers: 1, Strategy: Retry}).Run(ctx, units("a", "b"), analyze)
	require.NoError(t, err)
	assert.True(t, rep.Interrupted)
	assert.Equal(t, 2, rep.Count(StatusCancelled))
	assert.Equal(t, 0, rep.Stats.Timeouts)
	assert.Equal(t, 0, rep.Stats.Retries)

	_, err = NewCoordinator().Run(context.Background(), nil, nil)
	assert.Error(t, err)
}

func TestParseTimeoutStrategy(t *testing.T) {
	tests := []struct {
		in      string
		want    TimeoutStrategy
		wantErr bool
	}{
		{"skip", Skip, false},
		{"", Skip, false},
		{" Retry ", Retry, false},
		{"abort", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTimeoutStrategy(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
