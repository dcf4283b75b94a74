package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStats_Merge(t *testing.T) {
	a := &Stats{Rounds: 2, Timeouts: 1, ExploreTime: time.Second, CacheHits: 3}
	b := &Stats{Rounds: 1, Refinements: 1, ExploreTime: time.Second, CacheMisses: 1}

	a.Merge(b)
	a.Merge(nil)

	assert.Equal(t, 3, a.Rounds)
	assert.Equal(t, 1, a.Refinements)
	assert.Equal(t, 1, a.Timeouts)
	assert.Equal(t, 2*time.Second, a.ExploreTime)
	assert.InDelta(t, 0.75, a.CacheHitRate(), 1e-9)
}

func TestStats_Track(t *testing.T) {
	s := New()
	stop := s.Track(&s.CheckTime)
	time.Sleep(5 * time.Millisecond)
	stop()

	assert.GreaterOrEqual(t, s.CheckTime, 5*time.Millisecond)
	assert.Zero(t, s.RefineTime)
}

func TestStats_Clone(t *testing.T) {
	s := &Stats{Rounds: 4}
	c := s.Clone()
	c.Rounds++

	assert.Equal(t, 4, s.Rounds)
	assert.Equal(t, 5, c.Rounds)
	assert.Equal(t, New(), (*Stats)(nil).Clone())
	assert.Zero(t, New().CacheHitRate())
}
