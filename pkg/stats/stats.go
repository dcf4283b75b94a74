// Package stats holds the statistics record threaded through one analysis run.
package stats

import (
	"time"
)

// Stats collects counters and phase timings for one run. A Stats value is
// owned by a single driver; combine records from concurrent runs with Merge.
type Stats struct {
	Rounds      int `json:"rounds" msgpack:"rounds"`           // Exploration rounds
	Refinements int `json:"refinements" msgpack:"refinements"` // Completed refinements

	NodesCreated int `json:"nodes_created" msgpack:"nodes_created"`
	NodesRemoved int `json:"nodes_removed" msgpack:"nodes_removed"`
	NodesCovered int `json:"nodes_covered" msgpack:"nodes_covered"`
	Merges       int `json:"merges" msgpack:"merges"`
	Reopened     int `json:"reopened" msgpack:"reopened"`

	TransferCalls int `json:"transfer_calls" msgpack:"transfer_calls"`
	CacheHits     int `json:"cache_hits" msgpack:"cache_hits"`
	CacheMisses   int `json:"cache_misses" msgpack:"cache_misses"`
	Unsupported   int `json:"unsupported" msgpack:"unsupported"` // Successors dropped for unsupported constructs

	FeasibilityChecks  int `json:"feasibility_checks" msgpack:"feasibility_checks"`
	SolverFailures     int `json:"solver_failures" msgpack:"solver_failures"` // Checks answered Unknown
	InterpolationCalls int `json:"interpolation_calls" msgpack:"interpolation_calls"`
	TruePrefix         int `json:"true_prefix" msgpack:"true_prefix"`   // Summed over refinements
	NonTrivial         int `json:"non_trivial" msgpack:"non_trivial"`   // Summed over refinements
	FalseSuffix        int `json:"false_suffix" msgpack:"false_suffix"` // Summed over refinements
	RootRelocations    int `json:"root_relocations" msgpack:"root_relocations"`
	RepeatedRefinement int `json:"repeated_refinements" msgpack:"repeated_refinements"`

	Timeouts int `json:"timeouts" msgpack:"timeouts"`
	Retries  int `json:"retries" msgpack:"retries"`

	ExploreTime time.Duration `json:"explore_time" msgpack:"explore_time"`
	CheckTime   time.Duration `json:"check_time" msgpack:"check_time"`
	RefineTime  time.Duration `json:"refine_time" msgpack:"refine_time"`
	TotalTime   time.Duration `json:"total_time" msgpack:"total_time"`
}

// New returns an empty record.
func New() *Stats {
	return &Stats{}
}

// Track starts timing a phase. Call the returned func to add the elapsed time:
//
//	defer s.Track(&s.RefineTime)()
func (s *Stats) Track(phase *time.Duration) func() {
	start := time.Now()
	return func() {
		*phase += time.Since(start)
	}
}

// Merge adds the counters and timings of o into s.
func (s *Stats) Merge(o *Stats) {
	if o == nil {
		return
	}
	s.Rounds += o.Rounds
	s.Refinements += o.Refinements
	s.NodesCreated += o.NodesCreated
	s.NodesRemoved += o.NodesRemoved
	s.NodesCovered += o.NodesCovered
	s.Merges += o.Merges
	s.Reopened += o.Reopened
	s.TransferCalls += o.TransferCalls
	s.CacheHits += o.CacheHits
	s.CacheMisses += o.CacheMisses
	s.Unsupported += o.Unsupported
	s.FeasibilityChecks += o.FeasibilityChecks
	s.SolverFailures += o.SolverFailures
	s.InterpolationCalls += o.InterpolationCalls
	s.TruePrefix += o.TruePrefix
	s.NonTrivial += o.NonTrivial
	s.FalseSuffix += o.FalseSuffix
	s.RootRelocations += o.RootRelocations
	s.RepeatedRefinement += o.RepeatedRefinement
	s.Timeouts += o.Timeouts
	s.Retries += o.Retries
	s.ExploreTime += o.ExploreTime
	s.CheckTime += o.CheckTime
	s.RefineTime += o.RefineTime
	s.TotalTime += o.TotalTime
}

// Clone returns a copy of s.
func (s *Stats) Clone() *Stats {
	if s == nil {
		return New()
	}
	c := *s
	return &c
}

// CacheHitRate returns the fraction of memoized transfer lookups that hit.
func (s *Stats) CacheHitRate() float64 {
	total := s.CacheHits + s.CacheMisses
	if total == 0 {
		return 0
	}
	return float64(s.CacheHits) / float64(total)
}
