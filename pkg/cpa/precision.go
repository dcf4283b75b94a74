package cpa

import (
	"fmt"
	"strings"

	"github.com/l3aro/go-cegar/pkg/cfa"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Precision controls how much detail a domain tracks at each location.
// Join must be associative and commutative; Refine must only add facts.
type Precision interface {
	Join(other Precision) Precision
	Refine(inc Increment) Precision
	Equal(other Precision) bool
}

// Increment is a set of facts to start tracking, keyed by location.
type Increment map[cfa.Location][]string

// Add records facts for loc.
func (inc Increment) Add(loc cfa.Location, facts ...string) {
	if len(facts) == 0 {
		return
	}
	inc[loc] = append(inc[loc], facts...)
}

// Merge returns the union of inc and other. Neither input is modified.
func (inc Increment) Merge(other Increment) Increment {
	out := make(Increment, len(inc)+len(other))
	for loc, facts := range inc {
		out.Add(loc, facts...)
	}
	for loc, facts := range other {
		out.Add(loc, facts...)
	}
	return out.Normalized()
}

// Normalized returns a copy with sorted, deduplicated facts and no empty entries.
func (inc Increment) Normalized() Increment {
	out := make(Increment, len(inc))
	for loc, facts := range inc {
		if len(facts) == 0 {
			continue
		}
		sorted := append([]string(nil), facts...)
		slices.Sort(sorted)
		out[loc] = slices.Compact(sorted)
	}
	return out
}

// Empty reports whether the increment carries no facts.
func (inc Increment) Empty() bool {
	for _, facts := range inc {
		if len(facts) > 0 {
			return false
		}
	}
	return true
}

// Size returns the number of distinct (location, fact) pairs.
func (inc Increment) Size() int {
	n := 0
	for _, facts := range inc.Normalized() {
		n += len(facts)
	}
	return n
}

func (inc Increment) String() string {
	norm := inc.Normalized()
	locs := maps.Keys(norm)
	slices.Sort(locs)
	parts := make([]string, 0, len(locs))
	for _, loc := range locs {
		parts = append(parts, fmt.Sprintf("%s:{%s}", loc, strings.Join(norm[loc], ",")))
	}
	return "[" + strings.Join(parts, " ") + "]"
}
