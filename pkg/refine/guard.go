package refine

import (
	"errors"
	"fmt"

	"github.com/l3aro/go-cegar/pkg/arg"
	"github.com/l3aro/go-cegar/pkg/cfa"
	"github.com/l3aro/go-cegar/pkg/cpa"
	"github.com/mitchellh/hashstructure/v2"
)

// ErrRepeatedCounterexample matches every RepeatedCounterexampleError.
var ErrRepeatedCounterexample = errors.New("repeated counterexample")

// RepeatedCounterexampleError reports a refinement that cannot make progress:
// the same path produced an increment already applied at every cut point.
type RepeatedCounterexampleError struct {
	Path      arg.Path
	Increment cpa.Increment
}

func (e *RepeatedCounterexampleError) Error() string {
	return fmt.Sprintf("repeated counterexample: refinement with %s made no progress on path %s", e.Increment, e.Path)
}

func (e *RepeatedCounterexampleError) Unwrap() error { return ErrRepeatedCounterexample }

type guardKey struct {
	path      uint64
	increment uint64
	depth     int
}

// Guard remembers which (path, increment, cut depth) combinations were
// already used for refinement.
type Guard struct {
	seen map[guardKey]bool
}

// NewGuard returns an empty guard.
func NewGuard() *Guard {
	return &Guard{seen: make(map[guardKey]bool)}
}

// Admit returns the cut depth to use for refining path with inc, starting at
// depth. A combination that was used before moves the cut one node deeper
// towards the target; when no depth is left the refinement is rejected.
// A negative depth stands for a cut off the path. It is admitted once; a
// repeat falls back to the root of the path and walks down from there.
func (g *Guard) Admit(path arg.Path, inc cpa.Increment, depth int) (int, error) {
	ih, err := IncrementHash(inc)
	if err != nil {
		return 0, err
	}
	pk := path.Key()
	if depth < 0 {
		k := guardKey{path: pk, increment: ih, depth: -1}
		if !g.seen[k] {
			g.seen[k] = true
			return -1, nil
		}
		depth = 0
	}
	for d := depth; d < len(path.Nodes); d++ {
		k := guardKey{path: pk, increment: ih, depth: d}
		if !g.seen[k] {
			g.seen[k] = true
			return d, nil
		}
	}
	return 0, &RepeatedCounterexampleError{Path: path, Increment: inc}
}

// Len returns the number of remembered combinations.
func (g *Guard) Len() int { return len(g.seen) }

// IncrementHash hashes the normalized increment; fact order is irrelevant.
func IncrementHash(inc cpa.Increment) (uint64, error) {
	return hashstructure.Hash(map[cfa.Location][]string(inc.Normalized()), hashstructure.FormatV2,
		&hashstructure.HashOptions{SlicesAsSets: true})
}
