// Package refine classifies abstract counterexamples and refines the
// abstraction when they are spurious: it holds the feasibility and
// interpolation contracts, the refinement strategy performing graph surgery,
// and the guard that detects refinements making no progress.
package refine

import (
	"context"
	"fmt"
	"strings"

	"github.com/l3aro/go-cegar/pkg/arg"
)

// Feasibility classifies a path under precise semantics.
type Feasibility int

const (
	Unknown Feasibility = iota
	Feasible
	Spurious
)

func (f Feasibility) String() string {
	switch f {
	case Feasible:
		return "feasible"
	case Spurious:
		return "spurious"
	default:
		return "unknown"
	}
}

// Assignment is one variable value of a concrete execution, observed after
// Step edges of the path.
type Assignment struct {
	Step     int    `json:"step" msgpack:"step"`
	Variable string `json:"variable" msgpack:"variable"`
	Value    int64  `json:"value" msgpack:"value"`
}

// Model is a concrete execution witnessing a feasible path.
type Model []Assignment

func (m Model) String() string {
	parts := make([]string, len(m))
	for i, a := range m {
		parts[i] = fmt.Sprintf("@%d %s=%d", a.Step, a.Variable, a.Value)
	}
	return strings.Join(parts, ", ")
}

// Verdict is the answer of a feasibility check.
type Verdict struct {
	Feasibility Feasibility
	Model       Model  // Set for feasible paths when the checker produces one
	Reason      string // Why the checker could not decide, for Unknown
}

// Checker decides whether a path is executable when started in a state
// satisfying seed. Unknown must be returned when the checker cannot decide.
type Checker interface {
	Check(ctx context.Context, path arg.Path, seed Interpolant) (Verdict, error)
}
