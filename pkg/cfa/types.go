// Package cfa defines the program graph consumed by the analysis: numbered
// control locations connected by typed edges carrying one operation each.
package cfa

import "fmt"

// Location is a control location of the program graph.
type Location int

func (l Location) String() string {
	return fmt.Sprintf("L%d", int(l))
}

// EdgeKind represents the type of a program edge.
type EdgeKind string

const (
	EdgeAssume      EdgeKind = "assume"      // Branch condition that must hold
	EdgeStatement   EdgeKind = "statement"   // Assignment or other side effect
	EdgeDeclaration EdgeKind = "declaration" // Variable declaration
	EdgeCall        EdgeKind = "call"        // Function call
	EdgeReturn      EdgeKind = "return"      // Function return
	EdgeBlank       EdgeKind = "blank"       // No-op connector
)

// Valid reports whether k is a known edge kind.
func (k EdgeKind) Valid() bool {
	switch k {
	case EdgeAssume, EdgeStatement, EdgeDeclaration, EdgeCall, EdgeReturn, EdgeBlank:
		return true
	}
	return false
}

// Edge represents a directed edge between two locations.
type Edge struct {
	ID   int      `json:"id" yaml:"-"`                          // Index in Program.Edges
	From Location `json:"from" yaml:"from"`                     // Source location
	To   Location `json:"to" yaml:"to"`                         // Target location
	Kind EdgeKind `json:"kind" yaml:"kind"`                     // Type of edge
	Code string   `json:"code,omitempty" yaml:"code,omitempty"` // Operation text interpreted by the domain
}

func (e Edge) String() string {
	if e.Code == "" {
		return fmt.Sprintf("%s -%s-> %s", e.From, e.Kind, e.To)
	}
	return fmt.Sprintf("%s -[%s]-> %s", e.From, e.Code, e.To)
}

// Info summarizes a program graph for display.
type Info struct {
	Name                 string         `json:"name"`
	Entry                Location       `json:"entry"`
	Locations            int            `json:"locations"`
	Edges                []Edge         `json:"edges"`
	ErrorLocations       []Location     `json:"error_locations"`
	EdgesByKind          map[string]int `json:"edges_by_kind"`
	CyclomaticComplexity int            `json:"cyclomatic_complexity"`
	Fingerprint          string         `json:"fingerprint"`
}
