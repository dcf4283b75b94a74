package cfa

import (
	"errors"
	"fmt"
	"os"

	"github.com/mitchellh/hashstructure/v2"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"
)

// ErrNoEntry is returned when a program graph has no edge leaving its entry.
var ErrNoEntry = errors.New("entry location has no leaving edges")

// Program is an immutable program graph. Build one with a Builder or Parse.
type Program struct {
	name     string
	entry    Location
	edges    []Edge
	leaving  map[Location][]int
	entering map[Location][]int
	errors   map[Location]bool
}

// Name returns the program name.
func (p *Program) Name() string { return p.name }

// Entry returns the initial location.
func (p *Program) Entry() Location { return p.entry }

// Edges returns all edges ordered by ID.
func (p *Program) Edges() []Edge { return p.edges }

// Edge returns the edge with the given ID.
func (p *Program) Edge(id int) (Edge, bool) {
	if id < 0 || id >= len(p.edges) {
		return Edge{}, false
	}
	return p.edges[id], true
}

// Leaving returns the edges leaving loc ordered by ID.
func (p *Program) Leaving(loc Location) []Edge {
	return p.collect(p.leaving[loc])
}

// Entering returns the edges entering loc ordered by ID.
func (p *Program) Entering(loc Location) []Edge {
	return p.collect(p.entering[loc])
}

func (p *Program) collect(ids []int) []Edge {
	out := make([]Edge, len(ids))
	for i, id := range ids {
		out[i] = p.edges[id]
	}
	return out
}

// Successors returns the distinct locations reachable over one edge.
func (p *Program) Successors(loc Location) []Location {
	var out []Location
	for _, id := range p.leaving[loc] {
		if to := p.edges[id].To; !slices.Contains(out, to) {
			out = append(out, to)
		}
	}
	return out
}

// Predecessors returns the distinct locations with an edge into loc.
func (p *Program) Predecessors(loc Location) []Location {
	var out []Location
	for _, id := range p.entering[loc] {
		if from := p.edges[id].From; !slices.Contains(out, from) {
			out = append(out, from)
		}
	}
	return out
}

// Locations returns every location mentioned by the graph, sorted.
func (p *Program) Locations() []Location {
	seen := map[Location]bool{p.entry: true}
	for _, e := range p.edges {
		seen[e.From] = true
		seen[e.To] = true
	}
	for l := range p.errors {
		seen[l] = true
	}
	locs := maps.Keys(seen)
	slices.Sort(locs)
	return locs
}

// IsError reports whether loc is an error location.
func (p *Program) IsError(loc Location) bool { return p.errors[loc] }

// ErrorLocations returns the error locations, sorted.
func (p *Program) ErrorLocations() []Location {
	locs := maps.Keys(p.errors)
	slices.Sort(locs)
	return locs
}

// WithErrorLocations returns a copy of p whose error locations are locs.
// The edge set is shared.
func (p *Program) WithErrorLocations(locs ...Location) *Program {
	cp := *p
	cp.errors = make(map[Location]bool, len(locs))
	for _, l := range locs {
		cp.errors[l] = true
	}
	return &cp
}

// CyclomaticComplexity returns E - N + 2 for the graph.
func (p *Program) CyclomaticComplexity() int {
	return len(p.edges) - len(p.Locations()) + 2
}

// Fingerprint identifies the content of the graph: the name plus a hash of
// the entry, the edges and the error locations. Editing a program file
// changes its fingerprint, which invalidates stored results.
func (p *Program) Fingerprint() string {
	h, err := hashstructure.Hash(struct {
		Entry  Location
		Edges  []Edge
		Errors []Location
	}{p.entry, p.edges, p.ErrorLocations()}, hashstructure.FormatV2, nil)
	if err != nil {
		return p.name
	}
	return fmt.Sprintf("%s@%016x", p.name, h)
}

// Info returns a display summary of the graph.
func (p *Program) Info() *Info {
	byKind := make(map[string]int)
	for _, e := range p.edges {
		byKind[string(e.Kind)]++
	}
	return &Info{
		Name:                 p.name,
		Entry:                p.entry,
		Locations:            len(p.Locations()),
		Edges:                p.edges,
		ErrorLocations:       p.ErrorLocations(),
		EdgesByKind:          byKind,
		CyclomaticComplexity: p.CyclomaticComplexity(),
		Fingerprint:          p.Fingerprint(),
	}
}

// Validate checks the structural well-formedness of the graph.
func (p *Program) Validate() error {
	if len(p.leaving[p.entry]) == 0 && !p.errors[p.entry] {
		return ErrNoEntry
	}
	locs := p.Locations()
	for _, e := range p.edges {
		if !e.Kind.Valid() {
			return fmt.Errorf("edge %d: unknown kind %q", e.ID, e.Kind)
		}
	}
	for l := range p.errors {
		if l != p.entry && len(p.entering[l]) == 0 {
			return fmt.Errorf("error location %s is unreachable: no entering edges", l)
		}
	}
	if len(locs) == 0 {
		return fmt.Errorf("program %q has no locations", p.name)
	}
	return nil
}

// Builder assembles a Program.
type Builder struct {
	name   string
	entry  Location
	edges  []Edge
	errors []Location
}

// NewBuilder creates a builder for a program with the given name.
func NewBuilder(name string) *Builder {
	return &Builder{name: name}
}

// Entry sets the initial location.
func (b *Builder) Entry(loc Location) *Builder {
	b.entry = loc
	return b
}

// Edge appends an edge. Its ID is its insertion index.
func (b *Builder) Edge(from, to Location, kind EdgeKind, code string) *Builder {
	b.edges = append(b.edges, Edge{ID: len(b.edges), From: from, To: to, Kind: kind, Code: code})
	return b
}

// Assume appends an assume edge.
func (b *Builder) Assume(from, to Location, cond string) *Builder {
	return b.Edge(from, to, EdgeAssume, cond)
}

// Stmt appends a statement edge.
func (b *Builder) Stmt(from, to Location, code string) *Builder {
	return b.Edge(from, to, EdgeStatement, code)
}

// Error marks locations as error locations.
func (b *Builder) Error(locs ...Location) *Builder {
	b.errors = append(b.errors, locs...)
	return b
}

// Build validates and returns the program.
func (b *Builder) Build() (*Program, error) {
	p := &Program{
		name:     b.name,
		entry:    b.entry,
		edges:    append([]Edge(nil), b.edges...),
		leaving:  make(map[Location][]int),
		entering: make(map[Location][]int),
		errors:   make(map[Location]bool),
	}
	for _, e := range p.edges {
		p.leaving[e.From] = append(p.leaving[e.From], e.ID)
		p.entering[e.To] = append(p.entering[e.To], e.ID)
	}
	for _, l := range b.errors {
		p.errors[l] = true
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid program %q: %w", b.name, err)
	}
	return p, nil
}

// MustBuild is like Build but panics on error. Intended for tests and fixtures.
func (b *Builder) MustBuild() *Program {
	p, err := b.Build()
	if err != nil {
		panic(err)
	}
	return p
}

// programFile is the YAML layout of a program graph file.
type programFile struct {
	Name   string     `yaml:"name"`
	Entry  Location   `yaml:"entry"`
	Errors []Location `yaml:"errors"`
	Edges  []Edge     `yaml:"edges"`
}

// Parse decodes a program graph from YAML.
func Parse(data []byte) (*Program, error) {
	var f programFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse program graph: %w", err)
	}
	b := NewBuilder(f.Name).Entry(f.Entry).Error(f.Errors...)
	for _, e := range f.Edges {
		kind := e.Kind
		if kind == "" {
			kind = EdgeStatement
		}
		b.Edge(e.From, e.To, kind, e.Code)
	}
	return b.Build()
}

// Load reads a program graph from a YAML file.
func Load(path string) (*Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read program graph %s: %w", path, err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}
