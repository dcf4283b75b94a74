// Package cpa defines the contracts between the reachability engine and the
// abstract-domain collaborators plugged into it: states, precisions,
// transfer relations and the merge and stop operators.
package cpa

import (
	"github.com/l3aro/go-cegar/pkg/cfa"
)

// AbstractState is an opaque value produced by a domain. The engine only
// compares states for equality and queries their capabilities.
type AbstractState interface {
	Equal(other AbstractState) bool
}

// Targetable states know whether they represent a property violation.
type Targetable interface {
	IsTarget() bool
}

// Locatable states belong to a program location.
type Locatable interface {
	Location() cfa.Location
}

// Partitionable states restrict merge and stop to candidates sharing the
// same partition key.
type Partitionable interface {
	Partition() string
}

// Wrapper states compose other states. Capability queries recurse into
// the wrapped children.
type Wrapper interface {
	Wrapped() []AbstractState
}

// Keyed values expose a stable identity used for memoization.
type Keyed interface {
	Key() string
}

// IsTarget reports whether s or any state it wraps is a target.
func IsTarget(s AbstractState) bool {
	if t, ok := s.(Targetable); ok && t.IsTarget() {
		return true
	}
	if w, ok := s.(Wrapper); ok {
		for _, c := range w.Wrapped() {
			if IsTarget(c) {
				return true
			}
		}
	}
	return false
}

// LocationOf returns the location of s, looking through wrappers.
func LocationOf(s AbstractState) (cfa.Location, bool) {
	if l, ok := s.(Locatable); ok {
		return l.Location(), true
	}
	if w, ok := s.(Wrapper); ok {
		for _, c := range w.Wrapped() {
			if loc, ok := LocationOf(c); ok {
				return loc, true
			}
		}
	}
	return 0, false
}

// PartitionOf returns the partition key of s, or "" when it has none.
func PartitionOf(s AbstractState) string {
	if p, ok := s.(Partitionable); ok {
		return p.Partition()
	}
	if w, ok := s.(Wrapper); ok {
		for _, c := range w.Wrapped() {
			if key := PartitionOf(c); key != "" {
				return key
			}
		}
	}
	return ""
}

// KeyOf returns the memoization key of v and whether it has one.
func KeyOf(v interface{}) (string, bool) {
	if k, ok := v.(Keyed); ok {
		return k.Key(), true
	}
	return "", false
}
