package scanner

import (
	"path"
	"strings"
)

// IgnorePattern represents a single gitignore-style pattern.
type IgnorePattern struct {
	pattern     string // Original pattern
	isNegation  bool   // Starts with !
	isDirectory bool   // Ends with /, matches directories only
	isAnchored  bool   // Starts with / or contains an inner /
	segments    []string
}

// ParseIgnorePattern parses a gitignore-style pattern string.
func ParseIgnorePattern(pattern string) IgnorePattern {
	p := IgnorePattern{pattern: pattern}

	if strings.HasPrefix(pattern, "!") {
		p.isNegation = true
		pattern = pattern[1:]
	}
	if strings.HasSuffix(pattern, "/") {
		p.isDirectory = true
		pattern = strings.TrimSuffix(pattern, "/")
	}
	if strings.HasPrefix(pattern, "/") {
		p.isAnchored = true
		pattern = pattern[1:]
	} else if strings.Contains(pattern, "/") && !strings.HasPrefix(pattern, "**/") {
		p.isAnchored = true
	}

	p.segments = strings.Split(pattern, "/")
	return p
}

// String returns the pattern as written.
func (p IgnorePattern) String() string { return p.pattern }

// IsNegation returns true if this pattern is a negation pattern.
func (p IgnorePattern) IsNegation() bool {
	return p.isNegation
}

// Match reports whether the slash-separated relative path, or one of its
// parent directories, matches the pattern. isDir tells whether the path
// itself is a directory.
func (p IgnorePattern) Match(rel string, isDir bool) bool {
	segs := strings.Split(rel, "/")
	for k := 1; k <= len(segs); k++ {
		candidateIsDir := k < len(segs) || isDir
		if p.isDirectory && !candidateIsDir {
			continue
		}
		if p.matchPrefix(segs[:k]) {
			return true
		}
	}
	return false
}

func (p IgnorePattern) matchPrefix(segs []string) bool {
	if p.isAnchored {
		return matchSegments(p.segments, segs)
	}
	for i := range segs {
		if matchSegments(p.segments, segs[i:]) {
			return true
		}
	}
	return false
}

// matchSegments matches glob segments against path segments exactly; **
// matches any number of segments.
func matchSegments(pattern, segs []string) bool {
	if len(pattern) == 0 {
		return len(segs) == 0
	}
	if pattern[0] == "**" {
		for i := 0; i <= len(segs); i++ {
			if matchSegments(pattern[1:], segs[i:]) {
				return true
			}
		}
		return false
	}
	if len(segs) == 0 {
		return false
	}
	ok, err := path.Match(pattern[0], segs[0])
	if err != nil || !ok {
		return false
	}
	return matchSegments(pattern[1:], segs[1:])
}
