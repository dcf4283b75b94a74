// Package scanner discovers program graph files under a directory tree.
// It respects .cegarignore files with gitignore-style patterns.
package scanner

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ProgramFile represents a discovered program graph file.
type ProgramFile struct {
	Path     string // Relative path from root, slash separated
	FullPath string // Absolute path
	Size     int64  // File size in bytes
}

// Options configures the scanner behavior.
type Options struct {
	SkipHidden      bool     // Skip hidden files and directories (starting with .)
	DefaultExcludes []string // Directory names never entered
	IgnoreFileName  string   // Name of the ignore file (default: .cegarignore)
	Extensions      []string // Extensions of program files
}

// DefaultOptions returns scanner options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		SkipHidden:      true,
		IgnoreFileName:  ".cegarignore",
		Extensions:      []string{".yaml", ".yml"},
		DefaultExcludes: []string{".git", ".hg", ".svn", "node_modules", "vendor"},
	}
}

// Scanner provides file tree scanning capabilities.
type Scanner struct {
	opts Options
}

// New creates a new Scanner with the given options.
func New(opts Options) *Scanner {
	if opts.IgnoreFileName == "" {
		opts.IgnoreFileName = ".cegarignore"
	}
	return &Scanner{opts: opts}
}

// scoped is an ignore pattern loaded from the ignore file of dir.
type scoped struct {
	dir string // Relative to the scan root, "" for the root itself
	IgnorePattern
}

// Scan walks root and returns the program files sorted by path.
// Ignore files in subdirectories apply to paths below them.
func (s *Scanner) Scan(root string) ([]ProgramFile, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("getting absolute path: %w", err)
	}

	var (
		patterns []scoped
		files    []ProgramFile
	)
	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == absRoot {
				return err
			}
			return nil
		}
		rel, err := filepath.Rel(absRoot, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if rel == "." {
			loaded, err := s.loadIgnorePatterns(path, "")
			if err != nil {
				return fmt.Errorf("loading ignore patterns: %w", err)
			}
			patterns = append(patterns, loaded...)
			return nil
		}

		if s.opts.SkipHidden && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if ignored(rel, d.IsDir(), patterns) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if s.isDefaultExcluded(d.Name()) {
				return filepath.SkipDir
			}
			if nested, err := s.loadIgnorePatterns(path, rel); err == nil {
				patterns = append(patterns, nested...)
			}
			return nil
		}

		if !d.Type().IsRegular() || !s.IsProgramFile(d.Name()) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		files = append(files, ProgramFile{Path: rel, FullPath: path, Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking directory: %w", err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// IsProgramFile reports whether name has one of the program file extensions.
func (s *Scanner) IsProgramFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range s.opts.Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

func (s *Scanner) isDefaultExcluded(name string) bool {
	for _, exclude := range s.opts.DefaultExcludes {
		if strings.EqualFold(name, exclude) {
			return true
		}
	}
	return false
}

// loadIgnorePatterns loads the ignore file of dir. A missing file yields no
// patterns.
func (s *Scanner) loadIgnorePatterns(dir, rel string) ([]scoped, error) {
	file, err := os.Open(filepath.Join(dir, s.opts.IgnoreFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	var patterns []scoped
	sc := bufio.NewScanner(file)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, scoped{dir: rel, IgnorePattern: ParseIgnorePattern(line)})
	}
	return patterns, sc.Err()
}

// ignored applies the patterns in order; the last match wins, so a negation
// can re-include a path.
func ignored(rel string, isDir bool, patterns []scoped) bool {
	out := false
	for _, p := range patterns {
		sub := rel
		if p.dir != "" {
			if !strings.HasPrefix(rel, p.dir+"/") {
				continue
			}
			sub = strings.TrimPrefix(rel, p.dir+"/")
		}
		if p.Match(sub, isDir) {
			out = !p.IsNegation()
		}
	}
	return out
}

// Scan is a convenience function that scans a directory with default options.
func Scan(root string) ([]ProgramFile, error) {
	return New(DefaultOptions()).Scan(root)
}
