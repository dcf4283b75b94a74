package scanner

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for path, content := range files {
		fullPath := filepath.Join(root, path)
		if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
			t.Fatalf("Failed to create directory: %v", err)
		}
		if err := os.WriteFile(fullPath, []byte(content), 0644); err != nil {
			t.Fatalf("Failed to create file: %v", err)
		}
	}
}

func paths(results []ProgramFile) []string {
	out := make([]string, len(results))
	for i, f := range results {
		out[i] = f.Path
	}
	return out
}

func TestScannerScan(t *testing.T) {
	tmpDir := t.TempDir()
	writeFiles(t, tmpDir, map[string]string{
		"linear.yaml":              "name: linear",
		"nested/guarded.yml":       "name: guarded",
		"nested/deeper/loop.YAML":  "name: loop",
		"README.md":                "# Programs",
		"notes.txt":                "not a program",
		".hidden/skipped.yaml":     "name: hidden",
		"vendor/dep/program.yaml":  "name: vendored",
		".git/objects/object.yaml": "name: git",
	})

	results, err := Scan(tmpDir)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	want := []string{"linear.yaml", "nested/deeper/loop.YAML", "nested/guarded.yml"}
	got := paths(results)
	if len(got) != len(want) {
		t.Fatalf("Scan() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Scan()[%d] = %s, want %s", i, got[i], want[i])
		}
	}
	for _, f := range results {
		if !filepath.IsAbs(f.FullPath) {
			t.Errorf("FullPath %s is not absolute", f.FullPath)
		}
		if f.Size == 0 {
			t.Errorf("%s has zero size", f.Path)
		}
	}
}

func TestScannerWithCegarignore(t *testing.T) {
	tmpDir := t.TempDir()
	writeFiles(t, tmpDir, map[string]string{
		".cegarignore": `# Ignore drafts
*.draft.yaml
# Ignore generated programs
generated/
!generated/keep.yaml
`,
		"a.yaml":              "",
		"a.draft.yaml":        "",
		"generated/b.yaml":    "",
		"generated/keep.yaml": "",
		"suite/c.yaml":        "",
		"suite/.cegarignore":  "c.yaml\n",
		"suite/inner/c.yaml":  "",
		"other/suite/d.yaml":  "",
	})

	results, err := Scan(tmpDir)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	found := make(map[string]bool)
	for _, f := range results {
		found[f.Path] = true
	}

	// The generated directory is skipped as a whole, so the negation cannot
	// re-include a file inside it, like git.
	for _, p := range []string{"a.yaml", "other/suite/d.yaml"} {
		if !found[p] {
			t.Errorf("Expected to find %s", p)
		}
	}
	for _, p := range []string{"a.draft.yaml", "generated/b.yaml", "generated/keep.yaml", "suite/c.yaml", "suite/inner/c.yaml"} {
		if found[p] {
			t.Errorf("Expected %s to be ignored", p)
		}
	}
}

func TestScannerSkipHidden(t *testing.T) {
	tmpDir := t.TempDir()
	writeFiles(t, tmpDir, map[string]string{
		"visible.yaml":      "",
		".hidden/file.yaml": "",
		".program.yaml":     "",
	})

	opts := DefaultOptions()
	results, err := New(opts).Scan(tmpDir)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if got := paths(results); len(got) != 1 || got[0] != "visible.yaml" {
		t.Errorf("Scan() with SkipHidden = %v, want [visible.yaml]", got)
	}

	opts.SkipHidden = false
	results, err = New(opts).Scan(tmpDir)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if got := paths(results); len(got) != 3 {
		t.Errorf("Scan() without SkipHidden = %v, want 3 files", got)
	}
}

func TestScannerMissingRoot(t *testing.T) {
	if _, err := Scan(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("Expected an error for a missing root")
	}
}

func TestIsProgramFile(t *testing.T) {
	s := New(DefaultOptions())
	tests := []struct {
		name     string
		expected bool
	}{
		{"program.yaml", true},
		{"program.yml", true},
		{"PROGRAM.YAML", true},
		{"program.json", false},
		{"yaml", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := s.IsProgramFile(tt.name); got != tt.expected {
			t.Errorf("IsProgramFile(%q) = %v, want %v", tt.name, got, tt.expected)
		}
	}
}

func TestIgnorePattern(t *testing.T) {
	tests := []struct {
		pattern string
		path    string
		isDir   bool
		match   bool
	}{
		// Simple patterns
		{"*.yaml", "file.yaml", false, true},
		{"*.yaml", "dir/file.yaml", false, true},
		{"*.yaml", "file.yml", false, false},
		{"build/", "build/file.yaml", false, true},
		{"build/", "other/build/file.yaml", false, true},
		{"build/", "builder.yaml", false, false},
		{"build/", "build", false, false},
		{"build/", "build", true, true},

		// Anchored patterns
		{"/build/", "build/file.yaml", false, true},
		{"/build/", "src/build/file.yaml", false, false},
		{"src/*.yaml", "src/app.yaml", false, true},
		{"src/*.yaml", "src/deep/app.yaml", false, false},

		// Double asterisk
		{"**/test/**", "test/file.yaml", false, true},
		{"**/test/**", "src/test/file.yaml", false, true},
		{"**/test/**", "src/deep/test/file.yaml", false, true},
		{"**/test/**", "testing/file.yaml", false, false},

		// Question mark and classes
		{"file?.yaml", "file1.yaml", false, true},
		{"file?.yaml", "file12.yaml", false, false},
		{"file[ab].yaml", "fileb.yaml", false, true},

		// Negation patterns still match; the caller inverts them.
		{"!*.yaml", "file.yaml", false, true},
	}

	for _, tt := range tests {
		pattern := ParseIgnorePattern(tt.pattern)
		if got := pattern.Match(tt.path, tt.isDir); got != tt.match {
			t.Errorf("Pattern %q matching %q: got %v, want %v", tt.pattern, tt.path, got, tt.match)
		}
	}
}
