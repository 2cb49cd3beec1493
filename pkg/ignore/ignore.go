// Package ignore provides gitignore-based corpus filtering using go-git
package ignore

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5/osfs"
	gitignore "github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// Matcher filters corpus files with layered ignore rules:
// 1. built-in defaults (.git, refcast's own state dir, vendor trees)
// 2. .gitignore and related git ignore files
// 3. .refcastignore at the corpus root
type Matcher struct {
	root    string
	matcher gitignore.Matcher
}

// Defaults that are always ignored regardless of corpus configuration.
// The .refcast state dir must never be scanned or mutated by a fix.
var defaultPatterns = []string{".git/**", ".refcast/**", "node_modules/**", "vendor/**"}

// NewMatcher creates a matcher rooted at corpusRoot. Extra patterns are
// always-ignore rules layered with the defaults; callers use them for paths
// that must never be scanned, like a relocated state dir.
func NewMatcher(corpusRoot string, extra ...string) (*Matcher, error) {
	absRoot, err := filepath.Abs(corpusRoot)
	if err != nil {
		return nil, err
	}
	fs := osfs.New(absRoot)

	var patterns []gitignore.Pattern
	for _, p := range defaultPatterns {
		patterns = append(patterns, gitignore.ParsePattern(p, nil))
	}
	for _, p := range extra {
		patterns = append(patterns, gitignore.ParsePattern(p, nil))
	}

	// ReadPatterns with nil reads .gitignore, global excludes, and .git/info/exclude
	if gitPatterns, err := gitignore.ReadPatterns(fs, nil); err == nil {
		patterns = append(patterns, gitPatterns...)
	}

	for _, line := range readIgnoreFile(filepath.Join(absRoot, ".refcastignore")) {
		patterns = append(patterns, gitignore.ParsePattern(line, nil))
	}

	return &Matcher{
		root:    absRoot,
		matcher: gitignore.NewMatcher(patterns),
	}, nil
}

// readIgnoreFile reads patterns from a .refcastignore-style text file
func readIgnoreFile(path string) []string {
	cleaned := filepath.Clean(path)
	if !strings.HasSuffix(cleaned, ".refcastignore") {
		return nil
	}
	content, err := os.ReadFile(cleaned) // #nosec G304 -- suffix-checked ignore file
	if err != nil {
		return nil
	}

	var patterns []string
	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	return patterns
}

// IsIgnored checks if a file path should be excluded from the corpus
func (m *Matcher) IsIgnored(path string) bool {
	return m.match(path, false)
}

// IsIgnoredDir checks if a directory should be skipped during traversal
func (m *Matcher) IsIgnoredDir(path string) bool {
	return m.match(path, true)
}

func (m *Matcher) match(path string, isDir bool) bool {
	rel := path
	if filepath.IsAbs(path) {
		if r, err := filepath.Rel(m.root, path); err == nil {
			rel = r
		}
	}
	parts := splitPath(filepath.ToSlash(rel))
	if len(parts) == 0 {
		return false
	}
	return m.matcher.Match(parts, isDir)
}

// splitPath converts a slash-separated path into components for go-git matching
func splitPath(path string) []string {
	if path == "" || path == "." {
		return nil
	}
	path = strings.TrimPrefix(path, "/")
	parts := strings.Split(path, "/")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if part != "" && part != "." {
			result = append(result, part)
		}
	}
	return result
}
