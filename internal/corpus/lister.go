// Package corpus enumerates candidate files for the impact analyzer.
package corpus

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"

	"refcast/pkg/ignore"
)

// Lister yields candidate file paths for a scan, ignore rules already
// applied. Paths are slash-separated and relative to the corpus root, in a
// deterministic order.
type Lister interface {
	List(root string) ([]string, error)
}

// LocalLister walks the local filesystem under the corpus root, applying the
// layered ignore matcher and optional include globs.
type LocalLister struct {
	Include     []string
	MaxFileSize int64
	// ExtraIgnore holds always-ignore patterns beyond the built-in defaults,
	// notably the resolved state dir when it is not the default .refcast.
	// A fix must never target the registry store or backup blobs.
	ExtraIgnore []string
}

// List walks root and returns the sorted relative paths of candidate files.
func (l *LocalLister) List(root string) ([]string, error) {
	matcher, err := ignore.NewMatcher(root, l.ExtraIgnore...)
	if err != nil {
		return nil, fmt.Errorf("building ignore matcher: %w", err)
	}

	var files []string
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable directories are skipped, not fatal
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if matcher.IsIgnoredDir(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if matcher.IsIgnored(rel) {
			return nil
		}
		if len(l.Include) > 0 && !l.matchesInclude(rel) {
			return nil
		}
		if l.MaxFileSize > 0 {
			if info, err := d.Info(); err == nil && info.Size() > l.MaxFileSize {
				return nil
			}
		}
		files = append(files, rel)
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("walking corpus: %w", walkErr)
	}

	sort.Strings(files)
	return files, nil
}

func (l *LocalLister) matchesInclude(rel string) bool {
	for _, pattern := range l.Include {
		if ok, err := doublestar.Match(pattern, rel); err == nil && ok {
			return true
		}
	}
	return false
}
