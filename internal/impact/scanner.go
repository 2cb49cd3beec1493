package impact

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"refcast/internal/corpus"
	"refcast/internal/registry"
	"refcast/pkg/config"
	"refcast/pkg/logger"
	"refcast/pkg/safeio"
)

// ScanWarning records a file that could not be read during a scan. Warnings
// never abort the corpus-wide scan.
type ScanWarning struct {
	File   string `json:"file"`
	Reason string `json:"reason"`
}

// Scanner locates reference sites for registered resources.
type Scanner struct {
	Registry    *registry.Registry
	Lister      corpus.Lister
	Rules       *config.Rules
	Concurrency int
}

// Scan walks the corpus under root and returns every reference site for
// resourceID, ordered by severity rank descending, then file path ascending,
// then line ascending. Repeated scans over an unchanged corpus produce
// identical output.
func (s *Scanner) Scan(ctx context.Context, root, resourceID string) ([]registry.ReferenceSite, []ScanWarning, error) {
	res, err := s.Registry.Lookup(resourceID)
	if err != nil {
		return nil, nil, err
	}

	files, err := s.Lister.List(root)
	if err != nil {
		return nil, nil, fmt.Errorf("listing corpus: %w", err)
	}

	matchers := BuildMatchers(res.ID, s.Rules.Kinds[string(res.Kind)])

	workers := s.Concurrency
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	var (
		mu       sync.Mutex
		sites    []registry.ReferenceSite
		warnings []ScanWarning
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, file := range files {
		file := file
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}

			content, err := safeio.ReadFileContained(root, filepath.Join(root, filepath.FromSlash(file)))
			if err != nil {
				mu.Lock()
				warnings = append(warnings, ScanWarning{File: file, Reason: err.Error()})
				mu.Unlock()
				logger.Warn("skipping unreadable file", logger.String("file", file), logger.Err(err))
				return nil
			}
			if bytes.IndexByte(content, 0) >= 0 {
				// Binary; reference matching is text-only
				return nil
			}

			found := s.scanContent(file, string(content), res.ID, matchers)
			if len(found) > 0 {
				mu.Lock()
				sites = append(sites, found...)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	sortSites(sites)
	sort.Slice(warnings, func(i, j int) bool { return warnings[i].File < warnings[j].File })

	s.Registry.SetSites(resourceID, sites)
	return sites, warnings, nil
}

// scanContent matches one file's text against the resource's surface forms.
func (s *Scanner) scanContent(relPath, content, resourceID string, matchers []Matcher) []registry.ReferenceSite {
	var sites []registry.ReferenceSite
	for i, line := range strings.Split(content, "\n") {
		line = strings.TrimRight(line, "\r")
		for _, match := range FindAll(line, matchers) {
			sites = append(sites, registry.ReferenceSite{
				ResourceID: resourceID,
				File:       relPath,
				Line:       i + 1,
				Column:     match.Start + 1,
				Context:    line,
				Pattern:    match.Pattern,
				Severity:   ClassifySeverity(relPath, line, match.Start, s.Rules),
			})
		}
	}
	return sites
}

// sortSites applies the deterministic report order.
func sortSites(sites []registry.ReferenceSite) {
	sort.Slice(sites, func(i, j int) bool {
		a, b := sites[i], sites[j]
		if a.Severity.Rank() != b.Severity.Rank() {
			return a.Severity.Rank() > b.Severity.Rank()
		}
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Column < b.Column
	})
}
