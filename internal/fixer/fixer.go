// Package fixer applies confidence-gated, reversible substitutions across
// the reference sites of an impact report.
package fixer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"refcast/internal/backup"
	"refcast/internal/impact"
	"refcast/internal/oplog"
	"refcast/internal/registry"
	"refcast/pkg/logger"
	"refcast/pkg/safeio"
)

// ErrBackup means the pre-mutation snapshot could not be created. The apply
// is fully aborted: fail-closed, nothing was mutated.
var ErrBackup = errors.New("backup creation failed")

// State is the state of one fix operation.
type State string

const (
	StatePending          State = "PENDING"
	StatePreviewed        State = "PREVIEWED"
	StateApplying         State = "APPLYING"
	StateApplied          State = "APPLIED"
	StatePartiallyApplied State = "PARTIALLY_APPLIED"
	StateFailed           State = "FAILED"
)

// Outcome is the per-site result.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeSkipped   Outcome = "skipped-low-confidence"
	OutcomeFailed    Outcome = "failed"
	OutcomePreviewed Outcome = "previewed"
)

// SiteResult pairs a site assessment with its outcome. Every site from the
// analysis appears in exactly one SiteResult; no outcome is dropped.
type SiteResult struct {
	Site    impact.SiteAssessment `json:"site"`
	Outcome Outcome               `json:"outcome"`
	Detail  string                `json:"detail,omitempty"`
}

// FileDiff is a dry-run preview for one file.
type FileDiff struct {
	File string `json:"file"`
	Diff string `json:"diff"`
}

// Result is the full record of one fix invocation.
type Result struct {
	State         State        `json:"state"`
	ResourceID    string       `json:"resource_id"`
	ReplacementID string       `json:"replacement_id"`
	DryRun        bool         `json:"dry_run"`
	Threshold     float64      `json:"threshold"`
	BackupID      string       `json:"backup_id,omitempty"`
	Sites         []SiteResult `json:"sites"`
	Diffs         []FileDiff   `json:"diffs,omitempty"`
}

// Unresolved reports whether the operation left sites needing attention.
func (r *Result) Unresolved() bool {
	if r.State == StatePartiallyApplied {
		return true
	}
	for _, s := range r.Sites {
		if s.Outcome == OutcomeSkipped || s.Outcome == OutcomeFailed {
			return true
		}
	}
	return false
}

// Engine drives fix operations. Threshold gates which sites are eligible for
// automatic substitution; everything below is reported, never touched.
// Engines are not safe for concurrent use; mutating operations hold the
// corpus advisory lock anyway.
type Engine struct {
	Registry  *registry.Registry
	Scanner   *impact.Scanner
	Backups   *backup.Manager
	Oplog     *oplog.Log
	Threshold float64
}

// Fix previews (dryRun) or applies the substitution resourceID →
// replacementID across every eligible site under root.
//
// Apply semantics: a snapshot covering every targeted file is created before
// any mutation; if that fails the whole operation fails with nothing
// touched. Per-site failures afterwards are local: one site failing never
// blocks the rest, and the result degrades to PARTIALLY_APPLIED.
func (e *Engine) Fix(ctx context.Context, root, resourceID, replacementID string, dryRun bool) (*Result, error) {
	if replacementID == "" {
		return nil, errors.New("replacement id is required")
	}
	if _, err := e.Registry.Lookup(resourceID); err != nil {
		return nil, err
	}

	report, err := e.Scanner.Analyze(ctx, root, resourceID, replacementID)
	if err != nil {
		return nil, err
	}

	result := &Result{
		State:         StatePending,
		ResourceID:    resourceID,
		ReplacementID: replacementID,
		DryRun:        dryRun,
		Threshold:     e.Threshold,
	}

	eligible, gated := e.gate(report.Sites)
	result.Sites = append(result.Sites, gated...)

	if dryRun {
		e.preview(root, replacementID, eligible, result)
		result.State = StatePreviewed
	} else if err := e.apply(root, replacementID, eligible, result); err != nil {
		e.logOperation(result, len(report.Warnings))
		return result, err
	}

	e.logOperation(result, len(report.Warnings))
	return result, nil
}

// gate splits sites into eligible ones and pre-resolved results. Sites below
// threshold are skipped-low-confidence, except critical sites, which are
// recorded as failed so they can never be mistaken for safely ignorable.
func (e *Engine) gate(sites []impact.SiteAssessment) (eligible []impact.SiteAssessment, resolved []SiteResult) {
	threshold := e.Threshold
	if threshold < impact.ManualThreshold {
		threshold = impact.ManualThreshold
	}
	for _, site := range sites {
		if site.Confidence >= threshold {
			eligible = append(eligible, site)
			continue
		}
		if site.Severity == registry.SeverityCritical {
			resolved = append(resolved, SiteResult{
				Site:    site,
				Outcome: OutcomeFailed,
				Detail:  fmt.Sprintf("confidence %.2f below threshold; manual fix required", site.Confidence),
			})
			continue
		}
		resolved = append(resolved, SiteResult{
			Site:    site,
			Outcome: OutcomeSkipped,
			Detail:  fmt.Sprintf("confidence %.2f below threshold %.2f", site.Confidence, threshold),
		})
	}
	return eligible, resolved
}

// preview renders unified diffs for every eligible site without touching any
// file and without creating a backup.
func (e *Engine) preview(root, replacement string, eligible []impact.SiteAssessment, result *Result) {
	for _, file := range targetFiles(eligible) {
		fileSites := sitesInFile(eligible, file)
		original, err := safeio.ReadFileContained(root, filepath.Join(root, filepath.FromSlash(file)))
		if err != nil {
			for _, s := range fileSites {
				result.Sites = append(result.Sites, SiteResult{Site: s, Outcome: OutcomeFailed, Detail: err.Error()})
			}
			continue
		}

		mutated, outcomes := substitute(string(original), replacement, fileSites)
		for _, o := range outcomes {
			if o.Outcome == OutcomeApplied {
				o.Outcome = OutcomePreviewed
			}
			result.Sites = append(result.Sites, o)
		}

		diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
			A:        difflib.SplitLines(string(original)),
			B:        difflib.SplitLines(mutated),
			FromFile: "a/" + file,
			ToFile:   "b/" + file,
			Context:  3,
		})
		if err == nil {
			result.Diffs = append(result.Diffs, FileDiff{File: file, Diff: diff})
		}
	}
}

// apply snapshots then mutates, file by file.
func (e *Engine) apply(root, replacement string, eligible []impact.SiteAssessment, result *Result) error {
	files := targetFiles(eligible)
	if len(files) == 0 {
		result.State = finalState(result.Sites)
		return nil
	}

	backupID, err := e.Backups.Snapshot(files)
	if err != nil {
		result.State = StateFailed
		return fmt.Errorf("%w: %v", ErrBackup, err)
	}
	result.BackupID = backupID
	result.State = StateApplying

	for _, file := range files {
		fileSites := sitesInFile(eligible, file)
		abs := filepath.Join(root, filepath.FromSlash(file))

		original, err := safeio.ReadFileContained(root, abs)
		if err != nil {
			for _, s := range fileSites {
				result.Sites = append(result.Sites, SiteResult{Site: s, Outcome: OutcomeFailed, Detail: err.Error()})
			}
			continue
		}

		mutated, outcomes := substitute(string(original), replacement, fileSites)

		if mutated != string(original) {
			if err := writeMutated(abs, mutated); err != nil {
				// The whole file failed to write; every would-be-applied
				// site in it failed
				for i := range outcomes {
					if outcomes[i].Outcome == OutcomeApplied {
						outcomes[i].Outcome = OutcomeFailed
						outcomes[i].Detail = err.Error()
					}
				}
			}
		}

		for _, o := range outcomes {
			if o.Outcome == OutcomeFailed {
				logger.Warn("site fix failed",
					logger.String("file", o.Site.File),
					logger.Int("line", o.Site.Line),
					logger.String("detail", o.Detail))
			}
			result.Sites = append(result.Sites, o)
		}
	}

	result.State = finalState(result.Sites)
	return nil
}

// finalState derives the terminal state from per-site outcomes: APPLIED when
// nothing failed, PARTIALLY_APPLIED otherwise. Backup failure is handled
// before this point and is the only road to FAILED.
func finalState(sites []SiteResult) State {
	for _, s := range sites {
		if s.Outcome == OutcomeFailed {
			return StatePartiallyApplied
		}
	}
	return StateApplied
}

// substitute applies every site's replacement to content in memory and
// verifies each post-condition: the replacement present at the site and the
// original gone. Sites whose context drifted since analysis fail
// individually; identity replacements trivially verify and change nothing.
func substitute(content, replacement string, sites []impact.SiteAssessment) (string, []SiteResult) {
	if len(sites) == 0 {
		return content, nil
	}
	old := sites[0].ResourceID
	lines := strings.Split(content, "\n")

	// Apply right-to-left within a line so earlier columns stay valid
	ordered := make([]impact.SiteAssessment, len(sites))
	copy(ordered, sites)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Line != ordered[j].Line {
			return ordered[i].Line < ordered[j].Line
		}
		return ordered[i].Column > ordered[j].Column
	})

	outcomes := make([]SiteResult, 0, len(ordered))
	for _, site := range ordered {
		idx := site.Line - 1
		if idx < 0 || idx >= len(lines) {
			outcomes = append(outcomes, SiteResult{Site: site, Outcome: OutcomeFailed,
				Detail: "line no longer exists; content changed since analysis"})
			continue
		}
		line := lines[idx]
		start := site.Column - 1
		if start < 0 || start+len(old) > len(line) || line[start:start+len(old)] != old {
			outcomes = append(outcomes, SiteResult{Site: site, Outcome: OutcomeFailed,
				Detail: "pattern no longer at recorded location; content changed since analysis"})
			continue
		}

		lines[idx] = line[:start] + replacement + line[start+len(old):]

		if lines[idx][start:start+len(replacement)] != replacement {
			outcomes = append(outcomes, SiteResult{Site: site, Outcome: OutcomeFailed,
				Detail: "verification failed after substitution"})
			continue
		}
		outcomes = append(outcomes, SiteResult{Site: site, Outcome: OutcomeApplied})
	}

	return strings.Join(lines, "\n"), outcomes
}

// writeMutated probes writability first so permission problems surface as
// clean per-site failures instead of half-written files.
func writeMutated(path, content string) error {
	f, err := os.OpenFile(path, os.O_WRONLY, 0) // #nosec G304 -- path contained in corpus root
	if err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return safeio.WriteFilePreservePerms(path, []byte(content))
}

func targetFiles(sites []impact.SiteAssessment) []string {
	seen := make(map[string]bool)
	var files []string
	for _, s := range sites {
		if !seen[s.File] {
			seen[s.File] = true
			files = append(files, s.File)
		}
	}
	sort.Strings(files)
	return files
}

func sitesInFile(sites []impact.SiteAssessment, file string) []impact.SiteAssessment {
	var out []impact.SiteAssessment
	for _, s := range sites {
		if s.File == file {
			out = append(out, s)
		}
	}
	return out
}

func (e *Engine) logOperation(result *Result, warnings int) {
	entry := &oplog.Entry{
		Op:          "fix",
		Resource:    result.ResourceID,
		Replacement: result.ReplacementID,
		DryRun:      result.DryRun,
		State:       string(result.State),
		BackupID:    result.BackupID,
		Warnings:    warnings,
	}
	for _, s := range result.Sites {
		entry.Sites = append(entry.Sites, oplog.SiteOutcome{
			File:       s.Site.File,
			Line:       s.Site.Line,
			Severity:   string(s.Site.Severity),
			Confidence: s.Site.Confidence,
			Outcome:    string(s.Outcome),
			Detail:     s.Detail,
		})
	}
	if err := e.Oplog.Append(entry); err != nil {
		logger.Warn("failed to append operation log", logger.Err(err))
	}
}
