package impact

import (
	"context"
	"strings"
	"time"

	"refcast/internal/registry"
)

// ManualThreshold is the confidence floor below which a site is flagged
// manual-only and never auto-applied.
const ManualThreshold = 0.5

// SiteAssessment is a reference site annotated with fix confidence.
type SiteAssessment struct {
	registry.ReferenceSite
	Confidence float64 `json:"confidence"`
	ManualOnly bool    `json:"manual_only"`
}

// Report is the read-only output of Analyze.
type Report struct {
	ResourceID    string           `json:"resource_id"`
	ReplacementID string           `json:"replacement_id,omitempty"`
	GeneratedAt   time.Time        `json:"generated_at"`
	Sites         []SiteAssessment `json:"sites"`
	Warnings      []ScanWarning    `json:"warnings,omitempty"`
	Summary       ReportSummary    `json:"summary"`
}

// ReportSummary aggregates per-severity counts for quick triage.
type ReportSummary struct {
	Total      int            `json:"total"`
	BySeverity map[string]int `json:"by_severity"`
	ManualOnly int            `json:"manual_only"`
}

// HasManualOnly reports whether any site needs a human.
func (r *Report) HasManualOnly() bool {
	return r.Summary.ManualOnly > 0
}

// Analyze scans for resourceID and annotates every site with a fix
// confidence in [0,1]. Sites scoring below ManualThreshold are flagged
// manual-only.
func (s *Scanner) Analyze(ctx context.Context, root, resourceID, replacementID string) (*Report, error) {
	sites, warnings, err := s.Scan(ctx, root, resourceID)
	if err != nil {
		return nil, err
	}

	knownIDs := make([]string, 0, len(s.Registry.Resources()))
	for _, res := range s.Registry.Resources() {
		knownIDs = append(knownIDs, res.ID)
	}

	report := &Report{
		ResourceID:    resourceID,
		ReplacementID: replacementID,
		GeneratedAt:   time.Now().UTC(),
		Sites:         make([]SiteAssessment, 0, len(sites)),
		Warnings:      warnings,
		Summary:       ReportSummary{BySeverity: make(map[string]int)},
	}

	for _, site := range sites {
		conf := SiteConfidence(site, knownIDs)
		report.Sites = append(report.Sites, SiteAssessment{
			ReferenceSite: site,
			Confidence:    conf,
			ManualOnly:    conf < ManualThreshold,
		})
		report.Summary.Total++
		report.Summary.BySeverity[string(site.Severity)]++
		if conf < ManualThreshold {
			report.Summary.ManualOnly++
		}
	}
	return report, nil
}

// SiteConfidence scores how safely a site can be auto-substituted. Pure
// function of the site, its line context, and the set of known resource ids:
//   - 1.0 for an unambiguous exact occurrence
//   - heavily reduced when the match is embedded in a longer identifier
//   - reduced when other known resource ids co-occur on the line, making the
//     substitution target ambiguous
func SiteConfidence(site registry.ReferenceSite, knownIDs []string) float64 {
	conf := 1.0
	line := site.Context
	// The matched text is the resource id itself for every surface form
	start := site.Column - 1
	end := start + len(site.ResourceID)

	if embedded(line, start, end) {
		conf -= 0.6
	}
	if cooccurring(line, site.ResourceID, knownIDs) {
		conf -= 0.3
	}

	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}
	return conf
}

// embedded reports whether the match at [start,end) abuts identifier
// characters, i.e. is a substring of a longer identifier.
func embedded(line string, start, end int) bool {
	if start < 0 || end > len(line) {
		return false
	}
	if start > 0 && isIdentChar(line[start-1]) {
		return true
	}
	if end < len(line) && isIdentChar(line[end]) {
		return true
	}
	return false
}

// cooccurring reports whether another known resource id also appears on the
// line, making the intended target ambiguous.
func cooccurring(line, selfID string, knownIDs []string) bool {
	for _, id := range knownIDs {
		if id == selfID || id == "" {
			continue
		}
		// Ids nested inside the target id itself are not ambiguity
		if strings.Contains(selfID, id) {
			continue
		}
		if strings.Contains(line, id) {
			return true
		}
	}
	return false
}

func isIdentChar(c byte) bool {
	return c == '_' ||
		(c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9')
}
