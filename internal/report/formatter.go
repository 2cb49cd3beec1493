// Package report renders impact reports and fix results in the formats the
// CLI exposes.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-runewidth"

	"refcast/internal/fixer"
	"refcast/internal/impact"
)

// Format selects the output rendering.
type Format string

const (
	FormatConcise  Format = "concise"
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
	FormatHTML     Format = "html"
)

// ParseFormat validates a --format flag value.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatConcise, FormatMarkdown, FormatJSON, FormatHTML:
		return Format(s), nil
	}
	return "", fmt.Errorf("invalid format: %s (must be concise, markdown, json, or html)", s)
}

// Formatter renders reports in one configured format.
type Formatter struct {
	format  Format
	noColor bool
}

// NewFormatter creates a formatter. Color applies to concise output only and
// is additionally suppressed by the NO_COLOR convention.
func NewFormatter(format Format, noColor bool) *Formatter {
	return &Formatter{format: format, noColor: noColor || os.Getenv("NO_COLOR") != ""}
}

// FormatReport renders an impact report.
func (f *Formatter) FormatReport(rep *impact.Report) (string, error) {
	switch f.format {
	case FormatConcise:
		return f.conciseReport(rep), nil
	case FormatMarkdown:
		return markdownReport(rep), nil
	case FormatJSON:
		return jsonIndent(rep)
	case FormatHTML:
		return htmlReport(rep)
	default:
		return "", fmt.Errorf("unsupported format: %s", f.format)
	}
}

// FormatFixResult renders a fix result. HTML is not offered for fixes.
func (f *Formatter) FormatFixResult(res *fixer.Result) (string, error) {
	switch f.format {
	case FormatConcise:
		return f.conciseFix(res), nil
	case FormatMarkdown:
		return markdownFix(res), nil
	case FormatJSON:
		return jsonIndent(res)
	default:
		return "", fmt.Errorf("unsupported format for fix output: %s", f.format)
	}
}

func (f *Formatter) color(code, s string) string {
	if f.noColor {
		return s
	}
	return "\x1b[" + code + "m" + s + "\x1b[0m"
}

func (f *Formatter) severityColor(sev string) string {
	switch sev {
	case "critical":
		return f.color("31;1", strings.ToUpper(sev))
	case "high":
		return f.color("31", strings.ToUpper(sev))
	case "medium":
		return f.color("33", strings.ToUpper(sev))
	case "low":
		return f.color("36", strings.ToUpper(sev))
	default:
		return f.color("37", strings.ToUpper(sev))
	}
}

const contextWidth = 60

func (f *Formatter) conciseReport(rep *impact.Report) string {
	var b strings.Builder
	bold := func(s string) string { return f.color("1", s) }

	header := fmt.Sprintf("Impact: %s", rep.ResourceID)
	if rep.ReplacementID != "" {
		header += fmt.Sprintf(" → %s", rep.ReplacementID)
	}
	b.WriteString(bold(header) + "\n")
	b.WriteString(fmt.Sprintf("%d site(s), %d manual-only, %d warning(s)\n",
		rep.Summary.Total, rep.Summary.ManualOnly, len(rep.Warnings)))

	for _, site := range rep.Sites {
		sev := runewidth.FillRight(string(site.Severity), 8)
		// Pad before colorizing so ANSI codes do not skew the columns
		loc := runewidth.FillRight(fmt.Sprintf("%s:%d", site.File, site.Line), 40)
		flag := "    "
		if site.ManualOnly {
			flag = f.color("35", "MAN ")
		}
		b.WriteString(fmt.Sprintf("  %s %.2f %s%s %s\n",
			strings.Replace(sev, string(site.Severity), f.severityColor(string(site.Severity)), 1),
			site.Confidence, flag, loc, truncate(strings.TrimSpace(site.Context), contextWidth)))
	}

	for _, w := range rep.Warnings {
		b.WriteString(f.color("33", fmt.Sprintf("  warn: %s (%s)\n", w.File, w.Reason)))
	}
	return b.String()
}

func (f *Formatter) conciseFix(res *fixer.Result) string {
	var b strings.Builder
	bold := func(s string) string { return f.color("1", s) }

	state := string(res.State)
	switch res.State {
	case fixer.StateApplied, fixer.StatePreviewed:
		state = f.color("32", state)
	case fixer.StatePartiallyApplied:
		state = f.color("33", state)
	case fixer.StateFailed:
		state = f.color("31", state)
	}
	b.WriteString(fmt.Sprintf("%s %s → %s [%s]\n",
		bold("Fix:"), res.ResourceID, res.ReplacementID, state))
	if res.BackupID != "" {
		b.WriteString(fmt.Sprintf("Backup: %s\n", res.BackupID))
	}

	for _, s := range res.Sites {
		loc := runewidth.FillRight(fmt.Sprintf("%s:%d", s.Site.File, s.Site.Line), 40)
		outcome := string(s.Outcome)
		switch s.Outcome {
		case fixer.OutcomeApplied, fixer.OutcomePreviewed:
			outcome = f.color("32", outcome)
		case fixer.OutcomeFailed:
			outcome = f.color("31", outcome)
		case fixer.OutcomeSkipped:
			outcome = f.color("33", outcome)
		}
		b.WriteString(fmt.Sprintf("  %s %s", loc, outcome))
		if s.Detail != "" {
			b.WriteString(" (" + s.Detail + ")")
		}
		b.WriteString("\n")
	}

	for _, d := range res.Diffs {
		b.WriteString("\n" + d.Diff)
	}
	return b.String()
}

func markdownReport(rep *impact.Report) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("# Impact Report: %s\n\n", rep.ResourceID))
	if rep.ReplacementID != "" {
		b.WriteString(fmt.Sprintf("Replacement: `%s`\n\n", rep.ReplacementID))
	}
	b.WriteString(fmt.Sprintf("Generated: %s\n\n", rep.GeneratedAt.Format("2006-01-02 15:04:05 UTC")))
	b.WriteString(fmt.Sprintf("- Total sites: %d\n", rep.Summary.Total))
	b.WriteString(fmt.Sprintf("- Manual-only: %d\n", rep.Summary.ManualOnly))
	for _, sev := range []string{"critical", "high", "medium", "low", "info"} {
		if n := rep.Summary.BySeverity[sev]; n > 0 {
			b.WriteString(fmt.Sprintf("- %s: %d\n", sev, n))
		}
	}
	b.WriteString("\n| Severity | Confidence | Location | Context |\n")
	b.WriteString("|----------|------------|----------|---------|\n")
	for _, site := range rep.Sites {
		conf := fmt.Sprintf("%.2f", site.Confidence)
		if site.ManualOnly {
			conf += " (manual)"
		}
		b.WriteString(fmt.Sprintf("| %s | %s | %s:%d | `%s` |\n",
			site.Severity, conf, site.File, site.Line,
			strings.ReplaceAll(truncate(strings.TrimSpace(site.Context), contextWidth), "|", "\\|")))
	}
	if len(rep.Warnings) > 0 {
		b.WriteString("\n## Warnings\n\n")
		for _, w := range rep.Warnings {
			b.WriteString(fmt.Sprintf("- %s: %s\n", w.File, w.Reason))
		}
	}
	return b.String()
}

func markdownFix(res *fixer.Result) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("# Fix: %s → %s\n\n", res.ResourceID, res.ReplacementID))
	b.WriteString(fmt.Sprintf("State: **%s**\n\n", res.State))
	if res.BackupID != "" {
		b.WriteString(fmt.Sprintf("Backup: `%s`\n\n", res.BackupID))
	}
	b.WriteString("| Location | Severity | Confidence | Outcome | Detail |\n")
	b.WriteString("|----------|----------|------------|---------|--------|\n")
	for _, s := range res.Sites {
		b.WriteString(fmt.Sprintf("| %s:%d | %s | %.2f | %s | %s |\n",
			s.Site.File, s.Site.Line, s.Site.Severity, s.Site.Confidence, s.Outcome, s.Detail))
	}
	for _, d := range res.Diffs {
		b.WriteString("\n```diff\n" + d.Diff + "```\n")
	}
	return b.String()
}

func jsonIndent(v interface{}) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding report: %w", err)
	}
	return string(data) + "\n", nil
}

func truncate(s string, width int) string {
	if runewidth.StringWidth(s) <= width {
		return s
	}
	return runewidth.Truncate(s, width, "…")
}
