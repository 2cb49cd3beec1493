package report

import (
	"fmt"

	"github.com/aymerick/raymond"

	"refcast/internal/impact"
)

// reportTemplate is the embedded handlebars template for HTML reports.
// Self-contained: no external assets, safe to open from a file:// URL.
const reportTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Impact Report: {{resource}}</title>
<style>
  body { font-family: -apple-system, "Segoe UI", sans-serif; margin: 2rem; color: #222; }
  h1 { font-size: 1.4rem; }
  table { border-collapse: collapse; width: 100%; margin-top: 1rem; }
  th, td { border: 1px solid #ddd; padding: 6px 10px; text-align: left; font-size: 0.9rem; }
  th { background: #f5f5f5; }
  code { background: #f0f0f0; padding: 1px 4px; border-radius: 3px; }
  .sev-critical { color: #b00020; font-weight: bold; }
  .sev-high { color: #d32f2f; }
  .sev-medium { color: #b26a00; }
  .sev-low { color: #00695c; }
  .sev-info { color: #666; }
  .manual { color: #6a1b9a; font-weight: bold; }
</style>
</head>
<body>
<h1>Impact Report: <code>{{resource}}</code>{{#if replacement}} &rarr; <code>{{replacement}}</code>{{/if}}</h1>
<p>Generated {{generated}} &middot; {{total}} site(s) &middot; {{manual}} manual-only</p>
<table>
<tr><th>Severity</th><th>Confidence</th><th>Location</th><th>Pattern</th><th>Context</th></tr>
{{#each sites}}
<tr>
  <td class="sev-{{severity}}">{{severity}}</td>
  <td>{{confidence}}{{#if manualOnly}} <span class="manual">manual</span>{{/if}}</td>
  <td><code>{{file}}:{{line}}</code></td>
  <td>{{pattern}}</td>
  <td><code>{{context}}</code></td>
</tr>
{{/each}}
</table>
{{#if warnings}}
<h2>Warnings</h2>
<ul>
{{#each warnings}}<li><code>{{file}}</code>: {{reason}}</li>{{/each}}
</ul>
{{/if}}
</body>
</html>
`

func htmlReport(rep *impact.Report) (string, error) {
	sites := make([]map[string]interface{}, 0, len(rep.Sites))
	for _, s := range rep.Sites {
		sites = append(sites, map[string]interface{}{
			"severity":   string(s.Severity),
			"confidence": fmt.Sprintf("%.2f", s.Confidence),
			"manualOnly": s.ManualOnly,
			"file":       s.File,
			"line":       s.Line,
			"pattern":    s.Pattern,
			"context":    truncate(s.Context, 120),
		})
	}
	warnings := make([]map[string]interface{}, 0, len(rep.Warnings))
	for _, w := range rep.Warnings {
		warnings = append(warnings, map[string]interface{}{"file": w.File, "reason": w.Reason})
	}

	data := map[string]interface{}{
		"resource":    rep.ResourceID,
		"replacement": rep.ReplacementID,
		"generated":   rep.GeneratedAt.Format("2006-01-02 15:04:05 UTC"),
		"total":       rep.Summary.Total,
		"manual":      rep.Summary.ManualOnly,
		"sites":       sites,
		"warnings":    warnings,
	}

	out, err := raymond.Render(reportTemplate, data)
	if err != nil {
		return "", fmt.Errorf("rendering HTML report: %w", err)
	}
	return out, nil
}
