package impact

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"refcast/internal/registry"
	"refcast/pkg/config"
)

// ClassifySeverity resolves the severity of a match from the file-role table,
// downgrading matches that sit entirely inside a comment to info. The table
// is supplied configuration, not derived here; first matching rule wins.
func ClassifySeverity(relPath, line string, matchStart int, rules *config.Rules) registry.Severity {
	if inComment(line, matchStart) {
		return registry.SeverityInfo
	}
	for _, rule := range rules.Roles {
		if ok, err := doublestar.Match(rule.Pattern, relPath); err == nil && ok {
			return registry.Severity(rule.Severity)
		}
		// Also try matching the bare file name so `**/*.md` style rules
		// catch top-level files
		if ok, err := doublestar.Match(rule.Pattern, "/"+relPath); err == nil && ok {
			return registry.Severity(rule.Severity)
		}
	}
	return registry.SeverityMedium
}

// commentMarkers covers the comment syntaxes that matter for a textual
// corpus: shell/yaml, C-family line comments, and HTML/Markdown.
var commentMarkers = []string{"#", "//", "<!--", ";;"}

// inComment reports whether the byte at offset sits after a comment marker
// on the same line. Purely textual; a marker inside a string literal will
// still count, which is acceptable for severity downgrading.
func inComment(line string, offset int) bool {
	prefix := line[:min(offset, len(line))]
	for _, marker := range commentMarkers {
		if strings.Contains(prefix, marker) {
			return true
		}
	}
	return false
}
