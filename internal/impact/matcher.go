// Package impact scans a corpus for references to a resource and produces
// ordered, severity-classified, confidence-scored reports.
package impact

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"refcast/pkg/config"
)

// Match is one occurrence of a surface form within a single line.
type Match struct {
	// Start and End are byte offsets of the resource id within the line
	Start, End int
	// Pattern names the surface form that matched, e.g. "exact",
	// "key:model", "flag:--model"
	Pattern string
}

// Matcher finds occurrences of one resource's surface form in a line of
// text. Matching is purely textual; no code semantics are assumed.
type Matcher interface {
	Name() string
	Find(line string) []Match
}

// BuildMatchers compiles the matcher set for a resource id of a given kind
// from the rules table. Exact literal matching is always included; key/value
// and flag/value matchers come from the kind's pattern set.
func BuildMatchers(id string, patterns config.KindPatterns) []Matcher {
	matchers := []Matcher{&literalMatcher{id: id}}
	for _, key := range patterns.Keys {
		matchers = append(matchers, newKeyValueMatcher(key, id))
	}
	for _, flag := range patterns.Flags {
		matchers = append(matchers, newFlagMatcher(flag, id))
	}
	return matchers
}

// FindAll runs every matcher over the line and merges results, deduplicating
// occurrences by start offset. More specific surface forms (key/flag) win
// over a plain literal hit at the same offset.
func FindAll(line string, matchers []Matcher) []Match {
	byStart := make(map[int]Match)
	for _, m := range matchers {
		for _, hit := range m.Find(line) {
			existing, seen := byStart[hit.Start]
			if !seen || existing.Pattern == "exact" {
				byStart[hit.Start] = hit
			}
		}
	}
	out := make([]Match, 0, len(byStart))
	for _, m := range byStart {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

// literalMatcher finds every textual occurrence of the id.
type literalMatcher struct {
	id string
}

func (m *literalMatcher) Name() string { return "exact" }

func (m *literalMatcher) Find(line string) []Match {
	var out []Match
	for from := 0; ; {
		i := strings.Index(line[from:], m.id)
		if i < 0 {
			break
		}
		start := from + i
		out = append(out, Match{Start: start, End: start + len(m.id), Pattern: "exact"})
		from = start + len(m.id)
	}
	return out
}

// keyValueMatcher finds `key: id` and `key = id` pairs, with optional quoting.
type keyValueMatcher struct {
	key string
	re  *regexp.Regexp
}

func newKeyValueMatcher(key, id string) *keyValueMatcher {
	expr := fmt.Sprintf(`(?:^|[^\w-])%s\s*[:=]\s*["']?(%s)["']?`,
		regexp.QuoteMeta(key), regexp.QuoteMeta(id))
	return &keyValueMatcher{key: key, re: regexp.MustCompile(expr)}
}

func (m *keyValueMatcher) Name() string { return "key:" + m.key }

func (m *keyValueMatcher) Find(line string) []Match {
	var out []Match
	for _, idx := range m.re.FindAllStringSubmatchIndex(line, -1) {
		// idx[2], idx[3] bound the id capture group
		out = append(out, Match{Start: idx[2], End: idx[3], Pattern: m.Name()})
	}
	return out
}

// flagMatcher finds `--flag id` and `--flag=id` occurrences.
type flagMatcher struct {
	flag string
	re   *regexp.Regexp
}

func newFlagMatcher(flag, id string) *flagMatcher {
	expr := fmt.Sprintf(`%s[= ]["']?(%s)["']?`,
		regexp.QuoteMeta(flag), regexp.QuoteMeta(id))
	return &flagMatcher{flag: flag, re: regexp.MustCompile(expr)}
}

func (m *flagMatcher) Name() string { return "flag:" + m.flag }

func (m *flagMatcher) Find(line string) []Match {
	var out []Match
	for _, idx := range m.re.FindAllStringSubmatchIndex(line, -1) {
		out = append(out, Match{Start: idx[2], End: idx[3], Pattern: m.Name()})
	}
	return out
}
