package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// Rules is the externally supplied classification table: per-kind surface-form
// pattern sets plus the file-role severity mapping used by the analyzer.
type Rules struct {
	Kinds map[string]KindPatterns `yaml:"kinds" json:"kinds"`
	Roles []RoleRule              `yaml:"roles" json:"roles"`
}

// KindPatterns describes which textual surface forms identify a resource of a
// given kind. Exact literal matching is always on; key/value and flag/value
// forms widen the net for kinds that appear in structured config.
type KindPatterns struct {
	Keys  []string `yaml:"keys,omitempty" json:"keys,omitempty"`
	Flags []string `yaml:"flags,omitempty" json:"flags,omitempty"`
}

// RoleRule maps a path glob to a file role and the severity a reference in
// such a file carries. First match wins; order in the table is precedence.
type RoleRule struct {
	Pattern  string `yaml:"pattern" json:"pattern"`
	Role     string `yaml:"role" json:"role"`
	Severity string `yaml:"severity" json:"severity"`
}

// rulesSchema validates the shape of a user-supplied rules table before any
// scan trusts it.
const rulesSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["kinds", "roles"],
  "properties": {
    "kinds": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "properties": {
          "keys":  {"type": "array", "items": {"type": "string", "minLength": 1}},
          "flags": {"type": "array", "items": {"type": "string", "minLength": 1}}
        },
        "additionalProperties": false
      }
    },
    "roles": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["pattern", "role", "severity"],
        "properties": {
          "pattern":  {"type": "string", "minLength": 1},
          "role":     {"type": "string", "enum": ["entrypoint", "config", "handler", "secondary", "test", "docs"]},
          "severity": {"type": "string", "enum": ["critical", "high", "medium", "low", "info"]}
        },
        "additionalProperties": false
      }
    }
  },
  "additionalProperties": false
}`

// DefaultRules returns the built-in classification table used when no
// refcast.rules.yaml exists at the corpus root.
func DefaultRules() *Rules {
	return &Rules{
		Kinds: map[string]KindPatterns{
			"model": {
				Keys:  []string{"model", "MODEL", "model_id"},
				Flags: []string{"--model", "-m"},
			},
			"dependency": {
				Keys: []string{"require", "dependency"},
			},
			"config-key": {
				Keys: []string{"key", "name"},
			},
			"tool": {
				Keys:  []string{"tool", "command"},
				Flags: []string{"--tool"},
			},
		},
		Roles: []RoleRule{
			{Pattern: "**/main.*", Role: "entrypoint", Severity: "critical"},
			{Pattern: "**/*.{yaml,yml,json,toml,ini,conf}", Role: "config", Severity: "critical"},
			{Pattern: "**/.env*", Role: "config", Severity: "critical"},
			{Pattern: "**/handlers/**", Role: "handler", Severity: "high"},
			{Pattern: "**/*handler*", Role: "handler", Severity: "high"},
			{Pattern: "**/hooks/**", Role: "handler", Severity: "high"},
			{Pattern: "**/test/**", Role: "test", Severity: "medium"},
			{Pattern: "**/tests/**", Role: "test", Severity: "medium"},
			{Pattern: "**/*_test.*", Role: "test", Severity: "medium"},
			{Pattern: "**/docs/**", Role: "docs", Severity: "low"},
			{Pattern: "**/*.{md,rst,txt}", Role: "docs", Severity: "low"},
		},
	}
}

// LoadRules reads and validates a rules table from path. A missing file
// yields the built-in defaults; a present but invalid file is an error so a
// typo never silently downgrades severities.
func LoadRules(path string) (*Rules, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path comes from validated config
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultRules(), nil
		}
		return nil, fmt.Errorf("reading rules table: %w", err)
	}
	return ParseRules(data)
}

// ParseRules validates raw YAML against the rules schema and decodes it.
func ParseRules(data []byte) (*Rules, error) {
	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("rules table is not valid YAML: %w", err)
	}
	jsonBytes, err := json.Marshal(normalizeYAML(raw))
	if err != nil {
		return nil, fmt.Errorf("converting rules table for validation: %w", err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(rulesSchema),
		gojsonschema.NewBytesLoader(jsonBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("validating rules table: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("invalid rules table: %s", strings.Join(msgs, "; "))
	}

	var rules Rules
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("decoding rules table: %w", err)
	}
	return &rules, nil
}

// normalizeYAML converts YAML map keys to strings so the structure is
// JSON-marshalable for schema validation.
func normalizeYAML(v interface{}) interface{} {
	switch val := v.(type) {
	case map[interface{}]interface{}:
		m := make(map[string]interface{}, len(val))
		for k, item := range val {
			m[fmt.Sprintf("%v", k)] = normalizeYAML(item)
		}
		return m
	case map[string]interface{}:
		for k, item := range val {
			val[k] = normalizeYAML(item)
		}
		return val
	case []interface{}:
		for i, item := range val {
			val[i] = normalizeYAML(item)
		}
		return val
	default:
		return v
	}
}
