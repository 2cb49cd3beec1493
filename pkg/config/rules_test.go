package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRules(t *testing.T) {
	rules := DefaultRules()
	require.NotEmpty(t, rules.Kinds)
	require.NotEmpty(t, rules.Roles)
	assert.Contains(t, rules.Kinds, "model")
	assert.Contains(t, rules.Kinds["model"].Keys, "model")
}

func TestParseRulesValid(t *testing.T) {
	rules, err := ParseRules([]byte(`
kinds:
  model:
    keys: [model]
    flags: ["--model"]
roles:
  - pattern: "**/*.yaml"
    role: config
    severity: critical
  - pattern: "**/*.md"
    role: docs
    severity: low
`))
	require.NoError(t, err)
	assert.Equal(t, []string{"model"}, rules.Kinds["model"].Keys)
	require.Len(t, rules.Roles, 2)
	assert.Equal(t, "critical", rules.Roles[0].Severity)
}

func TestParseRulesRejectsBadSeverity(t *testing.T) {
	_, err := ParseRules([]byte(`
kinds: {}
roles:
  - pattern: "**/*.yaml"
    role: config
    severity: catastrophic
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid rules table")
}

func TestParseRulesRejectsMissingFields(t *testing.T) {
	_, err := ParseRules([]byte(`
kinds: {}
roles:
  - pattern: "**/*.yaml"
`))
	require.Error(t, err)
}

func TestParseRulesRejectsBadYAML(t *testing.T) {
	_, err := ParseRules([]byte("kinds: [unclosed"))
	require.Error(t, err)
}

func TestLoadRulesMissingFileUsesDefaults(t *testing.T) {
	rules, err := LoadRules(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultRules(), rules)
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, DefaultThreshold, cfg.Threshold)
	assert.Equal(t, DefaultStateDir, cfg.StateDir)
	assert.Equal(t, DefaultRulesFile, cfg.RulesFile)
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".refcast.yaml"), []byte(`
threshold: 0.8
include:
  - "**/*.yaml"
state_dir: .state
`), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 0.8, cfg.Threshold)
	assert.Equal(t, []string{"**/*.yaml"}, cfg.Include)
	assert.Equal(t, filepath.Join(dir, ".state"), cfg.StatePath(dir))
}

func TestLoadConfigRejectsBadThreshold(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".refcast.yaml"), []byte("threshold: 1.5\n"), 0o644))
	_, err := Load(dir)
	require.Error(t, err)
}
