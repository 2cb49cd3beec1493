// Package config loads refcast tool configuration and the classification
// rules table that drives severity and pattern matching.
package config

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config holds tool-level settings, loaded from .refcast.yaml at the corpus
// root with environment overrides (REFCAST_*).
type Config struct {
	// Threshold is the minimum fix confidence for an automatic substitution
	Threshold float64 `mapstructure:"threshold"`
	// Include restricts scanning to files matching these doublestar globs;
	// empty means every non-ignored file
	Include []string `mapstructure:"include"`
	// StateDir holds the registry, backups, lock, and operation log
	StateDir string `mapstructure:"state_dir"`
	// RulesFile points at the classification table; built-in defaults apply
	// when the file does not exist
	RulesFile string `mapstructure:"rules_file"`
	// MaxFileSize skips files larger than this many bytes during scans
	MaxFileSize int64 `mapstructure:"max_file_size"`
	// Concurrency bounds parallel file scanning; 0 means GOMAXPROCS
	Concurrency int `mapstructure:"concurrency"`
}

const (
	DefaultThreshold   = 0.5
	DefaultStateDir    = ".refcast"
	DefaultRulesFile   = "refcast.rules.yaml"
	defaultMaxFileSize = 10 * 1024 * 1024
)

// Load reads configuration for the corpus rooted at corpusRoot.
// A missing config file is not an error; defaults apply.
func Load(corpusRoot string) (*Config, error) {
	v := viper.New()
	v.SetConfigName(".refcast")
	v.SetConfigType("yaml")
	v.AddConfigPath(corpusRoot)
	v.SetEnvPrefix("REFCAST")
	v.AutomaticEnv()

	v.SetDefault("threshold", DefaultThreshold)
	v.SetDefault("include", []string{})
	v.SetDefault("state_dir", DefaultStateDir)
	v.SetDefault("rules_file", DefaultRulesFile)
	v.SetDefault("max_file_size", defaultMaxFileSize)
	v.SetDefault("concurrency", 0)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading .refcast.yaml: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing .refcast.yaml: %w", err)
	}
	if cfg.Threshold < 0 || cfg.Threshold > 1 {
		return nil, fmt.Errorf("threshold must be in [0,1], got %v", cfg.Threshold)
	}
	return &cfg, nil
}

// StatePath resolves the state directory under the corpus root.
func (c *Config) StatePath(corpusRoot string) string {
	if filepath.IsAbs(c.StateDir) {
		return c.StateDir
	}
	return filepath.Join(corpusRoot, c.StateDir)
}

// RulesPath resolves the rules file under the corpus root.
func (c *Config) RulesPath(corpusRoot string) string {
	if filepath.IsAbs(c.RulesFile) {
		return c.RulesFile
	}
	return filepath.Join(corpusRoot, c.RulesFile)
}
