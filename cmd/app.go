package cmd

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"refcast/internal/backup"
	"refcast/internal/corpus"
	"refcast/internal/fixer"
	"refcast/internal/impact"
	"refcast/internal/lock"
	"refcast/internal/oplog"
	"refcast/internal/registry"
	"refcast/pkg/config"
	"refcast/pkg/exitcode"
	"refcast/pkg/logger"
)

// app wires the components for one invocation: explicit store objects passed
// down rather than process-wide state.
type app struct {
	Root     string
	StateDir string
	Config   *config.Config
	Rules    *config.Rules
	Registry *registry.Registry
	Scanner  *impact.Scanner
	Backups  *backup.Manager
	Oplog    *oplog.Log
}

// newApp loads config, rules, and the registry for the corpus the command
// targets, mapping failures onto the exit-code contract.
func newApp(cmd *cobra.Command) (*app, error) {
	root := corpusRoot(cmd)

	cfg, err := config.Load(root)
	if err != nil {
		return nil, exitcode.New(exitcode.UserError, err)
	}
	rules, err := config.LoadRules(cfg.RulesPath(root))
	if err != nil {
		return nil, exitcode.New(exitcode.UserError, err)
	}

	stateDir := cfg.StatePath(root)
	reg, err := registry.Open(filepath.Join(stateDir, "registry.yaml"))
	if err != nil {
		if errors.Is(err, registry.ErrCorruptRegistry) {
			return nil, exitcode.New(exitcode.InternalError, err)
		}
		return nil, exitcode.New(exitcode.InternalError, fmt.Errorf("opening registry: %w", err))
	}

	a := &app{
		Root:     root,
		StateDir: stateDir,
		Config:   cfg,
		Rules:    rules,
		Registry: reg,
		Backups:  &backup.Manager{Dir: filepath.Join(stateDir, "backups"), Root: root},
		Oplog:    &oplog.Log{Path: filepath.Join(stateDir, "oplog.jsonl")},
	}
	a.Scanner = &impact.Scanner{
		Registry: reg,
		Lister: &corpus.LocalLister{
			Include:     cfg.Include,
			MaxFileSize: cfg.MaxFileSize,
			ExtraIgnore: stateIgnorePatterns(root, stateDir),
		},
		Rules:       rules,
		Concurrency: cfg.Concurrency,
	}
	return a, nil
}

// stateIgnorePatterns derives the always-ignore patterns shielding the state
// dir from scans and fixes. The default .refcast is covered by the built-in
// ignore defaults; a relocated state dir inside the corpus needs its own
// pattern, and one outside the corpus is never walked at all.
func stateIgnorePatterns(root, stateDir string) []string {
	rel, err := filepath.Rel(root, stateDir)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil
	}
	return []string{filepath.ToSlash(rel) + "/**"}
}

func (a *app) registryPath() string {
	return filepath.Join(a.StateDir, "registry.yaml")
}

// persistSiteCache writes the refreshed reference-site cache for one resource
// back to the store. The caller is a read-only operation, so this is strictly
// best-effort: it takes the corpus lock so a concurrent sync or apply is
// never clobbered, reloads the store so only the site cache changes, and
// skips entirely when the lock is held.
func (a *app) persistSiteCache(resourceID string) {
	held, err := lock.Acquire(a.StateDir)
	if err != nil {
		if errors.Is(err, lock.ErrLocked) {
			logger.Debug("corpus is locked; skipping reference-site cache persist")
		} else {
			logger.Warn("failed to persist reference-site cache", logger.Err(err))
		}
		return
	}
	defer func() {
		if err := held.Release(); err != nil {
			logger.Warn("failed to release corpus lock", logger.Err(err))
		}
	}()

	fresh, err := registry.Open(a.registryPath())
	if err != nil {
		logger.Warn("failed to persist reference-site cache", logger.Err(err))
		return
	}
	fresh.SetSites(resourceID, a.Registry.Sites(resourceID))
	if err := fresh.Save(); err != nil {
		logger.Warn("failed to persist reference-site cache", logger.Err(err))
	}
}

// engine builds a fix engine at the given confidence threshold.
func (a *app) engine(threshold float64) *fixer.Engine {
	return &fixer.Engine{
		Registry:  a.Registry,
		Scanner:   a.Scanner,
		Backups:   a.Backups,
		Oplog:     a.Oplog,
		Threshold: threshold,
	}
}
