package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"refcast/internal/lock"
	"refcast/internal/oplog"
	"refcast/internal/registry"
	"refcast/pkg/exitcode"
	"refcast/pkg/logger"
)

func newSyncCommand() *cobra.Command {
	var truthFlag string

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Reconcile the registry against ground truth",
		Long: `Sync diffs the registry against the resource ids the ground-truth
enumerator reports as currently existing. Ids absent from ground truth are
marked removed (history is kept, nothing is deleted); unseen ids are added
as active.

The ground-truth file is either a YAML list of ids, a YAML map of id to
kind (model, dependency, config-key, tool), or a plain newline-separated
list.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if truthFlag == "" {
				return exitcode.Newf(exitcode.UserError, "--ground-truth is required")
			}
			truth, err := parseGroundTruth(truthFlag)
			if err != nil {
				return exitcode.New(exitcode.UserError, err)
			}

			a, err := newApp(cmd)
			if err != nil {
				return err
			}

			held, err := lock.Acquire(a.StateDir)
			if err != nil {
				return exitcode.New(exitcode.InternalError, err)
			}
			defer func() {
				if err := held.Release(); err != nil {
					logger.Warn("failed to release corpus lock", logger.Err(err))
				}
			}()

			result := a.Registry.Sync(truth)
			if err := a.Registry.Save(); err != nil {
				return exitcode.New(exitcode.InternalError, fmt.Errorf("persisting registry: %w", err))
			}
			if err := a.Oplog.Append(&oplog.Entry{
				Op:   "sync",
				Note: fmt.Sprintf("%d added, %d removed, %d unchanged", len(result.Added), len(result.Removed), len(result.Unchanged)),
			}); err != nil {
				logger.Warn("failed to append operation log", logger.Err(err))
			}

			cmd.Printf("Sync complete: %d added, %d removed, %d unchanged\n",
				len(result.Added), len(result.Removed), len(result.Unchanged))
			for _, id := range result.Added {
				cmd.Printf("  + %s\n", id)
			}
			for _, id := range result.Removed {
				cmd.Printf("  - %s (marked removed)\n", id)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&truthFlag, "ground-truth", "", "File listing the resource ids that currently exist")
	return cmd
}

// parseGroundTruth reads the enumerator's output file. Three shapes are
// accepted: a YAML sequence of ids, a YAML mapping of id to kind, or plain
// newline-separated ids.
func parseGroundTruth(path string) (map[string]registry.Kind, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- user-supplied input file
	if err != nil {
		return nil, fmt.Errorf("reading ground truth: %w", err)
	}

	truth := make(map[string]registry.Kind)

	var asList []string
	if err := yaml.Unmarshal(data, &asList); err == nil {
		for _, id := range asList {
			if id = strings.TrimSpace(id); id != "" {
				truth[id] = ""
			}
		}
		return nonEmpty(truth, path)
	}

	var asMap map[string]string
	if err := yaml.Unmarshal(data, &asMap); err == nil {
		for id, kind := range asMap {
			k := registry.Kind(kind)
			if kind != "" && !k.Valid() {
				return nil, fmt.Errorf("unknown resource kind %q for %q", kind, id)
			}
			truth[id] = k
		}
		return nonEmpty(truth, path)
	}

	// Plain newline list
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		truth[line] = ""
	}
	return nonEmpty(truth, path)
}

// nonEmpty rejects an empty enumeration: syncing against nothing would mark
// every resource removed, which is never what a truncated file means.
func nonEmpty(truth map[string]registry.Kind, path string) (map[string]registry.Kind, error) {
	if len(truth) == 0 {
		return nil, fmt.Errorf("ground-truth file %s contains no resource ids", path)
	}
	return truth, nil
}
