package cmd

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"refcast/internal/fixer"
	"refcast/pkg/exitcode"
)

// staleAfter is how long a registry may go without a sync before check
// flags it.
const staleAfter = 7 * 24 * time.Hour

func newCheckCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Registry and corpus health scan",
		Long: `Check reports registry staleness, unreadable backup snapshots, and prior
fix operations that finished partially applied without a subsequent
rollback.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}

			var findings []string

			if last := a.Registry.LastSynced(); last.IsZero() {
				findings = append(findings, "registry has never been synced against ground truth")
			} else if age := time.Since(last); age > staleAfter {
				findings = append(findings, fmt.Sprintf("registry is stale: last synced %s ago", age.Round(time.Hour)))
			}

			for _, id := range a.Backups.Verify() {
				findings = append(findings, fmt.Sprintf("backup %s has an unreadable manifest", id))
			}

			for _, id := range unrecoveredPartials(a) {
				findings = append(findings, fmt.Sprintf("fix backed by %s finished PARTIALLY_APPLIED and was never rolled back", id))
			}

			resources := a.Registry.Resources()
			cmd.Printf("Registry: %d resource(s)\n", len(resources))
			if len(findings) == 0 {
				cmd.Println("No issues found")
				return nil
			}
			for _, f := range findings {
				cmd.Printf("  ! %s\n", f)
			}
			return exitcode.Newf(exitcode.Unresolved, "%d issue(s) found", len(findings))
		},
	}
	return cmd
}

// unrecoveredPartials scans the operation log for applies that degraded to
// PARTIALLY_APPLIED whose backup was never rolled back afterwards.
func unrecoveredPartials(a *app) []string {
	entries, err := a.Oplog.ReadAll()
	if err != nil {
		return nil
	}
	partial := make(map[string]bool)
	for _, e := range entries {
		switch {
		case e.Op == "fix" && !e.DryRun && e.State == string(fixer.StatePartiallyApplied) && e.BackupID != "":
			partial[e.BackupID] = true
		case e.Op == "rollback" && e.State == "restored" && e.BackupID != "":
			delete(partial, e.BackupID)
		}
	}
	var out []string
	for id := range partial {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
