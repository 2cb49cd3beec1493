package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"refcast/internal/oplog"
	"refcast/internal/registry"
	"refcast/internal/report"
	"refcast/pkg/exitcode"
	"refcast/pkg/logger"
)

func newAnalyzeCommand() *cobra.Command {
	var formatFlag string

	cmd := &cobra.Command{
		Use:   "analyze <resourceId> [replacementId]",
		Short: "Scan the corpus and print an impact report for a resource",
		Long: `Analyze scans the corpus for every reference to a resource and prints an
ordered, severity-classified report with a per-site fix confidence. Passing a
replacement id annotates the report for a subsequent fix.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := report.ParseFormat(formatFlag)
			if err != nil {
				return exitcode.New(exitcode.UserError, err)
			}

			a, err := newApp(cmd)
			if err != nil {
				return err
			}

			resourceID := args[0]
			replacementID := ""
			if len(args) > 1 {
				replacementID = args[1]
			}

			rep, err := a.Scanner.Analyze(cmd.Context(), a.Root, resourceID, replacementID)
			if err != nil {
				if errors.Is(err, registry.ErrNotFound) {
					return exitcode.New(exitcode.UserError, err)
				}
				return exitcode.New(exitcode.InternalError, err)
			}

			// Persist the refreshed site cache best-effort, under the corpus
			// lock; analyze itself stays read-only
			a.persistSiteCache(resourceID)
			if err := a.Oplog.Append(&oplog.Entry{
				Op:          "analyze",
				Resource:    resourceID,
				Replacement: replacementID,
				Warnings:    len(rep.Warnings),
				Note:        summaryNote(rep.Summary.Total, rep.Summary.ManualOnly),
			}); err != nil {
				logger.Warn("failed to append operation log", logger.Err(err))
			}

			noColor, _ := cmd.Flags().GetBool("no-color")
			out, err := report.NewFormatter(format, noColor).FormatReport(rep)
			if err != nil {
				return exitcode.New(exitcode.InternalError, err)
			}
			cmd.Print(out)

			if rep.HasManualOnly() {
				return exitcode.Newf(exitcode.Unresolved, "%d site(s) need manual attention", rep.Summary.ManualOnly)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&formatFlag, "format", "concise", "Output format (concise, markdown, json, html)")
	return cmd
}

func summaryNote(total, manual int) string {
	if manual == 0 {
		return fmt.Sprintf("%d sites", total)
	}
	return fmt.Sprintf("%d sites, %d manual-only", total, manual)
}
