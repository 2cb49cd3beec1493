package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"refcast/internal/fixer"
	"refcast/internal/lock"
	"refcast/internal/registry"
	"refcast/internal/report"
	"refcast/pkg/exitcode"
	"refcast/pkg/logger"
)

func newFixCommand() *cobra.Command {
	var (
		applyFlag     bool
		thresholdFlag float64
		formatFlag    string
	)

	cmd := &cobra.Command{
		Use:   "fix <resourceId> <replacementId>",
		Short: "Preview or apply a cascading substitution across the corpus",
		Long: `Fix substitutes every eligible reference to a resource with its
replacement. Dry-run by default: diffs are printed and nothing is touched.
With --apply, a backup covering every targeted file is created before any
mutation, per-site failures never block remaining sites, and the backup id
printed at the end can always restore the pre-fix state via rollback.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := report.ParseFormat(formatFlag)
			if err != nil {
				return exitcode.New(exitcode.UserError, err)
			}
			if format == report.FormatHTML {
				return exitcode.Newf(exitcode.UserError, "html output is not available for fix")
			}
			if thresholdFlag < 0 || thresholdFlag > 1 {
				return exitcode.Newf(exitcode.UserError, "threshold must be in [0,1], got %v", thresholdFlag)
			}

			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("threshold") {
				thresholdFlag = a.Config.Threshold
			}

			if applyFlag {
				held, err := lock.Acquire(a.StateDir)
				if err != nil {
					return exitcode.New(exitcode.InternalError, err)
				}
				defer func() {
					if err := held.Release(); err != nil {
						logger.Warn("failed to release corpus lock", logger.Err(err))
					}
				}()
			}

			result, err := a.engine(thresholdFlag).Fix(cmd.Context(), a.Root, args[0], args[1], !applyFlag)
			if err != nil {
				switch {
				case errors.Is(err, registry.ErrNotFound):
					return exitcode.New(exitcode.UserError, err)
				case errors.Is(err, fixer.ErrBackup):
					printFixResult(cmd, format, result)
					return exitcode.New(exitcode.InternalError, err)
				default:
					return exitcode.New(exitcode.InternalError, err)
				}
			}

			printFixResult(cmd, format, result)

			if result.Unresolved() {
				return exitcode.Newf(exitcode.Unresolved, "fix finished in state %s with unresolved sites", result.State)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&applyFlag, "apply", false, "Apply the substitution (default is dry-run preview)")
	cmd.Flags().Float64Var(&thresholdFlag, "threshold", 0.5, "Minimum fix confidence for automatic substitution")
	cmd.Flags().StringVar(&formatFlag, "format", "concise", "Output format (concise, markdown, json)")
	return cmd
}

func printFixResult(cmd *cobra.Command, format report.Format, result *fixer.Result) {
	if result == nil {
		return
	}
	noColor, _ := cmd.Flags().GetBool("no-color")
	out, err := report.NewFormatter(format, noColor).FormatFixResult(result)
	if err != nil {
		logger.Error("failed to format fix result", logger.Err(err))
		return
	}
	cmd.Print(out)
}
