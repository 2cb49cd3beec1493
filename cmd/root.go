// Package cmd implements the refcast CLI.
package cmd

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"refcast/pkg/buildinfo"
	"refcast/pkg/exitcode"
	"refcast/pkg/logger"
)

// newRootCommand creates a fresh root command instance.
// The factory pattern lets tests build isolated command trees.
func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "refcast",
		Short: "Dependency-impact analysis and cascading fixes for a document corpus",
		Long: `Refcast keeps a document/configuration corpus consistent when a named
shared resource (a model id, dependency, or configuration key) is renamed,
deprecated, or removed: it finds every reference, classifies blast radius,
and applies reviewed, confidence-gated, reversible substitutions.

Examples:
  refcast analyze model-old model-new   # Impact report for a replacement
  refcast fix model-old model-new       # Preview the cascading fix (dry run)
  refcast fix model-old model-new --apply
  refcast rollback 20250114-093011-001  # Undo an applied fix
  refcast sync --ground-truth models.yaml`,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			initializeLogger(cmd)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().String("log-level", "info", "Set log level (trace|debug|info|warn|error)")
	cmd.PersistentFlags().Bool("json-logs", false, "Output logs in JSON format")
	cmd.PersistentFlags().Bool("no-color", false, "Disable colored output")
	cmd.PersistentFlags().StringP("corpus", "C", ".", "Corpus root directory")

	cmd.Version = buildinfo.BinaryVersion
	cmd.SetVersionTemplate("refcast {{.Version}}\n")

	return cmd
}

// registerSubcommands adds all subcommands to a root command.
func registerSubcommands(cmd *cobra.Command) {
	cmd.AddCommand(newAnalyzeCommand())
	cmd.AddCommand(newFixCommand())
	cmd.AddCommand(newSyncCommand())
	cmd.AddCommand(newDeprecateCommand())
	cmd.AddCommand(newCheckCommand())
	cmd.AddCommand(newRollbackCommand())
	cmd.AddCommand(newBackupsCommand())
	cmd.AddCommand(newVersionCommand())
}

// Execute runs the CLI and maps errors onto the exit-code contract.
func Execute() {
	root := newRootCommand()
	registerSubcommands(root)

	if err := root.Execute(); err != nil {
		var coded *exitcode.Error
		if errors.As(err, &coded) {
			if coded.Err != nil && coded.Code != exitcode.Unresolved {
				logger.Error(coded.Err.Error())
			}
			os.Exit(coded.Code)
		}
		logger.Error(err.Error())
		os.Exit(exitcode.UserError)
	}
}

// initializeLogger sets up the logger from persistent flags.
func initializeLogger(cmd *cobra.Command) {
	levelStr, _ := cmd.Flags().GetString("log-level")
	jsonLogs, _ := cmd.Flags().GetBool("json-logs")
	noColor, _ := cmd.Flags().GetBool("no-color")

	logger.Initialize(logger.Config{
		Level:     logger.ParseLevel(levelStr),
		UseColor:  !noColor && os.Getenv("NO_COLOR") == "",
		JSON:      jsonLogs,
		Component: "refcast",
	})
}

func corpusRoot(cmd *cobra.Command) string {
	root, _ := cmd.Flags().GetString("corpus")
	if root == "" {
		root = "."
	}
	return root
}
