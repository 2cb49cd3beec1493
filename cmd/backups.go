package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"refcast/pkg/exitcode"
)

func newBackupsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backups",
		Short: "Inspect and prune fix backups",
	}
	cmd.AddCommand(newBackupsListCommand())
	cmd.AddCommand(newBackupsPruneCommand())
	return cmd
}

func newBackupsListCommand() *cobra.Command {
	var jsonFlag bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List backups, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			summaries, err := a.Backups.List()
			if err != nil {
				return exitcode.New(exitcode.InternalError, err)
			}

			if jsonFlag {
				data, err := json.MarshalIndent(summaries, "", "  ")
				if err != nil {
					return exitcode.New(exitcode.InternalError, err)
				}
				cmd.Println(string(data))
				return nil
			}

			if len(summaries) == 0 {
				cmd.Println("No backups")
				return nil
			}
			for _, s := range summaries {
				cmd.Printf("%s  %s  %d file(s)\n",
					s.ID, s.CreatedAt.Format("2006-01-02 15:04:05"), s.Files)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonFlag, "json", false, "Output as JSON")
	return cmd
}

func newBackupsPruneCommand() *cobra.Command {
	var keepFlag int

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove all but the newest N backups",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if keepFlag < 0 {
				return exitcode.Newf(exitcode.UserError, "--keep must be non-negative")
			}
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			removed, err := a.Backups.Prune(keepFlag)
			if err != nil {
				return exitcode.New(exitcode.InternalError, err)
			}
			cmd.Printf("Pruned %d backup(s)\n", len(removed))
			for _, id := range removed {
				cmd.Printf("  - %s\n", id)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&keepFlag, "keep", 10, "Number of newest backups to retain")
	return cmd
}
