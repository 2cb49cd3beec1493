package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"refcast/internal/backup"
	"refcast/internal/lock"
	"refcast/internal/oplog"
	"refcast/pkg/exitcode"
	"refcast/pkg/logger"
)

func newRollbackCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rollback <backupId>",
		Short: "Restore every file captured in a backup to its pre-fix content",
		Long: `Rollback restores the exact original content of every file captured in a
backup. Idempotent: running it twice leaves the same end state, with
already-restored files reported as no-ops.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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

			backupID := args[0]
			rbErr := a.Backups.Rollback(backupID)

			entry := &oplog.Entry{Op: "rollback", BackupID: backupID, State: "restored"}
			if rbErr != nil {
				entry.State = "failed"
				entry.Note = rbErr.Error()
			}
			if err := a.Oplog.Append(entry); err != nil {
				logger.Warn("failed to append operation log", logger.Err(err))
			}

			if rbErr != nil {
				var partial *backup.PartialRestoreError
				switch {
				case errors.Is(rbErr, backup.ErrBackupNotFound):
					return exitcode.New(exitcode.UserError, rbErr)
				case errors.As(rbErr, &partial):
					cmd.Printf("Partial restore of %s; could not restore:\n", backupID)
					for _, f := range partial.Failed {
						cmd.Printf("  ! %s\n", f)
					}
					return exitcode.New(exitcode.Unresolved, rbErr)
				default:
					return exitcode.New(exitcode.InternalError, rbErr)
				}
			}

			cmd.Printf("Rollback of %s complete\n", backupID)
			return nil
		},
	}
	return cmd
}
