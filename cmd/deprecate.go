package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"refcast/internal/lock"
	"refcast/internal/oplog"
	"refcast/internal/registry"
	"refcast/pkg/exitcode"
	"refcast/pkg/logger"
)

func newDeprecateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deprecate <resourceId>",
		Short: "Mark a resource deprecated ahead of its removal",
		Long: `Deprecate marks a registered resource deprecated without waiting for the
next ground-truth sync. The resource stays in the registry and keeps
matching during analysis; the status signals consumers to migrate before it
is removed.`,
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

			resourceID := args[0]
			if err := a.Registry.Deprecate(resourceID); err != nil {
				if errors.Is(err, registry.ErrNotFound) {
					return exitcode.New(exitcode.UserError, err)
				}
				return exitcode.New(exitcode.InternalError, err)
			}
			if err := a.Registry.Save(); err != nil {
				return exitcode.New(exitcode.InternalError, fmt.Errorf("persisting registry: %w", err))
			}
			if err := a.Oplog.Append(&oplog.Entry{Op: "deprecate", Resource: resourceID}); err != nil {
				logger.Warn("failed to append operation log", logger.Err(err))
			}

			cmd.Printf("%s marked deprecated\n", resourceID)
			return nil
		},
	}
	return cmd
}
