package cmd

import (
	"github.com/spf13/cobra"

	"refcast/pkg/buildinfo"
)

func newVersionCommand() *cobra.Command {
	var extended bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show refcast version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.Printf("refcast %s\n", buildinfo.BinaryVersion)
			if extended {
				if mod := buildinfo.ModuleVersion(); mod != "" {
					cmd.Printf("module: %s\n", mod)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&extended, "extended", false, "Show module build information")
	return cmd
}
