package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "identrad",
		Short:         "identra event-sourced IAM backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the config file")

	root.AddCommand(
		newServeCommand(&configPath),
		newProjectionCommand(&configPath),
		newMigrateCommand(&configPath),
	)
	return root
}
