package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "extidgen",
		Short:         "Hierarchical external identifier allocation for offices, centers, groups and clients",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringSlice("env-file", []string{".env", ".env.local"}, "Dotenv files to load")

	cmd.AddCommand(newAllocateCmd())
	cmd.AddCommand(newNotifyCmd())
	cmd.AddCommand(newBackfillCmd())
	cmd.AddCommand(newMigrateCmd())
	return cmd
}

func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		code := exitCode(err)
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(code)
	}
}
