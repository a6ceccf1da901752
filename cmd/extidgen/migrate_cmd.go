package main

import (
	"time"

	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the hierarchy schema to the configured SQL store",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(cmd.Context(), envFilesFlag(cmd))
			if err != nil {
				return err
			}
			defer rt.Close()

			start := time.Now()
			applied, err := rt.backends.Migrate(cmd.Context())
			if err != nil {
				return withCode(exitDB, err)
			}
			return writeJSON(cmd.OutOrStdout(), commandOutput{
				Command:    "migrate",
				DurationMS: time.Since(start).Milliseconds(),
				Result:     applied,
			})
		},
	}
}
