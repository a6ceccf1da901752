package main

import (
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/iota-uz/extid/modules/extid/domain/hierarchy"
	"github.com/iota-uz/extid/modules/extid/services"
)

func newBackfillCmd() *cobra.Command {
	var entity string

	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Allocate external ids for every entity of a kind that has none",
		Long: "Without --entity, kinds are processed top-down (office, center, group, client) " +
			"so that ancestors are numbered in id order before their descendants.",
		RunE: func(cmd *cobra.Command, args []string) error {
			kinds := hierarchy.Kinds
			if entity != "" {
				kind, err := parseKindFlag(entity)
				if err != nil {
					return err
				}
				kinds = []hierarchy.Kind{kind}
			}

			rt, err := openRuntime(cmd.Context(), envFilesFlag(cmd))
			if err != nil {
				return err
			}
			defer rt.Close()
			ctx := rt.bind(cmd.Context(), "backfill", uuid.NewString())

			start := time.Now()
			reports := make([]services.BackfillReport, 0, len(kinds))
			for _, kind := range kinds {
				report, err := rt.allocator.Backfill(ctx, kind)
				reports = append(reports, report)
				if err != nil {
					if werr := writeJSON(cmd.OutOrStdout(), commandOutput{
						Command:    "backfill",
						DurationMS: time.Since(start).Milliseconds(),
						Result:     reports,
					}); werr != nil {
						return werr
					}
					return classify(err)
				}
			}
			return writeJSON(cmd.OutOrStdout(), commandOutput{
				Command:    "backfill",
				DurationMS: time.Since(start).Milliseconds(),
				Result:     reports,
			})
		},
	}

	cmd.Flags().StringVar(&entity, "entity", "", "Entity kind: office|center|group|client (default: all, top-down)")
	return cmd
}
