package main

import (
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newAllocateCmd() *cobra.Command {
	var (
		entity    string
		id        int64
		requestID string
	)

	cmd := &cobra.Command{
		Use:   "allocate",
		Short: "Allocate an external id for one entity and any ancestors lacking one",
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseKindFlag(entity)
			if err != nil {
				return err
			}
			if requestID == "" {
				requestID = uuid.NewString()
			}

			rt, err := openRuntime(cmd.Context(), envFilesFlag(cmd))
			if err != nil {
				return err
			}
			defer rt.Close()
			ctx := rt.bind(cmd.Context(), "allocate", requestID)

			start := time.Now()
			res, err := rt.allocator.AllocateExternalID(ctx, kind, id)
			if err != nil {
				return classify(err)
			}
			return writeJSON(cmd.OutOrStdout(), commandOutput{
				Command:    "allocate",
				DurationMS: time.Since(start).Milliseconds(),
				Result:     newResultOutput(res),
			})
		},
	}

	cmd.Flags().StringVar(&entity, "entity", "", "Entity kind: office|center|group|client (required)")
	cmd.Flags().Int64Var(&id, "id", 0, "Entity id (required)")
	cmd.Flags().StringVar(&requestID, "request-id", "", "Request id for logs (optional)")
	_ = cmd.MarkFlagRequired("entity")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}
