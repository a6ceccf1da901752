package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/iota-uz/extid/modules/extid/domain/events"
	"github.com/iota-uz/extid/modules/extid/domain/hierarchy"
)

type notifyOutput struct {
	EventID    string `json:"event_id"`
	Entity     string `json:"entity"`
	Action     string `json:"action"`
	ResourceID int64  `json:"resource_id"`
	Handled    bool   `json:"handled"`
	ExternalID string `json:"external_id,omitempty"`
}

func newNotifyCmd() *cobra.Command {
	var (
		entity    string
		action    string
		id        int64
		requestID string
	)

	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Publish an entity change notification the way the host platform does",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(entity) == "" {
				return withCode(exitUsage, errors.New("--entity is required"))
			}

			rt, err := openRuntime(cmd.Context(), envFilesFlag(cmd))
			if err != nil {
				return err
			}
			defer rt.Close()

			ev := events.NewEntityChanged(requestID, entity, action, id)
			ctx := rt.bind(cmd.Context(), "notify", ev.EventID.String())

			start := time.Now()
			if err := rt.app.EventPublisher().PublishE(ctx, &ev); err != nil {
				return classify(err)
			}

			out := notifyOutput{
				EventID:    ev.EventID.String(),
				Entity:     ev.Entity,
				Action:     ev.Action,
				ResourceID: ev.ResourceID,
			}
			if kind, ok := hierarchy.ParseKind(entity); ok && ev.TriggersAllocation() {
				out.Handled = true
				extID, err := rt.externalID(ctx, kind, id)
				if err != nil {
					return classify(fmt.Errorf("read back %s %d: %w", kind, id, err))
				}
				out.ExternalID = extID
			}
			return writeJSON(cmd.OutOrStdout(), commandOutput{
				Command:    "notify",
				DurationMS: time.Since(start).Milliseconds(),
				Result:     out,
			})
		},
	}

	cmd.Flags().StringVar(&entity, "entity", "", "Entity name as sent by the platform (required)")
	cmd.Flags().StringVar(&action, "action", events.ActionCreate, "Action: create|update|...")
	cmd.Flags().Int64Var(&id, "id", 0, "Resource id (required)")
	cmd.Flags().StringVar(&requestID, "request-id", "", "Request id carried by the event (optional)")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}
