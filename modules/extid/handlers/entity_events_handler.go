package handlers

import (
	"context"

	"github.com/iota-uz/extid/modules/extid/domain/events"
	"github.com/iota-uz/extid/modules/extid/services"
	"github.com/iota-uz/extid/pkg/application"
	"github.com/iota-uz/extid/pkg/composables"
)

type EntityEventsHandler struct {
	allocator *services.Allocator
}

func NewEntityEventsHandler(allocator *services.Allocator) *EntityEventsHandler {
	return &EntityEventsHandler{allocator: allocator}
}

func RegisterEntityEventHandlers(app application.Application) {
	handler := NewEntityEventsHandler(app.Service(services.Allocator{}).(*services.Allocator))
	app.EventPublisher().Subscribe(handler.OnEntityChanged)
}

// OnEntityChanged allocates an identifier for the created or updated entity.
// Other actions are ignored.
func (h *EntityEventsHandler) OnEntityChanged(ctx context.Context, ev *events.EntityChanged) error {
	if h == nil || h.allocator == nil || ev == nil {
		return nil
	}
	if !ev.TriggersAllocation() {
		return nil
	}
	if ev.RequestID != "" {
		if _, ok := composables.UseRequestID(ctx); !ok {
			ctx = composables.WithRequestID(ctx, ev.RequestID)
		}
	}
	return h.allocator.Trigger(ctx, ev.Entity, ev.ResourceID)
}
