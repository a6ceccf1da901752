package events

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	TopicEntityChangedV1 = "extid.entity.changed.v1"
	EventVersionV1       = 1

	ActionCreate = "create"
	ActionUpdate = "update"
)

// EntityChanged is emitted by the host platform after an office, center,
// group or client is created or updated. Entity and Action are matched
// case-insensitively.
type EntityChanged struct {
	EventID         uuid.UUID `json:"event_id"`
	EventVersion    int       `json:"event_version"`
	RequestID       string    `json:"request_id,omitempty"`
	TransactionTime time.Time `json:"transaction_time"`
	Entity          string    `json:"entity"`
	Action          string    `json:"action"`
	ResourceID      int64     `json:"resourceId"`
}

func NewEntityChanged(requestID, entity, action string, resourceID int64) EntityChanged {
	return EntityChanged{
		EventID:         uuid.New(),
		EventVersion:    EventVersionV1,
		RequestID:       requestID,
		TransactionTime: time.Now().UTC(),
		Entity:          entity,
		Action:          action,
		ResourceID:      resourceID,
	}
}

// TriggersAllocation reports whether the action is one that may leave an
// entity without an external identifier.
func (e EntityChanged) TriggersAllocation() bool {
	action := strings.TrimSpace(e.Action)
	return strings.EqualFold(action, ActionCreate) || strings.EqualFold(action, ActionUpdate)
}
