package persistence

import (
	"github.com/go-faster/errors"

	"github.com/iota-uz/extid/modules/extid/domain/hierarchy"
)

// checkAssign enforces write-once identifiers: an empty value may be set,
// an equal value is a no-op, anything else is a conflict.
func checkAssign(kind hierarchy.Kind, id int64, current, next string) error {
	if next == "" {
		return errors.Errorf("%s %d: refusing to clear external id", kind, id)
	}
	if current != "" && current != next {
		return hierarchy.AlreadyAssigned(kind, id, current)
	}
	return nil
}

func duplicate(kind hierarchy.Kind, id int64, externalID string) error {
	return errors.Wrapf(hierarchy.ErrDuplicateExternalID, "%s %d: %q", kind, id, externalID)
}

func unsupportedKind(kind hierarchy.Kind) error {
	return errors.Errorf("unsupported entity kind %q", kind)
}
