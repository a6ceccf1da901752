package hierarchy

import "github.com/go-faster/errors"

var (
	ErrNotFound            = errors.New("entity not found")
	ErrAlreadyAssigned     = errors.New("external id already assigned")
	ErrDuplicateExternalID = errors.New("external id already used by another entity")
)

func NotFound(kind Kind, id int64) error {
	return errors.Wrapf(ErrNotFound, "%s %d", kind, id)
}

func AlreadyAssigned(kind Kind, id int64, current string) error {
	return errors.Wrapf(ErrAlreadyAssigned, "%s %d has %q", kind, id, current)
}
