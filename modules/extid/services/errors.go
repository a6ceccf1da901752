package services

import "github.com/go-faster/errors"

// Skip reasons. An allocation that ends with one of these returns a Result
// with OutcomeSkipped and a nil error.
var (
	ErrMissingParent       = errors.New("node has no parent to anchor against")
	ErrAmbiguousMembership = errors.New("client must belong to exactly one group")
	ErrNotCenter           = errors.New("group is not a center")
	ErrNotGroup            = errors.New("group is a center")
	ErrParentNotCenter     = errors.New("unallocated parent is not a center")
	ErrParentUnresolved    = errors.New("parent identifier could not be resolved")
	ErrNonNumericParent    = errors.New("parent identifier is not numeric")
)

// Hard failures, escalated to the caller.
var (
	ErrOverflow        = errors.New("suffix exceeds padding width")
	ErrLockTimeout     = errors.New("timed out waiting for allocation scope")
	ErrHierarchyCycle  = errors.New("hierarchy chain is too deep or cyclic")
	ErrUnsupportedKind = errors.New("unsupported entity kind")
)
