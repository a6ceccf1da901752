package services

import "github.com/iota-uz/extid/modules/extid/domain/hierarchy"

type Outcome string

const (
	OutcomeAllocated Outcome = "allocated"
	OutcomeExisting  Outcome = "existing"
	OutcomeSkipped   Outcome = "skipped"
)

// Result describes what AllocateExternalID did for one entity. Reason is set
// only for skipped results and wraps one of the skip sentinels.
type Result struct {
	Kind       hierarchy.Kind
	EntityID   int64
	ExternalID string
	Outcome    Outcome
	Reason     error
}

func (r Result) Skipped() bool { return r.Outcome == OutcomeSkipped }

func allocated(ref hierarchy.Ref, id string) Result {
	return Result{Kind: ref.Kind, EntityID: ref.ID, ExternalID: id, Outcome: OutcomeAllocated}
}

func existing(ref hierarchy.Ref, id string) Result {
	return Result{Kind: ref.Kind, EntityID: ref.ID, ExternalID: id, Outcome: OutcomeExisting}
}

func skipped(ref hierarchy.Ref, reason error) Result {
	return Result{Kind: ref.Kind, EntityID: ref.ID, Outcome: OutcomeSkipped, Reason: reason}
}
