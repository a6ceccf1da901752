package services

import (
	"context"
	stderrors "errors"

	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/extid/modules/extid/domain/hierarchy"
)

var ErrBackfillUnsupported = errors.New("store cannot list unallocated entities")

type BackfillReport struct {
	Kind      hierarchy.Kind `json:"kind"`
	Total     int            `json:"total"`
	Allocated int            `json:"allocated"`
	Existing  int            `json:"existing"`
	Skipped   int            `json:"skipped"`
	Failed    int            `json:"failed"`

	// Skips lists skipped entities with their reason.
	Skips []SkippedEntity `json:"skips,omitempty"`
}

type SkippedEntity struct {
	ID     int64  `json:"id"`
	Reason string `json:"reason"`
}

// Backfill allocates identifiers for every entity of kind that lacks one.
// Entities are processed in ascending id order so that siblings are numbered
// in creation order. Per-entity failures do not stop the run; they are joined
// into the returned error.
func (a *Allocator) Backfill(ctx context.Context, kind hierarchy.Kind) (BackfillReport, error) {
	report := BackfillReport{Kind: kind}
	lister, ok := a.repo.(hierarchy.UnallocatedLister)
	if !ok {
		return report, ErrBackfillUnsupported
	}
	ids, err := lister.ListUnallocated(ctx, kind)
	if err != nil {
		return report, errors.Wrapf(err, "list unallocated %s", kind)
	}
	report.Total = len(ids)

	var errs []error
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		res, err := a.AllocateExternalID(ctx, kind, id)
		if err != nil {
			report.Failed++
			errs = append(errs, errors.Wrapf(err, "%s", hierarchy.Ref{Kind: kind, ID: id}))
			continue
		}
		switch res.Outcome {
		case OutcomeAllocated:
			report.Allocated++
		case OutcomeExisting:
			report.Existing++
		case OutcomeSkipped:
			report.Skipped++
			report.Skips = append(report.Skips, SkippedEntity{ID: id, Reason: res.Reason.Error()})
		}
	}

	a.logWithFields(ctx, logrus.InfoLevel, "extid.backfill_done", logrus.Fields{
		"kind":      string(kind),
		"total":     report.Total,
		"allocated": report.Allocated,
		"existing":  report.Existing,
		"skipped":   report.Skipped,
		"failed":    report.Failed,
	})
	return report, stderrors.Join(errs...)
}
