package services

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/iota-uz/extid/pkg/composables"
)

func (a *Allocator) logger(ctx context.Context) *logrus.Entry {
	if l, ok := composables.UseLogger(ctx); ok {
		return l
	}
	return a.opts.Logger
}

func (a *Allocator) logWithFields(ctx context.Context, level logrus.Level, msg string, fields logrus.Fields) {
	if rid, ok := composables.UseRequestID(ctx); ok {
		fields["request_id"] = rid
	}
	a.logger(ctx).WithFields(fields).Log(level, msg)
}

func (a *Allocator) logResult(ctx context.Context, res Result) {
	fields := logrus.Fields{
		"kind":      string(res.Kind),
		"entity_id": res.EntityID,
	}
	switch res.Outcome {
	case OutcomeAllocated:
		fields["external_id"] = res.ExternalID
		a.logWithFields(ctx, logrus.InfoLevel, "extid.allocated", fields)
	case OutcomeExisting:
		fields["external_id"] = res.ExternalID
		a.logWithFields(ctx, logrus.DebugLevel, "extid.existing", fields)
	case OutcomeSkipped:
		fields["reason"] = res.Reason.Error()
		a.logWithFields(ctx, logrus.WarnLevel, "extid.skipped", fields)
	}
}
