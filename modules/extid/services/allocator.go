// Package services implements hierarchical external-identifier allocation for
// the office, center, group and client tree.
package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/iota-uz/extid/modules/extid/domain/hierarchy"
	"github.com/iota-uz/extid/pkg/composables"
	"github.com/iota-uz/extid/pkg/logging"
)

// Suffix widths per level.
const (
	OfficeWidth      = 2
	TalukOfficeWidth = 3
	CenterWidth      = 2
	GroupWidth       = 2
	ClientWidth      = 4
)

// maxChainDepth bounds recursive ancestor resolution.
const maxChainDepth = 32

var tracer = otel.Tracer("extid-allocator")

type Options struct {
	// RootOfficeID is the office anchoring the tree. It never receives an
	// identifier; its direct children use an empty prefix.
	RootOfficeID int64
	LockTimeout  time.Duration
	Guard        Guard
	Logger       *logrus.Entry
}

func (o *Options) setDefaults() {
	if o.RootOfficeID == 0 {
		o.RootOfficeID = 1
	}
	if o.LockTimeout == 0 {
		o.LockTimeout = 5 * time.Second
	}
	if o.Guard == nil {
		o.Guard = NewLocalGuard()
	}
	if o.Logger == nil {
		o.Logger = logging.Nop()
	}
}

type Allocator struct {
	repo hierarchy.Repository
	opts Options
}

func NewAllocator(repo hierarchy.Repository, opts Options) *Allocator {
	opts.setDefaults()
	return &Allocator{repo: repo, opts: opts}
}

// AllocateExternalID ensures the entity and all of its ancestors carry an
// external identifier. Entities that already have one are returned as
// OutcomeExisting without any write. Structural problems (missing parent,
// ambiguous membership) yield OutcomeSkipped with a nil error.
func (a *Allocator) AllocateExternalID(ctx context.Context, kind hierarchy.Kind, id int64) (Result, error) {
	ctx, span := tracer.Start(ctx, "extid.allocate", trace.WithAttributes(
		attribute.String("extid.kind", string(kind)),
		attribute.Int64("extid.entity_id", id),
	))
	defer span.End()

	res, err := a.allocate(ctx, kind, id, 0)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		recordAllocation(kind, "error")
		a.logWithFields(ctx, logrus.ErrorLevel, "extid.failed", logrus.Fields{
			"kind":      string(kind),
			"entity_id": id,
			"error":     err.Error(),
		})
		return Result{Kind: kind, EntityID: id}, err
	}
	span.SetAttributes(
		attribute.String("extid.outcome", string(res.Outcome)),
		attribute.String("extid.external_id", res.ExternalID),
	)
	return res, nil
}

// Trigger is the entry point for entity change notifications. Entity names
// match case-insensitively; unknown entities are ignored.
func (a *Allocator) Trigger(ctx context.Context, entity string, resourceID int64) error {
	kind, ok := hierarchy.ParseKind(entity)
	if !ok {
		a.logWithFields(ctx, logrus.DebugLevel, "extid.trigger_ignored", logrus.Fields{
			"entity":      strings.TrimSpace(entity),
			"resource_id": resourceID,
		})
		return nil
	}
	_, err := a.AllocateExternalID(ctx, kind, resourceID)
	return err
}

func (a *Allocator) allocate(ctx context.Context, kind hierarchy.Kind, id int64, depth int) (Result, error) {
	if depth > maxChainDepth {
		return Result{}, errors.Wrapf(ErrHierarchyCycle, "resolving %s", hierarchy.Ref{Kind: kind, ID: id})
	}
	var (
		res Result
		err error
	)
	switch kind {
	case hierarchy.KindOffice:
		res, err = a.allocateOffice(ctx, id, depth)
	case hierarchy.KindCenter:
		res, err = a.allocateCenter(ctx, id, depth)
	case hierarchy.KindGroup:
		res, err = a.allocateGroup(ctx, id, depth)
	case hierarchy.KindClient:
		res, err = a.allocateClient(ctx, id, depth)
	default:
		return Result{}, errors.Wrapf(ErrUnsupportedKind, "%q", kind)
	}
	if err != nil {
		return Result{}, err
	}
	recordAllocation(kind, string(res.Outcome))
	a.logResult(ctx, res)
	return res, nil
}

// unresolved turns a skipped ancestor result into the skip reason of its
// descendant.
func unresolved(parent Result) error {
	return &parentError{parent: hierarchy.Ref{Kind: parent.Kind, ID: parent.EntityID}, reason: parent.Reason}
}

// parentError reports an ancestor that could not be allocated. It matches
// ErrParentUnresolved and unwraps to the ancestor's own skip reason.
type parentError struct {
	parent hierarchy.Ref
	reason error
}

func (e *parentError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrParentUnresolved, e.parent, e.reason)
}

func (e *parentError) Is(target error) bool { return target == ErrParentUnresolved }

func (e *parentError) Unwrap() error { return e.reason }

// slot describes one pending allocation: where to look, how wide the suffix
// is, and how to read and persist the node under the scope lock.
type slot struct {
	ref      hierarchy.Ref
	scope    Scope
	prefix   string
	width    int
	current  func(ctx context.Context) (string, error)
	siblings func(ctx context.Context) ([]string, error)
	save     func(ctx context.Context, externalID string) error
}

func (a *Allocator) assign(ctx context.Context, s slot) (Result, error) {
	// Children of a non-numeric identifier would all share one baseline.
	if s.prefix != "" && !isDigits(s.prefix) {
		return skipped(s.ref, errors.Wrapf(ErrNonNumericParent, "prefix %q", s.prefix)), nil
	}

	release, err := a.acquire(ctx, s.scope)
	if err != nil {
		return Result{}, err
	}
	defer release()

	return inTx(ctx, func(ctx context.Context) (Result, error) {
		return a.assignLocked(ctx, s)
	})
}

// inTx runs fn in one database transaction when ctx carries a pool or an
// outer transaction. A transaction started here commits before the scope
// guard is released.
func inTx(ctx context.Context, fn func(context.Context) (Result, error)) (Result, error) {
	if _, err := composables.UseTx(ctx); err != nil {
		return fn(ctx)
	}
	return composables.InTxResult(ctx, fn)
}

func (a *Allocator) assignLocked(ctx context.Context, s slot) (Result, error) {
	cur, err := s.current(ctx)
	if err != nil {
		return Result{}, err
	}
	if cur != "" {
		return existing(s.ref, cur), nil
	}

	ids, err := s.siblings(ctx)
	if err != nil {
		return Result{}, errors.Wrapf(err, "list siblings of %s", s.ref)
	}
	baseline := Baseline(s.prefix, s.width)
	if mismatched := SuffixMismatches(ids, s.width, baseline); len(mismatched) > 0 {
		recordSiblingMismatches(s.ref.Kind, len(mismatched))
		a.logWithFields(ctx, logrus.WarnLevel, "extid.sibling_width_mismatch", logrus.Fields{
			"kind":      string(s.ref.Kind),
			"entity_id": s.ref.ID,
			"scope":     s.scope.String(),
			"expected":  len(baseline),
			"ignored":   mismatched,
		})
	}
	next, err := nextSuffix(MaxSuffix(ids, s.width, baseline), s.width)
	if err != nil {
		return Result{}, err
	}
	extID, err := Format(s.prefix, next, s.width)
	if err != nil {
		return Result{}, errors.Wrapf(err, "allocate %s", s.ref)
	}

	if err := s.save(ctx, extID); err != nil {
		if errors.Is(err, hierarchy.ErrAlreadyAssigned) {
			if cur, rerr := s.current(ctx); rerr == nil && cur != "" {
				return existing(s.ref, cur), nil
			}
		}
		return Result{}, errors.Wrapf(err, "save %s", s.ref)
	}
	return allocated(s.ref, extID), nil
}

func (a *Allocator) acquire(ctx context.Context, scope Scope) (func(), error) {
	lockCtx, cancel := context.WithTimeout(ctx, a.opts.LockTimeout)
	defer cancel()

	start := time.Now()
	release, err := a.opts.Guard.Acquire(lockCtx, scope)
	observeGuardWait(scope.Kind, time.Since(start))
	if err == nil {
		return release, nil
	}
	if ctx.Err() != nil {
		return nil, errors.Wrapf(ctx.Err(), "acquire %s", scope)
	}
	if lockCtx.Err() != nil {
		recordGuardTimeout(scope.Kind)
		return nil, errors.Wrapf(ErrLockTimeout, "%s after %s", scope, a.opts.LockTimeout)
	}
	return nil, errors.Wrapf(err, "acquire %s", scope)
}

func externalIDs[T any](items []T, get func(T) string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if v := get(it); v != "" {
			out = append(out, v)
		}
	}
	return out
}
