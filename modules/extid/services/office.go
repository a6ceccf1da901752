package services

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/iota-uz/extid/modules/extid/domain/hierarchy"
)

// allocateOffice numbers offices directly under the root with two digits and
// no prefix, and deeper (taluk) offices with three digits after the parent
// office's identifier.
func (a *Allocator) allocateOffice(ctx context.Context, id int64, depth int) (Result, error) {
	ref := hierarchy.Ref{Kind: hierarchy.KindOffice, ID: id}
	office, err := a.repo.GetOffice(ctx, id)
	if err != nil {
		return Result{}, err
	}
	if office.ExternalID != "" {
		return existing(ref, office.ExternalID), nil
	}
	if id == a.opts.RootOfficeID {
		return skipped(ref, errors.Wrap(ErrMissingParent, "root office")), nil
	}
	if office.ParentID == nil {
		return skipped(ref, ErrMissingParent), nil
	}
	parentID := *office.ParentID

	prefix, width := "", OfficeWidth
	if parentID != a.opts.RootOfficeID {
		parent, err := a.allocate(ctx, hierarchy.KindOffice, parentID, depth+1)
		if err != nil {
			return Result{}, err
		}
		if parent.Skipped() {
			return skipped(ref, unresolved(parent)), nil
		}
		prefix, width = parent.ExternalID, TalukOfficeWidth
	}

	return a.assign(ctx, slot{
		ref:    ref,
		scope:  Scope{Kind: hierarchy.KindOffice, ParentID: parentID},
		prefix: prefix,
		width:  width,
		current: func(ctx context.Context) (string, error) {
			o, err := a.repo.GetOffice(ctx, id)
			if err != nil {
				return "", err
			}
			office = o
			return o.ExternalID, nil
		},
		siblings: func(ctx context.Context) ([]string, error) {
			children, err := a.repo.GetOfficeChildren(ctx, parentID)
			if err != nil {
				return nil, err
			}
			return externalIDs(children, func(o hierarchy.Office) string { return o.ExternalID }), nil
		},
		save: func(ctx context.Context, externalID string) error {
			office.ExternalID = externalID
			return a.repo.SaveOffice(ctx, office)
		},
	})
}
