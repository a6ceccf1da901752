package services

import (
	"context"

	"github.com/iota-uz/extid/modules/extid/domain/hierarchy"
)

func (a *Allocator) allocateCenter(ctx context.Context, id int64, depth int) (Result, error) {
	ref := hierarchy.Ref{Kind: hierarchy.KindCenter, ID: id}
	center, err := a.repo.GetGroup(ctx, id)
	if err != nil {
		return Result{}, err
	}
	if center.ExternalID != "" {
		return existing(ref, center.ExternalID), nil
	}
	if !center.IsCenter {
		return skipped(ref, ErrNotCenter), nil
	}
	if center.OfficeID == 0 {
		return skipped(ref, ErrMissingParent), nil
	}
	officeID := center.OfficeID

	var prefix string
	if officeID == a.opts.RootOfficeID {
		// The root office is never allocated; whatever it stores (usually
		// nothing) is the prefix.
		root, err := a.repo.GetOffice(ctx, officeID)
		if err != nil {
			return Result{}, err
		}
		prefix = root.ExternalID
	} else {
		office, err := a.allocate(ctx, hierarchy.KindOffice, officeID, depth+1)
		if err != nil {
			return Result{}, err
		}
		if office.Skipped() {
			return skipped(ref, unresolved(office)), nil
		}
		prefix = office.ExternalID
	}

	return a.assign(ctx, slot{
		ref:     ref,
		scope:   Scope{Kind: hierarchy.KindCenter, ParentID: officeID},
		prefix:  prefix,
		width:   CenterWidth,
		current: a.rereadGroup(id, &center),
		siblings: func(ctx context.Context) ([]string, error) {
			centers, err := a.repo.GetCentersByOffice(ctx, officeID)
			if err != nil {
				return nil, err
			}
			return externalIDs(centers, groupExternalID), nil
		},
		save: a.saveGroup(&center),
	})
}

// allocateGroup numbers a plain group under its parent, which is either an
// already numbered group or a center that can be numbered on demand.
func (a *Allocator) allocateGroup(ctx context.Context, id int64, depth int) (Result, error) {
	ref := hierarchy.Ref{Kind: hierarchy.KindGroup, ID: id}
	group, err := a.repo.GetGroup(ctx, id)
	if err != nil {
		return Result{}, err
	}
	if group.ExternalID != "" {
		return existing(ref, group.ExternalID), nil
	}
	if group.IsCenter {
		return skipped(ref, ErrNotGroup), nil
	}
	if group.ParentID == nil {
		return skipped(ref, ErrMissingParent), nil
	}
	parentID := *group.ParentID

	parent, err := a.repo.GetGroup(ctx, parentID)
	if err != nil {
		return Result{}, err
	}
	prefix := parent.ExternalID
	if prefix == "" {
		if !parent.IsCenter {
			return skipped(ref, ErrParentNotCenter), nil
		}
		res, err := a.allocate(ctx, hierarchy.KindCenter, parentID, depth+1)
		if err != nil {
			return Result{}, err
		}
		if res.Skipped() {
			return skipped(ref, unresolved(res)), nil
		}
		prefix = res.ExternalID
	}

	return a.assign(ctx, slot{
		ref:     ref,
		scope:   Scope{Kind: hierarchy.KindGroup, ParentID: parentID},
		prefix:  prefix,
		width:   GroupWidth,
		current: a.rereadGroup(id, &group),
		siblings: func(ctx context.Context) ([]string, error) {
			groups, err := a.repo.GetGroupsByParent(ctx, parentID)
			if err != nil {
				return nil, err
			}
			return externalIDs(groups, groupExternalID), nil
		},
		save: a.saveGroup(&group),
	})
}

func (a *Allocator) rereadGroup(id int64, dst *hierarchy.Group) func(context.Context) (string, error) {
	return func(ctx context.Context) (string, error) {
		g, err := a.repo.GetGroup(ctx, id)
		if err != nil {
			return "", err
		}
		*dst = g
		return g.ExternalID, nil
	}
}

func (a *Allocator) saveGroup(g *hierarchy.Group) func(context.Context, string) error {
	return func(ctx context.Context, externalID string) error {
		g.ExternalID = externalID
		return a.repo.SaveGroup(ctx, *g)
	}
}

func groupExternalID(g hierarchy.Group) string { return g.ExternalID }
