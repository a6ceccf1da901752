package services

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/iota-uz/extid/modules/extid/domain/hierarchy"
)

func (a *Allocator) allocateClient(ctx context.Context, id int64, depth int) (Result, error) {
	ref := hierarchy.Ref{Kind: hierarchy.KindClient, ID: id}
	client, err := a.repo.GetClient(ctx, id)
	if err != nil {
		return Result{}, err
	}
	if client.ExternalID != "" {
		return existing(ref, client.ExternalID), nil
	}
	if len(client.GroupIDs) != 1 {
		return skipped(ref, errors.Wrapf(ErrAmbiguousMembership, "client is in %d groups", len(client.GroupIDs))), nil
	}
	groupID := client.GroupIDs[0]

	group, err := a.repo.GetGroup(ctx, groupID)
	if err != nil {
		return Result{}, err
	}
	prefix := group.ExternalID
	if prefix == "" {
		res, err := a.allocate(ctx, group.Kind(), groupID, depth+1)
		if err != nil {
			return Result{}, err
		}
		if res.Skipped() {
			return skipped(ref, unresolved(res)), nil
		}
		prefix = res.ExternalID
	}

	return a.assign(ctx, slot{
		ref:    ref,
		scope:  Scope{Kind: hierarchy.KindClient, ParentID: groupID},
		prefix: prefix,
		width:  ClientWidth,
		current: func(ctx context.Context) (string, error) {
			c, err := a.repo.GetClient(ctx, id)
			if err != nil {
				return "", err
			}
			client = c
			return c.ExternalID, nil
		},
		siblings: func(ctx context.Context) ([]string, error) {
			clients, err := a.repo.GetClientsByGroup(ctx, groupID)
			if err != nil {
				return nil, err
			}
			return externalIDs(clients, func(c hierarchy.Client) string { return c.ExternalID }), nil
		},
		save: func(ctx context.Context, externalID string) error {
			client.ExternalID = externalID
			return a.repo.SaveClient(ctx, client)
		},
	})
}
