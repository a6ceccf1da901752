package hierarchy

import "context"

// Repository is the read/write surface over the organizational tree. Lookups
// of unknown ids return an error wrapping ErrNotFound. Save methods persist
// only the external identifier and must reject overwriting a different
// non-empty value with ErrAlreadyAssigned.
type Repository interface {
	GetOffice(ctx context.Context, id int64) (Office, error)
	GetOfficeChildren(ctx context.Context, parentID int64) ([]Office, error)
	SaveOffice(ctx context.Context, office Office) error

	GetGroup(ctx context.Context, id int64) (Group, error)
	GetGroupsByParent(ctx context.Context, parentID int64) ([]Group, error)
	GetCentersByOffice(ctx context.Context, officeID int64) ([]Group, error)
	SaveGroup(ctx context.Context, group Group) error

	GetClient(ctx context.Context, id int64) (Client, error)
	GetClientsByGroup(ctx context.Context, groupID int64) ([]Client, error)
	SaveClient(ctx context.Context, client Client) error
}

// UnallocatedLister is implemented by stores that can enumerate entities
// still lacking an external identifier, in ascending id order.
type UnallocatedLister interface {
	ListUnallocated(ctx context.Context, kind Kind) ([]int64, error)
}
