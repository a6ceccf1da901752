package persistence

import (
	"context"
	"slices"
	"sync"

	"github.com/iota-uz/extid/modules/extid/domain/hierarchy"
)

// MemoryRepository keeps the tree in process memory. It is safe for
// concurrent use and enforces the same write rules as the SQL stores:
// identifiers are write-once and unique per table.
type MemoryRepository struct {
	mu      sync.RWMutex
	offices map[int64]hierarchy.Office
	groups  map[int64]hierarchy.Group
	clients map[int64]hierarchy.Client
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		offices: make(map[int64]hierarchy.Office),
		groups:  make(map[int64]hierarchy.Group),
		clients: make(map[int64]hierarchy.Client),
	}
}

// PutOffice inserts or replaces an office without any write checks. It is
// meant for seeding.
func (r *MemoryRepository) PutOffice(o hierarchy.Office) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.offices[o.ID] = cloneOffice(o)
}

func (r *MemoryRepository) PutGroup(g hierarchy.Group) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.groups[g.ID] = cloneGroup(g)
}

func (r *MemoryRepository) PutClient(c hierarchy.Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c.ID] = cloneClient(c)
}

func (r *MemoryRepository) GetOffice(_ context.Context, id int64) (hierarchy.Office, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.offices[id]
	if !ok {
		return hierarchy.Office{}, hierarchy.NotFound(hierarchy.KindOffice, id)
	}
	return cloneOffice(o), nil
}

func (r *MemoryRepository) GetOfficeChildren(_ context.Context, parentID int64) ([]hierarchy.Office, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]hierarchy.Office, 0)
	for _, o := range r.offices {
		if o.ParentID != nil && *o.ParentID == parentID {
			out = append(out, cloneOffice(o))
		}
	}
	slices.SortFunc(out, func(a, b hierarchy.Office) int { return cmpID(a.ID, b.ID) })
	return out, nil
}

func (r *MemoryRepository) SaveOffice(_ context.Context, office hierarchy.Office) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.offices[office.ID]
	if !ok {
		return hierarchy.NotFound(hierarchy.KindOffice, office.ID)
	}
	if err := checkAssign(hierarchy.KindOffice, office.ID, cur.ExternalID, office.ExternalID); err != nil {
		return err
	}
	for id, o := range r.offices {
		if id != office.ID && office.ExternalID != "" && o.ExternalID == office.ExternalID {
			return duplicate(hierarchy.KindOffice, office.ID, office.ExternalID)
		}
	}
	cur.ExternalID = office.ExternalID
	r.offices[office.ID] = cur
	return nil
}

func (r *MemoryRepository) GetGroup(_ context.Context, id int64) (hierarchy.Group, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.groups[id]
	if !ok {
		return hierarchy.Group{}, hierarchy.NotFound(hierarchy.KindGroup, id)
	}
	return cloneGroup(g), nil
}

func (r *MemoryRepository) GetGroupsByParent(_ context.Context, parentID int64) ([]hierarchy.Group, error) {
	return r.filterGroups(func(g hierarchy.Group) bool {
		return g.ParentID != nil && *g.ParentID == parentID
	}), nil
}

func (r *MemoryRepository) GetCentersByOffice(_ context.Context, officeID int64) ([]hierarchy.Group, error) {
	return r.filterGroups(func(g hierarchy.Group) bool {
		return g.IsCenter && g.OfficeID == officeID
	}), nil
}

func (r *MemoryRepository) filterGroups(keep func(hierarchy.Group) bool) []hierarchy.Group {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]hierarchy.Group, 0)
	for _, g := range r.groups {
		if keep(g) {
			out = append(out, cloneGroup(g))
		}
	}
	slices.SortFunc(out, func(a, b hierarchy.Group) int { return cmpID(a.ID, b.ID) })
	return out
}

func (r *MemoryRepository) SaveGroup(_ context.Context, group hierarchy.Group) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.groups[group.ID]
	if !ok {
		return hierarchy.NotFound(group.Kind(), group.ID)
	}
	if err := checkAssign(cur.Kind(), group.ID, cur.ExternalID, group.ExternalID); err != nil {
		return err
	}
	for id, g := range r.groups {
		if id != group.ID && group.ExternalID != "" && g.ExternalID == group.ExternalID {
			return duplicate(cur.Kind(), group.ID, group.ExternalID)
		}
	}
	cur.ExternalID = group.ExternalID
	r.groups[group.ID] = cur
	return nil
}

func (r *MemoryRepository) GetClient(_ context.Context, id int64) (hierarchy.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[id]
	if !ok {
		return hierarchy.Client{}, hierarchy.NotFound(hierarchy.KindClient, id)
	}
	return cloneClient(c), nil
}

func (r *MemoryRepository) GetClientsByGroup(_ context.Context, groupID int64) ([]hierarchy.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]hierarchy.Client, 0)
	for _, c := range r.clients {
		if slices.Contains(c.GroupIDs, groupID) {
			out = append(out, cloneClient(c))
		}
	}
	slices.SortFunc(out, func(a, b hierarchy.Client) int { return cmpID(a.ID, b.ID) })
	return out, nil
}

func (r *MemoryRepository) SaveClient(_ context.Context, client hierarchy.Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.clients[client.ID]
	if !ok {
		return hierarchy.NotFound(hierarchy.KindClient, client.ID)
	}
	if err := checkAssign(hierarchy.KindClient, client.ID, cur.ExternalID, client.ExternalID); err != nil {
		return err
	}
	for id, c := range r.clients {
		if id != client.ID && client.ExternalID != "" && c.ExternalID == client.ExternalID {
			return duplicate(hierarchy.KindClient, client.ID, client.ExternalID)
		}
	}
	cur.ExternalID = client.ExternalID
	r.clients[client.ID] = cur
	return nil
}

// ListUnallocated returns ids lacking an identifier. Parentless offices are
// never candidates.
func (r *MemoryRepository) ListUnallocated(_ context.Context, kind hierarchy.Kind) ([]int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ids []int64
	switch kind {
	case hierarchy.KindOffice:
		for id, o := range r.offices {
			if o.ExternalID == "" && o.ParentID != nil {
				ids = append(ids, id)
			}
		}
	case hierarchy.KindCenter, hierarchy.KindGroup:
		for id, g := range r.groups {
			if g.ExternalID == "" && g.Kind() == kind {
				ids = append(ids, id)
			}
		}
	case hierarchy.KindClient:
		for id, c := range r.clients {
			if c.ExternalID == "" {
				ids = append(ids, id)
			}
		}
	default:
		return nil, unsupportedKind(kind)
	}
	slices.Sort(ids)
	return ids, nil
}

func cloneOffice(o hierarchy.Office) hierarchy.Office {
	if o.ParentID != nil {
		p := *o.ParentID
		o.ParentID = &p
	}
	return o
}

func cloneGroup(g hierarchy.Group) hierarchy.Group {
	if g.ParentID != nil {
		p := *g.ParentID
		g.ParentID = &p
	}
	return g
}

func cloneClient(c hierarchy.Client) hierarchy.Client {
	c.GroupIDs = slices.Clone(c.GroupIDs)
	return c
}

func cmpID(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
