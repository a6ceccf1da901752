package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/iota-uz/extid/modules/extid/domain/hierarchy"
)

// Scope is the unit of mutual exclusion for allocation: all children of one
// parent at one level. ParentID is the office id for offices and centers, the
// parent group id for groups and the group id for clients.
type Scope struct {
	Kind     hierarchy.Kind
	ParentID int64
}

func (s Scope) String() string {
	return fmt.Sprintf("%s:%d", s.Kind, s.ParentID)
}

// Guard serializes allocations that share a Scope. Acquire blocks until the
// scope is free or ctx is done; the returned release must be called exactly
// once.
type Guard interface {
	Acquire(ctx context.Context, scope Scope) (func(), error)
}

var _ Guard = (*LocalGuard)(nil)

// LocalGuard is an in-process Guard. It only protects allocators sharing the
// same instance.
type LocalGuard struct {
	mu    sync.Mutex
	slots map[Scope]*localSlot
}

type localSlot struct {
	sem  chan struct{}
	refs int
}

func NewLocalGuard() *LocalGuard {
	return &LocalGuard{slots: make(map[Scope]*localSlot)}
}

func (g *LocalGuard) Acquire(ctx context.Context, scope Scope) (func(), error) {
	slot := g.ref(scope)
	select {
	case slot.sem <- struct{}{}:
	case <-ctx.Done():
		g.unref(scope)
		return nil, ctx.Err()
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			<-slot.sem
			g.unref(scope)
		})
	}, nil
}

func (g *LocalGuard) ref(scope Scope) *localSlot {
	g.mu.Lock()
	defer g.mu.Unlock()
	slot, ok := g.slots[scope]
	if !ok {
		slot = &localSlot{sem: make(chan struct{}, 1)}
		g.slots[scope] = slot
	}
	slot.refs++
	return slot
}

func (g *LocalGuard) unref(scope Scope) {
	g.mu.Lock()
	defer g.mu.Unlock()
	slot, ok := g.slots[scope]
	if !ok {
		return
	}
	slot.refs--
	if slot.refs == 0 {
		delete(g.slots, scope)
	}
}
