// Package service holds the scheduling, execution, scoping and analytics
// engines. Every operation takes the acting user explicitly; nothing reads
// tenant or branch context from ambient state.
package service

import (
	"context"
	"sync"
	"time"

	"maintenance-service/internal/model"
	"maintenance-service/internal/repository"
)

// ScopeResolver computes the set of branches an actor may operate on.
// Super admins and tenant admins are unrestricted within their tenant; all
// other roles see exactly their assigned branches, and an empty assignment
// set means zero visibility.
type ScopeResolver struct {
	store repository.Store
	ttl   time.Duration
	now   func() time.Time

	mu    sync.Mutex
	cache map[uint]scopeEntry
}

type scopeEntry struct {
	scope   model.AccessScope
	expires time.Time
}

// NewScopeResolver creates a resolver whose branch-set lookups are cached
// for ttl. The cache is invalidated on every branch (re)assignment; the TTL
// is a backstop, not the invalidation mechanism.
func NewScopeResolver(store repository.Store, ttl time.Duration) *ScopeResolver {
	return &ScopeResolver{
		store: store,
		ttl:   ttl,
		now:   time.Now,
		cache: map[uint]scopeEntry{},
	}
}

// Resolve returns the actor's access scope
func (r *ScopeResolver) Resolve(ctx context.Context, actor model.Actor) (model.AccessScope, error) {
	if actor.Unrestricted() {
		return model.AccessScope{Unrestricted: true}, nil
	}

	r.mu.Lock()
	entry, ok := r.cache[actor.UserID]
	r.mu.Unlock()
	if ok && r.now().Before(entry.expires) {
		return entry.scope, nil
	}

	ids, err := r.store.Branches().BranchIDsForUser(ctx, actor.TenantID, actor.UserID)
	if err != nil {
		return model.AccessScope{}, err
	}
	scope := model.AccessScope{BranchIDs: ids}

	r.mu.Lock()
	r.cache[actor.UserID] = scopeEntry{scope: scope, expires: r.now().Add(r.ttl)}
	r.mu.Unlock()

	return scope, nil
}

// CanAccessBranch reports whether the actor may operate on the given branch.
// Unrestricted actors are still confined to branches of their own tenant.
func (r *ScopeResolver) CanAccessBranch(ctx context.Context, actor model.Actor, branchID uint) (bool, error) {
	scope, err := r.Resolve(ctx, actor)
	if err != nil {
		return false, err
	}
	if scope.Unrestricted {
		return r.store.Branches().BelongsToTenant(ctx, branchID, actor.TenantID)
	}
	return scope.Covers(branchID), nil
}

// Invalidate drops the cached branch set for a user. Called whenever the
// user's branch assignments change.
func (r *ScopeResolver) Invalidate(userID uint) {
	r.mu.Lock()
	delete(r.cache, userID)
	r.mu.Unlock()
}
