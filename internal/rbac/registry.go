package rbac

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/odyssey-erp/odyssey-crm/internal/identity"
)

// Registry owns one Resolver per session. Entries are created on first use
// and retired when dropped or evicted. A lookup renews the entry's ttl.
type Registry struct {
	mu        sync.Mutex
	resolvers *expirable.LRU[string, *Resolver]
	build     func() *Resolver
}

// NewRegistry returns a Registry holding at most size resolvers for ttl.
func NewRegistry(size int, ttl time.Duration, build func() *Resolver) *Registry {
	if size <= 0 {
		size = 1024
	}
	onEvict := func(_ string, r *Resolver) {
		r.retire()
	}
	return &Registry{
		resolvers: expirable.NewLRU[string, *Resolver](size, onEvict, ttl),
		build:     build,
	}
}

// For returns the session's Resolver, creating it when absent.
func (g *Registry) For(sessionID string) *Resolver {
	g.mu.Lock()
	defer g.mu.Unlock()
	if r, ok := g.resolvers.Get(sessionID); ok {
		// Re-adding a live key only moves its expiry forward.
		g.resolvers.Add(sessionID, r)
		return r
	}
	r := g.build()
	g.resolvers.Add(sessionID, r)
	return r
}

// Acquire returns the session's Resolver after reporting user to it.
func (g *Registry) Acquire(ctx context.Context, sessionID string, user *identity.Identity) *Resolver {
	r := g.For(sessionID)
	r.SetIdentity(ctx, user)
	return r
}

// Drop retires and forgets the session's Resolver.
func (g *Registry) Drop(sessionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resolvers.Remove(sessionID)
}

// InvalidateAll marks every live resolver as outdated.
func (g *Registry) InvalidateAll() {
	for _, r := range g.resolvers.Values() {
		r.Invalidate()
	}
}

// Len reports the number of live resolvers.
func (g *Registry) Len() int {
	return g.resolvers.Len()
}
