package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-crm/internal/identity"
)

// ErrResolverRetired is returned by a Resolver whose session was dropped or
// evicted from its Registry. A retired Resolver denies every route.
var ErrResolverRetired = errors.New("rbac: resolver retired")

// ResolverOptions tunes a Resolver.
type ResolverOptions struct {
	Policy       Policy
	FetchTimeout time.Duration
	Logger       *slog.Logger
	Metrics      *Metrics
}

// Resolver holds the role and page permissions of one session's identity.
//
// A fetch is dispatched at most once per identity unless Refresh forces
// another. Every fetch carries a generation number; results from a fetch
// that is no longer the latest for the current identity are dropped.
type Resolver struct {
	store   Store
	policy  Policy
	timeout time.Duration
	logger  *slog.Logger
	metrics *Metrics

	mu          sync.Mutex
	userID      string
	role        Role
	permissions []PagePermission
	loading     bool
	fetched     bool
	stale       bool
	retired     bool
	generation  uint64
	done        chan struct{}
}

// NewResolver builds a Resolver in its reset state.
func NewResolver(store Store, opts ResolverOptions) *Resolver {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	policy := opts.Policy
	if policy == "" {
		policy = PolicyAllow
	}
	return &Resolver{
		store:   store,
		policy:  policy,
		timeout: opts.FetchTimeout,
		logger:  logger,
		metrics: opts.Metrics,
		role:    RoleUser,
	}
}

// SetIdentity reports the current identity. A nil user resets the state; a
// new user id starts a fetch in the background.
func (r *Resolver) SetIdentity(ctx context.Context, user *identity.Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.retired {
		return
	}
	if user == nil {
		r.resetLocked()
		return
	}
	if user.ID != r.userID {
		r.resetLocked()
		r.userID = user.ID
	}
	if r.fetched || r.loading {
		return
	}
	r.dispatchLocked(ctx)
}

// Refresh forces one more fetch for the current identity and waits for the
// result to be committed.
func (r *Resolver) Refresh(ctx context.Context) error {
	r.mu.Lock()
	if r.retired {
		r.mu.Unlock()
		return ErrResolverRetired
	}
	if r.userID == "" {
		r.resetLocked()
		r.mu.Unlock()
		return nil
	}
	r.fetched = false
	r.dispatchLocked(WithoutCache(ctx))
	r.mu.Unlock()
	return r.Wait(ctx)
}

// Invalidate marks the committed result as outdated so the next
// SetIdentity for the same user fetches again. The current role and
// permissions stay in effect until that fetch commits. A fetch already in
// flight may have read the outdated rows, so its result is discarded and
// another fetch is dispatched in its place.
func (r *Resolver) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loading {
		r.stale = true
		return
	}
	r.fetched = false
}

// Wait blocks until no fetch is pending or ctx is done. It returns
// ErrResolverRetired once the Resolver has been retired.
func (r *Resolver) Wait(ctx context.Context) error {
	for {
		r.mu.Lock()
		if r.retired {
			r.mu.Unlock()
			return ErrResolverRetired
		}
		if !r.loading {
			r.mu.Unlock()
			return nil
		}
		done := r.done
		r.mu.Unlock()

		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Snapshot copies the current state.
func (r *Resolver) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	perms := make([]PagePermission, len(r.permissions))
	copy(perms, r.permissions)
	return Snapshot{
		Role:        r.role,
		IsAdmin:     r.role == RoleAdmin,
		IsManager:   r.role == RoleManager,
		Permissions: perms,
		Loading:     r.loading,
		Fetched:     r.fetched,
		Retired:     r.retired,
	}
}

// HasPageAccess decides route against the current role and permissions.
// A retired Resolver grants nothing.
func (r *Resolver) HasPageAccess(route string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.retired {
		return false
	}
	return Decide(r.permissions, r.role, route, r.policy)
}

// Policy returns the policy applied to unlisted routes.
func (r *Resolver) Policy() Policy {
	return r.policy
}

// Retired reports whether the Resolver left its Registry.
func (r *Resolver) Retired() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.retired
}

// retire moves the Resolver into its terminal state. Callers still holding
// it are released from Wait with ErrResolverRetired and any late fetch
// result is dropped.
func (r *Resolver) retire() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resetLocked()
	r.retired = true
}

func (r *Resolver) resetLocked() {
	r.userID = ""
	r.role = RoleUser
	r.permissions = nil
	r.fetched = false
	r.stale = false
	r.loading = false
	r.generation++
	r.releaseLocked()
}

func (r *Resolver) releaseLocked() {
	if r.done != nil {
		close(r.done)
		r.done = nil
	}
}

func (r *Resolver) dispatchLocked(ctx context.Context) {
	r.generation++
	r.loading = true
	r.stale = false
	if r.done == nil {
		r.done = make(chan struct{})
	}
	go r.fetch(context.WithoutCancel(ctx), r.generation, r.userID)
}

func (r *Resolver) fetch(ctx context.Context, generation uint64, userID string) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	start := time.Now()
	logger := r.logger.With(slog.String("user_id", userID))

	role := RoleUser
	var perms []PagePermission
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("rbac fetch aborted", slog.Any("panic", rec))
			role, perms = RoleUser, nil
		}
		r.metrics.observeFetch(time.Since(start))
		r.commit(generation, userID, role, perms)
	}()

	var g errgroup.Group
	g.Go(func() error {
		stored, err := guard(func() (Role, error) { return r.store.ResolveRole(ctx, userID) })
		if err != nil {
			logger.Warn("resolve role", slog.String("op", "resolve_role"), slog.Any("error", err))
			r.metrics.recordCall("resolve_role", err)
			return nil
		}
		r.metrics.recordCall("resolve_role", nil)
		role = ParseRole(string(stored))
		return nil
	})
	g.Go(func() error {
		listed, err := guard(func() ([]PagePermission, error) { return r.store.ListPagePermissions(ctx) })
		if err != nil {
			logger.Warn("list page permissions", slog.String("op", "list_page_permissions"), slog.Any("error", err))
			r.metrics.recordCall("list_page_permissions", err)
			return nil
		}
		r.metrics.recordCall("list_page_permissions", nil)
		perms = listed
		return nil
	})
	_ = g.Wait()
}

func (r *Resolver) commit(generation uint64, userID string, role Role, perms []PagePermission) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if generation != r.generation || userID != r.userID {
		r.metrics.recordStale()
		r.logger.Debug("rbac drop stale result", slog.String("user_id", userID), slog.Uint64("generation", generation))
		return
	}
	if r.stale {
		r.metrics.recordStale()
		r.logger.Debug("rbac refetch after invalidation", slog.String("user_id", userID))
		r.dispatchLocked(context.Background())
		return
	}
	if perms == nil {
		perms = []PagePermission{}
	}
	r.role = role
	r.permissions = perms
	r.fetched = true
	r.loading = false
	r.releaseLocked()
}

// guard turns a panic inside a store call into an error for that call only.
func guard[T any](call func() (T, error)) (out T, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("rbac: store panic: %v", rec)
		}
	}()
	return call()
}
