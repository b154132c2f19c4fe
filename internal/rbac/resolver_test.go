package rbac

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-crm/internal/identity"
)

func newTestResolver(store Store) *Resolver {
	return NewResolver(store, ResolverOptions{FetchTimeout: 2 * time.Second})
}

func newMeteredResolver(store Store) (*Resolver, *Metrics) {
	metrics := NewMetrics(prometheus.NewRegistry())
	return NewResolver(store, ResolverOptions{FetchTimeout: 2 * time.Second, Metrics: metrics}), metrics
}

func waitResolved(t *testing.T, r *Resolver) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, r.Wait(ctx))
}

func TestResolverFetchesOncePerIdentity(t *testing.T) {
	store := newStubStore(settingsAdminOnly())
	store.setRole("u1", RoleAdmin)
	r := newTestResolver(store)
	user := &identity.Identity{ID: "u1"}

	r.SetIdentity(context.Background(), user)
	r.SetIdentity(context.Background(), user)
	waitResolved(t, r)
	r.SetIdentity(context.Background(), user)
	waitResolved(t, r)

	snap := r.Snapshot()
	assert.True(t, snap.Fetched)
	assert.False(t, snap.Loading)
	assert.Equal(t, RoleAdmin, snap.Role)
	assert.True(t, snap.IsAdmin)
	assert.False(t, snap.IsManager)
	assert.Len(t, snap.Permissions, 1)
	assert.EqualValues(t, 1, store.roleCalls.Load())
	assert.EqualValues(t, 1, store.listCalls.Load())
}

func TestResolverRefetchesForNewIdentity(t *testing.T) {
	store := newStubStore()
	store.setRole("u1", RoleAdmin)
	store.setRole("u2", RoleManager)
	r := newTestResolver(store)

	r.SetIdentity(context.Background(), &identity.Identity{ID: "u1"})
	waitResolved(t, r)
	r.SetIdentity(context.Background(), &identity.Identity{ID: "u2"})
	waitResolved(t, r)

	assert.Equal(t, RoleManager, r.Snapshot().Role)
	assert.EqualValues(t, 2, store.roleCalls.Load())
}

func TestResolverResetsWhenIdentityCleared(t *testing.T) {
	store := newStubStore(settingsAdminOnly())
	store.setRole("u1", RoleManager)
	r := newTestResolver(store)
	r.SetIdentity(context.Background(), &identity.Identity{ID: "u1"})
	waitResolved(t, r)

	r.SetIdentity(context.Background(), nil)

	snap := r.Snapshot()
	assert.Equal(t, RoleUser, snap.Role)
	assert.Empty(t, snap.Permissions)
	assert.False(t, snap.Loading)
	assert.False(t, snap.Fetched)
	assert.True(t, r.HasPageAccess("/settings"), "reset state falls back to the default policy")
}

func TestResolverRefreshAlwaysFetches(t *testing.T) {
	store := newStubStore()
	store.setRole("u1", RoleUser)
	r := newTestResolver(store)
	r.SetIdentity(context.Background(), &identity.Identity{ID: "u1"})
	waitResolved(t, r)
	require.True(t, r.Snapshot().Fetched)

	store.setRole("u1", RoleManager)
	require.NoError(t, r.Refresh(context.Background()))

	assert.Equal(t, RoleManager, r.Snapshot().Role)
	assert.EqualValues(t, 2, store.roleCalls.Load())
	assert.EqualValues(t, 2, store.listCalls.Load())
}

func TestResolverRefreshWithoutIdentityIsNoop(t *testing.T) {
	store := newStubStore()
	r := newTestResolver(store)
	require.NoError(t, r.Refresh(context.Background()))
	assert.EqualValues(t, 0, store.roleCalls.Load())
}

func TestResolverRoleFailureDefaultsToUser(t *testing.T) {
	store := newStubStore(settingsAdminOnly())
	store.roleErr = errStoreDown
	r := newTestResolver(store)
	r.SetIdentity(context.Background(), &identity.Identity{ID: "u1"})
	waitResolved(t, r)

	snap := r.Snapshot()
	assert.Equal(t, RoleUser, snap.Role)
	assert.True(t, snap.Fetched)
	assert.Len(t, snap.Permissions, 1, "permission listing is independent of the role lookup")
	assert.False(t, r.HasPageAccess("/settings"))
}

func TestResolverPermissionFailureClearsPermissions(t *testing.T) {
	store := newStubStore(settingsAdminOnly())
	store.setRole("u1", RoleManager)
	store.permsErr = errStoreDown
	r := newTestResolver(store)
	r.SetIdentity(context.Background(), &identity.Identity{ID: "u1"})
	waitResolved(t, r)

	snap := r.Snapshot()
	assert.Equal(t, RoleManager, snap.Role)
	assert.NotNil(t, snap.Permissions)
	assert.Empty(t, snap.Permissions)
	assert.True(t, snap.Fetched)
}

func TestResolverEmptyRoleDefaultsToUser(t *testing.T) {
	store := newStubStore()
	r := newTestResolver(store)
	r.SetIdentity(context.Background(), &identity.Identity{ID: "nobody"})
	waitResolved(t, r)
	assert.Equal(t, RoleUser, r.Snapshot().Role)
}

func TestResolverStorePanicIsContained(t *testing.T) {
	store := newStubStore(settingsAdminOnly())
	store.rolePanic = true
	r := newTestResolver(store)
	r.SetIdentity(context.Background(), &identity.Identity{ID: "u1"})
	waitResolved(t, r)

	snap := r.Snapshot()
	assert.Equal(t, RoleUser, snap.Role)
	assert.True(t, snap.Fetched)
	assert.False(t, snap.Loading)
}

func TestResolverLoadingWhileFetchPending(t *testing.T) {
	store := newStubStore()
	store.setRole("u1", RoleAdmin)
	gate := store.holdRoles()
	r := newTestResolver(store)
	r.SetIdentity(context.Background(), &identity.Identity{ID: "u1"})

	snap := r.Snapshot()
	assert.True(t, snap.Loading)
	assert.False(t, snap.Fetched)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, r.Wait(ctx), context.DeadlineExceeded)

	close(gate)
	waitResolved(t, r)
	assert.Equal(t, RoleAdmin, r.Snapshot().Role)
}

func TestResolverDropsResultForReplacedIdentity(t *testing.T) {
	store := newStubStore()
	store.setRole("a", RoleAdmin)
	store.setRole("b", RoleUser)
	gate := store.holdRoles()
	r, metrics := newMeteredResolver(store)

	r.SetIdentity(context.Background(), &identity.Identity{ID: "a"})
	assert.Eventually(t, func() bool { return store.roleCalls.Load() == 1 }, time.Second, time.Millisecond)
	store.releaseRoles()
	r.SetIdentity(context.Background(), &identity.Identity{ID: "b"})
	waitResolved(t, r)

	// Let the fetch for "a" finish after "b" has committed.
	close(gate)
	assert.Eventually(t, func() bool { return testutil.ToFloat64(metrics.stale) == 1 }, time.Second, 5*time.Millisecond)

	snap := r.Snapshot()
	assert.Equal(t, RoleUser, snap.Role, "late result for a previous identity must not leak")
	assert.False(t, snap.IsAdmin)
}

func TestResolverRefreshDuringPendingFetchKeepsLatest(t *testing.T) {
	store := newStubStore()
	store.setRole("u1", RoleUser)
	gate := store.holdRoles()
	r, metrics := newMeteredResolver(store)
	r.SetIdentity(context.Background(), &identity.Identity{ID: "u1"})
	assert.Eventually(t, func() bool { return store.roleCalls.Load() == 1 }, time.Second, time.Millisecond)

	store.releaseRoles()
	store.setRole("u1", RoleManager)
	require.NoError(t, r.Refresh(context.Background()))
	assert.Equal(t, RoleManager, r.Snapshot().Role)

	close(gate)
	assert.Eventually(t, func() bool { return testutil.ToFloat64(metrics.stale) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, RoleManager, r.Snapshot().Role, "older dispatch must not overwrite the refresh")
	assert.False(t, r.Snapshot().Loading)
}

func TestResolverInvalidateDuringPendingFetchRefetches(t *testing.T) {
	store := newStubStore(settingsAdminOnly())
	store.setRole("u1", RoleUser)
	gate := store.holdRoles()
	r := newTestResolver(store)
	user := &identity.Identity{ID: "u1"}

	r.SetIdentity(context.Background(), user)
	assert.Eventually(t, func() bool { return store.roleCalls.Load() == 1 }, time.Second, time.Millisecond)

	store.setRole("u1", RoleAdmin)
	r.Invalidate()
	store.releaseRoles()
	close(gate)

	waitResolved(t, r)
	r.SetIdentity(context.Background(), user)
	waitResolved(t, r)

	snap := r.Snapshot()
	assert.Equal(t, RoleAdmin, snap.Role, "invalidation during a fetch must not be lost")
	assert.True(t, r.HasPageAccess("/settings"))
	assert.EqualValues(t, 2, store.roleCalls.Load())
}

func TestResolverFetchSurvivesCanceledRequest(t *testing.T) {
	store := newStubStore()
	store.setRole("u1", RoleManager)
	r := newTestResolver(store)
	ctx, cancel := context.WithCancel(context.Background())
	r.SetIdentity(ctx, &identity.Identity{ID: "u1"})
	cancel()
	waitResolved(t, r)
	assert.Equal(t, RoleManager, r.Snapshot().Role)
}

func TestResolverDenyPolicy(t *testing.T) {
	r := NewResolver(newStubStore(), ResolverOptions{Policy: PolicyDeny})
	r.SetIdentity(context.Background(), &identity.Identity{ID: "u1"})
	waitResolved(t, r)
	assert.False(t, r.HasPageAccess("/contacts"))
	assert.Equal(t, PolicyDeny, r.Policy())
}
