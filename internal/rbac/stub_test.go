package rbac

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

var errStoreDown = errors.New("store down")

// stubStore counts calls and can hold them until released.
type stubStore struct {
	mu        sync.Mutex
	roles     map[string]Role
	perms     []PagePermission
	roleErr   error
	permsErr  error
	rolePanic bool
	roleGate  chan struct{}
	permsGate chan struct{}
	roleCalls atomic.Int32
	listCalls atomic.Int32
}

func newStubStore(perms ...PagePermission) *stubStore {
	return &stubStore{roles: map[string]Role{}, perms: perms}
}

func (s *stubStore) ResolveRole(ctx context.Context, userID string) (Role, error) {
	s.mu.Lock()
	gate, err, panics, role := s.roleGate, s.roleErr, s.rolePanic, s.roles[userID]
	s.mu.Unlock()
	s.roleCalls.Add(1)
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if panics {
		panic("role lookup exploded")
	}
	if err != nil {
		return "", &ServiceError{Op: "resolve role", Err: err}
	}
	return role, nil
}

func (s *stubStore) ListPagePermissions(ctx context.Context) ([]PagePermission, error) {
	s.listCalls.Add(1)
	s.mu.Lock()
	gate, err := s.permsGate, s.permsErr
	perms := append([]PagePermission(nil), s.perms...)
	s.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, &ServiceError{Op: "list page permissions", Err: err}
	}
	return perms, nil
}

func (s *stubStore) setRole(userID string, role Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roles[userID] = role
}

func (s *stubStore) holdRoles() chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roleGate = make(chan struct{})
	return s.roleGate
}

func (s *stubStore) releaseRoles() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roleGate = nil
}

func settingsAdminOnly() PagePermission {
	return PagePermission{PageName: "Settings", Route: "/settings", AdminAccess: true}
}
