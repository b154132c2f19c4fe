package rbac

import (
	"context"
	"fmt"
)

// Store is the read side of the permission data.
type Store interface {
	// ResolveRole returns the stored role for userID, or "" when none exists.
	ResolveRole(ctx context.Context, userID string) (Role, error)
	// ListPagePermissions returns every page permission record.
	ListPagePermissions(ctx context.Context) ([]PagePermission, error)
}

// ServiceError reports a failed Store call.
type ServiceError struct {
	Op  string
	Err error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("rbac: %s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

type noCacheKey struct{}

// WithoutCache marks ctx so that caching stores read through to the source.
func WithoutCache(ctx context.Context) context.Context {
	return context.WithValue(ctx, noCacheKey{}, true)
}

func bypassCache(ctx context.Context) bool {
	v, _ := ctx.Value(noCacheKey{}).(bool)
	return v
}
