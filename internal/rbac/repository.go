package rbac

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore reads roles and page permissions from PostgreSQL.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore constructs a PGStore.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

const (
	queryResolveRole = `SELECT role FROM user_roles WHERE user_id = $1`

	queryListPagePermissions = `SELECT id, page_name, route, admin_access, manager_access, user_access
FROM page_permissions
ORDER BY route, id`
)

// ResolveRole implements Store.
func (s *PGStore) ResolveRole(ctx context.Context, userID string) (Role, error) {
	id, err := uuid.Parse(userID)
	if err != nil {
		return "", nil
	}
	var role string
	if err := s.pool.QueryRow(ctx, queryResolveRole, id).Scan(&role); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", &ServiceError{Op: "resolve role", Err: err}
	}
	return Role(role), nil
}

// ListPagePermissions implements Store.
func (s *PGStore) ListPagePermissions(ctx context.Context) ([]PagePermission, error) {
	rows, err := s.pool.Query(ctx, queryListPagePermissions)
	if err != nil {
		return nil, &ServiceError{Op: "list page permissions", Err: err}
	}
	perms, err := pgx.CollectRows(rows, pgx.RowToStructByName[PagePermission])
	if err != nil {
		return nil, &ServiceError{Op: "list page permissions", Err: err}
	}
	return perms, nil
}

var _ Store = (*PGStore)(nil)
