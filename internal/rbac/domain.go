package rbac

import (
	"github.com/google/uuid"
)

// Role is the access tier of a user. Values outside the known set are kept
// as-is and decide like RoleUser.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleUser    Role = "user"
)

// ParseRole adopts a stored role value unchanged, defaulting to RoleUser
// when empty. " admin " is not RoleAdmin.
func ParseRole(raw string) Role {
	if raw == "" {
		return RoleUser
	}
	return Role(raw)
}

// PagePermission grants a route per role.
type PagePermission struct {
	ID            uuid.UUID `json:"id" db:"id"`
	PageName      string    `json:"page_name" db:"page_name"`
	Route         string    `json:"route" db:"route"`
	AdminAccess   bool      `json:"admin_access" db:"admin_access"`
	ManagerAccess bool      `json:"manager_access" db:"manager_access"`
	UserAccess    bool      `json:"user_access" db:"user_access"`
}

// Grants returns the access flag that applies to role.
func (p PagePermission) Grants(role Role) bool {
	switch role {
	case RoleAdmin:
		return p.AdminAccess
	case RoleManager:
		return p.ManagerAccess
	default:
		return p.UserAccess
	}
}

// Policy decides routes that have no PagePermission record.
type Policy string

const (
	// PolicyAllow opens unlisted routes to every role.
	PolicyAllow Policy = "allow"
	// PolicyDeny closes unlisted routes to every role.
	PolicyDeny Policy = "deny"
)

// Snapshot is a point-in-time copy of a Resolver's state.
type Snapshot struct {
	Role        Role             `json:"role"`
	IsAdmin     bool             `json:"is_admin"`
	IsManager   bool             `json:"is_manager"`
	Permissions []PagePermission `json:"permissions"`
	Loading     bool             `json:"loading"`
	Fetched     bool             `json:"fetched"`
	Retired     bool             `json:"retired,omitempty"`
}
