package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeRoute(t *testing.T) {
	cases := map[string]string{
		"/":           "/dashboard",
		"/dashboard":  "/dashboard",
		"/dashboard/": "/dashboard",
		"/contacts/":  "/contacts",
		"/a/b/":       "/a/b",
		"":            "",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeRoute(in), "input %q", in)
	}
}

func TestDecideLandingAliasesAgree(t *testing.T) {
	perms := []PagePermission{{Route: "/dashboard", AdminAccess: true, ManagerAccess: true, UserAccess: false}}
	for _, role := range []Role{RoleAdmin, RoleManager, RoleUser} {
		root := Decide(perms, role, "/", PolicyAllow)
		assert.Equal(t, root, Decide(perms, role, "/dashboard", PolicyAllow), "role %s", role)
		assert.Equal(t, root, Decide(perms, role, "/dashboard/", PolicyAllow), "role %s", role)
	}
	assert.False(t, Decide(perms, RoleUser, "/", PolicyAllow))
}

func TestDecideUnlistedRouteAllowsEveryRole(t *testing.T) {
	perms := []PagePermission{settingsAdminOnly()}
	for _, role := range []Role{RoleAdmin, RoleManager, RoleUser, Role("intern")} {
		assert.True(t, Decide(perms, role, "/leads", PolicyAllow), "role %s", role)
	}
}

func TestDecideUnlistedRouteDeniedUnderDenyPolicy(t *testing.T) {
	assert.False(t, Decide(nil, RoleAdmin, "/leads", PolicyDeny))
	assert.True(t, Decide([]PagePermission{{Route: "/leads", AdminAccess: true}}, RoleAdmin, "/leads", PolicyDeny))
}

func TestDecideAdminOnlyRecord(t *testing.T) {
	perms := []PagePermission{settingsAdminOnly()}
	assert.True(t, Decide(perms, RoleAdmin, "/settings", PolicyAllow))
	assert.False(t, Decide(perms, RoleManager, "/settings", PolicyAllow))
	assert.False(t, Decide(perms, RoleUser, "/settings", PolicyAllow))
}

func TestDecideUnknownRoleActsAsUser(t *testing.T) {
	perms := []PagePermission{
		{Route: "/deals", AdminAccess: true, ManagerAccess: true, UserAccess: false},
		{Route: "/tasks", AdminAccess: false, ManagerAccess: false, UserAccess: true},
	}
	for _, garbage := range []Role{"superuser", "ADMIN", " ", "root"} {
		for _, route := range []string{"/deals", "/tasks", "/other"} {
			assert.Equal(t, Decide(perms, RoleUser, route, PolicyAllow), Decide(perms, garbage, route, PolicyAllow), "role %q route %s", garbage, route)
		}
	}
}

func TestDecideFirstMatchWins(t *testing.T) {
	perms := []PagePermission{
		{Route: "/leads", UserAccess: true},
		{Route: "/leads", UserAccess: false},
	}
	assert.True(t, Decide(perms, RoleUser, "/leads/", PolicyAllow))
}

func TestParseRole(t *testing.T) {
	assert.Equal(t, RoleUser, ParseRole(""))
	assert.Equal(t, RoleManager, ParseRole("manager"))
	assert.Equal(t, Role("owner"), ParseRole("owner"))
}

func TestParseRoleKeepsPaddedValueUnrecognized(t *testing.T) {
	role := ParseRole(" admin ")
	assert.Equal(t, Role(" admin "), role)
	assert.NotEqual(t, RoleAdmin, role)

	perms := []PagePermission{{Route: "/settings", AdminAccess: true}}
	assert.False(t, Decide(perms, role, "/settings", PolicyAllow), "padded admin decides like user")
}
