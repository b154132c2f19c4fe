package rbac

import "strings"

// LandingRoute is where "/" resolves to.
const LandingRoute = "/dashboard"

// NormalizeRoute maps "/" to the landing route and strips one trailing slash.
func NormalizeRoute(route string) string {
	if route == "/" {
		return LandingRoute
	}
	return strings.TrimSuffix(route, "/")
}

// FindPermission returns the first record matching the normalized route.
func FindPermission(perms []PagePermission, route string) (PagePermission, bool) {
	route = NormalizeRoute(route)
	for _, p := range perms {
		if p.Route == route {
			return p, true
		}
	}
	return PagePermission{}, false
}

// Decide reports whether role may open route. Routes without a record fall
// back to policy.
func Decide(perms []PagePermission, role Role, route string, policy Policy) bool {
	p, ok := FindPermission(perms, route)
	if !ok {
		return policy != PolicyDeny
	}
	return p.Grants(role)
}
