package shell

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-crm/internal/rbac"
	"github.com/odyssey-erp/odyssey-crm/internal/shared"
	"github.com/odyssey-erp/odyssey-crm/internal/view"
)

const (
	// LoginPath is the anonymous-only login route.
	LoginPath = "/auth"
	// StickyHeaderTestPath is a public diagnostic page outside both guards.
	StickyHeaderTestPath = "/sticky-header-test"
	// RefreshPermissionsPath reloads the session's permissions.
	RefreshPermissionsPath = "/settings/permissions/refresh"
)

// Route maps a path to a lazily loaded page template.
type Route struct {
	Path   string
	Page   string
	Title  string
	Nav    bool
	Status int
	// Load supplies page data once access has been granted.
	Load func(r *http.Request, resolver *rbac.Resolver) (any, error)
}

// Routes is the guarded page table in sidebar order.
var Routes = []Route{
	{Path: "/dashboard", Page: "dashboard", Title: "Dashboard", Nav: true},
	{Path: "/accounts", Page: "accounts", Title: "Accounts", Nav: true},
	{Path: "/contacts", Page: "contacts", Title: "Contacts", Nav: true},
	{Path: "/leads", Page: "leads", Title: "Leads", Nav: true},
	{Path: "/meetings", Page: "meetings", Title: "Meetings", Nav: true},
	{Path: "/deals", Page: "deals", Title: "Deals", Nav: true},
	{Path: "/notifications", Page: "notifications", Title: "Notifications", Nav: true},
	{Path: "/tasks", Page: "tasks", Title: "Tasks", Nav: true},
	{Path: "/settings", Page: "settings", Title: "Settings", Nav: true, Load: loadSettings},
}

// NotFound renders unknown paths inside the frame.
var NotFound = Route{Path: "*", Page: "not-found", Title: "Not found", Status: http.StatusNotFound}

// LoginRoutes mounts the login and logout handlers. anonymous must wrap
// every route only visitors without an identity may use.
type LoginRoutes interface {
	MountRoutes(r chi.Router, anonymous func(http.Handler) http.Handler)
}

// Mount registers the page surface on r.
func Mount(r chi.Router, g *Guard, login LoginRoutes) {
	r.Get(StickyHeaderTestPath, g.stickyHeaderTest)
	r.Route(LoginPath, func(r chi.Router) {
		login.MountRoutes(r, g.RequireAnonymous)
	})
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, rbac.LandingRoute, http.StatusSeeOther)
	})
	for _, route := range Routes {
		r.Method(http.MethodGet, route.Path, g.Authorized(route))
	}
	r.With(g.RequireAccess("/settings")).Post(RefreshPermissionsPath, g.refreshPermissions)
	r.NotFound(g.Authorized(NotFound).ServeHTTP)
}

type settingsView struct {
	Permissions []rbac.PagePermission
	Policy      string
}

func loadSettings(_ *http.Request, resolver *rbac.Resolver) (any, error) {
	snap := resolver.Snapshot()
	return settingsView{Permissions: snap.Permissions, Policy: string(resolver.Policy())}, nil
}

func (g *Guard) refreshPermissions(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	resolver := rbac.ResolverFromContext(r.Context())
	if err := resolver.Refresh(r.Context()); err != nil {
		g.logger.Warn("refresh permissions", slog.String("session_id", sess.ID), slog.Any("error", err))
		sess.AddFlash(shared.FlashMessage{Kind: "error", Message: "Permissions are still reloading. Try again shortly."})
	} else {
		sess.AddFlash(shared.FlashMessage{Kind: "success", Message: "Permissions reloaded."})
	}
	http.Redirect(w, r, "/settings", http.StatusSeeOther)
}

func (g *Guard) stickyHeaderTest(w http.ResponseWriter, r *http.Request) {
	rows := make([]int, 60)
	for i := range rows {
		rows[i] = i + 1
	}
	data := view.TemplateData{Title: "Sticky header test", CurrentPath: r.URL.Path, Data: rows}
	if err := g.templates.RenderPage(r.Context(), w, http.StatusOK, "sticky-header-test", data); err != nil {
		g.logger.Error("render sticky header test", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}
