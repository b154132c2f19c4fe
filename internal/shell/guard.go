package shell

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/odyssey-erp/odyssey-crm/internal/identity"
	"github.com/odyssey-erp/odyssey-crm/internal/rbac"
	"github.com/odyssey-erp/odyssey-crm/internal/shared"
	"github.com/odyssey-erp/odyssey-crm/internal/view"
)

// DeniedMode selects what the authorized guard does with a denied route.
type DeniedMode string

const (
	// DeniedRender shows the not-authorized view inside the frame.
	DeniedRender DeniedMode = "render"
	// DeniedRedirect sends the user to the landing route with a flash.
	DeniedRedirect DeniedMode = "redirect"
)

var errAccessPending = errors.New("shell: permissions pending")

// Config wires a Guard.
type Config struct {
	Identity   identity.Source
	Registry   *rbac.Registry
	Templates  *view.Engine
	CSRF       *shared.CSRFManager
	Logger     *slog.Logger
	Metrics    *Metrics
	Observer   Observer
	DeniedMode DeniedMode
	// AccessWait bounds how long a navigation waits for a pending
	// permission fetch before answering with the access-pending view.
	AccessWait time.Duration
}

// Guard gates page routes on identity and page access.
type Guard struct {
	identity   identity.Source
	registry   *rbac.Registry
	templates  *view.Engine
	csrf       *shared.CSRFManager
	logger     *slog.Logger
	metrics    *Metrics
	observer   Observer
	deniedMode DeniedMode
	accessWait time.Duration
}

// NewGuard builds a Guard from cfg.
func NewGuard(cfg Config) *Guard {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	src := cfg.Identity
	if src == nil {
		src = identity.SessionSource{}
	}
	mode := cfg.DeniedMode
	if mode == "" {
		mode = DeniedRender
	}
	return &Guard{
		identity:   src,
		registry:   cfg.Registry,
		templates:  cfg.Templates,
		csrf:       cfg.CSRF,
		logger:     logger,
		metrics:    cfg.Metrics,
		observer:   cfg.Observer,
		deniedMode: mode,
		accessWait: cfg.AccessWait,
	}
}

// RequireAnonymous lets only visitors without an identity through. While
// identity is unresolved it answers with the wait page.
func (g *Guard) RequireAnonymous(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		state := g.identity.Current(r)
		if state.Loading {
			g.renderWait(w, r)
			return
		}
		if state.User != nil {
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Authorized serves route for users whose role may open it. The frame is
// written and flushed with a skeleton before the page template is loaded.
func (g *Guard) Authorized(route Route) http.Handler {
	pattern := route.Path
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g.observe(pattern, AuthPending)
		state := g.identity.Current(r)
		if state.Loading {
			g.renderWait(w, r)
			return
		}
		if state.User == nil {
			g.observe(pattern, LoginRedirect)
			http.Redirect(w, r, LoginPath, http.StatusSeeOther)
			return
		}
		sess := shared.SessionFromContext(r.Context())
		if sess == nil {
			g.logger.Error("shell guard: session missing for authenticated identity", slog.String("path", r.URL.Path))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}

		resolver := g.registry.Acquire(r.Context(), sess.ID, state.User)
		g.observe(pattern, AccessPending)
		if err := g.awaitAccess(r.Context(), resolver); err != nil {
			if r.Context().Err() != nil {
				return
			}
			g.renderAccessPending(w, r, g.templateData(r, sess, state.User, resolver, route.Title))
			return
		}

		if !resolver.HasPageAccess(r.URL.Path) {
			if resolver.Retired() {
				// Evicted mid-request; the next request gets a fresh resolver.
				g.renderAccessPending(w, r, g.templateData(r, sess, state.User, resolver, route.Title))
				return
			}
			g.observe(pattern, AccessDenied)
			g.deny(w, r, sess, state.User, resolver)
			return
		}
		g.renderContent(w, r, route, resolver, g.templateData(r, sess, state.User, resolver, route.Title))
	})
}

// RequireAccess guards a form action with the same checks as Authorized
// and exposes the session's Resolver through the request context.
func (g *Guard) RequireAccess(route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			state := g.identity.Current(r)
			if state.Loading {
				w.Header().Set("Retry-After", "1")
				http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
				return
			}
			sess := shared.SessionFromContext(r.Context())
			if state.User == nil || sess == nil {
				http.Redirect(w, r, LoginPath, http.StatusSeeOther)
				return
			}
			resolver := g.registry.Acquire(r.Context(), sess.ID, state.User)
			if err := g.awaitAccess(r.Context(), resolver); err != nil {
				w.Header().Set("Retry-After", "1")
				http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
				return
			}
			if !resolver.HasPageAccess(route) {
				if resolver.Retired() {
					w.Header().Set("Retry-After", "1")
					http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
					return
				}
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r.WithContext(rbac.ContextWithResolver(r.Context(), resolver)))
		})
	}
}

func (g *Guard) awaitAccess(ctx context.Context, resolver *rbac.Resolver) error {
	if g.accessWait <= 0 {
		snap := resolver.Snapshot()
		if snap.Retired {
			return rbac.ErrResolverRetired
		}
		if snap.Loading {
			return errAccessPending
		}
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, g.accessWait)
	defer cancel()
	return resolver.Wait(ctx)
}

func (g *Guard) deny(w http.ResponseWriter, r *http.Request, sess *shared.Session, user *identity.Identity, resolver *rbac.Resolver) {
	if g.deniedMode == DeniedRedirect && rbac.NormalizeRoute(r.URL.Path) != rbac.LandingRoute {
		sess.AddFlash(shared.FlashMessage{Kind: "error", Message: "You do not have access to that page."})
		http.Redirect(w, r, rbac.LandingRoute, http.StatusSeeOther)
		return
	}
	data := g.templateData(r, sess, user, resolver, "Not authorized")
	g.writeFrame(w, http.StatusForbidden, data, "partials/denied.html")
}

func (g *Guard) renderAccessPending(w http.ResponseWriter, r *http.Request, data view.TemplateData) {
	w.Header().Set("Refresh", "1")
	w.Header().Set("Cache-Control", "no-store")
	g.writeFrame(w, http.StatusOK, data, "partials/access_pending.html")
}

func (g *Guard) renderContent(w http.ResponseWriter, r *http.Request, route Route, resolver *rbac.Resolver, data view.TemplateData) {
	status := route.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := g.templates.Partial(w, "layouts/frame_open.html", data); err != nil {
		g.logger.Error("render frame", slog.Any("error", err))
		return
	}
	if err := g.templates.Partial(w, "partials/skeleton.html", data); err != nil {
		g.logger.Warn("render skeleton", slog.Any("error", err))
	}
	g.flush(w)
	g.observe(route.Path, ContentPending)

	page, err := g.templates.Load(r.Context(), route.Page)
	if err == nil && route.Load != nil {
		data.Data, err = route.Load(r, resolver)
	}
	switch {
	case err != nil:
		g.logger.Error("load page", slog.String("page", route.Page), slog.Any("error", err))
		_ = g.templates.Partial(w, "partials/content_error.html", data)
	default:
		if err := page.Execute(w, data); err != nil {
			g.logger.Error("render page", slog.String("page", route.Page), slog.Any("error", err))
		} else {
			g.observe(route.Path, ContentReady)
		}
	}
	_ = g.templates.Partial(w, "layouts/frame_close.html", data)
}

func (g *Guard) writeFrame(w http.ResponseWriter, status int, data view.TemplateData, partial string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	for _, name := range []string{"layouts/frame_open.html", partial, "layouts/frame_close.html"} {
		if err := g.templates.Partial(w, name, data); err != nil {
			g.logger.Error("render frame", slog.String("template", name), slog.Any("error", err))
			return
		}
	}
}

func (g *Guard) renderWait(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Retry-After", "1")
	w.Header().Set("Refresh", "1")
	w.Header().Set("Cache-Control", "no-store")
	if err := g.templates.RenderPage(r.Context(), w, http.StatusServiceUnavailable, "wait", view.TemplateData{Title: "Loading"}); err != nil {
		g.logger.Error("render wait", slog.Any("error", err))
	}
}

func (g *Guard) templateData(r *http.Request, sess *shared.Session, user *identity.Identity, resolver *rbac.Resolver, title string) view.TemplateData {
	token, err := g.csrf.EnsureToken(r.Context(), sess)
	if err != nil {
		g.logger.Warn("issue csrf token", slog.Any("error", err))
	}
	return view.TemplateData{
		Title:       title,
		CSRFToken:   token,
		Flash:       sess.PopFlash(),
		CurrentPath: r.URL.Path,
		UserEmail:   user.Email,
		Role:        string(resolver.Snapshot().Role),
		Nav:         navFor(r.URL.Path, resolver),
	}
}

func navFor(current string, resolver *rbac.Resolver) []view.NavItem {
	current = rbac.NormalizeRoute(current)
	items := make([]view.NavItem, 0, len(Routes))
	for _, route := range Routes {
		if !route.Nav || !resolver.HasPageAccess(route.Path) {
			continue
		}
		items = append(items, view.NavItem{Path: route.Path, Label: route.Title, Active: route.Path == current})
	}
	return items
}

func (g *Guard) flush(w http.ResponseWriter) {
	if err := http.NewResponseController(w).Flush(); err != nil {
		g.logger.Debug("flush frame", slog.Any("error", err))
	}
}

func (g *Guard) observe(route string, s State) {
	g.metrics.observe(route, s)
	if g.observer != nil {
		g.observer(route, s)
	}
}
