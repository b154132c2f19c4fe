package rbac

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-crm/internal/platform/httpx"
)

// AccessHandler serves the resolver state as JSON.
type AccessHandler struct {
	logger *slog.Logger
	rbac   Middleware
	wait   time.Duration
}

// NewAccessHandler builds an AccessHandler. wait bounds how long a decision
// request waits for a pending fetch.
func NewAccessHandler(logger *slog.Logger, rbac Middleware, wait time.Duration) *AccessHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AccessHandler{logger: logger, rbac: rbac, wait: wait}
}

// MountRoutes registers access routes.
func (h *AccessHandler) MountRoutes(r chi.Router) {
	r.Use(h.rbac.Require)
	r.Get("/", h.snapshot)
	r.Get("/check", h.check)
	r.Post("/refresh", h.refresh)
}

type checkResponse struct {
	Route   string `json:"route"`
	Allowed bool   `json:"allowed"`
	Role    Role   `json:"role"`
}

func (h *AccessHandler) snapshot(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, ResolverFromContext(r.Context()).Snapshot())
}

func (h *AccessHandler) check(w http.ResponseWriter, r *http.Request) {
	route := r.URL.Query().Get("route")
	if route == "" {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	resolver := ResolverFromContext(r.Context())
	ctx, cancel := context.WithTimeout(r.Context(), h.wait)
	defer cancel()
	if err := resolver.Wait(ctx); err != nil {
		w.Header().Set("Retry-After", "1")
		httpx.Problem(w, http.StatusServiceUnavailable, "Permissions Pending", "permissions are still loading")
		return
	}
	snap := resolver.Snapshot()
	httpx.JSON(w, http.StatusOK, checkResponse{
		Route:   NormalizeRoute(route),
		Allowed: resolver.HasPageAccess(route),
		Role:    snap.Role,
	})
}

func (h *AccessHandler) refresh(w http.ResponseWriter, r *http.Request) {
	resolver := ResolverFromContext(r.Context())
	if err := resolver.Refresh(r.Context()); err != nil {
		if errors.Is(err, ErrResolverRetired) {
			w.Header().Set("Retry-After", "1")
			httpx.Problem(w, http.StatusServiceUnavailable, "Permissions Pending", "session permissions were reset")
			return
		}
		h.logger.Warn("rbac refresh interrupted", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, resolver.Snapshot())
}
