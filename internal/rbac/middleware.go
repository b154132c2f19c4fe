package rbac

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/odyssey-erp/odyssey-crm/internal/identity"
	"github.com/odyssey-erp/odyssey-crm/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-crm/internal/shared"
)

type resolverContextKey struct{}

// ContextWithResolver stores r in ctx.
func ContextWithResolver(ctx context.Context, r *Resolver) context.Context {
	return context.WithValue(ctx, resolverContextKey{}, r)
}

// ResolverFromContext returns the Resolver placed by Middleware.Require.
func ResolverFromContext(ctx context.Context) *Resolver {
	r, _ := ctx.Value(resolverContextKey{}).(*Resolver)
	return r
}

// Middleware attaches the session's Resolver to API requests.
type Middleware struct {
	Registry *Registry
	Identity identity.Source
	Logger   *slog.Logger
}

// Require rejects anonymous requests with 401 and requests whose identity is
// still unresolved with 503.
func (m Middleware) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		state := m.Identity.Current(r)
		if state.Loading {
			w.Header().Set("Retry-After", "1")
			httpx.Problem(w, http.StatusServiceUnavailable, "Identity Pending", "session store unavailable")
			return
		}
		if state.User == nil {
			httpx.RespondError(w, httpx.ErrUnauthorized)
			return
		}
		sess := shared.SessionFromContext(r.Context())
		if sess == nil {
			if m.Logger != nil {
				m.Logger.Error("rbac require: session missing for authenticated identity")
			}
			httpx.RespondError(w, httpx.ErrUnauthorized)
			return
		}
		resolver := m.Registry.Acquire(r.Context(), sess.ID, state.User)
		next.ServeHTTP(w, r.WithContext(ContextWithResolver(r.Context(), resolver)))
	})
}
