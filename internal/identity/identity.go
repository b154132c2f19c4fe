// Package identity exposes the authenticated user of a request.
package identity

import (
	"net/http"

	"github.com/odyssey-erp/odyssey-crm/internal/shared"
)

// Identity is the authenticated user handle.
type Identity struct {
	ID    string
	Email string
}

// State is what an identity source reports for a request. User is nil when
// anonymous; Loading is true while identity could not yet be resolved.
type State struct {
	User    *Identity
	Loading bool
}

// Authenticated reports whether a user is present and resolution finished.
func (s State) Authenticated() bool {
	return !s.Loading && s.User != nil
}

// Source resolves the identity of the current request.
type Source interface {
	Current(r *http.Request) State
}

// SessionSource reads the identity from the request session.
type SessionSource struct{}

// Current implements Source.
func (SessionSource) Current(r *http.Request) State {
	ctx := r.Context()
	if shared.SessionErrorFromContext(ctx) != nil {
		return State{Loading: true}
	}
	sess := shared.SessionFromContext(ctx)
	if sess == nil || sess.User() == "" {
		return State{}
	}
	return State{User: &Identity{ID: sess.User(), Email: sess.Email()}}
}

// SourceFunc adapts a function to Source.
type SourceFunc func(r *http.Request) State

// Current implements Source.
func (f SourceFunc) Current(r *http.Request) State {
	return f(r)
}
