package rbac

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-crm/internal/identity"
	"github.com/odyssey-erp/odyssey-crm/internal/shared"
)

func newAccessRouter(store Store) http.Handler {
	reg := NewRegistry(8, time.Hour, func() *Resolver { return newTestResolver(store) })
	mw := Middleware{Registry: reg, Identity: identity.SessionSource{}}
	r := chi.NewRouter()
	r.Route("/api/access", NewAccessHandler(nil, mw, time.Second).MountRoutes)
	return r
}

func withUser(req *http.Request, sessionID, userID string) *http.Request {
	sess := &shared.Session{ID: sessionID}
	sess.SetUser(userID, userID+"@crm.local")
	return req.WithContext(shared.ContextWithSession(req.Context(), sess))
}

func TestAccessAPIRejectsAnonymous(t *testing.T) {
	router := newAccessRouter(newStubStore())
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/access/", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestAccessAPICheckDecidesRoute(t *testing.T) {
	store := newStubStore(settingsAdminOnly())
	store.setRole("u1", RoleManager)
	router := newAccessRouter(store)

	req := withUser(httptest.NewRequest(http.MethodGet, "/api/access/check?route=/settings/", nil), "s1", "u1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var body checkResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.Equal(t, "/settings", body.Route)
	assert.False(t, body.Allowed)
	assert.Equal(t, RoleManager, body.Role)
}

func TestAccessAPICheckRequiresRoute(t *testing.T) {
	router := newAccessRouter(newStubStore())
	req := withUser(httptest.NewRequest(http.MethodGet, "/api/access/check", nil), "s1", "u1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAccessAPIRefreshReturnsNewSnapshot(t *testing.T) {
	store := newStubStore()
	store.setRole("u1", RoleUser)
	router := newAccessRouter(store)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, withUser(httptest.NewRequest(http.MethodGet, "/api/access/check?route=/", nil), "s1", "u1"))
	require.Equal(t, http.StatusOK, rr.Code)

	store.setRole("u1", RoleAdmin)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, withUser(httptest.NewRequest(http.MethodPost, "/api/access/refresh", nil), "s1", "u1"))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var snap Snapshot
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&snap))
	assert.Equal(t, RoleAdmin, snap.Role)
	assert.True(t, snap.IsAdmin)
	assert.True(t, snap.Fetched)
	assert.EqualValues(t, 2, store.roleCalls.Load())
}
