package shared

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*SessionManager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewSessionManager(client, "crm_session", "secret", time.Hour, false), mr
}

func commit(t *testing.T, sm *SessionManager, sess *Session) *http.Cookie {
	t.Helper()
	rr := httptest.NewRecorder()
	require.NoError(t, sm.Commit(context.Background(), rr, httptest.NewRequest(http.MethodGet, "/", nil), sess))
	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	return cookies[0]
}

func loadWith(t *testing.T, sm *SessionManager, cookie *http.Cookie) *Session {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	sess, err := sm.Load(context.Background(), req)
	require.NoError(t, err)
	return sess
}

func TestSessionRoundTrip(t *testing.T) {
	sm, _ := newTestManager(t)
	sess := loadWith(t, sm, nil)
	sess.SetUser("u1", "u1@crm.local")
	sess.AddFlash(FlashMessage{Kind: "success", Message: "hi"})
	cookie := commit(t, sm, sess)

	loaded := loadWith(t, sm, cookie)
	assert.Equal(t, sess.ID, loaded.ID)
	assert.Equal(t, "u1", loaded.User())
	assert.Equal(t, "u1@crm.local", loaded.Email())
	flash := loaded.PopFlash()
	require.NotNil(t, flash)
	assert.Equal(t, "hi", flash.Message)
	assert.Nil(t, loaded.PopFlash())
}

func TestSessionRejectsTamperedCookie(t *testing.T) {
	sm, _ := newTestManager(t)
	sess := loadWith(t, sm, nil)
	sess.SetUser("u1", "u1@crm.local")
	commit(t, sm, sess)

	for _, value := range []string{sess.ID, sess.ID + ".forged", "." + sess.ID} {
		loaded := loadWith(t, sm, &http.Cookie{Name: sm.CookieName(), Value: value})
		assert.NotEqual(t, sess.ID, loaded.ID, value)
		assert.Empty(t, loaded.User(), value)
	}
}

func TestSessionRenewDropsPreviousID(t *testing.T) {
	sm, mr := newTestManager(t)
	sess := loadWith(t, sm, nil)
	cookie := commit(t, sm, sess)
	oldID := sess.ID

	loaded := loadWith(t, sm, cookie)
	sm.Renew(loaded)
	commit(t, sm, loaded)

	assert.NotEqual(t, oldID, loaded.ID)
	assert.False(t, mr.Exists("crm:session:"+oldID))
	assert.True(t, mr.Exists("crm:session:"+loaded.ID))
}

func TestSessionDestroyClearsCookie(t *testing.T) {
	sm, mr := newTestManager(t)
	sess := loadWith(t, sm, nil)
	commit(t, sm, sess)

	sm.Destroy(sess)
	cookie := commit(t, sm, sess)
	assert.Negative(t, cookie.MaxAge)
	assert.False(t, mr.Exists("crm:session:"+sess.ID))
}

func TestSessionLoadSurfacesStoreErrors(t *testing.T) {
	sm, mr := newTestManager(t)
	sess := loadWith(t, sm, nil)
	cookie := commit(t, sm, sess)
	mr.Close()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	_, err := sm.Load(context.Background(), req)
	assert.Error(t, err)
}

func TestCSRFTokenBoundToSession(t *testing.T) {
	m := NewCSRFManager("csrf")
	sess := &Session{ID: "s1"}
	token, err := m.EnsureToken(context.Background(), sess)
	require.NoError(t, err)

	again, err := m.EnsureToken(context.Background(), sess)
	require.NoError(t, err)
	assert.Equal(t, token, again)

	assert.NoError(t, m.VerifyToken(context.Background(), sess, token))
	assert.ErrorIs(t, m.VerifyToken(context.Background(), sess, token+"x"), ErrCSRFTokenMismatch)
	assert.ErrorIs(t, m.VerifyToken(context.Background(), sess, ""), ErrCSRFTokenMissing)
	assert.ErrorIs(t, m.VerifyToken(context.Background(), &Session{ID: "s2"}, token), ErrCSRFTokenMissing)

	_, err = m.EnsureToken(context.Background(), nil)
	assert.ErrorIs(t, err, ErrSessionMissing)

	rotated, err := m.Rotate(context.Background(), sess)
	require.NoError(t, err)
	assert.NotEqual(t, token, rotated)
	assert.ErrorIs(t, m.VerifyToken(context.Background(), sess, token), ErrCSRFTokenMismatch)
	assert.NoError(t, m.VerifyToken(context.Background(), sess, rotated))
}
