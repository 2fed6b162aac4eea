package sessiontransport_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/extsession/core/sessiontransport"
)

const testSigningKey = "test-secret-key-at-least-32-bytes-long"

func requestWithHeader(w *httptest.ResponseRecorder) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", w.Header().Get("Authorization"))
	return r
}

func TestJWTResolver_RoundTrip(t *testing.T) {
	t.Parallel()

	res, err := sessiontransport.NewJWT(testSigningKey, sessiontransport.WithJWTIssuer("tests"))
	require.NoError(t, err)

	w := httptest.NewRecorder()
	require.NoError(t, res.SetSessionID(w, httptest.NewRequest(http.MethodGet, "/", nil), "sid-1"))
	assert.Contains(t, w.Header().Get("Authorization"), "Bearer ")

	assert.Equal(t, []string{"sid-1"}, res.ResolveSessionIDs(requestWithHeader(w)))
}

func TestJWTResolver_Rejects(t *testing.T) {
	t.Parallel()

	res, err := sessiontransport.NewJWT(testSigningKey)
	require.NoError(t, err)

	t.Run("no header", func(t *testing.T) {
		t.Parallel()
		assert.Empty(t, res.ResolveSessionIDs(httptest.NewRequest(http.MethodGet, "/", nil)))
	})

	t.Run("wrong scheme", func(t *testing.T) {
		t.Parallel()
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", "Basic abc")
		assert.Empty(t, res.ResolveSessionIDs(r))
	})

	t.Run("garbage token", func(t *testing.T) {
		t.Parallel()
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", "Bearer not.a.jwt")
		assert.Empty(t, res.ResolveSessionIDs(r))
	})

	t.Run("other key", func(t *testing.T) {
		t.Parallel()

		other, err := sessiontransport.NewJWT("another-secret-key-at-least-32-bytes")
		require.NoError(t, err)
		w := httptest.NewRecorder()
		require.NoError(t, other.SetSessionID(w, httptest.NewRequest(http.MethodGet, "/", nil), "sid"))

		assert.Empty(t, res.ResolveSessionIDs(requestWithHeader(w)))
	})

	t.Run("expired token", func(t *testing.T) {
		t.Parallel()

		past := time.Now().Add(-time.Hour)
		old, err := sessiontransport.NewJWT(testSigningKey,
			sessiontransport.WithJWTTTL(time.Minute),
			sessiontransport.WithJWTClock(func() time.Time { return past }))
		require.NoError(t, err)
		w := httptest.NewRecorder()
		require.NoError(t, old.SetSessionID(w, httptest.NewRequest(http.MethodGet, "/", nil), "sid"))

		assert.Empty(t, res.ResolveSessionIDs(requestWithHeader(w)))
	})

	t.Run("issuer mismatch", func(t *testing.T) {
		t.Parallel()

		strict, err := sessiontransport.NewJWT(testSigningKey, sessiontransport.WithJWTIssuer("expected"))
		require.NoError(t, err)
		w := httptest.NewRecorder()
		require.NoError(t, res.SetSessionID(w, httptest.NewRequest(http.MethodGet, "/", nil), "sid"))

		assert.Empty(t, strict.ResolveSessionIDs(requestWithHeader(w)))
	})
}

func TestJWTResolver_NeedsRefresh(t *testing.T) {
	t.Parallel()

	issued := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	now := issued
	res, err := sessiontransport.NewJWT(testSigningKey,
		sessiontransport.WithJWTTTL(20*time.Minute),
		sessiontransport.WithJWTClock(func() time.Time { return now }))
	require.NoError(t, err)

	w := httptest.NewRecorder()
	require.NoError(t, res.SetSessionID(w, httptest.NewRequest(http.MethodGet, "/", nil), "sid-1"))
	r := requestWithHeader(w)

	assert.False(t, res.NeedsRefresh(r), "fresh token")

	now = issued.Add(9 * time.Minute)
	assert.False(t, res.NeedsRefresh(r), "more than half left")

	now = issued.Add(11 * time.Minute)
	assert.True(t, res.NeedsRefresh(r), "less than half left")

	now = issued.Add(21 * time.Minute)
	assert.False(t, res.NeedsRefresh(r), "expired token resolves nothing to refresh")

	assert.False(t, res.NeedsRefresh(httptest.NewRequest(http.MethodGet, "/", nil)), "no token")

	now = issued.Add(11 * time.Minute)
	composite := sessiontransport.Composite{sessiontransport.XAuthToken(), res}
	assert.True(t, composite.NeedsRefresh(r))
}

func TestJWTResolver_Revocation(t *testing.T) {
	t.Parallel()

	revoker := sessiontransport.NewMemoryRevoker(time.Hour)
	res, err := sessiontransport.NewJWT(testSigningKey, sessiontransport.WithJWTRevoker(revoker))
	require.NoError(t, err)

	w := httptest.NewRecorder()
	require.NoError(t, res.SetSessionID(w, httptest.NewRequest(http.MethodGet, "/", nil), "sid"))
	r := requestWithHeader(w)
	require.Equal(t, []string{"sid"}, res.ResolveSessionIDs(r))

	out := httptest.NewRecorder()
	out.Header().Set("Authorization", "stale")
	require.NoError(t, res.ExpireSession(out, r))
	assert.Empty(t, out.Header().Get("Authorization"))

	assert.Empty(t, res.ResolveSessionIDs(r), "revoked token is rejected")
}

func TestJWTResolver_CustomHeader(t *testing.T) {
	t.Parallel()

	res, err := sessiontransport.NewJWT(testSigningKey,
		sessiontransport.WithJWTHeaderName("X-Session"),
		sessiontransport.WithJWTBearerPrefix(false),
		sessiontransport.WithJWTAudience("api"))
	require.NoError(t, err)

	w := httptest.NewRecorder()
	require.NoError(t, res.SetSessionID(w, httptest.NewRequest(http.MethodGet, "/", nil), "sid"))
	token := w.Header().Get("X-Session")
	assert.NotContains(t, token, "Bearer")

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Session", token)
	assert.Equal(t, []string{"sid"}, res.ResolveSessionIDs(r))
}

func TestNewJWT_MissingSecret(t *testing.T) {
	t.Parallel()

	_, err := sessiontransport.NewJWT("")
	require.ErrorIs(t, err, sessiontransport.ErrMissingSecret)
}

func TestMemoryRevoker(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := sessiontransport.NewMemoryRevoker(time.Hour)

	revoked, err := r.IsRevoked(ctx, "jti")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, r.Revoke(ctx, "jti"))
	revoked, err = r.IsRevoked(ctx, "jti")
	require.NoError(t, err)
	assert.True(t, revoked)

	short := sessiontransport.NewMemoryRevoker(-time.Second)
	require.NoError(t, short.Revoke(ctx, "jti"))
	revoked, err = short.IsRevoked(ctx, "jti")
	require.NoError(t, err)
	assert.False(t, revoked, "retention elapsed")
}
