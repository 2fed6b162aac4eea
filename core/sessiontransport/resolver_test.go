package sessiontransport_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/extsession/core/cookie"
	"github.com/dmitrymomot/extsession/core/sessiontransport"
)

func newCookieResolver(t *testing.T) *sessiontransport.CookieResolver {
	t.Helper()
	serializer, err := cookie.New(cookie.DefaultConfig())
	require.NoError(t, err)
	return sessiontransport.NewCookie(serializer)
}

func TestCookieResolver(t *testing.T) {
	t.Parallel()

	res := newCookieResolver(t)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, res.ResolveSessionIDs(r))

	require.NoError(t, res.SetSessionID(w, r, "sid-1"))

	next := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range w.Result().Cookies() {
		next.AddCookie(c)
	}
	assert.Equal(t, []string{"sid-1"}, res.ResolveSessionIDs(next))

	w = httptest.NewRecorder()
	require.NoError(t, res.ExpireSession(w, next))
	c, ok := cookie.Find(w.Header(), cookie.DefaultName)
	require.True(t, ok)
	assert.Empty(t, c.Value)
	assert.Negative(t, c.MaxAge)
}

func TestHeaderResolver(t *testing.T) {
	t.Parallel()

	res := sessiontransport.XAuthToken()

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, res.ResolveSessionIDs(r))

	r.Header.Set("X-Auth-Token", " sid-1 ")
	assert.Equal(t, []string{"sid-1"}, res.ResolveSessionIDs(r))

	w := httptest.NewRecorder()
	require.NoError(t, res.SetSessionID(w, r, "sid-2"))
	assert.Equal(t, "sid-2", w.Header().Get("X-Auth-Token"))

	require.NoError(t, res.ExpireSession(w, r))
	assert.Equal(t, []string{""}, w.Header().Values("X-Auth-Token"))

	info := sessiontransport.AuthenticationInfo()
	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authentication-Info", "sid-3")
	assert.Equal(t, []string{"sid-3"}, info.ResolveSessionIDs(r))
}

func TestComposite(t *testing.T) {
	t.Parallel()

	chain := sessiontransport.Composite{newCookieResolver(t), sessiontransport.XAuthToken()}

	t.Run("falls back to the next resolver", func(t *testing.T) {
		t.Parallel()

		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("X-Auth-Token", "from-header")
		assert.Equal(t, []string{"from-header"}, chain.ResolveSessionIDs(r))
	})

	t.Run("writes through all resolvers", func(t *testing.T) {
		t.Parallel()

		w := httptest.NewRecorder()
		require.NoError(t, chain.SetSessionID(w, httptest.NewRequest(http.MethodGet, "/", nil), "sid"))
		assert.Equal(t, "sid", w.Header().Get("X-Auth-Token"))
		_, ok := cookie.Find(w.Header(), cookie.DefaultName)
		assert.True(t, ok)
	})
}

func TestNewFromConfig(t *testing.T) {
	t.Parallel()

	serializer, err := cookie.New(cookie.DefaultConfig())
	require.NoError(t, err)

	t.Run("single resolver", func(t *testing.T) {
		t.Parallel()

		res, err := sessiontransport.NewFromConfig(sessiontransport.DefaultConfig(), serializer)
		require.NoError(t, err)
		assert.IsType(t, &sessiontransport.CookieResolver{}, res)
	})

	t.Run("chain", func(t *testing.T) {
		t.Parallel()

		cfg := sessiontransport.DefaultConfig()
		cfg.Resolvers = "cookie, header, jwt"
		cfg.JWT.SecretKey = testSigningKey
		res, err := sessiontransport.NewFromConfig(cfg, serializer)
		require.NoError(t, err)
		chain, ok := res.(sessiontransport.Composite)
		require.True(t, ok)
		assert.Len(t, chain, 3)
	})

	t.Run("errors", func(t *testing.T) {
		t.Parallel()

		_, err := sessiontransport.NewFromConfig(sessiontransport.Config{Resolvers: "carrier-pigeon"}, serializer)
		require.ErrorIs(t, err, sessiontransport.ErrUnknownResolver)

		_, err = sessiontransport.NewFromConfig(sessiontransport.Config{Resolvers: " , "}, serializer)
		require.ErrorIs(t, err, sessiontransport.ErrNoResolvers)

		_, err = sessiontransport.NewFromConfig(sessiontransport.Config{Resolvers: "cookie"}, nil)
		require.ErrorIs(t, err, sessiontransport.ErrMissingSerializer)

		_, err = sessiontransport.NewFromConfig(sessiontransport.Config{Resolvers: "jwt"}, nil)
		require.ErrorIs(t, err, sessiontransport.ErrMissingSecret)
	})
}
