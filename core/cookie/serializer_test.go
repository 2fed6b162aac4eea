package cookie_test

import (
	"crypto/tls"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/extsession/core/cookie"
)

const testSecret = "test-secret-key-32-characters!!!"
const testSecret2 = "another-secret-key-32-chars!!!!!"

var fixedNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func newSerializer(t *testing.T, mutate func(*cookie.Config)) *cookie.Serializer {
	t.Helper()
	cfg := cookie.DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	s, err := cookie.New(cfg, cookie.WithClock(func() time.Time { return fixedNow }))
	require.NoError(t, err)
	return s
}

func requestWithCookies(t *testing.T, w *httptest.ResponseRecorder) *http.Request {
	t.Helper()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range w.Result().Cookies() {
		r.AddCookie(c)
	}
	return r
}

func TestSerializer_RoundTrip(t *testing.T) {
	t.Parallel()

	s := newSerializer(t, func(c *cookie.Config) {
		c.MaxAge = 1800
		c.Secure = "true"
	})

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	require.NoError(t, s.WriteCookieValue(w, r, "abc-123", -1))

	lines := w.Header().Values("Set-Cookie")
	require.Len(t, lines, 1)

	parsed, err := cookie.ParseSetCookie(lines[0])
	require.NoError(t, err)
	assert.Equal(t, "SESSION", parsed.Name)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("abc-123")), parsed.Value)
	assert.Equal(t, 1800, parsed.MaxAge)
	assert.Equal(t, "/", parsed.Path)
	assert.True(t, parsed.Secure)
	assert.True(t, parsed.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, parsed.SameSite)
	assert.True(t, fixedNow.Add(1800*time.Second).Equal(parsed.Expires))

	assert.Equal(t, []string{"abc-123"}, s.ReadCookieValues(requestWithCookies(t, w)))
}

func TestSerializer_Write(t *testing.T) {
	t.Parallel()

	t.Run("session cookie has no max age", func(t *testing.T) {
		t.Parallel()

		s := newSerializer(t, nil)
		w := httptest.NewRecorder()
		require.NoError(t, s.WriteCookieValue(w, httptest.NewRequest(http.MethodGet, "/", nil), "id", -1))

		line := w.Header().Get("Set-Cookie")
		assert.NotContains(t, line, "Max-Age")
		assert.NotContains(t, line, "Expires")
	})

	t.Run("clear", func(t *testing.T) {
		t.Parallel()

		s := newSerializer(t, nil)
		w := httptest.NewRecorder()
		require.NoError(t, s.WriteCookieValue(w, httptest.NewRequest(http.MethodGet, "/", nil), "", 0))

		line := w.Header().Get("Set-Cookie")
		assert.Contains(t, line, "SESSION=;")
		assert.Contains(t, line, "Max-Age=0")
		assert.Contains(t, line, "Expires=Thu, 01 Jan 1970 00:00:00 GMT")
	})

	t.Run("duplicate write is skipped", func(t *testing.T) {
		t.Parallel()

		s := newSerializer(t, nil)
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		require.NoError(t, s.WriteCookieValue(w, r, "id", -1))
		require.NoError(t, s.WriteCookieValue(w, r, "id", -1))
		require.NoError(t, s.WriteCookieValue(w, r, "other", -1))

		assert.Len(t, w.Header().Values("Set-Cookie"), 2)
	})

	t.Run("secure follows tls when auto", func(t *testing.T) {
		t.Parallel()

		s := newSerializer(t, nil)

		w := httptest.NewRecorder()
		require.NoError(t, s.WriteCookieValue(w, httptest.NewRequest(http.MethodGet, "/", nil), "id", -1))
		assert.NotContains(t, w.Header().Get("Set-Cookie"), "Secure")

		r := httptest.NewRequest(http.MethodGet, "https://example.com/", nil)
		r.TLS = &tls.ConnectionState{}
		w = httptest.NewRecorder()
		require.NoError(t, s.WriteCookieValue(w, r, "id", -1))
		assert.Contains(t, w.Header().Get("Set-Cookie"), "Secure")
	})

	t.Run("explicit insecure", func(t *testing.T) {
		t.Parallel()

		s := newSerializer(t, func(c *cookie.Config) { c.Secure = "false" })
		r := httptest.NewRequest(http.MethodGet, "https://example.com/", nil)
		r.TLS = &tls.ConnectionState{}
		w := httptest.NewRecorder()
		require.NoError(t, s.WriteCookieValue(w, r, "id", -1))
		assert.NotContains(t, w.Header().Get("Set-Cookie"), "Secure")
	})

	t.Run("remember me", func(t *testing.T) {
		t.Parallel()

		s := newSerializer(t, nil)
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r = r.WithContext(cookie.WithRememberMe(r.Context()))
		w := httptest.NewRecorder()
		require.NoError(t, s.WriteCookieValue(w, r, "id", -1))

		c, ok := cookie.Find(w.Header(), "SESSION")
		require.True(t, ok)
		assert.Equal(t, 2147483647, c.MaxAge)
	})

	t.Run("same site variants", func(t *testing.T) {
		t.Parallel()

		strict := newSerializer(t, func(c *cookie.Config) { c.SameSite = "Strict" })
		w := httptest.NewRecorder()
		require.NoError(t, strict.WriteCookieValue(w, httptest.NewRequest(http.MethodGet, "/", nil), "id", -1))
		assert.Contains(t, w.Header().Get("Set-Cookie"), "SameSite=Strict")

		none := newSerializer(t, func(c *cookie.Config) { c.SameSite = "" })
		w = httptest.NewRecorder()
		require.NoError(t, none.WriteCookieValue(w, httptest.NewRequest(http.MethodGet, "/", nil), "id", -1))
		assert.NotContains(t, w.Header().Get("Set-Cookie"), "SameSite")
	})

	t.Run("plain value without base64", func(t *testing.T) {
		t.Parallel()

		s := newSerializer(t, func(c *cookie.Config) { c.UseBase64 = false })
		w := httptest.NewRecorder()
		require.NoError(t, s.WriteCookieValue(w, httptest.NewRequest(http.MethodGet, "/", nil), "plain-id", -1))
		assert.Contains(t, w.Header().Get("Set-Cookie"), "SESSION=plain-id")
	})

	t.Run("invalid value is rejected", func(t *testing.T) {
		t.Parallel()

		s := newSerializer(t, func(c *cookie.Config) { c.UseBase64 = false })
		w := httptest.NewRecorder()
		err := s.WriteCookieValue(w, httptest.NewRequest(http.MethodGet, "/", nil), "a;b", -1)
		require.ErrorIs(t, err, cookie.ErrInvalidValue)
		assert.Empty(t, w.Header().Values("Set-Cookie"))
	})
}

func TestSerializer_Domain(t *testing.T) {
	t.Parallel()

	t.Run("fixed domain", func(t *testing.T) {
		t.Parallel()

		s := newSerializer(t, func(c *cookie.Config) { c.Domain = "example.com" })
		w := httptest.NewRecorder()
		require.NoError(t, s.WriteCookieValue(w, httptest.NewRequest(http.MethodGet, "/", nil), "id", -1))
		assert.Contains(t, w.Header().Get("Set-Cookie"), "Domain=example.com")
	})

	t.Run("domain pattern", func(t *testing.T) {
		t.Parallel()

		s := newSerializer(t, func(c *cookie.Config) { c.DomainPattern = `^.+?\.(\w+\.[a-z]+)$` })

		r := httptest.NewRequest(http.MethodGet, "http://child.example.com:8080/", nil)
		w := httptest.NewRecorder()
		require.NoError(t, s.WriteCookieValue(w, r, "id", -1))
		assert.Contains(t, w.Header().Get("Set-Cookie"), "Domain=example.com")

		r = httptest.NewRequest(http.MethodGet, "http://localhost/", nil)
		w = httptest.NewRecorder()
		require.NoError(t, s.WriteCookieValue(w, r, "id", -1))
		assert.NotContains(t, w.Header().Get("Set-Cookie"), "Domain=")
	})

	t.Run("invalid domain", func(t *testing.T) {
		t.Parallel()

		for _, d := range []string{".example.com", "example.com.", "-example.com", "exa_mple.com", "a..b", "a-.b"} {
			s := newSerializer(t, func(c *cookie.Config) { c.Domain = d })
			err := s.WriteCookieValue(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil), "id", -1)
			require.ErrorIs(t, err, cookie.ErrInvalidDomain, d)
		}
	})

	t.Run("invalid path", func(t *testing.T) {
		t.Parallel()

		s := newSerializer(t, func(c *cookie.Config) { c.Path = "/a;b" })
		err := s.WriteCookieValue(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil), "id", -1)
		require.ErrorIs(t, err, cookie.ErrInvalidPath)
	})
}

func TestSerializer_Read(t *testing.T) {
	t.Parallel()

	t.Run("multiple cookies and invalid ones", func(t *testing.T) {
		t.Parallel()

		s := newSerializer(t, nil)
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.AddCookie(&http.Cookie{Name: "SESSION", Value: base64.StdEncoding.EncodeToString([]byte("one"))})
		r.AddCookie(&http.Cookie{Name: "SESSION", Value: "!!not-base64!!"})
		r.AddCookie(&http.Cookie{Name: "SESSION", Value: base64.StdEncoding.EncodeToString([]byte("two"))})
		r.AddCookie(&http.Cookie{Name: "OTHER", Value: base64.StdEncoding.EncodeToString([]byte("three"))})

		assert.Equal(t, []string{"one", "two"}, s.ReadCookieValues(r))
	})

	t.Run("no cookie", func(t *testing.T) {
		t.Parallel()

		s := newSerializer(t, nil)
		assert.Empty(t, s.ReadCookieValues(httptest.NewRequest(http.MethodGet, "/", nil)))
	})

	t.Run("route suffix", func(t *testing.T) {
		t.Parallel()

		s := newSerializer(t, func(c *cookie.Config) { c.JVMRoute = "node1" })
		w := httptest.NewRecorder()
		require.NoError(t, s.WriteCookieValue(w, httptest.NewRequest(http.MethodGet, "/", nil), "id", -1))

		c, ok := cookie.Find(w.Header(), "SESSION")
		require.True(t, ok)
		raw, err := base64.StdEncoding.DecodeString(c.Value)
		require.NoError(t, err)
		assert.Equal(t, "id.node1", string(raw))

		assert.Equal(t, []string{"id"}, s.ReadCookieValues(requestWithCookies(t, w)))
	})

	t.Run("custom name", func(t *testing.T) {
		t.Parallel()

		s := newSerializer(t, func(c *cookie.Config) { c.Name = "sid" })
		w := httptest.NewRecorder()
		require.NoError(t, s.WriteCookieValue(w, httptest.NewRequest(http.MethodGet, "/", nil), "id", -1))
		assert.Equal(t, "sid", s.Name())
		assert.Equal(t, []string{"id"}, s.ReadCookieValues(requestWithCookies(t, w)))
	})
}

func TestSerializer_Signing(t *testing.T) {
	t.Parallel()

	t.Run("signed round trip", func(t *testing.T) {
		t.Parallel()

		s := newSerializer(t, func(c *cookie.Config) { c.Secrets = testSecret })
		w := httptest.NewRecorder()
		require.NoError(t, s.WriteCookieValue(w, httptest.NewRequest(http.MethodGet, "/", nil), "id", -1))
		assert.Equal(t, []string{"id"}, s.ReadCookieValues(requestWithCookies(t, w)))
	})

	t.Run("tampered value is skipped", func(t *testing.T) {
		t.Parallel()

		s := newSerializer(t, func(c *cookie.Config) { c.Secrets = testSecret })
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		forged := base64.URLEncoding.EncodeToString([]byte("admin")) + "|bogus"
		r.AddCookie(&http.Cookie{Name: "SESSION", Value: base64.StdEncoding.EncodeToString([]byte(forged))})
		assert.Empty(t, s.ReadCookieValues(r))
	})

	t.Run("key rotation", func(t *testing.T) {
		t.Parallel()

		old := newSerializer(t, func(c *cookie.Config) { c.Secrets = testSecret })
		w := httptest.NewRecorder()
		require.NoError(t, old.WriteCookieValue(w, httptest.NewRequest(http.MethodGet, "/", nil), "id", -1))

		rotated := newSerializer(t, func(c *cookie.Config) { c.Secrets = testSecret2 + "," + testSecret })
		assert.Equal(t, []string{"id"}, rotated.ReadCookieValues(requestWithCookies(t, w)))
	})
}

func TestNew_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*cookie.Config)
		err    error
	}{
		{"domain conflict", func(c *cookie.Config) { c.Domain = "a.com"; c.DomainPattern = ".*" }, cookie.ErrDomainConflict},
		{"bad pattern", func(c *cookie.Config) { c.DomainPattern = "(" }, cookie.ErrInvalidDomainPattern},
		{"bad same site", func(c *cookie.Config) { c.SameSite = "sometimes" }, cookie.ErrInvalidSameSite},
		{"short secret", func(c *cookie.Config) { c.Secrets = "short" }, cookie.ErrSecretTooShort},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := cookie.DefaultConfig()
			tt.mutate(&cfg)
			_, err := cookie.New(cfg)
			require.ErrorIs(t, err, tt.err)
		})
	}
}
