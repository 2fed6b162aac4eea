package session_test

import (
	"testing"
	"time"

	"github.com/dmitrymomot/extsession/core/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type user struct{ name string }

func (u user) PrincipalName() string { return u.name }

func TestPrincipalResolvers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		attrs    map[string]any
		resolver session.PrincipalResolver
		want     string
	}{
		{"attribute string", map[string]any{"principal": "alice"}, session.AttributeResolver{}, "alice"},
		{"attribute authentication", map[string]any{"principal": user{"bob"}}, session.AttributeResolver{}, "bob"},
		{"attribute custom key", map[string]any{"username": "eve"}, session.AttributeResolver{Key: "username"}, "eve"},
		{"attribute missing", map[string]any{}, session.AttributeResolver{}, ""},
		{"attribute wrong type", map[string]any{"principal": 42}, session.AttributeResolver{}, ""},
		{"security context struct", map[string]any{"security_context": session.SecurityContext{Principal: "carol"}}, session.SecurityContextResolver{}, "carol"},
		{"security context decoded map", map[string]any{"security_context": map[string]any{"principal": "dave"}}, session.SecurityContextResolver{}, "dave"},
		{"security context garbage", map[string]any{"security_context": "nope"}, session.SecurityContextResolver{}, ""},
		{"chain prefers attribute", map[string]any{"principal": "alice", "security_context": session.SecurityContext{Principal: "carol"}}, session.DefaultPrincipalResolver(), "alice"},
		{"chain falls back", map[string]any{"security_context": session.SecurityContext{Principal: "carol"}}, session.DefaultPrincipalResolver(), "carol"},
		{"func resolver", map[string]any{}, session.PrincipalResolverFunc(func(*session.Session) string { return "fixed" }), "fixed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := session.Restore("id", epoch, epoch, time.Minute, tt.attrs, "")
			assert.Equal(t, tt.want, tt.resolver.ResolvePrincipal(s))
		})
	}
}

func TestNewPrincipalResolver(t *testing.T) {
	t.Parallel()

	for _, strategy := range []session.PrincipalStrategy{"attribute", "security_context", "chain", "CHAIN", ""} {
		r, err := session.NewPrincipalResolver(strategy)
		require.NoError(t, err, strategy)
		assert.NotNil(t, r)
	}

	_, err := session.NewPrincipalResolver("spel")
	require.ErrorIs(t, err, session.ErrUnknownStrategy)
}

func TestResolveIndexChange(t *testing.T) {
	t.Parallel()

	fresh := session.New("id", time.Minute, epoch)
	fresh.SetAttribute("principal", "alice")
	change := session.ResolveIndexChange(fresh, session.DefaultPrincipalResolver())
	assert.Equal(t, session.IndexChange{New: "alice"}, change)
	assert.True(t, change.Changed())

	saved := session.Restore("id", epoch, epoch, time.Minute, map[string]any{"principal": "bob"}, "alice")
	change = session.ResolveIndexChange(saved, session.DefaultPrincipalResolver())
	assert.Equal(t, session.IndexChange{Old: "alice", New: "bob"}, change)

	same := session.Restore("id", epoch, epoch, time.Minute, map[string]any{"principal": "bob"}, "bob")
	assert.False(t, session.ResolveIndexChange(same, session.DefaultPrincipalResolver()).Changed())
}

func TestConfig(t *testing.T) {
	t.Parallel()

	cfg := session.DefaultConfig()
	assert.Equal(t, 30*time.Minute, cfg.MaxInactiveInterval)

	r, err := cfg.Resolver()
	require.NoError(t, err)
	assert.NotNil(t, r)
}
