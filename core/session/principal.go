package session

import (
	"fmt"
	"strings"
)

// SecurityContextAttribute is the attribute holding the authentication context.
const SecurityContextAttribute = "security_context"

// PrincipalResolver derives the principal index value of a session.
// An empty result means the session carries no principal.
type PrincipalResolver interface {
	ResolvePrincipal(s *Session) string
}

// PrincipalResolverFunc adapts a function to PrincipalResolver.
type PrincipalResolverFunc func(s *Session) string

// ResolvePrincipal implements PrincipalResolver.
func (f PrincipalResolverFunc) ResolvePrincipal(s *Session) string {
	return f(s)
}

// Authentication is implemented by values that know their principal name.
type Authentication interface {
	PrincipalName() string
}

// SecurityContext is the authentication context stored in a session after login.
type SecurityContext struct {
	Principal   string   `json:"principal"`
	Authorities []string `json:"authorities,omitempty"`
}

// PrincipalName implements Authentication.
func (c SecurityContext) PrincipalName() string {
	return c.Principal
}

// AttributeResolver reads the principal from a fixed attribute key.
type AttributeResolver struct {
	Key string
}

// ResolvePrincipal implements PrincipalResolver.
func (r AttributeResolver) ResolvePrincipal(s *Session) string {
	key := r.Key
	if key == "" {
		key = PrincipalIndexName
	}
	v, ok := s.Attribute(key)
	if !ok {
		return ""
	}
	switch p := v.(type) {
	case string:
		return p
	case fmt.Stringer:
		return p.String()
	case Authentication:
		return p.PrincipalName()
	}
	return ""
}

// SecurityContextResolver reads the principal from the authentication context attribute.
type SecurityContextResolver struct {
	Key string
}

// ResolvePrincipal implements PrincipalResolver.
func (r SecurityContextResolver) ResolvePrincipal(s *Session) string {
	key := r.Key
	if key == "" {
		key = SecurityContextAttribute
	}
	v, ok := s.Attribute(key)
	if !ok {
		return ""
	}
	if auth, ok := v.(Authentication); ok {
		return auth.PrincipalName()
	}
	// Decoded from storage as a generic map.
	sc, err := convert[SecurityContext](v)
	if err != nil {
		return ""
	}
	return sc.PrincipalName()
}

// ChainResolver returns the first non-empty principal among its resolvers.
type ChainResolver []PrincipalResolver

// ResolvePrincipal implements PrincipalResolver.
func (c ChainResolver) ResolvePrincipal(s *Session) string {
	for _, r := range c {
		if p := r.ResolvePrincipal(s); p != "" {
			return p
		}
	}
	return ""
}

// PrincipalStrategy names a principal resolution strategy.
type PrincipalStrategy string

const (
	StrategyAttribute       PrincipalStrategy = "attribute"
	StrategySecurityContext PrincipalStrategy = "security_context"
	StrategyChain           PrincipalStrategy = "chain"
)

// DefaultPrincipalResolver checks the principal attribute first and falls back
// to the authentication context.
func DefaultPrincipalResolver() PrincipalResolver {
	return ChainResolver{AttributeResolver{}, SecurityContextResolver{}}
}

// NewPrincipalResolver builds the resolver for a configured strategy.
func NewPrincipalResolver(strategy PrincipalStrategy) (PrincipalResolver, error) {
	switch PrincipalStrategy(strings.ToLower(string(strategy))) {
	case StrategyAttribute:
		return AttributeResolver{}, nil
	case StrategySecurityContext:
		return SecurityContextResolver{}, nil
	case StrategyChain, "":
		return DefaultPrincipalResolver(), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
}
