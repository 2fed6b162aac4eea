// Package sessiontransport moves the session id between client and server.
//
// An IDResolver extracts candidate session ids from a request and writes the
// id back (or clears it) on the response. Three implementations are provided:
//
//   - CookieResolver: the id lives in a cookie rendered by cookie.Serializer
//   - HeaderResolver: the id travels in a header such as X-Auth-Token, for API clients
//   - JWTResolver: the id is wrapped in a signed HS256 bearer token
//
// Composite chains resolvers: ids come from the first one that yields any, and
// writes go to all of them.
//
// # Usage
//
//	serializer, err := cookie.New(cookie.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	resolver := sessiontransport.Composite{
//		sessiontransport.NewCookie(serializer),
//		sessiontransport.XAuthToken(),
//	}
//
// Or from configuration (SESSION_ID_RESOLVERS=cookie,header):
//
//	resolver, err := sessiontransport.NewFromConfig(cfg, serializer)
//
// # Token Revocation
//
// JWTResolver checks the jti claim against a Revoker on every request. ExpireSession
// revokes the presented token so that it cannot be replayed after logout.
package sessiontransport
