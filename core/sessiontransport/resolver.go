package sessiontransport

import (
	"errors"
	"net/http"
)

// IDResolver carries the session id between client and server.
type IDResolver interface {
	// ResolveSessionIDs returns the candidate session ids of the request, in order of preference.
	ResolveSessionIDs(r *http.Request) []string
	// SetSessionID sends id to the client.
	SetSessionID(w http.ResponseWriter, r *http.Request, id string) error
	// ExpireSession tells the client to forget its session id.
	ExpireSession(w http.ResponseWriter, r *http.Request) error
}

// Refresher is implemented by resolvers whose client-side credential expires on
// its own. A session that was loaded from such a credential is sent back to the
// client on commit when NeedsRefresh reports true, so the credential keeps up
// with the sliding inactivity window of the stored session.
type Refresher interface {
	NeedsRefresh(r *http.Request) bool
}

// Composite resolves ids from the first resolver that yields any and writes
// through all of them. Use it to accept a cookie from browsers and a header
// from API clients at the same time.
type Composite []IDResolver

// ResolveSessionIDs implements IDResolver.
func (c Composite) ResolveSessionIDs(r *http.Request) []string {
	for _, res := range c {
		if ids := res.ResolveSessionIDs(r); len(ids) > 0 {
			return ids
		}
	}
	return nil
}

// SetSessionID implements IDResolver.
func (c Composite) SetSessionID(w http.ResponseWriter, r *http.Request, id string) error {
	var errs []error
	for _, res := range c {
		errs = append(errs, res.SetSessionID(w, r, id))
	}
	return errors.Join(errs...)
}

// ExpireSession implements IDResolver.
func (c Composite) ExpireSession(w http.ResponseWriter, r *http.Request) error {
	var errs []error
	for _, res := range c {
		errs = append(errs, res.ExpireSession(w, r))
	}
	return errors.Join(errs...)
}

// NeedsRefresh implements Refresher. It reports true when any member does.
func (c Composite) NeedsRefresh(r *http.Request) bool {
	for _, res := range c {
		if rf, ok := res.(Refresher); ok && rf.NeedsRefresh(r) {
			return true
		}
	}
	return false
}
