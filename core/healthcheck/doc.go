// Package healthcheck exposes liveness and readiness probes over net/http.
// Backend packages provide Healthcheck funcs that plug into Handler.
package healthcheck
