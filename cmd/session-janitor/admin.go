package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/dmitrymomot/extsession/core/logger"
	"github.com/dmitrymomot/extsession/core/registry"
	"github.com/dmitrymomot/extsession/core/session"
)

type sessionView struct {
	SessionID   string    `json:"session_id"`
	Principal   string    `json:"principal,omitempty"`
	LastRequest time.Time `json:"last_request"`
	Expired     bool      `json:"expired"`
}

func viewOf(info registry.SessionInformation) sessionView {
	return sessionView{
		SessionID:   info.SessionID,
		Principal:   info.Principal,
		LastRequest: info.LastRequest,
		Expired:     info.Expired,
	}
}

// adminAPI exposes the session registry over HTTP.
type adminAPI struct {
	sessions *registry.Registry
	log      *slog.Logger
}

func newAdminAPI(sessions *registry.Registry, log *slog.Logger) *adminAPI {
	return &adminAPI{sessions: sessions, log: log}
}

func (a *adminAPI) register(mux *http.ServeMux) {
	mux.HandleFunc("GET /sessions", a.list)
	mux.HandleFunc("GET /sessions/{id}", a.get)
	mux.HandleFunc("DELETE /sessions/{id}", a.expire)
}

// list handles GET /sessions?principal=alice&include_expired=true.
func (a *adminAPI) list(w http.ResponseWriter, r *http.Request) {
	principal := r.URL.Query().Get("principal")
	if principal == "" {
		writeError(w, http.StatusBadRequest, "principal is required")
		return
	}
	includeExpired, _ := strconv.ParseBool(r.URL.Query().Get("include_expired"))

	infos, err := a.sessions.GetAllSessions(r.Context(), principal, includeExpired)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	views := make([]sessionView, 0, len(infos))
	for _, info := range infos {
		views = append(views, viewOf(info))
	}
	writeJSON(w, http.StatusOK, views)
}

func (a *adminAPI) get(w http.ResponseWriter, r *http.Request) {
	info, err := a.sessions.GetSessionInformation(r.Context(), r.PathValue("id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(*info))
}

func (a *adminAPI) expire(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := a.sessions.ExpireNow(r.Context(), id); err != nil {
		a.fail(w, r, err)
		return
	}
	a.log.InfoContext(r.Context(), "session expired via admin api", logger.SessionID(id))
	w.WriteHeader(http.StatusNoContent)
}

func (a *adminAPI) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		writeError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, session.ErrRepositoryUnavailable):
		a.log.ErrorContext(r.Context(), "session repository unavailable", logger.Error(err))
		writeError(w, http.StatusServiceUnavailable, "session repository unavailable")
	default:
		a.log.ErrorContext(r.Context(), "admin request failed", logger.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
