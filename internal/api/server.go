// Package api exposes the bridge's HTTP surface: session control, the
// leaderboard/stats views, CSV export, and the PIN-gated admin operations.
package api

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"wattbridge/internal/session"
	"wattbridge/internal/store"
)

// Server holds the handler dependencies.
type Server struct {
	ctrl  *session.Controller
	store *store.Store
	feed  http.Handler // the WebSocket hub, mounted at /ws
	log   *slog.Logger

	adminPIN       string
	donationFactor float64
	backupDir      string

	now func() time.Time
}

// Options configures the public and admin surface.
type Options struct {
	AdminPIN       string
	DonationFactor float64
	BackupDir      string
}

// New assembles the HTTP server around the lifecycle controller.
func New(ctrl *session.Controller, st *store.Store, feed http.Handler, log *slog.Logger, opts Options) *Server {
	return &Server{
		ctrl:           ctrl,
		store:          st,
		feed:           feed,
		log:            log,
		adminPIN:       opts.AdminPIN,
		donationFactor: opts.DonationFactor,
		backupDir:      opts.BackupDir,
		now:            time.Now,
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /ws", s.feed)

	mux.HandleFunc("POST /api/session/autostart", s.handleAutostart)
	mux.HandleFunc("POST /api/autostart/lock", s.handleLock)
	mux.HandleFunc("GET /api/autostart/status", s.handleLockStatus)
	mux.HandleFunc("POST /api/session/start", s.handleStart)
	mux.HandleFunc("POST /api/session/end", s.handleEnd)
	mux.HandleFunc("POST /api/session/rename", s.handleRename)
	mux.HandleFunc("POST /api/session/discard", s.handleDiscard)
	mux.HandleFunc("GET /api/session/current", s.handleCurrent)
	mux.HandleFunc("GET /api/leaderboard/today", s.handleLeaderboardToday)
	mux.HandleFunc("GET /api/leaderboard/all", s.handleLeaderboardAll)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /api/export/today.csv", s.handleExportToday)
	mux.HandleFunc("GET /api/export/range", s.handleExportRange)

	mux.HandleFunc("GET /api/admin/days", s.requirePIN(s.handleAdminDays))
	mux.HandleFunc("GET /api/admin/sessions", s.requirePIN(s.handleAdminSessionsRange))
	mux.HandleFunc("GET /api/admin/sessions/today", s.requirePIN(s.handleAdminSessionsToday))
	mux.HandleFunc("GET /api/admin/sessions/{date}", s.requirePIN(s.handleAdminSessionsByDate))
	mux.HandleFunc("DELETE /api/admin/sessions/{id}", s.requirePIN(s.handleAdminDelete))
	mux.HandleFunc("GET /api/admin/range/leaderboard", s.requirePIN(s.handleAdminRangeLeaderboard))
	mux.HandleFunc("POST /api/admin/reset", s.requirePIN(s.handleAdminReset))
	mux.HandleFunc("POST /api/admin/backup", s.requirePIN(s.handleAdminBackup))

	return mux
}

func (s *Server) today() string {
	return s.now().Format("2006-01-02")
}

// requirePIN gates admin handlers. The PIN travels in the X-Admin-PIN header,
// a pin field in a JSON body, or a pin query parameter; when no PIN is
// configured the admin surface is open, intended for closed local setups
// only.
func (s *Server) requirePIN(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.adminPIN != "" {
			got := r.Header.Get("X-Admin-PIN")
			if got == "" {
				got = pinFromBody(r)
			}
			if got == "" {
				got = r.URL.Query().Get("pin")
			}
			if subtle.ConstantTimeCompare([]byte(got), []byte(s.adminPIN)) != 1 {
				writeError(w, http.StatusUnauthorized, "bad pin")
				return
			}
		}
		next(w, r)
	}
}

// pinFromBody peeks a pin field out of a JSON body, leaving the body readable
// for the handler.
func pinFromBody(r *http.Request) string {
	if r.Body == nil || r.Body == http.NoBody {
		return ""
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, 1<<16))
	r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(data))
	if err != nil {
		return ""
	}

	var body struct {
		PIN string `json:"pin"`
	}
	if json.Unmarshal(data, &body) != nil {
		return ""
	}
	return body.PIN
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeFailure maps domain errors onto HTTP statuses per the error taxonomy:
// validation 400, conflicts 409, unknown ids 404, the rest 500.
func (s *Server) writeFailure(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, session.ErrSessionActive), errors.Is(err, session.ErrSessionSaved):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.log.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeBody(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
