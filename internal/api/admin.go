package api

import (
	"errors"
	"net/http"
	"strconv"

	"wattbridge/internal/session"
)

func rangeParams(r *http.Request) (from, to string, ok bool) {
	q := r.URL.Query()
	from, to = q.Get("from"), q.Get("to")
	return from, to, from != "" && to != ""
}

func (s *Server) handleAdminDays(w http.ResponseWriter, r *http.Request) {
	from, to, ok := rangeParams(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "from/to required")
		return
	}

	days, err := s.store.DaySummaries(from, to)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rows": days})
}

func (s *Server) handleAdminSessionsRange(w http.ResponseWriter, r *http.Request) {
	from, to, ok := rangeParams(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "from/to required")
		return
	}

	sessions, err := s.store.SessionsInRange(from, to)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rows": sessions})
}

func (s *Server) handleAdminSessionsToday(w http.ResponseWriter, r *http.Request) {
	s.writeSessionsForDate(w, s.today())
}

func (s *Server) handleAdminSessionsByDate(w http.ResponseWriter, r *http.Request) {
	s.writeSessionsForDate(w, r.PathValue("date"))
}

func (s *Server) writeSessionsForDate(w http.ResponseWriter, date string) {
	sessions, err := s.store.SessionsByDate(date)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": date, "rows": sessions})
}

// handleAdminDelete removes a session unconditionally. If the target is the
// active session it is force-ended first so no orphaned recorder keeps
// running.
func (s *Server) handleAdminDelete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	if info, _ := s.ctrl.Current(); info != nil && info.ID == id {
		if _, err := s.ctrl.End(session.ReasonAdminDelete); err != nil {
			s.writeFailure(w, err)
			return
		}
	}

	if err := s.store.DeleteSession(id); err != nil {
		s.writeFailure(w, err)
		return
	}
	s.log.Info("session deleted by admin", "id", id)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "deleted": 1})
}

func (s *Server) handleAdminRangeLeaderboard(w http.ResponseWriter, r *http.Request) {
	from, to, ok := rangeParams(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "from/to required")
		return
	}

	limit := 0 // default: everything
	if v := r.URL.Query().Get("limit"); v != "" && v != "all" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	lb, err := s.store.LeaderboardRange(from, to, limit)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lb)
}

func (s *Server) handleAdminReset(w http.ResponseWriter, r *http.Request) {
	ended, err := s.ctrl.End(session.ReasonAdminReset)
	if err != nil && !errors.Is(err, session.ErrNoActiveSession) {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "ended": ended})
}

func (s *Server) handleAdminBackup(w http.ResponseWriter, r *http.Request) {
	res, err := s.store.Backup(s.backupDir, s.today(), s.now())
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.log.Info("backup written", "db", res.DBPath, "csv", res.CSVPath)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "backup": res})
}
