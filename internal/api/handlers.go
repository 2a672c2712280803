package api

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"

	"wattbridge/internal/session"
	"wattbridge/internal/store"
)

func (s *Server) handleAutostart(w http.ResponseWriter, r *http.Request) {
	info, alreadyRunning, blocked, err := s.ctrl.Autostart()
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	if blocked {
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":             false,
			"blocked":        true,
			"alreadyRunning": alreadyRunning,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":             true,
		"session":        info,
		"alreadyRunning": alreadyRunning,
	})
}

func (s *Server) handleLock(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Lock bool `json:"lock"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	if _, err := s.ctrl.SetLocked(req.Lock); err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "locked": req.Lock})
}

func (s *Server) handleLockStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"locked": s.ctrl.Locked()})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name   string `json:"name"`
		Gender string `json:"gender"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	gender := store.Gender(strings.ToUpper(req.Gender))
	info, err := s.ctrl.StartManual(req.Name, gender)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "session": info})
}

func (s *Server) handleEnd(w http.ResponseWriter, r *http.Request) {
	ended, err := s.ctrl.End(session.ReasonAPI)
	if err != nil && !errors.Is(err, session.ErrNoActiveSession) {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "ended": ended})
}

func (s *Server) handleRename(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID     int64  `json:"id"`
		Name   string `json:"name"`
		Gender string `json:"gender"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	gender := store.Gender(strings.ToUpper(req.Gender))
	if err := s.ctrl.Rename(req.ID, req.Name, gender); err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleDiscard(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID int64 `json:"id"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	if err := s.ctrl.Discard(req.ID); err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleCurrent(w http.ResponseWriter, r *http.Request) {
	_, snap := s.ctrl.Current()
	if snap == nil {
		writeJSON(w, http.StatusOK, map[string]any{"session": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session": snap,
		"auto_ms": s.ctrl.RemainingMS(),
	})
}

func (s *Server) handleLeaderboardToday(w http.ResponseWriter, r *http.Request) {
	lb, err := s.store.LeaderboardToday(s.today())
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lb)
}

func (s *Server) handleLeaderboardAll(w http.ResponseWriter, r *http.Request) {
	lb, err := s.store.LeaderboardAll()
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lb)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	totals, err := s.store.EnergyTotals(s.today())
	if err != nil {
		s.writeFailure(w, err)
		return
	}

	todayWh := round1(totals.TodayWh)
	allWh := round1(totals.AllWh)
	writeJSON(w, http.StatusOK, map[string]any{
		"date":        s.today(),
		"euro_per_wh": s.donationFactor,
		"today_wh":    todayWh,
		"today_eur":   round1(todayWh * s.donationFactor),
		"all_wh":      allWh,
		"all_eur":     round1(allWh * s.donationFactor),
	})
}

func (s *Server) handleExportToday(w http.ResponseWriter, r *http.Request) {
	date := s.today()
	sessions, err := s.store.FinishedByDate(date)
	if err != nil {
		s.writeFailure(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", "sessions-"+date+".csv"))
	if err := store.WriteCSV(w, sessions); err != nil {
		s.log.Error("csv export failed", "error", err)
	}
}

// handleExportRange streams finished sessions for a date range as CSV.
// Omitted bounds fall back to an open range.
func (s *Server) handleExportRange(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from := strings.TrimSpace(q.Get("from"))
	if from == "" {
		from = "0000-01-01"
	}
	to := strings.TrimSpace(q.Get("to"))
	if to == "" {
		to = "9999-12-31"
	}

	sessions, err := s.store.FinishedInRange(from, to)
	if err != nil {
		s.writeFailure(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", "sessions_"+from+"_to_"+to+".csv"))
	if err := store.WriteRangeCSV(w, sessions); err != nil {
		s.log.Error("csv export failed", "error", err)
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
