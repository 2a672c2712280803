package session

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"wattbridge/internal/store"
)

// EndReason records why a session was finalized.
type EndReason string

const (
	ReasonManual         EndReason = "manual"
	ReasonAuto60s        EndReason = "auto60s"
	ReasonPreManualStart EndReason = "pre_manual_start"
	ReasonLockedByUI     EndReason = "locked_by_ui"
	ReasonAdminDelete    EndReason = "admin_delete"
	ReasonAdminReset     EndReason = "admin_reset"
	ReasonAPI            EndReason = "api"
)

var (
	// ErrNoActiveSession is returned by operations that require a running session.
	ErrNoActiveSession = errors.New("no active session")
	// ErrSessionActive is returned when discarding a session that hasn't finished.
	ErrSessionActive = errors.New("session is still active")
	// ErrSessionSaved is returned when discarding a session an operator has claimed.
	ErrSessionSaved = errors.New("session is saved")
	// ErrValidation is wrapped by all input validation failures.
	ErrValidation = errors.New("invalid input")
)

// Broadcaster fans an event out to connected viewers. Delivery is
// best-effort and must never block the caller.
type Broadcaster interface {
	Broadcast(event string, payload any)
}

// Config are the tunables of the session lifecycle.
type Config struct {
	ThresholdW float64       // power needed to trigger an auto-start
	Debounce   time.Duration // minimum spacing between auto-start attempts
	AutoEnd    time.Duration // how long an auto-started session runs
}

// StartInfo describes a freshly (re-)announced session.
type StartInfo struct {
	ID      int64        `json:"id"`
	Name    string       `json:"name"`
	Gender  store.Gender `json:"gender"`
	StartTS int64        `json:"start_ts"`
	Date    string       `json:"date"`
	AutoMS  int64        `json:"auto_ms"`
}

// EndedInfo is the terminal snapshot of a finalized session.
type EndedInfo struct {
	Snapshot
	EndTS  int64     `json:"end_ts"`
	Reason EndReason `json:"reason"`
}

// Controller owns the single active session. HTTP handlers, the sensor
// ingest and the auto-end timer all call into it from their own goroutines,
// so every state mutation runs under one mutex; within the lock each
// transition runs to completion, including its persistence write and
// broadcast.
type Controller struct {
	cfg   Config
	store *store.Store
	hub   Broadcaster
	log   *slog.Logger

	now func() time.Time // injectable for tests

	mu          sync.Mutex
	current     *Recorder
	locked      bool
	lastAutoTry int64

	autoEndTimer *time.Timer
	autoEndForID int64
	autoEndAt    int64
}

// NewController wires the lifecycle around a store and a broadcast sink.
func NewController(cfg Config, st *store.Store, hub Broadcaster, log *slog.Logger) *Controller {
	return &Controller{
		cfg:   cfg,
		store: st,
		hub:   hub,
		log:   log,
		now:   time.Now,
	}
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

func (c *Controller) nowMS() int64 {
	return c.now().UnixMilli()
}

func (c *Controller) today() string {
	return c.now().Format("2006-01-02")
}

// HandleSample feeds one power sample from the sensor stream: it may trigger
// an auto-start, then updates the active recorder. Errors from the
// auto-start path are logged, never propagated; sample processing must not
// abort the stream.
func (c *Controller) HandleSample(ts int64, powerW float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.locked && c.current == nil && powerW >= c.cfg.ThresholdW {
		if ts-c.lastAutoTry > c.cfg.Debounce.Milliseconds() {
			// The debounce clock advances on every attempt, whether or not
			// a session actually starts.
			c.lastAutoTry = ts
			if _, _, err := c.autostartLocked(); err != nil {
				c.log.Error("auto-start failed", "error", err)
			}
		}
	}

	if c.current != nil {
		c.current.Record(ts, powerW)
	}
}

// Autostart starts an anonymous session with an auto-end timer, or
// re-announces the current one. It reports whether a session was already
// running; blocked is true while the lock is engaged.
func (c *Controller) Autostart() (info *StartInfo, alreadyRunning, blocked bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.locked {
		return nil, c.current != nil, true, nil
	}
	info, alreadyRunning, err = c.autostartLocked()
	return info, alreadyRunning, false, err
}

func (c *Controller) autostartLocked() (*StartInfo, bool, error) {
	if c.current != nil {
		info := c.startInfoLocked()
		c.hub.Broadcast("session_start", info)
		return info, true, nil
	}

	startTS := c.nowMS()
	id, err := c.store.CreateSession("", store.GenderUnset, c.today(), startTS)
	if err != nil {
		return nil, false, fmt.Errorf("creating session: %w", err)
	}

	c.current = NewRecorder(id, "", store.GenderUnset, startTS)
	c.armAutoEndLocked()

	info := c.startInfoLocked()
	c.log.Info("session auto-started", "id", id)
	c.hub.Broadcast("session_start", info)
	return info, false, nil
}

// StartManual begins an operator-named session. Any active session is
// force-ended first; manual sessions get no auto-end timer.
func (c *Controller) StartManual(name string, gender store.Gender) (*StartInfo, error) {
	if isBlank(name) {
		return nil, fmt.Errorf("%w: name required", ErrValidation)
	}
	if gender != store.GenderMale && gender != store.GenderFemale {
		return nil, fmt.Errorf("%w: gender must be M or F", ErrValidation)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.endLocked(ReasonPreManualStart); err != nil && !errors.Is(err, ErrNoActiveSession) {
		return nil, err
	}

	startTS := c.nowMS()
	id, err := c.store.CreateSession(name, gender, c.today(), startTS)
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}

	c.current = NewRecorder(id, name, gender, startTS)
	c.clearAutoEndLocked()

	info := c.startInfoLocked()
	c.log.Info("session started", "id", id, "name", name)
	c.hub.Broadcast("session_start", info)
	return info, nil
}

// End finalizes the active session for the given reason. Returns
// ErrNoActiveSession when nothing is running.
func (c *Controller) End(reason EndReason) (*EndedInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.endLocked(reason)
}

func (c *Controller) endLocked(reason EndReason) (*EndedInfo, error) {
	if c.current == nil {
		return nil, ErrNoActiveSession
	}

	snap := c.current.Snapshot()
	endTS := c.nowMS()
	if err := c.store.FinalizeSession(snap.ID, endTS, snap.PeakW, snap.BestWh60, snap.TotalWh); err != nil {
		return nil, fmt.Errorf("finalizing session %d: %w", snap.ID, err)
	}

	ended := &EndedInfo{Snapshot: snap, EndTS: endTS, Reason: reason}
	c.current = nil
	c.clearAutoEndLocked()

	c.log.Info("session ended", "id", snap.ID, "reason", reason,
		"total_wh", snap.TotalWh, "best_wh60", snap.BestWh60, "peak_w", snap.PeakW)
	c.hub.Broadcast("session_end", ended)
	return ended, nil
}

// SetLocked engages or releases the auto-start lock. Engaging it while a
// session runs force-ends the session: the UI holds the lock during blocking
// prompts and must never leave an uncontrolled session running behind them.
func (c *Controller) SetLocked(locked bool) (*EndedInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.locked = locked
	if !locked {
		return nil, nil
	}
	ended, err := c.endLocked(ReasonLockedByUI)
	if errors.Is(err, ErrNoActiveSession) {
		return nil, nil
	}
	return ended, err
}

// Locked reports the auto-start lock state.
func (c *Controller) Locked() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.locked
}

// Rename updates name and gender on an already-finalized session and
// re-broadcasts today's leaderboard. It never resurrects a session.
func (c *Controller) Rename(id int64, name string, gender store.Gender) error {
	if id <= 0 || isBlank(name) {
		return fmt.Errorf("%w: id and name required", ErrValidation)
	}
	if gender != store.GenderMale && gender != store.GenderFemale {
		return fmt.Errorf("%w: gender must be M or F", ErrValidation)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.store.RenameSession(id, name, gender); err != nil {
		return err
	}
	c.log.Info("session renamed", "id", id, "name", name)
	c.broadcastLeaderboardLocked()
	return nil
}

// Discard deletes a finalized session, but only while it is still unsaved:
// anonymous gender or a blank name. Saved results are protected.
func (c *Controller) Discard(id int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sess, err := c.store.GetSession(id)
	if err != nil {
		return err
	}
	if !sess.Finished() {
		return ErrSessionActive
	}
	if !sess.Unsaved() {
		return ErrSessionSaved
	}
	if err := c.store.DeleteSession(id); err != nil {
		return err
	}
	c.log.Info("session discarded", "id", id)
	c.hub.Broadcast("session_discarded", map[string]int64{"id": id})
	return nil
}

// Current returns the active session's start info and live snapshot, or nil
// when idle.
func (c *Controller) Current() (*StartInfo, *Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil {
		return nil, nil
	}
	snap := c.current.Snapshot()
	return c.startInfoLocked(), &snap
}

// RemainingMS returns the time until auto-end, zero when no timer is armed.
func (c *Controller) RemainingMS() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remainingLocked()
}

func (c *Controller) remainingLocked() int64 {
	if c.autoEndAt == 0 {
		return 0
	}
	if r := c.autoEndAt - c.nowMS(); r > 0 {
		return r
	}
	return 0
}

// BroadcastLeaderboard pushes today's boards to all viewers.
func (c *Controller) BroadcastLeaderboard() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.broadcastLeaderboardLocked()
}

func (c *Controller) broadcastLeaderboardLocked() {
	lb, err := c.store.LeaderboardToday(c.today())
	if err != nil {
		c.log.Error("leaderboard refresh failed", "error", err)
		return
	}
	c.hub.Broadcast("leaderboard", lb)
}

// Close releases the auto-end timer.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearAutoEndLocked()
}

func (c *Controller) startInfoLocked() *StartInfo {
	return &StartInfo{
		ID:      c.current.ID,
		Name:    c.current.Name,
		Gender:  c.current.Gender,
		StartTS: c.current.StartTS,
		Date:    c.today(),
		AutoMS:  c.remainingLocked(),
	}
}

// armAutoEndLocked schedules the auto-end, stamped with the session id it
// was armed for so a stale timer cannot end a successor session.
func (c *Controller) armAutoEndLocked() {
	c.clearAutoEndLocked()
	if c.current == nil {
		return
	}
	id := c.current.ID
	c.autoEndForID = id
	c.autoEndAt = c.nowMS() + c.cfg.AutoEnd.Milliseconds()
	c.autoEndTimer = time.AfterFunc(c.cfg.AutoEnd, func() { c.autoEnd(id) })
}

func (c *Controller) autoEnd(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// The session the timer was armed for may be long gone.
	if c.current == nil || c.current.ID != id || c.autoEndForID != id {
		return
	}
	if _, err := c.endLocked(ReasonAuto60s); err != nil {
		c.log.Error("auto-end failed", "id", id, "error", err)
	}
}

func (c *Controller) clearAutoEndLocked() {
	if c.autoEndTimer != nil {
		c.autoEndTimer.Stop()
		c.autoEndTimer = nil
	}
	c.autoEndForID = 0
	c.autoEndAt = 0
}
