package store

import (
	"database/sql"
	"errors"
	"strings"
)

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

const sessionColumns = "id,name,gender,date,start_ts,end_ts,peak_w,best_wh60,total_wh"

func scanSession(row interface{ Scan(...any) error }) (*Session, error) {
	var s Session
	var endTS sql.NullInt64
	err := row.Scan(&s.ID, &s.Name, &s.Gender, &s.Date, &s.StartTS, &endTS,
		&s.PeakW, &s.BestWh60, &s.TotalWh)
	if err != nil {
		return nil, err
	}
	if endTS.Valid {
		s.EndTS = &endTS.Int64
	}
	return &s, nil
}

// CreateSession inserts a new active session and returns its assigned id.
func (s *Store) CreateSession(name string, gender Gender, date string, startTS int64) (int64, error) {
	res, err := s.db.Exec(
		"INSERT INTO sessions (name, gender, date, start_ts) VALUES (?,?,?,?)",
		name, gender, date, startTS,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// FinalizeSession sets end_ts and freezes the session's statistics.
func (s *Store) FinalizeSession(id, endTS int64, peakW, bestWh60, totalWh float64) error {
	res, err := s.db.Exec(
		"UPDATE sessions SET end_ts=?, peak_w=?, best_wh60=?, total_wh=? WHERE id=?",
		endTS, peakW, bestWh60, totalWh, id,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// RenameSession updates name and gender on an existing session. It never
// touches the numeric fields or end_ts.
func (s *Store) RenameSession(id int64, name string, gender Gender) error {
	res, err := s.db.Exec("UPDATE sessions SET name=?, gender=? WHERE id=?", name, gender, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// DeleteSession removes a session by id.
func (s *Store) DeleteSession(id int64) error {
	res, err := s.db.Exec("DELETE FROM sessions WHERE id=?", id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// GetSession retrieves a session by id.
func (s *Store) GetSession(id int64) (*Session, error) {
	row := s.db.QueryRow("SELECT "+sessionColumns+" FROM sessions WHERE id=?", id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	return sess, err
}

// SessionsByDate returns all sessions started on the given day, newest first.
func (s *Store) SessionsByDate(date string) ([]Session, error) {
	return s.querySessions(
		"SELECT "+sessionColumns+" FROM sessions WHERE date=? ORDER BY start_ts DESC", date)
}

// SessionsInRange returns all sessions with date between from and to
// inclusive, newest first.
func (s *Store) SessionsInRange(from, to string) ([]Session, error) {
	return s.querySessions(
		"SELECT "+sessionColumns+" FROM sessions WHERE date BETWEEN ? AND ? ORDER BY date DESC, id DESC",
		from, to)
}

// FinishedInRange returns finalized sessions with date between from and to
// inclusive, in chronological order, the rows for a ranged CSV export.
func (s *Store) FinishedInRange(from, to string) ([]Session, error) {
	return s.querySessions(
		"SELECT "+sessionColumns+" FROM sessions WHERE date BETWEEN ? AND ? AND end_ts IS NOT NULL ORDER BY date ASC, start_ts ASC",
		from, to)
}

// FinishedByDate returns finalized sessions for a day in start order, the
// rows exported to CSV.
func (s *Store) FinishedByDate(date string) ([]Session, error) {
	return s.querySessions(
		"SELECT "+sessionColumns+" FROM sessions WHERE date=? AND end_ts IS NOT NULL ORDER BY start_ts ASC",
		date)
}

func (s *Store) querySessions(query string, args ...any) ([]Session, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *sess)
	}
	return sessions, rows.Err()
}

func requireRow(res sql.Result) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrSessionNotFound
	}
	return nil
}
