package store

import "sort"

const leaderboardSize = 5

// LeaderboardToday builds the daily boards from finished sessions: men and
// women ranked by best 60-second energy and by peak power, top 5 each.
func (s *Store) LeaderboardToday(date string) (*Leaderboard, error) {
	rows, err := s.querySessions(
		"SELECT "+sessionColumns+" FROM sessions WHERE date=? AND end_ts IS NOT NULL", date)
	if err != nil {
		return nil, err
	}
	lb := boardsFromSessions(rows)
	lb.Date = date
	return lb, nil
}

// LeaderboardAll builds the boards over every finished session ever recorded,
// the all-time display. Date is reported as "ALL".
func (s *Store) LeaderboardAll() (*Leaderboard, error) {
	rows, err := s.querySessions(
		"SELECT " + sessionColumns + " FROM sessions WHERE end_ts IS NOT NULL")
	if err != nil {
		return nil, err
	}
	lb := boardsFromSessions(rows)
	lb.Date = "ALL"
	return lb, nil
}

func boardsFromSessions(rows []Session) *Leaderboard {
	var men, women []LeaderboardEntry
	for _, r := range rows {
		e := LeaderboardEntry{
			ID: r.ID, Name: r.Name, Gender: r.Gender,
			PeakW: r.PeakW, BestWh60: r.BestWh60, TotalWh: r.TotalWh,
		}
		switch r.Gender {
		case GenderMale:
			men = append(men, e)
		case GenderFemale:
			women = append(women, e)
		}
	}

	return &Leaderboard{
		MenWh60:    top(men, byBestWh60, leaderboardSize),
		MenPeakW:   top(men, byPeakW, leaderboardSize),
		WomenWh60:  top(women, byBestWh60, leaderboardSize),
		WomenPeakW: top(women, byPeakW, leaderboardSize),
	}
}

// LeaderboardRange builds boards over a date range, grouping sessions by
// normalized name so each rider appears once with their best result. A
// limit <= 0 means no limit.
func (s *Store) LeaderboardRange(from, to string, limit int) (*Leaderboard, error) {
	rows, err := s.db.Query(`
		SELECT
			MIN(s.name)       AS name,
			s.gender          AS gender,
			MAX(s.best_wh60)  AS best_wh60,
			MAX(s.peak_w)     AS peak_w,
			(SELECT s2.id FROM sessions s2
				WHERE s2.end_ts IS NOT NULL AND s2.date BETWEEN ?1 AND ?2
				AND s2.gender = s.gender
				AND LOWER(TRIM(s2.name)) = LOWER(TRIM(s.name))
				ORDER BY s2.best_wh60 DESC, s2.id DESC LIMIT 1) AS id_best_wh60,
			(SELECT s3.id FROM sessions s3
				WHERE s3.end_ts IS NOT NULL AND s3.date BETWEEN ?1 AND ?2
				AND s3.gender = s.gender
				AND LOWER(TRIM(s3.name)) = LOWER(TRIM(s.name))
				ORDER BY s3.peak_w DESC, s3.id DESC LIMIT 1) AS id_peak_w
		FROM sessions s
		WHERE s.end_ts IS NOT NULL
			AND s.date BETWEEN ?1 AND ?2
			AND TRIM(s.name) <> ''
			AND s.gender IN ('M','F')
		GROUP BY LOWER(TRIM(s.name)), s.gender`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	type grouped struct {
		entry      LeaderboardEntry
		idBestWh60 int64
		idPeakW    int64
	}
	var men, women []grouped
	for rows.Next() {
		var g grouped
		err := rows.Scan(&g.entry.Name, &g.entry.Gender, &g.entry.BestWh60,
			&g.entry.PeakW, &g.idBestWh60, &g.idPeakW)
		if err != nil {
			return nil, err
		}
		if g.entry.Gender == GenderMale {
			men = append(men, g)
		} else {
			women = append(women, g)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	boards := func(gs []grouped, metric func(LeaderboardEntry) float64, repID func(grouped) int64) []LeaderboardEntry {
		entries := make([]LeaderboardEntry, len(gs))
		for i, g := range gs {
			entries[i] = g.entry
			entries[i].ID = repID(g)
		}
		return top(entries, metric, limit)
	}
	bestID := func(g grouped) int64 { return g.idBestWh60 }
	peakID := func(g grouped) int64 { return g.idPeakW }

	return &Leaderboard{
		From:       from,
		To:         to,
		MenWh60:    boards(men, byBestWh60, bestID),
		MenPeakW:   boards(men, byPeakW, peakID),
		WomenWh60:  boards(women, byBestWh60, bestID),
		WomenPeakW: boards(women, byPeakW, peakID),
	}, nil
}

// DaySummaries aggregates sessions per calendar day over a date range.
func (s *Store) DaySummaries(from, to string) ([]DaySummary, error) {
	rows, err := s.db.Query(`
		SELECT date,
			COUNT(*),
			SUM(CASE WHEN end_ts IS NOT NULL THEN 1 ELSE 0 END),
			COALESCE(SUM(total_wh),0),
			COALESCE(MAX(peak_w),0),
			COALESCE(MAX(best_wh60),0)
		FROM sessions
		WHERE date BETWEEN ? AND ?
		GROUP BY date
		ORDER BY date DESC`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var days []DaySummary
	for rows.Next() {
		var d DaySummary
		err := rows.Scan(&d.Date, &d.Sessions, &d.SessionsEnded, &d.TotalWh,
			&d.MaxPeakW, &d.MaxBestWh60)
		if err != nil {
			return nil, err
		}
		days = append(days, d)
	}
	return days, rows.Err()
}

// EnergyTotals sums delivered energy over finished sessions, for the given
// day and all time.
func (s *Store) EnergyTotals(date string) (*EnergyTotals, error) {
	var t EnergyTotals
	err := s.db.QueryRow(
		"SELECT COALESCE(SUM(total_wh),0) FROM sessions WHERE date=? AND end_ts IS NOT NULL",
		date,
	).Scan(&t.TodayWh)
	if err != nil {
		return nil, err
	}
	err = s.db.QueryRow(
		"SELECT COALESCE(SUM(total_wh),0) FROM sessions WHERE end_ts IS NOT NULL",
	).Scan(&t.AllWh)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func byBestWh60(e LeaderboardEntry) float64 { return e.BestWh60 }
func byPeakW(e LeaderboardEntry) float64    { return e.PeakW }

// top returns the n highest entries by metric, descending. n <= 0 keeps all.
func top(entries []LeaderboardEntry, metric func(LeaderboardEntry) float64, n int) []LeaderboardEntry {
	sorted := make([]LeaderboardEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return metric(sorted[i]) > metric(sorted[j])
	})
	if n > 0 && len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}
