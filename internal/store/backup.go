package store

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// CSVHeader is the column order used by exports and backups.
var CSVHeader = []string{"id", "name", "gender", "peak_w", "best_wh60", "total_wh", "start_ts", "end_ts"}

// WriteCSV writes finished sessions in export column order.
func WriteCSV(w io.Writer, sessions []Session) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	for _, s := range sessions {
		endTS := ""
		if s.EndTS != nil {
			endTS = strconv.FormatInt(*s.EndTS, 10)
		}
		rec := []string{
			strconv.FormatInt(s.ID, 10),
			s.Name,
			string(s.Gender),
			formatStat(s.PeakW),
			formatStat(s.BestWh60),
			formatStat(s.TotalWh),
			strconv.FormatInt(s.StartTS, 10),
			endTS,
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatStat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// WriteRangeCSV writes sessions spanning multiple days; the row layout is the
// daily export plus a trailing date column.
func WriteRangeCSV(w io.Writer, sessions []Session) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(append(append([]string{}, CSVHeader...), "date")); err != nil {
		return err
	}
	for _, s := range sessions {
		endTS := ""
		if s.EndTS != nil {
			endTS = strconv.FormatInt(*s.EndTS, 10)
		}
		rec := []string{
			strconv.FormatInt(s.ID, 10),
			s.Name,
			string(s.Gender),
			formatStat(s.PeakW),
			formatStat(s.BestWh60),
			formatStat(s.TotalWh),
			strconv.FormatInt(s.StartTS, 10),
			endTS,
			s.Date,
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// BackupResult reports where a backup landed.
type BackupResult struct {
	DBPath  string `json:"db_path"`
	CSVPath string `json:"csv_path"`
}

// Backup writes a consistent snapshot of the database plus a CSV of the
// given day's finished sessions into dir.
func (s *Store) Backup(dir, date string, now time.Time) (*BackupResult, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating backup directory: %w", err)
	}

	dbOut := filepath.Join(dir, fmt.Sprintf("sessions_%s.sqlite", now.Format("2006-01-02_1504")))
	// VACUUM INTO produces a consistent copy without blocking readers.
	if _, err := s.db.Exec("VACUUM INTO ?", dbOut); err != nil {
		return nil, fmt.Errorf("snapshotting database: %w", err)
	}

	sessions, err := s.FinishedByDate(date)
	if err != nil {
		return nil, err
	}
	csvOut := filepath.Join(dir, fmt.Sprintf("sessions_%s.csv", date))
	f, err := os.Create(csvOut)
	if err != nil {
		return nil, fmt.Errorf("creating csv: %w", err)
	}
	defer f.Close()
	if err := WriteCSV(f, sessions); err != nil {
		return nil, fmt.Errorf("writing csv: %w", err)
	}

	return &BackupResult{DBPath: dbOut, CSVPath: csvOut}, nil
}
