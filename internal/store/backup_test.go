package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteCSV(t *testing.T) {
	end := int64(2000)
	sessions := []Session{
		{ID: 1, Name: "Ana, ml.", Gender: GenderFemale, StartTS: 1000, EndTS: &end,
			PeakW: 312.5, BestWh60: 3.3, TotalWh: 3.9},
	}

	var sb strings.Builder
	require.NoError(t, WriteCSV(&sb, sessions))

	lines := strings.Split(strings.TrimSpace(sb.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "id,name,gender,peak_w,best_wh60,total_wh,start_ts,end_ts", lines[0])
	// Comma in the name gets quoted.
	assert.Equal(t, `1,"Ana, ml.",F,312.5,3.3,3.9,1000,2000`, lines[1])
}

func TestWriteRangeCSVIncludesDate(t *testing.T) {
	end := int64(2000)
	sessions := []Session{
		{ID: 1, Name: "Ana", Gender: GenderFemale, Date: "2026-08-29", StartTS: 1000,
			EndTS: &end, PeakW: 300, BestWh60: 2, TotalWh: 3},
	}

	var sb strings.Builder
	require.NoError(t, WriteRangeCSV(&sb, sessions))

	lines := strings.Split(strings.TrimSpace(sb.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "id,name,gender,peak_w,best_wh60,total_wh,start_ts,end_ts,date", lines[0])
	assert.Equal(t, "1,Ana,F,300,2,3,1000,2000,2026-08-29", lines[1])
}

func TestFinishedInRange(t *testing.T) {
	s := NewTestStore(t)

	finish(t, s, "Bor", GenderMale, "2026-08-30", 400, 2.5, 4.0)
	finish(t, s, "Ana", GenderFemale, "2026-08-29", 300, 2.0, 3.0)
	mustCreate(t, s, "Cene", GenderMale, "2026-08-29", 100)    // active, excluded
	finish(t, s, "Drago", GenderMale, "2026-09-05", 200, 1, 2) // outside range

	sessions, err := s.FinishedInRange("2026-08-01", "2026-08-31")
	require.NoError(t, err)
	require.Len(t, sessions, 2)

	// Chronological.
	assert.Equal(t, "Ana", sessions[0].Name)
	assert.Equal(t, "Bor", sessions[1].Name)
}

func TestBackup(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "sessions.db")
	s, err := Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	finish(t, s, "Ana", GenderFemale, "2026-08-30", 300, 2.0, 3.0)

	out := filepath.Join(dir, "backups")
	res, err := s.Backup(out, "2026-08-30", time.Date(2026, 8, 30, 18, 4, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.FileExists(t, res.DBPath)
	assert.Contains(t, res.DBPath, "sessions_2026-08-30_1804.sqlite")

	data, err := os.ReadFile(res.CSVPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Ana")

	// The snapshot is itself a readable database.
	copied, err := Open(res.DBPath)
	require.NoError(t, err)
	defer copied.Close()
	sessions, err := copied.FinishedByDate("2026-08-30")
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
}
