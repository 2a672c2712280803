package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func finish(t *testing.T, s *Store, name string, g Gender, date string, peakW, bestWh60, totalWh float64) int64 {
	t.Helper()
	id := mustCreate(t, s, name, g, date, 1000)
	require.NoError(t, s.FinalizeSession(id, 2000, peakW, bestWh60, totalWh))
	return id
}

func TestLeaderboardToday(t *testing.T) {
	s := NewTestStore(t)
	date := "2026-08-30"

	finish(t, s, "Ana", GenderFemale, date, 250, 2.0, 3.0)
	finish(t, s, "Bor", GenderMale, date, 400, 2.5, 4.0)
	finish(t, s, "Cene", GenderMale, date, 350, 3.1, 5.0)
	finish(t, s, "", GenderUnset, date, 500, 4.0, 6.0) // anonymous, no board
	mustCreate(t, s, "Drago", GenderMale, date, 9000)  // still active, excluded
	finish(t, s, "Eva", GenderFemale, "2026-08-29", 999, 9.9, 9.9)

	lb, err := s.LeaderboardToday(date)
	require.NoError(t, err)

	require.Len(t, lb.MenWh60, 2)
	assert.Equal(t, "Cene", lb.MenWh60[0].Name)
	assert.Equal(t, "Bor", lb.MenWh60[1].Name)

	require.Len(t, lb.MenPeakW, 2)
	assert.Equal(t, "Bor", lb.MenPeakW[0].Name)

	require.Len(t, lb.WomenWh60, 1)
	assert.Equal(t, "Ana", lb.WomenWh60[0].Name)
}

func TestLeaderboardTodayTopFive(t *testing.T) {
	s := NewTestStore(t)
	date := "2026-08-30"
	names := []string{"a", "b", "c", "d", "e", "f", "g"}
	for i, n := range names {
		finish(t, s, n, GenderMale, date, float64(100+i), float64(i), float64(i))
	}

	lb, err := s.LeaderboardToday(date)
	require.NoError(t, err)
	assert.Len(t, lb.MenWh60, 5)
	assert.Len(t, lb.MenPeakW, 5)
	assert.Equal(t, "g", lb.MenPeakW[0].Name)
}

func TestLeaderboardAll(t *testing.T) {
	s := NewTestStore(t)

	finish(t, s, "Ana", GenderFemale, "2026-08-29", 250, 2.0, 3.0)
	finish(t, s, "Bor", GenderMale, "2026-08-29", 400, 2.5, 4.0)
	finish(t, s, "Cene", GenderMale, "2026-08-30", 350, 3.1, 5.0)
	mustCreate(t, s, "Drago", GenderMale, "2026-08-30", 9000) // active, excluded

	lb, err := s.LeaderboardAll()
	require.NoError(t, err)

	// Spans both days.
	assert.Equal(t, "ALL", lb.Date)
	require.Len(t, lb.MenWh60, 2)
	assert.Equal(t, "Cene", lb.MenWh60[0].Name)
	assert.Equal(t, "Bor", lb.MenPeakW[0].Name)
	require.Len(t, lb.WomenWh60, 1)
}

func TestLeaderboardRangeGroupsByName(t *testing.T) {
	s := NewTestStore(t)

	// Same rider across days and with case/space variance: one row, best result.
	best := finish(t, s, "Ana", GenderFemale, "2026-08-29", 300, 2.0, 3.0)
	finish(t, s, " ana ", GenderFemale, "2026-08-30", 280, 1.5, 2.0)
	finish(t, s, "Bor", GenderMale, "2026-08-30", 400, 2.5, 4.0)
	finish(t, s, "", GenderUnset, "2026-08-30", 900, 9.0, 9.0) // anonymous excluded

	lb, err := s.LeaderboardRange("2026-08-29", "2026-08-30", 0)
	require.NoError(t, err)

	require.Len(t, lb.WomenWh60, 1)
	assert.Equal(t, 2.0, lb.WomenWh60[0].BestWh60)
	assert.Equal(t, best, lb.WomenWh60[0].ID)

	require.Len(t, lb.WomenPeakW, 1)
	assert.Equal(t, 300.0, lb.WomenPeakW[0].PeakW)

	require.Len(t, lb.MenWh60, 1)
	assert.Equal(t, "Bor", lb.MenWh60[0].Name)
}

func TestLeaderboardRangeLimit(t *testing.T) {
	s := NewTestStore(t)
	for _, n := range []string{"a", "b", "c"} {
		finish(t, s, n, GenderMale, "2026-08-30", 100, 1, 1)
	}

	lb, err := s.LeaderboardRange("2026-08-30", "2026-08-30", 2)
	require.NoError(t, err)
	assert.Len(t, lb.MenWh60, 2)

	lb, err = s.LeaderboardRange("2026-08-30", "2026-08-30", 0)
	require.NoError(t, err)
	assert.Len(t, lb.MenWh60, 3)
}

func TestDaySummaries(t *testing.T) {
	s := NewTestStore(t)

	finish(t, s, "Ana", GenderFemale, "2026-08-29", 300, 2.0, 3.0)
	finish(t, s, "Bor", GenderMale, "2026-08-29", 400, 2.5, 4.5)
	mustCreate(t, s, "Cene", GenderMale, "2026-08-29", 100) // active
	finish(t, s, "Drago", GenderMale, "2026-08-30", 200, 1.0, 2.0)

	days, err := s.DaySummaries("2026-08-29", "2026-08-30")
	require.NoError(t, err)
	require.Len(t, days, 2)

	// Newest first.
	assert.Equal(t, "2026-08-30", days[0].Date)
	assert.Equal(t, 1, days[0].Sessions)

	d := days[1]
	assert.Equal(t, "2026-08-29", d.Date)
	assert.Equal(t, 3, d.Sessions)
	assert.Equal(t, 2, d.SessionsEnded)
	assert.InDelta(t, 7.5, d.TotalWh, 1e-9)
	assert.Equal(t, 400.0, d.MaxPeakW)
	assert.Equal(t, 2.5, d.MaxBestWh60)
}

func TestEnergyTotals(t *testing.T) {
	s := NewTestStore(t)

	finish(t, s, "Ana", GenderFemale, "2026-08-29", 300, 2.0, 3.0)
	finish(t, s, "Bor", GenderMale, "2026-08-30", 400, 2.5, 4.5)
	mustCreate(t, s, "Cene", GenderMale, "2026-08-30", 100) // active, excluded

	totals, err := s.EnergyTotals("2026-08-30")
	require.NoError(t, err)
	assert.InDelta(t, 4.5, totals.TodayWh, 1e-9)
	assert.InDelta(t, 7.5, totals.AllWh, 1e-9)
}
