package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionLifecycleRoundTrip(t *testing.T) {
	s := NewTestStore(t)

	id, err := s.CreateSession("", GenderUnset, "2026-08-30", 1000)
	require.NoError(t, err)
	require.NotZero(t, id)

	sess, err := s.GetSession(id)
	require.NoError(t, err)
	assert.Equal(t, GenderUnset, sess.Gender)
	assert.Nil(t, sess.EndTS)
	assert.False(t, sess.Finished())
	assert.True(t, sess.Unsaved())

	require.NoError(t, s.FinalizeSession(id, 61000, 312.0, 3.3, 3.9))

	sess, err = s.GetSession(id)
	require.NoError(t, err)
	require.NotNil(t, sess.EndTS)
	assert.Equal(t, int64(61000), *sess.EndTS)
	assert.Equal(t, 312.0, sess.PeakW)
	assert.Equal(t, 3.3, sess.BestWh60)
	assert.Equal(t, 3.9, sess.TotalWh)

	require.NoError(t, s.RenameSession(id, "Ana", GenderFemale))
	sess, err = s.GetSession(id)
	require.NoError(t, err)
	assert.Equal(t, "Ana", sess.Name)
	assert.Equal(t, GenderFemale, sess.Gender)
	assert.False(t, sess.Unsaved())
	// Rename must not touch the frozen statistics.
	assert.Equal(t, 3.9, sess.TotalWh)

	require.NoError(t, s.DeleteSession(id))
	_, err = s.GetSession(id)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestNotFoundErrors(t *testing.T) {
	s := NewTestStore(t)

	_, err := s.GetSession(42)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, s.FinalizeSession(42, 1, 0, 0, 0), ErrSessionNotFound)
	assert.ErrorIs(t, s.RenameSession(42, "Ana", GenderFemale), ErrSessionNotFound)
	assert.ErrorIs(t, s.DeleteSession(42), ErrSessionNotFound)
}

func TestSessionsByDateAndRange(t *testing.T) {
	s := NewTestStore(t)

	mustCreate(t, s, "Ana", GenderFemale, "2026-08-29", 100)
	mustCreate(t, s, "Bor", GenderMale, "2026-08-30", 200)
	mustCreate(t, s, "Cene", GenderMale, "2026-08-30", 300)
	mustCreate(t, s, "Drago", GenderMale, "2026-09-01", 400)

	today, err := s.SessionsByDate("2026-08-30")
	require.NoError(t, err)
	require.Len(t, today, 2)
	// Newest first.
	assert.Equal(t, "Cene", today[0].Name)
	assert.Equal(t, "Bor", today[1].Name)

	ranged, err := s.SessionsInRange("2026-08-29", "2026-08-30")
	require.NoError(t, err)
	assert.Len(t, ranged, 3)

	empty, err := s.SessionsByDate("2025-01-01")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestFinishedByDateExcludesActive(t *testing.T) {
	s := NewTestStore(t)

	active := mustCreate(t, s, "Ana", GenderFemale, "2026-08-30", 100)
	done := mustCreate(t, s, "Bor", GenderMale, "2026-08-30", 200)
	require.NoError(t, s.FinalizeSession(done, 300, 100, 1, 2))

	finished, err := s.FinishedByDate("2026-08-30")
	require.NoError(t, err)
	require.Len(t, finished, 1)
	assert.Equal(t, done, finished[0].ID)
	assert.NotEqual(t, active, finished[0].ID)
}

func TestUnsavedClassification(t *testing.T) {
	tests := []struct {
		name    string
		session Session
		unsaved bool
	}{
		{"anonymous", Session{Name: "", Gender: GenderUnset}, true},
		{"named but unset gender", Session{Name: "Ana", Gender: GenderUnset}, true},
		{"gendered but blank name", Session{Name: "   ", Gender: GenderMale}, true},
		{"saved", Session{Name: "Ana", Gender: GenderFemale}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.unsaved, tt.session.Unsaved())
		})
	}
}

func mustCreate(t *testing.T, s *Store, name string, g Gender, date string, startTS int64) int64 {
	t.Helper()
	id, err := s.CreateSession(name, g, date, startTS)
	require.NoError(t, err)
	return id
}
