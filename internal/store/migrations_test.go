package store

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateLegacyGenderConstraint(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	// Schema from before anonymous sessions existed: no 'U' in the CHECK.
	_, err = db.Exec(`CREATE TABLE sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		gender TEXT NOT NULL CHECK (gender IN ('M','F')),
		date TEXT NOT NULL,
		start_ts INTEGER NOT NULL,
		end_ts INTEGER,
		peak_w REAL DEFAULT 0,
		best_wh60 REAL DEFAULT 0,
		total_wh REAL DEFAULT 0
	)`)
	require.NoError(t, err)
	_, err = db.Exec(
		`INSERT INTO sessions (name,gender,date,start_ts,end_ts,peak_w,best_wh60,total_wh)
		 VALUES ('Ana','F','2026-08-29',100,200,300,2.0,3.0)`)
	require.NoError(t, err)

	require.NoError(t, migrate(db))

	s := &Store{db: db}

	// Existing rows survive the rebuild.
	sess, err := s.GetSession(1)
	require.NoError(t, err)
	assert.Equal(t, "Ana", sess.Name)
	assert.Equal(t, GenderFemale, sess.Gender)
	assert.Equal(t, 300.0, sess.PeakW)

	// The rebuilt table accepts anonymous sessions.
	_, err = s.CreateSession("", GenderUnset, "2026-08-30", 1000)
	assert.NoError(t, err)
}

func TestMigrateIdempotent(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, migrate(db))
	require.NoError(t, migrate(db))
}
