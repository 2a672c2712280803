package store

import (
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"
)

// NewTestStore creates a Store over an in-memory database. This is only
// intended for use in tests.
func NewTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("opening in-memory database: %v", err)
	}
	db.SetMaxOpenConns(1)
	if err := migrate(db); err != nil {
		t.Fatalf("running migrations: %v", err)
	}
	s := &Store{db: db}
	t.Cleanup(func() { s.Close() })
	return s
}
