package store

import (
	"database/sql"
	"fmt"
	"strings"
)

const createSessions = `CREATE TABLE IF NOT EXISTS sessions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	gender TEXT NOT NULL CHECK (gender IN ('M','F','U')),
	date TEXT NOT NULL,
	start_ts INTEGER NOT NULL,
	end_ts INTEGER,
	peak_w REAL DEFAULT 0,
	best_wh60 REAL DEFAULT 0,
	total_wh REAL DEFAULT 0
)`

// migrate creates the schema, rebuilding a legacy sessions table whose
// gender CHECK constraint predates the anonymous 'U' value.
func migrate(db *sql.DB) error {
	var ddl string
	err := db.QueryRow(
		"SELECT sql FROM sqlite_master WHERE type='table' AND name='sessions'",
	).Scan(&ddl)

	switch {
	case err == sql.ErrNoRows:
		if _, err := db.Exec(createSessions); err != nil {
			return fmt.Errorf("creating sessions table: %w", err)
		}
	case err != nil:
		return fmt.Errorf("inspecting schema: %w", err)
	case !strings.Contains(ddl, "CHECK (gender IN ('M','F','U'))"):
		if err := rebuildSessions(db); err != nil {
			return fmt.Errorf("migrating sessions table: %w", err)
		}
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_sessions_date ON sessions(date)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_gender ON sessions(gender)`,
	}
	for _, stmt := range indexes {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("creating index: %w", err)
		}
	}
	return nil
}

// rebuildSessions copies an old-constraint table into a fresh one, coercing
// unknown gender values to 'U'.
func rebuildSessions(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmts := []string{
		strings.Replace(createSessions, "IF NOT EXISTS sessions", "sessions_new", 1),
		`INSERT INTO sessions_new (id,name,gender,date,start_ts,end_ts,peak_w,best_wh60,total_wh)
			SELECT id,name, CASE WHEN gender IN ('M','F') THEN gender ELSE 'U' END,
			       date,start_ts,end_ts,peak_w,best_wh60,total_wh
			FROM sessions`,
		`DROP TABLE sessions`,
		`ALTER TABLE sessions_new RENAME TO sessions`,
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}
