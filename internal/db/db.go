// Package db provides the SQLite connection and schema for huemood.
package db

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite database connection
type DB struct {
	*sql.DB
}

// Open opens the database and initializes the schema
func Open(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &DB{db}, nil
}

// initSchema creates all required tables
func initSchema(db *sql.DB) error {
	// Session ledger - append-only history of mood session lifecycle events
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS session_ledger (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			bulb TEXT NOT NULL,
			event_type TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			payload TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_session_ledger_session ON session_ledger(session_id, timestamp);
		CREATE INDEX IF NOT EXISTS idx_session_ledger_bulb_ts ON session_ledger(bulb, timestamp);
	`)
	if err != nil {
		return fmt.Errorf("failed to create session_ledger table: %w", err)
	}

	return nil
}
