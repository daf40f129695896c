package models

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// OpenDB opens the SQLite database at dsn, creating its directory when
// needed, and makes sure the schema exists.
func OpenDB(dsn string) (*sql.DB, error) {
	if dir := filepath.Dir(dsn); dir != "." && dsn != ":memory:" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	// SQLite allows a single writer; serialise access instead of failing
	// with "database is locked".
	db.SetMaxOpenConns(1)

	if err = db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	if err = CreateTables(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func CreateTables(db *sql.DB) error {
	stmts := []struct{ name, sql string }{
		{"sensors", `
			CREATE TABLE IF NOT EXISTS sensors (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				temperature REAL NOT NULL,
				humidity REAL NOT NULL,
				moisture REAL NOT NULL,
				timestamp DATETIME NOT NULL
			);
			CREATE INDEX IF NOT EXISTS sensors_timestamp_idx ON sensors (timestamp);
		`},
		{"plant_profiles", `
			CREATE TABLE IF NOT EXISTS plant_profiles (
				plant_type TEXT PRIMARY KEY,
				temperature_lower REAL NOT NULL,
				temperature_upper REAL NOT NULL,
				humidity_lower REAL NOT NULL,
				humidity_upper REAL NOT NULL,
				moisture_lower REAL NOT NULL,
				moisture_upper REAL NOT NULL,
				created DATETIME NOT NULL
			);
		`},
		{"device_daily_times", `
			CREATE TABLE IF NOT EXISTS device_daily_times (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				date TEXT NOT NULL UNIQUE, -- YYYY-MM-DD
				pump_time_on INTEGER NOT NULL, -- seconds
				readings INTEGER NOT NULL,
				high_temp REAL NOT NULL,
				low_temp REAL NOT NULL,
				high_humidity REAL NOT NULL,
				low_humidity REAL NOT NULL,
				high_moisture REAL NOT NULL,
				low_moisture REAL NOT NULL
			);
		`},
	}
	for _, s := range stmts {
		if _, err := db.Exec(s.sql); err != nil {
			return fmt.Errorf("create %s table: %w", s.name, err)
		}
	}
	return nil
}
