// Package db is the SQLite store for centers, lanes, services, promotions
// and lane blocks.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

var (
	// ErrNotFound is returned when a row addressed by id does not exist.
	ErrNotFound = errors.New("db: not found")
	// ErrOwnership is returned when a write targets a promotion owned by
	// another source.
	ErrOwnership = errors.New("db: promotion owned by another source")
)

// DB wraps sql.DB for the nook store.
type DB struct {
	*sql.DB
}

// Open opens the database at path and runs migrations.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if path == ":memory:" {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}
	return &DB{db}, nil
}

// Ping checks the connection for readiness probes.
func (db *DB) Ping(ctx context.Context) error {
	return db.PingContext(ctx)
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS centers (
            id TEXT PRIMARY KEY,
            name TEXT NOT NULL,
            address TEXT NOT NULL DEFAULT '',
            is_active BOOLEAN NOT NULL DEFAULT 1,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
        )`,

		`CREATE TABLE IF NOT EXISTS lanes (
            id TEXT PRIMARY KEY,
            center_id TEXT NOT NULL,
            name TEXT NOT NULL DEFAULT '',
            start_time TEXT,
            end_time TEXT,
            break_start TEXT,
            break_end TEXT,
            slot_duration INTEGER NOT NULL DEFAULT 30,
            is_active BOOLEAN NOT NULL DEFAULT 1,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            FOREIGN KEY (center_id) REFERENCES centers(id)
        )`,

		`CREATE TABLE IF NOT EXISTS services (
            id TEXT PRIMARY KEY,
            name TEXT NOT NULL DEFAULT '',
            base_price_cents INTEGER NOT NULL,
            duration_minutes INTEGER NOT NULL DEFAULT 0,
            is_active BOOLEAN NOT NULL DEFAULT 1,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
        )`,

		`CREATE TABLE IF NOT EXISTS promotions (
            id TEXT PRIMARY KEY,
            name TEXT NOT NULL DEFAULT '',
            kind TEXT NOT NULL,
            happy_hour_model TEXT,
            value INTEGER NOT NULL,
            scope TEXT NOT NULL,
            target_id TEXT,
            start_date TEXT,
            end_date TEXT,
            start_time TEXT,
            end_time TEXT,
            days_of_week TEXT,
            is_active BOOLEAN NOT NULL DEFAULT 1,
            position INTEGER NOT NULL DEFAULT 0,
            source TEXT NOT NULL DEFAULT 'admin',
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
        )`,

		// Instants are unix milliseconds so range queries compare numerically.
		`CREATE TABLE IF NOT EXISTS lane_blocks (
            id TEXT PRIMARY KEY,
            lane_id TEXT NOT NULL,
            center_id TEXT NOT NULL,
            start_at INTEGER NOT NULL,
            end_at INTEGER NOT NULL,
            reason TEXT,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            CHECK (end_at > start_at)
        )`,

		// Indexes
		`CREATE INDEX IF NOT EXISTS idx_lanes_center ON lanes(center_id)`,
		`CREATE INDEX IF NOT EXISTS idx_promotions_position ON promotions(position, id)`,
		`CREATE INDEX IF NOT EXISTS idx_lane_blocks_lane_times ON lane_blocks(lane_id, start_at, end_at)`,
		`CREATE INDEX IF NOT EXISTS idx_lane_blocks_center ON lane_blocks(center_id)`,
	}

	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return fmt.Errorf("exec migration %s: %w", trimSQL(q), err)
		}
	}
	return nil
}

func trimSQL(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 60 {
		return s[:60] + "..."
	}
	return s
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
