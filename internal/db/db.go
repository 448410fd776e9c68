// Package db opens and tunes the SQLite database backing the relational
// result sink.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Register pure-Go SQLite driver for database/sql

	"github.com/mescon/Scanarr/internal/logger"
)

// MaxRetries is the number of attempts for a statement hitting SQLITE_BUSY.
const MaxRetries = 5

// RetryDelay is the base delay between retries (doubles each attempt).
const RetryDelay = 100 * time.Millisecond

// Open opens (creating if needed) the database at dbPath with WAL mode and
// the pragmas this workload wants: concurrent scan workers funnel writes
// through one coordinator, but reads can come from anywhere.
func Open(dbPath string) (*sql.DB, error) {
	if dir := filepath.Dir(dbPath); dir != "" && dir != ":memory:" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL mode allows readers to proceed alongside the single writer; a
	// small pool keeps SQLite lock contention down.
	conn.SetMaxOpenConns(4)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxIdleTime(5 * time.Minute)

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := configure(conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}
	return conn, nil
}

// OpenMemory opens an in-memory database, used by tests.
func OpenMemory() (*sql.DB, error) {
	conn, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database: %w", err)
	}
	// A single connection so every statement sees the same memory database.
	conn.SetMaxOpenConns(1)
	if err := configure(conn); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

func configure(conn *sql.DB) error {
	critical := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=30000",
	}
	for _, pragma := range critical {
		if _, err := conn.Exec(pragma); err != nil {
			return fmt.Errorf("failed to set pragma %s: %w", pragma, err)
		}
	}

	optional := []string{
		"PRAGMA synchronous=FULL",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA cache_size=-8000",
	}
	for _, pragma := range optional {
		if _, err := conn.Exec(pragma); err != nil {
			logger.Debugf("Failed to set optional pragma %s: %v", pragma, err)
		}
	}
	return nil
}

// GracefulClose checkpoints the WAL into the main file and closes the
// connection. Call on shutdown.
func GracefulClose(conn *sql.DB) error {
	if _, err := conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		logger.Warnf("Shutdown WAL checkpoint failed: %v", err)
	}
	if err := conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
