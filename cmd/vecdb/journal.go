package main

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// queryJournal records every search invocation to a small SQLite database
// (SPEC_FULL.md §4.6), independent of the collection's own WAL/snapshot
// format — this is host-process telemetry, not collection state, and is
// the mechanism by which the CLI still exercises modernc.org/sqlite even
// though the core's durability is the custom binary format of spec.md
// §4.5.
type queryJournal struct {
	db *sql.DB
}

func openQueryJournal() (*queryJournal, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}
	dir := filepath.Join(home, ".vecdb")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}

	db, err := sql.Open("sqlite", filepath.Join(dir, "queries.db")+"?_journal_mode=WAL&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("open query journal: %w", err)
	}

	const schema = `
CREATE TABLE IF NOT EXISTS queries (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	collection_dir TEXT NOT NULL,
	dimension INTEGER NOT NULL,
	k INTEGER NOT NULL,
	has_filter INTEGER NOT NULL,
	result_count INTEGER NOT NULL,
	latency_ms REAL NOT NULL,
	ran_at TEXT NOT NULL
)`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create journal schema: %w", err)
	}
	return &queryJournal{db: db}, nil
}

func (j *queryJournal) record(collectionDir string, dimension, k int, hasFilter bool, resultCount int, latency time.Duration) error {
	_, err := j.db.Exec(
		`INSERT INTO queries (collection_dir, dimension, k, has_filter, result_count, latency_ms, ran_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		collectionDir, dimension, k, boolToInt(hasFilter), resultCount, float64(latency.Microseconds())/1000.0, time.Now().UTC().Format(time.RFC3339Nano),
	)
	return err
}

func (j *queryJournal) close() error {
	return j.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
