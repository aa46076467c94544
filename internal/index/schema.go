// Package index provides a SQLite catalog of decoded frames and records so
// an output tree can be queried by time without walking it.
package index

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS frames (
	idx          INTEGER PRIMARY KEY,
	codec        TEXT    NOT NULL,
	record_count INTEGER NOT NULL,
	crc          INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS records (
	seq          INTEGER PRIMARY KEY,
	frame_idx    INTEGER NOT NULL REFERENCES frames(idx) ON DELETE CASCADE,
	path         TEXT    NOT NULL,
	hour         INTEGER NOT NULL,
	ts_ms        INTEGER NOT NULL,
	priority     TEXT    NOT NULL,
	latitude     REAL    NOT NULL,
	longitude    REAL    NOT NULL,
	speed        INTEGER NOT NULL,
	satellites   INTEGER NOT NULL,
	event_id     INTEGER NOT NULL,
	io_count     INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_records_ts   ON records(ts_ms);
CREATE INDEX IF NOT EXISTS idx_records_hour ON records(hour);

CREATE TABLE IF NOT EXISTS runs (
	run_id       TEXT PRIMARY KEY,
	input        TEXT    NOT NULL,
	output_root  TEXT    NOT NULL,
	checksum     TEXT    NOT NULL,
	lines        INTEGER NOT NULL,
	frames       INTEGER NOT NULL,
	records      INTEGER NOT NULL,
	failures     INTEGER NOT NULL,
	completed_at DATETIME NOT NULL
);
`

// DB wraps a sql.DB with catalog operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("index: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
