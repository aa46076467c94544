package index

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starford/avlog/internal/apperr"
	"github.com/starford/avlog/internal/models"
)

// HourCount is the number of records in one hour bucket.
type HourCount struct {
	Hour    int `json:"hour"`
	Records int `json:"records"`
}

// Stats summarises the catalog contents.
type Stats struct {
	Frames  int `json:"frames"`
	Records int `json:"records"`
	Hours   int `json:"hours"`
}

// RecordRow is the catalog view of one record.
type RecordRow struct {
	Seq        int       `json:"seq"`
	FrameIndex int       `json:"frame_index"`
	Path       string    `json:"path"`
	Hour       int       `json:"hour"`
	Timestamp  time.Time `json:"timestamp"`
	Priority   string    `json:"priority"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Speed      int       `json:"speed"`
	Satellites int       `json:"satellites"`
	EventID    int       `json:"event_id"`
	IOCount    int       `json:"io_count"`
}

// Replace swaps the catalog contents for frames in a single transaction
// and records the run summary. Re-running with the same frames leaves the
// catalog unchanged.
func (db *DB) Replace(frames []*models.Frame, place Placer, summary models.Summary) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if _, err := tx.Exec(`DELETE FROM records`); err != nil {
		return fmt.Errorf("index: clear records: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM frames`); err != nil {
		return fmt.Errorf("index: clear frames: %w", err)
	}

	frameStmt, err := tx.Prepare(`INSERT INTO frames (idx, codec, record_count, crc) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("index: prepare frame insert: %w", err)
	}
	defer frameStmt.Close()

	recStmt, err := tx.Prepare(`
		INSERT INTO records (seq, frame_idx, path, hour, ts_ms, priority, latitude, longitude, speed, satellites, event_id, io_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("index: prepare record insert: %w", err)
	}
	defer recStmt.Close()

	seq := 0
	for fi, f := range frames {
		if _, err := frameStmt.Exec(fi, string(f.Codec), len(f.Records), f.CRC); err != nil {
			return fmt.Errorf("index: insert frame %d: %w", fi, err)
		}
		for ri := range f.Records {
			rec := &f.Records[ri]
			_, err := recStmt.Exec(seq, fi, place.Path(rec), place.Hour(rec), rec.Timestamp.UnixMilli(),
				string(rec.Priority), rec.Latitude, rec.Longitude, rec.Speed, rec.Satellites,
				rec.TriggerEventID, len(rec.IOEvents))
			if err != nil {
				return fmt.Errorf("index: insert record %d: %w", seq, err)
			}
			seq++
		}
	}

	_, err = tx.Exec(`
		INSERT INTO runs (run_id, input, output_root, checksum, lines, frames, records, failures, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			input        = excluded.input,
			output_root  = excluded.output_root,
			checksum     = excluded.checksum,
			lines        = excluded.lines,
			frames       = excluded.frames,
			records      = excluded.records,
			failures     = excluded.failures,
			completed_at = excluded.completed_at
	`, summary.RunID, summary.Input, summary.OutputRoot, summary.Checksum, summary.Lines,
		summary.Frames, summary.Records, summary.Failures, summary.CompletedAt.UTC())
	if err != nil {
		return fmt.Errorf("index: insert run: %w", err)
	}

	return tx.Commit()
}

// Hours returns the record count of every non-empty hour bucket, by hour.
func (db *DB) Hours() ([]HourCount, error) {
	rows, err := db.conn.Query(`SELECT hour, count(*) FROM records GROUP BY hour ORDER BY hour`)
	if err != nil {
		return nil, fmt.Errorf("index: hours: %w", err)
	}
	defer rows.Close()

	var out []HourCount
	for rows.Next() {
		var h HourCount
		if err := rows.Scan(&h.Hour, &h.Records); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// Stats returns frame, record and non-empty hour counts.
func (db *DB) Stats() (Stats, error) {
	var st Stats
	err := db.conn.QueryRow(`
		SELECT
			(SELECT count(*) FROM frames),
			(SELECT count(*) FROM records),
			(SELECT count(DISTINCT hour) FROM records)
	`).Scan(&st.Frames, &st.Records, &st.Hours)
	if err != nil {
		return Stats{}, fmt.Errorf("index: stats: %w", err)
	}
	return st, nil
}

// RecordsBetween returns records with from <= timestamp < to, oldest first.
// A zero from or to leaves that side open; limit <= 0 means 100.
func (db *DB) RecordsBetween(from, to time.Time, limit int) ([]RecordRow, error) {
	if limit <= 0 {
		limit = 100
	}
	lo := int64(-1 << 63)
	if !from.IsZero() {
		lo = from.UnixMilli()
	}
	hi := int64(1<<63 - 1)
	if !to.IsZero() {
		hi = to.UnixMilli()
	}
	if lo > hi {
		return nil, fmt.Errorf("%w: from is after to", apperr.ErrInvalidQuery)
	}

	rows, err := db.conn.Query(`
		SELECT seq, frame_idx, path, hour, ts_ms, priority, latitude, longitude, speed, satellites, event_id, io_count
		FROM records
		WHERE ts_ms >= ? AND ts_ms < ?
		ORDER BY ts_ms, seq
		LIMIT ?
	`, lo, hi, limit)
	if err != nil {
		return nil, fmt.Errorf("index: records between: %w", err)
	}
	defer rows.Close()

	var out []RecordRow
	for rows.Next() {
		var r RecordRow
		var ms int64
		if err := rows.Scan(&r.Seq, &r.FrameIndex, &r.Path, &r.Hour, &ms, &r.Priority,
			&r.Latitude, &r.Longitude, &r.Speed, &r.Satellites, &r.EventID, &r.IOCount); err != nil {
			return nil, err
		}
		r.Timestamp = time.UnixMilli(ms).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// LastRun returns the most recently completed run, or apperr.ErrNotFound.
func (db *DB) LastRun() (*models.Summary, error) {
	var s models.Summary
	err := db.conn.QueryRow(`
		SELECT run_id, input, output_root, checksum, lines, frames, records, failures, completed_at
		FROM runs
		ORDER BY completed_at DESC
		LIMIT 1
	`).Scan(&s.RunID, &s.Input, &s.OutputRoot, &s.Checksum, &s.Lines, &s.Frames, &s.Records, &s.Failures, &s.CompletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("index: last run: %w", err)
	}
	return &s, nil
}
