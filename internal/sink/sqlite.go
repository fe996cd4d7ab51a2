// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS readings (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	sensor_id   INTEGER NOT NULL,
	source      TEXT    NOT NULL,
	timestamp   INTEGER NOT NULL,
	received_at INTEGER NOT NULL,
	sequence    INTEGER NOT NULL,
	kind        TEXT    NOT NULL,
	vals        TEXT,
	raw         BLOB
);
CREATE INDEX IF NOT EXISTS idx_readings_sensor ON readings(sensor_id, id);
`

// SQLite keeps every reading in a local database file
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create sqlite schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Store inserts r
func (s *SQLite) Store(ctx context.Context, r Reading) error {
	vals, err := json.Marshal(r.Values)
	if err != nil {
		return fmt.Errorf("encode values: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO readings (sensor_id, source, timestamp, received_at, sequence, kind, vals, raw)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		int64(r.SensorID), r.Source, int64(r.Timestamp), r.ReceivedAt.UnixNano(),
		int64(r.Sequence), r.Kind, string(vals), r.Raw)
	if err != nil {
		return fmt.Errorf("sqlite insert: %w", err)
	}
	return nil
}

// Latest returns the most recent reading from sensorID
func (s *SQLite) Latest(ctx context.Context, sensorID uint8) (Reading, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT sensor_id, source, timestamp, received_at, sequence, kind, vals, raw
		 FROM readings WHERE sensor_id = ? ORDER BY id DESC LIMIT 1`, int64(sensorID))

	var (
		r                   Reading
		id, ts, seq, recvNs int64
		vals                sql.NullString
	)
	if err := row.Scan(&id, &r.Source, &ts, &recvNs, &seq, &r.Kind, &vals, &r.Raw); err != nil {
		return Reading{}, fmt.Errorf("sqlite latest for sensor %d: %w", sensorID, err)
	}
	r.SensorID = uint8(id)
	r.Timestamp = uint32(ts)
	r.Sequence = uint8(seq)
	r.ReceivedAt = time.Unix(0, recvNs)
	if vals.Valid && vals.String != "null" {
		if err := json.Unmarshal([]byte(vals.String), &r.Values); err != nil {
			return Reading{}, fmt.Errorf("decode values: %w", err)
		}
	}
	return r, nil
}

// Count returns the number of stored readings
func (s *SQLite) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM readings`).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite count: %w", err)
	}
	return n, nil
}

// Close closes the database
func (s *SQLite) Close() error {
	return s.db.Close()
}
