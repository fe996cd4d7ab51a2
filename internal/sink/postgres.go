// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS sensor_readings (
	time        TIMESTAMPTZ      NOT NULL,
	sensor_id   SMALLINT         NOT NULL,
	source      TEXT             NOT NULL,
	timestamp   BIGINT           NOT NULL,
	sequence    SMALLINT         NOT NULL,
	kind        TEXT             NOT NULL,
	vals        DOUBLE PRECISION[],
	raw         BYTEA
)`

// Postgres inserts readings into a (Timescale-compatible) table
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to url, verifies the connection and creates the table
func OpenPostgres(ctx context.Context, url string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("postgres config: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres unavailable: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create postgres schema: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Store inserts r
func (p *Postgres) Store(ctx context.Context, r Reading) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO sensor_readings (time, sensor_id, source, timestamp, sequence, kind, vals, raw)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		r.ReceivedAt, int16(r.SensorID), r.Source, int64(r.Timestamp), int16(r.Sequence),
		r.Kind, r.Values, r.Raw)
	if err != nil {
		return fmt.Errorf("postgres insert: %w", err)
	}
	return nil
}

// Close closes the pool
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
