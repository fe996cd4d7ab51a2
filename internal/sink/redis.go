// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sink

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// latestTTL drops sensors that stopped reporting
const latestTTL = 24 * time.Hour

// Redis keeps the latest reading of each sensor in a hash
type Redis struct {
	rdb *redis.Client
}

// OpenRedis connects to addr and verifies the connection
func OpenRedis(ctx context.Context, addr string) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis %s unavailable: %w", addr, err)
	}
	return &Redis{rdb: rdb}, nil
}

// latestKey is the hash holding sensorID's latest reading
func latestKey(sensorID uint8) string {
	return fmt.Sprintf("solstice:sensor:%d:latest", sensorID)
}

// latestFields flattens r into hash fields
func latestFields(r Reading) map[string]interface{} {
	values := make([]string, len(r.Values))
	for i, v := range r.Values {
		values[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return map[string]interface{}{
		"source":      r.Source,
		"timestamp":   r.Timestamp,
		"received_at": r.ReceivedAt.UTC().Format(time.RFC3339Nano),
		"sequence":    r.Sequence,
		"kind":        r.Kind,
		"values":      strings.Join(values, ","),
		"raw":         fmt.Sprintf("%x", r.Raw),
	}
}

// Store overwrites the sensor's latest reading
func (s *Redis) Store(ctx context.Context, r Reading) error {
	key := latestKey(r.SensorID)
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, key, latestFields(r))
	pipe.Expire(ctx, key, latestTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis update %s: %w", key, err)
	}
	return nil
}

// Close closes the client
func (s *Redis) Close() error {
	return s.rdb.Close()
}
