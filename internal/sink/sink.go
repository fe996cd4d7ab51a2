// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package sink stores the readings a gateway receives.
package sink

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Thermoquad/solstice/internal/logging"
	"github.com/Thermoquad/solstice/internal/transport"
	"github.com/Thermoquad/solstice/pkg/wakesync"
)

// Reading kinds
const (
	KindSynthetic = "synthetic"
	KindModbus    = "modbus"
	KindRaw       = "raw"
)

// Reading is one SensorData record as received by the gateway
type Reading struct {
	SensorID   uint8     `json:"sensor_id"`
	Source     string    `json:"source"`
	Timestamp  uint32    `json:"timestamp"`
	ReceivedAt time.Time `json:"received_at"`
	Sequence   uint8     `json:"sequence"`
	Kind       string    `json:"kind"`
	Values     []float64 `json:"values,omitempty"`
	Raw        []byte    `json:"raw,omitempty"`
}

// NewReading builds a reading from a received record. A CBOR sample payload is
// unpacked; anything else is kept as raw bytes.
func NewReading(src transport.Address, sd *wakesync.SensorData, at time.Time) Reading {
	r := Reading{
		SensorID:   sd.SensorID,
		Source:     src.String(),
		Timestamp:  sd.Timestamp,
		ReceivedAt: at,
		Sequence:   sd.Sequence,
		Kind:       KindRaw,
		Raw:        append([]byte(nil), sd.Payload()...),
	}

	sample, err := wakesync.DecodeSample(r.Raw)
	if err != nil {
		return r
	}
	switch sample.Kind {
	case wakesync.SampleSynthetic:
		r.Kind = KindSynthetic
	case wakesync.SampleModbus:
		r.Kind = KindModbus
	default:
		return r
	}
	r.Values = sample.Readings
	r.Raw = sample.Raw
	return r
}

// String returns a one-line summary
func (r Reading) String() string {
	s := fmt.Sprintf("sensor %d (%s) %s seq=%d at %s", r.SensorID, r.Source, r.Kind, r.Sequence,
		wakesync.FormatUnix(r.Timestamp))
	if len(r.Values) > 0 {
		s += fmt.Sprintf(" values=%v", r.Values)
	}
	if len(r.Raw) > 0 {
		s += " raw=" + wakesync.FormatHex(r.Raw)
	}
	return s
}

// Sink persists readings
type Sink interface {
	Store(ctx context.Context, r Reading) error
	Close() error
}

// Multi fans a reading out to every sink. All sinks are attempted; their
// errors are joined.
type Multi []Sink

// Store writes r to every sink
func (m Multi) Store(ctx context.Context, r Reading) error {
	var errs []error
	for _, s := range m {
		if err := s.Store(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink
func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Log writes readings to the log
type Log struct {
	Log logging.Logger
}

// Store logs r
func (l Log) Store(_ context.Context, r Reading) error {
	l.Log.Infof("reading: %s", r)
	return nil
}

// Close does nothing
func (Log) Close() error { return nil }

// Config selects the sinks a gateway writes to. Empty fields are disabled.
type Config struct {
	SQLite   string     `yaml:"sqlite"`   // database file
	Postgres string     `yaml:"postgres"` // connection URL
	Redis    string     `yaml:"redis"`    // host:port
	MQTT     MQTTConfig `yaml:"mqtt"`
}

// Open connects every configured sink. The log sink is always included.
func Open(ctx context.Context, cfg Config, log logging.Logger) (Sink, error) {
	sinks := Multi{Log{Log: log}}

	fail := func(err error) (Sink, error) {
		sinks.Close()
		return nil, err
	}

	if cfg.SQLite != "" {
		s, err := OpenSQLite(ctx, cfg.SQLite)
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, s)
		log.Infof("storing readings in sqlite %s", cfg.SQLite)
	}
	if cfg.Postgres != "" {
		s, err := OpenPostgres(ctx, cfg.Postgres)
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, s)
		log.Infof("storing readings in postgres")
	}
	if cfg.Redis != "" {
		s, err := OpenRedis(ctx, cfg.Redis)
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, s)
		log.Infof("caching latest readings in redis %s", cfg.Redis)
	}
	if cfg.MQTT.Broker != "" {
		s, err := OpenMQTT(cfg.MQTT)
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, s)
		log.Infof("publishing readings to %s under %s", cfg.MQTT.Broker, cfg.MQTT.Topic)
	}
	return sinks, nil
}
