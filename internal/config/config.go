// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads node configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Thermoquad/solstice/internal/schedule"
	"github.com/Thermoquad/solstice/internal/sensing"
	"github.com/Thermoquad/solstice/internal/sink"
	"github.com/Thermoquad/solstice/internal/transport"
)

// Sample sources
const (
	SourceSynthetic = "synthetic"
	SourceModbus    = "modbus"
)

// Config is the whole node configuration
type Config struct {
	Link    LinkConfig    `yaml:"link"`
	Gateway GatewayConfig `yaml:"gateway"`
	Sensor  SensorConfig  `yaml:"sensor"`
	Sink    sink.Config   `yaml:"sink"`
	Relay   RelayConfig   `yaml:"relay"`
}

// LinkConfig selects how the node reaches the radio: a bridge dongle on a
// serial port, or a relay over WebSocket
type LinkConfig struct {
	Port        string `yaml:"port"`
	Baud        int    `yaml:"baud"`
	URL         string `yaml:"url"`
	Username    string `yaml:"username"`
	NoSSLVerify bool   `yaml:"no_ssl_verify"`
	Address     string `yaml:"address"` // local radio address, derived from the role when empty
}

// GatewayConfig drives the gateway loop
type GatewayConfig struct {
	Interval   uint16        `yaml:"interval"`    // advertised wake interval, seconds
	SyncPeriod time.Duration `yaml:"sync_period"` // TimeSync broadcast period
	Heartbeat  time.Duration `yaml:"heartbeat"`   // status log period
	Align      bool          `yaml:"align"`       // wake on interval boundaries
}

// SensorConfig drives the sensor wake cycle
type SensorConfig struct {
	ID           uint8                `yaml:"id"`
	Gateway      string               `yaml:"gateway"` // gateway radio address
	PollInterval time.Duration        `yaml:"poll_interval"`
	SyncTimeout  time.Duration        `yaml:"sync_timeout"`
	AckWait      time.Duration        `yaml:"ack_wait"`
	Fallback     time.Duration        `yaml:"fallback"` // sleep used without a usable sync
	DriftPPM     float64              `yaml:"drift_ppm"`
	Source       string               `yaml:"source"`
	Bare         bool                 `yaml:"bare"` // send synthetic bytes without a CBOR envelope
	Modbus       sensing.ModbusConfig `yaml:"modbus"`
}

// WithDefaults replaces unset or negative periods and a zero interval with
// the values from Default
func (g GatewayConfig) WithDefaults() GatewayConfig {
	def := Default().Gateway
	if g.Interval == 0 {
		g.Interval = def.Interval
	}
	if g.SyncPeriod <= 0 {
		g.SyncPeriod = def.SyncPeriod
	}
	if g.Heartbeat <= 0 {
		g.Heartbeat = def.Heartbeat
	}
	return g
}

// WithDefaults replaces unset or negative polling and sync timeouts with
// the values from Default. A zero AckWait still disables the ack wait.
func (s SensorConfig) WithDefaults() SensorConfig {
	def := Default().Sensor
	if s.PollInterval <= 0 {
		s.PollInterval = def.PollInterval
	}
	if s.SyncTimeout <= 0 {
		s.SyncTimeout = def.SyncTimeout
	}
	return s
}

// RelayConfig configures the WebSocket radio relay
type RelayConfig struct {
	Listen   string  `yaml:"listen"`
	Username string  `yaml:"username"`
	LossRate float64 `yaml:"loss_rate"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		Link: LinkConfig{Baud: 115200},
		Gateway: GatewayConfig{
			Interval:   60,
			SyncPeriod: 60 * time.Second,
			Heartbeat:  10 * time.Second,
		},
		Sensor: SensorConfig{
			ID:           1,
			Gateway:      transport.NodeAddress(0).String(),
			PollInterval: 100 * time.Millisecond,
			SyncTimeout:  5 * time.Second,
			AckWait:      500 * time.Millisecond,
			Fallback:     schedule.DefaultFallback,
			Source:       SourceSynthetic,
		},
		Relay: RelayConfig{Listen: ":8765"},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the values a node cannot run without
func (c Config) Validate() error {
	var errs []error

	if c.Link.Port != "" && c.Link.URL != "" {
		errs = append(errs, errors.New("link: set port or url, not both"))
	}
	if c.Link.Address != "" {
		if _, err := transport.ParseAddress(c.Link.Address); err != nil {
			errs = append(errs, fmt.Errorf("link.address: %w", err))
		}
	}

	if c.Gateway.Interval == 0 {
		errs = append(errs, errors.New("gateway.interval must be positive"))
	}
	if c.Gateway.SyncPeriod <= 0 {
		errs = append(errs, errors.New("gateway.sync_period must be positive"))
	}
	if c.Gateway.Heartbeat <= 0 {
		errs = append(errs, errors.New("gateway.heartbeat must be positive"))
	}

	if _, err := transport.ParseAddress(c.Sensor.Gateway); err != nil {
		errs = append(errs, fmt.Errorf("sensor.gateway: %w", err))
	}
	if c.Sensor.PollInterval <= 0 {
		errs = append(errs, errors.New("sensor.poll_interval must be positive"))
	}
	if c.Sensor.SyncTimeout < c.Sensor.PollInterval {
		errs = append(errs, errors.New("sensor.sync_timeout must be at least one poll interval"))
	}
	if c.Sensor.AckWait < 0 {
		errs = append(errs, errors.New("sensor.ack_wait must not be negative"))
	}
	if c.Sensor.Fallback < time.Second {
		errs = append(errs, errors.New("sensor.fallback must be at least 1s"))
	}
	switch c.Sensor.Source {
	case SourceSynthetic:
	case SourceModbus:
		if c.Sensor.Modbus.Address == "" {
			errs = append(errs, errors.New("sensor.modbus.address is required for the modbus source"))
		}
	default:
		errs = append(errs, fmt.Errorf("sensor.source %q unknown (use %s or %s)",
			c.Sensor.Source, SourceSynthetic, SourceModbus))
	}

	if c.Relay.LossRate < 0 || c.Relay.LossRate > 1 {
		errs = append(errs, errors.New("relay.loss_rate must be within 0..1"))
	}

	return errors.Join(errs...)
}

// SensorSource builds the configured sample source
func (c Config) SensorSource() (sensing.Source, error) {
	switch c.Sensor.Source {
	case SourceModbus:
		return sensing.NewModbus(c.Sensor.Modbus)
	default:
		return sensing.Synthetic{SensorID: c.Sensor.ID, Bare: c.Sensor.Bare}, nil
	}
}
