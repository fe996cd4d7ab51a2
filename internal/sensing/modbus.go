// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sensing

import (
	"context"
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	mb "github.com/goburrow/modbus"

	"github.com/Thermoquad/solstice/pkg/wakesync"
)

// MaxRegisters is the most registers whose readings and raw bytes still fit a
// SensorData payload
const MaxRegisters = 16

// ModbusConfig selects the probe and the holding registers to read
type ModbusConfig struct {
	Protocol string        `yaml:"protocol"` // tcp | rtu
	Address  string        `yaml:"address"`  // host:port or serial device
	BaudRate int           `yaml:"baud_rate"`
	Parity   string        `yaml:"parity"`
	SlaveID  uint8         `yaml:"slave_id"`
	Register uint16        `yaml:"register"`
	Quantity uint16        `yaml:"quantity"`
	Scale    float64       `yaml:"scale"`
	Signed   bool          `yaml:"signed"`
	Timeout  time.Duration `yaml:"timeout"`
}

// handlerWithConn is a modbus handler with an explicit connection lifecycle
type handlerWithConn interface {
	mb.ClientHandler
	Connect() error
	Close() error
}

// registerReader is the subset of mb.Client a probe read needs
type registerReader interface {
	ReadHoldingRegisters(address, quantity uint16) ([]byte, error)
}

// Modbus reads holding registers from a probe. The connection is opened and
// closed around every Acquire so nothing is held across a sleep.
type Modbus struct {
	cfg     ModbusConfig
	handler handlerWithConn
	reader  registerReader
}

// NewModbus creates a modbus source
func NewModbus(cfg ModbusConfig) (*Modbus, error) {
	if cfg.Quantity == 0 {
		cfg.Quantity = 1
	}
	if cfg.Scale == 0 {
		cfg.Scale = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	if cfg.Quantity > MaxRegisters {
		return nil, fmt.Errorf("quantity %d exceeds %d registers", cfg.Quantity, MaxRegisters)
	}

	h, err := newHandler(cfg)
	if err != nil {
		return nil, err
	}
	return &Modbus{cfg: cfg, handler: h, reader: mb.NewClient(h)}, nil
}

func newHandler(cfg ModbusConfig) (handlerWithConn, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Protocol)) {
	case "tcp", "modbus-tcp":
		h := mb.NewTCPClientHandler(cfg.Address)
		h.Timeout = cfg.Timeout
		h.SlaveId = cfg.SlaveID
		return h, nil
	case "rtu", "modbus-rtu":
		if strings.TrimSpace(cfg.Address) == "" {
			return nil, fmt.Errorf("serial device is required for RTU")
		}
		h := mb.NewRTUClientHandler(cfg.Address)
		if cfg.BaudRate > 0 {
			h.BaudRate = cfg.BaudRate
		}
		if p := strings.ToUpper(strings.TrimSpace(cfg.Parity)); p != "" {
			h.Parity = p
		}
		h.Timeout = cfg.Timeout
		h.SlaveId = cfg.SlaveID
		return h, nil
	}
	return nil, fmt.Errorf("modbus protocol %q not supported (use tcp or rtu)", cfg.Protocol)
}

// Acquire reads the configured registers and encodes them as a sample
func (m *Modbus) Acquire(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := m.handler.Connect(); err != nil {
		return nil, fmt.Errorf("connect %s: %w", m.cfg.Address, err)
	}
	defer m.handler.Close()

	return m.read()
}

func (m *Modbus) read() ([]byte, error) {
	data, err := m.reader.ReadHoldingRegisters(m.cfg.Register, m.cfg.Quantity)
	if err != nil {
		return nil, fmt.Errorf("read holding %d+%d: %w", m.cfg.Register, m.cfg.Quantity, err)
	}
	readings, err := decodeRegisters(data, m.cfg.Quantity, m.cfg.Signed, m.cfg.Scale)
	if err != nil {
		return nil, err
	}
	return wakesync.EncodeSample(&wakesync.Sample{
		Kind:     wakesync.SampleModbus,
		Readings: readings,
		Raw:      data,
	})
}

// decodeRegisters converts big-endian 16-bit registers to scaled readings
func decodeRegisters(data []byte, quantity uint16, signed bool, scale float64) ([]float64, error) {
	if len(data) != int(quantity)*2 {
		return nil, fmt.Errorf("expected %d register bytes, got %d", int(quantity)*2, len(data))
	}
	readings := make([]float64, quantity)
	for i := range readings {
		raw := binary.BigEndian.Uint16(data[i*2:])
		if signed {
			readings[i] = float64(int16(raw)) * scale
		} else {
			readings[i] = float64(raw) * scale
		}
	}
	return readings, nil
}
