// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package engine

import (
	"fmt"

	"github.com/Thermoquad/solstice/internal/transport"
	"github.com/Thermoquad/solstice/pkg/wakesync"
)

// Role is a node's fixed protocol role
type Role int

const (
	Gateway Role = iota
	Sensor
)

// String returns the role name
func (r Role) String() string {
	switch r {
	case Gateway:
		return "gateway"
	case Sensor:
		return "sensor"
	}
	return fmt.Sprintf("Role(%d)", int(r))
}

// ParseRole parses "gateway" or "sensor"
func ParseRole(s string) (Role, error) {
	switch s {
	case "gateway":
		return Gateway, nil
	case "sensor":
		return Sensor, nil
	}
	return 0, fmt.Errorf("unknown role %q (use gateway or sensor)", s)
}

// Handler receives dispatched records. Methods run inside the engine's
// dispatch and may read engine state but must not block for long.
type Handler interface {
	// OnTimeSync is called on a sensor after its sync state was updated
	OnTimeSync(src transport.Address, ts *wakesync.TimeSync)
	// OnSensorData is called on the gateway before the Ack is sent
	OnSensorData(src transport.Address, sd *wakesync.SensorData)
	// OnAck is called when an Ack arrives
	OnAck(src transport.Address, ack *wakesync.Ack)
}

// NopHandler ignores every record. Embed it to implement only some methods.
type NopHandler struct{}

func (NopHandler) OnTimeSync(transport.Address, *wakesync.TimeSync)     {}
func (NopHandler) OnSensorData(transport.Address, *wakesync.SensorData) {}
func (NopHandler) OnAck(transport.Address, *wakesync.Ack)               {}
