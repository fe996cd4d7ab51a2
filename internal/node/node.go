// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package node runs the gateway and sensor roles on top of the protocol
// engine, the wake scheduler and the node's hardware.
package node

import (
	"fmt"

	"github.com/Thermoquad/solstice/internal/hal"
	"github.com/Thermoquad/solstice/internal/logging"
	"github.com/Thermoquad/solstice/internal/transport"
)

// Context carries everything one node owns. It is passed explicitly so
// several nodes can share a process.
type Context struct {
	Transport transport.Transport
	RTC       hal.RTC
	Power     hal.Power // sensor only
	Log       logging.Logger
}

func (c Context) validate(needPower bool) error {
	if c.Transport == nil {
		return fmt.Errorf("node context: transport is required")
	}
	if c.RTC == nil {
		return fmt.Errorf("node context: rtc is required")
	}
	if needPower && c.Power == nil {
		return fmt.Errorf("node context: power controller is required")
	}
	return nil
}

// now reads the RTC, logging failures
func (c Context) now() (uint32, error) {
	ts, err := c.RTC.UnixTime()
	if err != nil {
		c.Log.Errorf("failed to read rtc: %v", err)
		return 0, fmt.Errorf("read rtc: %w", err)
	}
	return ts, nil
}
