// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package hal abstracts the real-time clock and the sleep controller a node
// runs on, with software implementations for hosts without that hardware.
package hal

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Errors
var (
	ErrNoWakeSource = errors.New("no wake source armed")
	ErrAlarmInPast  = errors.New("alarm time not in the future")
)

// WakeSource identifies what ended the last sleep
type WakeSource int

const (
	WakeReset    WakeSource = iota // power-on reset, no sleep yet
	WakeTimer                      // sleep timer expired
	WakeRTCAlarm                   // RTC interrupt pin
	WakeButton                     // user button pin
)

// String returns the wake source name
func (w WakeSource) String() string {
	switch w {
	case WakeReset:
		return "Power-On Reset"
	case WakeTimer:
		return "Timer"
	case WakeRTCAlarm:
		return "RTC Alarm"
	case WakeButton:
		return "Button Press"
	}
	return fmt.Sprintf("Unknown (%d)", int(w))
}

// RTC is a battery-backed clock counting Unix seconds with one alarm
type RTC interface {
	UnixTime() (uint32, error)
	SetUnixTime(ts uint32) error
	SetAlarm(ts uint32) error
	ClearAlarm() error
}

// Power puts the node to sleep until one of the armed sources fires
type Power interface {
	// Sleep blocks until a source in sources fires or ctx ends. WakeTimer
	// fires after d.
	Sleep(ctx context.Context, d time.Duration, sources ...WakeSource) (WakeSource, error)
	// LastWakeSource reports what ended the last sleep
	LastWakeSource() WakeSource
}

// IsFirstBoot reports whether the node has not slept since power-on
func IsFirstBoot(p Power) bool {
	return p.LastWakeSource() == WakeReset
}

// Clock supplies the host time a software RTC is derived from
type Clock interface {
	Now() time.Time
}

// SystemClock reads the host wall clock
type SystemClock struct{}

// Now returns time.Now()
func (SystemClock) Now() time.Time { return time.Now() }
