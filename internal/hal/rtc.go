// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hal

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// SoftRTC emulates an RTC from a host clock. Until SetUnixTime is called it
// follows the host clock (stub mode). DriftPPM makes it run fast (positive)
// or slow (negative) relative to the host, as a cheap crystal would.
type SoftRTC struct {
	mu       sync.Mutex
	clock    Clock
	driftPPM float64

	set    bool
	base   time.Time // host instant of the last SetUnixTime
	offset uint32    // RTC seconds at base

	alarm      uint32
	alarmArmed bool
}

// NewSoftRTC creates a software RTC on clock. A nil clock uses the system clock.
func NewSoftRTC(clock Clock, driftPPM float64) *SoftRTC {
	if clock == nil {
		clock = SystemClock{}
	}
	return &SoftRTC{clock: clock, driftPPM: driftPPM}
}

func (r *SoftRTC) rate() float64 {
	return 1 + r.driftPPM/1e6
}

// seconds returns the fractional RTC time. Callers hold mu.
func (r *SoftRTC) seconds() float64 {
	now := r.clock.Now()
	if !r.set {
		return float64(now.UnixNano()) / 1e9
	}
	elapsed := now.Sub(r.base).Seconds()
	return float64(r.offset) + elapsed*r.rate()
}

// UnixTime returns the RTC time in whole seconds
func (r *SoftRTC) UnixTime() (uint32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.seconds()
	if s < 0 || s > math.MaxUint32 {
		return 0, fmt.Errorf("rtc time %.0f out of range", s)
	}
	return uint32(s), nil
}

// SetUnixTime loads ts into the counter
func (r *SoftRTC) SetUnixTime(ts uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.set = true
	r.base = r.clock.Now()
	r.offset = ts
	return nil
}

// SetAlarm arms the alarm for ts. An alarm at or before the current time is refused.
func (r *SoftRTC) SetAlarm(ts uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if float64(ts) <= r.seconds() {
		return fmt.Errorf("set alarm %d: %w", ts, ErrAlarmInPast)
	}
	r.alarm = ts
	r.alarmArmed = true
	return nil
}

// ClearAlarm disarms the alarm
func (r *SoftRTC) ClearAlarm() error {
	r.mu.Lock()
	r.alarmArmed = false
	r.mu.Unlock()
	return nil
}

// Alarm returns the armed alarm time
func (r *SoftRTC) Alarm() (uint32, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.alarm, r.alarmArmed
}

// UntilAlarm returns the host duration until the alarm fires. An alarm that
// is already due returns zero.
func (r *SoftRTC) UntilAlarm() (time.Duration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.alarmArmed {
		return 0, false
	}
	remaining := float64(r.alarm) - r.seconds()
	if remaining <= 0 {
		return 0, true
	}
	return time.Duration(math.Ceil(remaining / r.rate() * 1e9)), true
}
