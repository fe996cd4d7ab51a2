// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hal

import (
	"context"
	"sync"
	"time"
)

// AlarmSource reports when an armed RTC alarm will assert its interrupt pin
type AlarmSource interface {
	UntilAlarm() (time.Duration, bool)
}

// SimPower models deep sleep on a host. The RTC alarm and the timer can be
// armed together; whichever fires first ends the sleep. On a ManualClock the
// clock is advanced instead of blocking.
type SimPower struct {
	clock  Clock
	alarm  AlarmSource
	button chan struct{}

	mu     sync.Mutex
	last   WakeSource
	sleeps int
	slept  time.Duration
}

// NewSimPower creates a sleep controller. alarm may be nil when no RTC
// interrupt is wired.
func NewSimPower(clock Clock, alarm AlarmSource) *SimPower {
	if clock == nil {
		clock = SystemClock{}
	}
	return &SimPower{
		clock:  clock,
		alarm:  alarm,
		button: make(chan struct{}, 1),
	}
}

// PressButton asserts the button pin. A press while awake is latched until
// the next sleep that has WakeButton armed.
func (p *SimPower) PressButton() {
	select {
	case p.button <- struct{}{}:
	default:
	}
}

// Sleep blocks until an armed source fires
func (p *SimPower) Sleep(ctx context.Context, d time.Duration, sources ...WakeSource) (WakeSource, error) {
	var (
		wait     time.Duration
		source   WakeSource
		haveWait bool
		button   bool
	)

	for _, s := range sources {
		switch s {
		case WakeTimer:
			if !haveWait || d < wait {
				wait, source, haveWait = d, WakeTimer, true
			}
		case WakeRTCAlarm:
			if p.alarm == nil {
				continue
			}
			if until, ok := p.alarm.UntilAlarm(); ok && (!haveWait || until <= wait) {
				wait, source, haveWait = until, WakeRTCAlarm, true
			}
		case WakeButton:
			button = true
		}
	}
	if !haveWait && !button {
		return WakeReset, ErrNoWakeSource
	}
	if wait < 0 {
		wait = 0
	}

	if button {
		select {
		case <-p.button:
			return p.woke(WakeButton, 0), nil
		default:
		}
	}

	if mc, ok := p.clock.(*ManualClock); ok {
		if !haveWait {
			return WakeReset, ErrNoWakeSource
		}
		if err := ctx.Err(); err != nil {
			return WakeReset, err
		}
		mc.Advance(wait)
		return p.woke(source, wait), nil
	}

	var timeout <-chan time.Time
	if haveWait {
		t := time.NewTimer(wait)
		defer t.Stop()
		timeout = t.C
	}
	var pressed <-chan struct{}
	if button {
		pressed = p.button
	}

	start := p.clock.Now()
	select {
	case <-timeout:
		return p.woke(source, wait), nil
	case <-pressed:
		return p.woke(WakeButton, p.clock.Now().Sub(start)), nil
	case <-ctx.Done():
		return WakeReset, ctx.Err()
	}
}

func (p *SimPower) woke(source WakeSource, slept time.Duration) WakeSource {
	p.mu.Lock()
	p.last = source
	p.sleeps++
	p.slept += slept
	p.mu.Unlock()
	return source
}

// LastWakeSource reports what ended the last sleep
func (p *SimPower) LastWakeSource() WakeSource {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

// Sleeps returns the number of completed sleeps and their total length
func (p *SimPower) Sleeps() (int, time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sleeps, p.slept
}
