// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package schedule turns a synchronized clock reading and a requested wake
// time into a sleep plan. All functions are pure; time is passed in.
package schedule

import (
	"errors"
	"fmt"
	"time"
)

// ErrTargetNotInFuture is returned when the requested wake time is not
// strictly after the current time
var ErrTargetNotInFuture = errors.New("wake target not in future")

// DefaultFallback is the nominal wake interval used when no usable target exists
const DefaultFallback = 60 * time.Second

// ComputeSleepDuration returns target - current in seconds.
// target must be strictly greater than current.
func ComputeSleepDuration(current, target uint32) (time.Duration, error) {
	if target <= current {
		return 0, fmt.Errorf("%w: target=%d current=%d", ErrTargetNotInFuture, target, current)
	}
	return time.Duration(target-current) * time.Second, nil
}

// Plan describes one sleep
type Plan struct {
	WakeAt   uint32        // Absolute Unix time to arm the RTC alarm for
	Duration time.Duration // Backup timer duration
	Fallback bool          // True when the nominal interval replaced the target
	Reason   string        // Why the fallback was applied
}

// String returns a one-line summary
func (p Plan) String() string {
	if p.Fallback {
		return fmt.Sprintf("sleep %s until %d (fallback: %s)", p.Duration, p.WakeAt, p.Reason)
	}
	return fmt.Sprintf("sleep %s until %d", p.Duration, p.WakeAt)
}

// Scheduler builds sleep plans, falling back to a nominal interval
type Scheduler struct {
	Fallback time.Duration
}

// Plan returns the plan for sleeping from current until target.
// A target at or before current yields a fallback plan of the nominal interval.
func (s Scheduler) Plan(current, target uint32) Plan {
	d, err := ComputeSleepDuration(current, target)
	if err == nil {
		return Plan{WakeAt: target, Duration: d}
	}
	return s.FallbackPlan(current, err.Error())
}

// FallbackPlan returns a plan of the nominal interval starting at current
func (s Scheduler) FallbackPlan(current uint32, reason string) Plan {
	fallback := s.Fallback
	if fallback <= 0 {
		fallback = DefaultFallback
	}
	secs := uint32(fallback / time.Second)
	if secs == 0 {
		secs = 1
	}
	return Plan{
		WakeAt:   current + secs,
		Duration: time.Duration(secs) * time.Second,
		Fallback: true,
		Reason:   reason,
	}
}

// NextWakeTime returns the next wake instant a gateway announces.
// Without align it is now + interval; with align it is the next multiple of
// interval strictly after now, so every sensor wakes on a shared boundary.
// A zero interval is treated as one second.
func NextWakeTime(now uint32, interval uint16, align bool) uint32 {
	step := uint32(interval)
	if step == 0 {
		step = 1
	}
	if !align {
		return now + step
	}
	return (now/step + 1) * step
}
