// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hal

import (
	"context"
	"errors"
	"testing"
	"time"
)

var epoch = time.Unix(1_700_000_000, 0)

// ============================================================
// Wake Source Tests
// ============================================================

func TestWakeSourceString(t *testing.T) {
	tests := []struct {
		source   WakeSource
		expected string
	}{
		{WakeReset, "Power-On Reset"},
		{WakeTimer, "Timer"},
		{WakeRTCAlarm, "RTC Alarm"},
		{WakeButton, "Button Press"},
		{WakeSource(9), "Unknown (9)"},
	}
	for _, tt := range tests {
		if got := tt.source.String(); got != tt.expected {
			t.Errorf("WakeSource(%d).String() = %q, want %q", int(tt.source), got, tt.expected)
		}
	}
}

// ============================================================
// SoftRTC Tests
// ============================================================

func TestSoftRTC_StubModeFollowsClock(t *testing.T) {
	clock := NewManualClock(epoch)
	rtc := NewSoftRTC(clock, 0)

	ts, err := rtc.UnixTime()
	if err != nil || ts != 1_700_000_000 {
		t.Errorf("Expected host time, got %d (%v)", ts, err)
	}
}

func TestSoftRTC_SetAndAdvance(t *testing.T) {
	clock := NewManualClock(epoch)
	rtc := NewSoftRTC(clock, 0)

	rtc.SetUnixTime(1000)
	clock.Advance(250 * time.Second)

	ts, _ := rtc.UnixTime()
	if ts != 1250 {
		t.Errorf("Expected 1250, got %d", ts)
	}
}

func TestSoftRTC_Drift(t *testing.T) {
	clock := NewManualClock(epoch)
	fast := NewSoftRTC(clock, 100) // 100 ppm fast
	slow := NewSoftRTC(clock, -100)

	fast.SetUnixTime(0)
	slow.SetUnixTime(0)
	clock.Advance(100_000 * time.Second)

	f, _ := fast.UnixTime()
	s, _ := slow.UnixTime()
	// Whole-second truncation allows one second of slack
	if f < 100_009 || f > 100_010 {
		t.Errorf("Fast RTC: expected ~100010, got %d", f)
	}
	if s < 99_989 || s > 99_990 {
		t.Errorf("Slow RTC: expected ~99990, got %d", s)
	}
}

func TestSoftRTC_Alarm(t *testing.T) {
	clock := NewManualClock(epoch)
	rtc := NewSoftRTC(clock, 0)
	rtc.SetUnixTime(1000)

	if err := rtc.SetAlarm(1000); !errors.Is(err, ErrAlarmInPast) {
		t.Errorf("Expected ErrAlarmInPast, got %v", err)
	}
	if _, ok := rtc.UntilAlarm(); ok {
		t.Error("Refused alarm must not be armed")
	}

	if err := rtc.SetAlarm(1060); err != nil {
		t.Fatalf("SetAlarm failed: %v", err)
	}
	until, ok := rtc.UntilAlarm()
	if !ok || until != 60*time.Second {
		t.Errorf("Expected 60s until alarm, got %s (%v)", until, ok)
	}

	clock.Advance(90 * time.Second)
	if until, _ := rtc.UntilAlarm(); until != 0 {
		t.Errorf("Due alarm should report zero, got %s", until)
	}

	rtc.ClearAlarm()
	if _, ok := rtc.Alarm(); ok {
		t.Error("Alarm should be cleared")
	}
}

func TestSoftRTC_AlarmWithDrift(t *testing.T) {
	clock := NewManualClock(epoch)
	rtc := NewSoftRTC(clock, 1_000_000) // runs at twice host speed
	rtc.SetUnixTime(0)
	rtc.SetAlarm(100)

	until, _ := rtc.UntilAlarm()
	if until != 50*time.Second {
		t.Errorf("Expected 50s host time, got %s", until)
	}
}

// ============================================================
// SimPower Tests
// ============================================================

func TestSimPower_FirstBoot(t *testing.T) {
	p := NewSimPower(NewManualClock(epoch), nil)
	if !IsFirstBoot(p) {
		t.Error("Fresh controller should report first boot")
	}
	p.Sleep(context.Background(), time.Second, WakeTimer)
	if IsFirstBoot(p) {
		t.Error("After a sleep it is no longer the first boot")
	}
}

func TestSimPower_TimerOnly(t *testing.T) {
	clock := NewManualClock(epoch)
	p := NewSimPower(clock, nil)

	src, err := p.Sleep(context.Background(), 30*time.Second, WakeTimer, WakeRTCAlarm)
	if err != nil || src != WakeTimer {
		t.Fatalf("Expected timer wake, got %s (%v)", src, err)
	}
	if !clock.Now().Equal(epoch.Add(30 * time.Second)) {
		t.Errorf("Clock should advance by the sleep, now %s", clock.Now())
	}
}

func TestSimPower_DualArming(t *testing.T) {
	tests := []struct {
		name     string
		alarmIn  uint32
		timer    time.Duration
		expected WakeSource
		advanced time.Duration
	}{
		{"alarm first", 40, 60 * time.Second, WakeRTCAlarm, 40 * time.Second},
		{"timer first", 90, 60 * time.Second, WakeTimer, 60 * time.Second},
		{"tie goes to alarm", 60, 60 * time.Second, WakeRTCAlarm, 60 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := NewManualClock(epoch)
			rtc := NewSoftRTC(clock, 0)
			rtc.SetUnixTime(1000)
			rtc.SetAlarm(1000 + tt.alarmIn)

			p := NewSimPower(clock, rtc)
			src, err := p.Sleep(context.Background(), tt.timer, WakeTimer, WakeRTCAlarm)
			if err != nil {
				t.Fatalf("Sleep failed: %v", err)
			}
			if src != tt.expected || p.LastWakeSource() != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, src)
			}
			if got := clock.Now().Sub(epoch); got != tt.advanced {
				t.Errorf("Expected %s asleep, got %s", tt.advanced, got)
			}
		})
	}
}

func TestSimPower_NoSource(t *testing.T) {
	p := NewSimPower(NewManualClock(epoch), nil)
	if _, err := p.Sleep(context.Background(), time.Second); !errors.Is(err, ErrNoWakeSource) {
		t.Errorf("Expected ErrNoWakeSource, got %v", err)
	}
	if _, err := p.Sleep(context.Background(), time.Second, WakeRTCAlarm); !errors.Is(err, ErrNoWakeSource) {
		t.Errorf("Alarm without RTC should not count, got %v", err)
	}
}

func TestSimPower_Button(t *testing.T) {
	p := NewSimPower(SystemClock{}, nil)

	done := make(chan WakeSource, 1)
	go func() {
		src, _ := p.Sleep(context.Background(), time.Hour, WakeTimer, WakeButton)
		done <- src
	}()

	time.Sleep(10 * time.Millisecond)
	p.PressButton()

	select {
	case src := <-done:
		if src != WakeButton {
			t.Errorf("Expected button wake, got %s", src)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Button press did not end the sleep")
	}
}

func TestSimPower_RealTimer(t *testing.T) {
	p := NewSimPower(SystemClock{}, nil)
	start := time.Now()
	src, err := p.Sleep(context.Background(), 20*time.Millisecond, WakeTimer)
	if err != nil || src != WakeTimer {
		t.Fatalf("Expected timer wake, got %s (%v)", src, err)
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Error("Sleep returned early")
	}
	if n, total := p.Sleeps(); n != 1 || total != 20*time.Millisecond {
		t.Errorf("Unexpected sleep accounting: %d, %s", n, total)
	}
}

func TestSimPower_Cancelled(t *testing.T) {
	p := NewSimPower(SystemClock{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Sleep(ctx, time.Hour, WakeTimer); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
