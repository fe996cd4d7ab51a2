// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/Thermoquad/solstice/internal/transport"
	"github.com/Thermoquad/solstice/pkg/wakesync"
)

// ============================================================
// Formatting Tests
// ============================================================

func TestFormatSpan(t *testing.T) {
	tests := []struct {
		ms       uint64
		expected string
	}{
		{0, "0 seconds"},
		{1000, "1 second"},
		{59_000, "59 seconds"},
		{60_000, "1 minute"},
		{61_000, "1 minute and 1 second"},
		{3_723_000, "1 hour, 2 minutes, and 3 seconds"},
		{90_000_000, "1 day and 1 hour"},
	}

	for _, tt := range tests {
		if got := formatSpan(tt.ms); got != tt.expected {
			t.Errorf("formatSpan(%d) = %q, expected %q", tt.ms, got, tt.expected)
		}
	}
}

func TestFormatFrame(t *testing.T) {
	at := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	src := transport.NodeAddress(0)

	frame := &transport.Frame{Peer: src, Payload: wakesync.MustEncode(wakesync.NewTimeSync(1000, 1060, 60, 7))}
	out := formatFrame(frame, at)
	if !strings.Contains(out, "TIME_SYNC") || !strings.Contains(out, "from "+src.String()) {
		t.Errorf("Unexpected output:\n%s", out)
	}
	if !strings.Contains(out, "Seq: 7") {
		t.Errorf("Fields missing:\n%s", out)
	}

	bad := &transport.Frame{Peer: src, Payload: []byte{0x01, 0x02}}
	if out := formatFrame(bad, at); !strings.Contains(out, "[ERROR]") || !strings.Contains(out, "01 02") {
		t.Errorf("Expected error output, got:\n%s", out)
	}
}

func TestTimeSyncOf(t *testing.T) {
	if ts, ok := timeSyncOf(wakesync.MustEncode(wakesync.NewTimeSync(1000, 1060, 60, 1))); !ok || ts.NextWakeTime != 1060 {
		t.Errorf("Expected TIME_SYNC, got %+v, %v", ts, ok)
	}
	if _, ok := timeSyncOf(wakesync.MustEncode(wakesync.NewAck(1, 1000))); ok {
		t.Error("ACK accepted as TIME_SYNC")
	}
	if _, ok := timeSyncOf([]byte{0xFF}); ok {
		t.Error("Garbage accepted as TIME_SYNC")
	}
}

// ============================================================
// Simulation Tests
// ============================================================

func TestSpreadDrift(t *testing.T) {
	tests := []struct {
		i, n     int
		limit    float64
		expected float64
	}{
		{0, 1, 50, 50},
		{0, 3, 50, -50},
		{1, 3, 50, 0},
		{2, 3, 50, 50},
		{0, 2, 0, 0},
	}

	for _, tt := range tests {
		if got := spreadDrift(tt.i, tt.n, tt.limit); got != tt.expected {
			t.Errorf("spreadDrift(%d, %d, %v) = %v, expected %v", tt.i, tt.n, tt.limit, got, tt.expected)
		}
	}
}

func TestRandomLoss_Bounds(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	never := randomLoss(0, rng)
	always := randomLoss(1, rng)
	for i := 0; i < 100; i++ {
		if never(transport.NodeAddress(1), transport.Broadcast, nil) {
			t.Fatal("Rate 0 dropped a frame")
		}
		if !always(transport.NodeAddress(1), transport.Broadcast, nil) {
			t.Fatal("Rate 1 delivered a frame")
		}
	}
}

// ============================================================
// Monitor Model Tests
// ============================================================

func TestModel_HandleLink(t *testing.T) {
	m := initialModel("test", 10, false)

	sd, err := wakesync.NewSensorData(3, 1000, 1, []byte{0xAA})
	if err != nil {
		t.Fatalf("NewSensorData failed: %v", err)
	}
	m.handleLink(linkMsg{frame: &transport.Frame{Peer: transport.NodeAddress(3), Payload: wakesync.MustEncode(sd)}})
	if len(m.errorLog) != 0 {
		t.Errorf("Valid record logged in errors-only mode: %+v", m.errorLog)
	}
	if rows := m.sensors.Rows(); len(rows) != 1 || rows[0][0] != "3" {
		t.Errorf("Expected sensor 3 in table, got %v", rows)
	}

	m.handleLink(linkMsg{frame: &transport.Frame{Peer: transport.NodeAddress(3), Payload: []byte{0x03}}})
	m.handleLink(linkMsg{err: errors.New("crc mismatch")})
	if len(m.errorLog) != 2 || !m.errorLog[0].isError || m.frameErrors != 1 {
		t.Errorf("Expected decode and frame errors logged, got %+v", m.errorLog)
	}

	m.handleLink(linkMsg{err: transport.ErrConnectionClosed})
	if !m.closed {
		t.Error("Expected closed connection to be noted")
	}
	if !strings.Contains(m.View(), "Connection closed") {
		t.Error("View does not show closed connection")
	}
}

func TestModel_LogBounded(t *testing.T) {
	m := initialModel("test", 10, true)
	for i := 0; i < m.maxLogEntries+10; i++ {
		m.addLogEntry("event", false)
	}
	if len(m.errorLog) != m.maxLogEntries {
		t.Errorf("Expected %d entries, got %d", m.maxLogEntries, len(m.errorLog))
	}
}
