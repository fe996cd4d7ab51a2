// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package monitor

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Thermoquad/solstice/internal/engine"
	"github.com/Thermoquad/solstice/internal/transport"
	"github.com/Thermoquad/solstice/pkg/wakesync"
)

func sensorData(t *testing.T, id, seq uint8, payload []byte) []byte {
	t.Helper()
	sd, err := wakesync.NewSensorData(id, 1000, seq, payload)
	if err != nil {
		t.Fatalf("NewSensorData failed: %v", err)
	}
	return wakesync.MustEncode(sd)
}

// ============================================================
// Observe Tests
// ============================================================

func TestObserve_ValidTimeSync(t *testing.T) {
	m := New()
	gw := transport.NodeAddress(0)
	at := time.Unix(5, 0)

	ev := m.Observe(gw, wakesync.MustEncode(wakesync.NewTimeSync(1000, 1060, 60, 1)), at)
	if ev.IsError() {
		t.Fatalf("Valid TimeSync flagged: %s", ev.Summary())
	}
	if ev.Seq != engine.SeqFirst {
		t.Errorf("Expected first sequence, got %d", ev.Seq)
	}
	if !strings.Contains(ev.Summary(), "TIME_SYNC seq=1") {
		t.Errorf("Unexpected summary: %s", ev.Summary())
	}

	ts, ok := m.LastSync()
	if !ok || ts.NextWakeTime != 1060 {
		t.Errorf("LastSync = %+v, %v", ts, ok)
	}

	stats := m.Statistics()
	if stats.TotalPackets != 1 || stats.ValidPackets != 1 || stats.TimeSyncs != 1 {
		t.Errorf("Unexpected statistics: %+v", stats)
	}
}

func TestObserve_DecodeError(t *testing.T) {
	m := New()
	data := wakesync.MustEncode(wakesync.NewAck(3, 1000))
	data[2] ^= 0x01

	ev := m.Observe(transport.NodeAddress(0), data, time.Now())
	if !errors.Is(ev.DecodeErr, wakesync.ErrChecksumMismatch) {
		t.Fatalf("Expected checksum mismatch, got %v", ev.DecodeErr)
	}
	if !ev.IsError() || !strings.Contains(ev.Summary(), "DECODE ERROR") {
		t.Errorf("Unexpected summary: %s", ev.Summary())
	}
	if stats := m.Statistics(); stats.ChecksumErrors != 1 || stats.DecodeErrors() != 1 {
		t.Errorf("Unexpected statistics: %+v", stats)
	}
}

func TestObserve_Anomaly(t *testing.T) {
	m := New()
	ev := m.Observe(transport.NodeAddress(0), wakesync.MustEncode(wakesync.NewTimeSync(1000, 1000, 60, 1)), time.Now())
	if len(ev.Anomalies) == 0 {
		t.Fatal("Expected wake-not-future anomaly")
	}
	if !strings.Contains(ev.Summary(), "WAKE_NOT_FUTURE") {
		t.Errorf("Unexpected summary: %s", ev.Summary())
	}
	if stats := m.Statistics(); stats.AnomalousPackets != 1 || stats.WakeNotFuture != 1 {
		t.Errorf("Unexpected statistics: %+v", stats)
	}
}

func TestObserve_SequenceGapsAndDuplicates(t *testing.T) {
	m := New()
	src := transport.NodeAddress(4)

	seqs := []uint8{1, 2, 2, 5}
	want := []engine.SeqResult{engine.SeqFirst, engine.SeqInOrder, engine.SeqDuplicate, engine.SeqGap}
	var last Event
	for i, seq := range seqs {
		last = m.Observe(src, sensorData(t, 4, seq, []byte{seq}), time.Now())
		if last.Seq != want[i] {
			t.Errorf("Step %d: expected %d, got %d", i, want[i], last.Seq)
		}
	}
	if !last.SequenceIssue() || last.Missing != 2 || !strings.Contains(last.Summary(), "gap: 2 missing") {
		t.Errorf("Unexpected gap report: %s", last.Summary())
	}

	stats := m.Statistics()
	if stats.SequenceGaps != 1 || stats.SequenceDuplicate != 1 {
		t.Errorf("Expected 1 gap and 1 duplicate, got %d and %d", stats.SequenceGaps, stats.SequenceDuplicate)
	}

	sensors := m.Sensors()
	if len(sensors) != 1 {
		t.Fatalf("Expected 1 sensor, got %d", len(sensors))
	}
	if s := sensors[0]; s.ID != 4 || s.Addr != src || s.Packets != 4 || s.Gaps != 1 || s.LastSequence != 5 {
		t.Errorf("Unexpected sensor state: %+v", s)
	}
}

func TestSensors_OrderedWithSample(t *testing.T) {
	m := New()
	sample, err := wakesync.EncodeSample(&wakesync.Sample{Kind: wakesync.SampleSynthetic, Raw: []byte{1, 2}})
	if err != nil {
		t.Fatalf("EncodeSample failed: %v", err)
	}
	m.Observe(transport.NodeAddress(9), sensorData(t, 9, 1, []byte{0xAB}), time.Now())
	m.Observe(transport.NodeAddress(2), sensorData(t, 2, 1, sample), time.Now())

	sensors := m.Sensors()
	if len(sensors) != 2 || sensors[0].ID != 2 || sensors[1].ID != 9 {
		t.Fatalf("Sensors not ordered by ID: %+v", sensors)
	}
	if sensors[1].LastSample != "AB" {
		t.Errorf("Expected hex sample, got %q", sensors[1].LastSample)
	}
	if sensors[0].LastSample != "Sample: synthetic raw=01 02" {
		t.Errorf("Expected decoded sample, got %q", sensors[0].LastSample)
	}
}

func TestLastSync_Empty(t *testing.T) {
	if _, ok := New().LastSync(); ok {
		t.Error("Expected no sync on a new monitor")
	}
}
