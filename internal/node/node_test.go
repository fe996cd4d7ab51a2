// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package node

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Thermoquad/solstice/internal/config"
	"github.com/Thermoquad/solstice/internal/engine"
	"github.com/Thermoquad/solstice/internal/hal"
	"github.com/Thermoquad/solstice/internal/logging"
	"github.com/Thermoquad/solstice/internal/sink"
	"github.com/Thermoquad/solstice/internal/transport"
	"github.com/Thermoquad/solstice/pkg/wakesync"
)

// ============================================================
// Test Helpers
// ============================================================

var hostEpoch = time.Unix(1_700_000_000, 0)

type memSink struct {
	mu       sync.Mutex
	readings []sink.Reading
	err      error
}

func (m *memSink) Store(_ context.Context, r sink.Reading) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.readings = append(m.readings, r)
	return nil
}

func (m *memSink) Close() error { return nil }

func (m *memSink) snapshot() []sink.Reading {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sink.Reading(nil), m.readings...)
}

func join(t *testing.T, air *transport.Air, id uint8) *transport.AirEndpoint {
	t.Helper()
	ep, err := air.Join(transport.NodeAddress(id))
	if err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	t.Cleanup(func() { ep.Close() })
	return ep
}

func sensorConfig(id uint8) config.SensorConfig {
	cfg := config.Default().Sensor
	cfg.ID = id
	cfg.PollInterval = 5 * time.Millisecond
	cfg.SyncTimeout = 2 * time.Second
	cfg.AckWait = time.Second
	return cfg
}

func newSensor(t *testing.T, ep transport.Transport, clock hal.Clock, cfg config.SensorConfig) (*Sensor, *hal.SoftRTC, *hal.SimPower) {
	t.Helper()
	rtc := hal.NewSoftRTC(clock, 0)
	power := hal.NewSimPower(clock, rtc)
	s, err := NewSensor(Context{Transport: ep, RTC: rtc, Power: power, Log: logging.New("sensor")}, cfg, nil)
	if err != nil {
		t.Fatalf("NewSensor failed: %v", err)
	}
	return s, rtc, power
}

// ============================================================
// Sensor Cycle Tests
// ============================================================

func TestSensorCycle_SyncSendAckSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	air := transport.NewAir()
	clock := hal.NewManualClock(hostEpoch)

	gwRTC := hal.NewSoftRTC(clock, 0)
	gwRTC.SetUnixTime(1000)
	store := &memSink{}
	gw, err := NewGateway(Context{Transport: join(t, air, 0), RTC: gwRTC, Log: logging.New("gateway")},
		config.GatewayConfig{Interval: 60, SyncPeriod: 20 * time.Millisecond, Heartbeat: time.Hour}, store)
	if err != nil {
		t.Fatalf("NewGateway failed: %v", err)
	}
	go gw.Run(ctx)

	sensor, rtc, power := newSensor(t, join(t, air, 3), clock, sensorConfig(3))

	report, err := sensor.RunCycle(ctx)
	if err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}

	if !report.FirstBoot || report.WokeBy != hal.WakeReset {
		t.Errorf("First cycle should start from reset: %+v", report)
	}
	if !report.Synced || report.Sync.Timestamp != 1000 || report.Sync.NextWakeTime != 1060 {
		t.Errorf("Unexpected sync %+v", report.Sync)
	}
	if !report.Sent || !report.Acked {
		t.Errorf("Expected sent and acked, got %+v", report)
	}
	if report.Plan.Fallback || report.Plan.WakeAt != 1060 || report.Plan.Duration != 60*time.Second {
		t.Errorf("Unexpected plan %s", report.Plan)
	}
	if report.SleptBy != hal.WakeRTCAlarm || power.LastWakeSource() != hal.WakeRTCAlarm {
		t.Errorf("Expected RTC alarm wake, got %s", report.SleptBy)
	}
	if now, _ := rtc.UnixTime(); now != 1060 {
		t.Errorf("Sensor should wake at 1060, RTC reads %d", now)
	}
	if _, armed := rtc.Alarm(); armed {
		t.Error("Alarm should be cleared after waking")
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(store.snapshot()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	readings := store.snapshot()
	if len(readings) != 1 {
		t.Fatalf("Expected 1 stored reading, got %d", len(readings))
	}
	r := readings[0]
	if r.SensorID != 3 || r.Timestamp != 1000 || r.Sequence != report.Sequence || r.Kind != sink.KindSynthetic {
		t.Errorf("Unexpected reading %+v", r)
	}
	if len(r.Raw) != 10 || r.Raw[0] != 3 || r.Raw[9] != 12 {
		t.Errorf("Expected the synthetic pattern, got %v", r.Raw)
	}
}

func TestSensorCycle_NoSyncFallsBack(t *testing.T) {
	air := transport.NewAir()
	clock := hal.NewManualClock(hostEpoch)

	cfg := sensorConfig(1)
	cfg.SyncTimeout = 50 * time.Millisecond
	cfg.Fallback = 30 * time.Second
	sensor, _, power := newSensor(t, join(t, air, 1), clock, cfg)

	report, err := sensor.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}
	if report.Synced || report.Sent {
		t.Errorf("Unsynced cycle must not transmit: %+v", report)
	}
	if !report.Plan.Fallback || report.Plan.Duration != 30*time.Second {
		t.Errorf("Expected 30s fallback, got %s", report.Plan)
	}
	if report.Plan.WakeAt != 1_700_000_030 {
		t.Errorf("Fallback should count from the RTC, got %d", report.Plan.WakeAt)
	}

	// The next cycle reports the wake source of the previous sleep
	report, err = sensor.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("Second RunCycle failed: %v", err)
	}
	if report.FirstBoot || report.WokeBy != hal.WakeRTCAlarm {
		t.Errorf("Second cycle should report the RTC alarm wake: %+v", report)
	}
	if n, total := power.Sleeps(); n != 2 || total != 60*time.Second {
		t.Errorf("Expected two 30s sleeps, got %d totalling %s", n, total)
	}
}

func TestSensorCycle_TargetInPast(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	air := transport.NewAir()
	clock := hal.NewManualClock(hostEpoch)

	// A gateway announcing a wake instant equal to its own time
	gw := engine.New(engine.Config{Role: engine.Gateway, WakeInterval: 60}, join(t, air, 0), nil)
	gw.Start()
	go func() {
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				gw.SendTimeSync(1000, 1000)
			}
		}
	}()

	sensor, _, _ := newSensor(t, join(t, air, 2), clock, sensorConfig(2))
	report, err := sensor.RunCycle(ctx)
	if err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}
	if !report.Synced || !report.Sent {
		t.Errorf("Sensor should still sync and send: %+v", report)
	}
	if !report.Plan.Fallback || report.Plan.WakeAt != 1060 {
		t.Errorf("Expected fallback to 1060, got %s", report.Plan)
	}
}

func TestSensorCycle_Cancelled(t *testing.T) {
	air := transport.NewAir()
	sensor, _, _ := newSensor(t, join(t, air, 1), hal.NewManualClock(hostEpoch), sensorConfig(1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := sensor.RunCycle(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if err := sensor.Run(ctx, 3); err != nil {
		t.Errorf("Run should stop quietly on cancel, got %v", err)
	}
}

func TestSensorRun_Cycles(t *testing.T) {
	air := transport.NewAir()
	cfg := sensorConfig(1)
	cfg.SyncTimeout = 20 * time.Millisecond
	sensor, _, power := newSensor(t, join(t, air, 1), hal.NewManualClock(hostEpoch), cfg)

	if err := sensor.Run(context.Background(), 3); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if n, _ := power.Sleeps(); n != 3 {
		t.Errorf("Expected 3 sleeps, got %d", n)
	}
}

func TestSensorRun_SequenceContinuesAcrossCycles(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	air := transport.NewAir()
	clock := hal.NewManualClock(hostEpoch)

	gwRTC := hal.NewSoftRTC(clock, 0)
	gwRTC.SetUnixTime(1000)
	store := &memSink{}
	gw, err := NewGateway(Context{Transport: join(t, air, 0), RTC: gwRTC, Log: logging.New("gateway")},
		config.GatewayConfig{Interval: 60, SyncPeriod: 20 * time.Millisecond, Heartbeat: time.Hour}, store)
	if err != nil {
		t.Fatalf("NewGateway failed: %v", err)
	}
	go gw.Run(ctx)

	sensor, _, _ := newSensor(t, join(t, air, 3), clock, sensorConfig(3))

	var sequences []uint8
	for i := 0; i < 3; i++ {
		report, err := sensor.RunCycle(ctx)
		if err != nil {
			t.Fatalf("Cycle %d failed: %v", i+1, err)
		}
		if !report.Sent || !report.Acked {
			t.Fatalf("Cycle %d: expected sent and acked, got %s", i+1, report)
		}
		sequences = append(sequences, report.Sequence)
	}

	for i, want := range []uint8{1, 2, 3} {
		if sequences[i] != want {
			t.Errorf("Cycle %d: expected sequence %d, got %d", i+1, want, sequences[i])
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(store.snapshot()) < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if n := len(store.snapshot()); n != 3 {
		t.Fatalf("Expected 3 stored readings, got %d", n)
	}
	stats := gw.Engine().Statistics()
	if stats.SequenceDuplicate != 0 || stats.SequenceGaps != 0 {
		t.Errorf("Gateway saw duplicates=%d gaps=%d, expected none",
			stats.SequenceDuplicate, stats.SequenceGaps)
	}
}

func TestSensorHandler_AppliesTime(t *testing.T) {
	clock := hal.NewManualClock(hostEpoch)
	rtc := hal.NewSoftRTC(clock, 0)
	h := sensorHandler{nc: Context{RTC: rtc}}

	h.OnTimeSync(transport.NodeAddress(0), wakesync.NewTimeSync(5000, 5300, 300, 1))

	if now, _ := rtc.UnixTime(); now != 5000 {
		t.Errorf("RTC should be set to 5000, got %d", now)
	}
	if at, armed := rtc.Alarm(); !armed || at != 5300 {
		t.Errorf("Alarm should be armed at 5300, got %d (%v)", at, armed)
	}
}

func TestNewSensor_Validation(t *testing.T) {
	air := transport.NewAir()
	ep := join(t, air, 1)
	clock := hal.NewManualClock(hostEpoch)
	rtc := hal.NewSoftRTC(clock, 0)
	power := hal.NewSimPower(clock, rtc)

	tests := []struct {
		name string
		nc   Context
		gw   string
	}{
		{"no transport", Context{RTC: rtc, Power: power}, "02:57:53:00:00:00"},
		{"no rtc", Context{Transport: ep, Power: power}, "02:57:53:00:00:00"},
		{"no power", Context{Transport: ep, RTC: rtc}, "02:57:53:00:00:00"},
		{"bad gateway", Context{Transport: ep, RTC: rtc, Power: power}, "gateway"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := sensorConfig(1)
			cfg.Gateway = tt.gw
			if _, err := NewSensor(tt.nc, cfg, nil); err == nil {
				t.Error("Expected error")
			}
		})
	}
}

func TestNewSensor_UnsetPeriodsDefaulted(t *testing.T) {
	air := transport.NewAir()
	cfg := sensorConfig(1)
	cfg.PollInterval = 0
	cfg.SyncTimeout = -time.Second
	sensor, _, _ := newSensor(t, join(t, air, 1), hal.NewManualClock(hostEpoch), cfg)

	def := config.Default().Sensor
	if sensor.cfg.PollInterval != def.PollInterval || sensor.cfg.SyncTimeout != def.SyncTimeout {
		t.Errorf("Expected default periods, got poll=%s timeout=%s",
			sensor.cfg.PollInterval, sensor.cfg.SyncTimeout)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	eng := engine.New(engine.Config{Role: engine.Sensor, Log: logging.New("sensor")}, join(t, air, 2), nil)
	if sensor.awaitSync(ctx, eng) {
		t.Error("awaitSync should give up on a cancelled context")
	}
}

// ============================================================
// Gateway Tests
// ============================================================

func newGateway(t *testing.T, cfg config.GatewayConfig, s sink.Sink) (*Gateway, *transport.Air) {
	t.Helper()
	air := transport.NewAir()
	rtc := hal.NewSoftRTC(hal.NewManualClock(hostEpoch), 0)
	rtc.SetUnixTime(1005)
	gw, err := NewGateway(Context{Transport: join(t, air, 0), RTC: rtc, Log: logging.New("gateway")}, cfg, s)
	if err != nil {
		t.Fatalf("NewGateway failed: %v", err)
	}
	return gw, air
}

func TestGateway_BroadcastAligned(t *testing.T) {
	tests := []struct {
		align    bool
		expected uint32
	}{
		{false, 1065},
		{true, 1020},
	}

	for _, tt := range tests {
		gw, air := newGateway(t, config.GatewayConfig{Interval: 60, Align: tt.align}, nil)

		got := make(chan *wakesync.TimeSync, 1)
		air.Tap(func(src, dst transport.Address, data []byte) {
			if p, err := wakesync.Decode(data); err == nil {
				if ts, ok := p.(*wakesync.TimeSync); ok {
					got <- ts
				}
			}
		})

		gw.Engine().Start()
		if err := gw.Broadcast(); err != nil {
			t.Fatalf("Broadcast failed: %v", err)
		}
		ts := <-got
		if ts.Timestamp != 1005 || ts.NextWakeTime != tt.expected || ts.WakeInterval != 60 {
			t.Errorf("align=%v: unexpected sync %+v", tt.align, ts)
		}
	}
}

func TestGateway_RunBroadcastsPeriodically(t *testing.T) {
	gw, air := newGateway(t, config.GatewayConfig{Interval: 60, SyncPeriod: 10 * time.Millisecond, Heartbeat: 15 * time.Millisecond}, nil)
	gw.memory = func() (uint64, error) { return 3 << 20, nil }

	var mu sync.Mutex
	syncs := 0
	air.Tap(func(src, dst transport.Address, data []byte) {
		if dst.IsBroadcast() {
			mu.Lock()
			syncs++
			mu.Unlock()
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := gw.Run(ctx); err != nil {
		t.Fatalf("Run returned %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if syncs < 3 {
		t.Errorf("Expected periodic broadcasts, got %d", syncs)
	}
}

func TestGateway_StoreFailureCounted(t *testing.T) {
	store := &memSink{err: errors.New("disk full")}
	gw, _ := newGateway(t, config.GatewayConfig{Interval: 60, SyncPeriod: time.Hour, Heartbeat: time.Hour}, store)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		gw.Run(ctx)
		close(done)
	}()

	sd, _ := wakesync.NewSensorData(4, 1000, 1, []byte{1})
	gw.OnSensorData(transport.NodeAddress(4), sd)

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, _, _, failed := gw.Counters(); failed == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("Store failure not counted")
		}
		time.Sleep(5 * time.Millisecond)
	}
	gw.Heartbeat()

	cancel()
	<-done
}

func TestGateway_ShutdownDrainsQueue(t *testing.T) {
	store := &memSink{}
	gw, _ := newGateway(t, config.GatewayConfig{Interval: 60, SyncPeriod: time.Hour, Heartbeat: time.Hour}, store)

	const queued = 5
	for i := 0; i < queued; i++ {
		sd, _ := wakesync.NewSensorData(4, 1000, uint8(i+1), []byte{byte(i)})
		gw.OnSensorData(transport.NodeAddress(4), sd)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := gw.Run(ctx); err != nil {
		t.Fatalf("Run returned %v", err)
	}

	received, stored, dropped, failed := gw.Counters()
	if received != queued || stored != queued || dropped != 0 || failed != 0 {
		t.Errorf("Expected all %d readings stored, got received=%d stored=%d dropped=%d failed=%d",
			queued, received, stored, dropped, failed)
	}
	if n := len(store.snapshot()); n != queued {
		t.Errorf("Expected %d readings in the sink, got %d", queued, n)
	}
}

func TestGateway_UnsetPeriodsDefaulted(t *testing.T) {
	gw, _ := newGateway(t, config.GatewayConfig{}, nil)

	def := config.Default().Gateway
	if gw.cfg.Interval != def.Interval || gw.cfg.SyncPeriod != def.SyncPeriod || gw.cfg.Heartbeat != def.Heartbeat {
		t.Errorf("Expected default gateway config, got %+v", gw.cfg)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := gw.Run(ctx); err != nil {
		t.Errorf("Run returned %v", err)
	}
}

func TestGateway_QueueFullDrops(t *testing.T) {
	gw, _ := newGateway(t, config.GatewayConfig{Interval: 60}, nil)
	sd, _ := wakesync.NewSensorData(4, 1000, 1, nil)

	for i := 0; i < readingQueueSize+2; i++ {
		gw.OnSensorData(transport.NodeAddress(4), sd)
	}
	received, _, dropped, _ := gw.Counters()
	if received != readingQueueSize+2 || dropped != 2 {
		t.Errorf("Expected %d received and 2 dropped, got %d and %d", readingQueueSize+2, received, dropped)
	}
}

func TestGateway_HeartbeatMemoryError(t *testing.T) {
	gw, _ := newGateway(t, config.GatewayConfig{Interval: 60}, nil)
	gw.memory = func() (uint64, error) { return 0, errors.New("unsupported") }
	gw.Heartbeat()
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		n        uint64
		expected string
	}{
		{512, "512 B"},
		{2048, "2.0 KiB"},
		{3 << 20, "3.0 MiB"},
		{5 << 30, "5.0 GiB"},
	}
	for _, tt := range tests {
		if got := formatBytes(tt.n); got != tt.expected {
			t.Errorf("formatBytes(%d) = %q, want %q", tt.n, got, tt.expected)
		}
	}
}
