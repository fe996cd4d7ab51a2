// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package node

import (
	"context"
	"fmt"
	"time"

	"github.com/Thermoquad/solstice/internal/config"
	"github.com/Thermoquad/solstice/internal/engine"
	"github.com/Thermoquad/solstice/internal/hal"
	"github.com/Thermoquad/solstice/internal/schedule"
	"github.com/Thermoquad/solstice/internal/sensing"
	"github.com/Thermoquad/solstice/internal/transport"
	"github.com/Thermoquad/solstice/pkg/wakesync"
)

// CycleReport summarizes one sensor wake cycle
type CycleReport struct {
	WokeBy    hal.WakeSource // what started this cycle
	FirstBoot bool
	Synced    bool
	Sync      wakesync.TimeSync
	Sent      bool
	Sequence  uint8
	Acked     bool
	Plan      schedule.Plan
	SleptBy   hal.WakeSource // what ended the sleep
}

// String returns a one-line summary
func (r CycleReport) String() string {
	if !r.Synced {
		return fmt.Sprintf("woke by %s, no sync, %s", r.WokeBy, r.Plan)
	}
	return fmt.Sprintf("woke by %s, synced at %d, sent=%v seq=%d acked=%v, %s",
		r.WokeBy, r.Sync.Timestamp, r.Sent, r.Sequence, r.Acked, r.Plan)
}

// Sensor runs wake cycles: await sync, send one sample, sleep until the
// announced wake instant
type Sensor struct {
	nc      Context
	cfg     config.SensorConfig
	source  sensing.Source
	gateway transport.Address
	sched   schedule.Scheduler

	// seq is the last sequence sent. It outlives each cycle's engine so a
	// gateway never sees a sequence repeat across wake-ups.
	seq uint8
}

// NewSensor creates a sensor. A nil source sends the synthetic pattern and
// unset polling periods take their defaults.
func NewSensor(nc Context, cfg config.SensorConfig, src sensing.Source) (*Sensor, error) {
	if err := nc.validate(true); err != nil {
		return nil, err
	}
	cfg = cfg.WithDefaults()
	gw, err := transport.ParseAddress(cfg.Gateway)
	if err != nil {
		return nil, fmt.Errorf("gateway address: %w", err)
	}
	if src == nil {
		src = sensing.Synthetic{SensorID: cfg.ID}
	}
	return &Sensor{
		nc:      nc,
		cfg:     cfg,
		source:  src,
		gateway: gw,
		sched:   schedule.Scheduler{Fallback: cfg.Fallback},
	}, nil
}

// sensorHandler applies a received TimeSync to the RTC
type sensorHandler struct {
	engine.NopHandler
	nc Context
}

func (h sensorHandler) OnTimeSync(_ transport.Address, ts *wakesync.TimeSync) {
	if err := h.nc.RTC.SetUnixTime(ts.Timestamp); err != nil {
		h.nc.Log.Errorf("failed to set rtc: %v", err)
		return
	}
	if err := h.nc.RTC.SetAlarm(ts.NextWakeTime); err != nil {
		h.nc.Log.Warnf("rtc alarm not armed for %d: %v", ts.NextWakeTime, err)
	}
}

// Run repeats wake cycles. cycles <= 0 runs until ctx ends.
func (s *Sensor) Run(ctx context.Context, cycles int) error {
	for i := 0; cycles <= 0 || i < cycles; i++ {
		report, err := s.RunCycle(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			return err
		}
		s.nc.Log.Infof("cycle %d: %s", i+1, report)
	}
	return nil
}

// RunCycle performs one wake cycle with a fresh, unsynced engine. Only the
// sequence counter carries over from the previous cycle.
func (s *Sensor) RunCycle(ctx context.Context) (CycleReport, error) {
	report := CycleReport{
		WokeBy:    s.nc.Power.LastWakeSource(),
		FirstBoot: hal.IsFirstBoot(s.nc.Power),
	}
	if report.FirstBoot {
		s.nc.Log.Infof("first boot, sensor %d", s.cfg.ID)
	} else {
		s.nc.Log.Infof("wake-up source: %s", report.WokeBy)
	}

	eng := engine.New(engine.Config{
		Role:            engine.Sensor,
		SensorID:        s.cfg.ID,
		Gateway:         s.gateway,
		Log:             s.nc.Log,
		InitialSequence: s.seq,
	}, s.nc.Transport, sensorHandler{nc: s.nc})
	eng.Start()

	report.Synced = s.awaitSync(ctx, eng)
	if err := ctx.Err(); err != nil {
		eng.Stop()
		return report, err
	}

	if !report.Synced {
		eng.Stop()
		s.nc.Log.Warnf("no time sync within %s, skipping transmission", s.cfg.SyncTimeout)
		now, err := s.nc.now()
		if err != nil {
			return report, err
		}
		report.Plan = s.sched.FallbackPlan(now, "no time sync")
		return s.sleep(ctx, report)
	}

	report.Sync, _ = eng.LastTimeSync()
	s.transmit(ctx, eng, &report)
	eng.Stop()
	s.seq = eng.Sequence()

	now, err := s.nc.now()
	if err != nil {
		return report, err
	}
	report.Plan = s.sched.Plan(now, report.Sync.NextWakeTime)
	if report.Plan.Fallback {
		s.nc.Log.Warnf("announced wake %d not ahead of %d, using nominal interval",
			report.Sync.NextWakeTime, now)
	}
	return s.sleep(ctx, report)
}

// awaitSync polls the engine until it is synced or SyncTimeout elapses
func (s *Sensor) awaitSync(ctx context.Context, eng *engine.Engine) bool {
	if eng.IsTimeSynced() {
		return true
	}

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	deadline := time.NewTimer(s.cfg.SyncTimeout)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-deadline.C:
			return eng.IsTimeSynced()
		case <-ticker.C:
			if eng.IsTimeSynced() {
				return true
			}
		}
	}
}

// transmit acquires and sends one sample, then waits briefly for its Ack
func (s *Sensor) transmit(ctx context.Context, eng *engine.Engine, report *CycleReport) {
	payload, err := s.source.Acquire(ctx)
	if err != nil {
		s.nc.Log.Errorf("failed to acquire sample: %v", err)
		return
	}

	now, err := s.nc.now()
	if err != nil {
		return
	}
	_, seq, err := eng.SendSensorData(payload, now)
	if err != nil {
		s.nc.Log.Errorf("failed to send sample: %v", err)
		return
	}
	report.Sent = true
	report.Sequence = seq

	if s.cfg.AckWait <= 0 {
		return
	}
	ackCtx, cancel := context.WithTimeout(ctx, s.cfg.AckWait)
	defer cancel()
	report.Acked = eng.WaitAck(ackCtx, seq)
	if !report.Acked {
		s.nc.Log.Warnf("no ACK for sequence %d within %s", seq, s.cfg.AckWait)
	}
}

// sleep arms the RTC alarm and the backup timer and sleeps until either fires
func (s *Sensor) sleep(ctx context.Context, report CycleReport) (CycleReport, error) {
	plan := report.Plan
	if err := s.nc.RTC.SetAlarm(plan.WakeAt); err != nil {
		s.nc.Log.Warnf("rtc alarm not armed, relying on timer: %v", err)
	}
	s.nc.Log.Infof("entering sleep: %s", plan)

	woke, err := s.nc.Power.Sleep(ctx, plan.Duration, hal.WakeTimer, hal.WakeRTCAlarm)
	if clearErr := s.nc.RTC.ClearAlarm(); clearErr != nil {
		s.nc.Log.Debugf("failed to clear rtc alarm: %v", clearErr)
	}
	if err != nil {
		return report, fmt.Errorf("sleep: %w", err)
	}
	report.SleptBy = woke
	return report, nil
}
