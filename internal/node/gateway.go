// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package node

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/mem"

	"github.com/Thermoquad/solstice/internal/config"
	"github.com/Thermoquad/solstice/internal/engine"
	"github.com/Thermoquad/solstice/internal/schedule"
	"github.com/Thermoquad/solstice/internal/sink"
	"github.com/Thermoquad/solstice/internal/transport"
	"github.com/Thermoquad/solstice/pkg/wakesync"
)

const (
	readingQueueSize = 64
	storeTimeout     = 5 * time.Second
)

// availableMemory reports the host memory available to new work
func availableMemory() (uint64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return vm.Available, nil
}

// Gateway broadcasts time syncs and collects sensor readings
type Gateway struct {
	engine.NopHandler

	nc     Context
	cfg    config.GatewayConfig
	sink   sink.Sink
	engine *engine.Engine

	readings chan sink.Reading
	memory   func() (uint64, error)

	received atomic.Uint64
	stored   atomic.Uint64
	dropped  atomic.Uint64
	failed   atomic.Uint64
}

// NewGateway creates a gateway. A nil sink only logs readings and unset
// periods take their defaults.
func NewGateway(nc Context, cfg config.GatewayConfig, s sink.Sink) (*Gateway, error) {
	if err := nc.validate(false); err != nil {
		return nil, err
	}
	cfg = cfg.WithDefaults()
	if s == nil {
		s = sink.Log{Log: nc.Log}
	}
	g := &Gateway{
		nc:       nc,
		cfg:      cfg,
		sink:     s,
		readings: make(chan sink.Reading, readingQueueSize),
		memory:   availableMemory,
	}
	g.engine = engine.New(engine.Config{
		Role:         engine.Gateway,
		WakeInterval: cfg.Interval,
		Log:          nc.Log,
	}, nc.Transport, g)
	return g, nil
}

// Engine returns the gateway's protocol engine
func (g *Gateway) Engine() *engine.Engine {
	return g.engine
}

// Run broadcasts a sync immediately and then every SyncPeriod, logs a
// heartbeat every Heartbeat and stores readings until ctx ends
func (g *Gateway) Run(ctx context.Context) error {
	g.engine.Start()
	defer g.engine.Stop()

	g.nc.Log.Infof("gateway running on %s: interval=%ds sync every %s align=%v",
		g.nc.Transport.LocalAddress(), g.cfg.Interval, g.cfg.SyncPeriod, g.cfg.Align)

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		g.storeLoop(stop)
	}()

	syncTicker := time.NewTicker(g.cfg.SyncPeriod)
	defer syncTicker.Stop()
	heartbeat := time.NewTicker(g.cfg.Heartbeat)
	defer heartbeat.Stop()

	g.broadcast()
	for {
		select {
		case <-ctx.Done():
			// No reading can be queued once the engine is stopped
			g.engine.Stop()
			close(stop)
			<-done
			return nil
		case <-syncTicker.C:
			g.broadcast()
		case <-heartbeat.C:
			g.Heartbeat()
		}
	}
}

// Broadcast sends one TimeSync announcing the next wake instant
func (g *Gateway) Broadcast() error {
	now, err := g.nc.now()
	if err != nil {
		return err
	}
	next := schedule.NextWakeTime(now, g.cfg.Interval, g.cfg.Align)
	_, err = g.engine.SendTimeSync(now, next)
	return err
}

func (g *Gateway) broadcast() {
	if err := g.Broadcast(); err != nil {
		g.nc.Log.Errorf("failed to broadcast time sync: %v", err)
	}
}

// Heartbeat logs link statistics and available host memory
func (g *Gateway) Heartbeat() {
	stats := g.engine.Statistics()
	stats.CalculateRates()

	free := "unknown"
	if avail, err := g.memory(); err != nil {
		g.nc.Log.Debugf("failed to read memory: %v", err)
	} else {
		free = formatBytes(avail)
	}

	g.nc.Log.Infof("gateway alive: free memory %s, readings received=%d stored=%d dropped=%d failed=%d, packets=%d errors=%d",
		free, g.received.Load(), g.stored.Load(), g.dropped.Load(), g.failed.Load(),
		stats.TotalPackets, stats.DecodeErrors())
}

// OnSensorData queues the reading for storage without blocking dispatch
func (g *Gateway) OnSensorData(src transport.Address, sd *wakesync.SensorData) {
	g.received.Add(1)
	r := sink.NewReading(src, sd, time.Now())
	select {
	case g.readings <- r:
	default:
		g.dropped.Add(1)
		g.nc.Log.Warnf("reading queue full, dropping reading from sensor %d", sd.SensorID)
	}
}

// storeLoop stores queued readings until stop closes, then drains the queue
func (g *Gateway) storeLoop(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			g.drain()
			return
		case r := <-g.readings:
			g.store(r)
		}
	}
}

// drain stores what is still queued at shutdown. Readings left once
// storeTimeout has passed are counted as dropped.
func (g *Gateway) drain() {
	deadline := time.Now().Add(storeTimeout)
	for {
		select {
		case r := <-g.readings:
			if time.Now().After(deadline) {
				g.dropped.Add(1)
				g.nc.Log.Warnf("shutdown: dropping reading from sensor %d", r.SensorID)
				continue
			}
			g.store(r)
		default:
			return
		}
	}
}

func (g *Gateway) store(r sink.Reading) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := g.sink.Store(ctx, r); err != nil {
		g.failed.Add(1)
		g.nc.Log.Errorf("failed to store reading from sensor %d: %v", r.SensorID, err)
		return
	}
	g.stored.Add(1)
}

// Counters returns readings received, stored, dropped and failed
func (g *Gateway) Counters() (received, stored, dropped, failed uint64) {
	return g.received.Load(), g.stored.Load(), g.dropped.Load(), g.failed.Load()
}
