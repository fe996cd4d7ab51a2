// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package engine implements the role-specific wake-sync state machine.
//
// An Engine decodes inbound records, keeps the sensor's synchronization state,
// acknowledges sensor data on the gateway and stamps outgoing records with the
// node's sequence counter. One packet is dispatched at a time; state accessors
// stay available to handlers while a dispatch is running.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Thermoquad/solstice/internal/logging"
	"github.com/Thermoquad/solstice/internal/transport"
	"github.com/Thermoquad/solstice/pkg/wakesync"
)

// Usage errors
var (
	ErrWrongRole       = errors.New("operation not allowed for this role")
	ErrNotReady        = errors.New("engine not started")
	ErrPayloadTooLarge = wakesync.ErrPayloadTooLarge
)

// receiptWatch bounds how long a delivery outcome is awaited for logging
const receiptWatch = 5 * time.Second

// Config fixes an engine's identity
type Config struct {
	Role         Role
	SensorID     uint8             // Sensor only
	Gateway      transport.Address // Sensor only: unicast destination
	WakeInterval uint16            // Gateway only: advertised nominal period in seconds
	Log          logging.Logger

	// InitialSequence is the last sequence the node sent before this engine
	// existed. A node that rebuilds its engine each wake cycle passes the
	// previous engine's Sequence so receivers never see a repeat.
	InitialSequence uint8
}

// Engine is one node's protocol state machine
type Engine struct {
	cfg     Config
	tx      transport.Transport
	handler Handler
	log     logging.Logger

	// dispatchMu makes each inbound packet one indivisible unit
	dispatchMu sync.Mutex

	// sendMu guards the sequence counter
	sendMu sync.Mutex
	seq    uint8

	mu            sync.RWMutex
	ready         bool
	synced        bool
	lastTimestamp uint32
	lastSync      *wakesync.TimeSync
	acked         map[uint8]bool
	ackSignal     chan struct{}
	stats         *wakesync.Statistics
	peers         *SequenceTracker
}

// New creates an engine bound to tx. A nil handler is replaced by NopHandler.
func New(cfg Config, tx transport.Transport, h Handler) *Engine {
	if h == nil {
		h = NopHandler{}
	}
	return &Engine{
		cfg:       cfg,
		tx:        tx,
		handler:   h,
		log:       cfg.Log,
		seq:       cfg.InitialSequence,
		acked:     make(map[uint8]bool),
		ackSignal: make(chan struct{}),
		stats:     wakesync.NewStatistics(),
		peers:     NewSequenceTracker(),
	}
}

// Role returns the engine's fixed role
func (e *Engine) Role() Role {
	return e.cfg.Role
}

// Start registers the receive handler and marks the engine ready to send
func (e *Engine) Start() {
	e.tx.SetReceiveHandler(e.HandlePacket)
	e.mu.Lock()
	e.ready = true
	e.mu.Unlock()
	e.log.Debugf("engine started as %s on %s", e.cfg.Role, e.tx.LocalAddress())
}

// Stop unregisters the receive handler and waits for a dispatch in progress.
// Packets handed over after Stop are dropped. Must not be called from a Handler.
func (e *Engine) Stop() {
	e.tx.SetReceiveHandler(nil)
	e.dispatchMu.Lock()
	e.mu.Lock()
	e.ready = false
	e.mu.Unlock()
	e.dispatchMu.Unlock()
}

// HandlePacket decodes and dispatches one received buffer.
// Malformed input is logged and dropped; it never changes state.
// A stopped engine ignores everything.
func (e *Engine) HandlePacket(src transport.Address, data []byte) {
	e.dispatchMu.Lock()
	defer e.dispatchMu.Unlock()

	if !e.isReady() {
		return
	}

	p, err := wakesync.Decode(data)
	var anomalies []wakesync.ValidationError
	if err == nil {
		anomalies = wakesync.ValidatePacket(p)
	}

	e.mu.Lock()
	e.stats.Update(p, err, anomalies)
	e.mu.Unlock()

	if err != nil {
		e.log.Warnf("dropping packet from %s: %v", src, err)
		return
	}
	for _, a := range anomalies {
		e.log.Debugf("%s from %s: %s", wakesync.FormatMessageType(p.Type()), src, a.Message)
	}

	e.observeSequence(src, p)

	switch v := p.(type) {
	case *wakesync.TimeSync:
		e.handleTimeSync(src, v)
	case *wakesync.SensorData:
		e.handleSensorData(src, v)
	case *wakesync.Ack:
		e.handleAck(src, v)
	}
}

func (e *Engine) handleTimeSync(src transport.Address, ts *wakesync.TimeSync) {
	if e.cfg.Role != Sensor {
		return
	}

	e.mu.Lock()
	e.synced = true
	e.lastTimestamp = ts.Timestamp
	last := *ts
	e.lastSync = &last
	e.mu.Unlock()

	e.log.Infof("time sync from %s: timestamp=%d next_wake=%d interval=%ds seq=%d",
		src, ts.Timestamp, ts.NextWakeTime, ts.WakeInterval, ts.Sequence)
	e.handler.OnTimeSync(src, ts)
}

func (e *Engine) handleSensorData(src transport.Address, sd *wakesync.SensorData) {
	if e.cfg.Role != Gateway {
		e.log.Debugf("ignoring SENSOR_DATA from %s on %s", src, e.cfg.Role)
		return
	}

	e.log.Infof("sensor data from %s: id=%d count=%d timestamp=%d seq=%d",
		src, sd.SensorID, sd.DataCount, sd.Timestamp, sd.Sequence)
	e.handler.OnSensorData(src, sd)

	e.mu.RLock()
	stamp := e.lastTimestamp
	e.mu.RUnlock()

	data := wakesync.MustEncode(wakesync.NewAck(sd.Sequence, stamp))
	receipt, err := e.tx.Send(src, data)
	if err != nil {
		e.log.Warnf("failed to send ACK to %s: %v", src, err)
		return
	}
	e.log.Debugf("ACK sent to %s for sequence %d", src, sd.Sequence)
	e.watch("ACK", src, receipt)
}

func (e *Engine) handleAck(src transport.Address, ack *wakesync.Ack) {
	e.mu.Lock()
	e.acked[ack.AckSequence] = true
	close(e.ackSignal)
	e.ackSignal = make(chan struct{})
	e.mu.Unlock()

	e.log.Infof("ACK from %s for sequence %d", src, ack.AckSequence)
	e.handler.OnAck(src, ack)
}

// observeSequence counts gaps and duplicates per sender without rejecting anything
func (e *Engine) observeSequence(src transport.Address, p wakesync.Packet) {
	seq, ok := wakesync.SequenceOf(p)
	if !ok {
		return
	}

	e.mu.Lock()
	result, missing := e.peers.Observe(src, seq)
	switch result {
	case SeqGap:
		e.stats.SequenceGaps++
	case SeqDuplicate:
		e.stats.SequenceDuplicate++
	}
	e.mu.Unlock()

	switch result {
	case SeqGap:
		e.log.Debugf("sequence gap from %s: %d missing before %d", src, missing, seq)
	case SeqDuplicate:
		e.log.Debugf("duplicate sequence %d from %s", seq, src)
	}
}

// Sequence returns the last sequence number sent, or InitialSequence when
// nothing has been sent yet.
func (e *Engine) Sequence() uint8 {
	e.sendMu.Lock()
	defer e.sendMu.Unlock()
	return e.seq
}

// nextSequence advances the node's single counter shared by all record types.
// The first record sent by a fresh node carries 1.
func (e *Engine) nextSequence() uint8 {
	e.sendMu.Lock()
	defer e.sendMu.Unlock()
	e.seq++
	return e.seq
}

func (e *Engine) isReady() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ready
}

// SendTimeSync broadcasts the gateway's time and the next wake instant
func (e *Engine) SendTimeSync(timestamp, nextWake uint32) (*transport.Receipt, error) {
	if e.cfg.Role != Gateway {
		return nil, fmt.Errorf("send time sync: %w (%s)", ErrWrongRole, e.cfg.Role)
	}
	if !e.isReady() {
		return nil, fmt.Errorf("send time sync: %w", ErrNotReady)
	}

	ts := wakesync.NewTimeSync(timestamp, nextWake, e.cfg.WakeInterval, e.nextSequence())
	receipt, err := e.tx.Send(transport.Broadcast, wakesync.MustEncode(ts))
	if err != nil {
		e.log.Errorf("failed to send time sync: %v", err)
		return nil, fmt.Errorf("send time sync: %w", err)
	}

	e.mu.Lock()
	e.lastTimestamp = timestamp
	e.lastSync = ts
	e.mu.Unlock()

	e.log.Infof("time sync sent: timestamp=%d next_wake=%d seq=%d", timestamp, nextWake, ts.Sequence)
	e.watch("TIME_SYNC", transport.Broadcast, receipt)
	return receipt, nil
}

// SendSensorData unicasts one sample to the gateway.
// Oversized payloads are rejected before the transport is touched.
func (e *Engine) SendSensorData(payload []byte, timestamp uint32) (*transport.Receipt, uint8, error) {
	if e.cfg.Role != Sensor {
		return nil, 0, fmt.Errorf("send sensor data: %w (%s)", ErrWrongRole, e.cfg.Role)
	}
	if len(payload) > wakesync.MaxDataSize {
		return nil, 0, fmt.Errorf("send sensor data: %w: %d bytes (max %d)",
			ErrPayloadTooLarge, len(payload), wakesync.MaxDataSize)
	}
	if !e.isReady() {
		return nil, 0, fmt.Errorf("send sensor data: %w", ErrNotReady)
	}

	seq := e.nextSequence()
	sd, err := wakesync.NewSensorData(e.cfg.SensorID, timestamp, seq, payload)
	if err != nil {
		return nil, 0, fmt.Errorf("send sensor data: %w", err)
	}

	receipt, err := e.tx.Send(e.cfg.Gateway, wakesync.MustEncode(sd))
	if err != nil {
		e.log.Errorf("failed to send sensor data: %v", err)
		return nil, seq, fmt.Errorf("send sensor data: %w", err)
	}

	e.log.Infof("sensor data sent: %d bytes timestamp=%d seq=%d", len(payload), timestamp, seq)
	e.watch("SENSOR_DATA", e.cfg.Gateway, receipt)
	return receipt, seq, nil
}

// watch logs the delivery outcome without blocking the caller
func (e *Engine) watch(kind string, dst transport.Address, receipt *transport.Receipt) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), receiptWatch)
		defer cancel()
		if err := receipt.Wait(ctx); err != nil {
			e.log.Warnf("%s to %s: delivery failed: %v", kind, dst, err)
			return
		}
		e.log.Debugf("%s to %s: delivered", kind, dst)
	}()
}

// IsTimeSynced reports whether a valid TimeSync arrived this cycle
func (e *Engine) IsTimeSynced() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.synced
}

// LastSyncedTimestamp returns the timestamp of the last accepted TimeSync
func (e *Engine) LastSyncedTimestamp() (uint32, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.synced {
		return 0, false
	}
	return e.lastTimestamp, true
}

// LastTimeSync returns a copy of the last TimeSync accepted (sensor) or
// broadcast (gateway)
func (e *Engine) LastTimeSync() (wakesync.TimeSync, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.lastSync == nil {
		return wakesync.TimeSync{}, false
	}
	return *e.lastSync, true
}

// AckReceived reports whether an Ack for seq has arrived
func (e *Engine) AckReceived(seq uint8) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.acked[seq]
}

// WaitAck blocks until an Ack for seq arrives or ctx ends
func (e *Engine) WaitAck(ctx context.Context, seq uint8) bool {
	for {
		e.mu.RLock()
		if e.acked[seq] {
			e.mu.RUnlock()
			return true
		}
		signal := e.ackSignal
		e.mu.RUnlock()

		select {
		case <-signal:
		case <-ctx.Done():
			return false
		}
	}
}

// Statistics returns a snapshot of link statistics
func (e *Engine) Statistics() wakesync.Statistics {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return *e.stats
}
