// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package monitor passively decodes radio traffic and keeps link statistics.
package monitor

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Thermoquad/solstice/internal/engine"
	"github.com/Thermoquad/solstice/internal/transport"
	"github.com/Thermoquad/solstice/pkg/wakesync"
)

// Event is one observed frame and what was learned from it
type Event struct {
	At        time.Time
	Src       transport.Address
	Raw       []byte
	Packet    wakesync.Packet
	DecodeErr error
	Anomalies []wakesync.ValidationError
	Seq       engine.SeqResult
	Missing   uint8 // sequence numbers skipped when Seq is SeqGap
}

// IsError reports whether the frame failed to decode or looked anomalous
func (e Event) IsError() bool {
	return e.DecodeErr != nil || len(e.Anomalies) > 0
}

// SequenceIssue reports whether the sender skipped or repeated a sequence number
func (e Event) SequenceIssue() bool {
	return e.Seq == engine.SeqGap || e.Seq == engine.SeqDuplicate
}

// Summary returns a one-line description of the event
func (e Event) Summary() string {
	if e.DecodeErr != nil {
		return fmt.Sprintf("%s: DECODE ERROR: %v", e.Src, e.DecodeErr)
	}
	s := fmt.Sprintf("%s: %s", e.Src, wakesync.FormatMessageType(e.Packet.Type()))
	if seq, ok := wakesync.SequenceOf(e.Packet); ok {
		s += fmt.Sprintf(" seq=%d", seq)
	}
	switch e.Seq {
	case engine.SeqGap:
		s += fmt.Sprintf(" (gap: %d missing)", e.Missing)
	case engine.SeqDuplicate:
		s += " (duplicate)"
	}
	for _, a := range e.Anomalies {
		s += fmt.Sprintf(" [%s: %s]", a.Type, a.Message)
	}
	return s
}

// Sensor is the last known state of one sensor node
type Sensor struct {
	ID           uint8
	Addr         transport.Address
	LastSeen     time.Time
	LastSequence uint8
	LastSample   string
	Packets      uint64
	Gaps         uint64
}

// Monitor accumulates statistics over observed frames. Safe for concurrent use.
type Monitor struct {
	mu       sync.Mutex
	stats    *wakesync.Statistics
	seqs     *engine.SequenceTracker
	sensors  map[uint8]*Sensor
	lastSync *wakesync.TimeSync
}

// New creates an empty monitor
func New() *Monitor {
	return &Monitor{
		stats:   wakesync.NewStatistics(),
		seqs:    engine.NewSequenceTracker(),
		sensors: make(map[uint8]*Sensor),
	}
}

// Observe decodes, validates and accounts for one frame from src
func (m *Monitor) Observe(src transport.Address, data []byte, at time.Time) Event {
	ev := Event{At: at, Src: src, Raw: append([]byte(nil), data...)}

	p, err := wakesync.Decode(data)

	m.mu.Lock()
	defer m.mu.Unlock()

	if err != nil {
		ev.DecodeErr = err
		m.stats.Update(nil, err, nil)
		return ev
	}
	ev.Packet = p
	ev.Anomalies = wakesync.ValidatePacket(p)

	if seq, ok := wakesync.SequenceOf(p); ok {
		ev.Seq, ev.Missing = m.seqs.Observe(src, seq)
		switch ev.Seq {
		case engine.SeqGap:
			m.stats.SequenceGaps++
		case engine.SeqDuplicate:
			m.stats.SequenceDuplicate++
		}
	}
	m.stats.Update(p, nil, ev.Anomalies)

	switch v := p.(type) {
	case *wakesync.TimeSync:
		ts := *v
		m.lastSync = &ts
	case *wakesync.SensorData:
		s, ok := m.sensors[v.SensorID]
		if !ok {
			s = &Sensor{ID: v.SensorID}
			m.sensors[v.SensorID] = s
		}
		s.Addr = src
		s.LastSeen = at
		s.LastSequence = v.Sequence
		s.LastSample = sampleSummary(v)
		s.Packets++
		if ev.Seq == engine.SeqGap {
			s.Gaps++
		}
	}
	return ev
}

// Statistics returns a snapshot of the counters with rates filled in
func (m *Monitor) Statistics() wakesync.Statistics {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.CalculateRates()
	return *m.stats
}

// Sensors returns the known sensors ordered by ID
func (m *Monitor) Sensors() []Sensor {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Sensor, 0, len(m.sensors))
	for _, s := range m.sensors {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// LastSync returns the most recent TimeSync seen
func (m *Monitor) LastSync() (wakesync.TimeSync, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastSync == nil {
		return wakesync.TimeSync{}, false
	}
	return *m.lastSync, true
}

func sampleSummary(sd *wakesync.SensorData) string {
	if sample, err := wakesync.DecodeSample(sd.Payload()); err == nil {
		return sample.String()
	}
	return wakesync.FormatHex(sd.Payload())
}
