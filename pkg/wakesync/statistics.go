// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package wakesync

import (
	"errors"
	"fmt"
	"time"
)

// Statistics tracks record statistics and error rates
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	TotalPackets      uint64
	ValidPackets      uint64
	TimeSyncs         uint64
	DataPackets       uint64
	Acks              uint64
	ChecksumErrors    uint64
	LengthErrors      uint64
	UnknownTypes      uint64
	AnomalousPackets  uint64
	WakeNotFuture     uint64
	ZeroIntervals     uint64
	InvalidCounts     uint64
	NonZeroPadding    uint64
	SequenceGaps      uint64
	SequenceDuplicate uint64

	// Rates (calculated)
	PacketRate float64 // packets/sec
	ErrorRate  float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// Update updates statistics based on a record and its errors
func (s *Statistics) Update(packet Packet, decodeErr error, validationErrors []ValidationError) {
	s.TotalPackets++
	s.LastUpdateTime = time.Now()

	if decodeErr != nil {
		switch {
		case errors.Is(decodeErr, ErrChecksumMismatch):
			s.ChecksumErrors++
		case errors.Is(decodeErr, ErrUnknownType):
			s.UnknownTypes++
		default:
			s.LengthErrors++
		}
		return
	}

	switch packet.(type) {
	case *TimeSync:
		s.TimeSyncs++
	case *SensorData:
		s.DataPackets++
	case *Ack:
		s.Acks++
	}

	if len(validationErrors) == 0 {
		s.ValidPackets++
		return
	}

	s.AnomalousPackets++
	for _, err := range validationErrors {
		switch err.Type {
		case ANOMALY_WAKE_NOT_FUTURE:
			s.WakeNotFuture++
		case ANOMALY_ZERO_INTERVAL:
			s.ZeroIntervals++
		case ANOMALY_INVALID_COUNT:
			s.InvalidCounts++
		case ANOMALY_NONZERO_PADDING:
			s.NonZeroPadding++
		}
	}
}

// DecodeErrors returns the total number of rejected buffers
func (s *Statistics) DecodeErrors() uint64 {
	return s.ChecksumErrors + s.LengthErrors + s.UnknownTypes
}

// CalculateRates calculates record and error rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.PacketRate = float64(s.TotalPackets) / elapsed
		s.ErrorRate = float64(s.DecodeErrors()+s.AnomalousPackets) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	percent := func(n uint64) float64 {
		if s.TotalPackets == 0 {
			return 0
		}
		return float64(n) * 100.0 / float64(s.TotalPackets)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Total Packets:   %8d\n", s.TotalPackets)
	result += fmt.Sprintf("Valid Packets:   %8d (%.1f%%)\n", s.ValidPackets, percent(s.ValidPackets))
	result += fmt.Sprintf("  TIME_SYNC:        %5d\n", s.TimeSyncs)
	result += fmt.Sprintf("  SENSOR_DATA:      %5d\n", s.DataPackets)
	result += fmt.Sprintf("  ACK:              %5d\n", s.Acks)

	if s.ChecksumErrors > 0 {
		result += fmt.Sprintf("Checksum Errors: %8d (%.1f%%)\n", s.ChecksumErrors, percent(s.ChecksumErrors))
	}
	if s.LengthErrors > 0 {
		result += fmt.Sprintf("Length Errors:   %8d (%.1f%%)\n", s.LengthErrors, percent(s.LengthErrors))
	}
	if s.UnknownTypes > 0 {
		result += fmt.Sprintf("Unknown Types:   %8d (%.1f%%)\n", s.UnknownTypes, percent(s.UnknownTypes))
	}
	if s.AnomalousPackets > 0 {
		result += fmt.Sprintf("Anomalous Pkts:  %8d (%.1f%%)\n", s.AnomalousPackets, percent(s.AnomalousPackets))
		if s.WakeNotFuture > 0 {
			result += fmt.Sprintf("  Wake Not Future:  %5d\n", s.WakeNotFuture)
		}
		if s.ZeroIntervals > 0 {
			result += fmt.Sprintf("  Zero Interval:    %5d\n", s.ZeroIntervals)
		}
		if s.InvalidCounts > 0 {
			result += fmt.Sprintf("  Invalid Counts:   %5d\n", s.InvalidCounts)
		}
		if s.NonZeroPadding > 0 {
			result += fmt.Sprintf("  Non-zero Padding: %5d\n", s.NonZeroPadding)
		}
	}
	if s.SequenceGaps > 0 || s.SequenceDuplicate > 0 {
		result += fmt.Sprintf("Sequence Gaps:   %8d\n", s.SequenceGaps)
		result += fmt.Sprintf("Sequence Dups:   %8d\n", s.SequenceDuplicate)
	}

	result += fmt.Sprintf("Packet Rate:     %8.1f pkts/sec\n", s.PacketRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	*s = *NewStatistics()
}
