// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package wakesync provides the Go implementation of the wake-sync radio protocol.
//
// Wake-sync is a fixed-layout binary protocol spoken between one always-powered
// gateway and a small set of battery-powered sensor nodes. The gateway broadcasts
// authoritative Unix time together with the absolute time every sensor should next
// wake; sensors answer with one data sample per wake cycle and the gateway
// acknowledges it. This package provides record encoding/decoding, checksum
// validation, anomaly detection, statistics and payload formatting.
//
// All multi-byte fields are little-endian and records are packed without padding.
package wakesync

// Message types
const (
	MsgTimeSync     = 0x01 // Gateway → all sensors (broadcast)
	MsgSensorData   = 0x02 // Sensor → gateway
	MsgAck          = 0x03 // Gateway → sensor
	MsgWakeSchedule = 0x04 // Reserved, no layout defined
)

// Record sizes in bytes, checksum included
const (
	TimeSyncSize   = 13
	SensorDataSize = 210
	AckSize        = 7
)

// MaxDataSize is the SensorData payload capacity
const MaxDataSize = 200

// Field offsets - TimeSync
const (
	timeSyncTimestampOff = 1
	timeSyncNextWakeOff  = 5
	timeSyncIntervalOff  = 9
	timeSyncSequenceOff  = 11
)

// Field offsets - SensorData
const (
	sensorDataIDOff        = 1
	sensorDataTimestampOff = 2
	sensorDataCountOff     = 6
	sensorDataSequenceOff  = 8
	sensorDataPayloadOff   = 9
)

// Field offsets - Ack
const (
	ackSequenceOff  = 1
	ackTimestampOff = 2
)

// ExpectedSize returns the exact record size for a message type.
// The second return value is false for types without a defined layout.
func ExpectedSize(msgType uint8) (int, bool) {
	switch msgType {
	case MsgTimeSync:
		return TimeSyncSize, true
	case MsgSensorData:
		return SensorDataSize, true
	case MsgAck:
		return AckSize, true
	}
	return 0, false
}
