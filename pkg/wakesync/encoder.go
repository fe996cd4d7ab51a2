// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package wakesync

import (
	"encoding/binary"
	"fmt"
)

// Encode encodes a record to wire format.
// The checksum is computed last, over every preceding byte.
func Encode(p Packet) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("nil packet")
	}
	return p.MarshalBinary()
}

// MustEncode encodes a record and panics on error.
// Use Encode for error handling.
func MustEncode(p Packet) []byte {
	data, err := Encode(p)
	if err != nil {
		panic(fmt.Sprintf("wakesync: encode error: %v", err))
	}
	return data
}

// MarshalBinary encodes the TIME_SYNC record
func (t *TimeSync) MarshalBinary() ([]byte, error) {
	data := make([]byte, TimeSyncSize)
	data[0] = MsgTimeSync
	binary.LittleEndian.PutUint32(data[timeSyncTimestampOff:], t.Timestamp)
	binary.LittleEndian.PutUint32(data[timeSyncNextWakeOff:], t.NextWakeTime)
	binary.LittleEndian.PutUint16(data[timeSyncIntervalOff:], t.WakeInterval)
	data[timeSyncSequenceOff] = t.Sequence
	seal(data)
	return data, nil
}

// MarshalBinary encodes the SENSOR_DATA record
func (s *SensorData) MarshalBinary() ([]byte, error) {
	if s.DataCount > MaxDataSize {
		return nil, fmt.Errorf("%w: data_count %d (max %d)", ErrPayloadTooLarge, s.DataCount, MaxDataSize)
	}
	data := make([]byte, SensorDataSize)
	data[0] = MsgSensorData
	data[sensorDataIDOff] = s.SensorID
	binary.LittleEndian.PutUint32(data[sensorDataTimestampOff:], s.Timestamp)
	binary.LittleEndian.PutUint16(data[sensorDataCountOff:], s.DataCount)
	data[sensorDataSequenceOff] = s.Sequence
	copy(data[sensorDataPayloadOff:], s.Data[:])
	seal(data)
	return data, nil
}

// MarshalBinary encodes the ACK record
func (a *Ack) MarshalBinary() ([]byte, error) {
	data := make([]byte, AckSize)
	data[0] = MsgAck
	data[ackSequenceOff] = a.AckSequence
	binary.LittleEndian.PutUint32(data[ackTimestampOff:], a.Timestamp)
	seal(data)
	return data, nil
}

// seal writes the checksum into the last byte
func seal(data []byte) {
	last := len(data) - 1
	data[last] = Checksum(data[:last])
}
