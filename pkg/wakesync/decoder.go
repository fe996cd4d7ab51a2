// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package wakesync

import "encoding/binary"

// Decode parses one received record.
//
// The first byte selects the expected size. A buffer whose length differs fails
// with TruncatedOrOversized, an unknown tag with UnknownType, and a trailing byte
// that is not the XOR of all preceding bytes with ChecksumMismatch. Decode has no
// side effects and never panics on arbitrary input.
func Decode(data []byte) (Packet, error) {
	if len(data) == 0 {
		return nil, &DecodeError{Kind: TruncatedOrOversized}
	}

	msgType := data[0]
	expected, ok := ExpectedSize(msgType)
	if !ok {
		return nil, &DecodeError{Kind: UnknownType, Type: msgType, Length: len(data)}
	}
	if len(data) != expected {
		return nil, &DecodeError{
			Kind:     TruncatedOrOversized,
			Type:     msgType,
			Length:   len(data),
			Expected: expected,
		}
	}

	last := len(data) - 1
	calculated := Checksum(data[:last])
	if calculated != data[last] {
		return nil, &DecodeError{
			Kind:       ChecksumMismatch,
			Type:       msgType,
			Length:     len(data),
			Expected:   expected,
			Received:   data[last],
			Calculated: calculated,
		}
	}

	switch msgType {
	case MsgTimeSync:
		return &TimeSync{
			Timestamp:    binary.LittleEndian.Uint32(data[timeSyncTimestampOff:]),
			NextWakeTime: binary.LittleEndian.Uint32(data[timeSyncNextWakeOff:]),
			WakeInterval: binary.LittleEndian.Uint16(data[timeSyncIntervalOff:]),
			Sequence:     data[timeSyncSequenceOff],
		}, nil

	case MsgSensorData:
		s := &SensorData{
			SensorID:  data[sensorDataIDOff],
			Timestamp: binary.LittleEndian.Uint32(data[sensorDataTimestampOff:]),
			DataCount: binary.LittleEndian.Uint16(data[sensorDataCountOff:]),
			Sequence:  data[sensorDataSequenceOff],
		}
		copy(s.Data[:], data[sensorDataPayloadOff:last])
		return s, nil

	default:
		return &Ack{
			AckSequence: data[ackSequenceOff],
			Timestamp:   binary.LittleEndian.Uint32(data[ackTimestampOff:]),
		}, nil
	}
}
