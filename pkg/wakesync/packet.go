// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package wakesync

// Packet is one decoded wake-sync record: *TimeSync, *SensorData or *Ack
type Packet interface {
	// Type returns the record's type tag
	Type() uint8
	// MarshalBinary encodes the record to its fixed wire size, checksum included
	MarshalBinary() ([]byte, error)
}

// TimeSync carries the gateway's clock and the next absolute wake time
type TimeSync struct {
	Timestamp    uint32 // Gateway's current Unix time
	NextWakeTime uint32 // Absolute Unix time all sensors should next wake
	WakeInterval uint16 // Nominal period in seconds (informational)
	Sequence     uint8
}

// Type returns MsgTimeSync
func (t *TimeSync) Type() uint8 { return MsgTimeSync }

// SensorData carries one sample from a sensor node.
// Only the first DataCount bytes of Data are meaningful.
type SensorData struct {
	SensorID  uint8
	Timestamp uint32 // Sample acquisition time
	DataCount uint16
	Sequence  uint8
	Data      [MaxDataSize]byte
}

// Type returns MsgSensorData
func (s *SensorData) Type() uint8 { return MsgSensorData }

// Payload returns the meaningful sample bytes.
// A DataCount beyond capacity is clamped; ValidatePacket reports it.
func (s *SensorData) Payload() []byte {
	n := int(s.DataCount)
	if n > MaxDataSize {
		n = MaxDataSize
	}
	return s.Data[:n]
}

// Ack acknowledges a SensorData record
type Ack struct {
	AckSequence uint8  // Sequence of the acknowledged SensorData
	Timestamp   uint32 // Gateway's time at ack
}

// Type returns MsgAck
func (a *Ack) Type() uint8 { return MsgAck }

// SequenceOf returns the sender sequence number carried by p.
// Ack records carry no sequence of their own.
func SequenceOf(p Packet) (uint8, bool) {
	switch v := p.(type) {
	case *TimeSync:
		return v.Sequence, true
	case *SensorData:
		return v.Sequence, true
	}
	return 0, false
}

// NewTimeSync creates a TIME_SYNC record
func NewTimeSync(timestamp, nextWake uint32, interval uint16, seq uint8) *TimeSync {
	return &TimeSync{
		Timestamp:    timestamp,
		NextWakeTime: nextWake,
		WakeInterval: interval,
		Sequence:     seq,
	}
}

// NewSensorData creates a SENSOR_DATA record.
// The payload is copied; payloads over MaxDataSize are rejected.
func NewSensorData(sensorID uint8, timestamp uint32, seq uint8, payload []byte) (*SensorData, error) {
	if len(payload) > MaxDataSize {
		return nil, ErrPayloadTooLarge
	}
	s := &SensorData{
		SensorID:  sensorID,
		Timestamp: timestamp,
		DataCount: uint16(len(payload)),
		Sequence:  seq,
	}
	copy(s.Data[:], payload)
	return s, nil
}

// NewAck creates an ACK record
func NewAck(ackSeq uint8, timestamp uint32) *Ack {
	return &Ack{AckSequence: ackSeq, Timestamp: timestamp}
}
