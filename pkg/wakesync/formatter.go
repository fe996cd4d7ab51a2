// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package wakesync

import (
	"fmt"
	"strings"
	"time"
)

// FormatPacket formats a record into a human-readable string.
// at is the local receive time shown in the header.
func FormatPacket(p Packet, at time.Time) string {
	timestamp := at.Format("15:04:05.000")
	msgType := FormatMessageType(p.Type())
	size, _ := ExpectedSize(p.Type())

	result := fmt.Sprintf("[%s] %s (0x%02X) len=%d\n", timestamp, msgType, p.Type(), size)
	result += FormatPayload(p)
	return result
}

// FormatMessageType returns the human-readable name for a message type
func FormatMessageType(msgType uint8) string {
	switch msgType {
	case MsgTimeSync:
		return "TIME_SYNC"
	case MsgSensorData:
		return "SENSOR_DATA"
	case MsgAck:
		return "ACK"
	case MsgWakeSchedule:
		return "WAKE_SCHEDULE"
	default:
		return "UNKNOWN"
	}
}

// FormatPayload formats the fields of a record
func FormatPayload(p Packet) string {
	switch v := p.(type) {
	case *TimeSync:
		delta := int64(v.NextWakeTime) - int64(v.Timestamp)
		return fmt.Sprintf("  Time: %s (%d), Next Wake: %d (+%s), Interval: %ds, Seq: %d\n",
			FormatUnix(v.Timestamp), v.Timestamp, v.NextWakeTime,
			formatDelta(delta), v.WakeInterval, v.Sequence)

	case *SensorData:
		result := fmt.Sprintf("  Sensor: %d, Time: %s (%d), Count: %d, Seq: %d\n",
			v.SensorID, FormatUnix(v.Timestamp), v.Timestamp, v.DataCount, v.Sequence)
		if sample, err := DecodeSample(v.Payload()); err == nil {
			result += "  " + sample.String() + "\n"
		} else if v.DataCount > 0 {
			result += "  Data: " + FormatHex(v.Payload()) + "\n"
		}
		return result

	case *Ack:
		return fmt.Sprintf("  Ack Seq: %d, Time: %s (%d)\n",
			v.AckSequence, FormatUnix(v.Timestamp), v.Timestamp)
	}
	return "  (no payload)\n"
}

// FormatUnix renders a protocol timestamp in UTC
func FormatUnix(ts uint32) string {
	return time.Unix(int64(ts), 0).UTC().Format("2006-01-02 15:04:05")
}

// FormatHex renders bytes as space-separated hex pairs
func FormatHex(data []byte) string {
	var b strings.Builder
	for i, v := range data {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%02X", v)
	}
	return b.String()
}

// formatDelta renders a signed number of seconds
func formatDelta(seconds int64) string {
	if seconds < 0 {
		return fmt.Sprintf("-%s", time.Duration(-seconds)*time.Second)
	}
	return (time.Duration(seconds) * time.Second).String()
}
