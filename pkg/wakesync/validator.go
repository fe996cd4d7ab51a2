// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package wakesync

import "fmt"

// AnomalyType represents different types of record anomalies
type AnomalyType int

const (
	ANOMALY_WAKE_NOT_FUTURE AnomalyType = iota
	ANOMALY_ZERO_INTERVAL
	ANOMALY_INVALID_COUNT
	ANOMALY_NONZERO_PADDING
)

// String returns the anomaly name
func (a AnomalyType) String() string {
	switch a {
	case ANOMALY_WAKE_NOT_FUTURE:
		return "WAKE_NOT_FUTURE"
	case ANOMALY_ZERO_INTERVAL:
		return "ZERO_INTERVAL"
	case ANOMALY_INVALID_COUNT:
		return "INVALID_COUNT"
	case ANOMALY_NONZERO_PADDING:
		return "NONZERO_PADDING"
	}
	return "UNKNOWN"
}

// ValidationError represents a suspicious but well-formed record
type ValidationError struct {
	Type    AnomalyType
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// ValidatePacket inspects a decoded record for anomalies.
// Anomalies are reported only; records that decoded are never rejected here.
func ValidatePacket(p Packet) []ValidationError {
	switch v := p.(type) {
	case *TimeSync:
		return validateTimeSync(v)
	case *SensorData:
		return validateSensorData(v)
	}
	return nil
}

func validateTimeSync(t *TimeSync) []ValidationError {
	var errors []ValidationError

	if t.NextWakeTime <= t.Timestamp {
		errors = append(errors, ValidationError{
			Type: ANOMALY_WAKE_NOT_FUTURE,
			Message: fmt.Sprintf("Next wake %d is not after timestamp %d; sensors will fall back",
				t.NextWakeTime, t.Timestamp),
			Details: map[string]interface{}{"timestamp": t.Timestamp, "next_wake_time": t.NextWakeTime},
		})
	}

	if t.WakeInterval == 0 {
		errors = append(errors, ValidationError{
			Type:    ANOMALY_ZERO_INTERVAL,
			Message: "Wake interval is zero",
			Details: map[string]interface{}{"wake_interval": t.WakeInterval},
		})
	}

	return errors
}

func validateSensorData(s *SensorData) []ValidationError {
	if s.DataCount > MaxDataSize {
		return []ValidationError{{
			Type:    ANOMALY_INVALID_COUNT,
			Message: fmt.Sprintf("Invalid data_count=%d (max %d)", s.DataCount, MaxDataSize),
			Details: map[string]interface{}{"data_count": s.DataCount, "max": MaxDataSize},
		}}
	}

	for i := int(s.DataCount); i < MaxDataSize; i++ {
		if s.Data[i] != 0 {
			return []ValidationError{{
				Type:    ANOMALY_NONZERO_PADDING,
				Message: fmt.Sprintf("Non-zero padding at data[%d]=0x%02X (data_count=%d)", i, s.Data[i], s.DataCount),
				Details: map[string]interface{}{"offset": i, "value": s.Data[i], "data_count": s.DataCount},
			}}
		}
	}

	return nil
}
