// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package wakesync

import (
	"fmt"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

// Sample source kinds
const (
	SampleSynthetic = 0
	SampleModbus    = 1
)

// Sample is the CBOR document carried in a SensorData payload.
// Keys are encoded as small integers to fit the 200 byte budget.
type Sample struct {
	Kind     uint8     `cbor:"0,keyasint"`
	Readings []float64 `cbor:"1,keyasint,omitempty"`
	Raw      []byte    `cbor:"2,keyasint,omitempty"`
}

// EncodeSample encodes a sample for a SensorData payload
func EncodeSample(s *Sample) ([]byte, error) {
	data, err := cbor.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode sample: %w", err)
	}
	if len(data) > MaxDataSize {
		return nil, fmt.Errorf("%w: sample encodes to %d bytes (max %d)", ErrPayloadTooLarge, len(data), MaxDataSize)
	}
	return data, nil
}

// DecodeSample decodes a SensorData payload produced by EncodeSample
func DecodeSample(data []byte) (*Sample, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty sample payload")
	}
	var s Sample
	if err := cbor.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode sample: %w", err)
	}
	return &s, nil
}

// String returns a one-line summary
func (s *Sample) String() string {
	kind := "synthetic"
	if s.Kind == SampleModbus {
		kind = "modbus"
	}

	parts := make([]string, 0, len(s.Readings))
	for _, r := range s.Readings {
		parts = append(parts, fmt.Sprintf("%.2f", r))
	}

	result := fmt.Sprintf("Sample: %s", kind)
	if len(parts) > 0 {
		result += " readings=[" + strings.Join(parts, " ") + "]"
	}
	if len(s.Raw) > 0 {
		result += " raw=" + FormatHex(s.Raw)
	}
	return result
}
