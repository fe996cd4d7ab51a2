// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package sensing produces the payload a sensor sends each wake cycle.
package sensing

import (
	"context"

	"github.com/Thermoquad/solstice/pkg/wakesync"
)

// DefaultSampleSize is the synthetic sample length
const DefaultSampleSize = 10

// Source acquires one sample, already encoded for a SensorData payload
type Source interface {
	Acquire(ctx context.Context) ([]byte, error)
}

// Synthetic generates the counting pattern i + SensorID. With Bare set the
// bytes are sent as-is; otherwise they are wrapped in a CBOR sample.
type Synthetic struct {
	SensorID uint8
	Size     int
	Bare     bool
}

// Acquire returns the synthetic sample
func (s Synthetic) Acquire(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	size := s.Size
	if size <= 0 {
		size = DefaultSampleSize
	}
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i) + s.SensorID
	}

	if s.Bare {
		return data, nil
	}
	return wakesync.EncodeSample(&wakesync.Sample{Kind: wakesync.SampleSynthetic, Raw: data})
}
