// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package engine

import "github.com/Thermoquad/solstice/internal/transport"

// SeqResult classifies an observed sequence number
type SeqResult int

const (
	SeqFirst SeqResult = iota
	SeqInOrder
	SeqGap
	SeqDuplicate
)

// SequenceTracker remembers the last sequence seen from each sender.
// It is not safe for concurrent use.
type SequenceTracker struct {
	last map[transport.Address]uint8
}

// NewSequenceTracker creates an empty tracker
func NewSequenceTracker() *SequenceTracker {
	return &SequenceTracker{last: make(map[transport.Address]uint8)}
}

// Observe classifies seq against the previous one from src. For a gap it also
// returns how many sequence numbers were skipped (mod 256).
func (t *SequenceTracker) Observe(src transport.Address, seq uint8) (SeqResult, uint8) {
	prev, ok := t.last[src]
	t.last[src] = seq
	if !ok {
		return SeqFirst, 0
	}

	switch seq {
	case prev + 1:
		return SeqInOrder, 0
	case prev:
		return SeqDuplicate, 0
	}
	return SeqGap, seq - prev - 1
}
