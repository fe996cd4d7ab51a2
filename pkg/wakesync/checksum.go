// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package wakesync

// Checksum computes the XOR fold of data.
// It only detects accidental corruption; two flips of the same bit position
// in different bytes cancel out.
func Checksum(data []byte) uint8 {
	var sum uint8
	for _, b := range data {
		sum ^= b
	}
	return sum
}
