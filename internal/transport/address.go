// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"fmt"
	"strconv"
	"strings"
)

// AddressSize is the length of a device address in bytes
const AddressSize = 6

// Address is a 6-byte radio device address
type Address [AddressSize]byte

// Broadcast reaches every node on the medium
var Broadcast = Address{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

// nodePrefix is a locally administered prefix for derived node addresses
var nodePrefix = [3]byte{0x02, 0x57, 0x53}

// NodeAddress derives a stable address from a small node id.
// Gateways conventionally use id 0.
func NodeAddress(id uint8) Address {
	return Address{nodePrefix[0], nodePrefix[1], nodePrefix[2], 0x00, 0x00, id}
}

// ParseAddress parses the colon separated form "aa:bb:cc:dd:ee:ff"
func ParseAddress(s string) (Address, error) {
	var a Address
	parts := strings.Split(s, ":")
	if len(parts) != AddressSize {
		return a, fmt.Errorf("invalid address %q: expected %d colon separated bytes", s, AddressSize)
	}
	for i, p := range parts {
		if len(p) != 2 {
			return a, fmt.Errorf("invalid address %q: byte %d must be two hex digits", s, i)
		}
		v, err := strconv.ParseUint(p, 16, 8)
		if err != nil {
			return a, fmt.Errorf("invalid address %q: %v", s, err)
		}
		a[i] = byte(v)
	}
	return a, nil
}

// String returns the colon separated form
func (a Address) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", a[0], a[1], a[2], a[3], a[4], a[5])
}

// IsBroadcast reports whether a is the broadcast address
func (a Address) IsBroadcast() bool {
	return a == Broadcast
}
