// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package wakesync

import (
	"errors"
	"fmt"
)

// Decode failures, matched with errors.Is against a *DecodeError
var (
	ErrUnknownType          = errors.New("unknown packet type")
	ErrTruncatedOrOversized = errors.New("packet length does not match type")
	ErrChecksumMismatch     = errors.New("checksum mismatch")
)

// ErrPayloadTooLarge is returned when a SensorData payload exceeds MaxDataSize
var ErrPayloadTooLarge = errors.New("payload too large")

// DecodeErrorKind classifies a decode failure
type DecodeErrorKind int

// Decode error kinds
const (
	UnknownType DecodeErrorKind = iota
	TruncatedOrOversized
	ChecksumMismatch
)

// String returns the kind name
func (k DecodeErrorKind) String() string {
	switch k {
	case UnknownType:
		return "UnknownType"
	case TruncatedOrOversized:
		return "TruncatedOrOversized"
	case ChecksumMismatch:
		return "ChecksumMismatch"
	}
	return fmt.Sprintf("DecodeErrorKind(%d)", int(k))
}

// DecodeError describes why a received buffer was rejected
type DecodeError struct {
	Kind DecodeErrorKind
	Type uint8

	// Length mismatch details
	Length   int
	Expected int

	// Checksum details
	Received   uint8
	Calculated uint8
}

// Error implements the error interface
func (e *DecodeError) Error() string {
	switch e.Kind {
	case UnknownType:
		return fmt.Sprintf("unknown packet type 0x%02X (len=%d)", e.Type, e.Length)
	case TruncatedOrOversized:
		if e.Length == 0 {
			return "empty packet"
		}
		return fmt.Sprintf("%s length mismatch: got %d bytes, expected %d",
			FormatMessageType(e.Type), e.Length, e.Expected)
	case ChecksumMismatch:
		return fmt.Sprintf("%s checksum mismatch: expected 0x%02X, got 0x%02X",
			FormatMessageType(e.Type), e.Calculated, e.Received)
	}
	return "decode error"
}

// Unwrap maps the kind onto its sentinel error
func (e *DecodeError) Unwrap() error {
	switch e.Kind {
	case UnknownType:
		return ErrUnknownType
	case TruncatedOrOversized:
		return ErrTruncatedOrOversized
	case ChecksumMismatch:
		return ErrChecksumMismatch
	}
	return nil
}
