// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package transport carries wake-sync records between nodes.
//
// A Transport is a connectionless radio link: unicast or broadcast sends with an
// asynchronous delivery Receipt, and a single receive callback. Air is an
// in-memory medium for tests and simulation. Stream bridges frames over a serial
// dongle or a WebSocket to a Relay.
package transport

import "errors"

// MaxFrameSize is the largest payload a single radio frame carries
const MaxFrameSize = 250

// Transport errors
var (
	ErrClosed        = errors.New("transport closed")
	ErrNoPeer        = errors.New("no such peer")
	ErrLost          = errors.New("frame lost")
	ErrFrameTooLarge = errors.New("frame too large")
	ErrAddressInUse  = errors.New("address already in use")
)

// ReceiveHandler is invoked once per received frame.
// data is owned by the handler.
type ReceiveHandler func(src Address, data []byte)

// Transport is a connectionless radio link
type Transport interface {
	// LocalAddress returns this node's address
	LocalAddress() Address
	// Send queues data for dst. The returned receipt resolves with the
	// link-level outcome; the error reports only immediate rejection.
	Send(dst Address, data []byte) (*Receipt, error)
	// SetReceiveHandler installs the receive callback; nil unregisters it
	SetReceiveHandler(h ReceiveHandler)
	// Close releases the link
	Close() error
}
