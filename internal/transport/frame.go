// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import "fmt"

// Bridge framing bytes
const (
	StartByte = 0x7E
	EndByte   = 0x7F
	EscByte   = 0x7D
	EscXor    = 0x20
)

// CRC-16-CCITT configuration
const (
	crcPolynomial = 0x1021
	crcInitial    = 0xFFFF
)

// frameHeaderSize is peer address + length byte
const frameHeaderSize = AddressSize + 1

// maxFrameBody is header + payload + CRC
const maxFrameBody = frameHeaderSize + MaxFrameSize + 2

// CalculateCRC computes CRC-16-CCITT checksum for the given data
func CalculateCRC(data []byte) uint16 {
	crc := uint16(crcInitial)
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = (crc << 1) ^ crcPolynomial
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

// Frame is one radio frame exchanged with a bridge.
// Peer is the destination when sending and the source when receiving.
type Frame struct {
	Peer    Address
	Payload []byte
}

// EncodeFrame creates a complete wire-formatted bridge frame.
// The CRC covers peer, length and payload; everything between the framing
// bytes is byte-stuffed.
func EncodeFrame(peer Address, payload []byte) ([]byte, error) {
	if len(payload) > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrFrameTooLarge, len(payload), MaxFrameSize)
	}

	data := make([]byte, 0, frameHeaderSize+len(payload)+2)
	data = append(data, peer[:]...)
	data = append(data, uint8(len(payload)))
	data = append(data, payload...)

	crc := CalculateCRC(data)
	data = append(data, byte(crc>>8), byte(crc&0xFF))

	stuffed := stuffBytes(data)

	frame := make([]byte, 0, len(stuffed)+2)
	frame = append(frame, StartByte)
	frame = append(frame, stuffed...)
	frame = append(frame, EndByte)
	return frame, nil
}

// stuffBytes replaces START, END and ESC with ESC + (byte XOR EscXor)
func stuffBytes(data []byte) []byte {
	result := make([]byte, 0, len(data)*2)
	for _, b := range data {
		if b == StartByte || b == EndByte || b == EscByte {
			result = append(result, EscByte, b^EscXor)
		} else {
			result = append(result, b)
		}
	}
	return result
}

// Decoder states
const (
	stateIdle = iota
	statePeer
	stateLength
	statePayload
	stateCRC1
	stateCRC2
	stateEnd
)

// FrameDecoder reassembles bridge frames from a byte stream
type FrameDecoder struct {
	state      int
	buffer     []byte
	escapeNext bool
	length     int
	crc        uint16
}

// NewFrameDecoder creates a new frame decoder
func NewFrameDecoder() *FrameDecoder {
	return &FrameDecoder{
		state:  stateIdle,
		buffer: make([]byte, 0, maxFrameBody),
	}
}

// Reset resets the decoder state to idle
func (d *FrameDecoder) Reset() {
	d.state = stateIdle
	d.buffer = d.buffer[:0]
	d.escapeNext = false
	d.length = 0
	d.crc = 0
}

// DecodeByte processes a single byte through the decoder state machine.
// Returns a completed frame, or nil if the frame is incomplete.
// Returns an error if decoding fails; the decoder then resynchronizes on the
// next START byte.
func (d *FrameDecoder) DecodeByte(b byte) (*Frame, error) {
	if b == EscByte && !d.escapeNext {
		d.escapeNext = true
		return nil, nil
	}

	escaped := d.escapeNext
	if escaped {
		b ^= EscXor
		d.escapeNext = false
	}

	if !escaped && b == StartByte {
		d.Reset()
		d.state = statePeer
		return nil, nil
	}

	if !escaped && b == EndByte {
		if d.state != stateEnd || len(d.buffer) != frameHeaderSize+d.length {
			state := d.state
			d.Reset()
			if state == stateIdle {
				return nil, nil
			}
			return nil, fmt.Errorf("unexpected END byte in state %d", state)
		}

		calculated := CalculateCRC(d.buffer)
		if calculated != d.crc {
			err := fmt.Errorf("CRC mismatch: expected 0x%04X, got 0x%04X", calculated, d.crc)
			d.Reset()
			return nil, err
		}

		f := &Frame{Payload: append([]byte(nil), d.buffer[frameHeaderSize:]...)}
		copy(f.Peer[:], d.buffer[:AddressSize])
		d.Reset()
		return f, nil
	}

	switch d.state {
	case stateIdle:
		return nil, nil

	case statePeer:
		d.buffer = append(d.buffer, b)
		if len(d.buffer) == AddressSize {
			d.state = stateLength
		}

	case stateLength:
		if int(b) > MaxFrameSize {
			d.Reset()
			return nil, fmt.Errorf("invalid length: %d (max %d)", b, MaxFrameSize)
		}
		d.buffer = append(d.buffer, b)
		d.length = int(b)
		if d.length == 0 {
			d.state = stateCRC1
		} else {
			d.state = statePayload
		}

	case statePayload:
		d.buffer = append(d.buffer, b)
		if len(d.buffer) == frameHeaderSize+d.length {
			d.state = stateCRC1
		}

	case stateCRC1:
		d.crc = uint16(b) << 8
		d.state = stateCRC2

	case stateCRC2:
		d.crc |= uint16(b)
		d.state = stateEnd

	default:
		d.Reset()
		return nil, fmt.Errorf("frame overrun: missing END byte")
	}

	return nil, nil
}
