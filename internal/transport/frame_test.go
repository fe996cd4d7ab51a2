// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"bytes"
	"errors"
	"math/rand"
	"os"
	"strconv"
	"testing"
	"time"
)

// getFuzzRounds returns the number of fuzz rounds from FUZZ_ROUNDS env var, default 1000
func getFuzzRounds() int {
	if envRounds := os.Getenv("FUZZ_ROUNDS"); envRounds != "" {
		if rounds, err := strconv.Atoi(envRounds); err == nil && rounds > 0 {
			return rounds
		}
	}
	return 1000
}

// newFuzzRng creates a new random number generator and logs the seed for reproducibility
func newFuzzRng(t *testing.T) *rand.Rand {
	seed := time.Now().UnixNano()
	if envSeed := os.Getenv("FUZZ_SEED"); envSeed != "" {
		if s, err := strconv.ParseInt(envSeed, 10, 64); err == nil {
			seed = s
		}
	}
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}

func decodeAll(t *testing.T, d *FrameDecoder, data []byte) []*Frame {
	t.Helper()
	var frames []*Frame
	for _, b := range data {
		f, _ := d.DecodeByte(b)
		if f != nil {
			frames = append(frames, f)
		}
	}
	return frames
}

// ============================================================
// CRC Tests
// ============================================================

func TestCalculateCRC_KnownValues(t *testing.T) {
	if crc := CalculateCRC([]byte("123456789")); crc != 0x29B1 {
		t.Errorf("CRC-16-CCITT check value: expected 0x29B1, got 0x%04X", crc)
	}
	if crc := CalculateCRC(nil); crc != crcInitial {
		t.Errorf("CRC of empty data should be initial value, got 0x%04X", crc)
	}
}

// ============================================================
// Frame Encode / Decode Tests
// ============================================================

func TestFrame_RoundTrip(t *testing.T) {
	payloads := [][]byte{
		nil,
		{0x01},
		{StartByte, EndByte, EscByte, 0x00},
		bytes.Repeat([]byte{EscByte}, MaxFrameSize),
	}

	for i, payload := range payloads {
		peer := NodeAddress(uint8(i))
		wire, err := EncodeFrame(peer, payload)
		if err != nil {
			t.Fatalf("EncodeFrame failed: %v", err)
		}
		if wire[0] != StartByte || wire[len(wire)-1] != EndByte {
			t.Fatalf("Missing framing bytes: % X", wire)
		}
		for _, b := range wire[1 : len(wire)-1] {
			if b == StartByte || b == EndByte {
				t.Fatalf("Unstuffed framing byte inside frame: % X", wire)
			}
		}

		frames := decodeAll(t, NewFrameDecoder(), wire)
		if len(frames) != 1 {
			t.Fatalf("Expected 1 frame, got %d", len(frames))
		}
		if frames[0].Peer != peer || !bytes.Equal(frames[0].Payload, payload) {
			t.Errorf("Round trip mismatch: %s % X", frames[0].Peer, frames[0].Payload)
		}
	}
}

func TestFrame_TooLarge(t *testing.T) {
	if _, err := EncodeFrame(Broadcast, make([]byte, MaxFrameSize+1)); !errors.Is(err, ErrFrameTooLarge) {
		t.Errorf("Expected ErrFrameTooLarge, got %v", err)
	}
}

func TestFrameDecoder_CRCMismatch(t *testing.T) {
	wire, _ := EncodeFrame(NodeAddress(1), []byte{0x10, 0x20})
	wire[len(wire)-2] ^= 0x01

	d := NewFrameDecoder()
	var lastErr error
	for _, b := range wire {
		if _, err := d.DecodeByte(b); err != nil {
			lastErr = err
		}
	}
	if lastErr == nil {
		t.Error("Expected CRC error")
	}
}

func TestFrameDecoder_ResyncAfterGarbage(t *testing.T) {
	good, _ := EncodeFrame(NodeAddress(3), []byte("ok"))
	stream := append([]byte{0x00, 0x11, EndByte, StartByte, 0x01, 0x02}, good...)
	stream = append(stream, good...)

	frames := decodeAll(t, NewFrameDecoder(), stream)
	if len(frames) != 2 {
		t.Fatalf("Expected 2 frames after resync, got %d", len(frames))
	}
}

func TestFrameDecoder_InvalidLength(t *testing.T) {
	d := NewFrameDecoder()
	d.DecodeByte(StartByte)
	for i := 0; i < AddressSize; i++ {
		d.DecodeByte(0x01)
	}
	if _, err := d.DecodeByte(0xFF); err == nil {
		t.Error("Expected invalid length error")
	}
}

func TestFuzz_FrameDecoderRandomBytes(t *testing.T) {
	rng := newFuzzRng(t)
	d := NewFrameDecoder()

	for i := 0; i < getFuzzRounds(); i++ {
		data := make([]byte, rng.Intn(600))
		rng.Read(data)
		for _, b := range data {
			d.DecodeByte(b)
		}
	}
}

func TestFuzz_FrameRoundTrip(t *testing.T) {
	rng := newFuzzRng(t)
	d := NewFrameDecoder()

	for i := 0; i < getFuzzRounds(); i++ {
		var peer Address
		rng.Read(peer[:])
		payload := make([]byte, rng.Intn(MaxFrameSize+1))
		rng.Read(payload)

		wire, err := EncodeFrame(peer, payload)
		if err != nil {
			t.Fatalf("Round %d: encode failed: %v", i, err)
		}
		frames := decodeAll(t, d, wire)
		if len(frames) != 1 || frames[0].Peer != peer || !bytes.Equal(frames[0].Payload, payload) {
			t.Fatalf("Round %d: round trip failed", i)
		}
	}
}
