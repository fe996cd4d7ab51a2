// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package wakesync

import (
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

// getFuzzSeed returns the seed from FUZZ_SEED env var, or generates one from current time
func getFuzzSeed() int64 {
	if envSeed := os.Getenv("FUZZ_SEED"); envSeed != "" {
		if seed, err := strconv.ParseInt(envSeed, 10, 64); err == nil {
			return seed
		}
	}
	return time.Now().UnixNano()
}

// newFuzzRng creates a new random number generator and logs the seed for reproducibility
func newFuzzRng(t *testing.T) *rand.Rand {
	seed := getFuzzSeed()
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}

// randomPacket builds a random well-formed record
func randomPacket(rng *rand.Rand) Packet {
	switch rng.Intn(3) {
	case 0:
		return NewTimeSync(rng.Uint32(), rng.Uint32(), uint16(rng.Intn(65536)), uint8(rng.Intn(256)))
	case 1:
		payload := make([]byte, rng.Intn(MaxDataSize+1))
		rng.Read(payload)
		s, _ := NewSensorData(uint8(rng.Intn(256)), rng.Uint32(), uint8(rng.Intn(256)), payload)
		return s
	default:
		return NewAck(uint8(rng.Intn(256)), rng.Uint32())
	}
}

// ============================================================
// Decoder Fuzz Tests
// ============================================================

func TestFuzz_DecodeRandomBytes(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds()

	for i := 0; i < rounds; i++ {
		data := make([]byte, rng.Intn(SensorDataSize*2))
		rng.Read(data)

		p, err := Decode(data)
		if err == nil {
			size, _ := ExpectedSize(p.Type())
			if len(data) != size {
				t.Fatalf("Round %d: accepted %d bytes as %s", i, len(data), FormatMessageType(p.Type()))
			}
			continue
		}

		var de *DecodeError
		if !errors.As(err, &de) {
			t.Fatalf("Round %d: expected *DecodeError, got %T", i, err)
		}
	}
}

func TestFuzz_RoundTrip(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds()

	for i := 0; i < rounds; i++ {
		orig := randomPacket(rng)
		data, err := Encode(orig)
		if err != nil {
			t.Fatalf("Round %d: encode failed: %v", i, err)
		}

		decoded, err := Decode(data)
		if err != nil {
			t.Fatalf("Round %d: decode failed: %v", i, err)
		}

		reencoded := MustEncode(decoded)
		if string(reencoded) != string(data) {
			t.Fatalf("Round %d: re-encoded bytes differ", i)
		}
	}
}

func TestFuzz_SingleBitFlip(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds()

	for i := 0; i < rounds; i++ {
		data := MustEncode(randomPacket(rng))
		pos := rng.Intn(len(data))
		data[pos] ^= 1 << rng.Intn(8)

		if _, err := Decode(data); err == nil {
			t.Fatalf("Round %d: flip at byte %d accepted", i, pos)
		}
	}
}

func TestFuzz_WrongLength(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds()
	tags := []uint8{MsgTimeSync, MsgSensorData, MsgAck}

	for i := 0; i < rounds; i++ {
		tag := tags[rng.Intn(len(tags))]
		size, _ := ExpectedSize(tag)

		n := rng.Intn(SensorDataSize*2) + 1
		if n == size {
			n++
		}
		data := make([]byte, n)
		rng.Read(data)
		data[0] = tag

		if _, err := Decode(data); !errors.Is(err, ErrTruncatedOrOversized) {
			t.Fatalf("Round %d: %s with %d bytes: expected TruncatedOrOversized, got %v",
				i, FormatMessageType(tag), n, err)
		}
	}
}

func TestFuzz_StatisticsNeverPanic(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds()
	stats := NewStatistics()

	for i := 0; i < rounds; i++ {
		var data []byte
		if rng.Intn(2) == 0 {
			data = MustEncode(randomPacket(rng))
		} else {
			data = make([]byte, rng.Intn(32))
			rng.Read(data)
		}

		p, err := Decode(data)
		var anomalies []ValidationError
		if err == nil {
			anomalies = ValidatePacket(p)
		}
		stats.Update(p, err, anomalies)
	}

	if stats.TotalPackets != uint64(rounds) {
		t.Errorf("Expected %d packets, got %d", rounds, stats.TotalPackets)
	}
	if stats.ValidPackets+stats.AnomalousPackets+stats.DecodeErrors() != stats.TotalPackets {
		t.Errorf("Counters do not add up: %+v", stats)
	}
}
