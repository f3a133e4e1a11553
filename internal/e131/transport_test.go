// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package e131

import (
	"bytes"
	"testing"
)

func newTestTransport(t *testing.T) *Transport {
	t.Helper()
	tr, err := New([]string{"192.168.1.50"}, 7, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { tr.Close() })
	return tr
}

func TestBroadcastAddressDerivation(t *testing.T) {
	tr := newTestTransport(t)
	if tr.dest.IP.String() != "192.168.1.255" {
		t.Fatalf("want broadcast 192.168.1.255, got %s", tr.dest.IP.String())
	}
	if tr.dest.Port != 5568 {
		t.Fatalf("want port 5568, got %d", tr.dest.Port)
	}
}

// TestSequenceByteAdvancesHeaderStable covers invariant §8.1: the sequence
// byte advances by 1 mod 256 between packets; bytes 0..110 and 112..125 are
// byte-identical to the prototype.
func TestSequenceByteAdvancesHeaderStable(t *testing.T) {
	tr := newTestTransport(t)

	var prototype [PacketSize]byte
	copy(prototype[:], tr.header[:])

	var payload [dmxPayloadSize]byte
	for i := 0; i < 300; i++ { // exercise wraparound past 256
		before := make([]byte, PacketSize)
		copy(before, tr.header[:])

		_ = tr.SendDMXPacket(&payload)

		wantSeq := byte(i % 256)
		if tr.header[sequenceOffset] != wantSeq {
			t.Fatalf("packet %d: sequence byte = %d, want %d", i, tr.header[sequenceOffset], wantSeq)
		}

		if !bytes.Equal(before[:sequenceOffset], tr.header[:sequenceOffset]) {
			t.Fatalf("packet %d: bytes 0..%d changed", i, sequenceOffset)
		}
		if !bytes.Equal(before[sequenceOffset+1:dmxPayloadOffset], tr.header[sequenceOffset+1:dmxPayloadOffset]) {
			t.Fatalf("packet %d: bytes %d..%d changed", i, sequenceOffset+1, dmxPayloadOffset)
		}
	}
}

// TestLEDCountZeroIsAllZeroPayload covers the led_count=0 boundary: the
// transport still emits a packet with a 512-byte zero payload.
func TestLEDCountZeroIsAllZeroPayload(t *testing.T) {
	tr := newTestTransport(t)
	if err := tr.SendRawLEDs(0, 255, 0, 0); err != nil {
		t.Fatalf("SendRawLEDs: %v", err)
	}
	payload := tr.header[dmxPayloadOffset:]
	for i, b := range payload {
		if b != 0 {
			t.Fatalf("byte %d of payload is %d, want 0", i, b)
		}
	}
}

// TestLEDCountAboveMaxIsClamped covers the led_count>128 boundary.
func TestLEDCountAboveMaxIsClamped(t *testing.T) {
	tr := newTestTransport(t)
	if err := tr.SendRawLEDs(500, 10, 20, 30); err != nil {
		t.Fatalf("SendRawLEDs: %v", err)
	}
	payload := tr.header[dmxPayloadOffset:]
	// Clamped to 128 LEDs * 4 bytes = 512, i.e. the whole frame is written,
	// but SendRawLEDs must not index past maxLEDCount*4.
	if payload[maxLEDCount*4-4] != 10 {
		t.Fatalf("last written LED's R channel = %d, want 10", payload[maxLEDCount*4-4])
	}
}

func TestDMXPayloadOffsetAndSize(t *testing.T) {
	if dmxPayloadOffset != 126 {
		t.Fatalf("dmxPayloadOffset = %d, want 126", dmxPayloadOffset)
	}
	if dmxPayloadSize != 512 {
		t.Fatalf("dmxPayloadSize = %d, want 512", dmxPayloadSize)
	}
	if dmxPayloadOffset+dmxPayloadSize != PacketSize {
		t.Fatalf("payload does not fill out to PacketSize")
	}
}

func TestSolidColorScalesByBrightness(t *testing.T) {
	tr := newTestTransport(t)
	if err := tr.SendSolidColor(255, 0, 0, 128); err != nil {
		t.Fatalf("SendSolidColor: %v", err)
	}
	got := tr.header[dmxPayloadOffset]
	if got != 128 { // 255*128/255 = 128
		t.Fatalf("scaled R = %d, want 128", got)
	}
}
