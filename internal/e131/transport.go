// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

// Package e131 implements a broadcast-only E1.31 (sACN) DMX-over-UDP codec
// and pacing layer, hand-crafted to the wire exactly — no external sACN
// library is used since none observed in the field tolerates the timing
// this system needs.
package e131

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"syscall"
)

const (
	// PacketSize is the fixed E1.31 packet length this transport emits.
	PacketSize = 638

	dmxPayloadOffset = 126
	dmxPayloadSize   = 512
	sequenceOffset   = 111
	universeOffset   = 113

	// maxLEDCount is the clamp bound: 128 LEDs × 4 bytes (RGBW) = 512.
	maxLEDCount = 128

	sourceName = "WLED Rust Server"
)

var cid = [16]byte{
	0x12, 0x34, 0x56, 0x78, 0x9a, 0xbc, 0xde, 0xf0,
	0x12, 0x34, 0x56, 0x78, 0x9a, 0xbc, 0xde, 0xf0,
}

// Transport serializes DMX universes into E1.31 packets and broadcasts them
// on the subnet. One Transport per universe; not shared across goroutines.
type Transport struct {
	conn      *net.UDPConn
	dest      *net.UDPAddr
	universe  uint16
	sequence  byte
	header    [PacketSize]byte
	logger    *slog.Logger
	sinceLast int // packets sent since the last triple-count log line

	okCount, wouldBlockCount, errCount uint64
}

// New constructs the socket, derives the subnet broadcast address from the
// first member IP's /24, and prebuilds the constant packet header. Fails
// only on bind.
func New(memberIPs []string, universe uint16, logger *slog.Logger) (*Transport, error) {
	if len(memberIPs) == 0 {
		return nil, errors.New("e131: at least one member IP is required to derive the broadcast subnet")
	}
	broadcastAddr, err := subnetBroadcast(memberIPs[0])
	if err != nil {
		return nil, fmt.Errorf("e131: %w", err)
	}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	if err != nil {
		return nil, fmt.Errorf("e131: bind: %w", err)
	}

	t := &Transport{
		conn:     conn,
		dest:     &net.UDPAddr{IP: broadcastAddr, Port: 5568},
		universe: universe,
		logger:   logger,
	}
	t.buildHeader()
	if logger != nil {
		logger.Info("e131 transport initialized", "universe", universe, "broadcast", t.dest.String())
	}
	return t, nil
}

// subnetBroadcast derives x.y.z.255 from an IPv4 literal.
func subnetBroadcast(ipStr string) (net.IP, error) {
	ip := net.ParseIP(ipStr).To4()
	if ip == nil {
		return nil, fmt.Errorf("not an IPv4 literal: %q", ipStr)
	}
	broadcast := make(net.IP, net.IPv4len)
	copy(broadcast, ip)
	broadcast[3] = 255
	return broadcast, nil
}

// buildHeader fills in the 126 bytes preceding the DMX payload exactly once.
// Only the sequence byte (offset 111) and the payload (offset 126+) change
// between packets thereafter — invariant §8.1.
func (t *Transport) buildHeader() {
	h := t.header[:]

	// Root layer.
	binary.BigEndian.PutUint16(h[0:2], 0x0010) // preamble size
	binary.BigEndian.PutUint16(h[2:4], 0x0000) // postamble size
	copy(h[4:16], "ASC-E1.17\x00\x00\x00")

	const framingLength = 88 + dmxPayloadSize
	const rootLength = framingLength + 38 - 16
	binary.BigEndian.PutUint16(h[16:18], 0x7000|uint16(rootLength))
	binary.BigEndian.PutUint32(h[18:22], 0x00000004) // VECTOR_ROOT_E131_DATA
	copy(h[22:38], cid[:])

	// Framing layer.
	binary.BigEndian.PutUint16(h[38:40], 0x7000|uint16(framingLength))
	binary.BigEndian.PutUint32(h[40:44], 0x00000002) // VECTOR_E131_DATA_PACKET
	copy(h[44:108], sourceName)                      // remaining bytes already zero
	h[108] = 100                                      // priority
	h[109], h[110] = 0, 0                             // sync address
	h[sequenceOffset] = t.sequence
	h[112] = 0x00 // options
	binary.BigEndian.PutUint16(h[universeOffset:universeOffset+2], t.universe)

	// DMP layer.
	const dmpLength = 11 + dmxPayloadSize
	binary.BigEndian.PutUint16(h[115:117], 0x7000|uint16(dmpLength))
	h[117] = 0x02 // VECTOR_DMP_SET_PROPERTY
	h[118] = 0xa1 // address & data type
	binary.BigEndian.PutUint16(h[119:121], 0x0000)
	binary.BigEndian.PutUint16(h[121:123], 0x0001)
	binary.BigEndian.PutUint16(h[123:125], uint16(dmxPayloadSize+1))
	h[125] = 0x00 // DMX512-A start code
}

// Universe returns the universe this transport is bound to.
func (t *Transport) Universe() uint16 { return t.universe }

// SendDMXPacket writes the sequence byte, copies payload into the cached
// packet, and emits one UDP broadcast. WouldBlock is counted, not
// propagated; only hard send errors are reported. Every 256 packets the
// transport logs a success/wouldblock/error triple.
func (t *Transport) SendDMXPacket(payload *[dmxPayloadSize]byte) error {
	t.header[sequenceOffset] = t.sequence
	copy(t.header[dmxPayloadOffset:], payload[:])

	_, err := t.conn.WriteToUDP(t.header[:], t.dest)
	t.sequence++ // wraps at 256 per uint8 overflow

	t.sinceLast++
	switch {
	case err == nil:
		t.okCount++
	case isWouldBlock(err):
		t.wouldBlockCount++
		err = nil
	default:
		t.errCount++
	}

	if t.sinceLast >= 256 {
		if t.logger != nil {
			t.logger.Debug("e131 packet tally", "universe", t.universe,
				"ok", t.okCount, "wouldblock", t.wouldBlockCount, "err", t.errCount)
		}
		t.sinceLast = 0
	}
	return err
}

func isWouldBlock(err error) bool {
	var opErr *net.OpError
	if !errors.As(err, &opErr) {
		return false
	}
	var errno syscall.Errno
	if !errors.As(opErr.Err, &errno) {
		return false
	}
	return errno == syscall.EWOULDBLOCK || errno == syscall.EAGAIN
}

// SendRawLEDs constructs a 512-byte RGBW frame (R,G,B,W=0 per LED) for the
// first count LEDs (clamped to maxLEDCount) and sends it.
func (t *Transport) SendRawLEDs(count int, r, g, b uint8) error {
	if count > maxLEDCount {
		count = maxLEDCount
	}
	var frame [dmxPayloadSize]byte
	for i := 0; i < count; i++ {
		base := i * 4
		frame[base] = r
		frame[base+1] = g
		frame[base+2] = b
		frame[base+3] = 0
	}
	return t.SendDMXPacket(&frame)
}

// SendSolidColor sends a solid RGB frame scaled by brightness (0-255) across
// maxLEDCount LEDs. Used by the group command fast path (§4.7).
func (t *Transport) SendSolidColor(r, g, b, brightness uint8) error {
	scale := func(c uint8) uint8 {
		return uint8(uint16(c) * uint16(brightness) / 255)
	}
	return t.SendRawLEDs(maxLEDCount, scale(r), scale(g), scale(b))
}

// SendLEDBuffer sends an explicit per-LED RGB buffer (clamped to
// maxLEDCount entries).
func (t *Transport) SendLEDBuffer(leds [][3]uint8) error {
	if len(leds) > maxLEDCount {
		leds = leds[:maxLEDCount]
	}
	var frame [dmxPayloadSize]byte
	for i, c := range leds {
		base := i * 4
		frame[base] = c[0]
		frame[base+1] = c[1]
		frame[base+2] = c[2]
	}
	return t.SendDMXPacket(&frame)
}

// SendBlackout sends an all-zero frame.
func (t *Transport) SendBlackout() error {
	var frame [dmxPayloadSize]byte
	return t.SendDMXPacket(&frame)
}

// Close releases the underlying socket.
func (t *Transport) Close() error {
	return t.conn.Close()
}

// SequenceForTest exposes the next sequence byte to be written, for test
// assertions that an effect did or did not emit a packet.
func (t *Transport) SequenceForTest() byte { return t.sequence }
