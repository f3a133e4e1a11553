// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package effects

import (
	"testing"

	"dmx-gateway/internal/e131"
)

func newTestTransport(t *testing.T, universe uint16) *e131.Transport {
	t.Helper()
	tr, err := e131.New([]string{"10.0.0.5"}, universe, nil)
	if err != nil {
		t.Fatalf("e131.New: %v", err)
	}
	t.Cleanup(func() { tr.Close() })
	return tr
}

func TestBeatDurationSentinelForZeroBPM(t *testing.T) {
	d := beatDuration(0)
	if d <= 0 || !isInf(d) {
		t.Fatalf("beatDuration(0) = %v, want +Inf", d)
	}
}

func isInf(f float64) bool {
	return f > 1e300
}

func TestSolidSendsOnceThenGoesSilent(t *testing.T) {
	tr := newTestTransport(t, 1)
	eff := NewSolid([3]uint8{10, 20, 30})

	eff.Tick(0, tr, 10)
	seqAfterFirst := tr.SequenceForTest()

	// Second tick must not emit another packet — sequence byte unchanged.
	eff.Tick(1.0, tr, 10)
	if got := tr.SequenceForTest(); got != seqAfterFirst {
		t.Fatalf("Solid sent a second packet: sequence advanced from %d to %d", seqAfterFirst, got)
	}
}

func TestAllEffectsConstructAndTickWithoutPanicAtZeroBPM(t *testing.T) {
	color := [3]uint8{255, 128, 0}
	types := []Type{Solid, Strobe, Pulse, Bursts, Flash, WipeUp, WipeCenter, Lightning, Puddles, Sparkle}
	for _, ty := range types {
		t.Run(ty.String(), func(t *testing.T) {
			tr := newTestTransport(t, 5)
			eff := newEffect(ty, color, 0)
			for i := 0; i < 5; i++ {
				eff.Tick(float64(i)*0.025, tr, 30)
			}
		})
	}
}

func TestAllEffectsConstructAndTickAtNormalBPM(t *testing.T) {
	color := [3]uint8{0, 255, 0}
	types := []Type{Solid, Strobe, Pulse, Bursts, Flash, WipeUp, WipeCenter, Lightning, Puddles, Sparkle}
	for _, ty := range types {
		t.Run(ty.String(), func(t *testing.T) {
			tr := newTestTransport(t, 9)
			eff := newEffect(ty, color, 120)
			for i := 0; i < 100; i++ {
				eff.Tick(float64(i)*0.025, tr, 64)
			}
		})
	}
}
