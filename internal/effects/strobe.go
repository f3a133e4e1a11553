// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package effects

import (
	"math"

	"dmx-gateway/internal/e131"
)

// strobeEffect is a BPM-driven square wave, 5-15% duty, minimum 25ms
// on-time, sent only on edges (3x back-to-back to beat packet loss).
type strobeEffect struct {
	color        [3]uint8
	beatDuration float64
	lastOn       map[uint16]bool
}

// NewStrobe builds the Strobe effect.
func NewStrobe(color [3]uint8, bpm float64) Effect {
	return &strobeEffect{
		color:        color,
		beatDuration: beatDuration(bpm),
		lastOn:       make(map[uint16]bool),
	}
}

func (s *strobeEffect) Tick(elapsed float64, tr *e131.Transport, ledCount int) {
	beatPosition := math.Mod(elapsed, s.beatDuration) / s.beatDuration

	const minOnDuration = 0.025
	onThreshold := math.Max(0.05, math.Min(0.15, minOnDuration/s.beatDuration))
	strobeOn := beatPosition < onThreshold

	u := tr.Universe()
	last, known := s.lastOn[u]
	if known && strobeOn == last {
		return
	}
	s.lastOn[u] = strobeOn

	r, g, b := uint8(0), uint8(0), uint8(0)
	if strobeOn {
		r, g, b = s.color[0], s.color[1], s.color[2]
	}

	for i := 0; i < 3; i++ {
		_ = tr.SendRawLEDs(ledCount, r, g, b)
	}
}
