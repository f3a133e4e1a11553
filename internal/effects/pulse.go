// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package effects

import (
	"math"

	"dmx-gateway/internal/e131"
)

// pulseEffect is an exponential decay brightness over each beat,
// brightness = 255*exp(-8*beat_phase), skipping the frame when unchanged.
type pulseEffect struct {
	color          [3]uint8
	beatDuration   float64
	lastBrightness map[uint16]uint8
}

// NewPulse builds the Pulse effect.
func NewPulse(color [3]uint8, bpm float64) Effect {
	return &pulseEffect{
		color:          color,
		beatDuration:   beatDuration(bpm),
		lastBrightness: make(map[uint16]uint8),
	}
}

func (p *pulseEffect) Tick(elapsed float64, tr *e131.Transport, ledCount int) {
	beatPosition := math.Mod(elapsed, p.beatDuration) / p.beatDuration

	const decayRate = 8.0
	brightness := uint8(math.Exp(-decayRate*beatPosition) * 255.0)

	u := tr.Universe()
	last, known := p.lastBrightness[u]
	if known && brightness == last {
		return
	}
	p.lastBrightness[u] = brightness

	r := scaleU16(p.color[0], uint16(brightness), 255)
	g := scaleU16(p.color[1], uint16(brightness), 255)
	b := scaleU16(p.color[2], uint16(brightness), 255)

	_ = tr.SendRawLEDs(ledCount, r, g, b)
}
