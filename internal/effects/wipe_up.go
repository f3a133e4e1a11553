// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package effects

import (
	"math"

	"dmx-gateway/internal/e131"
)

// wipeUpEffect is a beat-synchronous position sweep with a fixed-length
// trail, quadratic easing, and a final-10% overshoot to 1.5x brightness.
type wipeUpEffect struct {
	color        [3]uint8
	beatDuration float64
	trailLength  int
}

// NewWipeUp builds the WipeUp effect.
func NewWipeUp(color [3]uint8, bpm float64) Effect {
	return &wipeUpEffect{color: color, beatDuration: beatDuration(bpm), trailLength: 35}
}

func (w *wipeUpEffect) Tick(elapsed float64, tr *e131.Transport, ledCount int) {
	beatPosition := math.Mod(elapsed, w.beatDuration) / w.beatDuration
	eased := beatPosition * beatPosition

	peakBrightness := 1.0
	if beatPosition > 0.90 {
		peakBrightness = math.Min(1.5, 1.0+(beatPosition-0.90)*5.0)
	}

	fillHead := int(eased * float64(ledCount+w.trailLength))

	leds := make([][3]uint8, ledCount)
	for i := 0; i < ledCount; i++ {
		var brightness float64
		if i < fillHead {
			distanceFromHead := fillHead - i
			if distanceFromHead < w.trailLength {
				fade := 1.0 - float64(distanceFromHead)/float64(w.trailLength)
				brightness = fade * fade * peakBrightness
			}
		}
		leds[i] = [3]uint8{scale(w.color[0], brightness), scale(w.color[1], brightness), scale(w.color[2], brightness)}
	}
	_ = tr.SendLEDBuffer(leds)
}
