// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package effects

import (
	"math"

	"dmx-gateway/internal/e131"
)

// wipeCenterEffect splits the fill from the centre outward with a
// fixed-length trail, quadratic easing, and the same peak overshoot as
// WipeUp.
type wipeCenterEffect struct {
	color        [3]uint8
	beatDuration float64
	trailLength  int
}

// NewWipeCenter builds the WipeCenter effect.
func NewWipeCenter(color [3]uint8, bpm float64) Effect {
	return &wipeCenterEffect{color: color, beatDuration: beatDuration(bpm), trailLength: 20}
}

func (w *wipeCenterEffect) Tick(elapsed float64, tr *e131.Transport, ledCount int) {
	beatPosition := math.Mod(elapsed, w.beatDuration) / w.beatDuration
	eased := 1.0 - math.Pow(1.0-beatPosition, 2)

	peakBrightness := 1.0
	if beatPosition > 0.90 {
		peakBrightness = math.Min(1.5, 1.0+(beatPosition-0.90)*5.0)
	}

	half := ledCount / 2
	fillDistance := int(eased * float64(half+w.trailLength))

	leds := make([][3]uint8, ledCount)
	for i := 0; i < ledCount; i++ {
		distFromCenter := i - half
		if i < half {
			distFromCenter = half - i
		}

		var brightness float64
		if distFromCenter < fillDistance {
			distanceFromHead := fillDistance - distFromCenter
			if distanceFromHead < w.trailLength {
				fade := 1.0 - float64(distanceFromHead)/float64(w.trailLength)
				brightness = fade * fade * peakBrightness
			}
		}
		leds[i] = [3]uint8{scale(w.color[0], brightness), scale(w.color[1], brightness), scale(w.color[2], brightness)}
	}
	_ = tr.SendLEDBuffer(leds)
}
