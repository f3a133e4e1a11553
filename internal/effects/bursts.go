// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package effects

import (
	"math"
	"math/rand"

	"dmx-gateway/internal/e131"
)

type burstsState struct {
	leds     [512][3]uint8
	lastBeat int64
}

// burstsEffect spawns 3 random bursts of burstSize LEDs every beat,
// fades the decay buffer by 230/256 each tick, and applies a pulse
// envelope 1+0.5*(1-beat_phase)^2.
type burstsEffect struct {
	color        [3]uint8
	beatDuration float64
	burstSize    int
	states       map[uint16]*burstsState
}

// NewBursts builds the Bursts effect.
func NewBursts(color [3]uint8, bpm float64) Effect {
	return &burstsEffect{
		color:        color,
		beatDuration: beatDuration(bpm),
		burstSize:    8,
		states:       make(map[uint16]*burstsState),
	}
}

func (e *burstsEffect) Tick(elapsed float64, tr *e131.Transport, ledCount int) {
	currentBeat := int64(elapsed / e.beatDuration)
	beatPosition := math.Mod(elapsed, e.beatDuration) / e.beatDuration

	u := tr.Universe()
	st, ok := e.states[u]
	if !ok {
		st = &burstsState{lastBeat: -1}
		e.states[u] = st
	}

	for i := range st.leds {
		st.leds[i][0] = scaleU16(st.leds[i][0], 230, 256)
		st.leds[i][1] = scaleU16(st.leds[i][1], 230, 256)
		st.leds[i][2] = scaleU16(st.leds[i][2], 230, 256)
	}

	if currentBeat != st.lastBeat {
		st.lastBeat = currentBeat
		span := ledCount - e.burstSize
		if span < 1 {
			span = 1
		}
		for i := 0; i < 3; i++ {
			pos := rand.Intn(span)
			for j := 0; j < e.burstSize; j++ {
				if pos+j < ledCount {
					st.leds[pos+j] = e.color
				}
			}
		}
	}

	pulse := 1.0 + 0.5*math.Pow(1.0-beatPosition, 2)

	var frame [512]byte
	count := ledCount
	if count > 128 {
		count = 128
	}
	for i := 0; i < count; i++ {
		offset := i * 4
		frame[offset] = scale(st.leds[i][0], pulse)
		frame[offset+1] = scale(st.leds[i][1], pulse)
		frame[offset+2] = scale(st.leds[i][2], pulse)
	}
	_ = tr.SendDMXPacket(&frame)
}
