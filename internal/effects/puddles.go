// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package effects

import (
	"math"
	"math/rand"

	"dmx-gateway/internal/e131"
)

type activePuddle struct {
	position int
	size     int
	age      float64
}

type puddlesState struct {
	leds            [512][3]uint8
	nextPuddleTime  float64
	activePuddles   []activePuddle
}

// puddlesEffect is random expanding puddles that fade in quadratically;
// the LED buffer holds the max over recent puddles and fades 15% per
// tick (spec.md §4.2's literal fade rate, used in preference to the
// weaker ~6% the original_source constant implies — see DESIGN.md).
type puddlesEffect struct {
	color          [3]uint8
	fadeRemaining  float64 // 0.85 retained per tick == 15% fade
	puddleSize     int
	fadeInDuration float64
	states         map[uint16]*puddlesState
}

// NewPuddles builds the Puddles effect.
func NewPuddles(color [3]uint8, _ float64) Effect {
	return &puddlesEffect{
		color:          color,
		fadeRemaining:  0.85,
		puddleSize:     8,
		fadeInDuration: 0.15,
		states:         make(map[uint16]*puddlesState),
	}
}

func (e *puddlesEffect) Tick(elapsed float64, tr *e131.Transport, ledCount int) {
	u := tr.Universe()
	st, ok := e.states[u]
	if !ok {
		st = &puddlesState{}
		e.states[u] = st
	}

	for i := range st.leds {
		st.leds[i][0] = scale(st.leds[i][0], e.fadeRemaining)
		st.leds[i][1] = scale(st.leds[i][1], e.fadeRemaining)
		st.leds[i][2] = scale(st.leds[i][2], e.fadeRemaining)
	}

	if elapsed >= st.nextPuddleTime {
		pos := rand.Intn(maxInt(ledCount, 1))
		size := 1 + rand.Intn(e.puddleSize)
		st.activePuddles = append(st.activePuddles, activePuddle{position: pos, size: size})
		st.nextPuddleTime = elapsed + randRange(0.03, 0.12)
	}

	const dt = 0.025
	for i := range st.activePuddles {
		p := &st.activePuddles[i]
		p.age += dt

		brightness := 1.0
		if p.age < e.fadeInDuration {
			brightness = math.Pow(p.age/e.fadeInDuration, 2)
		}

		for j := 0; j < p.size; j++ {
			idx := p.position + j
			if idx < ledCount {
				r := scale(e.color[0], brightness)
				g := scale(e.color[1], brightness)
				b := scale(e.color[2], brightness)
				if r > st.leds[idx][0] {
					st.leds[idx][0] = r
				}
				if g > st.leds[idx][1] {
					st.leds[idx][1] = g
				}
				if b > st.leds[idx][2] {
					st.leds[idx][2] = b
				}
			}
		}
	}

	kept := st.activePuddles[:0]
	for _, p := range st.activePuddles {
		if p.age < e.fadeInDuration+0.05 {
			kept = append(kept, p)
		}
	}
	st.activePuddles = kept

	var frame [512]byte
	count := ledCount
	if count > 128 {
		count = 128
	}
	for i := 0; i < count; i++ {
		offset := i * 4
		frame[offset] = st.leds[i][0]
		frame[offset+1] = st.leds[i][1]
		frame[offset+2] = st.leds[i][2]
	}
	_ = tr.SendDMXPacket(&frame)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
