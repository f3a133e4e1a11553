// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package effects

import (
	"math"
	"math/rand"

	"dmx-gateway/internal/e131"
)

type lightningState struct {
	flashCount    int
	totalFlashes  int
	flashStart    int
	baseLen       int
	maxLen        int
	flashOn       bool
	nextEventTime float64
	afterLeader   bool
	seen          bool
}

// lightningEffect is a stochastic flicker over a pulsing base: a random
// sub-leader at beat start, 3-5 flash-offs at 30-80ms intervals with
// geometric growth in extent.
type lightningEffect struct {
	color        [3]uint8
	beatDuration float64
	states       map[uint16]*lightningState
}

// NewLightning builds the Lightning effect.
func NewLightning(color [3]uint8, bpm float64) Effect {
	if bpm <= 0 {
		bpm = 1
	}
	return &lightningEffect{
		color:        color,
		beatDuration: 60.0 / bpm,
		states:       make(map[uint16]*lightningState),
	}
}

func (e *lightningEffect) calculatePulse(elapsed float64) float64 {
	beatProgress := math.Mod(elapsed, e.beatDuration) / e.beatDuration
	switch {
	case beatProgress < 0.05:
		return (beatProgress / 0.05) * 0.5
	case beatProgress < 0.15:
		decay := (beatProgress - 0.05) / 0.10
		return 0.5 * (1.0 - decay*decay)
	default:
		return 0.0
	}
}

func randRange(lo, hi float64) float64 {
	return lo + rand.Float64()*(hi-lo)
}

func (e *lightningEffect) Tick(elapsed float64, tr *e131.Transport, ledCount int) {
	pulse := e.calculatePulse(elapsed)
	pulseColor := [3]uint8{scale(e.color[0], pulse), scale(e.color[1], pulse), scale(e.color[2], pulse)}

	u := tr.Universe()
	st, ok := e.states[u]
	if !ok {
		st = &lightningState{}
		e.states[u] = st
	}

	if !st.seen || elapsed >= st.nextEventTime {
		st.seen = true
		switch {
		case st.flashCount == 0:
			st.baseLen = ledCount / 10
			st.maxLen = ledCount / 2
			span := ledCount - st.maxLen
			if span < 0 {
				span = 0
			}
			st.flashStart = rand.Intn(span + 1)
			st.totalFlashes = 3 + rand.Intn(3)
			st.flashCount = st.totalFlashes
			st.flashOn = true
			st.afterLeader = true
			st.nextEventTime = elapsed + 0.03
		case st.flashOn:
			st.flashOn = false
			st.flashCount--
			switch {
			case st.afterLeader:
				st.nextEventTime = elapsed + 0.15
				st.afterLeader = false
			case st.flashCount == 0:
				st.nextEventTime = elapsed + randRange(0.1, 0.5)
			default:
				st.nextEventTime = elapsed + randRange(0.03, 0.08)
			}
		default:
			st.flashOn = true
			st.flashCount--
			st.nextEventTime = elapsed + randRange(0.02, 0.05)
		}
	}

	leds := make([][3]uint8, ledCount)
	for i := range leds {
		leds[i] = pulseColor
	}

	if st.flashOn && st.totalFlashes > 0 {
		progress := 1.0 - float64(st.flashCount)/float64(st.totalFlashes)
		flashLen := st.baseLen + int(float64(st.maxLen-st.baseLen)*progress)
		end := st.flashStart + flashLen
		if end > ledCount {
			end = ledCount
		}
		for i := st.flashStart; i < end; i++ {
			leds[i] = e.color
		}
	}
	_ = tr.SendLEDBuffer(leds)
}
