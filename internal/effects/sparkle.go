// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package effects

import (
	"math"
	"math/rand"

	"dmx-gateway/internal/e131"
)

type spark struct {
	position   int
	brightness float64
}

type sparkleState struct {
	sparks        []spark
	lastSpawnBeat int64
	seen          bool
}

// sparkleEffect spawns sparks at 4 subdivisions per beat, lowers each
// spark's brightness by a fixed 0.15 per tick (a linear decay, not an
// exponential one; the rendered level is that brightness squared), and
// glows to the ±1 neighbour LED at 0.3x.
type sparkleEffect struct {
	color        [3]uint8
	beatDuration float64
	states       map[uint16]*sparkleState
}

// NewSparkle builds the Sparkle effect.
func NewSparkle(color [3]uint8, bpm float64) Effect {
	return &sparkleEffect{color: color, beatDuration: beatDuration(bpm), states: make(map[uint16]*sparkleState)}
}

func (e *sparkleEffect) Tick(elapsed float64, tr *e131.Transport, ledCount int) {
	u := tr.Universe()
	st, ok := e.states[u]
	if !ok {
		st = &sparkleState{}
		e.states[u] = st
	}

	const subdivisions = 4.0
	subBeatDuration := e.beatDuration / subdivisions
	currentSubBeat := int64(elapsed / subBeatDuration)

	if !st.seen || currentSubBeat != st.lastSpawnBeat {
		st.seen = true
		st.lastSpawnBeat = currentSubBeat

		spawnCount := 1 + rand.Intn(3)
		for i := 0; i < spawnCount; i++ {
			pos := rand.Intn(maxInt(ledCount, 1))
			st.sparks = append(st.sparks, spark{position: pos, brightness: 1.0})
		}
	}

	const decayRate = 0.15
	for i := range st.sparks {
		st.sparks[i].brightness -= decayRate
	}
	kept := st.sparks[:0]
	for _, s := range st.sparks {
		if s.brightness > 0.05 {
			kept = append(kept, s)
		}
	}
	st.sparks = kept

	leds := make([][3]uint8, ledCount)

	for _, s := range st.sparks {
		if s.position >= ledCount {
			continue
		}
		bright := math.Pow(s.brightness, 2)
		r := scale(e.color[0], bright)
		g := scale(e.color[1], bright)
		b := scale(e.color[2], bright)
		leds[s.position] = [3]uint8{r, g, b}

		glowBright := bright * 0.3
		gr := scale(e.color[0], glowBright)
		gg := scale(e.color[1], glowBright)
		gb := scale(e.color[2], glowBright)

		if s.position > 0 {
			idx := s.position - 1
			leds[idx] = addSat(leds[idx], [3]uint8{gr, gg, gb})
		}
		if s.position < ledCount-1 {
			idx := s.position + 1
			leds[idx] = addSat(leds[idx], [3]uint8{gr, gg, gb})
		}
	}
	_ = tr.SendLEDBuffer(leds)
}

func addSat(a, b [3]uint8) [3]uint8 {
	add := func(x, y uint8) uint8 {
		s := int(x) + int(y)
		if s > 255 {
			return 255
		}
		return uint8(s)
	}
	return [3]uint8{add(a[0], b[0]), add(a[1], b[1]), add(a[2], b[2])}
}
