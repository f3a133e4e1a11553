// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package effects

import (
	"math"

	"dmx-gateway/internal/e131"
)

// flashEffect is 30ms full-on, 200ms quadratic fade to black, then
// permanently silent on that universe.
type flashEffect struct {
	color         [3]uint8
	flashDuration float64
	fadeDuration  float64
	doneUniv      map[uint16]struct{}
}

// NewFlash builds the Flash effect.
func NewFlash(color [3]uint8) Effect {
	return &flashEffect{
		color:         color,
		flashDuration: 0.030,
		fadeDuration:  0.200,
		doneUniv:      make(map[uint16]struct{}),
	}
}

func (f *flashEffect) Tick(elapsed float64, tr *e131.Transport, ledCount int) {
	u := tr.Universe()
	if _, done := f.doneUniv[u]; done {
		return
	}

	switch {
	case elapsed < f.flashDuration:
		_ = tr.SendRawLEDs(ledCount, f.color[0], f.color[1], f.color[2])
	case elapsed < f.flashDuration+f.fadeDuration:
		fadeProgress := (elapsed - f.flashDuration) / f.fadeDuration
		brightness := math.Pow(1.0-fadeProgress, 2)
		_ = tr.SendRawLEDs(ledCount, scale(f.color[0], brightness), scale(f.color[1], brightness), scale(f.color[2], brightness))
	default:
		_ = tr.SendRawLEDs(ledCount, 0, 0, 0)
		f.doneUniv[u] = struct{}{}
	}
}
