// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package effects

import "dmx-gateway/internal/e131"

// solidEffect emits one frame per universe, then falls silent — per
// spec.md §4.2's "idempotent per boundary" rule, using a "done" set.
type solidEffect struct {
	color    [3]uint8
	sentUniv map[uint16]struct{}
}

// NewSolid builds the Solid effect.
func NewSolid(color [3]uint8) Effect {
	return &solidEffect{color: color, sentUniv: make(map[uint16]struct{})}
}

func (s *solidEffect) Tick(_ float64, tr *e131.Transport, ledCount int) {
	u := tr.Universe()
	if _, done := s.sentUniv[u]; done {
		return
	}
	s.sentUniv[u] = struct{}{}
	_ = tr.SendRawLEDs(ledCount, s.color[0], s.color[1], s.color[2])
}
