// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

// Package effects implements the ten DMX effect renderers driven by the
// Effects Engine, one file per effect.
package effects

import (
	"math"

	"dmx-gateway/internal/e131"
)

// Type identifies an effect variant.
type Type int

const (
	Solid Type = iota
	Strobe
	Pulse
	Bursts
	Flash
	WipeUp
	WipeCenter
	Lightning
	Puddles
	Sparkle
)

// ParseType resolves a preset's stored effect_type name back to a Type,
// mirroring the original's FromStr-via-EffectType::parse used when loading
// effect presets from config.
func ParseType(name string) (Type, bool) {
	switch name {
	case "solid":
		return Solid, true
	case "strobe":
		return Strobe, true
	case "pulse":
		return Pulse, true
	case "bursts":
		return Bursts, true
	case "flash":
		return Flash, true
	case "wipe_up":
		return WipeUp, true
	case "wipe_center":
		return WipeCenter, true
	case "lightning":
		return Lightning, true
	case "puddles":
		return Puddles, true
	case "sparkle":
		return Sparkle, true
	default:
		return Solid, false
	}
}

func (t Type) String() string {
	switch t {
	case Solid:
		return "solid"
	case Strobe:
		return "strobe"
	case Pulse:
		return "pulse"
	case Bursts:
		return "bursts"
	case Flash:
		return "flash"
	case WipeUp:
		return "wipe_up"
	case WipeCenter:
		return "wipe_center"
	case Lightning:
		return "lightning"
	case Puddles:
		return "puddles"
	case Sparkle:
		return "sparkle"
	default:
		return "unknown"
	}
}

// Effect renders one frame per call. tick is pure over (elapsed,
// effect_state) — effects may hold per-universe state keyed by
// transport.Universe() to amortize work.
type Effect interface {
	Tick(elapsed float64, tr *e131.Transport, ledCount int)
}

// newEffect constructs the effect for the given type, color, and BPM.
func newEffect(t Type, color [3]uint8, bpm float64) Effect {
	switch t {
	case Solid:
		return NewSolid(color)
	case Strobe:
		return NewStrobe(color, bpm)
	case Pulse:
		return NewPulse(color, bpm)
	case Bursts:
		return NewBursts(color, bpm)
	case Flash:
		return NewFlash(color)
	case WipeUp:
		return NewWipeUp(color, bpm)
	case WipeCenter:
		return NewWipeCenter(color, bpm)
	case Lightning:
		return NewLightning(color, bpm)
	case Puddles:
		return NewPuddles(color, bpm)
	case Sparkle:
		return NewSparkle(color, bpm)
	default:
		return NewSolid(color)
	}
}

// beatDuration maps bpm to a beat period in seconds. bpm=0 is the sentinel
// spec.md §8 names: the boundary behaviour replaces any tick keyed off
// 60/bpm with "no temporal variation" rather than dividing by zero. An
// infinite beat duration drives beat_position to 0 for any finite elapsed
// time, freezing every beat-driven effect at its t=0 frame — Solid-like.
func beatDuration(bpm float64) float64 {
	if bpm <= 0 {
		return math.Inf(1)
	}
	return 60.0 / bpm
}

func scale(c uint8, brightness float64) uint8 {
	v := float64(c) * brightness
	if v > 255 {
		v = 255
	}
	if v < 0 {
		v = 0
	}
	return uint8(v)
}

func scaleU16(c uint8, mul, div uint16) uint8 {
	return uint8(uint16(c) * mul / div)
}
