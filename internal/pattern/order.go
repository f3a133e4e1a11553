// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

// Package pattern implements the beat-aligned Pattern Engine: the
// traversal-order derivation and the dedicated-goroutine cycle runner.
package pattern

import "math/rand"

// Type identifies a pattern's traversal shape.
type Type int

const (
	Wave Type = iota
	WaveReverse
	Alternate
	OutsideIn
	CenterOut
	PingPong
	Random
)

// ParseType resolves a preset's stored pattern_type name back to a Type.
func ParseType(name string) (Type, bool) {
	switch name {
	case "wave":
		return Wave, true
	case "wave_reverse":
		return WaveReverse, true
	case "alternate":
		return Alternate, true
	case "outside_in":
		return OutsideIn, true
	case "center_out":
		return CenterOut, true
	case "ping_pong":
		return PingPong, true
	case "random":
		return Random, true
	default:
		return Wave, false
	}
}

func (t Type) String() string {
	switch t {
	case Wave:
		return "wave"
	case WaveReverse:
		return "wave_reverse"
	case Alternate:
		return "alternate"
	case OutsideIn:
		return "outside_in"
	case CenterOut:
		return "center_out"
	case PingPong:
		return "ping_pong"
	case Random:
		return "random"
	default:
		return "unknown"
	}
}

// Order produces the step list for a pattern type over ordered group
// members. PingPong shares Wave's step order — its alternating direction
// is a cycle-level concern handled by the engine, not the order function,
// matching original_source/src/pattern.rs's PatternType::match (which has
// no PingPong arm; PingPong only toggles the is_ping_pong engine flag).
func Order(members []string, t Type) [][]string {
	n := len(members)
	switch t {
	case Wave, PingPong:
		steps := make([][]string, n)
		for i, b := range members {
			steps[i] = []string{b}
		}
		return steps
	case WaveReverse:
		steps := make([][]string, n)
		for i, b := range members {
			steps[n-1-i] = []string{b}
		}
		return steps
	case Alternate:
		var odds, evens []string
		for i, b := range members {
			if i%2 == 0 {
				odds = append(odds, b)
			} else {
				evens = append(evens, b)
			}
		}
		return [][]string{odds, evens}
	case OutsideIn:
		return outsideIn(members)
	case CenterOut:
		steps := outsideIn(members)
		reversed := make([][]string, len(steps))
		for i, s := range steps {
			reversed[len(steps)-1-i] = s
		}
		return reversed
	case Random:
		shuffled := make([][]string, n)
		for i, b := range members {
			shuffled[i] = []string{b}
		}
		rand.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})
		return shuffled
	default:
		return nil
	}
}

func outsideIn(members []string) [][]string {
	n := len(members)
	steps := make([][]string, 0, (n+1)/2)
	for i := 0; i < (n+1)/2; i++ {
		step := []string{members[i]}
		if i != n-1-i {
			step = append(step, members[n-1-i])
		}
		steps = append(steps, step)
	}
	return steps
}

// Sequence is the resolved traversal: steps plus the total beat duration
// this cycle must fill.
type Sequence struct {
	Steps           [][]string
	TotalDurationMs uint64
}

// GenerateSequence derives a traversal order and its total cycle duration:
// total_duration_ms = (60_000 / bpm) / sync_rate.
func GenerateSequence(members []string, t Type, bpm, syncRate float64) Sequence {
	steps := Order(members, t)
	beatDurationMs := 60000.0 / bpm
	total := uint64(beatDurationMs / syncRate)
	return Sequence{Steps: steps, TotalDurationMs: total}
}
