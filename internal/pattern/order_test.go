// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package pattern

import (
	"reflect"
	"testing"
)

func reverseSteps(steps [][]string) [][]string {
	out := make([][]string, len(steps))
	for i, s := range steps {
		out[len(steps)-1-i] = s
	}
	return out
}

func TestWaveReverseIsReverseOfWave(t *testing.T) {
	members := []string{"a", "b", "c", "d", "e"}
	wave := Order(members, Wave)
	waveReverse := Order(members, WaveReverse)
	if !reflect.DeepEqual(waveReverse, reverseSteps(wave)) {
		t.Fatalf("WaveReverse = %v, want reverse(Wave) = %v", waveReverse, reverseSteps(wave))
	}
}

func TestWaveReverseIsReverseOfWaveEmpty(t *testing.T) {
	var members []string
	wave := Order(members, Wave)
	waveReverse := Order(members, WaveReverse)
	if !reflect.DeepEqual(waveReverse, reverseSteps(wave)) {
		t.Fatalf("WaveReverse = %v, want reverse(Wave) = %v", waveReverse, reverseSteps(wave))
	}
}

func TestCenterOutIsReverseOfOutsideIn(t *testing.T) {
	for _, members := range [][]string{
		{"a", "b", "c", "d", "e"},
		{"a", "b", "c", "d"},
		{"a"},
		{"a", "b"},
	} {
		outsideIn := Order(members, OutsideIn)
		centerOut := Order(members, CenterOut)
		if !reflect.DeepEqual(centerOut, reverseSteps(outsideIn)) {
			t.Fatalf("members=%v: CenterOut = %v, want reverse(OutsideIn) = %v",
				members, centerOut, reverseSteps(outsideIn))
		}
	}
}

func TestAlternateSplitsOddEven(t *testing.T) {
	members := []string{"a", "b", "c", "d", "e"}
	got := Order(members, Alternate)
	want := [][]string{{"a", "c", "e"}, {"b", "d"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Alternate = %v, want %v", got, want)
	}
}

func TestPingPongSharesWaveOrder(t *testing.T) {
	members := []string{"a", "b", "c"}
	wave := Order(members, Wave)
	pingPong := Order(members, PingPong)
	if !reflect.DeepEqual(pingPong, wave) {
		t.Fatalf("PingPong = %v, want same as Wave = %v", pingPong, wave)
	}
}

func TestGenerateSequenceTotalDuration(t *testing.T) {
	members := []string{"a", "b"}
	seq := GenerateSequence(members, Wave, 120, 1.0)
	// beat duration at 120bpm = 500ms, sync_rate 1.0 -> total 500ms
	if seq.TotalDurationMs != 500 {
		t.Fatalf("TotalDurationMs = %d, want 500", seq.TotalDurationMs)
	}
}
