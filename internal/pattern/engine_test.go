// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package pattern

import (
	"testing"
	"time"
)

func TestEngineStartStopDoesNotHang(t *testing.T) {
	e := New(nil)

	boards := []BoardTarget{
		{ID: "a", IP: "10.0.0.5", Universe: 1, LedCount: 16},
		{ID: "b", IP: "10.0.0.6", Universe: 2, LedCount: 16},
	}
	cfg := Config{
		PatternType: Wave,
		Color:       [3]uint8{255, 0, 0},
		BPM:         600, // fast cycle so the test completes quickly
		SyncRate:    1.0,
	}

	e.Start(cfg, boards)
	time.Sleep(50 * time.Millisecond)
	e.Stop()
	time.Sleep(20 * time.Millisecond)
}

func TestEngineRandomModeDoesNotHang(t *testing.T) {
	e := New(nil)

	boards := []BoardTarget{
		{ID: "a", IP: "10.0.0.5", Universe: 1, LedCount: 16},
		{ID: "b", IP: "10.0.0.6", Universe: 2, LedCount: 16},
	}
	cfg := Config{
		PatternType: Random,
		Color:       [3]uint8{0, 0, 255},
		BPM:         600,
		SyncRate:    1.0,
		Random:      true,
	}

	e.Start(cfg, boards)
	time.Sleep(50 * time.Millisecond)
	e.Stop()
	time.Sleep(20 * time.Millisecond)
}

func TestScale255Clamps(t *testing.T) {
	if got := scale255(-1); got != 0 {
		t.Fatalf("scale255(-1) = %d, want 0", got)
	}
	if got := scale255(2); got != 255 {
		t.Fatalf("scale255(2) = %d, want 255", got)
	}
}
