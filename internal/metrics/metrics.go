// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EffectsRunning is 1 while the Effects Engine has an active effect.
	EffectsRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "showctl_effects_running",
		Help: "Effects engine has an active effect (1) or is idle (0)",
	})

	// PatternRunning is 1 while the Pattern Engine is cycling.
	PatternRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "showctl_pattern_running",
		Help: "Pattern engine is cycling (1) or idle (0)",
	})

	// PerformanceMode mirrors the process-wide performance_mode flag.
	PerformanceMode = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "showctl_performance_mode",
		Help: "Performance mode flag (1 active, 0 inactive)",
	})

	// BoardConnected is a per-board connection gauge (1 connected, 0 not).
	BoardConnected = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "showctl_board_connected",
		Help: "Board WebSocket connection state",
	}, []string{"board_id"})

	// PacketsTotal counts E1.31 sends by outcome (ok/wouldblock/err) as
	// reported through RecordPacketOutcome; no package in this module calls
	// RecordPacketOutcome, so the counter stays empty.
	PacketsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "showctl_e131_packets_total",
		Help: "Total E1.31 packets by outcome",
	}, []string{"universe", "outcome"})

	// CueDriftSeconds observes the dispatch-time drift of fired cues
	// (scenario 3 in spec.md §8: p50<=1ms, p99<=5ms on a quiescent host).
	// This replaces original_source/src/timing_metrics.rs's hand-rolled
	// atomics with a library histogram — same observability surface.
	CueDriftSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "showctl_cue_drift_seconds",
		Help:    "Cue dispatch drift (now - target) in seconds",
		Buckets: []float64{.0001, .0005, .001, .002, .005, .01, .02, .05},
	})

	// CuesDispatchedTotal counts fired cues.
	CuesDispatchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "showctl_cues_dispatched_total",
		Help: "Total cues dispatched by the cue scheduler",
	})

	// EffectTickSeconds is a histogram for Effects Engine tick wall time
	// (vs. the 25ms budget); the Effects Engine does not observe into it,
	// so it records no samples.
	EffectTickSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "showctl_effect_tick_seconds",
		Help:    "Effects engine tick wall-clock duration",
		Buckets: prometheus.LinearBuckets(0.005, 0.005, 8),
	})

	// BoardReconnectsTotal counts actor reconnect attempts per board.
	BoardReconnectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "showctl_board_reconnects_total",
		Help: "Total WebSocket reconnect attempts per board",
	}, []string{"board_id"})
)

// SetBoardConnected updates the per-board connection gauge.
func SetBoardConnected(boardID string, connected bool) {
	v := 0.0
	if connected {
		v = 1.0
	}
	BoardConnected.WithLabelValues(boardID).Set(v)
}

// SetPerformanceMode updates the performance_mode gauge.
func SetPerformanceMode(active bool) {
	v := 0.0
	if active {
		v = 1.0
	}
	PerformanceMode.Set(v)
}

// RecordPacketOutcome increments the per-universe, per-outcome packet
// counter ("ok", "wouldblock", or "err").
func RecordPacketOutcome(universe uint16, outcome string) {
	PacketsTotal.WithLabelValues(itoa(int(universe)), outcome).Inc()
}

// RecordCueDrift records a cue dispatch's drift in seconds, both into the
// histogram and into the bounded recent-events ring the diagnostics
// endpoint reads.
func RecordCueDrift(driftSeconds float64) {
	CueDriftSeconds.Observe(driftSeconds)
	CuesDispatchedTotal.Inc()
	driftRing.record(driftSeconds)
}

// DriftEvent is one recorded cue dispatch, for the diagnostics endpoint's
// recent-events view.
type DriftEvent struct {
	At            time.Time
	DriftSeconds  float64
}

// maxDriftEvents bounds the ring, matching original_source/src/timing_metrics.rs's
// MAX_EVENTS cap on its recent-events buffer.
const maxDriftEvents = 100

// driftRing is the process-wide bounded ring of recent cue-drift samples.
var driftRing = newDriftRing(maxDriftEvents)

type driftObserver struct {
	mu     sync.Mutex
	events []DriftEvent
	cap    int
	next   int
	filled bool
}

func newDriftRing(capacity int) *driftObserver {
	return &driftObserver{events: make([]DriftEvent, capacity), cap: capacity}
}

func (d *driftObserver) record(driftSeconds float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events[d.next] = DriftEvent{At: now(), DriftSeconds: driftSeconds}
	d.next = (d.next + 1) % d.cap
	if d.next == 0 {
		d.filled = true
	}
}

func (d *driftObserver) snapshot() []DriftEvent {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.filled {
		out := make([]DriftEvent, d.next)
		copy(out, d.events[:d.next])
		return out
	}
	out := make([]DriftEvent, d.cap)
	copy(out, d.events[d.next:])
	copy(out[d.cap-d.next:], d.events[:d.next])
	return out
}

// RecentCueDrift returns the most recent cue-drift samples, oldest first,
// for the HTTP edge's diagnostics endpoint.
func RecentCueDrift() []DriftEvent {
	return driftRing.snapshot()
}

// now is a seam so tests can avoid depending on wall-clock ordering if
// ever needed; production always uses time.Now.
var now = time.Now

// itoa is a simple int to string conversion, kept dependency-free for the
// hot metrics-label path.
func itoa(i int) string {
	if i < 10 {
		return string(rune('0' + i))
	}
	return itoa(i/10) + string(rune('0'+i%10))
}
