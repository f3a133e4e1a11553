// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

// Package cue implements the Cue Scheduler: a monotonic-anchor dispatcher
// that fires a sorted cue list against a single playback start time, with
// the coarse/fine/spin sleep cascade that keeps dispatch jitter within
// spec's drift budget without burning a full CPU core the whole show.
package cue

import (
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"dmx-gateway/internal/effects"
	"dmx-gateway/internal/metrics"
	"dmx-gateway/internal/pattern"
)

const (
	coarseThreshold = 100 * time.Millisecond
	fineThreshold   = 10 * time.Millisecond
	coarseSleep     = 50 * time.Millisecond
	fineSleep       = 5 * time.Millisecond
)

// Kind distinguishes the two cue payload shapes a scheduler entry carries.
type Kind int

const (
	KindEffect Kind = iota
	KindPattern
)

// EffectPayload is the Effects Engine command a cue dispatches.
type EffectPayload struct {
	Config effects.Config
	Boards []effects.BoardTarget
}

// PatternPayload is the Pattern Engine command a cue dispatches.
type PatternPayload struct {
	Config pattern.Config
	Boards []pattern.BoardTarget
}

// Cue is one scheduled dispatch: fire at FireAt relative to the playback
// anchor, carrying exactly one of Effect or Pattern depending on Kind.
type Cue struct {
	FireAt  time.Duration
	Label   string
	Kind    Kind
	Effect  EffectPayload
	Pattern PatternPayload
}

// Scheduler owns a single dedicated dispatch goroutine. Start replaces any
// in-flight run; Stop cancels the current run after its current cue.
type Scheduler struct {
	commands chan startCommand
	stopFlag atomic.Bool
	logger   *slog.Logger

	effectsEngine *effects.Engine
	patternEngine *pattern.Engine
}

type startCommand struct {
	cues          []Cue
	playbackStart time.Time
}

// New starts the scheduler's dedicated goroutine, wired to the two engines
// it hands cues off to.
func New(effectsEngine *effects.Engine, patternEngine *pattern.Engine, logger *slog.Logger) *Scheduler {
	s := &Scheduler{
		commands:      make(chan startCommand, 1),
		logger:        logger,
		effectsEngine: effectsEngine,
		patternEngine: patternEngine,
	}
	go s.run()
	return s
}

// Start loads a new cue list anchored at playbackStart (typically
// time.Now() plus a short lead, matching §4.6's audio-sync-delay
// semantics upstream in internal/program).
func (s *Scheduler) Start(cues []Cue, playbackStart time.Time) {
	s.stopFlag.Store(false)
	s.commands <- startCommand{cues: cues, playbackStart: playbackStart}
}

// Stop cancels the in-flight run; it unwinds at the next cue boundary or
// sleep checkpoint, never mid-dispatch.
func (s *Scheduler) Stop() {
	s.stopFlag.Store(true)
}

func (s *Scheduler) run() {
	for cmd := range s.commands {
		s.runCueList(cmd.cues, cmd.playbackStart)
	}
}

// runCueList sorts by fire time and dispatches each cue in turn using the
// coarse/fine/spin cascade, matching
// original_source/src/cue_scheduler.rs run_scheduler exactly: sleep 50ms
// while remaining > 100ms, sleep 5ms while remaining > 10ms, busy-spin for
// the last 10ms. Stop is polled at every sleep checkpoint, never mid-spin.
func (s *Scheduler) runCueList(cues []Cue, playbackStart time.Time) {
	sorted := make([]Cue, len(cues))
	copy(sorted, cues)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].FireAt < sorted[j].FireAt })

	if s.logger != nil {
		s.logger.Info("cue scheduler: run started", "cues", len(sorted))
	}

	for _, c := range sorted {
		if s.stopFlag.Load() {
			break
		}

		targetTime := playbackStart.Add(c.FireAt)

		if s.waitFor(targetTime) {
			break
		}
		if s.stopFlag.Load() {
			break
		}

		driftSeconds := time.Since(targetTime).Seconds()
		metrics.RecordCueDrift(driftSeconds)
		s.dispatch(c, driftSeconds)
	}

	if s.logger != nil {
		if s.stopFlag.Load() {
			s.logger.Info("cue scheduler: stopped")
		} else {
			s.logger.Info("cue scheduler: all cues fired")
		}
	}
}

// waitFor blocks until targetTime using the coarse/fine/spin cascade.
// Returns true if Stop was observed, or a newer Start is queued, at a
// sleep checkpoint.
func (s *Scheduler) waitFor(targetTime time.Time) bool {
	for {
		now := time.Now()
		if !now.Before(targetTime) {
			break
		}
		remaining := targetTime.Sub(now)

		switch {
		case remaining > coarseThreshold:
			time.Sleep(coarseSleep)
			if s.stopFlag.Load() || len(s.commands) > 0 {
				return true
			}
		case remaining > fineThreshold:
			time.Sleep(fineSleep)
			if s.stopFlag.Load() || len(s.commands) > 0 {
				return true
			}
		default:
			for time.Now().Before(targetTime) {
				// genuine spin for the last <=10ms — no Stop check inside
				// the spin itself, matching the original's unconditional
				// spin_loop(); Stop is re-checked once the spin exits.
			}
			return false
		}
	}
	return false
}

// dispatch hands the cue's payload to the correct engine, ensuring the
// other engine is stopped first — the two engines are mutually exclusive
// outputs, never simultaneous producers of the broadcast stream.
func (s *Scheduler) dispatch(c Cue, driftSeconds float64) {
	switch c.Kind {
	case KindPattern:
		if s.logger != nil {
			s.logger.Info("pattern cue fired", "label", c.Label, "drift_ms", driftSeconds*1000)
		}
		s.effectsEngine.Stop()
		s.patternEngine.Start(c.Pattern.Config, c.Pattern.Boards)
	case KindEffect:
		if s.logger != nil {
			s.logger.Info("effect cue fired", "label", c.Label, "drift_ms", driftSeconds*1000)
		}
		s.patternEngine.Stop()
		s.effectsEngine.Start(c.Effect.Config, c.Effect.Boards)
	}
}
