// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

// Package program implements the Program Engine: the orchestrator that
// composes the Effects Engine, Pattern Engine, Cue Scheduler, and Board
// Actors into a play/stop lifecycle, resolving symbolic targets and
// presets to concrete render inputs and coordinating audio start/stop via
// the external audio host (§4.6).
package program

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"dmx-gateway/internal/audio"
	"dmx-gateway/internal/cue"
	"dmx-gateway/internal/effects"
	"dmx-gateway/internal/metrics"
	"dmx-gateway/internal/pattern"
	"dmx-gateway/internal/showconfig"
)

// ActiveTarget is one currently-playing target's resolved board set,
// retained so Stop can re-blackout exactly what Play lit.
type ActiveTarget struct {
	Boards []effects.BoardTarget
}

// PlaybackState is the engine's externally-observable snapshot.
type PlaybackState struct {
	AudioTrack     string
	ActiveTargets  []ActiveTarget
}

type commandKind int

const (
	cmdPlay commandKind = iota
	cmdStop
)

type playRequest struct {
	program   showconfig.Program
	startTime float64
	doc       showconfig.Document
	onlineIPs map[string]bool
}

type command struct {
	kind commandKind
	play playRequest
}

// Engine owns a dedicated goroutine processing Play/Stop commands
// serially, exactly as original_source/src/program_engine.rs's run_loop
// does over its mpsc::Receiver.
type Engine struct {
	commands chan command
	logger   *slog.Logger

	effectsEngine *effects.Engine
	patternEngine *pattern.Engine
	scheduler     *cue.Scheduler
	osc           *audio.OSCClient

	performanceMode *atomic.Bool
	history         *History

	mu         sync.RWMutex
	state      PlaybackState
	sessionID  string
}

// New constructs the Program Engine and starts its dedicated goroutine.
// performanceMode is the same shared flag internal/board's actors poll
// for reconnect backoff.
func New(effectsEngine *effects.Engine, patternEngine *pattern.Engine, scheduler *cue.Scheduler,
	osc *audio.OSCClient, performanceMode *atomic.Bool, logger *slog.Logger) *Engine {
	e := &Engine{
		commands:        make(chan command, 8),
		logger:          logger,
		effectsEngine:   effectsEngine,
		patternEngine:   patternEngine,
		scheduler:       scheduler,
		osc:             osc,
		performanceMode: performanceMode,
		history:         NewHistory(),
	}
	go e.run()
	return e
}

// History returns the engine's playback-session history tracker, for the
// HTTP edge's diagnostics endpoint.
func (e *Engine) History() *History {
	return e.history
}

// Play enqueues a Play command. doc and onlineIPs are the caller's
// snapshot of the config document and connected-board-IP set at request
// time, matching §4.6 step 3's "Snapshot" — the engine never reaches back
// into shared mutable state mid-resolution.
func (e *Engine) Play(p showconfig.Program, startTime float64, doc showconfig.Document, onlineIPs map[string]bool) {
	e.commands <- command{kind: cmdPlay, play: playRequest{program: p, startTime: startTime, doc: doc, onlineIPs: onlineIPs}}
}

// Stop enqueues a Stop command.
func (e *Engine) Stop() {
	e.commands <- command{kind: cmdStop}
}

// State returns a copy of the current playback snapshot.
func (e *Engine) State() PlaybackState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

func (e *Engine) run() {
	for cmd := range e.commands {
		switch cmd.kind {
		case cmdPlay:
			e.handlePlay(cmd.play)
		case cmdStop:
			e.handleStop()
		}
	}
}

type targetInfo struct {
	boards       []effects.BoardTarget
	patternBoards []pattern.BoardTarget
	memberIDs    []string
}

// handlePlay implements §4.6 steps 1-7: stop whatever is running, enter
// performance mode, snapshot config, resolve targets/presets, blackout
// targets, schedule cues against a monotonic anchor honoring
// audio_sync_delay_ms, then trigger audio.
func (e *Engine) handlePlay(req playRequest) {
	if e.logger != nil {
		e.logger.Info("program engine: play", "program", req.program.ID, "start_time", req.startTime)
	}

	e.scheduler.Stop()
	e.effectsEngine.Stop()
	e.patternEngine.Stop()

	if e.performanceMode != nil {
		e.performanceMode.Store(true)
	}

	bpm := 120.0
	if req.program.BPM != nil {
		bpm = float64(*req.program.BPM)
	}

	targetMap := resolveTargets(req.program, req.doc, req.onlineIPs)
	effectPresets, patternPresets := indexPresets(req.doc)

	var scheduledCues []cue.Cue
	for _, c := range req.program.Cues {
		if c.Time < req.startTime {
			continue
		}
		if len(c.Targets) == 0 {
			if e.logger != nil {
				e.logger.Warn("program engine: skipping cue with no targets", "label", c.Label)
			}
			continue
		}
		fireAt := time.Duration((c.Time - req.startTime) * float64(time.Second))
		if fireAt < 0 {
			fireAt = 0
		}

		for _, target := range c.Targets {
			ti, ok := targetMap[target]
			if !ok {
				if e.logger != nil {
					e.logger.Warn("program engine: skipping cue, target offline or unknown", "label", c.Label, "target", target)
				}
				continue
			}
			if pp, ok := patternPresets[c.PresetName]; ok {
				scheduledCues = append(scheduledCues, cue.Cue{
					FireAt: fireAt,
					Label:  c.Label,
					Kind:   cue.KindPattern,
					Pattern: cue.PatternPayload{
						Config: pattern.Config{
							PatternType: pp.patternType,
							Color:       pp.color,
							BPM:         bpm,
							SyncRate:    c.SyncRate,
							Random:      pp.patternType == pattern.Random,
						},
						Boards: ti.patternBoards,
					},
				})
			} else if ep, ok := effectPresets[c.PresetName]; ok {
				scheduledCues = append(scheduledCues, cue.Cue{
					FireAt: fireAt,
					Label:  c.Label,
					Kind:   cue.KindEffect,
					Effect: cue.EffectPayload{
						Config: effects.Config{
							EffectType: ep.effectType,
							BPM:        bpm * c.SyncRate,
							Color:      ep.color,
						},
						Boards: ti.boards,
					},
				})
			} else if e.logger != nil {
				e.logger.Warn("program engine: skipping cue, preset not found", "label", c.Label, "preset", c.PresetName)
			}
		}
	}

	if e.logger != nil {
		e.logger.Info("program engine: blackout before playback", "targets", len(targetMap))
	}
	for _, ti := range targetMap {
		e.effectsEngine.Start(effects.Config{EffectType: effects.Solid, BPM: 0, Color: [3]uint8{0, 0, 0}}, ti.boards)
	}

	delayMs := req.program.AudioSyncDelayMs
	var playbackStart time.Time
	if delayMs < 0 {
		playbackStart = time.Now().Add(time.Duration(-delayMs) * time.Millisecond)
	} else {
		playbackStart = time.Now()
	}

	activeTargets := make([]ActiveTarget, 0, len(targetMap))
	for _, ti := range targetMap {
		activeTargets = append(activeTargets, ActiveTarget{Boards: ti.boards})
	}

	sessionID := e.history.StartSession(req.program.ID, req.program.SongName)

	e.mu.Lock()
	e.state = PlaybackState{AudioTrack: req.program.LoopyProTrack, ActiveTargets: activeTargets}
	e.sessionID = sessionID
	e.mu.Unlock()

	e.scheduler.Start(scheduledCues, playbackStart)

	if delayMs > 0 {
		time.Sleep(time.Duration(delayMs) * time.Millisecond)
	}

	if e.osc != nil && req.program.LoopyProTrack != "" {
		if e.logger != nil {
			e.logger.Info("program engine: triggering audio playback", "track", req.program.LoopyProTrack)
		}
		e.osc.Play(req.program.LoopyProTrack)
	}
}

// handleStop implements the Stop protocol (§4.6): Cue Scheduler stop →
// Pattern Engine Stop → blackout every active target → Effects Engine
// Stop → audio-stop callback → performance_mode=false → clear active set.
func (e *Engine) handleStop() {
	if e.logger != nil {
		e.logger.Info("program engine: stop")
	}

	e.scheduler.Stop()
	e.patternEngine.Stop()

	e.mu.RLock()
	st := e.state
	sessionID := e.sessionID
	e.mu.RUnlock()

	for _, target := range st.ActiveTargets {
		e.effectsEngine.Start(effects.Config{EffectType: effects.Solid, BPM: 0, Color: [3]uint8{0, 0, 0}}, target.Boards)
	}

	e.effectsEngine.Stop()

	if e.osc != nil && st.AudioTrack != "" {
		e.osc.Stop(st.AudioTrack)
	}

	if e.performanceMode != nil {
		e.performanceMode.Store(false)
	}

	if sessionID != "" {
		e.history.EndSession(sessionID, sessionSnapshotSince(e.sessionStartedAt()), true)
	}

	e.mu.Lock()
	e.state = PlaybackState{}
	e.sessionID = ""
	e.mu.Unlock()
}

// sessionStartedAt returns the start time of the in-flight history session,
// if any, for computing the end-of-session metrics snapshot window.
func (e *Engine) sessionStartedAt() time.Time {
	if s, ok := e.history.Current(); ok {
		return s.StartedAt
	}
	return time.Time{}
}

// sessionSnapshotSince summarizes recorded cue-drift samples since the
// given session start time into a Snapshot, bridging internal/metrics'
// global Prometheus collectors to this package's per-session history
// without internal/metrics needing any notion of a "session".
func sessionSnapshotSince(since time.Time) Snapshot {
	events := metrics.RecentCueDrift()
	var snap Snapshot
	var total float64
	for _, ev := range events {
		if ev.At.Before(since) {
			continue
		}
		snap.CueCount++
		total += ev.DriftSeconds * 1000
		driftMs := ev.DriftSeconds * 1000
		if driftMs > snap.CueDriftMaxMs {
			snap.CueDriftMaxMs = driftMs
		}
		if driftMs > 5 { // spec.md §8's p99<=5ms scenario threshold marks a "drifted" cue
			snap.CuesDrifted++
		}
	}
	if snap.CueCount > 0 {
		snap.CueDriftAvgMs = total / float64(snap.CueCount)
	}
	return snap
}
