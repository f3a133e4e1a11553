// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package effects

import (
	"log/slog"
	"runtime"
	"time"

	"dmx-gateway/internal/e131"
	"dmx-gateway/internal/metrics"
)

// BoardTarget names one transport the engine should drive.
type BoardTarget struct {
	IP       string
	Universe uint16
	LedCount int
}

// Config describes the effect to run.
type Config struct {
	EffectType Type
	BPM        float64
	Color      [3]uint8
}

// commandKind distinguishes Start/Stop without an interface allocation per
// send — grounded on the teacher's small-closed-command-set style.
type commandKind int

const (
	cmdStart commandKind = iota
	cmdStop
)

type command struct {
	kind   commandKind
	config Config
	boards []BoardTarget
}

// Engine drives its bound transports at a fixed 40Hz tick. At most one
// effect runs across the whole system at a time. Runs on a dedicated OS
// thread and never suspends on I/O — its command channel is drained
// non-blockingly at the top of every tick.
type Engine struct {
	commands chan command
	logger   *slog.Logger
}

const tickInterval = 25 * time.Millisecond

// New starts the Effects Engine's dedicated goroutine.
func New(logger *slog.Logger) *Engine {
	e := &Engine{
		commands: make(chan command, 4),
		logger:   logger,
	}
	go e.runLoop()
	return e
}

// Start begins rendering an effect across the given boards, pre-empting
// any effect already running (no blackout — the new effect overwrites
// within one tick, per spec.md §4.2).
func (e *Engine) Start(cfg Config, boards []BoardTarget) {
	e.commands <- command{kind: cmdStart, config: cfg, boards: boards}
}

// Stop ends the current effect. A 5-frame, ~2ms-spaced blackout is sent
// per transport before transports are dropped.
func (e *Engine) Stop() {
	e.commands <- command{kind: cmdStop}
}

type transportBinding struct {
	transport *e131.Transport
	ledCount  int
}

type engineState struct {
	effect         Effect
	start          time.Time
	startWallClock time.Time
	transports     []transportBinding
	tickCount      uint64
}

func newEngineState(cfg Config, boards []BoardTarget, logger *slog.Logger) *engineState {
	var transports []transportBinding
	for _, b := range boards {
		tr, err := e131.New([]string{b.IP}, b.Universe, logger)
		if err != nil {
			if logger != nil {
				logger.Warn("effects: failed to create e131 transport", "ip", b.IP, "error", err)
			}
			continue
		}
		transports = append(transports, transportBinding{transport: tr, ledCount: b.LedCount})
	}

	now := time.Now()
	return &engineState{
		effect: newEffect(cfg.EffectType, cfg.Color, cfg.BPM),
		start:  now,
		// Round(0) strips the monotonic reading so this is a true wall-clock
		// timestamp — time.Since on it drifts against elapsed (monotonic)
		// whenever the system clock is stepped, which is the point.
		startWallClock: now.Round(0),
		transports:     transports,
	}
}

func (s *engineState) tick(logger *slog.Logger) {
	s.tickCount++
	elapsed := time.Since(s.start).Seconds()

	if s.tickCount%500 == 0 && logger != nil {
		wallElapsed := time.Now().Round(0).Sub(s.startWallClock).Seconds()
		drift := elapsed - wallElapsed
		logger.Debug("effects engine stats", "tick", s.tickCount, "elapsed_s", elapsed, "drift_s", drift)
	}

	for _, b := range s.transports {
		s.effect.Tick(elapsed, b.transport, b.ledCount)
	}
}

func (s *engineState) blackout() {
	for _, b := range s.transports {
		for i := 0; i < 5; i++ {
			_ = b.transport.SendRawLEDs(b.ledCount, 0, 0, 0)
			time.Sleep(2 * time.Millisecond)
		}
		_ = b.transport.Close()
	}
}

func (e *Engine) runLoop() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	var state *engineState
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for range ticker.C {
		select {
		case cmd, ok := <-e.commands:
			if !ok {
				return
			}
			switch cmd.kind {
			case cmdStart:
				if e.logger != nil {
					e.logger.Info("effects engine start", "effect", cmd.config.EffectType, "bpm", cmd.config.BPM, "boards", len(cmd.boards))
				}
				if state != nil {
					for _, b := range state.transports {
						_ = b.transport.Close()
					}
				}
				state = newEngineState(cmd.config, cmd.boards, e.logger)
				metrics.EffectsRunning.Set(1)
			case cmdStop:
				if e.logger != nil {
					e.logger.Info("effects engine stop")
				}
				if state != nil {
					state.blackout()
				}
				state = nil
				metrics.EffectsRunning.Set(0)
			}
		default:
		}

		if state != nil {
			state.tick(e.logger)
		}
	}
}
