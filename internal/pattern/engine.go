// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package pattern

import (
	"log/slog"
	"math/rand"
	"time"

	"dmx-gateway/internal/e131"
	"dmx-gateway/internal/metrics"
)

// trailBrightness is the per-trail-depth brightness multiplier; trail depth
// is capped at len(trailBrightness).
var trailBrightness = []float64{1.0, 0.4, 0.1}

const (
	maxStepMs         = 60.0 // step_interval_ms never exceeds this before it stops halving
	flashDurationMs   = 120.0
	frameMs           = 20.0
	randomIdleSleep   = 10 * time.Millisecond
	coarseThresholdMs = 10.0
	coarseSleep       = 5 * time.Millisecond
	fineSleepUs       = 500 * time.Microsecond
)

// BoardTarget is a single group member's transport binding.
type BoardTarget struct {
	ID       string
	IP       string
	Universe uint16
	LedCount int
}

// Config describes one pattern cycle's parameters.
type Config struct {
	PatternType Type
	Color       [3]uint8
	BPM         float64
	SyncRate    float64
	Random      bool
}

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

// Engine runs one active pattern cycle at a time on a dedicated goroutine,
// matching the Effects Engine's Start/Stop command-channel shape
// (internal/effects.Engine) generalized to the Pattern Engine's
// cycle-at-a-time (rather than tick-at-a-time) dispatch rhythm.
type Engine struct {
	commands   chan command
	pendingCmd *command // stashed by peekCommand when a command interrupts a cycle mid-flight
	logger     *slog.Logger
}

// New starts the Pattern Engine's dedicated goroutine.
func New(logger *slog.Logger) *Engine {
	e := &Engine{
		commands: make(chan command, 1),
		logger:   logger,
	}
	go e.runLoop()
	return e
}

// Start replaces any running cycle with a new one.
func (e *Engine) Start(cfg Config, boards []BoardTarget) {
	e.commands <- command{kind: cmdStart, config: cfg, boards: boards}
}

// Stop halts the running cycle (if any) after its current step/frame.
func (e *Engine) Stop() {
	e.commands <- command{kind: cmdStop}
}

type runState struct {
	cfg        Config
	boards     []BoardTarget
	transports map[string]transportBinding
	cycleCount uint64
	prevChosen string
}

type transportBinding struct {
	transport *e131.Transport
	ledCount  int
}

// nextCommand returns a stashed command if peekCommand captured one mid-cycle,
// otherwise blocks (or, if nonBlocking, polls) the commands channel.
func (e *Engine) nextCommand(nonBlocking bool) (command, bool) {
	if e.pendingCmd != nil {
		cmd := *e.pendingCmd
		e.pendingCmd = nil
		return cmd, true
	}
	if nonBlocking {
		select {
		case cmd, ok := <-e.commands:
			return cmd, ok
		default:
			return command{}, false
		}
	}
	cmd, ok := <-e.commands
	return cmd, ok
}

// runLoop owns the single active run and all of its transports. With no
// active run it blocks on the commands channel; when a command polled
// between cycles leaves no active run it sleeps 10ms before looping
// (original_source/src/pattern_engine.rs run_loop's try_recv + 10ms sleep).
func (e *Engine) runLoop() {
	var active *runState

	for {
		if active == nil {
			cmd, ok := e.nextCommand(false)
			if !ok {
				return
			}
			active = e.handleCommand(cmd, active)
			continue
		}

		if cmd, ok := e.nextCommand(true); ok {
			active = e.handleCommand(cmd, active)
		}

		if active == nil {
			time.Sleep(randomIdleSleep)
			continue
		}

		var stopped bool
		if active.cfg.Random {
			stopped = e.runRandomBeat(active)
		} else {
			stopped = e.runOneCycle(active)
		}
		if stopped {
			// the command that interrupted the cycle is in e.pendingCmd;
			// it is applied on the next loop iteration via handleCommand.
			e.teardown(active)
			metrics.PatternRunning.Set(0)
			active = nil
			continue
		}
		active.cycleCount++
	}
}

func (e *Engine) handleCommand(cmd command, prev *runState) *runState {
	if prev != nil {
		e.teardown(prev)
		metrics.PatternRunning.Set(0)
	}
	switch cmd.kind {
	case cmdStop:
		return nil
	case cmdStart:
		transports := make(map[string]transportBinding, len(cmd.boards))
		for _, b := range cmd.boards {
			tr, err := e131.New([]string{b.IP}, b.Universe, e.logger)
			if err != nil {
				if e.logger != nil {
					e.logger.Error("pattern engine: transport init failed", "board", b.ID, "err", err)
				}
				continue
			}
			transports[b.ID] = transportBinding{transport: tr, ledCount: b.LedCount}
		}
		metrics.PatternRunning.Set(1)
		return &runState{
			cfg:    cmd.config,
			boards: cmd.boards,
			transports: transports,
		}
	}
	return prev
}

func (e *Engine) teardown(s *runState) {
	for _, b := range s.transports {
		b.transport.Close()
	}
}

// runOneCycle executes one full board-order traversal and returns true if a
// command arrived during the cycle (consumed into e.pendingCmd). Grounded on
// original_source/src/pattern_engine.rs run_one_cycle: subdivision-halving
// step interval, trail accumulation capped at len(trailBrightness), reverse
// direction on odd cycles when is_ping_pong, 3-step 30ms-apart fade-out,
// final blackout, then padding to the sequence's total duration.
func (e *Engine) runOneCycle(s *runState) bool {
	memberIDs := make([]string, len(s.boards))
	for i, b := range s.boards {
		memberIDs[i] = b.ID
	}

	seq := GenerateSequence(memberIDs, s.cfg.PatternType, s.cfg.BPM, s.cfg.SyncRate)
	steps := seq.Steps
	if s.cfg.PatternType == PingPong && s.cycleCount%2 == 1 {
		reversed := make([][]string, len(steps))
		for i, st := range steps {
			reversed[len(steps)-1-i] = st
		}
		steps = reversed
	}

	for _, b := range s.transports {
		b.transport.SendBlackout()
	}

	numSteps := len(steps)
	if numSteps == 0 {
		return e.waitOut(time.Duration(seq.TotalDurationMs)*time.Millisecond, time.Now())
	}

	subdivisionMs := 60000.0 / s.cfg.BPM / s.cfg.SyncRate / float64(numSteps)
	for subdivisionMs > maxStepMs && subdivisionMs > 1.0 {
		subdivisionMs /= 2.0
	}
	stepInterval := time.Duration(subdivisionMs * float64(time.Millisecond))

	cycleStart := time.Now()
	var trail [][]string

	for _, step := range steps {
		stepStart := time.Now()

		trail = append([][]string{step}, trail...)
		if len(trail) > len(trailBrightness) {
			trail = trail[:len(trailBrightness)]
		}

		e.renderTrail(s, trail, 1.0)

		if e.dispatchWait(stepStart, stepInterval) {
			return true
		}
	}

	// fade-out: 3 steps, 30ms apart, fade_mult = 0.6^(step+1)
	for i := 0; i < 3; i++ {
		mult := pow(0.6, float64(i+1))
		e.renderTrail(s, trail, mult)
		time.Sleep(30 * time.Millisecond)
	}

	for _, b := range s.transports {
		b.transport.SendBlackout()
	}

	return e.waitOut(time.Duration(seq.TotalDurationMs)*time.Millisecond, cycleStart)
}

func (e *Engine) renderTrail(s *runState, trail [][]string, mult float64) {
	for depth, boardsAtDepth := range trail {
		brightness := trailBrightness[depth] * mult
		for _, boardID := range boardsAtDepth {
			b, ok := s.transports[boardID]
			if !ok {
				continue
			}
			b.transport.SendSolidColor(s.cfg.Color[0], s.cfg.Color[1], s.cfg.Color[2], scale255(brightness))
		}
	}
}

// runRandomBeat runs one random-flash cycle: pick a non-repeating board,
// flash it over flash_frames = flashDurationMs/frameMs frames, then pad to
// the sequence total duration polling for a command every 5ms. Grounded on
// original_source/src/pattern_engine.rs run_random_beat.
func (e *Engine) runRandomBeat(s *runState) bool {
	memberIDs := make([]string, len(s.boards))
	for i, b := range s.boards {
		memberIDs[i] = b.ID
	}
	seq := GenerateSequence(memberIDs, s.cfg.PatternType, s.cfg.BPM, s.cfg.SyncRate)

	candidates := memberIDs
	if len(candidates) > 1 && s.prevChosen != "" {
		filtered := make([]string, 0, len(candidates))
		for _, id := range candidates {
			if id != s.prevChosen {
				filtered = append(filtered, id)
			}
		}
		candidates = filtered
	}
	if len(candidates) == 0 {
		return e.waitOut(time.Duration(seq.TotalDurationMs)*time.Millisecond, time.Now())
	}
	chosen := candidates[rand.Intn(len(candidates))]
	s.prevChosen = chosen

	cycleStart := time.Now()
	fadeFrames := int(flashDurationMs / frameMs)
	for f := 0; f < fadeFrames; f++ {
		frameStart := time.Now()
		brightness := 1.0 - float64(f)/float64(fadeFrames)
		if b, ok := s.transports[chosen]; ok {
			b.transport.SendSolidColor(s.cfg.Color[0], s.cfg.Color[1], s.cfg.Color[2], scale255(brightness))
		}
		if e.dispatchWait(frameStart, time.Duration(frameMs*float64(time.Millisecond))) {
			return true
		}
	}
	if b, ok := s.transports[chosen]; ok {
		b.transport.SendBlackout()
	}

	return e.waitOut(time.Duration(seq.TotalDurationMs)*time.Millisecond, cycleStart)
}

// dispatchWait sleeps out the remainder of one step interval using the same
// coarse/fine/spin dispatch shape as the Cue Scheduler (internal/cue),
// checking for a pending command at each coarse interval. Returns true if
// one arrived (stashed in e.pendingCmd for the caller to apply).
func (e *Engine) dispatchWait(start time.Time, interval time.Duration) bool {
	deadline := start.Add(interval)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false
		}
		switch {
		case remaining.Milliseconds() > int64(coarseThresholdMs):
			if e.peekCommand() {
				return true
			}
			time.Sleep(coarseSleep)
		case remaining > time.Millisecond:
			time.Sleep(fineSleepUs)
		default:
			// genuine spin for the final sub-millisecond
		}
	}
}

// waitOut pads the remainder of a cycle's total duration after its
// traversal/flash has completed, polling for a command every 5ms.
func (e *Engine) waitOut(total time.Duration, cycleStart time.Time) bool {
	deadline := cycleStart.Add(total)
	for time.Now().Before(deadline) {
		if e.peekCommand() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

// peekCommand non-blockingly drains the commands channel; if one arrives it
// is stashed in e.pendingCmd so the caller can unwind the current cycle and
// hand it to runLoop's next iteration without losing it.
func (e *Engine) peekCommand() bool {
	select {
	case cmd := <-e.commands:
		e.pendingCmd = &cmd
		return true
	default:
		return false
	}
}

func scale255(fraction float64) uint8 {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	return uint8(fraction * 255)
}

func pow(base, exp float64) float64 {
	result := 1.0
	for i := 0.0; i < exp; i++ {
		result *= base
	}
	return result
}
