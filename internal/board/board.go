// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

// Package board implements the Board Actor: one per physical board,
// owning its WebSocket client connection to the board firmware, its
// last-known state cache, and its command mailbox.
package board

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"dmx-gateway/internal/metrics"
)

const (
	connectTimeout  = 2 * time.Second
	initReadTimeout = 500 * time.Millisecond
	keepaliveEvery  = 5 * time.Second
	readTimeout     = 5 * time.Second
	sendTimeout     = 2 * time.Second
	flushTimeout    = 500 * time.Millisecond

	backoffNormal      = 3 * time.Second
	backoffPerformance = 30 * time.Second

	mailboxCapacity = 64
)

// State is the actor's cached view of the board's firmware state.
type State struct {
	ID        string
	IP        string
	Connected bool
	On        bool
	Brightness uint8
	Color     [3]uint8
	Effect    uint8
	LedCount  *uint16
	MaxLeds   *uint16
}

// CommandKind enumerates the wire-facing and cache-only command variants
// spec.md §4.4 names.
type CommandKind int

const (
	CmdSetPower CommandKind = iota
	CmdSetBrightness
	CmdSetColor
	CmdSetEffect
	CmdSetSpeed
	CmdSetIntensity
	CmdSetPreset
	CmdSetLedCount
	CmdSetTransition
	CmdResetSegment
	CmdSyncPowerState
	CmdSyncBrightnessState
	CmdSyncPresetState
	CmdGetState
	CmdShutdown
)

// Command is a mailbox entry. Sync* variants update the cache without
// emitting a wire message — used by the E1.31 group fast path (§4.7) to
// keep actor state coherent with what the boards are already receiving
// over broadcast.
type Command struct {
	Kind       CommandKind
	Bool       bool
	U8         uint8
	U16        uint16
	RGB        [3]uint8
	Transition int
	Reply      chan State
}

// EventKind distinguishes the two broadcast event shapes an actor emits.
type EventKind int

const (
	EventStateUpdate EventKind = iota
	EventConnectionStatus
)

// Event is broadcast to subscribers (the SSE/API layer) on every state
// change and every connection transition.
type Event struct {
	Kind      EventKind
	BoardID   string
	State     State
	Connected bool
}

// Actor owns one board's WebSocket connection and mailbox.
type Actor struct {
	id  string
	ip  string

	mailbox  chan Command
	events   chan<- Event
	logger   *slog.Logger
	perfMode *atomic.Bool

	dialer *websocket.Dialer

	state State
}

// New constructs an actor. perfMode is a shared process-wide flag the
// scheduling layer flips during playback; Run polls it on every reconnect
// wait to pick the 3s/30s backoff.
func New(id, ip string, events chan<- Event, perfMode *atomic.Bool, logger *slog.Logger) *Actor {
	return &Actor{
		id:       id,
		ip:       ip,
		mailbox:  make(chan Command, mailboxCapacity),
		events:   events,
		logger:   logger,
		perfMode: perfMode,
		dialer:   &websocket.Dialer{HandshakeTimeout: connectTimeout},
		state:    State{ID: id, IP: ip},
	}
}

// Mailbox returns the command channel callers send to.
func (a *Actor) Mailbox() chan<- Command { return a.mailbox }

// Run drives the Disconnected → SyncOnConnect → Connected state machine
// until a Shutdown command is received. Intended to run on its own
// goroutine for the actor's lifetime.
func (a *Actor) Run() {
	for {
		conn, err := a.connect()
		if err != nil {
			if a.disconnectedWait(err) {
				return // Shutdown observed while disconnected
			}
			continue
		}

		if shutdown := a.syncOnConnect(conn); shutdown {
			conn.Close()
			return
		}

		shutdown := a.connectedLoop(conn)
		conn.Close()
		if shutdown {
			return
		}
	}
}

func (a *Actor) connect() (*websocket.Conn, error) {
	url := fmt.Sprintf("ws://%s/ws", a.ip)
	conn, _, err := a.dialer.Dial(url, nil)
	return conn, err
}

// disconnectedWait services GetState/Sync*/Shutdown while waiting out the
// reconnect backoff; other commands are cached into local state and
// acknowledged silently (per §4.4's Disconnected branch). Returns true if
// Shutdown was observed.
func (a *Actor) disconnectedWait(connErr error) bool {
	a.state.Connected = false
	a.emitConnectionStatus()
	if a.logger != nil {
		a.logger.Warn("board actor: connect failed, will retry", "board_id", a.id, "err", connErr)
	}
	metrics.SetBoardConnected(a.id, false)
	metrics.BoardReconnectsTotal.WithLabelValues(a.id).Inc()

	backoff := backoffNormal
	if a.perfMode != nil && a.perfMode.Load() {
		backoff = backoffPerformance
	}

	timer := time.NewTimer(backoff)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			return false
		case cmd, ok := <-a.mailbox:
			if !ok {
				return true
			}
			if a.applyDisconnectedCommand(cmd) {
				return true
			}
		}
	}
}

func (a *Actor) applyDisconnectedCommand(cmd Command) (shutdown bool) {
	switch cmd.Kind {
	case CmdGetState:
		if cmd.Reply != nil {
			cmd.Reply <- a.state
		}
	case CmdSyncPowerState:
		a.state.On = cmd.Bool
		a.emitState()
	case CmdSyncBrightnessState:
		a.state.Brightness = cmd.U8
		a.emitState()
	case CmdSyncPresetState:
		a.emitState()
	case CmdShutdown:
		return true
	case CmdSetPower:
		a.state.On = cmd.Bool
		a.emitState()
	case CmdSetBrightness:
		a.state.Brightness = cmd.U8
		a.emitState()
	case CmdSetColor:
		a.state.Color = cmd.RGB
		a.emitState()
	case CmdSetEffect:
		a.state.Effect = cmd.U8
		a.emitState()
	case CmdSetLedCount:
		v := cmd.U16
		a.state.LedCount = &v
		a.emitState()
	default:
		// preset/speed/intensity/transition/reset-segment are wire-only;
		// nothing to cache while disconnected.
	}
	return false
}

// syncOnConnect reads exactly one inbound message with a 500ms timeout,
// applies it to the cache, then forces the firmware's transition time to
// zero so cue-aligned commands take effect immediately.
func (a *Actor) syncOnConnect(conn *websocket.Conn) (shutdown bool) {
	conn.SetReadDeadline(time.Now().Add(initReadTimeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		if a.logger != nil {
			a.logger.Error("board actor: initial state read failed", "board_id", a.id, "err", err)
		}
	} else {
		a.applyFirmwareJSON(data)
	}

	conn.SetWriteDeadline(time.Now().Add(flushTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"tt":0,"transition":0}`)); err != nil {
		if a.logger != nil {
			a.logger.Error("board actor: zero-transition init failed", "board_id", a.id, "err", err)
		}
	}

	a.state.Connected = true
	a.emitConnectionStatus()
	metrics.SetBoardConnected(a.id, true)
	if a.logger != nil {
		a.logger.Info("board actor: connected", "board_id", a.id)
	}
	return false
}

// connectedLoop runs the three-branch select: keepalive ping, inbound
// read, command mailbox. Returns true on Shutdown.
func (a *Actor) connectedLoop(conn *websocket.Conn) bool {
	pingTicker := time.NewTicker(keepaliveEvery)
	defer pingTicker.Stop()

	incoming := make(chan wsMessage, 1)
	readDone := make(chan struct{})
	go a.readPump(conn, incoming, readDone)

	for {
		select {
		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(sendTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				a.transitionDisconnected("keepalive ping failed", err)
				<-readDone
				return false
			}

		case msg, ok := <-incoming:
			if !ok {
				a.transitionDisconnected("read loop ended", nil)
				return false
			}
			switch msg.kind {
			case wsText:
				a.applyFirmwareJSON(msg.data)
				a.emitState()
			case wsClose:
				a.transitionDisconnected("closed by remote", nil)
				<-readDone
				return false
			case wsTimeout:
				a.transitionDisconnected("read timeout", nil)
				<-readDone
				return false
			case wsErr:
				a.transitionDisconnected("connection lost", msg.err)
				<-readDone
				return false
			}

		case cmd, ok := <-a.mailbox:
			if !ok {
				return true
			}
			if shutdown, disconnected := a.applyConnectedCommand(conn, cmd); shutdown {
				return true
			} else if disconnected {
				<-readDone
				return false
			}
		}
	}
}

type wsMsgKind int

const (
	wsText wsMsgKind = iota
	wsClose
	wsTimeout
	wsErr
)

type wsMessage struct {
	kind wsMsgKind
	data []byte
	err  error
}

// readPump owns conn's read side; gorilla/websocket connections are not
// safe for concurrent reads, so all reads live on this one goroutine while
// connectedLoop owns all writes.
func (a *Actor) readPump(conn *websocket.Conn, out chan<- wsMessage, done chan<- struct{}) {
	defer close(done)
	for {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				out <- wsMessage{kind: wsClose}
				return
			}
			if ne, ok := err.(interface{ Timeout() bool }); ok && ne.Timeout() {
				out <- wsMessage{kind: wsTimeout}
				return
			}
			out <- wsMessage{kind: wsErr, err: err}
			return
		}
		if msgType == websocket.TextMessage {
			out <- wsMessage{kind: wsText, data: data}
		}
		// Pong/Binary frames reset the read deadline above and are
		// otherwise ignored, matching §4.4's "reset timer" handling.
	}
}

func (a *Actor) transitionDisconnected(reason string, err error) {
	a.state.Connected = false
	a.emitConnectionStatus()
	metrics.SetBoardConnected(a.id, false)
	if a.logger != nil {
		a.logger.Warn("board actor: disconnected", "board_id", a.id, "reason", reason, "err", err)
	}
}

// applyConnectedCommand emits the wire message for a command (2s send
// timeout, 500ms flush timeout) and updates the cache. Any send error
// transitions to Disconnected.
func (a *Actor) applyConnectedCommand(conn *websocket.Conn, cmd Command) (shutdown, disconnected bool) {
	var payload []byte

	switch cmd.Kind {
	case CmdGetState:
		if cmd.Reply != nil {
			cmd.Reply <- a.state
		}
		return false, false
	case CmdShutdown:
		return true, false
	case CmdSetPower:
		a.state.On = cmd.Bool
		payload = []byte(fmt.Sprintf(`{"on":%t,"tt":%d}`, cmd.Bool, cmd.Transition))
	case CmdSetBrightness:
		a.state.Brightness = cmd.U8
		payload = []byte(fmt.Sprintf(`{"bri":%d,"tt":%d}`, cmd.U8, cmd.Transition))
	case CmdSetColor:
		a.state.Color = cmd.RGB
		payload = []byte(fmt.Sprintf(`{"seg":[{"col":[[%d,%d,%d]]}],"tt":%d}`, cmd.RGB[0], cmd.RGB[1], cmd.RGB[2], cmd.Transition))
	case CmdSetEffect:
		a.state.Effect = cmd.U8
		payload = []byte(fmt.Sprintf(`{"seg":[{"fx":%d}],"tt":%d}`, cmd.U8, cmd.Transition))
	case CmdSetSpeed:
		payload = []byte(fmt.Sprintf(`{"seg":[{"sx":%d}],"tt":%d}`, cmd.U8, cmd.Transition))
	case CmdSetIntensity:
		payload = []byte(fmt.Sprintf(`{"seg":[{"ix":%d}],"tt":%d}`, cmd.U8, cmd.Transition))
	case CmdSetPreset:
		payload = []byte(fmt.Sprintf(`{"ps":%d,"tt":%d}`, cmd.U8, cmd.Transition))
	case CmdSetLedCount:
		v := cmd.U16
		a.state.LedCount = &v
		payload = []byte(fmt.Sprintf(`{"seg":[{"len":%d}]}`, cmd.U16))
	case CmdSetTransition:
		payload = []byte(fmt.Sprintf(`{"tt":%d}`, cmd.Transition))
	case CmdResetSegment:
		payload = []byte(`{"seg":[{"id":0,"grp":1,"spc":0,"of":0}]}`)
	case CmdSyncPowerState:
		a.state.On = cmd.Bool
		a.emitState()
		return false, false
	case CmdSyncBrightnessState:
		a.state.Brightness = cmd.U8
		a.emitState()
		return false, false
	case CmdSyncPresetState:
		a.emitState()
		return false, false
	}

	conn.SetWriteDeadline(time.Now().Add(sendTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		a.transitionDisconnected("command send failed", err)
		return false, true
	}
	a.emitState()
	return false, false
}

// applyFirmwareJSON parses a firmware state push and merges recognised
// fields into the cache, mirroring actor.rs's update_state_from_json.
func (a *Actor) applyFirmwareJSON(data []byte) {
	var msg struct {
		State struct {
			On  *bool `json:"on"`
			Bri *uint8 `json:"bri"`
			Seg []struct {
				Col  [][]uint8 `json:"col"`
				FX   *uint8    `json:"fx"`
				Stop *uint16   `json:"stop"`
			} `json:"seg"`
		} `json:"state"`
		Info struct {
			Leds struct {
				Count *uint16 `json:"count"`
			} `json:"leds"`
		} `json:"info"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	if msg.State.On != nil {
		a.state.On = *msg.State.On
	}
	if msg.State.Bri != nil {
		a.state.Brightness = *msg.State.Bri
	}
	if len(msg.State.Seg) > 0 {
		seg := msg.State.Seg[0]
		if len(seg.Col) > 0 && len(seg.Col[0]) >= 3 {
			a.state.Color = [3]uint8{seg.Col[0][0], seg.Col[0][1], seg.Col[0][2]}
		}
		if seg.FX != nil {
			a.state.Effect = *seg.FX
		}
		if seg.Stop != nil {
			v := *seg.Stop
			a.state.LedCount = &v
		}
	}
	if msg.Info.Leds.Count != nil {
		v := *msg.Info.Leds.Count
		a.state.MaxLeds = &v
	}
}

func (a *Actor) emitState() {
	if a.events == nil {
		return
	}
	a.events <- Event{Kind: EventStateUpdate, BoardID: a.id, State: a.state}
}

func (a *Actor) emitConnectionStatus() {
	if a.events == nil {
		return
	}
	a.events <- Event{Kind: EventConnectionStatus, BoardID: a.id, Connected: a.state.Connected}
}
