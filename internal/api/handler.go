// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package api

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"dmx-gateway/internal/board"
	"dmx-gateway/internal/errs"
	"dmx-gateway/internal/metrics"
	"dmx-gateway/internal/program"
	"dmx-gateway/internal/showconfig"
)

// Handler processes unified API requests against the live board registry,
// the persisted config document, and the Program Engine — the single
// collaborator every transport (HTTP, WebSocket, MQTT) funnels requests
// through, matching the teacher's dmx.State-backed api.Handler role.
type Handler struct {
	logger *slog.Logger
	store  *showconfig.Store

	docMu sync.RWMutex
	doc   showconfig.Document

	boardsMu sync.RWMutex
	boards   map[string]*board.Actor

	onlineMu  sync.RWMutex
	onlineIPs map[string]bool

	programEngine *program.Engine
	fastPath      *program.FastPath
}

// NewHandler constructs a Handler over an already-loaded document and an
// empty board registry; callers populate the registry via RegisterActor as
// boards are brought up (main.go does this at startup from doc.Boards).
func NewHandler(store *showconfig.Store, doc showconfig.Document, programEngine *program.Engine,
	fastPath *program.FastPath, logger *slog.Logger) *Handler {
	return &Handler{
		logger:        logger,
		store:         store,
		doc:           doc,
		boards:        make(map[string]*board.Actor),
		onlineIPs:     make(map[string]bool),
		programEngine: programEngine,
		fastPath:      fastPath,
	}
}

// RegisterActor adds a board actor to the live registry, keyed by board id.
func (h *Handler) RegisterActor(id string, a *board.Actor) {
	h.boardsMu.Lock()
	defer h.boardsMu.Unlock()
	h.boards[id] = a
}

// SetBoardOnline updates the online-IP set the Program Engine's target
// resolution and the Group Fast Path consult. Called from the board event
// consumer on every EventConnectionStatus.
func (h *Handler) SetBoardOnline(ip string, online bool) {
	h.onlineMu.Lock()
	defer h.onlineMu.Unlock()
	if online {
		h.onlineIPs[ip] = true
	} else {
		delete(h.onlineIPs, ip)
	}
}

func (h *Handler) onlineSnapshot() map[string]bool {
	h.onlineMu.RLock()
	defer h.onlineMu.RUnlock()
	out := make(map[string]bool, len(h.onlineIPs))
	for ip := range h.onlineIPs {
		out[ip] = true
	}
	return out
}

func (h *Handler) docSnapshot() showconfig.Document {
	h.docMu.RLock()
	defer h.docMu.RUnlock()
	return h.doc
}

// HandleJSON parses a request and marshals the response, the shape every
// transport (HTTP POST body, WS text frame, MQTT payload) calls directly.
func (h *Handler) HandleJSON(data []byte) []byte {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		out, _ := json.Marshal(&Response{Type: "error", Error: "invalid JSON: " + err.Error()})
		return out
	}
	resp := h.Handle(&req)
	out, _ := json.Marshal(resp)
	return out
}

// Handle processes one request and returns its response.
func (h *Handler) Handle(req *Request) *Response {
	switch req.Cmd {
	case "play":
		return h.handlePlay(req)
	case "stop":
		return h.handleStop()
	case "status":
		return h.handleStatus()
	case "blackout":
		return h.handleBlackout(req)

	case "set_power":
		return h.dispatchBoardCommand(req, board.Command{Kind: board.CmdSetPower, Bool: boolVal(req.Bool)})
	case "set_brightness":
		return h.dispatchBoardCommand(req, board.Command{Kind: board.CmdSetBrightness, U8: u8Val(req.U8)})
	case "set_color":
		return h.handleSetColor(req)
	case "set_effect":
		return h.dispatchBoardCommand(req, board.Command{Kind: board.CmdSetEffect, U8: u8Val(req.U8)})
	case "set_speed":
		return h.dispatchBoardCommand(req, board.Command{Kind: board.CmdSetSpeed, U8: u8Val(req.U8)})
	case "set_intensity":
		return h.dispatchBoardCommand(req, board.Command{Kind: board.CmdSetIntensity, U8: u8Val(req.U8)})
	case "set_led_count":
		return h.dispatchBoardCommand(req, board.Command{Kind: board.CmdSetLedCount, U16: u16Val(req.U16)})
	case "set_transition":
		return h.dispatchBoardCommand(req, board.Command{Kind: board.CmdSetTransition, Transition: intVal(req.Transition)})
	case "reset_segment":
		return h.dispatchBoardCommand(req, board.Command{Kind: board.CmdResetSegment})
	case "set_preset":
		return h.dispatchBoardCommand(req, board.Command{Kind: board.CmdSetPreset, U8: u8Val(req.U8), Transition: intVal(req.Transition)})
	case "get_state":
		return h.handleGetState(req)

	case "boards":
		return ok(h.docSnapshot().Boards)
	case "groups":
		return ok(h.docSnapshot().Groups)
	case "register_board":
		return h.handleRegisterBoard(req)
	case "update_board":
		return h.handleUpdateBoard(req)
	case "remove_board":
		return h.handleRemoveBoard(req)
	case "create_group":
		return h.handleCreateGroup(req)
	case "update_group":
		return h.handleUpdateGroup(req)
	case "remove_group":
		return h.handleRemoveGroup(req)

	case "programs":
		return h.handleListPrograms()
	case "save_program":
		return h.handleSaveProgram(req)
	case "delete_program":
		return h.handleDeleteProgram(req)

	case "presets":
		return h.handleListPresets()
	case "save_presets":
		return h.handleSavePresets(req)
	case "sync_presets":
		return h.handleSyncPresets(req)

	default:
		return errResponse(req.Target, "unknown command: "+req.Cmd)
	}
}

func (h *Handler) handlePlay(req *Request) *Response {
	programs, err := h.store.LoadPrograms()
	if err != nil {
		return errResponse(req.Target, err.Error())
	}
	var target showconfig.Program
	found := false
	for _, p := range programs {
		if p.ID == req.ProgramID {
			target = p
			found = true
			break
		}
	}
	if !found {
		return errResponse(req.Target, errs.New(errs.NotFound, "program not found").Error())
	}
	h.programEngine.Play(target, req.StartTime, h.docSnapshot(), h.onlineSnapshot())
	metrics.SetPerformanceMode(true)
	return ok(nil)
}

func (h *Handler) handleStop() *Response {
	h.programEngine.Stop()
	metrics.SetPerformanceMode(false)
	return ok(nil)
}

func (h *Handler) handleStatus() *Response {
	state := h.programEngine.State()
	h.boardsMu.RLock()
	boardCount := len(h.boards)
	h.boardsMu.RUnlock()
	return ok(map[string]any{
		"active_targets": len(state.ActiveTargets),
		"audio_track":    state.AudioTrack,
		"board_count":    boardCount,
		"online_count":   len(h.onlineSnapshot()),
	})
}

func (h *Handler) handleBlackout(req *Request) *Response {
	actors, ok2 := h.resolveActors(req.Target)
	if !ok2 {
		return errResponse(req.Target, "unknown target: "+req.Target)
	}
	h.fanOut(actors, board.Command{Kind: board.CmdSetPower, Bool: false})
	return ok(nil)
}

func (h *Handler) handleSetColor(req *Request) *Response {
	color := colorVal(req.Color)
	if h.fastPath != nil && h.isGroup(req.Target) {
		if err := h.fastPath.Send(h.docSnapshot(), program.GroupCommand{GroupID: req.Target, Color: color, Brightness: 255}, h.onlineSnapshot()); err == nil {
			return ok(nil)
		}
		// Fall through to per-board fan-out if the broadcast path can't resolve
		// this group (e.g. every member currently offline).
	}
	return h.dispatchBoardCommand(req, board.Command{Kind: board.CmdSetColor, RGB: color})
}

func (h *Handler) isGroup(target string) bool {
	for _, g := range h.docSnapshot().Groups {
		if g.ID == target {
			return true
		}
	}
	return false
}

func (h *Handler) handleGetState(req *Request) *Response {
	actors, ok2 := h.resolveActors(req.Target)
	if !ok2 || len(actors) == 0 {
		return errResponse(req.Target, "unknown target: "+req.Target)
	}
	if len(actors) == 1 {
		reply := make(chan board.State, 1)
		actors[0].Mailbox() <- board.Command{Kind: board.CmdGetState, Reply: reply}
		select {
		case state := <-reply:
			return &Response{Type: "state", Target: req.Target, Data: state}
		case <-time.After(2 * time.Second):
			return errResponse(req.Target, "timed out waiting for board state")
		}
	}
	states := make([]board.State, 0, len(actors))
	for _, a := range actors {
		reply := make(chan board.State, 1)
		a.Mailbox() <- board.Command{Kind: board.CmdGetState, Reply: reply}
		select {
		case state := <-reply:
			states = append(states, state)
		case <-time.After(2 * time.Second):
		}
	}
	return &Response{Type: "states", Target: req.Target, Data: states}
}

// States returns every registered board's cached state, queried
// concurrently with a 2s-per-board timeout. Used by integrations (the
// Modbus bridge) that need a point-in-time snapshot of all boards
// rather than the request/response shape the unified API otherwise
// exposes.
func (h *Handler) States() []board.State {
	h.boardsMu.RLock()
	actors := make([]*board.Actor, 0, len(h.boards))
	for _, a := range h.boards {
		actors = append(actors, a)
	}
	h.boardsMu.RUnlock()

	states := make([]board.State, 0, len(actors))
	for _, a := range actors {
		reply := make(chan board.State, 1)
		a.Mailbox() <- board.Command{Kind: board.CmdGetState, Reply: reply}
		select {
		case state := <-reply:
			states = append(states, state)
		case <-time.After(2 * time.Second):
		}
	}
	return states
}

// dispatchBoardCommand resolves req.Target (board or group) and fans the
// given command out to every resolved actor's mailbox.
func (h *Handler) dispatchBoardCommand(req *Request, cmd board.Command) *Response {
	actors, found := h.resolveActors(req.Target)
	if !found || len(actors) == 0 {
		return errResponse(req.Target, "unknown target: "+req.Target)
	}
	h.fanOut(actors, cmd)
	return &Response{Type: "ok", Target: req.Target}
}

// fanOut sends cmd to every actor's mailbox concurrently via errgroup,
// bounding total latency to the slowest single mailbox send rather than
// the sum — the same parallel-fan-out shape group.rs falls back to for
// commands the broadcast fast path can't carry (SetEffect, per-board
// transitions, etc).
func (h *Handler) fanOut(actors []*board.Actor, cmd board.Command) {
	var g errgroup.Group
	for _, a := range actors {
		a := a
		g.Go(func() error {
			select {
			case a.Mailbox() <- cmd:
			case <-time.After(2 * time.Second):
			}
			return nil
		})
	}
	g.Wait()
}

// resolveActors expands a target name (board id or group id) to its
// online actor set.
func (h *Handler) resolveActors(target string) ([]*board.Actor, bool) {
	doc := h.docSnapshot()
	h.boardsMu.RLock()
	defer h.boardsMu.RUnlock()

	for _, b := range doc.Boards {
		if b.ID == target {
			if a, ok := h.boards[b.ID]; ok {
				return []*board.Actor{a}, true
			}
			return nil, true
		}
	}
	for _, g := range doc.Groups {
		if g.ID == target {
			var actors []*board.Actor
			for _, member := range g.Members {
				if a, ok := h.boards[member]; ok {
					actors = append(actors, a)
				}
			}
			return actors, true
		}
	}
	return nil, false
}

// resolveBoardIPs expands a target name (board id or group id) to the IP
// addresses of its member boards, for the out-of-band firmware HTTP surface
// (preset sync, §6.3) which talks to a board's IP directly rather than
// through its actor's mailbox.
func (h *Handler) resolveBoardIPs(target string) ([]string, bool) {
	doc := h.docSnapshot()
	for _, b := range doc.Boards {
		if b.ID == target {
			return []string{b.IP}, true
		}
	}
	for _, g := range doc.Groups {
		if g.ID == target {
			ips := make([]string, 0, len(g.Members))
			for _, member := range g.Members {
				for _, b := range doc.Boards {
					if b.ID == member {
						ips = append(ips, b.IP)
					}
				}
			}
			return ips, true
		}
	}
	return nil, false
}

func boolVal(p *bool) bool {
	if p == nil {
		return false
	}
	return *p
}

func u8Val(p *uint8) uint8 {
	if p == nil {
		return 0
	}
	return *p
}

func u16Val(p *uint16) uint16 {
	if p == nil {
		return 0
	}
	return *p
}

func intVal(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

func colorVal(p *[3]uint8) [3]uint8 {
	if p == nil {
		return [3]uint8{}
	}
	return *p
}
