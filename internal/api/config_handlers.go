// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package api

import (
	"context"
	"time"

	"dmx-gateway/internal/board"
	"dmx-gateway/internal/showconfig"
)

func (h *Handler) handleRegisterBoard(req *Request) *Response {
	if req.Board == nil {
		return errResponse(req.Target, "board payload required")
	}
	h.docMu.Lock()
	defer h.docMu.Unlock()
	b := showconfig.BoardConfig{ID: req.Board.ID, IP: req.Board.IP, Universe: req.Board.Universe,
		LedCount: req.Board.LedCount, Transition: req.Board.Transition}
	if err := h.store.RegisterBoard(&h.doc, b); err != nil {
		return errResponse(req.Target, err.Error())
	}
	if err := h.store.SaveDocument(h.doc); err != nil {
		return errResponse(req.Target, err.Error())
	}
	return ok(b)
}

func (h *Handler) handleUpdateBoard(req *Request) *Response {
	if req.Board == nil {
		return errResponse(req.Target, "board payload required")
	}
	h.docMu.Lock()
	defer h.docMu.Unlock()
	b := showconfig.BoardConfig{ID: req.Board.ID, IP: req.Board.IP, Universe: req.Board.Universe,
		LedCount: req.Board.LedCount, Transition: req.Board.Transition}
	if err := h.store.UpdateBoard(&h.doc, b); err != nil {
		return errResponse(req.Target, err.Error())
	}
	if err := h.store.SaveDocument(h.doc); err != nil {
		return errResponse(req.Target, err.Error())
	}
	return ok(b)
}

func (h *Handler) handleRemoveBoard(req *Request) *Response {
	h.docMu.Lock()
	defer h.docMu.Unlock()
	if err := h.store.RemoveBoard(&h.doc, req.Target); err != nil {
		return errResponse(req.Target, err.Error())
	}
	if err := h.store.SaveDocument(h.doc); err != nil {
		return errResponse(req.Target, err.Error())
	}
	h.boardsMu.Lock()
	delete(h.boards, req.Target)
	h.boardsMu.Unlock()
	return ok(nil)
}

func (h *Handler) handleCreateGroup(req *Request) *Response {
	if req.Group == nil {
		return errResponse(req.Target, "group payload required")
	}
	h.docMu.Lock()
	defer h.docMu.Unlock()
	g := showconfig.GroupConfig{ID: req.Group.ID, Members: req.Group.Members, Universe: req.Group.Universe}
	if err := h.store.CreateGroup(&h.doc, g); err != nil {
		return errResponse(req.Target, err.Error())
	}
	if err := h.store.SaveDocument(h.doc); err != nil {
		return errResponse(req.Target, err.Error())
	}
	return ok(g)
}

func (h *Handler) handleUpdateGroup(req *Request) *Response {
	if req.Group == nil {
		return errResponse(req.Target, "group payload required")
	}
	h.docMu.Lock()
	defer h.docMu.Unlock()
	g := showconfig.GroupConfig{ID: req.Group.ID, Members: req.Group.Members, Universe: req.Group.Universe}
	if err := h.store.UpdateGroup(&h.doc, g); err != nil {
		return errResponse(req.Target, err.Error())
	}
	if err := h.store.SaveDocument(h.doc); err != nil {
		return errResponse(req.Target, err.Error())
	}
	return ok(g)
}

func (h *Handler) handleRemoveGroup(req *Request) *Response {
	h.docMu.Lock()
	defer h.docMu.Unlock()
	if err := h.store.RemoveGroup(&h.doc, req.Target); err != nil {
		return errResponse(req.Target, err.Error())
	}
	if err := h.store.SaveDocument(h.doc); err != nil {
		return errResponse(req.Target, err.Error())
	}
	return ok(nil)
}

func (h *Handler) handleListPrograms() *Response {
	programs, err := h.store.LoadPrograms()
	if err != nil {
		return errResponse("", err.Error())
	}
	return ok(programs)
}

func (h *Handler) handleSaveProgram(req *Request) *Response {
	if req.Program == nil {
		return errResponse(req.Target, "program payload required")
	}
	p := showconfig.Program{
		ID:               req.Program.ID,
		SongName:         req.Program.SongName,
		LoopyProTrack:    req.Program.LoopyProTrack,
		AudioSyncDelayMs: req.Program.AudioSyncDelayMs,
		BPM:              req.Program.BPM,
		DisplayOrder:     req.Program.DisplayOrder,
	}
	for _, c := range req.Program.Cues {
		p.Cues = append(p.Cues, showconfig.Cue{
			Time: c.Time, Label: c.Label, Targets: c.Targets,
			PresetName: c.PresetName, SyncRate: c.SyncRate,
		})
	}
	if err := h.store.SaveProgram(p); err != nil {
		return errResponse(req.Target, err.Error())
	}
	return ok(p)
}

func (h *Handler) handleDeleteProgram(req *Request) *Response {
	programs, err := h.store.LoadPrograms()
	if err != nil {
		return errResponse(req.Target, err.Error())
	}
	for _, p := range programs {
		if p.ID == req.ProgramID {
			if err := h.store.DeleteProgram(p); err != nil {
				return errResponse(req.Target, err.Error())
			}
			return ok(nil)
		}
	}
	return errResponse(req.Target, "program not found")
}

func (h *Handler) handleListPresets() *Response {
	presets, err := h.store.LoadPresets()
	if err != nil {
		return errResponse("", err.Error())
	}
	return ok(presets)
}

func (h *Handler) handleSavePresets(req *Request) *Response {
	presets := make([]showconfig.WledPreset, 0, len(req.Presets))
	for _, p := range req.Presets {
		if p.ID == "" {
			presets = append(presets, showconfig.NewWledPreset(p.Name, p.WledSlot, p.State))
			continue
		}
		presets = append(presets, showconfig.WledPreset{
			ID: p.ID, Name: p.Name, WledSlot: p.WledSlot, Description: p.Description, State: p.State,
		})
	}
	if err := h.store.SavePresets(presets); err != nil {
		return errResponse(req.Target, err.Error())
	}
	return ok(presets)
}

// handleSyncPresets pushes the centrally stored presets to req.Target's
// firmware over the §6.3 HTTP surface (POST /json/state per preset), each
// board's presets pushed in order with a 500ms pace between posts.
// req.PresetID narrows the push to a single preset; omitted syncs every
// stored preset. A board that can't be reached doesn't stop the others —
// the response reports per-board, per-preset results.
func (h *Handler) handleSyncPresets(req *Request) *Response {
	ips, found := h.resolveBoardIPs(req.Target)
	if !found || len(ips) == 0 {
		return errResponse(req.Target, "unknown target: "+req.Target)
	}

	presets, err := h.store.LoadPresets()
	if err != nil {
		return errResponse(req.Target, err.Error())
	}
	if req.PresetID != "" {
		filtered := presets[:0]
		for _, p := range presets {
			if p.ID == req.PresetID {
				filtered = append(filtered, p)
			}
		}
		presets = filtered
		if len(presets) == 0 {
			return errResponse(req.Target, "preset not found: "+req.PresetID)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	perBoard := make(map[string][]board.PresetSyncResult, len(ips))
	for _, ip := range ips {
		perBoard[ip] = board.SyncPresetTable(ctx, ip, presets)
	}
	return ok(map[string]any{"target": req.Target, "results": perBoard})
}
