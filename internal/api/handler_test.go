// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"dmx-gateway/internal/board"
	"dmx-gateway/internal/cue"
	"dmx-gateway/internal/effects"
	"dmx-gateway/internal/pattern"
	"dmx-gateway/internal/program"
	"dmx-gateway/internal/showconfig"
)

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	store := showconfig.NewStore(t.TempDir())
	if err := store.Init(); err != nil {
		t.Fatalf("store.Init: %v", err)
	}
	doc := showconfig.Document{
		Boards: []showconfig.BoardConfig{{ID: "board-1", IP: "10.0.0.1", Universe: 1, LedCount: 30}},
		Groups: []showconfig.GroupConfig{{ID: "front", Members: []string{"board-1"}}},
	}

	effectsEngine := effects.New(logger)
	patternEngine := pattern.New(logger)
	scheduler := cue.New(effectsEngine, patternEngine, logger)
	var perfMode atomic.Bool
	programEngine := program.New(effectsEngine, patternEngine, scheduler, nil, &perfMode, logger)
	fastPath := program.NewFastPath(logger)

	h := NewHandler(store, doc, programEngine, fastPath, logger)

	events := make(chan board.Event, 16)
	actor := board.New("board-1", "10.0.0.1", events, &perfMode, logger)
	h.RegisterActor("board-1", actor)

	return h
}

func TestHandleUnknownCommand(t *testing.T) {
	h := newTestHandler(t)
	resp := h.Handle(&Request{Cmd: "not-a-command"})
	if resp.Type != "error" {
		t.Fatalf("resp.Type = %q, want error", resp.Type)
	}
}

func TestHandleStatusReturnsBoardCount(t *testing.T) {
	h := newTestHandler(t)
	resp := h.Handle(&Request{Cmd: "status"})
	if resp.Type != "ok" {
		t.Fatalf("resp.Type = %q, want ok", resp.Type)
	}
	data, ok := resp.Data.(map[string]any)
	if !ok {
		t.Fatalf("resp.Data = %T, want map[string]any", resp.Data)
	}
	if data["board_count"] != 1 {
		t.Fatalf("board_count = %v, want 1", data["board_count"])
	}
}

func TestHandleSetPowerUnknownTarget(t *testing.T) {
	h := newTestHandler(t)
	resp := h.Handle(&Request{Cmd: "set_power", Target: "ghost", Bool: boolPtr(true)})
	if resp.Type != "error" {
		t.Fatalf("resp.Type = %q, want error for unknown target", resp.Type)
	}
}

func TestHandleSetPowerKnownBoardDoesNotHang(t *testing.T) {
	h := newTestHandler(t)
	h.SetBoardOnline("10.0.0.1", true)
	resp := h.Handle(&Request{Cmd: "set_power", Target: "board-1", Bool: boolPtr(true)})
	if resp.Type != "ok" {
		t.Fatalf("resp.Type = %q, want ok", resp.Type)
	}
}

func TestHandleRegisterAndRemoveBoard(t *testing.T) {
	h := newTestHandler(t)
	resp := h.Handle(&Request{Cmd: "register_board", Board: &BoardParams{ID: "board-2", IP: "10.0.0.2", Universe: 2, LedCount: 10}})
	if resp.Type != "ok" {
		t.Fatalf("register_board: %+v", resp)
	}

	resp = h.Handle(&Request{Cmd: "remove_board", Target: "board-2"})
	if resp.Type != "ok" {
		t.Fatalf("remove_board: %+v", resp)
	}
}

func TestHandleCreateGroupRejectsUnknownMember(t *testing.T) {
	h := newTestHandler(t)
	resp := h.Handle(&Request{Cmd: "create_group", Group: &GroupParams{ID: "g2", Members: []string{"ghost"}}})
	if resp.Type != "error" {
		t.Fatal("expected error creating group with unknown member")
	}
}

func TestHandleSaveAndListProgram(t *testing.T) {
	h := newTestHandler(t)
	resp := h.Handle(&Request{Cmd: "save_program", Program: &ProgramParams{ID: "p1", SongName: "Test Song"}})
	if resp.Type != "ok" {
		t.Fatalf("save_program: %+v", resp)
	}
	resp = h.Handle(&Request{Cmd: "programs"})
	if resp.Type != "ok" {
		t.Fatalf("programs: %+v", resp)
	}
	progs, ok := resp.Data.([]showconfig.Program)
	if !ok || len(progs) != 1 {
		t.Fatalf("resp.Data = %+v, want one program", resp.Data)
	}
}

func TestHandleJSONInvalidPayload(t *testing.T) {
	h := newTestHandler(t)
	out := h.HandleJSON([]byte("not json"))
	if len(out) == 0 {
		t.Fatal("expected a non-empty error response")
	}
}

// newPresetSyncTestHandler builds a handler whose single board's IP points
// at a local httptest server standing in for the board firmware's HTTP
// surface (§6.3) — so sync_presets exercises a real POST /json/state round
// trip instead of a command sent through the actor mailbox.
func newPresetSyncTestHandler(t *testing.T, received *[][]byte) *Handler {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/json/state" {
			body, _ := io.ReadAll(r.Body)
			*received = append(*received, body)
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	ip := strings.TrimPrefix(srv.URL, "http://")

	logger := slog.New(slog.DiscardHandler)
	store := showconfig.NewStore(t.TempDir())
	if err := store.Init(); err != nil {
		t.Fatalf("store.Init: %v", err)
	}
	doc := showconfig.Document{
		Boards: []showconfig.BoardConfig{{ID: "board-1", IP: ip, Universe: 1, LedCount: 30}},
	}

	effectsEngine := effects.New(logger)
	patternEngine := pattern.New(logger)
	scheduler := cue.New(effectsEngine, patternEngine, logger)
	var perfMode atomic.Bool
	programEngine := program.New(effectsEngine, patternEngine, scheduler, nil, &perfMode, logger)
	fastPath := program.NewFastPath(logger)

	return NewHandler(store, doc, programEngine, fastPath, logger)
}

func TestHandleSetPresetDispatchesToBoard(t *testing.T) {
	h := newTestHandler(t)
	resp := h.Handle(&Request{Cmd: "set_preset", Target: "board-1", U8: u8Ptr(3)})
	if resp.Type != "ok" {
		t.Fatalf("set_preset: %+v", resp)
	}
}

func TestHandleSyncPresetsUnknownTarget(t *testing.T) {
	h := newTestHandler(t)
	resp := h.Handle(&Request{Cmd: "sync_presets", Target: "ghost"})
	if resp.Type != "error" {
		t.Fatal("expected error for unknown sync_presets target")
	}
}

func TestHandleSyncPresetsPushesEveryStoredPreset(t *testing.T) {
	var received [][]byte
	h := newPresetSyncTestHandler(t, &received)

	saveResp := h.Handle(&Request{Cmd: "save_presets", Presets: []PresetParams{
		{Name: "scene-a", WledSlot: 1, State: showconfig.PresetState{On: true, Brightness: 200}},
		{Name: "scene-b", WledSlot: 2, State: showconfig.PresetState{On: false}},
	}})
	if saveResp.Type != "ok" {
		t.Fatalf("save_presets: %+v", saveResp)
	}

	resp := h.Handle(&Request{Cmd: "sync_presets", Target: "board-1"})
	if resp.Type != "ok" {
		t.Fatalf("sync_presets: %+v", resp)
	}
	if len(received) != 2 {
		t.Fatalf("firmware received %d preset posts, want 2", len(received))
	}
	var first map[string]any
	if err := json.Unmarshal(received[0], &first); err != nil {
		t.Fatalf("unmarshal first post: %v", err)
	}
	if first["n"] != "scene-a" {
		t.Fatalf("first post name = %v, want scene-a", first["n"])
	}
}

func TestHandleSyncPresetsNarrowsToOnePresetID(t *testing.T) {
	var received [][]byte
	h := newPresetSyncTestHandler(t, &received)

	saveResp := h.Handle(&Request{Cmd: "save_presets", Presets: []PresetParams{
		{Name: "scene-a", WledSlot: 1, State: showconfig.PresetState{On: true}},
	}})
	presets := saveResp.Data.([]showconfig.WledPreset)

	resp := h.Handle(&Request{Cmd: "sync_presets", Target: "board-1", PresetID: presets[0].ID})
	if resp.Type != "ok" {
		t.Fatalf("sync_presets: %+v", resp)
	}
	if len(received) != 1 {
		t.Fatalf("firmware received %d preset posts, want 1", len(received))
	}

	resp = h.Handle(&Request{Cmd: "sync_presets", Target: "board-1", PresetID: "ghost"})
	if resp.Type != "error" {
		t.Fatal("expected error for unknown preset id")
	}
}

func boolPtr(b bool) *bool { return &b }
func u8Ptr(v uint8) *uint8 { return &v }
