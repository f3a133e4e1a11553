// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package http

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"dmx-gateway/internal/api"
	"dmx-gateway/internal/audio"
	"dmx-gateway/internal/board"
	"dmx-gateway/internal/cue"
	"dmx-gateway/internal/effects"
	"dmx-gateway/internal/pattern"
	"dmx-gateway/internal/program"
	"dmx-gateway/internal/showconfig"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	store := showconfig.NewStore(t.TempDir())
	if err := store.Init(); err != nil {
		t.Fatalf("store.Init: %v", err)
	}
	doc := showconfig.Document{
		Boards: []showconfig.BoardConfig{{ID: "board-1", IP: "10.0.0.1", Universe: 1, LedCount: 30}},
	}

	effectsEngine := effects.New(logger)
	patternEngine := pattern.New(logger)
	scheduler := cue.New(effectsEngine, patternEngine, logger)
	var perfMode atomic.Bool
	programEngine := program.New(effectsEngine, patternEngine, scheduler, nil, &perfMode, logger)
	fastPath := program.NewFastPath(logger)

	apiHandler := api.NewHandler(store, doc, programEngine, fastPath, logger)
	events := make(chan board.Event, 16)
	actor := board.New("board-1", "10.0.0.1", events, &perfMode, logger)
	apiHandler.RegisterActor("board-1", actor)

	audioStore := audio.NewStore(t.TempDir())

	return NewServer(":0", apiHandler, programEngine, audioStore, events, logger)
}

func TestHandleAPIRequiresPost(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
}

func TestHandleAPIStatus(t *testing.T) {
	s := newTestServer(t)
	body, _ := json.Marshal(api.Request{Cmd: "status"})
	req := httptest.NewRequest(http.MethodPost, "/api", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp api.Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Type != "ok" {
		t.Fatalf("resp.Type = %q, want ok", resp.Type)
	}
}

func TestHandleHealthReportsVitals(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var health map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("unmarshal health: %v", err)
	}
	if _, ok := health["goroutines"]; !ok {
		t.Fatal("expected goroutines field in health response")
	}
	if _, ok := health["go_version"]; !ok {
		t.Fatal("expected go_version field in health response")
	}
}

func TestHandleHistoryEmpty(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/diagnostics/history", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := resp["current"]; ok {
		t.Fatal("did not expect a current session with no playback started")
	}
}

func TestHandleDriftEmpty(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/diagnostics/drift", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestHandleAudioRoundTrip(t *testing.T) {
	s := newTestServer(t)

	dataURL := "data:audio/mpeg;base64,AAECAw=="
	saveBody, _ := json.Marshal(map[string]string{"data_url": dataURL})
	req := httptest.NewRequest(http.MethodPost, "/api/audio/track1", bytes.NewReader(saveBody))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("save status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
	var saved map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &saved); err != nil {
		t.Fatalf("unmarshal save response: %v", err)
	}
	filename := saved["filename"]
	if filename == "" {
		t.Fatal("expected non-empty filename")
	}

	req = httptest.NewRequest(http.MethodGet, "/api/audio/"+filename, nil)
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("load status = %d, want 200", rec.Code)
	}
	if !bytes.Equal(rec.Body.Bytes(), []byte{0, 1, 2, 3}) {
		t.Fatalf("loaded bytes = %v, want [0 1 2 3]", rec.Body.Bytes())
	}

	req = httptest.NewRequest(http.MethodDelete, "/api/audio/"+filename, nil)
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d, want 200", rec.Code)
	}
}

func TestHandleAudioMissingFileNotFound(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/audio/nope.mp3", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestMetricsEndpointServesPrometheusFormat(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}
