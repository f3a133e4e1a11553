// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

// Package http implements the thin HTTP/WebSocket edge: a unified /api
// JSON endpoint, a /ws push stream for board state and connection events,
// Prometheus /metrics, audio blob upload/serve, and a diagnostics surface
// over playback history and cue drift. There is no served UI — spec.md's
// Non-goals exclude one.
package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dmx-gateway/internal/api"
	"dmx-gateway/internal/audio"
	"dmx-gateway/internal/board"
	"dmx-gateway/internal/metrics"
	"dmx-gateway/internal/program"
)

var startTime = time.Now()

// Server is the HTTP/WebSocket edge.
type Server struct {
	api           *api.Handler
	programEngine *program.Engine
	audioStore    *audio.Store
	logger        *slog.Logger
	server        *http.Server
	upgrader      websocket.Upgrader

	events chan board.Event

	subsMu sync.RWMutex
	subs   map[chan []byte]struct{}
}

// NewServer constructs the HTTP server. events is the shared board-event
// fan-in channel (every board.Actor's events output is merged into it by
// the caller) this server rebroadcasts to WebSocket subscribers.
func NewServer(addr string, apiHandler *api.Handler, programEngine *program.Engine, audioStore *audio.Store,
	events chan board.Event, logger *slog.Logger) *Server {
	s := &Server{
		api:           apiHandler,
		programEngine: programEngine,
		audioStore:    audioStore,
		logger:        logger,
		upgrader:      websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		events:        events,
		subs:          make(map[chan []byte]struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/api", s.handleAPI)
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/diagnostics/history", s.handleHistory)
	mux.HandleFunc("/api/diagnostics/drift", s.handleDrift)
	mux.HandleFunc("/api/audio/", s.handleAudio)
	mux.Handle("/metrics", promhttp.Handler())

	s.server = &http.Server{Addr: addr, Handler: mux}

	go s.fanOutEvents()

	return s
}

// Start begins serving in the background.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.server.Addr)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", "error", err)
		}
	}()
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// ServeHTTP exposes the underlying mux for tests.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.server.Handler.ServeHTTP(w, r)
}

// fanOutEvents rebroadcasts board events to every subscribed WebSocket as
// marshaled JSON, serializing all writes through per-subscriber channels
// to avoid the concurrent-write panic gorilla/websocket warns against.
func (s *Server) fanOutEvents() {
	if s.events == nil {
		return
	}
	for ev := range s.events {
		data, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		s.subsMu.RLock()
		for ch := range s.subs {
			select {
			case ch <- data:
			default:
			}
		}
		s.subsMu.RUnlock()
	}
}

func (s *Server) subscribe() chan []byte {
	ch := make(chan []byte, 64)
	s.subsMu.Lock()
	s.subs[ch] = struct{}{}
	s.subsMu.Unlock()
	return ch
}

func (s *Server) unsubscribe(ch chan []byte) {
	s.subsMu.Lock()
	delete(s.subs, ch)
	s.subsMu.Unlock()
	close(ch)
}

// handleWebSocket streams board state/connection events and accepts the
// unified API request format as inbound text frames.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	updates := s.subscribe()
	defer s.unsubscribe(updates)

	done := make(chan struct{})
	outgoing := make(chan []byte, 16)

	go func() {
		defer close(done)
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				return
			}
			outgoing <- s.api.HandleJSON(message)
		}
	}()

	for {
		select {
		case data := <-outgoing:
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case data, ok := <-updates:
			if !ok {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// handleAPI is the unified JSON command endpoint.
func (s *Server) handleAPI(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	resp := s.api.HandleJSON(body)
	w.Header().Set("Content-Type", "application/json")
	w.Write(resp)
}

// handleHealth reports process vitals, matching the teacher's
// runtime.MemStats/loadavg health probe shape.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	var load1, load5, load15 float64
	if data, err := os.ReadFile("/proc/loadavg"); err == nil {
		fmt.Sscanf(string(data), "%f %f %f", &load1, &load5, &load15)
	}

	health := map[string]any{
		"uptime_sec":  int(time.Since(startTime).Seconds()),
		"uptime":      time.Since(startTime).Round(time.Second).String(),
		"goroutines":  runtime.NumGoroutine(),
		"cpu_load1m":  load1,
		"cpu_load5m":  load5,
		"cpu_load15m": load15,
		"mem_alloc_mb": float64(m.Alloc) / 1024 / 1024,
		"mem_sys_mb":   float64(m.Sys) / 1024 / 1024,
		"gc_runs":      m.NumGC,
		"go_version":   runtime.Version(),
		"num_cpu":      runtime.NumCPU(),
	}
	s.jsonResponse(w, health)
}

// handleHistory serves the playback-session diagnostics view
// (SUPPLEMENTED FEATURES item 3).
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	history := s.programEngine.History()
	current, hasCurrent := history.Current()
	resp := map[string]any{"sessions": history.Recent()}
	if hasCurrent {
		resp["current"] = current
	}
	s.jsonResponse(w, resp)
}

// handleDrift serves the recent cue-drift samples diagnostics view.
func (s *Server) handleDrift(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, map[string]any{"events": metrics.RecentCueDrift()})
}

// handleAudio serves GET /api/audio/{filename} and POST
// /api/audio/{program_id} (JSON body: {"data_url": "data:..."}).
func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/api/audio/")
	if name == "" {
		http.Error(w, "missing audio file name", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		data, err := s.audioStore.Load(name)
		if err != nil {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", audio.ExtensionToMime(name))
		w.Write(data)

	case http.MethodPost:
		var body struct {
			DataURL string `json:"data_url"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		filename, err := s.audioStore.Save(name, body.DataURL)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.jsonResponse(w, map[string]string{"filename": filename})

	case http.MethodDelete:
		if err := s.audioStore.Delete(name); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		s.jsonResponse(w, map[string]string{"status": "ok"})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) jsonResponse(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
