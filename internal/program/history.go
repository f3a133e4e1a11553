// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package program

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session is one completed or in-flight playback session snapshot, for the
// HTTP edge's diagnostics surface.
type Session struct {
	ID             string
	ProgramID      string
	ProgramName    string
	StartedAt      time.Time
	EndedAt        time.Time
	Completed      bool
	CueCount       uint64
	CuesDrifted    uint64
	CueDriftAvgMs  float64
	CueDriftMaxMs  float64
}

// Snapshot is the subset of runtime counters a session records at end,
// decoupled from internal/metrics so this package doesn't need to import
// Prometheus collector types directly.
type Snapshot struct {
	CueCount      uint64
	CuesDrifted   uint64
	CueDriftAvgMs float64
	CueDriftMaxMs float64
}

// maxSessions bounds the in-memory ring. History is explicitly
// process-lifetime only — it does not survive a restart, since persisting
// it would be new functionality the distilled spec never asked for.
const maxSessions = 100

// History is a bounded in-memory ring of recent playback sessions,
// supplementing the distilled spec with the original's session tracking
// minus its disk persistence.
type History struct {
	mu       sync.Mutex
	sessions []Session
	current  *Session
}

// NewHistory constructs an empty History.
func NewHistory() *History {
	return &History{}
}

// StartSession opens a new session, mints its id via google/uuid (matching
// the original's Uuid::new_v4), and returns the id for the matching
// EndSession call.
func (h *History) StartSession(programID, programName string) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := uuid.NewString()
	h.current = &Session{ID: id, ProgramID: programID, ProgramName: programName, StartedAt: time.Now()}
	return id
}

// EndSession closes the named session if it is still current, records the
// final metrics snapshot, and appends it to the bounded history ring. A
// stale or unknown session id is a silent no-op — the original exhibits
// the same behaviour (write-lock the current slot, bail if the id no
// longer matches).
func (h *History) EndSession(sessionID string, snap Snapshot, completed bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.current == nil || h.current.ID != sessionID {
		return
	}
	s := *h.current
	h.current = nil
	s.EndedAt = time.Now()
	s.Completed = completed
	s.CueCount = snap.CueCount
	s.CuesDrifted = snap.CuesDrifted
	s.CueDriftAvgMs = snap.CueDriftAvgMs
	s.CueDriftMaxMs = snap.CueDriftMaxMs

	h.sessions = append(h.sessions, s)
	if len(h.sessions) > maxSessions {
		h.sessions = h.sessions[len(h.sessions)-maxSessions:]
	}
}

// Recent returns the bounded session history, oldest first.
func (h *History) Recent() []Session {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Session, len(h.sessions))
	copy(out, h.sessions)
	return out
}

// Current returns the in-flight session, if any.
func (h *History) Current() (Session, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.current == nil {
		return Session{}, false
	}
	return *h.current, true
}
