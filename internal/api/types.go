// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

// Package api implements the unified JSON command surface shared by the
// HTTP edge, the WebSocket edge, and the MQTT mirror — one Request/
// Response shape processed identically regardless of transport.
package api

import "dmx-gateway/internal/showconfig"

// Request is the unified JSON request format for all protocols: HTTP POST
// /api, WebSocket, and MQTT.
type Request struct {
	Cmd    string   `json:"cmd"`
	Target string   `json:"target,omitempty"` // board id or group id

	Bool       *bool     `json:"bool,omitempty"`
	U8         *uint8    `json:"value,omitempty"`
	U16        *uint16   `json:"u16,omitempty"`
	Color      *[3]uint8 `json:"color,omitempty"`
	Transition *int      `json:"transition,omitempty"`
	PresetID   string    `json:"preset_id,omitempty"`

	ProgramID string  `json:"program_id,omitempty"`
	StartTime float64 `json:"start_time,omitempty"`

	Board   *BoardParams    `json:"board,omitempty"`
	Group   *GroupParams    `json:"group,omitempty"`
	Program *ProgramParams  `json:"program,omitempty"`
	Presets []PresetParams  `json:"presets,omitempty"`
}

// PresetParams mirrors showconfig.WledPreset's wire shape for save_presets.
type PresetParams struct {
	ID          string                  `json:"id,omitempty"`
	Name        string                  `json:"name"`
	WledSlot    uint8                   `json:"wled_slot"`
	Description *string                 `json:"description,omitempty"`
	State       showconfig.PresetState  `json:"state"`
}

// BoardParams carries a board registration/update payload.
type BoardParams struct {
	ID         string `json:"id"`
	IP         string `json:"ip"`
	Universe   uint16 `json:"universe"`
	LedCount   int    `json:"led_count"`
	Transition *uint8 `json:"transition,omitempty"`
}

// GroupParams carries a group creation/update payload.
type GroupParams struct {
	ID       string   `json:"id"`
	Members  []string `json:"members"`
	Universe *uint16  `json:"universe,omitempty"`
}

// ProgramParams carries a program save payload, mirroring
// showconfig.Program's wire shape.
type ProgramParams struct {
	ID                 string  `json:"id"`
	SongName           string  `json:"song_name"`
	LoopyProTrack      string  `json:"loopy_pro_track"`
	AudioSyncDelayMs   int     `json:"audio_sync_delay_ms"`
	BPM                *uint16 `json:"bpm,omitempty"`
	DisplayOrder       int     `json:"display_order"`
	Cues               []CueParams `json:"cues"`
}

// CueParams mirrors showconfig.Cue's wire shape.
type CueParams struct {
	Time       float64  `json:"time"`
	Label      string   `json:"label"`
	Targets    []string `json:"targets"`
	PresetName string   `json:"preset_name"`
	SyncRate   float64  `json:"sync_rate"`
}

// Response is the unified JSON response format.
type Response struct {
	Type   string      `json:"type"`
	Target string      `json:"target,omitempty"`
	Data   interface{} `json:"data,omitempty"`
	Error  string      `json:"error,omitempty"`
}

func ok(data interface{}) *Response       { return &Response{Type: "ok", Data: data} }
func errResponse(target, msg string) *Response {
	return &Response{Type: "error", Target: target, Error: msg}
}
