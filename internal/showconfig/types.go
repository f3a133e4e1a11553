// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

// Package showconfig holds the shared data model — boards, groups,
// presets, programs, and cues — persisted as a TOML boards/groups
// document plus JSON program and preset stores, per §6.5.
package showconfig

// BoardConfig is one board's static configuration: identity, address,
// and default transition time.
type BoardConfig struct {
	ID         string `toml:"id"`
	IP         string `toml:"ip"`
	Universe   uint16 `toml:"universe"`
	LedCount   int    `toml:"led_count"`
	Transition *uint8 `toml:"transition,omitempty"`
}

// GroupConfig names a named subset of boards sharing a universe for the
// fast-path broadcast (§4.7).
type GroupConfig struct {
	ID       string   `toml:"id"`
	Members  []string `toml:"members"`
	Universe *uint16  `toml:"universe,omitempty"`
}

// LoopyProConfig is the OSC endpoint for the external audio host.
type LoopyProConfig struct {
	IP   string `toml:"ip"`
	Port uint16 `toml:"port"`
}

// EffectPreset names a stored effect configuration resolvable by a cue's
// preset_name.
type EffectPreset struct {
	Name       string  `toml:"name"`
	EffectType string  `toml:"effect_type"`
	Color      [3]uint8 `toml:"color"`
}

// PatternPreset names a stored pattern configuration resolvable by a
// cue's preset_name.
type PatternPreset struct {
	Name        string   `toml:"name"`
	PatternType string   `toml:"pattern_type"`
	Color       [3]uint8 `toml:"color"`
	Random      bool     `toml:"random"`
}

// Document is the full boards.toml persisted document.
type Document struct {
	Boards         []BoardConfig   `toml:"boards"`
	Groups         []GroupConfig   `toml:"groups"`
	LoopyPro       LoopyProConfig  `toml:"loopy_pro"`
	EffectPresets  []EffectPreset  `toml:"effect_presets"`
	PatternPresets []PatternPreset `toml:"pattern_presets"`
}

// DefaultLoopyPro matches the original's hardcoded fallback endpoint.
func DefaultLoopyPro() LoopyProConfig {
	return LoopyProConfig{IP: "192.168.1.242", Port: 9595}
}

// Cue is one scheduled event inside a Program: fire at Time seconds,
// addressing a resolved target (board or group id) by a preset name
// looked up in the pattern table then the effect table.
type Cue struct {
	Time       float64  `json:"time"`
	Label      string   `json:"label"`
	Targets    []string `json:"targets"`
	PresetName string   `json:"preset_name"`
	SyncRate   float64  `json:"sync_rate"`
}

// Program is a saved show: a song's cue list plus playback chain metadata.
type Program struct {
	ID                 string  `json:"id"`
	SongName           string  `json:"song_name"`
	LoopyProTrack      string  `json:"loopy_pro_track"`
	FileName           string  `json:"file_name"`
	AudioFile          *string `json:"audio_file,omitempty"`
	Cues               []Cue   `json:"cues"`
	CreatedAt          string  `json:"created_at"`
	DisplayOrder       int     `json:"display_order"`
	DefaultTargetBoard *string `json:"default_target_board,omitempty"`
	NextProgramID      *string `json:"next_program_id,omitempty"`
	TransitionType     string  `json:"transition_type"`
	TransitionDuration uint32  `json:"transition_duration"`
	AudioDurationSec   *float64 `json:"audio_duration,omitempty"`
	BPM                *uint16 `json:"bpm,omitempty"`
	GridOffset         *float64 `json:"grid_offset,omitempty"`
	AudioSyncDelayMs   int     `json:"audio_sync_delay_ms"`
}

// PresetState is the board-firmware-facing subset of a saved preset.
type PresetState struct {
	On         bool     `json:"on"`
	Brightness uint8    `json:"brightness"`
	Color      [3]uint8 `json:"color"`
	Effect     uint8    `json:"effect"`
	Speed      uint8    `json:"speed"`
	Intensity  uint8    `json:"intensity"`
	Transition *uint8   `json:"transition,omitempty"`
}

// WledPreset is a saved firmware preset, syncable to a board's onboard
// preset slot via the unified API.
type WledPreset struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	WledSlot    uint8       `json:"wled_slot"`
	Description *string     `json:"description,omitempty"`
	State       PresetState `json:"state"`
	CreatedAt   string      `json:"created_at"`
}

// ToWledJSON renders the preset into the firmware's onboard-preset-save
// wire shape (psave writes the current state into wled_slot).
func (p WledPreset) ToWledJSON() map[string]any {
	out := map[string]any{
		"on":  p.State.On,
		"bri": p.State.Brightness,
		"seg": []map[string]any{{
			"col": [][3]uint8{p.State.Color},
			"fx":  p.State.Effect,
			"sx":  p.State.Speed,
			"ix":  p.State.Intensity,
		}},
		"psave": p.WledSlot,
		"n":     p.Name,
	}
	if p.State.Transition != nil {
		out["transition"] = *p.State.Transition
	}
	return out
}
