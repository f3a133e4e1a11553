// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package board

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"time"

	"dmx-gateway/internal/showconfig"
)

// presetHTTPClient is the shared outbound client for the firmware HTTP
// surface (§6.3): preset save, bulk upload, and E1.31 Mode-6 configure.
// This is the one place the gateway talks HTTP *to* a board rather than
// over the board actor's WebSocket connection, so it gets its own
// 5s-timeout client rather than reusing the actor's dialer.
var presetHTTPClient = &http.Client{Timeout: 5 * time.Second}

// PresetSyncResult reports one board's outcome for a single preset push,
// mirroring the per-preset success/failure reporting sync_presets_to_board
// returns to its caller.
type PresetSyncResult struct {
	PresetID string `json:"preset_id"`
	Name     string `json:"name"`
	WledSlot uint8  `json:"wled_slot"`
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
}

// SyncPresetTable pushes every preset in order to one board's /json/state
// endpoint, saving each into its onboard slot. A 500ms pause between posts
// avoids overwhelming the firmware's single-threaded HTTP server, matching
// original_source's pacing. A failed preset doesn't stop the rest.
func SyncPresetTable(ctx context.Context, ip string, presets []showconfig.WledPreset) []PresetSyncResult {
	results := make([]PresetSyncResult, 0, len(presets))
	for i, p := range presets {
		err := postPresetState(ctx, ip, p)
		result := PresetSyncResult{PresetID: p.ID, Name: p.Name, WledSlot: p.WledSlot, Success: err == nil}
		if err != nil {
			result.Error = err.Error()
		}
		results = append(results, result)

		if i < len(presets)-1 {
			select {
			case <-ctx.Done():
				return results
			case <-time.After(500 * time.Millisecond):
			}
		}
	}
	return results
}

func postPresetState(ctx context.Context, ip string, preset showconfig.WledPreset) error {
	return postJSON(ctx, ip, "/json/state", preset.ToWledJSON())
}

// BulkReplacePresets uploads a board's complete preset table in one
// multipart POST to /upload, replacing whatever presets the firmware
// currently holds — the group-sync bulk path instead of one /json/state
// call per preset.
func BulkReplacePresets(ctx context.Context, ip string, presets []showconfig.WledPreset) error {
	body, err := json.Marshal(presets)
	if err != nil {
		return fmt.Errorf("marshal presets: %w", err)
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", "presets.json")
	if err != nil {
		return fmt.Errorf("create multipart field: %w", err)
	}
	if _, err := part.Write(body); err != nil {
		return fmt.Errorf("write multipart field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close multipart form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://"+ip+"/upload", &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := presetHTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("upload to %s: %w", ip, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("upload to %s: HTTP %d", ip, resp.StatusCode)
	}
	return nil
}

// FetchPresetTable retrieves a board's onboard preset table as an opaque
// snapshot. Malformed JSON is coerced to an empty map rather than
// returned as an error, matching §6.3's "treated as an opaque snapshot".
func FetchPresetTable(ctx context.Context, ip string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+ip+"/presets.json", nil)
	if err != nil {
		return nil, err
	}
	resp, err := presetHTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch presets from %s: %w", ip, err)
	}
	defer resp.Body.Close()

	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return map[string]any{}, nil
	}
	return out, nil
}

// ConfigureE131 puts a board into E1.31 Mode-6 on the given universe and
// reboots it, the sequence run once at boot for every board with a
// configured universe. The 2s pause between the config write and the
// reboot call lets the firmware persist settings before it restarts.
func ConfigureE131(ctx context.Context, ip string, universe uint16) error {
	cfg := map[string]any{
		"if": map[string]any{
			"live": map[string]any{
				"en": true,
				"mc": false,
				"dmx": map[string]any{
					"uni":  universe,
					"mode": 6,
					"addr": 1,
				},
				"timeout": 65535,
			},
		},
	}
	if err := postJSON(ctx, ip, "/json/cfg", cfg); err != nil {
		return fmt.Errorf("configure universe on %s: %w", ip, err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(2 * time.Second):
	}

	if err := postJSON(ctx, ip, "/json/state", map[string]any{"rb": true}); err != nil {
		return fmt.Errorf("reboot %s: %w", ip, err)
	}
	return nil
}

func postJSON(ctx context.Context, ip, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://"+ip+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := presetHTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s: HTTP %d", path, resp.StatusCode)
	}
	return nil
}
