// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package board

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"dmx-gateway/internal/showconfig"
)

func httpAddr(serverURL string) string {
	return strings.TrimPrefix(serverURL, "http://")
}

func TestSyncPresetTablePushesEachPresetInOrder(t *testing.T) {
	var mu sync.Mutex
	var posts []map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/json/state" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		posts = append(posts, body)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	presets := []showconfig.WledPreset{
		showconfig.NewWledPreset("scene-a", 1, showconfig.PresetState{On: true, Brightness: 100}),
		showconfig.NewWledPreset("scene-b", 2, showconfig.PresetState{On: false}),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	results := SyncPresetTable(ctx, httpAddr(srv.URL), presets)

	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	for i, r := range results {
		if !r.Success {
			t.Fatalf("results[%d].Success = false, error: %s", i, r.Error)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(posts) != 2 {
		t.Fatalf("firmware received %d posts, want 2", len(posts))
	}
	if posts[0]["n"] != "scene-a" || posts[1]["n"] != "scene-b" {
		t.Fatalf("posts out of order: %+v", posts)
	}
	if posts[0]["psave"].(float64) != 1 {
		t.Fatalf("posts[0][psave] = %v, want 1", posts[0]["psave"])
	}
}

func TestSyncPresetTableReportsPerPresetFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	presets := []showconfig.WledPreset{
		showconfig.NewWledPreset("scene-a", 1, showconfig.PresetState{On: true}),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	results := SyncPresetTable(ctx, httpAddr(srv.URL), presets)

	if len(results) != 1 || results[0].Success {
		t.Fatalf("results = %+v, want one failed result", results)
	}
	if results[0].Error == "" {
		t.Fatal("expected a non-empty error message")
	}
}

func TestFetchPresetTableCoercesMalformedJSONToEmptyMap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	out, err := FetchPresetTable(ctx, httpAddr(srv.URL))
	if err != nil {
		t.Fatalf("FetchPresetTable: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("out = %+v, want empty map", out)
	}
}

func TestBulkReplacePresetsUploadsMultipartFile(t *testing.T) {
	var gotFilename string
	var gotBody []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/upload" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer file.Close()
		gotFilename = header.Filename
		gotBody, _ = io.ReadAll(file)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	presets := []showconfig.WledPreset{
		showconfig.NewWledPreset("scene-a", 1, showconfig.PresetState{On: true}),
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := BulkReplacePresets(ctx, httpAddr(srv.URL), presets); err != nil {
		t.Fatalf("BulkReplacePresets: %v", err)
	}
	if gotFilename != "presets.json" {
		t.Fatalf("gotFilename = %q, want presets.json", gotFilename)
	}
	var decoded []showconfig.WledPreset
	if err := json.Unmarshal(gotBody, &decoded); err != nil {
		t.Fatalf("unmarshal uploaded body: %v", err)
	}
	if len(decoded) != 1 || decoded[0].Name != "scene-a" {
		t.Fatalf("decoded = %+v, want one preset named scene-a", decoded)
	}
}

func TestConfigureE131ConfiguresThenReboots(t *testing.T) {
	var calls []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	start := time.Now()
	if err := ConfigureE131(ctx, httpAddr(srv.URL), 3); err != nil {
		t.Fatalf("ConfigureE131: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 2*time.Second {
		t.Fatalf("ConfigureE131 returned after %v, want at least the 2s config/reboot pause", elapsed)
	}
	if len(calls) != 2 || calls[0] != "/json/cfg" || calls[1] != "/json/state" {
		t.Fatalf("calls = %v, want [/json/cfg /json/state]", calls)
	}
}
