// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package audio

import (
	"bytes"
	"encoding/base64"
	"testing"
)

func TestParseDataURLRoundTrip(t *testing.T) {
	payload := []byte("fake mp3 bytes, doesn't need to be valid audio")
	encoded := base64.StdEncoding.EncodeToString(payload)
	dataURL := "data:audio/mp3;base64," + encoded

	mime, ext, data, err := ParseDataURL(dataURL)
	if err != nil {
		t.Fatalf("ParseDataURL: %v", err)
	}
	if mime != "audio/mp3" {
		t.Fatalf("mime = %q, want audio/mp3", mime)
	}
	if ext != "mp3" {
		t.Fatalf("ext = %q, want mp3", ext)
	}
	if !bytes.Equal(data, payload) {
		t.Fatalf("decoded payload mismatch")
	}
}

func TestParseDataURLRejectsMalformed(t *testing.T) {
	cases := []string{
		"not-a-data-url",
		"data:audio/mp3,nobase64marker",
		"data:audio/mp3;base64", // missing comma
	}
	for _, c := range cases {
		if _, _, _, err := ParseDataURL(c); err == nil {
			t.Fatalf("ParseDataURL(%q) should have failed", c)
		}
	}
}

func TestSaveLoadDeleteRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)

	payload := []byte("waveform bytes")
	dataURL := "data:audio/wav;base64," + base64.StdEncoding.EncodeToString(payload)

	filename, err := s.Save("prog-1", dataURL)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if filename != "prog-1.wav" {
		t.Fatalf("filename = %q, want prog-1.wav", filename)
	}

	loaded, err := s.Load(filename)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !bytes.Equal(loaded, payload) {
		t.Fatalf("loaded payload mismatch")
	}

	if err := s.Delete(filename); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Load(filename); err == nil {
		t.Fatal("Load after Delete should have failed")
	}
}

func TestLoadRejectsPathTraversal(t *testing.T) {
	s := NewStore(t.TempDir())
	if _, err := s.Load("../../etc/passwd"); err == nil {
		t.Fatal("Load with path traversal should have failed")
	}
	if err := s.Delete("..\\secrets.txt"); err == nil {
		t.Fatal("Delete with path traversal should have failed")
	}
}

func TestExtensionToMime(t *testing.T) {
	cases := map[string]string{
		"song.mp3":  "audio/mpeg",
		"song.wav":  "audio/wav",
		"song.webm": "audio/webm",
		"song.xyz":  "application/octet-stream",
	}
	for filename, want := range cases {
		if got := ExtensionToMime(filename); got != want {
			t.Fatalf("ExtensionToMime(%q) = %q, want %q", filename, got, want)
		}
	}
}
