// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

// Package audio handles data-URL audio ingestion (the supplemented
// upload feature in SPEC_FULL.md) and the fire-and-forget OSC control
// channel to the external audio host (§4.6's "coordinates audio start").
package audio

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dmx-gateway/internal/errs"
)

// Store manages audio files on disk, rooted at dir.
type Store struct {
	dir string
}

// NewStore constructs a Store rooted at dir (created on first Save if
// missing).
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// ParseDataURL decodes a "data:<mime>;base64,<payload>" URL into its MIME
// type, file extension, and raw bytes. Grounded on
// original_source/src/audio.rs's parse_data_url/mime_to_extension.
func ParseDataURL(dataURL string) (mimeType, extension string, data []byte, err error) {
	const prefix = "data:"
	if !strings.HasPrefix(dataURL, prefix) {
		return "", "", nil, errs.New(errs.BadRequest, "not a data URL")
	}
	rest := dataURL[len(prefix):]

	commaIdx := strings.IndexByte(rest, ',')
	if commaIdx < 0 {
		return "", "", nil, errs.New(errs.BadRequest, "malformed data URL: missing comma")
	}
	meta, payload := rest[:commaIdx], rest[commaIdx+1:]

	if !strings.HasSuffix(meta, ";base64") {
		return "", "", nil, errs.New(errs.BadRequest, "data URL is not base64-encoded")
	}
	mimeType = strings.TrimSuffix(meta, ";base64")
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	decoded, decErr := base64.StdEncoding.DecodeString(payload)
	if decErr != nil {
		return "", "", nil, errs.WrapField(errs.BadRequest, "base64", decErr)
	}

	return mimeType, mimeToExtension(mimeType), decoded, nil
}

func mimeToExtension(mime string) string {
	switch mime {
	case "audio/wav", "audio/x-wav":
		return "wav"
	case "audio/webm":
		return "webm"
	case "audio/mp3", "audio/mpeg":
		return "mp3"
	case "audio/ogg":
		return "ogg"
	case "audio/flac":
		return "flac"
	default:
		return "bin"
	}
}

// ExtensionToMime infers a MIME type from a filename's extension, for
// serving saved audio back over HTTP.
func ExtensionToMime(filename string) string {
	switch {
	case strings.HasSuffix(filename, ".wav"):
		return "audio/wav"
	case strings.HasSuffix(filename, ".webm"):
		return "audio/webm"
	case strings.HasSuffix(filename, ".mp3"):
		return "audio/mpeg"
	case strings.HasSuffix(filename, ".ogg"):
		return "audio/ogg"
	case strings.HasSuffix(filename, ".flac"):
		return "audio/flac"
	default:
		return "application/octet-stream"
	}
}

// Save decodes dataURL and writes it to <id>.<ext>, returning the
// filename stored on the Program record.
func (s *Store) Save(id, dataURL string) (filename string, err error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", errs.Wrap(errs.Fatal, err)
	}
	_, ext, data, err := ParseDataURL(dataURL)
	if err != nil {
		return "", err
	}
	filename = fmt.Sprintf("%s.%s", id, ext)
	if err := os.WriteFile(filepath.Join(s.dir, filename), data, 0o644); err != nil {
		return "", errs.Wrap(errs.Unreachable, err)
	}
	return filename, nil
}

// Load reads an audio file's bytes, rejecting any filename attempting
// path traversal.
func (s *Store) Load(filename string) ([]byte, error) {
	if err := validateFilename(filename); err != nil {
		return nil, err
	}
	path := filepath.Join(s.dir, filename)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, errs.New(errs.NotFound, "audio file not found: "+filename)
	}
	if err != nil {
		return nil, errs.Wrap(errs.Unreachable, err)
	}
	return data, nil
}

// Delete removes an audio file and its associated peaks sidecar, if any.
func (s *Store) Delete(filename string) error {
	if err := validateFilename(filename); err != nil {
		return err
	}
	path := filepath.Join(s.dir, filename)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errs.Wrap(errs.Unreachable, err)
	}
	peaksPath := filepath.Join(s.dir, filename+".peaks.json")
	if err := os.Remove(peaksPath); err != nil && !os.IsNotExist(err) {
		return errs.Wrap(errs.Unreachable, err)
	}
	return nil
}

func validateFilename(filename string) error {
	if strings.Contains(filename, "..") || strings.ContainsAny(filename, "/\\") {
		return errs.New(errs.BadRequest, "invalid filename: path traversal detected")
	}
	return nil
}
