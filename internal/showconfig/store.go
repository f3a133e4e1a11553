// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package showconfig

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/BurntSushi/toml"

	"dmx-gateway/internal/errs"
)

// Store owns the on-disk layout: one TOML boards/groups/presets document
// plus per-program JSON files and a centralized presets.json, matching
// original_source/src/config.rs's StoragePaths and
// original_source/src/program.rs/preset.rs's file-per-program /
// centralized-presets split.
type Store struct {
	boardsPath   string
	programsDir  string
	presetsDir   string
	audioDir     string
}

// NewStore constructs a Store rooted at dataDir, matching the original's
// WLED_PROGRAMS_PATH/WLED_AUDIO_PATH/WLED_PRESETS_PATH env-var defaults
// collapsed into one parent directory for this port.
func NewStore(dataDir string) *Store {
	return &Store{
		boardsPath:  filepath.Join(dataDir, "boards.toml"),
		programsDir: filepath.Join(dataDir, "programs"),
		presetsDir:  filepath.Join(dataDir, "presets"),
		audioDir:    filepath.Join(dataDir, "audio"),
	}
}

// Init creates the storage directories, mirroring StoragePaths::init.
func (s *Store) Init() error {
	for _, dir := range []string{s.programsDir, s.presetsDir, s.audioDir, filepath.Dir(s.boardsPath)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errs.Wrap(errs.Fatal, err)
		}
	}
	return nil
}

// LoadDocument reads boards.toml. A missing file is not an error — it
// yields an empty Document with the default Loopy Pro endpoint, matching
// a fresh install.
func (s *Store) LoadDocument() (Document, error) {
	var doc Document
	data, err := os.ReadFile(s.boardsPath)
	if os.IsNotExist(err) {
		doc.LoopyPro = DefaultLoopyPro()
		return doc, nil
	}
	if err != nil {
		return doc, errs.Wrap(errs.Unreachable, err)
	}
	if _, err := toml.Decode(string(data), &doc); err != nil {
		return doc, errs.WrapField(errs.BadRequest, "boards.toml", err)
	}
	if doc.LoopyPro.IP == "" {
		doc.LoopyPro = DefaultLoopyPro()
	}
	return doc, validateDocument(doc)
}

// SaveDocument writes boards.toml via write-tmp/fsync/rename, mirroring
// config.rs's Config::save. Groups with no members are dropped from the
// written document.
func (s *Store) SaveDocument(doc Document) error {
	if err := validateDocument(doc); err != nil {
		return err
	}
	groups := make([]GroupConfig, 0, len(doc.Groups))
	for _, g := range doc.Groups {
		if len(g.Members) > 0 {
			groups = append(groups, g)
		}
	}
	doc.Groups = groups
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	if err := enc.Encode(doc); err != nil {
		return errs.Wrap(errs.Fatal, err)
	}
	return atomicWrite(s.boardsPath, buf.Bytes())
}

// validateDocument only validates that every group's members reference a
// declared board, per spec.md §9's validation requirement; wled_slot
// injectivity is checked separately by SavePresets.
func validateDocument(doc Document) error {
	boardIDs := make(map[string]struct{}, len(doc.Boards))
	for _, b := range doc.Boards {
		boardIDs[b.ID] = struct{}{}
	}
	for _, g := range doc.Groups {
		for _, m := range g.Members {
			if _, ok := boardIDs[m]; !ok {
				return errs.WrapField(errs.BadRequest, "group."+g.ID+".members",
					fmt.Errorf("member %q is not a declared board", m))
			}
		}
	}
	return nil
}

// LoadPrograms reads every *.json file in the programs directory, sorted
// by DisplayOrder ascending, matching Program::load_all.
func (s *Store) LoadPrograms() ([]Program, error) {
	entries, err := os.ReadDir(s.programsDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Wrap(errs.Unreachable, err)
	}
	var programs []Program
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.programsDir, entry.Name()))
		if err != nil {
			continue
		}
		var p Program
		if err := json.Unmarshal(data, &p); err != nil {
			continue
		}
		programs = append(programs, p)
	}
	sort.Slice(programs, func(i, j int) bool { return programs[i].DisplayOrder < programs[j].DisplayOrder })
	return programs, nil
}

// SaveProgram writes one program to <id>.json.
func (s *Store) SaveProgram(p Program) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return errs.Wrap(errs.Fatal, err)
	}
	return atomicWrite(filepath.Join(s.programsDir, p.ID+".json"), data)
}

// DeleteProgram removes a program's JSON file and its audio file, if any.
func (s *Store) DeleteProgram(p Program) error {
	path := filepath.Join(s.programsDir, p.ID+".json")
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errs.Wrap(errs.Unreachable, err)
	}
	if p.AudioFile != nil {
		audioPath := filepath.Join(s.audioDir, *p.AudioFile)
		if err := os.Remove(audioPath); err != nil && !os.IsNotExist(err) {
			return errs.Wrap(errs.Unreachable, err)
		}
	}
	return nil
}

// LoadPresets reads the centralized presets.json file, matching
// WledPreset::load_all.
func (s *Store) LoadPresets() ([]WledPreset, error) {
	path := filepath.Join(s.presetsDir, "presets.json")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Wrap(errs.Unreachable, err)
	}
	var presets []WledPreset
	if err := json.Unmarshal(data, &presets); err != nil {
		return nil, errs.WrapField(errs.BadRequest, "presets.json", err)
	}
	return presets, nil
}

// SavePresets writes the full preset list, validating wled_slot
// injectivity (§9's stated invariant: no two presets may claim the same
// board-onboard slot).
func (s *Store) SavePresets(presets []WledPreset) error {
	seen := make(map[uint8]string, len(presets))
	for _, p := range presets {
		if owner, ok := seen[p.WledSlot]; ok {
			return errs.WrapField(errs.Conflict, "wled_slot",
				fmt.Errorf("slot %d claimed by both %q and %q", p.WledSlot, owner, p.ID))
		}
		seen[p.WledSlot] = p.ID
	}
	data, err := json.MarshalIndent(presets, "", "  ")
	if err != nil {
		return errs.Wrap(errs.Fatal, err)
	}
	return atomicWrite(filepath.Join(s.presetsDir, "presets.json"), data)
}

// atomicWrite writes data to a .tmp sibling, fsyncs it, then renames over
// the destination — matching config.rs's Config::save write-tmp/sync/rename
// sequence, generalized to every persisted document in this package.
func atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return errs.Wrap(errs.Unreachable, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return errs.Wrap(errs.Unreachable, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return errs.Wrap(errs.Unreachable, err)
	}
	if err := f.Close(); err != nil {
		return errs.Wrap(errs.Unreachable, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return errs.Wrap(errs.Unreachable, err)
	}
	return nil
}
