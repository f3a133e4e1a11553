// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package program

import (
	"dmx-gateway/internal/effects"
	"dmx-gateway/internal/pattern"
	"dmx-gateway/internal/showconfig"
)

type resolvedEffectPreset struct {
	effectType effects.Type
	color      [3]uint8
}

type resolvedPatternPreset struct {
	patternType pattern.Type
	color       [3]uint8
}

// indexPresets builds name-keyed lookup tables from the config document's
// preset lists, resolving each preset's stored type name to its enum value
// via effects.ParseType/pattern.ParseType. A preset whose stored type name
// no longer matches a known Type is dropped rather than defaulted, so a
// stale config entry fails loud (as an unresolvable-preset cue warning)
// instead of silently playing Solid/Wave.
func indexPresets(doc showconfig.Document) (map[string]resolvedEffectPreset, map[string]resolvedPatternPreset) {
	effectPresets := make(map[string]resolvedEffectPreset, len(doc.EffectPresets))
	for _, p := range doc.EffectPresets {
		t, ok := effects.ParseType(p.EffectType)
		if !ok {
			continue
		}
		effectPresets[p.Name] = resolvedEffectPreset{effectType: t, color: p.Color}
	}

	patternPresets := make(map[string]resolvedPatternPreset, len(doc.PatternPresets))
	for _, p := range doc.PatternPresets {
		t, ok := pattern.ParseType(p.PatternType)
		if !ok {
			continue
		}
		patternPresets[p.Name] = resolvedPatternPreset{patternType: t, color: p.Color}
	}

	return effectPresets, patternPresets
}

// resolveTargets expands every cue target name (a board id or a group id)
// named anywhere in the program into its online board set, deduplicated by
// target name, dropping targets that resolve to zero online boards (with
// the caller logging the warning — this function stays pure and silent so
// it is cheaply testable). A board id resolves to itself; a group id
// resolves to its member boards.
func resolveTargets(p showconfig.Program, doc showconfig.Document, onlineIPs map[string]bool) map[string]targetInfo {
	boardsByID := make(map[string]showconfig.BoardConfig, len(doc.Boards))
	for _, b := range doc.Boards {
		boardsByID[b.ID] = b
	}

	groupsByID := make(map[string][]string, len(doc.Groups))
	for _, g := range doc.Groups {
		groupsByID[g.ID] = g.Members
	}

	uniqueTargetNames := make(map[string]struct{})
	for _, c := range p.Cues {
		for _, t := range c.Targets {
			uniqueTargetNames[t] = struct{}{}
		}
	}

	result := make(map[string]targetInfo, len(uniqueTargetNames))
	for name := range uniqueTargetNames {
		var memberIDs []string
		if _, isBoard := boardsByID[name]; isBoard {
			memberIDs = []string{name}
		} else if members, isGroup := groupsByID[name]; isGroup {
			memberIDs = members
		} else {
			continue
		}

		ti := targetInfo{}
		for _, id := range memberIDs {
			b, ok := boardsByID[id]
			if !ok {
				continue
			}
			if onlineIPs != nil && !onlineIPs[b.IP] {
				continue
			}
			ti.boards = append(ti.boards, effects.BoardTarget{IP: b.IP, Universe: b.Universe, LedCount: b.LedCount})
			ti.patternBoards = append(ti.patternBoards, pattern.BoardTarget{ID: b.ID, IP: b.IP, Universe: b.Universe, LedCount: b.LedCount})
			ti.memberIDs = append(ti.memberIDs, b.ID)
		}

		if len(ti.boards) == 0 {
			continue
		}
		result[name] = ti
	}

	return result
}
