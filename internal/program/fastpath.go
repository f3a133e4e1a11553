// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package program

import (
	"fmt"
	"log/slog"

	"dmx-gateway/internal/e131"
	"dmx-gateway/internal/showconfig"
)

// GroupCommand is a solid-color command addressed to a named group,
// bypassing the Effects Engine entirely. It exists for the one case
// group.rs optimizes: a single-color group-wide update should cost one
// UDP broadcast, not N per-board WebSocket round trips.
//
// Only the broadcast shape (group.rs's "Mode 6") is ported. The
// cached-preset/unicast-WebSocket-fallback shape ("Mode 10", used there so
// a Power- or Brightness-only command can still derive a color from the
// last applied preset) is intentionally not reproduced — see DESIGN.md.
type GroupCommand struct {
	GroupID    string
	Color      [3]uint8
	Brightness uint8
}

// FastPath sends solid-color group commands by constructing a transport
// bound to every member board's IP on the group's universe and issuing one
// SendSolidColor broadcast, instead of going through per-board actors.
type FastPath struct {
	logger *slog.Logger
}

// NewFastPath constructs a FastPath dispatcher.
func NewFastPath(logger *slog.Logger) *FastPath {
	return &FastPath{logger: logger}
}

// Send resolves the group's member IPs and universe from doc and issues a
// single broadcast SendSolidColor call across them. It returns an error if
// the group is unknown, has no resolvable universe, or has no online
// members — each a case the caller should fall back to the per-board path
// for instead of silently dropping the command.
func (f *FastPath) Send(doc showconfig.Document, cmd GroupCommand, onlineIPs map[string]bool) error {
	group, ok := findGroup(doc, cmd.GroupID)
	if !ok {
		return fmt.Errorf("program: unknown group %q", cmd.GroupID)
	}

	universe, ips, err := resolveGroupBroadcast(doc, group, onlineIPs)
	if err != nil {
		return err
	}

	transport, err := e131.New(ips, universe, f.logger)
	if err != nil {
		return fmt.Errorf("program: fast path transport: %w", err)
	}
	defer transport.Close()

	if err := transport.SendSolidColor(cmd.Color[0], cmd.Color[1], cmd.Color[2], cmd.Brightness); err != nil {
		return fmt.Errorf("program: fast path send: %w", err)
	}

	if f.logger != nil {
		f.logger.Info("program: group fast path broadcast", "group", cmd.GroupID, "members", len(ips), "universe", universe)
	}
	return nil
}

func findGroup(doc showconfig.Document, id string) (showconfig.GroupConfig, bool) {
	for _, g := range doc.Groups {
		if g.ID == id {
			return g, true
		}
	}
	return showconfig.GroupConfig{}, false
}

// resolveGroupBroadcast derives the universe and online member-IP list a
// group's broadcast should target. All members of a group are expected to
// share one universe (§4.7's invariant); the group's own Universe override
// is used if set, otherwise the first member board's universe.
func resolveGroupBroadcast(doc showconfig.Document, group showconfig.GroupConfig, onlineIPs map[string]bool) (uint16, []string, error) {
	boardsByID := make(map[string]showconfig.BoardConfig, len(doc.Boards))
	for _, b := range doc.Boards {
		boardsByID[b.ID] = b
	}

	var universe uint16
	var ips []string
	universeSet := false

	for _, memberID := range group.Members {
		b, ok := boardsByID[memberID]
		if !ok {
			continue
		}
		if !universeSet {
			universe = b.Universe
			universeSet = true
		}
		if onlineIPs != nil && !onlineIPs[b.IP] {
			continue
		}
		ips = append(ips, b.IP)
	}

	if group.Universe != nil {
		universe = *group.Universe
	}

	if !universeSet {
		return 0, nil, fmt.Errorf("program: group %q has no resolvable members", group.ID)
	}
	if len(ips) == 0 {
		return 0, nil, fmt.Errorf("program: group %q has no online members", group.ID)
	}
	return universe, ips, nil
}
