// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package showconfig

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"dmx-gateway/internal/errs"
)

// NewPresetID mints a fresh preset identity, matching spec.md §3's
// "Identity preset_id (UUID)" and original_source/src/types.rs's
// Uuid::new_v4 calls on preset creation.
func NewPresetID() string {
	return uuid.NewString()
}

// RegisterBoard appends a new board to the document, rejecting a
// duplicate id — folded from original_source/src/types.rs's
// RegisterBoardRequest handling.
func (s *Store) RegisterBoard(doc *Document, b BoardConfig) error {
	for _, existing := range doc.Boards {
		if existing.ID == b.ID {
			return errs.WrapField(errs.Conflict, "board.id", fmt.Errorf("board %q already registered", b.ID))
		}
	}
	doc.Boards = append(doc.Boards, b)
	return validateDocument(*doc)
}

// UpdateBoard replaces an existing board's config in place, matching
// original_source/src/types.rs's UpdateBoardRequest.
func (s *Store) UpdateBoard(doc *Document, b BoardConfig) error {
	for i, existing := range doc.Boards {
		if existing.ID == b.ID {
			doc.Boards[i] = b
			return validateDocument(*doc)
		}
	}
	return errs.WrapField(errs.NotFound, "board.id", fmt.Errorf("board %q not found", b.ID))
}

// RemoveBoard deletes a board by id. Per spec.md §3's invariant, a board
// referenced by any group must be removed from that group's membership
// first (the caller is expected to have resolved that, since automatically
// un-grouping a board is a silent behaviour change this port declines to
// introduce — see DESIGN.md).
func (s *Store) RemoveBoard(doc *Document, id string) error {
	for _, g := range doc.Groups {
		for _, m := range g.Members {
			if m == id {
				return errs.WrapField(errs.Conflict, "board.id",
					fmt.Errorf("board %q is still a member of group %q", id, g.ID))
			}
		}
	}
	for i, b := range doc.Boards {
		if b.ID == id {
			doc.Boards = append(doc.Boards[:i], doc.Boards[i+1:]...)
			return nil
		}
	}
	return errs.WrapField(errs.NotFound, "board.id", fmt.Errorf("board %q not found", id))
}

// CreateGroup appends a new group, validating member existence and
// rejecting a duplicate id, matching original_source/src/types.rs's
// CreateGroupRequest.
func (s *Store) CreateGroup(doc *Document, g GroupConfig) error {
	for _, existing := range doc.Groups {
		if existing.ID == g.ID {
			return errs.WrapField(errs.Conflict, "group.id", fmt.Errorf("group %q already exists", g.ID))
		}
	}
	candidate := *doc
	candidate.Groups = append(append([]GroupConfig(nil), doc.Groups...), g)
	if err := validateDocument(candidate); err != nil {
		return err
	}
	doc.Groups = candidate.Groups
	return nil
}

// UpdateGroup replaces an existing group's membership/universe override,
// matching original_source/src/types.rs's UpdateGroupRequest.
func (s *Store) UpdateGroup(doc *Document, g GroupConfig) error {
	for i, existing := range doc.Groups {
		if existing.ID == g.ID {
			doc.Groups[i] = g
			return validateDocument(*doc)
		}
	}
	return errs.WrapField(errs.NotFound, "group.id", fmt.Errorf("group %q not found", g.ID))
}

// RemoveGroup deletes a group by id. Empty groups are dropped silently on
// save per spec.md §3; an explicit remove is still an error if the group
// never existed, so callers can distinguish "already gone" from "gone".
func (s *Store) RemoveGroup(doc *Document, id string) error {
	for i, g := range doc.Groups {
		if g.ID == id {
			doc.Groups = append(doc.Groups[:i], doc.Groups[i+1:]...)
			return nil
		}
	}
	return errs.WrapField(errs.NotFound, "group.id", fmt.Errorf("group %q not found", id))
}

// nowRFC3339 stamps CreatedAt fields the way original_source/src/preset.rs's
// chrono::Utc::now().to_rfc3339() does.
func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// NewWledPreset constructs a preset with a freshly minted id and creation
// timestamp, matching WledPreset::new in original_source/src/preset.rs.
func NewWledPreset(name string, slot uint8, state PresetState) WledPreset {
	return WledPreset{
		ID:        NewPresetID(),
		Name:      name,
		WledSlot:  slot,
		State:     state,
		CreatedAt: nowRFC3339(),
	}
}
