// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package showconfig

import "testing"

func TestRegisterBoardRejectsDuplicate(t *testing.T) {
	doc := &Document{}
	s := &Store{}
	if err := s.RegisterBoard(doc, BoardConfig{ID: "b1", IP: "10.0.0.1"}); err != nil {
		t.Fatalf("RegisterBoard: %v", err)
	}
	if err := s.RegisterBoard(doc, BoardConfig{ID: "b1", IP: "10.0.0.2"}); err == nil {
		t.Fatal("expected conflict on duplicate board id")
	}
}

func TestUpdateBoardNotFound(t *testing.T) {
	doc := &Document{}
	s := &Store{}
	if err := s.UpdateBoard(doc, BoardConfig{ID: "missing"}); err == nil {
		t.Fatal("expected not-found error")
	}
}

func TestRemoveBoardBlockedByGroupMembership(t *testing.T) {
	doc := &Document{
		Boards: []BoardConfig{{ID: "b1", IP: "10.0.0.1"}},
		Groups: []GroupConfig{{ID: "g1", Members: []string{"b1"}}},
	}
	s := &Store{}
	if err := s.RemoveBoard(doc, "b1"); err == nil {
		t.Fatal("expected conflict removing a grouped board")
	}
}

func TestCreateGroupValidatesMembers(t *testing.T) {
	doc := &Document{Boards: []BoardConfig{{ID: "b1", IP: "10.0.0.1"}}}
	s := &Store{}
	if err := s.CreateGroup(doc, GroupConfig{ID: "g1", Members: []string{"ghost"}}); err == nil {
		t.Fatal("expected validation error for unknown member")
	}
	if err := s.CreateGroup(doc, GroupConfig{ID: "g1", Members: []string{"b1"}}); err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
}

func TestNewWledPresetHasUniqueIDAndTimestamp(t *testing.T) {
	p1 := NewWledPreset("scene-a", 1, PresetState{On: true})
	p2 := NewWledPreset("scene-b", 2, PresetState{On: false})
	if p1.ID == "" || p2.ID == "" || p1.ID == p2.ID {
		t.Fatalf("expected distinct non-empty ids, got %q and %q", p1.ID, p2.ID)
	}
	if p1.CreatedAt == "" {
		t.Fatal("expected non-empty CreatedAt")
	}
}
