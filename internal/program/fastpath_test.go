// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package program

import (
	"testing"
)

func TestResolveGroupBroadcastUsesMemberUniverse(t *testing.T) {
	doc := testDoc()
	group := doc.Groups[0]
	online := map[string]bool{"10.0.0.1": true, "10.0.0.2": true}

	universe, ips, err := resolveGroupBroadcast(doc, group, online)
	if err != nil {
		t.Fatalf("resolveGroupBroadcast: %v", err)
	}
	if universe != 1 {
		t.Fatalf("universe = %d, want 1", universe)
	}
	if len(ips) != 2 {
		t.Fatalf("ips = %v, want 2 members", ips)
	}
}

func TestResolveGroupBroadcastDropsOfflineMembers(t *testing.T) {
	doc := testDoc()
	group := doc.Groups[0]
	online := map[string]bool{"10.0.0.1": true} // board-2 offline

	_, ips, err := resolveGroupBroadcast(doc, group, online)
	if err != nil {
		t.Fatalf("resolveGroupBroadcast: %v", err)
	}
	if len(ips) != 1 || ips[0] != "10.0.0.1" {
		t.Fatalf("ips = %v, want only 10.0.0.1", ips)
	}
}

func TestResolveGroupBroadcastErrorsWhenAllMembersOffline(t *testing.T) {
	doc := testDoc()
	group := doc.Groups[0]
	online := map[string]bool{}

	if _, _, err := resolveGroupBroadcast(doc, group, online); err == nil {
		t.Fatal("expected error when no members are online")
	}
}

func TestResolveGroupBroadcastHonorsUniverseOverride(t *testing.T) {
	doc := testDoc()
	override := uint16(7)
	doc.Groups[0].Universe = &override
	online := map[string]bool{"10.0.0.1": true, "10.0.0.2": true}

	universe, _, err := resolveGroupBroadcast(doc, doc.Groups[0], online)
	if err != nil {
		t.Fatalf("resolveGroupBroadcast: %v", err)
	}
	if universe != 7 {
		t.Fatalf("universe = %d, want override 7", universe)
	}
}

func TestFindGroupUnknown(t *testing.T) {
	doc := testDoc()
	if _, ok := findGroup(doc, "missing"); ok {
		t.Fatal("findGroup should report missing group as not found")
	}
}

func TestFastPathSendUnknownGroup(t *testing.T) {
	fp := NewFastPath(nil)
	doc := testDoc()
	err := fp.Send(doc, GroupCommand{GroupID: "missing", Color: [3]uint8{1, 2, 3}, Brightness: 255}, nil)
	if err == nil {
		t.Fatal("expected error for unknown group")
	}
}
