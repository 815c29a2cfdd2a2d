package refcheck

import "testing"

func TestGroupFreezePropagation(t *testing.T) {
	g := NewGroups()
	first := g.NewGroup(1)
	second := g.NewGroup(2)
	merged := g.Union(first, second)

	if g.State(merged) != Free {
		t.Fatal("Fresh merged group should be free")
	}

	// A read-only borrow through either member freezes the whole group.
	g.Freeze(first)
	if g.State(second) != Frozen {
		t.Error("Freeze through one member should freeze the other")
	}

	g.Thaw(second)
	if g.State(first) != Free {
		t.Error("Group should revert to free when the borrow count reaches zero")
	}
}

func TestGroupBorrowCount(t *testing.T) {
	g := NewGroups()
	id := g.NewGroup(1)

	g.Freeze(id)
	g.Freeze(id)
	g.Thaw(id)
	if g.State(id) != Frozen {
		t.Error("Group with an outstanding borrow should stay frozen")
	}
	g.Thaw(id)
	if g.State(id) != Free {
		t.Error("Group should be free after releasing every borrow")
	}
}

func TestGroupMembers(t *testing.T) {
	g := NewGroups()
	a := g.NewGroup(1)
	g.Join(a, 2)
	b := g.NewGroup(3)
	g.Union(a, b)

	members := g.Members(a)
	if len(members) != 3 {
		t.Fatalf("Expected 3 members, got %d", len(members))
	}
	if !g.SameGroup(a, b) {
		t.Error("Union operands should resolve to one group")
	}
}

func TestGroupTaintSurvivesUnion(t *testing.T) {
	g := NewGroups()
	a := g.NewGroup(1)
	b := g.NewGroup(2)
	g.Taint(a)

	merged := g.Union(a, b)
	if !g.Tainted(merged) {
		t.Error("Taint should survive a group merge")
	}
	if !g.Tainted(b) {
		t.Error("Taint should be visible through either merged id")
	}
}

func TestFrozenStateSurvivesUnion(t *testing.T) {
	g := NewGroups()
	a := g.NewGroup(1)
	b := g.NewGroup(2)
	g.Freeze(a)

	merged := g.Union(a, b)
	if g.State(merged) != Frozen {
		t.Error("Borrow count should carry into the merged group")
	}
}
