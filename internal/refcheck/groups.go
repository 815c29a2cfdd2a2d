package refcheck

import (
	set "github.com/hashicorp/go-set/v3"
)

// GroupID identifies one borrow group (a color).
type GroupID int

// BorrowState is the per-group state machine.
type BorrowState int

const (
	// Free: no member is currently lent out read-only.
	Free BorrowState = iota
	// Frozen: some member has an outstanding read-only borrow; field
	// extraction and relaxed writes through any member are rejected.
	Frozen
)

func (bs BorrowState) String() string {
	switch bs {
	case Free:
		return "free"
	case Frozen:
		return "frozen"
	default:
		return "unknown"
	}
}

type groupData struct {
	members *set.Set[RefID]
	borrows int // outstanding read-only borrow count
	tainted bool
}

// Groups is the borrow group resolver: a union-find over reference
// identities. Two references share a group when one was created as a
// direct relaxed copy of the other; a borrow-state transition on any
// member is visible to every member simultaneously.
type Groups struct {
	parent []GroupID
	size   []int
	data   []*groupData
}

// NewGroups creates an empty resolver.
func NewGroups() *Groups {
	return &Groups{}
}

// NewGroup creates a fresh group containing just the given reference.
func (g *Groups) NewGroup(ref RefID) GroupID {
	id := GroupID(len(g.parent))
	g.parent = append(g.parent, id)
	g.size = append(g.size, 1)
	members := set.New[RefID](1)
	members.Insert(ref)
	g.data = append(g.data, &groupData{members: members})
	return id
}

// Find resolves a group id to its current representative, compressing
// paths as it goes.
func (g *Groups) Find(id GroupID) GroupID {
	for g.parent[id] != id {
		g.parent[id] = g.parent[g.parent[id]]
		id = g.parent[id]
	}
	return id
}

// Join adds a reference to an existing group.
func (g *Groups) Join(id GroupID, ref RefID) {
	g.data[g.Find(id)].members.Insert(ref)
}

// Union merges two groups. Borrow counts add: a group frozen on either
// side stays frozen for the merged membership. Taint also survives the
// merge, which is what makes a contradictory merge detectable.
func (g *Groups) Union(a, b GroupID) GroupID {
	ra, rb := g.Find(a), g.Find(b)
	if ra == rb {
		return ra
	}
	if g.size[ra] < g.size[rb] {
		ra, rb = rb, ra
	}
	g.parent[rb] = ra
	g.size[ra] += g.size[rb]

	da, db := g.data[ra], g.data[rb]
	da.members.InsertSet(db.members)
	da.borrows += db.borrows
	da.tainted = da.tainted || db.tainted
	g.data[rb] = nil
	return ra
}

// State reports the group's borrow state.
func (g *Groups) State(id GroupID) BorrowState {
	if g.data[g.Find(id)].borrows > 0 {
		return Frozen
	}
	return Free
}

// Freeze records a read-only borrow taken through any member.
func (g *Groups) Freeze(id GroupID) {
	g.data[g.Find(id)].borrows++
}

// Thaw releases one read-only borrow; the group reverts to Free when the
// count reaches zero.
func (g *Groups) Thaw(id GroupID) {
	d := g.data[g.Find(id)]
	if d.borrows > 0 {
		d.borrows--
	}
}

// Members returns the reference identities in the group.
func (g *Groups) Members(id GroupID) []RefID {
	return g.data[g.Find(id)].members.Slice()
}

// SameGroup reports whether two group ids resolve to one group.
func (g *Groups) SameGroup(a, b GroupID) bool {
	return g.Find(a) == g.Find(b)
}

// Taint marks a group as having had a violation reported against one of
// its members.
func (g *Groups) Taint(id GroupID) {
	g.data[g.Find(id)].tainted = true
}

// Tainted reports whether the group carries a prior violation.
func (g *Groups) Tainted(id GroupID) bool {
	return g.data[g.Find(id)].tainted
}
