// Package lifetime is the facade over the base borrow checker's resolved
// lifetime and region information. The base checker for ordinary exclusive
// and shared references runs before the reference-kind checker; this
// package only exposes the queries that checker needs, it never recomputes
// regions itself.
package lifetime

import "fmt"

// RegionID identifies one resolved lifetime region.
type RegionID int

// NoRegion is the zero region, used where a reference carries no
// meaningful region of its own.
const NoRegion RegionID = 0

// Oracle is the query surface of the base checker.
type Oracle interface {
	// Outlives reports whether region a lives at least as long as region b.
	Outlives(a, b RegionID) bool
	// ObjectBorrowed reports whether the object with the given identity is
	// currently borrowed under the ordinary exclusive/shared rules.
	ObjectBorrowed(obj uint64) bool
}

// Table is a concrete Oracle backed by the region tree the base checker
// resolved. Hosts hand one to the reference-kind checker; tests build
// small ones directly.
type Table struct {
	parent   map[RegionID]RegionID
	borrowed map[uint64]bool
	next     RegionID
}

// NewTable creates an empty region table. Region ids start above NoRegion.
func NewTable() *Table {
	return &Table{
		parent:   make(map[RegionID]RegionID),
		borrowed: make(map[uint64]bool),
		next:     NoRegion + 1,
	}
}

// AddRegion records a region nested inside parent and returns its id.
// Pass NoRegion for a root region.
func (t *Table) AddRegion(parent RegionID) RegionID {
	id := t.next
	t.next++
	t.parent[id] = parent
	return id
}

// SetBorrowed records the ordinary-rules borrow state of an object.
func (t *Table) SetBorrowed(obj uint64, borrowed bool) {
	t.borrowed[obj] = borrowed
}

// Outlives reports whether a is an ancestor of b (or b itself) in the
// region tree: an enclosing region lives at least as long as anything
// nested inside it.
func (t *Table) Outlives(a, b RegionID) bool {
	if a == b {
		return true
	}
	for cur := b; cur != NoRegion; {
		p, ok := t.parent[cur]
		if !ok {
			return false
		}
		if p == a {
			return true
		}
		cur = p
	}
	return false
}

// ObjectBorrowed reports the recorded ordinary-rules borrow state.
func (t *Table) ObjectBorrowed(obj uint64) bool {
	return t.borrowed[obj]
}

// Validate checks the region tree for cycles, which would indicate a
// corrupted handoff from the base checker.
func (t *Table) Validate() error {
	for id := range t.parent {
		seen := map[RegionID]bool{id: true}
		for cur := t.parent[id]; cur != NoRegion; cur = t.parent[cur] {
			if seen[cur] {
				return fmt.Errorf("region %d participates in a parent cycle", id)
			}
			seen[cur] = true
		}
	}
	return nil
}
