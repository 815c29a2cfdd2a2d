package refcheck

import (
	"github.com/loom-lang/loom/internal/ir"
	"github.com/loom-lang/loom/internal/lifetime"
)

// Handle is an arena-relative object identity. Objects are integer
// handles into the store, never self-referential structures, so cyclic
// graphs cost nothing to model.
type Handle int

// NoHandle marks the absence of an object identity.
const NoHandle Handle = -1

// Slot is the checker's view of one object field: what kind of value is
// currently stored there and which reference stored it.
type Slot struct {
	Target    Handle    // referenced object, NoHandle for plain values
	By        RefID     // reference that performed the store
	Kind      ir.RefKind
	Set       bool
	IsValue   bool
	Extracted bool
}

// Object is one allocated object during analysis.
type Object struct {
	slots  map[string]*Slot
	Handle Handle
	Type   ir.TypeID
	Region lifetime.RegionID
}

// Slot returns the tracked slot for the named field, creating it on
// first touch.
func (o *Object) Slot(field string) *Slot {
	s, ok := o.slots[field]
	if !ok {
		s = &Slot{Target: NoHandle}
		o.slots[field] = s
	}
	return s
}

// Store owns every object of one function analysis. Allocation is a bump
// of the handle counter, the same discipline the real arena allocator
// uses for memory: no individual free, everything in an arena releases
// together.
type Store struct {
	objects []*Object
}

// NewStore creates an empty object store.
func NewStore() *Store {
	return &Store{objects: make([]*Object, 0, 16)}
}

// Alloc creates an object of the given type inside the given region.
func (s *Store) Alloc(t ir.TypeID, region lifetime.RegionID) *Object {
	obj := &Object{
		Handle: Handle(len(s.objects)),
		Type:   t,
		Region: region,
		slots:  make(map[string]*Slot),
	}
	s.objects = append(s.objects, obj)
	return obj
}

// Object resolves a handle.
func (s *Store) Object(h Handle) (*Object, bool) {
	if h < 0 || int(h) >= len(s.objects) {
		return nil, false
	}
	return s.objects[h], true
}

// Arena groups objects sharing one lifetime. Its region id comes resolved
// from the base checker; the arena releases with its owning scope.
type Arena struct {
	Name    string
	Objects []Handle
	Region  lifetime.RegionID
}
