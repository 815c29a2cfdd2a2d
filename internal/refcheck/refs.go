package refcheck

import (
	"github.com/loom-lang/loom/internal/ir"
	"github.com/loom-lang/loom/internal/lifetime"
)

// RefID identifies one reference instance within a function analysis.
type RefID int

// Reference is the checker's record of one reference (or plain value)
// binding. Relaxed and RelaxedWeak references additionally carry a phase
// interval in the tracker and a group id in the resolver.
type Reference struct {
	Name   string
	ID     RefID
	Kind   ir.RefKind
	Target Handle
	Region lifetime.RegionID
	Group  GroupID
	// Multiplied marks a reference that underwent Exclusive -> Relaxed:
	// it can never again be used in an Exclusive-only position.
	Multiplied bool
	// Borrowed marks a reference implicitly shared-borrowed, in the
	// Exclusive-into-shared-field case for the remaining lifetime of the
	// owning arena.
	Borrowed bool
	// IsValue marks a plain value binding; Kind is meaningless for it.
	IsValue bool
}

// Relaxed reports whether the reference is of a relaxed kind.
func (r *Reference) Relaxed() bool {
	return !r.IsValue && r.Kind.IsRelaxed()
}

// scope is one lexical environment. References and arenas declared here
// die at the scope's end point.
type scope struct {
	refs   map[string]*Reference
	arenas map[string]*Arena
	parent *scope
	end    int // phase point of the scope's end
}

func newScope(parent *scope, end int) *scope {
	return &scope{
		refs:   make(map[string]*Reference),
		arenas: make(map[string]*Arena),
		parent: parent,
		end:    end,
	}
}

// lookup resolves a reference name through the scope chain.
func (s *scope) lookup(name string) (*Reference, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		if r, ok := cur.refs[name]; ok {
			return r, true
		}
	}
	return nil, false
}

// lookupArena resolves an arena name through the scope chain.
func (s *scope) lookupArena(name string) (*Arena, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		if a, ok := cur.arenas[name]; ok {
			return a, true
		}
	}
	return nil, false
}

// bind declares or shadows a reference in this scope.
func (s *scope) bind(r *Reference) {
	s.refs[r.Name] = r
}
