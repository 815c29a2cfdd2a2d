// Package refcheck implements the reference-kind checker for the Loom
// compiler. It verifies the extended reference discipline that permits
// temporary, non-exclusive mutability (the relaxed kinds) for building
// cyclic object graphs, on top of the base checker's ordinary exclusive
// and shared reference rules.
package refcheck

import "github.com/loom-lang/loom/internal/ir"

// Substitutable reports whether a reference of kind from may stand in a
// position declared as kind to without an explicit conversion. The only
// implicit direction is Exclusive degrading to Shared under borrow; the
// relaxed kinds are never implicit subtypes of anything.
func Substitutable(from, to ir.RefKind) bool {
	if from == to {
		return true
	}
	return from == ir.KindExclusive && to == ir.KindShared
}

// convAction classifies an explicit kind conversion.
type convAction int

const (
	convReject convAction = iota
	// convMultiply is Exclusive -> Relaxed: irreversible, the source is
	// tagged multiplied and never again usable in an Exclusive-only position.
	convMultiply
	// convClose is Relaxed -> Shared: legal only once the phase interval
	// is closed, which the phase tracker validates after its fixed point.
	convClose
	// convBorrow is Exclusive -> Shared: the ordinary borrow, delegated to
	// the base checker; the source is tagged borrowed.
	convBorrow
)

// classifyConversion resolves the directional conversion table of the kind
// lattice. rule names the violated rule when the action is convReject.
func classifyConversion(from, to ir.RefKind) (convAction, string) {
	switch {
	case from == ir.KindExclusive && to == ir.KindRelaxed:
		return convMultiply, ""
	case from == ir.KindExclusive && to == ir.KindShared:
		return convBorrow, ""
	case from == ir.KindRelaxed && to == ir.KindShared:
		return convClose, ""
	case to == ir.KindExclusive:
		// Central soundness rule: nothing converts back to Exclusive.
		// Multiple relaxed handles to one object would otherwise yield
		// multiple exclusive handles.
		return convReject, "no conversion to exclusive"
	case from == ir.KindRelaxedWeak:
		return convReject, "relaxed-weak reference is non-shareable"
	case from == ir.KindShared:
		return convReject, "shared reference cannot become relaxed"
	case from == ir.KindRelaxed && to == ir.KindRelaxedWeak:
		return convReject, "no conversion between relaxed kinds"
	default:
		return convReject, "no such conversion"
	}
}

// fieldReadKind gives the kind of the reference produced by reading a
// declared reference field through a receiver of the given kind. Reads
// through Exclusive and Shared receivers keep the declared kind and are
// otherwise the base checker's business.
//
// Through a relaxed receiver the declared kind is demoted: an
// Exclusive-declared field yields Relaxed so that two group members can
// never each obtain an exclusive handle to the same field value, and a
// Shared-declared field yields RelaxedWeak because the fetched value may
// itself have originated as a relaxed value elsewhere.
func fieldReadKind(receiver ir.RefKind, field ir.FieldKind) ir.RefKind {
	switch receiver {
	case ir.KindRelaxed, ir.KindRelaxedWeak:
		if field == ir.FieldExclusive && receiver == ir.KindRelaxed {
			return ir.KindRelaxed
		}
		return ir.KindRelaxedWeak
	case ir.KindExclusive:
		if field == ir.FieldExclusive {
			return ir.KindExclusive
		}
		return ir.KindShared
	default:
		return ir.KindShared
	}
}
