package refcheck

import (
	"fmt"

	"github.com/loom-lang/loom/internal/diag"
	"github.com/loom-lang/loom/internal/ir"
)

// writeRule is one row of the assignment rule table for a Relaxed
// receiver: the legal source kinds for a field of the row's declared
// kind, and the kind actually recorded in the slot.
type writeRule struct {
	sources []ir.RefKind
	stored  ir.RefKind
}

func (wr writeRule) permits(k ir.RefKind) bool {
	for _, s := range wr.sources {
		if s == k {
			return true
		}
	}
	return false
}

// relaxedWriteRules is the field-assignment table for Relaxed receivers.
// Exclusive and Shared receivers delegate entirely to the base checker.
//
// An Exclusive-declared field stores Relaxed even from an Exclusive
// source: two independent receivers of the same group must never each
// extract an exclusive handle to the same field value. A Shared-declared
// field takes an implicit shared borrow from an Exclusive source; the
// source stays borrowed for the remaining lifetime of the owning arena,
// deliberately coarse.
var relaxedWriteRules = map[ir.FieldKind]writeRule{
	ir.FieldExclusive: {
		sources: []ir.RefKind{ir.KindExclusive, ir.KindRelaxed},
		stored:  ir.KindRelaxed,
	},
	ir.FieldShared: {
		sources: []ir.RefKind{ir.KindRelaxed, ir.KindRelaxedWeak, ir.KindShared, ir.KindExclusive},
		stored:  ir.KindShared,
	},
}

func (c *funcChecker) checkFieldWrite(sc *scope, st *ir.FieldWriteStmt) {
	dst, ok := c.lookup(sc, st.Dst, st.Span)
	if !ok {
		return
	}
	src, ok := c.lookup(sc, st.Src, st.Span)
	if !ok {
		return
	}
	if dst.IsValue {
		c.diags.Report(diag.KindMismatch, st.Span, "field write through a plain value")
		return
	}

	switch dst.Kind {
	case ir.KindExclusive, ir.KindShared:
		// Base checker territory; track the slot when the target is known
		// so later stored-kind queries stay accurate, validate nothing.
		// A relaxed source keeps its kind in the slot: reachability must
		// still see it behind an ordinary receiver.
		if obj, field, ok := c.resolveFieldQuiet(dst, st.Field); ok {
			stored := declaredStoreKind(field.Kind)
			if !src.IsValue && src.Kind.IsRelaxed() {
				stored = src.Kind
			}
			c.recordSlot(obj.Slot(field.Name), src, stored)
		}
		return
	case ir.KindRelaxedWeak:
		c.reportRef(dst, diag.KindMismatch, st.Span, "field write through read-only relaxed-weak reference")
		return
	}

	obj, field, ok := c.resolveField(dst, st.Field, st.Span)
	if !ok {
		return
	}
	slot := obj.Slot(field.Name)

	point := c.points.stmt[st]
	c.phases.RecordUse(dst.ID, point, st.Span, "field write after phase interval closed")

	if c.groups.State(dst.Group) == Frozen {
		c.reportRef(dst, diag.AliasingAmbiguity, st.Span, "field write while borrow group frozen")
		return
	}

	if field.Kind == ir.FieldValue {
		if !src.IsValue {
			c.reportRef(dst, diag.KindMismatch, st.Span, "reference stored into value-declared field")
			return
		}
		slot.Set = true
		slot.IsValue = true
		slot.Extracted = false
		return
	}

	if src.IsValue {
		c.reportRef(dst, diag.KindMismatch, st.Span, "plain value stored into reference-declared field")
		return
	}

	row := relaxedWriteRules[field.Kind]
	if !row.permits(src.Kind) {
		c.reportRef(dst, diag.KindMismatch, st.Span,
			fmt.Sprintf("%s reference is not a legal source for %s field", src.Kind, field.Kind))
		return
	}

	if src.Kind == ir.KindRelaxed {
		c.phases.RecordUse(src.ID, point, st.Span, "assignment source after phase interval closed")
		c.phases.RecordEdge(src.ID, dst.ID, st.Span)
	}
	if src.Kind == ir.KindExclusive {
		switch field.Kind {
		case ir.FieldExclusive:
			// Forced Exclusive -> Relaxed on store: irreversible.
			src.Multiplied = true
		case ir.FieldShared:
			// Implicit shared borrow, held until the arena dies.
			src.Borrowed = true
		}
	}

	c.recordSlot(slot, src, row.stored)
}

func (c *funcChecker) checkFieldRead(sc *scope, st *ir.FieldReadStmt) {
	src, ok := c.lookup(sc, st.Src, st.Span)
	if !ok {
		return
	}
	if src.IsValue {
		c.diags.Report(diag.KindMismatch, st.Span, "field read through a plain value")
		return
	}

	if !src.Relaxed() {
		// Delegated read. When the target is untracked (a parameter, a
		// call result) the read still binds, conservatively read-only.
		obj, field, ok := c.resolveFieldQuiet(src, st.Field)
		if !ok {
			sc.bind(c.newRef(st.Dst, ir.KindShared, NoHandle, src.Region))
			return
		}
		slot := obj.Slot(field.Name)
		if field.Kind == ir.FieldValue {
			c.bindValue(sc, st.Dst)
			return
		}
		kind := fieldReadKind(src.Kind, field.Kind)
		if slot.Set && !slot.IsValue && slot.Kind.IsRelaxed() {
			// A relaxed value smuggled into the slot stays relaxed.
			kind = slot.Kind
		}
		dst := c.newRef(st.Dst, kind, slot.Target, src.Region)
		if kind.IsRelaxed() {
			dst.Group = c.groups.NewGroup(dst.ID)
			c.phases.Open(dst.ID, c.points.stmt[st], sc.end)
			c.phases.Derive(dst.ID, slot.By)
		}
		sc.bind(dst)
		return
	}

	obj, field, ok := c.resolveField(src, st.Field, st.Span)
	if !ok {
		return
	}
	slot := obj.Slot(field.Name)
	if slot.Extracted {
		c.reportRef(src, diag.KindMismatch, st.Span, "read of extracted field")
		return
	}

	if field.Kind == ir.FieldValue {
		// Direct read, no kind conversion. Copy-reads stay legal even
		// while the group is frozen; only extraction is restricted.
		c.bindValue(sc, st.Dst)
		return
	}

	kind := fieldReadKind(src.Kind, field.Kind)
	dst := c.newRef(st.Dst, kind, slot.Target, src.Region)
	if kind.IsRelaxed() {
		end := sc.end
		if iv, ok := c.phases.Interval(src.ID); ok {
			// The result aliases structure the receiver can reach, so its
			// phase must not outlast the receiver's.
			end = iv.End
		}
		dst.Group = c.groups.NewGroup(dst.ID)
		c.phases.Open(dst.ID, c.points.stmt[st], end)
		c.phases.Derive(dst.ID, src.ID)
	}
	sc.bind(dst)
}

func (c *funcChecker) checkExtract(sc *scope, st *ir.ExtractStmt) {
	src, ok := c.lookup(sc, st.Src, st.Span)
	if !ok {
		return
	}
	if src.IsValue {
		c.diags.Report(diag.KindMismatch, st.Span, "field extraction through a plain value")
		return
	}

	if !src.Relaxed() {
		// Ordinary receivers: move-out is the base checker's business.
		c.bindValue(sc, st.Dst)
		return
	}

	obj, field, ok := c.resolveField(src, st.Field, st.Span)
	if !ok {
		return
	}
	if field.Kind != ir.FieldValue {
		c.reportRef(src, diag.KindMismatch, st.Span, "extraction of reference-declared field")
		return
	}

	c.phases.RecordUse(src.ID, c.points.stmt[st], st.Span, "field extraction after phase interval closed")

	if c.groups.State(src.Group) == Frozen {
		c.reportRef(src, diag.AliasingAmbiguity, st.Span, "field extraction while borrow group frozen")
		return
	}
	if c.oracle.ObjectBorrowed(uint64(src.Target)) {
		c.reportRef(src, diag.AliasingAmbiguity, st.Span, "field extraction while object borrowed under ordinary rules")
		return
	}

	obj.Slot(field.Name).Extracted = true
	c.bindValue(sc, st.Dst)
}

func (c *funcChecker) recordSlot(slot *Slot, src *Reference, stored ir.RefKind) {
	slot.Set = true
	slot.Extracted = false
	if src.IsValue {
		slot.IsValue = true
		slot.Target = NoHandle
		return
	}
	slot.IsValue = false
	slot.Kind = stored
	slot.Target = src.Target
	slot.By = src.ID
}

// declaredStoreKind maps a field's declared kind to the kind stored by an
// ordinary (non-relaxed) receiver write.
func declaredStoreKind(fk ir.FieldKind) ir.RefKind {
	if fk == ir.FieldExclusive {
		return ir.KindExclusive
	}
	return ir.KindShared
}
