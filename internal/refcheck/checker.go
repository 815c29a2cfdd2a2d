package refcheck

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/loom-lang/loom/internal/diag"
	"github.com/loom-lang/loom/internal/ir"
	"github.com/loom-lang/loom/internal/lifetime"
	"github.com/loom-lang/loom/internal/position"
)

// Options configures one checker instance.
type Options struct {
	// Parallelism bounds the number of function bodies analyzed
	// concurrently. Zero means one worker per CPU.
	Parallelism int
}

// Checker runs the reference-kind analysis over one compilation unit.
// All mutable analysis state lives in per-function contexts created
// during Check; a Checker itself is read-only after New.
type Checker struct {
	mod    *ir.Module
	oracle lifetime.Oracle
	opts   Options
}

// Result is the outcome of one compilation-unit pass.
type Result struct {
	Diagnostics []diag.Diagnostic
	Passed      bool
}

// New creates a checker for the module, querying the given base-checker
// oracle for lifetime facts.
func New(mod *ir.Module, oracle lifetime.Oracle, opts Options) (*Checker, error) {
	if mod == nil {
		return nil, fmt.Errorf("refcheck: nil module")
	}
	if oracle == nil {
		return nil, fmt.Errorf("refcheck: nil lifetime oracle")
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = runtime.NumCPU()
	}
	return &Checker{mod: mod, oracle: oracle, opts: opts}, nil
}

// Check analyzes every function of the module. Function bodies are
// independent, so they run under one errgroup; diagnostics come back in
// a deterministic order regardless of schedule: ordered by source span,
// with the per-function collectors merged in declaration order so ties
// on one span are stable.
func (c *Checker) Check(ctx context.Context) (*Result, error) {
	collectors := make([]*diag.Collector, len(c.mod.Funcs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Parallelism)
	for i, fn := range c.mod.Funcs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			collectors[i] = newFuncChecker(c.mod, c.oracle, fn).run()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := diag.NewCollector()
	for _, col := range collectors {
		merged.Merge(col)
	}
	out := merged.Diagnostics()
	return &Result{Diagnostics: out, Passed: len(out) == 0}, nil
}

// pointMap numbers every statement of a function body and assigns each
// block an end point, so phase intervals have a total order to live in.
type pointMap struct {
	stmt     map[ir.Stmt]int
	blockEnd map[*ir.Block]int
}

func numberFunction(fn *ir.Function) *pointMap {
	pm := &pointMap{
		stmt:     make(map[ir.Stmt]int),
		blockEnd: make(map[*ir.Block]int),
	}
	n := 0
	var walk func(b *ir.Block)
	walk = func(b *ir.Block) {
		for _, st := range b.Stmts {
			pm.stmt[st] = n
			n++
			switch s := st.(type) {
			case *ir.BlockStmt:
				if s.Block != nil {
					walk(s.Block)
				}
			case *ir.BorrowStmt:
				if s.Body != nil {
					walk(s.Body)
				}
			}
		}
		pm.blockEnd[b] = n
		n++
	}
	if fn.Body != nil {
		walk(fn.Body)
	}
	return pm
}

// funcChecker is the analysis context for one function body: the group
// table, interval tracker, object store and diagnostics of exactly one
// pass, threaded explicitly through every check.
type funcChecker struct {
	mod     *ir.Module
	oracle  lifetime.Oracle
	fn      *ir.Function
	diags   *diag.Collector
	store   *Store
	groups  *Groups
	phases  *Tracker
	points  *pointMap
	nextRef RefID
	aborted bool
}

func newFuncChecker(mod *ir.Module, oracle lifetime.Oracle, fn *ir.Function) *funcChecker {
	return &funcChecker{
		mod:    mod,
		oracle: oracle,
		fn:     fn,
		diags:  diag.NewCollector(),
		store:  NewStore(),
		groups: NewGroups(),
		phases: NewTracker(),
		points: numberFunction(fn),
	}
}

func (c *funcChecker) run() *diag.Collector {
	c.checkSignature()
	if c.fn.Body == nil {
		return c.diags
	}

	sc := newScope(nil, c.points.blockEnd[c.fn.Body])
	for _, p := range c.fn.Params {
		if p.Kind.IsRelaxed() {
			// Flagged by the signature check; not bound, so every use
			// inside the body surfaces as an unknown reference rather
			// than cascading phase errors.
			continue
		}
		sc.bind(c.newRef(p.Name, p.Kind, NoHandle, lifetime.NoRegion))
	}

	c.checkBlock(c.fn.Body, sc)
	c.phases.Solve(c.diags)
	return c.diags
}

func (c *funcChecker) checkBlock(b *ir.Block, sc *scope) {
	for _, st := range b.Stmts {
		if c.aborted {
			return
		}
		c.checkStmt(st, sc)
	}
}

func (c *funcChecker) checkStmt(st ir.Stmt, sc *scope) {
	switch s := st.(type) {
	case *ir.NewArenaStmt:
		sc.arenas[s.Name] = &Arena{Name: s.Name, Region: s.Region}
	case *ir.AllocStmt:
		c.checkAlloc(sc, s)
	case *ir.CopyStmt:
		c.checkCopy(sc, s)
	case *ir.ConvertStmt:
		c.checkConvert(sc, s)
	case *ir.FieldReadStmt:
		c.checkFieldRead(sc, s)
	case *ir.FieldWriteStmt:
		c.checkFieldWrite(sc, s)
	case *ir.ExtractStmt:
		c.checkExtract(sc, s)
	case *ir.BorrowStmt:
		c.checkBorrow(sc, s)
	case *ir.CallStmt:
		c.checkCall(sc, s)
	case *ir.SpawnStmt:
		c.checkSpawn(sc, s)
	case *ir.SendStmt:
		c.checkSend(sc, s)
	case *ir.ReturnStmt:
		c.checkReturn(sc, s)
	case *ir.BlockStmt:
		if s.Block != nil {
			c.checkBlock(s.Block, newScope(sc, c.points.blockEnd[s.Block]))
		}
	}
}

func (c *funcChecker) checkAlloc(sc *scope, st *ir.AllocStmt) {
	arena, ok := sc.lookupArena(st.Arena)
	if !ok {
		c.diags.Report(diag.KindMismatch, st.Span,
			fmt.Sprintf("allocation from unknown arena %q", st.Arena))
		return
	}
	td, ok := c.mod.TypeByID(st.Type)
	if !ok {
		c.diags.Report(diag.KindMismatch, st.Span, "allocation of unknown type")
		return
	}
	if td.HasFinalizer && st.Kind.IsRelaxed() {
		c.diags.Report(diag.KindMismatch, st.Span,
			"finalizer-carrying type allocated through relaxed reference")
	}

	obj := c.store.Alloc(td.ID, arena.Region)
	arena.Objects = append(arena.Objects, obj.Handle)

	ref := c.newRef(st.Dst, st.Kind, obj.Handle, arena.Region)
	if st.Kind.IsRelaxed() {
		ref.Group = c.groups.NewGroup(ref.ID)
		c.phases.Open(ref.ID, c.points.stmt[st], sc.end)
	}
	sc.bind(ref)
}

func (c *funcChecker) checkCopy(sc *scope, st *ir.CopyStmt) {
	src, ok := c.lookup(sc, st.Src, st.Span)
	if !ok {
		return
	}
	if src.IsValue {
		c.bindValue(sc, st.Dst)
		return
	}

	if existing, ok := sc.lookup(st.Dst); ok && !existing.IsValue {
		// Reassignment between existing locals.
		if existing.Kind != src.Kind {
			c.diags.Report(diag.KindMismatch, st.Span,
				fmt.Sprintf("copy between %s and %s references", src.Kind, existing.Kind))
			return
		}
		if src.Relaxed() {
			c.phases.RecordUse(src.ID, c.points.stmt[st], st.Span, "relaxed copy after phase interval closed")
			c.mergeGroups(existing, src, st.Span)
		}
		existing.Target = src.Target
		existing.Region = src.Region
		return
	}

	dst := c.newRef(st.Dst, src.Kind, src.Target, src.Region)
	dst.Multiplied = src.Multiplied
	if src.Relaxed() {
		// A relaxed copy keeps interval and group: a copy with a shorter
		// interval could otherwise escape to Shared while the original,
		// same group, was still logically live.
		c.phases.RecordUse(src.ID, c.points.stmt[st], st.Span, "relaxed copy after phase interval closed")
		c.phases.Share(dst.ID, src.ID)
		c.phases.Derive(dst.ID, src.ID)
		c.groups.Join(src.Group, dst.ID)
		dst.Group = src.Group
	}
	sc.bind(dst)
}

// mergeGroups unifies the borrow groups of two relaxed references. A
// merge of two groups that both carry prior violations is contradictory:
// continuing would only cascade, so the function's analysis stops.
func (c *funcChecker) mergeGroups(a, b *Reference, span position.Span) {
	if c.groups.SameGroup(a.Group, b.Group) {
		return
	}
	if c.groups.Tainted(a.Group) && c.groups.Tainted(b.Group) {
		c.diags.Report(diag.AliasingAmbiguity, span, "contradictory borrow-group merge")
		c.aborted = true
		return
	}
	merged := c.groups.Union(a.Group, b.Group)
	a.Group = merged
	b.Group = merged
}

func (c *funcChecker) checkBorrow(sc *scope, st *ir.BorrowStmt) {
	src, ok := c.lookup(sc, st.Src, st.Span)
	if !ok {
		c.walkBorrowBody(sc, st, nil)
		return
	}
	if src.IsValue {
		c.diags.Report(diag.KindMismatch, st.Span, "borrow through a plain value")
		c.walkBorrowBody(sc, st, nil)
		return
	}

	var bound *Reference
	frozen := false

	if st.Field == "" {
		if st.Exclusive {
			if src.Relaxed() {
				c.reportRef(src, diag.KindMismatch, st.Span, "no conversion to exclusive")
			} else if src.Multiplied {
				c.reportRef(src, diag.KindMismatch, st.Span, "multiplied reference used in exclusive position")
			}
			// Ordinary exclusive borrows are the base checker's business.
			if st.Dst != "" && !src.Relaxed() {
				bound = c.newRef(st.Dst, ir.KindExclusive, src.Target, src.Region)
			}
		} else {
			if src.Relaxed() {
				// A read-only borrow through any member freezes the whole
				// group for the borrow's scope.
				c.groups.Freeze(src.Group)
				frozen = true
				if st.Dst != "" {
					bound = c.newRef(st.Dst, ir.KindRelaxedWeak, src.Target, src.Region)
					bound.Group = c.groups.NewGroup(bound.ID)
					c.phases.Open(bound.ID, c.points.stmt[st], c.borrowEnd(st, sc))
					c.phases.Derive(bound.ID, src.ID)
				}
			} else if st.Dst != "" {
				bound = c.newRef(st.Dst, ir.KindShared, src.Target, src.Region)
			}
		}
	} else {
		bound, frozen = c.checkFieldBorrow(sc, st, src)
	}

	c.walkBorrowBody(sc, st, bound)
	if frozen {
		c.groups.Thaw(src.Group)
	}
}

// checkFieldBorrow handles a borrow of a named field. The interesting
// case is an exclusive borrow of a field whose stored kind stayed
// Relaxed after a relaxed-receiver store: the declared kind promises
// Exclusive, the slot does not deliver it.
func (c *funcChecker) checkFieldBorrow(sc *scope, st *ir.BorrowStmt, src *Reference) (*Reference, bool) {
	var (
		obj   *Object
		field ir.Field
		ok    bool
	)
	if src.Relaxed() {
		obj, field, ok = c.resolveField(src, st.Field, st.Span)
		if !ok {
			return nil, false
		}
	} else {
		// Untracked delegated borrow: nothing to validate here.
		obj, field, ok = c.resolveFieldQuiet(src, st.Field)
		if !ok {
			if st.Dst == "" {
				return nil, false
			}
			kind := ir.KindShared
			if st.Exclusive {
				kind = ir.KindExclusive
			}
			return c.newRef(st.Dst, kind, NoHandle, src.Region), false
		}
	}
	slot := obj.Slot(field.Name)

	stored := declaredStoreKind(field.Kind)
	if slot.Set && !slot.IsValue {
		stored = slot.Kind
	} else if src.Relaxed() && field.Kind != ir.FieldValue {
		stored = fieldReadKind(src.Kind, field.Kind)
	}

	if st.Exclusive {
		if field.Kind == ir.FieldValue {
			c.reportRef(src, diag.KindMismatch, st.Span, "exclusive borrow of value-declared field")
			return nil, false
		}
		if stored != ir.KindExclusive {
			c.reportRef(src, diag.KindMismatch, st.Span,
				fmt.Sprintf("stored kind is %s, exclusive borrow unavailable", stored))
			return nil, false
		}
		if st.Dst != "" {
			return c.newRef(st.Dst, ir.KindExclusive, slot.Target, src.Region), false
		}
		return nil, false
	}

	frozen := false
	if src.Relaxed() {
		c.groups.Freeze(src.Group)
		frozen = true
	}
	if st.Dst == "" {
		return nil, frozen
	}
	if field.Kind == ir.FieldValue {
		bound := &Reference{Name: st.Dst, ID: c.allocRefID(), IsValue: true}
		return bound, frozen
	}
	kind := ir.KindShared
	if src.Relaxed() {
		kind = ir.KindRelaxedWeak
	}
	bound := c.newRef(st.Dst, kind, slot.Target, src.Region)
	if kind.IsRelaxed() {
		bound.Group = c.groups.NewGroup(bound.ID)
		c.phases.Open(bound.ID, c.points.stmt[st], c.borrowEnd(st, sc))
		c.phases.Derive(bound.ID, src.ID)
	}
	return bound, frozen
}

// borrowEnd is the phase end point for references bound by a borrow: the
// borrow body's end when there is one, the enclosing scope's otherwise.
func (c *funcChecker) borrowEnd(st *ir.BorrowStmt, sc *scope) int {
	if st.Body != nil {
		return c.points.blockEnd[st.Body]
	}
	return sc.end
}

func (c *funcChecker) walkBorrowBody(sc *scope, st *ir.BorrowStmt, bound *Reference) {
	if st.Body == nil {
		return
	}
	inner := newScope(sc, c.points.blockEnd[st.Body])
	if bound != nil {
		inner.bind(bound)
	}
	c.checkBlock(st.Body, inner)
}

// lookup resolves a name, reporting unknown references as graph misuse.
func (c *funcChecker) lookup(sc *scope, name string, span position.Span) (*Reference, bool) {
	ref, ok := sc.lookup(name)
	if !ok {
		c.diags.Report(diag.KindMismatch, span, fmt.Sprintf("unknown reference %q", name))
		return nil, false
	}
	return ref, true
}

// resolveField resolves the receiver's target object and the declared
// field, reporting malformed graphs as KindMismatch.
func (c *funcChecker) resolveField(recv *Reference, name string, span position.Span) (*Object, ir.Field, bool) {
	obj, ok := c.store.Object(recv.Target)
	if !ok {
		c.diags.Report(diag.KindMismatch, span,
			fmt.Sprintf("reference %q has no tracked target object", recv.Name))
		return nil, ir.Field{}, false
	}
	td, ok := c.mod.TypeByID(obj.Type)
	if !ok {
		c.diags.Report(diag.KindMismatch, span, "object of unknown type")
		return nil, ir.Field{}, false
	}
	field, ok := td.FieldNamed(name)
	if !ok {
		c.diags.Report(diag.KindMismatch, span,
			fmt.Sprintf("type %s has no field %q", td.Name, name))
		return nil, ir.Field{}, false
	}
	return obj, field, true
}

// resolveFieldQuiet is resolveField without diagnostics, for delegated
// receivers whose targets the checker may not track.
func (c *funcChecker) resolveFieldQuiet(recv *Reference, name string) (*Object, ir.Field, bool) {
	obj, ok := c.store.Object(recv.Target)
	if !ok {
		return nil, ir.Field{}, false
	}
	td, ok := c.mod.TypeByID(obj.Type)
	if !ok {
		return nil, ir.Field{}, false
	}
	field, ok := td.FieldNamed(name)
	if !ok {
		return nil, ir.Field{}, false
	}
	return obj, field, true
}

func (c *funcChecker) allocRefID() RefID {
	id := c.nextRef
	c.nextRef++
	return id
}

func (c *funcChecker) newRef(name string, kind ir.RefKind, target Handle, region lifetime.RegionID) *Reference {
	return &Reference{
		Name:   name,
		ID:     c.allocRefID(),
		Kind:   kind,
		Target: target,
		Region: region,
	}
}

func (c *funcChecker) bindValue(sc *scope, name string) {
	if name == "" {
		return
	}
	sc.bind(&Reference{Name: name, ID: c.allocRefID(), IsValue: true})
}

// reportRef reports a diagnostic against a reference and taints its
// group, so a later merge over the same wreckage is recognized as
// contradictory.
func (c *funcChecker) reportRef(ref *Reference, kind diag.Kind, span position.Span, rule string) {
	c.diags.Report(kind, span, rule)
	if ref.Relaxed() {
		c.groups.Taint(ref.Group)
	}
}
