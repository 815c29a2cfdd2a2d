package refcheck

import (
	"fmt"

	set "github.com/hashicorp/go-set/v3"

	"github.com/loom-lang/loom/internal/diag"
	"github.com/loom-lang/loom/internal/ir"
	"github.com/loom-lang/loom/internal/lifetime"
	"github.com/loom-lang/loom/internal/position"
)

// checkSignature rejects relaxed kinds in a function's declared surface.
// Relaxed and RelaxedWeak must never appear as a parameter or return
// type; this is reported once, at the declaration, and call sites are
// checked separately.
func (c *funcChecker) checkSignature() {
	for _, p := range c.fn.Params {
		if p.Kind.IsRelaxed() {
			span := p.Span
			if !span.IsValid() {
				span = c.fn.Span
			}
			c.diags.Report(diag.CallBoundaryViolation, span,
				fmt.Sprintf("relaxed kind %s in function signature", p.Kind))
		}
	}
	if c.fn.Result != nil && c.fn.Result.Kind.IsRelaxed() {
		c.diags.Report(diag.CallBoundaryViolation, c.fn.Span,
			fmt.Sprintf("relaxed kind %s in function signature", c.fn.Result.Kind))
	}
}

func (c *funcChecker) checkConvert(sc *scope, st *ir.ConvertStmt) {
	src, ok := c.lookup(sc, st.Src, st.Span)
	if !ok {
		return
	}
	if src.IsValue {
		c.diags.Report(diag.KindMismatch, st.Span, "kind conversion of a plain value")
		return
	}

	action, rule := classifyConversion(src.Kind, st.To)
	switch action {
	case convReject:
		c.reportRef(src, diag.KindMismatch, st.Span, rule)
		return

	case convMultiply:
		src.Multiplied = true
		dst := c.newRef(st.Dst, ir.KindRelaxed, src.Target, src.Region)
		dst.Group = c.groups.NewGroup(dst.ID)
		c.phases.Open(dst.ID, c.points.stmt[st], sc.end)
		sc.bind(dst)

	case convBorrow:
		src.Borrowed = true
		sc.bind(c.newRef(st.Dst, ir.KindShared, src.Target, src.Region))

	case convClose:
		point := c.points.stmt[st]
		c.phases.RecordClose(c.reachableRelaxed(src), point, st.Span)

		region := st.Region
		if region == lifetime.NoRegion {
			region = src.Region
		}
		if obj, ok := c.store.Object(src.Target); ok && st.Region != lifetime.NoRegion {
			// Containment: the converted reference must not outlive the
			// arena that owns the structure it now shares.
			if !c.oracle.Outlives(obj.Region, st.Region) {
				c.reportRef(src, diag.IntervalStillOpen, st.Span,
					"converted shared reference outlives its originating arena")
			}
		}
		sc.bind(c.newRef(st.Dst, ir.KindShared, src.Target, region))
	}
}

func (c *funcChecker) checkCall(sc *scope, st *ir.CallStmt) {
	callee, ok := c.mod.FuncNamed(st.Callee)
	if !ok {
		c.diags.Report(diag.KindMismatch, st.Span,
			fmt.Sprintf("call to unknown function %q", st.Callee))
		return
	}
	if len(st.Args) != len(callee.Params) {
		c.diags.Report(diag.KindMismatch, st.Span,
			fmt.Sprintf("call to %s with %d arguments, want %d", callee.Name, len(st.Args), len(callee.Params)))
		return
	}

	for i, name := range st.Args {
		arg, ok := c.lookup(sc, name, st.Span)
		if !ok {
			continue
		}
		if arg.Relaxed() {
			c.reportRef(arg, diag.CallBoundaryViolation, st.Span,
				"relaxed reference passed across call boundary")
			continue
		}
		if arg.IsValue {
			continue
		}
		param := callee.Params[i]
		if param.Kind == ir.KindExclusive && arg.Multiplied {
			c.reportRef(arg, diag.KindMismatch, st.Span,
				"multiplied reference used in exclusive position")
			continue
		}
		if !param.Kind.IsRelaxed() && !Substitutable(arg.Kind, param.Kind) {
			c.reportRef(arg, diag.KindMismatch, st.Span,
				fmt.Sprintf("%s reference passed where %s expected", arg.Kind, param.Kind))
		}
	}

	if st.Dst != "" && callee.Result != nil && !callee.Result.Kind.IsRelaxed() {
		sc.bind(c.newRef(st.Dst, callee.Result.Kind, NoHandle, lifetime.NoRegion))
	}
}

func (c *funcChecker) checkSpawn(sc *scope, st *ir.SpawnStmt) {
	for _, name := range st.Args {
		c.checkConcurrencyArg(sc, name, st.Span)
	}
}

func (c *funcChecker) checkSend(sc *scope, st *ir.SendStmt) {
	c.checkConcurrencyArg(sc, st.Src, st.Span)
}

// checkConcurrencyArg rejects, unconditionally, any relaxed value crossing
// a concurrency boundary, directly or reachable through the argument's
// object graph. This is what upholds the no-data-race guarantee: the
// discipline otherwise permits uncoordinated multiple mutable handles.
func (c *funcChecker) checkConcurrencyArg(sc *scope, name string, span position.Span) {
	arg, ok := c.lookup(sc, name, span)
	if !ok || arg.IsValue {
		return
	}
	if arg.Relaxed() {
		c.reportRef(arg, diag.ConcurrencyEscape, span,
			"relaxed reference crosses concurrency boundary")
		return
	}
	if !c.reachableRelaxed(arg).Empty() {
		c.reportRef(arg, diag.ConcurrencyEscape, span,
			"relaxed reference reachable from concurrency-boundary argument")
	}
}

func (c *funcChecker) checkReturn(sc *scope, st *ir.ReturnStmt) {
	if st.Src == "" {
		if c.fn.Result != nil {
			c.diags.Report(diag.KindMismatch, st.Span, "missing return value")
		}
		return
	}
	if c.fn.Result == nil {
		c.diags.Report(diag.KindMismatch, st.Span, "return value from function without a result")
		return
	}
	src, ok := c.lookup(sc, st.Src, st.Span)
	if !ok {
		return
	}

	declared := c.fn.Result.Kind
	if declared.IsRelaxed() {
		// Already reported once against the signature.
		return
	}
	if src.IsValue {
		c.diags.Report(diag.KindMismatch, st.Span, "plain value returned where reference expected")
		return
	}

	switch declared {
	case ir.KindShared:
		switch src.Kind {
		case ir.KindShared:
			// fine
		case ir.KindExclusive:
			src.Borrowed = true
		case ir.KindRelaxed:
			// The sanctioned exit: phase-close conversion at the return
			// statement. The enclosing function is ending, so no further
			// widening is possible and every reachable interval closes.
			c.phases.RecordClose(c.reachableRelaxed(src), c.points.stmt[st], st.Span)
		case ir.KindRelaxedWeak:
			c.reportRef(src, diag.KindMismatch, st.Span, "relaxed-weak reference is non-shareable")
		}
	case ir.KindExclusive:
		if src.Kind != ir.KindExclusive {
			c.reportRef(src, diag.KindMismatch, st.Span, "no conversion to exclusive")
			return
		}
		if src.Multiplied {
			c.reportRef(src, diag.KindMismatch, st.Span, "multiplied reference used in exclusive position")
		}
	}
}

// reachableRelaxed collects the relaxed references transitively reachable
// from ref through the stored object graph, including ref itself when it
// is relaxed.
func (c *funcChecker) reachableRelaxed(ref *Reference) *set.Set[RefID] {
	out := set.New[RefID](4)
	if ref.Relaxed() {
		out.Insert(ref.ID)
	}
	visited := set.New[Handle](8)
	var walk func(h Handle)
	walk = func(h Handle) {
		if h == NoHandle || visited.Contains(h) {
			return
		}
		visited.Insert(h)
		obj, ok := c.store.Object(h)
		if !ok {
			return
		}
		for _, slot := range obj.slots {
			if !slot.Set || slot.IsValue {
				continue
			}
			if slot.Kind.IsRelaxed() {
				out.Insert(slot.By)
			}
			walk(slot.Target)
		}
	}
	walk(ref.Target)
	return out
}
