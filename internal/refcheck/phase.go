package refcheck

import (
	"sort"

	set "github.com/hashicorp/go-set/v3"

	"github.com/loom-lang/loom/internal/diag"
	"github.com/loom-lang/loom/internal/position"
)

// Interval is the phase interval [Start, End) of a relaxed reference,
// measured in statement points of one function body.
type Interval struct {
	Start int
	End   int
}

// Contains reports whether the interval covers the given point.
func (iv Interval) Contains(p int) bool {
	return iv.Start <= p && p < iv.End
}

// widenEdge records one `target.field = source` assignment between
// relaxed references. The source becomes reachable from the target, so
// the target's phase must extend at least as far as the source's.
type widenEdge struct {
	span position.Span
	src  RefID
	dst  RefID
}

// relaxedUse records an operation that requires the reference's phase to
// be open at that point: a field write through it, its use as an
// assignment source, a relaxed copy of it, or a field extraction.
type relaxedUse struct {
	rule  string
	span  position.Span
	ref   RefID
	point int
}

// pendingClose records a Relaxed -> Shared conversion. The conversion is
// optimistic: it is accepted unless the fixed point finds a relaxed use,
// of the reference or of anything relaxed reachable from it at the
// conversion point, later in the function.
type pendingClose struct {
	reachable *set.Set[RefID]
	span      position.Span
	point     int
}

// Tracker is the phase/region tracker for one function. Because later
// statements can still add widening edges, nothing here is decided
// online; the checker walks the whole body first and then calls Solve.
type Tracker struct {
	intervals map[RefID]Interval
	declared  map[RefID]int   // scope-declared end points, fixed at creation
	derived   map[RefID]RefID // view -> reference it was minted through
	edges     []widenEdge
	uses      []relaxedUse
	closes    []pendingClose
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		intervals: make(map[RefID]Interval),
		declared:  make(map[RefID]int),
		derived:   make(map[RefID]RefID),
	}
}

// Open starts a phase interval at the reference's creation point; its
// initial end is the declaring scope's end point.
func (t *Tracker) Open(ref RefID, start, end int) {
	t.intervals[ref] = Interval{Start: start, End: end}
	t.declared[ref] = end
}

// Share gives a relaxed copy the exact interval of its original. Copying
// never changes the interval, otherwise a copy with a shorter interval
// could escape to Shared while the original was still logically live.
func (t *Tracker) Share(dst, src RefID) {
	if iv, ok := t.intervals[src]; ok {
		t.intervals[dst] = iv
		t.declared[dst] = t.declared[src]
	}
}

// Interval returns the reference's current interval.
func (t *Tracker) Interval(ref RefID) (Interval, bool) {
	iv, ok := t.intervals[ref]
	return iv, ok
}

// RecordEdge registers a widening edge for the fixed point.
func (t *Tracker) RecordEdge(src, dst RefID, span position.Span) {
	t.edges = append(t.edges, widenEdge{src: src, dst: dst, span: span})
}

// RecordUse registers a relaxed-mode use of the reference.
func (t *Tracker) RecordUse(ref RefID, point int, span position.Span, rule string) {
	t.uses = append(t.uses, relaxedUse{ref: ref, point: point, span: span, rule: rule})
}

// RecordClose registers a Relaxed -> Shared conversion at the given
// point, with the set of relaxed references transitively reachable from
// the converted reference at that point.
func (t *Tracker) RecordClose(reachable *set.Set[RefID], point int, span position.Span) {
	t.closes = append(t.closes, pendingClose{reachable: reachable, point: point, span: span})
}

// Derive records that child is a view minted through parent: a field
// read, a borrow binding, or a relaxed copy. A close covering the parent
// covers the child's uses too; a close's reachable snapshot holds only
// the references stored in the object graph at the conversion point, so
// views minted outside that graph would otherwise slip past it.
func (t *Tracker) Derive(child, parent RefID) {
	t.derived[child] = parent
}

// Solve computes the least fixed point of interval widening over every
// recorded edge, then reports the violations the analysis exposes:
//
//   - an edge whose source's declared phase ends after its target's,
//     which would let a value still in its mutable phase stay reachable
//     from a structure that has already converted to Shared;
//   - a relaxed use at a point later than a recorded close covering the
//     used reference, reported at the use, since the use is what keeps
//     the interval open.
//
// Widening is end(target) = max(end(target), end(source)), iterated to
// convergence; it is monotone and idempotent, so rerunning Solve on an
// unchanged tracker yields identical intervals.
func (t *Tracker) Solve(sink *diag.Collector) {
	for changed := true; changed; {
		changed = false
		for _, e := range t.edges {
			src, okS := t.intervals[e.src]
			dst, okD := t.intervals[e.dst]
			if !okS || !okD {
				continue
			}
			if src.End > dst.End {
				t.intervals[e.dst] = Interval{Start: dst.Start, End: src.End}
				changed = true
			}
		}
	}

	// Legality is judged against the scope-declared ends: widening exists
	// to keep targets open long enough, not to launder an assignment whose
	// source was declared to outlive its target's phase.
	for _, e := range t.edges {
		srcEnd, okS := t.declared[e.src]
		dstEnd, okD := t.declared[e.dst]
		if !okS || !okD {
			continue
		}
		if srcEnd > dstEnd {
			sink.Report(diag.IntervalStillOpen, e.span,
				"source phase interval extends beyond target phase interval")
		}
	}

	t.reportReopenedCloses(sink)
}

// reportReopenedCloses flags every relaxed use that postdates a recorded
// conversion covering the used reference.
func (t *Tracker) reportReopenedCloses(sink *diag.Collector) {
	type offense struct {
		span position.Span
		rule string
	}
	seen := make(map[offense]bool)

	uses := make([]relaxedUse, len(t.uses))
	copy(uses, t.uses)
	sort.SliceStable(uses, func(i, j int) bool { return uses[i].point < uses[j].point })

	for _, cl := range t.closes {
		for _, u := range uses {
			if u.point <= cl.point || !t.closeCovers(cl, u.ref) {
				continue
			}
			off := offense{span: u.span, rule: u.rule}
			if seen[off] {
				continue
			}
			seen[off] = true
			sink.Report(diag.IntervalStillOpen, u.span, u.rule)
		}
	}
}

// closeCovers reports whether the close covers the reference, directly
// or through its derivation chain. Parents are always minted before
// their children, so the chain is finite.
func (t *Tracker) closeCovers(cl pendingClose, ref RefID) bool {
	for {
		if cl.reachable.Contains(ref) {
			return true
		}
		parent, ok := t.derived[ref]
		if !ok {
			return false
		}
		ref = parent
	}
}

// Intervals returns a copy of the solved interval table, keyed by
// reference id. Tests use it to confirm convergence.
func (t *Tracker) Intervals() map[RefID]Interval {
	out := make(map[RefID]Interval, len(t.intervals))
	for k, v := range t.intervals {
		out[k] = v
	}
	return out
}
