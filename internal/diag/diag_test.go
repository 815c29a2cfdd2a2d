package diag

import (
	"strings"
	"testing"

	"github.com/loom-lang/loom/internal/position"
)

var testFile = position.NewSourceFile("t.loom", strings.Repeat("x", 32))

func spanAt(offset int) position.Span {
	return position.Span{
		Start: testFile.PositionFromOffset(offset),
		End:   testFile.PositionFromOffset(offset + 1),
	}
}

func TestKindString(t *testing.T) {
	cases := map[Kind]string{
		IntervalStillOpen:     "interval-still-open",
		KindMismatch:          "kind-mismatch",
		CallBoundaryViolation: "call-boundary-violation",
		ConcurrencyEscape:     "concurrency-escape",
		AliasingAmbiguity:     "aliasing-ambiguity",
		Kind(99):              "unknown",
	}
	for kind, want := range cases {
		if got := kind.String(); got != want {
			t.Errorf("Kind(%d).String() = %q, want %q", kind, got, want)
		}
	}
}

func TestCollectorOrdering(t *testing.T) {
	c := NewCollector()
	c.Report(KindMismatch, spanAt(20), "late")
	c.Report(IntervalStillOpen, spanAt(5), "early")
	c.Report(ConcurrencyEscape, spanAt(10), "middle")

	got := c.Diagnostics()
	if len(got) != 3 {
		t.Fatalf("Expected 3 diagnostics, got %d", len(got))
	}
	if got[0].Rule != "early" || got[1].Rule != "middle" || got[2].Rule != "late" {
		t.Errorf("Diagnostics not ordered by span: %v", got)
	}
}

func TestCollectorByKind(t *testing.T) {
	c := NewCollector()
	c.Report(KindMismatch, spanAt(1), "a")
	c.Report(IntervalStillOpen, spanAt(2), "b")
	c.Report(KindMismatch, spanAt(3), "c")

	mismatches := c.ByKind(KindMismatch)
	if len(mismatches) != 2 {
		t.Fatalf("Expected 2 kind-mismatch diagnostics, got %d", len(mismatches))
	}
	if len(c.ByKind(AliasingAmbiguity)) != 0 {
		t.Error("Expected no aliasing-ambiguity diagnostics")
	}
}

func TestCollectorMerge(t *testing.T) {
	a := NewCollector()
	a.Report(KindMismatch, spanAt(1), "first")
	b := NewCollector()
	b.Report(ConcurrencyEscape, spanAt(2), "second")

	a.Merge(b)
	if a.Count() != 2 {
		t.Fatalf("Expected 2 diagnostics after merge, got %d", a.Count())
	}
	if !a.HasErrors() {
		t.Error("Merged collector should report errors")
	}
}
