// Package diag collects the diagnostics produced by the reference-kind
// checker. Diagnostics are non-fatal and accumulated so that independent
// violations inside one function are reported together; every diagnostic
// carries a stable kind tag so hosts and tests can match on category
// rather than message text.
package diag

import (
	"fmt"
	"sort"

	"github.com/loom-lang/loom/internal/position"
)

// Kind is the stable category tag of a diagnostic.
type Kind int

const (
	// IntervalStillOpen reports an operation that requires a phase interval
	// to be closed (or keeps one open past its recorded close point).
	IntervalStillOpen Kind = iota
	// KindMismatch reports an operand whose reference kind is not a legal
	// source or target for the attempted operation.
	KindMismatch
	// CallBoundaryViolation reports a relaxed-kind value appearing in a
	// function signature or crossing a call site.
	CallBoundaryViolation
	// ConcurrencyEscape reports a relaxed-kind value reachable from an
	// argument crossing a concurrency boundary.
	ConcurrencyEscape
	// AliasingAmbiguity reports a group-state violation: writes or
	// extractions through a frozen group, or a contradictory group merge.
	AliasingAmbiguity
)

func (k Kind) String() string {
	switch k {
	case IntervalStillOpen:
		return "interval-still-open"
	case KindMismatch:
		return "kind-mismatch"
	case CallBoundaryViolation:
		return "call-boundary-violation"
	case ConcurrencyEscape:
		return "concurrency-escape"
	case AliasingAmbiguity:
		return "aliasing-ambiguity"
	default:
		return "unknown"
	}
}

// Diagnostic is a single reported violation.
type Diagnostic struct {
	Rule string // the specific rule violated, stable per violation site
	Span position.Span
	Kind Kind
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s: %s: %s", d.Span.String(), d.Kind.String(), d.Rule)
}

// Collector accumulates diagnostics for one analysis pass.
type Collector struct {
	list []Diagnostic
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{list: make([]Diagnostic, 0)}
}

// Report appends a diagnostic.
func (c *Collector) Report(kind Kind, span position.Span, rule string) {
	c.list = append(c.list, Diagnostic{Kind: kind, Span: span, Rule: rule})
}

// HasErrors returns true if anything was reported.
func (c *Collector) HasErrors() bool {
	return len(c.list) > 0
}

// Count returns the number of reported diagnostics.
func (c *Collector) Count() int {
	return len(c.list)
}

// Merge appends all diagnostics from other, preserving their order.
func (c *Collector) Merge(other *Collector) {
	c.list = append(c.list, other.list...)
}

// Diagnostics returns the accumulated diagnostics ordered by source span,
// with the kind tag as a tiebreaker for diagnostics on the same span.
func (c *Collector) Diagnostics() []Diagnostic {
	out := make([]Diagnostic, len(c.list))
	copy(out, c.list)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Span.Start != out[j].Span.Start {
			return out[i].Span.Start.Before(out[j].Span.Start)
		}
		return out[i].Kind < out[j].Kind
	})
	return out
}

// ByKind returns the accumulated diagnostics matching kind, in report order.
func (c *Collector) ByKind(kind Kind) []Diagnostic {
	var out []Diagnostic
	for _, d := range c.list {
		if d.Kind == kind {
			out = append(out, d)
		}
	}
	return out
}
