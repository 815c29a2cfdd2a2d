package position

import "testing"

func TestPositionFromOffset(t *testing.T) {
	sf := NewSourceFile("test.loom", "let a = 1\nlet b = 2\n")

	pos := sf.PositionFromOffset(0)
	if pos.Line != 1 || pos.Column != 1 {
		t.Errorf("Expected 1:1, got %d:%d", pos.Line, pos.Column)
	}

	pos = sf.PositionFromOffset(10)
	if pos.Line != 2 || pos.Column != 1 {
		t.Errorf("Expected 2:1, got %d:%d", pos.Line, pos.Column)
	}

	pos = sf.PositionFromOffset(-1)
	if pos.IsValid() {
		t.Error("Negative offset should produce an invalid position")
	}
}

func TestSpanContains(t *testing.T) {
	sf := NewSourceFile("test.loom", "let a = 1\n")
	span := Span{Start: sf.PositionFromOffset(4), End: sf.PositionFromOffset(5)}

	if !span.Contains(sf.PositionFromOffset(4)) {
		t.Error("Span should contain its start position")
	}
	if span.Contains(sf.PositionFromOffset(5)) {
		t.Error("Span end is exclusive")
	}
}

func TestSpanUnion(t *testing.T) {
	sf := NewSourceFile("test.loom", "let a = 1\nlet b = 2\n")
	first := Span{Start: sf.PositionFromOffset(0), End: sf.PositionFromOffset(3)}
	second := Span{Start: sf.PositionFromOffset(10), End: sf.PositionFromOffset(13)}

	union := first.Union(second)
	if union.Start.Offset != 0 || union.End.Offset != 13 {
		t.Errorf("Expected union 0-13, got %d-%d", union.Start.Offset, union.End.Offset)
	}
}

func TestSourceMap(t *testing.T) {
	sm := NewSourceMap()
	sm.AddFile("a.loom", "one\n")
	sm.AddFile("b.loom", "two\n")

	if sm.GetFile("a.loom") == nil {
		t.Fatal("Expected registered file a.loom")
	}
	if sm.GetFile("missing.loom") != nil {
		t.Error("Unregistered file should resolve to nil")
	}
	if f := sm.GetFile("b.loom"); f.Content != "two\n" {
		t.Errorf("Expected content %q, got %q", "two\n", f.Content)
	}
}
