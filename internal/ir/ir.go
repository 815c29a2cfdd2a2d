// Package ir defines the typed program graph the front end hands to the
// reference-kind checker. The graph carries reference-kind annotations on
// declarations and already-resolved region variables; parsing and base
// type checking happen before this representation is built.
package ir

import (
	"fmt"

	"github.com/loom-lang/loom/internal/lifetime"
	"github.com/loom-lang/loom/internal/position"
)

// TypeID identifies a declared object type within a module.
type TypeID int

// RefKind is the declared kind of a reference.
type RefKind int

const (
	KindExclusive RefKind = iota
	KindShared
	KindRelaxed
	KindRelaxedWeak
)

func (k RefKind) String() string {
	switch k {
	case KindExclusive:
		return "exclusive"
	case KindShared:
		return "shared"
	case KindRelaxed:
		return "relaxed"
	case KindRelaxedWeak:
		return "relaxed-weak"
	default:
		return "unknown"
	}
}

// IsRelaxed reports whether the kind is one of the relaxed kinds.
func (k RefKind) IsRelaxed() bool {
	return k == KindRelaxed || k == KindRelaxedWeak
}

// FieldKind is the declared kind of an object field.
type FieldKind int

const (
	FieldValue FieldKind = iota
	FieldExclusive
	FieldShared
)

func (fk FieldKind) String() string {
	switch fk {
	case FieldValue:
		return "value"
	case FieldExclusive:
		return "exclusive-ref"
	case FieldShared:
		return "shared-ref"
	default:
		return "unknown"
	}
}

// Field is a declared field of an object type.
type Field struct {
	Name string
	Type TypeID
	Kind FieldKind
}

// TypeDecl describes one object type.
type TypeDecl struct {
	Name         string
	Fields       []Field
	ID           TypeID
	HasFinalizer bool
}

// FieldNamed returns the declared field with the given name.
func (td *TypeDecl) FieldNamed(name string) (Field, bool) {
	for _, f := range td.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Module is one compilation unit.
type Module struct {
	Name  string
	Types []*TypeDecl
	Funcs []*Function
}

// TypeByID returns the declared type with the given id.
func (m *Module) TypeByID(id TypeID) (*TypeDecl, bool) {
	for _, td := range m.Types {
		if td.ID == id {
			return td, true
		}
	}
	return nil, false
}

// FuncNamed returns the function with the given name.
func (m *Module) FuncNamed(name string) (*Function, bool) {
	for _, fn := range m.Funcs {
		if fn.Name == name {
			return fn, true
		}
	}
	return nil, false
}

// Param is a declared function parameter.
type Param struct {
	Name string
	Type TypeID
	Kind RefKind
	Span position.Span
}

// Result is a declared function result.
type Result struct {
	Type TypeID
	Kind RefKind
}

// Function is one function body to analyze.
type Function struct {
	Name   string
	Params []Param
	Result *Result // nil when the function returns nothing
	Body   *Block
	Span   position.Span
}

func (fn *Function) String() string {
	return fmt.Sprintf("func %s (%d params)", fn.Name, len(fn.Params))
}

// Block is a lexical scope. References declared inside it die at its end,
// and phase intervals of relaxed references declared inside it initially
// extend to its end point.
type Block struct {
	Stmts []Stmt
	Span  position.Span
}

// Stmt is a single operation of the typed program graph.
type Stmt interface {
	GetSpan() position.Span
	stmtNode()
}

// NewArenaStmt introduces an arena owned by the enclosing scope. All
// objects allocated from it release together at that scope's end.
type NewArenaStmt struct {
	Name   string
	Region lifetime.RegionID
	Span   position.Span
}

// AllocStmt allocates an object of Type from Arena and binds Dst as a
// reference of the declared Kind to it.
type AllocStmt struct {
	Dst   string
	Arena string
	Type  TypeID
	Kind  RefKind
	Span  position.Span
}

// CopyStmt binds Dst as a copy of the reference Src with no kind change.
// A copy between two relaxed references joins their borrow groups.
type CopyStmt struct {
	Dst  string
	Src  string
	Span position.Span
}

// ConvertStmt converts the reference Src to the target kind, binding Dst.
// Region is the base checker's resolved region for the converted binding;
// NoRegion when the host does not care.
type ConvertStmt struct {
	Dst    string
	Src    string
	To     RefKind
	Region lifetime.RegionID
	Span   position.Span
}

// FieldReadStmt reads Src.Field, binding Dst to the result.
type FieldReadStmt struct {
	Dst   string
	Src   string
	Field string
	Span  position.Span
}

// FieldWriteStmt stores the reference or value Src into Dst.Field.
type FieldWriteStmt struct {
	Dst   string
	Field string
	Src   string
	Span  position.Span
}

// ExtractStmt moves the value out of Src.Field without replacement,
// binding Dst. Only value-declared fields can be extracted.
type ExtractStmt struct {
	Dst   string
	Src   string
	Field string
	Span  position.Span
}

// BorrowStmt takes a read-only borrow through Src for the duration of
// Body. When Field is empty the borrow is of the referenced object
// itself; otherwise it is of the named field. Exclusive reports an
// ordinary exclusive borrow, delegated to the base checker except for
// the stored-kind check on relaxed-written fields.
type BorrowStmt struct {
	Dst       string
	Src       string
	Field     string
	Body      *Block
	Exclusive bool
	Span      position.Span
}

// CallStmt calls a function in the same module. Dst may be empty.
type CallStmt struct {
	Dst    string
	Callee string
	Args   []string
	Span   position.Span
}

// SpawnStmt starts a concurrent task running Callee with Args.
type SpawnStmt struct {
	Callee string
	Args   []string
	Span   position.Span
}

// SendStmt sends the reference or value Src over the named channel.
type SendStmt struct {
	Channel string
	Src     string
	Span    position.Span
}

// ReturnStmt returns Src (possibly empty) from the enclosing function.
type ReturnStmt struct {
	Src  string
	Span position.Span
}

// BlockStmt is a nested lexical scope.
type BlockStmt struct {
	Block *Block
	Span  position.Span
}

func (s *NewArenaStmt) GetSpan() position.Span   { return s.Span }
func (s *AllocStmt) GetSpan() position.Span      { return s.Span }
func (s *CopyStmt) GetSpan() position.Span       { return s.Span }
func (s *ConvertStmt) GetSpan() position.Span    { return s.Span }
func (s *FieldReadStmt) GetSpan() position.Span  { return s.Span }
func (s *FieldWriteStmt) GetSpan() position.Span { return s.Span }
func (s *ExtractStmt) GetSpan() position.Span    { return s.Span }
func (s *BorrowStmt) GetSpan() position.Span     { return s.Span }
func (s *CallStmt) GetSpan() position.Span       { return s.Span }
func (s *SpawnStmt) GetSpan() position.Span      { return s.Span }
func (s *SendStmt) GetSpan() position.Span       { return s.Span }
func (s *ReturnStmt) GetSpan() position.Span     { return s.Span }
func (s *BlockStmt) GetSpan() position.Span      { return s.Span }

func (s *NewArenaStmt) stmtNode()   {}
func (s *AllocStmt) stmtNode()      {}
func (s *CopyStmt) stmtNode()       {}
func (s *ConvertStmt) stmtNode()    {}
func (s *FieldReadStmt) stmtNode()  {}
func (s *FieldWriteStmt) stmtNode() {}
func (s *ExtractStmt) stmtNode()    {}
func (s *BorrowStmt) stmtNode()     {}
func (s *CallStmt) stmtNode()       {}
func (s *SpawnStmt) stmtNode()      {}
func (s *SendStmt) stmtNode()       {}
func (s *ReturnStmt) stmtNode()     {}
func (s *BlockStmt) stmtNode()      {}
